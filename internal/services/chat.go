package services

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"tucomercio/internal/common/auth"
	"tucomercio/internal/common/errors"
	"tucomercio/internal/common/logger"
	"tucomercio/internal/models"

	"github.com/google/uuid"
)

const (
	defaultMessagePage = 50
	maxMessagePage     = 100
)

type ChatStore interface {
	GetBusiness(ctx context.Context, id string) (*models.Business, error)
	UserIDsByRole(ctx context.Context, roles ...models.Role) ([]string, error)
	OpenChat(ctx context.Context, c models.Chat, members []string) (*models.Chat, bool, error)
	GetChat(ctx context.Context, id string) (*models.Chat, error)
	AppendMessage(ctx context.Context, msg models.Message, extraMembers []string) (*models.Chat, error)
	MarkChatRead(ctx context.Context, chatID, userID string) (int64, error)
	ListChats(ctx context.Context, userID string, allSupport bool) ([]models.ChatSummary, error)
	ListMessages(ctx context.Context, chatID string, before *time.Time, limit int) ([]models.Message, error)
	UnreadChatTotal(ctx context.Context, userID string) (int, error)
}

// PresenceChecker reports whether a user currently has a live subscription to a topic.
type PresenceChecker interface {
	IsSubscribed(ctx context.Context, userID, topic string) (bool, error)
}

type Chats struct {
	store    ChatStore
	pub      Publisher
	presence PresenceChecker
	notify   *Notifications
	log      logger.Logger
	now      func() time.Time
}

func NewChats(st ChatStore, pub Publisher, presence PresenceChecker, notify *Notifications, log logger.Logger) *Chats {
	return &Chats{
		store:    st,
		pub:      pub,
		presence: presence,
		notify:   notify,
		log:      log.WithFields(map[string]interface{}{"service": "chat"}),
		now:      utcNow,
	}
}

// OpenSupportChat returns the caller's support conversation, creating it on first use.
func (s *Chats) OpenSupportChat(ctx context.Context, p auth.Principal) (*models.Chat, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	if p.IsSuperAdmin() {
		return nil, errors.NewForbiddenError("superadmins answer support chats, they do not open them")
	}
	chat, _, err := s.store.OpenChat(ctx, models.Chat{
		ID:        uuid.NewString(),
		Type:      models.ChatSupport,
		OpenedBy:  p.UserID,
		CreatedAt: s.now(),
	}, []string{p.UserID})
	return chat, err
}

// OpenBusinessChat returns the conversation between the caller and the business owner.
func (s *Chats) OpenBusinessChat(ctx context.Context, p auth.Principal, businessID string) (*models.Chat, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	b, err := s.store.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if b.Status != models.BusinessApproved {
		return nil, errors.NewNotFoundError("business", businessID)
	}
	if b.OwnerID == p.UserID {
		return nil, errors.NewInvalidRequestError("cannot open a chat with your own business")
	}
	id := b.ID
	chat, _, err := s.store.OpenChat(ctx, models.Chat{
		ID:         uuid.NewString(),
		Type:       models.ChatBusiness,
		BusinessID: &id,
		OpenedBy:   p.UserID,
		CreatedAt:  s.now(),
	}, []string{p.UserID, b.OwnerID})
	return chat, err
}

func canAccessChat(p auth.Principal, c *models.Chat) bool {
	return c.HasParticipant(p.UserID) || (p.IsSuperAdmin() && c.Type == models.ChatSupport)
}

func (s *Chats) authorized(ctx context.Context, p auth.Principal, chatID string) (*models.Chat, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	chat, err := s.store.GetChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !canAccessChat(p, chat) {
		return nil, errors.NewForbiddenError("not a participant of this chat")
	}
	return chat, nil
}

func (s *Chats) Get(ctx context.Context, p auth.Principal, chatID string) (*models.Chat, error) {
	return s.authorized(ctx, p, chatID)
}

// Send appends a message, pushes it to the chat and every member's chat list, and notifies members
// that are not looking at the conversation.
func (s *Chats) Send(ctx context.Context, p auth.Principal, chatID, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if n := utf8.RuneCountInString(text); n == 0 || n > models.MaxMessageLength {
		return nil, errors.NewValidationFailedError("message must be between 1 and 2000 characters")
	}
	chat, err := s.authorized(ctx, p, chatID)
	if err != nil {
		return nil, err
	}

	var extra []string
	if chat.Type == models.ChatSupport && !p.IsSuperAdmin() {
		if extra, err = s.store.UserIDsByRole(ctx, models.RoleSuperAdmin); err != nil {
			return nil, err
		}
	}

	msg := models.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		SenderID:  p.UserID,
		Text:      text,
		ReadBy:    []string{p.UserID},
		CreatedAt: s.now(),
	}
	updated, err := s.store.AppendMessage(ctx, msg, extra)
	if err != nil {
		return nil, err
	}

	publish(ctx, s.pub, s.log, models.ChatTopic(chatID), models.EventMessageCreated, msg)
	for _, uid := range updated.Participants {
		publish(ctx, s.pub, s.log, models.ChatsTopic(uid), models.EventChatUpdated,
			models.ChatSummary{Chat: *updated, MyUnread: updated.Unread[uid]})
	}

	if recipients := s.away(ctx, updated, p.UserID); len(recipients) > 0 {
		if _, err := s.notify.FanOut(ctx, Draft{
			Type:     models.NotifyChatMessage,
			Title:    "Nuevo mensaje de " + p.Name,
			Body:     updated.LastMessage,
			Link:     "/chats/" + chatID,
			SenderID: p.UserID,
		}, recipients); err != nil {
			s.log.Error("chat notification failed", map[string]interface{}{"chatId": chatID, "error": err})
		}
	}
	return &msg, nil
}

// away returns the members other than sender without a live subscription to the chat topic.
// A presence lookup failure counts as away.
func (s *Chats) away(ctx context.Context, c *models.Chat, sender string) []string {
	topic := models.ChatTopic(c.ID)
	out := []string{}
	for _, uid := range c.Participants {
		if uid == sender {
			continue
		}
		here, err := s.presence.IsSubscribed(ctx, uid, topic)
		if err != nil {
			s.log.Warn("presence lookup failed", map[string]interface{}{"userId": uid, "error": err})
		}
		if !here {
			out = append(out, uid)
		}
	}
	return out
}

// MarkRead clears the caller's unread counter. It reports how many messages were newly read.
func (s *Chats) MarkRead(ctx context.Context, p auth.Principal, chatID string) (int64, error) {
	if _, err := s.authorized(ctx, p, chatID); err != nil {
		return 0, err
	}
	marked, err := s.store.MarkChatRead(ctx, chatID, p.UserID)
	if err != nil {
		return 0, err
	}
	read := map[string]interface{}{"chatId": chatID, "userId": p.UserID, "unread": 0}
	publish(ctx, s.pub, s.log, models.ChatTopic(chatID), models.EventChatRead, read)
	publish(ctx, s.pub, s.log, models.ChatsTopic(p.UserID), models.EventChatRead, read)
	return marked, nil
}

// ListChats is ordered by latest activity. Superadmins also get every support chat.
func (s *Chats) ListChats(ctx context.Context, p auth.Principal) ([]models.ChatSummary, error) {
	if err := requireUser(p); err != nil {
		return nil, err
	}
	return s.store.ListChats(ctx, p.UserID, p.IsSuperAdmin())
}

// ListMessages returns the page of messages before the cursor, oldest first.
func (s *Chats) ListMessages(ctx context.Context, p auth.Principal, chatID string, before *time.Time, limit int) ([]models.Message, error) {
	if _, err := s.authorized(ctx, p, chatID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultMessagePage
	}
	if limit > maxMessagePage {
		limit = maxMessagePage
	}
	return s.store.ListMessages(ctx, chatID, before, limit)
}

func (s *Chats) UnreadTotal(ctx context.Context, p auth.Principal) (int, error) {
	if err := requireUser(p); err != nil {
		return 0, err
	}
	return s.store.UnreadChatTotal(ctx, p.UserID)
}
