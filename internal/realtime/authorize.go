package realtime

import (
	"context"
	"strings"

	"tucomercio/internal/common/auth"
	"tucomercio/internal/common/errors"
	"tucomercio/internal/models"
)

// ChatLookup loads a chat with its participants.
type ChatLookup interface {
	GetChat(ctx context.Context, id string) (*models.Chat, error)
}

// TopicAuthorizer decides which topics a principal may follow.
type TopicAuthorizer struct {
	chats ChatLookup
}

func NewTopicAuthorizer(chats ChatLookup) *TopicAuthorizer {
	return &TopicAuthorizer{chats: chats}
}

func (a *TopicAuthorizer) Authorize(ctx context.Context, p auth.Principal, topic string) error {
	kind, id, ok := strings.Cut(topic, ":")
	if !ok || id == "" {
		return errors.NewInvalidRequestError("malformed topic: " + topic)
	}

	switch kind {
	case "reviews":
		return nil
	case "chats", "notifications", "favorites":
		if id != p.UserID {
			return errors.NewForbiddenError("topic belongs to another user")
		}
		return nil
	case "chat":
		chat, err := a.chats.GetChat(ctx, id)
		if err != nil {
			return err
		}
		if chat.HasParticipant(p.UserID) || (chat.Type == models.ChatSupport && p.IsSuperAdmin()) {
			return nil
		}
		return errors.NewForbiddenError("not a chat participant")
	default:
		return errors.NewInvalidRequestError("unknown topic kind: " + kind)
	}
}
