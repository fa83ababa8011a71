package store

import (
	"context"
	"time"

	"tucomercio/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const chatColumns = `c.id, c.type, c.business_id, c.opened_by, c.last_message, c.last_sender_id, c.last_message_at, c.created_at`

const messageColumns = `id, chat_id, sender_id, text, read_by, created_at`

// OpenChat returns the chat of c.Type opened by c.OpenedBy (and for c.BusinessID), creating it
// with members when it does not exist yet.
func (s *Store) OpenChat(ctx context.Context, c models.Chat, members []string) (*models.Chat, bool, error) {
	created := false
	err := s.withTx(ctx, "open_chat", func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO chats (id, type, business_id, opened_by, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT DO NOTHING`, c.ID, c.Type, c.BusinessID, c.OpenedBy, c.CreatedAt)
		if err != nil {
			return mapErr("open_chat", "chat", c.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return mapErr("open_chat", "chat", c.ID, err)
		}
		if n == 0 {
			return nil
		}
		created = true
		return addMembers(ctx, tx, c.ID, members)
	})
	if err != nil {
		return nil, false, err
	}

	chat, err := s.findChat(ctx, c.Type, c.OpenedBy, c.BusinessID)
	if err != nil {
		return nil, false, err
	}
	return chat, created, nil
}

func (s *Store) findChat(ctx context.Context, typ models.ChatType, openedBy string, businessID *string) (*models.Chat, error) {
	var id string
	var err error
	if typ == models.ChatSupport {
		err = s.db.GetContext(ctx, &id, `SELECT id FROM chats WHERE type = 'support' AND opened_by = $1`, openedBy)
	} else {
		err = s.db.GetContext(ctx, &id, `SELECT id FROM chats WHERE type = 'business' AND opened_by = $1 AND business_id = $2`,
			openedBy, businessID)
	}
	if err != nil {
		return nil, mapErr("find_chat", "chat", openedBy, err)
	}
	return s.GetChat(ctx, id)
}

func addMembers(ctx context.Context, tx *sqlx.Tx, chatID string, members []string) error {
	if len(members) == 0 {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO chat_members (chat_id, user_id)
		SELECT $1, unnest($2::uuid[])
		ON CONFLICT DO NOTHING`, chatID, pq.Array(members))
	return mapErr("add_chat_members", "chat", chatID, err)
}

// GetChat loads the chat with its members and per-member unread counters.
func (s *Store) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	var c models.Chat
	if err := s.db.GetContext(ctx, &c, `SELECT `+chatColumns+` FROM chats c WHERE c.id = $1`, id); err != nil {
		return nil, mapErr("get_chat", "chat", id, err)
	}
	chats := []*models.Chat{&c}
	if err := s.attachMembers(ctx, s.db, chats); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) attachMembers(ctx context.Context, q sqlx.QueryerContext, chats []*models.Chat) error {
	if len(chats) == 0 {
		return nil
	}
	ids := make([]string, len(chats))
	byID := make(map[string]*models.Chat, len(chats))
	for i, c := range chats {
		ids[i] = c.ID
		c.Participants = []string{}
		c.Unread = map[string]int{}
		byID[c.ID] = c
	}

	members := []models.ChatMember{}
	if err := sqlx.SelectContext(ctx, q, &members,
		`SELECT chat_id, user_id, unread FROM chat_members WHERE chat_id = ANY($1) ORDER BY chat_id, user_id`,
		pq.Array(ids)); err != nil {
		return mapErr("list_chat_members", "chat", "", err)
	}
	for _, m := range members {
		c := byID[m.ChatID]
		c.Participants = append(c.Participants, m.UserID)
		c.Unread[m.UserID] = m.Unread
	}
	return nil
}

// AppendMessage stores a message and updates the chat summary and the unread counter of every
// other member atomically. extraMembers are added before counting so they see the message as unread.
func (s *Store) AppendMessage(ctx context.Context, msg models.Message, extraMembers []string) (*models.Chat, error) {
	var chat models.Chat
	err := s.withTx(ctx, "append_message", func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &chat,
			`SELECT `+chatColumns+` FROM chats c WHERE c.id = $1 FOR UPDATE`, msg.ChatID); err != nil {
			return mapErr("lock_chat", "chat", msg.ChatID, err)
		}

		if err := addMembers(ctx, tx, msg.ChatID, append([]string{msg.SenderID}, extraMembers...)); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO messages (id, chat_id, sender_id, text, read_by, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			msg.ID, msg.ChatID, msg.SenderID, msg.Text, pq.Array([]string{msg.SenderID}), msg.CreatedAt); err != nil {
			return mapErr("insert_message", "message", msg.ID, err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE chats SET last_message = $2, last_sender_id = $3, last_message_at = $4 WHERE id = $1`,
			msg.ChatID, preview(msg.Text), msg.SenderID, msg.CreatedAt); err != nil {
			return mapErr("update_chat_summary", "chat", msg.ChatID, err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE chat_members SET unread = unread + 1 WHERE chat_id = $1 AND user_id <> $2`,
			msg.ChatID, msg.SenderID); err != nil {
			return mapErr("increment_unread", "chat", msg.ChatID, err)
		}

		chat.LastMessage = preview(msg.Text)
		chat.LastSenderID = &msg.SenderID
		at := msg.CreatedAt
		chat.LastMessageAt = &at
		return s.attachMembers(ctx, tx, []*models.Chat{&chat})
	})
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

const previewLength = 140

func preview(text string) string {
	r := []rune(text)
	if len(r) <= previewLength {
		return text
	}
	return string(r[:previewLength-1]) + "…"
}

// MarkChatRead zeroes the user's unread counter and records the user on unread messages.
// It reports how many messages were newly marked.
func (s *Store) MarkChatRead(ctx context.Context, chatID, userID string) (int64, error) {
	var marked int64
	err := s.withTx(ctx, "mark_chat_read", func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chat_members (chat_id, user_id, unread) VALUES ($1, $2, 0)
			ON CONFLICT (chat_id, user_id) DO UPDATE SET unread = 0`, chatID, userID); err != nil {
			return mapErr("reset_unread", "chat", chatID, err)
		}
		res, err := tx.ExecContext(ctx, `
			UPDATE messages SET read_by = array_append(read_by, $2)
			WHERE chat_id = $1 AND NOT ($2 = ANY(read_by))`, chatID, userID)
		if err != nil {
			return mapErr("mark_messages_read", "chat", chatID, err)
		}
		marked, err = res.RowsAffected()
		return mapErr("mark_messages_read", "chat", chatID, err)
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

// ListChats returns the user's chats, newest activity first. allSupport adds every support chat.
func (s *Store) ListChats(ctx context.Context, userID string, allSupport bool) ([]models.ChatSummary, error) {
	out := []models.ChatSummary{}
	err := s.db.SelectContext(ctx, &out, `
		SELECT `+chatColumns+`, COALESCE(m.unread, 0) AS my_unread
		FROM chats c
		LEFT JOIN chat_members m ON m.chat_id = c.id AND m.user_id = $1
		WHERE m.user_id IS NOT NULL OR ($2 AND c.type = 'support')
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC`, userID, allSupport)
	if err != nil {
		return nil, mapErr("list_chats", "chat", userID, err)
	}

	ptrs := make([]*models.Chat, len(out))
	for i := range out {
		ptrs[i] = &out[i].Chat
	}
	if err := s.attachMembers(ctx, s.db, ptrs); err != nil {
		return nil, err
	}
	return out, nil
}

// ListMessages returns up to limit messages older than before, oldest first.
func (s *Store) ListMessages(ctx context.Context, chatID string, before *time.Time, limit int) ([]models.Message, error) {
	out := []models.Message{}
	var err error
	if before != nil {
		err = s.db.SelectContext(ctx, &out, `SELECT `+messageColumns+` FROM messages
			WHERE chat_id = $1 AND created_at < $2 ORDER BY created_at DESC LIMIT $3`, chatID, *before, limit)
	} else {
		err = s.db.SelectContext(ctx, &out, `SELECT `+messageColumns+` FROM messages
			WHERE chat_id = $1 ORDER BY created_at DESC LIMIT $2`, chatID, limit)
	}
	if err != nil {
		return nil, mapErr("list_messages", "chat", chatID, err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) UnreadChatTotal(ctx context.Context, userID string) (int, error) {
	n, err := count(ctx, s.db, `SELECT COALESCE(SUM(unread), 0) FROM chat_members WHERE user_id = $1`, userID)
	return n, mapErr("unread_chat_total", "chat", userID, err)
}
