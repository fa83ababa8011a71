package models

import (
	"time"

	"github.com/lib/pq"
)

type ChatType string

const (
	ChatSupport  ChatType = "support"
	ChatBusiness ChatType = "business"
)

const MaxMessageLength = 2000

type Chat struct {
	ID            string         `json:"id" db:"id"`
	Type          ChatType       `json:"type" db:"type"`
	BusinessID    *string        `json:"businessId,omitempty" db:"business_id"`
	OpenedBy      string         `json:"openedBy" db:"opened_by"`
	LastMessage   string         `json:"lastMessage" db:"last_message"`
	LastSenderID  *string        `json:"lastSenderId,omitempty" db:"last_sender_id"`
	LastMessageAt *time.Time     `json:"lastMessageAt,omitempty" db:"last_message_at"`
	CreatedAt     time.Time      `json:"createdAt" db:"created_at"`
	Participants  []string       `json:"participants" db:"-"`
	Unread        map[string]int `json:"unread" db:"-"`
}

// HasParticipant reports whether userID is a member of the chat.
func (c Chat) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

// ChatSummary is a chat as seen by one user.
type ChatSummary struct {
	Chat
	MyUnread int `json:"myUnread" db:"my_unread"`
}

type ChatMember struct {
	ChatID string `db:"chat_id"`
	UserID string `db:"user_id"`
	Unread int    `db:"unread"`
}

type Message struct {
	ID        string         `json:"id" db:"id"`
	ChatID    string         `json:"chatId" db:"chat_id"`
	SenderID  string         `json:"senderId" db:"sender_id"`
	Text      string         `json:"text" db:"text"`
	ReadBy    pq.StringArray `json:"readBy" db:"read_by"`
	CreatedAt time.Time      `json:"createdAt" db:"created_at"`
}
