package models

// Event is a realtime payload pushed to subscribers of a topic.
type Event struct {
	Topic string      `json:"topic"`
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
}

const (
	EventMessageCreated   = "message.created"
	EventChatUpdated      = "chat.updated"
	EventChatRead         = "chat.read"
	EventNotificationNew  = "notification.created"
	EventNotificationRead = "notification.read"
	EventUnreadCount      = "notification.unread"
	EventReviewUpserted   = "review.upserted"
	EventReviewDeleted    = "review.deleted"
	EventFavoriteChanged  = "favorite.changed"
)

func ChatTopic(chatID string) string          { return "chat:" + chatID }
func ChatsTopic(userID string) string         { return "chats:" + userID }
func NotificationsTopic(userID string) string { return "notifications:" + userID }
func FavoritesTopic(userID string) string     { return "favorites:" + userID }
func ReviewsTopic(businessID string) string   { return "reviews:" + businessID }
