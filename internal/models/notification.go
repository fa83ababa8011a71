package models

import "time"

type NotificationType string

const (
	NotifyNewReview        NotificationType = "new_review"
	NotifyReviewReply      NotificationType = "review_reply"
	NotifyChatMessage      NotificationType = "chat_message"
	NotifyBusinessApproved NotificationType = "business_approved"
	NotifyBusinessRejected NotificationType = "business_rejected"
	NotifyBusinessSuspend  NotificationType = "business_suspended"
	NotifyCampaign         NotificationType = "campaign_published"
	NotifyCampaignRequest  NotificationType = "campaign_request"
	NotifyBroadcast        NotificationType = "broadcast"
	NotifyWelcome          NotificationType = "welcome"
)

type Audience string

const (
	AudienceAll      Audience = "all"
	AudienceBusiness Audience = "business"
	AudienceUser     Audience = "user"
)

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

type Notification struct {
	ID        string           `json:"id" db:"id"`
	Type      NotificationType `json:"type" db:"type"`
	Title     string           `json:"title" db:"title"`
	Body      string           `json:"body" db:"body"`
	Link      string           `json:"link,omitempty" db:"link"`
	SenderID  *string          `json:"senderId,omitempty" db:"sender_id"`
	Audience  Audience         `json:"audience" db:"audience"`
	Priority  Priority         `json:"priority" db:"priority"`
	CreatedAt time.Time        `json:"createdAt" db:"created_at"`
}

type NotificationRecipient struct {
	NotificationID string     `json:"notificationId" db:"notification_id"`
	UserID         string     `json:"userId" db:"user_id"`
	Read           bool       `json:"read" db:"read"`
	ReadAt         *time.Time `json:"readAt,omitempty" db:"read_at"`
}

// FeedItem is a notification with the reader's state.
type FeedItem struct {
	Notification
	Read   bool       `json:"read" db:"read"`
	ReadAt *time.Time `json:"readAt,omitempty" db:"read_at"`
}

// DeliveryStatus reported by the out-of-band delivery worker.
type DeliveryStatus string

const (
	DeliverySent     DeliveryStatus = "sent"
	DeliveryFailed   DeliveryStatus = "failed"
	DeliveryDisabled DeliveryStatus = "disabled"
)
