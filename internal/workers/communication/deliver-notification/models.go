package delivernotification

// Input mirrors the variables the API sets when it starts a notification-delivery process.
type Input struct {
	NotificationID   string `json:"notificationId"`
	RecipientID      string `json:"recipientId"`
	NotificationType string `json:"notificationType"`
	Priority         string `json:"priority"`
	Title            string `json:"title"`
	Body             string `json:"body"`
	Link             string `json:"link"`
}

type Output struct {
	NotificationID string `json:"notificationId"`
	RecipientID    string `json:"recipientId"`
	Status         string `json:"status"`
	EmailMessageID string `json:"emailMessageId,omitempty"`
	SMSMessageID   string `json:"smsMessageId,omitempty"`
	SentAt         string `json:"sentAt,omitempty"`
}

const (
	StatusSent     = "sent"
	StatusFailed   = "failed"
	StatusDisabled = "disabled"
)
