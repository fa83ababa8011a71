package services

import (
	"context"
	"time"

	"tucomercio/internal/common/auth"
	"tucomercio/internal/common/camunda"
	"tucomercio/internal/common/config"
	"tucomercio/internal/common/errors"
	"tucomercio/internal/common/logger"
	"tucomercio/internal/common/metrics"
	"tucomercio/internal/common/observability"
	"tucomercio/internal/models"

	"github.com/google/uuid"
)

type NotificationStore interface {
	InsertNotification(ctx context.Context, n *models.Notification, recipients []string) error
	Feed(ctx context.Context, userID string, page, size int) (models.Page[models.FeedItem], error)
	UnreadNotifications(ctx context.Context, userID string) (int, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID string, at time.Time) (bool, error)
	MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int64, error)
	DeleteNotification(ctx context.Context, userID, notificationID string) error
	UserIDsByRole(ctx context.Context, roles ...models.Role) ([]string, error)
}

// Draft is a notification before recipients are resolved.
type Draft struct {
	Type     models.NotificationType
	Title    string
	Body     string
	Link     string
	SenderID string
	Audience models.Audience
	Priority models.Priority
}

// Notifications owns the notification feed and fan-out.
type Notifications struct {
	store      NotificationStore
	pub        Publisher
	workflows  camunda.Starter
	emailTypes map[models.NotificationType]bool
	obs        *observability.Observability
	log        logger.Logger
	now        func() time.Time
}

func NewNotifications(store NotificationStore, pub Publisher, workflows camunda.Starter,
	cfg config.NotificationConfig, obs *observability.Observability, log logger.Logger) *Notifications {
	emailTypes := make(map[models.NotificationType]bool, len(cfg.EmailTypes))
	for _, t := range cfg.EmailTypes {
		emailTypes[models.NotificationType(t)] = true
	}
	return &Notifications{
		store:      store,
		pub:        pub,
		workflows:  workflows,
		emailTypes: emailTypes,
		obs:        obs,
		log:        log.WithFields(map[string]interface{}{"service": "notifications"}),
		now:        utcNow,
	}
}

func distinctRecipients(ids []string, sender string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || id == sender || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// FanOut stores one notification for every distinct recipient except the sender, then pushes
// realtime events and starts out-of-band delivery for emailable types. It returns nil when
// nobody is left to notify.
func (s *Notifications) FanOut(ctx context.Context, d Draft, recipients []string) (*models.Notification, error) {
	recipients = distinctRecipients(recipients, d.SenderID)
	if len(recipients) == 0 {
		return nil, nil
	}

	ctx, span := s.obs.StartSpan(ctx, "notifications.fan_out")
	defer span.End()

	n := &models.Notification{
		ID:        uuid.NewString(),
		Type:      d.Type,
		Title:     d.Title,
		Body:      d.Body,
		Link:      d.Link,
		Audience:  d.Audience,
		Priority:  d.Priority,
		CreatedAt: s.now(),
	}
	if n.Audience == "" {
		n.Audience = models.AudienceUser
	}
	if n.Priority == "" {
		n.Priority = models.PriorityNormal
	}
	if d.SenderID != "" {
		sender := d.SenderID
		n.SenderID = &sender
	}

	if err := s.store.InsertNotification(ctx, n, recipients); err != nil {
		return nil, err
	}
	metrics.NotificationsFannedOut.WithLabelValues(string(n.Type)).Add(float64(len(recipients)))
	s.obs.RecordFanOut(ctx, string(n.Type), len(recipients))

	item := models.FeedItem{Notification: *n}
	for _, uid := range recipients {
		publish(ctx, s.pub, s.log, models.NotificationsTopic(uid), models.EventNotificationNew, item)
	}

	if s.emailTypes[n.Type] {
		for _, uid := range recipients {
			s.startDelivery(ctx, n, uid)
		}
	}

	s.log.Debug("notification fanned out", map[string]interface{}{
		"notificationId": n.ID,
		"type":           n.Type,
		"recipients":     len(recipients),
	})
	return n, nil
}

func (s *Notifications) startDelivery(ctx context.Context, n *models.Notification, recipientID string) {
	_, err := s.workflows.StartProcess(ctx, camunda.ProcessNotificationDelivery, map[string]interface{}{
		"notificationId":   n.ID,
		"recipientId":      recipientID,
		"notificationType": string(n.Type),
		"priority":         string(n.Priority),
		"title":            n.Title,
		"body":             n.Body,
		"link":             n.Link,
	})
	if err != nil {
		s.log.Error("failed to start notification delivery", map[string]interface{}{
			"notificationId": n.ID,
			"recipientId":    recipientID,
			"error":          err,
		})
	}
}

type BroadcastInput struct {
	Audience models.Audience `json:"audience"`
	Title    string          `json:"title"`
	Body     string          `json:"body"`
	Link     string          `json:"link"`
	Priority models.Priority `json:"priority"`
}

func audienceRoles(a models.Audience) ([]models.Role, error) {
	switch a {
	case models.AudienceAll:
		return []models.Role{models.RoleUser, models.RoleBusiness}, nil
	case models.AudienceBusiness:
		return []models.Role{models.RoleBusiness}, nil
	case models.AudienceUser:
		return []models.Role{models.RoleUser}, nil
	}
	return nil, errors.NewValidationFailedError("audience must be all, business or user")
}

// Broadcast sends an admin announcement to every active account of the audience.
func (s *Notifications) Broadcast(ctx context.Context, p auth.Principal, in BroadcastInput) (*models.Notification, int, error) {
	if err := requireSuperAdmin(p); err != nil {
		return nil, 0, err
	}
	if err := required("title", in.Title); err != nil {
		return nil, 0, err
	}
	roles, err := audienceRoles(in.Audience)
	if err != nil {
		return nil, 0, err
	}

	ids, err := s.store.UserIDsByRole(ctx, roles...)
	if err != nil {
		return nil, 0, err
	}
	recipients := distinctRecipients(ids, p.UserID)

	n, err := s.FanOut(ctx, Draft{
		Type:     models.NotifyBroadcast,
		Title:    in.Title,
		Body:     in.Body,
		Link:     in.Link,
		SenderID: p.UserID,
		Audience: in.Audience,
		Priority: in.Priority,
	}, recipients)
	if err != nil {
		return nil, 0, err
	}
	return n, len(recipients), nil
}

func (s *Notifications) Feed(ctx context.Context, p auth.Principal, page, size int) (models.Page[models.FeedItem], error) {
	if err := requireUser(p); err != nil {
		return models.Page[models.FeedItem]{}, err
	}
	return s.store.Feed(ctx, p.UserID, page, size)
}

func (s *Notifications) UnreadCount(ctx context.Context, p auth.Principal) (int, error) {
	if err := requireUser(p); err != nil {
		return 0, err
	}
	return s.store.UnreadNotifications(ctx, p.UserID)
}

// MarkRead is idempotent; only a first read publishes events.
func (s *Notifications) MarkRead(ctx context.Context, p auth.Principal, notificationID string) error {
	if err := requireUser(p); err != nil {
		return err
	}
	changed, err := s.store.MarkNotificationRead(ctx, p.UserID, notificationID, s.now())
	if err != nil || !changed {
		return err
	}
	publish(ctx, s.pub, s.log, models.NotificationsTopic(p.UserID), models.EventNotificationRead,
		map[string]string{"id": notificationID})
	s.publishUnread(ctx, p.UserID)
	return nil
}

func (s *Notifications) MarkAllRead(ctx context.Context, p auth.Principal) (int64, error) {
	if err := requireUser(p); err != nil {
		return 0, err
	}
	marked, err := s.store.MarkAllNotificationsRead(ctx, p.UserID, s.now())
	if err != nil {
		return 0, err
	}
	if marked > 0 {
		s.publishUnread(ctx, p.UserID)
	}
	return marked, nil
}

// Delete removes the notification from the caller's feed only.
func (s *Notifications) Delete(ctx context.Context, p auth.Principal, notificationID string) error {
	if err := requireUser(p); err != nil {
		return err
	}
	if err := s.store.DeleteNotification(ctx, p.UserID, notificationID); err != nil {
		return err
	}
	s.publishUnread(ctx, p.UserID)
	return nil
}

func (s *Notifications) publishUnread(ctx context.Context, userID string) {
	n, err := s.store.UnreadNotifications(ctx, userID)
	if err != nil {
		s.log.Warn("unread count failed", map[string]interface{}{"userId": userID, "error": err})
		return
	}
	publish(ctx, s.pub, s.log, models.NotificationsTopic(userID), models.EventUnreadCount, map[string]int{"unread": n})
}
