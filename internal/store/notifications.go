package store

import (
	"context"
	"time"

	"tucomercio/internal/common/errors"
	"tucomercio/internal/models"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const notificationColumns = `n.id, n.type, n.title, n.body, n.link, n.sender_id, n.audience, n.priority, n.created_at`

// InsertNotification writes the notification and one unread recipient row per user.
func (s *Store) InsertNotification(ctx context.Context, n *models.Notification, recipients []string) error {
	return s.withTx(ctx, "insert_notification", func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO notifications (id, type, title, body, link, sender_id, audience, priority, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			n.ID, n.Type, n.Title, n.Body, n.Link, n.SenderID, n.Audience, n.Priority, n.CreatedAt); err != nil {
			return mapErr("insert_notification", "notification", n.ID, err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO notification_recipients (notification_id, user_id)
			SELECT $1, unnest($2::uuid[])
			ON CONFLICT DO NOTHING`, n.ID, pq.Array(recipients))
		return mapErr("insert_recipients", "notification", n.ID, err)
	})
}

func (s *Store) GetNotification(ctx context.Context, id string) (*models.Notification, error) {
	var n models.Notification
	if err := s.db.GetContext(ctx, &n, `SELECT `+notificationColumns+` FROM notifications n WHERE n.id = $1`, id); err != nil {
		return nil, mapErr("get_notification", "notification", id, err)
	}
	return &n, nil
}

// Feed returns the user's notifications newest first with read state.
func (s *Store) Feed(ctx context.Context, userID string, page, size int) (models.Page[models.FeedItem], error) {
	page, size = models.NormalizePage(page, size)
	out := models.Page[models.FeedItem]{Page: page, PageSize: size, Items: []models.FeedItem{}}

	total, err := count(ctx, s.db, `SELECT COUNT(*) FROM notification_recipients WHERE user_id = $1`, userID)
	if err != nil {
		return out, mapErr("count_feed", "notification", userID, err)
	}
	out.Total = total

	err = s.db.SelectContext(ctx, &out.Items, `
		SELECT `+notificationColumns+`, r.read, r.read_at
		FROM notification_recipients r
		JOIN notifications n ON n.id = r.notification_id
		WHERE r.user_id = $1
		ORDER BY n.created_at DESC
		LIMIT $2 OFFSET $3`, userID, size, (page-1)*size)
	if err != nil {
		return out, mapErr("feed", "notification", userID, err)
	}
	return out, nil
}

func (s *Store) UnreadNotifications(ctx context.Context, userID string) (int, error) {
	n, err := count(ctx, s.db, `SELECT COUNT(*) FROM notification_recipients WHERE user_id = $1 AND NOT read`, userID)
	return n, mapErr("unread_notifications", "notification", userID, err)
}

// MarkNotificationRead reports whether the row changed; repeating it is a no-op.
func (s *Store) MarkNotificationRead(ctx context.Context, userID, notificationID string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notification_recipients SET read = TRUE, read_at = $3
		WHERE user_id = $1 AND notification_id = $2 AND NOT read`, userID, notificationID, at)
	if err != nil {
		return false, mapErr("mark_notification_read", "notification", notificationID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, mapErr("mark_notification_read", "notification", notificationID, err)
	}
	if n == 0 {
		exists, err := s.hasRecipient(ctx, userID, notificationID)
		if err != nil {
			return false, err
		}
		if !exists {
			return false, errors.NewNotFoundError("notification", notificationID)
		}
	}
	return n > 0, nil
}

func (s *Store) hasRecipient(ctx context.Context, userID, notificationID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM notification_recipients WHERE user_id = $1 AND notification_id = $2)`,
		userID, notificationID)
	return exists, mapErr("has_recipient", "notification", notificationID, err)
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, userID string, at time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notification_recipients SET read = TRUE, read_at = $2 WHERE user_id = $1 AND NOT read`, userID, at)
	if err != nil {
		return 0, mapErr("mark_all_read", "notification", userID, err)
	}
	n, err := res.RowsAffected()
	return n, mapErr("mark_all_read", "notification", userID, err)
}

// DeleteNotification removes only the user's copy of the notification.
func (s *Store) DeleteNotification(ctx context.Context, userID, notificationID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM notification_recipients WHERE user_id = $1 AND notification_id = $2`, userID, notificationID)
	if err != nil {
		return mapErr("delete_notification", "notification", notificationID, err)
	}
	return requireRow(res, "notification", notificationID)
}
