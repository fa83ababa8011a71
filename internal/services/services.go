// Package services holds the application operations behind the HTTP API.
// Each service depends on narrow store interfaces satisfied by *store.Store.
package services

import (
	"context"
	"strings"
	"time"

	"tucomercio/internal/common/auth"
	"tucomercio/internal/common/errors"
	"tucomercio/internal/common/logger"
	"tucomercio/internal/models"
)

// Publisher pushes realtime events to topic subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev models.Event) error
}

// publish sends ev and logs failures. Realtime delivery never fails a committed write.
func publish(ctx context.Context, pub Publisher, log logger.Logger, topic, typ string, data interface{}) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, models.Event{Topic: topic, Type: typ, Data: data}); err != nil {
		log.Warn("realtime publish failed", map[string]interface{}{
			"topic": topic,
			"type":  typ,
			"error": err,
		})
	}
}

func requireUser(p auth.Principal) error {
	if p.IsZero() {
		return errors.NewUnauthenticatedError("login required")
	}
	return nil
}

func requireSuperAdmin(p auth.Principal) error {
	if err := requireUser(p); err != nil {
		return err
	}
	if !p.IsSuperAdmin() {
		return errors.NewForbiddenError("superadmin role required")
	}
	return nil
}

func utcNow() time.Time { return time.Now().UTC() }

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.NewValidationFailedError(field + " is required")
	}
	return nil
}
