package delivernotification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tucomercio/internal/common/camunda"
	"tucomercio/internal/common/errors"
	"tucomercio/internal/common/logger"
	"tucomercio/internal/common/observability"
	"tucomercio/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "deliver-notification"

// ContactLoader reads the delivery details of a user.
type ContactLoader interface {
	GetContact(ctx context.Context, userID string) (*models.Contact, error)
}

type EmailSender interface {
	SendEmail(ctx context.Context, to, subject, text, html string) (string, error)
}

type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) (string, error)
}

type Handler struct {
	config   *Config
	contacts ContactLoader
	email    EmailSender
	sms      SMSSender
	runner   camunda.JobRunner
	logger   logger.Logger
	now      func() time.Time
}

func NewHandler(cfg *Config, contacts ContactLoader, email EmailSender, sms SMSSender, obs *observability.Observability, log logger.Logger) (*Handler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:   cfg,
		contacts: contacts,
		email:    email,
		sms:      sms,
		runner: camunda.JobRunner{
			TaskType: TaskType,
			Timeout:  cfg.Timeout,
			Errors:   errors.NewErrorHandler(log),
			Obs:      obs,
			Logger:   log,
		},
		logger: log,
		now:    time.Now,
	}, nil
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	return h.runner.Run(client, job, func(ctx context.Context, job entities.Job) (interface{}, error) {
		input, err := parseInput(job.Variables)
		if err != nil {
			return nil, err
		}
		return h.Execute(ctx, input)
	})
}

func parseInput(variables string) (*Input, error) {
	var input Input
	if err := json.Unmarshal([]byte(variables), &input); err != nil {
		return nil, errors.NewInvalidRequestError(fmt.Sprintf("parse input: %v", err))
	}
	if input.RecipientID == "" {
		return nil, errors.NewValidationFailedError("recipientId is required")
	}
	if input.Title == "" {
		return nil, errors.NewValidationFailedError("title is required")
	}
	return &input, nil
}

// Execute sends the notification by email and, for high priority ones, by SMS.
// A send failure is reported in the output status, not as a job error.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	out := &Output{NotificationID: input.NotificationID, RecipientID: input.RecipientID, Status: StatusDisabled}

	contact, err := h.contacts.GetContact(ctx, input.RecipientID)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeNotFound) {
			h.logger.Warn("recipient not found", map[string]interface{}{"recipientId": input.RecipientID})
			return out, nil
		}
		return nil, err
	}
	if contact.Disabled {
		return out, nil
	}

	sent := false
	if h.config.EmailEnabled && contact.Email != "" {
		msg, err := render(input, contact.DisplayName, h.config.SiteURL)
		if err != nil {
			return nil, errors.NewInternalError(fmt.Errorf("render %s: %w", input.NotificationType, err))
		}
		id, err := h.email.SendEmail(ctx, contact.Email, msg.Subject, msg.Text, msg.HTML)
		if err != nil {
			h.logger.Error("email send failed", map[string]interface{}{
				"notificationId": input.NotificationID,
				"recipientId":    input.RecipientID,
				"error":          err,
			})
			out.Status = StatusFailed
			return out, nil
		}
		out.EmailMessageID = id
		sent = true
	}

	if h.config.SMSEnabled && contact.Phone != "" && input.Priority == string(models.PriorityHigh) {
		id, err := h.sms.SendSMS(ctx, contact.Phone, smsText(input))
		if err != nil {
			h.logger.Error("sms send failed", map[string]interface{}{
				"notificationId": input.NotificationID,
				"recipientId":    input.RecipientID,
				"error":          err,
			})
			out.Status = StatusFailed
			return out, nil
		}
		out.SMSMessageID = id
		sent = true
	}

	if sent {
		out.Status = StatusSent
		out.SentAt = h.now().UTC().Format(time.RFC3339)
	}
	return out, nil
}
