package flushviews

import (
	"context"
	"time"

	"tucomercio/internal/common/camunda"
	"tucomercio/internal/common/errors"
	"tucomercio/internal/common/logger"
	"tucomercio/internal/common/observability"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "flush-view-counters"

const defaultLockTTL = time.Minute

// Counters hands out buffered view counts and forgets them once acknowledged.
// Lock serializes flushers across instances.
type Counters interface {
	Lock(ctx context.Context, ttl time.Duration) (token string, ok bool, err error)
	Unlock(ctx context.Context, token string) error
	Drain(ctx context.Context) (map[string]int64, error)
	Ack(ctx context.Context) error
}

type ViewStore interface {
	AddBusinessViews(ctx context.Context, views map[string]int64) error
}

type Output struct {
	Businesses int   `json:"businesses"`
	Views      int64 `json:"views"`
	Skipped    bool  `json:"skipped,omitempty"`
}

type Handler struct {
	counters Counters
	store    ViewStore
	lockTTL  time.Duration
	runner   camunda.JobRunner
	logger   logger.Logger
}

func NewHandler(cfg *Config, counters Counters, st ViewStore, obs *observability.Observability, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	lockTTL := cfg.Timeout
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &Handler{
		counters: counters,
		store:    st,
		lockTTL:  lockTTL,
		runner: camunda.JobRunner{
			TaskType: TaskType,
			Timeout:  cfg.Timeout,
			Errors:   errors.NewErrorHandler(log),
			Obs:      obs,
			Logger:   log,
		},
		logger: log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) error {
	return h.runner.Run(client, job, func(ctx context.Context, _ entities.Job) (interface{}, error) {
		return h.Flush(ctx)
	})
}

// Flush adds the drained counts to Postgres and then acknowledges them. A failure
// before Ack leaves the batch in Redis for the next run. Only one flusher runs at
// a time; the others skip.
func (h *Handler) Flush(ctx context.Context) (*Output, error) {
	token, ok, err := h.counters.Lock(ctx, h.lockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		h.logger.Debug("view counter flush already running elsewhere", nil)
		return &Output{Skipped: true}, nil
	}
	defer func() {
		if err := h.counters.Unlock(context.WithoutCancel(ctx), token); err != nil {
			h.logger.Warn("view counter flush lock not released", map[string]interface{}{"error": err})
		}
	}()

	views, err := h.counters.Drain(ctx)
	if err != nil {
		return nil, err
	}
	out := &Output{Businesses: len(views)}
	if len(views) == 0 {
		return out, nil
	}
	for _, n := range views {
		out.Views += n
	}

	if err := h.store.AddBusinessViews(ctx, views); err != nil {
		return nil, err
	}
	if err := h.counters.Ack(ctx); err != nil {
		return nil, err
	}
	h.logger.Info("view counters flushed", map[string]interface{}{"businesses": out.Businesses, "views": out.Views})
	return out, nil
}

// Run flushes on a fixed interval until ctx is done. Used when no workflow engine schedules the job.
func (h *Handler) Run(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := h.Flush(ctx); err != nil && ctx.Err() == nil {
				h.logger.Error("view counter flush failed", map[string]interface{}{"error": err})
			}
		}
	}
}
