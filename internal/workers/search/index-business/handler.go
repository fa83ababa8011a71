package indexbusiness

import (
	"context"
	"encoding/json"
	"fmt"

	"tucomercio/internal/common/camunda"
	"tucomercio/internal/common/errors"
	"tucomercio/internal/common/logger"
	"tucomercio/internal/common/observability"
	"tucomercio/internal/search"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const TaskType = "index-business"

// Syncer brings one business document in line with Postgres.
type Syncer interface {
	Sync(ctx context.Context, businessID string) (search.SyncResult, error)
}

type Input struct {
	BusinessID string `json:"businessId"`
}

type Output struct {
	BusinessID string            `json:"businessId"`
	Result     search.SyncResult `json:"indexResult"`
}

type Handler struct {
	syncer Syncer
	runner camunda.JobRunner
	logger logger.Logger
}

func NewHandler(cfg *Config, syncer Syncer, obs *observability.Observability, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		syncer: syncer,
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
	return h.runner.Run(client, job, func(ctx context.Context, job entities.Job) (interface{}, error) {
		var input Input
		if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
			return nil, errors.NewInvalidRequestError(fmt.Sprintf("parse input: %v", err))
		}
		return h.Execute(ctx, &input)
	})
}

// Execute indexes an approved business and removes any other from the index.
func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	if input.BusinessID == "" {
		return nil, errors.NewValidationFailedError("businessId is required")
	}
	result, err := h.syncer.Sync(ctx, input.BusinessID)
	if err != nil {
		if errors.HasCode(err, errors.ErrCodeSearchIndexFailed) || errors.HasCode(err, errors.ErrCodeQueryExecutionFailed) {
			return nil, err
		}
		return nil, errors.NewSearchIndexFailedError(input.BusinessID, err)
	}
	h.logger.Debug("business index synced", map[string]interface{}{"businessId": input.BusinessID, "result": result})
	return &Output{BusinessID: input.BusinessID, Result: result}, nil
}
