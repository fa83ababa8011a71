package camunda

import (
	"context"
	"time"

	"tucomercio/internal/common/errors"
	"tucomercio/internal/common/logger"
	"tucomercio/internal/common/metrics"
	"tucomercio/internal/common/observability"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

// JobFunc does the work of one job. The returned value becomes the job's output variables.
type JobFunc func(ctx context.Context, job entities.Job) (interface{}, error)

// JobRunner wraps a JobFunc with a deadline, metrics and completion or failure of the job.
type JobRunner struct {
	TaskType string
	Timeout  time.Duration
	Errors   *errors.ErrorHandler
	Obs      *observability.Observability
	Logger   logger.Logger
}

func (r JobRunner) Run(client worker.JobClient, job entities.Job, fn JobFunc) error {
	start := time.Now()
	log := r.Logger.WithFields(map[string]interface{}{
		"jobKey":           job.Key,
		"workflowInstance": job.ProcessInstanceKey,
	})
	log.Info("processing job", nil)

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	ctx, span := r.Obs.StartSpan(ctx, "job."+r.TaskType)
	defer span.End()

	output, err := fn(ctx, job)
	elapsed := time.Since(start)
	metrics.WorkerJobDuration.WithLabelValues(r.TaskType).Observe(elapsed.Seconds())
	r.Obs.RecordJobDuration(ctx, r.TaskType, elapsed)

	if err != nil {
		stdErr := errors.AsStandard(err)
		metrics.WorkerJobsFailed.WithLabelValues(r.TaskType, string(stdErr.Code)).Inc()
		r.Obs.RecordJobProcessed(ctx, r.TaskType, "failed")
		span.RecordError(stdErr)
		r.Errors.HandleJobError(ctx, client, job, stdErr)
		return stdErr
	}

	cmd, err := client.NewCompleteJobCommand().JobKey(job.Key).VariablesFromObject(output)
	if err != nil {
		log.Error("failed to encode job output", map[string]interface{}{"error": err})
		return err
	}
	if _, err := cmd.Send(ctx); err != nil {
		log.Error("failed to complete job", map[string]interface{}{"error": err})
		return err
	}

	metrics.WorkerJobsCompleted.WithLabelValues(r.TaskType).Inc()
	r.Obs.RecordJobProcessed(ctx, r.TaskType, "completed")
	log.Info("job completed", map[string]interface{}{"durationMs": elapsed.Milliseconds()})
	return nil
}
