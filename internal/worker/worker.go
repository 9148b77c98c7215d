package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"github.com/arctic-media-solutions/soundwave/internal/model"
	"github.com/arctic-media-solutions/soundwave/internal/service"
	pkgerrors "github.com/arctic-media-solutions/soundwave/pkg/errors"
	"github.com/arctic-media-solutions/soundwave/pkg/logger"
)

// ProcessWorker claims process tasks from the queue and drives one
// pipeline run per task, reporting the outcome back for retry or
// terminal bookkeeping.
type ProcessWorker struct {
	jobs     *service.JobService
	pipeline *Pipeline
	log      *logger.Logger
}

func NewProcessWorker(jobs *service.JobService, pipeline *Pipeline, log *logger.Logger) *ProcessWorker {
	if log == nil {
		log = logger.NewNop()
	}
	return &ProcessWorker{
		jobs:     jobs,
		pipeline: pipeline,
		log:      log,
	}
}

// ProcessTask handles one claimed job record.
func (w *ProcessWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var taskPayload struct {
		JobID   string          `json:"jobId"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(t.Payload(), &taskPayload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	jobID := taskPayload.JobID
	retryCount, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	attempt := retryCount + 1

	log := w.log.With(zap.String("job_id", jobID), zap.Int("attempt", attempt))

	// Removed or canceled records are not re-processed.
	if canceled, err := w.jobs.IsCanceled(ctx, jobID); err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			log.Warn("job record missing, dropping task")
			return nil
		}
		return err
	} else if canceled {
		log.Info("job canceled before start")
		return nil
	}

	var req model.JobRequest
	if err := json.Unmarshal(taskPayload.Payload, &req); err != nil {
		verr := pkgerrors.NewValidationError("invalid job payload", err)
		if ferr := w.jobs.Fail(ctx, jobID, verr.Error()); ferr != nil {
			log.Error("failed to mark job failed", zap.Error(ferr))
		}
		return fmt.Errorf("%v: %w", verr, asynq.SkipRetry)
	}
	// Derived fields do not survive the queue round-trip.
	req.Normalize()

	if err := w.jobs.MarkActive(ctx, jobID, attempt); err != nil {
		log.Error("failed to mark job active", zap.Error(err))
	}

	log.Info("processing job", zap.Int("outputs", len(req.Outputs)))

	result, err := w.pipeline.Run(ctx, jobID, &req)
	if err != nil {
		if errors.Is(err, ErrCanceled) {
			log.Info("job canceled mid-flight")
			return nil
		}

		// Server shutdown or task timeout: the run was interrupted, not
		// failed. Hand the task back so the queue redelivers it.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if rerr := w.jobs.Requeue(context.WithoutCancel(ctx), jobID, attempt); rerr != nil {
				log.Error("failed to requeue job", zap.Error(rerr))
			}
			log.Warn("job interrupted, queue will redeliver", zap.Error(err))
			return err
		}

		if retryCount >= maxRetry {
			if ferr := w.jobs.Fail(ctx, jobID, err.Error()); ferr != nil {
				log.Error("failed to mark job failed", zap.Error(ferr))
			}
			log.Error("job failed terminally", zap.Error(err))
		} else {
			if rerr := w.jobs.Requeue(ctx, jobID, attempt); rerr != nil {
				log.Error("failed to requeue job", zap.Error(rerr))
			}
			log.Warn("job attempt failed, queue will retry", zap.Error(err))
		}
		return err
	}

	if err := w.jobs.Complete(ctx, jobID, result); err != nil {
		if errors.Is(err, service.ErrJobCanceled) {
			log.Info("job canceled, discarding result")
			return nil
		}
		log.Error("failed to store job result", zap.Error(err))
		return err
	}

	log.Info("job completed", zap.Int("outputs", len(result.Outputs)))
	return nil
}
