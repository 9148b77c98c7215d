package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/arctic-media-solutions/soundwave/internal/model"
)

const TaskTypeProcess = "audio:process"

var (
	ErrJobNotFound = errors.New("job not found")
	ErrJobCanceled = errors.New("job canceled")
	ErrJobTerminal = errors.New("job already completed")
)

// JobManager is the queue-facing contract the submission surface uses.
type JobManager interface {
	CreateJob(ctx context.Context, req *model.JobRequest) (*model.ProcessStartResponse, error)
	GetStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, error)
	CancelJob(ctx context.Context, jobID string) (*model.JobCancelResponse, error)
}

// JobService owns the job records and the queue. Workers and the pipeline
// only read/update records through it.
type JobService struct {
	redis       *redis.Client
	asynqClient *asynq.Client
	maxAttempts int
	retention   time.Duration
}

func NewJobService(redisClient *redis.Client, asynqClient *asynq.Client, maxAttempts int, retention time.Duration) *JobService {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &JobService{
		redis:       redisClient,
		asynqClient: asynqClient,
		maxAttempts: maxAttempts,
		retention:   retention,
	}
}

// CreateJob persists a new record and enqueues the processing task.
// The request must already be validated and normalized.
func (s *JobService) CreateJob(ctx context.Context, req *model.JobRequest) (*model.ProcessStartResponse, error) {
	jobID := uuid.New().String()
	now := time.Now()

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	job := &model.Job{
		ID:         jobID,
		InternalID: req.InternalID,
		State:      model.JobStatusQueued,
		Progress:   0,
		Request:    payload,
		CreatedAt:  now,
	}

	if err := s.saveJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	task, err := newProcessTask(jobID, payload)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue("process"),
		asynq.MaxRetry(s.maxAttempts-1),
		asynq.Retention(s.retention),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	return &model.ProcessStartResponse{
		ID:        jobID,
		Status:    model.JobStatusQueued,
		CreatedAt: now,
	}, nil
}

// GetStatus returns the job-status query view.
func (s *JobService) GetStatus(ctx context.Context, jobID string) (*model.JobStatusResponse, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	resp := &model.JobStatusResponse{
		ID:         job.ID,
		InternalID: job.InternalID,
		Status:     job.State,
		Progress:   job.Progress,
		Error:      job.FailureReason,
	}

	if job.State == model.JobStatusCompleted && len(job.ReturnValue) > 0 {
		var result model.JobResult
		if err := json.Unmarshal(job.ReturnValue, &result); err != nil {
			return nil, fmt.Errorf("failed to unmarshal result: %w", err)
		}
		resp.Result = &result
	}

	return resp, nil
}

// CancelJob marks a non-terminal record canceled. The pipeline observes
// this at its next stage boundary; in-flight work is not preempted.
func (s *JobService) CancelJob(ctx context.Context, jobID string) (*model.JobCancelResponse, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if job.State == model.JobStatusCompleted || job.State == model.JobStatusFailed {
		return nil, ErrJobTerminal
	}

	job.State = model.JobStatusCanceled
	now := time.Now()
	job.CompletedAt = &now

	if err := s.saveJob(ctx, job); err != nil {
		return nil, err
	}

	return &model.JobCancelResponse{
		Success: true,
		ID:      jobID,
		Status:  model.JobStatusCanceled,
	}, nil
}

// MarkActive transitions a claimed record to active and bumps the attempt
// counter.
func (s *JobService) MarkActive(ctx context.Context, jobID string, attempt int) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.State = model.JobStatusActive
	job.AttemptsMade = attempt
	if job.StartedAt == nil {
		now := time.Now()
		job.StartedAt = &now
	}

	return s.saveJob(ctx, job)
}

// ReportProgress records pipeline progress. Writes below the stored value
// are dropped so progress stays monotonic across whole-job retries.
func (s *JobService) ReportProgress(ctx context.Context, jobID string, progress int) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if progress <= job.Progress {
		return nil
	}
	job.Progress = progress

	return s.saveJob(ctx, job)
}

// Complete stores the return value and marks the record completed. A
// canceled record is never re-reported as completed.
func (s *JobService) Complete(ctx context.Context, jobID string, result *model.JobResult) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if job.State == model.JobStatusCanceled {
		return ErrJobCanceled
	}

	returnValue, err := json.Marshal(result)
	if err != nil {
		return err
	}

	job.State = model.JobStatusCompleted
	job.Progress = 100
	job.ReturnValue = returnValue
	now := time.Now()
	job.CompletedAt = &now

	return s.saveJob(ctx, job)
}

// Requeue records a failed attempt that the queue will retry.
func (s *JobService) Requeue(ctx context.Context, jobID string, attempt int) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	if job.State == model.JobStatusCanceled {
		return nil
	}

	job.State = model.JobStatusQueued
	job.AttemptsMade = attempt

	return s.saveJob(ctx, job)
}

// Fail marks the record terminally failed.
func (s *JobService) Fail(ctx context.Context, jobID, reason string) error {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.State = model.JobStatusFailed
	job.FailureReason = &reason
	now := time.Now()
	job.CompletedAt = &now

	return s.saveJob(ctx, job)
}

// IsCanceled reports whether the record was marked for cancellation.
func (s *JobService) IsCanceled(ctx context.Context, jobID string) (bool, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	return job.State == model.JobStatusCanceled, nil
}

// GetJob reads a record.
func (s *JobService) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}

	return &job, nil
}

func (s *JobService) saveJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, jobKey(job.ID), data, s.retention).Err()
}

func jobKey(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

func newProcessTask(jobID string, payload []byte) (*asynq.Task, error) {
	taskPayload := map[string]interface{}{
		"jobId":   jobID,
		"payload": json.RawMessage(payload),
	}
	data, err := json.Marshal(taskPayload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeProcess, data), nil
}
