// Package service holds the business layer between the CLI/HTTP surfaces and
// the store: enqueue default resolution, the claim/report cycle with the retry
// policy, DLQ management, and the reaper loop.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/m-navaneeth8770/queuectl/internal/data"
	"github.com/m-navaneeth8770/queuectl/internal/domain/jobqueue"
	"github.com/m-navaneeth8770/queuectl/internal/domain/model"
	"github.com/m-navaneeth8770/queuectl/internal/domain/retry"
	apperrors "github.com/m-navaneeth8770/queuectl/internal/errors"
	"github.com/m-navaneeth8770/queuectl/internal/observability/metrics"
	"github.com/m-navaneeth8770/queuectl/internal/observability/statsd"
)

// JobStore is the persistence surface QueueService depends on.
type JobStore interface {
	Enqueue(ctx context.Context, job *model.Job) (*model.Job, error)
	ClaimNext(ctx context.Context, workerID string) (*model.Job, error)
	MarkCompleted(ctx context.Context, id, output string) error
	MarkFailed(ctx context.Context, p data.FailureParams) error
	Requeue(ctx context.Context, id string) (*model.Job, error)
	GetByID(ctx context.Context, id string) (*model.Job, error)
	List(ctx context.Context, filter model.JobFilter) ([]*model.Job, error)
	ListDLQ(ctx context.Context, limit int) ([]*model.Job, error)
	StatusSummary(ctx context.Context) (*model.QueueStats, error)
	MetricsSnapshot(ctx context.Context) (*model.MetricsSnapshot, error)
	WaitForNotification(ctx context.Context) error
}

// ConfigStore resolves the persisted queue defaults.
type ConfigStore interface {
	Defaults(ctx context.Context) (data.QueueDefaults, error)
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
}

// QueueServiceOptions groups dependencies for QueueService.
type QueueServiceOptions struct {
	Store           JobStore                 // Required: job store
	Config          ConfigStore              // Required: persisted queue defaults
	Clock           func() time.Time         // Optional: clock override for tests
	Logger          *slog.Logger             // Optional: structured logger
	Metrics         statsd.Sink              // Optional: lifecycle metrics sink
	Notifier        jobqueue.Notifier        // Optional: custom availability notifier
	NotifierOptions jobqueue.NotifierOptions // Optional: default notifier behaviour
}

// QueueService provides the queue's business operations.
type QueueService struct {
	store    JobStore
	config   ConfigStore
	clock    func() time.Time
	notifier jobqueue.Notifier
	logger   *slog.Logger
	metrics  statsd.Sink
}

// NewQueueService constructs a new QueueService.
func NewQueueService(opts QueueServiceOptions) (*QueueService, error) {
	if opts.Store == nil {
		return nil, errors.New("JobStore is required")
	}
	if opts.Config == nil {
		return nil, errors.New("ConfigStore is required")
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	notifier := opts.Notifier
	if notifier == nil {
		options := opts.NotifierOptions
		if options.Waiter == nil {
			options.Waiter = opts.Store
		}
		var err error
		notifier, err = jobqueue.NewNotifier(options)
		if err != nil {
			return nil, fmt.Errorf("create job notifier: %w", err)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &QueueService{
		store:    opts.Store,
		config:   opts.Config,
		clock:    clock,
		notifier: notifier,
		logger:   logger.With("component", "queue_service"),
		metrics:  opts.Metrics,
	}, nil
}

// Enqueue validates the request, resolves missing limits from the persisted
// queue defaults, and inserts the job. The resolved limits are fixed for the
// job's lifetime.
func (s *QueueService) Enqueue(ctx context.Context, req *model.EnqueueRequest) (*model.Job, error) {
	if req == nil {
		return nil, apperrors.Validation("enqueue request is required")
	}
	if err := req.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeValidation, "invalid enqueue request")
	}

	defaults, err := s.config.Defaults(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve queue defaults: %w", err)
	}

	job := &model.Job{
		ID:             req.ID,
		Command:        req.Command,
		Priority:       req.Priority,
		MaxRetries:     defaults.MaxRetries,
		BackoffBase:    defaults.BackoffBase,
		TimeoutSeconds: defaults.TimeoutSeconds,
	}
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if req.RunAt != nil {
		job.RunAt = req.RunAt.UTC()
	}
	if req.MaxRetries > 0 {
		job.MaxRetries = req.MaxRetries
	}
	if req.BackoffBase > 0 {
		job.BackoffBase = req.BackoffBase
	}
	if req.TimeoutSeconds > 0 {
		job.TimeoutSeconds = req.TimeoutSeconds
	}

	created, err := s.store.Enqueue(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}

	s.logger.InfoContext(ctx, "job enqueued",
		"id", created.ID,
		"priority", created.Priority,
		"max_retries", created.MaxRetries,
	)
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Transition: "enqueued",
		Result:     metrics.ResultSuccess,
	})

	return created, nil
}

// ClaimNext claims the next eligible job for the given worker.
func (s *QueueService) ClaimNext(ctx context.Context, workerID string) (*model.Job, error) {
	job, err := s.store.ClaimNext(ctx, workerID)
	if err != nil {
		if errors.Is(err, model.ErrNoJobsAvailable) {
			return nil, err
		}
		return nil, fmt.Errorf("claim next job: %w", err)
	}

	s.logger.DebugContext(ctx, "job claimed",
		"id", job.ID,
		"worker", workerID,
		"attempt", job.Attempts,
	)
	return job, nil
}

// ReportSuccess marks a claimed job as completed.
func (s *QueueService) ReportSuccess(ctx context.Context, job *model.Job, output string, duration time.Duration) error {
	if err := s.store.MarkCompleted(ctx, job.ID, output); err != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, err)
	}

	s.logger.InfoContext(ctx, "job completed",
		"id", job.ID,
		"attempt", job.Attempts,
		"duration", duration,
	)
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Transition: "completed",
		Result:     metrics.ResultSuccess,
		Duration:   duration,
	})
	return nil
}

// ReportFailure records a failed attempt. The retry policy decides whether the
// job backs off for another attempt or moves to the DLQ.
func (s *QueueService) ReportFailure(ctx context.Context, job *model.Job, failure FailureReport) (retry.Decision, error) {
	decision := retry.Decide(retry.Input{
		Attempts:    job.Attempts,
		MaxRetries:  job.MaxRetries,
		BackoffBase: job.BackoffBase,
		Now:         s.clock().UTC(),
	})

	if err := s.store.MarkFailed(ctx, data.FailureParams{
		ID:             job.ID,
		ErrMsg:         failure.ErrMsg,
		Output:         failure.Output,
		State:          decision.State,
		NextEligibleAt: decision.NextEligibleAt,
	}); err != nil {
		return decision, fmt.Errorf("fail job %s: %w", job.ID, err)
	}

	if decision.Dead() {
		s.logger.WarnContext(ctx, "job moved to dead letter queue",
			"id", job.ID,
			"attempts", job.Attempts,
			"error", failure.ErrMsg,
		)
	} else {
		s.logger.InfoContext(ctx, "job failed, will retry",
			"id", job.ID,
			"attempt", job.Attempts,
			"next_eligible_at", decision.NextEligibleAt,
			"error", failure.ErrMsg,
		)
	}

	result := metrics.ResultError
	if failure.TimedOut {
		result = metrics.ResultTimeout
	}
	transition := "failed"
	if decision.Dead() {
		transition = "dead"
	}
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Transition: transition,
		Result:     result,
		Duration:   failure.Duration,
	})

	return decision, nil
}

// FailureReport carries the details of a failed execution attempt.
type FailureReport struct {
	ErrMsg   string
	Output   string
	TimedOut bool
	Duration time.Duration
}

// Status returns a job's current state and outcome.
func (s *QueueService) Status(ctx context.Context, id string) (*model.JobStatusResponse, error) {
	job, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			return nil, apperrors.NotFoundf("job %s not found", id)
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}

	return &model.JobStatusResponse{
		ID:          job.ID,
		State:       job.State,
		Attempts:    job.Attempts,
		Output:      job.Output,
		Error:       job.Error,
		CompletedAt: job.CompletedAt,
	}, nil
}

// Get returns the full job row.
func (s *QueueService) Get(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, data.ErrJobNotFound) {
			return nil, apperrors.NotFoundf("job %s not found", id)
		}
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// List returns jobs matching the filter.
func (s *QueueService) List(ctx context.Context, filter model.JobFilter) ([]*model.Job, error) {
	if filter.State != "" && !filter.State.Valid() {
		return nil, apperrors.Validationf("invalid state: %s", filter.State)
	}
	return s.store.List(ctx, filter)
}

// ListDLQ returns jobs that exhausted their retries.
func (s *QueueService) ListDLQ(ctx context.Context, limit int) ([]*model.Job, error) {
	return s.store.ListDLQ(ctx, limit)
}

// Requeue moves a dead job back to pending with a fresh attempt budget.
func (s *QueueService) Requeue(ctx context.Context, id string) (*model.Job, error) {
	job, err := s.store.Requeue(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, data.ErrJobNotFound):
			return nil, apperrors.NotFoundf("job %s not found", id)
		case errors.Is(err, data.ErrJobNotDead):
			return nil, apperrors.Conflictf("job %s is not in the dead letter queue", id)
		}
		return nil, fmt.Errorf("requeue job %s: %w", id, err)
	}

	s.logger.InfoContext(ctx, "dead job requeued", "id", id)
	metrics.EmitJobLifecycle(s.metrics, metrics.JobMetric{
		Transition: "requeued",
		Result:     metrics.ResultSuccess,
	})
	return job, nil
}

// Stats returns per-state job counts.
func (s *QueueService) Stats(ctx context.Context) (*model.QueueStats, error) {
	return s.store.StatusSummary(ctx)
}

// Metrics returns the transactional execution counters.
func (s *QueueService) Metrics(ctx context.Context) (*model.MetricsSnapshot, error) {
	return s.store.MetricsSnapshot(ctx)
}

// GetConfig reads a persisted queue config value.
func (s *QueueService) GetConfig(ctx context.Context, key string) (string, error) {
	v, err := s.config.Get(ctx, key)
	if errors.Is(err, data.ErrConfigKeyNotFound) {
		return "", apperrors.NotFoundf("config key %s not found", key)
	}
	return v, err
}

// SetConfig writes a persisted queue config value.
func (s *QueueService) SetConfig(ctx context.Context, key, value string) error {
	switch key {
	case data.ConfigKeyMaxRetries, data.ConfigKeyBackoffBase, data.ConfigKeyDefaultTimeout:
	default:
		return apperrors.Validationf("unknown config key: %s", key)
	}
	return s.config.Set(ctx, key, value)
}

// AllConfig returns every persisted config pair.
func (s *QueueService) AllConfig(ctx context.Context) (map[string]string, error) {
	return s.config.All(ctx)
}

// Subscribe registers for job availability wakeups.
func (s *QueueService) Subscribe() (func(), <-chan struct{}) {
	if s.notifier == nil {
		ch := make(chan struct{})
		close(ch)
		return func() {}, ch
	}
	return s.notifier.Subscribe()
}

// Shutdown stops the availability notifier.
func (s *QueueService) Shutdown() {
	if s.notifier != nil {
		s.notifier.StopAll()
	}
}
