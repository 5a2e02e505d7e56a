// Package data implements the Postgres-backed job store: enqueue, the atomic
// claim protocol, transactional state transitions with metric counters, DLQ
// queries, and stale-claim recovery.
package data

import (
	"database/sql"
	"errors"
	"log/slog"
	"time"
)

var (
	// ErrJobNotFound is returned when a job is not found.
	ErrJobNotFound = errors.New("job not found")
	// ErrJobNotDead is returned when requeueing a job that is not in the DLQ.
	ErrJobNotDead = errors.New("job is not dead; only dead jobs can be requeued")
	// ErrStoreUnavailable is returned when transient store contention persists
	// past the bounded in-place retries.
	ErrStoreUnavailable = errors.New("store unavailable")
)

const (
	defaultContentionRetries = 3
	contentionRetryDelay     = 25 * time.Millisecond
)

// RepoConfig holds configuration options for the job repository.
type RepoConfig struct {
	// ContentionRetries bounds the in-place retries of transient pg
	// contention before ErrStoreUnavailable surfaces. Zero means the default.
	ContentionRetries int
	Logger            *slog.Logger
	TimeProvider      TimeProvider
}

// JobRepo provides database operations for job management.
type JobRepo struct {
	DB           *sql.DB
	cfg          RepoConfig
	timeProvider TimeProvider
	logger       *slog.Logger
}

// NewJobRepo creates a new JobRepo instance with the given database connection and configuration.
func NewJobRepo(db *sql.DB, cfg RepoConfig) *JobRepo {
	tp := cfg.TimeProvider
	if tp == nil {
		tp = &RealTimeProvider{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &JobRepo{
		DB:           db,
		cfg:          cfg,
		timeProvider: tp,
		logger:       logger.With("component", "job_repo"),
	}
}

func (r *JobRepo) contentionRetries() int {
	if r.cfg.ContentionRetries > 0 {
		return r.cfg.ContentionRetries
	}
	return defaultContentionRetries
}

const jobColumns = `
  id,
  command,
  state,
  priority,
  run_at,
  attempts,
  max_retries,
  backoff_base,
  timeout_seconds,
  claimed_by,
  claimed_at,
  next_eligible_at,
  output,
  error,
  created_at,
  updated_at,
  completed_at
`
