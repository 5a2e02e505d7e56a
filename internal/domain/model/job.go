// Package model defines the core data types and structures used throughout the queuectl job system.
package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobState represents the lifecycle state of a job.
//
//nolint:recvcheck // UnmarshalText needs pointer receiver, Valid needs value receiver
type JobState string

const (
	// JobStatePending indicates a job is waiting to be claimed.
	JobStatePending JobState = "pending"
	// JobStateProcessing indicates a job is currently held by a worker.
	JobStateProcessing JobState = "processing"
	// JobStateCompleted indicates a job finished successfully (terminal).
	JobStateCompleted JobState = "completed"
	// JobStateFailed indicates a job failed and is waiting out its backoff.
	JobStateFailed JobState = "failed"
	// JobStateDead indicates a job exhausted its retries (terminal; visible in the DLQ).
	JobStateDead JobState = "dead"
)

// UnmarshalText implements encoding.TextUnmarshaler for JobState to allow env/flag parsing.
func (s *JobState) UnmarshalText(text []byte) error {
	v := JobState(strings.ToLower(strings.TrimSpace(string(text))))
	if v.Valid() {
		*s = v
		return nil
	}
	return fmt.Errorf("invalid JobState: %q", v)
}

// Valid returns true if the JobState is one of the five lifecycle states.
func (s JobState) Valid() bool {
	switch s {
	case JobStatePending, JobStateProcessing, JobStateCompleted, JobStateFailed, JobStateDead:
		return true
	}
	return false
}

// Terminal returns true for states a job never leaves on its own.
func (s JobState) Terminal() bool {
	return s == JobStateCompleted || s == JobStateDead
}

// AllJobStates returns every lifecycle state in display order.
func AllJobStates() []JobState {
	return []JobState{
		JobStatePending,
		JobStateProcessing,
		JobStateCompleted,
		JobStateFailed,
		JobStateDead,
	}
}

// ErrNoJobsAvailable is returned when no jobs are eligible for claiming.
var ErrNoJobsAvailable = errors.New("no jobs available")

// Job represents a job in the system with all its metadata and state information.
type Job struct {
	ID             string     `json:"id"                         db:"id"`
	Command        string     `json:"command"                    db:"command"`
	State          JobState   `json:"state"                      db:"state"`
	Priority       int        `json:"priority"                   db:"priority"`
	RunAt          time.Time  `json:"run_at"                     db:"run_at"`
	Attempts       int        `json:"attempts"                   db:"attempts"`
	MaxRetries     int        `json:"max_retries"                db:"max_retries"`
	BackoffBase    int        `json:"backoff_base"               db:"backoff_base"`
	TimeoutSeconds int        `json:"timeout_seconds"            db:"timeout_seconds"`
	ClaimedBy      *string    `json:"claimed_by,omitempty"       db:"claimed_by"`
	ClaimedAt      *time.Time `json:"claimed_at,omitempty"       db:"claimed_at"`
	NextEligibleAt *time.Time `json:"next_eligible_at,omitempty" db:"next_eligible_at"`
	Output         *string    `json:"output,omitempty"           db:"output"`
	Error          *string    `json:"error,omitempty"            db:"error"`
	CreatedAt      time.Time  `json:"created_at"                 db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"                 db:"updated_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"     db:"completed_at"`
}

// Timeout returns the job's execution timeout as a duration.
func (j *Job) Timeout() time.Duration {
	return time.Duration(j.TimeoutSeconds) * time.Second
}

// EnqueueRequest represents a request to enqueue a new job.
//
// MaxRetries, BackoffBase, and TimeoutSeconds default from the config store when
// zero; they are resolved once at enqueue time and fixed for the job's lifetime.
type EnqueueRequest struct {
	ID             string     `json:"id,omitempty"`
	Command        string     `json:"command"`
	Priority       int        `json:"priority,omitempty"`
	RunAt          *time.Time `json:"run_at,omitempty"`
	MaxRetries     int        `json:"max_retries,omitempty"`
	BackoffBase    int        `json:"backoff_base,omitempty"`
	TimeoutSeconds int        `json:"timeout,omitempty"`
}

// Validate validates the EnqueueRequest fields.
func (r *EnqueueRequest) Validate() error {
	if strings.TrimSpace(r.Command) == "" {
		return errors.New("command is required")
	}
	if r.MaxRetries < 0 {
		return errors.New("max retries must be >= 0")
	}
	if r.BackoffBase < 0 {
		return errors.New("backoff base must be >= 0")
	}
	if r.TimeoutSeconds < 0 {
		return errors.New("timeout must be >= 0")
	}
	return nil
}

// JobFilter narrows job listings.
type JobFilter struct {
	State JobState
	Limit int
}

// QueueStats represents per-state job counts.
type QueueStats struct {
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Dead       int `json:"dead"`
}

// MetricsSnapshot holds the transactional execution counters.
type MetricsSnapshot struct {
	CompletedTotal int64 `json:"completed_total"`
	FailedTotal    int64 `json:"failed_total"`
	DeadTotal      int64 `json:"dead_total"`
}

// JobStatusResponse represents the status information for a specific job.
type JobStatusResponse struct {
	ID          string     `json:"id"`
	State       JobState   `json:"state"`
	Attempts    int        `json:"attempts"`
	Output      *string    `json:"output,omitempty"`
	Error       *string    `json:"error,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
