// Package retry holds the pure retry and backoff decision logic for failed jobs.
//
// The policy is a deterministic function of the attempt count, the per-job retry
// limits fixed at enqueue time, and the failure time. It knows nothing about the
// store so it can be tested in isolation.
package retry

import (
	"math"
	"time"

	"github.com/m-navaneeth8770/queuectl/internal/domain/model"
)

// MaxBackoff caps the delay before a failed job becomes eligible again.
// Guards against misconfigured bases scheduling retries absurdly far out.
const MaxBackoff = 24 * time.Hour

// Input captures everything the policy needs to decide the next state.
type Input struct {
	// Attempts is the post-increment attempt count from the claim that
	// produced this failure.
	Attempts    int
	MaxRetries  int
	BackoffBase int
	Now         time.Time
}

// Decision is the outcome of a failure: the job's next state, and when it
// becomes claimable again if it is retried.
type Decision struct {
	State          model.JobState
	NextEligibleAt *time.Time
}

// Dead reports whether the decision moves the job to the DLQ.
func (d Decision) Dead() bool {
	return d.State == model.JobStateDead
}

// Decide computes the next state for a job whose current attempt failed.
//
// attempts >= max_retries moves the job to dead; otherwise the job re-enters
// failed with next_eligible_at = now + backoff_base^attempts seconds.
func Decide(in Input) Decision {
	if in.Attempts >= in.MaxRetries {
		return Decision{State: model.JobStateDead}
	}

	next := in.Now.Add(Backoff(in.BackoffBase, in.Attempts))
	return Decision{
		State:          model.JobStateFailed,
		NextEligibleAt: &next,
	}
}

// Backoff returns the delay after the given attempt: base^attempts seconds,
// clamped to [1s, MaxBackoff].
func Backoff(base, attempts int) time.Duration {
	if base < 1 {
		base = 1
	}
	if attempts < 0 {
		attempts = 0
	}

	secs := math.Pow(float64(base), float64(attempts))
	if secs < 1 {
		secs = 1
	}
	d := time.Duration(secs) * time.Second
	if secs >= MaxBackoff.Seconds() || d > MaxBackoff || d <= 0 {
		return MaxBackoff
	}
	return d
}
