// Package workerpool pulls claimed jobs from the queue and executes their
// shell commands with a bounded set of worker goroutines.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/m-navaneeth8770/queuectl/config"
	"github.com/m-navaneeth8770/queuectl/internal/domain/model"
	"github.com/m-navaneeth8770/queuectl/internal/domain/retry"
	"github.com/m-navaneeth8770/queuectl/internal/executor"
	"github.com/m-navaneeth8770/queuectl/internal/service"
)

// Queue is the surface of QueueService the pool depends on.
type Queue interface {
	ClaimNext(ctx context.Context, workerID string) (*model.Job, error)
	ReportSuccess(ctx context.Context, job *model.Job, output string, duration time.Duration) error
	ReportFailure(ctx context.Context, job *model.Job, failure service.FailureReport) (retry.Decision, error)
	Subscribe() (func(), <-chan struct{})
}

// PoolOptions configures the worker pool.
type PoolOptions struct {
	Queue    Queue             // Required: queue service
	Executor executor.Executor // Optional: defaults to a shell executor
	Config   config.WorkerConfig
	Logger   *slog.Logger // Optional: structured logger

	// WorkerIDPrefix overrides the hostname-based worker ID prefix.
	WorkerIDPrefix string
}

// Pool runs N workers that claim, execute, and report jobs until the context
// is cancelled. Jobs in flight at shutdown are allowed to finish within the
// configured drain timeout.
type Pool struct {
	queue        Queue
	executor     executor.Executor
	logger       *slog.Logger
	concurrency  int
	pollInterval time.Duration
	drainTimeout time.Duration
	idPrefix     string
}

// NewPool constructs a worker pool.
func NewPool(opts PoolOptions) (*Pool, error) {
	if opts.Queue == nil {
		return nil, errors.New("Queue is required")
	}

	exec := opts.Executor
	if exec == nil {
		exec = executor.NewShellExecutor()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg := opts.Config
	cfg.Sanitize()

	prefix := opts.WorkerIDPrefix
	if prefix == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "worker"
		}
		prefix = host
	}

	return &Pool{
		queue:        opts.Queue,
		executor:     exec,
		logger:       logger.With("component", "worker_pool"),
		concurrency:  cfg.Concurrency,
		pollInterval: cfg.PollInterval,
		drainTimeout: cfg.DrainTimeout,
		idPrefix:     prefix,
	}, nil
}

// Run starts the workers and blocks until the context is cancelled and all
// in-flight jobs have been reported. Returns nil on graceful shutdown.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "starting worker pool",
		"workers", p.concurrency,
		"poll_interval", p.pollInterval,
	)

	unsub, notify := p.queue.Subscribe()
	defer unsub()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < p.concurrency; i++ {
		workerID := fmt.Sprintf("%s-%d", p.idPrefix, i+1)
		g.Go(func() error {
			return p.workerLoop(gctx, workerID, notify)
		})
	}

	err := g.Wait()
	p.logger.InfoContext(ctx, "worker pool stopped")
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *Pool) workerLoop(ctx context.Context, workerID string, notify <-chan struct{}) error {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for ctx.Err() == nil {
		job, err := p.queue.ClaimNext(ctx, workerID)
		switch {
		case err == nil:
			p.processJob(ctx, workerID, job)
		case errors.Is(err, model.ErrNoJobsAvailable):
			if !p.waitForWork(ctx, notify, ticker.C) {
				return ctx.Err()
			}
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return ctx.Err()
		default:
			// Transient store errors must not kill the worker. Back off to
			// the poll interval and try again.
			p.logger.ErrorContext(ctx, "claim next failed",
				"worker", workerID,
				"error", err,
			)
			if !p.waitForWork(ctx, notify, ticker.C) {
				return ctx.Err()
			}
		}
	}
	return ctx.Err()
}

func (p *Pool) waitForWork(ctx context.Context, notify <-chan struct{}, tick <-chan time.Time) bool {
	select {
	case <-ctx.Done():
		return false
	case <-notify:
		return true
	case <-tick:
		return true
	}
}

// processJob executes the job's command and reports the outcome. The claim is
// already held, so a shutdown mid-execution drains rather than aborts: the
// execution context survives pool cancellation for up to the drain timeout.
func (p *Pool) processJob(ctx context.Context, workerID string, job *model.Job) {
	execCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()
	stopDrain := context.AfterFunc(ctx, func() {
		time.AfterFunc(p.drainTimeout, cancel)
	})
	defer stopDrain()

	start := time.Now()
	result, runErr := p.runGuarded(execCtx, job)
	elapsed := time.Since(start)

	if runErr == nil {
		if err := p.queue.ReportSuccess(execCtx, job, result.Output(), elapsed); err != nil {
			p.logger.ErrorContext(ctx, "report success failed",
				"worker", workerID,
				"job_id", job.ID,
				"error", err,
			)
		}
		return
	}

	failure := service.FailureReport{
		ErrMsg:   runErr.Error(),
		Duration: elapsed,
	}
	if result != nil {
		failure.Output = result.Output()
		failure.TimedOut = result.TimedOut
	}
	if _, err := p.queue.ReportFailure(execCtx, job, failure); err != nil {
		p.logger.ErrorContext(ctx, "report failure failed",
			"worker", workerID,
			"job_id", job.ID,
			"error", err,
			"original_error", runErr,
		)
	}
}

// runGuarded executes the command, converting a panic in the execution path
// into a reported failure instead of taking down the worker.
func (p *Pool) runGuarded(ctx context.Context, job *model.Job) (result *executor.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = fmt.Errorf("panic during execution: %v", r)
		}
	}()
	return p.executor.Run(ctx, job.Command, job.Timeout())
}
