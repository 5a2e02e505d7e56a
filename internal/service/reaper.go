package service

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/m-navaneeth8770/queuectl/config"
	"github.com/m-navaneeth8770/queuectl/internal/observability/statsd"
)

// ReaperRepository is the persistence surface ReaperService depends on.
type ReaperRepository interface {
	RequeueStaleClaims(ctx context.Context, grace time.Duration, batchSize int) (int64, error)
	DeleteOldJobs(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error)
}

// ReaperServiceOptions groups dependencies for ReaperService.
type ReaperServiceOptions struct {
	Repo    ReaperRepository    // Required: reaper repository
	Config  config.ReaperConfig // Required: reaper configuration
	Logger  *slog.Logger        // Optional: structured logger
	Metrics statsd.Sink         // Optional: metrics sink
}

// ReaperService recovers work lost to crashed workers and keeps the jobs table
// bounded:
// - Requeueing processing jobs whose claim outlived the grace period.
// - Deleting old completed jobs.
type ReaperService struct {
	repo    ReaperRepository
	config  config.ReaperConfig
	logger  *slog.Logger
	metrics statsd.Sink
}

// NewReaperService constructs a new ReaperService.
func NewReaperService(opts ReaperServiceOptions) (*ReaperService, error) {
	if opts.Repo == nil {
		return nil, errors.New("ReaperRepository is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ReaperService{
		repo:    opts.Repo,
		config:  opts.Config,
		logger:  logger.With("component", "reaper_service"),
		metrics: opts.Metrics,
	}, nil
}

// Run starts the reaper loop and runs until the context is cancelled.
// Returns nil on graceful shutdown (context.Canceled), error otherwise.
func (s *ReaperService) Run(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting reaper service",
		"interval", s.config.Interval,
		"claim_grace", s.config.ClaimGrace,
	)

	// Jitter prevents a thundering herd when multiple instances start together.
	s.waitWithJitter(ctx)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	if err := s.runCleanup(ctx); err != nil {
		s.logCleanupError(ctx, err, "initial cleanup")
	}

	for {
		select {
		case <-ctx.Done():
			s.logger.InfoContext(ctx, "reaper service stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if err := s.runCleanup(ctx); err != nil {
				s.logCleanupError(ctx, err, "cleanup")
			}
		}
	}
}

// waitWithJitter adds a random delay up to 10% of the interval.
func (s *ReaperService) waitWithJitter(ctx context.Context) {
	maxJitter := int64(s.config.Interval / 10)
	if maxJitter <= 0 {
		return
	}

	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		s.logger.WarnContext(ctx, "failed to generate jitter, skipping", "error", err)
		return
	}
	jitter := time.Duration(int64(binary.BigEndian.Uint64(buf[:]) % uint64(maxJitter)))

	select {
	case <-time.After(jitter):
	case <-ctx.Done():
	}
}

// RunOnce performs a single cleanup pass. Exposed for tests and for the CLI.
func (s *ReaperService) RunOnce(ctx context.Context) error {
	return s.runCleanup(ctx)
}

func (s *ReaperService) runCleanup(ctx context.Context) error {
	start := time.Now()

	requeued, requeueErr := s.requeueStaleClaims(ctx)
	deleted, deleteErr := s.deleteOldJobs(ctx)

	s.emitCleanupMetrics(requeued+deleted, time.Since(start), firstError(requeueErr, deleteErr))

	joined := errors.Join(requeueErr, deleteErr)
	if joined != nil {
		if isContextCancellation(joined) {
			return context.Canceled
		}
		return fmt.Errorf("cleanup failed: %w", joined)
	}
	return nil
}

// requeueStaleClaims loops in batches until no more rows are affected.
func (s *ReaperService) requeueStaleClaims(ctx context.Context) (int64, error) {
	var total int64
	for {
		count, err := s.repo.RequeueStaleClaims(ctx, s.config.ClaimGrace, s.config.BatchSize)
		if err != nil {
			return total, err
		}
		total += count
		if count == 0 {
			break
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}

	if total > 0 {
		s.logger.InfoContext(ctx, "requeued stale claims",
			"count", total,
			"claim_grace", s.config.ClaimGrace,
		)
	}
	return total, nil
}

func (s *ReaperService) deleteOldJobs(ctx context.Context) (int64, error) {
	if s.config.CompletedMaxAge <= 0 {
		return 0, nil
	}

	var total int64
	for {
		count, err := s.repo.DeleteOldJobs(ctx, s.config.CompletedMaxAge, s.config.BatchSize)
		if err != nil {
			return total, err
		}
		total += count
		if count == 0 {
			break
		}
		if ctx.Err() != nil {
			return total, ctx.Err()
		}
	}

	if total > 0 {
		s.logger.InfoContext(ctx, "deleted old completed jobs",
			"count", total,
			"max_age", s.config.CompletedMaxAge,
		)
	}
	return total, nil
}

func (s *ReaperService) emitCleanupMetrics(count int64, elapsed time.Duration, err error) {
	if s.metrics == nil {
		return
	}

	result := "success"
	if err != nil && !isContextCancellation(err) {
		result = "error"
	}
	tags := map[string]string{"result": result}

	s.metrics.Count("reaper.cleanup", 1, tags)
	if count > 0 {
		s.metrics.Count("reaper.jobs_processed", count, tags)
	}
	if elapsed > 0 {
		s.metrics.Timing("reaper.cleanup_duration", elapsed, tags)
	}
	if err == nil {
		s.metrics.Gauge("reaper.last_success_epoch", float64(time.Now().Unix()), nil)
	}
}

func (s *ReaperService) logCleanupError(ctx context.Context, err error, label string) {
	if err == nil {
		return
	}
	if isContextCancellation(err) {
		s.logger.DebugContext(ctx, label+" cancelled by context", "error", err)
		return
	}
	s.logger.ErrorContext(ctx, label+" failed", "error", err)
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func isContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
