package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/m-navaneeth8770/queuectl/internal/domain/model"
)

const statsCacheKey = "queuectl:dashboard:stats"

// snapshotCache is the byte cache the dashboard memoises stats in.
// Satisfied by data.RedisCacheRepo.
type snapshotCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// DashboardSnapshot is the combined read the dashboard renders.
type DashboardSnapshot struct {
	Stats   model.QueueStats      `json:"stats"`
	Metrics model.MetricsSnapshot `json:"metrics"`
	TakenAt time.Time             `json:"taken_at"`
}

// StatsCache serves dashboard snapshots, optionally memoised in Redis so a
// busy dashboard does not hammer the jobs table. With no cache or a zero TTL
// every call reads the store.
type StatsCache struct {
	queue  *QueueService
	cache  snapshotCache
	ttl    time.Duration
	logger *slog.Logger
}

// StatsCacheOptions groups dependencies for StatsCache.
type StatsCacheOptions struct {
	Queue  *QueueService // Required
	Cache  snapshotCache // Optional: nil disables caching
	TTL    time.Duration // Optional: zero disables caching
	Logger *slog.Logger  // Optional
}

// NewStatsCache constructs a StatsCache.
func NewStatsCache(opts StatsCacheOptions) *StatsCache {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &StatsCache{
		queue:  opts.Queue,
		cache:  opts.Cache,
		ttl:    opts.TTL,
		logger: logger.With("component", "stats_cache"),
	}
}

// Snapshot returns the current dashboard snapshot, served from cache when a
// fresh entry exists. Cache failures fall through to the store.
func (s *StatsCache) Snapshot(ctx context.Context) (*DashboardSnapshot, error) {
	if cached := s.cachedSnapshot(ctx); cached != nil {
		return cached, nil
	}

	stats, err := s.queue.Stats(ctx)
	if err != nil {
		return nil, err
	}
	metrics, err := s.queue.Metrics(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := &DashboardSnapshot{
		Stats:   *stats,
		Metrics: *metrics,
		TakenAt: time.Now().UTC(),
	}
	s.storeSnapshot(ctx, snapshot)
	return snapshot, nil
}

func (s *StatsCache) cachedSnapshot(ctx context.Context) *DashboardSnapshot {
	if s.cache == nil || s.ttl <= 0 {
		return nil
	}
	raw, err := s.cache.Get(ctx, statsCacheKey)
	if err != nil {
		s.logger.WarnContext(ctx, "stats cache read failed", "error", err)
		return nil
	}
	if raw == nil {
		return nil
	}
	var snapshot DashboardSnapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		s.logger.WarnContext(ctx, "stats cache entry corrupt", "error", err)
		return nil
	}
	return &snapshot
}

func (s *StatsCache) storeSnapshot(ctx context.Context, snapshot *DashboardSnapshot) {
	if s.cache == nil || s.ttl <= 0 {
		return
	}
	raw, err := json.Marshal(snapshot)
	if err != nil {
		s.logger.WarnContext(ctx, "stats snapshot marshal failed", "error", err)
		return
	}
	if err := s.cache.Set(ctx, statsCacheKey, raw, s.ttl); err != nil {
		s.logger.WarnContext(ctx, "stats cache write failed", "error", err)
	}
}
