package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshotCache struct {
	mu     sync.Mutex
	data   map[string][]byte
	getErr error
	gets   int
	sets   int
}

func (f *fakeSnapshotCache) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.data[key], nil
}

func (f *fakeSnapshotCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sets++
	if f.data == nil {
		f.data = map[string][]byte{}
	}
	f.data[key] = value
	return nil
}

func TestStatsCacheMemoisesSnapshots(t *testing.T) {
	svc := newTestQueueService(t, &fakeJobStore{}, nil)
	cache := &fakeSnapshotCache{}
	stats := NewStatsCache(StatsCacheOptions{Queue: svc, Cache: cache, TTL: 5 * time.Second})

	first, err := stats.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Stats.Pending)
	assert.Equal(t, 1, cache.sets)

	second, err := stats.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.TakenAt, second.TakenAt, "second read must come from the cache")
	assert.Equal(t, 1, cache.sets)
}

func TestStatsCacheZeroTTLBypassesCache(t *testing.T) {
	svc := newTestQueueService(t, &fakeJobStore{}, nil)
	cache := &fakeSnapshotCache{}
	stats := NewStatsCache(StatsCacheOptions{Queue: svc, Cache: cache})

	_, err := stats.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Zero(t, cache.gets)
	assert.Zero(t, cache.sets)
}

func TestStatsCacheFallsThroughOnCacheError(t *testing.T) {
	svc := newTestQueueService(t, &fakeJobStore{}, nil)
	cache := &fakeSnapshotCache{getErr: errors.New("redis down")}
	stats := NewStatsCache(StatsCacheOptions{Queue: svc, Cache: cache, TTL: time.Second})

	snapshot, err := stats.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), snapshot.Metrics.CompletedTotal)
}

func TestStatsCacheWithoutCacheReadsStore(t *testing.T) {
	svc := newTestQueueService(t, &fakeJobStore{}, nil)
	stats := NewStatsCache(StatsCacheOptions{Queue: svc})

	snapshot, err := stats.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snapshot.Stats.Pending)
}
