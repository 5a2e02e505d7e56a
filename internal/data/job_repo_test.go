package data_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-navaneeth8770/queuectl/internal/data"
	"github.com/m-navaneeth8770/queuectl/internal/domain/model"
	"github.com/m-navaneeth8770/queuectl/internal/testutil"
)

func newTestRepo(db *sql.DB, tp data.TimeProvider) *data.JobRepo {
	return data.NewJobRepo(db, data.RepoConfig{TimeProvider: tp})
}

func enqueueTestJob(t *testing.T, repo *data.JobRepo, mutate func(*model.Job)) *model.Job {
	t.Helper()
	job := &model.Job{
		ID:             uuid.NewString(),
		Command:        "echo hello",
		MaxRetries:     3,
		BackoffBase:    2,
		TimeoutSeconds: 300,
	}
	if mutate != nil {
		mutate(job)
	}
	created, err := repo.Enqueue(context.Background(), job)
	require.NoError(t, err)
	return created
}

func TestEnqueueAndGetByID(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newTestRepo(db, nil)
		ctx := context.Background()

		created := enqueueTestJob(t, repo, nil)
		assert.Equal(t, model.JobStatePending, created.State)
		assert.Equal(t, 0, created.Attempts)
		assert.Nil(t, created.ClaimedBy)

		got, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, "echo hello", got.Command)
		assert.Equal(t, 3, got.MaxRetries)

		_, err = repo.GetByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, data.ErrJobNotFound)
	})
}

func TestEnqueueDuplicateIDConflicts(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newTestRepo(db, nil)

		created := enqueueTestJob(t, repo, nil)
		_, err := repo.Enqueue(context.Background(), &model.Job{
			ID:      created.ID,
			Command: "echo again",
		})
		require.Error(t, err)
	})
}

func TestClaimNextBasics(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newTestRepo(db, nil)
		ctx := context.Background()

		_, err := repo.ClaimNext(ctx, "worker-1")
		assert.ErrorIs(t, err, model.ErrNoJobsAvailable)

		created := enqueueTestJob(t, repo, nil)

		claimed, err := repo.ClaimNext(ctx, "worker-1")
		require.NoError(t, err)
		assert.Equal(t, created.ID, claimed.ID)
		assert.Equal(t, model.JobStateProcessing, claimed.State)
		assert.Equal(t, 1, claimed.Attempts)
		require.NotNil(t, claimed.ClaimedBy)
		assert.Equal(t, "worker-1", *claimed.ClaimedBy)
		assert.NotNil(t, claimed.ClaimedAt)

		// The same job is never visible to a second claimer.
		_, err = repo.ClaimNext(ctx, "worker-2")
		assert.ErrorIs(t, err, model.ErrNoJobsAvailable)
	})
}

func TestClaimNextMutualExclusion(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newTestRepo(db, nil)
		ctx := context.Background()

		const jobCount = 5
		const claimers = 20
		for i := 0; i < jobCount; i++ {
			enqueueTestJob(t, repo, nil)
		}

		var mu sync.Mutex
		seen := make(map[string]string)
		var wg sync.WaitGroup
		for i := 0; i < claimers; i++ {
			wg.Add(1)
			go func(worker int) {
				defer wg.Done()
				job, err := repo.ClaimNext(ctx, uuid.NewString())
				if err != nil {
					return
				}
				mu.Lock()
				defer mu.Unlock()
				_, dup := seen[job.ID]
				assert.False(t, dup, "job %s claimed twice", job.ID)
				seen[job.ID] = *job.ClaimedBy
			}(i)
		}
		wg.Wait()

		assert.Len(t, seen, jobCount)
	})
}

func TestClaimNextOrdering(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newTestRepo(db, nil)
		ctx := context.Background()

		low := enqueueTestJob(t, repo, func(j *model.Job) { j.Priority = 1 })
		time.Sleep(10 * time.Millisecond)
		lowLater := enqueueTestJob(t, repo, func(j *model.Job) { j.Priority = 1 })
		time.Sleep(10 * time.Millisecond)
		high := enqueueTestJob(t, repo, func(j *model.Job) { j.Priority = 5 })

		first, err := repo.ClaimNext(ctx, "w")
		require.NoError(t, err)
		assert.Equal(t, high.ID, first.ID, "higher priority claims first despite later enqueue")

		second, err := repo.ClaimNext(ctx, "w")
		require.NoError(t, err)
		assert.Equal(t, low.ID, second.ID, "FIFO within equal priority")

		third, err := repo.ClaimNext(ctx, "w")
		require.NoError(t, err)
		assert.Equal(t, lowLater.ID, third.ID)
	})
}

func TestClaimNextScheduledJobInvisible(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		tp := data.NewFixedTimeProvider(testutil.TestTime())
		repo := newTestRepo(db, tp)
		ctx := context.Background()

		enqueueTestJob(t, repo, func(j *model.Job) {
			j.RunAt = testutil.TestTime().Add(time.Hour)
		})

		_, err := repo.ClaimNext(ctx, "w")
		assert.ErrorIs(t, err, model.ErrNoJobsAvailable)

		tp.AddTime(2 * time.Hour)
		claimed, err := repo.ClaimNext(ctx, "w")
		require.NoError(t, err)
		assert.Equal(t, model.JobStateProcessing, claimed.State)
	})
}

func TestMarkCompletedIncrementsMetrics(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newTestRepo(db, nil)
		ctx := context.Background()

		created := enqueueTestJob(t, repo, nil)
		_, err := repo.ClaimNext(ctx, "w")
		require.NoError(t, err)

		require.NoError(t, repo.MarkCompleted(ctx, created.ID, "hello\n"))

		got, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStateCompleted, got.State)
		require.NotNil(t, got.Output)
		assert.Equal(t, "hello\n", *got.Output)
		assert.Nil(t, got.ClaimedBy)
		assert.NotNil(t, got.CompletedAt)

		snap, err := repo.MetricsSnapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), snap.CompletedTotal)
		assert.Equal(t, int64(0), snap.FailedTotal)

		// Completing a job that is no longer processing is refused, and the
		// counter does not move.
		err = repo.MarkCompleted(ctx, created.ID, "again")
		assert.ErrorIs(t, err, data.ErrJobNotFound)

		snap, err = repo.MetricsSnapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), snap.CompletedTotal)
	})
}

func TestMarkFailedBackoffCycle(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		tp := data.NewFixedTimeProvider(testutil.TestTime())
		repo := newTestRepo(db, tp)
		ctx := context.Background()

		created := enqueueTestJob(t, repo, func(j *model.Job) { j.MaxRetries = 2 })

		// First attempt fails with a backoff.
		claimed, err := repo.ClaimNext(ctx, "w")
		require.NoError(t, err)
		assert.Equal(t, 1, claimed.Attempts)

		next := tp.Now().Add(2 * time.Second)
		require.NoError(t, repo.MarkFailed(ctx, data.FailureParams{
			ID:             created.ID,
			ErrMsg:         "exit status 1",
			State:          model.JobStateFailed,
			NextEligibleAt: &next,
		}))

		got, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStateFailed, got.State)
		require.NotNil(t, got.NextEligibleAt)

		// Still waiting out its backoff.
		_, err = repo.ClaimNext(ctx, "w")
		assert.ErrorIs(t, err, model.ErrNoJobsAvailable)

		// Becomes claimable after the backoff elapses.
		tp.AddTime(3 * time.Second)
		reclaimed, err := repo.ClaimNext(ctx, "w")
		require.NoError(t, err)
		assert.Equal(t, created.ID, reclaimed.ID)
		assert.Equal(t, 2, reclaimed.Attempts)
		assert.Nil(t, reclaimed.NextEligibleAt)

		// Final attempt exhausts retries.
		require.NoError(t, repo.MarkFailed(ctx, data.FailureParams{
			ID:     created.ID,
			ErrMsg: "exit status 1",
			State:  model.JobStateDead,
		}))

		got, err = repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStateDead, got.State)

		snap, err := repo.MetricsSnapshot(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), snap.FailedTotal)
		assert.Equal(t, int64(1), snap.DeadTotal)
	})
}

func TestListAndDLQ(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newTestRepo(db, nil)
		ctx := context.Background()

		pending := enqueueTestJob(t, repo, nil)
		deadJob := enqueueTestJob(t, repo, func(j *model.Job) { j.MaxRetries = 1; j.Priority = 9 })

		_, err := repo.ClaimNext(ctx, "w")
		require.NoError(t, err)
		require.NoError(t, repo.MarkFailed(ctx, data.FailureParams{
			ID:     deadJob.ID,
			ErrMsg: "boom",
			State:  model.JobStateDead,
		}))

		dlq, err := repo.ListDLQ(ctx, 10)
		require.NoError(t, err)
		require.Len(t, dlq, 1)
		assert.Equal(t, deadJob.ID, dlq[0].ID)
		require.NotNil(t, dlq[0].Error)
		assert.Equal(t, "boom", *dlq[0].Error)

		pendingList, err := repo.List(ctx, model.JobFilter{State: model.JobStatePending})
		require.NoError(t, err)
		require.Len(t, pendingList, 1)
		assert.Equal(t, pending.ID, pendingList[0].ID)

		all, err := repo.List(ctx, model.JobFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 2)

		stats, err := repo.StatusSummary(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Pending)
		assert.Equal(t, 1, stats.Dead)
		assert.Equal(t, 0, stats.Processing)
	})
}

func TestRequeueDeadJob(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newTestRepo(db, nil)
		ctx := context.Background()

		created := enqueueTestJob(t, repo, func(j *model.Job) { j.MaxRetries = 1 })
		_, err := repo.ClaimNext(ctx, "w")
		require.NoError(t, err)
		require.NoError(t, repo.MarkFailed(ctx, data.FailureParams{
			ID:     created.ID,
			ErrMsg: "boom",
			State:  model.JobStateDead,
		}))

		requeued, err := repo.Requeue(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, model.JobStatePending, requeued.State)
		assert.Equal(t, 0, requeued.Attempts)
		assert.Nil(t, requeued.Error)
		assert.Nil(t, requeued.NextEligibleAt)

		// Requeueing a non-dead job is refused.
		_, err = repo.Requeue(ctx, created.ID)
		assert.ErrorIs(t, err, data.ErrJobNotDead)

		_, err = repo.Requeue(ctx, uuid.NewString())
		assert.ErrorIs(t, err, data.ErrJobNotFound)
	})
}

func TestWaitForNotificationWakesOnEnqueue(t *testing.T) {
	testutil.WithTestDB(t, func(db *sql.DB) {
		repo := newTestRepo(db, nil)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			done <- repo.WaitForNotification(ctx)
		}()

		// Give the listener a moment to attach.
		time.Sleep(200 * time.Millisecond)
		enqueueTestJob(t, repo, nil)

		select {
		case err := <-done:
			require.NoError(t, err)
		case <-ctx.Done():
			t.Fatal("notification never arrived")
		}
	})
}
