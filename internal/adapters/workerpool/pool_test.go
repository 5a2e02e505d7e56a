package workerpool

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m-navaneeth8770/queuectl/config"
	"github.com/m-navaneeth8770/queuectl/internal/domain/model"
	"github.com/m-navaneeth8770/queuectl/internal/domain/retry"
	"github.com/m-navaneeth8770/queuectl/internal/executor"
	"github.com/m-navaneeth8770/queuectl/internal/service"
)

type fakeQueue struct {
	mu sync.Mutex

	jobs      []*model.Job
	claimErr  error
	successes []string
	failures  []service.FailureReport
	claimedBy []string

	notify chan struct{}
}

func newFakeQueue(jobs ...*model.Job) *fakeQueue {
	return &fakeQueue{jobs: jobs, notify: make(chan struct{}, 1)}
}

func (f *fakeQueue) ClaimNext(_ context.Context, workerID string) (*model.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.claimErr != nil {
		err := f.claimErr
		f.claimErr = nil
		return nil, err
	}
	if len(f.jobs) == 0 {
		return nil, model.ErrNoJobsAvailable
	}
	job := f.jobs[0]
	f.jobs = f.jobs[1:]
	f.claimedBy = append(f.claimedBy, workerID)
	return job, nil
}

func (f *fakeQueue) ReportSuccess(_ context.Context, job *model.Job, _ string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.successes = append(f.successes, job.ID)
	return nil
}

func (f *fakeQueue) ReportFailure(_ context.Context, _ *model.Job, failure service.FailureReport) (retry.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, failure)
	return retry.Decision{State: model.JobStateFailed}, nil
}

func (f *fakeQueue) Subscribe() (func(), <-chan struct{}) {
	return func() {}, f.notify
}

func (f *fakeQueue) snapshot() (successes []string, failures []service.FailureReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.successes...), append([]service.FailureReport(nil), f.failures...)
}

type fakeExecutor struct {
	runFn func(ctx context.Context, command string, timeout time.Duration) (*executor.Result, error)
}

func (f *fakeExecutor) Run(ctx context.Context, command string, timeout time.Duration) (*executor.Result, error) {
	return f.runFn(ctx, command, timeout)
}

func testWorkerConfig() config.WorkerConfig {
	return config.WorkerConfig{
		Concurrency:  1,
		PollInterval: 100 * time.Millisecond,
		DrainTimeout: time.Second,
	}
}

func runPoolUntil(t *testing.T, pool *Pool, done func() bool) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan error, 1)
	go func() { finished <- pool.Run(ctx) }()

	deadline := time.After(3 * time.Second)
	for !done() {
		select {
		case <-deadline:
			cancel()
			t.Fatal("pool did not reach the expected state in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-finished:
		assert.NoError(t, err, "graceful shutdown must return nil")
	case <-time.After(3 * time.Second):
		t.Fatal("pool did not stop after cancellation")
	}
}

func TestPoolExecutesAndReportsSuccess(t *testing.T) {
	queue := newFakeQueue(&model.Job{ID: "job-1", Command: "echo hi", TimeoutSeconds: 30})
	exec := &fakeExecutor{
		runFn: func(_ context.Context, command string, timeout time.Duration) (*executor.Result, error) {
			assert.Equal(t, "echo hi", command)
			assert.Equal(t, 30*time.Second, timeout)
			return &executor.Result{Stdout: "hi\n", ExitCode: 0}, nil
		},
	}

	pool, err := NewPool(PoolOptions{
		Queue:          queue,
		Executor:       exec,
		Config:         testWorkerConfig(),
		WorkerIDPrefix: "test",
	})
	require.NoError(t, err)

	runPoolUntil(t, pool, func() bool {
		successes, _ := queue.snapshot()
		return len(successes) == 1
	})

	successes, failures := queue.snapshot()
	assert.Equal(t, []string{"job-1"}, successes)
	assert.Empty(t, failures)
	assert.Equal(t, []string{"test-1"}, queue.claimedBy)
}

func TestPoolReportsFailureWithOutput(t *testing.T) {
	queue := newFakeQueue(&model.Job{ID: "job-1", Command: "false"})
	exec := &fakeExecutor{
		runFn: func(context.Context, string, time.Duration) (*executor.Result, error) {
			return &executor.Result{Stderr: "boom", ExitCode: 1}, errors.New("command failed: exit status 1")
		},
	}

	pool, err := NewPool(PoolOptions{Queue: queue, Executor: exec, Config: testWorkerConfig()})
	require.NoError(t, err)

	runPoolUntil(t, pool, func() bool {
		_, failures := queue.snapshot()
		return len(failures) == 1
	})

	_, failures := queue.snapshot()
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].ErrMsg, "exit status 1")
	assert.Contains(t, failures[0].Output, "boom")
	assert.False(t, failures[0].TimedOut)
}

func TestPoolReportsTimeout(t *testing.T) {
	queue := newFakeQueue(&model.Job{ID: "job-1", Command: "sleep 60", TimeoutSeconds: 1})
	exec := &fakeExecutor{
		runFn: func(context.Context, string, time.Duration) (*executor.Result, error) {
			return &executor.Result{TimedOut: true, ExitCode: -1}, errors.New("timed out after 1s")
		},
	}

	pool, err := NewPool(PoolOptions{Queue: queue, Executor: exec, Config: testWorkerConfig()})
	require.NoError(t, err)

	runPoolUntil(t, pool, func() bool {
		_, failures := queue.snapshot()
		return len(failures) == 1
	})

	_, failures := queue.snapshot()
	require.Len(t, failures, 1)
	assert.True(t, failures[0].TimedOut)
	assert.Equal(t, "timed out after 1s", failures[0].ErrMsg)
}

func TestPoolRecoversFromExecutorPanic(t *testing.T) {
	queue := newFakeQueue(&model.Job{ID: "job-1", Command: "echo"})
	exec := &fakeExecutor{
		runFn: func(context.Context, string, time.Duration) (*executor.Result, error) {
			panic("executor bug")
		},
	}

	pool, err := NewPool(PoolOptions{Queue: queue, Executor: exec, Config: testWorkerConfig()})
	require.NoError(t, err)

	runPoolUntil(t, pool, func() bool {
		_, failures := queue.snapshot()
		return len(failures) == 1
	})

	_, failures := queue.snapshot()
	require.Len(t, failures, 1)
	assert.Contains(t, failures[0].ErrMsg, "panic during execution")
}

func TestPoolSurvivesTransientClaimErrors(t *testing.T) {
	queue := newFakeQueue(&model.Job{ID: "job-1", Command: "echo hi"})
	queue.claimErr = errors.New("store unavailable")
	exec := &fakeExecutor{
		runFn: func(context.Context, string, time.Duration) (*executor.Result, error) {
			return &executor.Result{Stdout: "hi"}, nil
		},
	}

	pool, err := NewPool(PoolOptions{Queue: queue, Executor: exec, Config: testWorkerConfig()})
	require.NoError(t, err)

	runPoolUntil(t, pool, func() bool {
		successes, _ := queue.snapshot()
		return len(successes) == 1
	})
}

func TestPoolWakesOnNotification(t *testing.T) {
	queue := newFakeQueue()
	executed := make(chan struct{}, 1)
	exec := &fakeExecutor{
		runFn: func(context.Context, string, time.Duration) (*executor.Result, error) {
			select {
			case executed <- struct{}{}:
			default:
			}
			return &executor.Result{}, nil
		},
	}

	cfg := testWorkerConfig()
	cfg.PollInterval = 10 * time.Second // only the notification can wake the worker

	pool, err := NewPool(PoolOptions{Queue: queue, Executor: exec, Config: cfg})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	finished := make(chan error, 1)
	go func() { finished <- pool.Run(ctx) }()

	// Let the worker block on the empty queue, then publish a job.
	time.Sleep(50 * time.Millisecond)
	queue.mu.Lock()
	queue.jobs = append(queue.jobs, &model.Job{ID: "job-1", Command: "echo"})
	queue.mu.Unlock()
	queue.notify <- struct{}{}

	select {
	case <-executed:
	case <-time.After(2 * time.Second):
		t.Fatal("notification did not wake the worker")
	}
	cancel()
	require.NoError(t, <-finished)
}

func TestPoolRunsWorkersConcurrently(t *testing.T) {
	jobs := make([]*model.Job, 6)
	for i := range jobs {
		jobs[i] = &model.Job{ID: string(rune('a' + i)), Command: "echo"}
	}
	queue := newFakeQueue(jobs...)
	exec := &fakeExecutor{
		runFn: func(context.Context, string, time.Duration) (*executor.Result, error) {
			time.Sleep(20 * time.Millisecond)
			return &executor.Result{}, nil
		},
	}

	cfg := testWorkerConfig()
	cfg.Concurrency = 3

	pool, err := NewPool(PoolOptions{Queue: queue, Executor: exec, Config: cfg, WorkerIDPrefix: "w"})
	require.NoError(t, err)

	runPoolUntil(t, pool, func() bool {
		successes, _ := queue.snapshot()
		return len(successes) == len(jobs)
	})

	workers := map[string]bool{}
	queue.mu.Lock()
	for _, id := range queue.claimedBy {
		workers[id] = true
	}
	queue.mu.Unlock()
	assert.Greater(t, len(workers), 1, "multiple workers should have claimed jobs")
}
