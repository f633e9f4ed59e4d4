package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/sublate/sublate/internal/config"
	"github.com/sublate/sublate/internal/models"
	"github.com/sublate/sublate/internal/storage/leveldb"
)

type fakeRunner struct {
	mu        sync.Mutex
	calls     []string
	launches  []time.Time
	active    int
	maxActive int
	block     chan struct{} // when set, Run blocks until closed or cancelled
}

func (r *fakeRunner) Run(ctx context.Context, taskID string, cancelled func() bool) error {
	r.mu.Lock()
	r.calls = append(r.calls, taskID)
	r.launches = append(r.launches, time.Now())
	r.active++
	if r.active > r.maxActive {
		r.maxActive = r.active
	}
	block := r.block
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.active--
		r.mu.Unlock()
	}()

	if block != nil {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-block:
				return nil
			case <-time.After(5 * time.Millisecond):
				if cancelled() {
					return nil
				}
			}
		}
	}
	return nil
}

func (r *fakeRunner) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func newTestStore(t *testing.T) *leveldb.Client {
	t.Helper()
	store, err := leveldb.NewClient(config.LevelDBConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createPendingTask(t *testing.T, store *leveldb.Client) *models.Task {
	t.Helper()
	task := models.NewTask("https://example.com/watch?v=abc", "zh")
	if err := store.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	return task
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestConcurrencyBound(t *testing.T) {
	store := newTestStore(t)
	runner := &fakeRunner{block: make(chan struct{})}
	sched := New(store, runner, 2, 16, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	for i := 0; i < 5; i++ {
		task := createPendingTask(t, store)
		if err := sched.Submit(task.ID); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	waitFor(t, time.Second, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return runner.active == 2
	})

	// With both workers occupied, no further launches happen.
	time.Sleep(50 * time.Millisecond)
	runner.mu.Lock()
	maxActive, called := runner.maxActive, len(runner.calls)
	runner.mu.Unlock()
	if maxActive > 2 {
		t.Errorf("concurrency bound exceeded: %d", maxActive)
	}
	if called != 2 {
		t.Errorf("expected 2 launched tasks while workers are busy, got %d", called)
	}

	close(runner.block)
	waitFor(t, time.Second, func() bool { return runner.callCount() == 5 })

	if err := sched.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func TestLaunchPacing(t *testing.T) {
	store := newTestStore(t)
	runner := &fakeRunner{}
	delay := 60 * time.Millisecond
	sched := New(store, runner, 2, 16, delay)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	for i := 0; i < 3; i++ {
		task := createPendingTask(t, store)
		if err := sched.Submit(task.ID); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	waitFor(t, 2*time.Second, func() bool { return runner.callCount() == 3 })

	runner.mu.Lock()
	launches := append([]time.Time(nil), runner.launches...)
	runner.mu.Unlock()
	for i := 1; i < len(launches); i++ {
		if gap := launches[i].Sub(launches[i-1]); gap < delay-10*time.Millisecond {
			t.Errorf("launch gap %v shorter than pacing delay %v", gap, delay)
		}
	}

	if err := sched.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func TestCancelPendingTask(t *testing.T) {
	store := newTestStore(t)
	// Workers never started: the task stays pending in the queue.
	sched := New(store, &fakeRunner{}, 1, 16, 0)
	task := createPendingTask(t, store)
	if err := sched.Submit(task.ID); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	accepted, err := sched.Cancel(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if !accepted {
		t.Fatal("cancel of a pending task should be accepted")
	}

	got, _ := store.GetTask(context.Background(), task.ID)
	if got.Status != models.TaskStatusCancelled {
		t.Errorf("pending task should be cancelled in the store, got %s", got.Status)
	}
}

func TestCancelledTaskNotLaunched(t *testing.T) {
	store := newTestStore(t)
	runner := &fakeRunner{}
	sched := New(store, runner, 1, 16, 0)
	task := createPendingTask(t, store)
	if err := sched.Submit(task.ID); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := sched.Cancel(context.Background(), task.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	time.Sleep(50 * time.Millisecond)
	if runner.callCount() != 0 {
		t.Error("cancelled task must not reach the runner")
	}
	if err := sched.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func TestCancelRunningTask(t *testing.T) {
	store := newTestStore(t)
	runner := &fakeRunner{block: make(chan struct{})}
	sched := New(store, runner, 1, 16, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	task := createPendingTask(t, store)
	if err := sched.Submit(task.ID); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return runner.callCount() == 1 })

	accepted, err := sched.Cancel(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if !accepted {
		t.Fatal("cancel of a running task should be accepted")
	}

	// The runner observes the flag and returns without the block channel.
	waitFor(t, time.Second, func() bool {
		runner.mu.Lock()
		defer runner.mu.Unlock()
		return runner.active == 0
	})

	// The scheduler leaves the record alone; the executor owns it.
	got, _ := store.GetTask(context.Background(), task.ID)
	if got.Status != models.TaskStatusPending {
		t.Errorf("scheduler must not write a running task's record, got %s", got.Status)
	}

	if err := sched.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
}

func TestCancelTerminalTask(t *testing.T) {
	store := newTestStore(t)
	sched := New(store, &fakeRunner{}, 1, 16, 0)
	task := createPendingTask(t, store)
	_, err := store.UpdateTask(context.Background(), task.ID, func(t *models.Task) error {
		t.Status = models.TaskStatusCompleted
		return nil
	})
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	accepted, err := sched.Cancel(context.Background(), task.ID)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if accepted {
		t.Error("cancel of a terminal task should not be accepted")
	}
}

func TestSubmitAfterShutdown(t *testing.T) {
	store := newTestStore(t)
	sched := New(store, &fakeRunner{}, 1, 16, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)
	if err := sched.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	if err := sched.Submit("any"); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("expected ErrShuttingDown, got %v", err)
	}
}

func TestSubmitQueueFull(t *testing.T) {
	store := newTestStore(t)
	sched := New(store, &fakeRunner{}, 1, 1, 0)

	if err := sched.Submit("first"); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if err := sched.Submit("second"); err == nil {
		t.Error("expected an error when the queue is full")
	}
}

func TestShutdownStopsQueuedLaunches(t *testing.T) {
	store := newTestStore(t)
	runner := &fakeRunner{block: make(chan struct{})}
	sched := New(store, runner, 1, 16, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	first := createPendingTask(t, store)
	queued := []*models.Task{createPendingTask(t, store), createPendingTask(t, store)}
	for _, task := range append([]*models.Task{first}, queued...) {
		if err := sched.Submit(task.ID); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	// The single worker is occupied with the first task, the rest sit queued.
	waitFor(t, time.Second, func() bool { return runner.callCount() == 1 })

	if err := sched.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	// Only the in-flight task ever reached the runner; the queued ones keep
	// their pending records for recovery to resubmit.
	if got := runner.callCount(); got != 1 {
		t.Errorf("shutdown launched queued tasks: %d launches, expected 1", got)
	}
	for _, task := range queued {
		got, err := store.GetTask(context.Background(), task.ID)
		if err != nil {
			t.Fatalf("get failed: %v", err)
		}
		if got.Status != models.TaskStatusPending {
			t.Errorf("queued task should stay pending across shutdown, got %s", got.Status)
		}
	}
}

func TestShutdownSignalsRunningTask(t *testing.T) {
	store := newTestStore(t)
	runner := &fakeRunner{block: make(chan struct{})}
	sched := New(store, runner, 1, 16, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	task := createPendingTask(t, store)
	if err := sched.Submit(task.ID); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	waitFor(t, time.Second, func() bool { return runner.callCount() == 1 })

	// The runner only returns on context cancellation here, so a clean
	// shutdown proves the in-flight executor was signalled.
	if err := sched.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown did not signal the running task: %v", err)
	}

	got, _ := store.GetTask(context.Background(), task.ID)
	if got.Status.Terminal() {
		t.Errorf("interrupted task must stay resumable, got %s", got.Status)
	}
}

func TestShutdownDrainsInFlight(t *testing.T) {
	store := newTestStore(t)
	runner := &fakeRunner{}
	sched := New(store, runner, 2, 16, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sched.Start(ctx)

	for i := 0; i < 4; i++ {
		task := createPendingTask(t, store)
		if err := sched.Submit(task.ID); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	waitFor(t, time.Second, func() bool { return runner.callCount() == 4 })
	if err := sched.Shutdown(time.Second); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	stats := sched.Stats()
	if stats.ExecutedTasks != 4 {
		t.Errorf("expected 4 executed tasks, got %d", stats.ExecutedTasks)
	}
	if stats.RunningCount != 0 {
		t.Errorf("expected no running tasks after shutdown, got %d", stats.RunningCount)
	}
}
