// internal/scheduler/scheduler.go
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sublate/sublate/internal/models"
	"github.com/sublate/sublate/internal/pipeline"
	"github.com/sublate/sublate/internal/storage"
)

// ErrShuttingDown is returned by Submit once shutdown has begun.
var ErrShuttingDown = errors.New("scheduler is shutting down")

// Runner executes the stage pipeline for one task. The cancelled flag is
// polled at stage boundaries for cooperative cancellation.
type Runner interface {
	Run(ctx context.Context, taskID string, cancelled func() bool) error
}

// Scheduler owns the pending queue and a bounded set of concurrently running
// stage executors. It is the only place concurrency is coordinated: each
// worker drives one sequential task pipeline at a time, and a configurable
// minimum delay is enforced between successive launches to avoid tripping
// abuse protection on the external source.
type Scheduler struct {
	store       storage.Store
	runner      Runner
	queue       chan string
	workers     int
	launchDelay time.Duration

	mu         sync.Mutex
	lastLaunch time.Time
	cancelled  map[string]struct{}
	running    map[string]struct{}
	executed   int

	workersWG    sync.WaitGroup
	stop         context.CancelFunc
	isShutdown   bool
	shutdownLock sync.RWMutex

	// fatalf is invoked when the task store can no longer persist
	// transitions; the default halts the process.
	fatalf func(format string, args ...interface{})
}

func New(store storage.Store, runner Runner, workers, queueSize int, launchDelay time.Duration) *Scheduler {
	return &Scheduler{
		store:       store,
		runner:      runner,
		queue:       make(chan string, queueSize),
		workers:     workers,
		launchDelay: launchDelay,
		cancelled:   make(map[string]struct{}),
		running:     make(map[string]struct{}),
		fatalf:      log.Fatalf,
	}
}

// Start launches the worker pool. The workers run under a scheduler-owned
// context so Shutdown can signal them independently of the caller's.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.stop = context.WithCancel(ctx)
	log.Printf("Starting scheduler with %d workers", s.workers)
	for i := 0; i < s.workers; i++ {
		s.workersWG.Add(1)
		go s.worker(ctx)
	}
}

// Submit enqueues a task for execution.
func (s *Scheduler) Submit(taskID string) error {
	s.shutdownLock.RLock()
	defer s.shutdownLock.RUnlock()

	if s.isShutdown {
		return ErrShuttingDown
	}

	select {
	case s.queue <- taskID:
		return nil
	default:
		return fmt.Errorf("task queue full")
	}
}

// Cancel marks a task cancelled. A still-pending task is cancelled in the
// store immediately; a running task is signalled to stop at its next stage
// boundary. It reports whether the cancellation was accepted.
func (s *Scheduler) Cancel(ctx context.Context, taskID string) (bool, error) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, err
		}
		return false, err
	}
	if task.Status.Terminal() {
		return false, nil
	}

	s.mu.Lock()
	s.cancelled[taskID] = struct{}{}
	_, isRunning := s.running[taskID]
	s.mu.Unlock()

	if isRunning {
		return true, nil
	}

	// Pending: the executor does not own the record yet, cancel it directly.
	_, err = s.store.UpdateTask(ctx, taskID, func(t *models.Task) error {
		if t.Status == models.TaskStatusPending {
			t.Status = models.TaskStatusCancelled
			t.Message = "cancelled"
		}
		return nil
	})
	if err != nil && !errors.Is(err, storage.ErrConflict) {
		return true, err
	}
	return true, nil
}

// Shutdown stops launching queued tasks and signals in-flight executors, then
// waits for them to stop, up to the given timeout. Queued tasks keep their
// pending records and are resubmitted by recovery on the next start; in-flight
// tasks are left resumable from their last checkpoint.
func (s *Scheduler) Shutdown(timeout time.Duration) error {
	s.shutdownLock.Lock()
	if s.isShutdown {
		s.shutdownLock.Unlock()
		return nil
	}
	s.isShutdown = true
	s.shutdownLock.Unlock()

	close(s.queue)
	if s.stop != nil {
		s.stop()
	}

	done := make(chan struct{})
	go func() {
		s.workersWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("shutdown timed out after %v", timeout)
	}
}

// Stats returns a snapshot of the scheduler's state.
func (s *Scheduler) Stats() models.SystemState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.SystemState{
		QueuedCount:   len(s.queue),
		RunningCount:  len(s.running),
		WorkerCount:   s.workers,
		ExecutedTasks: s.executed,
		UpdatedAt:     time.Now(),
	}
}

func (s *Scheduler) worker(ctx context.Context) {
	defer s.workersWG.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case taskID, ok := <-s.queue:
			if !ok {
				return
			}
			if s.shuttingDown() {
				// Leave the task pending; recovery resubmits it.
				return
			}
			if !s.pace(ctx) {
				return
			}
			s.launch(ctx, taskID)
		}
	}
}

// pace blocks until the minimum delay since the previous launch has elapsed.
// It returns false if the context was cancelled while waiting.
func (s *Scheduler) pace(ctx context.Context) bool {
	if s.launchDelay <= 0 {
		return true
	}

	for {
		s.mu.Lock()
		wait := s.launchDelay - time.Since(s.lastLaunch)
		if wait <= 0 {
			s.lastLaunch = time.Now()
			s.mu.Unlock()
			return true
		}
		s.mu.Unlock()

		select {
		case <-ctx.Done():
			return false
		case <-time.After(wait):
		}
	}
}

func (s *Scheduler) launch(ctx context.Context, taskID string) {
	task, err := s.store.GetTask(ctx, taskID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Printf("Error loading task %s: %v", taskID, err)
		}
		return
	}
	if task.Status.Terminal() {
		// Cancelled or otherwise finished while waiting in the queue.
		s.clearCancel(taskID)
		return
	}

	s.mu.Lock()
	s.running[taskID] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, taskID)
		delete(s.cancelled, taskID)
		s.executed++
		s.mu.Unlock()
	}()

	err = s.runner.Run(ctx, taskID, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		_, ok := s.cancelled[taskID]
		return ok
	})
	if err != nil {
		var perr *pipeline.PersistenceError
		if errors.As(err, &perr) {
			s.fatalf("Task store failure while processing task %s, halting: %v", taskID, err)
			return
		}
		log.Printf("Error processing task %s: %v", taskID, err)
	}
}

func (s *Scheduler) shuttingDown() bool {
	s.shutdownLock.RLock()
	defer s.shutdownLock.RUnlock()
	return s.isShutdown
}

func (s *Scheduler) clearCancel(taskID string) {
	s.mu.Lock()
	delete(s.cancelled, taskID)
	s.mu.Unlock()
}
