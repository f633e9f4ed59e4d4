// internal/executor/executor.go
package executor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/sublate/sublate/internal/events"
	"github.com/sublate/sublate/internal/models"
	"github.com/sublate/sublate/internal/pipeline"
	"github.com/sublate/sublate/internal/storage"
)

// Executor drives one task at a time through the ordered stage pipeline.
// It owns exclusive write access to the task record for the duration of Run;
// every transition is persisted before the executor proceeds, so the worst
// case after a crash is re-running the interrupted stage.
type Executor struct {
	store      storage.Store
	collab     pipeline.Collaborators
	events     events.Publisher
	workDir    string
	maxRetries int
	backoff    time.Duration
}

func New(store storage.Store, collab pipeline.Collaborators, publisher events.Publisher, workDir string, maxRetries int, backoff time.Duration) *Executor {
	return &Executor{
		store:      store,
		collab:     collab,
		events:     publisher,
		workDir:    workDir,
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

// Run executes the pipeline for taskID from its last checkpoint. Stage
// failures are absorbed into the task record and do not surface as errors.
// The returned error is reserved for persistence failures, which the caller
// must treat as fatal to the process. The cancelled flag is polled at stage
// boundaries; stages themselves are opaque long-running calls and are never
// hard-interrupted.
func (e *Executor) Run(ctx context.Context, taskID string, cancelled func() bool) error {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			log.Printf("Task %s disappeared before execution, skipping", taskID)
			return nil
		}
		return &pipeline.PersistenceError{Err: err}
	}
	if task.Status.Terminal() {
		return nil
	}

	for _, stage := range pipeline.StageOrder {
		if task.Checkpoint.Done(stage) {
			continue
		}
		if ctx.Err() != nil {
			// Process shutdown: leave the record as-is so recovery
			// resumes it from the checkpoint.
			return nil
		}
		if cancelled() {
			_, err := e.transition(task.ID, func(t *models.Task) error {
				t.Status = models.TaskStatusCancelled
				t.Message = "cancelled"
				return nil
			})
			return err
		}

		task, err = e.runStage(ctx, task, stage)
		if err != nil {
			return err
		}
		if task == nil || task.Status.Terminal() {
			return nil
		}
	}

	if ctx.Err() != nil && !task.Checkpoint.Done(models.StageEmbed) {
		// Shutdown interrupted the final stage before it checkpointed.
		return nil
	}

	_, err = e.transition(task.ID, func(t *models.Task) error {
		t.Status = models.TaskStatusCompleted
		t.Progress = 100
		t.Message = "completed"
		t.Result = &models.TaskResult{
			VideoPath:    t.Checkpoint.Artifact(models.StageEmbed),
			SubtitlePath: t.Checkpoint.Artifact(models.StageTranslate),
			Title:        t.Title,
			Duration:     t.Duration,
		}
		return nil
	})
	return err
}

// runStage executes a single stage with retries. On success the checkpoint
// and progress are persisted; on failure the task record absorbs the typed
// reason.
func (e *Executor) runStage(ctx context.Context, task *models.Task, stage models.Stage) (*models.Task, error) {
	start, width := pipeline.StageBand(stage)

	task, err := e.transition(task.ID, func(t *models.Task) error {
		t.Status = pipeline.StageStatus(stage)
		t.Message = pipeline.StageMessage(stage)
		if t.Progress < start {
			t.Progress = start
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return task, nil
			case <-time.After(e.backoff):
			}
		}

		artifact, item, runErr := e.invoke(ctx, task, stage)
		if runErr == nil {
			return e.transition(task.ID, func(t *models.Task) error {
				if t.Checkpoint.Artifacts == nil {
					t.Checkpoint.Artifacts = make(map[models.Stage]string)
				}
				t.Checkpoint.Stage = stage
				t.Checkpoint.Artifacts[stage] = artifact
				t.Progress = start + width
				if item != nil {
					t.Title = item.Title
					t.Duration = item.Duration
				}
				return nil
			})
		}

		if ctx.Err() != nil {
			// The collaborator call was interrupted by shutdown; the
			// stage never checkpointed, so recovery re-runs it.
			return task, nil
		}

		var resErr *pipeline.ResolutionError
		if errors.As(runErr, &resErr) {
			return e.fail(task.ID, stage, models.FailureResolution, runErr)
		}
		if pipeline.IsFatal(runErr) {
			return e.fail(task.ID, stage, models.FailureFatal, runErr)
		}

		lastErr = runErr
		log.Printf("Task %s stage %s attempt %d/%d failed: %v", task.ID, stage, attempt+1, e.maxRetries+1, runErr)

		if attempt < e.maxRetries {
			task, err = e.transition(task.ID, func(t *models.Task) error {
				t.BumpRetry(stage)
				t.Message = fmt.Sprintf("%s (retry %d/%d)", pipeline.StageMessage(stage), attempt+1, e.maxRetries)
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}

	return e.fail(task.ID, stage, models.FailureTransient, lastErr)
}

// invoke dispatches to the collaborator owning the stage. Inputs come from
// the artifacts of earlier stages recorded in the checkpoint.
func (e *Executor) invoke(ctx context.Context, task *models.Task, stage models.Stage) (string, *pipeline.Item, error) {
	progress := e.progressFunc(task.ID, stage)
	cp := task.Checkpoint

	switch stage {
	case models.StageResolve:
		item, err := e.collab.Resolver.ResolveItem(ctx, task.SourceURL)
		if err != nil {
			return "", nil, err
		}
		return item.ID, item, nil

	case models.StageFetch:
		dir, err := e.taskWorkDir(task.ID)
		if err != nil {
			return "", nil, pipeline.Transient(err)
		}
		path, err := e.collab.Fetcher.Fetch(ctx, task.SourceURL, dir, progress)
		return path, nil, err

	case models.StageTranscribe:
		path, err := e.collab.Transcriber.Transcribe(ctx, cp.Artifact(models.StageFetch), progress)
		return path, nil, err

	case models.StageTranslate:
		path, err := e.collab.Translator.Translate(ctx, cp.Artifact(models.StageTranscribe), task.TargetLanguage, progress)
		return path, nil, err

	case models.StageEmbed:
		path, err := e.collab.Embedder.Embed(ctx, cp.Artifact(models.StageFetch), cp.Artifact(models.StageTranslate), progress)
		return path, nil, err

	default:
		return "", nil, pipeline.Fatal(fmt.Errorf("unknown stage %q", stage))
	}
}

// progressFunc maps a collaborator's fractional sub-progress into the stage's
// weight band and records it. Sub-progress writes are best effort; only stage
// transitions carry the resumability contract.
func (e *Executor) progressFunc(taskID string, stage models.Stage) pipeline.ProgressFunc {
	start, width := pipeline.StageBand(stage)
	return func(fraction float64) {
		if fraction < 0 {
			fraction = 0
		}
		if fraction > 1 {
			fraction = 1
		}
		target := start + int(fraction*float64(width))
		_, err := e.store.UpdateTask(context.Background(), taskID, func(t *models.Task) error {
			if target > t.Progress && !t.Status.Terminal() {
				t.Progress = target
			}
			return nil
		})
		if err != nil {
			log.Printf("Warning: failed to record sub-progress for task %s: %v", taskID, err)
		}
	}
}

func (e *Executor) fail(taskID string, stage models.Stage, kind models.FailureKind, cause error) (*models.Task, error) {
	detail := ""
	if cause != nil {
		detail = cause.Error()
	}
	return e.transition(taskID, func(t *models.Task) error {
		t.Status = models.TaskStatusFailed
		t.Message = fmt.Sprintf("%s failed", pipeline.StageMessage(stage))
		t.Error = &models.TaskError{Kind: kind, Stage: stage, Detail: detail}
		return nil
	})
}

// transition persists a task mutation atomically and publishes the new state.
// A store failure here means checkpoints can no longer be trusted, so it is
// escalated as a PersistenceError.
func (e *Executor) transition(taskID string, mutate func(*models.Task) error) (*models.Task, error) {
	task, err := e.store.UpdateTask(context.Background(), taskID, mutate)
	if err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, fmt.Errorf("task %s: %w", taskID, err)
		}
		return nil, &pipeline.PersistenceError{Err: err}
	}
	e.events.PublishTaskStatus(task)
	return task, nil
}

func (e *Executor) taskWorkDir(taskID string) (string, error) {
	dir := filepath.Join(e.workDir, taskID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create work dir: %w", err)
	}
	return dir, nil
}
