// internal/batch/coordinator.go
package batch

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/sublate/sublate/internal/events"
	"github.com/sublate/sublate/internal/models"
	"github.com/sublate/sublate/internal/pipeline"
	"github.com/sublate/sublate/internal/storage"
)

// Submitter is the slice of the scheduler the coordinator needs.
type Submitter interface {
	Submit(taskID string) error
	Cancel(ctx context.Context, taskID string) (bool, error)
}

// Coordinator fans a collection URL out into child tasks and derives batch
// state from their records. After submission each child's lifecycle is fully
// independent: one child failing never aborts or retries its siblings.
type Coordinator struct {
	store    storage.Store
	sched    Submitter
	resolver pipeline.Resolver
	events   events.Publisher
}

func NewCoordinator(store storage.Store, sched Submitter, resolver pipeline.Resolver, publisher events.Publisher) *Coordinator {
	return &Coordinator{
		store:    store,
		sched:    sched,
		resolver: resolver,
		events:   publisher,
	}
}

// CheckCollection classifies a URL without creating anything. The returned
// collection is nil when the URL points at a single item. An unresolvable URL
// is an error, not a single-item classification.
func (c *Coordinator) CheckCollection(ctx context.Context, url string) (*pipeline.Collection, error) {
	col, err := c.resolver.ResolveCollection(ctx, url)
	if err != nil {
		if errors.Is(err, pipeline.ErrNotCollection) {
			return nil, nil
		}
		return nil, err
	}
	return col, nil
}

// CreateBatch resolves the collection, creates one child task per retained
// item in collection order, submits them all, and returns immediately.
// maxItems of 0 means no truncation.
func (c *Coordinator) CreateBatch(ctx context.Context, url, targetLanguage string, maxItems int) (*models.BatchView, error) {
	col, err := c.resolver.ResolveCollection(ctx, url)
	if err != nil {
		return nil, err
	}

	items := col.Items
	if maxItems > 0 && len(items) > maxItems {
		items = items[:maxItems]
	}

	batch := models.NewBatch(url, col.ID, col.Title, targetLanguage, maxItems)
	batch.Uploader = col.Uploader

	tasks := make([]*models.Task, 0, len(items))
	for _, item := range items {
		task := models.NewTask(item.URL, targetLanguage)
		task.BatchID = batch.ID
		task.Title = item.Title
		task.Duration = item.Duration
		// Collection resolution already produced the item metadata, so the
		// resolve stage is checkpointed as done up front.
		task.Checkpoint = models.Checkpoint{
			Stage:     models.StageResolve,
			Artifacts: map[models.Stage]string{models.StageResolve: item.ID},
		}
		tasks = append(tasks, task)
		batch.TaskIDs = append(batch.TaskIDs, task.ID)
	}

	if err := c.store.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to create batch record: %w", err)
	}
	for _, task := range tasks {
		if err := c.store.CreateTask(ctx, task); err != nil {
			return nil, fmt.Errorf("failed to create child task: %w", err)
		}
	}

	for _, task := range tasks {
		if err := c.sched.Submit(task.ID); err != nil {
			// The record is durable; recovery resubmits it on next start.
			log.Printf("Warning: failed to submit task %s for batch %s: %v", task.ID, batch.ID, err)
		}
	}

	view := models.DeriveBatchView(batch, tasks)
	c.events.PublishBatchStatus(view)
	log.Printf("Created batch %s (%q) with %d tasks", batch.ID, batch.CollectionTitle, len(tasks))
	return view, nil
}

// GetBatch composes the batch view by re-deriving every counter from the
// current child task snapshots. Nothing here is cached: the children are the
// single source of truth.
func (c *Coordinator) GetBatch(ctx context.Context, batchID string) (*models.BatchView, error) {
	batch, err := c.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}

	tasks := make([]*models.Task, 0, len(batch.TaskIDs))
	for _, taskID := range batch.TaskIDs {
		task, err := c.store.GetTask(ctx, taskID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return nil, err
		}
		tasks = append(tasks, task)
	}

	return models.DeriveBatchView(batch, tasks), nil
}

// CancelBatch cancels every non-terminal child: pending children are marked
// cancelled immediately, running children stop at their next stage boundary.
func (c *Coordinator) CancelBatch(ctx context.Context, batchID string) (bool, error) {
	batch, err := c.store.GetBatch(ctx, batchID)
	if err != nil {
		return false, err
	}

	accepted := false
	for _, taskID := range batch.TaskIDs {
		ok, err := c.sched.Cancel(ctx, taskID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			log.Printf("Warning: failed to cancel task %s in batch %s: %v", taskID, batchID, err)
			continue
		}
		if ok {
			accepted = true
		}
	}
	return accepted, nil
}
