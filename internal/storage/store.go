// internal/storage/store.go
package storage

import (
	"context"
	"errors"

	"github.com/sublate/sublate/internal/models"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when an atomic update loses the record underneath
// it, typically because it was deleted concurrently.
var ErrConflict = errors.New("record deleted concurrently")

// TaskFilter narrows ListTasks results. Zero values match everything.
type TaskFilter struct {
	BatchID     string
	Statuses    []models.TaskStatus
	NonTerminal bool
}

// Matches reports whether a task satisfies the filter.
func (f TaskFilter) Matches(task *models.Task) bool {
	if f.BatchID != "" && task.BatchID != f.BatchID {
		return false
	}
	if f.NonTerminal && task.Status.Terminal() {
		return false
	}
	if len(f.Statuses) > 0 {
		found := false
		for _, s := range f.Statuses {
			if task.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// Store is the durable persistence contract for task and batch records.
// Writes are durable before the call returns. UpdateTask and UpdateBatch are
// atomic read-modify-write operations; callers guarantee single-writer-per-id,
// the store guarantees no partial write is ever visible to a reader.
type Store interface {
	CreateTask(ctx context.Context, task *models.Task) error
	GetTask(ctx context.Context, id string) (*models.Task, error)
	UpdateTask(ctx context.Context, id string, mutate func(*models.Task) error) (*models.Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]*models.Task, error)
	DeleteTask(ctx context.Context, id string) error

	CreateBatch(ctx context.Context, batch *models.Batch) error
	GetBatch(ctx context.Context, id string) (*models.Batch, error)
	DeleteBatch(ctx context.Context, id string) error

	Close() error
}
