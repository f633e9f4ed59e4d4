// internal/recovery/recovery.go
package recovery

import (
	"context"
	"fmt"
	"log"

	"github.com/sublate/sublate/internal/models"
	"github.com/sublate/sublate/internal/storage"
)

// Submitter enqueues recovered tasks.
type Submitter interface {
	Submit(taskID string) error
}

// Manager resubmits every non-terminal task found in the store at startup.
// Because the stage executor always resumes from the checkpoint, no completed
// stage is re-executed; at most the interrupted stage runs again. Batches
// need no recovery of their own: their state is entirely derived from their
// children.
type Manager struct {
	store storage.Store
	sched Submitter
}

func NewManager(store storage.Store, sched Submitter) *Manager {
	return &Manager{store: store, sched: sched}
}

// Recover scans the store and resubmits interrupted tasks in creation order.
func (m *Manager) Recover(ctx context.Context) error {
	tasks, err := m.store.ListTasks(ctx, storage.TaskFilter{NonTerminal: true})
	if err != nil {
		return fmt.Errorf("failed to list interrupted tasks: %w", err)
	}

	recovered := 0
	for _, task := range tasks {
		if task.Status != models.TaskStatusPending {
			_, err := m.store.UpdateTask(ctx, task.ID, func(t *models.Task) error {
				t.Message = fmt.Sprintf("recovered, resuming %s", t.Status)
				return nil
			})
			if err != nil {
				log.Printf("Warning: failed to annotate recovered task %s: %v", task.ID, err)
			}
		}
		if err := m.sched.Submit(task.ID); err != nil {
			log.Printf("Warning: failed to resubmit task %s: %v", task.ID, err)
			continue
		}
		recovered++
	}

	if recovered > 0 {
		log.Printf("Recovered %d interrupted tasks", recovered)
	}
	return nil
}
