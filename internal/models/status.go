// internal/models/status.go
package models

import (
	"time"
)

// StatusMessage represents a status update message for tasks and batches,
// published on the optional event stream. The HTTP pull surface remains the
// authoritative view; these messages are observational.
type StatusMessage struct {
	Type      string      `json:"type"`      // "task" or "batch"
	ID        string      `json:"id"`        // entity id
	Status    string      `json:"status"`    // current status of the entity
	Progress  int         `json:"progress"`  // 0-100
	Timestamp time.Time   `json:"timestamp"` // when the status was recorded
	Metadata  interface{} `json:"metadata,omitempty"`
}

// SystemState represents the current state of the scheduler
type SystemState struct {
	QueuedCount   int       `json:"queuedCount"`
	RunningCount  int       `json:"runningCount"`
	WorkerCount   int       `json:"workerCount"`
	ExecutedTasks int       `json:"executedTasks"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
