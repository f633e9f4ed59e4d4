// internal/models/batch.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// BatchStatus represents the derived state of a batch
type BatchStatus string

const (
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusCompleted  BatchStatus = "completed"
	BatchStatusFailed     BatchStatus = "failed"
	BatchStatusCancelled  BatchStatus = "cancelled"
)

// Batch represents a fan-out job over an ordered collection of items.
// Only identity and the ordered child task list are persisted; every counter
// and the status are recomputed from child task records on read.
type Batch struct {
	ID              string    `json:"id"`
	SourceURL       string    `json:"sourceUrl"`
	CollectionID    string    `json:"collectionId"`
	CollectionTitle string    `json:"collectionTitle"`
	Uploader        string    `json:"uploader,omitempty"`
	TargetLanguage  string    `json:"targetLanguage"`
	MaxItems        int       `json:"maxItems"`
	TaskIDs         []string  `json:"taskIds"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// NewBatch creates a batch record for a resolved collection
func NewBatch(sourceURL, collectionID, collectionTitle, targetLanguage string, maxItems int) *Batch {
	now := time.Now()
	return &Batch{
		ID:              uuid.New().String(),
		SourceURL:       sourceURL,
		CollectionID:    collectionID,
		CollectionTitle: collectionTitle,
		TargetLanguage:  targetLanguage,
		MaxItems:        maxItems,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// BatchView is the derived, read-time composition of a batch and its children.
type BatchView struct {
	Batch
	Status          BatchStatus `json:"status"`
	Total           int         `json:"total"`
	CompletedCount  int         `json:"completedCount"`
	FailedCount     int         `json:"failedCount"`
	ProcessingCount int         `json:"processingCount"`
	CancelledCount  int         `json:"cancelledCount"`
	OverallProgress int         `json:"overallProgress"`
	Tasks           []*Task     `json:"childTasks"`
}

// DeriveBatchView recomputes every counter and the batch status from the
// current child task snapshots. Children are expected in collection order.
func DeriveBatchView(batch *Batch, tasks []*Task) *BatchView {
	view := &BatchView{
		Batch: *batch,
		Total: len(tasks),
		Tasks: tasks,
	}

	progressSum := 0
	for _, task := range tasks {
		progressSum += task.Progress
		switch task.Status {
		case TaskStatusCompleted:
			view.CompletedCount++
		case TaskStatusFailed:
			view.FailedCount++
		case TaskStatusCancelled:
			view.CancelledCount++
		default:
			view.ProcessingCount++
		}
	}
	if view.Total > 0 {
		view.OverallProgress = progressSum / view.Total
	}

	switch {
	case view.ProcessingCount > 0:
		view.Status = BatchStatusProcessing
	case view.CompletedCount > 0 || view.Total == 0:
		view.Status = BatchStatusCompleted
	case view.FailedCount > 0:
		view.Status = BatchStatusFailed
	default:
		view.Status = BatchStatusCancelled
	}

	return view
}
