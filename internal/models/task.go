// internal/models/task.go
package models

import (
	"time"

	"github.com/google/uuid"
)

// TaskStatus represents the current state of a task
type TaskStatus string

const (
	TaskStatusPending      TaskStatus = "pending"
	TaskStatusResolving    TaskStatus = "resolving"
	TaskStatusFetching     TaskStatus = "fetching"
	TaskStatusTranscribing TaskStatus = "transcribing"
	TaskStatusTranslating  TaskStatus = "translating"
	TaskStatusEmbedding    TaskStatus = "embedding"
	TaskStatusCompleted    TaskStatus = "completed"
	TaskStatusFailed       TaskStatus = "failed"
	TaskStatusCancelled    TaskStatus = "cancelled"
)

// Terminal reports whether the status is an absorbing state.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Stage identifies one step of the processing pipeline
type Stage string

const (
	StageResolve    Stage = "resolve"
	StageFetch      Stage = "fetch"
	StageTranscribe Stage = "transcribe"
	StageTranslate  Stage = "translate"
	StageEmbed      Stage = "embed"
)

// Checkpoint records the last successfully completed stage and the artifacts
// each completed stage produced, keyed by stage name. A restarted process uses
// it to skip work that is already done.
type Checkpoint struct {
	Stage     Stage            `json:"stage,omitempty"`
	Artifacts map[Stage]string `json:"artifacts,omitempty"`
}

// Done reports whether the given stage has already produced its artifact.
func (c Checkpoint) Done(stage Stage) bool {
	if c.Artifacts == nil {
		return false
	}
	_, ok := c.Artifacts[stage]
	return ok
}

// Artifact returns the artifact reference produced by a completed stage.
func (c Checkpoint) Artifact(stage Stage) string {
	return c.Artifacts[stage]
}

// FailureKind classifies why a task failed
type FailureKind string

const (
	FailureResolution FailureKind = "resolution"
	FailureTransient  FailureKind = "transient"
	FailureFatal      FailureKind = "fatal"
)

// TaskError carries the typed reason and detail for a failed task
type TaskError struct {
	Kind   FailureKind `json:"kind"`
	Stage  Stage       `json:"stage,omitempty"`
	Detail string      `json:"detail"`
}

// TaskResult holds the output artifact locations of a completed task
type TaskResult struct {
	VideoPath    string `json:"videoPath"`
	SubtitlePath string `json:"subtitlePath"`
	Title        string `json:"title,omitempty"`
	Duration     int    `json:"duration,omitempty"`
}

// Task represents one processing job for a single media item
type Task struct {
	ID             string        `json:"id"`
	BatchID        string        `json:"batchId,omitempty"`
	SourceURL      string        `json:"sourceUrl"`
	TargetLanguage string        `json:"targetLanguage"`
	Title          string        `json:"title,omitempty"`
	Duration       int           `json:"duration,omitempty"`
	Status         TaskStatus    `json:"status"`
	Progress       int           `json:"progress"`
	Message        string        `json:"message"`
	Checkpoint     Checkpoint    `json:"checkpoint"`
	Result         *TaskResult   `json:"result,omitempty"`
	Error          *TaskError    `json:"error,omitempty"`
	RetryCounts    map[Stage]int `json:"retryCounts,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
}

// NewTask creates a new pending task for a single source URL
func NewTask(sourceURL, targetLanguage string) *Task {
	now := time.Now()
	return &Task{
		ID:             uuid.New().String(),
		SourceURL:      sourceURL,
		TargetLanguage: targetLanguage,
		Status:         TaskStatusPending,
		Message:        "queued",
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Retries returns the retry count recorded for a stage.
func (t *Task) Retries(stage Stage) int {
	return t.RetryCounts[stage]
}

// BumpRetry increments the retry count for a stage.
func (t *Task) BumpRetry(stage Stage) {
	if t.RetryCounts == nil {
		t.RetryCounts = make(map[Stage]int)
	}
	t.RetryCounts[stage]++
}
