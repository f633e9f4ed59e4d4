// internal/events/publisher.go
package events

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/sublate/sublate/internal/config"
	"github.com/sublate/sublate/internal/models"
)

// Publisher emits status messages for task and batch transitions. Publishing
// is observational: the pull-based HTTP surface stays authoritative, and a
// publish failure never affects task processing.
type Publisher interface {
	PublishTaskStatus(task *models.Task)
	PublishBatchStatus(view *models.BatchView)
	Close()
}

// NATS publishes status messages on <prefix>.task.<id> and
// <prefix>.batch.<id> subjects.
type NATS struct {
	conn   *nats.Conn
	prefix string
}

func NewNATS(cfg config.NATSConfig) (*NATS, error) {
	conn, err := nats.Connect(cfg.URL,
		nats.Name("sublate-orchestrator"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATS{conn: conn, prefix: cfg.SubjectPrefix}, nil
}

func (n *NATS) PublishTaskStatus(task *models.Task) {
	msg := models.StatusMessage{
		Type:      "task",
		ID:        task.ID,
		Status:    string(task.Status),
		Progress:  task.Progress,
		Timestamp: time.Now(),
		Metadata: map[string]string{
			"batchId": task.BatchID,
			"message": task.Message,
		},
	}
	n.publish(fmt.Sprintf("%s.task.%s", n.prefix, task.ID), msg)
}

func (n *NATS) PublishBatchStatus(view *models.BatchView) {
	msg := models.StatusMessage{
		Type:      "batch",
		ID:        view.ID,
		Status:    string(view.Status),
		Progress:  view.OverallProgress,
		Timestamp: time.Now(),
		Metadata: map[string]int{
			"total":      view.Total,
			"completed":  view.CompletedCount,
			"failed":     view.FailedCount,
			"processing": view.ProcessingCount,
		},
	}
	n.publish(fmt.Sprintf("%s.batch.%s", n.prefix, view.ID), msg)
}

func (n *NATS) publish(subject string, msg models.StatusMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Warning: failed to marshal status message: %v", err)
		return
	}
	if err := n.conn.Publish(subject, data); err != nil {
		log.Printf("Warning: failed to publish status to %s: %v", subject, err)
	}
}

func (n *NATS) Close() {
	n.conn.Close()
}

// Nop is the publisher used when no event stream is configured.
type Nop struct{}

func (Nop) PublishTaskStatus(*models.Task)       {}
func (Nop) PublishBatchStatus(*models.BatchView) {}
func (Nop) Close()                               {}
