// internal/storage/postgres/client.go
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/sublate/sublate/internal/config"
	"github.com/sublate/sublate/internal/models"
	"github.com/sublate/sublate/internal/storage"
)

// Client is a PostgreSQL-backed implementation of storage.Store, selected
// when a database URL is configured. Records are stored as one JSON document
// per row; atomic read-modify-write uses SELECT ... FOR UPDATE inside a
// transaction, so the single-writer contract holds even across processes.
type Client struct {
	db *sql.DB
}

func NewClient(cfg config.PostgresConfig) (*Client, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	client := &Client{db: db}
	if err := client.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return client, nil
}

func (c *Client) ensureSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tasks (
			id         TEXT PRIMARY KEY,
			batch_id   TEXT NOT NULL DEFAULT '',
			status     TEXT NOT NULL,
			record     JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);
		CREATE INDEX IF NOT EXISTS tasks_batch_id_idx ON tasks (batch_id);
		CREATE INDEX IF NOT EXISTS tasks_status_idx ON tasks (status);
		CREATE TABLE IF NOT EXISTS batches (
			id         TEXT PRIMARY KEY,
			record     JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`

	if _, err := c.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) CreateTask(ctx context.Context, task *models.Task) error {
	record, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	query := `
		INSERT INTO tasks (id, batch_id, status, record, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET batch_id = EXCLUDED.batch_id,
			status = EXCLUDED.status,
			record = EXCLUDED.record,
			updated_at = EXCLUDED.updated_at`

	_, err = c.db.ExecContext(ctx, query,
		task.ID, task.BatchID, task.Status, record, task.CreatedAt, task.UpdatedAt)
	return err
}

func (c *Client) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var record []byte
	err := c.db.QueryRowContext(ctx, `SELECT record FROM tasks WHERE id = $1`, id).Scan(&record)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	var task models.Task
	if err := json.Unmarshal(record, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task record: %w", err)
	}
	return &task, nil
}

func (c *Client) UpdateTask(ctx context.Context, id string, mutate func(*models.Task) error) (*models.Task, error) {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var record []byte
	err = tx.QueryRowContext(ctx, `SELECT record FROM tasks WHERE id = $1 FOR UPDATE`, id).Scan(&record)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrConflict
		}
		return nil, err
	}

	var task models.Task
	if err := json.Unmarshal(record, &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task record: %w", err)
	}

	if err := mutate(&task); err != nil {
		return nil, err
	}
	task.UpdatedAt = time.Now()

	updated, err := json.Marshal(&task)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}

	query := `UPDATE tasks SET batch_id = $2, status = $3, record = $4, updated_at = $5 WHERE id = $1`
	if _, err := tx.ExecContext(ctx, query, task.ID, task.BatchID, task.Status, updated, task.UpdatedAt); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit task update: %w", err)
	}
	return &task, nil
}

func (c *Client) ListTasks(ctx context.Context, filter storage.TaskFilter) ([]*models.Task, error) {
	query := `SELECT record FROM tasks ORDER BY created_at`
	args := []interface{}{}
	if filter.BatchID != "" {
		query = `SELECT record FROM tasks WHERE batch_id = $1 ORDER BY created_at`
		args = append(args, filter.BatchID)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		var record []byte
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		var task models.Task
		if err := json.Unmarshal(record, &task); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task record: %w", err)
		}
		if filter.Matches(&task) {
			t := task
			tasks = append(tasks, &t)
		}
	}
	return tasks, rows.Err()
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = $1`, id)
	return err
}

func (c *Client) CreateBatch(ctx context.Context, batch *models.Batch) error {
	record, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal batch: %w", err)
	}

	query := `
		INSERT INTO batches (id, record, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET record = EXCLUDED.record,
			updated_at = EXCLUDED.updated_at`

	_, err = c.db.ExecContext(ctx, query, batch.ID, record, batch.CreatedAt, batch.UpdatedAt)
	return err
}

func (c *Client) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	var record []byte
	err := c.db.QueryRowContext(ctx, `SELECT record FROM batches WHERE id = $1`, id).Scan(&record)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	var batch models.Batch
	if err := json.Unmarshal(record, &batch); err != nil {
		return nil, fmt.Errorf("failed to unmarshal batch record: %w", err)
	}
	return &batch, nil
}

func (c *Client) DeleteBatch(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM batches WHERE id = $1`, id)
	return err
}
