// internal/storage/leveldb/client.go
package leveldb

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/sublate/sublate/internal/config"
	"github.com/sublate/sublate/internal/models"
	"github.com/sublate/sublate/internal/storage"
)

const (
	taskKeyPrefix  = "task:"
	batchKeyPrefix = "batch:"
)

// syncWrites forces each write through to disk before Put returns, which is
// the durability contract checkpoints depend on.
var syncWrites = &opt.WriteOptions{Sync: true}

// Client is a LevelDB-backed implementation of storage.Store. One JSON record
// is kept per task and per batch. A single mutex serializes read-modify-write
// cycles; reads of other records proceed against LevelDB's own snapshot
// machinery, so there is no global lock file.
type Client struct {
	db    *leveldb.DB
	mutex sync.Mutex
}

func NewClient(cfg config.LevelDBConfig) (*Client, error) {
	opts := &opt.Options{
		CompactionTableSize: 2 * 1024 * 1024, // 2MB
		WriteBuffer:         1 * 1024 * 1024, // 1MB
	}

	db, err := leveldb.OpenFile(cfg.Path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open leveldb: %w", err)
	}

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func taskKey(id string) []byte  { return []byte(taskKeyPrefix + id) }
func batchKey(id string) []byte { return []byte(batchKeyPrefix + id) }

func (c *Client) CreateTask(ctx context.Context, task *models.Task) error {
	return c.put(taskKey(task.ID), task)
}

func (c *Client) GetTask(ctx context.Context, id string) (*models.Task, error) {
	var task models.Task
	if err := c.get(taskKey(id), &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// UpdateTask applies mutate to the current record and writes the result back
// atomically. The record timestamps are maintained here so every transition
// carries a fresh UpdatedAt.
func (c *Client) UpdateTask(ctx context.Context, id string, mutate func(*models.Task) error) (*models.Task, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	var task models.Task
	if err := c.get(taskKey(id), &task); err != nil {
		if err == storage.ErrNotFound {
			return nil, storage.ErrConflict
		}
		return nil, err
	}

	if err := mutate(&task); err != nil {
		return nil, err
	}
	task.UpdatedAt = time.Now()

	if err := c.put(taskKey(id), &task); err != nil {
		return nil, err
	}
	return &task, nil
}

func (c *Client) ListTasks(ctx context.Context, filter storage.TaskFilter) ([]*models.Task, error) {
	iter := c.db.NewIterator(util.BytesPrefix([]byte(taskKeyPrefix)), nil)
	defer iter.Release()

	var tasks []*models.Task
	for iter.Next() {
		var task models.Task
		if err := json.Unmarshal(iter.Value(), &task); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task record %s: %w", iter.Key(), err)
		}
		if filter.Matches(&task) {
			t := task
			tasks = append(tasks, &t)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("failed to iterate task records: %w", err)
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
	return tasks, nil
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.db.Delete(taskKey(id), syncWrites)
}

func (c *Client) CreateBatch(ctx context.Context, batch *models.Batch) error {
	return c.put(batchKey(batch.ID), batch)
}

func (c *Client) GetBatch(ctx context.Context, id string) (*models.Batch, error) {
	var batch models.Batch
	if err := c.get(batchKey(id), &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

func (c *Client) DeleteBatch(ctx context.Context, id string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.db.Delete(batchKey(id), syncWrites)
}

func (c *Client) put(key []byte, record interface{}) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := c.db.Put(key, data, syncWrites); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	return nil
}

func (c *Client) get(key []byte, record interface{}) error {
	data, err := c.db.Get(key, nil)
	if err != nil {
		if err == leveldb.ErrNotFound {
			return storage.ErrNotFound
		}
		return fmt.Errorf("failed to read record: %w", err)
	}
	if err := json.Unmarshal(data, record); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return nil
}
