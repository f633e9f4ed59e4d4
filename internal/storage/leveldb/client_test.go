package leveldb

import (
	"context"
	"errors"
	"testing"

	"github.com/sublate/sublate/internal/config"
	"github.com/sublate/sublate/internal/models"
	"github.com/sublate/sublate/internal/storage"
)

func newTestClient(t *testing.T) (*Client, string) {
	t.Helper()
	dir := t.TempDir()
	client, err := NewClient(config.LevelDBConfig{Path: dir})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client, dir
}

func TestTaskRoundTrip(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	task := models.NewTask("https://example.com/watch?v=abc", "zh")
	if err := client.CreateTask(ctx, task); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	got, err := client.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.SourceURL != task.SourceURL || got.Status != models.TaskStatusPending {
		t.Errorf("unexpected record: %+v", got)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	client, _ := newTestClient(t)

	_, err := client.GetTask(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateTaskAtomic(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	task := models.NewTask("https://example.com/watch?v=abc", "zh")
	if err := client.CreateTask(ctx, task); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	updated, err := client.UpdateTask(ctx, task.ID, func(t *models.Task) error {
		t.Status = models.TaskStatusFetching
		t.Progress = 10
		t.Message = "downloading video"
		return nil
	})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.Status != models.TaskStatusFetching || updated.Progress != 10 {
		t.Errorf("mutation not applied: %+v", updated)
	}
	if !updated.UpdatedAt.After(task.UpdatedAt) && !updated.UpdatedAt.Equal(task.UpdatedAt) {
		t.Error("UpdatedAt should move forward on update")
	}

	got, err := client.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Progress != 10 {
		t.Errorf("update not persisted, progress %d", got.Progress)
	}
}

func TestUpdateDeletedTaskConflicts(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	task := models.NewTask("https://example.com/watch?v=abc", "zh")
	if err := client.CreateTask(ctx, task); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := client.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	_, err := client.UpdateTask(ctx, task.ID, func(t *models.Task) error { return nil })
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
}

func TestUpdateMutationErrorLeavesRecord(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	task := models.NewTask("https://example.com/watch?v=abc", "zh")
	if err := client.CreateTask(ctx, task); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	boom := errors.New("boom")
	_, err := client.UpdateTask(ctx, task.ID, func(t *models.Task) error {
		t.Progress = 99
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutation error, got %v", err)
	}

	got, _ := client.GetTask(ctx, task.ID)
	if got.Progress != 0 {
		t.Error("failed mutation must not be persisted")
	}
}

func TestListTasksFiltered(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	batchTask := models.NewTask("https://example.com/watch?v=a", "zh")
	batchTask.BatchID = "batch-1"
	done := models.NewTask("https://example.com/watch?v=b", "zh")
	done.Status = models.TaskStatusCompleted
	plain := models.NewTask("https://example.com/watch?v=c", "zh")

	for _, task := range []*models.Task{batchTask, done, plain} {
		if err := client.CreateTask(ctx, task); err != nil {
			t.Fatalf("create failed: %v", err)
		}
	}

	all, err := client.ListTasks(ctx, storage.TaskFilter{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 tasks, got %d", len(all))
	}

	nonTerminal, err := client.ListTasks(ctx, storage.TaskFilter{NonTerminal: true})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(nonTerminal) != 2 {
		t.Errorf("expected 2 non-terminal tasks, got %d", len(nonTerminal))
	}

	byBatch, err := client.ListTasks(ctx, storage.TaskFilter{BatchID: "batch-1"})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(byBatch) != 1 || byBatch[0].ID != batchTask.ID {
		t.Errorf("unexpected batch filter result: %+v", byBatch)
	}
}

func TestRecordsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	client, err := NewClient(config.LevelDBConfig{Path: dir})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}

	task := models.NewTask("https://example.com/watch?v=abc", "zh")
	task.Checkpoint = models.Checkpoint{
		Stage:     models.StageFetch,
		Artifacts: map[models.Stage]string{models.StageFetch: "/tmp/source.mp4"},
	}
	if err := client.CreateTask(ctx, task); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	batch := models.NewBatch("https://example.com/playlist", "PL1", "Season 1", "zh", 0)
	batch.TaskIDs = []string{task.ID}
	if err := client.CreateBatch(ctx, batch); err != nil {
		t.Fatalf("create batch failed: %v", err)
	}
	client.Close()

	reopened, err := NewClient(config.LevelDBConfig{Path: dir})
	if err != nil {
		t.Fatalf("failed to reopen store: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get after reopen failed: %v", err)
	}
	if !got.Checkpoint.Done(models.StageFetch) {
		t.Error("checkpoint lost across reopen")
	}

	gotBatch, err := reopened.GetBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("get batch after reopen failed: %v", err)
	}
	if len(gotBatch.TaskIDs) != 1 || gotBatch.TaskIDs[0] != task.ID {
		t.Errorf("batch record corrupted across reopen: %+v", gotBatch)
	}
}
