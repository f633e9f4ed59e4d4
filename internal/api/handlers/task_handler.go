// internal/api/handlers/task_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sublate/sublate/internal/models"
	"github.com/sublate/sublate/internal/scheduler"
	"github.com/sublate/sublate/internal/storage"
)

type TaskHandler struct {
	store       storage.Store
	sched       *scheduler.Scheduler
	defaultLang string
}

func NewTaskHandler(store storage.Store, sched *scheduler.Scheduler, defaultLang string) *TaskHandler {
	return &TaskHandler{
		store:       store,
		sched:       sched,
		defaultLang: defaultLang,
	}
}

type createTaskRequest struct {
	URL            string `json:"url"`
	TargetLanguage string `json:"target_language"`
}

type taskStatusResponse struct {
	TaskID   string             `json:"task_id"`
	Status   models.TaskStatus  `json:"status"`
	Progress int                `json:"progress"`
	Message  string             `json:"message"`
	Result   *models.TaskResult `json:"result,omitempty"`
	Error    *models.TaskError  `json:"error,omitempty"`
}

func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}
	if req.TargetLanguage == "" {
		req.TargetLanguage = h.defaultLang
	}

	task := models.NewTask(req.URL, req.TargetLanguage)
	if err := h.store.CreateTask(r.Context(), task); err != nil {
		http.Error(w, "failed to create task", http.StatusInternalServerError)
		return
	}

	if err := h.sched.Submit(task.ID); err != nil {
		http.Error(w, "failed to queue task", http.StatusServiceUnavailable)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"task_id": task.ID})
}

func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	task, err := h.store.GetTask(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "task not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load task", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(taskStatusResponse{
		TaskID:   task.ID,
		Status:   task.Status,
		Progress: task.Progress,
		Message:  task.Message,
		Result:   task.Result,
		Error:    task.Error,
	})
}

func (h *TaskHandler) CancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	accepted, err := h.sched.Cancel(r.Context(), taskID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "task not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to cancel task", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]bool{"accepted": accepted})
}
