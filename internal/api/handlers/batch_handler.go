// internal/api/handlers/batch_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sublate/sublate/internal/batch"
	"github.com/sublate/sublate/internal/models"
	"github.com/sublate/sublate/internal/pipeline"
	"github.com/sublate/sublate/internal/storage"
)

type BatchHandler struct {
	coord       *batch.Coordinator
	defaultLang string
}

func NewBatchHandler(coord *batch.Coordinator, defaultLang string) *BatchHandler {
	return &BatchHandler{
		coord:       coord,
		defaultLang: defaultLang,
	}
}

type checkCollectionRequest struct {
	URL string `json:"url"`
}

type collectionInfo struct {
	CollectionID string           `json:"collection_id"`
	Title        string           `json:"title"`
	Uploader     string           `json:"uploader,omitempty"`
	VideoCount   int              `json:"video_count"`
	Items        []collectionItem `json:"items"`
}

type collectionItem struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Duration int    `json:"duration,omitempty"`
}

type createBatchRequest struct {
	URL            string `json:"url"`
	TargetLanguage string `json:"target_language"`
	MaxItems       int    `json:"max_items"`
}

type childTaskSummary struct {
	TaskID   string             `json:"task_id"`
	Title    string             `json:"title,omitempty"`
	URL      string             `json:"url"`
	Status   models.TaskStatus  `json:"status"`
	Progress int                `json:"progress"`
	Message  string             `json:"message,omitempty"`
	Result   *models.TaskResult `json:"result,omitempty"`
}

type batchResponse struct {
	BatchID         string             `json:"batch_id"`
	CollectionTitle string             `json:"collection_title"`
	Status          models.BatchStatus `json:"status"`
	Total           int                `json:"total"`
	CompletedCount  int                `json:"completed_count"`
	FailedCount     int                `json:"failed_count"`
	ProcessingCount int                `json:"processing_count"`
	CancelledCount  int                `json:"cancelled_count"`
	OverallProgress int                `json:"overall_progress"`
	ChildTasks      []childTaskSummary `json:"child_tasks"`
}

func (h *BatchHandler) CheckCollection(w http.ResponseWriter, r *http.Request) {
	var req checkCollectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}

	col, err := h.coord.CheckCollection(r.Context(), req.URL)
	if err != nil {
		http.Error(w, "failed to check collection", http.StatusBadGateway)
		return
	}

	resp := struct {
		IsCollection   bool            `json:"is_collection"`
		CollectionInfo *collectionInfo `json:"collection_info,omitempty"`
	}{}
	if col != nil {
		resp.IsCollection = true
		resp.CollectionInfo = toCollectionInfo(col)
	}
	json.NewEncoder(w).Encode(resp)
}

func (h *BatchHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.URL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}
	if req.MaxItems < 0 {
		http.Error(w, "max_items must not be negative", http.StatusBadRequest)
		return
	}
	if req.TargetLanguage == "" {
		req.TargetLanguage = h.defaultLang
	}

	view, err := h.coord.CreateBatch(r.Context(), req.URL, req.TargetLanguage, req.MaxItems)
	if err != nil {
		var resErr *pipeline.ResolutionError
		if errors.Is(err, pipeline.ErrNotCollection) || errors.As(err, &resErr) {
			http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		http.Error(w, "failed to create batch", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(toBatchResponse(view))
}

func (h *BatchHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")

	view, err := h.coord.GetBatch(r.Context(), batchID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "batch not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to load batch", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(toBatchResponse(view))
}

func (h *BatchHandler) CancelBatch(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "id")

	accepted, err := h.coord.CancelBatch(r.Context(), batchID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.Error(w, "batch not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to cancel batch", http.StatusInternalServerError)
		return
	}

	json.NewEncoder(w).Encode(map[string]bool{"accepted": accepted})
}

func toCollectionInfo(col *pipeline.Collection) *collectionInfo {
	info := &collectionInfo{
		CollectionID: col.ID,
		Title:        col.Title,
		Uploader:     col.Uploader,
		VideoCount:   len(col.Items),
	}
	for _, item := range col.Items {
		info.Items = append(info.Items, collectionItem{
			Index:    item.Index,
			ID:       item.ID,
			Title:    item.Title,
			URL:      item.URL,
			Duration: item.Duration,
		})
	}
	return info
}

func toBatchResponse(view *models.BatchView) batchResponse {
	resp := batchResponse{
		BatchID:         view.ID,
		CollectionTitle: view.CollectionTitle,
		Status:          view.Status,
		Total:           view.Total,
		CompletedCount:  view.CompletedCount,
		FailedCount:     view.FailedCount,
		ProcessingCount: view.ProcessingCount,
		CancelledCount:  view.CancelledCount,
		OverallProgress: view.OverallProgress,
	}
	for _, task := range view.Tasks {
		resp.ChildTasks = append(resp.ChildTasks, childTaskSummary{
			TaskID:   task.ID,
			Title:    task.Title,
			URL:      task.SourceURL,
			Status:   task.Status,
			Progress: task.Progress,
			Message:  task.Message,
			Result:   task.Result,
		})
	}
	return resp
}
