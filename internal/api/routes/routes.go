// internal/api/routes/routes.go
package routes

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sublate/sublate/internal/api/handlers"
	"github.com/sublate/sublate/internal/batch"
	"github.com/sublate/sublate/internal/config"
	"github.com/sublate/sublate/internal/scheduler"
	"github.com/sublate/sublate/internal/storage"
)

func SetupRouter(cfg *config.Config, store storage.Store, sched *scheduler.Scheduler, coord *batch.Coordinator) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			next.ServeHTTP(w, r)
		})
	})

	// Initialize handlers
	taskHandler := handlers.NewTaskHandler(store, sched, cfg.Pipeline.TargetLanguage)
	batchHandler := handlers.NewBatchHandler(coord, cfg.Pipeline.TargetLanguage)
	statusHandler := handlers.NewStatusHandler(sched)

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Collection classification
		r.Post("/collections/check", batchHandler.CheckCollection)

		// Task endpoints
		r.Route("/tasks", func(r chi.Router) {
			r.Post("/", taskHandler.CreateTask)
			r.Get("/{id}", taskHandler.GetTask)
			r.Post("/{id}/cancel", taskHandler.CancelTask)
		})

		// Batch endpoints
		r.Route("/batches", func(r chi.Router) {
			r.Post("/", batchHandler.CreateBatch)
			r.Get("/{id}", batchHandler.GetBatch)
			r.Post("/{id}/cancel", batchHandler.CancelBatch)
		})

		// System Status endpoint
		r.Get("/system/status", statusHandler.GetSystemStatus)
	})

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})

	return r
}
