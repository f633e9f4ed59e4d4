// internal/api/handlers/status_handler.go
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sublate/sublate/internal/scheduler"
)

type StatusHandler struct {
	sched *scheduler.Scheduler
}

func NewStatusHandler(sched *scheduler.Scheduler) *StatusHandler {
	return &StatusHandler{
		sched: sched,
	}
}

func (h *StatusHandler) GetSystemStatus(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(h.sched.Stats())
}
