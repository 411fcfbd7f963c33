package jobs

import (
	"encoding/json"
	"net/http"

	"github.com/tickline/schedcore/pkg/logger"
	"github.com/tickline/schedcore/pkg/scheduler"
)

// Handler serves job status requests
type Handler struct {
	sched  *scheduler.Scheduler
	logger *logger.Logger
}

// NewHandler creates a new jobs handler
func NewHandler(sched *scheduler.Scheduler, log *logger.Logger) *Handler {
	return &Handler{
		sched:  sched,
		logger: log,
	}
}

// List handles the /api/jobs endpoint with status snapshots of every
// registered job
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	statuses := h.sched.JobStatuses()

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(statuses); err != nil {
		h.logger.Error().
			Err(err).
			Str("action", "jobs_list_failed").
			Str("endpoint", "/api/jobs").
			Msg("Failed to encode job statuses")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
