package health

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/tickline/schedcore/pkg/logger"
	"github.com/tickline/schedcore/pkg/scheduler"
)

// Response is the body of a health check.
type Response struct {
	Status          string        `json:"status"`
	Timestamp       time.Time     `json:"timestamp"`
	Jobs            int           `json:"jobs"`
	TimeTillNextJob time.Duration `json:"time_till_next_job_ms"`
}

// Handler handles health check requests
type Handler struct {
	sched  *scheduler.Scheduler
	logger *logger.Logger
}

// NewHandler creates a new health handler
func NewHandler(sched *scheduler.Scheduler, log *logger.Logger) *Handler {
	return &Handler{
		sched:  sched,
		logger: log,
	}
}

// HealthCheck handles the /health endpoint
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := Response{
		Status:          "ok",
		Timestamp:       time.Now(),
		Jobs:            len(h.sched.ListJobIDs()),
		TimeTillNextJob: h.sched.TimeTillNextJob() / time.Millisecond,
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.logger.Error().
			Err(err).
			Str("action", "health_check_failed").
			Str("endpoint", "/health").
			Msg("Failed to encode health response")
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
