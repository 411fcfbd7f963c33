package server

import (
	"fmt"
	"net/http"

	"github.com/tickline/schedcore/internal/config"
	"github.com/tickline/schedcore/pkg/handlers/health"
	"github.com/tickline/schedcore/pkg/handlers/jobs"
	"github.com/tickline/schedcore/pkg/logger"
	"github.com/tickline/schedcore/pkg/middleware"
	"github.com/tickline/schedcore/pkg/scheduler"
)

// Server exposes the scheduler's status over HTTP for host inspection
type Server struct {
	router   *http.ServeMux
	port     string
	logger   *logger.Logger
	handlers struct {
		health *health.Handler
		jobs   *jobs.Handler
	}
}

// New creates a new status server over a running scheduler
func New(cfg *config.Config, sched *scheduler.Scheduler, log *logger.Logger) *Server {
	server := &Server{
		router: http.NewServeMux(),
		port:   cfg.Server.Port,
		logger: log,
	}

	// Initialize handlers
	server.handlers.health = health.NewHandler(sched, log)
	server.handlers.jobs = jobs.NewHandler(sched, log)

	// Setup routes
	server.setupRoutes()

	return server
}

// setupRoutes configures all the status routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.HandleFunc("/health", middleware.RequestLogger(s.logger, s.handlers.health.HealthCheck))

	// Job status endpoints
	s.router.HandleFunc("/api/jobs", middleware.RequestLogger(s.logger, s.handlers.jobs.List))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().
		Str("action", "server_start").
		Str("port", s.port).
		Msg("Starting scheduler status server")

	if err := http.ListenAndServe(":"+s.port, s.router); err != nil {
		return fmt.Errorf("server failed to start on port %s: %w", s.port, err)
	}

	return nil
}
