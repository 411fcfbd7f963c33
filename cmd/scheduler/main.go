package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/tickline/schedcore/internal/config"
	"github.com/tickline/schedcore/pkg/database/pool"
	"github.com/tickline/schedcore/pkg/logger"
	"github.com/tickline/schedcore/pkg/scheduler"
	"github.com/tickline/schedcore/pkg/server"
	"github.com/tickline/schedcore/pkg/store"
)

func main() {
	// Parse command line flags
	var (
		storeName = flag.String("store", "", "Metadata store backend (memory, sqlite, postgres); overrides SCHEDULER_STORE")
		heartbeat = flag.String("heartbeat", "@every 30s", "Schedule for the built-in heartbeat job")
	)
	flag.Parse()

	logger.SetupLogger()
	log := logger.New("schedcore")

	cfg := config.Load()
	if *storeName != "" {
		cfg.Scheduler.Store = *storeName
	}

	metadata, cleanup := buildStore(cfg, log)
	if cfg.Scheduler.BreakerEnabled {
		metadata = store.NewBreakerStore(metadata, store.DefaultBreakerConfig())
	}
	defer cleanup()

	sched := scheduler.New(
		scheduler.WithTickInterval(cfg.Scheduler.TickInterval),
		scheduler.WithStore(metadata),
	)

	// Lifecycle listeners are addressed by opaque identifiers; derive them
	// from human-readable names the same way everywhere.
	heartbeatListener := slug.Make("Heartbeat Watcher")
	sched.Notifier().Register(heartbeatListener, func(jobID uuid.UUID, event scheduler.JobEvent) {
		log.Debug().
			Str("action", "job_event").
			Str("job_id", jobID.String()).
			Str("event", event.String()).
			Msg("Heartbeat lifecycle event")
	})

	sched.SetShutdownHandler(func(ctx context.Context) {
		log.Info().
			Str("action", "shutdown_handler").
			Msg("All jobs drained")
	})

	if err := sched.Start(context.Background()); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	heartbeatJob, err := scheduler.NewCronJob(*heartbeat, func(ctx context.Context) error {
		logger.WithContext(ctx, "heartbeat").Info().
			Str("action", "heartbeat").
			Msg("Scheduler heartbeat")
		return nil
	},
		scheduler.WithOnStarted(heartbeatListener),
		scheduler.WithOnDone(heartbeatListener),
		scheduler.WithExtra([]byte(slug.Make("Built-in Heartbeat"))),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build heartbeat job")
	}
	if _, err := sched.Add(heartbeatJob); err != nil {
		log.Fatal().Err(err).Msg("Failed to register heartbeat job")
	}

	// Status server runs beside the engine; failures there must not take
	// the scheduler down.
	srv := server.New(cfg, sched, log)
	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("Status server stopped")
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Str("action", "signal_received").Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sched.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown sweep failed")
	}
	sched.Stop(shutdownCtx)
}

// buildStore constructs the configured metadata backend. The returned
// cleanup releases backend resources after the scheduler stops.
func buildStore(cfg *config.Config, log *logger.Logger) (store.MetadataStore, func()) {
	switch cfg.Scheduler.Store {
	case "postgres":
		dbPool, err := pool.New(context.Background(), cfg.DatabaseURL(), nil)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		pg, err := store.NewPostgresStore(dbPool, store.PostgresConfig{
			Table:       cfg.Scheduler.Table,
			CreateTable: cfg.Scheduler.InitMetadata,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to build postgres store")
		}
		return pg, dbPool.Close
	case "sqlite":
		st, err := store.NewSQLiteStore(store.SQLiteConfig{
			Path:        cfg.Scheduler.SQLitePath,
			Table:       cfg.Scheduler.Table,
			BusyTimeout: 5 * time.Second,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to build sqlite store")
		}
		return st, func() { _ = st.Close() }
	default:
		return store.NewMemoryStore(), func() {}
	}
}
