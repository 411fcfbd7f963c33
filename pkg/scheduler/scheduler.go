package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tickline/schedcore/pkg/logger"
	"github.com/tickline/schedcore/pkg/store"
)

// DefaultTickInterval is how often the engine scans for due jobs.
const DefaultTickInterval = 500 * time.Millisecond

// storeCallTimeout bounds each best-effort persistence call so a hung
// backend cannot pile up goroutines forever.
const storeCallTimeout = 10 * time.Second

// Scheduler drives the tick loop: it scans the registry, fires due jobs,
// persists resulting state through the metadata store, and dispatches
// lifecycle notifications. It is embedded inside a host process; the host
// owns the process lifetime and supplies job logic as closures.
//
// The tick loop never blocks on job execution, persistence, or notification
// delivery; all three run on their own goroutines.
type Scheduler struct {
	registry *Registry
	notifier *Notifier
	metadata store.MetadataStore
	logger   *logger.Logger

	tickInterval time.Duration

	// mu guards the shutdown handler slot and loop lifecycle state.
	mu         sync.Mutex
	shutdownFn func(context.Context)
	started    bool
	stopCh     chan struct{}
	wg         sync.WaitGroup
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithTickInterval overrides the due-job scan period.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithStore attaches a metadata store. Persistence is best-effort: store
// failures are logged and never halt scheduling; in-memory state stays
// authoritative for the running process.
func WithStore(st store.MetadataStore) Option {
	return func(s *Scheduler) { s.metadata = st }
}

// New creates a scheduler. Without WithStore it runs purely in memory.
func New(opts ...Option) *Scheduler {
	s := &Scheduler{
		registry:     NewRegistry(),
		notifier:     NewNotifier(),
		logger:       logger.New("scheduler"),
		tickInterval: DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Notifier returns the dispatcher hosts use to register lifecycle listeners.
func (s *Scheduler) Notifier() *Notifier {
	return s.notifier
}

// Start initializes the metadata store when needed and launches the tick
// loop. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil
	}

	if s.metadata != nil && !s.metadata.Inited(ctx) {
		if err := s.metadata.Init(ctx); err != nil {
			return err
		}
	}

	s.stopCh = make(chan struct{})
	s.started = true
	s.wg.Add(1)
	go s.tickLoop(s.stopCh)

	s.logger.Info().
		Str("action", "scheduler_start").
		Dur("tick_interval", s.tickInterval).
		Bool("persistent", s.metadata != nil).
		Msg("Scheduler started")
	return nil
}

// Stop halts the tick loop. Executions already in flight run to completion;
// registered jobs stay in the registry and resume on the next Start.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	s.started = false
	s.mu.Unlock()

	s.wg.Wait()
	s.logger.Info().
		Str("action", "scheduler_stop").
		Msg("Scheduler stopped")
}

// Add registers a job, seeds its first planned firing, and returns its
// identifier.
func (s *Scheduler) Add(job *Job) (uuid.UUID, error) {
	if job == nil {
		return uuid.Nil, ErrCantAdd
	}
	job.initNextTick(time.Now().UTC())

	id, err := s.registry.Add(job)
	if err != nil {
		return uuid.Nil, err
	}
	s.persistAsync("add", job.StoredData())

	s.logger.Info().
		Str("action", "job_add").
		Str("job_id", id.String()).
		Str("job_type", job.Type().String()).
		Str("schedule", job.ScheduleText()).
		Msg("Job registered")
	return id, nil
}

// Remove deletes the job from the registry. An in-flight execution is not
// cancelled; it finishes on its own goroutine while the job is already gone
// from future ticks.
func (s *Scheduler) Remove(id uuid.UUID) error {
	if err := s.registry.Remove(id); err != nil {
		return err
	}
	s.deleteAsync(id)

	s.logger.Info().
		Str("action", "job_remove").
		Str("job_id", id.String()).
		Msg("Job removed")
	return nil
}

// StopJob marks the job stopped. It is excluded from due-checks immediately
// and swept out of the registry on the following tick.
func (s *Scheduler) StopJob(id uuid.UUID) error {
	job, ok := s.registry.Get(id)
	if !ok {
		return ErrCantRemove
	}
	job.setStopped()
	s.persistAsync("stop", job.StoredData())
	return nil
}

// Get returns the shared handle for id.
func (s *Scheduler) Get(id uuid.UUID) (*Job, bool) {
	return s.registry.Get(id)
}

// ListJobIDs returns a snapshot of all registered job identifiers.
func (s *Scheduler) ListJobIDs() []uuid.UUID {
	return s.registry.ListIDs()
}

// SetShutdownHandler registers the callback invoked after a shutdown sweep.
// The slot holds a single handler; setting a new one replaces the previous.
func (s *Scheduler) SetShutdownHandler(fn func(context.Context)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdownFn = fn
}

// RemoveShutdownHandler clears the shutdown callback slot.
func (s *Scheduler) RemoveShutdownHandler() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shutdownFn = nil
}

// Shutdown removes every registered job, then fires the shutdown handler at
// most once per registration. The handler runs on its own goroutine; the
// caller is never blocked on it. A second Shutdown still clears any jobs
// added since, but the handler does not fire again until re-registered.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	for _, id := range s.registry.ListIDs() {
		if err := s.registry.Remove(id); err != nil {
			// Vanished between snapshot and removal.
			continue
		}
		s.deleteAsync(id)
	}

	s.mu.Lock()
	fn := s.shutdownFn
	s.shutdownFn = nil
	s.mu.Unlock()

	if fn != nil {
		go func() {
			fn(ctx)
			s.logger.Info().
				Str("action", "shutdown_handler_done").
				Msg("Shutdown handler completed")
		}()
	}

	s.logger.Info().
		Str("action", "scheduler_shutdown").
		Msg("Scheduler shut down")
	return nil
}

// TimeTillNextJob returns the gap to the nearest upcoming firing across all
// registered, non-stopped jobs. With nothing scheduled it returns the tick
// interval so callers still wake periodically to notice newly added jobs.
func (s *Scheduler) TimeTillNextJob() time.Duration {
	now := time.Now().UTC()

	var min *time.Duration
	for _, id := range s.registry.ListIDs() {
		job, ok := s.registry.Get(id)
		if !ok || job.Stopped() {
			continue
		}
		next, ok := job.NextOccurrence(now)
		if !ok {
			continue
		}
		gap := next.Sub(now)
		if gap <= 0 {
			continue
		}
		if min == nil || gap < *min {
			min = &gap
		}
	}
	if min == nil {
		return s.tickInterval
	}
	return *min
}

func (s *Scheduler) tickLoop(stopCh chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case now := <-ticker.C:
			s.tick(now.UTC())
		}
	}
}

// tick runs one due-job scan. Failures are per-job: a bad job never aborts
// the rest of the cycle or the loop.
func (s *Scheduler) tick(now time.Time) {
	for _, id := range s.registry.ListIDs() {
		job, ok := s.registry.Get(id)
		if !ok {
			// Removed since the snapshot.
			continue
		}

		// Lock-and-check: holding runMu for the whole execution is what
		// makes "already running" testable and settable in one step.
		if !job.runMu.TryLock() {
			continue
		}

		job.mu.Lock()
		if job.stopped {
			job.mu.Unlock()
			job.runMu.Unlock()
			s.retire(id, "stopped")
			continue
		}
		if job.nextTick == nil {
			job.mu.Unlock()
			job.runMu.Unlock()
			s.retire(id, "exhausted")
			continue
		}
		if job.nextTick.After(now) {
			job.mu.Unlock()
			job.runMu.Unlock()
			continue
		}

		// Due: bookkeeping happens before the execution goroutine is
		// released so a concurrent observer always sees consistent state.
		fire := now
		job.ran = true
		job.runCount++
		if job.cron == nil && !job.repeating && job.remaining > 0 {
			job.remaining--
		}
		job.lastTick = &fire
		if next, ok := job.nextOccurrence(fire); ok {
			job.nextTick = &next
		} else {
			job.nextTick = nil
		}
		exhausted := job.nextTick == nil
		job.mu.Unlock()

		data := job.StoredData()
		started, done := job.listenerSnapshot()
		s.persistAsync("update", data)

		go s.runJob(job, started, done, exhausted)
	}
}

// runJob owns one execution: started notification, the host closure, done
// notification, release of the running flag, and retirement when the
// schedule is exhausted.
func (s *Scheduler) runJob(job *Job, started, done []string, exhausted bool) {
	defer job.runMu.Unlock()

	id := job.ID()
	requestID := uuid.New().String()
	jobLogger := s.logger.WithRequestID(requestID).WithJob(id.String(), job.Type().String())
	ctx := jobLogger.ToContext(context.Background())

	s.notifier.Notify(id, EventStarted, started)
	jobLogger.LogJobStart(id.String(), job.ScheduleText())

	start := time.Now()
	err := job.execute(ctx)
	jobLogger.LogJobComplete(id.String(), time.Since(start), job.RunCount(), err)

	s.notifier.Notify(id, EventDone, done)

	if exhausted {
		if removeErr := s.registry.Remove(id); removeErr == nil {
			s.deleteAsync(id)
			jobLogger.Info().
				Str("action", "job_retire").
				Str("job_id", id.String()).
				Str("reason", "exhausted").
				Msg("Job retired")
		}
	}
}

// retire removes a stopped or exhausted job outside the hot path.
func (s *Scheduler) retire(id uuid.UUID, reason string) {
	go func() {
		if err := s.registry.Remove(id); err != nil {
			return
		}
		s.deleteAsync(id)
		s.logger.Info().
			Str("action", "job_retire").
			Str("job_id", id.String()).
			Str("reason", reason).
			Msg("Job retired")
	}()
}

// persistAsync upserts the projection on its own goroutine. Best-effort:
// a failing store is logged and scheduling continues on in-memory state.
func (s *Scheduler) persistAsync(op string, data store.JobStoredData) {
	if s.metadata == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeCallTimeout)
		defer cancel()

		start := time.Now()
		err := s.metadata.AddOrUpdate(ctx, data)
		s.logger.LogStoreOperation(op, data.ID.String(), time.Since(start), err)
	}()
}

// deleteAsync removes the projection on its own goroutine, best-effort.
func (s *Scheduler) deleteAsync(id uuid.UUID) {
	if s.metadata == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeCallTimeout)
		defer cancel()

		start := time.Now()
		err := s.metadata.Delete(ctx, id)
		s.logger.LogStoreOperation("delete", id.String(), time.Since(start), err)
	}()
}
