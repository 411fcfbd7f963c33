package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store operation errors. Implementations wrap backend-specific failures in
// these so callers can classify without knowing the backend.
var (
	// ErrCantInit is returned when a store fails to initialize. It is terminal
	// for the store instance until a subsequent Init succeeds.
	ErrCantInit = errors.New("store: cannot initialize")

	// ErrCantAdd is returned when an upsert cannot be performed.
	ErrCantAdd = errors.New("store: cannot add job data")

	// ErrCantRemove is returned when a delete cannot be performed.
	ErrCantRemove = errors.New("store: cannot remove job data")

	// ErrGetJobData is returned when job data cannot be read.
	ErrGetJobData = errors.New("store: cannot get job data")

	// ErrUpdateJobData is returned when job data cannot be written.
	ErrUpdateJobData = errors.New("store: cannot update job data")

	// ErrCantListNextTicks is returned when the due-job scan fails.
	ErrCantListNextTicks = errors.New("store: cannot list next ticks")

	// ErrTimeTillNextJob is returned when the nearest-tick query fails.
	ErrTimeTillNextJob = errors.New("store: cannot get time until next job")
)

// JobType discriminates the schedule kind of a stored job.
type JobType int

const (
	// JobTypeCron marks a job driven by a cron expression.
	JobTypeCron JobType = iota
	// JobTypeRepeated marks a job driven by a fixed interval.
	JobTypeRepeated
	// JobTypeOneShot marks an interval job that fires once and retires.
	JobTypeOneShot
)

// String returns a human-readable name for the job type.
func (t JobType) String() string {
	switch t {
	case JobTypeCron:
		return "cron"
	case JobTypeRepeated:
		return "repeated"
	case JobTypeOneShot:
		return "one_shot"
	default:
		return "unknown"
	}
}

// JobStoredData is the persistence-facing projection of a job. It is the only
// representation that crosses the store boundary; the execution closure and
// other engine-local state are never persisted.
type JobStoredData struct {
	ID          uuid.UUID
	LastUpdated *time.Time
	LastTick    *time.Time
	NextTick    *time.Time
	JobType     JobType
	Count       uint32
	Ran         bool
	Stopped     bool

	// Schedule holds the cron expression for cron jobs.
	Schedule string
	// Repeating and RepeatedEvery describe interval jobs.
	Repeating     bool
	RepeatedEvery time.Duration

	// Extra is an opaque payload owned by the host.
	Extra []byte
}

// JobAndNextTick is a minimal projection used for bulk due-job scans without
// materializing full job state.
type JobAndNextTick struct {
	ID       uuid.UUID
	JobType  JobType
	NextTick *time.Time
	LastTick *time.Time
}

// MetadataStore is the contract a metadata backend must satisfy. The engine
// issues calls concurrently without external serialization; implementations
// must serialize internally if their backend requires it. All operations are
// best-effort from the engine's point of view: failures are logged by the
// caller and never halt scheduling, except during Init.
type MetadataStore interface {
	// Init lazily initializes the backend. It must be idempotent: safe to
	// call repeatedly and a no-op once Inited reports true.
	Init(ctx context.Context) error

	// Inited reports whether Init has completed successfully.
	Inited(ctx context.Context) bool

	// Get returns the stored projection for id, or nil when unknown.
	Get(ctx context.Context, id uuid.UUID) (*JobStoredData, error)

	// AddOrUpdate upserts the projection keyed by its ID.
	AddOrUpdate(ctx context.Context, data JobStoredData) error

	// Delete removes the projection for id. Deleting an unknown id is not an
	// error.
	Delete(ctx context.Context, id uuid.UUID) error

	// ListNextTicks returns all jobs whose next tick is set and already due
	// (earlier than now).
	ListNextTicks(ctx context.Context) ([]JobAndNextTick, error)

	// SetNextAndLastTick updates just the tick columns for id. A nil next
	// tick marks the job exhausted.
	SetNextAndLastTick(ctx context.Context, id uuid.UUID, nextTick, lastTick *time.Time) error

	// TimeTillNextJob returns the minimum positive gap between now and the
	// nearest future next tick, or nil when no job has one.
	TimeTillNextJob(ctx context.Context) (*time.Duration, error)
}
