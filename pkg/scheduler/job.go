package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tickline/schedcore/pkg/store"
)

// ExecutionFunc is the host-supplied work a job performs when due. The engine
// logs a returned error but does not retry; the schedule decides when the job
// fires again.
type ExecutionFunc func(ctx context.Context) error

// Job is a unit of schedulable work. Handles are owned by the registry and
// shared between the tick loop, execution goroutines, and host calls; all
// state access goes through the handle's own locks.
type Job struct {
	id uuid.UUID

	// runMu is held for the entire duration of one execution. The tick loop
	// acquires it with TryLock so a job still running from a prior cycle is
	// skipped, never re-entered.
	runMu sync.Mutex

	// mu guards every field below.
	mu        sync.Mutex
	jobType   store.JobType
	cron      *CronSchedule // cron jobs
	every     time.Duration // interval jobs
	repeating bool          // interval jobs: repeat indefinitely
	remaining uint32        // interval jobs: firings left when not repeating
	runCount  uint32
	ran       bool
	stopped   bool
	lastTick  *time.Time
	nextTick  *time.Time
	onStarted map[string]struct{}
	onDone    map[string]struct{}
	extra     []byte
	execute   ExecutionFunc
}

// JobOption customizes a job at construction.
type JobOption func(*Job)

// WithExtra attaches an opaque payload the engine stores but never interprets.
func WithExtra(extra []byte) JobOption {
	return func(j *Job) { j.extra = extra }
}

// WithOnStarted registers listener identifiers notified when an execution
// starts.
func WithOnStarted(listenerIDs ...string) JobOption {
	return func(j *Job) {
		for _, id := range listenerIDs {
			j.onStarted[id] = struct{}{}
		}
	}
}

// WithOnDone registers listener identifiers notified when an execution
// completes.
func WithOnDone(listenerIDs ...string) JobOption {
	return func(j *Job) {
		for _, id := range listenerIDs {
			j.onDone[id] = struct{}{}
		}
	}
}

// WithRepeatLimit bounds a repeating job to n firings, after which it is
// retired. Ignored for cron jobs.
func WithRepeatLimit(n uint32) JobOption {
	return func(j *Job) {
		if j.jobType == store.JobTypeCron {
			return
		}
		j.repeating = false
		j.remaining = n
		if n == 1 {
			j.jobType = store.JobTypeOneShot
		}
	}
}

func newJob(execute ExecutionFunc, opts []JobOption) (*Job, error) {
	if execute == nil {
		return nil, fmt.Errorf("%w: execution function is required", ErrCantAdd)
	}
	j := &Job{
		id:        uuid.New(),
		onStarted: make(map[string]struct{}),
		onDone:    make(map[string]struct{}),
		execute:   execute,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// NewCronJob creates a job driven by a cron expression, e.g. "0 9 * * 1-5"
// or "@every 30s".
func NewCronJob(expr string, execute ExecutionFunc, opts ...JobOption) (*Job, error) {
	sched, err := NewCronSchedule(expr)
	if err != nil {
		return nil, err
	}
	j, err := newJob(execute, nil)
	if err != nil {
		return nil, err
	}
	j.jobType = store.JobTypeCron
	j.cron = sched
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// NewRepeatingJob creates a job that fires every interval, indefinitely
// unless bounded with WithRepeatLimit.
func NewRepeatingJob(every time.Duration, execute ExecutionFunc, opts ...JobOption) (*Job, error) {
	if every <= 0 {
		return nil, fmt.Errorf("%w: repeat interval must be positive", ErrCantAdd)
	}
	j, err := newJob(execute, nil)
	if err != nil {
		return nil, err
	}
	j.jobType = store.JobTypeRepeated
	j.every = every
	j.repeating = true
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// NewOneShotJob creates a job that fires once after delay and is then
// retired.
func NewOneShotJob(delay time.Duration, execute ExecutionFunc, opts ...JobOption) (*Job, error) {
	j, err := NewRepeatingJob(delay, execute, opts...)
	if err != nil {
		return nil, err
	}
	WithRepeatLimit(1)(j)
	return j, nil
}

// ID returns the job's immutable identifier.
func (j *Job) ID() uuid.UUID {
	return j.id
}

// Type returns the schedule kind.
func (j *Job) Type() store.JobType {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.jobType
}

// ScheduleText returns the cron expression for cron jobs or the interval for
// interval jobs, for display.
func (j *Job) ScheduleText() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.cron != nil {
		return j.cron.Expression()
	}
	return "@every " + j.every.String()
}

// RunCount returns how many executions have fired.
func (j *Job) RunCount() uint32 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.runCount
}

// Ran reports whether the job has executed at least once.
func (j *Job) Ran() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.ran
}

// Stopped reports whether the job has been stopped.
func (j *Job) Stopped() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.stopped
}

// NextTick returns the next planned firing, or nil when the schedule is
// exhausted.
func (j *Job) NextTick() *time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.nextTick
}

// LastTick returns the most recent firing, or nil before the first one.
func (j *Job) LastTick() *time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastTick
}

// Extra returns the host's opaque payload.
func (j *Job) Extra() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.extra
}

// setStopped marks the job excluded from future due-checks.
func (j *Job) setStopped() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.stopped = true
}

// initNextTick seeds the first planned firing at registration time.
func (j *Job) initNextTick(now time.Time) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if next, ok := j.nextOccurrence(now); ok {
		j.nextTick = &next
	} else {
		j.nextTick = nil
	}
}

// StoredData returns the persistence-facing projection of the job. The
// execution closure and listener callbacks never cross the store boundary.
func (j *Job) StoredData() store.JobStoredData {
	j.mu.Lock()
	defer j.mu.Unlock()

	data := store.JobStoredData{
		ID:       j.id,
		LastTick: j.lastTick,
		NextTick: j.nextTick,
		JobType:  j.jobType,
		Count:    j.runCount,
		Ran:      j.ran,
		Stopped:  j.stopped,
		Extra:    j.extra,
	}
	if j.cron != nil {
		data.Schedule = j.cron.Expression()
	} else {
		data.Repeating = j.repeating
		data.RepeatedEvery = j.every
	}
	return data
}

// listenerSnapshot copies the listener sets so notification dispatch works on
// a stable view.
func (j *Job) listenerSnapshot() (started, done []string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	for id := range j.onStarted {
		started = append(started, id)
	}
	for id := range j.onDone {
		done = append(done, id)
	}
	return started, done
}
