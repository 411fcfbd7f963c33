package scheduler

import "errors"

var (
	// ErrCantAdd is returned when a job cannot be inserted into the
	// registry, typically because its identifier is already taken.
	ErrCantAdd = errors.New("scheduler: cannot add job")

	// ErrCantRemove is returned when a job cannot be removed from the
	// registry, typically because the identifier is unknown.
	ErrCantRemove = errors.New("scheduler: cannot remove job")

	// ErrNoNextTick identifies the exhausted-schedule condition: a schedule
	// that yields no further occurrence. It marks retirement, not a fault.
	ErrNoNextTick = errors.New("scheduler: no next tick")

	// ErrShutdownNotifier is returned when a shutdown callback cannot be
	// delivered.
	ErrShutdownNotifier = errors.New("scheduler: shutdown notifier failed")
)
