package scheduler

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Registry is the authoritative in-process set of job handles, keyed by
// identifier. Lookups and listings proceed concurrently; structural mutation
// is exclusive with other structural mutation but never blocks an in-flight
// execution, which only touches its own handle.
type Registry struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*Job
}

// NewRegistry creates an empty job registry.
func NewRegistry() *Registry {
	return &Registry{
		jobs: make(map[uuid.UUID]*Job),
	}
}

// Add inserts a new job and returns its identifier. Fails with ErrCantAdd
// when the identifier is already registered.
func (r *Registry) Add(job *Job) (uuid.UUID, error) {
	if job == nil {
		return uuid.Nil, fmt.Errorf("%w: nil job", ErrCantAdd)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.id]; exists {
		return uuid.Nil, fmt.Errorf("%w: duplicate job id %s", ErrCantAdd, job.id)
	}
	r.jobs[job.id] = job
	return job.id, nil
}

// Remove deletes the job for id. Fails with ErrCantRemove when the id is
// unknown.
func (r *Registry) Remove(id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[id]; !exists {
		return fmt.Errorf("%w: unknown job id %s", ErrCantRemove, id)
	}
	delete(r.jobs, id)
	return nil
}

// Get returns the shared handle for id, or false when unknown.
func (r *Registry) Get(id uuid.UUID) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	return job, ok
}

// ListIDs returns a point-in-time copy of all registered identifiers.
// Iteration order is unspecified.
func (r *Registry) ListIDs() []uuid.UUID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(r.jobs))
	for id := range r.jobs {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of registered jobs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
