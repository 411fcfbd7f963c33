package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is a MetadataStore backed by an in-process map. It is the
// default backend when no durable store is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[uuid.UUID]JobStoredData
	inited bool
}

// NewMemoryStore creates an empty in-memory metadata store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[uuid.UUID]JobStoredData),
	}
}

// Init marks the store ready. It is idempotent.
func (s *MemoryStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inited = true
	return nil
}

// Inited reports whether Init has been called.
func (s *MemoryStore) Inited(ctx context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inited
}

// Get returns a copy of the stored projection, or nil when unknown.
func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*JobStoredData, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[id]
	if !ok {
		return nil, nil
	}
	return &data, nil
}

// AddOrUpdate upserts the projection keyed by its ID.
func (s *MemoryStore) AddOrUpdate(ctx context.Context, data JobStoredData) error {
	now := time.Now()
	data.LastUpdated = &now

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[data.ID] = data
	return nil
}

// Delete removes the projection for id.
func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// ListNextTicks returns every stored job whose next tick is due or overdue.
func (s *MemoryStore) ListNextTicks(ctx context.Context) ([]JobAndNextTick, error) {
	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ticks := make([]JobAndNextTick, 0, len(s.data))
	for _, data := range s.data {
		if data.NextTick == nil || data.NextTick.After(now) {
			continue
		}
		ticks = append(ticks, JobAndNextTick{
			ID:       data.ID,
			JobType:  data.JobType,
			NextTick: data.NextTick,
			LastTick: data.LastTick,
		})
	}
	return ticks, nil
}

// SetNextAndLastTick updates the tick fields for id.
func (s *MemoryStore) SetNextAndLastTick(ctx context.Context, id uuid.UUID, nextTick, lastTick *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.data[id]
	if !ok {
		return ErrUpdateJobData
	}
	now := time.Now()
	data.NextTick = nextTick
	data.LastTick = lastTick
	data.LastUpdated = &now
	s.data[id] = data
	return nil
}

// TimeTillNextJob returns the gap to the nearest future next tick, or nil
// when nothing is scheduled ahead.
func (s *MemoryStore) TimeTillNextJob(ctx context.Context) (*time.Duration, error) {
	now := time.Now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var min *time.Duration
	for _, data := range s.data {
		if data.NextTick == nil || !data.NextTick.After(now) {
			continue
		}
		gap := data.NextTick.Sub(now)
		if min == nil || gap < *min {
			min = &gap
		}
	}
	return min, nil
}
