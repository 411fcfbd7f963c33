package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
)

// failingStore implements MetadataStore and fails every data operation.
type failingStore struct {
	MemoryStore
	err   error
	calls int
}

func (f *failingStore) Get(ctx context.Context, id uuid.UUID) (*JobStoredData, error) {
	f.calls++
	return nil, f.err
}

func (f *failingStore) AddOrUpdate(ctx context.Context, data JobStoredData) error {
	f.calls++
	return f.err
}

func TestBreakerStorePassthrough(t *testing.T) {
	inner := NewMemoryStore()
	s := NewBreakerStore(inner, DefaultBreakerConfig())
	ctx := context.Background()

	if err := s.Init(ctx); err != nil {
		t.Fatalf("Failed to initialize wrapped store: %v", err)
	}
	if !s.Inited(ctx) {
		t.Fatal("Expected wrapped store to report initialized")
	}

	id := uuid.New()
	if err := s.AddOrUpdate(ctx, JobStoredData{ID: id, JobType: JobTypeCron, Schedule: "@daily"}); err != nil {
		t.Fatalf("Failed to write through breaker: %v", err)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Failed to read through breaker: %v", err)
	}
	if got == nil || got.Schedule != "@daily" {
		t.Fatalf("Read through breaker returned wrong data: %+v", got)
	}

	next := time.Now().Add(time.Minute)
	if err := s.SetNextAndLastTick(ctx, id, &next, nil); err != nil {
		t.Fatalf("Failed to set ticks through breaker: %v", err)
	}
	gap, err := s.TimeTillNextJob(ctx)
	if err != nil {
		t.Fatalf("Failed to query next job through breaker: %v", err)
	}
	if gap == nil || *gap <= 0 {
		t.Fatalf("Expected positive gap, got %v", gap)
	}

	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Failed to delete through breaker: %v", err)
	}
}

func TestBreakerStoreTripsAfterConsecutiveFailures(t *testing.T) {
	backendErr := errors.New("backend down")
	inner := &failingStore{err: backendErr}
	s := NewBreakerStore(inner, BreakerConfig{
		ConsecutiveFailures: 3,
		OpenTimeout:         time.Minute,
	})
	ctx := context.Background()

	// First failures reach the backend and keep its error
	for i := 0; i < 3; i++ {
		_, err := s.Get(ctx, uuid.New())
		if !errors.Is(err, backendErr) {
			t.Fatalf("Call %d: expected backend error, got: %v", i, err)
		}
	}
	if inner.calls != 3 {
		t.Fatalf("Expected 3 backend calls before tripping, got %d", inner.calls)
	}

	// Breaker is now open: calls fail fast without reaching the backend,
	// mapped onto the store error taxonomy
	_, err := s.Get(ctx, uuid.New())
	if !errors.Is(err, ErrGetJobData) {
		t.Fatalf("Expected ErrGetJobData while open, got: %v", err)
	}
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Fatalf("Expected open-state cause to be preserved, got: %v", err)
	}
	if inner.calls != 3 {
		t.Fatalf("Open breaker should not reach the backend, got %d calls", inner.calls)
	}

	err = s.AddOrUpdate(ctx, JobStoredData{ID: uuid.New()})
	if !errors.Is(err, ErrUpdateJobData) {
		t.Fatalf("Expected ErrUpdateJobData while open, got: %v", err)
	}
}

func TestBreakerStoreRecovers(t *testing.T) {
	backendErr := errors.New("backend down")
	inner := &failingStore{err: backendErr}
	s := NewBreakerStore(inner, BreakerConfig{
		ConsecutiveFailures: 2,
		OpenTimeout:         50 * time.Millisecond,
	})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := s.Get(ctx, uuid.New()); err == nil {
			t.Fatal("Expected failure from backend")
		}
	}

	// Backend comes back while the breaker cools off
	inner.err = nil
	time.Sleep(100 * time.Millisecond)

	// Half-open probe reaches the backend and closes the breaker
	if _, err := s.Get(ctx, uuid.New()); err != nil {
		t.Fatalf("Expected probe to succeed after recovery, got: %v", err)
	}
	if _, err := s.Get(ctx, uuid.New()); err != nil {
		t.Fatalf("Expected breaker to be closed again, got: %v", err)
	}
}
