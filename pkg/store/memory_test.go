package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemoryStoreInit(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if s.Inited(ctx) {
		t.Fatal("Expected fresh store to report not initialized")
	}

	if err := s.Init(ctx); err != nil {
		t.Fatalf("Failed to initialize store: %v", err)
	}
	if !s.Inited(ctx) {
		t.Fatal("Expected store to report initialized after Init")
	}

	// Init must be idempotent
	if err := s.Init(ctx); err != nil {
		t.Fatalf("Second Init should be a no-op, got: %v", err)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	next := time.Now().Add(time.Hour)

	tests := []struct {
		name string
		data JobStoredData
	}{
		{
			name: "cron job",
			data: JobStoredData{
				ID:       uuid.New(),
				JobType:  JobTypeCron,
				Schedule: "0 */5 * * * *",
				NextTick: &next,
				Extra:    []byte("payload"),
			},
		},
		{
			name: "repeated job",
			data: JobStoredData{
				ID:            uuid.New(),
				JobType:       JobTypeRepeated,
				Repeating:     true,
				RepeatedEvery: 30 * time.Second,
				Count:         3,
				Ran:           true,
				NextTick:      &next,
			},
		},
		{
			name: "one-shot job",
			data: JobStoredData{
				ID:            uuid.New(),
				JobType:       JobTypeOneShot,
				RepeatedEvery: 10 * time.Second,
				Stopped:       true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := s.AddOrUpdate(ctx, tt.data); err != nil {
				t.Fatalf("Failed to store job data: %v", err)
			}

			got, err := s.Get(ctx, tt.data.ID)
			if err != nil {
				t.Fatalf("Failed to read job data back: %v", err)
			}
			if got == nil {
				t.Fatal("Expected stored job data, got nil")
			}
			if got.LastUpdated == nil {
				t.Fatal("Expected AddOrUpdate to stamp LastUpdated")
			}
			if got.JobType != tt.data.JobType {
				t.Fatalf("Job type mismatch: got %v, want %v", got.JobType, tt.data.JobType)
			}
			if got.Schedule != tt.data.Schedule {
				t.Fatalf("Schedule mismatch: got %q, want %q", got.Schedule, tt.data.Schedule)
			}
			if got.RepeatedEvery != tt.data.RepeatedEvery {
				t.Fatalf("Interval mismatch: got %v, want %v", got.RepeatedEvery, tt.data.RepeatedEvery)
			}
			if got.Count != tt.data.Count || got.Ran != tt.data.Ran || got.Stopped != tt.data.Stopped {
				t.Fatalf("Counter state mismatch: got %+v", got)
			}
			if string(got.Extra) != string(tt.data.Extra) {
				t.Fatalf("Extra mismatch: got %q, want %q", got.Extra, tt.data.Extra)
			}
		})
	}
}

func TestMemoryStoreGetUnknown(t *testing.T) {
	s := NewMemoryStore()

	got, err := s.Get(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("Get on unknown id should not error, got: %v", err)
	}
	if got != nil {
		t.Fatalf("Expected nil for unknown id, got %+v", got)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id := uuid.New()

	if err := s.AddOrUpdate(ctx, JobStoredData{ID: id, JobType: JobTypeCron}); err != nil {
		t.Fatalf("Failed to store job data: %v", err)
	}
	if err := s.Delete(ctx, id); err != nil {
		t.Fatalf("Failed to delete job data: %v", err)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get after delete failed: %v", err)
	}
	if got != nil {
		t.Fatal("Expected job data to be gone after delete")
	}

	// Deleting an unknown id is not an error
	if err := s.Delete(ctx, uuid.New()); err != nil {
		t.Fatalf("Delete on unknown id should not error, got: %v", err)
	}
}

func TestMemoryStoreSetNextAndLastTick(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	id := uuid.New()

	if err := s.AddOrUpdate(ctx, JobStoredData{ID: id, JobType: JobTypeRepeated, Repeating: true}); err != nil {
		t.Fatalf("Failed to store job data: %v", err)
	}

	next := time.Now().Add(time.Minute)
	last := time.Now()
	if err := s.SetNextAndLastTick(ctx, id, &next, &last); err != nil {
		t.Fatalf("Failed to set ticks: %v", err)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Failed to read job data back: %v", err)
	}
	if got.NextTick == nil || !got.NextTick.Equal(next) {
		t.Fatalf("Next tick not reflected: got %v, want %v", got.NextTick, next)
	}
	if got.LastTick == nil || !got.LastTick.Equal(last) {
		t.Fatalf("Last tick not reflected: got %v, want %v", got.LastTick, last)
	}

	// Clearing the next tick marks exhaustion
	if err := s.SetNextAndLastTick(ctx, id, nil, &last); err != nil {
		t.Fatalf("Failed to clear next tick: %v", err)
	}
	got, _ = s.Get(ctx, id)
	if got.NextTick != nil {
		t.Fatalf("Expected next tick cleared, got %v", got.NextTick)
	}

	// Unknown ids surface as update failures
	err = s.SetNextAndLastTick(ctx, uuid.New(), &next, &last)
	if !errors.Is(err, ErrUpdateJobData) {
		t.Fatalf("Expected ErrUpdateJobData for unknown id, got: %v", err)
	}
}

func TestMemoryStoreListNextTicks(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	past := time.Now().Add(-time.Second)
	future := time.Now().Add(time.Hour)

	due := JobStoredData{ID: uuid.New(), JobType: JobTypeCron, NextTick: &past}
	pending := JobStoredData{ID: uuid.New(), JobType: JobTypeCron, NextTick: &future}
	exhausted := JobStoredData{ID: uuid.New(), JobType: JobTypeOneShot}

	for _, data := range []JobStoredData{due, pending, exhausted} {
		if err := s.AddOrUpdate(ctx, data); err != nil {
			t.Fatalf("Failed to store job data: %v", err)
		}
	}

	ticks, err := s.ListNextTicks(ctx)
	if err != nil {
		t.Fatalf("Failed to list next ticks: %v", err)
	}
	if len(ticks) != 1 {
		t.Fatalf("Expected exactly one due job, got %d", len(ticks))
	}
	if ticks[0].ID != due.ID {
		t.Fatalf("Wrong job reported due: got %v, want %v", ticks[0].ID, due.ID)
	}
}

func TestMemoryStoreTimeTillNextJob(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	// Empty store has no upcoming job
	gap, err := s.TimeTillNextJob(ctx)
	if err != nil {
		t.Fatalf("TimeTillNextJob on empty store failed: %v", err)
	}
	if gap != nil {
		t.Fatalf("Expected nil gap on empty store, got %v", gap)
	}

	near := time.Now().Add(10 * time.Second)
	far := time.Now().Add(time.Hour)
	past := time.Now().Add(-time.Minute)

	for _, next := range []*time.Time{&near, &far, &past, nil} {
		if err := s.AddOrUpdate(ctx, JobStoredData{ID: uuid.New(), JobType: JobTypeCron, NextTick: next}); err != nil {
			t.Fatalf("Failed to store job data: %v", err)
		}
	}

	gap, err = s.TimeTillNextJob(ctx)
	if err != nil {
		t.Fatalf("TimeTillNextJob failed: %v", err)
	}
	if gap == nil {
		t.Fatal("Expected a gap to the nearest job, got nil")
	}
	if *gap <= 0 || *gap > 10*time.Second {
		t.Fatalf("Expected gap within (0, 10s], got %v", *gap)
	}
}
