package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/tickline/schedcore/pkg/logger"
)

// BreakerConfig tunes the circuit breaker around a metadata store.
type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker once reached.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration
}

// DefaultBreakerConfig returns conservative defaults: trip after five
// consecutive failures, probe again after thirty seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		ConsecutiveFailures: 5,
		OpenTimeout:         30 * time.Second,
	}
}

// BreakerStore wraps a MetadataStore in a circuit breaker so a slow or
// erroring backend sheds load fast instead of stacking up blocked calls.
// While the breaker is open every call fails immediately with the wrapped
// store's error kind; the engine already treats store failures as
// non-fatal, so scheduling continues on in-memory state.
type BreakerStore struct {
	inner   MetadataStore
	breaker *gobreaker.CircuitBreaker
	logger  *logger.Logger
}

// NewBreakerStore wraps inner with a circuit breaker.
func NewBreakerStore(inner MetadataStore, cfg BreakerConfig) *BreakerStore {
	log := logger.New("store-breaker")

	settings := gobreaker.Settings{
		Name:    "metadata-store",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("action", "breaker_state_change").
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Metadata store circuit breaker changed state")
		},
	}

	return &BreakerStore{
		inner:   inner,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  log,
	}
}

// Init passes through to the wrapped store. Initialization failures are
// terminal anyway, so they bypass the breaker.
func (s *BreakerStore) Init(ctx context.Context) error {
	return s.inner.Init(ctx)
}

// Inited reports whether the wrapped store is initialized.
func (s *BreakerStore) Inited(ctx context.Context) bool {
	return s.inner.Inited(ctx)
}

// Get reads through the breaker.
func (s *BreakerStore) Get(ctx context.Context, id uuid.UUID) (*JobStoredData, error) {
	res, err := s.breaker.Execute(func() (interface{}, error) {
		return s.inner.Get(ctx, id)
	})
	if err != nil {
		return nil, s.classify(err, ErrGetJobData)
	}
	data, _ := res.(*JobStoredData)
	return data, nil
}

// AddOrUpdate writes through the breaker.
func (s *BreakerStore) AddOrUpdate(ctx context.Context, data JobStoredData) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.inner.AddOrUpdate(ctx, data)
	})
	return s.classify(err, ErrUpdateJobData)
}

// Delete writes through the breaker.
func (s *BreakerStore) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.inner.Delete(ctx, id)
	})
	return s.classify(err, ErrCantRemove)
}

// ListNextTicks reads through the breaker.
func (s *BreakerStore) ListNextTicks(ctx context.Context) ([]JobAndNextTick, error) {
	res, err := s.breaker.Execute(func() (interface{}, error) {
		return s.inner.ListNextTicks(ctx)
	})
	if err != nil {
		return nil, s.classify(err, ErrCantListNextTicks)
	}
	ticks, _ := res.([]JobAndNextTick)
	return ticks, nil
}

// SetNextAndLastTick writes through the breaker.
func (s *BreakerStore) SetNextAndLastTick(ctx context.Context, id uuid.UUID, nextTick, lastTick *time.Time) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return nil, s.inner.SetNextAndLastTick(ctx, id, nextTick, lastTick)
	})
	return s.classify(err, ErrUpdateJobData)
}

// TimeTillNextJob reads through the breaker.
func (s *BreakerStore) TimeTillNextJob(ctx context.Context) (*time.Duration, error) {
	res, err := s.breaker.Execute(func() (interface{}, error) {
		return s.inner.TimeTillNextJob(ctx)
	})
	if err != nil {
		return nil, s.classify(err, ErrTimeTillNextJob)
	}
	gap, _ := res.(*time.Duration)
	return gap, nil
}

// classify maps breaker rejections onto the store error taxonomy so callers
// see the same kinds regardless of whether the call reached the backend.
func (s *BreakerStore) classify(err, kind error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return err
}
