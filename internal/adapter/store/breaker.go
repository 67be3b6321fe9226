package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"bimbridge/internal/domain"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// BreakerConfig configures the circuit breaker behavior.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before a probe is allowed.
	Timeout time.Duration
	// Interval is the cyclic period of the closed state for clearing failure counts.
	Interval time.Duration
}

// BreakerStore wraps a ModelStore with circuit breaker protection. A store
// that keeps failing is skipped until the timeout elapses, so repeated peer
// requests fail fast instead of hammering a broken backend. A missing model
// is a normal answer and never trips the breaker.
type BreakerStore struct {
	inner   domain.ModelStore
	breaker *gobreaker.CircuitBreaker[domain.Model]
}

var _ domain.ModelStore = (*BreakerStore)(nil)

// NewBreakerStore wraps inner. Zero config values select the defaults.
func NewBreakerStore(inner domain.ModelStore, cfg BreakerConfig, logger *slog.Logger) *BreakerStore {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	cb := gobreaker.NewCircuitBreaker[domain.Model](gobreaker.Settings{
		Name:        "model-store",
		MaxRequests: 1,
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domain.ErrModelNotFound)
		},
		IsExcluded: func(err error) bool {
			return errors.Is(err, context.Canceled)
		},
	})
	return &BreakerStore{inner: inner, breaker: cb}
}

func (s *BreakerStore) OpenCurrentModel(ctx context.Context) (domain.Model, error) {
	m, err := s.breaker.Execute(func() (domain.Model, error) {
		return s.inner.OpenCurrentModel(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, domain.NewSubSystemError("store", "Store.OpenCurrentModel", domain.ErrModelUnavailable, err.Error())
	}
	return m, err
}

// State returns the current circuit breaker state for monitoring.
func (s *BreakerStore) State() gobreaker.State {
	return s.breaker.State()
}
