package app

import (
	"fmt"
	"log/slog"

	"bimbridge/internal/adapter/store"
	"bimbridge/internal/domain"
	"bimbridge/internal/infra/config"
)

// openStore builds the model store selected by cfg.Driver, wrapped in a
// circuit breaker when enabled. The closer is never nil.
func openStore(cfg config.StoreConfig, log *slog.Logger) (domain.ModelStore, func() error, error) {
	noop := func() error { return nil }

	var (
		inner  domain.ModelStore
		closer = noop
	)
	switch cfg.Driver {
	case "memory", "":
		var model *store.Model
		if cfg.Fixture != "" {
			f, err := store.LoadFixture(cfg.Fixture)
			if err != nil {
				return nil, noop, err
			}
			model, err = store.NewModel(f)
			if err != nil {
				return nil, noop, err
			}
			log.Info("model loaded", "fixture", cfg.Fixture, "elements", model.Len())
		}
		inner = store.NewMemoryStore(model)
	case "sqlite":
		s, err := store.NewSQLiteStore(cfg.Path)
		if err != nil {
			return nil, noop, err
		}
		inner, closer = s, s.Close
		log.Info("model store opened", "driver", "sqlite", "path", cfg.Path)
	default:
		return nil, noop, fmt.Errorf("unknown store driver: %s", cfg.Driver)
	}

	if !cfg.CircuitBreaker.Enabled {
		return inner, closer, nil
	}
	return store.NewBreakerStore(inner, store.BreakerConfig{
		MaxFailures: cfg.CircuitBreaker.MaxFailures,
		Timeout:     cfg.CircuitBreaker.Timeout,
		Interval:    cfg.CircuitBreaker.Interval,
	}, log), closer, nil
}
