package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateConnection(cfg, ve)
	validateDispatcher(cfg, ve)
	validateTransfer(cfg, ve)
	validateStore(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateConnection(cfg *Config, ve *ValidationError) {
	c := cfg.Connection
	if c.URI == "" {
		ve.Add("connection.uri must not be empty")
	} else if u, err := url.Parse(c.URI); err != nil {
		ve.Add("connection.uri %q is not a valid URL: %v", c.URI, err)
	} else if u.Scheme != "ws" && u.Scheme != "wss" {
		ve.Add("connection.uri scheme must be ws or wss, got %q", u.Scheme)
	}
	if c.HandshakeTimeout <= 0 {
		ve.Add("connection.handshake_timeout must be > 0")
	}
	if c.WriteTimeout <= 0 {
		ve.Add("connection.write_timeout must be > 0")
	}
	if c.SendQueueSize < 1 {
		ve.Add("connection.send_queue_size must be >= 1")
	}
	if c.ReadLimit <= 0 {
		ve.Add("connection.read_limit must be > 0")
	}
}

func validateDispatcher(cfg *Config, ve *ValidationError) {
	if cfg.Dispatcher.PollInterval <= 0 {
		ve.Add("dispatcher.poll_interval must be > 0")
	}
}

func validateTransfer(cfg *Config, ve *ValidationError) {
	if cfg.Transfer.ChunkSize < 1 {
		ve.Add("transfer.chunk_size must be >= 1")
	}
	if cfg.Transfer.MaxUpdatesPerSecond < 0 {
		ve.Add("transfer.max_updates_per_second must be >= 0")
	}
}

var validStoreDrivers = map[string]bool{
	"memory": true,
	"sqlite": true,
}

func validateStore(cfg *Config, ve *ValidationError) {
	s := cfg.Store
	if !validStoreDrivers[s.Driver] {
		ve.Add("store.driver %q is invalid (want memory or sqlite)", s.Driver)
	}
	if s.Driver == "sqlite" && s.Path == "" {
		ve.Add("store.path is required for the sqlite driver")
	}
	if s.CircuitBreaker.Enabled {
		if s.CircuitBreaker.MaxFailures == 0 {
			ve.Add("store.circuit_breaker.max_failures must be > 0 when enabled")
		}
		if s.CircuitBreaker.Timeout <= 0 {
			ve.Add("store.circuit_breaker.timeout must be > 0 when enabled")
		}
	}
}

var (
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"text": true, "json": true}
)

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid", cfg.Logger.Level)
	}
	if !validLogFormats[cfg.Logger.Format] {
		ve.Add("logger.format %q is invalid (want text or json)", cfg.Logger.Format)
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !cfg.Tracer.Enabled {
		return
	}
	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter %q is invalid (want noop or stdout)", cfg.Tracer.Exporter)
	}
}
