package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultURI is the peer endpoint used when none is configured.
const DefaultURI = "ws://127.0.0.1:8000/ws/blender-connector/"

// Config is the root configuration for bimbridge.
type Config struct {
	Connection ConnectionConfig `yaml:"connection"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Transfer   TransferConfig   `yaml:"transfer"`
	Store      StoreConfig      `yaml:"store"`
	Logger     LoggerConfig     `yaml:"logger"`
	Tracer     TracerConfig     `yaml:"tracer"`
}

// ConnectionConfig holds websocket client settings.
type ConnectionConfig struct {
	URI              string        `yaml:"uri"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	WriteTimeout     time.Duration `yaml:"write_timeout"`
	SendQueueSize    int           `yaml:"send_queue_size"`
	ReadLimit        int64         `yaml:"read_limit"`
}

// DispatcherConfig holds command polling settings.
type DispatcherConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

// TransferConfig holds chunked transfer settings.
type TransferConfig struct {
	ChunkSize           int     `yaml:"chunk_size"`
	MaxUpdatesPerSecond float64 `yaml:"max_updates_per_second"` // 0 = unlimited
}

// StoreConfig selects and configures the model store.
type StoreConfig struct {
	Driver         string               `yaml:"driver"` // "memory" or "sqlite"
	Fixture        string               `yaml:"fixture,omitempty"`
	Path           string               `yaml:"path,omitempty"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for model store access.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Connection: ConnectionConfig{
			URI:              DefaultURI,
			HandshakeTimeout: 10 * time.Second,
			WriteTimeout:     10 * time.Second,
			SendQueueSize:    64,
			ReadLimit:        1 << 20,
		},
		Dispatcher: DispatcherConfig{
			PollInterval: 100 * time.Millisecond,
		},
		Transfer: TransferConfig{
			ChunkSize: 100,
		},
		Store: StoreConfig{
			Driver: "memory",
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    time.Minute,
			},
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file over the defaults, applies env overrides and
// validates the result. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps BIMBRIDGE_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BIMBRIDGE_CONNECTION_URI"); v != "" {
		cfg.Connection.URI = v
	}
	if v := os.Getenv("BIMBRIDGE_CONNECTION_HANDSHAKE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Connection.HandshakeTimeout = d
		}
	}
	if v := os.Getenv("BIMBRIDGE_DISPATCHER_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Dispatcher.PollInterval = d
		}
	}
	if v := os.Getenv("BIMBRIDGE_TRANSFER_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Transfer.ChunkSize = n
		}
	}
	if v := os.Getenv("BIMBRIDGE_TRANSFER_MAX_UPDATES_PER_SECOND"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Transfer.MaxUpdatesPerSecond = f
		}
	}
	if v := os.Getenv("BIMBRIDGE_STORE_DRIVER"); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv("BIMBRIDGE_STORE_FIXTURE"); v != "" {
		cfg.Store.Fixture = v
	}
	if v := os.Getenv("BIMBRIDGE_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("BIMBRIDGE_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("BIMBRIDGE_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("BIMBRIDGE_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("BIMBRIDGE_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}
