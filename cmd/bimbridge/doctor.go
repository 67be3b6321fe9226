package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"bimbridge/internal/adapter/store"
	"bimbridge/internal/domain"
	"bimbridge/internal/infra/config"
)

// CheckStatus represents the result of a health check.
type CheckStatus string

const (
	StatusPass CheckStatus = "PASS"
	StatusWarn CheckStatus = "WARN"
	StatusFail CheckStatus = "FAIL"
)

// CheckResult holds the outcome of a single health check.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // optional fix suggestion
}

// Check is a named health check function.
type Check struct {
	Name string
	Fn   func(cfg *config.Config) CheckResult
}

// runDoctor executes all health checks and reports results.
func runDoctor() error {
	cfgPath := configPath()
	cfg, cfgErr := config.Load(cfgPath)

	checks := []Check{
		{Name: "Config file", Fn: checkConfigFile(cfgPath, cfgErr)},
		{Name: "Model store", Fn: checkModelStore},
		{Name: "Peer endpoint", Fn: checkPeer},
	}

	fmt.Println("bimbridge doctor")
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	var pass, warn, fail int
	for _, check := range checks {
		result := check.Fn(cfg)
		result.Name = check.Name

		fmt.Printf("  %s %s: %s\n", statusIcon(result.Status), result.Name, result.Message)
		if result.Fix != "" {
			fmt.Printf("      Fix: %s\n", result.Fix)
		}

		switch result.Status {
		case StatusPass:
			pass++
		case StatusWarn:
			warn++
		case StatusFail:
			fail++
		}
	}

	fmt.Println()
	fmt.Println(strings.Repeat("-", 50))
	fmt.Printf("Results: %d passed, %d warnings, %d failed\n", pass, warn, fail)

	if fail > 0 {
		return fmt.Errorf("%d check(s) failed", fail)
	}
	return nil
}

func statusIcon(s CheckStatus) string {
	switch s {
	case StatusPass:
		return "[PASS]"
	case StatusWarn:
		return "[WARN]"
	case StatusFail:
		return "[FAIL]"
	default:
		return "[????]"
	}
}

// checkConfigFile reports on the config file. A missing file is only a
// warning since the defaults are usable.
func checkConfigFile(cfgPath string, cfgErr error) func(*config.Config) CheckResult {
	return func(_ *config.Config) CheckResult {
		if cfgErr != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("config error: %v", cfgErr),
				Fix:     fmt.Sprintf("Fix %s or the BIMBRIDGE_* variables", cfgPath),
			}
		}
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no config file at %s, using defaults", cfgPath),
			}
		}
		return CheckResult{
			Status:  StatusPass,
			Message: fmt.Sprintf("config loaded from %s", cfgPath),
		}
	}
}

// checkModelStore opens the configured store and counts the model's products.
func checkModelStore(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var s domain.ModelStore
	switch cfg.Store.Driver {
	case "sqlite":
		// Opening would create and migrate a missing database.
		if _, err := os.Stat(cfg.Store.Path); errors.Is(err, fs.ErrNotExist) {
			return CheckResult{
				Status:  StatusWarn,
				Message: fmt.Sprintf("no database at %s", cfg.Store.Path),
				Fix:     "Run 'bimbridge import --fixture FILE --db " + cfg.Store.Path + "'",
			}
		}
		db, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return CheckResult{
				Status:  StatusFail,
				Message: fmt.Sprintf("cannot open %s: %v", cfg.Store.Path, err),
			}
		}
		defer db.Close()
		s = db
	default:
		if cfg.Store.Fixture == "" {
			return CheckResult{
				Status:  StatusWarn,
				Message: "memory store without a fixture, fetches will return no elements",
				Fix:     "Set store.fixture or use the sqlite driver",
			}
		}
		f, err := store.LoadFixture(cfg.Store.Fixture)
		if err != nil {
			return CheckResult{Status: StatusFail, Message: err.Error()}
		}
		m, err := store.NewModel(f)
		if err != nil {
			return CheckResult{Status: StatusFail, Message: err.Error()}
		}
		s = store.NewMemoryStore(m)
	}

	model, err := s.OpenCurrentModel(ctx)
	if errors.Is(err, domain.ErrModelNotFound) {
		return CheckResult{
			Status:  StatusWarn,
			Message: "no model loaded",
			Fix:     "Run 'bimbridge import --fixture FILE --db " + cfg.Store.Path + "'",
		}
	}
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	products, err := model.AllProducts()
	if err != nil {
		return CheckResult{Status: StatusFail, Message: err.Error()}
	}
	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("%d elements (driver: %s)", len(products), cfg.Store.Driver),
	}
}

// checkPeer performs one websocket handshake with the configured peer.
func checkPeer(cfg *config.Config) CheckResult {
	if cfg == nil {
		return CheckResult{Status: StatusFail, Message: "cannot check, config not loaded"}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Connection.HandshakeTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, cfg.Connection.URI, nil)
	if err != nil {
		return CheckResult{
			Status:  StatusFail,
			Message: fmt.Sprintf("cannot reach %s: %v", cfg.Connection.URI, err),
			Fix:     "Start the viewer or set connection.uri",
		}
	}
	conn.CloseNow()

	return CheckResult{
		Status:  StatusPass,
		Message: fmt.Sprintf("handshake with %s OK", cfg.Connection.URI),
	}
}
