package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"bimbridge/internal/adapter/store"
	"bimbridge/internal/infra/config"
)

const testFixture = "../../internal/adapter/store/testdata/model.yaml"

func writeTestFile(t *testing.T, path, content string) error {
	t.Helper()
	return os.WriteFile(path, []byte(content), 0644)
}

func TestCheckConfigFile_NotFound(t *testing.T) {
	fn := checkConfigFile("/nonexistent/path/bimbridge.yaml", nil)
	result := fn(nil)
	if result.Status != StatusWarn {
		t.Errorf("expected WARN for missing config, got %s", result.Status)
	}
}

func TestCheckConfigFile_Invalid(t *testing.T) {
	fn := checkConfigFile("bimbridge.yaml", &config.ValidationError{Errors: []string{"bad uri"}})
	result := fn(nil)
	if result.Status != StatusFail {
		t.Errorf("expected FAIL for invalid config, got %s", result.Status)
	}
	if result.Fix == "" {
		t.Error("expected fix suggestion for invalid config")
	}
}

func TestCheckConfigFile_Valid(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "bimbridge.yaml")
	if err := writeTestFile(t, cfgPath, "logger:\n  level: debug\n"); err != nil {
		t.Fatal(err)
	}

	result := checkConfigFile(cfgPath, nil)(nil)
	if result.Status != StatusPass {
		t.Errorf("expected PASS for valid config, got %s: %s", result.Status, result.Message)
	}
}

func TestCheckModelStore_NilConfig(t *testing.T) {
	if result := checkModelStore(nil); result.Status != StatusFail {
		t.Errorf("expected FAIL for nil config, got %s", result.Status)
	}
}

func TestCheckModelStore_MemoryWithoutFixture(t *testing.T) {
	result := checkModelStore(config.Defaults())
	if result.Status != StatusWarn {
		t.Errorf("expected WARN without fixture, got %s", result.Status)
	}
}

func TestCheckModelStore_Fixture(t *testing.T) {
	cfg := config.Defaults()
	cfg.Store.Fixture = testFixture

	result := checkModelStore(cfg)
	if result.Status != StatusPass {
		t.Fatalf("expected PASS, got %s: %s", result.Status, result.Message)
	}
	if !strings.HasPrefix(result.Message, "7 elements") {
		t.Errorf("unexpected message %q", result.Message)
	}
}

func TestCheckModelStore_MissingSQLite(t *testing.T) {
	cfg := config.Defaults()
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = filepath.Join(t.TempDir(), "model.db")

	result := checkModelStore(cfg)
	if result.Status != StatusWarn {
		t.Errorf("expected WARN for missing database, got %s: %s", result.Status, result.Message)
	}
	if !strings.Contains(result.Fix, "bimbridge import") {
		t.Errorf("expected import hint, got %q", result.Fix)
	}
	if _, err := os.Stat(cfg.Store.Path); !os.IsNotExist(err) {
		t.Errorf("doctor must not create %s (stat err: %v)", cfg.Store.Path, err)
	}
}

func TestCheckModelStore_EmptySQLite(t *testing.T) {
	cfg := config.Defaults()
	cfg.Store.Driver = "sqlite"
	cfg.Store.Path = filepath.Join(t.TempDir(), "model.db")
	db, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		t.Fatalf("create database: %v", err)
	}
	db.Close()

	result := checkModelStore(cfg)
	if result.Status != StatusWarn {
		t.Errorf("expected WARN for empty database, got %s: %s", result.Status, result.Message)
	}
	if !strings.Contains(result.Fix, "bimbridge import") {
		t.Errorf("expected import hint, got %q", result.Fix)
	}
}

func TestCheckPeer_Unreachable(t *testing.T) {
	cfg := config.Defaults()
	cfg.Connection.URI = "ws://127.0.0.1:1/ws/blender-connector/"
	cfg.Connection.HandshakeTimeout = 2 * time.Second

	if result := checkPeer(cfg); result.Status != StatusFail {
		t.Errorf("expected FAIL for unreachable peer, got %s", result.Status)
	}
}

func TestCheckPeer_Reachable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		c.CloseNow()
	}))
	defer srv.Close()

	cfg := config.Defaults()
	cfg.Connection.URI = "ws" + strings.TrimPrefix(srv.URL, "http")

	if result := checkPeer(cfg); result.Status != StatusPass {
		t.Errorf("expected PASS, got %s: %s", result.Status, result.Message)
	}
}
