package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bimbridge/internal/infra/config"
)

func TestJSONHandlerWithComponent(t *testing.T) {
	var buf bytes.Buffer
	log := Component(slog.New(newHandler(&buf, config.LoggerConfig{Level: "info", Format: "json"})), "socket")

	log.Info("connected", "uri", config.DefaultURI)

	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON: %v, output: %s", err, buf.String())
	}
	if entry["msg"] != "connected" {
		t.Errorf("msg = %q, want %q", entry["msg"], "connected")
	}
	if entry["component"] != "socket" {
		t.Errorf("component = %q, want %q", entry["component"], "socket")
	}
	if entry["uri"] != config.DefaultURI {
		t.Errorf("uri = %q", entry["uri"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestOpenOutputStreams(t *testing.T) {
	tests := []struct {
		output string
		want   *os.File
	}{
		{"stdout", os.Stdout},
		{"stderr", os.Stderr},
		{"", os.Stderr},
	}
	for _, tt := range tests {
		w, closer, err := openOutput(tt.output)
		if err != nil {
			t.Fatalf("openOutput(%q): %v", tt.output, err)
		}
		if w != tt.want {
			t.Errorf("openOutput(%q) returned the wrong stream", tt.output)
		}
		closer()
	}
}

func TestOpenOutputInvalidPath(t *testing.T) {
	_, _, err := openOutput("/nonexistent/dir/log.txt")
	if err == nil {
		t.Error("expected error for invalid path")
	}
}

func TestNewLoggerFileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bridge.log")

	log, closer, err := New(config.LoggerConfig{Level: "info", Format: "text", Output: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	log.Info("transfer completed", "total_sent", 250)
	if err := closer(); err != nil {
		t.Fatalf("closer: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "transfer completed") {
		t.Error("log file should contain the logged message")
	}
	if !strings.Contains(out, "app=bimbridge") {
		t.Errorf("log line should carry the app attribute: %s", out)
	}
}

func TestNewLoggerInvalidOutput(t *testing.T) {
	_, _, err := New(config.LoggerConfig{Level: "info", Format: "text", Output: "/nonexistent/dir/app.log"})
	if err == nil {
		t.Error("expected error for invalid output path")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(newHandler(&buf, config.LoggerConfig{Level: "warn"}))

	log.Info("should be filtered")
	log.Warn("should appear")

	output := buf.String()
	if strings.Contains(output, "should be filtered") {
		t.Error("info message should be filtered at warn level")
	}
	if !strings.Contains(output, "should appear") {
		t.Error("warn message should appear at warn level")
	}
}
