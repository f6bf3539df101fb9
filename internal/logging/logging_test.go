package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_JSONAndLevel(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "")

	logger.Info("hidden")
	logger.Warn("shown", "symbol", "BTC")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v", err)
	}
	if entry["msg"] != "shown" || entry["symbol"] != "BTC" {
		t.Errorf("entry = %v", entry)
	}
}

func TestNewLogger_File(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	file := filepath.Join(t.TempDir(), "logs", "cryptowatch.log")
	var buf bytes.Buffer
	logger := newLogger(&buf, "info", file)
	logger.Info("to both")

	data, err := os.ReadFile(file)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !strings.Contains(string(data), "to both") {
		t.Errorf("log file = %q, want message", data)
	}
	if !strings.Contains(buf.String(), "to both") {
		t.Errorf("stdout = %q, want message", buf.String())
	}
}
