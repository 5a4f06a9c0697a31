package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInitAndLogging(t *testing.T) {
	Init("debug", "json")

	if !L.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug level to be enabled")
	}
	L.Info("test info message", "key", "value")
}

func TestContextLogger(t *testing.T) {
	Init("info", "text")

	customLogger := L.With("request_id", "12345")
	ctx := WithContext(context.Background(), customLogger)
	if got := FromContext(ctx); got != customLogger {
		t.Fatal("expected the stored logger back")
	}
	if got := FromContext(context.Background()); got != L {
		t.Fatal("expected global logger for a bare context")
	}
}

func TestNewFanoutWritesBothSinks(t *testing.T) {
	var primary, sink bytes.Buffer
	l := NewFanout(&primary, &sink, "info", "text")
	l.Info("token issued", slog.String("owner_id", "o1"))
	l.Debug("dropped")

	if !strings.Contains(primary.String(), "token issued") {
		t.Fatalf("primary missing record: %q", primary.String())
	}
	if strings.Contains(primary.String(), "dropped") {
		t.Fatalf("debug record leaked at info level")
	}
	var rec map[string]any
	if err := json.Unmarshal(sink.Bytes(), &rec); err != nil {
		t.Fatalf("sink is not json: %v", err)
	}
	if rec["owner_id"] != "o1" {
		t.Fatalf("owner_id = %v", rec["owner_id"])
	}
}

func TestInitWithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stp.log")
	closeFn := InitWithFile("info", "text", path)
	L.Info("hello file")
	if err := closeFn(); err != nil {
		t.Fatalf("close: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "hello file") {
		t.Fatalf("file sink missing record: %q", data)
	}
	Init("info", "text")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.input); got != tt.expected {
			t.Errorf("parseLevel(%s) = %v, want %v", tt.input, got, tt.expected)
		}
	}
}
