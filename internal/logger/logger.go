// Package logger provides structured logging and context-aware logger injection.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

type ctxKey struct{}

// L is the global default logger; initialize with Init or use FromContext for request-scoped loggers.
var (
	L      = slog.Default()
	logKey = ctxKey{}
)

// Init initializes the global logger with the given level and format (e.g. "debug", "json").
func Init(level, format string) {
	L = slog.New(newHandler(os.Stdout, level, format))
	slog.SetDefault(L)
}

// InitWithFile is Init plus a JSON sink appended to path. The returned func closes the file.
// When the file cannot be opened the logger falls back to stdout only.
func InitWithFile(level, format, path string) func() error {
	if strings.TrimSpace(path) == "" {
		Init(level, format)
		return func() error { return nil }
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		Init(level, format)
		L.Error("failed to open log file, using stdout only", slog.String("file", path), slog.Any("error", err))
		return func() error { return nil }
	}
	L = NewFanout(os.Stdout, file, level, format)
	slog.SetDefault(L)
	return file.Close
}

// New builds a standalone logger writing to w.
func New(w io.Writer, level, format string) *slog.Logger {
	return slog.New(newHandler(w, level, format))
}

// NewFanout builds a logger writing format-encoded records to primary and JSON records to sink.
func NewFanout(primary, sink io.Writer, level, format string) *slog.Logger {
	fileHandler := slog.NewJSONHandler(sink, &slog.HandlerOptions{Level: parseLevel(level)})
	return slog.New(slogmulti.Fanout(newHandler(primary, level, format), fileHandler))
}

func newHandler(w io.Writer, level, format string) slog.Handler {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// FromContext returns the logger from ctx, or the global logger if not set.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(logKey).(*slog.Logger); ok {
		return l
	}
	return L
}

// WithContext stores the logger in ctx and returns the new context.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, logKey, l)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Discard returns a logger that drops every record. Used by tests and silent CLI paths.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
