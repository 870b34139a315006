// Package observability provides structured logging for the coreengine.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Log levels accepted by NewLogger.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// Logger is the interface for logging.
// Messages are snake_case event names; fields are key/value pairs.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)
	Bind(fields ...any) Logger
}

// =============================================================================
// SLOG LOGGER
// =============================================================================

// SlogLogger implements Logger on top of log/slog with a JSON handler.
type SlogLogger struct {
	logger *slog.Logger
}

// NewLogger creates a JSON logger writing to w at the given level.
// A nil writer logs to stderr. Unknown levels default to INFO.
func NewLogger(w io.Writer, level string) *SlogLogger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return &SlogLogger{logger: slog.New(handler)}
}

// ParseLevel converts a level name to slog.Level.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn, "WARNING":
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *SlogLogger) Debug(msg string, fields ...any) {
	l.logger.Log(context.Background(), slog.LevelDebug, msg, fields...)
}

func (l *SlogLogger) Info(msg string, fields ...any) {
	l.logger.Log(context.Background(), slog.LevelInfo, msg, fields...)
}

func (l *SlogLogger) Warn(msg string, fields ...any) {
	l.logger.Log(context.Background(), slog.LevelWarn, msg, fields...)
}

func (l *SlogLogger) Error(msg string, fields ...any) {
	l.logger.Log(context.Background(), slog.LevelError, msg, fields...)
}

// Bind returns a child logger that adds fields to every entry.
func (l *SlogLogger) Bind(fields ...any) Logger {
	return &SlogLogger{logger: l.logger.With(fields...)}
}

// =============================================================================
// NOP LOGGER
// =============================================================================

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...any)  {}
func (NopLogger) Info(string, ...any)   {}
func (NopLogger) Warn(string, ...any)   {}
func (NopLogger) Error(string, ...any)  {}
func (n NopLogger) Bind(...any) Logger { return n }

// OrNop returns l, or a NopLogger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return NopLogger{}
	}
	return l
}
