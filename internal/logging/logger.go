package logging

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"mediasvc/internal/observability"
	"mediasvc/internal/utils"
)

// Logger is the printf-style contract used by the stores, the media service
// and the HTTP layer.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Nop returns a logger that discards all output.
func Nop() Logger { return nopLogger{} }

// IsNil reports whether logger is nil or a typed nil.
func IsNil(logger Logger) bool {
	if logger == nil {
		return true
	}
	switch val := reflect.ValueOf(logger); val.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Func:
		return val.IsNil()
	}
	return false
}

// OrNop returns logger, or a no-op logger when it is nil.
func OrNop(logger Logger) Logger {
	if IsNil(logger) {
		return Nop()
	}
	return logger
}

// NewComponentLogger returns the stdout/file logger scoped to a component.
func NewComponentLogger(component string) Logger {
	return utils.NewComponentLogger(component)
}

// NewLatencyLogger returns a logger for per-request latency lines.
func NewLatencyLogger(component string) Logger {
	return utils.NewLatencyLogger(component)
}

// Structured adapts an slog-backed observability logger to Logger. Messages
// are formatted before they are emitted; component becomes an attribute.
func Structured(base *observability.Logger, component string) Logger {
	if base == nil {
		return Nop()
	}
	if component != "" {
		base = base.With("component", component)
	}
	return structuredLogger{base: base}
}

// ForService picks the structured logger when observability is configured
// and the component logger otherwise.
func ForService(obs *observability.Observability, component string) Logger {
	if obs == nil || obs.Logger == nil {
		return NewComponentLogger(component)
	}
	return Structured(obs.Logger, component)
}

type structuredLogger struct {
	base *observability.Logger
}

func (l structuredLogger) emit(level slog.Level, format string, args []any) {
	l.base.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

func (l structuredLogger) Debug(format string, args ...any) { l.emit(slog.LevelDebug, format, args) }
func (l structuredLogger) Info(format string, args ...any)  { l.emit(slog.LevelInfo, format, args) }
func (l structuredLogger) Warn(format string, args ...any)  { l.emit(slog.LevelWarn, format, args) }
func (l structuredLogger) Error(format string, args ...any) { l.emit(slog.LevelError, format, args) }
