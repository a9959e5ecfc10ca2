package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel/trace"

	"mediasvc/internal/utils/id"
)

// Logger is a slog logger whose *Context methods lift the trace, request and
// caller identifiers out of the context into attributes.
type Logger struct {
	*slog.Logger
}

// LogConfig configures the logger
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, text
	Output io.Writer
}

// NewLogger creates a structured logger. Unknown levels fall back to info.
func NewLogger(config LogConfig) *Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(config.Level))); err != nil {
		level = slog.LevelInfo
	}
	output := config.Output
	if output == nil {
		output = os.Stdout
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(output, opts)
	if strings.EqualFold(config.Format, "json") {
		handler = slog.NewJSONHandler(output, opts)
	}
	return &Logger{Logger: slog.New(handler)}
}

func contextAttrs(ctx context.Context) []any {
	var attrs []any
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		attrs = append(attrs, "trace_id", traceID)
	}
	if requestID := id.RequestIDFromContext(ctx); requestID != "" {
		attrs = append(attrs, "request_id", requestID)
	}
	if userID := id.UserIDFromContext(ctx); userID != "" {
		attrs = append(attrs, "user_id", userID)
	}
	return attrs
}

// WithContext binds the identifiers found in ctx to every later line.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	attrs := contextAttrs(ctx)
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}

// With adds attributes to the logger.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.Logger.DebugContext(ctx, msg, append(contextAttrs(ctx), args...)...)
}

func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.Logger.InfoContext(ctx, msg, append(contextAttrs(ctx), args...)...)
}

func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.Logger.WarnContext(ctx, msg, append(contextAttrs(ctx), args...)...)
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.Logger.ErrorContext(ctx, msg, append(contextAttrs(ctx), args...)...)
}

// SanitizeAccessKey masks an object store access key for display.
func SanitizeAccessKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// TraceIDFromContext returns the active span's trace id, if any.
func TraceIDFromContext(ctx context.Context) string {
	spanCtx := trace.SpanContextFromContext(ctx)
	if !spanCtx.HasTraceID() {
		return ""
	}
	return spanCtx.TraceID().String()
}
