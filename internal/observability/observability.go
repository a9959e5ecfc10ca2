package observability

import (
	"context"
	"errors"
	"fmt"
)

// Observability groups the structured logger, the metrics collector and the
// tracer provider. A nil *Observability is accepted everywhere and disables
// all three.
type Observability struct {
	Logger  *Logger
	Metrics *MetricsCollector
	Tracer  *TracerProvider
	config  Config
}

// New loads the observability block of configPath and builds every component.
func New(configPath string) (*Observability, error) {
	cfg, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load observability config: %w", err)
	}
	return NewFromConfig(cfg), nil
}

// NewFromConfig never fails. A metrics or tracing backend that cannot start is
// logged and replaced by its no-op form.
func NewFromConfig(cfg Config) *Observability {
	obs := &Observability{
		Logger: NewLogger(LogConfig{Level: cfg.Logging.Level, Format: cfg.Logging.Format}),
		config: cfg,
	}

	metrics, err := NewMetricsCollector(cfg.Metrics)
	if err != nil {
		obs.Logger.Error("metrics disabled", "error", err)
		metrics = &MetricsCollector{}
	}
	obs.Metrics = metrics

	tracer, err := NewTracerProvider(cfg.Tracing)
	if err != nil {
		obs.Logger.Error("tracing disabled", "error", err, "exporter", cfg.Tracing.Exporter)
		tracer, _ = NewTracerProvider(TracingConfig{})
	}
	obs.Tracer = tracer

	obs.Logger.Info("observability ready",
		"log_level", cfg.Logging.Level,
		"metrics", cfg.Metrics.Enabled,
		"tracing", cfg.Tracing.Enabled,
	)
	return obs
}

// Shutdown flushes metrics and spans. Both are attempted even when the
// first fails.
func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil {
		return nil
	}
	return errors.Join(
		o.Metrics.Shutdown(ctx),
		o.Tracer.Shutdown(ctx),
	)
}

// Config returns the settings the bundle was built from.
func (o *Observability) Config() Config {
	if o == nil {
		return Config{}
	}
	return o.config
}
