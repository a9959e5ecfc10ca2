package observability

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// MetricsCollector manages the service's OpenTelemetry instruments.
// A zero value is a valid no-op collector.
type MetricsCollector struct {
	meter metric.Meter

	// HTTP metrics
	httpRequests     metric.Int64Counter
	httpLatency      metric.Float64Histogram
	httpResponseSize metric.Int64Histogram

	// Media metrics
	uploads       metric.Int64Counter
	uploadedBytes metric.Int64Counter
	streams       metric.Int64Counter
	streamedBytes metric.Int64Counter

	provider         *sdkmetric.MeterProvider
	prometheusServer *http.Server

	testHooks MetricsTestHooks
}

// MetricsTestHooks lets tests observe recorded values without a metrics backend.
type MetricsTestHooks struct {
	HTTPServerRequest func(method, route string, status int, duration time.Duration, responseBytes int64)
	Upload            func(category, status string, sizeBytes int64)
	Stream            func(category string, partial bool, sizeBytes int64)
}

// MetricsConfig configures the metrics collector
type MetricsConfig struct {
	Enabled        bool `yaml:"enabled"`
	PrometheusPort int  `yaml:"prometheus_port"`
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(config MetricsConfig) (*MetricsCollector, error) {
	if !config.Enabled {
		return &MetricsCollector{}, nil
	}

	exporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	meter := provider.Meter("mediasvc")

	httpRequests, err := meter.Int64Counter(
		"mediasvc.http.requests.total",
		metric.WithDescription("Total number of HTTP requests served"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_requests counter: %w", err)
	}

	httpLatency, err := meter.Float64Histogram(
		"mediasvc.http.latency",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_latency histogram: %w", err)
	}

	httpResponseSize, err := meter.Int64Histogram(
		"mediasvc.http.response.bytes",
		metric.WithDescription("HTTP response body size"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create http_response_size histogram: %w", err)
	}

	uploads, err := meter.Int64Counter(
		"mediasvc.media.uploads.total",
		metric.WithDescription("Upload attempts by category and outcome"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create uploads counter: %w", err)
	}

	uploadedBytes, err := meter.Int64Counter(
		"mediasvc.media.uploaded.bytes",
		metric.WithDescription("Bytes persisted by successful uploads"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create uploaded_bytes counter: %w", err)
	}

	streams, err := meter.Int64Counter(
		"mediasvc.media.streams.total",
		metric.WithDescription("Media responses by category and range mode"),
		metric.WithUnit("{response}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streams counter: %w", err)
	}

	streamedBytes, err := meter.Int64Counter(
		"mediasvc.media.streamed.bytes",
		metric.WithDescription("Payload bytes written to clients"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create streamed_bytes counter: %w", err)
	}

	collector := &MetricsCollector{
		meter:            meter,
		httpRequests:     httpRequests,
		httpLatency:      httpLatency,
		httpResponseSize: httpResponseSize,
		uploads:          uploads,
		uploadedBytes:    uploadedBytes,
		streams:          streams,
		streamedBytes:    streamedBytes,
		provider:         provider,
	}

	if config.PrometheusPort > 0 {
		if err := collector.StartPrometheusServer(config.PrometheusPort); err != nil {
			return nil, fmt.Errorf("failed to start prometheus server: %w", err)
		}
	}

	return collector, nil
}

// SetTestHooks installs observation hooks. Intended for tests only.
func (m *MetricsCollector) SetTestHooks(hooks MetricsTestHooks) {
	if m == nil {
		return
	}
	m.testHooks = hooks
}

// StartPrometheusServer starts the Prometheus metrics server
func (m *MetricsCollector) StartPrometheusServer(port int) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promclient.Handler())

	m.prometheusServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("Prometheus metrics server listening on :%d", port)
		if err := m.prometheusServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Prometheus server error: %v", err)
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the metrics collector
func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}
	if m.prometheusServer != nil {
		if err := m.prometheusServer.Shutdown(ctx); err != nil {
			return err
		}
	}
	if m.provider != nil {
		return m.provider.Shutdown(ctx)
	}
	return nil
}

// RecordHTTPServerRequest records metrics for an HTTP request lifecycle
func (m *MetricsCollector) RecordHTTPServerRequest(ctx context.Context, method, route string, status int, duration time.Duration, responseBytes int64) {
	if m == nil {
		return
	}
	if hook := m.testHooks.HTTPServerRequest; hook != nil {
		hook(method, route, status, duration, responseBytes)
	}
	if m.httpRequests == nil || m.httpLatency == nil {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	}
	m.httpRequests.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.httpLatency.Record(ctx, duration.Seconds(), metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
	))
	if m.httpResponseSize != nil && responseBytes >= 0 {
		m.httpResponseSize.Record(ctx, responseBytes, metric.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.route", route),
		))
	}
}

// RecordUpload records one upload outcome. status is "success" or the error code.
func (m *MetricsCollector) RecordUpload(ctx context.Context, category, status string, sizeBytes int64) {
	if m == nil {
		return
	}
	if hook := m.testHooks.Upload; hook != nil {
		hook(category, status, sizeBytes)
	}
	if m.uploads == nil {
		return
	}
	m.uploads.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrCategory, category),
		attribute.String(AttrStatus, status),
	))
	if status == "success" && sizeBytes > 0 {
		m.uploadedBytes.Add(ctx, sizeBytes, metric.WithAttributes(attribute.String(AttrCategory, category)))
	}
}

// RecordStream records a served media response.
func (m *MetricsCollector) RecordStream(ctx context.Context, category string, partial bool, sizeBytes int64) {
	if m == nil {
		return
	}
	if hook := m.testHooks.Stream; hook != nil {
		hook(category, partial, sizeBytes)
	}
	if m.streams == nil {
		return
	}
	m.streams.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrCategory, category),
		attribute.Bool(AttrPartial, partial),
	))
	if sizeBytes > 0 {
		m.streamedBytes.Add(ctx, sizeBytes, metric.WithAttributes(attribute.String(AttrCategory, category)))
	}
}
