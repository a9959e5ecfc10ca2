package observability

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/zipkin"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"mediasvc/internal/utils/id"
)

const (
	tracerName            = "mediasvc"
	defaultOTLPEndpoint   = "localhost:4318"
	defaultZipkinEndpoint = "http://localhost:9411/api/v2/spans"
)

// Span names.
const (
	SpanHTTPServer  = "mediasvc.http.request"
	SpanMediaUpload = "mediasvc.media.upload"
	SpanMediaStream = "mediasvc.media.stream"
	SpanMediaDelete = "mediasvc.media.delete"
	SpanSweep       = "mediasvc.media.sweep"
)

// Attribute keys shared by spans and metrics.
const (
	AttrRequestID = "mediasvc.request_id"
	AttrUserID    = "mediasvc.user_id"
	AttrMediaID   = "mediasvc.media_id"
	AttrCategory  = "mediasvc.category"
	AttrMimeType  = "mediasvc.mime_type"
	AttrSizeBytes = "mediasvc.size_bytes"
	AttrPartial   = "mediasvc.partial"
	AttrStatus    = "mediasvc.status"
	AttrError     = "mediasvc.error"
	AttrErrorCode = "mediasvc.error_code"
)

// TracingConfig configures span export.
type TracingConfig struct {
	Enabled        bool    `yaml:"enabled"`
	Exporter       string  `yaml:"exporter"` // otlp, zipkin
	OTLPEndpoint   string  `yaml:"otlp_endpoint"`
	ZipkinEndpoint string  `yaml:"zipkin_endpoint"`
	SampleRate     float64 `yaml:"sample_rate"`
	ServiceName    string  `yaml:"service_name"`
	ServiceVersion string  `yaml:"service_version"`
}

// TracerProvider hands out spans. When tracing is disabled it only owns a
// no-op tracer and Shutdown does nothing.
type TracerProvider struct {
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
}

// NewTracerProvider builds the exporter named by config and installs the
// provider globally.
func NewTracerProvider(config TracingConfig) (*TracerProvider, error) {
	if !config.Enabled {
		return &TracerProvider{tracer: noop.NewTracerProvider().Tracer(tracerName)}, nil
	}

	exporter, err := newSpanExporter(config)
	if err != nil {
		return nil, err
	}

	serviceName := config.ServiceName
	if serviceName == "" {
		serviceName = tracerName
	}
	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(config.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	rate := config.SampleRate
	if rate <= 0 || rate > 1 {
		rate = 1
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))),
	)
	otel.SetTracerProvider(provider)

	return &TracerProvider{provider: provider, tracer: provider.Tracer(tracerName)}, nil
}

func newSpanExporter(config TracingConfig) (sdktrace.SpanExporter, error) {
	var (
		exporter sdktrace.SpanExporter
		err      error
	)
	switch strings.ToLower(strings.TrimSpace(config.Exporter)) {
	case "otlp", "":
		endpoint := config.OTLPEndpoint
		if endpoint == "" {
			endpoint = defaultOTLPEndpoint
		}
		exporter, err = otlptracehttp.New(context.Background(),
			otlptracehttp.WithEndpoint(endpoint),
			otlptracehttp.WithInsecure(),
		)
	case "zipkin":
		endpoint := config.ZipkinEndpoint
		if endpoint == "" {
			endpoint = defaultZipkinEndpoint
		}
		exporter, err = zipkin.New(endpoint)
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", config.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s exporter: %w", config.Exporter, err)
	}
	return exporter, nil
}

// Shutdown flushes buffered spans.
func (tp *TracerProvider) Shutdown(ctx context.Context) error {
	if tp == nil || tp.provider == nil {
		return nil
	}
	return tp.provider.Shutdown(ctx)
}

// StartSpan starts a span carrying the request and caller ids found on ctx.
// A nil provider yields no-op spans.
func (tp *TracerProvider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tp == nil || tp.tracer == nil {
		return noop.NewTracerProvider().Tracer(tracerName).Start(ctx, name)
	}
	if requestID := id.RequestIDFromContext(ctx); requestID != "" {
		attrs = append(attrs, attribute.String(AttrRequestID, requestID))
	}
	if userID := id.UserIDFromContext(ctx); userID != "" {
		attrs = append(attrs, attribute.String(AttrUserID, userID))
	}
	return tp.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err on span, if any, and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetAttributes(ErrorAttrs(err)...)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// MediaAttrs describes a stored object.
func MediaAttrs(mediaID, mimeType string, sizeBytes int64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(AttrMediaID, mediaID)}
	if mimeType != "" {
		attrs = append(attrs, attribute.String(AttrMimeType, mimeType))
	}
	if sizeBytes > 0 {
		attrs = append(attrs, attribute.Int64(AttrSizeBytes, sizeBytes))
	}
	return attrs
}

// ErrorAttrs flags a span as failed. Errors exposing a client-facing code
// also get that code attached.
func ErrorAttrs(err error) []attribute.KeyValue {
	if err == nil {
		return nil
	}
	attrs := []attribute.KeyValue{attribute.Bool(AttrError, true)}
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		attrs = append(attrs, attribute.String(AttrErrorCode, coded.ErrorCode()))
	}
	return attrs
}
