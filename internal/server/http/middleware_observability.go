package http

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"mediasvc/internal/logging"
	"mediasvc/internal/observability"
)

// ObservabilityMiddleware opens a server span per request and records the
// request metrics once the handler returns. latencyLogger is optional.
func ObservabilityMiddleware(obs *observability.Observability, latencyLogger logging.Logger) func(http.Handler) http.Handler {
	logLatency := !logging.IsNil(latencyLogger)
	if obs == nil && !logLatency {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw, wrapped := trackResponse(w)
			start := time.Now()

			ctx, span := startServerSpan(obs, r)
			r = r.WithContext(ctx)
			next.ServeHTTP(wrapped, r)

			route := resolvedRoute(r)
			elapsed := time.Since(start)
			finishServerSpan(span, route, sw.status)

			if obs != nil {
				obs.Metrics.RecordHTTPServerRequest(ctx, r.Method, route, sw.status, elapsed, sw.bytes)
			}
			if logLatency {
				latencyLogger.Info("route=%s method=%s status=%d latency_ms=%.2f bytes=%d",
					route, r.Method, sw.status, float64(elapsed.Microseconds())/1000, sw.bytes)
			}
		})
	}
}

func startServerSpan(obs *observability.Observability, r *http.Request) (context.Context, trace.Span) {
	var tracer *observability.TracerProvider
	if obs != nil {
		tracer = obs.Tracer
	}
	return tracer.StartSpan(r.Context(), observability.SpanHTTPServer,
		attribute.String("http.method", r.Method),
		attribute.String("http.target", r.URL.Path),
	)
}

func finishServerSpan(span trace.Span, route string, status int) {
	span.SetAttributes(
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	)
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
	span.End()
}

func resolvedRoute(r *http.Request) string {
	if route := routeFromContext(r.Context()); route != "" {
		return route
	}
	return "unmatched"
}
