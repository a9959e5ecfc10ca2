package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mediasvc/internal/media"
)

// Observer captures telemetry for blob store operations.
type Observer interface {
	RecordPut(backend string, duration time.Duration, sizeBytes int64, err error)
	RecordOperation(backend, op string, duration time.Duration, err error)
}

// PrometheusObserver exports store metrics to Prometheus.
type PrometheusObserver struct {
	duration        *prometheus.HistogramVec
	operationErrors *prometheus.CounterVec
	uploadBytes     *prometheus.CounterVec
}

// NewPrometheusObserver registers operation latency, error and byte metrics.
// Registering twice against the same registry reuses the existing collectors.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "mediasvc_storage"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	duration, err := registerCollector(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Latency for blob store operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend", "operation"}))
	if err != nil {
		return nil, err
	}
	operationErrors, err := registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operation_errors_total",
		Help:      "Count of blob store failures, excluding missing objects.",
	}, []string{"backend", "operation"}))
	if err != nil {
		return nil, err
	}
	uploadBytes, err := registerCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploaded_bytes_total",
		Help:      "Cumulative payload size successfully written to the store.",
	}, []string{"backend"}))
	if err != nil {
		return nil, err
	}
	return &PrometheusObserver{
		duration:        duration,
		operationErrors: operationErrors,
		uploadBytes:     uploadBytes,
	}, nil
}

func registerCollector[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	if err := reg.Register(collector); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return collector, fmt.Errorf("register storage metric: %w", err)
	}
	return collector, nil
}

// RecordPut tracks write duration, size and failures.
func (o *PrometheusObserver) RecordPut(backend string, duration time.Duration, sizeBytes int64, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues(backend, "put").Observe(duration.Seconds())
	if err != nil {
		o.operationErrors.WithLabelValues(backend, "put").Inc()
		return
	}
	o.uploadBytes.WithLabelValues(backend).Add(float64(sizeBytes))
}

// RecordOperation tracks any non-write operation.
func (o *PrometheusObserver) RecordOperation(backend, op string, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.duration.WithLabelValues(backend, op).Observe(duration.Seconds())
	if err != nil && !errors.Is(err, media.ErrNotFound) {
		o.operationErrors.WithLabelValues(backend, op).Inc()
	}
}

type nopObserver struct{}

func (nopObserver) RecordPut(string, time.Duration, int64, error) {}

func (nopObserver) RecordOperation(string, string, time.Duration, error) {}
