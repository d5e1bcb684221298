package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records reqtrace metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordBatch records one drained batch: events observed and the
	// store population after processing.
	RecordBatch(ctx context.Context, events, inFlight int)

	// RecordCompletion records a completed request with its total
	// latency.
	RecordCompletion(ctx context.Context, category string, total time.Duration)

	// RecordDrop records dropped events for one reason.
	RecordDrop(ctx context.Context, reason string, n int64)

	// RecordDuplicates records duplicate-stage events.
	RecordDuplicates(ctx context.Context, n int64)

	// RecordClockAnomalies records non-monotonic timestamp pairs.
	RecordClockAnomalies(ctx context.Context, n int64)

	// RecordEvictions records requests removed by eviction sweeps.
	RecordEvictions(ctx context.Context, n int64)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	events      metric.Int64Counter
	completions metric.Int64Counter
	latency     metric.Float64Histogram
	drops       metric.Int64Counter
	duplicates  metric.Int64Counter
	anomalies   metric.Int64Counter
	evictions   metric.Int64Counter
	inFlight    metric.Int64Gauge
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("reqtrace")

	events, err := meter.Int64Counter("reqtrace.events",
		metric.WithDescription("Number of events observed"),
	)
	if err != nil {
		return nil, err
	}

	completions, err := meter.Int64Counter("reqtrace.completions",
		metric.WithDescription("Number of completed requests"),
	)
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram("reqtrace.request.latency_ms",
		metric.WithDescription("Total request latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	drops, err := meter.Int64Counter("reqtrace.drops",
		metric.WithDescription("Number of dropped events by reason"),
	)
	if err != nil {
		return nil, err
	}

	duplicates, err := meter.Int64Counter("reqtrace.duplicates",
		metric.WithDescription("Number of duplicate-stage events"),
	)
	if err != nil {
		return nil, err
	}

	anomalies, err := meter.Int64Counter("reqtrace.clock_anomalies",
		metric.WithDescription("Number of non-monotonic timestamp pairs"),
	)
	if err != nil {
		return nil, err
	}

	evictions, err := meter.Int64Counter("reqtrace.evictions",
		metric.WithDescription("Number of requests evicted as stale"),
	)
	if err != nil {
		return nil, err
	}

	inFlight, err := meter.Int64Gauge("reqtrace.inflight",
		metric.WithDescription("Requests currently awaiting completion"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		events:      events,
		completions: completions,
		latency:     latency,
		drops:       drops,
		duplicates:  duplicates,
		anomalies:   anomalies,
		evictions:   evictions,
		inFlight:    inFlight,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordBatch records one drained batch.
func (m *otelMetrics) RecordBatch(ctx context.Context, events, inFlight int) {
	m.events.Add(ctx, int64(events))
	m.inFlight.Record(ctx, int64(inFlight))
}

// RecordCompletion records a completed request.
func (m *otelMetrics) RecordCompletion(ctx context.Context, category string, total time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.String("category", category),
	}
	m.completions.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.latency.Record(ctx, float64(total)/float64(time.Millisecond), metric.WithAttributes(attrs...))
}

// RecordDrop records dropped events for one reason.
func (m *otelMetrics) RecordDrop(ctx context.Context, reason string, n int64) {
	m.drops.Add(ctx, n, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// RecordDuplicates records duplicate-stage events.
func (m *otelMetrics) RecordDuplicates(ctx context.Context, n int64) {
	m.duplicates.Add(ctx, n)
}

// RecordClockAnomalies records non-monotonic timestamp pairs.
func (m *otelMetrics) RecordClockAnomalies(ctx context.Context, n int64) {
	m.anomalies.Add(ctx, n)
}

// RecordEvictions records requests removed by eviction sweeps.
func (m *otelMetrics) RecordEvictions(ctx context.Context, n int64) {
	m.evictions.Add(ctx, n)
}
