package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer is the reqtrace tracer instance.
// Uses the global OTel tracer provider.
var tracer = otel.Tracer("reqtrace")

// SpanManager handles trace span lifecycle.
// Use NewSpanManager() for OTel tracing or NoopSpanManager{} when disabled.
type SpanManager interface {
	// StartSessionSpan starts a span for an entire capture session.
	// Returns the context with span and the span itself.
	StartSessionSpan(ctx context.Context, profile, session string) (context.Context, trace.Span)

	// StartBatchSpan starts a span for one drained batch.
	// The batch span should be a child of the session span.
	StartBatchSpan(ctx context.Context, events int) (context.Context, trace.Span)

	// EndSpanWithError completes a span, optionally recording an error.
	EndSpanWithError(span trace.Span, err error)

	// AddSpanEvent adds an event to the current span in context.
	AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue)
}

// otelSpanManager implements SpanManager using OpenTelemetry.
type otelSpanManager struct{}

// NewSpanManager returns a SpanManager that uses OpenTelemetry.
//
// The span manager uses the global OTel tracer provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetTracerProvider(yourProvider)
func NewSpanManager() SpanManager {
	return &otelSpanManager{}
}

// StartSessionSpan starts a span for an entire capture session.
func (m *otelSpanManager) StartSessionSpan(ctx context.Context, profile, session string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "reqtrace.session",
		trace.WithAttributes(
			attribute.String("profile.name", profile),
			attribute.String("session.id", session),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartBatchSpan starts a span for one drained batch.
func (m *otelSpanManager) StartBatchSpan(ctx context.Context, events int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "reqtrace.batch",
		trace.WithAttributes(
			attribute.Int("batch.events", events),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func (m *otelSpanManager) EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span.
func (m *otelSpanManager) AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Convenience functions that operate on the global tracer.
// These are useful for simple cases where you don't need the interface.

// StartSessionSpan starts a span for an entire capture session.
// Uses the global OTel tracer.
func StartSessionSpan(ctx context.Context, profile, session string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "reqtrace.session",
		trace.WithAttributes(
			attribute.String("profile.name", profile),
			attribute.String("session.id", session),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartBatchSpan starts a span for one drained batch.
// Uses the global OTel tracer.
func StartBatchSpan(ctx context.Context, events int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "reqtrace.batch",
		trace.WithAttributes(
			attribute.Int("batch.events", events),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpanWithError completes a span, optionally recording an error.
func EndSpanWithError(span trace.Span, err error) {
	if span == nil {
		return
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// AddSpanEvent adds an event to the current span in context.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span == nil || !span.IsRecording() {
		return
	}
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
