package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// setupTracingTest creates a test tracer provider with an in-memory span recorder.
func setupTracingTest(t *testing.T) (*tracetest.InMemoryExporter, func()) {
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
	)

	originalProvider := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)

	// Update the package-level tracer
	tracer = otel.Tracer("reqtrace")

	cleanup := func() {
		otel.SetTracerProvider(originalProvider)
		if err := tp.Shutdown(context.Background()); err != nil {
			t.Logf("Error shutting down tracer provider: %v", err)
		}
	}

	return exporter, cleanup
}

func TestStartSessionSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	t.Run("creates span with correct name and attributes", func(t *testing.T) {
		ctx := context.Background()
		_, span := StartSessionSpan(ctx, "fuse", "ses-1a2b3c4d")
		require.NotNil(t, span)
		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)

		s := spans[0]
		assert.Equal(t, "reqtrace.session", s.Name)

		var profile, session string
		for _, attr := range s.Attributes {
			switch attr.Key {
			case "profile.name":
				profile = attr.Value.AsString()
			case "session.id":
				session = attr.Value.AsString()
			}
		}
		assert.Equal(t, "fuse", profile)
		assert.Equal(t, "ses-1a2b3c4d", session)
	})

	t.Run("returns context with span", func(t *testing.T) {
		exporter.Reset()

		ctx := context.Background()
		newCtx, span := StartSessionSpan(ctx, "blk", "ses-x")
		assert.NotEqual(t, ctx, newCtx)
		span.End()

		require.Len(t, exporter.GetSpans(), 1)
	})
}

func TestStartBatchSpan(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	ctx := context.Background()
	_, span := StartBatchSpan(ctx, 256)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "reqtrace.batch", spans[0].Name)

	var events int64
	for _, attr := range spans[0].Attributes {
		if attr.Key == "batch.events" {
			events = attr.Value.AsInt64()
		}
	}
	assert.Equal(t, int64(256), events)
}

func TestEndSpanWithError(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	t.Run("records error and sets error status", func(t *testing.T) {
		exporter.Reset()

		_, span := StartSessionSpan(context.Background(), "fuse", "ses-x")
		EndSpanWithError(span, errors.New("source failed"))

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Error, spans[0].Status.Code)
		assert.Equal(t, "source failed", spans[0].Status.Description)
		require.NotEmpty(t, spans[0].Events)
	})

	t.Run("sets ok status without error", func(t *testing.T) {
		exporter.Reset()

		_, span := StartSessionSpan(context.Background(), "fuse", "ses-x")
		EndSpanWithError(span, nil)

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		assert.Equal(t, codes.Ok, spans[0].Status.Code)
	})

	t.Run("nil span is safe", func(t *testing.T) {
		EndSpanWithError(nil, errors.New("x"))
	})
}

func TestAddSpanEvent(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	t.Run("adds event to recording span", func(t *testing.T) {
		exporter.Reset()

		ctx, span := StartSessionSpan(context.Background(), "fuse", "ses-x")
		AddSpanEvent(ctx, "eviction", attribute.Int("evicted", 3))
		span.End()

		spans := exporter.GetSpans()
		require.Len(t, spans, 1)
		require.Len(t, spans[0].Events, 1)
		assert.Equal(t, "eviction", spans[0].Events[0].Name)
	})

	t.Run("no span in context is safe", func(t *testing.T) {
		AddSpanEvent(context.Background(), "orphan")
	})
}

func TestSpanManager(t *testing.T) {
	exporter, cleanup := setupTracingTest(t)
	defer cleanup()

	mgr := NewSpanManager()
	require.NotNil(t, mgr)

	ctx, session := mgr.StartSessionSpan(context.Background(), "fuse", "ses-x")
	_, batch := mgr.StartBatchSpan(ctx, 10)
	mgr.AddSpanEvent(ctx, "note")
	mgr.EndSpanWithError(batch, nil)
	mgr.EndSpanWithError(session, nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "reqtrace.batch", spans[0].Name)
	assert.Equal(t, "reqtrace.session", spans[1].Name)
}
