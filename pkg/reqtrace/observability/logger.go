// Package observability provides production-grade observability features
// for reqtrace: structured logging, metrics, and distributed tracing.
//
// Features:
//   - Structured logging via slog (Go stdlib)
//   - Metrics via OpenTelemetry
//   - Tracing via OpenTelemetry
//
// All features are opt-in and have no-op implementations when disabled.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger adds capture-session context to a logger.
// Returns a new logger with session and profile fields.
//
// Example:
//
//	enriched := EnrichLogger(logger, "ses-1a2b3c4d", "fuse")
//	enriched.Info("draining") // includes session, profile
func EnrichLogger(logger *slog.Logger, session, profile string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("session", session),
		slog.String("profile", profile),
	)
}

// LogSessionStart logs the start of a capture session.
func LogSessionStart(logger *slog.Logger, session, profile string) {
	if logger == nil {
		return
	}
	logger.Info("capture session starting",
		slog.String("session", session),
		slog.String("profile", profile),
	)
}

// LogSessionComplete logs the end of a capture session.
func LogSessionComplete(logger *slog.Logger, session string, durationMs float64, completed, drops uint64) {
	if logger == nil {
		return
	}
	logger.Info("capture session complete",
		slog.String("session", session),
		slog.Float64("duration_ms", durationMs),
		slog.Uint64("completed", completed),
		slog.Uint64("drops", drops),
	)
}

// LogBatch logs one drained batch.
func LogBatch(logger *slog.Logger, events, inFlight int) {
	if logger == nil {
		return
	}
	logger.Debug("batch drained",
		slog.Int("events", events),
		slog.Int("in_flight", inFlight),
	)
}

// LogDrop logs a dropped event. Callers are expected to sample; at
// high drop rates one line per event would swamp the log.
func LogDrop(logger *slog.Logger, key, reason string) {
	if logger == nil {
		return
	}
	logger.Debug("event dropped",
		slog.String("key", key),
		slog.String("reason", reason),
	)
}

// LogEviction logs an eviction sweep.
func LogEviction(logger *slog.Logger, evicted, inFlight int) {
	if logger == nil {
		return
	}
	logger.Debug("eviction sweep",
		slog.Int("evicted", evicted),
		slog.Int("in_flight", inFlight),
	)
}

// LogSinkError logs a sink write failure (non-fatal).
func LogSinkError(logger *slog.Logger, op string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("sink failed",
		slog.String("operation", op),
		slog.String("error", err.Error()),
	)
}

// LogSourceError logs an event source failure.
func LogSourceError(logger *slog.Logger, err error) {
	if logger == nil {
		return
	}
	logger.Error("event source failed",
		slog.String("error", err.Error()),
	)
}

// TimedOperation measures the duration of an operation.
// Returns a function that, when called, returns the elapsed time in milliseconds.
//
// Example:
//
//	done := TimedOperation()
//	// ... do work ...
//	durationMs := done()
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Milliseconds())
	}
}
