package observability

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// captureLogger returns a debug-level logger writing JSON lines to the
// returned buffer.
func captureLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	h := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return slog.New(h), buf
}

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.NotEmpty(t, lines)
	var m map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &m))
	return m
}

func TestEnrichLogger(t *testing.T) {
	t.Run("adds session and profile", func(t *testing.T) {
		logger, buf := captureLogger()

		enriched := EnrichLogger(logger, "ses-1a2b3c4d", "fuse")
		enriched.Info("test message")

		rec := lastRecord(t, buf)
		assert.Equal(t, "ses-1a2b3c4d", rec["session"])
		assert.Equal(t, "fuse", rec["profile"])
		assert.Equal(t, "test message", rec["msg"])
	})

	t.Run("nil logger returns nil", func(t *testing.T) {
		assert.Nil(t, EnrichLogger(nil, "ses-x", "fuse"))
	})
}

func TestLogFunctions_NilSafe(t *testing.T) {
	// None of these should panic with a nil logger.
	LogSessionStart(nil, "ses-x", "fuse")
	LogSessionComplete(nil, "ses-x", 1.0, 2, 3)
	LogBatch(nil, 10, 5)
	LogDrop(nil, "0:41", "unknown-key")
	LogEviction(nil, 3, 7)
	LogSinkError(nil, "emit", errors.New("x"))
	LogSourceError(nil, errors.New("x"))
}

func TestLogSessionStart(t *testing.T) {
	logger, buf := captureLogger()

	LogSessionStart(logger, "ses-1a2b3c4d", "fuse")

	rec := lastRecord(t, buf)
	assert.Equal(t, "capture session starting", rec["msg"])
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "ses-1a2b3c4d", rec["session"])
	assert.Equal(t, "fuse", rec["profile"])
}

func TestLogSessionComplete(t *testing.T) {
	logger, buf := captureLogger()

	LogSessionComplete(logger, "ses-1a2b3c4d", 1234.5, 100, 7)

	rec := lastRecord(t, buf)
	assert.Equal(t, "capture session complete", rec["msg"])
	assert.Equal(t, 1234.5, rec["duration_ms"])
	assert.Equal(t, float64(100), rec["completed"])
	assert.Equal(t, float64(7), rec["drops"])
}

func TestLogDrop(t *testing.T) {
	logger, buf := captureLogger()

	LogDrop(logger, "2:41", "unknown-key")

	rec := lastRecord(t, buf)
	assert.Equal(t, "event dropped", rec["msg"])
	assert.Equal(t, "DEBUG", rec["level"])
	assert.Equal(t, "2:41", rec["key"])
	assert.Equal(t, "unknown-key", rec["reason"])
}

func TestLogSinkError(t *testing.T) {
	logger, buf := captureLogger()

	LogSinkError(logger, "emit", errors.New("disk full"))

	rec := lastRecord(t, buf)
	assert.Equal(t, "sink failed", rec["msg"])
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "emit", rec["operation"])
	assert.Equal(t, "disk full", rec["error"])
}

func TestLogSourceError(t *testing.T) {
	logger, buf := captureLogger()

	LogSourceError(logger, errors.New("ring torn down"))

	rec := lastRecord(t, buf)
	assert.Equal(t, "event source failed", rec["msg"])
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "ring torn down", rec["error"])
}

func TestTimedOperation(t *testing.T) {
	done := TimedOperation()
	time.Sleep(15 * time.Millisecond)
	assert.GreaterOrEqual(t, done(), 10.0)
}
