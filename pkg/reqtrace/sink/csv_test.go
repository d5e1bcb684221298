package sink_test

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/reqtrace/pkg/reqtrace/sink"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/stage"
)

func TestCSV_HeaderAndRow(t *testing.T) {
	var buf bytes.Buffer
	schema := stage.MustLookup("fuse")

	c, err := sink.NewCSV(&buf, schema)
	require.NoError(t, err)

	require.NoError(t, c.Emit(testRecord()))
	require.NoError(t, c.Close())

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, []string{
		"ts", "queue", "id", "op", "pid", "comm", "result",
		"queuing_us", "daemon_us", "response_us", "total_us", "alloc_us",
	}, rows[0])

	// Valid deltas in microseconds, unavailable ones as -1.
	assert.Equal(t, []string{
		"620", "0", "7", "LOOKUP", "4242", "fio", "0",
		"50", "350", "120", "520", "-1",
	}, rows[1])
}

func TestCSV_FlushEvery(t *testing.T) {
	var buf bytes.Buffer
	schema := stage.MustLookup("fuse")

	c, err := sink.NewCSV(&buf, schema, sink.WithFlushEvery(2))
	require.NoError(t, err)

	// Header is flushed at construction; rows buffer until the
	// threshold.
	require.NoError(t, c.Emit(testRecord()))
	assert.Equal(t, 1, strings.Count(buf.String(), "\n"))

	require.NoError(t, c.Emit(testRecord()))
	assert.Equal(t, 3, strings.Count(buf.String(), "\n"))
}

func TestCSV_EmitAfterClose(t *testing.T) {
	var buf bytes.Buffer
	c, err := sink.NewCSV(&buf, stage.MustLookup("fuse"))
	require.NoError(t, err)

	require.NoError(t, c.Close())
	assert.ErrorIs(t, c.Emit(testRecord()), sink.ErrClosed)
	assert.ErrorIs(t, c.Flush(), sink.ErrClosed)
	assert.NoError(t, c.Close())
}
