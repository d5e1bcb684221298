package sink_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/reqtrace/pkg/reqtrace/sink"
)

func TestNDJSON_OneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	n := sink.NewNDJSON(&buf)

	require.NoError(t, n.Emit(testRecord()))
	require.NoError(t, n.Emit(testRecord()))
	require.NoError(t, n.Close())

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)

	var got struct {
		TS     uint64           `json:"ts"`
		Queue  int32            `json:"queue"`
		ID     uint64           `json:"id"`
		Op     string           `json:"op"`
		PID    uint32           `json:"pid"`
		Comm   string           `json:"comm"`
		Result int64            `json:"result"`
		Deltas map[string]int64 `json:"deltas"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))

	assert.Equal(t, uint64(620), got.TS)
	assert.Equal(t, uint64(7), got.ID)
	assert.Equal(t, "LOOKUP", got.Op)
	assert.Equal(t, uint32(4242), got.PID)
	assert.Equal(t, "fio", got.Comm)
	assert.Equal(t, int64(50000), got.Deltas["queuing"])
	assert.Equal(t, int64(520000), got.Deltas["total"])

	// Unavailable deltas are omitted entirely.
	_, ok := got.Deltas["alloc"]
	assert.False(t, ok)
}

func TestNDJSON_BuffersUntilFlush(t *testing.T) {
	var buf bytes.Buffer
	n := sink.NewNDJSON(&buf)

	require.NoError(t, n.Emit(testRecord()))
	assert.Zero(t, buf.Len())

	require.NoError(t, n.Flush())
	assert.NotZero(t, buf.Len())
}

func TestNDJSON_EmitAfterClose(t *testing.T) {
	n := sink.NewNDJSON(&bytes.Buffer{})
	require.NoError(t, n.Close())
	assert.ErrorIs(t, n.Emit(testRecord()), sink.ErrClosed)
}
