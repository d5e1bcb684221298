package sink_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/reqtrace/pkg/reqtrace/sink"
)

func TestText_Block(t *testing.T) {
	var buf bytes.Buffer
	s := sink.NewText(&buf)

	require.NoError(t, s.Emit(testRecord()))

	out := buf.String()
	assert.Contains(t, out, "===== LOOKUP queue=0 id=7 comm=fio pid=4242 =====")
	assert.Contains(t, out, "queuing")
	assert.Contains(t, out, "50µs")
	assert.Contains(t, out, "520µs")

	// Unavailable deltas render as a dash.
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "alloc") {
			assert.Contains(t, line, "-")
			assert.NotContains(t, line, "µs")
		}
	}
}

func TestText_NonzeroResult(t *testing.T) {
	var buf bytes.Buffer
	s := sink.NewText(&buf)

	rec := testRecord()
	rec.Result = -5
	require.NoError(t, s.Emit(rec))

	assert.Contains(t, buf.String(), "result=-5")
}

func TestText_Sampling(t *testing.T) {
	var buf bytes.Buffer
	s := sink.NewText(&buf, sink.WithSampleEvery(3))

	for i := 0; i < 7; i++ {
		require.NoError(t, s.Emit(testRecord()))
	}

	// Records 1, 4 and 7 are written.
	assert.Equal(t, 3, strings.Count(buf.String(), "===== LOOKUP"))
}

func TestText_EmitAfterClose(t *testing.T) {
	s := sink.NewText(&bytes.Buffer{})
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Emit(testRecord()), sink.ErrClosed)
}
