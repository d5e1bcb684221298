package reqtrace

import (
	"context"
	"sync"
	"time"

	"github.com/randalmurphal/reqtrace/pkg/reqtrace/breakdown"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/observability"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/source"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/stage"
)

// testSchema is a three-stage lifecycle: SUBMIT fills the queued slot,
// EXEC the started slot, DONE completes the request.
var testSchema = stage.MustCompile(stage.Schema{
	Name:  "test",
	Slots: []string{"queued", "started", "done"},
	Stages: []stage.Stage{
		{ID: 1, Name: "SUBMIT", Slot: 0, Start: true},
		{ID: 2, Name: "EXEC", Slot: 1},
		{ID: 3, Name: "DONE", Slot: 2, Terminal: true},
	},
	Deltas: []stage.Delta{
		{Name: "wait", From: 0, To: 1},
		{Name: "run", From: 1, To: 2},
		{Name: "total", From: 0, To: 2},
	},
	StatsDelta: "total",
	Categories: map[uint32]string{1: "READ", 2: "WRITE"},
})

// ev builds one lifecycle event.
func ev(id uint64, stageID uint32, ts uint64, op uint32) source.Record {
	rec := source.Record{TS: ts, Stage: stageID, Op: op, ID: id, PID: 4242}
	rec.SetComm("engine-test")
	return rec
}

// lifecycle sends a full submit/exec/done sequence: 50us wait, 70us
// run, 120us total.
func lifecycle(src *source.ChanSource, id uint64, base uint64, op uint32) {
	src.Send(ev(id, 1, base, op))
	src.Send(ev(id, 2, base+50_000, op))
	src.Send(ev(id, 3, base+120_000, op))
}

// captureSink collects emitted records for assertions.
type captureSink struct {
	mu       sync.Mutex
	records  []*breakdown.Record
	flushes  int
	emitErr  error
	flushErr error
}

func (c *captureSink) Emit(rec *breakdown.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.emitErr != nil {
		return c.emitErr
	}
	c.records = append(c.records, rec)
	return nil
}

func (c *captureSink) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.flushErr != nil {
		return c.flushErr
	}
	c.flushes++
	return nil
}

func (c *captureSink) Close() error { return nil }

func (c *captureSink) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

func (c *captureSink) flushed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flushes
}

// errSource yields one batch, then fails every poll.
type errSource struct {
	batch []source.Record
	err   error
	polls int
}

func (s *errSource) Poll(_ context.Context, _ int) ([]source.Record, error) {
	s.polls++
	if s.polls == 1 {
		return s.batch, nil
	}
	return nil, s.err
}

func (s *errSource) Close() error { return nil }

// metricsTally is the counter state of a stubMetrics, copyable for
// race-free assertions.
type metricsTally struct {
	events      int
	completions map[string]int
	drops       map[string]int64
	duplicates  int64
	anomalies   int64
	evictions   int64
}

// stubMetrics counts recorder calls for engine-level assertions.
type stubMetrics struct {
	mu sync.Mutex
	metricsTally
}

var _ observability.MetricsRecorder = (*stubMetrics)(nil)

func newStubMetrics() *stubMetrics {
	return &stubMetrics{
		metricsTally: metricsTally{
			completions: make(map[string]int),
			drops:       make(map[string]int64),
		},
	}
}

func (m *stubMetrics) RecordBatch(_ context.Context, events, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events += events
}

func (m *stubMetrics) RecordCompletion(_ context.Context, category string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completions[category]++
}

func (m *stubMetrics) RecordDrop(_ context.Context, reason string, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drops[reason] += n
}

func (m *stubMetrics) RecordDuplicates(_ context.Context, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.duplicates += n
}

func (m *stubMetrics) RecordClockAnomalies(_ context.Context, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anomalies += n
}

func (m *stubMetrics) RecordEvictions(_ context.Context, n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evictions += n
}

func (m *stubMetrics) snapshot() metricsTally {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := metricsTally{
		events:      m.events,
		completions: make(map[string]int, len(m.completions)),
		drops:       make(map[string]int64, len(m.drops)),
		duplicates:  m.duplicates,
		anomalies:   m.anomalies,
		evictions:   m.evictions,
	}
	for k, v := range m.completions {
		out.completions[k] = v
	}
	for k, v := range m.drops {
		out.drops[k] = v
	}
	return out
}
