package sink_test

import (
	"sync"
	"time"

	"github.com/randalmurphal/reqtrace/pkg/reqtrace/breakdown"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/sink"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/source"
)

// testRecord returns a completed request with one unavailable delta.
func testRecord() *breakdown.Record {
	return &breakdown.Record{
		Key:      source.Key{Queue: 0, ID: 7},
		Category: 1,
		Label:    "LOOKUP",
		PID:      4242,
		Comm:     "fio",
		TS:       620,
		Deltas: []breakdown.Delta{
			{Name: "queuing", Value: 50 * time.Microsecond, Valid: true},
			{Name: "daemon", Value: 350 * time.Microsecond, Valid: true},
			{Name: "response", Value: 120 * time.Microsecond, Valid: true},
			{Name: "total", Value: 520 * time.Microsecond, Valid: true},
			{Name: "alloc", Valid: false},
		},
	}
}

// stubSink records everything it receives. Safe for concurrent use so
// async worker goroutines can feed it while the test inspects it.
type stubSink struct {
	mu      sync.Mutex
	emitted []*breakdown.Record
	flushes int
	closed  bool
	emitErr error
}

func (s *stubSink) Emit(rec *breakdown.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.emitErr != nil {
		return s.emitErr
	}
	s.emitted = append(s.emitted, rec)
	return nil
}

func (s *stubSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func (s *stubSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.emitted)
}

func (s *stubSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ sink.Sink = (*stubSink)(nil)
