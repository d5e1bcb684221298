package sink

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"sync"

	"github.com/randalmurphal/reqtrace/pkg/reqtrace/breakdown"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/stage"
)

// CSV writes one row per completed request. The column set is fixed at
// construction from the schema: ts, queue, id, op, pid, comm, result,
// then one <delta>_us column per schema delta. Latency columns hold
// integer microseconds, -1 when the delta is unavailable.
type CSV struct {
	mu         sync.Mutex
	w          *csv.Writer
	deltas     []string
	row        []string
	since      int
	flushEvery int
	closed     bool
}

// CSVOption configures a CSV sink.
type CSVOption func(*CSV)

// WithFlushEvery sets how many rows are buffered between flushes.
// Default: 100.
func WithFlushEvery(n int) CSVOption {
	return func(c *CSV) {
		if n > 0 {
			c.flushEvery = n
		}
	}
}

// NewCSV creates a CSV sink and writes the header row.
func NewCSV(w io.Writer, schema *stage.Schema, opts ...CSVOption) (*CSV, error) {
	deltas := schema.DeltaNames()
	c := &CSV{
		w:          csv.NewWriter(w),
		deltas:     deltas,
		row:        make([]string, 0, 7+len(deltas)),
		flushEvery: 100,
	}
	for _, opt := range opts {
		opt(c)
	}

	header := append([]string{"ts", "queue", "id", "op", "pid", "comm", "result"}, deltas...)
	for i := 7; i < len(header); i++ {
		header[i] += "_us"
	}
	if err := c.w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	return c, nil
}

// Emit implements Sink.
func (c *CSV) Emit(rec *breakdown.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	row := c.row[:0]
	row = append(row,
		strconv.FormatUint(rec.TS, 10),
		strconv.FormatInt(int64(rec.Key.Queue), 10),
		strconv.FormatUint(rec.Key.ID, 10),
		rec.Label,
		strconv.FormatUint(uint64(rec.PID), 10),
		rec.Comm,
		strconv.FormatInt(rec.Result, 10),
	)
	for _, name := range c.deltas {
		d, ok := rec.Delta(name)
		if !ok || !d.Valid {
			row = append(row, "-1")
			continue
		}
		row = append(row, strconv.FormatInt(d.Value.Microseconds(), 10))
	}
	c.row = row

	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("write csv row: %w", err)
	}
	c.since++
	if c.since >= c.flushEvery {
		return c.flushLocked()
	}
	return nil
}

// Flush implements Sink.
func (c *CSV) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	return c.flushLocked()
}

func (c *CSV) flushLocked() error {
	c.since = 0
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// Close implements Sink.
func (c *CSV) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}
