package sink

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/randalmurphal/reqtrace/pkg/reqtrace/breakdown"
)

// Text writes a human-readable breakdown block per completed request,
// optionally sampling one in every N records to keep high-rate traces
// readable.
type Text struct {
	mu     sync.Mutex
	w      io.Writer
	buf    bytes.Buffer
	every  uint64
	seen   uint64
	closed bool
}

// TextOption configures a Text sink.
type TextOption func(*Text)

// WithSampleEvery emits only one in every n records. Default: 1
// (every record).
func WithSampleEvery(n int) TextOption {
	return func(t *Text) {
		if n > 0 {
			t.every = uint64(n)
		}
	}
}

// NewText creates a text sink writing to w.
func NewText(w io.Writer, opts ...TextOption) *Text {
	t := &Text{w: w, every: 1}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Emit implements Sink.
func (t *Text) Emit(rec *breakdown.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}

	t.seen++
	if (t.seen-1)%t.every != 0 {
		return nil
	}

	b := &t.buf
	b.Reset()
	fmt.Fprintf(b, "===== %s queue=%d id=%d comm=%s pid=%d", rec.Label, rec.Key.Queue, rec.Key.ID, rec.Comm, rec.PID)
	if rec.Result != 0 {
		fmt.Fprintf(b, " result=%d", rec.Result)
	}
	b.WriteString(" =====\n")
	for _, d := range rec.Deltas {
		if !d.Valid {
			fmt.Fprintf(b, "  %-10s %14s\n", d.Name, "-")
			continue
		}
		fmt.Fprintf(b, "  %-10s %14v\n", d.Name, d.Value)
	}

	// Single write so concurrent emitters cannot interleave blocks.
	if _, err := t.w.Write(b.Bytes()); err != nil {
		return fmt.Errorf("write text block: %w", err)
	}
	return nil
}

// Flush implements Sink.
func (t *Text) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrClosed
	}
	return nil
}

// Close implements Sink.
func (t *Text) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.closed = true
	return nil
}
