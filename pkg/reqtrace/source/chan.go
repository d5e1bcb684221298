package source

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
)

// ChanSource is an in-process Source backed by a bounded channel.
//
// Send never blocks: when the buffer is full the record is dropped and
// counted, mirroring the loss behavior of a kernel ring buffer under
// backpressure. Producers that must not lose records size the buffer
// accordingly.
type ChanSource struct {
	ch      chan Record
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
	onDrop  func(Record)
}

// ChanOption configures a ChanSource.
type ChanOption func(*ChanSource)

// WithDropHandler installs a callback invoked for each record dropped
// because the buffer was full. The callback runs on the producer's
// goroutine and must not block.
func WithDropHandler(fn func(Record)) ChanOption {
	return func(c *ChanSource) {
		c.onDrop = fn
	}
}

// NewChanSource creates a ChanSource holding up to buffer records.
func NewChanSource(buffer int, opts ...ChanOption) *ChanSource {
	if buffer <= 0 {
		buffer = 1
	}
	c := &ChanSource{
		ch: make(chan Record, buffer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send offers a record to the source. It reports false when the record
// was dropped, either because the buffer is full or the source is
// closed.
func (c *ChanSource) Send(rec Record) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		c.drop(rec)
		return false
	}
	select {
	case c.ch <- rec:
		return true
	default:
		c.drop(rec)
		return false
	}
}

func (c *ChanSource) drop(rec Record) {
	c.dropped.Add(1)
	if c.onDrop != nil {
		c.onDrop(rec)
	}
}

// Dropped returns the number of records lost to a full buffer or a
// closed source.
func (c *ChanSource) Dropped() uint64 {
	return c.dropped.Load()
}

// Poll returns the next batch of buffered records. It blocks for the
// first record, then drains without blocking up to max entries.
func (c *ChanSource) Poll(ctx context.Context, max int) ([]Record, error) {
	if max <= 0 {
		max = 1
	}

	var first Record
	select {
	case rec, ok := <-c.ch:
		if !ok {
			return nil, io.EOF
		}
		first = rec
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	batch := make([]Record, 1, max)
	batch[0] = first
	for len(batch) < max {
		select {
		case rec, ok := <-c.ch:
			if !ok {
				return batch, nil
			}
			batch = append(batch, rec)
		default:
			return batch, nil
		}
	}
	return batch, nil
}

// Close stops accepting records. Buffered records remain pollable;
// afterwards Poll reports io.EOF. Close is idempotent.
func (c *ChanSource) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.ch)
	}
	return nil
}
