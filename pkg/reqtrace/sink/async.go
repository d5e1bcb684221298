package sink

import (
	"sync"
	"sync/atomic"

	"github.com/randalmurphal/reqtrace/pkg/reqtrace/breakdown"
)

// Async decouples a slow sink from the caller behind a bounded buffer.
// A single worker goroutine drains the buffer into the wrapped sink.
// When the buffer is full the record is dropped and counted rather
// than blocking the caller. A failed downstream Emit is retried once
// before it is counted as an error.
type Async struct {
	next Sink

	mu     sync.RWMutex
	closed bool

	ch       chan *breakdown.Record
	flushReq chan chan error
	done     chan struct{}

	dropped atomic.Uint64
	errs    atomic.Uint64

	onDrop  func(rec *breakdown.Record)
	onError func(err error)
}

// AsyncOption configures an Async sink.
type AsyncOption func(*Async)

// WithBuffer sets the record buffer size. Default: 256.
func WithBuffer(n int) AsyncOption {
	return func(a *Async) {
		if n > 0 {
			a.ch = make(chan *breakdown.Record, n)
		}
	}
}

// WithOnDrop installs a callback invoked for each dropped record.
// The callback runs on the emitting goroutine and must not block.
func WithOnDrop(fn func(rec *breakdown.Record)) AsyncOption {
	return func(a *Async) { a.onDrop = fn }
}

// WithOnError installs a callback invoked when the wrapped sink's Emit
// fails after the retry. The callback runs on the worker goroutine.
func WithOnError(fn func(err error)) AsyncOption {
	return func(a *Async) { a.onError = fn }
}

// NewAsync wraps next behind a buffer and starts the worker.
func NewAsync(next Sink, opts ...AsyncOption) *Async {
	a := &Async{
		next:     next,
		ch:       make(chan *breakdown.Record, 256),
		flushReq: make(chan chan error),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}
	go a.run()
	return a
}

// Emit implements Sink. It never blocks: a full buffer drops the
// record.
func (a *Async) Emit(rec *breakdown.Record) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return ErrClosed
	}

	select {
	case a.ch <- rec:
	default:
		a.dropped.Add(1)
		if a.onDrop != nil {
			a.onDrop(rec)
		}
	}
	return nil
}

// Flush implements Sink. It waits for the worker to drain the buffer
// and flush the wrapped sink.
func (a *Async) Flush() error {
	a.mu.RLock()
	if a.closed {
		a.mu.RUnlock()
		return ErrClosed
	}
	req := make(chan error, 1)
	a.flushReq <- req
	a.mu.RUnlock()
	return <-req
}

// Close implements Sink. It drains buffered records into the wrapped
// sink, stops the worker, and closes the wrapped sink.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.ch)
	a.mu.Unlock()

	<-a.done
	return a.next.Close()
}

// Dropped returns how many records were discarded due to a full
// buffer.
func (a *Async) Dropped() uint64 { return a.dropped.Load() }

// Errors returns how many records the wrapped sink rejected.
func (a *Async) Errors() uint64 { return a.errs.Load() }

func (a *Async) run() {
	defer close(a.done)
	for {
		select {
		case rec, ok := <-a.ch:
			if !ok {
				return
			}
			a.deliver(rec)
		case req := <-a.flushReq:
			a.drain()
			req <- a.next.Flush()
		}
	}
}

// drain empties whatever is currently buffered without blocking.
func (a *Async) drain() {
	for {
		select {
		case rec, ok := <-a.ch:
			if !ok {
				return
			}
			a.deliver(rec)
		default:
			return
		}
	}
}

func (a *Async) deliver(rec *breakdown.Record) {
	err := a.next.Emit(rec)
	if err != nil {
		err = a.next.Emit(rec)
	}
	if err != nil {
		a.errs.Add(1)
		if a.onError != nil {
			a.onError(err)
		}
	}
}
