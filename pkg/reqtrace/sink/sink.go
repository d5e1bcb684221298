// Package sink delivers completed request records to their destinations.
//
// A Sink receives fully-derived records from the engine and writes them
// somewhere: a CSV or NDJSON stream, a human-readable text log, an
// archive database. Sinks compose: Multi fans a record out to several
// sinks, Async decouples a slow sink from the drain loop behind a
// bounded buffer.
//
// The engine treats sink errors as reportable, never fatal: a failing
// sink is logged and counted while correlation continues.
package sink

import (
	"errors"

	"github.com/randalmurphal/reqtrace/pkg/reqtrace/breakdown"
)

// Sink consumes completed request records.
// Emit may retain the record; records are immutable once emitted.
type Sink interface {
	// Emit writes one record.
	Emit(rec *breakdown.Record) error

	// Flush forces any buffered records to the underlying destination.
	Flush() error

	// Close flushes and releases resources. Emit after Close returns
	// ErrClosed.
	Close() error
}

// ErrClosed indicates the sink has been closed.
var ErrClosed = errors.New("sink closed")
