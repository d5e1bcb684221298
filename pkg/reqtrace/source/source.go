// Package source defines the boundary between the correlation engine
// and whatever produces lifecycle event records.
//
// Producers are typically kernel-side probes draining into a ring
// buffer, but the engine only sees the Source interface: a Poll call
// that yields batches of fixed-size records, and a Close. Two
// implementations ship with the package:
//
//   - ChanSource: an in-process bounded queue with ring-buffer loss
//     semantics, for live producers and tests.
//   - Replay: a reader over the packed binary capture format, for
//     offline processing of recorded sessions.
//
// Delivery is assumed lossy and unordered. The correlation layer owns
// all handling of missing or out-of-order stages.
package source

import "context"

// Source yields lifecycle event records to the engine's drain loop.
type Source interface {
	// Poll returns the next batch of records, at most max entries. It
	// blocks until at least one record is available or ctx is done, and
	// returns io.EOF once the source is exhausted.
	Poll(ctx context.Context, max int) ([]Record, error)

	// Close releases the source. Records already buffered remain
	// readable; Poll reports io.EOF after they drain.
	Close() error
}
