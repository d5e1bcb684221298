package reqtrace

import (
	"errors"
	"fmt"
)

// Sentinel errors for engine construction.
var (
	// ErrNilSchema indicates New was called without a compiled schema.
	ErrNilSchema = errors.New("schema cannot be nil")

	// ErrNilSource indicates New was called without an event source.
	ErrNilSource = errors.New("event source cannot be nil")
)

// Sentinel errors for session control.
var (
	// ErrNilContext indicates Run was called with a nil context.
	ErrNilContext = errors.New("context cannot be nil")

	// ErrAlreadyRunning indicates Run was called twice. An engine runs
	// exactly one session; create a new engine for the next capture.
	ErrAlreadyRunning = errors.New("engine already running")

	// ErrNotRunning indicates a control call arrived before Run started
	// or after the session ended.
	ErrNotRunning = errors.New("engine not running")
)

// SourceError wraps a failure of the event source. A source error ends
// the session; the engine still flushes sinks and writes the summary
// before returning it.
type SourceError struct {
	// Op is the operation that failed ("poll").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *SourceError) Unwrap() error {
	return e.Err
}

// SinkError wraps a failure of an emission sink. Emit failures are
// logged and the session continues; a failed end-of-session flush is
// returned as a SinkError because buffered records were lost.
type SinkError struct {
	// Op is the operation that failed ("emit", "flush").
	Op string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *SinkError) Unwrap() error {
	return e.Err
}
