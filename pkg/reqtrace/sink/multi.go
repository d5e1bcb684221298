package sink

import (
	"errors"

	"github.com/randalmurphal/reqtrace/pkg/reqtrace/breakdown"
)

// Multi fans every record out to all wrapped sinks. Each operation is
// attempted on every sink even when earlier sinks fail; the errors are
// joined.
type Multi struct {
	sinks []Sink
}

// NewMulti combines sinks into one.
func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

// Emit implements Sink.
func (m *Multi) Emit(rec *breakdown.Record) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Emit(rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Flush implements Sink.
func (m *Multi) Flush() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close implements Sink.
func (m *Multi) Close() error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
