package sink

import (
	"errors"

	"github.com/randalmurphal/reqtrace/pkg/reqtrace/breakdown"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/source"
)

// Archive persists completed request records beyond the life of the
// capture session, keyed by session so several runs can share one
// database. Implementations must be safe for concurrent use.
type Archive interface {
	// Put stores a record under the archive's session.
	Put(rec *breakdown.Record) error

	// Count returns the number of records stored for this session.
	Count() (int64, error)

	// Recent returns up to n records for this session, newest first.
	// Returns an empty slice (not an error) when nothing is stored.
	Recent(n int) ([]Entry, error)

	// Close releases any resources (connections, files).
	Close() error
}

// Entry is an archived record. Deltas hold nanoseconds; unavailable
// deltas are absent.
type Entry struct {
	Session string
	TS      uint64
	Key     source.Key
	Op      string
	Comm    string
	PID     uint32
	Result  int64
	Deltas  map[string]int64
}

// ErrArchiveClosed indicates the archive has been closed.
var ErrArchiveClosed = errors.New("archive closed")

// ArchiveSink adapts an Archive to the Sink interface. Closing the
// sink closes the archive.
type ArchiveSink struct {
	a Archive
}

// NewArchiveSink wraps an archive as a sink.
func NewArchiveSink(a Archive) *ArchiveSink {
	return &ArchiveSink{a: a}
}

// Emit implements Sink.
func (s *ArchiveSink) Emit(rec *breakdown.Record) error {
	return s.a.Put(rec)
}

// Flush implements Sink.
func (s *ArchiveSink) Flush() error { return nil }

// Close implements Sink.
func (s *ArchiveSink) Close() error { return s.a.Close() }

func entryFromRecord(session string, rec *breakdown.Record) Entry {
	e := Entry{
		Session: session,
		TS:      rec.TS,
		Key:     rec.Key,
		Op:      rec.Label,
		Comm:    rec.Comm,
		PID:     rec.PID,
		Result:  rec.Result,
		Deltas:  make(map[string]int64, len(rec.Deltas)),
	}
	for _, d := range rec.Deltas {
		if d.Valid {
			e.Deltas[d.Name] = int64(d.Value)
		}
	}
	return e
}
