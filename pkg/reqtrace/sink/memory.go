package sink

import (
	"sync"

	"github.com/randalmurphal/reqtrace/pkg/reqtrace/breakdown"
)

// MemoryArchive is an in-memory archive for testing. Data is lost when
// the process exits.
type MemoryArchive struct {
	mu      sync.RWMutex
	session string
	entries []Entry
	closed  bool
}

// NewMemoryArchive creates an in-memory archive stamped with session.
func NewMemoryArchive(session string) *MemoryArchive {
	return &MemoryArchive{session: session}
}

// Put implements Archive.
func (m *MemoryArchive) Put(rec *breakdown.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrArchiveClosed
	}
	m.entries = append(m.entries, entryFromRecord(m.session, rec))
	return nil
}

// Count implements Archive.
func (m *MemoryArchive) Count() (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrArchiveClosed
	}
	return int64(len(m.entries)), nil
}

// Recent implements Archive.
func (m *MemoryArchive) Recent(n int) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrArchiveClosed
	}
	if n > len(m.entries) {
		n = len(m.entries)
	}
	out := make([]Entry, 0, n)
	for i := len(m.entries) - 1; i >= len(m.entries)-n; i-- {
		out = append(out, m.entries[i])
	}
	return out, nil
}

// Close implements Archive.
func (m *MemoryArchive) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.entries = nil
	return nil
}
