package pending

import "sync"

// defaultDropLogSize bounds the ring when no size is configured.
const defaultDropLogSize = 64

// DropLog is a bounded ring of the most recent drops. The store feeds
// it on the observing goroutine; Recent may be called from anywhere.
type DropLog struct {
	mu   sync.Mutex
	buf  []Drop
	next int
	full bool
}

// NewDropLog creates a drop log retaining up to size entries. A size of
// zero or less selects the default.
func NewDropLog(size int) *DropLog {
	if size <= 0 {
		size = defaultDropLogSize
	}
	return &DropLog{buf: make([]Drop, size)}
}

// Add records a drop, displacing the oldest entry when full.
func (l *DropLog) Add(d Drop) {
	l.mu.Lock()
	l.buf[l.next] = d
	l.next++
	if l.next == len(l.buf) {
		l.next = 0
		l.full = true
	}
	l.mu.Unlock()
}

// Len returns the number of retained drops.
func (l *DropLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return len(l.buf)
	}
	return l.next
}

// Recent returns the retained drops, newest first.
func (l *DropLog) Recent() []Drop {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.next
	if l.full {
		n = len(l.buf)
	}
	out := make([]Drop, 0, n)
	for i := 1; i <= n; i++ {
		idx := l.next - i
		if idx < 0 {
			idx += len(l.buf)
		}
		out = append(out, l.buf[idx])
	}
	return out
}
