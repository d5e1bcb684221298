package sink

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/randalmurphal/reqtrace/pkg/reqtrace/breakdown"
)

// NDJSON writes one JSON object per line per completed request. Delta
// values are nanoseconds; unavailable deltas are omitted from the
// deltas object.
type NDJSON struct {
	mu     sync.Mutex
	bw     *bufio.Writer
	enc    *json.Encoder
	closed bool
}

type jsonRecord struct {
	TS     uint64           `json:"ts"`
	Queue  int32            `json:"queue"`
	ID     uint64           `json:"id"`
	Op     string           `json:"op"`
	PID    uint32           `json:"pid"`
	Comm   string           `json:"comm"`
	Result int64            `json:"result"`
	Deltas map[string]int64 `json:"deltas"`
}

// NewNDJSON creates an NDJSON sink writing to w.
func NewNDJSON(w io.Writer) *NDJSON {
	bw := bufio.NewWriter(w)
	return &NDJSON{bw: bw, enc: json.NewEncoder(bw)}
}

// Emit implements Sink.
func (n *NDJSON) Emit(rec *breakdown.Record) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrClosed
	}

	out := jsonRecord{
		TS:     rec.TS,
		Queue:  rec.Key.Queue,
		ID:     rec.Key.ID,
		Op:     rec.Label,
		PID:    rec.PID,
		Comm:   rec.Comm,
		Result: rec.Result,
		Deltas: make(map[string]int64, len(rec.Deltas)),
	}
	for _, d := range rec.Deltas {
		if d.Valid {
			out.Deltas[d.Name] = int64(d.Value)
		}
	}
	if err := n.enc.Encode(out); err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return nil
}

// Flush implements Sink.
func (n *NDJSON) Flush() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return ErrClosed
	}
	return n.bw.Flush()
}

// Close implements Sink.
func (n *NDJSON) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.closed {
		return nil
	}
	n.closed = true
	return n.bw.Flush()
}
