package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// Replay reads packed event records from a capture stream, typically a
// file written by a Writer or dumped straight off a ring buffer.
type Replay struct {
	br  *bufio.Reader
	c   io.Closer
	err error
}

// NewReplay creates a Replay over r. When r is an io.Closer, Close
// forwards to it.
func NewReplay(r io.Reader) *Replay {
	rp := &Replay{br: bufio.NewReaderSize(r, 64*RecordSize)}
	if c, ok := r.(io.Closer); ok {
		rp.c = c
	}
	return rp
}

// OpenReplay opens a capture file for replay.
func OpenReplay(path string) (*Replay, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}
	return NewReplay(f), nil
}

// Poll decodes up to max records from the stream. A capture ending in
// the middle of a record is reported as an error, not silently
// truncated.
func (r *Replay) Poll(ctx context.Context, max int) ([]Record, error) {
	if r.err != nil {
		return nil, r.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if max <= 0 {
		max = 1
	}

	var (
		buf   [RecordSize]byte
		batch []Record
	)
	for len(batch) < max {
		_, err := io.ReadFull(r.br, buf[:])
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				r.err = io.EOF
			case errors.Is(err, io.ErrUnexpectedEOF):
				r.err = fmt.Errorf("truncated record at end of capture: %w", err)
			default:
				r.err = fmt.Errorf("read capture: %w", err)
			}
			if len(batch) > 0 {
				return batch, nil
			}
			return nil, r.err
		}
		rec, err := Decode(buf[:])
		if err != nil {
			r.err = err
			return batch, nil
		}
		batch = append(batch, rec)
	}
	return batch, nil
}

// Close closes the underlying reader when it is closable.
func (r *Replay) Close() error {
	if r.c != nil {
		return r.c.Close()
	}
	return nil
}

// Writer writes packed event records, producing the capture format
// Replay reads back.
type Writer struct {
	bw  *bufio.Writer
	c   io.Closer
	buf []byte
}

// NewWriter creates a capture writer over w. When w is an io.Closer,
// Close forwards to it after flushing.
func NewWriter(w io.Writer) *Writer {
	cw := &Writer{bw: bufio.NewWriterSize(w, 64*RecordSize)}
	if c, ok := w.(io.Closer); ok {
		cw.c = c
	}
	return cw
}

// CreateCapture creates or truncates a capture file for writing.
func CreateCapture(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create capture: %w", err)
	}
	return NewWriter(f), nil
}

// Write appends one record to the capture.
func (w *Writer) Write(rec Record) error {
	w.buf = rec.Append(w.buf[:0])
	if _, err := w.bw.Write(w.buf); err != nil {
		return fmt.Errorf("write capture: %w", err)
	}
	return nil
}

// Flush pushes buffered records to the underlying writer.
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

// Close flushes and closes the underlying writer when it is closable.
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		return err
	}
	if w.c != nil {
		return w.c.Close()
	}
	return nil
}
