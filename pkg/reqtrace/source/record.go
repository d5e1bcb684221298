package source

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
)

// RecordSize is the wire size of one packed event record.
const RecordSize = 56

// ErrShortRecord is returned when a buffer is smaller than RecordSize.
var ErrShortRecord = errors.New("short event record")

// Key is the correlation key of a request: a queue identifier plus the
// caller-assigned request identifier. Single-queue producers leave
// Queue at zero.
type Key struct {
	Queue int32
	ID    uint64
}

// String formats the key for logs. Single-queue keys print as the bare
// request id.
func (k Key) String() string {
	if k.Queue == 0 {
		return strconv.FormatUint(k.ID, 10)
	}
	return fmt.Sprintf("%d/%d", k.Queue, k.ID)
}

// Record is one lifecycle event as delivered by a producer.
//
// The wire encoding is little-endian and fixed at 56 bytes:
//
//	offset  field
//	     0  TS      uint64   monotonic nanoseconds
//	     8  Stage   uint32   wire stage identifier
//	    12  Op      uint32   category code
//	    16  ID      uint64   correlation identifier
//	    24  Result  int64    result code, meaningful at terminal stages
//	    32  PID     uint32   issuing process
//	    36  Queue   int32    submission queue, zero for single-queue
//	    40  Comm    [16]byte process name, NUL padded
type Record struct {
	TS     uint64
	Stage  uint32
	Op     uint32
	ID     uint64
	Result int64
	PID    uint32
	Queue  int32
	Comm   [16]byte
}

// Key returns the record's correlation key.
func (r Record) Key() Key {
	return Key{Queue: r.Queue, ID: r.ID}
}

// CommString returns the process name with NUL padding stripped.
func (r Record) CommString() string {
	if i := bytes.IndexByte(r.Comm[:], 0); i >= 0 {
		return string(r.Comm[:i])
	}
	return string(r.Comm[:])
}

// SetComm stores a process name, truncating to the wire field width.
func (r *Record) SetComm(comm string) {
	r.Comm = [16]byte{}
	copy(r.Comm[:], comm)
}

// Append encodes the record onto dst and returns the extended slice.
func (r Record) Append(dst []byte) []byte {
	var b [RecordSize]byte
	binary.LittleEndian.PutUint64(b[0:], r.TS)
	binary.LittleEndian.PutUint32(b[8:], r.Stage)
	binary.LittleEndian.PutUint32(b[12:], r.Op)
	binary.LittleEndian.PutUint64(b[16:], r.ID)
	binary.LittleEndian.PutUint64(b[24:], uint64(r.Result))
	binary.LittleEndian.PutUint32(b[32:], r.PID)
	binary.LittleEndian.PutUint32(b[36:], uint32(r.Queue))
	copy(b[40:], r.Comm[:])
	return append(dst, b[:]...)
}

// Decode reads one record from the start of b.
func Decode(b []byte) (Record, error) {
	if len(b) < RecordSize {
		return Record{}, fmt.Errorf("%w: %d bytes", ErrShortRecord, len(b))
	}
	var r Record
	r.TS = binary.LittleEndian.Uint64(b[0:])
	r.Stage = binary.LittleEndian.Uint32(b[8:])
	r.Op = binary.LittleEndian.Uint32(b[12:])
	r.ID = binary.LittleEndian.Uint64(b[16:])
	r.Result = int64(binary.LittleEndian.Uint64(b[24:]))
	r.PID = binary.LittleEndian.Uint32(b[32:])
	r.Queue = int32(binary.LittleEndian.Uint32(b[36:]))
	copy(r.Comm[:], b[40:RecordSize])
	return r, nil
}
