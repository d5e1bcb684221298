// Package breakdown turns the raw stage timestamps of one completed
// request into an immutable latency record.
//
// Derivation is table-driven: the schema declares which slot pairs make
// a latency and breakdown computes them, marking a delta invalid when a
// slot is missing or the clock ran backwards between the endpoints.
// Invalid is distinct from zero; a sink can tell "instantaneous" from
// "unavailable".
package breakdown

import (
	"time"

	"github.com/randalmurphal/reqtrace/pkg/reqtrace/source"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/stage"
)

// Delta is one derived latency of a completed request.
type Delta struct {
	Name  string
	Value time.Duration

	// Valid reports whether the value could be computed. A false Valid
	// means an endpoint was never observed or the interval was negative.
	Valid bool
}

// Record is the immutable result of one completed request. It is
// created once at terminal processing and handed to the statistics
// layer and the sinks; nothing mutates it afterwards.
type Record struct {
	Key      source.Key
	Category uint32
	Label    string
	Result   int64
	PID      uint32
	Comm     string

	// Mask and Slots carry the raw observation state for sinks that
	// want the underlying timestamps.
	Mask  stage.Mask
	Slots []uint64

	// Origin is the origin store timestamp attached at creation, zero
	// when none was available.
	Origin uint64

	// TS is the terminal event timestamp, used as the record's time.
	TS uint64

	// Deltas holds the derived latencies in schema order, with the
	// origin delta last when the schema declares one.
	Deltas []Delta
}

// Delta returns the named delta and whether the record carries it.
func (r *Record) Delta(name string) (Delta, bool) {
	for _, d := range r.Deltas {
		if d.Name == name {
			return d, true
		}
	}
	return Delta{}, false
}

// Input is the correlation state handed to Derive when a terminal
// stage arrives. Slots ownership transfers to the produced record.
type Input struct {
	Key      source.Key
	Category uint32
	Result   int64
	PID      uint32
	Comm     string
	Mask     stage.Mask
	Slots    []uint64
	Origin   uint64
	End      uint64
}

// Derive computes the schema's latencies from in and returns the
// completed record plus the number of clock anomalies encountered. An
// anomaly is an interval whose end precedes its start; it invalidates
// that delta and never produces a negative value.
func Derive(s *stage.Schema, in Input) (*Record, int) {
	rec := &Record{
		Key:      in.Key,
		Category: in.Category,
		Label:    s.CategoryName(in.Category),
		Result:   in.Result,
		PID:      in.PID,
		Comm:     in.Comm,
		Mask:     in.Mask,
		Slots:    in.Slots,
		Origin:   in.Origin,
		TS:       in.End,
		Deltas:   make([]Delta, 0, len(s.Deltas)+1),
	}

	anomalies := 0
	for _, d := range s.Deltas {
		out := Delta{Name: d.Name}
		if in.Mask.Has(d.From) && in.Mask.Has(d.To) {
			from, to := in.Slots[d.From], in.Slots[d.To]
			if to >= from {
				out.Value = time.Duration(to - from)
				out.Valid = true
			} else {
				anomalies++
			}
		}
		rec.Deltas = append(rec.Deltas, out)
	}

	if s.OriginDelta != "" {
		out := Delta{Name: s.OriginDelta}
		startSlot := s.StartSlot()
		if in.Origin != 0 && in.Mask.Has(startSlot) {
			start := in.Slots[startSlot]
			if start >= in.Origin {
				out.Value = time.Duration(start - in.Origin)
				out.Valid = true
			} else {
				anomalies++
			}
		}
		rec.Deltas = append(rec.Deltas, out)
	}

	return rec, anomalies
}
