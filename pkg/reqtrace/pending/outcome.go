package pending

import "github.com/randalmurphal/reqtrace/pkg/reqtrace/breakdown"

// OutcomeKind classifies what one observed event did to correlation
// state.
type OutcomeKind uint8

const (
	// OutcomeContinuing: the event was absorbed and the request is
	// still in flight (or the event was an origin or duplicate).
	OutcomeContinuing OutcomeKind = iota

	// OutcomeCompleted: the event was terminal and a latency record was
	// derived. The request's state is gone from the store.
	OutcomeCompleted

	// OutcomeDropped: the event produced no correlation progress.
	OutcomeDropped
)

// String returns the kind's name.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeContinuing:
		return "continuing"
	case OutcomeCompleted:
		return "completed"
	case OutcomeDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Outcome is the result of observing one event.
type Outcome struct {
	Kind OutcomeKind

	// Record is the derived latency record when Kind is
	// OutcomeCompleted, nil otherwise.
	Record *breakdown.Record

	// Reason explains the drop when Kind is OutcomeDropped.
	Reason DropReason
}

// DropReason explains why an event or a pending request was discarded.
type DropReason uint8

const (
	// ReasonUnknownKey: a non-start event arrived for a key with no
	// pending state. No state is allocated for it.
	ReasonUnknownKey DropReason = iota

	// ReasonUnknownStage: the wire stage identifier is not in the
	// schema.
	ReasonUnknownStage

	// ReasonCapacity: a start event was rejected because the store is
	// at capacity.
	ReasonCapacity

	// ReasonEvicted: pending state was removed by an eviction sweep
	// before its terminal stage arrived.
	ReasonEvicted
)

// String returns the reason's name.
func (r DropReason) String() string {
	switch r {
	case ReasonUnknownKey:
		return "unknown-key"
	case ReasonUnknownStage:
		return "unknown-stage"
	case ReasonCapacity:
		return "capacity"
	case ReasonEvicted:
		return "evicted"
	default:
		return "unknown"
	}
}
