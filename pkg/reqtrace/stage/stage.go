// Package stage defines the data-driven stage tables that drive request
// correlation.
//
// A Schema names the instrumentation points of one request lifecycle
// (slots), maps wire stage identifiers onto those slots, and declares
// which slot pairs produce derived latencies. Schemas are plain data:
// the correlation store and the engine read them and never hard-code
// stage semantics, so adding an instrumentation point is a table edit,
// not a code change.
//
// Built-in profiles for the supported tracers (fuse, fusecopy, rfuse,
// blk) are registered at init time and fetched with Lookup. Custom
// schemas are built as literals and passed through Compile.
package stage

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
)

// MaxSlots is the largest number of timestamp slots a schema may declare.
// Seen-state is tracked in a 64-bit mask.
const MaxSlots = 64

// Slot indexes a timestamp slot within a schema.
type Slot uint8

// Mask is a bitset recording which slots of a request have been filled.
type Mask uint64

// Has reports whether slot s is set in the mask.
func (m Mask) Has(s Slot) bool { return m&(1<<s) != 0 }

// Set returns a copy of the mask with slot s set.
func (m Mask) Set(s Slot) Mask { return m | (1 << s) }

// Count returns the number of slots set in the mask.
func (m Mask) Count() int { return bits.OnesCount64(uint64(m)) }

// Stage maps one wire event type onto a schema slot.
type Stage struct {
	// ID is the event type identifier carried on the wire.
	ID uint32

	// Name is the stage name used in logs and drop records.
	Name string

	// Slot receives the event timestamp. Ignored for origin stages.
	Slot Slot

	// Start marks the stage that creates correlation state. Events for
	// any other stage of an unknown key are dropped without allocating.
	Start bool

	// Terminal marks a stage that completes the request. Processing a
	// terminal event derives the latency record and removes the state.
	Terminal bool

	// Origin marks a stage recorded in the per-process origin store
	// instead of the request state. An origin timestamp observed before
	// the start stage of the same process is attached to the request
	// when it is created.
	Origin bool
}

// Delta declares one derived latency: the time from slot From to slot To.
// The value is computed only when both slots have been seen.
type Delta struct {
	Name string
	From Slot
	To   Slot
}

// Schema describes one request lifecycle: its slots, the wire stages
// that fill them, and the latencies derived between them.
//
// Populate the exported fields and pass the value to Compile. Compiled
// schemas are immutable and safe for concurrent use.
type Schema struct {
	// Name identifies the schema in logs, summaries and the registry.
	Name string

	// Slots holds the timestamp slot names, in slot order.
	Slots []string

	// Stages maps wire identifiers onto slots.
	Stages []Stage

	// Deltas lists the derived latencies, in emission order.
	Deltas []Delta

	// OriginDelta, when non-empty, names the latency from the origin
	// timestamp to the start slot. It is emitted after Deltas.
	OriginDelta string

	// StatsDelta names the delta fed to the primary statistics
	// aggregator. Defaults to the first delta.
	StatsDelta string

	// Categories maps category codes to labels. Codes without an entry
	// format as decimal numbers.
	Categories map[uint32]string

	byID  map[uint32]int // wire ID -> Stages index
	start int            // Stages index of the start stage
}

// Validation errors returned by Compile.
var (
	ErrNoSlots     = errors.New("schema has no slots")
	ErrNoStages    = errors.New("schema has no stages")
	ErrNoDeltas    = errors.New("schema has no deltas")
	ErrNoStart     = errors.New("schema has no start stage")
	ErrNoTerminal  = errors.New("schema has no terminal stage")
	ErrMultiStart  = errors.New("schema has more than one start stage")
	ErrMultiOrigin = errors.New("schema has more than one origin stage")
)

// Compile validates s and returns an indexed copy ready for use by the
// correlation store. The input value is not retained.
func Compile(s Schema) (*Schema, error) {
	cp := s
	cp.Slots = append([]string(nil), s.Slots...)
	cp.Stages = append([]Stage(nil), s.Stages...)
	cp.Deltas = append([]Delta(nil), s.Deltas...)
	if s.Categories != nil {
		cp.Categories = make(map[uint32]string, len(s.Categories))
		for k, v := range s.Categories {
			cp.Categories[k] = v
		}
	}

	if err := cp.compile(); err != nil {
		return nil, fmt.Errorf("schema %q: %w", s.Name, err)
	}
	return &cp, nil
}

// MustCompile is like Compile but panics on error. Intended for the
// built-in profiles and for tests.
func MustCompile(s Schema) *Schema {
	c, err := Compile(s)
	if err != nil {
		panic(err)
	}
	return c
}

func (s *Schema) compile() error {
	if s.Name == "" {
		return errors.New("schema name is required")
	}
	if len(s.Slots) == 0 {
		return ErrNoSlots
	}
	if len(s.Slots) > MaxSlots {
		return fmt.Errorf("schema has %d slots, limit is %d", len(s.Slots), MaxSlots)
	}
	slotNames := make(map[string]bool, len(s.Slots))
	for i, name := range s.Slots {
		if name == "" {
			return fmt.Errorf("slot %d has no name", i)
		}
		if slotNames[name] {
			return fmt.Errorf("duplicate slot name %q", name)
		}
		slotNames[name] = true
	}

	if len(s.Stages) == 0 {
		return ErrNoStages
	}
	s.byID = make(map[uint32]int, len(s.Stages))
	s.start = -1
	origins := 0
	terminals := 0
	for i, st := range s.Stages {
		if st.Name == "" {
			return fmt.Errorf("stage id %d has no name", st.ID)
		}
		if _, dup := s.byID[st.ID]; dup {
			return fmt.Errorf("duplicate stage id %d", st.ID)
		}
		s.byID[st.ID] = i

		if st.Origin {
			if st.Start || st.Terminal {
				return fmt.Errorf("origin stage %q cannot be start or terminal", st.Name)
			}
			origins++
			continue
		}
		if int(st.Slot) >= len(s.Slots) {
			return fmt.Errorf("stage %q targets slot %d, schema has %d slots", st.Name, st.Slot, len(s.Slots))
		}
		if st.Start {
			if s.start >= 0 {
				return ErrMultiStart
			}
			s.start = i
		}
		if st.Terminal {
			terminals++
		}
	}
	if s.start < 0 {
		return ErrNoStart
	}
	if terminals == 0 {
		return ErrNoTerminal
	}
	if origins > 1 {
		return ErrMultiOrigin
	}

	if len(s.Deltas) == 0 {
		return ErrNoDeltas
	}
	deltaNames := make(map[string]bool, len(s.Deltas)+1)
	for _, d := range s.Deltas {
		if d.Name == "" {
			return errors.New("delta with no name")
		}
		if deltaNames[d.Name] {
			return fmt.Errorf("duplicate delta name %q", d.Name)
		}
		deltaNames[d.Name] = true
		if int(d.From) >= len(s.Slots) || int(d.To) >= len(s.Slots) {
			return fmt.Errorf("delta %q references a slot outside the schema", d.Name)
		}
		if d.From == d.To {
			return fmt.Errorf("delta %q has identical endpoints", d.Name)
		}
	}
	if s.OriginDelta != "" {
		if origins == 0 {
			return fmt.Errorf("origin delta %q declared without an origin stage", s.OriginDelta)
		}
		if deltaNames[s.OriginDelta] {
			return fmt.Errorf("origin delta %q collides with a delta name", s.OriginDelta)
		}
		deltaNames[s.OriginDelta] = true
	}

	if s.StatsDelta == "" {
		s.StatsDelta = s.Deltas[0].Name
	} else if !deltaNames[s.StatsDelta] {
		return fmt.Errorf("stats delta %q is not a declared delta", s.StatsDelta)
	}
	return nil
}

// StageByID returns the stage for a wire identifier.
func (s *Schema) StageByID(id uint32) (Stage, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Stage{}, false
	}
	return s.Stages[i], true
}

// Start returns the schema's start stage.
func (s *Schema) Start() Stage { return s.Stages[s.start] }

// StartSlot returns the slot filled by the start stage.
func (s *Schema) StartSlot() Slot { return s.Stages[s.start].Slot }

// SlotCount returns the number of slots the schema declares.
func (s *Schema) SlotCount() int { return len(s.Slots) }

// SlotName returns the name of slot sl, or a decimal fallback when sl is
// outside the schema.
func (s *Schema) SlotName(sl Slot) string {
	if int(sl) < len(s.Slots) {
		return s.Slots[sl]
	}
	return strconv.Itoa(int(sl))
}

// DeltaNames returns the delta names in emission order, including the
// origin delta when declared.
func (s *Schema) DeltaNames() []string {
	names := make([]string, 0, len(s.Deltas)+1)
	for _, d := range s.Deltas {
		names = append(names, d.Name)
	}
	if s.OriginDelta != "" {
		names = append(names, s.OriginDelta)
	}
	return names
}

// CategoryName resolves a category code to its label, falling back to
// the decimal form of the code.
func (s *Schema) CategoryName(code uint32) string {
	if name, ok := s.Categories[code]; ok {
		return name
	}
	return strconv.FormatUint(uint64(code), 10)
}
