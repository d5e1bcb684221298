// Package pending implements the correlation store: the map from
// correlation keys to the partial lifecycle state of requests that have
// started but not yet finished.
//
// The store is deliberately single-threaded. One goroutine (the
// engine's drain loop) calls Observe and EvictOlderThan; there is no
// locking on the hot path. The diagnostic counters and Len are backed
// by atomics so other goroutines may read them while the loop runs.
//
// Memory safety comes from two mechanisms, both required:
//
//   - Age eviction: EvictOlderThan removes state whose earliest
//     timestamp has fallen behind the store's clock, so requests whose
//     terminal event was lost cannot accumulate forever.
//   - Capacity: an optional hard bound on in-flight entries, with a
//     deterministic full-store policy (reject the new request, or evict
//     the oldest one to admit it). The store never silently overwrites
//     an existing entry.
//
// The clock defaults to the event-time watermark, the largest timestamp
// observed so far. Replaying a capture therefore evicts exactly as the
// live run did.
package pending

import (
	"sync/atomic"
	"time"

	"github.com/randalmurphal/reqtrace/pkg/reqtrace/breakdown"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/source"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/stage"
)

// Policy selects the store's behavior when a start event arrives at
// capacity.
type Policy uint8

const (
	// PolicyReject drops the new request. Deterministic and
	// allocation-free under pressure.
	PolicyReject Policy = iota

	// PolicySweep evicts the entry with the earliest timestamp to make
	// room, then admits the new request.
	PolicySweep
)

// String returns the policy's name.
func (p Policy) String() string {
	switch p {
	case PolicyReject:
		return "reject"
	case PolicySweep:
		return "sweep"
	default:
		return "unknown"
	}
}

// Drop describes one discarded event or evicted request, as delivered
// to the drop log and the OnDrop callback.
type Drop struct {
	Key    source.Key
	Reason DropReason

	// Stage is the wire stage of the dropped event. Zero for evictions,
	// which are not tied to an event.
	Stage uint32

	// TS is the event timestamp for event drops, or the evicted state's
	// earliest timestamp for evictions.
	TS uint64
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity bounds the number of in-flight entries and sets the
// policy applied when a start event finds the store full.
func WithCapacity(n int, p Policy) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
			s.policy = p
		}
	}
}

// WithDropLogSize sets how many recent drops are retained for
// inspection. Default: 64.
func WithDropLogSize(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.droplog = NewDropLog(n)
		}
	}
}

// WithOnDrop installs a callback invoked for every drop, including
// evictions. It runs on the observing goroutine and must not call back
// into the store.
func WithOnDrop(fn func(Drop)) Option {
	return func(s *Store) {
		s.onDrop = fn
	}
}

// WithClock overrides the eviction clock. The default is the event-time
// watermark; a wall-clock override suits stores fed by live sources
// with long idle gaps.
func WithClock(fn func() uint64) Option {
	return func(s *Store) {
		s.clock = fn
	}
}

// state is the partial lifecycle of one in-flight request.
type state struct {
	category uint32
	pid      uint32
	comm     string
	slots    []uint64
	mask     stage.Mask
	origin   uint64
	first    uint64 // earliest slot timestamp, orders evictions
}

// Store correlates lifecycle events by key. Not safe for concurrent
// Observe/EvictOlderThan calls; see the package comment.
type Store struct {
	schema   *stage.Schema
	entries  map[source.Key]*state
	origins  map[uint32]uint64 // pid -> origin timestamp
	capacity int
	policy   Policy
	onDrop   func(Drop)
	droplog  *DropLog
	clock    func() uint64

	watermark uint64

	observed     atomic.Uint64
	completed    atomic.Uint64
	duplicates   atomic.Uint64
	anomalies    atomic.Uint64
	unknownKey   atomic.Uint64
	unknownStage atomic.Uint64
	capDrops     atomic.Uint64
	evictions    atomic.Uint64
	size         atomic.Int64
}

// New creates a store over a compiled schema.
func New(schema *stage.Schema, opts ...Option) *Store {
	if schema == nil {
		panic("pending: nil schema")
	}
	s := &Store{
		schema:  schema,
		entries: make(map[source.Key]*state),
		origins: make(map[uint32]uint64),
		droplog: NewDropLog(0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Schema returns the schema the store correlates against.
func (s *Store) Schema() *stage.Schema { return s.schema }

// Observe applies one event to correlation state and reports what
// happened: the request is still in flight, it completed and produced a
// record, or the event was dropped.
func (s *Store) Observe(rec source.Record) Outcome {
	s.observed.Add(1)
	if rec.TS > s.watermark {
		s.watermark = rec.TS
	}

	st, ok := s.schema.StageByID(rec.Stage)
	if !ok {
		return s.drop(Drop{Key: rec.Key(), Reason: ReasonUnknownStage, Stage: rec.Stage, TS: rec.TS})
	}

	if st.Origin {
		// The most recent origin event wins; it is consumed when the
		// same process's start stage arrives.
		s.origins[rec.PID] = rec.TS
		return Outcome{Kind: OutcomeContinuing}
	}

	key := rec.Key()
	e, exists := s.entries[key]
	if !exists {
		if !st.Start {
			return s.drop(Drop{Key: key, Reason: ReasonUnknownKey, Stage: rec.Stage, TS: rec.TS})
		}
		if s.capacity > 0 && len(s.entries) >= s.capacity {
			if s.policy == PolicyReject {
				return s.drop(Drop{Key: key, Reason: ReasonCapacity, Stage: rec.Stage, TS: rec.TS})
			}
			s.evictOldest()
		}
		e = s.newState(rec)
		s.entries[key] = e
		s.size.Store(int64(len(s.entries)))
	}

	if e.mask.Has(st.Slot) {
		// First writer wins. Replayed and duplicated probes are
		// counted, never applied.
		s.duplicates.Add(1)
		return Outcome{Kind: OutcomeContinuing}
	}
	e.slots[st.Slot] = rec.TS
	e.mask = e.mask.Set(st.Slot)
	if e.first == 0 || rec.TS < e.first {
		e.first = rec.TS
	}
	if e.category == 0 && rec.Op != 0 {
		e.category = rec.Op
	}

	if !st.Terminal {
		return Outcome{Kind: OutcomeContinuing}
	}

	delete(s.entries, key)
	s.size.Store(int64(len(s.entries)))
	s.completed.Add(1)

	out, anomalies := breakdown.Derive(s.schema, breakdown.Input{
		Key:      key,
		Category: e.category,
		Result:   rec.Result,
		PID:      e.pid,
		Comm:     e.comm,
		Mask:     e.mask,
		Slots:    e.slots,
		Origin:   e.origin,
		End:      rec.TS,
	})
	if anomalies > 0 {
		s.anomalies.Add(uint64(anomalies))
	}
	return Outcome{Kind: OutcomeCompleted, Record: out}
}

func (s *Store) newState(rec source.Record) *state {
	e := &state{
		pid:   rec.PID,
		comm:  rec.CommString(),
		slots: make([]uint64, s.schema.SlotCount()),
	}
	if ts, ok := s.origins[rec.PID]; ok {
		e.origin = ts
		delete(s.origins, rec.PID)
	}
	return e
}

// EvictOlderThan removes every pending request whose earliest timestamp
// is at least age older than the store's clock, and returns how many
// were removed. Each eviction is reported through the drop log and the
// OnDrop callback with ReasonEvicted. An age of zero empties the store.
func (s *Store) EvictOlderThan(age time.Duration) int {
	if age < 0 {
		age = 0
	}
	now := s.nowTS()
	if uint64(age) > now {
		return 0
	}
	cutoff := now - uint64(age)

	n := 0
	for key, e := range s.entries {
		if e.first <= cutoff {
			delete(s.entries, key)
			n++
			s.drop(Drop{Key: key, Reason: ReasonEvicted, TS: e.first})
		}
	}
	for pid, ts := range s.origins {
		if ts <= cutoff {
			delete(s.origins, pid)
		}
	}
	if n > 0 {
		s.size.Store(int64(len(s.entries)))
	}
	return n
}

// evictOldest removes the single entry with the earliest timestamp.
// Ties break toward the smaller key, keeping the policy deterministic.
func (s *Store) evictOldest() {
	var (
		victim source.Key
		vstate *state
	)
	for key, e := range s.entries {
		if vstate == nil || e.first < vstate.first ||
			(e.first == vstate.first && keyLess(key, victim)) {
			victim, vstate = key, e
		}
	}
	if vstate == nil {
		return
	}
	delete(s.entries, victim)
	s.drop(Drop{Key: victim, Reason: ReasonEvicted, TS: vstate.first})
}

func keyLess(a, b source.Key) bool {
	if a.Queue != b.Queue {
		return a.Queue < b.Queue
	}
	return a.ID < b.ID
}

func (s *Store) nowTS() uint64 {
	if s.clock != nil {
		return s.clock()
	}
	return s.watermark
}

func (s *Store) drop(d Drop) Outcome {
	switch d.Reason {
	case ReasonUnknownKey:
		s.unknownKey.Add(1)
	case ReasonUnknownStage:
		s.unknownStage.Add(1)
	case ReasonCapacity:
		s.capDrops.Add(1)
	case ReasonEvicted:
		s.evictions.Add(1)
	}
	s.droplog.Add(d)
	if s.onDrop != nil {
		s.onDrop(d)
	}
	return Outcome{Kind: OutcomeDropped, Reason: d.Reason}
}

// Len returns the number of in-flight requests. Safe to call from any
// goroutine.
func (s *Store) Len() int { return int(s.size.Load()) }

// RecentDrops returns the most recent drops, newest first.
func (s *Store) RecentDrops() []Drop { return s.droplog.Recent() }

// Diagnostics is a snapshot of the store's counters.
type Diagnostics struct {
	Observed       uint64
	Completed      uint64
	Duplicates     uint64
	ClockAnomalies uint64
	UnknownKey     uint64
	UnknownStage   uint64
	Capacity       uint64
	Evicted        uint64
}

// Drops returns the total number of dropped events and evicted
// requests.
func (d Diagnostics) Drops() uint64 {
	return d.UnknownKey + d.UnknownStage + d.Capacity + d.Evicted
}

// Diagnostics returns the current counter values. Safe to call from any
// goroutine.
func (s *Store) Diagnostics() Diagnostics {
	return Diagnostics{
		Observed:       s.observed.Load(),
		Completed:      s.completed.Load(),
		Duplicates:     s.duplicates.Load(),
		ClockAnomalies: s.anomalies.Load(),
		UnknownKey:     s.unknownKey.Load(),
		UnknownStage:   s.unknownStage.Load(),
		Capacity:       s.capDrops.Load(),
		Evicted:        s.evictions.Load(),
	}
}
