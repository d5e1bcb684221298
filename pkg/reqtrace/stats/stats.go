// Package stats accumulates streaming latency statistics per category:
// count, sum, minimum and maximum, with means derived on read. Sums
// saturate instead of wrapping; a saturated category freezes and is
// flagged in its snapshots.
package stats

import (
	"math"
	"sort"
	"sync"
	"time"
)

// Snapshot is a point-in-time view of one category's statistics.
type Snapshot struct {
	Count uint64
	Sum   time.Duration
	Min   time.Duration
	Max   time.Duration

	// Saturated reports that the sum overflowed and the category froze.
	// Counts and extrema stop updating once set.
	Saturated bool
}

// Avg returns the mean observation in nanoseconds, zero when empty.
func (s Snapshot) Avg() float64 {
	if s.Count == 0 {
		return 0
	}
	return float64(s.Sum) / float64(s.Count)
}

// AvgDuration returns the mean rounded to a duration.
func (s Snapshot) AvgDuration() time.Duration {
	return time.Duration(s.Avg())
}

// merge folds o into s for aggregate views.
func (s Snapshot) merge(o Snapshot) Snapshot {
	if o.Count == 0 {
		return s
	}
	if s.Count == 0 {
		return o
	}
	out := Snapshot{
		Count:     s.Count + o.Count,
		Min:       s.Min,
		Max:       s.Max,
		Saturated: s.Saturated || o.Saturated,
	}
	if o.Min < out.Min {
		out.Min = o.Min
	}
	if o.Max > out.Max {
		out.Max = o.Max
	}
	if o.Sum > math.MaxInt64-s.Sum {
		out.Sum = math.MaxInt64
		out.Saturated = true
	} else {
		out.Sum = s.Sum + o.Sum
	}
	return out
}

// Aggregator accumulates statistics for one metric, bucketed by
// category label. Observe runs on the engine's goroutine; Snapshot,
// Categories and Total are safe to call concurrently with it.
type Aggregator struct {
	mu   sync.Mutex
	name string
	cats map[string]*Snapshot
}

// NewAggregator creates an aggregator for the named metric.
func NewAggregator(name string) *Aggregator {
	return &Aggregator{
		name: name,
		cats: make(map[string]*Snapshot),
	}
}

// Name returns the metric name the aggregator accumulates.
func (a *Aggregator) Name() string { return a.name }

// Observe folds one value into a category. Negative values are ignored;
// they cannot occur for derived latencies and would corrupt the minimum.
// A saturated category ignores all further observations.
func (a *Aggregator) Observe(category string, v time.Duration) {
	if v < 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	c, ok := a.cats[category]
	if !ok {
		c = &Snapshot{}
		a.cats[category] = c
	}
	if c.Saturated {
		return
	}
	if v > math.MaxInt64-c.Sum {
		c.Saturated = true
		return
	}

	if c.Count == 0 || v < c.Min {
		c.Min = v
	}
	if v > c.Max {
		c.Max = v
	}
	c.Count++
	c.Sum += v
}

// Snapshot returns the current statistics for a category. Unknown
// categories return a zero snapshot.
func (a *Aggregator) Snapshot(category string) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.cats[category]; ok {
		return *c
	}
	return Snapshot{}
}

// Categories returns the observed category labels in sorted order.
func (a *Aggregator) Categories() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]string, 0, len(a.cats))
	for cat := range a.cats {
		out = append(out, cat)
	}
	sort.Strings(out)
	return out
}

// Total returns the statistics merged across all categories.
func (a *Aggregator) Total() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	var total Snapshot
	for _, c := range a.cats {
		total = total.merge(*c)
	}
	return total
}

// Reset discards all accumulated state, including saturation flags.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cats = make(map[string]*Snapshot)
}
