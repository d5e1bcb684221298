package benchmarks

import (
	"strconv"
	"testing"
	"time"

	"github.com/randalmurphal/reqtrace/pkg/reqtrace/breakdown"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/pending"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/source"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/stage"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/stats"
)

// Wire stage IDs of the fuse profile.
const (
	stageQueue = 0
	stageEnd   = 1
	stageRecv  = 2
	stageSend  = 3

	opRead = 15
)

var fuseSchema = stage.MustLookup("fuse")

// lifecycle returns the four events of one completed fuse request.
func lifecycle(id, base uint64) [4]source.Record {
	return [4]source.Record{
		{TS: base, Stage: stageQueue, Op: opRead, ID: id},
		{TS: base + 40_000, Stage: stageRecv, Op: opRead, ID: id},
		{TS: base + 90_000, Stage: stageSend, Op: opRead, ID: id},
		{TS: base + 120_000, Stage: stageEnd, Op: opRead, ID: id},
	}
}

// BenchmarkObserve_Lifecycle runs a full 4-event lifecycle through the store.
func BenchmarkObserve_Lifecycle(b *testing.B) {
	store := pending.New(fuseSchema)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		evs := lifecycle(uint64(i+1), uint64(i+1)*1000)
		for _, ev := range evs {
			store.Observe(ev)
		}
	}
}

// BenchmarkObserve_StartTerminal runs the minimal 2-event lifecycle.
func BenchmarkObserve_StartTerminal(b *testing.B) {
	store := pending.New(fuseSchema)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := uint64(i + 1)
		store.Observe(source.Record{TS: id * 1000, Stage: stageQueue, Op: opRead, ID: id})
		store.Observe(source.Record{TS: id*1000 + 500, Stage: stageEnd, Op: opRead, ID: id})
	}
}

// BenchmarkObserve_UnknownKey measures the drop path for events whose
// start was never seen.
func BenchmarkObserve_UnknownKey(b *testing.B) {
	store := pending.New(fuseSchema)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.Observe(source.Record{TS: uint64(i + 1), Stage: stageRecv, Op: opRead, ID: uint64(i + 1)})
	}
}

// BenchmarkObserve_Duplicate measures re-observing an already filled slot.
func BenchmarkObserve_Duplicate(b *testing.B) {
	store := pending.New(fuseSchema)
	store.Observe(source.Record{TS: 1000, Stage: stageQueue, Op: opRead, ID: 1})
	store.Observe(source.Record{TS: 1500, Stage: stageRecv, Op: opRead, ID: 1})

	dup := source.Record{TS: 2000, Stage: stageRecv, Op: opRead, ID: 1}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.Observe(dup)
	}
}

// BenchmarkEvict_Scan_10k sweeps a 10k-entry store without evicting.
func BenchmarkEvict_Scan_10k(b *testing.B) {
	store := pending.New(fuseSchema)
	for i := 0; i < 10_000; i++ {
		store.Observe(source.Record{TS: uint64(i + 1), Stage: stageQueue, Op: opRead, ID: uint64(i + 1)})
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store.EvictOlderThan(time.Hour)
	}
}

// BenchmarkDerive measures latency derivation for a fully observed request.
func BenchmarkDerive(b *testing.B) {
	in := breakdown.Input{
		Key:      source.Key{ID: 42},
		Category: opRead,
		Mask:     stage.Mask(0b1111),
		Slots:    []uint64{1000, 41_000, 91_000, 121_000},
		End:      121_000,
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = breakdown.Derive(fuseSchema, in)
	}
}

// BenchmarkAggregator_Observe measures one statistics update.
func BenchmarkAggregator_Observe(b *testing.B) {
	agg := stats.NewAggregator("total")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		agg.Observe("READ", time.Duration(i%1000)*time.Microsecond)
	}
}

// BenchmarkAggregator_Snapshot_100 snapshots across 100 categories.
func BenchmarkAggregator_Snapshot_100(b *testing.B) {
	agg := stats.NewAggregator("total")
	for i := 0; i < 100; i++ {
		agg.Observe(categoryID(i), time.Duration(i)*time.Microsecond)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = agg.Total()
	}
}

// Helper functions

func categoryID(n int) string {
	return "cat-" + strconv.Itoa(n)
}
