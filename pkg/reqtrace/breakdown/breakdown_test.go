package breakdown

import (
	"testing"
	"time"

	"github.com/randalmurphal/reqtrace/pkg/reqtrace/source"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/stage"
)

// fuseInput builds an Input over the fuse profile with the given slot
// timestamps. A zero timestamp leaves the slot unset.
func fuseInput(queue, recv, send, end uint64) Input {
	in := Input{
		Key:      source.Key{ID: 42},
		Category: 1, // LOOKUP
		PID:      100,
		Comm:     "dd",
		Slots:    make([]uint64, 4),
	}
	for slot, ts := range map[stage.Slot]uint64{0: queue, 1: recv, 2: send, 3: end} {
		if ts != 0 {
			in.Slots[slot] = ts
			in.Mask = in.Mask.Set(slot)
		}
	}
	in.End = end
	return in
}

func mustDelta(t *testing.T, rec *Record, name string) Delta {
	t.Helper()
	d, ok := rec.Delta(name)
	if !ok {
		t.Fatalf("record has no delta %q", name)
	}
	return d
}

func TestDeriveFullLifecycle(t *testing.T) {
	fuse := stage.MustLookup("fuse")

	rec, anomalies := Derive(fuse, fuseInput(100, 150, 500, 620))
	if anomalies != 0 {
		t.Fatalf("anomalies = %d, want 0", anomalies)
	}

	want := map[string]time.Duration{
		"queuing":  50,
		"daemon":   350,
		"response": 120,
		"total":    520,
	}
	for name, value := range want {
		d := mustDelta(t, rec, name)
		if !d.Valid {
			t.Errorf("%s invalid, want valid", name)
		}
		if d.Value != value {
			t.Errorf("%s = %d, want %d", name, d.Value, value)
		}
	}

	if rec.Label != "LOOKUP" {
		t.Errorf("Label = %q, want LOOKUP", rec.Label)
	}
	if rec.TS != 620 {
		t.Errorf("TS = %d, want 620", rec.TS)
	}
}

func TestDeriveMissingStage(t *testing.T) {
	fuse := stage.MustLookup("fuse")

	// Only queue and end observed: total is computable, the deltas
	// touching recv or send are not.
	rec, anomalies := Derive(fuse, fuseInput(100, 0, 0, 120))
	if anomalies != 0 {
		t.Fatalf("anomalies = %d, want 0", anomalies)
	}

	total := mustDelta(t, rec, "total")
	if !total.Valid || total.Value != 20 {
		t.Errorf("total = {%d valid=%v}, want {20 valid=true}", total.Value, total.Valid)
	}
	for _, name := range []string{"queuing", "daemon", "response"} {
		if d := mustDelta(t, rec, name); d.Valid {
			t.Errorf("%s valid, want unavailable", name)
		}
	}
}

func TestDeriveClockAnomaly(t *testing.T) {
	fuse := stage.MustLookup("fuse")

	// recv after send: daemon interval is negative.
	rec, anomalies := Derive(fuse, fuseInput(100, 400, 300, 620))
	if anomalies != 1 {
		t.Fatalf("anomalies = %d, want 1", anomalies)
	}

	daemon := mustDelta(t, rec, "daemon")
	if daemon.Valid {
		t.Error("daemon valid, want invalidated by anomaly")
	}
	if daemon.Value != 0 {
		t.Errorf("daemon value = %d, want 0 (never negative)", daemon.Value)
	}

	// The surrounding deltas are unaffected.
	if d := mustDelta(t, rec, "queuing"); !d.Valid || d.Value != 300 {
		t.Errorf("queuing = {%d valid=%v}, want {300 valid=true}", d.Value, d.Valid)
	}
	if d := mustDelta(t, rec, "total"); !d.Valid || d.Value != 520 {
		t.Errorf("total = {%d valid=%v}, want {520 valid=true}", d.Value, d.Valid)
	}
}

func TestDeriveOriginDelta(t *testing.T) {
	fuse := stage.MustLookup("fuse")

	in := fuseInput(100, 150, 500, 620)
	in.Origin = 80
	rec, anomalies := Derive(fuse, in)
	if anomalies != 0 {
		t.Fatalf("anomalies = %d, want 0", anomalies)
	}

	alloc := mustDelta(t, rec, "alloc")
	if !alloc.Valid || alloc.Value != 20 {
		t.Errorf("alloc = {%d valid=%v}, want {20 valid=true}", alloc.Value, alloc.Valid)
	}
}

func TestDeriveOriginMissing(t *testing.T) {
	fuse := stage.MustLookup("fuse")

	rec, anomalies := Derive(fuse, fuseInput(100, 150, 500, 620))
	if anomalies != 0 {
		t.Fatalf("anomalies = %d, want 0", anomalies)
	}

	alloc := mustDelta(t, rec, "alloc")
	if alloc.Valid {
		t.Error("alloc valid without an origin timestamp")
	}
}

func TestDeriveOriginAfterStart(t *testing.T) {
	fuse := stage.MustLookup("fuse")

	in := fuseInput(100, 150, 500, 620)
	in.Origin = 130
	rec, anomalies := Derive(fuse, in)
	if anomalies != 1 {
		t.Fatalf("anomalies = %d, want 1", anomalies)
	}
	if d := mustDelta(t, rec, "alloc"); d.Valid {
		t.Error("alloc valid, want invalidated by anomaly")
	}
}

func TestDeltaLookupMiss(t *testing.T) {
	fuse := stage.MustLookup("fuse")
	rec, _ := Derive(fuse, fuseInput(100, 150, 500, 620))

	if _, ok := rec.Delta("nope"); ok {
		t.Error("Delta returned ok for unknown name")
	}
}

func TestDeriveUnknownCategoryLabel(t *testing.T) {
	fuse := stage.MustLookup("fuse")

	in := fuseInput(100, 150, 500, 620)
	in.Category = 9999
	rec, _ := Derive(fuse, in)
	if rec.Label != "9999" {
		t.Errorf("Label = %q, want decimal fallback", rec.Label)
	}
}
