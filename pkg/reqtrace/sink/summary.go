package sink

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/randalmurphal/reqtrace/pkg/reqtrace/pending"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/stats"
)

// Summary is the end-of-session report: correlation diagnostics plus
// per-delta, per-category latency statistics.
type Summary struct {
	Session  string
	Profile  string
	Elapsed  time.Duration
	InFlight int
	Diag     pending.Diagnostics
	Deltas   []DeltaStats
}

// DeltaStats holds the statistics for one latency delta, broken down
// by category. Total merges all categories.
type DeltaStats struct {
	Name       string
	Total      stats.Snapshot
	Categories []CategoryStats
}

// CategoryStats pairs a category label with its statistics.
type CategoryStats struct {
	Name  string
	Stats stats.Snapshot
}

// WriteSummary renders a summary as a human-readable report.
func WriteSummary(w io.Writer, s *Summary) error {
	var b bytes.Buffer

	fmt.Fprintf(&b, "===== reqtrace summary =====\n")
	fmt.Fprintf(&b, "session    %s\n", s.Session)
	fmt.Fprintf(&b, "profile    %s\n", s.Profile)
	fmt.Fprintf(&b, "elapsed    %v\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(&b, "in flight  %d\n", s.InFlight)
	b.WriteByte('\n')

	counter(&b, "observed", s.Diag.Observed)
	counter(&b, "completed", s.Diag.Completed)
	counter(&b, "duplicates", s.Diag.Duplicates)
	counter(&b, "clock anomalies", s.Diag.ClockAnomalies)
	counter(&b, "dropped: unknown key", s.Diag.UnknownKey)
	counter(&b, "dropped: unknown stage", s.Diag.UnknownStage)
	counter(&b, "dropped: capacity", s.Diag.Capacity)
	counter(&b, "dropped: evicted", s.Diag.Evicted)
	counter(&b, "dropped: total", s.Diag.Drops())

	for _, d := range s.Deltas {
		if d.Total.Count == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s by operation\n", d.Name)
		fmt.Fprintf(&b, "  %-16s %10s %12s %12s %12s\n", "operation", "count", "min", "max", "avg")
		for _, c := range d.Categories {
			if c.Stats.Count == 0 {
				continue
			}
			statRow(&b, c.Name, c.Stats)
		}
		if len(d.Categories) > 1 {
			statRow(&b, "all", d.Total)
		}
	}

	if _, err := w.Write(b.Bytes()); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}

func counter(b *bytes.Buffer, label string, v uint64) {
	fmt.Fprintf(b, "%-24s %12s\n", label, humanize.Comma(int64(v)))
}

func statRow(b *bytes.Buffer, name string, st stats.Snapshot) {
	fmt.Fprintf(b, "  %-16s %10s %12v %12v %12v", name,
		humanize.Comma(int64(st.Count)), st.Min, st.Max, st.AvgDuration())
	if st.Saturated {
		b.WriteString(" (saturated)")
	}
	b.WriteByte('\n')
}
