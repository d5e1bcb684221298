package reqtrace

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/randalmurphal/reqtrace/pkg/reqtrace/breakdown"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/observability"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/pending"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/sink"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/source"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/stage"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/stats"
)

// dropLogSample limits drop logging to one entry per this many drops.
// Unknown-key drops are the common case when probes attach mid-workload
// and would otherwise flood the debug log.
const dropLogSample = 128

// Engine drives one capture session: it drains the source, correlates
// lifecycle events, accumulates latency statistics and emits completed
// records to the sinks.
//
// Run, and everything it calls, is single-goroutine. The accessor
// methods and the control methods (Flush, DumpSummary, ResetStats) are
// safe to call from other goroutines while Run executes.
type Engine struct {
	cfg    engineConfig
	schema *stage.Schema
	src    source.Source
	store  *pending.Store
	out    sink.Sink // nil when no sinks are configured

	// stats holds one aggregator per schema delta. Built once at
	// construction; the map itself is never mutated afterwards.
	stats map[string]*stats.Aggregator

	session string
	logger  *slog.Logger

	running atomic.Bool
	stopped chan struct{}
	ctrl    chan controlMsg
	started atomic.Int64 // session start in unix nanos, zero before Run

	// Session-goroutine state.
	lastDiag pending.Diagnostics
	drops    uint64 // counts drops for log sampling
}

// New creates an engine for one capture session over the given schema
// and event source. The engine does not take ownership of the source
// or the sinks; the caller closes them after Run returns.
func New(schema *stage.Schema, src source.Source, opts ...Option) (*Engine, error) {
	if schema == nil {
		return nil, ErrNilSchema
	}
	if src == nil {
		return nil, ErrNilSource
	}

	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	e := &Engine{
		cfg:     cfg,
		schema:  schema,
		src:     src,
		session: cfg.session,
		stopped: make(chan struct{}),
		ctrl:    make(chan controlMsg, 4),
	}
	if e.session == "" {
		e.session = "ses-" + uuid.New().String()[:8]
	}
	e.logger = observability.EnrichLogger(cfg.logger, e.session, schema.Name)

	names := schema.DeltaNames()
	e.stats = make(map[string]*stats.Aggregator, len(names))
	for _, name := range names {
		e.stats[name] = stats.NewAggregator(name)
	}

	storeOpts := []pending.Option{pending.WithOnDrop(e.noteDrop)}
	if cfg.capacity > 0 {
		storeOpts = append(storeOpts, pending.WithCapacity(cfg.capacity, cfg.policy))
	}
	if cfg.dropLog > 0 {
		storeOpts = append(storeOpts, pending.WithDropLogSize(cfg.dropLog))
	}
	if cfg.clock != nil {
		storeOpts = append(storeOpts, pending.WithClock(cfg.clock))
	}
	e.store = pending.New(schema, storeOpts...)

	switch len(cfg.sinks) {
	case 0:
	case 1:
		e.out = cfg.sinks[0]
	default:
		e.out = sink.NewMulti(cfg.sinks...)
	}

	return e, nil
}

// Run drains the source until it reports io.EOF or ctx is cancelled,
// then flushes the sinks and writes the summary report. Exhaustion and
// cancellation are clean endings and return nil.
//
// An engine runs exactly one session; a second Run returns
// ErrAlreadyRunning.
func (e *Engine) Run(ctx context.Context) (runErr error) {
	if ctx == nil {
		return ErrNilContext
	}
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(e.stopped)

	e.started.Store(time.Now().UnixNano())
	elapsed := observability.TimedOperation()

	observability.LogSessionStart(e.logger, e.session, e.schema.Name)

	runCtx := ctx
	var sessionSpan trace.Span
	if e.cfg.tracingEnabled {
		runCtx, sessionSpan = e.cfg.spans.StartSessionSpan(ctx, e.schema.Name, e.session)
		defer func() {
			e.cfg.spans.EndSpanWithError(sessionSpan, runErr)
		}()
	}

	var tickC <-chan time.Time
	if e.cfg.evictAge > 0 && e.cfg.evictInterval > 0 {
		ticker := time.NewTicker(e.cfg.evictInterval)
		defer ticker.Stop()
		tickC = ticker.C
	}

	for {
		e.serviceControl()

		select {
		case <-ctx.Done():
			runErr = e.finish(runCtx, elapsed, nil)
			return runErr
		case <-tickC:
			e.evict(runCtx)
		default:
		}

		batch, err := e.poll(ctx)
		if len(batch) > 0 {
			e.processBatch(runCtx, batch)
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			runErr = e.finish(runCtx, elapsed, nil)
			return runErr
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			// Idle poll window, or the caller cancelled; the next
			// iteration services ticks and re-checks ctx.
		default:
			observability.LogSourceError(e.logger, err)
			runErr = e.finish(runCtx, elapsed, &SourceError{Op: "poll", Err: err})
			return runErr
		}
	}
}

// poll drains one batch under the configured timeout. The timeout
// bounds how long an idle source can starve control calls and
// eviction ticks.
func (e *Engine) poll(ctx context.Context) ([]source.Record, error) {
	pollCtx, cancel := context.WithTimeout(ctx, e.cfg.pollTimeout)
	defer cancel()
	return e.src.Poll(pollCtx, e.cfg.batchSize)
}

// processBatch observes one drained batch and records its telemetry.
func (e *Engine) processBatch(ctx context.Context, batch []source.Record) {
	batchCtx := ctx
	var span trace.Span
	if e.cfg.tracingEnabled {
		batchCtx, span = e.cfg.spans.StartBatchSpan(ctx, len(batch))
	}

	for _, rec := range batch {
		out := e.store.Observe(rec)
		if out.Kind == pending.OutcomeCompleted {
			e.completed(batchCtx, out.Record)
		}
	}

	e.cfg.metrics.RecordBatch(batchCtx, len(batch), e.store.Len())
	e.recordDiag(batchCtx)
	observability.LogBatch(e.logger, len(batch), e.store.Len())

	if e.cfg.tracingEnabled {
		e.cfg.spans.EndSpanWithError(span, nil)
	}
}

// completed feeds one completed request to the statistics and, when it
// passes the filter, to the sinks. Emit failures are logged and
// counted by the sink; they never end the session.
func (e *Engine) completed(ctx context.Context, rec *breakdown.Record) {
	for _, d := range rec.Deltas {
		if !d.Valid {
			continue
		}
		e.stats[d.Name].Observe(rec.Label, d.Value)
		if d.Name == e.schema.StatsDelta {
			e.cfg.metrics.RecordCompletion(ctx, rec.Label, d.Value)
		}
	}

	if e.out == nil || !e.cfg.filter.Match(rec) {
		return
	}
	if err := e.out.Emit(rec); err != nil {
		observability.LogSinkError(e.logger, "emit", err)
	}
}

// recordDiag publishes the store counters that have no per-event
// signal: duplicates and anomalies are absorbed inside Observe, so the
// engine diffs the monotonic diagnostics instead.
func (e *Engine) recordDiag(ctx context.Context) {
	diag := e.store.Diagnostics()
	prev := e.lastDiag
	e.lastDiag = diag

	if n := diag.Duplicates - prev.Duplicates; n > 0 {
		e.cfg.metrics.RecordDuplicates(ctx, int64(n))
	}
	if n := diag.ClockAnomalies - prev.ClockAnomalies; n > 0 {
		e.cfg.metrics.RecordClockAnomalies(ctx, int64(n))
	}
	if n := diag.UnknownKey - prev.UnknownKey; n > 0 {
		e.cfg.metrics.RecordDrop(ctx, pending.ReasonUnknownKey.String(), int64(n))
	}
	if n := diag.UnknownStage - prev.UnknownStage; n > 0 {
		e.cfg.metrics.RecordDrop(ctx, pending.ReasonUnknownStage.String(), int64(n))
	}
	if n := diag.Capacity - prev.Capacity; n > 0 {
		e.cfg.metrics.RecordDrop(ctx, pending.ReasonCapacity.String(), int64(n))
	}
	if n := diag.Evicted - prev.Evicted; n > 0 {
		e.cfg.metrics.RecordDrop(ctx, pending.ReasonEvicted.String(), int64(n))
		e.cfg.metrics.RecordEvictions(ctx, int64(n))
	}
}

// evict sweeps requests whose terminal stage never arrived.
func (e *Engine) evict(ctx context.Context) {
	n := e.store.EvictOlderThan(e.cfg.evictAge)
	if n == 0 {
		return
	}
	observability.LogEviction(e.logger, n, e.store.Len())
	if e.cfg.tracingEnabled {
		e.cfg.spans.AddSpanEvent(ctx, "eviction",
			attribute.Int("evicted", n),
			attribute.Int("inflight", e.store.Len()),
		)
	}
	e.recordDiag(ctx)
}

// noteDrop runs on the session goroutine for every store drop.
func (e *Engine) noteDrop(d pending.Drop) {
	if e.cfg.onDrop != nil {
		e.cfg.onDrop(d)
	}
	if e.drops%dropLogSample == 0 {
		observability.LogDrop(e.logger, d.Key.String(), d.Reason.String())
	}
	e.drops++
}

// finish flushes the sinks, writes the summary and logs the session
// end. cause is the error ending the session, nil for a clean drain;
// it takes precedence over flush failures.
func (e *Engine) finish(ctx context.Context, elapsed func() float64, cause error) error {
	e.recordDiag(ctx)

	if e.out != nil {
		if err := e.out.Flush(); err != nil {
			observability.LogSinkError(e.logger, "flush", err)
			if cause == nil {
				cause = &SinkError{Op: "flush", Err: err}
			}
		}
	}
	if e.cfg.summary != nil {
		if err := sink.WriteSummary(e.cfg.summary, e.Summary()); err != nil && cause == nil {
			cause = fmt.Errorf("write summary: %w", err)
		}
	}

	diag := e.store.Diagnostics()
	observability.LogSessionComplete(e.logger, e.session, elapsed(), diag.Completed, diag.Drops())
	return cause
}

// Summary assembles the session's current statistics and diagnostics.
// Safe to call from any goroutine.
func (e *Engine) Summary() *sink.Summary {
	s := &sink.Summary{
		Session:  e.session,
		Profile:  e.schema.Name,
		InFlight: e.store.Len(),
		Diag:     e.store.Diagnostics(),
	}
	if start := e.started.Load(); start > 0 {
		s.Elapsed = time.Duration(time.Now().UnixNano() - start)
	}
	for _, name := range e.schema.DeltaNames() {
		agg := e.stats[name]
		ds := sink.DeltaStats{Name: name, Total: agg.Total()}
		for _, cat := range agg.Categories() {
			ds.Categories = append(ds.Categories, sink.CategoryStats{
				Name:  cat,
				Stats: agg.Snapshot(cat),
			})
		}
		s.Deltas = append(s.Deltas, ds)
	}
	return s
}

// Snapshot returns the primary delta's statistics for one category.
func (e *Engine) Snapshot(category string) stats.Snapshot {
	return e.stats[e.schema.StatsDelta].Snapshot(category)
}

// Total returns the primary delta's statistics across all categories.
func (e *Engine) Total() stats.Snapshot {
	return e.stats[e.schema.StatsDelta].Total()
}

// Delta returns the aggregator for one schema delta, or nil for an
// unknown name.
func (e *Engine) Delta(name string) *stats.Aggregator {
	return e.stats[name]
}

// InFlight returns the number of requests awaiting their terminal
// stage.
func (e *Engine) InFlight() int { return e.store.Len() }

// Diagnostics returns the monotonic event counters.
func (e *Engine) Diagnostics() pending.Diagnostics { return e.store.Diagnostics() }

// RecentDrops returns the most recent drops, newest first.
func (e *Engine) RecentDrops() []pending.Drop { return e.store.RecentDrops() }

// Session returns the session identifier.
func (e *Engine) Session() string { return e.session }

// Schema returns the compiled schema the engine correlates against.
func (e *Engine) Schema() *stage.Schema { return e.schema }

// ctrlKind selects a control operation.
type ctrlKind uint8

const (
	ctrlFlush ctrlKind = iota
	ctrlSummary
	ctrlReset
)

// controlMsg is one control request serviced between batches on the
// session goroutine.
type controlMsg struct {
	kind ctrlKind
	w    io.Writer
	done chan error
}

// serviceControl drains pending control requests without blocking.
func (e *Engine) serviceControl() {
	for {
		select {
		case msg := <-e.ctrl:
			msg.done <- e.handleControl(msg)
		default:
			return
		}
	}
}

func (e *Engine) handleControl(msg controlMsg) error {
	switch msg.kind {
	case ctrlFlush:
		if e.out == nil {
			return nil
		}
		if err := e.out.Flush(); err != nil {
			return &SinkError{Op: "flush", Err: err}
		}
		return nil
	case ctrlSummary:
		return sink.WriteSummary(msg.w, e.Summary())
	case ctrlReset:
		for _, agg := range e.stats {
			agg.Reset()
		}
		return nil
	}
	return nil
}

// control submits one request to the session goroutine and waits for
// its result.
func (e *Engine) control(ctx context.Context, msg controlMsg) error {
	if ctx == nil {
		return ErrNilContext
	}
	if !e.running.Load() {
		return ErrNotRunning
	}

	select {
	case e.ctrl <- msg:
	case <-e.stopped:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-msg.done:
		return err
	case <-e.stopped:
		// The session may have serviced the request on its way out.
		select {
		case err := <-msg.done:
			return err
		default:
			return ErrNotRunning
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Flush forces buffered sink output through to the underlying writers
// mid-session. Returns ErrNotRunning outside a session.
func (e *Engine) Flush(ctx context.Context) error {
	return e.control(ctx, controlMsg{kind: ctrlFlush, done: make(chan error, 1)})
}

// DumpSummary writes the current summary report to w without ending
// the session.
func (e *Engine) DumpSummary(ctx context.Context, w io.Writer) error {
	return e.control(ctx, controlMsg{kind: ctrlSummary, w: w, done: make(chan error, 1)})
}

// ResetStats clears the latency aggregators, starting a fresh
// measurement interval. Diagnostics counters are monotonic and
// unaffected.
func (e *Engine) ResetStats(ctx context.Context) error {
	return e.control(ctx, controlMsg{kind: ctrlReset, done: make(chan error, 1)})
}
