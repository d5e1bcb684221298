package reqtrace

import (
	"io"
	"log/slog"
	"time"

	"github.com/randalmurphal/reqtrace/pkg/reqtrace/filter"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/observability"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/pending"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/sink"
)

// engineConfig holds configuration for one capture session.
type engineConfig struct {
	batchSize   int
	pollTimeout time.Duration

	capacity int
	policy   pending.Policy
	dropLog  int
	onDrop   func(pending.Drop)
	clock    func() uint64

	evictAge      time.Duration
	evictInterval time.Duration

	filter  *filter.Filter
	sinks   []sink.Sink
	summary io.Writer

	session        string
	logger         *slog.Logger
	metrics        observability.MetricsRecorder
	spans          observability.SpanManager
	tracingEnabled bool
}

// defaultEngineConfig returns the default session configuration.
func defaultEngineConfig() engineConfig {
	return engineConfig{
		batchSize:     256,
		pollTimeout:   200 * time.Millisecond,
		policy:        pending.PolicyReject,
		evictAge:      time.Minute,
		evictInterval: 10 * time.Second,
		metrics:       observability.NoopMetrics{},
		spans:         observability.NoopSpanManager{},
	}
}

// Option configures engine behavior.
type Option func(*engineConfig)

// WithBatchSize sets the maximum number of records drained per poll.
// Default: 256
func WithBatchSize(n int) Option {
	return func(c *engineConfig) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithPollTimeout bounds how long one poll may block. Shorter timeouts
// make control calls and eviction ticks more responsive on idle
// sources.
// Default: 200ms
func WithPollTimeout(d time.Duration) Option {
	return func(c *engineConfig) {
		if d > 0 {
			c.pollTimeout = d
		}
	}
}

// WithCapacity bounds the number of in-flight requests and sets the
// policy applied when a start event finds the store full:
// pending.PolicyReject drops the new request, pending.PolicySweep
// evicts the oldest to make room.
// Default: unbounded
func WithCapacity(n int, p pending.Policy) Option {
	return func(c *engineConfig) {
		if n > 0 {
			c.capacity = n
			c.policy = p
		}
	}
}

// WithEviction configures the stale-request sweep: requests older than
// age are evicted, checked every interval. Age is measured against the
// event-time watermark, not the wall clock. Pass a zero age or
// interval to disable eviction.
// Default: 60s age, checked every 10s
func WithEviction(age, interval time.Duration) Option {
	return func(c *engineConfig) {
		c.evictAge = age
		c.evictInterval = interval
	}
}

// WithDropLogSize sets how many recent drops are retained for
// RecentDrops.
// Default: 64
func WithDropLogSize(n int) Option {
	return func(c *engineConfig) {
		if n > 0 {
			c.dropLog = n
		}
	}
}

// WithOnDrop installs a callback invoked for every dropped event and
// evicted request. It runs on the session goroutine and must not call
// back into the engine.
func WithOnDrop(fn func(pending.Drop)) Option {
	return func(c *engineConfig) {
		c.onDrop = fn
	}
}

// WithClock overrides the eviction clock with a wall-clock style
// timestamp function. The default measures staleness against the
// event-time watermark, which suits replay; live sources with long
// idle gaps want a real clock.
func WithClock(fn func() uint64) Option {
	return func(c *engineConfig) {
		c.clock = fn
	}
}

// WithFilter gates sink emission: only completed records matching the
// filter are emitted. Statistics always see every completion.
//
// Example:
//
//	f := filter.MustCompile(`op == READ and total > 1ms`)
//	eng, err := reqtrace.New(schema, src, reqtrace.WithFilter(f))
func WithFilter(f *filter.Filter) Option {
	return func(c *engineConfig) {
		c.filter = f
	}
}

// WithSinks sets the emission sinks for completed records. Multiple
// sinks receive every record in order. Sinks run on the session
// goroutine; wrap slow sinks in sink.NewAsync. The engine flushes
// sinks at session end but never closes them.
func WithSinks(sinks ...sink.Sink) Option {
	return func(c *engineConfig) {
		c.sinks = append(c.sinks, sinks...)
	}
}

// WithSummaryWriter directs the end-of-session summary report to w.
// Default: no summary
func WithSummaryWriter(w io.Writer) Option {
	return func(c *engineConfig) {
		c.summary = w
	}
}

// WithSessionID overrides the generated session identifier.
func WithSessionID(id string) Option {
	return func(c *engineConfig) {
		if id != "" {
			c.session = id
		}
	}
}

// WithLogger enables structured logging. The engine enriches the
// logger with the session ID and profile name.
// Default: no logging
func WithLogger(l *slog.Logger) Option {
	return func(c *engineConfig) {
		c.logger = l
	}
}

// WithMetrics enables metrics recording. Pass
// observability.NewMetricsRecorder() for OpenTelemetry metrics.
// Default: no-op
func WithMetrics(m observability.MetricsRecorder) Option {
	return func(c *engineConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithSpans enables distributed tracing. Pass
// observability.NewSpanManager() for OpenTelemetry spans; the engine
// opens a session span and per-batch child spans.
// Default: disabled
func WithSpans(s observability.SpanManager) Option {
	return func(c *engineConfig) {
		if s != nil {
			c.spans = s
			c.tracingEnabled = true
		}
	}
}
