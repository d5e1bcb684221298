/*
Package reqtrace correlates request lifecycle events into per-request
latency breakdowns and streaming statistics.

# Overview

reqtrace consumes fixed-size lifecycle event records from an external
producer, typically kernel probes draining through a ring buffer. Each
record carries a caller-assigned correlation key and a stage
identifier. The engine groups records by key, stamps each stage's
timestamp into a slot, and when the terminal stage arrives derives the
latencies between slots, feeds them to per-category statistics and
hands the completed record to the configured sinks.

Delivery is assumed lossy and unordered: stages may arrive out of
order, twice, or never. The engine takes the first timestamp per slot,
drops events whose request was never seen starting, and evicts
requests whose terminal stage never arrives.

The library is organized as small packages under pkg/reqtrace:

  - stage: lifecycle schemas mapping wire stages onto timestamp slots
  - source: the event source boundary, with channel and replay sources
  - pending: the correlation store for in-flight requests
  - breakdown: latency derivation for completed requests
  - stats: streaming min/max/count/sum aggregation
  - filter: expression filters over completed records
  - sink: CSV, NDJSON, text, SQLite and fan-out emission
  - config: YAML/JSON session configuration

# Basic Usage

Compile a schema, wrap an event feed in a source, and run a session:

	schema := stage.MustLookup("fuse")
	src := source.NewChanSource(4096)

	eng, err := reqtrace.New(schema, src,
	    reqtrace.WithCapacity(65536, pending.PolicyReject),
	    reqtrace.WithSummaryWriter(os.Stdout),
	)
	if err != nil {
	    log.Fatal(err)
	}

	go feed(src) // src.Send(rec) from the producer side

	if err := eng.Run(context.Background()); err != nil {
	    log.Fatal(err)
	}

Run drains the source until it reports io.EOF or the context is
cancelled, then flushes the sinks and writes the summary. An engine
runs exactly one session; create a new engine for the next capture.

# Schemas

A schema names the timestamp slots, maps wire stage identifiers onto
them, and declares the latencies to derive:

	schema := stage.MustCompile(stage.Schema{
	    Name:  "rpc",
	    Slots: []string{"sent", "received", "replied"},
	    Stages: []stage.Stage{
	        {ID: 1, Name: "SEND", Slot: 0, Start: true},
	        {ID: 2, Name: "RECV", Slot: 1},
	        {ID: 3, Name: "REPLY", Slot: 2, Terminal: true},
	    },
	    Deltas: []stage.Delta{
	        {Name: "network", From: 0, To: 1},
	        {Name: "service", From: 1, To: 2},
	        {Name: "total", From: 0, To: 2},
	    },
	})

The built-in "fuse" profile models a FUSE request's path through
queueing, daemon processing and reply, and is registered at init.

# Filtering and Sinks

Completed records can be filtered with a small expression language and
emitted to any number of sinks:

	f := filter.MustCompile(`op == READ and total > 1ms`)
	csv, _ := sink.NewCSV(out, schema)

	eng, err := reqtrace.New(schema, src,
	    reqtrace.WithFilter(f),
	    reqtrace.WithSinks(csv),
	)

Sinks run on the session goroutine; wrap slow sinks in sink.NewAsync
to decouple them from the drain loop.

# Observability

The engine logs through log/slog and optionally records OpenTelemetry
metrics and traces:

	eng, err := reqtrace.New(schema, src,
	    reqtrace.WithLogger(slog.Default()),
	    reqtrace.WithMetrics(observability.NewMetricsRecorder()),
	    reqtrace.WithSpans(observability.NewSpanManager()),
	)

Metrics and tracing use the global OTel providers; configure them
before constructing the recorder. Without these options the engine
stays silent and records nothing.
*/
package reqtrace
