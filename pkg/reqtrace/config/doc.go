/*
Package config loads capture session configuration from YAML or JSON.

# Overview

config wraps a map[string]any with typed accessors that handle missing
keys and type mismatches by returning defaults, plus two reqtrace
bindings: Schema resolves the session's lifecycle schema and
EngineOptions turns the session keys into engine options.

# Session Files

A session file names a registered profile or declares a schema inline,
and tunes the engine:

	profile: fuse
	session: nightly-run
	capacity: 65536
	capacity_policy: sweep
	eviction_age: 30s
	poll_timeout: 100ms
	filter: op == READ and total > 1ms

Load and apply it:

	cfg, err := config.FromFile("session.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	schema, err := cfg.Schema()
	if err != nil {
	    log.Fatal(err)
	}
	opts, err := cfg.EngineOptions()
	if err != nil {
	    log.Fatal(err)
	}
	eng, err := reqtrace.New(schema, src, opts...)

# Inline Schemas

The schema block references slots by name, which keeps stage and delta
declarations readable:

	schema:
	  name: rpc
	  slots: [sent, received, replied]
	  stages:
	    - {id: 1, name: SEND, slot: sent, start: true}
	    - {id: 2, name: RECV, slot: received}
	    - {id: 3, name: REPLY, slot: replied, terminal: true}
	  deltas:
	    - {name: network, from: sent, to: received}
	    - {name: total, from: sent, to: replied}
	  categories:
	    1: READ
	    2: WRITE

# Type Coercion

Duration keys accept time.ParseDuration strings ("30s", "1h30m") or
bare numbers interpreted as seconds. Int rejects floats with a
fractional part rather than truncating.
*/
package config
