package config

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/randalmurphal/reqtrace/pkg/reqtrace"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/filter"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/pending"
	"github.com/randalmurphal/reqtrace/pkg/reqtrace/stage"
)

// ErrNoSchema indicates the config names neither a registered profile
// nor an inline schema.
var ErrNoSchema = errors.New("config names neither a profile nor a schema")

// Schema resolves the session's lifecycle schema: an inline "schema"
// block when present, otherwise the registered profile named by
// "profile".
func (c Config) Schema() (*stage.Schema, error) {
	if c.Has("schema") {
		m, ok := c.Any("schema", nil).(map[string]any)
		if !ok {
			return nil, errors.New("schema: expected a mapping")
		}
		return schemaFromMap(m)
	}
	if name := c.String("profile", ""); name != "" {
		return stage.Lookup(name)
	}
	return nil, ErrNoSchema
}

// EngineOptions builds engine options from the session keys. Absent
// keys contribute nothing, leaving the engine defaults in place.
//
// Recognized keys: session, batch_size, poll_timeout, capacity,
// capacity_policy, eviction_age, eviction_interval, drop_log, filter.
func (c Config) EngineOptions() ([]reqtrace.Option, error) {
	var opts []reqtrace.Option

	if c.Has("session") {
		opts = append(opts, reqtrace.WithSessionID(c.String("session", "")))
	}
	if c.Has("batch_size") {
		opts = append(opts, reqtrace.WithBatchSize(c.Int("batch_size", 0)))
	}
	if c.Has("poll_timeout") {
		opts = append(opts, reqtrace.WithPollTimeout(c.Duration("poll_timeout", 0)))
	}
	if c.Has("capacity") {
		policy := pending.PolicyReject
		switch name := c.String("capacity_policy", "reject"); name {
		case "reject":
		case "sweep":
			policy = pending.PolicySweep
		default:
			return nil, fmt.Errorf("unknown capacity policy %q", name)
		}
		opts = append(opts, reqtrace.WithCapacity(c.Int("capacity", 0), policy))
	}
	if c.Has("eviction_age") || c.Has("eviction_interval") {
		age := c.Duration("eviction_age", time.Minute)
		interval := c.Duration("eviction_interval", 10*time.Second)
		opts = append(opts, reqtrace.WithEviction(age, interval))
	}
	if c.Has("drop_log") {
		opts = append(opts, reqtrace.WithDropLogSize(c.Int("drop_log", 0)))
	}
	if c.Has("filter") {
		f, err := filter.Compile(c.String("filter", ""))
		if err != nil {
			return nil, err
		}
		opts = append(opts, reqtrace.WithFilter(f))
	}

	return opts, nil
}

// schemaFromMap decodes an inline schema block. Stages and deltas
// reference slots by name rather than index.
func schemaFromMap(m map[string]any) (*stage.Schema, error) {
	cfg := New(m)

	s := stage.Schema{
		Name:        cfg.String("name", ""),
		Slots:       cfg.StringSlice("slots", nil),
		OriginDelta: cfg.String("origin_delta", ""),
		StatsDelta:  cfg.String("stats_delta", ""),
	}

	slots := make(map[string]stage.Slot, len(s.Slots))
	for i, name := range s.Slots {
		slots[name] = stage.Slot(i)
	}

	rawStages, ok := cfg.Any("stages", nil).([]any)
	if !ok {
		return nil, errors.New("schema: stages must be a list")
	}
	for i, raw := range rawStages {
		sm, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("schema: stage %d must be a mapping", i)
		}
		sc := New(sm)
		st := stage.Stage{
			ID:       uint32(sc.Int("id", 0)),
			Name:     sc.String("name", ""),
			Start:    sc.Bool("start", false),
			Terminal: sc.Bool("terminal", false),
			Origin:   sc.Bool("origin", false),
		}
		slotName := sc.String("slot", "")
		switch {
		case st.Origin:
			// Origin stages take no slot.
		case slotName == "":
			return nil, fmt.Errorf("schema: stage %q needs a slot", st.Name)
		default:
			slot, ok := slots[slotName]
			if !ok {
				return nil, fmt.Errorf("schema: stage %q references unknown slot %q", st.Name, slotName)
			}
			st.Slot = slot
		}
		s.Stages = append(s.Stages, st)
	}

	rawDeltas, ok := cfg.Any("deltas", nil).([]any)
	if !ok {
		return nil, errors.New("schema: deltas must be a list")
	}
	for i, raw := range rawDeltas {
		dm, ok := raw.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("schema: delta %d must be a mapping", i)
		}
		dc := New(dm)
		d := stage.Delta{Name: dc.String("name", "")}
		from, ok := slots[dc.String("from", "")]
		if !ok {
			return nil, fmt.Errorf("schema: delta %q references unknown slot %q", d.Name, dc.String("from", ""))
		}
		to, ok := slots[dc.String("to", "")]
		if !ok {
			return nil, fmt.Errorf("schema: delta %q references unknown slot %q", d.Name, dc.String("to", ""))
		}
		d.From, d.To = from, to
		s.Deltas = append(s.Deltas, d)
	}

	if raw := cfg.Any("categories", nil); raw != nil {
		cats, err := categoriesFromAny(raw)
		if err != nil {
			return nil, err
		}
		s.Categories = cats
	}

	return stage.Compile(s)
}

// categoriesFromAny decodes the category table. YAML delivers integer
// keys as map[any]any, JSON as map[string]any with decimal keys; both
// are accepted.
func categoriesFromAny(raw any) (map[uint32]string, error) {
	out := make(map[uint32]string)

	switch m := raw.(type) {
	case map[string]any:
		for k, v := range m {
			code, err := strconv.ParseUint(k, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("schema: category code %q: %w", k, err)
			}
			label, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("schema: category %s label must be a string", k)
			}
			out[uint32(code)] = label
		}
	case map[any]any:
		for k, v := range m {
			code, err := categoryCode(k)
			if err != nil {
				return nil, err
			}
			label, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("schema: category %v label must be a string", k)
			}
			out[code] = label
		}
	default:
		return nil, errors.New("schema: categories must be a mapping")
	}

	return out, nil
}

func categoryCode(k any) (uint32, error) {
	switch v := k.(type) {
	case int:
		if v >= 0 {
			return uint32(v), nil
		}
	case int64:
		if v >= 0 {
			return uint32(v), nil
		}
	case uint64:
		return uint32(v), nil
	case string:
		if code, err := strconv.ParseUint(v, 10, 32); err == nil {
			return uint32(code), nil
		}
	}
	return 0, fmt.Errorf("schema: category code %v must be a non-negative integer", k)
}
