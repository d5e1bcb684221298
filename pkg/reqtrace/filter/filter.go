// Package filter evaluates boolean expressions against completed
// request records, deciding which records reach the sinks.
//
// The grammar is deliberately small:
//
//	op == LOOKUP
//	result != 0
//	queuing > 100us and comm contains fio
//	not op == FORGET
//
// Left-hand names resolve against the record: op (or label), comm,
// category, id, queue, pid, result and ts are built in; any other name
// is looked up among the record's deltas. A delta that is missing or
// invalid never matches, under any operator. Right-hand literals may be
// quoted strings, numbers, or durations in time.ParseDuration syntax.
//
// Supported operators: ==, !=, <, >, <=, >=, contains, combined with
// and, or and a not/! prefix. Conjunction binds before disjunction.
package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/randalmurphal/reqtrace/pkg/reqtrace/breakdown"
)

// Filter is a compiled record predicate. A nil filter matches every
// record.
type Filter struct {
	src  string
	pred predicate
}

type predicate func(*breakdown.Record) bool

// Compile parses a filter expression. Malformed expressions are
// rejected here, not at match time.
func Compile(src string) (*Filter, error) {
	pred, err := compile(src)
	if err != nil {
		return nil, fmt.Errorf("filter %q: %w", src, err)
	}
	return &Filter{src: src, pred: pred}, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(src string) *Filter {
	f, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return f
}

// Match reports whether the record passes the filter.
func (f *Filter) Match(rec *breakdown.Record) bool {
	if f == nil {
		return true
	}
	return f.pred(rec)
}

// String returns the source expression.
func (f *Filter) String() string {
	if f == nil {
		return ""
	}
	return f.src
}

func compile(expr string) (predicate, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, errors.New("empty expression")
	}

	if rest, ok := strings.CutPrefix(expr, "not "); ok {
		inner, err := compile(rest)
		if err != nil {
			return nil, err
		}
		return func(r *breakdown.Record) bool { return !inner(r) }, nil
	}
	if rest, ok := strings.CutPrefix(expr, "!"); ok {
		inner, err := compile(rest)
		if err != nil {
			return nil, err
		}
		return func(r *breakdown.Record) bool { return !inner(r) }, nil
	}

	if left, right, ok := strings.Cut(expr, " and "); ok {
		l, err := compile(left)
		if err != nil {
			return nil, err
		}
		r, err := compile(right)
		if err != nil {
			return nil, err
		}
		return func(rec *breakdown.Record) bool { return l(rec) && r(rec) }, nil
	}
	if left, right, ok := strings.Cut(expr, " or "); ok {
		l, err := compile(left)
		if err != nil {
			return nil, err
		}
		r, err := compile(right)
		if err != nil {
			return nil, err
		}
		return func(rec *breakdown.Record) bool { return l(rec) || r(rec) }, nil
	}

	return compileComparison(expr)
}

// Operator table, longest first so ">=" is not split as ">".
var operators = []string{"==", "!=", ">=", "<=", ">", "<", " contains "}

func compileComparison(expr string) (predicate, error) {
	for _, op := range operators {
		left, right, ok := strings.Cut(expr, op)
		if !ok {
			continue
		}
		field := strings.TrimSpace(left)
		lit := strings.TrimSpace(right)
		if field == "" {
			return nil, fmt.Errorf("missing field before %q", strings.TrimSpace(op))
		}
		if lit == "" {
			return nil, fmt.Errorf("missing value after %q", strings.TrimSpace(op))
		}
		return buildComparison(field, strings.TrimSpace(op), parseLiteral(lit))
	}
	return nil, fmt.Errorf("no operator in %q", expr)
}

// value is a resolved operand: a string, a number (durations are
// nanoseconds), or missing.
type value struct {
	str  string
	num  float64
	kind uint8
}

const (
	kindMissing uint8 = iota
	kindStr
	kindNum
)

func strVal(s string) value  { return value{str: s, kind: kindStr} }
func numVal(f float64) value { return value{num: f, kind: kindNum} }

var missing = value{}

func parseLiteral(s string) value {
	if len(s) >= 2 {
		if (s[0] == '\'' && s[len(s)-1] == '\'') || (s[0] == '"' && s[len(s)-1] == '"') {
			return strVal(s[1 : len(s)-1])
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return numVal(f)
	}
	if d, err := time.ParseDuration(s); err == nil {
		return numVal(float64(d))
	}
	return strVal(s)
}

type fieldFn func(*breakdown.Record) value

func fieldResolver(name string) fieldFn {
	switch name {
	case "op", "label":
		return func(r *breakdown.Record) value { return strVal(r.Label) }
	case "comm":
		return func(r *breakdown.Record) value { return strVal(r.Comm) }
	case "category":
		return func(r *breakdown.Record) value { return numVal(float64(r.Category)) }
	case "id":
		return func(r *breakdown.Record) value { return numVal(float64(r.Key.ID)) }
	case "queue":
		return func(r *breakdown.Record) value { return numVal(float64(r.Key.Queue)) }
	case "pid":
		return func(r *breakdown.Record) value { return numVal(float64(r.PID)) }
	case "result":
		return func(r *breakdown.Record) value { return numVal(float64(r.Result)) }
	case "ts":
		return func(r *breakdown.Record) value { return numVal(float64(r.TS)) }
	default:
		// Anything else names a delta of the active schema.
		return func(r *breakdown.Record) value {
			if d, ok := r.Delta(name); ok && d.Valid {
				return numVal(float64(d.Value))
			}
			return missing
		}
	}
}

func buildComparison(field, op string, lit value) (predicate, error) {
	resolve := fieldResolver(field)

	switch op {
	case "==", "!=":
		want := op == "=="
		return func(r *breakdown.Record) bool {
			v := resolve(r)
			if v.kind == kindMissing {
				return false
			}
			return equal(v, lit) == want
		}, nil
	case "contains":
		return func(r *breakdown.Record) bool {
			v := resolve(r)
			return v.kind == kindStr && strings.Contains(v.str, asString(lit))
		}, nil
	case ">", "<", ">=", "<=":
		if lit.kind != kindNum {
			return nil, fmt.Errorf("operator %q needs a numeric or duration value, got %q", op, lit.str)
		}
		cmp := orderings[op]
		return func(r *breakdown.Record) bool {
			v := resolve(r)
			return v.kind == kindNum && cmp(v.num, lit.num)
		}, nil
	default:
		return nil, fmt.Errorf("unknown operator %q", op)
	}
}

var orderings = map[string]func(a, b float64) bool{
	">":  func(a, b float64) bool { return a > b },
	"<":  func(a, b float64) bool { return a < b },
	">=": func(a, b float64) bool { return a >= b },
	"<=": func(a, b float64) bool { return a <= b },
}

func equal(v, lit value) bool {
	if v.kind == kindNum && lit.kind == kindNum {
		return v.num == lit.num
	}
	return asString(v) == asString(lit)
}

func asString(v value) string {
	if v.kind == kindNum {
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return v.str
}
