package query

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-cascades/cascades"
)

// AggregateFunc names an aggregate function.
type AggregateFunc int

const (
	Sum AggregateFunc = iota
	Min
	Max
	Avg
	Count
)

func (f AggregateFunc) String() string {
	switch f {
	case Sum:
		return "sum"
	case Min:
		return "min"
	case Max:
		return "max"
	case Avg:
		return "avg"
	case Count:
		return "count"
	}
	return fmt.Sprintf("AggregateFunc(%d)", int(f))
}

// ParseAggregateFunc maps a function name to its AggregateFunc.
func ParseAggregateFunc(name string) (AggregateFunc, error) {
	for _, f := range []AggregateFunc{Sum, Min, Max, Avg, Count} {
		if f.String() == name {
			return f, nil
		}
	}
	return 0, errors.Newf("unknown aggregate function %q", name)
}

// AggregateValue applies an aggregate function to a child value over a
// group of rows. A Count with a nil child counts rows.
type AggregateValue struct {
	Func  AggregateFunc
	Child Value
}

// Aggregate returns fn(child).
func Aggregate(fn AggregateFunc, child Value) *AggregateValue {
	return &AggregateValue{Func: fn, Child: child}
}

// CountRows returns count(*).
func CountRows() *AggregateValue {
	return &AggregateValue{Func: Count}
}

func (v *AggregateValue) String() string {
	if v.Child == nil {
		return v.Func.String() + "(*)"
	}
	return v.Func.String() + "(" + v.Child.String() + ")"
}

func (v *AggregateValue) Correlations() cascades.CorrelationSet {
	if v.Child == nil {
		return cascades.CorrelationSet{}
	}
	return v.Child.Correlations()
}

func (v *AggregateValue) Eval(*EvalContext) (cascades.Value, error) {
	return nil, errors.Wrapf(cascades.ErrUnsupported, "aggregate %s cannot be evaluated per row", v)
}

func (v *AggregateValue) Rebase(m *cascades.AliasMap) Value {
	if v.Child == nil {
		return v
	}
	return &AggregateValue{Func: v.Func, Child: v.Child.Rebase(m)}
}

func (v *AggregateValue) SemanticEquals(other Value, m *cascades.AliasMap) bool {
	o, ok := other.(*AggregateValue)
	if !ok || v.Func != o.Func {
		return false
	}
	if v.Child == nil || o.Child == nil {
		return v.Child == nil && o.Child == nil
	}
	return v.Child.SemanticEquals(o.Child, m)
}

func (v *AggregateValue) SemanticHash() uint64 {
	if v.Child == nil {
		return hashOf("agg:" + v.Func.String())
	}
	return hashOf("agg:"+v.Func.String(), v.Child.SemanticHash())
}

// Input evaluates the aggregated child for one row.
func (v *AggregateValue) Input(ctx *EvalContext) (cascades.Value, error) {
	if v.Child == nil {
		return true, nil
	}
	return v.Child.Eval(ctx)
}

// NewAccumulator returns a fresh accumulator for this function.
func (v *AggregateValue) NewAccumulator() Accumulator {
	switch v.Func {
	case Sum:
		return &sumAccumulator{}
	case Min:
		return &extremumAccumulator{want: -1}
	case Max:
		return &extremumAccumulator{want: 1}
	case Avg:
		return &avgAccumulator{}
	default:
		return &countAccumulator{}
	}
}

// Accumulator folds the values of one group. Nulls are ignored.
type Accumulator interface {
	Accumulate(v cascades.Value) error
	Finish() cascades.Value
}

type sumAccumulator struct {
	intSum   int64
	floatSum float64
	isFloat  bool
	seen     bool
}

func (a *sumAccumulator) Accumulate(v cascades.Value) error {
	switch n := v.(type) {
	case nil:
		return nil
	case int64:
		a.intSum += n
		a.floatSum += float64(n)
	case int:
		a.intSum += int64(n)
		a.floatSum += float64(n)
	case float64:
		a.floatSum += n
		a.isFloat = true
	default:
		return errors.Newf("cannot sum %T", v)
	}
	a.seen = true
	return nil
}

func (a *sumAccumulator) Finish() cascades.Value {
	switch {
	case !a.seen:
		return nil
	case a.isFloat:
		return a.floatSum
	}
	return a.intSum
}

type extremumAccumulator struct {
	want int
	best cascades.Value
}

func (a *extremumAccumulator) Accumulate(v cascades.Value) error {
	if v == nil {
		return nil
	}
	if a.best == nil || cascades.CompareValues(v, a.best) == a.want {
		a.best = v
	}
	return nil
}

func (a *extremumAccumulator) Finish() cascades.Value { return a.best }

type avgAccumulator struct {
	sum   sumAccumulator
	count int64
}

func (a *avgAccumulator) Accumulate(v cascades.Value) error {
	if v == nil {
		return nil
	}
	if err := a.sum.Accumulate(v); err != nil {
		return err
	}
	a.count++
	return nil
}

func (a *avgAccumulator) Finish() cascades.Value {
	if a.count == 0 {
		return nil
	}
	return a.sum.floatSum / float64(a.count)
}

type countAccumulator struct {
	count int64
}

func (a *countAccumulator) Accumulate(v cascades.Value) error {
	if v != nil {
		a.count++
	}
	return nil
}

func (a *countAccumulator) Finish() cascades.Value { return a.count }

// AggregatesEqual reports whether two aggregate lists are pairwise equal.
func AggregatesEqual(a, b []*AggregateValue, m *cascades.AliasMap) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].SemanticEquals(b[i], m) {
			return false
		}
	}
	return true
}
