package cursor

import (
	"context"

	"github.com/wbrown/janus-cascades/cascades"
	"github.com/wbrown/janus-cascades/cascades/annotations"
	"github.com/wbrown/janus-cascades/cascades/query"
)

// GroupAggregator folds a stream ordered by group into one row per group.
type GroupAggregator[T, R any] interface {
	// Apply adds v. It returns true when v starts a new group, in which
	// case the previous group is complete and v is held for the next one.
	Apply(v T) (bool, error)

	// Finalize completes the current group. It returns false when no value
	// was applied since the last completed group.
	Finalize() bool

	// CompletedGroup returns the row of the last completed group.
	CompletedGroup() R
}

// AggregateCursor emits one row per group of its ordered input. The
// continuation of a row is the continuation of the last input value that
// belongs to its group, so a resumed cursor starts with the next group.
type AggregateCursor[T, R any] struct {
	inner Cursor[T]
	agg   GroupAggregator[T, R]

	// lastInGroup is the continuation of the last value applied to the
	// group being built.
	lastInGroup Continuation
	finalized   bool
	// innerEnd is the terminal result of inner, repeated once the final
	// group has been emitted.
	innerEnd  Result[R]
	term      terminal[R]
	collector *annotations.Collector
}

// Aggregate groups inner with agg.
func Aggregate[T, R any](inner Cursor[T], agg GroupAggregator[T, R]) *AggregateCursor[T, R] {
	return &AggregateCursor[T, R]{inner: inner, agg: agg}
}

// WithEvents reports every emitted group to c.
func (a *AggregateCursor[T, R]) WithEvents(c *annotations.Collector) *AggregateCursor[T, R] {
	a.collector = c
	return a
}

func (a *AggregateCursor[T, R]) OnNext(ctx context.Context) (Result[R], error) {
	if a.term.done {
		return a.term.result, nil
	}
	if a.finalized {
		return a.term.latch(a.innerEnd), nil
	}
	for {
		r, err := a.inner.OnNext(ctx)
		if err != nil {
			return Result[R]{}, err
		}
		if !r.HasNext() {
			a.finalized = true
			a.innerEnd = Result[R]{continuation: r.continuation, reason: r.reason}
			if !a.agg.Finalize() {
				return a.term.latch(a.innerEnd), nil
			}
			return a.emit(a.lastInGroup), nil
		}
		groupBreak, err := a.agg.Apply(r.Value())
		if err != nil {
			return Result[R]{}, err
		}
		emitted := a.lastInGroup
		a.lastInGroup = r.Continuation()
		if groupBreak {
			return a.emit(emitted), nil
		}
	}
}

func (a *AggregateCursor[T, R]) emit(c Continuation) Result[R] {
	row := a.agg.CompletedGroup()
	if a.collector.Enabled() {
		a.collector.AddEvent(annotations.AggregateGroup, map[string]any{"row": row, "continuation": c.String()})
	}
	return WithNextValue(row, c)
}

func (a *AggregateCursor[T, R]) Close() error { return a.inner.Close() }

// TupleAggregator groups values by a tuple of grouping values and folds
// the aggregate inputs with query accumulators. Completed rows are the
// grouping values followed by the aggregates.
type TupleAggregator[T any] struct {
	group      func(T) (cascades.Tuple, error)
	inputs     func(T) ([]cascades.Value, error)
	aggregates []*query.AggregateValue

	current   cascades.Tuple
	accs      []query.Accumulator
	started   bool
	completed cascades.Tuple
}

// NewTupleAggregator builds an aggregator. group extracts the grouping
// values of a value; inputs extracts one input per aggregate.
func NewTupleAggregator[T any](group func(T) (cascades.Tuple, error), inputs func(T) ([]cascades.Value, error), aggregates []*query.AggregateValue) *TupleAggregator[T] {
	return &TupleAggregator[T]{group: group, inputs: inputs, aggregates: aggregates}
}

func (g *TupleAggregator[T]) Apply(v T) (bool, error) {
	key, err := g.group(v)
	if err != nil {
		return false, err
	}
	in, err := g.inputs(v)
	if err != nil {
		return false, err
	}
	groupBreak := g.started && !key.Equal(g.current)
	if groupBreak {
		g.complete()
	}
	if !g.started {
		g.current, g.started = key, true
		g.accs = make([]query.Accumulator, len(g.aggregates))
		for i, agg := range g.aggregates {
			g.accs[i] = agg.NewAccumulator()
		}
	}
	for i, acc := range g.accs {
		if err := acc.Accumulate(in[i]); err != nil {
			return false, err
		}
	}
	return groupBreak, nil
}

func (g *TupleAggregator[T]) complete() {
	row := append(cascades.Tuple(nil), g.current...)
	for _, acc := range g.accs {
		row = append(row, acc.Finish())
	}
	g.completed, g.started = row, false
}

func (g *TupleAggregator[T]) Finalize() bool {
	if !g.started {
		return false
	}
	g.complete()
	return true
}

func (g *TupleAggregator[T]) CompletedGroup() cascades.Tuple { return g.completed }
