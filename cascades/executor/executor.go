// Package executor runs a selected plan against a record store. Every plan
// node becomes a cursor; quantifier aliases are bound to the rows of the
// cursors below through a query.EvalContext.
//
// Rows are *cascades.Record for scans, *cascades.IndexEntry for index
// scans, *cascades.QueriedRecord for fetched records, cascades.Tuple for
// projections and aggregates, and a cascades.Tuple of the outer and inner
// row for joins.
package executor

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-cascades/cascades"
	"github.com/wbrown/janus-cascades/cascades/annotations"
	"github.com/wbrown/janus-cascades/cascades/cursor"
	"github.com/wbrown/janus-cascades/cascades/expressions"
	"github.com/wbrown/janus-cascades/cascades/planner"
	"github.com/wbrown/janus-cascades/cascades/properties"
	"github.com/wbrown/janus-cascades/cascades/query"
	"github.com/wbrown/janus-cascades/cascades/storage"
)

// Row is a value flowing between cursors.
type Row = cascades.Value

// Executor opens cursors for plans.
type Executor struct {
	store     *storage.RecordStore
	collector *annotations.Collector
}

// New returns an executor over rs.
func New(rs *storage.RecordStore) *Executor {
	return &Executor{store: rs}
}

// WithCollector reports execution events to c.
func (x *Executor) WithCollector(c *annotations.Collector) *Executor {
	x.collector = c
	return x
}

// Execute opens the cursor of root resuming at c.
func (x *Executor) Execute(ctx context.Context, root *planner.PlanNode, c cursor.Continuation) (cursor.Cursor[Row], error) {
	if root == nil {
		return nil, errors.AssertionFailedf("no plan to execute")
	}
	x.collector.AddEvent(annotations.ExecutionBegin, map[string]any{"plan": root.Plan.String()})
	return x.open(ctx, root, nil, c)
}

// Run executes root from the start and returns every row.
func (x *Executor) Run(ctx context.Context, root *planner.PlanNode) ([]Row, error) {
	start := time.Now()
	cur, err := x.Execute(ctx, root, cursor.Start())
	if err != nil {
		return nil, err
	}
	rows, _, err := cursor.Drain(ctx, cur)
	if err != nil {
		return nil, err
	}
	x.collector.AddTiming(annotations.ExecutionComplete, start, map[string]any{"rows": len(rows)})
	return rows, nil
}

func (x *Executor) opener(node *planner.PlanNode, env *query.EvalContext) cursor.Opener[Row] {
	return func(ctx context.Context, c cursor.Continuation) (cursor.Cursor[Row], error) {
		return x.open(ctx, node, env, c)
	}
}

func (x *Executor) child(ctx context.Context, node *planner.PlanNode, i int, env *query.EvalContext, c cursor.Continuation) (cursor.Cursor[Row], error) {
	if i >= len(node.Children) {
		return nil, errors.AssertionFailedf("%s has no input %d", node.Plan, i)
	}
	return x.open(ctx, node.Children[i], env, c)
}

// open builds the cursor of node. env holds the bindings of enclosing
// nested loops.
func (x *Executor) open(ctx context.Context, node *planner.PlanNode, env *query.EvalContext, c cursor.Continuation) (cursor.Cursor[Row], error) {
	switch p := node.Plan.(type) {
	case *expressions.ScanPlan:
		return x.scanRecords(p.RecordTypes, c)

	case *expressions.TypeFilterPlan:
		inner, err := x.child(ctx, node, 0, env, c)
		if err != nil {
			return nil, err
		}
		types := make(map[string]bool, len(p.RecordTypes))
		for _, t := range p.RecordTypes {
			types[t] = true
		}
		return cursor.Filter(inner, func(row Row) (bool, error) {
			r := recordOf(row)
			return r != nil && types[r.Type], nil
		}), nil

	case *expressions.PredicatesFilterPlan:
		inner, err := x.child(ctx, node, 0, env, c)
		if err != nil {
			return nil, err
		}
		return cursor.Filter(inner, func(row Row) (bool, error) {
			return query.EvalAll(env.WithBinding(p.Inner.Alias, row), p.Predicates)
		}), nil

	case *expressions.MapPlan:
		inner, err := x.child(ctx, node, 0, env, c)
		if err != nil {
			return nil, err
		}
		return cursor.Map(inner, func(row Row) (Row, error) {
			return evalTuple(env.WithBinding(p.Inner.Alias, row), p.Values)
		}), nil

	case *expressions.UnionPlan:
		return x.union(ctx, node, p, env, c)

	case *expressions.UnorderedPrimaryKeyDistinctPlan:
		inner, err := x.child(ctx, node, 0, env, c)
		if err != nil {
			return nil, err
		}
		return cursor.Distinct(inner, primaryKey), nil

	case *expressions.SortPlan:
		inner, err := x.child(ctx, node, 0, env, cursor.Start())
		if err != nil {
			return nil, err
		}
		return sortRows(inner, p.Parts, env, c)

	case *expressions.StreamingAggregatePlan:
		inner, err := x.child(ctx, node, 0, env, c)
		if err != nil {
			return nil, err
		}
		agg := cursor.NewTupleAggregator(
			func(row Row) (cascades.Tuple, error) {
				return evalTuple(env.WithBinding(p.Inner.Alias, row), p.Grouping)
			},
			func(row Row) ([]cascades.Value, error) {
				bound := env.WithBinding(p.Inner.Alias, row)
				out := make([]cascades.Value, len(p.Aggregates))
				for i, a := range p.Aggregates {
					v, err := a.Input(bound)
					if err != nil {
						return nil, err
					}
					out[i] = v
				}
				return out, nil
			},
			p.Aggregates,
		)
		return asRows[cascades.Tuple](cursor.Aggregate[Row, cascades.Tuple](inner, agg).WithEvents(x.collector)), nil

	case *expressions.NestedLoopJoinPlan:
		return x.join(ctx, node, p, env, c)

	case *expressions.IndexScanPlan:
		start, done, err := cursor.ScanStart(c)
		if err != nil || done {
			return cursor.Empty[Row](), err
		}
		scan, err := x.store.ScanIndex(p.Index, p.Comparisons, storage.ScanOptions{Reverse: p.Reverse, Continuation: start})
		if err != nil {
			return nil, err
		}
		return asRows[*cascades.IndexEntry](cursor.NewKeyValueCursor[*cascades.IndexEntry](scan)), nil

	case *expressions.FetchPlan:
		inner, err := x.child(ctx, node, 0, env, c)
		if err != nil {
			return nil, err
		}
		return cursor.Map(inner, func(row Row) (Row, error) {
			return x.fetch(p.RecordType, row)
		}), nil

	case *expressions.AggregateIndexPlan:
		start, done, err := cursor.ScanStart(c)
		if err != nil || done {
			return cursor.Empty[Row](), err
		}
		scan, err := x.store.ScanAggregateIndex(p.Index, p.Comparisons, storage.ScanOptions{Reverse: p.Reverse, Continuation: start})
		if err != nil {
			return nil, err
		}
		return asRows[cascades.Tuple](cursor.NewKeyValueCursor[cascades.Tuple](scan)), nil
	}
	return nil, errors.Wrapf(cascades.ErrUnsupported, "cannot execute %s", node.Plan)
}

func (x *Executor) scanRecords(recordTypes []string, c cursor.Continuation) (cursor.Cursor[Row], error) {
	start, done, err := cursor.ScanStart(c)
	if err != nil || done {
		return cursor.Empty[Row](), err
	}
	scan, err := x.store.ScanRecords(recordTypes, storage.ScanOptions{Continuation: start})
	if err != nil {
		return nil, err
	}
	return asRows[*cascades.Record](cursor.NewKeyValueCursor[*cascades.Record](scan)), nil
}

func (x *Executor) fetch(recordType string, row Row) (Row, error) {
	entry, ok := row.(*cascades.IndexEntry)
	if !ok {
		return nil, errors.AssertionFailedf("fetch expects index entries, got %T", row)
	}
	r, found, err := x.store.LoadRecord(recordType, entry.PrimaryKey)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.Newf("index %s points to missing %s%s", entry.Index, recordType, entry.PrimaryKey)
	}
	return &cascades.QueriedRecord{Record: r, IndexEntry: entry}, nil
}

func (x *Executor) union(ctx context.Context, node *planner.PlanNode, p *expressions.UnionPlan, env *query.EvalContext, c cursor.Continuation) (cursor.Cursor[Row], error) {
	if !p.IsMerge() {
		inputs := make([]cursor.Opener[Row], len(node.Children))
		for i, child := range node.Children {
			inputs[i] = x.opener(child, env)
		}
		return cursor.Concat(inputs, c)
	}
	inputs := make([]cursor.Opener[keyed], len(node.Children))
	for i, child := range node.Children {
		open := x.opener(child, env)
		inputs[i] = func(ctx context.Context, c cursor.Continuation) (cursor.Cursor[keyed], error) {
			in, err := open(ctx, c)
			if err != nil {
				return nil, err
			}
			return withSortKey(in, p.Ordering, env), nil
		}
	}
	m, err := cursor.Merge(ctx, inputs, compareKeyed(p.Ordering), c)
	if err != nil {
		return nil, err
	}
	return cursor.Map[keyed, Row](m, func(k keyed) (Row, error) { return k.row, nil }), nil
}

// join runs a nested loop. The inner input is reopened for every outer row
// with the outer alias bound, so correlated inner plans see it.
func (x *Executor) join(ctx context.Context, node *planner.PlanNode, p *expressions.NestedLoopJoinPlan, env *query.EvalContext, c cursor.Continuation) (cursor.Cursor[Row], error) {
	if len(node.Children) != 2 {
		return nil, errors.AssertionFailedf("join needs two inputs, has %d", len(node.Children))
	}
	openInner := func(ctx context.Context, outer Row, c cursor.Continuation) (cursor.Cursor[Row], error) {
		bound := env.WithBinding(p.Outer.Alias, outer)
		inner, err := x.open(ctx, node.Children[1], bound, c)
		if err != nil {
			return nil, err
		}
		matched := cursor.Filter(inner, func(row Row) (bool, error) {
			return query.EvalAll(bound.WithBinding(p.Inner.Alias, row), p.Predicates)
		})
		return cursor.Map[Row, Row](matched, func(row Row) (Row, error) {
			return cascades.Tuple{outer, row}, nil
		}), nil
	}
	return cursor.FlatMap(ctx, x.opener(node.Children[0], env), openInner, c)
}

func asRows[T any](c cursor.Cursor[T]) cursor.Cursor[Row] {
	return cursor.Map[T, Row](c, func(v T) (Row, error) { return v, nil })
}

func evalTuple(ctx *query.EvalContext, values []query.Value) (cascades.Tuple, error) {
	out := make(cascades.Tuple, len(values))
	for i, v := range values {
		r, err := v.Eval(ctx)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func recordOf(row Row) *cascades.Record {
	switch r := row.(type) {
	case *cascades.Record:
		return r
	case *cascades.QueriedRecord:
		return r.Record
	}
	return nil
}

// primaryKey identifies a row for primary key distinctness.
func primaryKey(row Row) (string, error) {
	var t cascades.Tuple
	switch r := row.(type) {
	case *cascades.Record:
		t = cascades.Tuple{r.Type}.Concat(r.PrimaryKey)
	case *cascades.QueriedRecord:
		t = cascades.Tuple{r.Type}.Concat(r.PrimaryKey)
	case *cascades.IndexEntry:
		t = r.PrimaryKey
	case cascades.Tuple:
		t = r
	default:
		return cascades.FormatValue(row), nil
	}
	b, err := cascades.EncodeTuple(t)
	return string(b), err
}

// keyed is a row with its evaluated sort key.
type keyed struct {
	row Row
	key cascades.Tuple
}

func withSortKey(in cursor.Cursor[Row], parts []properties.OrderingPart, env *query.EvalContext) cursor.Cursor[keyed] {
	return cursor.Map[Row, keyed](in, func(row Row) (keyed, error) {
		bound := env.WithBinding(query.CurrentAlias, row)
		key := make(cascades.Tuple, len(parts))
		for i, part := range parts {
			v, err := part.Value.Eval(bound)
			if err != nil {
				return keyed{}, err
			}
			key[i] = v
		}
		return keyed{row: row, key: key}, nil
	})
}

func compareKeyed(parts []properties.OrderingPart) func(a, b keyed) int {
	return func(a, b keyed) int {
		for i, part := range parts {
			cmp := cascades.CompareValues(a.key[i], b.key[i])
			if part.Descending {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp
			}
		}
		return 0
	}
}

func sortRows(in cursor.Cursor[Row], parts []properties.OrderingPart, env *query.EvalContext, c cursor.Continuation) (cursor.Cursor[Row], error) {
	s, err := cursor.Sort(withSortKey(in, parts, env), compareKeyed(parts), c)
	if err != nil {
		return nil, err
	}
	return cursor.Map[keyed, Row](s, func(k keyed) (Row, error) { return k.row, nil }), nil
}
