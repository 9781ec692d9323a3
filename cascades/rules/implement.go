package rules

import (
	"github.com/wbrown/janus-cascades/cascades/expressions"
	"github.com/wbrown/janus-cascades/cascades/matching"
	"github.com/wbrown/janus-cascades/cascades/memo"
	"github.com/wbrown/janus-cascades/cascades/planner"
	"github.com/wbrown/janus-cascades/cascades/properties"
	"github.com/wbrown/janus-cascades/cascades/query"
)

func physical(qs []memo.Quantifier) []memo.Quantifier {
	out := make([]memo.Quantifier, len(qs))
	for i, q := range qs {
		out[i] = q.ToPhysical()
	}
	return out
}

// ImplementTypeFilterScan reads a single record type in primary key order
// instead of scanning every type and filtering.
type ImplementTypeFilterScan struct {
	scan *matching.ExpressionMatcher[*expressions.Scan]
	root *matching.ExpressionMatcher[*expressions.TypeFilter]
}

func NewImplementTypeFilterScan() *ImplementTypeFilterScan {
	scan := matching.Expression[*expressions.Scan](nil)
	return &ImplementTypeFilterScan{
		scan: scan,
		root: matching.Expression[*expressions.TypeFilter](
			matching.Exactly(matching.ForEachQuantifier(matching.RefMembers(scan)))),
	}
}

func (r *ImplementTypeFilterScan) Name() string                     { return "ImplementTypeFilterScan" }
func (r *ImplementTypeFilterScan) Matcher() matching.BindingMatcher { return r.root }

func (r *ImplementTypeFilterScan) OnMatch(call *planner.RuleCall) {
	tf := matching.Get[*expressions.TypeFilter](call.Bindings(), r.root)
	plan := &expressions.ScanPlan{RecordTypes: tf.RecordTypes}
	if len(tf.RecordTypes) == 1 {
		if rt, ok := call.Context().Metadata.RecordType(tf.RecordTypes[0]); ok {
			plan.PrimaryKey = rt.PrimaryKey
		}
	}
	call.Yield(plan)
}

// ImplementScan scans every listed record type.
type ImplementScan struct {
	root *matching.ExpressionMatcher[*expressions.Scan]
}

func NewImplementScan() *ImplementScan {
	return &ImplementScan{root: matching.Expression[*expressions.Scan](nil)}
}

func (r *ImplementScan) Name() string                     { return "ImplementScan" }
func (r *ImplementScan) Matcher() matching.BindingMatcher { return r.root }

func (r *ImplementScan) OnMatch(call *planner.RuleCall) {
	s := matching.Get[*expressions.Scan](call.Bindings(), r.root)
	call.Yield(&expressions.ScanPlan{RecordTypes: s.RecordTypes})
}

type ImplementTypeFilter struct {
	root *matching.ExpressionMatcher[*expressions.TypeFilter]
}

func NewImplementTypeFilter() *ImplementTypeFilter {
	return &ImplementTypeFilter{root: unary[*expressions.TypeFilter]()}
}

func (r *ImplementTypeFilter) Name() string                     { return "ImplementTypeFilter" }
func (r *ImplementTypeFilter) Matcher() matching.BindingMatcher { return r.root }

func (r *ImplementTypeFilter) OnMatch(call *planner.RuleCall) {
	tf := matching.Get[*expressions.TypeFilter](call.Bindings(), r.root)
	call.Yield(&expressions.TypeFilterPlan{RecordTypes: tf.RecordTypes, Inner: tf.Inner.ToPhysical()})
}

// ImplementFilter evaluates the predicates on every row. A filter whose
// predicates always hold is replaced by the plans of its input.
type ImplementFilter struct {
	root *matching.ExpressionMatcher[*expressions.Filter]
}

func NewImplementFilter() *ImplementFilter {
	return &ImplementFilter{root: unary[*expressions.Filter]()}
}

func (r *ImplementFilter) Name() string                     { return "ImplementFilter" }
func (r *ImplementFilter) Matcher() matching.BindingMatcher { return r.root }

func (r *ImplementFilter) OnMatch(call *planner.RuleCall) {
	f := matching.Get[*expressions.Filter](call.Bindings(), r.root)
	if query.AllTautologies(f.Predicates) {
		call.YieldPlans(f.Inner.Group)
		return
	}
	call.Yield(&expressions.PredicatesFilterPlan{Predicates: f.Predicates, Inner: f.Inner.ToPhysical()})
}

type ImplementProjection struct {
	root *matching.ExpressionMatcher[*expressions.Projection]
}

func NewImplementProjection() *ImplementProjection {
	return &ImplementProjection{root: unary[*expressions.Projection]()}
}

func (r *ImplementProjection) Name() string                     { return "ImplementProjection" }
func (r *ImplementProjection) Matcher() matching.BindingMatcher { return r.root }

func (r *ImplementProjection) OnMatch(call *planner.RuleCall) {
	p := matching.Get[*expressions.Projection](call.Bindings(), r.root)
	call.Yield(&expressions.MapPlan{Values: p.Values, Names: p.Names, Inner: p.Inner.ToPhysical()})
}

// ImplementUnion concatenates the inputs, and for every ordering requested
// of the union also merges inputs sorted that way.
type ImplementUnion struct {
	root *matching.ExpressionMatcher[*expressions.Union]
}

func NewImplementUnion() *ImplementUnion {
	return &ImplementUnion{root: matching.Expression[*expressions.Union](nil)}
}

func (r *ImplementUnion) Name() string                     { return "ImplementUnion" }
func (r *ImplementUnion) Matcher() matching.BindingMatcher { return r.root }

func (r *ImplementUnion) OnMatch(call *planner.RuleCall) {
	u := matching.Get[*expressions.Union](call.Bindings(), r.root)
	call.Yield(&expressions.UnionPlan{Children: physical(u.Children)})
	for _, req := range call.RequestedOrderings(call.Group()) {
		if req.IsPreserve() {
			continue
		}
		call.Yield(&expressions.UnionPlan{Ordering: req.Parts, Children: physical(u.Children)})
	}
}

// ImplementDistinct removes duplicate records by primary key. When a
// distinct further up removes duplicates anyway, the input's plans are
// offered as well.
type ImplementDistinct struct {
	root *matching.ExpressionMatcher[*expressions.Distinct]
}

func NewImplementDistinct() *ImplementDistinct {
	return &ImplementDistinct{root: unary[*expressions.Distinct]()}
}

func (r *ImplementDistinct) Name() string                     { return "ImplementDistinct" }
func (r *ImplementDistinct) Matcher() matching.BindingMatcher { return r.root }

func (r *ImplementDistinct) OnMatch(call *planner.RuleCall) {
	d := matching.Get[*expressions.Distinct](call.Bindings(), r.root)
	call.Yield(&expressions.UnorderedPrimaryKeyDistinctPlan{Inner: d.Inner.ToPhysical()})
	if removed, _ := planner.InterestingProperty(call, properties.DistinctnessAttribute); removed {
		call.YieldPlans(d.Inner.Group)
	}
}

type ImplementSort struct {
	root *matching.ExpressionMatcher[*expressions.Sort]
}

func NewImplementSort() *ImplementSort {
	return &ImplementSort{root: unary[*expressions.Sort]()}
}

func (r *ImplementSort) Name() string                     { return "ImplementSort" }
func (r *ImplementSort) Matcher() matching.BindingMatcher { return r.root }

func (r *ImplementSort) OnMatch(call *planner.RuleCall) {
	s := matching.Get[*expressions.Sort](call.Bindings(), r.root)
	call.Yield(&expressions.SortPlan{Parts: s.Parts, Inner: s.Inner.ToPhysical()})
}

type ImplementGroupBy struct {
	root *matching.ExpressionMatcher[*expressions.GroupBy]
}

func NewImplementGroupBy() *ImplementGroupBy {
	return &ImplementGroupBy{root: unary[*expressions.GroupBy]()}
}

func (r *ImplementGroupBy) Name() string                     { return "ImplementGroupBy" }
func (r *ImplementGroupBy) Matcher() matching.BindingMatcher { return r.root }

func (r *ImplementGroupBy) OnMatch(call *planner.RuleCall) {
	g := matching.Get[*expressions.GroupBy](call.Bindings(), r.root)
	call.Yield(&expressions.StreamingAggregatePlan{
		Grouping:   g.Grouping,
		Aggregates: g.Aggregates,
		Inner:      g.Inner.ToPhysical(),
	})
}

type ImplementJoin struct {
	root *matching.ExpressionMatcher[*expressions.Join]
}

func NewImplementJoin() *ImplementJoin {
	return &ImplementJoin{root: matching.Expression[*expressions.Join](nil)}
}

func (r *ImplementJoin) Name() string                     { return "ImplementJoin" }
func (r *ImplementJoin) Matcher() matching.BindingMatcher { return r.root }

func (r *ImplementJoin) OnMatch(call *planner.RuleCall) {
	j := matching.Get[*expressions.Join](call.Bindings(), r.root)
	call.Yield(&expressions.NestedLoopJoinPlan{
		Predicates: j.Predicates,
		Outer:      j.Outer.ToPhysical(),
		Inner:      j.Inner.ToPhysical(),
	})
}
