package rules

import (
	"github.com/wbrown/janus-cascades/cascades/expressions"
	"github.com/wbrown/janus-cascades/cascades/matching"
	"github.com/wbrown/janus-cascades/cascades/memo"
	"github.com/wbrown/janus-cascades/cascades/planner"
	"github.com/wbrown/janus-cascades/cascades/properties"
)

// pushOrderings pushes the orderings requested of the current group, as
// translated by translate, to child. Orderings translate drops are not
// pushed.
func pushOrderings(call *planner.RuleCall, child memo.GroupID,
	translate func(properties.RequestedOrdering) (properties.RequestedOrdering, bool)) {
	var out properties.OrderingSet
	for _, r := range call.RequestedOrderings(call.Group()) {
		if t, ok := translate(r); ok && !out.Contains(t) {
			out = append(out, t)
		}
	}
	if len(out) > 0 {
		planner.PushRequirement(call, child, properties.OrderingAttribute, out)
	}
}

func identity(r properties.RequestedOrdering) (properties.RequestedOrdering, bool) { return r, true }

// PushRequestedOrderingThroughSort asks the input of a sort for the sort's
// ordering, so that a sorted access path can make the sort unnecessary.
type PushRequestedOrderingThroughSort struct {
	root *matching.ExpressionMatcher[*expressions.Sort]
}

func NewPushRequestedOrderingThroughSort() *PushRequestedOrderingThroughSort {
	return &PushRequestedOrderingThroughSort{root: unary[*expressions.Sort]()}
}

func (r *PushRequestedOrderingThroughSort) Name() string {
	return "PushRequestedOrderingThroughSort"
}
func (r *PushRequestedOrderingThroughSort) Matcher() matching.BindingMatcher { return r.root }
func (r *PushRequestedOrderingThroughSort) PreOrder()                        {}

func (r *PushRequestedOrderingThroughSort) OnMatch(call *planner.RuleCall) {
	sort := matching.Get[*expressions.Sort](call.Bindings(), r.root)
	planner.PushRequirement(call, sort.Inner.Group, properties.OrderingAttribute,
		properties.OrderingSet{sort.RequestedOrdering()})
}

// PushRequestedOrderingThroughFilter forwards requested orderings through
// operators whose rows are the rows of their input.
type PushRequestedOrderingThroughFilter struct {
	root *matching.TypedMatcher[memo.Expression]
}

func NewPushRequestedOrderingThroughFilter() *PushRequestedOrderingThroughFilter {
	return &PushRequestedOrderingThroughFilter{
		root: matching.TypedWhere[memo.Expression](func(e memo.Expression) bool {
			switch e.(type) {
			case *expressions.Filter, *expressions.TypeFilter, *expressions.Distinct:
				return true
			}
			return false
		}),
	}
}

func (r *PushRequestedOrderingThroughFilter) Name() string {
	return "PushRequestedOrderingThroughFilter"
}
func (r *PushRequestedOrderingThroughFilter) Matcher() matching.BindingMatcher { return r.root }
func (r *PushRequestedOrderingThroughFilter) PreOrder()                        {}

func (r *PushRequestedOrderingThroughFilter) OnMatch(call *planner.RuleCall) {
	pushOrderings(call, only(call.Expression()).Group, identity)
}

// PushRequestedOrderingThroughProjection translates orderings over the
// projected columns into orderings over the values computing them.
type PushRequestedOrderingThroughProjection struct {
	root *matching.ExpressionMatcher[*expressions.Projection]
}

func NewPushRequestedOrderingThroughProjection() *PushRequestedOrderingThroughProjection {
	return &PushRequestedOrderingThroughProjection{root: unary[*expressions.Projection]()}
}

func (r *PushRequestedOrderingThroughProjection) Name() string {
	return "PushRequestedOrderingThroughProjection"
}
func (r *PushRequestedOrderingThroughProjection) Matcher() matching.BindingMatcher { return r.root }
func (r *PushRequestedOrderingThroughProjection) PreOrder()                        {}

func (r *PushRequestedOrderingThroughProjection) OnMatch(call *planner.RuleCall) {
	p := matching.Get[*expressions.Projection](call.Bindings(), r.root)
	mapped := &expressions.MapPlan{Values: p.Values, Names: p.Names, Inner: p.Inner}
	pushOrderings(call, p.Inner.Group, func(req properties.RequestedOrdering) (properties.RequestedOrdering, bool) {
		if req.IsPreserve() {
			return req, true
		}
		child, ok := mapped.ChildOrderings(req)
		if !ok {
			return properties.RequestedOrdering{}, false
		}
		return child[0], true
	})
}

// PushRequestedOrderingThroughGroupBy asks the input of a grouping for its
// grouping values so that groups can be formed in one streaming pass.
type PushRequestedOrderingThroughGroupBy struct {
	root *matching.ExpressionMatcher[*expressions.GroupBy]
}

func NewPushRequestedOrderingThroughGroupBy() *PushRequestedOrderingThroughGroupBy {
	return &PushRequestedOrderingThroughGroupBy{root: unary[*expressions.GroupBy]()}
}

func (r *PushRequestedOrderingThroughGroupBy) Name() string {
	return "PushRequestedOrderingThroughGroupBy"
}
func (r *PushRequestedOrderingThroughGroupBy) Matcher() matching.BindingMatcher { return r.root }
func (r *PushRequestedOrderingThroughGroupBy) PreOrder()                        {}

func (r *PushRequestedOrderingThroughGroupBy) OnMatch(call *planner.RuleCall) {
	g := matching.Get[*expressions.GroupBy](call.Bindings(), r.root)
	agg := &expressions.StreamingAggregatePlan{Grouping: g.Grouping, Aggregates: g.Aggregates, Inner: g.Inner}
	planner.PushRequirement(call, g.Inner.Group, properties.OrderingAttribute,
		properties.OrderingSet{g.RequestedOrdering()})
	pushOrderings(call, g.Inner.Group, func(req properties.RequestedOrdering) (properties.RequestedOrdering, bool) {
		child, ok := agg.ChildOrderings(req)
		if !ok {
			return properties.RequestedOrdering{}, false
		}
		return child[0], true
	})
}

// PushInterestingOrderingThroughUnion asks every input of a union for the
// orderings requested of the union, which makes ordered merges possible.
type PushInterestingOrderingThroughUnion struct {
	root *matching.ExpressionMatcher[*expressions.Union]
}

func NewPushInterestingOrderingThroughUnion() *PushInterestingOrderingThroughUnion {
	return &PushInterestingOrderingThroughUnion{
		root: matching.Expression[*expressions.Union](matching.All(matching.ForEachQuantifier(matching.AnyRef()))),
	}
}

func (r *PushInterestingOrderingThroughUnion) Name() string {
	return "PushInterestingOrderingThroughUnion"
}
func (r *PushInterestingOrderingThroughUnion) Matcher() matching.BindingMatcher { return r.root }
func (r *PushInterestingOrderingThroughUnion) PreOrder()                        {}

func (r *PushInterestingOrderingThroughUnion) OnMatch(call *planner.RuleCall) {
	u := matching.Get[*expressions.Union](call.Bindings(), r.root)
	for _, q := range u.Children {
		pushOrderings(call, q.Group, identity)
	}
}

// PushDistinctness tells the input of a distinct that its duplicates will be
// removed, and forwards that through filters.
type PushDistinctness struct {
	root *matching.TypedMatcher[memo.Expression]
}

func NewPushDistinctness() *PushDistinctness {
	return &PushDistinctness{
		root: matching.TypedWhere[memo.Expression](func(e memo.Expression) bool {
			switch e.(type) {
			case *expressions.Distinct, *expressions.Filter, *expressions.TypeFilter:
				return true
			}
			return false
		}),
	}
}

func (r *PushDistinctness) Name() string                     { return "PushDistinctness" }
func (r *PushDistinctness) Matcher() matching.BindingMatcher { return r.root }
func (r *PushDistinctness) PreOrder()                        {}

func (r *PushDistinctness) OnMatch(call *planner.RuleCall) {
	e := call.Expression()
	if _, ok := e.(*expressions.Distinct); !ok {
		if v, _ := planner.InterestingProperty(call, properties.DistinctnessAttribute); !v {
			return
		}
	}
	planner.PushRequirement(call, only(e).Group, properties.DistinctnessAttribute, true)
}
