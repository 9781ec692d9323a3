package planner

import (
	"fmt"
	"strings"

	"github.com/wbrown/janus-cascades/cascades/expressions"
	"github.com/wbrown/janus-cascades/cascades/memo"
	"github.com/wbrown/janus-cascades/cascades/properties"
)

// PlanNode is one operator of an extracted plan. Children follow the
// plan's quantifiers.
type PlanNode struct {
	Plan     memo.Plan
	Group    memo.GroupID
	Children []*PlanNode
	Estimate memo.Estimate
	Ordering properties.Ordering

	// Enforced is set on sorts the extractor added because no member of
	// the group provided the requested ordering.
	Enforced bool
}

// Walk visits n and its descendants depth first.
func (n *PlanNode) Walk(fn func(node *PlanNode, depth int)) {
	n.walk(fn, 0)
}

func (n *PlanNode) walk(fn func(*PlanNode, int), depth int) {
	fn(n, depth)
	for _, c := range n.Children {
		c.walk(fn, depth+1)
	}
}

// Find returns the first node whose plan is a T.
func Find[T memo.Plan](n *PlanNode) (T, bool) {
	var found T
	ok := false
	n.Walk(func(node *PlanNode, _ int) {
		if ok {
			return
		}
		found, ok = node.Plan.(T)
	})
	return found, ok
}

func (n *PlanNode) String() string {
	var sb strings.Builder
	n.Walk(func(node *PlanNode, depth int) {
		sb.WriteString(strings.Repeat("  ", depth))
		sb.WriteString(node.Plan.String())
		fmt.Fprintf(&sb, " [rows=%.0f cost=%.2f]\n", node.Estimate.Rows, node.Estimate.Cost)
	})
	return sb.String()
}

type bestKey struct {
	group    memo.GroupID
	required string
}

// extractor picks the cheapest plan per group and requested ordering.
type extractor struct {
	m     *memo.Memo
	stats memo.Statistics

	best       map[bestKey]*PlanNode
	inProgress map[bestKey]bool
}

func newExtractor(m *memo.Memo, stats memo.Statistics) *extractor {
	return &extractor{
		m:          m,
		stats:      stats,
		best:       make(map[bestKey]*PlanNode),
		inProgress: make(map[bestKey]bool),
	}
}

// optimize returns the cheapest plan of group providing required, or nil.
func (x *extractor) optimize(group memo.GroupID, required properties.RequestedOrdering) *PlanNode {
	key := bestKey{group: group, required: required.String() + "/" + required.Distinctness.String()}
	if n, ok := x.best[key]; ok {
		return n
	}
	if x.inProgress[key] {
		return nil
	}
	x.inProgress[key] = true
	defer delete(x.inProgress, key)

	var winner *PlanNode
	consider := func(n *PlanNode) {
		if n != nil && (winner == nil || n.Estimate.Cost < winner.Estimate.Cost) {
			winner = n
		}
	}
	for _, e := range x.m.Group(group).Plans() {
		plan := e.(memo.Plan)
		consider(x.build(group, plan, required))
		if sort, ok := plan.(*expressions.SortPlan); ok {
			consider(x.elide(sort, required))
		}
	}
	if !required.IsPreserve() {
		consider(x.enforce(group, required))
	}
	x.best[key] = winner
	return winner
}

func (x *extractor) build(group memo.GroupID, plan memo.Plan, required properties.RequestedOrdering) *PlanNode {
	reqs, ok := properties.ChildOrderings(plan, required)
	if !ok {
		return nil
	}
	qs := plan.Quantifiers()
	n := &PlanNode{Plan: plan, Group: group, Children: make([]*PlanNode, len(qs))}
	estimates := make([]memo.Estimate, len(qs))
	orderings := make([]properties.Ordering, len(qs))
	for i, q := range qs {
		c := x.optimize(q.Group, reqs[i])
		if c == nil {
			return nil
		}
		n.Children[i], estimates[i], orderings[i] = c, c.Estimate, c.Ordering
	}
	n.Ordering = properties.ProvidedOrdering(plan, orderings)
	if !properties.Satisfies(n.Ordering, required) {
		return nil
	}
	n.Estimate = plan.Estimate(estimates, x.stats)
	return n
}

// elide replaces a sort by its input when the input is already sorted.
func (x *extractor) elide(sort *expressions.SortPlan, required properties.RequestedOrdering) *PlanNode {
	wanted := properties.RequestedOrdering{Parts: sort.Parts, Distinctness: required.Distinctness}
	in := x.optimize(sort.Inner.Group, wanted)
	if in == nil || !properties.Satisfies(in.Ordering, required) {
		return nil
	}
	return in
}

// enforce sorts the cheapest unordered plan of group.
func (x *extractor) enforce(group memo.GroupID, required properties.RequestedOrdering) *PlanNode {
	in := x.optimize(group, properties.RequestedOrdering{Distinctness: required.Distinctness})
	if in == nil {
		return nil
	}
	sort := &expressions.SortPlan{Parts: required.Parts, Inner: memo.PhysicalOver(group)}
	ordering := properties.Ordering{Parts: required.Parts, Distinct: in.Ordering.Distinct}
	if !properties.Satisfies(ordering, required) {
		return nil
	}
	return &PlanNode{
		Plan:     sort,
		Group:    group,
		Children: []*PlanNode{in},
		Estimate: sort.Estimate([]memo.Estimate{in.Estimate}, x.stats),
		Ordering: ordering,
		Enforced: true,
	}
}
