package planner

import (
	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-cascades/cascades/match"
	"github.com/wbrown/janus-cascades/cascades/matching"
	"github.com/wbrown/janus-cascades/cascades/memo"
	"github.com/wbrown/janus-cascades/cascades/properties"
)

// RuleCall is one firing of a rule on a bound expression. It is the only
// way rules change the memo.
type RuleCall struct {
	s        *search
	rule     Rule
	group    memo.GroupID
	expr     memo.Expression
	bindings matching.Bindings
}

// Bindings returns what the rule's matcher bound.
func (c *RuleCall) Bindings() matching.Bindings { return c.bindings }

// Get returns the single object bound by m.
func (c *RuleCall) Get(m matching.BindingMatcher) any { return c.bindings.Get(m) }

// GetAll returns every object bound by m.
func (c *RuleCall) GetAll(m matching.BindingMatcher) []any { return c.bindings.GetAll(m) }

// Context returns the schema context of the planning.
func (c *RuleCall) Context() *PlanContext { return c.s.p.ctx }

// Configuration returns the planner configuration.
func (c *RuleCall) Configuration() Configuration { return c.s.p.config }

// Memo returns the memo being planned.
func (c *RuleCall) Memo() *memo.Memo { return c.s.m }

// Group returns the group of the bound expression.
func (c *RuleCall) Group() memo.GroupID { return c.group }

// Expression returns the bound expression.
func (c *RuleCall) Expression() memo.Expression { return c.expr }

// Yield adds e to the current group as an equivalent alternative. It
// reports whether e was new.
func (c *RuleCall) Yield(e memo.Expression) bool {
	c.verify(e)
	return c.s.m.AddMember(c.group, e)
}

// YieldPlans yields every plan of group into the current group.
func (c *RuleCall) YieldPlans(group memo.GroupID) {
	for _, e := range c.s.m.Group(group).Plans() {
		c.Yield(e)
	}
}

// Ref returns the group holding e, memoizing e in a new group if needed.
// Use it for expressions that become children of a yielded expression.
func (c *RuleCall) Ref(e memo.Expression) memo.GroupID {
	if err := c.s.m.CheckQuantifiers(e); err != nil {
		panic(newPlanningError(c.rule.Name(), e, err))
	}
	return c.s.m.Insert(e)
}

// verify panics with a PlanningError if e cannot be a member of the current
// group.
func (c *RuleCall) verify(e memo.Expression) {
	m := c.s.m
	if err := m.CheckQuantifiers(e); err != nil {
		panic(newPlanningError(c.rule.Name(), e, err))
	}
	free, allowed := m.ExpressionCorrelatedTo(e), m.CorrelatedTo(c.group)
	if !free.SubsetOf(allowed) {
		panic(newPlanningError(c.rule.Name(), e,
			errors.AssertionFailedf("dangling correlations %v", free.Minus(allowed).Sorted())))
	}
}

// YieldPartialMatch records pm for its query group. It reports whether pm
// was new.
func (c *RuleCall) YieldPartialMatch(pm *match.PartialMatch) bool {
	return c.s.addPartialMatch(pm)
}

// PartialMatches returns the partial matches recorded for group.
func (c *RuleCall) PartialMatches(group memo.GroupID) match.PartialMatchSet {
	return c.s.matches[group]
}

// InterestingProperty returns the requirement stored for the current group
// under attr.
func InterestingProperty[T any](c *RuleCall, attr properties.Attribute[T]) (T, bool) {
	return properties.Get(c.s.m.Group(c.group), attr)
}

// RequestedOrderings returns the orderings consumers ask of group.
func (c *RuleCall) RequestedOrderings(group memo.GroupID) properties.OrderingSet {
	s, _ := properties.Get(c.s.m.Group(group), properties.OrderingAttribute)
	return s
}

// PushRequirement merges value into attr of group. When the stored value
// changes the group's rules run again. It reports whether it changed.
func PushRequirement[T any](c *RuleCall, group memo.GroupID, attr properties.Attribute[T], value T) bool {
	if !properties.Push(c.s.m.Group(group), attr, value) {
		return false
	}
	c.s.requirementChanged(group, attr.Name(), value)
	return true
}
