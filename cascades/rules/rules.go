// Package rules holds the planner's rule set: rewrites that add logical
// alternatives, pushers that carry ordering requirements down the graph,
// implementations that turn logical operators into plans, and the rules
// that match query groups against index candidates and turn complete
// matches into index access.
package rules

import (
	"github.com/wbrown/janus-cascades/cascades/matching"
	"github.com/wbrown/janus-cascades/cascades/memo"
	"github.com/wbrown/janus-cascades/cascades/planner"
)

// Default returns the standard rule set in application order.
func Default() *planner.RuleSet {
	return planner.MustRuleSet(
		// pre-order
		NewPushRequestedOrderingThroughSort(),
		NewPushRequestedOrderingThroughFilter(),
		NewPushRequestedOrderingThroughProjection(),
		NewPushRequestedOrderingThroughGroupBy(),
		NewPushInterestingOrderingThroughUnion(),
		NewPushDistinctness(),

		// rewrites
		NewMergeFilter(),

		// implementations
		NewImplementTypeFilterScan(),
		NewImplementScan(),
		NewImplementTypeFilter(),
		NewImplementFilter(),
		NewImplementProjection(),
		NewImplementUnion(),
		NewImplementDistinct(),
		NewImplementSort(),
		NewImplementGroupBy(),
		NewImplementJoin(),

		// index matching
		NewMatchLeaf(),
		NewMatchIntermediate(),
		NewDataAccess(),

		// plan rewrites
		NewPushDistinctThroughFetch(),
	)
}

// only returns the single quantifier of a unary operator.
func only(e memo.Expression) memo.Quantifier { return e.Quantifiers()[0] }

func unary[T memo.Expression]() *matching.ExpressionMatcher[T] {
	return matching.Expression[T](matching.Exactly(matching.ForEachQuantifier(matching.AnyRef())))
}
