package rules

import (
	"github.com/wbrown/janus-cascades/cascades"
	"github.com/wbrown/janus-cascades/cascades/expressions"
	"github.com/wbrown/janus-cascades/cascades/matching"
	"github.com/wbrown/janus-cascades/cascades/memo"
	"github.com/wbrown/janus-cascades/cascades/planner"
	"github.com/wbrown/janus-cascades/cascades/query"
)

// MergeFilter combines a filter over a filter into one filter, so that all
// predicates are seen together when matching index candidates.
type MergeFilter struct {
	lower *matching.ExpressionMatcher[*expressions.Filter]
	root  *matching.ExpressionMatcher[*expressions.Filter]
}

func NewMergeFilter() *MergeFilter {
	lower := unary[*expressions.Filter]()
	return &MergeFilter{
		lower: lower,
		root: matching.Expression[*expressions.Filter](
			matching.Exactly(matching.ForEachQuantifier(matching.RefMembers(lower)))),
	}
}

func (r *MergeFilter) Name() string                     { return "MergeFilter" }
func (r *MergeFilter) Matcher() matching.BindingMatcher { return r.root }

func (r *MergeFilter) OnMatch(call *planner.RuleCall) {
	upper := matching.Get[*expressions.Filter](call.Bindings(), r.root)
	lower := matching.Get[*expressions.Filter](call.Bindings(), r.lower)
	q := memo.ForEachOver(lower.Inner.Group)
	preds := append(
		query.RebasePredicates(lower.Predicates, cascades.AliasMapOf(lower.Inner.Alias, q.Alias)),
		query.RebasePredicates(upper.Predicates, cascades.AliasMapOf(upper.Inner.Alias, q.Alias))...)
	call.Yield(expressions.NewFilter(preds, q))
}

// PushDistinctThroughFetch removes duplicates on the index entries before
// the records are loaded, which saves loading duplicates.
type PushDistinctThroughFetch struct {
	fetch *matching.ExpressionMatcher[*expressions.FetchPlan]
	root  *matching.ExpressionMatcher[*expressions.UnorderedPrimaryKeyDistinctPlan]
}

func NewPushDistinctThroughFetch() *PushDistinctThroughFetch {
	fetch := matching.Expression[*expressions.FetchPlan](nil)
	return &PushDistinctThroughFetch{
		fetch: fetch,
		root: matching.Expression[*expressions.UnorderedPrimaryKeyDistinctPlan](
			matching.Exactly(matching.PhysicalQuantifier(matching.RefMembers(fetch)))),
	}
}

func (r *PushDistinctThroughFetch) Name() string                     { return "PushDistinctThroughFetch" }
func (r *PushDistinctThroughFetch) Matcher() matching.BindingMatcher { return r.root }

func (r *PushDistinctThroughFetch) OnMatch(call *planner.RuleCall) {
	fetch := matching.Get[*expressions.FetchPlan](call.Bindings(), r.fetch)
	distinct := call.Ref(&expressions.UnorderedPrimaryKeyDistinctPlan{Inner: memo.PhysicalOver(fetch.Inner.Group)})
	call.Yield(&expressions.FetchPlan{RecordType: fetch.RecordType, Inner: memo.PhysicalOver(distinct)})
}
