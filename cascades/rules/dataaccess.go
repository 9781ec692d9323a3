package rules

import (
	"github.com/wbrown/janus-cascades/cascades/expressions"
	"github.com/wbrown/janus-cascades/cascades/match"
	"github.com/wbrown/janus-cascades/cascades/matching"
	"github.com/wbrown/janus-cascades/cascades/memo"
	"github.com/wbrown/janus-cascades/cascades/metadata"
	"github.com/wbrown/janus-cascades/cascades/planner"
	"github.com/wbrown/janus-cascades/cascades/properties"
)

// DataAccess turns the complete matches of an expression into index scans.
// A value index scan fetches the records its entries point to and applies
// the compensation on top. An aggregate index is only used when it answers
// the expression exactly.
type DataAccess struct {
	root *matching.TypedMatcher[memo.Expression]
}

func NewDataAccess() *DataAccess {
	return &DataAccess{
		root: matching.TypedWhere[memo.Expression](func(e memo.Expression) bool { return !memo.IsPlan(e) }),
	}
}

func (r *DataAccess) Name() string                     { return "DataAccess" }
func (r *DataAccess) Matcher() matching.BindingMatcher { return r.root }

func (r *DataAccess) OnMatch(call *planner.RuleCall) {
	if !call.Configuration().EnableIndexMatching {
		return
	}
	for _, pm := range call.PartialMatches(call.Group()) {
		if !pm.IsComplete() || pm.QueryExpression != call.Expression() {
			continue
		}
		switch pm.Candidate.Index.Kind {
		case metadata.ValueIndex:
			r.valueIndex(call, pm)
		case metadata.AggregateIndex:
			r.aggregateIndex(call, pm)
		}
	}
}

func (r *DataAccess) valueIndex(call *planner.RuleCall, pm *match.PartialMatch) {
	bound, comparisons := pm.BoundPrefix()
	comp := pm.Compensate(bound)
	if comp.IsImpossible() {
		return
	}
	ix := pm.Candidate.Index
	rt, ok := call.Context().Metadata.RecordType(ix.RecordType)
	if !ok {
		return
	}
	for _, reverse := range directions(call) {
		scan := call.Ref(&expressions.IndexScanPlan{
			Index:       ix,
			PrimaryKey:  rt.PrimaryKey,
			Comparisons: comparisons,
			Reverse:     reverse,
		})
		fetch := &expressions.FetchPlan{RecordType: ix.RecordType, Inner: memo.PhysicalOver(scan)}
		if !comp.IsNeeded() {
			call.Yield(fetch)
			continue
		}
		call.Yield(&expressions.PredicatesFilterPlan{
			Predicates: comp.Predicates,
			Inner:      memo.PhysicalOver(call.Ref(fetch)).Named(comp.Alias),
		})
	}
}

func (r *DataAccess) aggregateIndex(call *planner.RuleCall, pm *match.PartialMatch) {
	bound, comparisons := pm.BoundPrefix()
	comp := pm.Compensate(bound)
	if comp.IsImpossible() || comp.IsNeeded() {
		return
	}
	for _, reverse := range directions(call) {
		call.Yield(&expressions.AggregateIndexPlan{
			Index:       pm.Candidate.Index,
			Comparisons: comparisons,
			Reverse:     reverse,
		})
	}
}

// directions returns the scan directions worth planning: forward, and
// reverse when some consumer wants a descending order.
func directions(call *planner.RuleCall) []bool {
	for _, req := range call.RequestedOrderings(call.Group()) {
		if hasDescending(req) {
			return []bool{false, true}
		}
	}
	return []bool{false}
}

func hasDescending(req properties.RequestedOrdering) bool {
	for _, p := range req.Parts {
		if p.Descending {
			return true
		}
	}
	return false
}
