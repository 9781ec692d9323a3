package rules

import (
	"github.com/wbrown/janus-cascades/cascades"
	"github.com/wbrown/janus-cascades/cascades/expressions"
	"github.com/wbrown/janus-cascades/cascades/match"
	"github.com/wbrown/janus-cascades/cascades/matching"
	"github.com/wbrown/janus-cascades/cascades/memo"
	"github.com/wbrown/janus-cascades/cascades/planner"
	"github.com/wbrown/janus-cascades/cascades/query"
)

// MatchLeaf starts partial matches: it pairs every leaf of the query with
// the leaves of every candidate that subsume it.
type MatchLeaf struct {
	root *matching.TypedMatcher[match.Subsumable]
}

func NewMatchLeaf() *MatchLeaf {
	return &MatchLeaf{
		root: matching.TypedWhere[match.Subsumable](func(e match.Subsumable) bool {
			return len(e.Quantifiers()) == 0 && !memo.IsPlan(e)
		}),
	}
}

func (r *MatchLeaf) Name() string                     { return "MatchLeaf" }
func (r *MatchLeaf) Matcher() matching.BindingMatcher { return r.root }

func (r *MatchLeaf) OnMatch(call *planner.RuleCall) {
	if !call.Configuration().EnableIndexMatching {
		return
	}
	e := matching.Get[match.Subsumable](call.Bindings(), r.root)
	for _, cand := range call.Context().Candidates {
		for _, leaf := range cand.Leaves() {
			for _, ce := range cand.Memo.Group(leaf).Members() {
				for _, info := range e.SubsumedBy(ce, nil, nil) {
					yieldMatch(call, &match.PartialMatch{
						Candidate:           cand,
						QueryGroup:          call.Group(),
						QueryExpression:     e,
						CandidateGroup:      leaf,
						CandidateExpression: ce,
						Info:                info,
					})
				}
			}
		}
	}
}

// MatchIntermediate extends the partial matches of a unary expression's
// input one level up the candidate.
type MatchIntermediate struct {
	root *matching.TypedMatcher[match.Subsumable]
}

func NewMatchIntermediate() *MatchIntermediate {
	return &MatchIntermediate{
		root: matching.TypedWhere[match.Subsumable](func(e match.Subsumable) bool {
			return len(e.Quantifiers()) == 1 && !memo.IsPlan(e)
		}),
	}
}

func (r *MatchIntermediate) Name() string                     { return "MatchIntermediate" }
func (r *MatchIntermediate) Matcher() matching.BindingMatcher { return r.root }

func (r *MatchIntermediate) OnMatch(call *planner.RuleCall) {
	if !call.Configuration().EnableIndexMatching {
		return
	}
	e := matching.Get[match.Subsumable](call.Bindings(), r.root)
	q := only(e)
	for _, child := range call.PartialMatches(q.Group) {
		cand := child.Candidate
		for _, parent := range cand.Memo.Parents(child.CandidateGroup) {
			cqs := parent.Expression.Quantifiers()
			if len(cqs) != 1 {
				continue
			}
			am, ok := child.AliasMap.Combine(cascades.AliasMapOf(q.Alias, cqs[0].Alias))
			if !ok {
				continue
			}
			infos := e.SubsumedBy(parent.Expression, am, map[cascades.CorrelationIdentifier]*match.PartialMatch{q.Alias: child})
			for _, info := range infos {
				yieldMatch(call, &match.PartialMatch{
					Candidate:           cand,
					QueryGroup:          call.Group(),
					QueryExpression:     e,
					CandidateGroup:      parent.Group,
					CandidateExpression: parent.Expression,
					AliasMap:            am,
					Info:                info,
				})
			}
		}
	}
}

// yieldMatch records pm. When the candidate group above pm only declares
// placeholders, the query can use the candidate without constraining any
// of them, so pm is also recorded as matching that group.
func yieldMatch(call *planner.RuleCall, pm *match.PartialMatch) {
	call.YieldPartialMatch(pm)
	for _, parent := range pm.Candidate.Memo.Parents(pm.CandidateGroup) {
		f, ok := parent.Expression.(*expressions.Filter)
		if !ok || !onlyPlaceholders(f.Predicates) {
			continue
		}
		if _, isFilter := pm.QueryExpression.(*expressions.Filter); isFilter {
			continue
		}
		lifted := *pm
		lifted.CandidateGroup = parent.Group
		lifted.CandidateExpression = f
		call.YieldPartialMatch(&lifted)
	}
}

func onlyPlaceholders(preds []query.Predicate) bool {
	for _, p := range preds {
		if _, ok := p.(*query.Placeholder); !ok {
			return false
		}
	}
	return true
}
