package expressions

import (
	"github.com/wbrown/janus-cascades/cascades"
	"github.com/wbrown/janus-cascades/cascades/match"
	"github.com/wbrown/janus-cascades/cascades/memo"
	"github.com/wbrown/janus-cascades/cascades/query"
)

type ranges = map[cascades.CorrelationIdentifier]query.ComparisonRange

type children = map[cascades.CorrelationIdentifier]*match.PartialMatch

var (
	_ match.Subsumable = (*Scan)(nil)
	_ match.Subsumable = (*TypeFilter)(nil)
	_ match.Subsumable = (*Filter)(nil)
	_ match.Subsumable = (*GroupBy)(nil)
)

func (e *Scan) SubsumedBy(candidate memo.Expression, _ *cascades.AliasMap, _ children) []*match.MatchInfo {
	o, ok := candidate.(*Scan)
	if !ok || !stringsEqual(e.RecordTypes, o.RecordTypes) {
		return nil
	}
	return []*match.MatchInfo{match.NewMatchInfo(nil)}
}

func (e *Scan) Compensate(*match.PartialMatch, ranges) match.Compensation {
	return match.NoCompensation()
}

func (e *TypeFilter) SubsumedBy(candidate memo.Expression, _ *cascades.AliasMap, cs children) []*match.MatchInfo {
	o, ok := candidate.(*TypeFilter)
	if !ok || !stringsEqual(e.RecordTypes, o.RecordTypes) {
		return nil
	}
	if _, ok := cs[e.Inner.Alias]; !ok {
		return nil
	}
	return []*match.MatchInfo{match.NewMatchInfo(cs)}
}

func (e *TypeFilter) Compensate(pm *match.PartialMatch, bound ranges) match.Compensation {
	return childCompensation(pm, e.Inner, bound)
}

// SubsumedBy binds the comparisons of the query predicates to the
// candidate's placeholders on the same values. Predicates no placeholder
// absorbs become residuals. Candidates with predicates other than
// placeholders are never matched.
func (e *Filter) SubsumedBy(candidate memo.Expression, am *cascades.AliasMap, cs children) []*match.MatchInfo {
	o, ok := candidate.(*Filter)
	if !ok {
		return nil
	}
	if _, ok := cs[e.Inner.Alias]; !ok {
		return nil
	}
	placeholders := make([]*query.Placeholder, 0, len(o.Predicates))
	for _, p := range o.Predicates {
		ph, ok := p.(*query.Placeholder)
		if !ok {
			return nil
		}
		placeholders = append(placeholders, ph)
	}

	info := match.NewMatchInfo(cs)
	for _, p := range e.Predicates {
		if !absorb(info, p, placeholders, am) {
			info.Residual = append(info.Residual, p)
		}
	}
	return []*match.MatchInfo{info}
}

func absorb(info *match.MatchInfo, p query.Predicate, placeholders []*query.Placeholder, am *cascades.AliasMap) bool {
	vp, ok := p.(*query.ValuePredicate)
	if !ok {
		return false
	}
	for _, ph := range placeholders {
		if !vp.Value.SemanticEquals(ph.Value, am) {
			continue
		}
		merged, ok := info.ParameterBindings[ph.Parameter].Merge(vp.Comparison)
		if !ok {
			return false
		}
		info.ParameterBindings[ph.Parameter] = merged
		info.Absorbed[ph.Parameter] = append(info.Absorbed[ph.Parameter], p)
		return true
	}
	return false
}

// Compensate re-applies the residual predicates and the predicates absorbed
// by parameters the scan does not use.
func (e *Filter) Compensate(pm *match.PartialMatch, bound ranges) match.Compensation {
	preds := append([]query.Predicate(nil), pm.Info.Residual...)
	for _, param := range pm.Candidate.Parameters {
		if _, ok := bound[param]; ok {
			continue
		}
		preds = append(preds, pm.Info.Absorbed[param]...)
	}
	return childCompensation(pm, e.Inner, bound).Union(match.NeededCompensation(e.Inner.Alias, preds...))
}

// SubsumedBy requires the candidate to compute the same aggregates over the
// same grouping values. Grouping values are compared here even though the
// candidate's filter already pins them, so a candidate built any other way
// cannot be matched by accident.
func (e *GroupBy) SubsumedBy(candidate memo.Expression, am *cascades.AliasMap, cs children) []*match.MatchInfo {
	o, ok := candidate.(*GroupBy)
	if !ok {
		return nil
	}
	if _, ok := cs[e.Inner.Alias]; !ok {
		return nil
	}
	if !query.ValuesEqual(e.Grouping, o.Grouping, am) || !query.AggregatesEqual(e.Aggregates, o.Aggregates, am) {
		return nil
	}
	return []*match.MatchInfo{match.NewMatchInfo(cs)}
}

// Compensate rejects the match unless the input is consumed exactly:
// residual work below a grouping would have to run before the groups are
// formed, which the index has already done.
func (e *GroupBy) Compensate(pm *match.PartialMatch, bound ranges) match.Compensation {
	child, ok := pm.Info.Child(e.Inner.Alias)
	if !ok {
		return match.NoCompensation()
	}
	c := child.Compensate(bound)
	if c.IsImpossible() || c.IsNeeded() {
		return match.ImpossibleCompensation()
	}
	return match.NoCompensation()
}

func childCompensation(pm *match.PartialMatch, q memo.Quantifier, bound ranges) match.Compensation {
	child, ok := pm.Info.Child(q.Alias)
	if !ok {
		return match.NoCompensation()
	}
	return child.Compensate(bound)
}
