package expressions

import (
	"github.com/wbrown/janus-cascades/cascades/properties"
	"github.com/wbrown/janus-cascades/cascades/query"
)

// Orderings are expressed over the current row of the plan that produces
// them. Plans whose rows are their input's rows pass orderings through
// unchanged; plans that build new rows translate between the input's
// values and their own columns.

func passThrough(required properties.RequestedOrdering) ([]properties.RequestedOrdering, bool) {
	return []properties.RequestedOrdering{required}, true
}

func firstOrdering(children []properties.Ordering) properties.Ordering {
	if len(children) == 0 {
		return properties.Unordered()
	}
	return children[0]
}

func ascending(values []query.Value, descending bool) []properties.OrderingPart {
	out := make([]properties.OrderingPart, len(values))
	for i, v := range values {
		out[i] = properties.OrderingPart{Value: v, Descending: descending}
	}
	return out
}

// columnOf returns the ordinal i such that v is column i of the current row.
func columnOf(v query.Value, width int) (int, bool) {
	c, ok := v.(*query.ColumnValue)
	if !ok || c.Ordinal < 0 || c.Ordinal >= width {
		return 0, false
	}
	return c.Ordinal, c.SemanticEquals(query.CurrentColumn(c.Ordinal), nil)
}

func indexOf(values []query.Value, v query.Value) (int, bool) {
	for i, c := range values {
		if c.SemanticEquals(v, nil) {
			return i, true
		}
	}
	return 0, false
}

// toColumns rewrites the leading parts of in that are one of values as
// columns of the current row and stops at the first part that is not.
func toColumns(in []properties.OrderingPart, values []query.Value) []properties.OrderingPart {
	var out []properties.OrderingPart
	for _, p := range in {
		i, ok := indexOf(values, p.Value)
		if !ok {
			break
		}
		out = append(out, properties.OrderingPart{Value: query.CurrentColumn(i), Descending: p.Descending})
	}
	return out
}

func (p *ScanPlan) ProvidedOrdering([]properties.Ordering) properties.Ordering {
	if len(p.PrimaryKey) == 0 {
		return properties.Unordered()
	}
	keys := make([]query.Value, len(p.PrimaryKey))
	for i, f := range p.PrimaryKey {
		keys[i] = query.CurrentField(f)
	}
	return properties.Ordering{Parts: ascending(keys, false), Distinct: true}
}

func (p *TypeFilterPlan) ProvidedOrdering(children []properties.Ordering) properties.Ordering {
	return firstOrdering(children)
}

func (p *TypeFilterPlan) ChildOrderings(required properties.RequestedOrdering) ([]properties.RequestedOrdering, bool) {
	return passThrough(required)
}

// ProvidedOrdering adds the values the predicates pin to a constant to the
// input's ordering.
func (p *PredicatesFilterPlan) ProvidedOrdering(children []properties.Ordering) properties.Ordering {
	in := firstOrdering(children)
	out := properties.Ordering{Parts: in.Parts, Distinct: in.Distinct}
	out.EqualityBound = append(out.EqualityBound, in.EqualityBound...)
	for _, pred := range p.Predicates {
		vp, ok := pred.(*query.ValuePredicate)
		if !ok || !vp.Comparison.IsSimple() || vp.Comparison.Type != query.Equals {
			continue
		}
		out.EqualityBound = append(out.EqualityBound, ToCurrent([]query.Value{vp.Value}, p.Inner.Alias)...)
	}
	return out
}

func (p *PredicatesFilterPlan) ChildOrderings(required properties.RequestedOrdering) ([]properties.RequestedOrdering, bool) {
	return passThrough(required)
}

func (p *FetchPlan) ProvidedOrdering(children []properties.Ordering) properties.Ordering {
	return firstOrdering(children)
}

func (p *FetchPlan) ChildOrderings(required properties.RequestedOrdering) ([]properties.RequestedOrdering, bool) {
	return passThrough(required)
}

func (p *UnorderedPrimaryKeyDistinctPlan) ProvidedOrdering(children []properties.Ordering) properties.Ordering {
	in := firstOrdering(children)
	in.Distinct = true
	return in
}

func (p *UnorderedPrimaryKeyDistinctPlan) ChildOrderings(required properties.RequestedOrdering) ([]properties.RequestedOrdering, bool) {
	return []properties.RequestedOrdering{{Parts: required.Parts, Distinctness: properties.NotDistinct}}, true
}

func (p *MapPlan) ProvidedOrdering(children []properties.Ordering) properties.Ordering {
	in := firstOrdering(children)
	return properties.Ordering{Parts: toColumns(in.Parts, ToCurrent(p.Values, p.Inner.Alias))}
}

// ChildOrderings translates columns of the mapped row back to the values
// that compute them. Requests for anything but columns cannot be served.
func (p *MapPlan) ChildOrderings(required properties.RequestedOrdering) ([]properties.RequestedOrdering, bool) {
	values := ToCurrent(p.Values, p.Inner.Alias)
	child := properties.RequestedOrdering{Distinctness: required.Distinctness}
	for _, part := range required.Parts {
		i, ok := columnOf(part.Value, len(values))
		if !ok {
			return nil, false
		}
		child.Parts = append(child.Parts, properties.OrderingPart{Value: values[i], Descending: part.Descending})
	}
	return []properties.RequestedOrdering{child}, true
}

func (p *UnionPlan) ProvidedOrdering([]properties.Ordering) properties.Ordering {
	if !p.IsMerge() {
		return properties.Unordered()
	}
	return properties.Ordering{Parts: p.Ordering}
}

// ChildOrderings asks every input of a merge for the merge ordering.
func (p *UnionPlan) ChildOrderings(required properties.RequestedOrdering) ([]properties.RequestedOrdering, bool) {
	out := make([]properties.RequestedOrdering, len(p.Children))
	for i := range out {
		if p.IsMerge() {
			out[i] = properties.RequestedOrdering{Parts: p.Ordering, Distinctness: required.Distinctness}
		} else {
			out[i] = properties.Preserve()
		}
	}
	return out, true
}

func (p *SortPlan) ProvidedOrdering([]properties.Ordering) properties.Ordering {
	return properties.Ordering{Parts: p.Parts}
}

func (p *SortPlan) ChildOrderings(properties.RequestedOrdering) ([]properties.RequestedOrdering, bool) {
	return []properties.RequestedOrdering{properties.Preserve()}, true
}

// grouping returns the non-constant grouping values over the current row of
// the input.
func (p *StreamingAggregatePlan) grouping() []query.Value {
	var out []query.Value
	for _, v := range ToCurrent(p.Grouping, p.Inner.Alias) {
		if !IsConstant(v) {
			out = append(out, v)
		}
	}
	return out
}

func (p *StreamingAggregatePlan) ProvidedOrdering(children []properties.Ordering) properties.Ordering {
	if len(p.Grouping) == 0 {
		return properties.Ordering{Distinct: true}
	}
	in := firstOrdering(children)
	return properties.Ordering{Parts: toColumns(in.Parts, ToCurrent(p.Grouping, p.Inner.Alias)), Distinct: true}
}

// ChildOrderings asks for the grouping values, leading with the ones the
// consumer wants sorted and in the direction it wants them.
func (p *StreamingAggregatePlan) ChildOrderings(required properties.RequestedOrdering) ([]properties.RequestedOrdering, bool) {
	all := ToCurrent(p.Grouping, p.Inner.Alias)
	child := properties.RequestedOrdering{Distinctness: properties.NotDistinct}
	for _, part := range required.Parts {
		i, ok := columnOf(part.Value, len(all))
		if !ok {
			return nil, false
		}
		child.Parts = append(child.Parts, properties.OrderingPart{Value: all[i], Descending: part.Descending})
	}
	for _, v := range p.grouping() {
		seen := false
		for _, part := range child.Parts {
			if part.Value.SemanticEquals(v, nil) {
				seen = true
				break
			}
		}
		if !seen {
			child.Parts = append(child.Parts, properties.Asc(v))
		}
	}
	return []properties.RequestedOrdering{child}, true
}

// ProvidedOrdering is the key order of the index followed by the primary
// key. Fields compared by equality are constant across the scan.
func (p *IndexScanPlan) ProvidedOrdering([]properties.Ordering) properties.Ordering {
	var keys []query.Value
	for _, f := range p.Index.Fields {
		keys = append(keys, query.CurrentField(f))
	}
	for _, f := range p.PrimaryKey {
		if _, ok := indexOf(keys, query.CurrentField(f)); !ok {
			keys = append(keys, query.CurrentField(f))
		}
	}
	out := properties.Ordering{Parts: ascending(keys, p.Reverse), Distinct: true}
	for i := range p.Comparisons.Equalities {
		out.EqualityBound = append(out.EqualityBound, keys[i])
	}
	return out
}

func (p *AggregateIndexPlan) ProvidedOrdering([]properties.Ordering) properties.Ordering {
	keys := make([]query.Value, len(p.Index.Fields))
	for i := range p.Index.Fields {
		keys[i] = query.CurrentColumn(i)
	}
	out := properties.Ordering{Parts: ascending(keys, p.Reverse), Distinct: true}
	out.EqualityBound = append(out.EqualityBound, keys[:len(p.Comparisons.Equalities)]...)
	return out
}

var (
	_ properties.OrderingProvider   = (*ScanPlan)(nil)
	_ properties.OrderingPropagator = (*TypeFilterPlan)(nil)
	_ properties.OrderingPropagator = (*PredicatesFilterPlan)(nil)
	_ properties.OrderingPropagator = (*FetchPlan)(nil)
	_ properties.OrderingPropagator = (*UnorderedPrimaryKeyDistinctPlan)(nil)
	_ properties.OrderingPropagator = (*MapPlan)(nil)
	_ properties.OrderingPropagator = (*UnionPlan)(nil)
	_ properties.OrderingPropagator = (*SortPlan)(nil)
	_ properties.OrderingPropagator = (*StreamingAggregatePlan)(nil)
	_ properties.OrderingProvider   = (*IndexScanPlan)(nil)
	_ properties.OrderingProvider   = (*AggregateIndexPlan)(nil)
)
