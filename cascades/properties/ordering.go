package properties

import (
	"strings"

	"github.com/wbrown/janus-cascades/cascades"
	"github.com/wbrown/janus-cascades/cascades/memo"
	"github.com/wbrown/janus-cascades/cascades/query"
)

// Distinctness states what a requested ordering demands about duplicates.
type Distinctness int

const (
	// PreserveDistinctness forbids plans that introduce duplicates.
	PreserveDistinctness Distinctness = iota
	// NotDistinct places no demand on duplicates.
	NotDistinct
	// Distinct requires a duplicate-free stream.
	Distinct
)

func (d Distinctness) String() string {
	switch d {
	case NotDistinct:
		return "not-distinct"
	case Distinct:
		return "distinct"
	}
	return "preserve-distinctness"
}

// OrderingPart is one sort key of an ordering.
type OrderingPart struct {
	Value      query.Value
	Descending bool
}

// Asc returns an ascending part.
func Asc(v query.Value) OrderingPart { return OrderingPart{Value: v} }

// Desc returns a descending part.
func Desc(v query.Value) OrderingPart { return OrderingPart{Value: v, Descending: true} }

// SemanticEquals compares value and direction.
func (p OrderingPart) SemanticEquals(other OrderingPart, m *cascades.AliasMap) bool {
	return p.Descending == other.Descending && p.Value.SemanticEquals(other.Value, m)
}

func (p OrderingPart) String() string {
	if p.Descending {
		return p.Value.String() + " DESC"
	}
	return p.Value.String()
}

// RequestedOrdering is an ordering a consumer asks for. An ordering without
// parts is the "preserve" ordering: any order is acceptable.
type RequestedOrdering struct {
	Parts        []OrderingPart
	Distinctness Distinctness
}

// Preserve returns the order-agnostic requested ordering.
func Preserve() RequestedOrdering {
	return RequestedOrdering{Distinctness: PreserveDistinctness}
}

// OrderBy returns a requested ordering over parts that preserves
// distinctness.
func OrderBy(parts ...OrderingPart) RequestedOrdering {
	return RequestedOrdering{Parts: parts, Distinctness: PreserveDistinctness}
}

// IsPreserve reports whether any order is acceptable.
func (r RequestedOrdering) IsPreserve() bool { return len(r.Parts) == 0 }

// Rebase translates the parts through m.
func (r RequestedOrdering) Rebase(m *cascades.AliasMap) RequestedOrdering {
	out := RequestedOrdering{Distinctness: r.Distinctness, Parts: make([]OrderingPart, len(r.Parts))}
	for i, p := range r.Parts {
		out.Parts[i] = OrderingPart{Value: p.Value.Rebase(m), Descending: p.Descending}
	}
	return out
}

// Reverse flips the direction of every part.
func (r RequestedOrdering) Reverse() RequestedOrdering {
	out := RequestedOrdering{Distinctness: r.Distinctness, Parts: make([]OrderingPart, len(r.Parts))}
	for i, p := range r.Parts {
		out.Parts[i] = OrderingPart{Value: p.Value, Descending: !p.Descending}
	}
	return out
}

// SemanticEquals compares distinctness and parts.
func (r RequestedOrdering) SemanticEquals(other RequestedOrdering, m *cascades.AliasMap) bool {
	if r.Distinctness != other.Distinctness || len(r.Parts) != len(other.Parts) {
		return false
	}
	for i := range r.Parts {
		if !r.Parts[i].SemanticEquals(other.Parts[i], m) {
			return false
		}
	}
	return true
}

func (r RequestedOrdering) String() string {
	if r.IsPreserve() {
		return "preserve"
	}
	parts := make([]string, len(r.Parts))
	for i, p := range r.Parts {
		parts[i] = p.String()
	}
	return "[" + strings.Join(parts, ", ") + "]/" + r.Distinctness.String()
}

// Ordering is the order a plan actually produces. Values pinned by an
// equality are constant across the stream and can be ignored when matching
// requested parts.
type Ordering struct {
	Parts         []OrderingPart
	EqualityBound []query.Value
	Distinct      bool
}

// Unordered is the ordering of a stream with no usable order.
func Unordered() Ordering { return Ordering{} }

func (o Ordering) isEqualityBound(v query.Value) bool {
	for _, b := range o.EqualityBound {
		if b.SemanticEquals(v, nil) {
			return true
		}
	}
	return false
}

func (o Ordering) String() string {
	parts := make([]string, len(o.Parts))
	for i, p := range o.Parts {
		parts[i] = p.String()
	}
	s := "[" + strings.Join(parts, ", ") + "]"
	if len(o.EqualityBound) > 0 {
		s += " bound " + query.JoinValues(o.EqualityBound)
	}
	return s
}

// Satisfies reports whether a stream with the provided ordering can be
// consumed by someone requesting required.
func Satisfies(provided Ordering, required RequestedOrdering) bool {
	if required.Distinctness == Distinct && !provided.Distinct {
		return false
	}
	next := 0
	for _, want := range required.Parts {
		if provided.isEqualityBound(want.Value) {
			continue
		}
		for next < len(provided.Parts) && provided.isEqualityBound(provided.Parts[next].Value) {
			next++
		}
		if next >= len(provided.Parts) || !provided.Parts[next].SemanticEquals(want, nil) {
			return false
		}
		next++
	}
	return true
}

// OrderingSet is a set of requested orderings under semantic equality.
type OrderingSet []RequestedOrdering

// Contains reports whether r is a member.
func (s OrderingSet) Contains(r RequestedOrdering) bool {
	for _, o := range s {
		if o.SemanticEquals(r, nil) {
			return true
		}
	}
	return false
}

// ContainsAll reports whether every member of other is a member of s.
func (s OrderingSet) ContainsAll(other OrderingSet) bool {
	for _, r := range other {
		if !s.Contains(r) {
			return false
		}
	}
	return true
}

// Union returns the members of both sets.
func (s OrderingSet) Union(other OrderingSet) OrderingSet {
	out := append(OrderingSet(nil), s...)
	for _, r := range other {
		if !out.Contains(r) {
			out = append(out, r)
		}
	}
	return out
}

type orderingAttribute struct{}

// OrderingAttribute collects the orderings consumers request from a group.
var OrderingAttribute Attribute[OrderingSet] = orderingAttribute{}

func (orderingAttribute) Name() string { return "ordering" }

func (orderingAttribute) Combine(current, incoming OrderingSet) (OrderingSet, bool) {
	if current.ContainsAll(incoming) {
		return current, false
	}
	return current.Union(incoming), true
}

// OrderingProvider is implemented by plans that know the order of their
// output given the orderings of the plans below them.
type OrderingProvider interface {
	ProvidedOrdering(children []Ordering) Ordering
}

// OrderingPropagator is implemented by plans that can hand a requested
// ordering down to their inputs.
type OrderingPropagator interface {
	// ChildOrderings returns the ordering each quantifier must provide for
	// the plan to provide required. It returns false when no ordering of
	// the inputs makes that possible.
	ChildOrderings(required RequestedOrdering) ([]RequestedOrdering, bool)
}

// ProvidedOrdering returns the ordering plan e produces over inputs with the
// given orderings.
func ProvidedOrdering(e memo.Expression, children []Ordering) Ordering {
	if p, ok := e.(OrderingProvider); ok {
		return p.ProvidedOrdering(children)
	}
	return Unordered()
}

// ChildOrderings returns what the inputs of e must provide for e to provide
// required. Plans that do not propagate orderings ask for nothing.
func ChildOrderings(e memo.Expression, required RequestedOrdering) ([]RequestedOrdering, bool) {
	if p, ok := e.(OrderingPropagator); ok {
		return p.ChildOrderings(required)
	}
	out := make([]RequestedOrdering, len(e.Quantifiers()))
	for i := range out {
		out[i] = Preserve()
	}
	return out, true
}
