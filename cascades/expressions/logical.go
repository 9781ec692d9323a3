package expressions

import (
	"fmt"
	"strings"

	"github.com/wbrown/janus-cascades/cascades"
	"github.com/wbrown/janus-cascades/cascades/memo"
	"github.com/wbrown/janus-cascades/cascades/properties"
	"github.com/wbrown/janus-cascades/cascades/query"
)

// Scan produces every record of the listed record types.
type Scan struct {
	RecordTypes []string
}

// NewScan scans recordTypes, kept in sorted order.
func NewScan(recordTypes ...string) *Scan {
	return &Scan{RecordTypes: sortedCopy(recordTypes)}
}

func (e *Scan) String() string                 { return "Scan(" + strings.Join(e.RecordTypes, ", ") + ")" }
func (e *Scan) Quantifiers() []memo.Quantifier { return nil }
func (e *Scan) Arity() int                     { return 0 }
func (e *Scan) CorrelatedToWithoutChildren() cascades.CorrelationSet {
	return cascades.CorrelationSet{}
}
func (e *Scan) HashWithoutChildren() uint64 { return hashStrings("scan", e.RecordTypes) }

func (e *Scan) EqualsWithoutChildren(other memo.Expression, _ *cascades.AliasMap) bool {
	o, ok := other.(*Scan)
	return ok && stringsEqual(e.RecordTypes, o.RecordTypes)
}

// TypeFilter keeps the records of its input whose type is listed.
type TypeFilter struct {
	RecordTypes []string
	Inner       memo.Quantifier
}

// NewTypeFilter filters inner down to recordTypes.
func NewTypeFilter(recordTypes []string, inner memo.Quantifier) *TypeFilter {
	return &TypeFilter{RecordTypes: sortedCopy(recordTypes), Inner: inner}
}

func (e *TypeFilter) String() string {
	return "TypeFilter(" + strings.Join(e.RecordTypes, ", ") + ")"
}
func (e *TypeFilter) Quantifiers() []memo.Quantifier { return one(e.Inner) }
func (e *TypeFilter) Arity() int                     { return 1 }
func (e *TypeFilter) CorrelatedToWithoutChildren() cascades.CorrelationSet {
	return cascades.CorrelationSet{}
}
func (e *TypeFilter) HashWithoutChildren() uint64 { return hashStrings("type-filter", e.RecordTypes) }

func (e *TypeFilter) EqualsWithoutChildren(other memo.Expression, _ *cascades.AliasMap) bool {
	o, ok := other.(*TypeFilter)
	return ok && stringsEqual(e.RecordTypes, o.RecordTypes)
}

// Filter keeps the rows of its input for which every predicate is true.
// Predicates read the input row through the quantifier's alias.
type Filter struct {
	Predicates []query.Predicate
	Inner      memo.Quantifier
}

// NewFilter filters inner by the conjunction of preds.
func NewFilter(preds []query.Predicate, inner memo.Quantifier) *Filter {
	return &Filter{Predicates: preds, Inner: inner}
}

func (e *Filter) String() string {
	if len(e.Predicates) == 0 {
		return "Filter(TRUE)"
	}
	return "Filter(" + query.And(e.Predicates...).String() + ")"
}
func (e *Filter) Quantifiers() []memo.Quantifier { return one(e.Inner) }
func (e *Filter) Arity() int                     { return 1 }
func (e *Filter) CorrelatedToWithoutChildren() cascades.CorrelationSet {
	return query.PredicatesCorrelations(e.Predicates)
}
func (e *Filter) HashWithoutChildren() uint64 { return query.HashPredicateSet("filter", e.Predicates) }

func (e *Filter) EqualsWithoutChildren(other memo.Expression, m *cascades.AliasMap) bool {
	o, ok := other.(*Filter)
	return ok && query.PredicateSetsEqual(e.Predicates, o.Predicates, m)
}

// Projection computes a tuple of values per input row.
type Projection struct {
	Values []query.Value
	Names  []string
	Inner  memo.Quantifier
}

// NewProjection projects values, optionally named, over inner.
func NewProjection(values []query.Value, names []string, inner memo.Quantifier) *Projection {
	return &Projection{Values: values, Names: names, Inner: inner}
}

func (e *Projection) String() string                 { return "Projection(" + query.JoinValues(e.Values) + ")" }
func (e *Projection) Quantifiers() []memo.Quantifier { return one(e.Inner) }
func (e *Projection) Arity() int                     { return 1 }
func (e *Projection) CorrelatedToWithoutChildren() cascades.CorrelationSet {
	return query.ValuesCorrelations(e.Values)
}
func (e *Projection) HashWithoutChildren() uint64 { return query.HashValues("projection", e.Values) }

func (e *Projection) EqualsWithoutChildren(other memo.Expression, m *cascades.AliasMap) bool {
	o, ok := other.(*Projection)
	return ok && stringsEqual(e.Names, o.Names) && query.ValuesEqual(e.Values, o.Values, m)
}

// Union concatenates its inputs. Duplicates are kept.
type Union struct {
	Children []memo.Quantifier
}

// NewUnion unions children.
func NewUnion(children ...memo.Quantifier) *Union {
	return &Union{Children: children}
}

func (e *Union) String() string                 { return fmt.Sprintf("Union(%d)", len(e.Children)) }
func (e *Union) Quantifiers() []memo.Quantifier { return e.Children }
func (e *Union) Arity() int                     { return -1 }
func (e *Union) CorrelatedToWithoutChildren() cascades.CorrelationSet {
	return cascades.CorrelationSet{}
}
func (e *Union) HashWithoutChildren() uint64 { return hash("union") }

func (e *Union) EqualsWithoutChildren(other memo.Expression, _ *cascades.AliasMap) bool {
	o, ok := other.(*Union)
	return ok && len(o.Children) == len(e.Children)
}

// Distinct removes duplicate rows of its input.
type Distinct struct {
	Inner memo.Quantifier
}

// NewDistinct removes duplicates from inner.
func NewDistinct(inner memo.Quantifier) *Distinct { return &Distinct{Inner: inner} }

func (e *Distinct) String() string                 { return "Distinct" }
func (e *Distinct) Quantifiers() []memo.Quantifier { return one(e.Inner) }
func (e *Distinct) Arity() int                     { return 1 }
func (e *Distinct) CorrelatedToWithoutChildren() cascades.CorrelationSet {
	return cascades.CorrelationSet{}
}
func (e *Distinct) HashWithoutChildren() uint64 { return hash("distinct") }

func (e *Distinct) EqualsWithoutChildren(other memo.Expression, _ *cascades.AliasMap) bool {
	_, ok := other.(*Distinct)
	return ok
}

// Sort orders its input. Parts are expressed over the current row.
type Sort struct {
	Parts []properties.OrderingPart
	Inner memo.Quantifier
}

// NewSort orders inner by parts.
func NewSort(parts []properties.OrderingPart, inner memo.Quantifier) *Sort {
	return &Sort{Parts: parts, Inner: inner}
}

// RequestedOrdering returns the ordering the sort asks of its input.
func (e *Sort) RequestedOrdering() properties.RequestedOrdering {
	return properties.OrderBy(e.Parts...)
}

func (e *Sort) String() string                 { return "Sort(" + partsString(e.Parts) + ")" }
func (e *Sort) Quantifiers() []memo.Quantifier { return one(e.Inner) }
func (e *Sort) Arity() int                     { return 1 }
func (e *Sort) CorrelatedToWithoutChildren() cascades.CorrelationSet {
	return withoutCurrent(query.ValuesCorrelations(partsValues(e.Parts)))
}
func (e *Sort) HashWithoutChildren() uint64 { return hashParts("sort", e.Parts) }

func (e *Sort) EqualsWithoutChildren(other memo.Expression, m *cascades.AliasMap) bool {
	o, ok := other.(*Sort)
	return ok && partsEqual(e.Parts, o.Parts, m)
}

// GroupBy groups the rows of its input by the grouping values and computes
// the aggregates per group. Its rows are tuples holding the grouping values
// followed by the aggregates. Without grouping values the whole input is
// one group.
type GroupBy struct {
	Grouping   []query.Value
	Aggregates []*query.AggregateValue
	Inner      memo.Quantifier

	requested *properties.RequestedOrdering
}

// NewGroupBy groups inner by grouping and computes aggregates.
func NewGroupBy(grouping []query.Value, aggregates []*query.AggregateValue, inner memo.Quantifier) *GroupBy {
	return &GroupBy{Grouping: grouping, Aggregates: aggregates, Inner: inner}
}

// RequestedOrdering is the order the input must arrive in for the groups to
// be computed in one pass: nothing when there is no grouping or every
// grouping value is constant, otherwise the grouping values.
func (e *GroupBy) RequestedOrdering() properties.RequestedOrdering {
	if e.requested != nil {
		return *e.requested
	}
	r := properties.Preserve()
	var parts []properties.OrderingPart
	for _, v := range ToCurrent(e.Grouping, e.Inner.Alias) {
		if !IsConstant(v) {
			parts = append(parts, properties.Asc(v))
		}
	}
	if len(parts) > 0 {
		r = properties.OrderBy(parts...)
	}
	e.requested = &r
	return r
}

func (e *GroupBy) String() string {
	grouping := "NULL"
	if len(e.Grouping) > 0 {
		grouping = query.JoinValues(e.Grouping)
	}
	return "GroupBy(" + grouping + "; " + aggregatesString(e.Aggregates) + ")"
}
func (e *GroupBy) Quantifiers() []memo.Quantifier { return one(e.Inner) }
func (e *GroupBy) Arity() int                     { return 1 }
func (e *GroupBy) CorrelatedToWithoutChildren() cascades.CorrelationSet {
	return query.ValuesCorrelations(e.Grouping).Union(aggregatesCorrelations(e.Aggregates))
}
func (e *GroupBy) HashWithoutChildren() uint64 {
	return hash("group-by", query.HashValues("grouping", e.Grouping), aggregatesHash(e.Aggregates))
}

func (e *GroupBy) EqualsWithoutChildren(other memo.Expression, m *cascades.AliasMap) bool {
	o, ok := other.(*GroupBy)
	return ok &&
		query.ValuesEqual(e.Grouping, o.Grouping, m) &&
		query.AggregatesEqual(e.Aggregates, o.Aggregates, m)
}

// Join pairs every outer row with the inner rows that satisfy the
// predicates. The inner input may be correlated to the outer alias. Its rows
// are tuples of (outer row, inner row).
type Join struct {
	Predicates []query.Predicate
	Outer      memo.Quantifier
	Inner      memo.Quantifier
}

// NewJoin joins outer and inner on preds.
func NewJoin(preds []query.Predicate, outer, inner memo.Quantifier) *Join {
	return &Join{Predicates: preds, Outer: outer, Inner: inner}
}

func (e *Join) String() string {
	if len(e.Predicates) == 0 {
		return "Join(TRUE)"
	}
	return "Join(" + query.And(e.Predicates...).String() + ")"
}
func (e *Join) Quantifiers() []memo.Quantifier { return []memo.Quantifier{e.Outer, e.Inner} }
func (e *Join) Arity() int                     { return 2 }
func (e *Join) CorrelatedToWithoutChildren() cascades.CorrelationSet {
	return query.PredicatesCorrelations(e.Predicates)
}
func (e *Join) HashWithoutChildren() uint64 { return query.HashPredicateSet("join", e.Predicates) }

func (e *Join) EqualsWithoutChildren(other memo.Expression, m *cascades.AliasMap) bool {
	o, ok := other.(*Join)
	return ok && query.PredicateSetsEqual(e.Predicates, o.Predicates, m)
}
