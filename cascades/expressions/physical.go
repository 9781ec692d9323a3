package expressions

import (
	"fmt"
	"math"
	"strings"

	"github.com/wbrown/janus-cascades/cascades"
	"github.com/wbrown/janus-cascades/cascades/memo"
	"github.com/wbrown/janus-cascades/cascades/metadata"
	"github.com/wbrown/janus-cascades/cascades/properties"
	"github.com/wbrown/janus-cascades/cascades/query"
)

// Per-row cost factors of the cost model.
const (
	costRecordRead    = 1.0
	costIndexRead     = 0.5
	costPredicate     = 0.1
	costProjection    = 0.05
	costDistinct      = 0.2
	costSortCompare   = 0.5
	costAggregate     = 0.1
	costStartup       = 1.0
	filterSelectivity = 0.3
	groupReduction    = 0.1
)

func childEstimate(children []memo.Estimate, i int) memo.Estimate {
	if i < len(children) {
		return children[i]
	}
	return memo.Estimate{}
}

// ScanPlan reads the records of the listed types in primary key order.
// PrimaryKey is set when there is a single record type.
type ScanPlan struct {
	RecordTypes []string
	PrimaryKey  []string
}

func (p *ScanPlan) String() string                 { return "ScanPlan(" + strings.Join(p.RecordTypes, ", ") + ")" }
func (p *ScanPlan) Quantifiers() []memo.Quantifier { return nil }
func (p *ScanPlan) Arity() int                     { return 0 }
func (p *ScanPlan) CorrelatedToWithoutChildren() cascades.CorrelationSet {
	return cascades.CorrelationSet{}
}
func (p *ScanPlan) HashWithoutChildren() uint64 { return hashStrings("scan-plan", p.RecordTypes) }

func (p *ScanPlan) EqualsWithoutChildren(other memo.Expression, _ *cascades.AliasMap) bool {
	o, ok := other.(*ScanPlan)
	return ok && stringsEqual(p.RecordTypes, o.RecordTypes)
}

func (p *ScanPlan) Estimate(_ []memo.Estimate, stats memo.Statistics) memo.Estimate {
	rows := stats.RecordCount(p.RecordTypes)
	return memo.Estimate{Rows: rows, Cost: costStartup + rows*costRecordRead}
}

// TypeFilterPlan keeps the records of the listed types.
type TypeFilterPlan struct {
	RecordTypes []string
	Inner       memo.Quantifier
}

func (p *TypeFilterPlan) String() string {
	return "TypeFilterPlan(" + strings.Join(p.RecordTypes, ", ") + ")"
}
func (p *TypeFilterPlan) Quantifiers() []memo.Quantifier { return one(p.Inner) }
func (p *TypeFilterPlan) Arity() int                     { return 1 }
func (p *TypeFilterPlan) CorrelatedToWithoutChildren() cascades.CorrelationSet {
	return cascades.CorrelationSet{}
}
func (p *TypeFilterPlan) HashWithoutChildren() uint64 {
	return hashStrings("type-filter-plan", p.RecordTypes)
}

func (p *TypeFilterPlan) EqualsWithoutChildren(other memo.Expression, _ *cascades.AliasMap) bool {
	o, ok := other.(*TypeFilterPlan)
	return ok && stringsEqual(p.RecordTypes, o.RecordTypes)
}

func (p *TypeFilterPlan) Estimate(children []memo.Estimate, stats memo.Statistics) memo.Estimate {
	in := childEstimate(children, 0)
	rows := math.Min(in.Rows, stats.RecordCount(p.RecordTypes))
	return memo.Estimate{Rows: rows, Cost: in.Cost + in.Rows*costPredicate}
}

// PredicatesFilterPlan keeps the rows satisfying every predicate.
type PredicatesFilterPlan struct {
	Predicates []query.Predicate
	Inner      memo.Quantifier
}

func (p *PredicatesFilterPlan) String() string {
	return "PredicatesFilterPlan(" + query.And(p.Predicates...).String() + ")"
}
func (p *PredicatesFilterPlan) Quantifiers() []memo.Quantifier { return one(p.Inner) }
func (p *PredicatesFilterPlan) Arity() int                     { return 1 }
func (p *PredicatesFilterPlan) CorrelatedToWithoutChildren() cascades.CorrelationSet {
	return query.PredicatesCorrelations(p.Predicates)
}
func (p *PredicatesFilterPlan) HashWithoutChildren() uint64 {
	return query.HashPredicateSet("filter-plan", p.Predicates)
}

func (p *PredicatesFilterPlan) EqualsWithoutChildren(other memo.Expression, m *cascades.AliasMap) bool {
	o, ok := other.(*PredicatesFilterPlan)
	return ok && query.PredicateSetsEqual(p.Predicates, o.Predicates, m)
}

func (p *PredicatesFilterPlan) Estimate(children []memo.Estimate, _ memo.Statistics) memo.Estimate {
	in := childEstimate(children, 0)
	n := float64(len(p.Predicates))
	return memo.Estimate{
		Rows: in.Rows * math.Pow(filterSelectivity, n),
		Cost: in.Cost + in.Rows*costPredicate*n,
	}
}

// MapPlan computes a tuple of values per input row.
type MapPlan struct {
	Values []query.Value
	Names  []string
	Inner  memo.Quantifier
}

func (p *MapPlan) String() string                 { return "MapPlan(" + query.JoinValues(p.Values) + ")" }
func (p *MapPlan) Quantifiers() []memo.Quantifier { return one(p.Inner) }
func (p *MapPlan) Arity() int                     { return 1 }
func (p *MapPlan) CorrelatedToWithoutChildren() cascades.CorrelationSet {
	return query.ValuesCorrelations(p.Values)
}
func (p *MapPlan) HashWithoutChildren() uint64 { return query.HashValues("map-plan", p.Values) }

func (p *MapPlan) EqualsWithoutChildren(other memo.Expression, m *cascades.AliasMap) bool {
	o, ok := other.(*MapPlan)
	return ok && stringsEqual(p.Names, o.Names) && query.ValuesEqual(p.Values, o.Values, m)
}

func (p *MapPlan) Estimate(children []memo.Estimate, _ memo.Statistics) memo.Estimate {
	in := childEstimate(children, 0)
	return memo.Estimate{Rows: in.Rows, Cost: in.Cost + in.Rows*costProjection}
}

// UnionPlan concatenates its inputs, or merges them when Ordering is set.
// A merging union requires every input to arrive in that order.
type UnionPlan struct {
	Ordering []properties.OrderingPart
	Children []memo.Quantifier
}

// IsMerge reports whether the union merges ordered inputs.
func (p *UnionPlan) IsMerge() bool { return len(p.Ordering) > 0 }

func (p *UnionPlan) String() string {
	if p.IsMerge() {
		return "MergeUnionPlan(" + partsString(p.Ordering) + ")"
	}
	return fmt.Sprintf("UnionPlan(%d)", len(p.Children))
}
func (p *UnionPlan) Quantifiers() []memo.Quantifier { return p.Children }
func (p *UnionPlan) Arity() int                     { return -1 }
func (p *UnionPlan) CorrelatedToWithoutChildren() cascades.CorrelationSet {
	return withoutCurrent(query.ValuesCorrelations(partsValues(p.Ordering)))
}
func (p *UnionPlan) HashWithoutChildren() uint64 { return hashParts("union-plan", p.Ordering) }

func (p *UnionPlan) EqualsWithoutChildren(other memo.Expression, m *cascades.AliasMap) bool {
	o, ok := other.(*UnionPlan)
	return ok && len(p.Children) == len(o.Children) && partsEqual(p.Ordering, o.Ordering, m)
}

func (p *UnionPlan) Estimate(children []memo.Estimate, _ memo.Statistics) memo.Estimate {
	var out memo.Estimate
	for _, c := range children {
		out.Rows += c.Rows
		out.Cost += c.Cost
	}
	if p.IsMerge() {
		out.Cost += out.Rows * costPredicate
	}
	return out
}

// UnorderedPrimaryKeyDistinctPlan drops rows whose primary key was already
// produced. It works on records and on index entries.
type UnorderedPrimaryKeyDistinctPlan struct {
	Inner memo.Quantifier
}

func (p *UnorderedPrimaryKeyDistinctPlan) String() string                 { return "UnorderedPrimaryKeyDistinctPlan" }
func (p *UnorderedPrimaryKeyDistinctPlan) Quantifiers() []memo.Quantifier { return one(p.Inner) }
func (p *UnorderedPrimaryKeyDistinctPlan) Arity() int                     { return 1 }
func (p *UnorderedPrimaryKeyDistinctPlan) CorrelatedToWithoutChildren() cascades.CorrelationSet {
	return cascades.CorrelationSet{}
}
func (p *UnorderedPrimaryKeyDistinctPlan) HashWithoutChildren() uint64 {
	return hash("pk-distinct-plan")
}

func (p *UnorderedPrimaryKeyDistinctPlan) EqualsWithoutChildren(other memo.Expression, _ *cascades.AliasMap) bool {
	_, ok := other.(*UnorderedPrimaryKeyDistinctPlan)
	return ok
}

func (p *UnorderedPrimaryKeyDistinctPlan) Estimate(children []memo.Estimate, _ memo.Statistics) memo.Estimate {
	in := childEstimate(children, 0)
	return memo.Estimate{Rows: in.Rows, Cost: in.Cost + in.Rows*costDistinct}
}

// SortPlan sorts its input in memory.
type SortPlan struct {
	Parts []properties.OrderingPart
	Inner memo.Quantifier
}

func (p *SortPlan) String() string                 { return "SortPlan(" + partsString(p.Parts) + ")" }
func (p *SortPlan) Quantifiers() []memo.Quantifier { return one(p.Inner) }
func (p *SortPlan) Arity() int                     { return 1 }
func (p *SortPlan) CorrelatedToWithoutChildren() cascades.CorrelationSet {
	return withoutCurrent(query.ValuesCorrelations(partsValues(p.Parts)))
}
func (p *SortPlan) HashWithoutChildren() uint64 { return hashParts("sort-plan", p.Parts) }

func (p *SortPlan) EqualsWithoutChildren(other memo.Expression, m *cascades.AliasMap) bool {
	o, ok := other.(*SortPlan)
	return ok && partsEqual(p.Parts, o.Parts, m)
}

func (p *SortPlan) Estimate(children []memo.Estimate, _ memo.Statistics) memo.Estimate {
	in := childEstimate(children, 0)
	return memo.Estimate{
		Rows: in.Rows,
		Cost: in.Cost + in.Rows*math.Log2(in.Rows+2)*costSortCompare,
	}
}

// StreamingAggregatePlan aggregates an input that arrives ordered by the
// grouping values, emitting a row at every group break.
type StreamingAggregatePlan struct {
	Grouping   []query.Value
	Aggregates []*query.AggregateValue
	Inner      memo.Quantifier
}

func (p *StreamingAggregatePlan) String() string {
	return "StreamingAggregatePlan(" + query.JoinValues(p.Grouping) + "; " + aggregatesString(p.Aggregates) + ")"
}
func (p *StreamingAggregatePlan) Quantifiers() []memo.Quantifier { return one(p.Inner) }
func (p *StreamingAggregatePlan) Arity() int                     { return 1 }
func (p *StreamingAggregatePlan) CorrelatedToWithoutChildren() cascades.CorrelationSet {
	return query.ValuesCorrelations(p.Grouping).Union(aggregatesCorrelations(p.Aggregates))
}
func (p *StreamingAggregatePlan) HashWithoutChildren() uint64 {
	return hash("streaming-aggregate", query.HashValues("grouping", p.Grouping), aggregatesHash(p.Aggregates))
}

func (p *StreamingAggregatePlan) EqualsWithoutChildren(other memo.Expression, m *cascades.AliasMap) bool {
	o, ok := other.(*StreamingAggregatePlan)
	return ok &&
		query.ValuesEqual(p.Grouping, o.Grouping, m) &&
		query.AggregatesEqual(p.Aggregates, o.Aggregates, m)
}

func (p *StreamingAggregatePlan) Estimate(children []memo.Estimate, _ memo.Statistics) memo.Estimate {
	in := childEstimate(children, 0)
	rows := 1.0
	if len(p.Grouping) > 0 {
		rows = math.Max(1, in.Rows*groupReduction)
	}
	return memo.Estimate{Rows: rows, Cost: in.Cost + in.Rows*costAggregate}
}

// NestedLoopJoinPlan re-evaluates the inner input for every outer row.
type NestedLoopJoinPlan struct {
	Predicates []query.Predicate
	Outer      memo.Quantifier
	Inner      memo.Quantifier
}

func (p *NestedLoopJoinPlan) String() string {
	if len(p.Predicates) == 0 {
		return "NestedLoopJoinPlan(TRUE)"
	}
	return "NestedLoopJoinPlan(" + query.And(p.Predicates...).String() + ")"
}
func (p *NestedLoopJoinPlan) Quantifiers() []memo.Quantifier {
	return []memo.Quantifier{p.Outer, p.Inner}
}
func (p *NestedLoopJoinPlan) Arity() int { return 2 }
func (p *NestedLoopJoinPlan) CorrelatedToWithoutChildren() cascades.CorrelationSet {
	return query.PredicatesCorrelations(p.Predicates)
}
func (p *NestedLoopJoinPlan) HashWithoutChildren() uint64 {
	return query.HashPredicateSet("nested-loop-join", p.Predicates)
}

func (p *NestedLoopJoinPlan) EqualsWithoutChildren(other memo.Expression, m *cascades.AliasMap) bool {
	o, ok := other.(*NestedLoopJoinPlan)
	return ok && query.PredicateSetsEqual(p.Predicates, o.Predicates, m)
}

func (p *NestedLoopJoinPlan) Estimate(children []memo.Estimate, _ memo.Statistics) memo.Estimate {
	outer, inner := childEstimate(children, 0), childEstimate(children, 1)
	sel := math.Pow(filterSelectivity, float64(len(p.Predicates)))
	return memo.Estimate{
		Rows: math.Max(1, outer.Rows*inner.Rows*sel),
		Cost: outer.Cost + outer.Rows*inner.Cost + outer.Rows*inner.Rows*costPredicate,
	}
}

// IndexScanPlan scans a value index over a key range and produces index
// entries.
type IndexScanPlan struct {
	Index       *metadata.Index
	PrimaryKey  []string
	Comparisons query.ScanComparisons
	Reverse     bool
}

func (p *IndexScanPlan) String() string {
	s := fmt.Sprintf("IndexScanPlan(%s %s)", p.Index.Name, p.Comparisons)
	if p.Reverse {
		s += " REVERSE"
	}
	return s
}
func (p *IndexScanPlan) Quantifiers() []memo.Quantifier { return nil }
func (p *IndexScanPlan) Arity() int                     { return 0 }
func (p *IndexScanPlan) CorrelatedToWithoutChildren() cascades.CorrelationSet {
	return cascades.CorrelationSet{}
}
func (p *IndexScanPlan) HashWithoutChildren() uint64 {
	return hash("index-scan:" + p.Index.Name + ":" + p.Comparisons.String() + fmt.Sprint(p.Reverse))
}

func (p *IndexScanPlan) EqualsWithoutChildren(other memo.Expression, _ *cascades.AliasMap) bool {
	o, ok := other.(*IndexScanPlan)
	return ok && p.Index == o.Index && p.Reverse == o.Reverse && p.Comparisons.Equal(o.Comparisons)
}

func (p *IndexScanPlan) Estimate(_ []memo.Estimate, stats memo.Statistics) memo.Estimate {
	sel := stats.IndexSelectivity(p.Index.Name, len(p.Comparisons.Equalities), !p.Comparisons.Inequality.IsEmpty())
	rows := stats.RecordCount([]string{p.Index.RecordType}) * sel
	return memo.Estimate{Rows: rows, Cost: costStartup + rows*costIndexRead}
}

// FetchPlan loads the record each index entry of its input points to.
type FetchPlan struct {
	RecordType string
	Inner      memo.Quantifier
}

func (p *FetchPlan) String() string                 { return "FetchPlan(" + p.RecordType + ")" }
func (p *FetchPlan) Quantifiers() []memo.Quantifier { return one(p.Inner) }
func (p *FetchPlan) Arity() int                     { return 1 }
func (p *FetchPlan) CorrelatedToWithoutChildren() cascades.CorrelationSet {
	return cascades.CorrelationSet{}
}
func (p *FetchPlan) HashWithoutChildren() uint64 { return hash("fetch:" + p.RecordType) }

func (p *FetchPlan) EqualsWithoutChildren(other memo.Expression, _ *cascades.AliasMap) bool {
	o, ok := other.(*FetchPlan)
	return ok && p.RecordType == o.RecordType
}

func (p *FetchPlan) Estimate(children []memo.Estimate, _ memo.Statistics) memo.Estimate {
	in := childEstimate(children, 0)
	return memo.Estimate{Rows: in.Rows, Cost: in.Cost + in.Rows*costRecordRead}
}

// AggregateIndexPlan reads precomputed aggregates from an aggregate index.
// Its rows are tuples of the grouping values followed by the aggregate.
type AggregateIndexPlan struct {
	Index       *metadata.Index
	Comparisons query.ScanComparisons
	Reverse     bool
}

func (p *AggregateIndexPlan) String() string {
	s := fmt.Sprintf("AggregateIndexPlan(%s %s)", p.Index.Name, p.Comparisons)
	if p.Reverse {
		s += " REVERSE"
	}
	return s
}
func (p *AggregateIndexPlan) Quantifiers() []memo.Quantifier { return nil }
func (p *AggregateIndexPlan) Arity() int                     { return 0 }
func (p *AggregateIndexPlan) CorrelatedToWithoutChildren() cascades.CorrelationSet {
	return cascades.CorrelationSet{}
}
func (p *AggregateIndexPlan) HashWithoutChildren() uint64 {
	return hash("aggregate-index:" + p.Index.Name + ":" + p.Comparisons.String() + fmt.Sprint(p.Reverse))
}

func (p *AggregateIndexPlan) EqualsWithoutChildren(other memo.Expression, _ *cascades.AliasMap) bool {
	o, ok := other.(*AggregateIndexPlan)
	return ok && p.Index == o.Index && p.Reverse == o.Reverse && p.Comparisons.Equal(o.Comparisons)
}

func (p *AggregateIndexPlan) Estimate(_ []memo.Estimate, stats memo.Statistics) memo.Estimate {
	sel := stats.IndexSelectivity(p.Index.Name, len(p.Comparisons.Equalities), !p.Comparisons.Inequality.IsEmpty())
	rows := math.Max(1, stats.RecordCount([]string{p.Index.RecordType})*sel*groupReduction)
	return memo.Estimate{Rows: rows, Cost: costStartup + rows*costIndexRead}
}

var (
	_ memo.Plan = (*ScanPlan)(nil)
	_ memo.Plan = (*TypeFilterPlan)(nil)
	_ memo.Plan = (*PredicatesFilterPlan)(nil)
	_ memo.Plan = (*MapPlan)(nil)
	_ memo.Plan = (*UnionPlan)(nil)
	_ memo.Plan = (*UnorderedPrimaryKeyDistinctPlan)(nil)
	_ memo.Plan = (*SortPlan)(nil)
	_ memo.Plan = (*StreamingAggregatePlan)(nil)
	_ memo.Plan = (*NestedLoopJoinPlan)(nil)
	_ memo.Plan = (*IndexScanPlan)(nil)
	_ memo.Plan = (*FetchPlan)(nil)
	_ memo.Plan = (*AggregateIndexPlan)(nil)
)
