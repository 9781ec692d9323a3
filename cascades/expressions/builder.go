package expressions

import (
	"github.com/wbrown/janus-cascades/cascades/memo"
	"github.com/wbrown/janus-cascades/cascades/metadata"
	"github.com/wbrown/janus-cascades/cascades/properties"
	"github.com/wbrown/janus-cascades/cascades/query"
)

// Builder assembles logical query graphs in a memo.
type Builder struct {
	m  *memo.Memo
	md *metadata.Metadata
}

// NewBuilder builds into m using the record types of md.
func NewBuilder(m *memo.Memo, md *metadata.Metadata) *Builder {
	return &Builder{m: m, md: md}
}

// Memo returns the memo the builder writes to.
func (b *Builder) Memo() *memo.Memo { return b.m }

// Rel is a relation under construction. Row accessors passed to the
// callbacks read the rows of the relation's input.
type Rel struct {
	b     *Builder
	group memo.GroupID

	// set while the relation is still a bare type filter, so that a
	// following Where becomes its filter
	source memo.GroupID
}

// From returns the records of recordType.
func (b *Builder) From(recordType string) Rel {
	scan := b.m.Insert(NewScan(b.md.RecordTypeNames()...))
	typed := b.m.Insert(NewTypeFilter([]string{recordType}, memo.ForEachOver(scan)))
	return Rel{b: b, source: typed}
}

// Group returns the memo group of the relation.
func (r Rel) Group() memo.GroupID {
	if r.source != 0 {
		return r.b.m.Insert(NewFilter(nil, memo.ForEachOver(r.source)))
	}
	return r.group
}

func (r Rel) derive(e memo.Expression) Rel {
	return Rel{b: r.b, group: r.b.m.Insert(e)}
}

// Where keeps the rows satisfying every predicate returned by fn.
func (r Rel) Where(fn func(row query.Value) []query.Predicate) Rel {
	var q memo.Quantifier
	if r.source != 0 {
		q = memo.ForEachOver(r.source)
	} else {
		q = memo.ForEachOver(r.group)
	}
	return r.derive(NewFilter(fn(query.Quantified(q.Alias)), q))
}

// Select projects the values returned by fn, named by names.
func (r Rel) Select(names []string, fn func(row query.Value) []query.Value) Rel {
	q := memo.ForEachOver(r.Group())
	return r.derive(NewProjection(fn(query.Quantified(q.Alias)), names, q))
}

// GroupBy groups by the values returned by fn and computes its aggregates.
func (r Rel) GroupBy(fn func(row query.Value) ([]query.Value, []*query.AggregateValue)) Rel {
	q := memo.ForEachOver(r.Group())
	grouping, aggs := fn(query.Quantified(q.Alias))
	return r.derive(NewGroupBy(grouping, aggs, q))
}

// OrderBy sorts by parts, which are expressed over the current row.
func (r Rel) OrderBy(parts ...properties.OrderingPart) Rel {
	return r.derive(NewSort(parts, memo.ForEachOver(r.Group())))
}

// Distinct removes duplicate rows.
func (r Rel) Distinct() Rel {
	return r.derive(NewDistinct(memo.ForEachOver(r.Group())))
}

// Join pairs the rows of r with the rows of inner satisfying fn.
func (r Rel) Join(inner Rel, fn func(outer, inner query.Value) []query.Predicate) Rel {
	oq, iq := memo.ForEachOver(r.Group()), memo.ForEachOver(inner.Group())
	return r.derive(NewJoin(fn(query.Quantified(oq.Alias), query.Quantified(iq.Alias)), oq, iq))
}

// Union concatenates rels.
func (b *Builder) Union(rels ...Rel) Rel {
	qs := make([]memo.Quantifier, len(rels))
	for i, r := range rels {
		qs[i] = memo.ForEachOver(r.Group())
	}
	return Rel{b: b, group: b.m.Insert(NewUnion(qs...))}
}
