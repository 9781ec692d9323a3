package expressions

import (
	"github.com/wbrown/janus-cascades/cascades"
	"github.com/wbrown/janus-cascades/cascades/match"
	"github.com/wbrown/janus-cascades/cascades/memo"
	"github.com/wbrown/janus-cascades/cascades/metadata"
	"github.com/wbrown/janus-cascades/cascades/query"
)

// BuildCandidates returns a match candidate for every index in md.
func BuildCandidates(md *metadata.Metadata) match.Catalog {
	out := make(match.Catalog, 0, len(md.Indexes()))
	for _, ix := range md.Indexes() {
		switch ix.Kind {
		case metadata.ValueIndex:
			out = append(out, ValueIndexCandidate(md, ix))
		case metadata.AggregateIndex:
			out = append(out, AggregateIndexCandidate(md, ix))
		}
	}
	return out
}

// selectShape builds Filter(placeholders on fields) over TypeFilter over
// Scan, the shape every record query starts from.
func selectShape(m *memo.Memo, md *metadata.Metadata, recordType string, fields []string) (memo.GroupID, []cascades.CorrelationIdentifier) {
	scan := m.Insert(NewScan(md.RecordTypeNames()...))
	typed := m.Insert(NewTypeFilter([]string{recordType}, memo.ForEachOver(scan)))
	q := memo.ForEachOver(typed)
	params := make([]cascades.CorrelationIdentifier, len(fields))
	preds := make([]query.Predicate, len(fields))
	for i, f := range fields {
		params[i] = cascades.UniqueID()
		preds[i] = query.NewPlaceholder(query.FieldOf(q.Alias, f), params[i])
	}
	return m.Insert(NewFilter(preds, q)), params
}

// ValueIndexCandidate is the shape of the records a value index can
// produce: the records of its type, with a placeholder per key field.
func ValueIndexCandidate(md *metadata.Metadata, ix *metadata.Index) *match.Candidate {
	m := memo.New()
	root, params := selectShape(m, md, ix.RecordType, ix.Fields)
	keys := make([]query.Value, len(ix.Fields))
	for i, f := range ix.Fields {
		keys[i] = query.CurrentField(f)
	}
	return &match.Candidate{Index: ix, Memo: m, Root: root, Parameters: params, KeyValues: keys}
}

// AggregateIndexCandidate is a GroupBy over the value index shape of the
// grouping fields.
func AggregateIndexCandidate(md *metadata.Metadata, ix *metadata.Index) *match.Candidate {
	m := memo.New()
	selected, params := selectShape(m, md, ix.RecordType, ix.Fields)
	q := memo.ForEachOver(selected)
	field := func(name string) query.Value { return query.FieldOf(q.Alias, name) }
	grouping := make([]query.Value, len(ix.Fields))
	keys := make([]query.Value, len(ix.Fields))
	for i, f := range ix.Fields {
		grouping[i] = field(f)
		keys[i] = query.CurrentColumn(i)
	}
	root := m.Insert(NewGroupBy(grouping, []*query.AggregateValue{ix.Aggregate(field)}, q))
	return &match.Candidate{Index: ix, Memo: m, Root: root, Parameters: params, KeyValues: keys}
}
