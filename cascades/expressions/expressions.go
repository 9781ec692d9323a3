// Package expressions defines the relational operators the planner works
// with. Logical expressions describe what a query computes; the Plan types
// describe how, and carry the cost model. Every operator reaches its inputs
// through quantifiers only.
package expressions

import (
	"encoding/binary"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/wbrown/janus-cascades/cascades"
	"github.com/wbrown/janus-cascades/cascades/memo"
	"github.com/wbrown/janus-cascades/cascades/properties"
	"github.com/wbrown/janus-cascades/cascades/query"
)

func hash(tag string, parts ...uint64) uint64 {
	d := xxhash.New()
	_, _ = d.WriteString(tag)
	var b [8]byte
	for _, p := range parts {
		binary.LittleEndian.PutUint64(b[:], p)
		_, _ = d.Write(b[:])
	}
	return d.Sum64()
}

func hashStrings(tag string, ss []string) uint64 {
	return hash(tag + ":" + strings.Join(ss, ","))
}

func hashParts(tag string, parts []properties.OrderingPart) uint64 {
	hs := make([]uint64, 0, 2*len(parts))
	for _, p := range parts {
		dir := uint64(0)
		if p.Descending {
			dir = 1
		}
		hs = append(hs, p.Value.SemanticHash(), dir)
	}
	return hash(tag, hs...)
}

func sortedCopy(ss []string) []string {
	out := append([]string(nil), ss...)
	sort.Strings(out)
	return out
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func partsEqual(a, b []properties.OrderingPart, m *cascades.AliasMap) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].SemanticEquals(b[i], m) {
			return false
		}
	}
	return true
}

func partsString(parts []properties.OrderingPart) string {
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p.String()
	}
	return strings.Join(out, ", ")
}

func partsValues(parts []properties.OrderingPart) []query.Value {
	out := make([]query.Value, len(parts))
	for i, p := range parts {
		out[i] = p.Value
	}
	return out
}

// withoutCurrent drops the current-row alias, which orderings use and which
// is bound by whoever evaluates them rather than by an outer query.
func withoutCurrent(s cascades.CorrelationSet) cascades.CorrelationSet {
	return s.Minus(cascades.NewCorrelationSet(query.CurrentAlias))
}

func one(q memo.Quantifier) []memo.Quantifier { return []memo.Quantifier{q} }

// ToCurrent rebases values over the rows of alias onto the current row.
func ToCurrent(values []query.Value, alias cascades.CorrelationIdentifier) []query.Value {
	return query.RebaseValues(values, cascades.AliasMapOf(alias, query.CurrentAlias))
}

// FromCurrent rebases values over the current row onto the rows of alias.
func FromCurrent(values []query.Value, alias cascades.CorrelationIdentifier) []query.Value {
	return query.RebaseValues(values, cascades.AliasMapOf(query.CurrentAlias, alias))
}

func aggregatesString(aggs []*query.AggregateValue) string {
	out := make([]string, len(aggs))
	for i, a := range aggs {
		out[i] = a.String()
	}
	return strings.Join(out, ", ")
}

func aggregatesHash(aggs []*query.AggregateValue) uint64 {
	hs := make([]uint64, len(aggs))
	for i, a := range aggs {
		hs[i] = a.SemanticHash()
	}
	return hash("aggregates", hs...)
}

func aggregatesCorrelations(aggs []*query.AggregateValue) cascades.CorrelationSet {
	out := cascades.CorrelationSet{}
	for _, a := range aggs {
		out = out.Union(a.Correlations())
	}
	return out
}

func rebaseAggregates(aggs []*query.AggregateValue, m *cascades.AliasMap) []*query.AggregateValue {
	out := make([]*query.AggregateValue, len(aggs))
	for i, a := range aggs {
		out[i] = a.Rebase(m).(*query.AggregateValue)
	}
	return out
}

// IsConstant reports whether v reads no row at all.
func IsConstant(v query.Value) bool {
	return len(v.Correlations()) == 0
}
