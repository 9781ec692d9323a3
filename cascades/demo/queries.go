package demo

import (
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-cascades/cascades/expressions"
	"github.com/wbrown/janus-cascades/cascades/memo"
	"github.com/wbrown/janus-cascades/cascades/metadata"
	"github.com/wbrown/janus-cascades/cascades/planner"
	"github.com/wbrown/janus-cascades/cascades/properties"
	"github.com/wbrown/janus-cascades/cascades/query"
)

// Query is a named query over the demo schema.
type Query struct {
	Name        string
	Description string
	// Columns names the columns of tuple results.
	Columns []string
	Build   func(b *expressions.Builder) expressions.Rel
}

// Graph builds the query into a fresh memo.
func (q Query) Graph(md *metadata.Metadata) planner.Query {
	m := memo.New()
	rel := q.Build(expressions.NewBuilder(m, md))
	return planner.Query{Key: q.Name, Memo: m, Root: rel.Group(), Ordering: properties.Preserve()}
}

func eq(row query.Value, name string, v any) query.Predicate {
	return query.Where(query.Field(row, name), query.Equals, v)
}

var catalog = []Query{
	{
		Name:        "symbol-history",
		Description: "bars of one symbol from day 20 on, by day",
		Build: func(b *expressions.Builder) expressions.Rel {
			return b.From(BarType).Where(func(row query.Value) []query.Predicate {
				return []query.Predicate{
					eq(row, "symbol", Ticker(1)),
					query.Where(query.Field(row, "day"), query.GreaterThanOrEquals, int64(20)),
				}
			}).OrderBy(properties.Asc(query.CurrentField("day")))
		},
	},
	{
		Name:        "top-closes",
		Description: "bars closing above 180, highest first",
		Build: func(b *expressions.Builder) expressions.Rel {
			return b.From(BarType).Where(func(row query.Value) []query.Predicate {
				return []query.Predicate{query.Where(query.Field(row, "close"), query.GreaterThan, 180.0)}
			}).OrderBy(properties.Desc(query.CurrentField("close")))
		},
	},
	{
		Name:        "volume-by-symbol",
		Description: "total volume per symbol",
		Columns:     []string{"symbol", "volume"},
		Build: func(b *expressions.Builder) expressions.Rel {
			return b.From(BarType).GroupBy(func(row query.Value) ([]query.Value, []*query.AggregateValue) {
				return []query.Value{query.Field(row, "symbol")},
					[]*query.AggregateValue{query.Aggregate(query.Sum, query.Field(row, "volume"))}
			})
		},
	},
	{
		Name:        "bars-per-symbol",
		Description: "number of bars per symbol",
		Columns:     []string{"symbol", "bars"},
		Build: func(b *expressions.Builder) expressions.Rel {
			return b.From(BarType).GroupBy(func(row query.Value) ([]query.Value, []*query.AggregateValue) {
				return []query.Value{query.Field(row, "symbol")}, []*query.AggregateValue{query.CountRows()}
			})
		},
	},
	{
		Name:        "high-by-day",
		Description: "highest price per day across symbols",
		Columns:     []string{"day", "high"},
		Build: func(b *expressions.Builder) expressions.Rel {
			return b.From(BarType).GroupBy(func(row query.Value) ([]query.Value, []*query.AggregateValue) {
				return []query.Value{query.Field(row, "day")},
					[]*query.AggregateValue{query.Aggregate(query.Max, query.Field(row, "high"))}
			})
		},
	},
	{
		Name:        "sector-symbols",
		Description: "symbols of the tech sector",
		Build: func(b *expressions.Builder) expressions.Rel {
			return b.From(SymbolType).Where(func(row query.Value) []query.Predicate {
				return []query.Predicate{eq(row, "sector", "tech")}
			})
		},
	},
	{
		Name:        "symbol-names",
		Description: "ticker and name of every symbol",
		Columns:     []string{"ticker", "name"},
		Build: func(b *expressions.Builder) expressions.Rel {
			return b.From(SymbolType).Select([]string{"ticker", "name"}, func(row query.Value) []query.Value {
				return []query.Value{query.Field(row, "ticker"), query.Field(row, "name")}
			})
		},
	},
	{
		Name:        "high-closes-with-symbol",
		Description: "bars closing above 190 joined to their symbol",
		Columns:     []string{"bar", "symbol"},
		Build: func(b *expressions.Builder) expressions.Rel {
			bars := b.From(BarType).Where(func(row query.Value) []query.Predicate {
				return []query.Predicate{query.Where(query.Field(row, "close"), query.GreaterThan, 190.0)}
			})
			return bars.Join(b.From(SymbolType), func(outer, inner query.Value) []query.Predicate {
				return []query.Predicate{&query.ValuePredicate{
					Value:      query.Field(outer, "symbol"),
					Comparison: query.Comparison{Type: query.Equals, Operand: query.Field(inner, "ticker")},
				}}
			})
		},
	},
	{
		Name:        "energy-or-health",
		Description: "symbols in the energy or health sector",
		Build: func(b *expressions.Builder) expressions.Rel {
			sector := func(name string) expressions.Rel {
				return b.From(SymbolType).Where(func(row query.Value) []query.Predicate {
					return []query.Predicate{eq(row, "sector", name)}
				})
			}
			return b.Union(sector("energy"), sector("health")).Distinct()
		},
	},
}

// Queries returns the catalog sorted by name.
func Queries() []Query {
	out := append([]Query(nil), catalog...)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// QueryNamed returns the catalog query called name.
func QueryNamed(name string) (Query, error) {
	for _, q := range catalog {
		if q.Name == name {
			return q, nil
		}
	}
	return Query{}, errors.Newf("unknown query %q", name)
}
