package planner_test

import (
	"context"
	"fmt"
	"iter"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-cascades/cascades"
	"github.com/wbrown/janus-cascades/cascades/annotations"
	"github.com/wbrown/janus-cascades/cascades/expressions"
	"github.com/wbrown/janus-cascades/cascades/matching"
	"github.com/wbrown/janus-cascades/cascades/memo"
	"github.com/wbrown/janus-cascades/cascades/metadata"
	"github.com/wbrown/janus-cascades/cascades/planner"
	"github.com/wbrown/janus-cascades/cascades/properties"
	"github.com/wbrown/janus-cascades/cascades/query"
	"github.com/wbrown/janus-cascades/cascades/rules"
)

func testMetadata(t *testing.T) *metadata.Metadata {
	t.Helper()
	md, err := metadata.NewBuilder().
		RecordType("order", "id").
		RecordType("customer", "id").
		ValueIndex("order_by_price", "order", "price").
		AggregateIndex("revenue_by_category", "order", query.Sum, "price", "category").
		Build()
	require.NoError(t, err)
	return md
}

type fixture struct {
	md      *metadata.Metadata
	m       *memo.Memo
	b       *expressions.Builder
	planner *planner.Planner
}

func newFixture(t *testing.T, configure ...func(*planner.Configuration)) *fixture {
	t.Helper()
	md := testMetadata(t)
	config := planner.DefaultConfiguration()
	for _, fn := range configure {
		fn(&config)
	}
	m := memo.New()
	return &fixture{
		md:      md,
		m:       m,
		b:       expressions.NewBuilder(m, md),
		planner: planner.NewPlanner(planner.NewPlanContext(md, nil), rules.Default(), config),
	}
}

func (f *fixture) plan(t *testing.T, rel expressions.Rel, ordering properties.RequestedOrdering) *planner.Result {
	t.Helper()
	res, err := f.planner.Plan(planner.Query{Memo: f.m, Root: rel.Group(), Ordering: ordering})
	require.NoError(t, err)
	require.NotNil(t, res.Root)
	return res
}

func priceBetween(low, high int) func(query.Value) []query.Predicate {
	return func(row query.Value) []query.Predicate {
		return []query.Predicate{
			query.Where(query.Field(row, "price"), query.GreaterThan, low),
			query.Where(query.Field(row, "price"), query.LessThanOrEquals, high),
		}
	}
}

func statusOpen(row query.Value) []query.Predicate {
	return []query.Predicate{query.Where(query.Field(row, "status"), query.Equals, "open")}
}

func TestPlanFullScan(t *testing.T) {
	f := newFixture(t)
	res := f.plan(t, f.b.From("order").Where(statusOpen), properties.Preserve())

	filter, ok := res.Root.Plan.(*expressions.PredicatesFilterPlan)
	require.True(t, ok, "got\n%s", res.Root)
	assert.Len(t, filter.Predicates, 1)

	scan, ok := planner.Find[*expressions.ScanPlan](res.Root)
	require.True(t, ok)
	assert.Equal(t, []string{"order"}, scan.RecordTypes)
	assert.Equal(t, []string{"id"}, scan.PrimaryKey)

	_, ok = planner.Find[*expressions.IndexScanPlan](res.Root)
	assert.False(t, ok, "a full index scan plus fetch costs more than a scan")
}

func TestPlanUsesValueIndex(t *testing.T) {
	t.Run("ExactRange", func(t *testing.T) {
		f := newFixture(t)
		res := f.plan(t, f.b.From("order").Where(priceBetween(10, 20)), properties.Preserve())

		fetch, ok := res.Root.Plan.(*expressions.FetchPlan)
		require.True(t, ok, "got\n%s", res.Root)
		assert.Equal(t, "order", fetch.RecordType)

		scan, ok := planner.Find[*expressions.IndexScanPlan](res.Root)
		require.True(t, ok)
		assert.Equal(t, "order_by_price", scan.Index.Name)
		assert.Empty(t, scan.Comparisons.Equalities)
		assert.True(t, scan.Comparisons.Inequality.IsInequality())
		assert.False(t, scan.Reverse)
	})

	t.Run("ResidualIsCompensated", func(t *testing.T) {
		f := newFixture(t)
		rel := f.b.From("order").Where(func(row query.Value) []query.Predicate {
			return append(priceBetween(10, 20)(row), statusOpen(row)...)
		})
		res := f.plan(t, rel, properties.Preserve())

		filter, ok := res.Root.Plan.(*expressions.PredicatesFilterPlan)
		require.True(t, ok, "got\n%s", res.Root)
		assert.Len(t, filter.Predicates, 1)
		_, ok = res.Root.Children[0].Plan.(*expressions.FetchPlan)
		assert.True(t, ok)
		_, ok = planner.Find[*expressions.IndexScanPlan](res.Root)
		assert.True(t, ok)
	})

	t.Run("MatchingDisabled", func(t *testing.T) {
		f := newFixture(t, func(c *planner.Configuration) { c.EnableIndexMatching = false })
		res := f.plan(t, f.b.From("order").Where(priceBetween(10, 20)), properties.Preserve())
		_, ok := planner.Find[*expressions.IndexScanPlan](res.Root)
		assert.False(t, ok)
	})

	t.Run("RuleDisabled", func(t *testing.T) {
		f := newFixture(t, func(c *planner.Configuration) { c.DisabledRules = []string{"DataAccess"} })
		res := f.plan(t, f.b.From("order").Where(priceBetween(10, 20)), properties.Preserve())
		_, ok := planner.Find[*expressions.IndexScanPlan](res.Root)
		assert.False(t, ok)
		assert.Positive(t, res.Stats.PartialMatches, "matching still runs")
	})
}

func TestSortElision(t *testing.T) {
	byPrice := properties.Asc(query.CurrentField("price"))
	byCustomer := properties.Asc(query.CurrentField("customer_id"))

	t.Run("IndexProvidesOrder", func(t *testing.T) {
		f := newFixture(t)
		res := f.plan(t, f.b.From("order").Where(priceBetween(10, 20)).OrderBy(byPrice), properties.Preserve())

		_, ok := planner.Find[*expressions.SortPlan](res.Root)
		assert.False(t, ok, "got\n%s", res.Root)
		_, ok = res.Root.Plan.(*expressions.FetchPlan)
		assert.True(t, ok)
	})

	t.Run("DescendingScansBackwards", func(t *testing.T) {
		f := newFixture(t)
		desc := properties.OrderingPart{Value: query.CurrentField("price"), Descending: true}
		res := f.plan(t, f.b.From("order").Where(priceBetween(10, 20)), properties.OrderBy(desc))

		_, ok := planner.Find[*expressions.SortPlan](res.Root)
		assert.False(t, ok, "got\n%s", res.Root)
		scan, ok := planner.Find[*expressions.IndexScanPlan](res.Root)
		require.True(t, ok)
		assert.True(t, scan.Reverse)
	})

	t.Run("SortKept", func(t *testing.T) {
		f := newFixture(t)
		res := f.plan(t, f.b.From("order").Where(statusOpen).OrderBy(byCustomer), properties.Preserve())

		sort, ok := res.Root.Plan.(*expressions.SortPlan)
		require.True(t, ok, "got\n%s", res.Root)
		assert.Len(t, sort.Parts, 1)
		assert.False(t, res.Root.Enforced)
	})

	t.Run("SortEnforced", func(t *testing.T) {
		f := newFixture(t)
		res := f.plan(t, f.b.From("order").Where(statusOpen), properties.OrderBy(byCustomer))

		_, ok := res.Root.Plan.(*expressions.SortPlan)
		require.True(t, ok, "got\n%s", res.Root)
		assert.True(t, res.Root.Enforced)
		assert.True(t, properties.Satisfies(res.Root.Ordering, properties.OrderBy(byCustomer)))
	})

	t.Run("EqualityBoundNeedsNoSort", func(t *testing.T) {
		f := newFixture(t)
		byStatus := properties.Asc(query.CurrentField("status"))
		res := f.plan(t, f.b.From("order").Where(statusOpen).OrderBy(byStatus), properties.Preserve())

		_, ok := planner.Find[*expressions.SortPlan](res.Root)
		assert.False(t, ok, "got\n%s", res.Root)
	})
}

func TestAggregateIndex(t *testing.T) {
	groupBy := func(fn query.AggregateFunc) func(query.Value) ([]query.Value, []*query.AggregateValue) {
		return func(row query.Value) ([]query.Value, []*query.AggregateValue) {
			return []query.Value{query.Field(row, "category")},
				[]*query.AggregateValue{query.Aggregate(fn, query.Field(row, "price"))}
		}
	}
	toys := func(row query.Value) []query.Predicate {
		return []query.Predicate{query.Where(query.Field(row, "category"), query.Equals, "toys")}
	}

	t.Run("Selected", func(t *testing.T) {
		f := newFixture(t)
		res := f.plan(t, f.b.From("order").Where(toys).GroupBy(groupBy(query.Sum)), properties.Preserve())

		plan, ok := res.Root.Plan.(*expressions.AggregateIndexPlan)
		require.True(t, ok, "got\n%s", res.Root)
		assert.Equal(t, "revenue_by_category", plan.Index.Name)
		assert.Equal(t, []cascades.Value{"toys"}, plan.Comparisons.Equalities)
	})

	t.Run("WholeIndex", func(t *testing.T) {
		f := newFixture(t)
		res := f.plan(t, f.b.From("order").GroupBy(groupBy(query.Sum)), properties.Preserve())

		plan, ok := res.Root.Plan.(*expressions.AggregateIndexPlan)
		require.True(t, ok, "got\n%s", res.Root)
		assert.Empty(t, plan.Comparisons.Equalities)
	})

	t.Run("DifferentAggregate", func(t *testing.T) {
		f := newFixture(t)
		res := f.plan(t, f.b.From("order").Where(toys).GroupBy(groupBy(query.Max)), properties.Preserve())

		_, ok := res.Root.Plan.(*expressions.StreamingAggregatePlan)
		assert.True(t, ok, "got\n%s", res.Root)
	})

	t.Run("ResidualBlocksIndex", func(t *testing.T) {
		f := newFixture(t)
		rel := f.b.From("order").Where(func(row query.Value) []query.Predicate {
			return append(toys(row), statusOpen(row)...)
		}).GroupBy(groupBy(query.Sum))
		res := f.plan(t, rel, properties.Preserve())

		_, ok := planner.Find[*expressions.AggregateIndexPlan](res.Root)
		assert.False(t, ok, "got\n%s", res.Root)
	})
}

func TestMergeUnion(t *testing.T) {
	f := newFixture(t)
	low := f.b.From("order").Where(priceBetween(0, 10))
	high := f.b.From("order").Where(priceBetween(100, 200))
	byPrice := properties.OrderBy(properties.Asc(query.CurrentField("price")))

	res := f.plan(t, f.b.Union(low, high), byPrice)

	union, ok := res.Root.Plan.(*expressions.UnionPlan)
	require.True(t, ok, "got\n%s", res.Root)
	assert.True(t, union.IsMerge())
	for _, child := range res.Root.Children {
		_, ok := planner.Find[*expressions.IndexScanPlan](child)
		assert.True(t, ok)
	}
}

func TestDistinct(t *testing.T) {
	f := newFixture(t)
	res := f.plan(t, f.b.From("order").Where(priceBetween(10, 20)).Distinct(), properties.Preserve())

	_, ok := planner.Find[*expressions.UnorderedPrimaryKeyDistinctPlan](res.Root)
	assert.True(t, ok, "got\n%s", res.Root)
	_, ok = planner.Find[*expressions.IndexScanPlan](res.Root)
	assert.True(t, ok)
	assert.True(t, res.Root.Ordering.Distinct)
}

func TestJoin(t *testing.T) {
	f := newFixture(t)
	rel := f.b.From("order").Join(f.b.From("customer"), func(outer, inner query.Value) []query.Predicate {
		return []query.Predicate{&query.ValuePredicate{
			Value:      query.Field(outer, "customer_id"),
			Comparison: query.Comparison{Type: query.Equals, Operand: query.Field(inner, "id")},
		}}
	})
	res := f.plan(t, rel, properties.Preserve())

	join, ok := res.Root.Plan.(*expressions.NestedLoopJoinPlan)
	require.True(t, ok, "got\n%s", res.Root)
	assert.Len(t, join.Predicates, 1)
	assert.Len(t, res.Root.Children, 2)
}

// echo yields every expression back into its own group.
type echo struct{ root matching.BindingMatcher }

func (r *echo) Name() string                     { return "Echo" }
func (r *echo) Matcher() matching.BindingMatcher { return r.root }
func (r *echo) OnMatch(call *planner.RuleCall)   { call.Yield(call.Expression()) }

func TestNoOpRuleChangesNothing(t *testing.T) {
	build := func(f *fixture) expressions.Rel {
		return f.b.From("order").Where(priceBetween(10, 20)).OrderBy(properties.Asc(query.CurrentField("price")))
	}

	base := newFixture(t)
	want := base.plan(t, build(base), properties.Preserve())

	f := newFixture(t)
	set, err := rules.Default().With(&echo{root: matching.AnyObject()})
	require.NoError(t, err)
	p := planner.NewPlanner(planner.NewPlanContext(f.md, nil), set, planner.DefaultConfiguration())
	got, err := p.Plan(planner.Query{Memo: f.m, Root: build(f).Group(), Ordering: properties.Preserve()})
	require.NoError(t, err)

	assert.Equal(t, want.Root.String(), got.Root.String())
	assert.Equal(t, want.Stats.Expressions, got.Stats.Expressions)
}

// faulty yields whatever bad returns for every type filter it sees.
type faulty struct {
	root *matching.ExpressionMatcher[*expressions.TypeFilter]
	bad  func(tf *expressions.TypeFilter) memo.Expression
}

func (r *faulty) Name() string                     { return "Faulty" }
func (r *faulty) Matcher() matching.BindingMatcher { return r.root }
func (r *faulty) OnMatch(call *planner.RuleCall) {
	call.Yield(r.bad(matching.Get[*expressions.TypeFilter](call.Bindings(), r.root)))
}

func TestInvalidYield(t *testing.T) {
	tests := []struct {
		name string
		bad  func(tf *expressions.TypeFilter) memo.Expression
	}{
		{
			name: "UnknownGroup",
			bad: func(tf *expressions.TypeFilter) memo.Expression {
				return &expressions.TypeFilterPlan{RecordTypes: tf.RecordTypes, Inner: memo.PhysicalOver(memo.GroupID(999))}
			},
		},
		{
			name: "DanglingCorrelation",
			bad: func(tf *expressions.TypeFilter) memo.Expression {
				ghost := query.FieldOf(cascades.Named("ghost"), "id")
				return expressions.NewFilter([]query.Predicate{query.Where(ghost, query.Equals, 1)}, memo.ForEachOver(tf.Inner.Group))
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			set := planner.MustRuleSet(&faulty{root: matching.Expression[*expressions.TypeFilter](nil), bad: tt.bad})
			p := planner.NewPlanner(planner.NewPlanContext(f.md, nil), set, planner.DefaultConfiguration())

			_, err := p.Plan(planner.Query{Memo: f.m, Root: f.b.From("order").Group()})
			require.Error(t, err)
			var pe *planner.PlanningError
			require.True(t, errors.As(err, &pe), "got %v", err)
			assert.Equal(t, "Faulty", pe.Rule)
		})
	}
}

// unmatchable fails every match with an assertion.
type unmatchable struct{}

func (unmatchable) BindMatches(*memo.Memo, matching.Bindings, any) iter.Seq[matching.Bindings] {
	panic(errors.AssertionFailedf("cannot match"))
}

func (unmatchable) Explain() string { return "unmatchable" }

type unmatchableRule struct{}

func (unmatchableRule) Name() string                     { return "Unmatchable" }
func (unmatchableRule) Matcher() matching.BindingMatcher { return unmatchable{} }
func (unmatchableRule) OnMatch(*planner.RuleCall)        {}

func TestMatcherAssertion(t *testing.T) {
	f := newFixture(t)
	p := planner.NewPlanner(planner.NewPlanContext(f.md, nil), planner.MustRuleSet(unmatchableRule{}),
		planner.DefaultConfiguration())

	_, err := p.Plan(planner.Query{Memo: f.m, Root: f.b.From("order").Group()})
	require.Error(t, err)
	var pe *planner.PlanningError
	require.True(t, errors.As(err, &pe), "got %v", err)
	assert.Equal(t, "Unmatchable", pe.Rule)
	assert.True(t, errors.HasAssertionFailure(err))
}

func TestTaskBudget(t *testing.T) {
	f := newFixture(t, func(c *planner.Configuration) { c.MaxTaskCount = 5 })
	_, err := f.planner.Plan(planner.Query{Memo: f.m, Root: f.b.From("order").Where(statusOpen).Group()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, planner.ErrTaskBudgetExceeded))
}

func TestNoPlan(t *testing.T) {
	f := newFixture(t)
	p := planner.NewPlanner(f.planner.Context(), planner.MustRuleSet(), planner.DefaultConfiguration())
	_, err := p.Plan(planner.Query{Memo: f.m, Root: f.b.From("order").Group()})
	require.Error(t, err)
	assert.True(t, errors.Is(err, planner.ErrNoPlan))
}

func TestAnnotations(t *testing.T) {
	collector := annotations.NewCollector(func(annotations.Event) {})
	f := newFixture(t, func(c *planner.Configuration) { c.Annotations = collector })
	res := f.plan(t, f.b.From("order").Where(priceBetween(10, 20)), properties.Preserve())

	assert.Equal(t, 1, collector.Count(annotations.PlanningBegin))
	assert.Equal(t, 1, collector.Count(annotations.PlanSelected))
	assert.Equal(t, 1, collector.Count(annotations.PlanningComplete))
	assert.Positive(t, collector.Count(annotations.RuleFired))
	assert.Positive(t, collector.Count(annotations.PartialMatchFound))
	assert.Equal(t, res.Stats.PartialMatches, collector.Count(annotations.PartialMatchFound))
	assert.Positive(t, res.Stats.Tasks)
	assert.Positive(t, res.Stats.Groups)
}

func TestPlanCached(t *testing.T) {
	cache := planner.NewPlanCache(10, 0)
	f := newFixture(t, func(c *planner.Configuration) { c.Cache = cache })
	q := planner.Query{Key: "orders 10-20", Memo: f.m, Root: f.b.From("order").Where(priceBetween(10, 20)).Group()}

	first, err := f.planner.Plan(q)
	require.NoError(t, err)
	second, err := f.planner.Plan(q)
	require.NoError(t, err)
	assert.Same(t, first, second)

	hits, misses, _ := cache.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)

	t.Run("OtherOrderingIsPlannedAgain", func(t *testing.T) {
		want := properties.OrderBy(properties.Desc(query.CurrentField("price")))
		ordered := q
		ordered.Ordering = want
		res, err := f.planner.Plan(ordered)
		require.NoError(t, err)
		assert.NotSame(t, first, res)
		assert.True(t, properties.Satisfies(res.Root.Ordering, want), "got\n%s", res.Root)

		again, err := f.planner.Plan(ordered)
		require.NoError(t, err)
		assert.Same(t, res, again)
	})
}

func TestPlanAll(t *testing.T) {
	f := newFixture(t, func(c *planner.Configuration) { c.MaxConcurrentPlans = 2 })
	queries := make([]planner.Query, 4)
	for i := range queries {
		m := memo.New()
		b := expressions.NewBuilder(m, f.md)
		queries[i] = planner.Query{
			Key:  fmt.Sprintf("q%d", i),
			Memo: m,
			Root: b.From("order").Where(priceBetween(i, i+10)).Group(),
		}
	}

	results, err := f.planner.PlanAll(context.Background(), queries)
	require.NoError(t, err)
	require.Len(t, results, len(queries))
	for i, res := range results {
		require.NotNil(t, res, "query %d", i)
		_, ok := planner.Find[*expressions.IndexScanPlan](res.Root)
		assert.True(t, ok)
	}

	t.Run("FailuresAreReported", func(t *testing.T) {
		bad := append([]planner.Query(nil), queries...)
		bad[2].Root = memo.GroupID(999)
		results, err := f.planner.PlanAll(context.Background(), bad)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "query 2")
		assert.Nil(t, results[2])
		assert.NotNil(t, results[0])
	})
}
