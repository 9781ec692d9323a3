package memo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-cascades/cascades"
	"github.com/wbrown/janus-cascades/cascades/query"
)

// leaf is a test scan over a named source.
type leaf struct {
	source string
}

func (e *leaf) String() string            { return "leaf(" + e.source + ")" }
func (e *leaf) Quantifiers() []Quantifier { return nil }
func (e *leaf) Arity() int                { return 0 }
func (e *leaf) CorrelatedToWithoutChildren() cascades.CorrelationSet {
	return cascades.CorrelationSet{}
}
func (e *leaf) HashWithoutChildren() uint64 { return query.HashString("leaf:" + e.source) }

func (e *leaf) EqualsWithoutChildren(other Expression, _ *cascades.AliasMap) bool {
	o, ok := other.(*leaf)
	return ok && o.source == e.source
}

// filter is a test filter with a single quantifier.
type filter struct {
	pred  query.Predicate
	inner Quantifier
}

func newFilter(group GroupID, alias string, field string, v int) *filter {
	a := cascades.Named(alias)
	return &filter{
		pred:  query.Where(query.FieldOf(a, field), query.Equals, v),
		inner: Quantifier{Kind: ForEach, Alias: a, Group: group},
	}
}

func (e *filter) String() string            { return "filter(" + e.pred.String() + ")" }
func (e *filter) Quantifiers() []Quantifier { return []Quantifier{e.inner} }
func (e *filter) Arity() int                { return 1 }

func (e *filter) CorrelatedToWithoutChildren() cascades.CorrelationSet {
	return e.pred.Correlations()
}

func (e *filter) HashWithoutChildren() uint64 { return e.pred.SemanticHash() }

func (e *filter) EqualsWithoutChildren(other Expression, m *cascades.AliasMap) bool {
	o, ok := other.(*filter)
	return ok && e.pred.SemanticEquals(o.pred, m)
}

// join is a test nested-loop join. The inner side may read the outer alias.
type join struct {
	outer, inner Quantifier
}

func newJoin(outer, inner GroupID, outerAlias, innerAlias cascades.CorrelationIdentifier) *join {
	return &join{
		outer: Quantifier{Kind: ForEach, Alias: outerAlias, Group: outer},
		inner: Quantifier{Kind: ForEach, Alias: innerAlias, Group: inner},
	}
}

func (e *join) String() string            { return "join" }
func (e *join) Quantifiers() []Quantifier { return []Quantifier{e.outer, e.inner} }
func (e *join) Arity() int                { return 2 }
func (e *join) CorrelatedToWithoutChildren() cascades.CorrelationSet {
	return cascades.CorrelationSet{}
}
func (e *join) HashWithoutChildren() uint64 { return query.HashString("join") }

func (e *join) EqualsWithoutChildren(other Expression, _ *cascades.AliasMap) bool {
	_, ok := other.(*join)
	return ok
}

// correlatedFilter keeps rows of inner whose x equals y of outer.
func correlatedFilter(group GroupID, inner, outer cascades.CorrelationIdentifier) *filter {
	return &filter{
		pred: &query.ValuePredicate{
			Value:      query.FieldOf(inner, "x"),
			Comparison: query.Comparison{Type: query.Equals, Operand: query.FieldOf(outer, "y")},
		},
		inner: Quantifier{Kind: ForEach, Alias: inner, Group: group},
	}
}

// broken declares two quantifiers but has one.
type broken struct {
	filter
}

func (e *broken) Arity() int { return 2 }

func TestMemoInsert(t *testing.T) {
	t.Run("EquivalentExpressionsShareAGroup", func(t *testing.T) {
		m := New()
		scan := m.Insert(&leaf{source: "orders"})
		assert.Equal(t, scan, m.Insert(&leaf{source: "orders"}))

		// same filter, different correlation names
		g1 := m.Insert(newFilter(scan, "a", "price", 3))
		g2 := m.Insert(newFilter(scan, "b", "price", 3))
		assert.Equal(t, g1, g2)
		assert.Equal(t, 2, m.NumGroups())
		assert.Len(t, m.Group(g1).Members(), 1)

		g3 := m.Insert(newFilter(scan, "c", "price", 4))
		assert.NotEqual(t, g1, g3)
	})

	t.Run("ChildGroupsMustBeEquivalent", func(t *testing.T) {
		m := New()
		orders := m.Insert(&leaf{source: "orders"})
		items := m.Insert(&leaf{source: "items"})
		assert.NotEqual(t,
			m.Insert(newFilter(orders, "a", "price", 3)),
			m.Insert(newFilter(items, "a", "price", 3)))
	})

	t.Run("CorrelatedJoinsShareAGroup", func(t *testing.T) {
		m := New()
		scan := m.Insert(&leaf{source: "orders"})

		o1, i1 := cascades.Named("o1"), cascades.Named("i1")
		g1 := m.Insert(newJoin(scan, m.Insert(correlatedFilter(scan, i1, o1)), o1, i1))

		o2, i2 := cascades.Named("o2"), cascades.Named("i2")
		f2 := m.Insert(correlatedFilter(scan, i2, o2))
		g2 := m.Insert(newJoin(scan, f2, o2, i2))

		assert.Equal(t, g1, g2)
		require.Len(t, m.Group(g1).Members(), 1)

		// the filters differ until the outer aliases are paired
		f1 := m.Group(g1).Members()[0].Quantifiers()[1].Group
		assert.NotEqual(t, f1, f2)
		assert.False(t, m.GroupsEquivalent(f1, f2, nil))
		outer := cascades.NewAliasMap()
		require.True(t, outer.TryPut(o1, o2))
		assert.True(t, m.GroupsEquivalent(f1, f2, outer))
	})

	t.Run("GroupID zero is reserved", func(t *testing.T) {
		m := New()
		id := m.Insert(&leaf{source: "orders"})
		assert.Equal(t, GroupID(1), id)
		assert.False(t, m.HasGroup(0))
	})
}

func TestMemoAddMember(t *testing.T) {
	m := New()
	orders := m.Insert(&leaf{source: "orders"})
	copyOfOrders := m.Insert(&leaf{source: "orders-copy"})

	var added []GroupID
	m.SetListener(func(group GroupID, _ Expression) { added = append(added, group) })

	g := m.Insert(newFilter(orders, "a", "price", 3))
	assert.False(t, m.AddMember(g, newFilter(orders, "z", "price", 3)), "duplicate under renaming")
	assert.True(t, m.AddMember(g, newFilter(copyOfOrders, "a", "price", 3)))
	assert.Len(t, m.Group(g).Members(), 2)
	assert.Equal(t, []GroupID{g, g}, added)

	// a group whose members are equivalent to another group's members
	assert.True(t, m.AddMember(copyOfOrders, &leaf{source: "orders"}))
	assert.True(t, m.GroupsEquivalent(orders, copyOfOrders, nil))

	parents := m.Parents(orders)
	require.Len(t, parents, 1)
	assert.Equal(t, g, parents[0].Group)
}

func TestMemoInvariants(t *testing.T) {
	m := New()
	orders := m.Insert(&leaf{source: "orders"})

	t.Run("Arity", func(t *testing.T) {
		err := m.CheckQuantifiers(&broken{filter: *newFilter(orders, "a", "price", 1)})
		assert.Error(t, err)
		assert.Panics(t, func() { m.Insert(&broken{filter: *newFilter(orders, "a", "price", 1)}) })
	})

	t.Run("UnknownGroup", func(t *testing.T) {
		assert.Error(t, m.CheckQuantifiers(newFilter(GroupID(42), "a", "price", 1)))
	})

	t.Run("CorrelatedTo", func(t *testing.T) {
		inner := m.Insert(newFilter(orders, "a", "price", 1))
		assert.Empty(t, m.CorrelatedTo(inner))

		outer := cascades.Named("outer")
		correlated := &filter{
			pred:  query.Where(query.FieldOf(outer, "price"), query.Equals, 1),
			inner: Quantifier{Kind: ForEach, Alias: cascades.Named("x"), Group: orders},
		}
		g := m.Insert(correlated)
		assert.Equal(t, cascades.NewCorrelationSet(outer), m.CorrelatedTo(g))
	})
}
