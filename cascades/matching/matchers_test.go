package matching

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-cascades/cascades"
	"github.com/wbrown/janus-cascades/cascades/memo"
)

type leaf struct {
	name string
}

func (l *leaf) String() string                                       { return "leaf(" + l.name + ")" }
func (l *leaf) Quantifiers() []memo.Quantifier                       { return nil }
func (l *leaf) Arity() int                                           { return 0 }
func (l *leaf) CorrelatedToWithoutChildren() cascades.CorrelationSet { return nil }
func (l *leaf) HashWithoutChildren() uint64                          { return uint64(len(l.name)) }

func (l *leaf) EqualsWithoutChildren(other memo.Expression, _ *cascades.AliasMap) bool {
	o, ok := other.(*leaf)
	return ok && o.name == l.name
}

type node struct {
	children []memo.Quantifier
}

func (n *node) String() string                                       { return "node" }
func (n *node) Quantifiers() []memo.Quantifier                       { return n.children }
func (n *node) Arity() int                                           { return -1 }
func (n *node) CorrelatedToWithoutChildren() cascades.CorrelationSet { return nil }
func (n *node) HashWithoutChildren() uint64                          { return 99 }

func (n *node) EqualsWithoutChildren(other memo.Expression, _ *cascades.AliasMap) bool {
	_, ok := other.(*node)
	return ok
}

func names(ls []*leaf) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.name
	}
	return out
}

func TestTypedMatcher(t *testing.T) {
	m := memo.New()
	a := &leaf{name: "a"}

	matcher := Typed[*leaf]()
	got := Collect(matcher.BindMatches(m, EmptyBindings(), a))
	require.Len(t, got, 1)
	assert.Same(t, a, Get[*leaf](got[0], matcher))

	assert.Empty(t, Collect(matcher.BindMatches(m, EmptyBindings(), &node{})), "wrong type is no match")
	assert.Empty(t, Collect(matcher.BindMatches(m, EmptyBindings(), nil)))

	onlyB := TypedWhere(func(l *leaf) bool { return l.name == "b" })
	assert.Empty(t, Collect(onlyB.BindMatches(m, EmptyBindings(), a)))
}

func TestCollectionMatchers(t *testing.T) {
	m := memo.New()
	a, b, c := &leaf{name: "a"}, &leaf{name: "b"}, &leaf{name: "c"}
	items := []*leaf{a, b, c}
	notB := TypedWhere(func(l *leaf) bool { return l.name != "b" })

	t.Run("SomeEnumeratesMatchingSubsets", func(t *testing.T) {
		some := Some(notB)
		var subsets [][]string
		for bs := range some.BindMatches(m, EmptyBindings(), items) {
			subsets = append(subsets, names(GetAll[*leaf](bs, some)))
			assert.NotContains(t, names(GetAll[*leaf](bs, notB)), "b")
		}
		assert.ElementsMatch(t, [][]string{{"a"}, {"c"}, {"a", "c"}}, subsets)
	})

	t.Run("SomeWithoutMatchesIsEmpty", func(t *testing.T) {
		never := TypedWhere(func(l *leaf) bool { return false })
		assert.Empty(t, Collect(Some(never).BindMatches(m, EmptyBindings(), items)))
	})

	t.Run("SomeRejectsTooManyMatches", func(t *testing.T) {
		many := make([]*leaf, MaxSomeElements+1)
		for i := range many {
			many[i] = &leaf{name: fmt.Sprintf("l%d", i)}
		}
		var recovered any
		func() {
			defer func() { recovered = recover() }()
			Some(Typed[*leaf]()).BindMatches(m, EmptyBindings(), many)
		}()
		err, ok := recovered.(error)
		require.True(t, ok, "got %v", recovered)
		assert.True(t, errors.HasAssertionFailure(err))

		// only matching elements count
		mixed := append([]*leaf{{name: "b"}}, many[:MaxSomeElements-1]...)
		assert.NotPanics(t, func() { Some(notB).BindMatches(m, EmptyBindings(), mixed) })
	})

	t.Run("AllRequiresEveryElement", func(t *testing.T) {
		assert.Empty(t, Collect(All(notB).BindMatches(m, EmptyBindings(), items)))

		all := All(Typed[*leaf]())
		got := Collect(all.BindMatches(m, EmptyBindings(), items))
		require.Len(t, got, 1)
		assert.Equal(t, []string{"a", "b", "c"}, names(GetAll[*leaf](got[0], all)))

		assert.Len(t, Collect(all.BindMatches(m, EmptyBindings(), []*leaf{})), 1, "vacuous match")
	})

	t.Run("ExactlyIsPositional", func(t *testing.T) {
		isA := TypedWhere(func(l *leaf) bool { return l.name == "a" })
		anyLeaf := Typed[*leaf]()
		exact := Exactly(isA, anyLeaf, anyLeaf)
		got := Collect(exact.BindMatches(m, EmptyBindings(), items))
		require.Len(t, got, 1)
		assert.Same(t, a, Get[*leaf](got[0], isA))

		assert.Empty(t, Collect(Exactly(isA, anyLeaf).BindMatches(m, EmptyBindings(), items)), "arity")
		assert.Empty(t, Collect(Exactly(anyLeaf, isA, anyLeaf).BindMatches(m, EmptyBindings(), items)))
	})

	t.Run("NotASlice", func(t *testing.T) {
		assert.Empty(t, Collect(All(notB).BindMatches(m, EmptyBindings(), a)))
	})
}

func TestQuantifierMatchers(t *testing.T) {
	m := memo.New()
	ga := m.Insert(&leaf{name: "a"})
	m.AddMember(ga, &leaf{name: "aa"})
	gb := m.Insert(&leaf{name: "b"})
	parent := &node{children: []memo.Quantifier{memo.ForEachOver(ga), memo.PhysicalOver(gb)}}
	m.Insert(parent)

	t.Run("MembersOfChildGroup", func(t *testing.T) {
		child := Typed[*leaf]()
		matcher := Expression[*node](Some(ForEachQuantifier(RefMembers(child))))
		var got []string
		for b := range matcher.BindMatches(m, EmptyBindings(), parent) {
			assert.Same(t, parent, Get[*node](b, matcher))
			got = append(got, Get[*leaf](b, child).name)
		}
		assert.ElementsMatch(t, []string{"a", "aa"}, got, "one binding per member")
	})

	t.Run("KindFilters", func(t *testing.T) {
		ref := AnyRef()
		matcher := Expression[*node](Exactly(AnyQuantifier(nil), PhysicalQuantifier(ref)))
		got := Collect(matcher.BindMatches(m, EmptyBindings(), parent))
		require.Len(t, got, 1)
		assert.Equal(t, gb, Get[memo.GroupID](got[0], ref))

		wrongKind := Expression[*node](Exactly(PhysicalQuantifier(nil), AnyQuantifier(nil)))
		assert.Empty(t, Collect(wrongKind.BindMatches(m, EmptyBindings(), parent)))
	})

	t.Run("UnknownGroup", func(t *testing.T) {
		assert.Empty(t, Collect(AnyRef().BindMatches(m, EmptyBindings(), memo.GroupID(42))))
	})

	t.Run("MatchingDoesNotMutate", func(t *testing.T) {
		before := m.String()
		Collect(Expression[*node](All(AnyQuantifier(RefMembers(AnyObject())))).BindMatches(m, EmptyBindings(), parent))
		assert.Equal(t, before, m.String())
	})
}

func TestBindings(t *testing.T) {
	x, y := Typed[int](), Typed[string]()
	b := Of(x, 1).With(x, 2).Merge(Of(y, "s"))
	assert.Equal(t, []any{1, 2}, b.GetAll(x))
	assert.Equal(t, "s", Get[string](b, y))
	assert.Equal(t, 2, b.Size())
	assert.Panics(t, func() { b.Get(x) }, "two objects bound")
	assert.False(t, EmptyBindings().Contains(x))
}
