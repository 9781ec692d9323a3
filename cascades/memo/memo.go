// Package memo holds the planner's search space: an arena of groups, each
// group a set of semantically equivalent expressions. Expressions refer to
// their children through quantifiers over group IDs, so a child group can be
// shared by many parents.
//
// The memo is not safe for concurrent use. Each planning invocation owns its
// own memo.
package memo

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-cascades/cascades"
)

// Group is a set of equivalent expressions.
type Group struct {
	id      GroupID
	members []Expression

	// Per-group state owned by the planner
	attributes map[string]any

	correlatedTo cascades.CorrelationSet
}

// ID returns the group's ID.
func (g *Group) ID() GroupID { return g.id }

// Members returns the group's members. The returned slice is a snapshot:
// members added later are not visible through it.
func (g *Group) Members() []Expression { return g.members[:len(g.members):len(g.members)] }

// Plans returns the physical members.
func (g *Group) Plans() []Expression {
	var out []Expression
	for _, e := range g.members {
		if IsPlan(e) {
			out = append(out, e)
		}
	}
	return out
}

// Logical returns the members that are not physical.
func (g *Group) Logical() []Expression {
	var out []Expression
	for _, e := range g.members {
		if !IsPlan(e) {
			out = append(out, e)
		}
	}
	return out
}

// Attribute returns the value stored for a named attribute.
func (g *Group) Attribute(name string) (any, bool) {
	v, ok := g.attributes[name]
	return v, ok
}

// SetAttribute stores the value of a named attribute.
func (g *Group) SetAttribute(name string, v any) {
	if g.attributes == nil {
		g.attributes = make(map[string]any)
	}
	g.attributes[name] = v
}

// ParentRef names an expression that has a quantifier over some group.
type ParentRef struct {
	Group      GroupID
	Expression Expression
}

type memberRef struct {
	group GroupID
	expr  Expression
}

// Memo is the arena of groups.
type Memo struct {
	// groups[0] is reserved
	groups []*Group

	// index buckets members by semantic hash for deduplication
	index map[uint64][]memberRef

	parents map[GroupID][]ParentRef

	listener func(group GroupID, e Expression)
}

// New creates an empty memo.
func New() *Memo {
	return &Memo{
		groups:  []*Group{nil},
		index:   make(map[uint64][]memberRef),
		parents: make(map[GroupID][]ParentRef),
	}
}

// SetListener registers fn to be called whenever a member is added to any
// group, including the first member of a new group.
func (m *Memo) SetListener(fn func(group GroupID, e Expression)) {
	m.listener = fn
}

// NumGroups returns the number of groups.
func (m *Memo) NumGroups() int { return len(m.groups) - 1 }

// Group returns the group with the given ID.
func (m *Memo) Group(id GroupID) *Group {
	if !m.HasGroup(id) {
		panic(errors.AssertionFailedf("unknown group %s", id))
	}
	return m.groups[id]
}

// HasGroup reports whether id refers to a group of this memo.
func (m *Memo) HasGroup(id GroupID) bool {
	return id > 0 && int(id) < len(m.groups)
}

// Groups returns the IDs of all groups in creation order.
func (m *Memo) Groups() []GroupID {
	out := make([]GroupID, 0, m.NumGroups())
	for i := 1; i < len(m.groups); i++ {
		out = append(out, GroupID(i))
	}
	return out
}

// Parents returns the expressions that quantify over group.
func (m *Memo) Parents(group GroupID) []ParentRef {
	refs := m.parents[group]
	return refs[:len(refs):len(refs)]
}

// Insert returns the group holding e, creating one if no semantically equal
// expression is memoized yet. There is at most one group per equivalence
// class reachable through Insert.
func (m *Memo) Insert(e Expression) GroupID {
	id, _ := m.Memoize(e)
	return id
}

// Memoize is Insert that also reports whether a new group was created.
func (m *Memo) Memoize(e Expression) (GroupID, bool) {
	if err := m.CheckQuantifiers(e); err != nil {
		panic(err)
	}
	if id, ok := m.Find(e); ok {
		return id, false
	}
	id := GroupID(len(m.groups))
	m.groups = append(m.groups, &Group{id: id})
	m.addMember(id, e)
	return id, true
}

// Find returns the group holding a member semantically equal to e.
func (m *Memo) Find(e Expression) (GroupID, bool) {
	for _, ref := range m.index[m.hash(e)] {
		if m.SemanticEquals(e, ref.expr, nil) {
			return ref.group, true
		}
	}
	return 0, false
}

// AddMember adds e as an alternative of group. It returns false if the group
// already holds a semantically equal member.
func (m *Memo) AddMember(group GroupID, e Expression) bool {
	if err := m.CheckQuantifiers(e); err != nil {
		panic(err)
	}
	g := m.Group(group)
	if m.containsEquivalent(g, e) {
		return false
	}
	m.addMember(group, e)
	return true
}

// Contains reports whether group holds a member semantically equal to e.
func (m *Memo) Contains(group GroupID, e Expression) bool {
	return m.containsEquivalent(m.Group(group), e)
}

func (m *Memo) containsEquivalent(g *Group, e Expression) bool {
	for _, ref := range m.index[m.hash(e)] {
		if ref.group == g.id && m.SemanticEquals(e, ref.expr, nil) {
			return true
		}
	}
	return false
}

func (m *Memo) addMember(group GroupID, e Expression) {
	g := m.groups[group]
	g.members = append(g.members, e)
	h := m.hash(e)
	m.index[h] = append(m.index[h], memberRef{group: group, expr: e})
	for _, q := range e.Quantifiers() {
		m.parents[q.Group] = append(m.parents[q.Group], ParentRef{Group: group, Expression: e})
	}
	if m.listener != nil {
		m.listener(group, e)
	}
}

// CheckQuantifiers verifies that e has the arity it declares, that its
// quantifier aliases are distinct and that every quantifier refers to an
// existing group.
func (m *Memo) CheckQuantifiers(e Expression) error {
	qs := e.Quantifiers()
	if arity := e.Arity(); arity >= 0 && len(qs) != arity {
		return errors.AssertionFailedf("%s has %d quantifiers, expected %d", e, len(qs), arity)
	}
	seen := make(cascades.CorrelationSet, len(qs))
	for _, q := range qs {
		if !m.HasGroup(q.Group) {
			return errors.AssertionFailedf("%s ranges over unknown group %s", e, q.Group)
		}
		if seen.Contains(q.Alias) {
			return errors.AssertionFailedf("%s reuses quantifier alias %s", e, q.Alias)
		}
		seen.Add(q.Alias)
	}
	return nil
}

// hash combines the operator hash with the quantifier kinds. Child groups
// are left out because distinct groups may still be equivalent.
func (m *Memo) hash(e Expression) uint64 {
	h := e.HashWithoutChildren()
	for _, q := range e.Quantifiers() {
		h = h*31 + uint64(q.Kind) + 1
	}
	return h
}

// CorrelatedTo returns the correlations of group that are bound outside of
// it, such as the outer row of a nested-loop join.
func (m *Memo) CorrelatedTo(group GroupID) cascades.CorrelationSet {
	g := m.Group(group)
	if g.correlatedTo == nil {
		// seed to stop recursion on malformed cyclic graphs
		g.correlatedTo = cascades.CorrelationSet{}
		g.correlatedTo = m.ExpressionCorrelatedTo(g.members[0])
	}
	return g.correlatedTo
}

// ExpressionCorrelatedTo returns the free correlations of e and its
// descendants.
func (m *Memo) ExpressionCorrelatedTo(e Expression) cascades.CorrelationSet {
	out := e.CorrelatedToWithoutChildren()
	for _, q := range e.Quantifiers() {
		out = out.Union(m.CorrelatedTo(q.Group))
	}
	return out.Minus(Aliases(e.Quantifiers()))
}

// String renders every group and its members.
func (m *Memo) String() string {
	var sb strings.Builder
	for _, id := range m.Groups() {
		sb.WriteString(id.String())
		sb.WriteString(":")
		for _, e := range m.groups[id].members {
			sb.WriteString(" [")
			sb.WriteString(e.String())
			sb.WriteString("]")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
