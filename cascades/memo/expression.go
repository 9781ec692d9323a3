package memo

import (
	"fmt"

	"github.com/wbrown/janus-cascades/cascades"
)

// GroupID identifies a group in the memo. The zero GroupID is reserved and
// never refers to a group.
type GroupID int

func (g GroupID) String() string { return fmt.Sprintf("G%d", int(g)) }

// QuantifierKind describes how a parent ranges over a child group.
type QuantifierKind int

const (
	// ForEach iterates all rows of the child.
	ForEach QuantifierKind = iota
	// Physical ranges over the rows of the child's chosen plan.
	Physical
	// Existential only asks whether the child produces any row.
	Existential
)

func (k QuantifierKind) String() string {
	switch k {
	case ForEach:
		return "ForEach"
	case Physical:
		return "Physical"
	case Existential:
		return "Existential"
	}
	return fmt.Sprintf("QuantifierKind(%d)", int(k))
}

// Quantifier binds a parent expression to a child group. The alias names the
// child's current row in the parent's values and predicates. Quantifiers are
// values and are never shared between parents.
type Quantifier struct {
	Kind  QuantifierKind
	Alias cascades.CorrelationIdentifier
	Group GroupID
}

// ForEachOver returns a ForEach quantifier over group with a fresh alias.
func ForEachOver(group GroupID) Quantifier {
	return Quantifier{Kind: ForEach, Alias: cascades.UniqueID(), Group: group}
}

// PhysicalOver returns a Physical quantifier over group with a fresh alias.
func PhysicalOver(group GroupID) Quantifier {
	return Quantifier{Kind: Physical, Alias: cascades.UniqueID(), Group: group}
}

// Named returns a copy of q using alias.
func (q Quantifier) Named(alias cascades.CorrelationIdentifier) Quantifier {
	q.Alias = alias
	return q
}

// ToPhysical returns a Physical quantifier over the same group with the same
// alias.
func (q Quantifier) ToPhysical() Quantifier {
	q.Kind = Physical
	return q
}

func (q Quantifier) String() string {
	return fmt.Sprintf("%s(%s over %s)", q.Kind, q.Alias, q.Group)
}

// Expression is an immutable relational operator. Children are reached only
// through quantifiers, never embedded directly.
type Expression interface {
	fmt.Stringer

	// Quantifiers returns the expression's quantifiers in order.
	Quantifiers() []Quantifier

	// Arity returns the number of quantifiers the operator requires, or -1
	// for variadic operators.
	Arity() int

	// CorrelatedToWithoutChildren returns the correlations read by the
	// expression's own values and predicates.
	CorrelatedToWithoutChildren() cascades.CorrelationSet

	// EqualsWithoutChildren compares operator kind and parameters. The alias
	// map already pairs the quantifier aliases of both expressions.
	EqualsWithoutChildren(other Expression, m *cascades.AliasMap) bool

	// HashWithoutChildren agrees with EqualsWithoutChildren.
	HashWithoutChildren() uint64
}

// Estimate is the cost estimate of a plan.
type Estimate struct {
	Rows float64
	Cost float64
}

// Statistics supplies cardinalities to the cost model.
type Statistics interface {
	RecordCount(recordTypes []string) float64
	IndexSelectivity(index string, equalities int, hasRange bool) float64
}

// Plan is a physical expression that can be executed.
type Plan interface {
	Expression

	// Estimate computes the plan's cost given the estimates of the plans
	// chosen for its quantifiers.
	Estimate(children []Estimate, stats Statistics) Estimate
}

// IsPlan reports whether e is a physical expression.
func IsPlan(e Expression) bool {
	_, ok := e.(Plan)
	return ok
}

// Aliases returns the aliases of qs.
func Aliases(qs []Quantifier) cascades.CorrelationSet {
	out := make(cascades.CorrelationSet, len(qs))
	for _, q := range qs {
		out.Add(q.Alias)
	}
	return out
}
