package query

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-cascades/cascades"
)

// Predicate is a boolean condition over quantifier rows. Evaluation uses
// three-valued logic: the result is true, false or nil (unknown).
type Predicate interface {
	fmt.Stringer
	Correlations() cascades.CorrelationSet
	Eval(ctx *EvalContext) (cascades.Value, error)
	Rebase(m *cascades.AliasMap) Predicate
	SemanticEquals(other Predicate, m *cascades.AliasMap) bool
	SemanticHash() uint64

	// IsTautology reports whether the predicate is trivially true.
	IsTautology() bool
}

// ConstantPredicate always evaluates to Result.
type ConstantPredicate struct {
	Result cascades.Value
}

var (
	TruePredicate  = &ConstantPredicate{Result: true}
	FalsePredicate = &ConstantPredicate{Result: false}
	NullPredicate  = &ConstantPredicate{Result: nil}
)

// Constant returns the constant predicate for a bool or nil.
func Constant(v cascades.Value) *ConstantPredicate {
	switch v {
	case true:
		return TruePredicate
	case false:
		return FalsePredicate
	}
	return NullPredicate
}

func (p *ConstantPredicate) String() string {
	switch p.Result {
	case true:
		return "TRUE"
	case false:
		return "FALSE"
	}
	return "NULL"
}

func (p *ConstantPredicate) Correlations() cascades.CorrelationSet     { return cascades.CorrelationSet{} }
func (p *ConstantPredicate) Eval(*EvalContext) (cascades.Value, error) { return p.Result, nil }
func (p *ConstantPredicate) Rebase(*cascades.AliasMap) Predicate       { return p }
func (p *ConstantPredicate) IsTautology() bool                         { return p.Result == true }
func (p *ConstantPredicate) SemanticHash() uint64                      { return hashOf("const:" + p.String()) }

func (p *ConstantPredicate) SemanticEquals(other Predicate, _ *cascades.AliasMap) bool {
	o, ok := other.(*ConstantPredicate)
	return ok && p.Result == o.Result
}

// ValuePredicate applies a comparison to a value.
type ValuePredicate struct {
	Value      Value
	Comparison Comparison
}

// Where returns the predicate "value op operand" for a constant operand.
func Where(value Value, t ComparisonType, operand cascades.Value) *ValuePredicate {
	return &ValuePredicate{Value: value, Comparison: Compare(t, operand)}
}

func (p *ValuePredicate) String() string {
	return p.Value.String() + " " + p.Comparison.String()
}

func (p *ValuePredicate) Correlations() cascades.CorrelationSet {
	return p.Value.Correlations().Union(p.Comparison.Correlations())
}

func (p *ValuePredicate) Eval(ctx *EvalContext) (cascades.Value, error) {
	v, err := p.Value.Eval(ctx)
	if err != nil {
		return nil, err
	}
	return p.Comparison.Eval(ctx, v)
}

func (p *ValuePredicate) Rebase(m *cascades.AliasMap) Predicate {
	return &ValuePredicate{Value: p.Value.Rebase(m), Comparison: p.Comparison.Rebase(m)}
}

func (p *ValuePredicate) SemanticEquals(other Predicate, m *cascades.AliasMap) bool {
	o, ok := other.(*ValuePredicate)
	return ok && p.Value.SemanticEquals(o.Value, m) && p.Comparison.SemanticEquals(o.Comparison, m)
}

func (p *ValuePredicate) SemanticHash() uint64 {
	return hashOf("value-pred", p.Value.SemanticHash(), p.Comparison.SemanticHash())
}

func (p *ValuePredicate) IsTautology() bool { return false }

// AndPredicate is the conjunction of its children.
type AndPredicate struct {
	Children []Predicate
}

// And returns the conjunction of preds. Tautologies are dropped; an empty
// conjunction is TRUE and a single child is returned as is.
func And(preds ...Predicate) Predicate {
	var children []Predicate
	for _, p := range preds {
		if p.IsTautology() {
			continue
		}
		if and, ok := p.(*AndPredicate); ok {
			children = append(children, and.Children...)
			continue
		}
		children = append(children, p)
	}
	switch len(children) {
	case 0:
		return TruePredicate
	case 1:
		return children[0]
	}
	return &AndPredicate{Children: children}
}

func (p *AndPredicate) String() string { return joinPredicates(p.Children, " AND ") }

func (p *AndPredicate) Correlations() cascades.CorrelationSet {
	return PredicatesCorrelations(p.Children)
}

func (p *AndPredicate) Eval(ctx *EvalContext) (cascades.Value, error) {
	var result cascades.Value = true
	for _, c := range p.Children {
		v, err := c.Eval(ctx)
		if err != nil {
			return nil, err
		}
		switch v {
		case false:
			return false, nil
		case nil:
			result = nil
		}
	}
	return result, nil
}

func (p *AndPredicate) Rebase(m *cascades.AliasMap) Predicate {
	return &AndPredicate{Children: RebasePredicates(p.Children, m)}
}

func (p *AndPredicate) SemanticEquals(other Predicate, m *cascades.AliasMap) bool {
	o, ok := other.(*AndPredicate)
	return ok && PredicateSetsEqual(p.Children, o.Children, m)
}

func (p *AndPredicate) SemanticHash() uint64 { return HashPredicateSet("and", p.Children) }

func (p *AndPredicate) IsTautology() bool {
	for _, c := range p.Children {
		if !c.IsTautology() {
			return false
		}
	}
	return true
}

// OrPredicate is the disjunction of its children.
type OrPredicate struct {
	Children []Predicate
}

// Or returns the disjunction of preds.
func Or(preds ...Predicate) Predicate {
	if len(preds) == 1 {
		return preds[0]
	}
	return &OrPredicate{Children: preds}
}

func (p *OrPredicate) String() string { return joinPredicates(p.Children, " OR ") }

func (p *OrPredicate) Correlations() cascades.CorrelationSet {
	return PredicatesCorrelations(p.Children)
}

func (p *OrPredicate) Eval(ctx *EvalContext) (cascades.Value, error) {
	var result cascades.Value = false
	for _, c := range p.Children {
		v, err := c.Eval(ctx)
		if err != nil {
			return nil, err
		}
		switch v {
		case true:
			return true, nil
		case nil:
			result = nil
		}
	}
	return result, nil
}

func (p *OrPredicate) Rebase(m *cascades.AliasMap) Predicate {
	return &OrPredicate{Children: RebasePredicates(p.Children, m)}
}

func (p *OrPredicate) SemanticEquals(other Predicate, m *cascades.AliasMap) bool {
	o, ok := other.(*OrPredicate)
	return ok && PredicateSetsEqual(p.Children, o.Children, m)
}

func (p *OrPredicate) SemanticHash() uint64 { return HashPredicateSet("or", p.Children) }

func (p *OrPredicate) IsTautology() bool {
	for _, c := range p.Children {
		if c.IsTautology() {
			return true
		}
	}
	return false
}

// NotPredicate negates its child.
type NotPredicate struct {
	Child Predicate
}

// Not returns the negation of p.
func Not(p Predicate) *NotPredicate { return &NotPredicate{Child: p} }

func (p *NotPredicate) String() string { return "NOT (" + p.Child.String() + ")" }

func (p *NotPredicate) Correlations() cascades.CorrelationSet { return p.Child.Correlations() }

func (p *NotPredicate) Eval(ctx *EvalContext) (cascades.Value, error) {
	v, err := p.Child.Eval(ctx)
	if err != nil || v == nil {
		return nil, err
	}
	b, ok := v.(bool)
	if !ok {
		return nil, errors.Newf("NOT applied to %T", v)
	}
	return !b, nil
}

func (p *NotPredicate) Rebase(m *cascades.AliasMap) Predicate {
	return &NotPredicate{Child: p.Child.Rebase(m)}
}

func (p *NotPredicate) SemanticEquals(other Predicate, m *cascades.AliasMap) bool {
	o, ok := other.(*NotPredicate)
	return ok && p.Child.SemanticEquals(o.Child, m)
}

func (p *NotPredicate) SemanticHash() uint64 { return hashOf("not", p.Child.SemanticHash()) }

func (p *NotPredicate) IsTautology() bool {
	c, ok := p.Child.(*ConstantPredicate)
	return ok && c.Result == false
}

// Placeholder stands for a sargable comparison on Value inside a match
// candidate. Matching binds query comparisons on the same value to
// Parameter. Placeholders only exist in candidate expressions and cannot be
// evaluated.
type Placeholder struct {
	Value     Value
	Parameter cascades.CorrelationIdentifier
}

// NewPlaceholder returns a placeholder for value bound to parameter.
func NewPlaceholder(value Value, parameter cascades.CorrelationIdentifier) *Placeholder {
	return &Placeholder{Value: value, Parameter: parameter}
}

func (p *Placeholder) String() string {
	return fmt.Sprintf("%s -> ?%s", p.Value, p.Parameter)
}

func (p *Placeholder) Correlations() cascades.CorrelationSet { return p.Value.Correlations() }

func (p *Placeholder) Eval(*EvalContext) (cascades.Value, error) {
	return nil, errors.Wrapf(cascades.ErrUnsupported, "placeholder %s cannot be evaluated", p)
}

func (p *Placeholder) Rebase(m *cascades.AliasMap) Predicate {
	return &Placeholder{Value: p.Value.Rebase(m), Parameter: p.Parameter}
}

func (p *Placeholder) SemanticEquals(other Predicate, m *cascades.AliasMap) bool {
	o, ok := other.(*Placeholder)
	return ok && p.Parameter == o.Parameter && p.Value.SemanticEquals(o.Value, m)
}

func (p *Placeholder) SemanticHash() uint64 { return hashOf("placeholder", p.Value.SemanticHash()) }

func (p *Placeholder) IsTautology() bool { return true }

// PredicateSetsEqual reports whether both lists hold the same predicates
// under m, ignoring order.
func PredicateSetsEqual(a, b []Predicate, m *cascades.AliasMap) bool {
	if len(a) != len(b) {
		return false
	}
	used := make([]bool, len(b))
	for _, pa := range a {
		found := false
		for j, pb := range b {
			if !used[j] && pa.SemanticEquals(pb, m) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// HashPredicateSet hashes a predicate list ignoring order.
func HashPredicateSet(tag string, preds []Predicate) uint64 {
	hashes := make([]uint64, len(preds))
	for i, p := range preds {
		hashes[i] = p.SemanticHash()
	}
	sort.Slice(hashes, func(i, j int) bool { return hashes[i] < hashes[j] })
	return hashOf(tag, hashes...)
}

// RebasePredicates rebases every predicate in the list.
func RebasePredicates(preds []Predicate, m *cascades.AliasMap) []Predicate {
	out := make([]Predicate, len(preds))
	for i, p := range preds {
		out[i] = p.Rebase(m)
	}
	return out
}

// PredicatesCorrelations returns the union of the correlations of preds.
func PredicatesCorrelations(preds []Predicate) cascades.CorrelationSet {
	out := cascades.CorrelationSet{}
	for _, p := range preds {
		out = out.Union(p.Correlations())
	}
	return out
}

// AllTautologies reports whether every predicate in the list is trivially
// true.
func AllTautologies(preds []Predicate) bool {
	for _, p := range preds {
		if !p.IsTautology() {
			return false
		}
	}
	return true
}

// EvalAll evaluates the conjunction of preds and reports whether it is true.
func EvalAll(ctx *EvalContext, preds []Predicate) (bool, error) {
	for _, p := range preds {
		v, err := p.Eval(ctx)
		if err != nil {
			return false, err
		}
		if v != true {
			return false, nil
		}
	}
	return true, nil
}

func joinPredicates(preds []Predicate, sep string) string {
	parts := make([]string, len(preds))
	for i, p := range preds {
		parts[i] = "(" + p.String() + ")"
	}
	return strings.Join(parts, sep)
}
