package query

import (
	"fmt"

	"github.com/wbrown/janus-cascades/cascades"
)

// ComparisonType is the operator of a comparison.
type ComparisonType int

const (
	Equals ComparisonType = iota
	NotEquals
	LessThan
	LessThanOrEquals
	GreaterThan
	GreaterThanOrEquals
	IsNull
	NotNull
)

func (t ComparisonType) String() string {
	switch t {
	case Equals:
		return "="
	case NotEquals:
		return "!="
	case LessThan:
		return "<"
	case LessThanOrEquals:
		return "<="
	case GreaterThan:
		return ">"
	case GreaterThanOrEquals:
		return ">="
	case IsNull:
		return "IS NULL"
	case NotNull:
		return "IS NOT NULL"
	default:
		return fmt.Sprintf("ComparisonType(%d)", int(t))
	}
}

// IsUnary reports whether the operator takes no operand.
func (t ComparisonType) IsUnary() bool { return t == IsNull || t == NotNull }

// IsInequality reports whether the operator bounds a range.
func (t ComparisonType) IsInequality() bool {
	switch t {
	case LessThan, LessThanOrEquals, GreaterThan, GreaterThanOrEquals:
		return true
	}
	return false
}

// Swap returns the operator with its operands exchanged, so that
// "a < b" becomes "b > a".
func (t ComparisonType) Swap() ComparisonType {
	switch t {
	case LessThan:
		return GreaterThan
	case LessThanOrEquals:
		return GreaterThanOrEquals
	case GreaterThan:
		return LessThan
	case GreaterThanOrEquals:
		return LessThanOrEquals
	}
	return t
}

// Apply evaluates left op right under three-valued logic. The result is a
// bool, or nil when either operand is null.
func (t ComparisonType) Apply(left, right cascades.Value) cascades.Value {
	switch t {
	case IsNull:
		return left == nil
	case NotNull:
		return left != nil
	}
	if left == nil || right == nil {
		return nil
	}
	c := cascades.CompareValues(left, right)
	switch t {
	case Equals:
		return c == 0
	case NotEquals:
		return c != 0
	case LessThan:
		return c < 0
	case LessThanOrEquals:
		return c <= 0
	case GreaterThan:
		return c > 0
	case GreaterThanOrEquals:
		return c >= 0
	}
	return nil
}

// Comparison is an operator together with its right-hand operand.
type Comparison struct {
	Type    ComparisonType
	Operand Value
}

// Compare returns a comparison against a constant.
func Compare(t ComparisonType, operand cascades.Value) Comparison {
	if t.IsUnary() {
		return Comparison{Type: t}
	}
	return Comparison{Type: t, Operand: Literal(operand)}
}

// IsSimple reports whether the operand is a constant, which is what index
// scans can absorb.
func (c Comparison) IsSimple() bool {
	if c.Type.IsUnary() {
		return true
	}
	_, ok := c.Operand.(*LiteralValue)
	return ok
}

// Constant returns the operand of a simple comparison.
func (c Comparison) Constant() cascades.Value {
	if lit, ok := c.Operand.(*LiteralValue); ok {
		return lit.V
	}
	return nil
}

// Eval applies the comparison to v.
func (c Comparison) Eval(ctx *EvalContext, v cascades.Value) (cascades.Value, error) {
	if c.Type.IsUnary() {
		return c.Type.Apply(v, nil), nil
	}
	operand, err := c.Operand.Eval(ctx)
	if err != nil {
		return nil, err
	}
	return c.Type.Apply(v, operand), nil
}

// Correlations returns the correlations of the operand.
func (c Comparison) Correlations() cascades.CorrelationSet {
	if c.Operand == nil {
		return cascades.CorrelationSet{}
	}
	return c.Operand.Correlations()
}

// Rebase rebases the operand.
func (c Comparison) Rebase(m *cascades.AliasMap) Comparison {
	if c.Operand == nil {
		return c
	}
	return Comparison{Type: c.Type, Operand: c.Operand.Rebase(m)}
}

// SemanticEquals compares operator and operand.
func (c Comparison) SemanticEquals(other Comparison, m *cascades.AliasMap) bool {
	if c.Type != other.Type {
		return false
	}
	if c.Operand == nil || other.Operand == nil {
		return c.Operand == nil && other.Operand == nil
	}
	return c.Operand.SemanticEquals(other.Operand, m)
}

// SemanticHash hashes operator and operand.
func (c Comparison) SemanticHash() uint64 {
	if c.Operand == nil {
		return hashOf("cmp:" + c.Type.String())
	}
	return hashOf("cmp:"+c.Type.String(), c.Operand.SemanticHash())
}

func (c Comparison) String() string {
	if c.Operand == nil {
		return c.Type.String()
	}
	return c.Type.String() + " " + c.Operand.String()
}
