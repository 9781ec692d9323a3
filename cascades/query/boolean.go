package query

import (
	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-cascades/cascades"
)

// BooleanValue is a value that can be turned into a predicate.
type BooleanValue interface {
	Value
	ToPredicate() (Predicate, error)
}

// RelOpValue is a relational comparison "left op right" used as a value.
type RelOpValue struct {
	Op    ComparisonType
	Left  Value
	Right Value
}

// RelOp returns the comparison value left op right.
func RelOp(op ComparisonType, left, right Value) *RelOpValue {
	return &RelOpValue{Op: op, Left: left, Right: right}
}

func (v *RelOpValue) String() string {
	if v.Op.IsUnary() {
		return v.Left.String() + " " + v.Op.String()
	}
	return v.Left.String() + " " + v.Op.String() + " " + v.Right.String()
}

func (v *RelOpValue) Correlations() cascades.CorrelationSet {
	out := v.Left.Correlations()
	if v.Right != nil {
		out = out.Union(v.Right.Correlations())
	}
	return out
}

func (v *RelOpValue) Eval(ctx *EvalContext) (cascades.Value, error) {
	left, err := v.Left.Eval(ctx)
	if err != nil {
		return nil, err
	}
	if v.Op.IsUnary() {
		return v.Op.Apply(left, nil), nil
	}
	right, err := v.Right.Eval(ctx)
	if err != nil {
		return nil, err
	}
	return v.Op.Apply(left, right), nil
}

func (v *RelOpValue) Rebase(m *cascades.AliasMap) Value {
	out := &RelOpValue{Op: v.Op, Left: v.Left.Rebase(m)}
	if v.Right != nil {
		out.Right = v.Right.Rebase(m)
	}
	return out
}

func (v *RelOpValue) SemanticEquals(other Value, m *cascades.AliasMap) bool {
	o, ok := other.(*RelOpValue)
	if !ok || v.Op != o.Op || !v.Left.SemanticEquals(o.Left, m) {
		return false
	}
	if v.Right == nil || o.Right == nil {
		return v.Right == nil && o.Right == nil
	}
	return v.Right.SemanticEquals(o.Right, m)
}

func (v *RelOpValue) SemanticHash() uint64 {
	if v.Right == nil {
		return hashOf("relop:"+v.Op.String(), v.Left.SemanticHash())
	}
	return hashOf("relop:"+v.Op.String(), v.Left.SemanticHash(), v.Right.SemanticHash())
}

// ToPredicate folds comparisons between constants into TRUE, FALSE or NULL
// and turns a comparison with a constant on one side into a ValuePredicate
// on the other side.
func (v *RelOpValue) ToPredicate() (Predicate, error) {
	leftLit, leftConst := v.Left.(*LiteralValue)
	if v.Op.IsUnary() {
		if leftConst {
			return Constant(v.Op.Apply(leftLit.V, nil)), nil
		}
		return &ValuePredicate{Value: v.Left, Comparison: Comparison{Type: v.Op}}, nil
	}
	rightLit, rightConst := v.Right.(*LiteralValue)
	switch {
	case leftConst && rightConst:
		return Constant(v.Op.Apply(leftLit.V, rightLit.V)), nil
	case leftConst:
		return &ValuePredicate{Value: v.Right, Comparison: Comparison{Type: v.Op.Swap(), Operand: v.Left}}, nil
	default:
		return &ValuePredicate{Value: v.Left, Comparison: Comparison{Type: v.Op, Operand: v.Right}}, nil
	}
}

// AndOrValue is a boolean conjunction or disjunction of two boolean values.
type AndOrValue struct {
	IsAnd bool
	Left  Value
	Right Value
}

// BooleanAnd returns left AND right.
func BooleanAnd(left, right Value) *AndOrValue {
	return &AndOrValue{IsAnd: true, Left: left, Right: right}
}

// BooleanOr returns left OR right.
func BooleanOr(left, right Value) *AndOrValue {
	return &AndOrValue{Left: left, Right: right}
}

func (v *AndOrValue) op() string {
	if v.IsAnd {
		return "AND"
	}
	return "OR"
}

func (v *AndOrValue) String() string {
	return "(" + v.Left.String() + " " + v.op() + " " + v.Right.String() + ")"
}

func (v *AndOrValue) Correlations() cascades.CorrelationSet {
	return v.Left.Correlations().Union(v.Right.Correlations())
}

func (v *AndOrValue) Eval(ctx *EvalContext) (cascades.Value, error) {
	p, err := v.ToPredicate()
	if err != nil {
		return nil, err
	}
	return p.Eval(ctx)
}

func (v *AndOrValue) Rebase(m *cascades.AliasMap) Value {
	return &AndOrValue{IsAnd: v.IsAnd, Left: v.Left.Rebase(m), Right: v.Right.Rebase(m)}
}

func (v *AndOrValue) SemanticEquals(other Value, m *cascades.AliasMap) bool {
	o, ok := other.(*AndOrValue)
	return ok && v.IsAnd == o.IsAnd && v.Left.SemanticEquals(o.Left, m) && v.Right.SemanticEquals(o.Right, m)
}

func (v *AndOrValue) SemanticHash() uint64 {
	return hashOf("andor:"+v.op(), v.Left.SemanticHash(), v.Right.SemanticHash())
}

// ToPredicate converts both sides and simplifies constant operands:
// TRUE AND x is x, FALSE AND x is FALSE, TRUE OR x is TRUE, FALSE OR x is x.
func (v *AndOrValue) ToPredicate() (Predicate, error) {
	left, err := ToPredicate(v.Left)
	if err != nil {
		return nil, err
	}
	right, err := ToPredicate(v.Right)
	if err != nil {
		return nil, err
	}
	lc, leftConst := left.(*ConstantPredicate)
	rc, rightConst := right.(*ConstantPredicate)
	if v.IsAnd {
		switch {
		case leftConst && lc.Result == false, rightConst && rc.Result == false:
			return FalsePredicate, nil
		case leftConst && lc.Result == true:
			return right, nil
		case rightConst && rc.Result == true:
			return left, nil
		}
		return &AndPredicate{Children: []Predicate{left, right}}, nil
	}
	switch {
	case leftConst && lc.Result == true, rightConst && rc.Result == true:
		return TruePredicate, nil
	case leftConst && lc.Result == false:
		return right, nil
	case rightConst && rc.Result == false:
		return left, nil
	}
	return &OrPredicate{Children: []Predicate{left, right}}, nil
}

// ToPredicate converts a boolean value into a predicate. Boolean literals
// become constant predicates.
func ToPredicate(v Value) (Predicate, error) {
	switch b := v.(type) {
	case BooleanValue:
		return b.ToPredicate()
	case *LiteralValue:
		switch b.V.(type) {
		case bool, nil:
			return Constant(b.V), nil
		}
	}
	return nil, errors.Newf("%s is not a boolean value", v)
}
