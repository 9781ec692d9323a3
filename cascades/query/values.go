// Package query defines the scalar language of the planner: values evaluated
// against the current rows of quantifiers, predicates over those values, and
// the comparison ranges that index scans are built from.
package query

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-cascades/cascades"
)

// CurrentAlias names the row produced by the expression that owns a value.
// Orderings are expressed over it so that they can be compared across
// expressions with different quantifier aliases.
var CurrentAlias = cascades.Named("$current")

// Value is a scalar expression.
type Value interface {
	fmt.Stringer

	// Correlations returns the quantifier aliases this value reads.
	Correlations() cascades.CorrelationSet

	// Eval computes the value against the bindings in ctx.
	Eval(ctx *EvalContext) (cascades.Value, error)

	// Rebase returns the value with every correlation translated through m.
	Rebase(m *cascades.AliasMap) Value

	// SemanticEquals reports whether both values compute the same result
	// once the correlations of v are renamed through m.
	SemanticEquals(other Value, m *cascades.AliasMap) bool

	// SemanticHash is a hash that agrees with SemanticEquals.
	SemanticHash() uint64
}

// QuantifiedValue is the current row of a quantifier.
type QuantifiedValue struct {
	Alias cascades.CorrelationIdentifier
}

// Quantified returns the row of the quantifier named alias.
func Quantified(alias cascades.CorrelationIdentifier) *QuantifiedValue {
	return &QuantifiedValue{Alias: alias}
}

func (v *QuantifiedValue) String() string { return "$" + v.Alias.Name() }

func (v *QuantifiedValue) Correlations() cascades.CorrelationSet {
	return cascades.NewCorrelationSet(v.Alias)
}

func (v *QuantifiedValue) Eval(ctx *EvalContext) (cascades.Value, error) {
	row, ok := ctx.Binding(v.Alias)
	if !ok {
		return nil, errors.AssertionFailedf("unbound correlation %s", v.Alias)
	}
	return row, nil
}

func (v *QuantifiedValue) Rebase(m *cascades.AliasMap) Value {
	return &QuantifiedValue{Alias: m.Translate(v.Alias)}
}

func (v *QuantifiedValue) SemanticEquals(other Value, m *cascades.AliasMap) bool {
	o, ok := other.(*QuantifiedValue)
	return ok && m.Corresponds(v.Alias, o.Alias)
}

func (v *QuantifiedValue) SemanticHash() uint64 { return hashOf("quantified") }

// FieldValue reads a named field of a record-valued child.
type FieldValue struct {
	Child Value
	Name  string
}

// Field returns the field name of child.
func Field(child Value, name string) *FieldValue {
	return &FieldValue{Child: child, Name: name}
}

// FieldOf returns the field name of the current row of alias.
func FieldOf(alias cascades.CorrelationIdentifier, name string) *FieldValue {
	return Field(Quantified(alias), name)
}

// CurrentField returns the field name of the current row.
func CurrentField(name string) *FieldValue {
	return FieldOf(CurrentAlias, name)
}

func (v *FieldValue) String() string { return v.Child.String() + "." + v.Name }

func (v *FieldValue) Correlations() cascades.CorrelationSet { return v.Child.Correlations() }

func (v *FieldValue) Eval(ctx *EvalContext) (cascades.Value, error) {
	row, err := v.Child.Eval(ctx)
	if err != nil {
		return nil, err
	}
	switch r := row.(type) {
	case nil:
		return nil, nil
	case interface {
		Get(string) (cascades.Value, bool)
	}:
		f, _ := r.Get(v.Name)
		return f, nil
	case map[string]cascades.Value:
		return r[v.Name], nil
	default:
		return nil, errors.Newf("cannot read field %q of %T", v.Name, row)
	}
}

func (v *FieldValue) Rebase(m *cascades.AliasMap) Value {
	return &FieldValue{Child: v.Child.Rebase(m), Name: v.Name}
}

func (v *FieldValue) SemanticEquals(other Value, m *cascades.AliasMap) bool {
	o, ok := other.(*FieldValue)
	return ok && v.Name == o.Name && v.Child.SemanticEquals(o.Child, m)
}

func (v *FieldValue) SemanticHash() uint64 {
	return hashOf("field:"+v.Name, v.Child.SemanticHash())
}

// ColumnValue reads a position of a tuple-valued child.
type ColumnValue struct {
	Child   Value
	Ordinal int
}

// Column returns position ordinal of child.
func Column(child Value, ordinal int) *ColumnValue {
	return &ColumnValue{Child: child, Ordinal: ordinal}
}

// CurrentColumn returns position ordinal of the current row.
func CurrentColumn(ordinal int) *ColumnValue {
	return Column(Quantified(CurrentAlias), ordinal)
}

func (v *ColumnValue) String() string { return fmt.Sprintf("%s[%d]", v.Child, v.Ordinal) }

func (v *ColumnValue) Correlations() cascades.CorrelationSet { return v.Child.Correlations() }

func (v *ColumnValue) Eval(ctx *EvalContext) (cascades.Value, error) {
	row, err := v.Child.Eval(ctx)
	if err != nil {
		return nil, err
	}
	switch r := row.(type) {
	case nil:
		return nil, nil
	case cascades.Tuple:
		return r.Get(v.Ordinal), nil
	default:
		return nil, errors.Newf("cannot read column %d of %T", v.Ordinal, row)
	}
}

func (v *ColumnValue) Rebase(m *cascades.AliasMap) Value {
	return &ColumnValue{Child: v.Child.Rebase(m), Ordinal: v.Ordinal}
}

func (v *ColumnValue) SemanticEquals(other Value, m *cascades.AliasMap) bool {
	o, ok := other.(*ColumnValue)
	return ok && v.Ordinal == o.Ordinal && v.Child.SemanticEquals(o.Child, m)
}

func (v *ColumnValue) SemanticHash() uint64 {
	return hashOf(fmt.Sprintf("column:%d", v.Ordinal), v.Child.SemanticHash())
}

// LiteralValue is a constant.
type LiteralValue struct {
	V cascades.Value
}

// Literal returns a constant value.
func Literal(v cascades.Value) *LiteralValue {
	if i, ok := v.(int); ok {
		v = int64(i)
	}
	return &LiteralValue{V: v}
}

func (v *LiteralValue) String() string { return cascades.FormatValue(v.V) }

func (v *LiteralValue) Correlations() cascades.CorrelationSet { return cascades.CorrelationSet{} }

func (v *LiteralValue) Eval(*EvalContext) (cascades.Value, error) { return v.V, nil }

func (v *LiteralValue) Rebase(*cascades.AliasMap) Value { return v }

func (v *LiteralValue) SemanticEquals(other Value, _ *cascades.AliasMap) bool {
	o, ok := other.(*LiteralValue)
	if !ok {
		return false
	}
	if v.V == nil || o.V == nil {
		return v.V == nil && o.V == nil
	}
	return cascades.ValuesEqual(v.V, o.V)
}

func (v *LiteralValue) SemanticHash() uint64 {
	switch n := v.V.(type) {
	case int64:
		// ints and floats that compare equal must hash equally
		return hashOf("literal:" + fmt.Sprint(float64(n)))
	case float64:
		return hashOf("literal:" + fmt.Sprint(n))
	}
	return hashOf("literal:" + cascades.FormatValue(v.V))
}

// ValuesEqual reports whether two value lists are pairwise semantically
// equal under m.
func ValuesEqual(a, b []Value, m *cascades.AliasMap) bool {
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

// RebaseValues rebases every value in the list.
func RebaseValues(values []Value, m *cascades.AliasMap) []Value {
	out := make([]Value, len(values))
	for i, v := range values {
		out[i] = v.Rebase(m)
	}
	return out
}

// ValuesCorrelations returns the union of the correlations of all values.
func ValuesCorrelations(values []Value) cascades.CorrelationSet {
	out := cascades.CorrelationSet{}
	for _, v := range values {
		out = out.Union(v.Correlations())
	}
	return out
}

// JoinValues renders a value list.
func JoinValues(values []Value) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}

// EvalContext binds quantifier aliases to their current rows. Contexts are
// immutable; WithBinding returns an extended copy. A nil context is empty.
type EvalContext struct {
	parent *EvalContext
	alias  cascades.CorrelationIdentifier
	value  cascades.Value
}

// WithBinding returns a context in which alias is bound to value.
func (c *EvalContext) WithBinding(alias cascades.CorrelationIdentifier, value cascades.Value) *EvalContext {
	return &EvalContext{parent: c, alias: alias, value: value}
}

// Binding returns the row bound to alias.
func (c *EvalContext) Binding(alias cascades.CorrelationIdentifier) (cascades.Value, bool) {
	for e := c; e != nil; e = e.parent {
		if e.alias == alias {
			return e.value, true
		}
	}
	return nil, false
}
