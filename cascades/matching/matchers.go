package matching

import (
	"iter"
	"reflect"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-cascades/cascades/memo"
)

// TypedMatcher matches objects of type T, optionally restricted by a
// predicate, and binds the object.
type TypedMatcher[T any] struct {
	where func(T) bool
}

// Typed matches any T.
func Typed[T any]() *TypedMatcher[T] {
	return &TypedMatcher[T]{}
}

// TypedWhere matches any T for which pred holds.
func TypedWhere[T any](pred func(T) bool) *TypedMatcher[T] {
	return &TypedMatcher[T]{where: pred}
}

func (tm *TypedMatcher[T]) BindMatches(_ *memo.Memo, _ Bindings, in any) iter.Seq[Bindings] {
	v, ok := in.(T)
	if !ok || (tm.where != nil && !tm.where(v)) {
		return none
	}
	return func(yield func(Bindings) bool) {
		yield(Of(tm, v))
	}
}

func (tm *TypedMatcher[T]) Explain() string { return typeName[T]() }

// AnyObject matches and binds anything.
func AnyObject() *TypedMatcher[any] { return Typed[any]() }

// ExpressionMatcher matches an expression of type T whose quantifier list
// matches a collection matcher.
type ExpressionMatcher[T memo.Expression] struct {
	where       func(T) bool
	quantifiers BindingMatcher
}

// Expression matches a T whose quantifiers match quantifiers. A nil
// quantifiers matcher accepts any quantifier list.
func Expression[T memo.Expression](quantifiers BindingMatcher) *ExpressionMatcher[T] {
	return &ExpressionMatcher[T]{quantifiers: quantifiers}
}

// ExpressionWhere is Expression with an additional predicate on the
// expression itself.
func ExpressionWhere[T memo.Expression](pred func(T) bool, quantifiers BindingMatcher) *ExpressionMatcher[T] {
	return &ExpressionMatcher[T]{where: pred, quantifiers: quantifiers}
}

func (em *ExpressionMatcher[T]) BindMatches(m *memo.Memo, outer Bindings, in any) iter.Seq[Bindings] {
	e, ok := in.(T)
	if !ok || (em.where != nil && !em.where(e)) {
		return none
	}
	self := Of(em, e)
	if em.quantifiers == nil {
		return func(yield func(Bindings) bool) { yield(self) }
	}
	return func(yield func(Bindings) bool) {
		for b := range em.quantifiers.BindMatches(m, outer.Merge(self), e.Quantifiers()) {
			if !yield(self.Merge(b)) {
				return
			}
		}
	}
}

func (em *ExpressionMatcher[T]) Explain() string {
	if em.quantifiers == nil {
		return typeName[T]() + "(*)"
	}
	return typeName[T]() + "(" + em.quantifiers.Explain() + ")"
}

// QuantifierMatcher matches a quantifier of a given kind and continues
// matching into the group it ranges over.
type QuantifierMatcher struct {
	kind *memo.QuantifierKind
	over BindingMatcher
}

func quantifierOf(kind memo.QuantifierKind, over BindingMatcher) *QuantifierMatcher {
	return &QuantifierMatcher{kind: &kind, over: over}
}

// ForEachQuantifier matches ForEach quantifiers whose group matches over.
func ForEachQuantifier(over BindingMatcher) *QuantifierMatcher {
	return quantifierOf(memo.ForEach, over)
}

// PhysicalQuantifier matches Physical quantifiers whose group matches over.
func PhysicalQuantifier(over BindingMatcher) *QuantifierMatcher {
	return quantifierOf(memo.Physical, over)
}

// AnyQuantifier matches quantifiers of any kind.
func AnyQuantifier(over BindingMatcher) *QuantifierMatcher {
	return &QuantifierMatcher{over: over}
}

func (qm *QuantifierMatcher) BindMatches(m *memo.Memo, outer Bindings, in any) iter.Seq[Bindings] {
	q, ok := in.(memo.Quantifier)
	if !ok || (qm.kind != nil && q.Kind != *qm.kind) {
		return none
	}
	self := Of(qm, q)
	if qm.over == nil {
		return func(yield func(Bindings) bool) { yield(self) }
	}
	return func(yield func(Bindings) bool) {
		for b := range qm.over.BindMatches(m, outer.Merge(self), q.Group) {
			if !yield(self.Merge(b)) {
				return
			}
		}
	}
}

func (qm *QuantifierMatcher) Explain() string {
	kind := "Any"
	if qm.kind != nil {
		kind = qm.kind.String()
	}
	if qm.over == nil {
		return kind + "Quantifier"
	}
	return kind + "Quantifier(" + qm.over.Explain() + ")"
}

// RefMatcher matches a group reference.
type RefMatcher struct {
	members BindingMatcher
	plans   BindingMatcher
}

// AnyRef matches any group and binds its ID.
func AnyRef() *RefMatcher { return &RefMatcher{} }

// RefMembers matches a group once per member that matches member.
func RefMembers(member BindingMatcher) *RefMatcher {
	return &RefMatcher{members: member}
}

// RefPlans matches the list of physical members of a group against a
// collection matcher.
func RefPlans(collection BindingMatcher) *RefMatcher {
	return &RefMatcher{plans: collection}
}

func (rm *RefMatcher) BindMatches(m *memo.Memo, outer Bindings, in any) iter.Seq[Bindings] {
	id, ok := in.(memo.GroupID)
	if !ok || !m.HasGroup(id) {
		return none
	}
	self := Of(rm, id)
	inner := outer.Merge(self)
	switch {
	case rm.members != nil:
		members := m.Group(id).Members()
		return func(yield func(Bindings) bool) {
			for _, e := range members {
				for b := range rm.members.BindMatches(m, inner, e) {
					if !yield(self.Merge(b)) {
						return
					}
				}
			}
		}
	case rm.plans != nil:
		plans := m.Group(id).Plans()
		return func(yield func(Bindings) bool) {
			for b := range rm.plans.BindMatches(m, inner, plans) {
				if !yield(self.Merge(b)) {
					return
				}
			}
		}
	}
	return func(yield func(Bindings) bool) { yield(self) }
}

func (rm *RefMatcher) Explain() string {
	switch {
	case rm.members != nil:
		return "Ref(" + rm.members.Explain() + ")"
	case rm.plans != nil:
		return "Plans(" + rm.plans.Explain() + ")"
	}
	return "Ref(*)"
}

// CollectionMatcher matches slices.
type CollectionMatcher struct {
	mode     collectionMode
	element  BindingMatcher
	elements []BindingMatcher
}

type collectionMode int

const (
	modeAll collectionMode = iota
	modeSome
	modeExactly
)

// All matches a collection whose every element matches element. It yields
// one binding per combination of element bindings; an empty collection
// matches once with no element bindings.
func All(element BindingMatcher) *CollectionMatcher {
	return &CollectionMatcher{mode: modeAll, element: element}
}

// MaxSomeElements bounds the number of matching elements Some enumerates
// subsets of.
const MaxSomeElements = 20

// Some matches every non-empty subset of the elements that match element.
// Elements that do not match never appear in a binding. Matching more than
// MaxSomeElements elements panics with an assertion failure.
func Some(element BindingMatcher) *CollectionMatcher {
	return &CollectionMatcher{mode: modeSome, element: element}
}

// Exactly matches a collection with exactly len(elements) elements, the
// i-th element matching the i-th matcher.
func Exactly(elements ...BindingMatcher) *CollectionMatcher {
	return &CollectionMatcher{mode: modeExactly, elements: elements}
}

func (cm *CollectionMatcher) BindMatches(m *memo.Memo, outer Bindings, in any) iter.Seq[Bindings] {
	items, ok := asSlice(in)
	if !ok {
		return none
	}
	switch cm.mode {
	case modeAll:
		return cm.bindAll(m, outer, items)
	case modeSome:
		return cm.bindSome(m, outer, items)
	default:
		return cm.bindExactly(m, outer, items)
	}
}

func (cm *CollectionMatcher) bindAll(m *memo.Memo, outer Bindings, items []any) iter.Seq[Bindings] {
	per := make([][]Bindings, len(items))
	for i, item := range items {
		per[i] = Collect(cm.element.BindMatches(m, outer, item))
		if len(per[i]) == 0 {
			return none
		}
	}
	return cm.product(per, items)
}

func (cm *CollectionMatcher) bindSome(m *memo.Memo, outer Bindings, items []any) iter.Seq[Bindings] {
	var (
		matched []any
		per     [][]Bindings
	)
	for _, item := range items {
		bs := Collect(cm.element.BindMatches(m, outer, item))
		if len(bs) > 0 {
			matched = append(matched, item)
			per = append(per, bs)
		}
	}
	if len(matched) == 0 {
		return none
	}
	if len(matched) > MaxSomeElements {
		panic(errors.AssertionFailedf("Some matched %d elements, at most %d are supported",
			len(matched), MaxSomeElements))
	}
	return func(yield func(Bindings) bool) {
		for mask := 1; mask < 1<<len(matched); mask++ {
			var (
				subset    []any
				subsetPer [][]Bindings
			)
			for i := range matched {
				if mask&(1<<i) != 0 {
					subset = append(subset, matched[i])
					subsetPer = append(subsetPer, per[i])
				}
			}
			for b := range cm.product(subsetPer, subset) {
				if !yield(b) {
					return
				}
			}
		}
	}
}

func (cm *CollectionMatcher) bindExactly(m *memo.Memo, outer Bindings, items []any) iter.Seq[Bindings] {
	if len(items) != len(cm.elements) {
		return none
	}
	per := make([][]Bindings, len(items))
	for i, item := range items {
		per[i] = Collect(cm.elements[i].BindMatches(m, outer, item))
		if len(per[i]) == 0 {
			return none
		}
	}
	return cm.product(per, items)
}

// product yields the cross product of per-element bindings, each combined
// with the collection binding for items.
func (cm *CollectionMatcher) product(per [][]Bindings, items []any) iter.Seq[Bindings] {
	self := EmptyBindings()
	for _, item := range items {
		self = self.With(cm, item)
	}
	return func(yield func(Bindings) bool) {
		crossProduct(per, self, yield)
	}
}

func crossProduct(per [][]Bindings, acc Bindings, yield func(Bindings) bool) bool {
	if len(per) == 0 {
		return yield(acc)
	}
	for _, b := range per[0] {
		if !crossProduct(per[1:], acc.Merge(b), yield) {
			return false
		}
	}
	return true
}

func (cm *CollectionMatcher) Explain() string {
	switch cm.mode {
	case modeAll:
		return "all(" + cm.element.Explain() + ")"
	case modeSome:
		return "some(" + cm.element.Explain() + ")"
	}
	parts := make([]string, len(cm.elements))
	for i, e := range cm.elements {
		parts[i] = e.Explain()
	}
	return "exactly(" + strings.Join(parts, ", ") + ")"
}

func asSlice(in any) ([]any, bool) {
	if s, ok := in.([]any); ok {
		return s, true
	}
	rv := reflect.ValueOf(in)
	if !rv.IsValid() || rv.Kind() != reflect.Slice {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

func typeName[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}
