// Package matching is the pattern language rules use to describe the shape
// of the sub-DAG they fire on. A BindingMatcher produces a lazy sequence of
// Bindings; an empty sequence means no match. Matching only reads the memo.
package matching

import (
	"fmt"
	"iter"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-cascades/cascades/memo"
)

// BindingMatcher matches one object and yields every way it can bind.
type BindingMatcher interface {
	// BindMatches yields the bindings produced by matching in. The outer
	// bindings are those produced by enclosing matchers so far; they are not
	// repeated in the yielded bindings.
	BindMatches(m *memo.Memo, outer Bindings, in any) iter.Seq[Bindings]

	// Explain renders the matcher for diagnostics.
	Explain() string
}

// Bindings is an immutable multimap from matcher identity to the objects
// the matcher bound.
type Bindings struct {
	entries map[BindingMatcher][]any
}

// EmptyBindings returns bindings with no entries.
func EmptyBindings() Bindings { return Bindings{} }

// Of returns bindings holding a single entry.
func Of(matcher BindingMatcher, v any) Bindings {
	return Bindings{entries: map[BindingMatcher][]any{matcher: {v}}}
}

// With returns a copy with v appended to the entries of matcher.
func (b Bindings) With(matcher BindingMatcher, v any) Bindings {
	out := b.copy(1)
	out.entries[matcher] = append(append([]any(nil), out.entries[matcher]...), v)
	return out
}

// Merge returns the union of both bindings.
func (b Bindings) Merge(other Bindings) Bindings {
	if len(other.entries) == 0 {
		return b
	}
	if len(b.entries) == 0 {
		return other
	}
	out := b.copy(len(other.entries))
	for k, vs := range other.entries {
		out.entries[k] = append(append([]any(nil), out.entries[k]...), vs...)
	}
	return out
}

func (b Bindings) copy(extra int) Bindings {
	out := Bindings{entries: make(map[BindingMatcher][]any, len(b.entries)+extra)}
	for k, vs := range b.entries {
		out.entries[k] = vs
	}
	return out
}

// Contains reports whether matcher bound anything.
func (b Bindings) Contains(matcher BindingMatcher) bool {
	return len(b.entries[matcher]) > 0
}

// Get returns the single object bound by matcher. It panics if matcher bound
// zero or several objects, which is a rule authoring defect.
func (b Bindings) Get(matcher BindingMatcher) any {
	vs := b.entries[matcher]
	if len(vs) != 1 {
		panic(errors.AssertionFailedf("matcher %s bound %d objects, expected one", matcher.Explain(), len(vs)))
	}
	return vs[0]
}

// GetAll returns every object bound by matcher.
func (b Bindings) GetAll(matcher BindingMatcher) []any {
	return b.entries[matcher]
}

// Size returns the number of matchers with entries.
func (b Bindings) Size() int { return len(b.entries) }

func (b Bindings) String() string {
	var parts []string
	for k, vs := range b.entries {
		parts = append(parts, fmt.Sprintf("%s=%v", k.Explain(), vs))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Get returns the single object bound by matcher as a T.
func Get[T any](b Bindings, matcher BindingMatcher) T {
	return b.Get(matcher).(T)
}

// GetAll returns every object bound by matcher as Ts.
func GetAll[T any](b Bindings, matcher BindingMatcher) []T {
	vs := b.GetAll(matcher)
	out := make([]T, len(vs))
	for i, v := range vs {
		out[i] = v.(T)
	}
	return out
}

// Collect drains a binding sequence into a slice.
func Collect(seq iter.Seq[Bindings]) []Bindings {
	var out []Bindings
	for b := range seq {
		out = append(out, b)
	}
	return out
}

func none(func(Bindings) bool) {}
