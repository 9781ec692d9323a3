// Package properties implements the interesting properties the planner
// propagates through the memo, ordering first among them. Every property is
// an Attribute whose Combine is monotone, so pushing requirements reaches a
// fixpoint.
package properties

import (
	"github.com/wbrown/janus-cascades/cascades/memo"
)

// Attribute is a monotone property stored per group.
type Attribute[T any] interface {
	// Name identifies the attribute in group storage.
	Name() string

	// Combine merges incoming into current. It returns false when current
	// already subsumes incoming, which is the propagation stop signal.
	Combine(current, incoming T) (T, bool)
}

// Get returns the value of attr stored in group.
func Get[T any](g *memo.Group, attr Attribute[T]) (T, bool) {
	v, ok := g.Attribute(attr.Name())
	if !ok {
		var zero T
		return zero, false
	}
	return v.(T), true
}

// Push merges value into the attribute stored in group. It reports whether
// the stored value changed.
func Push[T any](g *memo.Group, attr Attribute[T], value T) bool {
	current, ok := Get(g, attr)
	if !ok {
		g.SetAttribute(attr.Name(), value)
		return true
	}
	merged, changed := attr.Combine(current, value)
	if changed {
		g.SetAttribute(attr.Name(), merged)
	}
	return changed
}

type distinctnessAttribute struct{}

// DistinctnessAttribute records that a group's consumer does not care about
// duplicate rows. Values combine by logical OR.
var DistinctnessAttribute Attribute[bool] = distinctnessAttribute{}

func (distinctnessAttribute) Name() string { return "distinctness" }

func (distinctnessAttribute) Combine(current, incoming bool) (bool, bool) {
	if current || !incoming {
		return current, false
	}
	return true, true
}
