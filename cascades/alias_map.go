package cascades

import (
	"strings"
)

// AliasMap is a bijection between correlation identifiers. It is used to
// compare two expressions whose correlations differ only by a consistent
// renaming. A nil *AliasMap behaves as the empty map.
type AliasMap struct {
	forward map[CorrelationIdentifier]CorrelationIdentifier
	reverse map[CorrelationIdentifier]CorrelationIdentifier
}

// NewAliasMap creates an empty alias map.
func NewAliasMap() *AliasMap {
	return &AliasMap{
		forward: make(map[CorrelationIdentifier]CorrelationIdentifier),
		reverse: make(map[CorrelationIdentifier]CorrelationIdentifier),
	}
}

// AliasMapOf creates a map holding a single pair.
func AliasMapOf(source, target CorrelationIdentifier) *AliasMap {
	m := NewAliasMap()
	m.TryPut(source, target)
	return m
}

// IdentityMap maps every identifier in ids to itself.
func IdentityMap(ids CorrelationSet) *AliasMap {
	m := NewAliasMap()
	for id := range ids {
		m.TryPut(id, id)
	}
	return m
}

// TryPut adds source -> target. It returns false, leaving the map unchanged,
// if either side is already bound to something else.
func (m *AliasMap) TryPut(source, target CorrelationIdentifier) bool {
	if t, ok := m.forward[source]; ok {
		return t == target
	}
	if s, ok := m.reverse[target]; ok {
		return s == source
	}
	m.forward[source] = target
	m.reverse[target] = source
	return true
}

// Target returns the identifier source maps to.
func (m *AliasMap) Target(source CorrelationIdentifier) (CorrelationIdentifier, bool) {
	if m == nil {
		return CorrelationIdentifier{}, false
	}
	t, ok := m.forward[source]
	return t, ok
}

// Source returns the identifier that maps to target.
func (m *AliasMap) Source(target CorrelationIdentifier) (CorrelationIdentifier, bool) {
	if m == nil {
		return CorrelationIdentifier{}, false
	}
	s, ok := m.reverse[target]
	return s, ok
}

// Translate returns the target of id, or id itself when it is unmapped.
func (m *AliasMap) Translate(id CorrelationIdentifier) CorrelationIdentifier {
	if t, ok := m.Target(id); ok {
		return t
	}
	return id
}

// Corresponds reports whether left on the source side and right on the
// target side name the same row under this map. Unmapped identifiers only
// correspond to themselves.
func (m *AliasMap) Corresponds(left, right CorrelationIdentifier) bool {
	if t, ok := m.Target(left); ok {
		return t == right
	}
	if _, ok := m.Source(right); ok {
		return false
	}
	return left == right
}

// Len returns the number of pairs.
func (m *AliasMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.forward)
}

// Clone returns an independent copy.
func (m *AliasMap) Clone() *AliasMap {
	out := NewAliasMap()
	if m == nil {
		return out
	}
	for s, t := range m.forward {
		out.forward[s] = t
		out.reverse[t] = s
	}
	return out
}

// Combine returns the union of both maps, or false if the union is not a
// bijection.
func (m *AliasMap) Combine(other *AliasMap) (*AliasMap, bool) {
	out := m.Clone()
	if other == nil {
		return out, true
	}
	for s, t := range other.forward {
		if !out.TryPut(s, t) {
			return nil, false
		}
	}
	return out, true
}

// Inverse returns the map with source and target swapped.
func (m *AliasMap) Inverse() *AliasMap {
	out := NewAliasMap()
	if m == nil {
		return out
	}
	for s, t := range m.forward {
		out.forward[t] = s
		out.reverse[s] = t
	}
	return out
}

// Sources returns the identifiers on the source side.
func (m *AliasMap) Sources() CorrelationSet {
	out := make(CorrelationSet, m.Len())
	if m != nil {
		for s := range m.forward {
			out.Add(s)
		}
	}
	return out
}

func (m *AliasMap) String() string {
	if m == nil {
		return "{}"
	}
	var parts []string
	for _, s := range m.Sources().Sorted() {
		parts = append(parts, s.name+"->"+m.forward[s].name)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
