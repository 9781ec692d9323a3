package cascades

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
)

// CorrelationIdentifier is an opaque token standing for "the current row of
// some quantifier". Identifiers compare by value.
type CorrelationIdentifier struct {
	name string
}

var correlationCounter atomic.Uint64

// UniqueID returns a fresh identifier that has never been handed out before
// in this process.
func UniqueID() CorrelationIdentifier {
	return CorrelationIdentifier{name: fmt.Sprintf("q%d", correlationCounter.Add(1))}
}

// Named returns the identifier with the given name. Two calls with the same
// name return equal identifiers.
func Named(name string) CorrelationIdentifier {
	return CorrelationIdentifier{name: name}
}

// Name returns the identifier's name.
func (c CorrelationIdentifier) Name() string { return c.name }

// IsZero reports whether the identifier was never initialized.
func (c CorrelationIdentifier) IsZero() bool { return c.name == "" }

func (c CorrelationIdentifier) String() string { return c.name }

// CorrelationSet is a set of correlation identifiers.
type CorrelationSet map[CorrelationIdentifier]struct{}

// NewCorrelationSet creates a set holding the given identifiers.
func NewCorrelationSet(ids ...CorrelationIdentifier) CorrelationSet {
	s := make(CorrelationSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Add inserts id into the set.
func (s CorrelationSet) Add(id CorrelationIdentifier) {
	s[id] = struct{}{}
}

// Contains reports whether id is in the set.
func (s CorrelationSet) Contains(id CorrelationIdentifier) bool {
	_, ok := s[id]
	return ok
}

// Union returns a new set with the members of both sets.
func (s CorrelationSet) Union(other CorrelationSet) CorrelationSet {
	out := make(CorrelationSet, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// Minus returns a new set with the members of s not in other.
func (s CorrelationSet) Minus(other CorrelationSet) CorrelationSet {
	out := make(CorrelationSet, len(s))
	for id := range s {
		if !other.Contains(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// SubsetOf reports whether every member of s is in other.
func (s CorrelationSet) SubsetOf(other CorrelationSet) bool {
	for id := range s {
		if !other.Contains(id) {
			return false
		}
	}
	return true
}

// Sorted returns the members ordered by name.
func (s CorrelationSet) Sorted() []CorrelationIdentifier {
	out := make([]CorrelationIdentifier, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (s CorrelationSet) String() string {
	ids := s.Sorted()
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = id.name
	}
	return "{" + strings.Join(names, ", ") + "}"
}
