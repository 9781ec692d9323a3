package memo

import (
	"github.com/wbrown/janus-cascades/cascades"
)

type groupPair struct {
	left, right GroupID
}

// SemanticEquals reports whether a and b compute the same rows once the
// correlations of a are renamed through am. Quantifiers are paired
// positionally; their aliases are added to the map before the operators are
// compared, and their groups must be equivalent.
func (m *Memo) SemanticEquals(a, b Expression, am *cascades.AliasMap) bool {
	return m.semanticEquals(a, b, am, make(map[groupPair]bool))
}

func (m *Memo) semanticEquals(a, b Expression, am *cascades.AliasMap, visiting map[groupPair]bool) bool {
	if a == b && am.Len() == 0 {
		return true
	}
	qa, qb := a.Quantifiers(), b.Quantifiers()
	if len(qa) != len(qb) {
		return false
	}
	bound := am.Clone()
	for i := range qa {
		if qa[i].Kind != qb[i].Kind {
			return false
		}
		if !bound.TryPut(qa[i].Alias, qb[i].Alias) {
			return false
		}
	}
	if !a.EqualsWithoutChildren(b, bound) {
		return false
	}
	for i := range qa {
		if !m.groupsEquivalent(qa[i].Group, qb[i].Group, bound, visiting) {
			return false
		}
	}
	return true
}

// GroupsEquivalent reports whether two groups hold semantically equal
// members under am.
func (m *Memo) GroupsEquivalent(a, b GroupID, am *cascades.AliasMap) bool {
	return m.groupsEquivalent(a, b, am, make(map[groupPair]bool))
}

func (m *Memo) groupsEquivalent(a, b GroupID, am *cascades.AliasMap, visiting map[groupPair]bool) bool {
	if a == b {
		return true
	}
	pair := groupPair{a, b}
	if visiting[pair] {
		return false
	}
	visiting[pair] = true
	defer delete(visiting, pair)

	for _, ea := range m.Group(a).members {
		for _, eb := range m.Group(b).members {
			if m.semanticEquals(ea, eb, am, visiting) {
				return true
			}
		}
	}
	return false
}
