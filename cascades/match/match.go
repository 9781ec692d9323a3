// Package match relates query sub-expressions to match candidates: the
// expression shapes that declared indexes can answer. A PartialMatch is
// found bottom-up, one memo level at a time, and Compensation describes
// what the query still has to do when it uses the index.
package match

import (
	"fmt"

	"github.com/wbrown/janus-cascades/cascades"
	"github.com/wbrown/janus-cascades/cascades/memo"
	"github.com/wbrown/janus-cascades/cascades/metadata"
	"github.com/wbrown/janus-cascades/cascades/query"
)

// Candidate is an index-backed expression shape. It lives in its own memo
// and is never part of a query graph.
type Candidate struct {
	Index *metadata.Index
	Memo  *memo.Memo
	Root  memo.GroupID

	// Parameters are the placeholders of the candidate, in index key order.
	Parameters []cascades.CorrelationIdentifier

	// KeyValues are the values the index key is made of, over the rows of
	// the candidate's root, in key order.
	KeyValues []query.Value
}

// Name returns the index name.
func (c *Candidate) Name() string { return c.Index.Name }

// Leaves returns the candidate groups whose members have no quantifiers.
func (c *Candidate) Leaves() []memo.GroupID {
	var out []memo.GroupID
	for _, id := range c.Memo.Groups() {
		for _, e := range c.Memo.Group(id).Members() {
			if len(e.Quantifiers()) == 0 {
				out = append(out, id)
				break
			}
		}
	}
	return out
}

func (c *Candidate) String() string {
	return fmt.Sprintf("%s(%s on %s)", c.Index.Name, c.Index.Kind, c.Index.RecordType)
}

// Subsumable is implemented by expressions that can be matched against a
// candidate.
type Subsumable interface {
	memo.Expression

	// SubsumedBy compares the expression to a candidate expression whose
	// quantifier aliases are paired with the expression's own through am.
	// children holds the partial matches of the expression's quantifiers,
	// keyed by quantifier alias. Every returned MatchInfo is one way the
	// candidate subsumes the expression; none means no match.
	SubsumedBy(candidate memo.Expression, am *cascades.AliasMap, children map[cascades.CorrelationIdentifier]*PartialMatch) []*MatchInfo

	// Compensate returns the work left for the query when the candidate
	// is scanned with the parameters in bound.
	Compensate(pm *PartialMatch, bound map[cascades.CorrelationIdentifier]query.ComparisonRange) Compensation
}

// MatchInfo records what a subsumption aligned.
type MatchInfo struct {
	// ParameterBindings are the ranges query predicates place on candidate
	// parameters.
	ParameterBindings map[cascades.CorrelationIdentifier]query.ComparisonRange

	// Absorbed lists, per parameter, the query predicates merged into its
	// range. They are re-applied when the parameter is not used by the scan.
	Absorbed map[cascades.CorrelationIdentifier][]query.Predicate

	// Residual are query predicates no parameter could absorb.
	Residual []query.Predicate

	// Children are the partial matches of the query quantifiers.
	Children map[cascades.CorrelationIdentifier]*PartialMatch
}

// NewMatchInfo returns an empty MatchInfo over children.
func NewMatchInfo(children map[cascades.CorrelationIdentifier]*PartialMatch) *MatchInfo {
	return &MatchInfo{
		ParameterBindings: make(map[cascades.CorrelationIdentifier]query.ComparisonRange),
		Absorbed:          make(map[cascades.CorrelationIdentifier][]query.Predicate),
		Children:          children,
	}
}

// Child returns the partial match of the quantifier named alias.
func (mi *MatchInfo) Child(alias cascades.CorrelationIdentifier) (*PartialMatch, bool) {
	pm, ok := mi.Children[alias]
	return pm, ok
}

// AllBindings merges the parameter bindings of this match and every
// descendant match.
func (mi *MatchInfo) AllBindings() map[cascades.CorrelationIdentifier]query.ComparisonRange {
	out := make(map[cascades.CorrelationIdentifier]query.ComparisonRange)
	for _, child := range mi.Children {
		for p, r := range child.Info.AllBindings() {
			out[p] = r
		}
	}
	for p, r := range mi.ParameterBindings {
		out[p] = r
	}
	return out
}

// PartialMatch is a query expression subsumed by a candidate expression.
type PartialMatch struct {
	Candidate           *Candidate
	QueryGroup          memo.GroupID
	QueryExpression     memo.Expression
	CandidateGroup      memo.GroupID
	CandidateExpression memo.Expression
	AliasMap            *cascades.AliasMap
	Info                *MatchInfo
}

// IsComplete reports whether the match reached the candidate's root, which
// is when the index can replace the query group.
func (pm *PartialMatch) IsComplete() bool {
	return pm.CandidateGroup == pm.Candidate.Root
}

// Compensate returns the compensation of the query expression.
func (pm *PartialMatch) Compensate(bound map[cascades.CorrelationIdentifier]query.ComparisonRange) Compensation {
	s, ok := pm.QueryExpression.(Subsumable)
	if !ok {
		return ImpossibleCompensation()
	}
	return s.Compensate(pm, bound)
}

// BoundPrefix returns the parameters the index scan can use: the longest
// prefix of equality-bound parameters, followed by at most one
// inequality-bound parameter. The scan comparisons follow the same prefix.
func (pm *PartialMatch) BoundPrefix() (map[cascades.CorrelationIdentifier]query.ComparisonRange, query.ScanComparisons) {
	return BoundPrefix(pm.Candidate.Parameters, pm.Info.AllBindings())
}

// BoundPrefix computes the usable prefix of params under bindings.
func BoundPrefix(params []cascades.CorrelationIdentifier, bindings map[cascades.CorrelationIdentifier]query.ComparisonRange) (map[cascades.CorrelationIdentifier]query.ComparisonRange, query.ScanComparisons) {
	bound := make(map[cascades.CorrelationIdentifier]query.ComparisonRange)
	var sc query.ScanComparisons
	for _, p := range params {
		r, ok := bindings[p]
		if !ok || r.IsEmpty() {
			break
		}
		bound[p] = r
		if r.IsEquality() {
			sc.Equalities = append(sc.Equalities, r.EqualityValue())
			continue
		}
		sc.Inequality = r
		break
	}
	return bound, sc
}

// Equivalent reports whether both matches relate the same expressions.
func (pm *PartialMatch) Equivalent(other *PartialMatch) bool {
	return pm.Candidate == other.Candidate &&
		pm.QueryExpression == other.QueryExpression &&
		pm.CandidateExpression == other.CandidateExpression &&
		pm.AliasMap.String() == other.AliasMap.String()
}

func (pm *PartialMatch) String() string {
	return fmt.Sprintf("%s: %s ~ %s %s", pm.Candidate.Name(), pm.QueryGroup, pm.CandidateGroup, pm.AliasMap)
}

// PartialMatchSet is the set of partial matches of one query group.
type PartialMatchSet []*PartialMatch

// Contains reports whether an equivalent match is a member.
func (s PartialMatchSet) Contains(pm *PartialMatch) bool {
	for _, m := range s {
		if m.Equivalent(pm) {
			return true
		}
	}
	return false
}

// ForCandidate returns the members matching candidate.
func (s PartialMatchSet) ForCandidate(c *Candidate) PartialMatchSet {
	var out PartialMatchSet
	for _, m := range s {
		if m.Candidate == c {
			out = append(out, m)
		}
	}
	return out
}

// Catalog holds the candidates of a schema.
type Catalog []*Candidate

// ByName returns the candidate of the named index.
func (c Catalog) ByName(name string) (*Candidate, bool) {
	for _, cand := range c {
		if cand.Name() == name {
			return cand, true
		}
	}
	return nil, false
}
