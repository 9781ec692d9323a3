package match

import (
	"github.com/wbrown/janus-cascades/cascades"
	"github.com/wbrown/janus-cascades/cascades/query"
)

type compensationKind int

const (
	compensationNone compensationKind = iota
	compensationNeeded
	compensationImpossible
)

// Compensation is the residual work a query must still do on top of the
// rows an index produces. Predicates range over Alias.
type Compensation struct {
	kind       compensationKind
	Alias      cascades.CorrelationIdentifier
	Predicates []query.Predicate
}

// NoCompensation is used when the index answers the sub-query exactly.
func NoCompensation() Compensation { return Compensation{} }

// ImpossibleCompensation rejects the match.
func ImpossibleCompensation() Compensation {
	return Compensation{kind: compensationImpossible}
}

// NeededCompensation re-applies preds over the rows of alias. Without
// predicates it is NoCompensation.
func NeededCompensation(alias cascades.CorrelationIdentifier, preds ...query.Predicate) Compensation {
	if len(preds) == 0 {
		return NoCompensation()
	}
	return Compensation{kind: compensationNeeded, Alias: alias, Predicates: preds}
}

// IsNeeded reports whether residual predicates must be applied.
func (c Compensation) IsNeeded() bool { return c.kind == compensationNeeded }

// IsImpossible reports whether the index cannot be used.
func (c Compensation) IsImpossible() bool { return c.kind == compensationImpossible }

// Union combines two compensations of the same stream. Impossibility wins;
// residual predicates are concatenated.
func (c Compensation) Union(other Compensation) Compensation {
	switch {
	case c.IsImpossible() || other.IsImpossible():
		return ImpossibleCompensation()
	case !c.IsNeeded():
		return other
	case !other.IsNeeded():
		return c
	}
	preds := append(append([]query.Predicate(nil), c.Predicates...), other.Predicates...)
	return Compensation{kind: compensationNeeded, Alias: c.Alias, Predicates: preds}
}

func (c Compensation) String() string {
	switch c.kind {
	case compensationNeeded:
		return "needed(" + query.And(c.Predicates...).String() + ")"
	case compensationImpossible:
		return "impossible"
	}
	return "none"
}
