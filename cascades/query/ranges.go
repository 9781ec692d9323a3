package query

import (
	"strings"

	"github.com/wbrown/janus-cascades/cascades"
)

// RangeKind classifies a ComparisonRange.
type RangeKind int

const (
	RangeEmpty RangeKind = iota
	RangeEquality
	RangeInequality
)

// ComparisonRange accumulates the simple comparisons a query places on one
// index parameter: either a single equality or a set of inequalities.
type ComparisonRange struct {
	kind         RangeKind
	equality     cascades.Value
	inequalities []Comparison
}

// EmptyRange is the unconstrained range.
func EmptyRange() ComparisonRange { return ComparisonRange{} }

// Kind returns the range kind.
func (r ComparisonRange) Kind() RangeKind { return r.kind }

// IsEmpty reports whether no comparison was merged.
func (r ComparisonRange) IsEmpty() bool { return r.kind == RangeEmpty }

// IsEquality reports whether the range pins a single value.
func (r ComparisonRange) IsEquality() bool { return r.kind == RangeEquality }

// IsInequality reports whether the range is bounded by inequalities.
func (r ComparisonRange) IsInequality() bool { return r.kind == RangeInequality }

// EqualityValue returns the pinned value of an equality range.
func (r ComparisonRange) EqualityValue() cascades.Value { return r.equality }

// Inequalities returns the merged inequality comparisons.
func (r ComparisonRange) Inequalities() []Comparison { return r.inequalities }

// Merge adds c to the range. It returns false, leaving the range unchanged,
// when c cannot be represented: non-constant operands, operators other than
// equality and inequalities, or mixing an equality with anything else.
func (r ComparisonRange) Merge(c Comparison) (ComparisonRange, bool) {
	if !c.IsSimple() || c.Type.IsUnary() {
		return r, false
	}
	switch {
	case c.Type == Equals:
		switch r.kind {
		case RangeEmpty:
			return ComparisonRange{kind: RangeEquality, equality: c.Constant()}, true
		case RangeEquality:
			// a repeated equality is absorbed
			return r, cascades.ValuesEqual(r.equality, c.Constant())
		}
		return r, false
	case c.Type.IsInequality():
		switch r.kind {
		case RangeEmpty, RangeInequality:
			out := ComparisonRange{kind: RangeInequality}
			out.inequalities = append(append([]Comparison(nil), r.inequalities...), c)
			return out, true
		}
		return r, false
	}
	return r, false
}

// Low returns the tightest lower bound and whether it is inclusive.
func (r ComparisonRange) Low() (cascades.Value, bool, bool) {
	if r.kind == RangeEquality {
		return r.equality, true, true
	}
	var (
		low       cascades.Value
		inclusive bool
		found     bool
	)
	for _, c := range r.inequalities {
		if c.Type != GreaterThan && c.Type != GreaterThanOrEquals {
			continue
		}
		v := c.Constant()
		cmp := 1
		if found {
			cmp = cascades.CompareValues(v, low)
		}
		if cmp > 0 || (cmp == 0 && c.Type == GreaterThan) {
			low, inclusive, found = v, c.Type == GreaterThanOrEquals, true
		}
	}
	return low, inclusive, found
}

// High returns the tightest upper bound and whether it is inclusive.
func (r ComparisonRange) High() (cascades.Value, bool, bool) {
	if r.kind == RangeEquality {
		return r.equality, true, true
	}
	var (
		high      cascades.Value
		inclusive bool
		found     bool
	)
	for _, c := range r.inequalities {
		if c.Type != LessThan && c.Type != LessThanOrEquals {
			continue
		}
		v := c.Constant()
		cmp := -1
		if found {
			cmp = cascades.CompareValues(v, high)
		}
		if cmp < 0 || (cmp == 0 && c.Type == LessThan) {
			high, inclusive, found = v, c.Type == LessThanOrEquals, true
		}
	}
	return high, inclusive, found
}

func (r ComparisonRange) String() string {
	switch r.kind {
	case RangeEquality:
		return "[" + cascades.FormatValue(r.equality) + "]"
	case RangeInequality:
		parts := make([]string, len(r.inequalities))
		for i, c := range r.inequalities {
			parts[i] = c.String()
		}
		return "(" + strings.Join(parts, " && ") + ")"
	}
	return "[*]"
}

// ScanComparisons describe an index scan: an equality-bound key prefix,
// optionally followed by one range-bound column.
type ScanComparisons struct {
	Equalities []cascades.Value
	Inequality ComparisonRange
}

// IsFull reports whether the comparisons scan the whole index.
func (s ScanComparisons) IsFull() bool {
	return len(s.Equalities) == 0 && s.Inequality.IsEmpty()
}

// Equal reports whether two scan comparisons are identical.
func (s ScanComparisons) Equal(other ScanComparisons) bool {
	if !cascades.Tuple(s.Equalities).Equal(other.Equalities) {
		return false
	}
	return s.Inequality.String() == other.Inequality.String()
}

func (s ScanComparisons) String() string {
	if s.IsFull() {
		return "<,>"
	}
	parts := make([]string, 0, len(s.Equalities)+1)
	for _, v := range s.Equalities {
		parts = append(parts, "["+cascades.FormatValue(v)+"]")
	}
	if !s.Inequality.IsEmpty() {
		parts = append(parts, s.Inequality.String())
	}
	return strings.Join(parts, ", ")
}
