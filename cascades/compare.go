package cascades

import (
	"bytes"
	"fmt"
	"strings"
	"time"
)

// CompareValues compares two values and returns:
//
//	-1 if left < right
//	 0 if left == right
//	 1 if left > right
//
// Nil sorts before every non-nil value. Integers and floats compare
// numerically with each other. Values of unrelated types order by their type
// code so that mixed-type sorts are still total.
func CompareValues(left, right Value) int {
	// Handle nil
	if left == nil && right == nil {
		return 0
	}
	if left == nil {
		return -1
	}
	if right == nil {
		return 1
	}

	switch l := left.(type) {
	case int:
		return compareNumeric(int64(l), right)
	case int64:
		return compareNumeric(l, right)
	case float64:
		return compareFloat(l, right)
	case string:
		if r, ok := right.(string); ok {
			return strings.Compare(l, r)
		}
	case []byte:
		if r, ok := right.([]byte); ok {
			return bytes.Compare(l, r)
		}
	case bool:
		if r, ok := right.(bool); ok {
			if !l && r {
				return -1
			} else if l && !r {
				return 1
			}
			return 0
		}
	case time.Time:
		if r, ok := right.(time.Time); ok {
			if l.Before(r) {
				return -1
			} else if l.After(r) {
				return 1
			}
			return 0
		}
	case Tuple:
		if r, ok := right.(Tuple); ok {
			return CompareTuples(l, r)
		}
	}

	// Type mismatch: order by type code
	lt, rt := typeCode(left), typeCode(right)
	if lt != rt {
		return compareInt64s(int64(lt), int64(rt))
	}

	// Fall back to string comparison for unknown types
	return strings.Compare(fmt.Sprintf("%v", left), fmt.Sprintf("%v", right))
}

// CompareTuples compares two tuples element by element. A tuple that is a
// strict prefix of the other sorts first.
func CompareTuples(left, right Tuple) int {
	n := len(left)
	if len(right) < n {
		n = len(right)
	}
	for i := 0; i < n; i++ {
		if c := CompareValues(left[i], right[i]); c != 0 {
			return c
		}
	}
	return compareInt64s(int64(len(left)), int64(len(right)))
}

// compareNumeric compares an int64 with another numeric value
func compareNumeric(left int64, right Value) int {
	switch r := right.(type) {
	case int:
		return compareInt64s(left, int64(r))
	case int64:
		return compareInt64s(left, r)
	case float64:
		return compareFloats(float64(left), r)
	}
	return compareInt64s(int64(typeCode(left)), int64(typeCode(right)))
}

// compareFloat compares a float64 with another numeric value
func compareFloat(left float64, right Value) int {
	switch r := right.(type) {
	case int:
		return compareFloats(left, float64(r))
	case int64:
		return compareFloats(left, float64(r))
	case float64:
		return compareFloats(left, r)
	}
	return compareInt64s(int64(typeCode(left)), int64(typeCode(right)))
}

// compareInt64s compares two int64 values
func compareInt64s(a, b int64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

// compareFloats compares two float64 values
func compareFloats(a, b float64) int {
	if a < b {
		return -1
	} else if a > b {
		return 1
	}
	return 0
}

// ValuesEqual checks if two values are equal.
// It uses CompareValues for consistent equality checking.
func ValuesEqual(a, b Value) bool {
	switch a.(type) {
	case []byte, Tuple, time.Time:
		return CompareValues(a, b) == 0
	}
	switch b.(type) {
	case []byte, Tuple, time.Time:
		return CompareValues(a, b) == 0
	}
	// Quick check for identity
	if a == b {
		return true
	}
	return CompareValues(a, b) == 0
}
