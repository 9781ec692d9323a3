package cascades

import (
	"bytes"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareValues(t *testing.T) {
	tests := []struct {
		name     string
		left     Value
		right    Value
		expected int
	}{
		{"nil equal", nil, nil, 0},
		{"nil first", nil, int64(1), -1},
		{"ints", int64(1), int64(2), -1},
		{"int vs float", int64(2), 1.5, 1},
		{"float vs int equal", 2.0, int64(2), 0},
		{"strings", "b", "a", 1},
		{"bools", false, true, -1},
		{"bytes", []byte{1}, []byte{1, 0}, -1},
		{"times", time.Unix(10, 0), time.Unix(5, 0), 1},
		{"tuples", Tuple{int64(1), "a"}, Tuple{int64(1), "b"}, -1},
		{"type mismatch orders by code", "a", int64(1), -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CompareValues(tt.left, tt.right))
		})
	}
}

func TestValuesEqual(t *testing.T) {
	assert.True(t, ValuesEqual(int64(3), 3.0))
	assert.True(t, ValuesEqual([]byte("x"), []byte("x")))
	assert.True(t, ValuesEqual(Tuple{"a", nil}, Tuple{"a", nil}))
	assert.False(t, ValuesEqual("a", "b"))
	assert.False(t, ValuesEqual(nil, int64(0)))
}

func TestTupleEncoding(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		tuple := Tuple{nil, int64(-5), "a\x00b", []byte{0, 1}, 2.5, true, false, Tuple{"x", nil}}
		encoded, err := EncodeTuple(tuple)
		require.NoError(t, err)

		decoded, err := DecodeTuple(encoded)
		require.NoError(t, err)
		assert.Equal(t, tuple, decoded)
	})

	t.Run("OrderPreserving", func(t *testing.T) {
		tuples := []Tuple{
			{int64(10), "b"},
			{int64(-3), "z"},
			{int64(10), "a"},
			{int64(0)},
			{int64(10), "a", int64(1)},
			{"m"},
			{"m", -1.5},
			{"m", 2.25},
			{"m", -0.5},
		}
		encoded := make([][]byte, len(tuples))
		for i, tup := range tuples {
			encoded[i] = MustEncodeTuple(tup)
		}

		byTuple := append([]Tuple(nil), tuples...)
		sort.Slice(byTuple, func(i, j int) bool { return CompareTuples(byTuple[i], byTuple[j]) < 0 })
		sort.Slice(encoded, func(i, j int) bool { return bytes.Compare(encoded[i], encoded[j]) < 0 })

		for i := range byTuple {
			decoded, err := DecodeTuple(encoded[i])
			require.NoError(t, err)
			assert.Equal(t, byTuple[i], decoded, "position %d", i)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		_, err := EncodeTuple(Tuple{struct{}{}})
		assert.ErrorIs(t, err, ErrUnsupported)
	})
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte{1, 3}, PrefixEnd([]byte{1, 2}))
	assert.Equal(t, []byte{2}, PrefixEnd([]byte{1, 0xff}))
	assert.Nil(t, PrefixEnd([]byte{0xff, 0xff}))
}
