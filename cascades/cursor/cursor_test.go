package cursor

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-cascades/cascades"
	"github.com/wbrown/janus-cascades/cascades/annotations"
	"github.com/wbrown/janus-cascades/cascades/query"
)

func list[T any](t *testing.T, items ...T) Opener[T] {
	return func(_ context.Context, c Continuation) (Cursor[T], error) {
		return NewListCursor(items, c)
	}
}

func openList[T any](t *testing.T, c Continuation, items ...T) Cursor[T] {
	t.Helper()
	l, err := NewListCursor(items, c)
	require.NoError(t, err)
	return l
}

func drain[T any](t *testing.T, c Cursor[T]) ([]T, Result[T]) {
	t.Helper()
	values, last, err := Drain(context.Background(), c)
	require.NoError(t, err)
	return values, last
}

func compareInts(a, b int) int { return a - b }

// row is an aggregation input: a group key and a value.
type row struct{ key, value int64 }

func sumByKey(inner Cursor[row]) *AggregateCursor[row, cascades.Tuple] {
	agg := NewTupleAggregator(
		func(r row) (cascades.Tuple, error) { return cascades.Tuple{r.key}, nil },
		func(r row) ([]cascades.Value, error) { return []cascades.Value{r.value}, nil },
		[]*query.AggregateValue{query.Aggregate(query.Sum, query.CurrentField("value"))},
	)
	return Aggregate[row, cascades.Tuple](inner, agg)
}

func aggregateInput() []row {
	keys := []int64{0, 0, 1, 1, 2}
	values := []int64{1, 2, 3, 4, 5}
	out := make([]row, len(keys))
	for i := range keys {
		out[i] = row{keys[i], values[i]}
	}
	return out
}

func TestAggregateCursor(t *testing.T) {
	ctx := context.Background()
	input := aggregateInput()

	got, _ := drain[cascades.Tuple](t, sumByKey(openList(t, Start(), input...)))
	assert.Equal(t, []cascades.Tuple{{int64(0), int64(3)}, {int64(1), int64(7)}, {int64(2), int64(5)}}, got)

	t.Run("ResumeAfterFirstGroup", func(t *testing.T) {
		first := sumByKey(openList(t, Start(), input...))
		r, err := first.OnNext(ctx)
		require.NoError(t, err)
		require.True(t, r.HasNext())
		assert.Equal(t, cascades.Tuple{int64(0), int64(3)}, r.Value())
		require.NoError(t, first.Close())

		b, err := r.Continuation().Bytes()
		require.NoError(t, err)
		resumed := sumByKey(openList(t, FromBytes(b), input...))
		rest, _ := drain[cascades.Tuple](t, resumed)
		assert.Equal(t, []cascades.Tuple{{int64(1), int64(7)}, {int64(2), int64(5)}}, rest)
	})

	t.Run("ResumeAfterEveryGroup", func(t *testing.T) {
		c := Start()
		var all []cascades.Tuple
		for {
			cur := sumByKey(openList(t, c, input...))
			r, err := cur.OnNext(ctx)
			require.NoError(t, err)
			require.NoError(t, cur.Close())
			if !r.HasNext() {
				break
			}
			all = append(all, r.Value())
			c = r.Continuation()
		}
		assert.Equal(t, []cascades.Tuple{{int64(0), int64(3)}, {int64(1), int64(7)}, {int64(2), int64(5)}}, all)
	})

	t.Run("LastGroupContinuationIsNotTerminal", func(t *testing.T) {
		values, last := drain[cascades.Tuple](t, sumByKey(openList(t, Start(), input...)))
		require.Len(t, values, 3)
		assert.True(t, last.Continuation().IsEnd())

		cur := sumByKey(openList(t, Start(), input...))
		var lastRow Result[cascades.Tuple]
		for i := 0; i < 3; i++ {
			var err error
			lastRow, err = cur.OnNext(ctx)
			require.NoError(t, err)
		}
		assert.False(t, lastRow.Continuation().IsEnd())
	})

	t.Run("TerminalIsIdempotent", func(t *testing.T) {
		cur := sumByKey(openList(t, Start(), input...))
		_, last := drain[cascades.Tuple](t, cur)
		again, err := cur.OnNext(ctx)
		require.NoError(t, err)
		third, err := cur.OnNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, last, again)
		assert.Equal(t, again, third)
		assert.False(t, again.HasNext())
	})

	t.Run("EmptyInput", func(t *testing.T) {
		got, last := drain[cascades.Tuple](t, sumByKey(openList[row](t, Start())))
		assert.Empty(t, got)
		assert.Equal(t, SourceExhausted, last.NoNextReason())
	})

	t.Run("InnerLimitIsReported", func(t *testing.T) {
		cur := sumByKey(Limit(openList(t, Start(), input...), 3))
		got, last := drain[cascades.Tuple](t, cur)
		assert.Equal(t, []cascades.Tuple{{int64(0), int64(3)}, {int64(1), int64(3)}}, got)
		assert.Equal(t, ReturnLimitReached, last.NoNextReason())
		require.False(t, last.Continuation().IsEnd())

		again, err := cur.OnNext(ctx)
		require.NoError(t, err)
		assert.Equal(t, last, again)

		b, err := last.Continuation().Bytes()
		require.NoError(t, err)
		rest, end := drain[cascades.Tuple](t, sumByKey(openList(t, FromBytes(b), input...)))
		assert.Equal(t, []cascades.Tuple{{int64(1), int64(4)}, {int64(2), int64(5)}}, rest)
		assert.Equal(t, SourceExhausted, end.NoNextReason())
	})

	t.Run("Events", func(t *testing.T) {
		collector := annotations.NewCollector(func(annotations.Event) {})
		cur := sumByKey(openList(t, Start(), input...)).WithEvents(collector)
		drain[cascades.Tuple](t, cur)
		assert.Equal(t, 3, collector.Count(annotations.AggregateGroup))
	})
}

func TestListCursor(t *testing.T) {
	ctx := context.Background()
	l := openList(t, Start(), "a", "b", "c")
	r, err := l.OnNext(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", r.Value())

	rest, last := drain(t, openList(t, r.Continuation(), "a", "b", "c"))
	assert.Equal(t, []string{"b", "c"}, rest)
	assert.True(t, last.Continuation().IsEnd())

	got, _ := drain(t, openList(t, End(), "a", "b"))
	assert.Empty(t, got)

	_, err = NewListCursor([]string{"a"}, At([]byte("garbage")))
	assert.Error(t, err)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = openList(t, Start(), "a").OnNext(cancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTransforms(t *testing.T) {
	numbers := func() Cursor[int] { return openList(t, Start(), 1, 2, 3, 4, 5, 2, 4) }

	tests := []struct {
		name   string
		cursor Cursor[int]
		want   []int
		reason NoNextReason
	}{
		{"Map", Map[int, int](numbers(), func(v int) (int, error) { return v * 10, nil }), []int{10, 20, 30, 40, 50, 20, 40}, SourceExhausted},
		{"Filter", Filter[int](numbers(), func(v int) (bool, error) { return v%2 == 0, nil }), []int{2, 4, 2, 4}, SourceExhausted},
		{"Limit", Limit[int](numbers(), 3), []int{1, 2, 3}, ReturnLimitReached},
		{"LimitBeyondInput", Limit[int](numbers(), 100), []int{1, 2, 3, 4, 5, 2, 4}, SourceExhausted},
		{"Distinct", Distinct[int](numbers(), func(v int) (string, error) { return strconv.Itoa(v), nil }), []int{1, 2, 3, 4, 5}, SourceExhausted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, last := drain(t, tt.cursor)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.reason, last.NoNextReason())
		})
	}

	t.Run("LimitResumes", func(t *testing.T) {
		_, last := drain[int](t, Limit[int](numbers(), 2))
		require.Equal(t, ReturnLimitReached, last.NoNextReason())
		rest, _ := drain(t, openList(t, last.Continuation(), 1, 2, 3, 4, 5, 2, 4))
		assert.Equal(t, []int{3, 4, 5, 2, 4}, rest)
	})
}

func TestConcat(t *testing.T) {
	ctx := context.Background()
	inputs := []Opener[int]{list(t, 1, 2), list[int](t), list(t, 3, 4)}

	u, err := Concat(inputs, Start())
	require.NoError(t, err)
	got, _ := drain[int](t, u)
	assert.Equal(t, []int{1, 2, 3, 4}, got)

	for stop := 1; stop <= 3; stop++ {
		t.Run("ResumeAfter"+strconv.Itoa(stop), func(t *testing.T) {
			u, err := Concat(inputs, Start())
			require.NoError(t, err)
			var r Result[int]
			for i := 0; i < stop; i++ {
				r, err = u.OnNext(ctx)
				require.NoError(t, err)
			}
			require.NoError(t, u.Close())

			resumed, err := Concat(inputs, r.Continuation())
			require.NoError(t, err)
			rest, _ := drain[int](t, resumed)
			assert.Equal(t, []int{1, 2, 3, 4}[stop:], rest)
		})
	}
}

func TestMerge(t *testing.T) {
	ctx := context.Background()
	inputs := []Opener[int]{list(t, 1, 4, 7), list(t, 2, 5), list(t, 3, 6, 8)}

	m, err := Merge(ctx, inputs, compareInts, Start())
	require.NoError(t, err)
	got, _ := drain[int](t, m)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, got)

	for stop := 1; stop < 8; stop++ {
		m, err := Merge(ctx, inputs, compareInts, Start())
		require.NoError(t, err)
		var r Result[int]
		for i := 0; i < stop; i++ {
			r, err = m.OnNext(ctx)
			require.NoError(t, err)
		}
		require.NoError(t, m.Close())

		resumed, err := Merge(ctx, inputs, compareInts, r.Continuation())
		require.NoError(t, err)
		rest, _ := drain[int](t, resumed)
		assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}[stop:], rest, "resume after %d", stop)
	}
}

func TestSortCursor(t *testing.T) {
	s, err := Sort(openList(t, Start(), 3, 1, 2), compareInts, Start())
	require.NoError(t, err)
	got, _ := drain[int](t, s)
	assert.Equal(t, []int{1, 2, 3}, got)

	s, err = Sort(openList(t, Start(), 3, 1), compareInts, Start())
	require.NoError(t, err)
	r, err := s.OnNext(context.Background())
	require.NoError(t, err)
	_, err = r.Continuation().Bytes()
	assert.ErrorIs(t, err, cascades.ErrUnsupported)

	_, err = Sort(openList(t, Start(), 1), compareInts, At([]byte{1}))
	assert.ErrorIs(t, err, cascades.ErrUnsupported)
}

func TestFlatMap(t *testing.T) {
	ctx := context.Background()
	outer := list(t, 1, 2, 3)
	inner := func(_ context.Context, v int, c Continuation) (Cursor[int], error) {
		items := make([]int, v)
		for i := range items {
			items[i] = v*10 + i
		}
		return NewListCursor(items, c)
	}
	want := []int{10, 20, 21, 30, 31, 32}

	f, err := FlatMap(ctx, outer, inner, Start())
	require.NoError(t, err)
	got, _ := drain[int](t, f)
	assert.Equal(t, want, got)

	for stop := 1; stop < len(want); stop++ {
		f, err := FlatMap(ctx, outer, inner, Start())
		require.NoError(t, err)
		var r Result[int]
		for i := 0; i < stop; i++ {
			r, err = f.OnNext(ctx)
			require.NoError(t, err)
		}
		require.NoError(t, f.Close())

		resumed, err := FlatMap(ctx, outer, inner, r.Continuation())
		require.NoError(t, err)
		rest, _ := drain[int](t, resumed)
		assert.Equal(t, want[stop:], rest, "resume after %d", stop)
	}
}

// tracked records whether it was closed.
type tracked struct {
	Cursor[int]
	closed bool
}

func (c *tracked) Close() error {
	c.closed = true
	return c.Cursor.Close()
}

func TestCloseIsForwarded(t *testing.T) {
	ctx := context.Background()
	var opened []*tracked
	open := func(items ...int) Opener[int] {
		return func(_ context.Context, c Continuation) (Cursor[int], error) {
			l, err := NewListCursor(items, c)
			if err != nil {
				return nil, err
			}
			tc := &tracked{Cursor: l}
			opened = append(opened, tc)
			return tc, nil
		}
	}

	m, err := Merge(ctx, []Opener[int]{open(1), open(2)}, compareInts, Start())
	require.NoError(t, err)
	_, err = m.OnNext(ctx)
	require.NoError(t, err)
	require.NoError(t, Map[int, int](m, func(v int) (int, error) { return v, nil }).Close())
	require.Len(t, opened, 2)
	for _, c := range opened {
		assert.True(t, c.closed)
	}
}

func TestContinuation(t *testing.T) {
	assert.True(t, FromBytes(nil).IsStart())
	end, err := End().Bytes()
	require.NoError(t, err)
	assert.True(t, FromBytes(end).IsEnd())
	assert.True(t, At([]byte{1, 2}).Equal(FromBytes([]byte{1, 2})))
	assert.False(t, Start().Equal(End()))
	assert.Equal(t, "start", Start().String())
}

func TestToken(t *testing.T) {
	token, err := Start().Token()
	require.NoError(t, err)
	assert.Equal(t, "", token)
	c, err := ParseToken("")
	require.NoError(t, err)
	assert.True(t, c.IsStart())

	_, err = Unresumable().Token()
	assert.ErrorIs(t, err, cascades.ErrUnsupported)

	key, err := cascades.EncodeTuple(cascades.Tuple{"books", int64(42)})
	require.NoError(t, err)
	for _, b := range [][]byte{{0xff}, {0x00}, {0x12, 0x34}, {1, 2, 3}, {0xff, 0xff, 0xff, 0xff, 0xff}, key} {
		token, err := At(b).Token()
		require.NoError(t, err)
		got, err := ParseToken(token)
		require.NoError(t, err)
		gotBytes, err := got.Bytes()
		require.NoError(t, err)
		assert.Equal(t, b, gotBytes, "token %q", token)
	}

	t.Run("PreservesOrder", func(t *testing.T) {
		low, _ := At([]byte{0x10, 0x00, 0x00, 0x01}).Token()
		high, _ := At([]byte{0x10, 0x00, 0x00, 0x02}).Token()
		assert.Less(t, low, high)
	})

	t.Run("Malformed", func(t *testing.T) {
		for _, s := range []string{"A", "AB\"", "}}}}}"} {
			_, err := ParseToken(s)
			assert.ErrorIs(t, err, ErrBadToken, s)
		}
	})
}
