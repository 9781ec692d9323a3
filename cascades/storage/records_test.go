package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-cascades/cascades"
	"github.com/wbrown/janus-cascades/cascades/metadata"
	"github.com/wbrown/janus-cascades/cascades/query"
)

func testMetadata(t *testing.T) *metadata.Metadata {
	md, err := metadata.NewBuilder().
		RecordType("order", "id").
		RecordType("customer", "id").
		ValueIndex("order_by_price", "order", "price").
		ValueIndex("order_by_category_price", "order", "category", "price").
		AggregateIndex("revenue_by_category", "order", query.Sum, "price", "category").
		AggregateIndex("orders_by_category", "order", query.Count, "", "category").
		AggregateIndex("max_price_by_category", "order", query.Max, "price", "category").
		Build()
	require.NoError(t, err)
	return md
}

func order(id int64, category string, price int64) *cascades.Record {
	return cascades.NewRecord("order", map[string]cascades.Value{
		"id": id, "category": category, "price": price,
	}, "id")
}

func newRecordStore(t *testing.T) *RecordStore {
	rs := NewRecordStore(NewMemStore(), testMetadata(t))
	require.NoError(t, rs.SaveRecords(
		order(1, "toys", 10),
		order(2, "books", 25),
		order(3, "toys", 40),
		order(4, "garden", 5),
		order(5, "books", 15),
	))
	return rs
}

func collect[T any](s *Scanner[T], err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	defer s.Close()
	var out []T
	for s.Next() {
		out = append(out, s.Item())
	}
	return out, s.Err()
}

func ids(records []*cascades.Record) []cascades.Value {
	out := make([]cascades.Value, len(records))
	for i, r := range records {
		out[i] = r.Fields["id"]
	}
	return out
}

func entryKeys(entries []*cascades.IndexEntry) []cascades.Tuple {
	var out []cascades.Tuple
	for _, e := range entries {
		out = append(out, e.Key.Concat(e.PrimaryKey))
	}
	return out
}

func TestSaveAndLoad(t *testing.T) {
	rs := newRecordStore(t)

	r, ok, err := rs.LoadRecord("order", cascades.Tuple{int64(3)})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "toys", r.Fields["category"])
	assert.Equal(t, int64(40), r.Fields["price"])

	_, ok, err = rs.LoadRecord("order", cascades.Tuple{int64(99)})
	require.NoError(t, err)
	assert.False(t, ok)

	t.Run("UnknownType", func(t *testing.T) {
		err := rs.SaveRecords(cascades.NewRecord("invoice", map[string]cascades.Value{"id": int64(1)}, "id"))
		assert.ErrorContains(t, err, "unknown record type")
	})

	t.Run("MissingPrimaryKey", func(t *testing.T) {
		err := rs.SaveRecords(cascades.NewRecord("order", map[string]cascades.Value{"price": int64(1)}))
		assert.ErrorContains(t, err, "missing primary key field id")
	})
}

func TestScanRecords(t *testing.T) {
	rs := newRecordStore(t)
	require.NoError(t, rs.SaveRecords(cascades.NewRecord("customer", map[string]cascades.Value{"id": int64(1)}, "id")))

	got, err := collect(rs.ScanRecords([]string{"order"}, ScanOptions{}))
	require.NoError(t, err)
	assert.Equal(t, []cascades.Value{int64(1), int64(2), int64(3), int64(4), int64(5)}, ids(got))

	got, err = collect(rs.ScanRecords([]string{"order"}, ScanOptions{Reverse: true}))
	require.NoError(t, err)
	assert.Equal(t, []cascades.Value{int64(5), int64(4), int64(3), int64(2), int64(1)}, ids(got))

	got, err = collect(rs.ScanRecords([]string{"customer", "order"}, ScanOptions{}))
	require.NoError(t, err)
	assert.Len(t, got, 6)
	assert.Equal(t, "customer", got[0].Type)
}

func TestScanContinuation(t *testing.T) {
	rs := newRecordStore(t)
	for _, reverse := range []bool{false, true} {
		s, err := rs.ScanRecords([]string{"order"}, ScanOptions{Reverse: reverse})
		require.NoError(t, err)
		require.True(t, s.Next())
		require.True(t, s.Next())
		second := s.Item()
		continuation := s.Key()
		require.NoError(t, s.Close())

		rest, err := collect(rs.ScanRecords([]string{"order"}, ScanOptions{Reverse: reverse, Continuation: continuation}))
		require.NoError(t, err)
		require.Len(t, rest, 3)
		if reverse {
			assert.Equal(t, int64(4), second.Fields["id"])
			assert.Equal(t, []cascades.Value{int64(3), int64(2), int64(1)}, ids(rest))
		} else {
			assert.Equal(t, int64(2), second.Fields["id"])
			assert.Equal(t, []cascades.Value{int64(3), int64(4), int64(5)}, ids(rest))
		}
	}
}

func TestScanIndex(t *testing.T) {
	rs := newRecordStore(t)
	byPrice, _ := rs.Metadata().Index("order_by_price")
	byCategory, _ := rs.Metadata().Index("order_by_category_price")

	between := func(low, high int64) query.ComparisonRange {
		r, _ := query.EmptyRange().Merge(query.Comparison{Type: query.GreaterThanOrEquals, Operand: query.Literal(low)})
		r, _ = r.Merge(query.Comparison{Type: query.LessThan, Operand: query.Literal(high)})
		return r
	}
	equals := func(v cascades.Value) query.ComparisonRange {
		r, _ := query.EmptyRange().Merge(query.Comparison{Type: query.Equals, Operand: query.Literal(v)})
		return r
	}

	tests := []struct {
		name    string
		index   *metadata.Index
		sc      query.ScanComparisons
		reverse bool
		want    []cascades.Tuple
	}{
		{
			name:  "Full",
			index: byPrice,
			want: []cascades.Tuple{
				{int64(5), int64(4)}, {int64(10), int64(1)}, {int64(15), int64(5)}, {int64(25), int64(2)}, {int64(40), int64(3)},
			},
		},
		{
			name:  "Range",
			index: byPrice,
			sc:    query.ScanComparisons{Inequality: between(10, 25)},
			want:  []cascades.Tuple{{int64(10), int64(1)}, {int64(15), int64(5)}},
		},
		{
			name:    "RangeReverse",
			index:   byPrice,
			sc:      query.ScanComparisons{Inequality: between(10, 25)},
			reverse: true,
			want:    []cascades.Tuple{{int64(15), int64(5)}, {int64(10), int64(1)}},
		},
		{
			name:  "EqualityPrefix",
			index: byCategory,
			sc:    query.ScanComparisons{Equalities: []cascades.Value{"books"}},
			want:  []cascades.Tuple{{"books", int64(15), int64(5)}, {"books", int64(25), int64(2)}},
		},
		{
			name:  "EqualityAndRange",
			index: byCategory,
			sc:    query.ScanComparisons{Equalities: []cascades.Value{"toys"}, Inequality: between(20, 100)},
			want:  []cascades.Tuple{{"toys", int64(40), int64(3)}},
		},
		{
			name:  "EqualityOnEveryField",
			index: byCategory,
			sc:    query.ScanComparisons{Equalities: []cascades.Value{"toys"}, Inequality: equals(int64(10))},
			want:  []cascades.Tuple{{"toys", int64(10), int64(1)}},
		},
		{
			name:  "NoMatch",
			index: byCategory,
			sc:    query.ScanComparisons{Equalities: []cascades.Value{"food"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := collect(rs.ScanIndex(tt.index, tt.sc, ScanOptions{Reverse: tt.reverse}))
			require.NoError(t, err)
			assert.Equal(t, tt.want, entryKeys(got))
		})
	}

	t.Run("EntryFields", func(t *testing.T) {
		got, err := collect(rs.ScanIndex(byCategory, query.ScanComparisons{Equalities: []cascades.Value{"garden"}}, ScanOptions{}))
		require.NoError(t, err)
		require.Len(t, got, 1)
		price, ok := got[0].Get("price")
		assert.True(t, ok)
		assert.Equal(t, int64(5), price)
		id, ok := got[0].Get("id")
		assert.True(t, ok)
		assert.Equal(t, int64(4), id)
	})
}

func TestAggregateIndexMaintenance(t *testing.T) {
	rs := newRecordStore(t)
	md := rs.Metadata()
	aggregates := func(name string) map[string]cascades.Value {
		ix, ok := md.Index(name)
		require.True(t, ok)
		out := make(map[string]cascades.Value)
		rows, err := collect(rs.ScanAggregateIndex(ix, query.ScanComparisons{}, ScanOptions{}))
		require.NoError(t, err)
		for _, row := range rows {
			out[row[0].(string)] = row[1]
		}
		return out
	}

	assert.Equal(t, map[string]cascades.Value{"books": int64(40), "garden": int64(5), "toys": int64(50)}, aggregates("revenue_by_category"))
	assert.Equal(t, map[string]cascades.Value{"books": int64(2), "garden": int64(1), "toys": int64(2)}, aggregates("orders_by_category"))
	assert.Equal(t, map[string]cascades.Value{"books": int64(25), "garden": int64(5), "toys": int64(40)}, aggregates("max_price_by_category"))

	t.Run("UpdateMovesGroup", func(t *testing.T) {
		require.NoError(t, rs.SaveRecords(order(3, "garden", 30)))
		assert.Equal(t, map[string]cascades.Value{"books": int64(40), "garden": int64(35), "toys": int64(10)}, aggregates("revenue_by_category"))
		assert.Equal(t, map[string]cascades.Value{"books": int64(25), "garden": int64(30), "toys": int64(10)}, aggregates("max_price_by_category"))
	})

	t.Run("DeleteEmptiesGroup", func(t *testing.T) {
		found, err := rs.DeleteRecord("order", cascades.Tuple{int64(1)})
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, map[string]cascades.Value{"books": int64(2), "garden": int64(2)}, aggregates("orders_by_category"))

		byPrice, _ := md.Index("order_by_price")
		entries, err := collect(rs.ScanIndex(byPrice, query.ScanComparisons{}, ScanOptions{}))
		require.NoError(t, err)
		assert.Len(t, entries, 4)

		found, err = rs.DeleteRecord("order", cascades.Tuple{int64(1)})
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("SelectedGroup", func(t *testing.T) {
		ix, _ := md.Index("revenue_by_category")
		rows, err := collect(rs.ScanAggregateIndex(ix, query.ScanComparisons{Equalities: []cascades.Value{"books"}}, ScanOptions{}))
		require.NoError(t, err)
		assert.Equal(t, []cascades.Tuple{{"books", int64(40)}}, rows)
	})

	t.Run("WrongKind", func(t *testing.T) {
		ix, _ := md.Index("order_by_price")
		_, err := rs.ScanAggregateIndex(ix, query.ScanComparisons{}, ScanOptions{})
		assert.Error(t, err)
	})
}

func TestStatistics(t *testing.T) {
	rs := newRecordStore(t)
	stats, err := rs.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 5.0, stats.Records["order"])
	assert.Equal(t, 0.0, stats.Records["customer"])
	assert.Equal(t, 5.0, stats.RecordCount([]string{"order"}))
}

func TestRecordStoreOnBadger(t *testing.T) {
	s, err := NewBadgerStore(t.TempDir())
	require.NoError(t, err)
	rs := NewRecordStore(s, testMetadata(t))
	defer rs.Close()

	require.NoError(t, rs.SaveRecords(order(1, "toys", 10), order(2, "toys", 20)))
	ix, _ := rs.Metadata().Index("revenue_by_category")
	rows, err := collect(rs.ScanAggregateIndex(ix, query.ScanComparisons{}, ScanOptions{}))
	require.NoError(t, err)
	assert.Equal(t, []cascades.Tuple{{"toys", int64(30)}}, rows)
}
