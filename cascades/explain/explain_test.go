package explain

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-cascades/cascades"
	"github.com/wbrown/janus-cascades/cascades/expressions"
	"github.com/wbrown/janus-cascades/cascades/memo"
	"github.com/wbrown/janus-cascades/cascades/planner"
	"github.com/wbrown/janus-cascades/cascades/properties"
	"github.com/wbrown/janus-cascades/cascades/query"
)

func TestPlanTree(t *testing.T) {
	m := memo.New()
	scan := m.Insert(expressions.NewScan("order"))
	parts := []properties.OrderingPart{properties.Asc(query.CurrentField("price"))}
	root := &planner.PlanNode{
		Plan:     &expressions.SortPlan{Parts: parts, Inner: memo.ForEachOver(scan)},
		Group:    scan,
		Estimate: memo.Estimate{Rows: 30, Cost: 12.5},
		Ordering: properties.Ordering{Parts: parts},
		Enforced: true,
		Children: []*planner.PlanNode{{
			Plan:     &expressions.ScanPlan{RecordTypes: []string{"order"}},
			Group:    scan,
			Estimate: memo.Estimate{Rows: 30, Cost: 3},
		}},
	}

	var buf bytes.Buffer
	require.NoError(t, Plain(&buf).PlanTree(root))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "SortPlan("), lines[0])
	assert.Contains(t, lines[0], "rows=30 cost=12.50")
	assert.Contains(t, lines[0], "(enforced)")
	assert.Contains(t, lines[0], "order=")
	assert.Equal(t, "  └─ ScanPlan(order) G1 rows=30 cost=3.00", lines[1])
}

func TestPlanTreeWithoutPlan(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Plain(&buf).PlanTree(nil))
	assert.Equal(t, "(no plan)\n", buf.String())
}

func TestMemoTree(t *testing.T) {
	m := memo.New()
	scan := m.Insert(expressions.NewScan("order"))
	m.AddMember(scan, &expressions.ScanPlan{RecordTypes: []string{"order"}})
	m.Insert(expressions.NewTypeFilter([]string{"order"}, memo.ForEachOver(scan)))

	var buf bytes.Buffer
	require.NoError(t, Plain(&buf).MemoTree(m))
	out := buf.String()
	assert.Contains(t, out, "G1 (2 members)\n")
	assert.Contains(t, out, "  * ScanPlan(order)\n")
	assert.Contains(t, out, "G2 (1 members)\n")
}

func TestTableFormatter(t *testing.T) {
	order := func(id int64, price float64) *cascades.Record {
		return cascades.NewRecord("order", map[string]cascades.Value{"id": id, "price": price}, "id")
	}
	entry := &cascades.IndexEntry{
		Index: "order_by_price", KeyFields: []string{"price"}, Key: cascades.Tuple{int64(7)},
		PrimaryKeyFields: []string{"id"}, PrimaryKey: cascades.Tuple{int64(1)},
	}

	tests := []struct {
		name    string
		rows    []cascades.Value
		columns []string
		want    []string
	}{
		{
			name: "records",
			rows: []cascades.Value{order(1, 7), order(2, 14.5)},
			want: []string{"id", "price", "14.50", "2 rows"},
		},
		{
			name: "queried records",
			rows: []cascades.Value{&cascades.QueriedRecord{Record: order(1, 7), IndexEntry: entry}},
			want: []string{"id", "price", "7.00", "1 rows"},
		},
		{
			name: "mixed types",
			rows: []cascades.Value{order(1, 7), cascades.NewRecord("customer", map[string]cascades.Value{"id": int64(1), "name": "ann"}, "id")},
			want: []string{"type", "name", "ann", "customer"},
		},
		{
			name: "index entries",
			rows: []cascades.Value{entry},
			want: []string{"price", "id", "7"},
		},
		{
			name:    "tuples",
			rows:    []cascades.Value{cascades.Tuple{"books", int64(42)}},
			columns: []string{"category"},
			want:    []string{"category", "#1", "books", "42"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := FormatRows(tt.rows, tt.columns...)
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, "_No rows_", FormatRows(nil))
	})

	t.Run("truncates", func(t *testing.T) {
		tf := NewTableFormatter()
		tf.MaxWidth = 6
		out := tf.Format([]cascades.Value{cascades.Tuple{"abcdefghij"}})
		assert.Contains(t, out, "abc...")
		assert.NotContains(t, out, "abcdefghij")
	})
}
