package demo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-cascades/cascades"
	"github.com/wbrown/janus-cascades/cascades/executor"
	"github.com/wbrown/janus-cascades/cascades/expressions"
	"github.com/wbrown/janus-cascades/cascades/planner"
	"github.com/wbrown/janus-cascades/cascades/rules"
	"github.com/wbrown/janus-cascades/cascades/storage"
)

var testConfig = DataConfig{NumSymbols: 4, NumDays: 24, BarsPerDay: 2, BatchSize: 50}

func loaded(t *testing.T) *storage.RecordStore {
	t.Helper()
	rs := storage.NewRecordStore(storage.NewMemStore(), Schema())
	require.NoError(t, Load(rs, testConfig, nil))
	return rs
}

func countBars(keep func(r *cascades.Record) bool) int {
	n := 0
	for _, r := range Bars(testConfig) {
		if keep(r) {
			n++
		}
	}
	return n
}

func TestGenerate(t *testing.T) {
	assert.Len(t, Symbols(testConfig), 4)
	bars := Bars(testConfig)
	require.Len(t, bars, 4*24*2)
	assert.Equal(t, int64(1), bars[0].Fields["id"])
	assert.Equal(t, Ticker(3), bars[len(bars)-1].Fields["symbol"])

	_, err := ConfigNamed("huge")
	assert.Error(t, err)
	cfg, err := ConfigNamed("medium")
	require.NoError(t, err)
	assert.Equal(t, MediumConfig(), cfg)
}

func TestLoad(t *testing.T) {
	rs := loaded(t)
	stats, err := rs.Statistics()
	require.NoError(t, err)
	assert.Equal(t, float64(4), stats.Records[SymbolType])
	assert.Equal(t, float64(4*24*2), stats.Records[BarType])
}

func TestCatalog(t *testing.T) {
	rs := loaded(t)
	stats, err := rs.Statistics()
	require.NoError(t, err)
	md := rs.Metadata()
	p := planner.NewPlanner(planner.NewPlanContext(md, stats), rules.Default(), planner.DefaultConfiguration())
	exec := executor.New(rs)

	tests := []struct {
		query string
		rows  int
		uses  func(*planner.PlanNode) bool
	}{
		{
			query: "symbol-history",
			rows:  4 * 2,
			uses: func(n *planner.PlanNode) bool {
				scan, ok := planner.Find[*expressions.IndexScanPlan](n)
				return ok && scan.Index.Name == BarsBySymbolDay
			},
		},
		{
			query: "top-closes",
			rows:  countBars(func(r *cascades.Record) bool { return r.Fields["close"].(float64) > 180 }),
		},
		{
			query: "volume-by-symbol",
			rows:  4,
			uses: func(n *planner.PlanNode) bool {
				_, ok := planner.Find[*expressions.AggregateIndexPlan](n)
				return ok
			},
		},
		{query: "bars-per-symbol", rows: 4},
		{
			query: "high-by-day",
			rows:  24,
			uses: func(n *planner.PlanNode) bool {
				_, ok := planner.Find[*expressions.StreamingAggregatePlan](n)
				return ok
			},
		},
		{query: "sector-symbols", rows: 1},
		{query: "symbol-names", rows: 4},
		{
			query: "high-closes-with-symbol",
			rows:  countBars(func(r *cascades.Record) bool { return r.Fields["close"].(float64) > 190 }),
		},
		{query: "energy-or-health", rows: 2},
	}
	require.Len(t, tests, len(Queries()), "every catalog query is covered")

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			q, err := QueryNamed(tt.query)
			require.NoError(t, err)
			res, err := p.Plan(q.Graph(md))
			require.NoError(t, err)
			if tt.uses != nil {
				assert.True(t, tt.uses(res.Root), "got\n%s", res.Root)
			}
			rows, err := exec.Run(context.Background(), res.Root)
			require.NoError(t, err)
			assert.Len(t, rows, tt.rows)
		})
	}

	t.Run("VolumeTotals", func(t *testing.T) {
		want := make(map[string]int64)
		for _, r := range Bars(testConfig) {
			want[r.Fields["symbol"].(string)] += r.Fields["volume"].(int64)
		}
		q, _ := QueryNamed("volume-by-symbol")
		res, err := p.Plan(q.Graph(md))
		require.NoError(t, err)
		rows, err := exec.Run(context.Background(), res.Root)
		require.NoError(t, err)
		got := make(map[string]int64)
		for _, row := range rows {
			tuple := row.(cascades.Tuple)
			got[tuple[0].(string)] = tuple[1].(int64)
		}
		assert.Equal(t, want, got)
	})

	t.Run("HistoryIsOrdered", func(t *testing.T) {
		q, _ := QueryNamed("symbol-history")
		res, err := p.Plan(q.Graph(md))
		require.NoError(t, err)
		rows, err := exec.Run(context.Background(), res.Root)
		require.NoError(t, err)
		var days []int64
		for _, row := range rows {
			r := row.(*cascades.QueriedRecord)
			assert.Equal(t, Ticker(1), r.Fields["symbol"])
			days = append(days, r.Fields["day"].(int64))
		}
		assert.Equal(t, []int64{20, 20, 21, 21, 22, 22, 23, 23}, days)
	})

	_, err = QueryNamed("missing")
	assert.Error(t, err)
}
