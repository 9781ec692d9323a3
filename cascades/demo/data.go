// Package demo holds a small market data schema, a generator for it and a
// catalog of queries over it. The command line tools and the end-to-end
// tests plan and run against this data.
package demo

import (
	"fmt"
	"log/slog"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-cascades/cascades"
	"github.com/wbrown/janus-cascades/cascades/metadata"
	"github.com/wbrown/janus-cascades/cascades/query"
	"github.com/wbrown/janus-cascades/cascades/storage"
)

// Record types and indexes of the schema.
const (
	SymbolType = "symbol"
	BarType    = "bar"

	BarsBySymbolDay  = "bar_by_symbol_day"
	BarsByClose      = "bar_by_close"
	SymbolsBySector  = "symbol_by_sector"
	VolumeBySymbol   = "volume_by_symbol"
	BarCountBySymbol = "bar_count_by_symbol"
)

var sectors = []string{"energy", "finance", "health", "tech"}

// Schema returns the metadata of the demo data.
func Schema() *metadata.Metadata {
	md, err := metadata.NewBuilder().
		RecordType(SymbolType, "ticker").
		RecordType(BarType, "id").
		ValueIndex(BarsBySymbolDay, BarType, "symbol", "day").
		ValueIndex(BarsByClose, BarType, "close").
		ValueIndex(SymbolsBySector, SymbolType, "sector").
		AggregateIndex(VolumeBySymbol, BarType, query.Sum, "volume", "symbol").
		AggregateIndex(BarCountBySymbol, BarType, query.Count, "", "symbol").
		Build()
	if err != nil {
		panic(err)
	}
	return md
}

// DataConfig specifies what data to generate.
type DataConfig struct {
	NumSymbols int    // Number of ticker symbols
	NumDays    int    // Days of bars per symbol
	BarsPerDay int    // Bars per day (1=daily, 24=hourly)
	BatchSize  int    // Records per transaction
	OutputPath string // Badger directory for the command line tools
}

// DefaultConfig is a small dataset: 10 symbols × 30 days × 4 bars.
func DefaultConfig() DataConfig {
	return DataConfig{NumSymbols: 10, NumDays: 30, BarsPerDay: 4, BatchSize: 500, OutputPath: "testdata/cascades.db"}
}

// MediumConfig is 50 symbols × 30 days × 24 bars.
func MediumConfig() DataConfig {
	return DataConfig{NumSymbols: 50, NumDays: 30, BarsPerDay: 24, BatchSize: 1000, OutputPath: "testdata/cascades_medium.db"}
}

// LargeConfig is 200 symbols × 365 days × 24 bars.
func LargeConfig() DataConfig {
	return DataConfig{NumSymbols: 200, NumDays: 365, BarsPerDay: 24, BatchSize: 2000, OutputPath: "testdata/cascades_large.db"}
}

// ConfigNamed returns the dataset called name.
func ConfigNamed(name string) (DataConfig, error) {
	switch name {
	case "default", "":
		return DefaultConfig(), nil
	case "medium":
		return MediumConfig(), nil
	case "large":
		return LargeConfig(), nil
	}
	return DataConfig{}, errors.Newf("unknown dataset %q (use default, medium or large)", name)
}

// Ticker returns the ticker of the i-th symbol.
func Ticker(i int) string { return fmt.Sprintf("TICK%04d", i) }

// Symbols generates the symbol records.
func Symbols(cfg DataConfig) []*cascades.Record {
	out := make([]*cascades.Record, 0, cfg.NumSymbols)
	for i := 0; i < cfg.NumSymbols; i++ {
		out = append(out, cascades.NewRecord(SymbolType, map[string]cascades.Value{
			"ticker": Ticker(i),
			"name":   fmt.Sprintf("Company %d", i),
			"sector": sectors[i%len(sectors)],
		}, "ticker"))
	}
	return out
}

// Bars generates the bar records: a deterministic price walk per symbol.
func Bars(cfg DataConfig) []*cascades.Record {
	out := make([]*cascades.Record, 0, cfg.NumSymbols*cfg.NumDays*cfg.BarsPerDay)
	id := int64(0)
	for s := 0; s < cfg.NumSymbols; s++ {
		base := 100.0 + float64(s)*10.0
		for day := 0; day < cfg.NumDays; day++ {
			for bar := 0; bar < cfg.BarsPerDay; bar++ {
				id++
				open := base + float64(day)*0.1 + float64(bar)*0.01
				out = append(out, cascades.NewRecord(BarType, map[string]cascades.Value{
					"id":     id,
					"symbol": Ticker(s),
					"day":    int64(day),
					"slot":   int64(bar),
					"open":   open,
					"high":   open + 2.0,
					"low":    open - 1.5,
					"close":  open + 0.5,
					"volume": int64(1000 + (s*31+day*7+bar)%500),
				}, "id"))
			}
		}
	}
	return out
}

// Load writes the generated data to rs in batches and logs progress.
func Load(rs *storage.RecordStore, cfg DataConfig, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = 500
	}
	records := append(Symbols(cfg), Bars(cfg)...)
	for start := 0; start < len(records); start += batch {
		end := start + batch
		if end > len(records) {
			end = len(records)
		}
		if err := rs.SaveRecords(records[start:end]...); err != nil {
			return errors.Wrapf(err, "saving records %d-%d", start, end)
		}
		logger.Info("loaded records", "done", end, "total", len(records))
	}
	return nil
}
