package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/wbrown/janus-cascades/cascades/demo"
	"github.com/wbrown/janus-cascades/cascades/storage"
)

func main() {
	configType := flag.String("config", "default", "Config type: default, medium, or large")
	output := flag.String("o", "", "Output directory (defaults to the config's path)")
	flag.Parse()

	config, err := demo.ConfigNamed(*configType)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *output != "" {
		config.OutputPath = *output
	}

	fmt.Printf("Building test database: %s\n", config.OutputPath)
	fmt.Printf("  Symbols: %d\n", config.NumSymbols)
	fmt.Printf("  Days: %d\n", config.NumDays)
	fmt.Printf("  Bars/day: %d\n", config.BarsPerDay)
	fmt.Printf("  Total bars: %d\n", config.NumSymbols*config.NumDays*config.BarsPerDay)
	fmt.Println()

	if err := os.RemoveAll(config.OutputPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to remove existing database: %v\n", err)
		os.Exit(1)
	}
	if err := os.MkdirAll(filepath.Dir(config.OutputPath), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create directory: %v\n", err)
		os.Exit(1)
	}
	s, err := storage.NewBadgerStore(config.OutputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	rs := storage.NewRecordStore(s, demo.Schema())
	defer rs.Close()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	if err := demo.Load(rs, config, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build database: %v\n", err)
		os.Exit(1)
	}

	stats, err := rs.Statistics()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get stats: %v\n", err)
		os.Exit(1)
	}
	for _, name := range rs.Metadata().RecordTypeNames() {
		fmt.Printf("  %s: %.0f records\n", name, stats.Records[name])
	}

	fmt.Println("\n✅ Done! Query this database with:")
	fmt.Printf("   cascades --db %s run volume-by-symbol\n", config.OutputPath)
}
