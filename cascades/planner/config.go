package planner

import (
	"math"

	"github.com/wbrown/janus-cascades/cascades/annotations"
	"github.com/wbrown/janus-cascades/cascades/expressions"
	"github.com/wbrown/janus-cascades/cascades/match"
	"github.com/wbrown/janus-cascades/cascades/memo"
	"github.com/wbrown/janus-cascades/cascades/metadata"
)

// Configuration controls a planner.
type Configuration struct {
	MaxTaskCount        int                    // Abort planning after this many tasks (0 = unlimited)
	DisabledRules       []string               // Rules skipped by name
	EnableIndexMatching bool                   // Match query groups against index candidates (default: true)
	MaxConcurrentPlans  int                    // Worker bound for PlanAll (0 = runtime.NumCPU())
	Cache               *PlanCache             // Shared plan cache (optional)
	Annotations         *annotations.Collector // Planning events (optional)
}

// DefaultConfiguration returns the configuration used when none is given.
func DefaultConfiguration() Configuration {
	return Configuration{
		MaxTaskCount:        100000,
		EnableIndexMatching: true,
	}
}

// IsRuleEnabled reports whether the rule named name may fire.
func (c Configuration) IsRuleEnabled(name string) bool {
	for _, d := range c.DisabledRules {
		if d == name {
			return false
		}
	}
	return true
}

// PlanContext is what rules know about the schema the query runs against.
type PlanContext struct {
	Metadata   *metadata.Metadata
	Candidates match.Catalog
	Statistics memo.Statistics
}

// NewPlanContext builds the candidates of md. A nil stats uses
// TableStatistics with default cardinalities.
func NewPlanContext(md *metadata.Metadata, stats memo.Statistics) *PlanContext {
	if stats == nil {
		stats = TableStatistics{}
	}
	return &PlanContext{
		Metadata:   md,
		Candidates: expressions.BuildCandidates(md),
		Statistics: stats,
	}
}

// Selectivity assumed per equality-bound and range-bound index column.
const (
	equalitySelectivity = 0.1
	rangeSelectivity    = 0.3
)

// DefaultRecordCount is the cardinality of a record type with no count.
const DefaultRecordCount = 1000

// TableStatistics estimates from per-record-type counts.
type TableStatistics struct {
	Records map[string]float64
}

// RecordCount sums the counts of recordTypes.
func (s TableStatistics) RecordCount(recordTypes []string) float64 {
	total := 0.0
	for _, t := range recordTypes {
		if n, ok := s.Records[t]; ok {
			total += n
		} else {
			total += DefaultRecordCount
		}
	}
	return math.Max(total, 1)
}

// IndexSelectivity assumes independent key columns.
func (s TableStatistics) IndexSelectivity(_ string, equalities int, hasRange bool) float64 {
	sel := math.Pow(equalitySelectivity, float64(equalities))
	if hasRange {
		sel *= rangeSelectivity
	}
	return sel
}
