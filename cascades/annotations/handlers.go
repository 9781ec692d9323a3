package annotations

import (
	"context"
	"log/slog"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SlogHandler logs every event through logger. Errors log at error level,
// exploration steps at debug level and everything else at info level.
func SlogHandler(logger *slog.Logger) Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(event Event) {
		level := slog.LevelInfo
		switch {
		case strings.HasPrefix(event.Name, "error/"):
			level = slog.LevelError
		case event.Name == RuleFired, event.Name == ExpressionYielded, event.Name == GroupCreated,
			event.Name == RequirementPushed, event.Name == AggregateGroup:
			level = slog.LevelDebug
		}
		if !logger.Enabled(context.Background(), level) {
			return
		}
		attrs := make([]slog.Attr, 0, len(event.Data)+1)
		if event.Latency > 0 {
			attrs = append(attrs, slog.Duration("latency", event.Latency))
		}
		for k, v := range event.Data {
			attrs = append(attrs, slog.Any(k, v))
		}
		logger.LogAttrs(context.Background(), level, event.Name, attrs...)
	}
}

// Metrics are the planner and executor series fed by a MetricsHandler.
type Metrics struct {
	RulesFired      *prometheus.CounterVec
	Yields          prometheus.Counter
	PartialMatches  *prometheus.CounterVec
	GroupsCreated   prometheus.Counter
	PlanningLatency prometheus.Histogram
	PlanningErrors  prometheus.Counter
	RowsReturned    prometheus.Counter
}

// NewMetrics registers the series with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RulesFired: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cascades_rules_fired_total",
				Help: "Total number of rule invocations",
			},
			[]string{"rule"},
		),
		Yields: factory.NewCounter(prometheus.CounterOpts{
			Name: "cascades_yields_total",
			Help: "Total number of expressions yielded into the memo",
		}),
		PartialMatches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cascades_partial_matches_total",
				Help: "Total number of partial matches found",
			},
			[]string{"candidate"},
		),
		GroupsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "cascades_groups_created_total",
			Help: "Total number of memo groups created",
		}),
		PlanningLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "cascades_planning_duration_seconds",
			Help:    "Planning latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		PlanningErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "cascades_planning_errors_total",
			Help: "Total number of failed plannings",
		}),
		RowsReturned: factory.NewCounter(prometheus.CounterOpts{
			Name: "cascades_rows_returned_total",
			Help: "Total number of rows returned by executed plans",
		}),
	}
}

// Handler returns a handler that updates m.
func (m *Metrics) Handler() Handler {
	return func(event Event) {
		switch event.Name {
		case RuleFired:
			m.RulesFired.WithLabelValues(labelOf(event.Data["rule"])).Inc()
		case ExpressionYielded:
			m.Yields.Inc()
		case PartialMatchFound:
			m.PartialMatches.WithLabelValues(labelOf(event.Data["candidate"])).Inc()
		case GroupCreated:
			m.GroupsCreated.Inc()
		case PlanningComplete:
			m.PlanningLatency.Observe(event.Latency.Seconds())
		case ErrorPlanning:
			m.PlanningErrors.Inc()
		case ExecutionComplete:
			if rows, ok := event.Data["rows"].(int); ok {
				m.RowsReturned.Add(float64(rows))
			}
		}
	}
}

func labelOf(v any) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return "unknown"
}
