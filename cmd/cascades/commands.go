package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/wbrown/janus-cascades/cascades/annotations"
	"github.com/wbrown/janus-cascades/cascades/config"
	"github.com/wbrown/janus-cascades/cascades/cursor"
	"github.com/wbrown/janus-cascades/cascades/demo"
	"github.com/wbrown/janus-cascades/cascades/executor"
	"github.com/wbrown/janus-cascades/cascades/explain"
	"github.com/wbrown/janus-cascades/cascades/planner"
	"github.com/wbrown/janus-cascades/cascades/rules"
	"github.com/wbrown/janus-cascades/cascades/storage"
)

// cli holds the state shared by every command.
type cli struct {
	configFile string
	engine     string
	dbPath     string
	verbose    bool
	metrics    bool

	cfg      config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "cascades",
		Short:         "plan and run queries with the cascades planner",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.loadConfig(cmd)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&c.configFile, "config", "", "config file (yaml, json or toml)")
	flags.StringVar(&c.engine, "engine", "", "store engine: memory or badger")
	flags.StringVar(&c.dbPath, "db", "", "badger database directory")
	flags.BoolVarP(&c.verbose, "verbose", "v", false, "print planner and executor events")
	flags.BoolVar(&c.metrics, "metrics", false, "print planner metrics when done")

	root.AddCommand(c.loadCmd(), c.queriesCmd(), c.explainCmd(), c.runCmd(), c.benchCmd())
	return root
}

func (c *cli) loadConfig(cmd *cobra.Command) error {
	overrides := make(map[string]any)
	if cmd.Flags().Changed("engine") {
		overrides["store.engine"] = c.engine
	}
	if cmd.Flags().Changed("db") {
		overrides["store.path"] = c.dbPath
		if !cmd.Flags().Changed("engine") {
			overrides["store.engine"] = "badger"
		}
	}
	cfg, err := config.Load(c.configFile, overrides)
	if err != nil {
		return err
	}
	c.cfg = cfg
	c.logger = cfg.Logger(cmd.ErrOrStderr())
	return nil
}

// collector gathers the handlers selected by the flags and the config.
func (c *cli) collector(cmd *cobra.Command) *annotations.Collector {
	var extra []annotations.Handler
	if c.verbose {
		extra = append(extra, annotations.NewOutputFormatter(cmd.ErrOrStderr()).Handle)
	}
	if c.metrics {
		c.registry = prometheus.NewRegistry()
		extra = append(extra, annotations.NewMetrics(c.registry).Handler())
	}
	return c.cfg.Collector(c.logger, extra...)
}

// openStore opens the configured store. The memory engine starts empty, so
// it is filled with the default dataset first.
func (c *cli) openStore() (*storage.RecordStore, error) {
	s, err := c.cfg.OpenStore()
	if err != nil {
		return nil, err
	}
	rs := storage.NewRecordStore(s, demo.Schema())
	if c.cfg.Store.Engine == "memory" {
		if err := demo.Load(rs, demo.DefaultConfig(), c.logger); err != nil {
			rs.Close()
			return nil, err
		}
	}
	return rs, nil
}

func (c *cli) planner(rs *storage.RecordStore, collector *annotations.Collector) (*planner.Planner, error) {
	stats, err := rs.Statistics()
	if err != nil {
		return nil, errors.Wrap(err, "reading statistics")
	}
	return planner.NewPlanner(planner.NewPlanContext(rs.Metadata(), stats), rules.Default(),
		c.cfg.PlannerConfiguration(collector)), nil
}

func (c *cli) printMetrics(w io.Writer) error {
	if c.registry == nil {
		return nil
	}
	families, err := c.registry.Gather()
	if err != nil {
		return err
	}
	var rows [][]string
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			value := m.GetCounter().GetValue()
			if h := m.GetHistogram(); h != nil {
				value = h.GetSampleSum()
			}
			var labels []string
			for _, lp := range m.GetLabel() {
				labels = append(labels, lp.GetName()+"="+lp.GetValue())
			}
			rows = append(rows, []string{mf.GetName(), strings.Join(labels, " "), fmt.Sprintf("%g", value)})
		}
	}
	return explain.WriteTable(w, []string{"metric", "labels", "value"}, rows)
}

func (c *cli) loadCmd() *cobra.Command {
	var dataset string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "build a badger database with generated market data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := demo.ConfigNamed(dataset)
			if err != nil {
				return err
			}
			path := c.cfg.Store.Path
			if path == "" {
				path = data.OutputPath
			}
			if err := os.RemoveAll(path); err != nil {
				return errors.Wrapf(err, "removing %s", path)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return errors.Wrapf(err, "creating %s", filepath.Dir(path))
			}
			s, err := storage.NewBadgerStore(path)
			if err != nil {
				return err
			}
			rs := storage.NewRecordStore(s, demo.Schema())
			defer rs.Close()
			if err := demo.Load(rs, data, c.logger); err != nil {
				return err
			}
			stats, err := rs.Statistics()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Built %s: %.0f symbols, %.0f bars\n",
				path, stats.Records[demo.SymbolType], stats.Records[demo.BarType])
			return nil
		},
	}
	cmd.Flags().StringVar(&dataset, "dataset", "default", "dataset size: default, medium or large")
	return cmd
}

func (c *cli) queriesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "queries",
		Short: "list the query catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var rows [][]string
			for _, q := range demo.Queries() {
				rows = append(rows, []string{q.Name, q.Description})
			}
			return explain.WriteTable(cmd.OutOrStdout(), []string{"query", "description"}, rows)
		},
	}
}

func (c *cli) explainCmd() *cobra.Command {
	var showMemo bool
	cmd := &cobra.Command{
		Use:   "explain <query>",
		Short: "show the plan chosen for a catalog query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := demo.QueryNamed(args[0])
			if err != nil {
				return err
			}
			rs, err := c.openStore()
			if err != nil {
				return err
			}
			defer rs.Close()
			p, err := c.planner(rs, c.collector(cmd))
			if err != nil {
				return err
			}
			graph := q.Graph(rs.Metadata())
			res, err := p.Plan(graph)
			if err != nil {
				return err
			}
			printer := explain.NewPrinter(cmd.OutOrStdout())
			if err := printer.Result(res); err != nil {
				return err
			}
			if showMemo {
				fmt.Fprintln(cmd.OutOrStdout())
				if err := printer.MemoTree(graph.Memo); err != nil {
					return err
				}
			}
			return c.printMetrics(cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&showMemo, "memo", false, "also print every memo group")
	return cmd
}

func (c *cli) runCmd() *cobra.Command {
	var (
		limit  int
		resume string
	)
	cmd := &cobra.Command{
		Use:   "run <query>",
		Short: "plan and execute a catalog query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := demo.QueryNamed(args[0])
			if err != nil {
				return err
			}
			start, err := cursor.ParseToken(resume)
			if err != nil {
				return err
			}

			rs, err := c.openStore()
			if err != nil {
				return err
			}
			defer rs.Close()
			collector := c.collector(cmd)
			p, err := c.planner(rs, collector)
			if err != nil {
				return err
			}
			res, err := p.Plan(q.Graph(rs.Metadata()))
			if err != nil {
				return err
			}

			ctx := context.Background()
			cur, err := executor.New(rs).WithCollector(collector).Execute(ctx, res.Root, start)
			if err != nil {
				return err
			}
			if limit > 0 {
				cur = cursor.Limit[executor.Row](cur, limit)
			}
			rows, last, err := cursor.Drain(ctx, cur)
			if err != nil {
				return err
			}

			tf := explain.NewTableFormatter()
			tf.Columns = q.Columns
			fmt.Fprintln(cmd.OutOrStdout(), tf.Format(rows))
			if last.NoNextReason() == cursor.ReturnLimitReached {
				token, err := last.Continuation().Token()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "continue with --resume '%s'\n", token)
			}
			return c.printMetrics(cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "return at most this many rows")
	cmd.Flags().StringVar(&resume, "resume", "", "continuation token printed by a limited run")
	return cmd
}

func (c *cli) benchCmd() *cobra.Command {
	var rounds int
	cmd := &cobra.Command{
		Use:   "bench",
		Short: "plan the whole catalog concurrently",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rounds < 1 {
				return errors.Newf("--rounds must be at least 1, got %d", rounds)
			}
			rs, err := c.openStore()
			if err != nil {
				return err
			}
			defer rs.Close()
			p, err := c.planner(rs, c.collector(cmd))
			if err != nil {
				return err
			}

			var names []string
			var graphs []planner.Query
			for i := 0; i < rounds; i++ {
				for _, q := range demo.Queries() {
					g := q.Graph(rs.Metadata())
					g.Key = ""
					names = append(names, q.Name)
					graphs = append(graphs, g)
				}
			}
			results, err := p.PlanAll(cmd.Context(), graphs)
			if err != nil {
				return err
			}

			var rows [][]string
			for i, res := range results[:len(demo.Queries())] {
				rows = append(rows, []string{names[i], fmt.Sprint(res.Stats.Tasks),
					fmt.Sprint(res.Stats.Groups), fmt.Sprintf("%.2f", res.Root.Estimate.Cost),
					res.Stats.Duration.String()})
			}
			headers := []string{"query", "tasks", "groups", "cost", "time"}
			if err := explain.WriteTable(cmd.OutOrStdout(), headers, rows); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "planned %d queries\n", len(results))
			return c.printMetrics(cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVar(&rounds, "rounds", 1, "times to plan every query")
	return cmd
}
