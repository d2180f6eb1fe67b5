package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/bibnet"
	"github.com/brunobiangulo/bibnet/export"
	"github.com/brunobiangulo/bibnet/record"
	"github.com/brunobiangulo/bibnet/stats"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bibnet",
		Short:         "Windowed bibliographic network analysis",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			format, _ := cmd.Flags().GetString("log-format")
			level, _ := cmd.Flags().GetString("log-level")
			return setupLogging(cmd.ErrOrStderr(), format, level)
		},
	}
	pf := root.PersistentFlags()
	pf.String("config", "", "Path to config file (YAML or JSON)")
	pf.String("db", "", "SQLite database for persisted runs")
	pf.String("log-format", "text", "Log format: text or json")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")

	root.AddCommand(newAnalyzeCmd(), newStatsCmd(), newSimilarCmd(), newRunsCmd(), newServeCmd())
	return root
}

// signalContext is cancelled on SIGINT/SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

func openEngine(cmd *cobra.Command) (bibnet.Engine, bibnet.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, cfg, err
	}
	e, err := bibnet.New(cfg)
	if err != nil {
		return nil, cfg, fmt.Errorf("creating engine: %w", err)
	}
	return e, cfg, nil
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <records-file>...",
		Short: "Build windowed networks and compute statistics",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAnalyze,
	}
	f := cmd.Flags()
	f.String("mode", "", "Adjacency mode: simple or bipartite")
	f.String("kind", "", "Entity kind: authors or subjects")
	f.Int("level", 0, "Subject code level (0 keeps codes, 1-3 truncate)")
	f.Bool("initials", false, "Reduce given names to initials in author keys")
	f.IntSlice("years", nil, "Only use records of these years")
	f.StringSlice("only", nil, "Keep only these entities (ids or glob patterns)")
	f.StringSlice("subjects", nil, "Keep only records with one of these subjects (ids or glob patterns)")
	f.Int("width", 0, "Window width in years")
	f.Int("start", 0, "First window key (0 with --end 0 derives the range)")
	f.Int("end", 0, "Last window key")
	f.Int("bound-min", 0, "Earliest year any window may reach")
	f.Int("bound-max", 0, "Latest year any window may reach")
	f.StringSlice("stat", nil, "Statistics to compute (repeatable)")
	f.String("groups", "", "YAML group definition for partition_modularity")
	f.String("detector", "", "Community detector: louvain or greedy")
	f.Uint64("seed", 0, "Seed for the community detector")
	f.Int("workers", 0, "Windows processed concurrently")
	f.Float64("base", 0, "Logarithm base for subject entropy")

	f.String("out", "", "Entity table CSV path (- for stdout)")
	f.String("windows-out", "", "Window table CSV path (- for stdout)")
	f.String("xlsx", "", "Write both tables to this XLSX workbook")
	f.String("delim", "semicolon", "CSV delimiter: semicolon, tab, comma or a character")
	f.String("label", "", "Header of the entity column (default from entity kind)")
	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	delim, err := parseDelim(flagString(cmd, "delim"))
	if err != nil {
		return err
	}
	e, cfg, err := openEngine(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	report, err := e.AnalyzeFiles(ctx, args...)
	if err != nil {
		return err
	}

	label := flagString(cmd, "label")
	if label == "" {
		label = entityLabel(cfg.EntityKind)
	}
	entities, err := export.EntityTable(label, report.Profiles, report.Stats,
		export.AvailableColumns(report.Stats, export.DefaultColumns))
	if err != nil {
		return fmt.Errorf("building entity table: %w", err)
	}
	windows, err := export.WindowTable(report.Stats, export.ScalarNames(report.Stats, nil))
	if err != nil {
		return fmt.Errorf("building window table: %w", err)
	}

	out := cmd.OutOrStdout()
	if err := writeTable(out, flagString(cmd, "out"), entities, delim); err != nil {
		return err
	}
	if err := writeTable(out, flagString(cmd, "windows-out"), windows, delim); err != nil {
		return err
	}
	if path := flagString(cmd, "xlsx"); path != "" {
		if err := export.WriteXLSX(path, entities, windows); err != nil {
			return fmt.Errorf("writing workbook: %w", err)
		}
		slog.Info("workbook written", "path", path)
	}

	for _, d := range report.Diagnostics {
		slog.Warn("diagnostic", "detail", d.String())
	}
	summary := out
	if flagString(cmd, "out") == "-" || flagString(cmd, "windows-out") == "-" {
		summary = cmd.ErrOrStderr()
	}
	fmt.Fprintf(summary, "records: %d  windows: %d  statistics: %d  diagnostics: %d\n",
		report.Records, report.Graphs.Len(), len(report.Stats.Statistics), len(report.Diagnostics))
	if report.RunID != "" {
		fmt.Fprintf(summary, "run: %s\n", report.RunID)
	}
	return nil
}

func writeTable(stdout io.Writer, path string, t *export.Table, delim rune) error {
	switch path {
	case "":
		return nil
	case "-":
		return export.WriteCSV(stdout, t, delim)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := export.WriteCSV(f, t, delim); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	slog.Info("table written", "table", t.Name, "path", path, "rows", len(t.Rows))
	return nil
}

func entityLabel(kind string) string {
	k, err := record.ParseKind(kind)
	if err == nil && k == record.Subjects {
		return "Subject"
	}
	return "Author_name"
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "List the available statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := stats.DefaultRegistry()
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "NAME\tPARTITION\tDESCRIPTION")
			for _, name := range reg.Names() {
				s, err := reg.Lookup(name)
				if err != nil {
					return err
				}
				needs := "-"
				if s.NeedsPartition {
					needs = "required"
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Name, needs, s.Description)
				for _, v := range s.Views {
					fmt.Fprintf(tw, "  %s\t%s\tview of %s\n", v.Name, needs, s.Name)
				}
			}
			return tw.Flush()
		},
	}
}

func newSimilarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "similar <run-id> <entity>",
		Short: "Find entities whose statistic trajectories resemble an entity's",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			k, _ := cmd.Flags().GetInt("k")
			statistic := flagString(cmd, "statistic")
			near, err := e.Similar(cmd.Context(), args[0], statistic, record.EntityID(args[1]), k)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ENTITY\tDISTANCE\tTRAJECTORY")
			for _, n := range near {
				fmt.Fprintf(tw, "%s\t%.4f\t%v\n", n.Entity, n.Distance, n.Vector)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("statistic", stats.NodeWeight, "Per-node statistic whose trajectories are compared")
	cmd.Flags().Int("k", 10, "Number of neighbours")
	return cmd
}

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List or delete persisted runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, _, err := openEngine(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if id := flagString(cmd, "delete"); id != "" {
				if err := e.DeleteRun(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
				return nil
			}

			runs, err := e.Runs(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tCREATED\tMODE\tKIND\tWIDTH\tYEARS\tRECORDS")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d-%d\t%d\n",
					r.ID, r.CreatedAt, r.Mode, r.EntityKind, r.WindowWidth, r.YearStart, r.YearEnd, r.Records)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("delete", "", "Delete the run with this id")
	return cmd
}

func flagString(cmd *cobra.Command, name string) string {
	s, _ := cmd.Flags().GetString(name)
	return s
}
