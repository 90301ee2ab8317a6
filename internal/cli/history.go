package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/arkilian/tripbench/internal/aggregator"
	tberrors "github.com/arkilian/tripbench/internal/errors"
	"github.com/arkilian/tripbench/internal/history"
	"github.com/arkilian/tripbench/internal/report"
)

func newHistoryCommand(stdout io.Writer) *cobra.Command {
	var (
		configPath  string
		historyPath string
		limit       int
		runID       string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List stored runs, newest first, or show one run with --run",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			applyOverrides(flags, []flagOverride{
				{"history", func() { cfg.History.Path = historyPath }},
			})
			if cfg.History.Path == "" {
				return tberrors.NewConfigError("history path is required", nil)
			}

			store, err := history.Open(cfg.History.Path)
			if err != nil {
				return err
			}
			defer store.Close()

			if runID != "" {
				run, err := store.Get(cmd.Context(), runID)
				if err != nil {
					return err
				}
				if err := writeRuns(stdout, []*history.RunRecord{run}); err != nil {
					return err
				}
				fmt.Fprintln(stdout)
				return report.WriteAggregation(stdout, &aggregator.Result{KeyName: "group", Groups: run.Groups})
			}

			runs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return writeRuns(stdout, runs)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&configPath, "config", "c", "", "Config file (yaml or json)")
	flags.StringVar(&historyPath, "history", "", "Run history database")
	flags.IntVar(&limit, "limit", history.DefaultListLimit, "Maximum number of runs")
	flags.StringVar(&runID, "run", "", "Show the stored aggregation result of one run")
	return cmd
}

func writeRuns(w io.Writer, runs []*history.RunRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "run_id\tlabel\tstarted\tduration_ms\tshuffle_bytes\ttask_skew\trecords_out")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%.2f\t%d\n",
			r.RunID, r.Label, r.StartedAt.UTC().Format(time.RFC3339), r.Duration.Milliseconds(),
			r.ShuffleBytes, r.TaskSkewRatio, r.RecordsOut)
	}
	return tw.Flush()
}
