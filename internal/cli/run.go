package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/arkilian/tripbench/internal/aggregator"
	"github.com/arkilian/tripbench/internal/config"
	tberrors "github.com/arkilian/tripbench/internal/errors"
	"github.com/arkilian/tripbench/internal/pipeline"
	"github.com/arkilian/tripbench/internal/report"
)

type runFlags struct {
	configPath        string
	input             string
	amplify           int
	strict            bool
	shufflePartitions int
	mapTasks          int
	parallel          bool
	groupBy           string
	geohashPrecision  int
	inferRows         int
	predicates        []string
	aggregates        []string
	label             string
	baseline          string
	before            []string
	historyPath       string
	metricsTextfile   string
	reportOut         string
	workDir           string
	logFormat         string
	printJSON         bool
}

func newRunCommand(stdout, stderr io.Writer) *cobra.Command {
	f := &runFlags{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the benchmark pipeline",
		Long: `Run loads --input, amplifies it --amplify times, applies the cleaning
predicates and aggregates per --group-by key over --shuffle-partitions
reducers. It prints the aggregation result and, when a baseline is given,
a before/after comparison of the run metrics.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.config(cmd)
			if err != nil {
				return err
			}
			before, err := report.ParseSamples(f.before)
			if err != nil {
				return tberrors.NewConfigError("invalid --before", err)
			}

			rep, err := pipeline.Run(cmd.Context(), cfg, pipeline.Deps{
				Logger: newLogger(stderr, cfg.LogFormat),
				Before: before,
			})
			if err != nil {
				return err
			}
			return printRun(stdout, rep, f.printJSON)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.configPath, "config", "c", "", "Config file (yaml or json)")
	flags.StringVarP(&f.input, "input", "i", "", "Input CSV path or s3://bucket/key; comma separated for several")
	flags.IntVarP(&f.amplify, "amplify", "r", 0, "Repetition count R; the run processes R+1 copies")
	flags.BoolVar(&f.strict, "strict", false, "Fail on the first malformed row instead of dropping it")
	flags.IntVarP(&f.shufflePartitions, "shuffle-partitions", "n", 8, "Number of reducers in the merge phase")
	flags.IntVar(&f.mapTasks, "map-tasks", 0, "Number of shards in the partial phase (default shuffle-partitions)")
	flags.BoolVar(&f.parallel, "parallel", true, "Run map tasks and reducers concurrently")
	flags.StringVar(&f.groupBy, "group-by", config.GroupByVendor, "Grouping key")
	flags.IntVar(&f.geohashPrecision, "geohash-precision", 5, "Geohash length for pickup_geohash grouping")
	flags.IntVar(&f.inferRows, "infer-rows", 100, "Rows sampled by schema inference")
	flags.StringSliceVar(&f.predicates, "predicates", nil, "Cleaning predicates (default all)")
	flags.StringSliceVar(&f.aggregates, "agg", nil,
		"Extra aggregates fn(field), e.g. max(tip_amount); fields: "+strings.Join(aggregator.Fields(), ", "))
	flags.StringVar(&f.label, "label", "after", "Label of this run")
	flags.StringVar(&f.baseline, "baseline", "", "Compare against the latest stored run with this label")
	flags.StringArrayVar(&f.before, "before", nil, "Baseline sample metric=value (repeatable)")
	flags.StringVar(&f.historyPath, "history", "", "Run history database")
	flags.StringVar(&f.metricsTextfile, "metrics-textfile", "", "Write prometheus metrics to this file")
	flags.StringVar(&f.reportOut, "report-out", "", "Publish the JSON report to a path or s3:// URI")
	flags.StringVar(&f.workDir, "work-dir", "", "Scratch directory for downloaded inputs")
	flags.StringVar(&f.logFormat, "log-format", config.LogFormatText, "Log format: text or json")
	flags.BoolVar(&f.printJSON, "json", false, "Print the report as JSON instead of tables")
	return cmd
}

func (f *runFlags) config(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, err
	}
	applyOverrides(flags, []flagOverride{
		{"input", func() { cfg.Input = f.input }},
		{"amplify", func() { cfg.Amplify = f.amplify }},
		{"strict", func() { cfg.Strict = f.strict }},
		{"shuffle-partitions", func() { cfg.ShufflePartitions = f.shufflePartitions }},
		{"map-tasks", func() { cfg.MapTasks = f.mapTasks }},
		{"parallel", func() { cfg.Parallel = f.parallel }},
		{"group-by", func() { cfg.GroupBy = f.groupBy }},
		{"geohash-precision", func() { cfg.GeohashPrecision = f.geohashPrecision }},
		{"infer-rows", func() { cfg.InferRows = f.inferRows }},
		{"predicates", func() { cfg.Predicates = f.predicates }},
		{"agg", func() { cfg.Aggregates = f.aggregates }},
		{"label", func() { cfg.Label = f.label }},
		{"baseline", func() { cfg.Baseline = f.baseline }},
		{"history", func() { cfg.History.Path = f.historyPath }},
		{"metrics-textfile", func() { cfg.Metrics.Textfile = f.metricsTextfile }},
		{"report-out", func() { cfg.Report.Output = f.reportOut }},
		{"work-dir", func() { cfg.WorkDir = f.workDir }},
		{"log-format", func() { cfg.LogFormat = f.logFormat }},
	})
	return cfg, nil
}

func printRun(w io.Writer, rep *report.Report, asJSON bool) error {
	if asJSON {
		return report.WriteJSON(w, rep)
	}
	if err := report.WriteAggregation(w, rep.Result); err != nil {
		return err
	}
	if rep.Comparison != nil {
		fmt.Fprintln(w)
		return report.WriteTable(w, *rep.Comparison)
	}
	return nil
}
