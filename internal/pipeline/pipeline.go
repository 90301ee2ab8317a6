// Package pipeline runs one benchmark: fetch, load, amplify, filter,
// aggregate, observe and report.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"time"

	"github.com/google/uuid"

	"github.com/arkilian/tripbench/internal/aggregator"
	"github.com/arkilian/tripbench/internal/config"
	tberrors "github.com/arkilian/tripbench/internal/errors"
	"github.com/arkilian/tripbench/internal/history"
	"github.com/arkilian/tripbench/internal/ingest"
	"github.com/arkilian/tripbench/internal/observability"
	"github.com/arkilian/tripbench/internal/report"
	"github.com/arkilian/tripbench/internal/storage"
	"github.com/arkilian/tripbench/internal/transform"
	"github.com/arkilian/tripbench/pkg/types"
)

// Deps are the collaborators of a run. Zero values select defaults.
type Deps struct {
	Logger *slog.Logger

	// Backends opens object storage for s3:// locations (default S3)
	Backends storage.BackendFactory

	// Before are externally observed baseline samples, used when no
	// baseline label is configured
	Before []report.Sample

	// Now is the clock (default time.Now)
	Now func() time.Time
}

// Runner executes pipeline runs for one configuration.
type Runner struct {
	cfg      *config.Config
	deps     Deps
	log      *slog.Logger
	resolver *storage.Resolver
	key      aggregator.KeyExtractor
	specs    []aggregator.AggregateSpec
	preds    transform.PredicateSet
}

// New resolves and validates cfg and prepares a runner.
func New(cfg *config.Config, deps Deps) (*Runner, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	key, err := aggregator.KeyByName(cfg.GroupBy, cfg.GeohashPrecision)
	if err != nil {
		return nil, tberrors.NewConfigError("invalid group_by", err)
	}
	preds, err := transform.PredicatesByName(cfg.Predicates)
	if err != nil {
		return nil, tberrors.NewConfigError("invalid predicates", err)
	}
	var specs []aggregator.AggregateSpec
	for _, a := range cfg.Aggregates {
		spec, err := aggregator.ParseSpec(a)
		if err != nil {
			return nil, tberrors.NewConfigError("invalid aggregates", err)
		}
		specs = append(specs, spec)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("pipeline: create directories: %w", err)
	}

	if deps.Logger == nil {
		deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Backends == nil {
		deps.Backends = storage.S3Backends(storage.S3Config{
			Region:       cfg.Storage.S3.Region,
			Endpoint:     cfg.Storage.S3.Endpoint,
			UsePathStyle: cfg.Storage.S3.UsePathStyle,
		})
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	return &Runner{
		cfg:      cfg,
		deps:     deps,
		log:      deps.Logger,
		resolver: storage.NewResolver(cfg.WorkDir, deps.Backends),
		key:      key,
		specs:    specs,
		preds:    preds,
	}, nil
}

// Run is New followed by Runner.Run.
func Run(ctx context.Context, cfg *config.Config, deps Deps) (*report.Report, error) {
	r, err := New(cfg, deps)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}

// Run executes the pipeline. Side effects (history, metrics textfile and
// the published report) happen only after every stage has succeeded.
func (r *Runner) Run(ctx context.Context) (*report.Report, error) {
	runID := newRunID()
	log := r.log.With("run_id", runID)
	stats := observability.NewRunStats()
	started := r.deps.Now()
	cpuStart, cpuOK := observability.ProcessCPUTime()

	log.Info("run started", "input", r.cfg.Input, "amplify", r.cfg.Amplify,
		"shuffle_partitions", r.cfg.ShufflePartitions, "map_tasks", r.cfg.MapTasks)

	paths, err := r.resolver.Fetch(ctx, r.cfg.Inputs())
	if err != nil {
		return nil, fmt.Errorf("pipeline: fetch input: %w", err)
	}

	stats.StartStage(observability.StageLoad, 0)
	loaded, err := ingest.LoadFiles(ctx, paths, ingest.LoadOptions{
		InferRows: r.cfg.InferRows,
		Strict:    r.cfg.Strict,
	})
	if err != nil {
		return nil, err
	}
	stats.EndStage(observability.StageLoad, len(loaded.Records))
	if loaded.Dropped > 0 {
		log.Warn("dropped malformed rows", "dropped", loaded.Dropped, "reasons", loaded.DropReasons)
	}
	logStage(log, stats, observability.StageLoad)

	stats.StartStage(observability.StageAmplify, len(loaded.Records))
	amplified, err := transform.Amplify(loaded.Records, r.cfg.Amplify)
	if err != nil {
		return nil, fmt.Errorf("pipeline: amplify: %w", err)
	}
	stats.EndStage(observability.StageAmplify, len(amplified))
	logStage(log, stats, observability.StageAmplify)

	stats.StartStage(observability.StageFilter, len(amplified))
	cleaned, filterStats := transform.Filter(amplified, r.preds)
	stats.EndStage(observability.StageFilter, len(cleaned))
	logStage(log, stats, observability.StageFilter)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stats.StartStage(observability.StageAggregate, len(cleaned))
	result, err := aggregator.Aggregate(ctx, cleaned, aggregator.Options{
		Key:               r.key,
		Specs:             r.specs,
		MapTasks:          r.cfg.MapTasks,
		ShufflePartitions: r.cfg.ShufflePartitions,
		Parallel:          r.cfg.Parallel,
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: aggregate: %w", err)
	}
	stats.EndStage(observability.StageAggregate, len(result.Groups))
	logStage(log, stats, observability.StageAggregate)

	wall := r.deps.Now().Sub(started)
	metrics := report.RunMetrics{
		Label:         r.cfg.Label,
		Duration:      wall,
		ShuffleBytes:  result.Stats.ShuffleBytes,
		TaskSkewRatio: observability.TaskSkewRatio(result.Stats.RecordsPerTask),
		StageCount:    result.Stats.StageCount,
	}
	if cpuEnd, ok := observability.ProcessCPUTime(); ok && cpuOK {
		metrics.CPUUtilization = observability.CPUUtilization(wall, cpuEnd-cpuStart, runtime.GOMAXPROCS(0))
	}

	rep := &report.Report{
		RunID:   runID,
		Label:   r.cfg.Label,
		Input:   r.cfg.Inputs(),
		Amplify: r.cfg.Amplify,
		Load: report.LoadSummary{
			Rows:        loaded.Rows,
			Dropped:     loaded.Dropped,
			Bytes:       loaded.Bytes,
			DropReasons: loaded.DropReasons,
		},
		Filter:  filterStats,
		Result:  result,
		Metrics: metrics,
	}

	var store *history.Store
	if r.cfg.History.Path != "" {
		store, err = history.Open(r.cfg.History.Path)
		if err != nil {
			return nil, err
		}
		defer store.Close()
	}

	var base *history.RunRecord
	switch {
	case r.cfg.Baseline != "":
		base, err = store.LatestByLabel(ctx, r.cfg.Baseline)
		if err != nil {
			return nil, err
		}
		c := report.CompareLabeled(base.Label, base.Metrics().Samples(), r.cfg.Label, metrics.Samples())
		rep.Comparison = &c
	case len(r.deps.Before) > 0:
		c := report.CompareLabeled("before", r.deps.Before, r.cfg.Label, metrics.Samples())
		rep.Comparison = &c
	}
	if rep.Comparison != nil {
		for _, err := range rep.Comparison.Errors() {
			log.Warn("metric comparison undefined", "error", err)
		}
	}

	if r.cfg.Metrics.Textfile != "" {
		collector := observability.NewCollector(r.cfg.Label)
		collector.RecordLoad(len(loaded.Records), loaded.Dropped)
		collector.RecordFiltered(filterStats.Rejected)
		collector.RecordStages(stats.Stages())
		collector.SetAggregation(len(result.Groups), metrics.ShuffleBytes, metrics.TaskSkewRatio)
		collector.SetCPUUtilization(metrics.CPUUtilization)
		if err := collector.WriteTextfile(r.cfg.Metrics.Textfile); err != nil {
			return nil, fmt.Errorf("pipeline: write metrics textfile: %w", err)
		}
	}

	if r.cfg.Report.Output != "" {
		var buf bytes.Buffer
		if err := report.WriteJSON(&buf, rep); err != nil {
			return nil, fmt.Errorf("pipeline: encode report: %w", err)
		}
		if err := r.resolver.Publish(ctx, buf.Bytes(), r.cfg.Report.Output); err != nil {
			return nil, fmt.Errorf("pipeline: publish report: %w", err)
		}
	}

	// Runs are recorded only once every output has been written.
	if store != nil {
		saved := &history.RunRecord{
			RunID:          runID,
			Label:          r.cfg.Label,
			Input:          r.cfg.Inputs(),
			StartedAt:      started,
			Duration:       wall,
			ShuffleBytes:   metrics.ShuffleBytes,
			CPUUtilization: metrics.CPUUtilization,
			TaskSkewRatio:  metrics.TaskSkewRatio,
			StageCount:     metrics.StageCount,
			RecordsIn:      len(amplified),
			RecordsOut:     len(cleaned),
			Groups:         result.Groups,
			Schema:         &loaded.Schema,
		}
		if err := store.SaveRun(ctx, saved); err != nil {
			return nil, err
		}
		if base != nil && base.SchemaVersion != 0 && base.SchemaVersion != saved.SchemaVersion {
			logSchemaDrift(ctx, log, store, base.SchemaVersion, saved.SchemaVersion)
		}
	}

	log.Info("run complete", "groups", len(result.Groups), "records", len(cleaned),
		"stages", stats.StageCount(), "duration_ms", wall.Milliseconds())
	return rep, nil
}

func logSchemaDrift(ctx context.Context, log *slog.Logger, store *history.Store, from, to int) {
	added, removed, err := store.ColumnDiff(ctx, from, to)
	if err != nil {
		log.Warn("input schema differs from baseline", "baseline_version", from, "version", to, "error", err)
		return
	}
	log.Warn("input schema differs from baseline", "baseline_version", from, "version", to,
		"added", columnNames(added), "removed", columnNames(removed))
}

func columnNames(cols []types.Column) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

func logStage(log *slog.Logger, stats *observability.RunStats, stage string) {
	s, ok := stats.Stage(stage)
	if !ok {
		return
	}
	log.Info("stage complete", "stage", stage, "records", s.RecordsOut, "duration_ms", s.Duration.Milliseconds())
}

// newRunID returns a time-ordered run ID.
func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
