package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/tripbench/internal/config"
	tberrors "github.com/arkilian/tripbench/internal/errors"
	"github.com/arkilian/tripbench/internal/history"
	"github.com/arkilian/tripbench/internal/report"
	"github.com/arkilian/tripbench/internal/storage"
)

const header = "vendor_id,pickup_time,dropoff_time,passenger_count,trip_distance," +
	"pickup_lon,pickup_lat,dropoff_lon,dropoff_lat,fare_amount,total_amount"

func tripRow(vendor int, distance, total float64) string {
	return fmt.Sprintf("%d,2015-01-15 19:05:39,2015-01-15 19:23:42,1,%g,-73.99,40.75,-73.97,40.76,%g,%g",
		vendor, distance, total-1, total)
}

func writeInput(t *testing.T, dir string, rows ...string) string {
	t.Helper()
	path := filepath.Join(dir, "trips.csv")
	content := header + "\n" + strings.Join(rows, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func exampleRows() []string {
	return []string{tripRow(1, 1, 10), tripRow(1, 3, 20), tripRow(2, 5, 30)}
}

func testConfig(t *testing.T, input string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Input = input
	cfg.ShufflePartitions = 3
	cfg.WorkDir = filepath.Join(t.TempDir(), "work")
	return cfg
}

func TestRun_Example(t *testing.T) {
	cfg := testConfig(t, writeInput(t, t.TempDir(), exampleRows()...))

	rep, err := Run(context.Background(), cfg, Deps{})
	require.NoError(t, err)

	require.Len(t, rep.Result.Groups, 2)
	g1, _ := rep.Result.Lookup("1")
	assert.Equal(t, int64(2), g1.TripCount)
	assert.Equal(t, 2.0, g1.AvgDistance)
	assert.Equal(t, 30.0, g1.TotalRevenue)
	g2, _ := rep.Result.Lookup("2")
	assert.Equal(t, int64(1), g2.TripCount)
	assert.Equal(t, 5.0, g2.AvgDistance)
	assert.Equal(t, 30.0, g2.TotalRevenue)

	assert.NotEmpty(t, rep.RunID)
	assert.Equal(t, 3, rep.Load.Rows)
	assert.Equal(t, 3, rep.Filter.Kept)
	assert.Equal(t, 2, rep.Metrics.StageCount)
	assert.Greater(t, rep.Metrics.ShuffleBytes, int64(0))
	assert.Nil(t, rep.Comparison)
}

func TestRun_AmplifyAndFilter(t *testing.T) {
	rows := append(exampleRows(), tripRow(2, 0, 30))
	cfg := testConfig(t, writeInput(t, t.TempDir(), rows...))
	cfg.Amplify = 2

	rep, err := Run(context.Background(), cfg, Deps{})
	require.NoError(t, err)

	assert.Equal(t, 12, rep.Filter.Input)
	assert.Equal(t, 3, rep.Filter.Removed)
	assert.Equal(t, 3, rep.Filter.Rejected["positive_distance"])
	g1, _ := rep.Result.Lookup("1")
	assert.Equal(t, int64(6), g1.TripCount)
	assert.Equal(t, 2.0, g1.AvgDistance)
	assert.Equal(t, 90.0, g1.TotalRevenue)
}

func TestRun_StrictParseError(t *testing.T) {
	rows := append(exampleRows(), "1,bad-row")
	input := writeInput(t, t.TempDir(), rows...)

	cfg := testConfig(t, input)
	cfg.Strict = true
	rep, err := Run(context.Background(), cfg, Deps{})
	assert.Nil(t, rep)
	assert.Equal(t, tberrors.ErrCategoryParse, tberrors.GetCategory(err))

	cfg = testConfig(t, input)
	rep, err = Run(context.Background(), cfg, Deps{})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Load.Dropped)
}

func TestRun_SchemaError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trips.csv")
	require.NoError(t, os.WriteFile(path, []byte("vendor_id,trip_distance\n1,2\n"), 0644))

	_, err := Run(context.Background(), testConfig(t, path), Deps{})
	assert.Equal(t, tberrors.ErrCategorySchema, tberrors.GetCategory(err))
	assert.Equal(t, tberrors.CodeMissingColumn, tberrors.GetCode(err))
}

func TestRun_InvalidConfig(t *testing.T) {
	cfg := testConfig(t, "trips.csv")
	cfg.Predicates = []string{"no_such_predicate"}
	_, err := Run(context.Background(), cfg, Deps{})
	assert.Equal(t, tberrors.ErrCategoryConfig, tberrors.GetCategory(err))

	cfg = testConfig(t, "trips.csv")
	cfg.Aggregates = []string{"median(trip_distance)"}
	_, err = Run(context.Background(), cfg, Deps{})
	assert.Equal(t, tberrors.ErrCategoryConfig, tberrors.GetCategory(err))
}

func TestRun_BeforeSamples(t *testing.T) {
	cfg := testConfig(t, writeInput(t, t.TempDir(), exampleRows()...))
	before := []report.Sample{{Metric: report.MetricStageCount, Value: 4}, {Metric: report.MetricShuffleBytes, Value: 0}}

	rep, err := Run(context.Background(), cfg, Deps{Before: before})
	require.NoError(t, err)
	require.NotNil(t, rep.Comparison)

	row, ok := rep.Comparison.Row(report.MetricStageCount)
	require.True(t, ok)
	assert.Equal(t, "-50.00%", row.ChangeText())

	row, _ = rep.Comparison.Row(report.MetricShuffleBytes)
	assert.Equal(t, report.Undefined, row.ChangeText())
}

func TestRun_HistoryBaseline(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, exampleRows()...)
	historyPath := filepath.Join(dir, "history", "runs.db")

	clock := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	now := func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	cfg := testConfig(t, input)
	cfg.Label = "before"
	cfg.History.Path = historyPath
	_, err := Run(context.Background(), cfg, Deps{Now: now})
	require.NoError(t, err)

	cfg = testConfig(t, input)
	cfg.Label = "after"
	cfg.Baseline = "before"
	cfg.History.Path = historyPath
	rep, err := Run(context.Background(), cfg, Deps{Now: now})
	require.NoError(t, err)
	require.NotNil(t, rep.Comparison)
	assert.Equal(t, "before", rep.Comparison.BeforeLabel)
	assert.Equal(t, "after", rep.Comparison.AfterLabel)

	row, ok := rep.Comparison.Row(report.MetricShuffleBytes)
	require.True(t, ok)
	assert.Equal(t, "0.00%", row.ChangeText())

	cfg = testConfig(t, input)
	cfg.Baseline = "missing"
	cfg.History.Path = historyPath
	_, err = Run(context.Background(), cfg, Deps{})
	assert.Equal(t, tberrors.CodeRunNotFound, tberrors.GetCode(err))
}

func TestRun_Outputs(t *testing.T) {
	dir := t.TempDir()
	bucketRoot := t.TempDir()
	backends := func(ctx context.Context, bucket string) (storage.ObjectStorage, error) {
		return storage.NewLocalStorage(filepath.Join(bucketRoot, bucket))
	}

	// Input fetched from a bucket, report published to one.
	require.NoError(t, os.MkdirAll(filepath.Join(bucketRoot, "bench", "raw"), 0755))
	writeInput(t, filepath.Join(bucketRoot, "bench", "raw"), exampleRows()...)

	cfg := testConfig(t, "s3://bench/raw/trips.csv")
	cfg.Metrics.Textfile = filepath.Join(dir, "metrics", "run.prom")
	cfg.Report.Output = "s3://bench/reports/run.json"

	rep, err := Run(context.Background(), cfg, Deps{Backends: backends})
	require.NoError(t, err)

	prom, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `tripbench_records_loaded_total{run="after"} 3`)
	assert.Contains(t, string(prom), `tripbench_groups{run="after"} 2`)

	data, err := os.ReadFile(filepath.Join(bucketRoot, "bench", "reports", "run.json"))
	require.NoError(t, err)
	var published report.Report
	require.NoError(t, json.Unmarshal(data, &published))
	assert.Equal(t, rep.RunID, published.RunID)
	assert.Len(t, published.Result.Groups, 2)
}

func TestRun_NoOutputsOnFailure(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, append(exampleRows(), "1,bad-row")...)

	cfg := testConfig(t, input)
	cfg.Strict = true
	cfg.Metrics.Textfile = filepath.Join(dir, "run.prom")
	cfg.Report.Output = filepath.Join(dir, "report.json")

	_, err := Run(context.Background(), cfg, Deps{})
	require.Error(t, err)
	assert.NoFileExists(t, cfg.Metrics.Textfile)
	assert.NoFileExists(t, cfg.Report.Output)
}

func TestRun_PublishFailureSkipsHistory(t *testing.T) {
	dir := t.TempDir()
	backends := func(ctx context.Context, bucket string) (storage.ObjectStorage, error) {
		return nil, fmt.Errorf("bucket %s unavailable", bucket)
	}

	cfg := testConfig(t, writeInput(t, dir, exampleRows()...))
	cfg.History.Path = filepath.Join(dir, "runs.db")
	cfg.Report.Output = "s3://bench/reports/run.json"

	_, err := Run(context.Background(), cfg, Deps{Backends: backends})
	require.Error(t, err)

	store, err := history.Open(cfg.History.Path)
	require.NoError(t, err)
	defer store.Close()
	runs, err := store.List(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}
