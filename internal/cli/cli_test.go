package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/tripbench/internal/report"
)

const header = "vendor_id,pickup_time,dropoff_time,passenger_count,trip_distance," +
	"pickup_lon,pickup_lat,dropoff_lon,dropoff_lat,fare_amount,total_amount"

func tripRow(vendor int, distance, total float64) string {
	return fmt.Sprintf("%d,2015-01-15 19:05:39,2015-01-15 19:23:42,1,%g,-73.99,40.75,-73.97,40.76,%g,%g",
		vendor, distance, total-1, total)
}

func writeInput(t *testing.T, rows ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trips.csv")
	content := header + "\n" + strings.Join(rows, "\n") + "\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func exampleInput(t *testing.T, extra ...string) string {
	rows := append([]string{tripRow(1, 1, 10), tripRow(1, 3, 20), tripRow(2, 5, 30)}, extra...)
	return writeInput(t, rows...)
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), args, strings.NewReader(""), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand(nil, &bytes.Buffer{}, &bytes.Buffer{})
	assert.Equal(t, "tripbench", cmd.Use)

	names := make(map[string]bool)
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "compare", "history", "version"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}

func TestRun_PrintsAggregationAndComparison(t *testing.T) {
	code, stdout, stderr := execute(t, "run",
		"--input", exampleInput(t),
		"--amplify", "0",
		"--shuffle-partitions", "7",
		"--before", "stage_count=4",
		"--before", "shuffle_bytes=0",
		"--work-dir", t.TempDir(),
	)
	require.Equal(t, ExitOK, code, stderr)

	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Equal(t, []string{"vendor_id", "trip_count", "avg_distance", "total_revenue"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"1", "2", "2.0000", "30.00"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"2", "1", "5.0000", "30.00"}, strings.Fields(lines[2]))
	assert.Contains(t, stdout, "-50.00%")
	assert.Contains(t, stdout, "undefined")
	assert.Contains(t, stderr, "stage complete")
}

func TestRun_ExitCodes(t *testing.T) {
	schemaInput := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(schemaInput, []byte("vendor_id\n1\n"), 0644))
	malformed := exampleInput(t, "1,oops")

	tests := []struct {
		name   string
		args   []string
		code   int
		stderr string
	}{
		{"schema error", []string{"run", "--input", schemaInput}, ExitFailure, "MISSING_COLUMN"},
		{"strict parse error", []string{"run", "--input", malformed, "--strict"}, ExitFailure, "PARSE"},
		{"lenient parse error", []string{"run", "--input", malformed}, ExitOK, ""},
		{"missing input", []string{"run"}, ExitUsage, "input is required"},
		{"zero partitions", []string{"run", "--input", malformed, "--shuffle-partitions", "0"}, ExitUsage, "shuffle_partitions"},
		{"unknown flag", []string{"run", "--nope"}, ExitUsage, "unknown flag"},
		{"bad sample", []string{"run", "--input", malformed, "--before", "x"}, ExitUsage, "invalid --before"},
		{"extra argument", []string{"run", "extra"}, ExitUsage, "unexpected argument"},
		{"missing file", []string{"run", "--input", filepath.Join(t.TempDir(), "none.csv")}, ExitFailure, "OBJECT_NOT_FOUND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append(tt.args, "--work-dir", t.TempDir())
			if tt.name == "unknown flag" || tt.name == "extra argument" {
				args = tt.args
			}
			code, _, stderr := execute(t, args...)
			assert.Equal(t, tt.code, code, stderr)
			assert.Contains(t, stderr, tt.stderr)
		})
	}
}

func TestRun_ConfigLayering(t *testing.T) {
	input := exampleInput(t)
	cfgPath := filepath.Join(t.TempDir(), "tripbench.yaml")
	yaml := fmt.Sprintf("input: %s\namplify: 3\nshuffle_partitions: 2\nwork_dir: %s\n", input, t.TempDir())
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0644))

	decode := func(stdout string) *report.Report {
		var rep report.Report
		require.NoError(t, json.Unmarshal([]byte(stdout), &rep))
		return &rep
	}

	// File only.
	code, stdout, stderr := execute(t, "run", "--config", cfgPath, "--json")
	require.Equal(t, ExitOK, code, stderr)
	rep := decode(stdout)
	assert.Equal(t, 3, rep.Amplify)
	assert.Equal(t, 2, rep.Result.Stats.ReduceTasks)

	// Environment over file.
	t.Setenv("TRIPBENCH_AMPLIFY", "1")
	code, stdout, stderr = execute(t, "run", "--config", cfgPath, "--json")
	require.Equal(t, ExitOK, code, stderr)
	assert.Equal(t, 1, decode(stdout).Amplify)

	// Flags over environment.
	code, stdout, stderr = execute(t, "run", "--config", cfgPath, "--json", "--amplify", "0", "--shuffle-partitions", "5")
	require.Equal(t, ExitOK, code, stderr)
	rep = decode(stdout)
	assert.Equal(t, 0, rep.Amplify)
	assert.Equal(t, 5, rep.Result.Stats.ReduceTasks)
	g, ok := rep.Result.Lookup("1")
	require.True(t, ok)
	assert.Equal(t, int64(2), g.TripCount)
}

func TestCompare(t *testing.T) {
	code, stdout, stderr := execute(t, "compare",
		"--before", "duration_seconds=45", "--after", "duration_seconds=28",
		"--before", "task_skew_ratio=0", "--after", "task_skew_ratio=5",
	)
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stdout, "-37.78%")
	assert.Contains(t, stdout, "undefined")

	code, _, _ = execute(t, "compare")
	assert.Equal(t, ExitUsage, code)

	code, _, _ = execute(t, "compare", "--before", "nonsense")
	assert.Equal(t, ExitUsage, code)
}

func TestHistory(t *testing.T) {
	dir := t.TempDir()
	historyPath := filepath.Join(dir, "runs.db")
	input := exampleInput(t)

	code, _, stderr := execute(t, "run", "--input", input, "--history", historyPath, "--label", "before", "--work-dir", dir)
	require.Equal(t, ExitOK, code, stderr)

	code, stdout, stderr := execute(t, "run", "--input", input, "--history", historyPath, "--baseline", "before", "--work-dir", dir)
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stdout, "stage_count")
	assert.Contains(t, stdout, "0.00%")

	code, stdout, stderr = execute(t, "history", "--history", historyPath)
	require.Equal(t, ExitOK, code, stderr)
	lines := strings.Split(strings.TrimRight(stdout, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "after", strings.Fields(lines[1])[1])
	assert.Equal(t, "before", strings.Fields(lines[2])[1])

	runID := strings.Fields(lines[2])[0]
	code, stdout, stderr = execute(t, "history", "--history", historyPath, "--run", runID)
	require.Equal(t, ExitOK, code, stderr)
	assert.Contains(t, stdout, runID)
	assert.Contains(t, stdout, "trip_count")
	assert.Contains(t, stdout, "30.00")

	code, _, _ = execute(t, "history", "--history", historyPath, "--run", "no-such-run")
	assert.Equal(t, ExitFailure, code)

	code, _, _ = execute(t, "history")
	assert.Equal(t, ExitUsage, code)
}

func TestRun_HelpListsAggregateFields(t *testing.T) {
	code, stdout, _ := execute(t, "run", "--help")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, stdout, "duration_minutes")
	assert.Contains(t, stdout, "tip_amount")
}

func TestVersion(t *testing.T) {
	code, stdout, _ := execute(t, "version")
	assert.Equal(t, ExitOK, code)
	assert.Contains(t, stdout, "tripbench")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(fmt.Errorf("boom")))
	assert.Equal(t, ExitUsage, ExitCode(&usageError{msg: "x"}))
}
