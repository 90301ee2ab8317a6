package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/tripbench/internal/aggregator"
	tberrors "github.com/arkilian/tripbench/internal/errors"
	"github.com/arkilian/tripbench/pkg/types"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun(id, label string, startedAt time.Time) *RunRecord {
	return &RunRecord{
		RunID:          id,
		Label:          label,
		Input:          []string{"trips.csv", "s3://bench/feb.csv"},
		StartedAt:      startedAt,
		Duration:       1500 * time.Millisecond,
		ShuffleBytes:   4096,
		CPUUtilization: 0.75,
		TaskSkewRatio:  1.25,
		StageCount:     2,
		RecordsIn:      300,
		RecordsOut:     280,
		Groups: []aggregator.Group{
			{Key: "1", TripCount: 2, AvgDistance: 2, TotalRevenue: 30},
			{Key: "2", TripCount: 1, AvgDistance: 5, TotalRevenue: 30},
		},
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	started := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(ctx, sampleRun("run-1", "before", started)))

	got, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "before", got.Label)
	assert.Equal(t, []string{"trips.csv", "s3://bench/feb.csv"}, got.Input)
	assert.True(t, got.StartedAt.Equal(started))
	assert.Equal(t, 1500*time.Millisecond, got.Duration)
	assert.Equal(t, int64(4096), got.ShuffleBytes)
	assert.Equal(t, 0.75, got.CPUUtilization)
	assert.Equal(t, 280, got.RecordsOut)
	require.Len(t, got.Groups, 2)
	assert.Equal(t, aggregator.Group{Key: "1", TripCount: 2, AvgDistance: 2, TotalRevenue: 30}, got.Groups[0])

	m := got.Metrics()
	assert.Equal(t, "before", m.Label)
	assert.Equal(t, 1.25, m.TaskSkewRatio)
	assert.Equal(t, 2, m.StageCount)
}

func TestStore_DuplicateRunID(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveRun(ctx, sampleRun("run-1", "before", time.Now())))
	assert.Error(t, s.SaveRun(ctx, sampleRun("run-1", "after", time.Now())))

	got, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "before", got.Label)
}

func TestStore_LatestByLabel(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(ctx, sampleRun("old", "before", base)))
	require.NoError(t, s.SaveRun(ctx, sampleRun("new", "before", base.Add(time.Hour))))
	require.NoError(t, s.SaveRun(ctx, sampleRun("other", "after", base.Add(2*time.Hour))))

	got, err := s.LatestByLabel(ctx, "before")
	require.NoError(t, err)
	assert.Equal(t, "new", got.RunID)
	assert.Len(t, got.Groups, 2)

	_, err = s.LatestByLabel(ctx, "missing")
	assert.Equal(t, tberrors.ErrCategoryHistory, tberrors.GetCategory(err))
	assert.Equal(t, tberrors.CodeRunNotFound, tberrors.GetCode(err))

	_, err = s.Get(ctx, "nope")
	assert.Equal(t, tberrors.CodeRunNotFound, tberrors.GetCode(err))
}

func TestStore_List(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveRun(ctx, sampleRun(id, "after", base.Add(time.Duration(i)*time.Minute))))
	}

	runs, err := s.List(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].RunID)
	assert.Equal(t, "b", runs[1].RunID)
	assert.Nil(t, runs[0].Groups)

	runs, err = s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.SaveRun(ctx, sampleRun("run-1", "before", time.Now())))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Get(ctx, "run-1")
	assert.NoError(t, err)
}

func TestStore_SchemaVersions(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	v1 := types.Schema{Columns: []types.Column{
		{Name: types.ColVendorID, Type: types.TypeInteger, Required: true},
		{Name: types.ColTripDistance, Type: types.TypeFloat, Required: true},
	}}
	v2 := types.Schema{Columns: []types.Column{
		{Name: types.ColVendorID, Type: types.TypeInteger, Required: true},
		{Name: types.ColTipAmount, Type: types.TypeFloat},
	}}

	version, err := s.CurrentSchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, version)

	runs := []struct {
		id     string
		schema *types.Schema
		want   int
	}{
		{"a", &v1, 1},
		{"b", &v1, 1},
		{"c", &v2, 2},
		{"d", nil, 0},
		{"e", &v1, 1},
		{"f", &v2, 2},
	}
	for i, tt := range runs {
		run := sampleRun(tt.id, "after", base.Add(time.Duration(i)*time.Minute))
		run.Schema = tt.schema
		require.NoError(t, s.SaveRun(ctx, run))
		assert.Equal(t, tt.want, run.SchemaVersion, tt.id)

		got, err := s.Get(ctx, tt.id)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.SchemaVersion, tt.id)
	}

	// A schema seen before keeps its version, even after another schema.
	version, err = s.CurrentSchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	rec, err := s.SchemaVersion(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, v1, rec.Schema)

	added, removed, err := s.ColumnDiff(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, types.ColTipAmount, added[0].Name)
	require.Len(t, removed, 1)
	assert.Equal(t, types.ColTripDistance, removed[0].Name)

	_, err = s.SchemaVersion(ctx, 9)
	assert.Error(t, err)
}
