package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Records(t *testing.T) {
	c := NewCollector("after")

	c.RecordLoad(100, 3)
	c.RecordLoad(50, 0)
	c.RecordFiltered(map[string]int{"positive_distance": 4, "positive_fare": 1})
	c.SetAggregation(2, 1024, 1.25)
	c.SetCPUUtilization(0.5)

	assert.Equal(t, 150.0, testutil.ToFloat64(c.recordsLoaded))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.recordsDropped))
	assert.Equal(t, 4.0, testutil.ToFloat64(c.recordsFiltered.WithLabelValues("positive_distance")))
	assert.Equal(t, 1024.0, testutil.ToFloat64(c.shuffleBytes))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.groups))
	assert.Equal(t, 1.25, testutil.ToFloat64(c.taskSkew))
}

func TestCollector_IndependentRegistries(t *testing.T) {
	// Two collectors in one process must not collide on registration.
	a := NewCollector("before")
	b := NewCollector("after")
	a.RecordLoad(10, 0)

	assert.Equal(t, 10.0, testutil.ToFloat64(a.recordsLoaded))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.recordsLoaded))
}

func TestCollector_WriteTextfile(t *testing.T) {
	c := NewCollector("after")
	c.RecordLoad(7, 1)
	c.RecordStages([]StageStats{{Stage: StageLoad, Duration: 150 * time.Millisecond}})

	path := filepath.Join(t.TempDir(), "tripbench.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)

	assert.True(t, strings.Contains(text, `tripbench_records_loaded_total{run="after"} 7`), text)
	assert.Contains(t, text, `tripbench_stage_duration_seconds_count{run="after",stage="load"} 1`)
}
