// Package observability tracks per-run stage timings and derived cost
// metrics, and exports them as prometheus metrics.
package observability

import (
	"sort"
	"sync"
	"time"
)

// Stage names used by the pipeline.
const (
	StageLoad      = "load"
	StageAmplify   = "amplify"
	StageFilter    = "filter"
	StageAggregate = "aggregate"
)

// RunStats records stage timings and record counts for one run.
type RunStats struct {
	mu     sync.RWMutex
	stages map[string]*StageStats
	seq    int
	now    func() time.Time
}

// StageStats holds statistics for one pipeline stage.
type StageStats struct {
	Stage      string
	Started    time.Time
	Duration   time.Duration
	RecordsIn  int
	RecordsOut int
	Done       bool
	order      int
}

// NewRunStats creates an empty tracker.
func NewRunStats() *RunStats {
	return &RunStats{
		stages: make(map[string]*StageStats),
		now:    time.Now,
	}
}

// StartStage marks the start of a stage. Starting a stage again resets it.
// This method is thread-safe.
func (r *RunStats) StartStage(stage string, recordsIn int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	r.stages[stage] = &StageStats{
		Stage:     stage,
		Started:   r.now(),
		RecordsIn: recordsIn,
		order:     r.seq,
	}
}

// EndStage marks the end of a started stage. Unknown stages are ignored.
func (r *RunStats) EndStage(stage string, recordsOut int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.stages[stage]
	if !ok {
		return
	}
	s.Duration = r.now().Sub(s.Started)
	s.RecordsOut = recordsOut
	s.Done = true
}

// Stages returns a copy of the completed stages in start order.
func (r *RunStats) Stages() []StageStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]StageStats, 0, len(r.stages))
	for _, s := range r.stages {
		if s.Done {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].order < out[j].order })
	return out
}

// StageCount returns the number of completed stages.
func (r *RunStats) StageCount() int {
	return len(r.Stages())
}

// Stage returns a copy of a single stage.
func (r *RunStats) Stage(stage string) (StageStats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.stages[stage]
	if !ok {
		return StageStats{}, false
	}
	return *s, true
}

// TaskSkewRatio returns max/mean of per-task record counts: 1.0 for a
// perfectly even split, 0 when there are no records.
func TaskSkewRatio(perTask []int) float64 {
	if len(perTask) == 0 {
		return 0
	}
	total, peak := 0, 0
	for _, n := range perTask {
		total += n
		if n > peak {
			peak = n
		}
	}
	if total == 0 {
		return 0
	}
	mean := float64(total) / float64(len(perTask))
	return float64(peak) / mean
}

// CPUUtilization returns cpu / (wall * procs), clamped to [0, 1].
func CPUUtilization(wall, cpu time.Duration, procs int) float64 {
	if wall <= 0 || cpu <= 0 || procs <= 0 {
		return 0
	}
	u := cpu.Seconds() / (wall.Seconds() * float64(procs))
	switch {
	case u < 0:
		return 0
	case u > 1:
		return 1
	}
	return u
}
