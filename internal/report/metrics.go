// Package report compares run metrics and renders run results.
package report

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Metric names produced by a pipeline run.
const (
	MetricDuration       = "duration_seconds"
	MetricShuffleBytes   = "shuffle_bytes"
	MetricCPUUtilization = "cpu_utilization"
	MetricTaskSkewRatio  = "task_skew_ratio"
	MetricStageCount     = "stage_count"
)

// Sample is one named numeric observation.
type Sample struct {
	Metric string  `json:"metric"`
	Value  float64 `json:"value"`
}

// ParseSample parses "metric=value".
func ParseSample(s string) (Sample, error) {
	name, raw, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return Sample{}, fmt.Errorf("invalid sample %q: want metric=value", s)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return Sample{}, fmt.Errorf("invalid sample %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Sample{}, fmt.Errorf("invalid sample %q: value must be finite", s)
	}
	return Sample{Metric: name, Value: v}, nil
}

// ParseSamples parses each entry with ParseSample.
func ParseSamples(entries []string) ([]Sample, error) {
	out := make([]Sample, 0, len(entries))
	for _, e := range entries {
		s, err := ParseSample(e)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// RunMetrics is the metric snapshot of one run. It is only reported and
// compared, never fed back into computation.
type RunMetrics struct {
	Label          string        `json:"label"`
	Duration       time.Duration `json:"duration"`
	ShuffleBytes   int64         `json:"shuffle_bytes"`
	CPUUtilization float64       `json:"cpu_utilization"`
	TaskSkewRatio  float64       `json:"task_skew_ratio"`
	StageCount     int           `json:"stage_count"`
}

// Samples returns the metrics in reporting order.
func (m RunMetrics) Samples() []Sample {
	return []Sample{
		{Metric: MetricDuration, Value: m.Duration.Seconds()},
		{Metric: MetricShuffleBytes, Value: float64(m.ShuffleBytes)},
		{Metric: MetricCPUUtilization, Value: m.CPUUtilization},
		{Metric: MetricTaskSkewRatio, Value: m.TaskSkewRatio},
		{Metric: MetricStageCount, Value: float64(m.StageCount)},
	}
}
