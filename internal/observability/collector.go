package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector exposes run metrics as prometheus metrics. Each collector owns
// its own registry, so concurrent runs in one process do not share state.
type Collector struct {
	registry *prometheus.Registry

	recordsLoaded   prometheus.Counter
	recordsDropped  prometheus.Counter
	recordsFiltered *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	shuffleBytes    prometheus.Gauge
	groups          prometheus.Gauge
	taskSkew        prometheus.Gauge
	cpuUtilization  prometheus.Gauge
}

// NewCollector creates a collector labelled with the run label.
func NewCollector(label string) *Collector {
	constLabels := prometheus.Labels{"run": label}

	c := &Collector{
		registry: prometheus.NewRegistry(),
		recordsLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "tripbench_records_loaded_total",
			Help:        "Total number of records loaded from the input",
			ConstLabels: constLabels,
		}),
		recordsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "tripbench_records_dropped_total",
			Help:        "Total number of malformed rows dropped by the loader",
			ConstLabels: constLabels,
		}),
		recordsFiltered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "tripbench_records_filtered_total",
			Help:        "Records removed by the cleaning filter, by first failing predicate",
			ConstLabels: constLabels,
		}, []string{"predicate"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "tripbench_stage_duration_seconds",
			Help:        "Pipeline stage duration in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"stage"}),
		shuffleBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "tripbench_shuffle_bytes",
			Help:        "Encoded bytes moved between map tasks and reducers",
			ConstLabels: constLabels,
		}),
		groups: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "tripbench_groups",
			Help:        "Number of groups in the aggregation result",
			ConstLabels: constLabels,
		}),
		taskSkew: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "tripbench_task_skew_ratio",
			Help:        "Largest map task record count over the mean",
			ConstLabels: constLabels,
		}),
		cpuUtilization: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "tripbench_cpu_utilization",
			Help:        "Process CPU time over wall time times GOMAXPROCS",
			ConstLabels: constLabels,
		}),
	}

	c.registry.MustRegister(
		c.recordsLoaded,
		c.recordsDropped,
		c.recordsFiltered,
		c.stageDuration,
		c.shuffleBytes,
		c.groups,
		c.taskSkew,
		c.cpuUtilization,
	)

	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordLoad counts loaded records and dropped rows.
func (c *Collector) RecordLoad(loaded, dropped int) {
	c.recordsLoaded.Add(float64(loaded))
	c.recordsDropped.Add(float64(dropped))
}

// RecordFiltered adds per-predicate rejection counts.
func (c *Collector) RecordFiltered(rejected map[string]int) {
	for pred, n := range rejected {
		c.recordsFiltered.WithLabelValues(pred).Add(float64(n))
	}
}

// RecordStages observes the duration of every completed stage.
func (c *Collector) RecordStages(stages []StageStats) {
	for _, s := range stages {
		c.stageDuration.WithLabelValues(s.Stage).Observe(s.Duration.Seconds())
	}
}

// SetAggregation sets the group count, shuffle bytes and task skew gauges.
func (c *Collector) SetAggregation(groups int, shuffleBytes int64, skew float64) {
	c.groups.Set(float64(groups))
	c.shuffleBytes.Set(float64(shuffleBytes))
	c.taskSkew.Set(skew)
}

// SetCPUUtilization sets the CPU utilization gauge.
func (c *Collector) SetCPUUtilization(u float64) {
	c.cpuUtilization.Set(u)
}

// WriteTextfile writes all metrics in the text exposition format, for the
// node_exporter textfile collector.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
