package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/arkilian/tripbench/internal/aggregator"
	"github.com/arkilian/tripbench/internal/transform"
)

// LoadSummary describes the loader's work for a run.
type LoadSummary struct {
	Rows        int      `json:"rows"`
	Dropped     int      `json:"dropped"`
	Bytes       int64    `json:"bytes"`
	DropReasons []string `json:"drop_reasons,omitempty"`
}

// Report is the complete, publishable outcome of a run.
type Report struct {
	RunID      string                `json:"run_id"`
	Label      string                `json:"label"`
	Input      []string              `json:"input"`
	Amplify    int                   `json:"amplify"`
	Load       LoadSummary           `json:"load"`
	Filter     transform.FilterStats `json:"filter"`
	Result     *aggregator.Result    `json:"result"`
	Metrics    RunMetrics            `json:"metrics"`
	Comparison *Comparison           `json:"comparison,omitempty"`
}

// WriteJSON writes r as indented JSON.
func WriteJSON(w io.Writer, r *Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteTable writes c as an aligned text table.
func WriteTable(w io.Writer, c Comparison) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "metric\t%s\t%s\tchange\t\n", c.BeforeLabel, c.AfterLabel)
	for _, r := range c.Rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", r.Metric, formatValue(r.Before), formatValue(r.After), r.ChangeText())
	}
	return tw.Flush()
}

// WriteAggregation writes one line per group: the key, the benchmark
// columns and any extra aggregates.
func WriteAggregation(w io.Writer, res *aggregator.Result) error {
	defaults := make(map[string]bool)
	for _, s := range aggregator.DefaultSpecs() {
		defaults[s.Name()] = true
	}
	var extra []string
	for _, name := range res.Specs {
		if !defaults[name] {
			extra = append(extra, name)
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "%s\ttrip_count\tavg_distance\ttotal_revenue\t", res.KeyName)
	for _, name := range extra {
		fmt.Fprintf(tw, "%s\t", name)
	}
	fmt.Fprintln(tw)

	for _, g := range res.Groups {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t", g.Key, g.TripCount, fixed(g.AvgDistance, 4), fixed(g.TotalRevenue, 2))
		for _, name := range extra {
			fmt.Fprintf(tw, "%s\t", fixed(g.Values[name], 4))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func fixed(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
