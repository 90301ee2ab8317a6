package report

import (
	"math"
	"strconv"
	"strings"

	tberrors "github.com/arkilian/tripbench/internal/errors"
)

// Undefined is rendered for a percent change that cannot be computed.
const Undefined = "undefined"

// missing is rendered for a metric absent from one side.
const missing = "n/a"

// PercentChange returns (after-before)/before*100 rounded to 2 decimals.
// A zero or non-finite baseline is a MetricError.
func PercentChange(metric string, before, after float64) (float64, error) {
	if before == 0 {
		return 0, tberrors.NewMetricError(tberrors.CodeZeroBaseline, metric, "percent change against a zero baseline")
	}
	change := (after - before) / before * 100
	if math.IsNaN(change) || math.IsInf(change, 0) {
		return 0, tberrors.NewMetricError(tberrors.CodeZeroBaseline, metric, "percent change is not finite")
	}
	return math.Round(change*100) / 100, nil
}

// Row is one metric of a comparison. Before and After are nil when the
// metric was not observed on that side.
type Row struct {
	Metric string   `json:"metric"`
	Before *float64 `json:"before,omitempty"`
	After  *float64 `json:"after,omitempty"`
	Change *float64 `json:"change_pct,omitempty"`
	Err    error    `json:"-"`
}

// ChangeText renders the change, e.g. "-37.78%", or Undefined.
func (r Row) ChangeText() string {
	if r.Change == nil {
		return Undefined
	}
	return strconv.FormatFloat(*r.Change, 'f', 2, 64) + "%"
}

// Comparison is a before/after table.
type Comparison struct {
	BeforeLabel string `json:"before_label"`
	AfterLabel  string `json:"after_label"`
	Rows        []Row  `json:"rows"`
}

// Row returns the row for metric.
func (c Comparison) Row(metric string) (Row, bool) {
	for _, r := range c.Rows {
		if r.Metric == metric {
			return r, true
		}
	}
	return Row{}, false
}

// Errors returns the MetricErrors recovered while comparing.
func (c Comparison) Errors() []error {
	var errs []error
	for _, r := range c.Rows {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errs
}

// Compare builds a comparison with one row per metric, ordered by first
// appearance in before and then in after. A repeated metric keeps its
// last value. Metric errors are recovered into the row.
func Compare(before, after []Sample) Comparison {
	c := Comparison{BeforeLabel: "before", AfterLabel: "after"}
	index := make(map[string]int)

	row := func(metric string) *Row {
		if i, ok := index[metric]; ok {
			return &c.Rows[i]
		}
		index[metric] = len(c.Rows)
		c.Rows = append(c.Rows, Row{Metric: metric})
		return &c.Rows[len(c.Rows)-1]
	}
	for _, s := range before {
		v := s.Value
		row(s.Metric).Before = &v
	}
	for _, s := range after {
		v := s.Value
		row(s.Metric).After = &v
	}

	for i := range c.Rows {
		r := &c.Rows[i]
		if r.Before == nil || r.After == nil {
			continue
		}
		change, err := PercentChange(r.Metric, *r.Before, *r.After)
		if err != nil {
			r.Err = err
			continue
		}
		r.Change = &change
	}
	return c
}

// CompareLabeled is Compare with column labels.
func CompareLabeled(beforeLabel string, before []Sample, afterLabel string, after []Sample) Comparison {
	c := Compare(before, after)
	c.BeforeLabel = beforeLabel
	c.AfterLabel = afterLabel
	return c
}

func formatValue(v *float64) string {
	if v == nil {
		return missing
	}
	if *v == math.Trunc(*v) && math.Abs(*v) < 1e15 {
		return strconv.FormatFloat(*v, 'f', 0, 64)
	}
	s := strings.TrimRight(strings.TrimRight(strconv.FormatFloat(*v, 'f', 4, 64), "0"), ".")
	if s == "-0" {
		return "0"
	}
	return s
}
