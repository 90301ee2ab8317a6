package aggregator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/arkilian/tripbench/pkg/types"
)

// Aggregated field names.
const (
	FieldTripDistance    = "trip_distance"
	FieldTotalAmount     = "total_amount"
	FieldFareAmount      = "fare_amount"
	FieldTipAmount       = "tip_amount"
	FieldPassengerCount  = "passenger_count"
	FieldDurationMinutes = "duration_minutes"
)

var fieldValues = map[string]func(types.TripRecord) float64{
	FieldTripDistance:    func(r types.TripRecord) float64 { return r.TripDistance },
	FieldTotalAmount:     func(r types.TripRecord) float64 { return r.TotalAmount },
	FieldFareAmount:      func(r types.TripRecord) float64 { return r.FareAmount },
	FieldTipAmount:       func(r types.TripRecord) float64 { return r.TipAmount },
	FieldPassengerCount:  func(r types.TripRecord) float64 { return float64(r.PassengerCount) },
	FieldDurationMinutes: func(r types.TripRecord) float64 { return r.Duration().Minutes() },
}

// Fields returns the aggregatable field names in sorted order.
func Fields() []string {
	names := make([]string, 0, len(fieldValues))
	for name := range fieldValues {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// AggregateSpec is one (field, reduction) pair. Field is "*" for count(*).
type AggregateSpec struct {
	Field string
	Type  AggregateType
}

// Names of the benchmark aggregates that populate Group's fixed fields.
var (
	SpecTripCount    = AggregateSpec{Field: "*", Type: AggCount}
	SpecAvgDistance  = AggregateSpec{Field: FieldTripDistance, Type: AggAvg}
	SpecTotalRevenue = AggregateSpec{Field: FieldTotalAmount, Type: AggSum}
)

// DefaultSpecs returns count(*), avg(trip_distance), sum(total_amount).
func DefaultSpecs() []AggregateSpec {
	return []AggregateSpec{SpecTripCount, SpecAvgDistance, SpecTotalRevenue}
}

// Name renders the spec as "fn(field)".
func (s AggregateSpec) Name() string {
	return fmt.Sprintf("%s(%s)", s.Type, s.Field)
}

// value extracts the aggregated value from a record.
func (s AggregateSpec) value(r types.TripRecord) float64 {
	if fn, ok := fieldValues[s.Field]; ok {
		return fn(r)
	}
	return 0
}

// Validate checks that the field is known for the reduction.
func (s AggregateSpec) Validate() error {
	if s.Field == "*" {
		if s.Type != AggCount {
			return fmt.Errorf("%s requires a field", s.Type)
		}
		return nil
	}
	if _, ok := fieldValues[s.Field]; !ok {
		return fmt.Errorf("unknown aggregate field: %s", s.Field)
	}
	return nil
}

// ParseSpec parses "fn(field)", e.g. "avg(trip_distance)" or "count(*)".
func ParseSpec(s string) (AggregateSpec, error) {
	s = strings.TrimSpace(s)
	open := strings.IndexByte(s, '(')
	if open <= 0 || !strings.HasSuffix(s, ")") {
		return AggregateSpec{}, fmt.Errorf("invalid aggregate %q: want fn(field)", s)
	}
	aggType, err := ParseAggregateType(s[:open])
	if err != nil {
		return AggregateSpec{}, err
	}
	field := strings.ToLower(strings.TrimSpace(s[open+1 : len(s)-1]))
	if field == "" {
		field = "*"
	}
	spec := AggregateSpec{Field: field, Type: aggType}
	if err := spec.Validate(); err != nil {
		return AggregateSpec{}, err
	}
	return spec, nil
}

// withDefaults returns the benchmark aggregates followed by any extra
// specs not already present.
func withDefaults(specs []AggregateSpec) []AggregateSpec {
	out := DefaultSpecs()
	seen := make(map[AggregateSpec]bool, len(out)+len(specs))
	for _, s := range out {
		seen[s] = true
	}
	for _, s := range specs {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
