// Package aggregator provides two-phase grouped aggregation over trip
// records: partial reduction per shard, a hash shuffle, and an associative
// merge per reducer.
package aggregator

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"
)

// AggregateType represents the type of aggregate function.
type AggregateType int

const (
	AggCount AggregateType = iota
	AggSum
	AggMin
	AggMax
	AggAvg
)

// sumPrec is wide enough to hold any sum of float64 values exactly, so the
// merged result does not depend on how records were sharded.
const sumPrec = 2200

// ParseAggregateType converts a function name string to AggregateType.
func ParseAggregateType(name string) (AggregateType, error) {
	switch strings.ToLower(name) {
	case "count":
		return AggCount, nil
	case "sum":
		return AggSum, nil
	case "min":
		return AggMin, nil
	case "max":
		return AggMax, nil
	case "avg", "average":
		return AggAvg, nil
	default:
		return 0, fmt.Errorf("unknown aggregate function: %s", name)
	}
}

// String returns the lower-case function name.
func (t AggregateType) String() string {
	switch t {
	case AggCount:
		return "count"
	case AggSum:
		return "sum"
	case AggMin:
		return "min"
	case AggMax:
		return "max"
	case AggAvg:
		return "avg"
	}
	return fmt.Sprintf("agg(%d)", int(t))
}

// PartialAggregate holds the partial result of an aggregate computed over
// one shard. For AVG both Sum and Count are tracked; the average is only
// derived in Result.
type PartialAggregate struct {
	Type  AggregateType
	Count int64
	Sum   *big.Float
	Min   float64
	Max   float64
	IsSet bool // true once at least one value has been accumulated
}

// NewPartialAggregate creates a new empty partial aggregate of the given type.
func NewPartialAggregate(aggType AggregateType) *PartialAggregate {
	return &PartialAggregate{Type: aggType, Sum: new(big.Float).SetPrec(sumPrec)}
}

// Accumulate adds a single value. Non-finite values are ignored by every
// function except COUNT.
func (p *PartialAggregate) Accumulate(value float64) {
	if p.Type == AggCount {
		p.Count++
		p.IsSet = true
		return
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return
	}

	switch p.Type {
	case AggSum, AggAvg:
		p.Sum.Add(p.Sum, big.NewFloat(value))
	case AggMin:
		if !p.IsSet || value < p.Min {
			p.Min = value
		}
	case AggMax:
		if !p.IsSet || value > p.Max {
			p.Max = value
		}
	}
	p.Count++
	p.IsSet = true
}

// Merge folds src into p. Merge is associative and commutative.
func (p *PartialAggregate) Merge(src *PartialAggregate) {
	if !src.IsSet {
		return
	}

	switch p.Type {
	case AggSum, AggAvg:
		p.Sum.Add(p.Sum, src.Sum)
	case AggMin:
		if !p.IsSet || src.Min < p.Min {
			p.Min = src.Min
		}
	case AggMax:
		if !p.IsSet || src.Max > p.Max {
			p.Max = src.Max
		}
	}
	p.Count += src.Count
	p.IsSet = true
}

// Clone returns a deep copy.
func (p *PartialAggregate) Clone() *PartialAggregate {
	cp := *p
	cp.Sum = new(big.Float).SetPrec(sumPrec).Set(p.Sum)
	return &cp
}

// Result returns the final value. An aggregate with no input yields 0 for
// COUNT and SUM and NaN for the others.
func (p *PartialAggregate) Result() float64 {
	if !p.IsSet {
		if p.Type == AggCount || p.Type == AggSum {
			return 0
		}
		return math.NaN()
	}

	switch p.Type {
	case AggCount:
		return float64(p.Count)
	case AggSum:
		f, _ := p.Sum.Float64()
		return f
	case AggMin:
		return p.Min
	case AggMax:
		return p.Max
	case AggAvg:
		sum, _ := p.Sum.Float64()
		return sum / float64(p.Count)
	}
	return math.NaN()
}

// partialWire is the shuffle encoding of a PartialAggregate. Sum travels in
// gob form because the text form does not round-trip its precision.
type partialWire struct {
	Type  AggregateType `json:"type"`
	Count int64         `json:"count"`
	Sum   []byte        `json:"sum,omitempty"`
	Min   float64       `json:"min"`
	Max   float64       `json:"max"`
	IsSet bool          `json:"set"`
}

// MarshalJSON implements json.Marshaler.
func (p *PartialAggregate) MarshalJSON() ([]byte, error) {
	w := partialWire{Type: p.Type, Count: p.Count, Min: p.Min, Max: p.Max, IsSet: p.IsSet}
	if p.Sum != nil && p.Sum.Sign() != 0 {
		b, err := p.Sum.GobEncode()
		if err != nil {
			return nil, err
		}
		w.Sum = b
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *PartialAggregate) UnmarshalJSON(data []byte) error {
	var w partialWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = PartialAggregate{Type: w.Type, Count: w.Count, Min: w.Min, Max: w.Max, IsSet: w.IsSet}
	p.Sum = new(big.Float)
	if len(w.Sum) > 0 {
		if err := p.Sum.GobDecode(w.Sum); err != nil {
			return fmt.Errorf("decode sum: %w", err)
		}
	}
	p.Sum.SetPrec(sumPrec)
	return nil
}
