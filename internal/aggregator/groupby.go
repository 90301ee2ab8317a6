package aggregator

import (
	"sort"

	"github.com/arkilian/tripbench/pkg/types"
)

// GroupKey is the string form of a grouping key, used as a map key for
// combining groups across shards.
type GroupKey = string

// GroupedPartial holds partial aggregates for a single group.
type GroupedPartial struct {
	Key        GroupKey            `json:"key"`
	Aggregates []*PartialAggregate `json:"aggregates"` // one per spec
}

func (g *GroupedPartial) clone() *GroupedPartial {
	cp := &GroupedPartial{Key: g.Key, Aggregates: make([]*PartialAggregate, len(g.Aggregates))}
	for i, agg := range g.Aggregates {
		cp.Aggregates[i] = agg.Clone()
	}
	return cp
}

// ComputeGroupedPartials computes grouped partial aggregates for one shard.
// Keys only come from records present in the shard, so no group is empty.
func ComputeGroupedPartials(
	shard types.RecordSet,
	key KeyExtractor,
	specs []AggregateSpec,
) map[GroupKey]*GroupedPartial {
	groups := make(map[GroupKey]*GroupedPartial)

	for _, rec := range shard {
		k := key.Fn(rec)

		gp, exists := groups[k]
		if !exists {
			aggs := make([]*PartialAggregate, len(specs))
			for i, spec := range specs {
				aggs[i] = NewPartialAggregate(spec.Type)
			}
			gp = &GroupedPartial{Key: k, Aggregates: aggs}
			groups[k] = gp
		}

		for i, agg := range gp.Aggregates {
			agg.Accumulate(specs[i].value(rec))
		}
	}

	return groups
}

// GroupByMerger combines grouped partial results from multiple shards.
type GroupByMerger struct {
	specs []AggregateSpec
}

// NewGroupByMerger creates a merger for the given aggregate specs.
func NewGroupByMerger(specs []AggregateSpec) *GroupByMerger {
	return &GroupByMerger{specs: specs}
}

// MergeGroupedPartials merges grouped partial results from multiple shards.
// Inputs are never modified.
func (m *GroupByMerger) MergeGroupedPartials(
	shardResults []map[GroupKey]*GroupedPartial,
) map[GroupKey]*GroupedPartial {
	merged := make(map[GroupKey]*GroupedPartial)

	for _, shard := range shardResults {
		for key, gp := range shard {
			existing, exists := merged[key]
			if !exists {
				merged[key] = gp.clone()
				continue
			}
			for i, agg := range gp.Aggregates {
				if i >= len(existing.Aggregates) {
					break
				}
				existing.Aggregates[i].Merge(agg)
			}
		}
	}

	return merged
}

// ToGroups converts merged partials into final groups sorted by key.
func (m *GroupByMerger) ToGroups(groups map[GroupKey]*GroupedPartial) []Group {
	out := make([]Group, 0, len(groups))
	for _, gp := range groups {
		g := Group{Key: gp.Key, Values: make(map[string]float64, len(m.specs))}
		for i, spec := range m.specs {
			if i >= len(gp.Aggregates) {
				break
			}
			v := gp.Aggregates[i].Result()
			g.Values[spec.Name()] = v
			switch spec {
			case SpecTripCount:
				g.TripCount = gp.Aggregates[i].Count
			case SpecAvgDistance:
				g.AvgDistance = v
			case SpecTotalRevenue:
				g.TotalRevenue = v
			}
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return compareKeys(out[i].Key, out[j].Key) < 0 })
	return out
}
