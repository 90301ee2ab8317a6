package transform

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/arkilian/tripbench/pkg/types"
)

func genRecordSet() gopter.Gen {
	return gen.SliceOf(gen.Float64Range(-2, 10)).Map(func(distances []float64) types.RecordSet {
		set := make(types.RecordSet, len(distances))
		for i, d := range distances {
			set[i] = sampleTrip(i, d)
		}
		return set
	})
}

// predicateSubset selects standard predicates by bitmask.
func predicateSubset(mask int) PredicateSet {
	var out PredicateSet
	for i, p := range StandardPredicates() {
		if mask&(1<<i) != 0 {
			out = append(out, p)
		}
	}
	return out
}

func multiset(set types.RecordSet) map[types.TripRecord]int {
	m := make(map[types.TripRecord]int, len(set))
	for _, rec := range set {
		m[rec]++
	}
	return m
}

func sameMultiset(a, b types.RecordSet) bool {
	if len(a) != len(b) {
		return false
	}
	ma, mb := multiset(a), multiset(b)
	if len(ma) != len(mb) {
		return false
	}
	for k, v := range ma {
		if mb[k] != v {
			return false
		}
	}
	return true
}

func sameSequence(a, b types.RecordSet) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestProperty_AmplifyComposition(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("amplify(amplify(R, r1), r2) has the multiset of amplify(R, (r1+1)(r2+1)-1)", prop.ForAll(
		func(set types.RecordSet, r1, r2 int) bool {
			inner, err := Amplify(set, r1)
			if err != nil {
				return false
			}
			nested, err := Amplify(inner, r2)
			if err != nil {
				return false
			}
			direct, err := Amplify(set, (r1+1)*(r2+1)-1)
			if err != nil {
				return false
			}
			return sameMultiset(nested, direct)
		},
		genRecordSet(),
		gen.IntRange(0, 4),
		gen.IntRange(0, 4),
	))

	properties.TestingRun(t)
}

func TestProperty_FilterComposition(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("filter(filter(R, P1), P2) equals filter(R, P1 union P2)", prop.ForAll(
		func(set types.RecordSet, m1, m2 int) bool {
			p1, p2 := predicateSubset(m1), predicateSubset(m2)
			first, _ := Filter(set, p1)
			nested, _ := Filter(first, p2)
			direct, _ := Filter(set, Union(p1, p2))
			return sameSequence(nested, direct)
		},
		genRecordSet(),
		gen.IntRange(0, 63),
		gen.IntRange(0, 63),
	))

	properties.Property("filter is order independent", prop.ForAll(
		func(set types.RecordSet, m1, m2 int) bool {
			p1, p2 := predicateSubset(m1), predicateSubset(m2)
			a, _ := Filter(set, Union(p1, p2))
			b, _ := Filter(set, Union(p2, p1))
			return sameSequence(a, b)
		},
		genRecordSet(),
		gen.IntRange(0, 63),
		gen.IntRange(0, 63),
	))

	properties.TestingRun(t)
}
