package transform

import (
	"fmt"
	"sort"

	"github.com/arkilian/tripbench/pkg/types"
)

// Standard predicate names.
const (
	PredPositiveDistance   = "positive_distance"
	PredPositiveFare       = "positive_fare"
	PredValidPickupCoords  = "valid_pickup_coords"
	PredValidDropoffCoords = "valid_dropoff_coords"
	PredRequiredFields     = "required_fields"
	PredFiniteAmounts      = "finite_amounts"
)

// Predicate is a side-effect free record test. Cost orders evaluation;
// lower costs run first.
type Predicate struct {
	Name string
	Cost int
	Fn   func(types.TripRecord) bool
}

// PredicateSet is an unordered collection of predicates combined with AND.
type PredicateSet []Predicate

// Names returns predicate names in set order.
func (ps PredicateSet) Names() []string {
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name
	}
	return names
}

// ordered returns a copy sorted by Cost. Ties keep set order.
func (ps PredicateSet) ordered() PredicateSet {
	out := make(PredicateSet, len(ps))
	copy(out, ps)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Cost < out[j].Cost })
	return out
}

var standard = PredicateSet{
	{Name: PredPositiveDistance, Cost: 1, Fn: func(r types.TripRecord) bool { return r.TripDistance > 0 }},
	{Name: PredPositiveFare, Cost: 1, Fn: func(r types.TripRecord) bool { return r.FareAmount > 0 }},
	{Name: PredRequiredFields, Cost: 2, Fn: func(r types.TripRecord) bool {
		return r.VendorID > 0 && !r.PickupTime.IsZero() && !r.DropoffTime.IsZero()
	}},
	{Name: PredValidPickupCoords, Cost: 3, Fn: func(r types.TripRecord) bool {
		return validCoords(r.PickupLon, r.PickupLat)
	}},
	{Name: PredValidDropoffCoords, Cost: 3, Fn: func(r types.TripRecord) bool {
		return validCoords(r.DropoffLon, r.DropoffLat)
	}},
	{Name: PredFiniteAmounts, Cost: 5, Fn: func(r types.TripRecord) bool { return r.AmountsFinite() }},
}

// validCoords reports whether lon/lat are in range. (0,0) means missing.
func validCoords(lon, lat float64) bool {
	if lon == 0 && lat == 0 {
		return false
	}
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}

// StandardPredicates returns every standard cleaning predicate.
func StandardPredicates() PredicateSet {
	out := make(PredicateSet, len(standard))
	copy(out, standard)
	return out
}

// PredicatesByName resolves standard predicates by name. An empty list
// returns all of them.
func PredicatesByName(names []string) (PredicateSet, error) {
	if len(names) == 0 {
		return StandardPredicates(), nil
	}
	out := make(PredicateSet, 0, len(names))
	for _, name := range names {
		p, ok := lookup(name)
		if !ok {
			return nil, fmt.Errorf("transform: unknown predicate %q", name)
		}
		out = Union(out, PredicateSet{p})
	}
	return out, nil
}

func lookup(name string) (Predicate, bool) {
	for _, p := range standard {
		if p.Name == name {
			return p, true
		}
	}
	return Predicate{}, false
}

// Union returns the predicates of a followed by those of b not already in a.
// Predicates are identified by name.
func Union(a, b PredicateSet) PredicateSet {
	seen := make(map[string]bool, len(a)+len(b))
	out := make(PredicateSet, 0, len(a)+len(b))
	for _, set := range []PredicateSet{a, b} {
		for _, p := range set {
			if seen[p.Name] {
				continue
			}
			seen[p.Name] = true
			out = append(out, p)
		}
	}
	return out
}
