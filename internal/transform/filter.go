package transform

import "github.com/arkilian/tripbench/pkg/types"

// FilterStats summarises one Filter call. Rejected counts each removed
// record once, under the first predicate it failed in evaluation order.
type FilterStats struct {
	Input    int            `json:"input"`
	Kept     int            `json:"kept"`
	Removed  int            `json:"removed"`
	Rejected map[string]int `json:"rejected,omitempty"`
}

// Filter returns the records satisfying every predicate, in input order.
// An empty predicate set keeps everything.
func Filter(set types.RecordSet, preds PredicateSet) (types.RecordSet, FilterStats) {
	ordered := preds.ordered()
	stats := FilterStats{
		Input:    len(set),
		Rejected: make(map[string]int, len(ordered)),
	}

	out := make(types.RecordSet, 0, len(set))
	for _, rec := range set {
		if failed, ok := firstFailure(rec, ordered); !ok {
			stats.Rejected[failed]++
			continue
		}
		out = append(out, rec)
	}

	stats.Kept = len(out)
	stats.Removed = stats.Input - stats.Kept
	return out, stats
}

func firstFailure(rec types.TripRecord, preds PredicateSet) (string, bool) {
	for _, p := range preds {
		if !p.Fn(rec) {
			return p.Name, false
		}
	}
	return "", true
}
