// Package transform implements the record-set stages between loading and
// aggregation: volume amplification and cleaning.
package transform

import (
	"fmt"
	"math"

	"github.com/arkilian/tripbench/pkg/types"
)

// Amplify returns r+1 concatenated copies of set, each in input order.
// The result never aliases the input.
func Amplify(set types.RecordSet, r int) (types.RecordSet, error) {
	if r < 0 {
		return nil, fmt.Errorf("transform: amplify: repetition count must be >= 0, got %d", r)
	}
	if len(set) == 0 {
		return types.RecordSet{}, nil
	}
	if r > math.MaxInt/len(set)-1 {
		return nil, fmt.Errorf("transform: amplify: %d copies of %d records overflow", r, len(set))
	}
	out := make(types.RecordSet, 0, len(set)*(r+1))
	for i := 0; i <= r; i++ {
		out = append(out, set...)
	}
	return out, nil
}
