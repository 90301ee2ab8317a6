package aggregator

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mmcloughlin/geohash"

	"github.com/arkilian/tripbench/pkg/types"
)

// KeyExtractor derives the grouping key of a record.
type KeyExtractor struct {
	Name string
	Fn   func(types.TripRecord) string
}

// KeyByName returns the extractor for a grouping key name. precision is the
// geohash length used by pickup_geohash and is ignored otherwise.
func KeyByName(name string, precision int) (KeyExtractor, error) {
	switch name {
	case "vendor_id":
		return intKey(name, func(r types.TripRecord) int { return r.VendorID }), nil
	case "payment_type":
		return intKey(name, func(r types.TripRecord) int { return r.PaymentType }), nil
	case "passenger_count":
		return intKey(name, func(r types.TripRecord) int { return r.PassengerCount }), nil
	case "rate_code_id":
		return intKey(name, func(r types.TripRecord) int { return r.RateCodeID }), nil
	case "pickup_hour":
		return KeyExtractor{Name: name, Fn: func(r types.TripRecord) string {
			return fmt.Sprintf("%02d", r.PickupTime.Hour())
		}}, nil
	case "pickup_geohash":
		if precision < 1 || precision > 12 {
			return KeyExtractor{}, fmt.Errorf("geohash precision must be between 1 and 12, got %d", precision)
		}
		chars := uint(precision)
		return KeyExtractor{Name: name, Fn: func(r types.TripRecord) string {
			return geohash.EncodeWithPrecision(r.PickupLat, r.PickupLon, chars)
		}}, nil
	}
	return KeyExtractor{}, fmt.Errorf("unknown group key: %s", name)
}

// VendorKey groups by vendor_id.
func VendorKey() KeyExtractor {
	k, _ := KeyByName("vendor_id", 0)
	return k
}

func intKey(name string, field func(types.TripRecord) int) KeyExtractor {
	return KeyExtractor{Name: name, Fn: func(r types.TripRecord) string {
		return strconv.Itoa(field(r))
	}}
}

// compareKeys orders integer keys numerically and everything else
// lexicographically; integers sort before non-integers.
func compareKeys(a, b string) int {
	ia, aErr := strconv.ParseInt(a, 10, 64)
	ib, bErr := strconv.ParseInt(b, 10, 64)
	switch {
	case aErr == nil && bErr == nil:
		switch {
		case ia < ib:
			return -1
		case ia > ib:
			return 1
		}
	case aErr == nil:
		return -1
	case bErr == nil:
		return 1
	}
	return strings.Compare(a, b)
}
