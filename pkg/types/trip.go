// Package types defines the core data model shared by every tripbench stage.
package types

import (
	"math"
	"time"
)

// TimestampLayout is the TLC trip record timestamp format.
const TimestampLayout = "2006-01-02 15:04:05"

// TripRecord is a single ride. Values are treated as immutable once loaded.
type TripRecord struct {
	VendorID             int       `json:"vendor_id"`
	PickupTime           time.Time `json:"pickup_time"`
	DropoffTime          time.Time `json:"dropoff_time"`
	PassengerCount       int       `json:"passenger_count"`
	TripDistance         float64   `json:"trip_distance"`
	PickupLon            float64   `json:"pickup_lon"`
	PickupLat            float64   `json:"pickup_lat"`
	DropoffLon           float64   `json:"dropoff_lon"`
	DropoffLat           float64   `json:"dropoff_lat"`
	RateCodeID           int       `json:"rate_code_id"`
	StoreAndFwdFlag      bool      `json:"store_and_fwd_flag"`
	PaymentType          int       `json:"payment_type"`
	FareAmount           float64   `json:"fare_amount"`
	Extra                float64   `json:"extra"`
	MTATax               float64   `json:"mta_tax"`
	TipAmount            float64   `json:"tip_amount"`
	TollsAmount          float64   `json:"tolls_amount"`
	ImprovementSurcharge float64   `json:"improvement_surcharge"`
	TotalAmount          float64   `json:"total_amount"`
}

// Duration returns dropoff minus pickup. Zero if either timestamp is unset.
func (r TripRecord) Duration() time.Duration {
	if r.PickupTime.IsZero() || r.DropoffTime.IsZero() {
		return 0
	}
	return r.DropoffTime.Sub(r.PickupTime)
}

// SpeedMPH returns the average speed of the trip, or 0 for non-positive durations.
func (r TripRecord) SpeedMPH() float64 {
	hours := r.Duration().Hours()
	if hours <= 0 {
		return 0
	}
	return r.TripDistance / hours
}

// AmountsFinite reports whether every monetary and distance field is a finite number.
func (r TripRecord) AmountsFinite() bool {
	for _, v := range []float64{
		r.TripDistance, r.FareAmount, r.Extra, r.MTATax, r.TipAmount,
		r.TollsAmount, r.ImprovementSurcharge, r.TotalAmount,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// RecordSet is an ordered sequence of trip records. Stages never mutate a
// RecordSet they receive; they return a new one.
type RecordSet []TripRecord

// Clone returns a copy that shares no backing array with s.
func (s RecordSet) Clone() RecordSet {
	if s == nil {
		return nil
	}
	out := make(RecordSet, len(s))
	copy(out, s)
	return out
}

// Shards splits the set into n contiguous, roughly even, non-overlapping slices.
// n is clamped to [1, len(s)]; an empty set yields a single empty shard.
func (s RecordSet) Shards(n int) []RecordSet {
	if n < 1 {
		n = 1
	}
	if len(s) == 0 {
		return []RecordSet{{}}
	}
	if n > len(s) {
		n = len(s)
	}
	shards := make([]RecordSet, 0, n)
	size := len(s) / n
	rem := len(s) % n
	start := 0
	for i := 0; i < n; i++ {
		end := start + size
		if i < rem {
			end++
		}
		shards = append(shards, s[start:end:end])
		start = end
	}
	return shards
}
