package ingest

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/arkilian/tripbench/pkg/types"
)

// fieldDecoder parses one non-empty cell into a record field.
type fieldDecoder func(rec *types.TripRecord, value string) error

// vendorCodes maps the textual vendor identifiers in older TLC files.
var vendorCodes = map[string]int{
	"cmt": 1,
	"vts": 2,
}

var decoders = map[string]fieldDecoder{
	types.ColVendorID:       decodeVendor,
	types.ColPickupTime:     timeField(func(r *types.TripRecord, v time.Time) { r.PickupTime = v }),
	types.ColDropoffTime:    timeField(func(r *types.TripRecord, v time.Time) { r.DropoffTime = v }),
	types.ColPassengerCount: intField(func(r *types.TripRecord, v int) { r.PassengerCount = v }),
	types.ColTripDistance:   floatField(func(r *types.TripRecord, v float64) { r.TripDistance = v }),
	types.ColPickupLon:      floatField(func(r *types.TripRecord, v float64) { r.PickupLon = v }),
	types.ColPickupLat:      floatField(func(r *types.TripRecord, v float64) { r.PickupLat = v }),
	types.ColDropoffLon:     floatField(func(r *types.TripRecord, v float64) { r.DropoffLon = v }),
	types.ColDropoffLat:     floatField(func(r *types.TripRecord, v float64) { r.DropoffLat = v }),
	types.ColRateCodeID:     intField(func(r *types.TripRecord, v int) { r.RateCodeID = v }),
	types.ColStoreAndFwdFlag: func(r *types.TripRecord, s string) error {
		b, err := parseBool(s)
		if err != nil {
			return err
		}
		r.StoreAndFwdFlag = b
		return nil
	},
	types.ColPaymentType:          intField(func(r *types.TripRecord, v int) { r.PaymentType = v }),
	types.ColFareAmount:           floatField(func(r *types.TripRecord, v float64) { r.FareAmount = v }),
	types.ColExtra:                floatField(func(r *types.TripRecord, v float64) { r.Extra = v }),
	types.ColMTATax:               floatField(func(r *types.TripRecord, v float64) { r.MTATax = v }),
	types.ColTipAmount:            floatField(func(r *types.TripRecord, v float64) { r.TipAmount = v }),
	types.ColTollsAmount:          floatField(func(r *types.TripRecord, v float64) { r.TollsAmount = v }),
	types.ColImprovementSurcharge: floatField(func(r *types.TripRecord, v float64) { r.ImprovementSurcharge = v }),
	types.ColTotalAmount:          floatField(func(r *types.TripRecord, v float64) { r.TotalAmount = v }),
}

func decodeVendor(rec *types.TripRecord, s string) error {
	if code, ok := vendorCodes[strings.ToLower(s)]; ok {
		rec.VendorID = code
		return nil
	}
	v, err := parseInt(s)
	if err != nil {
		return err
	}
	rec.VendorID = v
	return nil
}

func intField(set func(*types.TripRecord, int)) fieldDecoder {
	return func(rec *types.TripRecord, s string) error {
		v, err := parseInt(s)
		if err != nil {
			return err
		}
		set(rec, v)
		return nil
	}
}

func floatField(set func(*types.TripRecord, float64)) fieldDecoder {
	return func(rec *types.TripRecord, s string) error {
		v, err := parseFloat(s)
		if err != nil {
			return err
		}
		set(rec, v)
		return nil
	}
}

func timeField(set func(*types.TripRecord, time.Time)) fieldDecoder {
	return func(rec *types.TripRecord, s string) error {
		v, err := parseTimestamp(s)
		if err != nil {
			return err
		}
		set(rec, v)
		return nil
	}
}

// parseInt accepts plain integers and integral floats such as "1.0".
func parseInt(s string) (int, error) {
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid integer %q", s)
	}
	return int(f), nil
}

// parseFloat rejects NaN and infinities so money and distance fields stay finite.
func parseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite float %q", s)
	}
	return v, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "y", "yes", "true", "t", "1":
		return true, nil
	case "n", "no", "false", "f", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(types.TimestampLayout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
