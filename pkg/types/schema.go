package types

import (
	"fmt"
	"strings"
)

// ColumnType is the inferred or declared type of an input column.
type ColumnType string

const (
	TypeInteger   ColumnType = "integer"
	TypeFloat     ColumnType = "float"
	TypeBoolean   ColumnType = "boolean"
	TypeTimestamp ColumnType = "timestamp"
	TypeString    ColumnType = "string"
)

// Canonical trip column names.
const (
	ColVendorID             = "vendor_id"
	ColPickupTime           = "pickup_time"
	ColDropoffTime          = "dropoff_time"
	ColPassengerCount       = "passenger_count"
	ColTripDistance         = "trip_distance"
	ColPickupLon            = "pickup_lon"
	ColPickupLat            = "pickup_lat"
	ColDropoffLon           = "dropoff_lon"
	ColDropoffLat           = "dropoff_lat"
	ColRateCodeID           = "rate_code_id"
	ColStoreAndFwdFlag      = "store_and_fwd_flag"
	ColPaymentType          = "payment_type"
	ColFareAmount           = "fare_amount"
	ColExtra                = "extra"
	ColMTATax               = "mta_tax"
	ColTipAmount            = "tip_amount"
	ColTollsAmount          = "tolls_amount"
	ColImprovementSurcharge = "improvement_surcharge"
	ColTotalAmount          = "total_amount"
)

// Column describes one input column.
type Column struct {
	Name     string     `json:"name" yaml:"name"`
	Type     ColumnType `json:"type" yaml:"type"`
	Required bool       `json:"required" yaml:"required"`
}

// Schema is an ordered list of columns.
type Schema struct {
	Columns []Column `json:"columns" yaml:"columns"`
}

// Lookup returns the column with the given canonical name.
func (s Schema) Lookup(name string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Required returns the names of all required columns in schema order.
func (s Schema) Required() []string {
	var names []string
	for _, c := range s.Columns {
		if c.Required {
			names = append(names, c.Name)
		}
	}
	return names
}

// Validate checks the schema definition itself.
func (s Schema) Validate() error {
	if len(s.Columns) == 0 {
		return fmt.Errorf("schema must have at least one column")
	}
	seen := make(map[string]bool, len(s.Columns))
	for _, c := range s.Columns {
		if c.Name == "" {
			return fmt.Errorf("column name cannot be empty")
		}
		if seen[c.Name] {
			return fmt.Errorf("duplicate column name: %s", c.Name)
		}
		seen[c.Name] = true
		switch c.Type {
		case TypeInteger, TypeFloat, TypeBoolean, TypeTimestamp, TypeString:
		default:
			return fmt.Errorf("invalid column type %q for column %q", c.Type, c.Name)
		}
	}
	return nil
}

// TripSchema returns the declared schema for trip data. Fields the cleaning
// and aggregation stages depend on are required.
func TripSchema() Schema {
	return Schema{Columns: []Column{
		{Name: ColVendorID, Type: TypeInteger, Required: true},
		{Name: ColPickupTime, Type: TypeTimestamp, Required: true},
		{Name: ColDropoffTime, Type: TypeTimestamp, Required: true},
		{Name: ColPassengerCount, Type: TypeInteger},
		{Name: ColTripDistance, Type: TypeFloat, Required: true},
		{Name: ColPickupLon, Type: TypeFloat, Required: true},
		{Name: ColPickupLat, Type: TypeFloat, Required: true},
		{Name: ColDropoffLon, Type: TypeFloat, Required: true},
		{Name: ColDropoffLat, Type: TypeFloat, Required: true},
		{Name: ColRateCodeID, Type: TypeInteger},
		{Name: ColStoreAndFwdFlag, Type: TypeBoolean},
		{Name: ColPaymentType, Type: TypeInteger},
		{Name: ColFareAmount, Type: TypeFloat, Required: true},
		{Name: ColExtra, Type: TypeFloat},
		{Name: ColMTATax, Type: TypeFloat},
		{Name: ColTipAmount, Type: TypeFloat},
		{Name: ColTollsAmount, Type: TypeFloat},
		{Name: ColImprovementSurcharge, Type: TypeFloat},
		{Name: ColTotalAmount, Type: TypeFloat, Required: true},
	}}
}

// columnAliases maps header spellings used by the TLC datasets onto canonical names.
var columnAliases = map[string]string{
	"vendorid":              ColVendorID,
	"vendor_name":           ColVendorID,
	"tpep_pickup_datetime":  ColPickupTime,
	"lpep_pickup_datetime":  ColPickupTime,
	"pickup_datetime":       ColPickupTime,
	"tpep_dropoff_datetime": ColDropoffTime,
	"lpep_dropoff_datetime": ColDropoffTime,
	"dropoff_datetime":      ColDropoffTime,
	"pickup_longitude":      ColPickupLon,
	"pickup_latitude":       ColPickupLat,
	"dropoff_longitude":     ColDropoffLon,
	"dropoff_latitude":      ColDropoffLat,
	"ratecodeid":            ColRateCodeID,
	"rate_code":             ColRateCodeID,
	"store_and_forward":     ColStoreAndFwdFlag,
}

// CanonicalColumn normalises a raw header cell: trims whitespace and quotes,
// lower-cases it and resolves known aliases.
func CanonicalColumn(raw string) string {
	name := strings.TrimSpace(raw)
	name = strings.ReplaceAll(name, `"`, "")
	name = strings.TrimPrefix(name, "\ufeff")
	name = strings.ToLower(name)
	if canon, ok := columnAliases[name]; ok {
		return canon
	}
	return name
}
