package ingest

import (
	"strconv"

	"github.com/arkilian/tripbench/pkg/types"
)

// inferenceOrder lists candidate types from narrowest to widest.
var inferenceOrder = []types.ColumnType{
	types.TypeInteger,
	types.TypeFloat,
	types.TypeBoolean,
	types.TypeTimestamp,
}

// InferSchema guesses a type for every header column from the sampled rows.
// Each column gets the first type in integer, float, boolean, timestamp order
// that parses every non-empty sampled value; anything else is a string.
// Columns with no non-empty samples are strings. Required flags follow
// TripSchema for known columns.
func InferSchema(header []string, rows [][]string) types.Schema {
	declared := types.TripSchema()
	schema := types.Schema{Columns: make([]types.Column, len(header))}

	for i, name := range header {
		col := types.Column{Name: name, Type: types.TypeString}
		if d, ok := declared.Lookup(name); ok {
			col.Required = d.Required
		}

		var values []string
		for _, row := range rows {
			if i < len(row) && row[i] != "" {
				values = append(values, row[i])
			}
		}
		if len(values) > 0 {
			for _, t := range inferenceOrder {
				if allParse(t, values) {
					col.Type = t
					break
				}
			}
		}
		schema.Columns[i] = col
	}
	return schema
}

func allParse(t types.ColumnType, values []string) bool {
	for _, v := range values {
		if !parsesAs(t, v) {
			return false
		}
	}
	return true
}

func parsesAs(t types.ColumnType, v string) bool {
	var err error
	switch t {
	case types.TypeInteger:
		_, err = strconv.ParseInt(v, 10, 64)
	case types.TypeFloat:
		_, err = parseFloat(v)
	case types.TypeBoolean:
		_, err = parseBool(v)
	case types.TypeTimestamp:
		_, err = parseTimestamp(v)
	}
	return err == nil
}
