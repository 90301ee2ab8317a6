// Package ingest loads comma-separated trip data into typed records.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	tberrors "github.com/arkilian/tripbench/internal/errors"
	"github.com/arkilian/tripbench/pkg/types"
)

const (
	// DefaultInferRows is the number of data rows sampled by schema inference.
	DefaultInferRows = 100

	// maxDropReasons bounds the drop reasons retained in a LoadResult.
	maxDropReasons = 10

	// cancelCheckInterval is how often (in rows) ctx is polled.
	cancelCheckInterval = 4096
)

// LoadOptions configures a load.
type LoadOptions struct {
	// Schema is the declared schema. When nil the schema is inferred from
	// the first InferRows data rows and required columns follow TripSchema.
	Schema *types.Schema

	// InferRows bounds the inference prefix (default DefaultInferRows)
	InferRows int

	// Strict fails the load on the first malformed row
	Strict bool
}

// LoadResult is a complete, valid record set plus load statistics.
type LoadResult struct {
	Records     types.RecordSet
	Schema      types.Schema
	Rows        int
	Dropped     int
	DropReasons []string
	Bytes       int64
}

// countingReader tracks bytes consumed from the underlying reader.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// LoadFile opens path, loads it and closes it on every exit path.
func LoadFile(ctx context.Context, path string, opts LoadOptions) (*LoadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ingest: open %s: %w", path, err)
	}
	defer f.Close()

	return Load(ctx, f, opts)
}

// LoadFiles loads each path in order and concatenates the records. The
// reported schema is the first file's. Errors name the failing path and
// keep their category, so a SchemaError in any file fails the whole load.
func LoadFiles(ctx context.Context, paths []string, opts LoadOptions) (*LoadResult, error) {
	if len(paths) == 0 {
		return nil, tberrors.NewSchemaError(tberrors.CodeEmptyInput, "", "no input files")
	}

	total := &LoadResult{}
	for i, path := range paths {
		res, err := LoadFile(ctx, path, opts)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if i == 0 {
			total.Schema = res.Schema
		}
		total.Records = append(total.Records, res.Records...)
		total.Rows += res.Rows
		total.Dropped += res.Dropped
		total.Bytes += res.Bytes
		for _, reason := range res.DropReasons {
			if len(total.DropReasons) < maxDropReasons {
				total.DropReasons = append(total.DropReasons, reason)
			}
		}
	}
	return total, nil
}

// Load parses r into a record set. The result is either complete or nil:
// a SchemaError, a strict-mode ParseError, a read failure or cancellation
// returns no records.
func Load(ctx context.Context, r io.Reader, opts LoadOptions) (*LoadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if opts.InferRows <= 0 {
		opts.InferRows = DefaultInferRows
	}

	cr := &countingReader{r: r}
	reader := csv.NewReader(cr)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	rawHeader, err := reader.Read()
	if err == io.EOF {
		return nil, tberrors.NewSchemaError(tberrors.CodeEmptyInput, "", "input has no header row")
	}
	if err != nil {
		return nil, fmt.Errorf("ingest: read header: %w", err)
	}

	header := make([]string, len(rawHeader))
	seen := make(map[string]bool, len(rawHeader))
	for i, h := range rawHeader {
		name := types.CanonicalColumn(h)
		if seen[name] {
			return nil, tberrors.NewSchemaError(tberrors.CodeDuplicateColumn, name,
				fmt.Sprintf("duplicate column %q", name))
		}
		seen[name] = true
		header[i] = name
	}

	// Buffer the inference prefix; those rows are decoded like any other.
	var prefix [][]string
	var prefixErrs []error
	if opts.Schema == nil {
		for len(prefix) < opts.InferRows {
			row, err := reader.Read()
			if err == io.EOF {
				break
			}
			prefix = append(prefix, row)
			prefixErrs = append(prefixErrs, readErr(err))
			if err != nil && !isRowError(err) {
				return nil, fmt.Errorf("ingest: read row %d: %w", len(prefix), err)
			}
		}
	}

	var schema types.Schema
	var required []string
	if opts.Schema != nil {
		if err := opts.Schema.Validate(); err != nil {
			return nil, tberrors.NewConfigError("invalid schema", err)
		}
		schema = *opts.Schema
		required = schema.Required()
	} else {
		var sample [][]string
		for i, row := range prefix {
			if prefixErrs[i] == nil {
				sample = append(sample, row)
			}
		}
		schema = InferSchema(header, sample)
		required = types.TripSchema().Required()
	}

	for _, name := range required {
		if !seen[name] {
			return nil, tberrors.NewSchemaError(tberrors.CodeMissingColumn, name,
				fmt.Sprintf("required column %q is missing", name))
		}
	}

	d := newRowDecoder(header, schema)
	result := &LoadResult{Schema: schema}

	handle := func(rowNum int, row []string, rerr error) error {
		result.Rows++
		rec, perr := d.decode(rowNum, row, rerr)
		if perr == nil {
			result.Records = append(result.Records, rec)
			return nil
		}
		if opts.Strict {
			return perr
		}
		result.Dropped++
		if len(result.DropReasons) < maxDropReasons {
			result.DropReasons = append(result.DropReasons, perr.Error())
		}
		return nil
	}

	rowNum := 0
	for i, row := range prefix {
		rowNum++
		if err := handle(rowNum, row, prefixErrs[i]); err != nil {
			return nil, err
		}
	}

	for {
		if rowNum%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil && !isRowError(err) {
			return nil, fmt.Errorf("ingest: read row %d: %w", rowNum+1, err)
		}
		rowNum++
		if err := handle(rowNum, row, readErr(err)); err != nil {
			return nil, err
		}
	}

	result.Bytes = cr.n
	return result, nil
}

// isRowError reports whether a csv read error affects only the current row.
func isRowError(err error) bool {
	var pe *csv.ParseError
	return errors.As(err, &pe)
}

func readErr(err error) error {
	if err != nil && isRowError(err) {
		return err
	}
	return nil
}

// rowDecoder maps header positions onto record fields.
type rowDecoder struct {
	width    int
	columns  []string
	decoders []fieldDecoder
	required []bool
}

func newRowDecoder(header []string, schema types.Schema) *rowDecoder {
	d := &rowDecoder{
		width:    len(header),
		columns:  header,
		decoders: make([]fieldDecoder, len(header)),
		required: make([]bool, len(header)),
	}
	for i, name := range header {
		d.decoders[i] = decoders[name]
		if col, ok := schema.Lookup(name); ok {
			d.required[i] = col.Required
		}
	}
	return d
}

func (d *rowDecoder) decode(rowNum int, row []string, rerr error) (types.TripRecord, error) {
	var rec types.TripRecord
	if rerr != nil {
		return rec, tberrors.NewParseError(tberrors.CodeMalformedRow, rowNum, "", "unreadable row", rerr)
	}
	if len(row) != d.width {
		return rec, tberrors.NewParseError(tberrors.CodeFieldCount, rowNum, "",
			fmt.Sprintf("expected %d fields, got %d", d.width, len(row)), nil)
	}
	for i, value := range row {
		value = strings.TrimSpace(value)
		if value == "" {
			if d.required[i] {
				return rec, tberrors.NewParseError(tberrors.CodeMalformedRow, rowNum, d.columns[i],
					"required field is empty", nil)
			}
			continue
		}
		dec := d.decoders[i]
		if dec == nil {
			continue
		}
		if err := dec(&rec, value); err != nil {
			return rec, tberrors.NewParseError(tberrors.CodeMalformedRow, rowNum, d.columns[i],
				"invalid value", err)
		}
	}
	return rec, nil
}
