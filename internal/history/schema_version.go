package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	tberrors "github.com/arkilian/tripbench/internal/errors"
	"github.com/arkilian/tripbench/pkg/types"
)

// SchemaVersionRecord is a stored input schema.
type SchemaVersionRecord struct {
	Version   int
	Schema    types.Schema
	CreatedAt time.Time
}

// execQuerier is satisfied by *sql.DB and *sql.Tx.
type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CurrentSchemaVersion returns the latest schema version, 0 if none.
func (s *Store) CurrentSchemaVersion(ctx context.Context) (int, error) {
	return currentSchemaVersion(ctx, s.db)
}

func currentSchemaVersion(ctx context.Context, q execQuerier) (int, error) {
	var version int
	err := q.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("history: failed to get current schema version: %w", err)
	}
	return version, nil
}

// SchemaVersion returns a stored schema version.
func (s *Store) SchemaVersion(ctx context.Context, version int) (*SchemaVersionRecord, error) {
	return schemaVersion(ctx, s.db, version)
}

func schemaVersion(ctx context.Context, q execQuerier, version int) (*SchemaVersionRecord, error) {
	var (
		schemaJSON string
		createdAt  int64
	)
	err := q.QueryRowContext(ctx,
		"SELECT schema_json, created_at FROM schema_versions WHERE version = ?", version,
	).Scan(&schemaJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tberrors.NewHistoryError(tberrors.CodeRunNotFound, fmt.Sprintf("schema version %d not found", version), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("history: failed to get schema version %d: %w", version, err)
	}

	rec := &SchemaVersionRecord{Version: version, CreatedAt: time.Unix(createdAt, 0)}
	if err := json.Unmarshal([]byte(schemaJSON), &rec.Schema); err != nil {
		return nil, fmt.Errorf("history: failed to unmarshal schema version %d: %w", version, err)
	}
	return rec, nil
}

// registerSchema returns the version of a stored schema equal to schema,
// storing it as a new version when none matches.
func registerSchema(ctx context.Context, q execQuerier, schema types.Schema, now time.Time) (int, error) {
	existing, err := findSchemaVersion(ctx, q, schema)
	if err != nil {
		return 0, err
	}
	if existing > 0 {
		return existing, nil
	}

	current, err := currentSchemaVersion(ctx, q)
	if err != nil {
		return 0, err
	}
	schemaJSON, err := json.Marshal(schema)
	if err != nil {
		return 0, fmt.Errorf("history: failed to marshal schema: %w", err)
	}
	next := current + 1
	_, err = q.ExecContext(ctx,
		"INSERT INTO schema_versions (version, schema_json, created_at) VALUES (?, ?, ?)",
		next, string(schemaJSON), now.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("history: failed to insert schema version %d: %w", next, err)
	}
	return next, nil
}

// findSchemaVersion returns the lowest stored version equal to schema, 0 if none.
func findSchemaVersion(ctx context.Context, q execQuerier, schema types.Schema) (int, error) {
	rows, err := q.QueryContext(ctx, "SELECT version, schema_json FROM schema_versions ORDER BY version")
	if err != nil {
		return 0, fmt.Errorf("history: failed to list schema versions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			version    int
			schemaJSON string
			stored     types.Schema
		)
		if err := rows.Scan(&version, &schemaJSON); err != nil {
			return 0, fmt.Errorf("history: failed to scan schema version: %w", err)
		}
		if err := json.Unmarshal([]byte(schemaJSON), &stored); err != nil {
			return 0, fmt.Errorf("history: failed to unmarshal schema version %d: %w", version, err)
		}
		if schemasEqual(stored, schema) {
			return version, nil
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("history: failed to list schema versions: %w", err)
	}
	return 0, nil
}

// ColumnDiff returns the columns added and removed between two versions.
func (s *Store) ColumnDiff(ctx context.Context, oldVersion, newVersion int) (added, removed []types.Column, err error) {
	oldRec, err := s.SchemaVersion(ctx, oldVersion)
	if err != nil {
		return nil, nil, err
	}
	newRec, err := s.SchemaVersion(ctx, newVersion)
	if err != nil {
		return nil, nil, err
	}
	return diffColumns(oldRec.Schema, newRec.Schema), diffColumns(newRec.Schema, oldRec.Schema), nil
}

// diffColumns returns columns of b missing from a.
func diffColumns(a, b types.Schema) []types.Column {
	have := make(map[string]bool, len(a.Columns))
	for _, c := range a.Columns {
		have[c.Name] = true
	}
	var diff []types.Column
	for _, c := range b.Columns {
		if !have[c.Name] {
			diff = append(diff, c)
		}
	}
	return diff
}

func schemasEqual(a, b types.Schema) bool {
	if len(a.Columns) != len(b.Columns) {
		return false
	}
	for i := range a.Columns {
		if a.Columns[i] != b.Columns[i] {
			return false
		}
	}
	return true
}
