package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/arkilian/tripbench/internal/aggregator"
	tberrors "github.com/arkilian/tripbench/internal/errors"
	"github.com/arkilian/tripbench/internal/report"
	"github.com/arkilian/tripbench/pkg/types"
)

// DefaultListLimit bounds List when no limit is given.
const DefaultListLimit = 20

// RunRecord is one stored run.
type RunRecord struct {
	RunID          string
	Label          string
	Input          []string
	StartedAt      time.Time
	Duration       time.Duration
	ShuffleBytes   int64
	CPUUtilization float64
	TaskSkewRatio  float64
	StageCount     int
	RecordsIn      int
	RecordsOut     int
	Groups         []aggregator.Group // nil from List

	// Schema is the input schema to record; SchemaVersion is its stored
	// version, set by SaveRun and on reads (0 when none was recorded)
	Schema        *types.Schema
	SchemaVersion int
}

// Metrics returns the run's metric snapshot.
func (r *RunRecord) Metrics() report.RunMetrics {
	return report.RunMetrics{
		Label:          r.Label,
		Duration:       r.Duration,
		ShuffleBytes:   r.ShuffleBytes,
		CPUUtilization: r.CPUUtilization,
		TaskSkewRatio:  r.TaskSkewRatio,
		StageCount:     r.StageCount,
	}
}

// Store is a SQLite run-history database.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes writers
}

// Open opens or creates the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, tberrors.NewHistoryError(tberrors.CodeUnexpected, "failed to open database", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, tberrors.NewHistoryError(tberrors.CodeUnexpected, "failed to initialize schema", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// SaveRun stores a run, its groups and its input schema atomically.
func (s *Store) SaveRun(ctx context.Context, run *RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	version := 0
	if run.Schema != nil {
		if version, err = registerSchema(ctx, tx, *run.Schema, run.StartedAt); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, label, input, started_at, duration_ms,
			shuffle_bytes, cpu_utilization, task_skew_ratio, stage_count,
			records_in, records_out, schema_version
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.Label, strings.Join(run.Input, ","), run.StartedAt.UnixNano(), run.Duration.Milliseconds(),
		run.ShuffleBytes, run.CPUUtilization, run.TaskSkewRatio, run.StageCount,
		run.RecordsIn, run.RecordsOut, version,
	)
	if err != nil {
		return fmt.Errorf("history: failed to insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO run_groups (run_id, group_key, position, trip_count, avg_distance, total_revenue)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("history: failed to prepare group insert: %w", err)
	}
	defer stmt.Close()

	for i, g := range run.Groups {
		if _, err := stmt.ExecContext(ctx, run.RunID, g.Key, i, g.TripCount, g.AvgDistance, g.TotalRevenue); err != nil {
			return fmt.Errorf("history: failed to insert group %s: %w", g.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history: failed to commit transaction: %w", err)
	}
	run.SchemaVersion = version
	return nil
}

const selectRunSQL = `
	SELECT run_id, label, input, started_at, duration_ms,
		shuffle_bytes, cpu_utilization, task_skew_ratio, stage_count,
		records_in, records_out, schema_version
	FROM runs`

// Get returns the run with runID, including its groups.
func (s *Store) Get(ctx context.Context, runID string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, selectRunSQL+" WHERE run_id = ?", runID)
	return s.loadRun(ctx, row, "run "+runID)
}

// LatestByLabel returns the most recent run stored under label.
func (s *Store) LatestByLabel(ctx context.Context, label string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, selectRunSQL+" WHERE label = ? ORDER BY started_at DESC, rowid DESC LIMIT 1", label)
	return s.loadRun(ctx, row, "no run labelled "+label)
}

func (s *Store) loadRun(ctx context.Context, row *sql.Row, what string) (*RunRecord, error) {
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, tberrors.NewHistoryError(tberrors.CodeRunNotFound, what, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("history: failed to read run: %w", err)
	}

	groups, err := s.groups(ctx, run.RunID)
	if err != nil {
		return nil, err
	}
	run.Groups = groups
	return run, nil
}

// List returns up to limit runs, newest first, without groups.
func (s *Store) List(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.db.QueryContext(ctx, selectRunSQL+" ORDER BY started_at DESC, rowid DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("history: failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("history: failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *Store) groups(ctx context.Context, runID string) ([]aggregator.Group, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_key, trip_count, avg_distance, total_revenue
		FROM run_groups WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("history: failed to query groups: %w", err)
	}
	defer rows.Close()

	var groups []aggregator.Group
	for rows.Next() {
		var g aggregator.Group
		if err := rows.Scan(&g.Key, &g.TripCount, &g.AvgDistance, &g.TotalRevenue); err != nil {
			return nil, fmt.Errorf("history: failed to scan group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*RunRecord, error) {
	var (
		run       RunRecord
		input     string
		startedAt int64
		durMillis int64
	)
	err := sc.Scan(&run.RunID, &run.Label, &input, &startedAt, &durMillis,
		&run.ShuffleBytes, &run.CPUUtilization, &run.TaskSkewRatio, &run.StageCount,
		&run.RecordsIn, &run.RecordsOut, &run.SchemaVersion)
	if err != nil {
		return nil, err
	}
	if input != "" {
		run.Input = strings.Split(input, ",")
	}
	run.StartedAt = time.Unix(0, startedAt)
	run.Duration = time.Duration(durMillis) * time.Millisecond
	return &run, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
