// Package history persists run metrics and aggregation results in a
// SQLite database so later runs can compare against a labelled baseline.
package history

// CreateRunsTableSQL creates the runs table, one row per pipeline run.
const CreateRunsTableSQL = `
CREATE TABLE IF NOT EXISTS runs (
    run_id TEXT PRIMARY KEY,
    label TEXT NOT NULL,
    input TEXT NOT NULL,
    started_at INTEGER NOT NULL,
    duration_ms INTEGER NOT NULL,
    shuffle_bytes INTEGER NOT NULL,
    cpu_utilization REAL NOT NULL,
    task_skew_ratio REAL NOT NULL,
    stage_count INTEGER NOT NULL,
    records_in INTEGER NOT NULL,
    records_out INTEGER NOT NULL,
    schema_version INTEGER NOT NULL DEFAULT 0
)`

// CreateRunGroupsTableSQL creates the per-group aggregation results.
const CreateRunGroupsTableSQL = `
CREATE TABLE IF NOT EXISTS run_groups (
    run_id TEXT NOT NULL,
    group_key TEXT NOT NULL,
    position INTEGER NOT NULL,
    trip_count INTEGER NOT NULL,
    avg_distance REAL NOT NULL,
    total_revenue REAL NOT NULL,
    PRIMARY KEY (run_id, group_key),
    FOREIGN KEY (run_id) REFERENCES runs(run_id) ON DELETE CASCADE
)`

// CreateSchemaVersionsTableSQL stores each distinct input schema once.
const CreateSchemaVersionsTableSQL = `
CREATE TABLE IF NOT EXISTS schema_versions (
    version INTEGER PRIMARY KEY,
    schema_json TEXT NOT NULL,
    created_at INTEGER NOT NULL
)`

// CreateIndexesSQL creates indexes for label lookups and listing.
var CreateIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_runs_label ON runs(label, started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at)`,
}

// AllSchemaSQL returns every statement needed to initialize the database.
func AllSchemaSQL() []string {
	stmts := []string{CreateRunsTableSQL, CreateRunGroupsTableSQL, CreateSchemaVersionsTableSQL}
	return append(stmts, CreateIndexesSQL...)
}
