package store

import "fmt"

// schemaSQL is the DDL for all fixed tables. Trajectory vector tables are
// created per dimension by vecTableSQL.
const schemaSQL = `
-- One row per analysis run
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    mode TEXT NOT NULL,
    entity_kind TEXT NOT NULL,
    window_width INTEGER NOT NULL,
    year_start INTEGER NOT NULL,
    year_end INTEGER NOT NULL,
    records INTEGER DEFAULT 0,
    undated INTEGER DEFAULT 0,
    config JSON
);

-- Per-window network summary
CREATE TABLE IF NOT EXISTS windows (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    window_key INTEGER NOT NULL,
    records INTEGER NOT NULL,
    skipped INTEGER NOT NULL,
    nodes INTEGER NOT NULL,
    edges INTEGER NOT NULL,
    PRIMARY KEY (run_id, window_key)
);

-- Materialized undirected edges, source < target
CREATE TABLE IF NOT EXISTS edges (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    window_key INTEGER NOT NULL,
    source TEXT NOT NULL,
    target TEXT NOT NULL,
    weight REAL NOT NULL,
    PRIMARY KEY (run_id, window_key, source, target)
);

-- Node occurrence counts
CREATE TABLE IF NOT EXISTS node_weights (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    window_key INTEGER NOT NULL,
    entity TEXT NOT NULL,
    weight REAL NOT NULL,
    PRIMARY KEY (run_id, window_key, entity)
);

-- Statistic cells; exactly one of value / error is set
CREATE TABLE IF NOT EXISTS statistics (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    statistic TEXT NOT NULL,
    window_key INTEGER NOT NULL,
    value JSON,
    error TEXT,
    PRIMARY KEY (run_id, statistic, window_key)
);

-- Failed cells and dropped statistics
CREATE TABLE IF NOT EXISTS diagnostics (
    id INTEGER PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    window_key INTEGER,
    statistic TEXT NOT NULL,
    message TEXT NOT NULL
);

-- Per-entity statistic time series; vectors live in vec_trajectories_<dim>
CREATE TABLE IF NOT EXISTS trajectories (
    id INTEGER PRIMARY KEY,
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    statistic TEXT NOT NULL,
    entity TEXT NOT NULL,
    dim INTEGER NOT NULL,
    UNIQUE(run_id, statistic, entity)
);

CREATE INDEX IF NOT EXISTS idx_edges_window ON edges(run_id, window_key);
CREATE INDEX IF NOT EXISTS idx_diagnostics_run ON diagnostics(run_id);
CREATE INDEX IF NOT EXISTS idx_trajectories_run ON trajectories(run_id, statistic);
`

func vecTable(dim int) string { return fmt.Sprintf("vec_trajectories_%d", dim) }

// vecTableSQL creates the sqlite-vec table holding trajectories of length
// dim. Vectors are partitioned by run and tagged with their statistic so KNN
// queries only scan the requested series.
func vecTableSQL(dim int) string {
	return fmt.Sprintf(`
CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(
    trajectory_id INTEGER PRIMARY KEY,
    run_id TEXT PARTITION KEY,
    statistic TEXT,
    embedding float[%d]
);`, vecTable(dim), dim)
}

func insertVecSQL(dim int) string {
	return fmt.Sprintf("INSERT INTO %s (trajectory_id, run_id, statistic, embedding) VALUES (?, ?, ?, ?)", vecTable(dim))
}
