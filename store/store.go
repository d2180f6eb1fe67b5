// Package store persists analysis runs in SQLite: windowed networks,
// statistic cells, diagnostics, and per-entity trajectories searchable by
// vector similarity through sqlite-vec.
package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/brunobiangulo/bibnet/network"
	"github.com/brunobiangulo/bibnet/stats"
	"github.com/brunobiangulo/bibnet/window"
)

func init() {
	sqlite_vec.Auto()
}

// ErrNotFound is returned when a run or trajectory does not exist.
var ErrNotFound = errors.New("store: not found")

// Run is a row of the runs table.
type Run struct {
	ID          string `json:"id"`
	CreatedAt   string `json:"created_at"`
	Mode        string `json:"mode"`
	EntityKind  string `json:"entity_kind"`
	WindowWidth int    `json:"window_width"`
	YearStart   int    `json:"year_start"`
	YearEnd     int    `json:"year_end"`
	Records     int    `json:"records"`
	Undated     int    `json:"undated"`
	Config      string `json:"config,omitempty"`
}

// Window is a row of the windows table.
type Window struct {
	Key     int `json:"window"`
	Records int `json:"records"`
	Skipped int `json:"skipped"`
	Nodes   int `json:"nodes"`
	Edges   int `json:"edges"`
}

// Cell is a stored statistic cell. Value holds the JSON encoding of the
// computed value; Error is set instead when the cell failed.
type Cell struct {
	Window    int             `json:"window"`
	Statistic string          `json:"statistic"`
	Value     json.RawMessage `json:"value,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Float decodes a numeric cell.
func (c Cell) Float() (float64, bool) {
	if c.Error != "" || len(c.Value) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(c.Value, &f); err != nil {
		return 0, false
	}
	return f, true
}

// NodeValues decodes a per-node cell.
func (c Cell) NodeValues() (stats.NodeValues, error) {
	if c.Error != "" {
		return nil, errors.New(c.Error)
	}
	var v stats.NodeValues
	if err := json.Unmarshal(c.Value, &v); err != nil {
		return nil, fmt.Errorf("decoding %s window %d: %w", c.Statistic, c.Window, err)
	}
	return v, nil
}

// Diagnostic is a row of the diagnostics table. Window is nil for
// diagnostics that concern the whole run.
type Diagnostic struct {
	Window    *int   `json:"window,omitempty"`
	Statistic string `json:"statistic"`
	Message   string `json:"message"`
}

// StoredResult is everything persisted for a run.
type StoredResult struct {
	Run         Run
	Windows     []Window
	Cells       []Cell
	Diagnostics []Diagnostic
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and applies
// the schema and pending migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Runs ---

// CreateRun inserts a run and returns it with a fresh UUID and timestamp.
func (s *Store) CreateRun(ctx context.Context, r Run) (Run, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Config == "" {
		r.Config = "{}"
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, mode, entity_kind, window_width, year_start, year_end, records, undated, config)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Mode, r.EntityKind, r.WindowWidth, r.YearStart, r.YearEnd, r.Records, r.Undated, r.Config)
	if err != nil {
		return Run{}, fmt.Errorf("inserting run: %w", err)
	}
	return s.GetRun(ctx, r.ID)
}

// GetRun returns one run.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	var r Run
	var config sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, created_at, mode, entity_kind, window_width, year_start, year_end, records, undated, config
		FROM runs WHERE id = ?
	`, id).Scan(&r.ID, &r.CreatedAt, &r.Mode, &r.EntityKind, &r.WindowWidth,
		&r.YearStart, &r.YearEnd, &r.Records, &r.Undated, &config)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, err
	}
	r.Config = config.String
	return r, nil
}

// ListRuns returns all runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, mode, entity_kind, window_width, year_start, year_end, records, undated, config
		FROM runs ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var config sql.NullString
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Mode, &r.EntityKind, &r.WindowWidth,
			&r.YearStart, &r.YearEnd, &r.Records, &r.Undated, &config); err != nil {
			return nil, err
		}
		r.Config = config.String
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// DeleteRun removes a run and everything stored for it.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		dims, err := trajectoryDims(ctx, tx, id)
		if err != nil {
			return err
		}
		for _, dim := range dims {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
				DELETE FROM %s WHERE trajectory_id IN (
					SELECT id FROM trajectories WHERE run_id = ? AND dim = ?
				)`, vecTable(dim)), id, dim); err != nil {
				return fmt.Errorf("deleting vectors: %w", err)
			}
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("run %s: %w", id, ErrNotFound)
		}
		return nil
	})
}

// --- Networks ---

// SaveNetworks stores the per-window summaries, edges and node weights.
func (s *Store) SaveNetworks(ctx context.Context, runID string, nets *window.Networks, series *network.Series) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		winStmt, err := tx.PrepareContext(ctx,
			"INSERT OR REPLACE INTO windows (run_id, window_key, records, skipped, nodes, edges) VALUES (?, ?, ?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer winStmt.Close()
		edgeStmt, err := tx.PrepareContext(ctx,
			"INSERT OR REPLACE INTO edges (run_id, window_key, source, target, weight) VALUES (?, ?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer edgeStmt.Close()
		weightStmt, err := tx.PrepareContext(ctx,
			"INSERT OR REPLACE INTO node_weights (run_id, window_key, entity, weight) VALUES (?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer weightStmt.Close()

		for _, w := range series.Keys() {
			g := series.At(w)
			var records, skipped int
			if r := nets.At(w); r != nil {
				records, skipped = r.Records, r.Skipped
			}
			if _, err := winStmt.ExecContext(ctx, runID, w, records, skipped, g.NodeCount(), g.EdgeCount()); err != nil {
				return fmt.Errorf("window %d: %w", w, err)
			}
			for _, e := range g.EdgeList() {
				if _, err := edgeStmt.ExecContext(ctx, runID, w, string(e.U), string(e.V), e.Weight); err != nil {
					return fmt.Errorf("window %d edge %s-%s: %w", w, e.U, e.V, err)
				}
			}
			for _, e := range g.Entities() {
				if _, err := weightStmt.ExecContext(ctx, runID, w, string(e), g.NodeWeight(e)); err != nil {
					return fmt.Errorf("window %d node %s: %w", w, e, err)
				}
			}
		}
		return nil
	})
}

// Edges returns the stored edges of one window, ordered by endpoints.
func (s *Store) Edges(ctx context.Context, runID string, w int) ([]network.Edge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT source, target, weight FROM edges
		WHERE run_id = ? AND window_key = ?
		ORDER BY source, target
	`, runID, w)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []network.Edge
	for rows.Next() {
		var e network.Edge
		if err := rows.Scan(&e.U, &e.V, &e.Weight); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// --- Statistics ---

// SaveResult stores every cell and diagnostic of res.
func (s *Store) SaveResult(ctx context.Context, runID string, res *stats.Result) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		cellStmt, err := tx.PrepareContext(ctx,
			"INSERT OR REPLACE INTO statistics (run_id, statistic, window_key, value, error) VALUES (?, ?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer cellStmt.Close()

		for _, name := range res.Statistics {
			for _, w := range res.Windows {
				o, ok := res.Get(name, w)
				if !ok {
					continue
				}
				var value, errText any
				if o.OK() {
					data, err := json.Marshal(o.Value)
					if err != nil {
						errText = fmt.Sprintf("encoding value: %v", err)
					} else {
						value = string(data)
					}
				} else {
					errText = o.Err.Error()
				}
				if _, err := cellStmt.ExecContext(ctx, runID, name, w, value, errText); err != nil {
					return fmt.Errorf("%s window %d: %w", name, w, err)
				}
			}
		}

		for _, d := range res.Diagnostics {
			var w any
			if d.Window != stats.AllWindows {
				w = d.Window
			}
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO diagnostics (run_id, window_key, statistic, message) VALUES (?, ?, ?, ?)",
				runID, w, d.Statistic, d.Err.Error()); err != nil {
				return fmt.Errorf("diagnostic: %w", err)
			}
		}
		return nil
	})
}

// LoadResult returns the run with its windows, cells and diagnostics.
func (s *Store) LoadResult(ctx context.Context, runID string) (*StoredResult, error) {
	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := &StoredResult{Run: run}

	rows, err := s.db.QueryContext(ctx, `
		SELECT window_key, records, skipped, nodes, edges FROM windows
		WHERE run_id = ? ORDER BY window_key
	`, runID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var w Window
		if err := rows.Scan(&w.Key, &w.Records, &w.Skipped, &w.Nodes, &w.Edges); err != nil {
			rows.Close()
			return nil, err
		}
		out.Windows = append(out.Windows, w)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT statistic, window_key, value, error FROM statistics
		WHERE run_id = ? ORDER BY statistic, window_key
	`, runID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var c Cell
		var value, errText sql.NullString
		if err := rows.Scan(&c.Statistic, &c.Window, &value, &errText); err != nil {
			rows.Close()
			return nil, err
		}
		if value.Valid {
			c.Value = json.RawMessage(value.String)
		}
		c.Error = errText.String
		out.Cells = append(out.Cells, c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, `
		SELECT window_key, statistic, message FROM diagnostics
		WHERE run_id = ? ORDER BY id
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var d Diagnostic
		var w sql.NullInt64
		if err := rows.Scan(&w, &d.Statistic, &d.Message); err != nil {
			return nil, err
		}
		if w.Valid {
			v := int(w.Int64)
			d.Window = &v
		}
		out.Diagnostics = append(out.Diagnostics, d)
	}
	return out, rows.Err()
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// serializeFloat32 converts a float32 slice to little-endian bytes for sqlite-vec.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func deserializeFloat32(b []byte) []float32 {
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
