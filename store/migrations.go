package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

type migration struct {
	version     int
	description string
	apply       func(tx *sql.Tx) error
}

// migrations is the ordered list of schema migrations. Append only.
var migrations = []migration{
	{
		version:     1,
		description: "initial schema (applied via schemaSQL)",
		apply:       func(tx *sql.Tx) error { return nil },
	},
	{
		version:     2,
		description: "index statistic cells by name across runs",
		apply: func(tx *sql.Tx) error {
			_, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_statistics_name ON statistics(statistic)")
			return err
		},
	},
	{
		version:     3,
		description: "partition trajectory vectors by run and statistic",
		apply:       partitionVecTables,
	},
}

// partitionVecTables rebuilds every trajectory vector table with the run_id
// partition key and statistic column, copying the stored vectors.
func partitionVecTables(tx *sql.Tx) error {
	rows, err := tx.Query("SELECT DISTINCT dim FROM trajectories")
	if err != nil {
		return err
	}
	var dims []int
	for rows.Next() {
		var d int
		if err := rows.Scan(&d); err != nil {
			rows.Close()
			return err
		}
		dims = append(dims, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, dim := range dims {
		var n int
		if err := tx.QueryRow(
			"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", vecTable(dim)).Scan(&n); err != nil {
			return err
		}
		if n == 0 {
			continue
		}

		type vec struct {
			id             int64
			run, statistic string
			embedding      []byte
		}
		rows, err := tx.Query(fmt.Sprintf(`
			SELECT v.trajectory_id, t.run_id, t.statistic, v.embedding
			FROM %s v JOIN trajectories t ON t.id = v.trajectory_id`, vecTable(dim)))
		if err != nil {
			return fmt.Errorf("reading %s: %w", vecTable(dim), err)
		}
		var vecs []vec
		for rows.Next() {
			var v vec
			if err := rows.Scan(&v.id, &v.run, &v.statistic, &v.embedding); err != nil {
				rows.Close()
				return err
			}
			vecs = append(vecs, v)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		if _, err := tx.Exec("DROP TABLE " + vecTable(dim)); err != nil {
			return fmt.Errorf("dropping %s: %w", vecTable(dim), err)
		}
		if _, err := tx.Exec(vecTableSQL(dim)); err != nil {
			return fmt.Errorf("creating %s: %w", vecTable(dim), err)
		}
		for _, v := range vecs {
			if _, err := tx.Exec(insertVecSQL(dim), v.id, v.run, v.statistic, v.embedding); err != nil {
				return fmt.Errorf("copying trajectory %d: %w", v.id, err)
			}
		}
		slog.Info("store: partitioned trajectory vectors", "table", vecTable(dim), "vectors", len(vecs))
	}
	return nil
}

// Migrate runs all pending schema migrations.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	row := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		slog.Info("store: applying migration", "version", m.version, "description", m.description)

		err := s.inTx(ctx, func(tx *sql.Tx) error {
			if err := m.apply(tx); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx,
				"INSERT INTO schema_version (version, description) VALUES (?, ?)",
				m.version, m.description)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
	}
	return nil
}

// SchemaVersion returns the highest applied migration.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v)
	return v, err
}
