package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/brunobiangulo/bibnet/record"
)

// maxKNN is the largest k sqlite-vec accepts in a KNN query.
const maxKNN = 4096

// Neighbor is a trajectory close to a query trajectory.
type Neighbor struct {
	Entity   record.EntityID `json:"entity"`
	Distance float64         `json:"distance"`
	Vector   []float32       `json:"vector"`
}

// SaveTrajectories stores one vector per entity for a statistic of a run.
// All vectors must have the same, non-zero length.
func (s *Store) SaveTrajectories(ctx context.Context, runID, statistic string, vectors map[record.EntityID][]float32) error {
	if len(vectors) == 0 {
		return nil
	}
	dim := -1
	entities := make([]record.EntityID, 0, len(vectors))
	for e, v := range vectors {
		if dim == -1 {
			dim = len(v)
		}
		if len(v) != dim || dim == 0 {
			return fmt.Errorf("trajectory for %s has length %d, want %d", e, len(v), dim)
		}
		entities = append(entities, e)
	}
	sort.Slice(entities, func(i, j int) bool { return entities[i] < entities[j] })

	if _, err := s.db.ExecContext(ctx, vecTableSQL(dim)); err != nil {
		return fmt.Errorf("creating vector table: %w", err)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, e := range entities {
			var old int64
			err := tx.QueryRowContext(ctx,
				"SELECT id FROM trajectories WHERE run_id = ? AND statistic = ? AND entity = ?",
				runID, statistic, string(e)).Scan(&old)
			switch {
			case err == nil:
				if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE trajectory_id = ?", vecTable(dim)), old); err != nil {
					return err
				}
				if _, err := tx.ExecContext(ctx, "DELETE FROM trajectories WHERE id = ?", old); err != nil {
					return err
				}
			case !errors.Is(err, sql.ErrNoRows):
				return err
			}

			res, err := tx.ExecContext(ctx,
				"INSERT INTO trajectories (run_id, statistic, entity, dim) VALUES (?, ?, ?, ?)",
				runID, statistic, string(e), dim)
			if err != nil {
				return fmt.Errorf("inserting trajectory %s: %w", e, err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, insertVecSQL(dim),
				id, runID, statistic, serializeFloat32(vectors[e])); err != nil {
				return fmt.Errorf("inserting vector %s: %w", e, err)
			}
		}
		return nil
	})
}

// Trajectory returns the stored vector of one entity.
func (s *Store) Trajectory(ctx context.Context, runID, statistic string, entity record.EntityID) ([]float32, error) {
	id, dim, err := s.trajectoryID(ctx, runID, statistic, entity)
	if err != nil {
		return nil, err
	}
	var blob []byte
	if err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT embedding FROM %s WHERE trajectory_id = ?", vecTable(dim)), id).Scan(&blob); err != nil {
		return nil, fmt.Errorf("reading vector: %w", err)
	}
	return deserializeFloat32(blob), nil
}

// SimilarTrajectories returns up to k entities of the same run and
// statistic whose trajectories are nearest to entity's, closest first. The
// entity itself is excluded.
func (s *Store) SimilarTrajectories(ctx context.Context, runID, statistic string, entity record.EntityID, k int) ([]Neighbor, error) {
	if k <= 0 {
		return nil, nil
	}
	selfID, dim, err := s.trajectoryID(ctx, runID, statistic, entity)
	if err != nil {
		return nil, err
	}
	query, err := s.Trajectory(ctx, runID, statistic, entity)
	if err != nil {
		return nil, err
	}

	// The query vector is its own nearest neighbour; ask for one extra row.
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		WITH knn AS (
			SELECT trajectory_id, distance, embedding
			FROM %s
			WHERE embedding MATCH ? AND k = ? AND run_id = ? AND statistic = ?
		)
		SELECT t.entity, knn.distance, knn.embedding
		FROM knn
		JOIN trajectories t ON t.id = knn.trajectory_id
		WHERE t.id != ?
		ORDER BY knn.distance, t.entity
	`, vecTable(dim)), serializeFloat32(query), min(k+1, maxKNN), runID, statistic, selfID)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var out []Neighbor
	for rows.Next() {
		var n Neighbor
		var blob []byte
		if err := rows.Scan(&n.Entity, &n.Distance, &blob); err != nil {
			return nil, err
		}
		n.Vector = deserializeFloat32(blob)
		out = append(out, n)
		if len(out) == k {
			break
		}
	}
	return out, rows.Err()
}

func (s *Store) trajectoryID(ctx context.Context, runID, statistic string, entity record.EntityID) (int64, int, error) {
	var id int64
	var dim int
	err := s.db.QueryRowContext(ctx,
		"SELECT id, dim FROM trajectories WHERE run_id = ? AND statistic = ? AND entity = ?",
		runID, statistic, string(entity)).Scan(&id, &dim)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, fmt.Errorf("trajectory %s/%s/%s: %w", runID, statistic, entity, ErrNotFound)
	}
	return id, dim, err
}

func trajectoryDims(ctx context.Context, tx *sql.Tx, runID string) ([]int, error) {
	rows, err := tx.QueryContext(ctx, "SELECT DISTINCT dim FROM trajectories WHERE run_id = ?", runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var dims []int
	for rows.Next() {
		var d int
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		dims = append(dims, d)
	}
	return dims, rows.Err()
}
