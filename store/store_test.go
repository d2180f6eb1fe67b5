//go:build cgo

package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/brunobiangulo/bibnet/adjacency"
	"github.com/brunobiangulo/bibnet/network"
	"github.com/brunobiangulo/bibnet/record"
	"github.com/brunobiangulo/bibnet/stats"
	"github.com/brunobiangulo/bibnet/window"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestRun(t *testing.T, s *Store) Run {
	t.Helper()
	run, err := s.CreateRun(context.Background(), Run{
		Mode: "simple", EntityKind: "authors",
		WindowWidth: 3, YearStart: 2000, YearEnd: 2002,
		Records: 3, Config: `{"window_width":3}`,
	})
	if err != nil {
		t.Fatalf("creating run: %v", err)
	}
	return run
}

func sampleNetworks(t *testing.T) (*window.Networks, *network.Series) {
	t.Helper()
	records := []record.Paper{
		{Authors: []record.EntityID{"A", "B"}, Year: 2000},
		{Authors: []record.EntityID{"A", "C"}, Year: 2001},
		{Authors: []record.EntityID{"B", "C"}, Year: 2002},
	}
	nets, err := window.Assemble(context.Background(), records,
		window.Spec{Width: 3, Start: 2000, End: 2002}, adjacency.Simple, nil)
	if err != nil {
		t.Fatalf("assembling: %v", err)
	}
	return nets, network.MaterializeAll(nets)
}

// ---------------------------------------------------------------------------
// Schema / construction
// ---------------------------------------------------------------------------

func TestNewAppliesMigrations(t *testing.T) {
	s := newTestStore(t)
	v, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatalf("schema version: %v", err)
	}
	if v != len(migrations) {
		t.Fatalf("expected schema version %d, got %d", len(migrations), v)
	}
	if s.DB() == nil {
		t.Fatal("expected non-nil *sql.DB")
	}
}

func TestNewIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "dir", "test.db")
	s, err := New(path)
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()

	s, err = New(path)
	if err != nil {
		t.Fatalf("reopening store: %v", err)
	}
	s.Close()
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

func TestCreateAndListRuns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := newTestRun(t, s)
	if first.ID == "" || first.CreatedAt == "" {
		t.Fatalf("expected id and timestamp, got %+v", first)
	}
	second := newTestRun(t, s)

	runs, err := s.ListRuns(ctx)
	if err != nil {
		t.Fatalf("listing runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != second.ID {
		t.Errorf("expected newest run first, got %s", runs[0].ID)
	}
	if runs[1].Config != `{"window_width":3}` {
		t.Errorf("unexpected config %q", runs[1].Config)
	}

	if _, err := s.GetRun(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// Networks and results
// ---------------------------------------------------------------------------

func TestSaveNetworks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := newTestRun(t, s)
	nets, series := sampleNetworks(t)

	if err := s.SaveNetworks(ctx, run.ID, nets, series); err != nil {
		t.Fatalf("saving networks: %v", err)
	}

	edges, err := s.Edges(ctx, run.ID, 2000)
	if err != nil {
		t.Fatalf("loading edges: %v", err)
	}
	if len(edges) != 2 {
		t.Fatalf("expected 2 edges in window 2000, got %d", len(edges))
	}
	if edges[0].U != "A" || edges[0].V != "B" || edges[0].Weight != 1 {
		t.Errorf("unexpected first edge %+v", edges[0])
	}

	res, err := s.LoadResult(ctx, run.ID)
	if err != nil {
		t.Fatalf("loading result: %v", err)
	}
	if len(res.Windows) != 3 {
		t.Fatalf("expected 3 windows, got %d", len(res.Windows))
	}
	if w := res.Windows[1]; w.Key != 2001 || w.Records != 3 || w.Edges != 3 || w.Nodes != 3 {
		t.Errorf("unexpected window row %+v", w)
	}
}

func TestSaveAndLoadResult(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := newTestRun(t, s)
	_, series := sampleNetworks(t)

	edgeless := network.Materialize(adjacency.Map{"X": {"X": 1}}, nil)
	series.Put(2003, edgeless)

	result, err := stats.NewEngine(nil).Compute(ctx, series,
		[]string{stats.Edges, stats.EigenvectorCentrality, stats.PartitionModularity}, stats.Options{})
	if err != nil {
		t.Fatalf("computing: %v", err)
	}
	if err := s.SaveResult(ctx, run.ID, result); err != nil {
		t.Fatalf("saving result: %v", err)
	}

	loaded, err := s.LoadResult(ctx, run.ID)
	if err != nil {
		t.Fatalf("loading result: %v", err)
	}
	if len(loaded.Cells) != 8 {
		t.Fatalf("expected 8 cells, got %d", len(loaded.Cells))
	}

	var failed, edges int
	for _, c := range loaded.Cells {
		switch c.Statistic {
		case stats.Edges:
			v, ok := c.Float()
			if !ok {
				t.Errorf("edges cell not numeric: %+v", c)
			}
			if c.Window == 2001 && v != 3 {
				t.Errorf("expected 3 edges in 2001, got %v", v)
			}
			edges++
		case stats.EigenvectorCentrality:
			if c.Error != "" {
				failed++
				if c.Window != 2003 {
					t.Errorf("unexpected failure in window %d", c.Window)
				}
				continue
			}
			vals, err := c.NodeValues()
			if err != nil {
				t.Fatalf("decoding node values: %v", err)
			}
			if len(vals) == 0 {
				t.Errorf("empty centrality in window %d", c.Window)
			}
		}
	}
	if edges != 4 || failed != 1 {
		t.Errorf("expected 4 edge cells and 1 failure, got %d and %d", edges, failed)
	}

	if len(loaded.Diagnostics) != 2 {
		t.Fatalf("expected 2 diagnostics, got %d", len(loaded.Diagnostics))
	}
	dropped := loaded.Diagnostics[0]
	if dropped.Window != nil || dropped.Statistic != stats.PartitionModularity {
		t.Errorf("unexpected dropped diagnostic %+v", dropped)
	}
	if cell := loaded.Diagnostics[1]; cell.Window == nil || *cell.Window != 2003 {
		t.Errorf("unexpected cell diagnostic %+v", cell)
	}
}

// ---------------------------------------------------------------------------
// Trajectories
// ---------------------------------------------------------------------------

func TestSimilarTrajectories(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := newTestRun(t, s)
	other := newTestRun(t, s)

	vectors := map[record.EntityID][]float32{
		"A": {1, 2, 3},
		"B": {1, 2, 4},
		"C": {9, 9, 9},
		"D": {1, 2, 3.5},
	}
	if err := s.SaveTrajectories(ctx, run.ID, stats.NodeWeight, vectors); err != nil {
		t.Fatalf("saving trajectories: %v", err)
	}
	if err := s.SaveTrajectories(ctx, other.ID, stats.NodeWeight, map[record.EntityID][]float32{"Z": {1, 2, 3}}); err != nil {
		t.Fatalf("saving other trajectories: %v", err)
	}

	got, err := s.SimilarTrajectories(ctx, run.ID, stats.NodeWeight, "A", 2)
	if err != nil {
		t.Fatalf("similar: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 neighbours, got %d", len(got))
	}
	if got[0].Entity != "D" || got[1].Entity != "B" {
		t.Errorf("unexpected order %s, %s", got[0].Entity, got[1].Entity)
	}
	if got[0].Distance > got[1].Distance {
		t.Errorf("distances not ascending: %v", got)
	}
	if len(got[0].Vector) != 3 || got[0].Vector[2] != 3.5 {
		t.Errorf("unexpected vector %v", got[0].Vector)
	}

	if _, err := s.SimilarTrajectories(ctx, run.ID, stats.NodeWeight, "nobody", 2); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	// Re-saving replaces the vector.
	if err := s.SaveTrajectories(ctx, run.ID, stats.NodeWeight, map[record.EntityID][]float32{"C": {1, 2, 3}}); err != nil {
		t.Fatalf("replacing trajectory: %v", err)
	}
	v, err := s.Trajectory(ctx, run.ID, stats.NodeWeight, "C")
	if err != nil {
		t.Fatalf("reading trajectory: %v", err)
	}
	if v[0] != 1 {
		t.Errorf("expected replaced vector, got %v", v)
	}
}

func TestSimilarTrajectoriesScopedToRunAndStatistic(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := newTestRun(t, s)
	crowd := newTestRun(t, s)

	if err := s.SaveTrajectories(ctx, run.ID, stats.NodeWeight, map[record.EntityID][]float32{
		"A": {0, 0, 0},
		"B": {5, 5, 5},
	}); err != nil {
		t.Fatalf("saving trajectories: %v", err)
	}
	// More exact matches than a single KNN query can return, all in another run.
	near := make(map[record.EntityID][]float32, maxKNN+10)
	for i := 0; i < maxKNN+10; i++ {
		near[record.EntityID(fmt.Sprintf("N%05d", i))] = []float32{0, 0, 0}
	}
	if err := s.SaveTrajectories(ctx, crowd.ID, stats.NodeWeight, near); err != nil {
		t.Fatalf("saving crowd trajectories: %v", err)
	}
	// Same run, other statistic, also closer than B.
	if err := s.SaveTrajectories(ctx, run.ID, stats.DegreeCentrality, map[record.EntityID][]float32{
		"C": {0, 0, 0.1},
	}); err != nil {
		t.Fatalf("saving other statistic: %v", err)
	}

	got, err := s.SimilarTrajectories(ctx, run.ID, stats.NodeWeight, "A", 1)
	if err != nil {
		t.Fatalf("similar: %v", err)
	}
	if len(got) != 1 || got[0].Entity != "B" {
		t.Fatalf("expected B as the only neighbour, got %v", got)
	}

	var n int
	if err := s.db.QueryRowContext(ctx,
		fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE run_id = ? AND statistic = ?", vecTable(3)),
		run.ID, stats.NodeWeight).Scan(&n); err != nil {
		t.Fatalf("counting partition: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 vectors in the run partition, got %d", n)
	}
}

func TestSaveTrajectoriesRejectsRaggedVectors(t *testing.T) {
	s := newTestStore(t)
	run := newTestRun(t, s)
	err := s.SaveTrajectories(context.Background(), run.ID, stats.NodeWeight, map[record.EntityID][]float32{
		"A": {1, 2},
		"B": {1, 2, 3},
	})
	if err == nil {
		t.Fatal("expected error for ragged vectors")
	}
}

func TestDeleteRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	run := newTestRun(t, s)
	nets, series := sampleNetworks(t)

	if err := s.SaveNetworks(ctx, run.ID, nets, series); err != nil {
		t.Fatalf("saving networks: %v", err)
	}
	if err := s.SaveTrajectories(ctx, run.ID, stats.NodeWeight, map[record.EntityID][]float32{"A": {1, 2, 3}}); err != nil {
		t.Fatalf("saving trajectories: %v", err)
	}

	if err := s.DeleteRun(ctx, run.ID); err != nil {
		t.Fatalf("deleting run: %v", err)
	}
	if _, err := s.LoadResult(ctx, run.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	var n int
	if err := s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM edges").Scan(&n); err != nil {
		t.Fatalf("counting edges: %v", err)
	}
	if n != 0 {
		t.Errorf("expected edges removed by cascade, got %d", n)
	}
	if err := s.DB().QueryRowContext(ctx, "SELECT COUNT(*) FROM "+vecTable(3)).Scan(&n); err != nil {
		t.Fatalf("counting vectors: %v", err)
	}
	if n != 0 {
		t.Errorf("expected vectors removed, got %d", n)
	}

	if err := s.DeleteRun(ctx, run.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for second delete, got %v", err)
	}
}
