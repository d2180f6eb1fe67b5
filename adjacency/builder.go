package adjacency

import (
	"log/slog"

	"github.com/brunobiangulo/bibnet/record"
)

// Builder accumulates records into an adjacency map. It owns its accumulator
// until Finalize hands out the frozen Result; a finalized builder panics on
// further additions.
type Builder struct {
	mode     Mode
	selector *record.Selector

	adj       Map
	weights   NodeWeights
	primaries []record.EntityID
	seen      map[record.EntityID]struct{}
	records   int
	skipped   int
	done      bool
}

// NewBuilder creates a builder. A nil selector selects authors; in bipartite
// mode a selector without pairing is replaced by a paired copy keeping its
// filters.
func NewBuilder(mode Mode, sel *record.Selector) *Builder {
	if sel == nil {
		sel = record.NewSelector()
	}
	if mode == Bipartite && !sel.Paired() {
		sel = sel.WithPairs()
	}
	return &Builder{
		mode:     mode,
		selector: sel,
		adj:      make(Map),
		weights:  make(NodeWeights),
		seen:     make(map[record.EntityID]struct{}),
	}
}

// Add folds one paper into the accumulator. It reports whether the paper
// contributed; skipped papers are counted.
func (b *Builder) Add(p record.Paper) bool {
	b.mustOpen()
	primary, secondary, err := b.selector.Select(p)
	if err != nil {
		b.skipped++
		slog.Debug("adjacency: skipping record", "record", p.ID, "error", err)
		return false
	}
	return b.AddEntities(primary, secondary)
}

// AddEntities folds one record's entity lists into the accumulator. In simple
// mode secondary is ignored; in bipartite mode both lists must be non-empty.
func (b *Builder) AddEntities(primary, secondary []record.EntityID) bool {
	b.mustOpen()
	switch b.mode {
	case Bipartite:
		if len(primary) == 0 || len(secondary) == 0 {
			b.skipped++
			return false
		}
		for _, p := range primary {
			b.notePrimary(p)
			b.weights[p]++
			for _, s := range secondary {
				b.increment(p, s)
			}
		}
		for _, s := range secondary {
			b.weights[s]++
		}
	default:
		if len(primary) == 0 {
			b.skipped++
			return false
		}
		lead := primary[0]
		for _, item := range primary {
			b.notePrimary(item)
			b.weights[item]++
		}
		for _, follow := range primary[1:] {
			if follow == lead {
				continue
			}
			b.increment(lead, follow)
		}
	}
	b.records++
	return true
}

// Finalize freezes the accumulator and returns the result. It may be called
// more than once; later calls return the same data.
func (b *Builder) Finalize() *Result {
	b.done = true
	return &Result{
		Adjacency: b.adj,
		Weights:   b.weights,
		Primaries: b.primaries,
		Records:   b.records,
		Skipped:   b.skipped,
	}
}

func (b *Builder) increment(u, v record.EntityID) {
	row, ok := b.adj[u]
	if !ok {
		row = make(map[record.EntityID]int)
		b.adj[u] = row
	}
	row[v]++
}

func (b *Builder) notePrimary(e record.EntityID) {
	if _, ok := b.seen[e]; ok {
		return
	}
	b.seen[e] = struct{}{}
	b.primaries = append(b.primaries, e)
}

func (b *Builder) mustOpen() {
	if b.done {
		panic("adjacency: builder used after Finalize")
	}
}

// Build runs a single builder over records.
func Build(records []record.Paper, mode Mode, sel *record.Selector) *Result {
	b := NewBuilder(mode, sel)
	for _, p := range records {
		b.Add(p)
	}
	return b.Finalize()
}
