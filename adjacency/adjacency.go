// Package adjacency folds paper records into weighted adjacency maps and
// per-entity occurrence counts.
package adjacency

import (
	"fmt"
	"sort"
	"strings"

	"github.com/brunobiangulo/bibnet/record"
)

// Mode selects how co-occurrences become edges.
type Mode int

const (
	// Simple links the lead (first) entity of a record to every other entity.
	Simple Mode = iota
	// Bipartite links every primary entity to every secondary entity.
	Bipartite
)

func (m Mode) String() string {
	switch m {
	case Simple:
		return "simple"
	case Bipartite:
		return "bipartite"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode parses "simple" or "bipartite".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "simple":
		return Simple, nil
	case "bipartite":
		return Bipartite, nil
	default:
		return 0, fmt.Errorf("unknown adjacency mode %q", s)
	}
}

// Map stores edge weights keyed by the entity the edge was recorded on. It
// is not symmetric: A[u][v] and A[v][u] are separate counters that are summed
// when the map is materialized as an undirected graph.
type Map map[record.EntityID]map[record.EntityID]int

// Weight returns the counter stored under A[u][v].
func (m Map) Weight(u, v record.EntityID) int {
	return m[u][v]
}

// Entities returns every id appearing as an outer or inner key, sorted.
func (m Map) Entities() []record.EntityID {
	seen := make(map[record.EntityID]struct{}, len(m))
	for u, row := range m {
		seen[u] = struct{}{}
		for v := range row {
			seen[v] = struct{}{}
		}
	}
	return sortedKeys(seen)
}

// EdgeCount returns the number of stored (outer, inner) pairs.
func (m Map) EdgeCount() int {
	n := 0
	for _, row := range m {
		n += len(row)
	}
	return n
}

// NodeWeights counts how often each entity occurred across the processed
// records.
type NodeWeights map[record.EntityID]int

// Total returns the sum of all occurrence counts.
func (w NodeWeights) Total() int {
	n := 0
	for _, c := range w {
		n += c
	}
	return n
}

// Result is the frozen output of one builder pass.
type Result struct {
	Adjacency Map
	Weights   NodeWeights

	// Primaries lists the distinct primary entities in first-seen order.
	Primaries []record.EntityID

	// Records counts records that contributed; Skipped counts records that
	// lacked a required entity list.
	Records int
	Skipped int
}

// Empty reports whether no record contributed.
func (r *Result) Empty() bool { return r.Records == 0 }

// Merge sums the adjacency counters and node weights of several results.
// Primaries keep first-seen order across the inputs.
func Merge(results ...*Result) *Result {
	out := &Result{Adjacency: make(Map), Weights: make(NodeWeights)}
	seen := make(map[record.EntityID]struct{})
	for _, r := range results {
		if r == nil {
			continue
		}
		for u, row := range r.Adjacency {
			dst, ok := out.Adjacency[u]
			if !ok {
				dst = make(map[record.EntityID]int, len(row))
				out.Adjacency[u] = dst
			}
			for v, w := range row {
				dst[v] += w
			}
		}
		for e, c := range r.Weights {
			out.Weights[e] += c
		}
		for _, p := range r.Primaries {
			if _, ok := seen[p]; !ok {
				seen[p] = struct{}{}
				out.Primaries = append(out.Primaries, p)
			}
		}
		out.Records += r.Records
		out.Skipped += r.Skipped
	}
	return out
}

func sortedKeys(set map[record.EntityID]struct{}) []record.EntityID {
	out := make([]record.EntityID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
