package partition

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/community"

	"github.com/brunobiangulo/bibnet/network"
)

// defaultMaxPasses caps the local-moving passes of Greedy.
const defaultMaxPasses = 20

// Detector finds a community assignment for a graph.
type Detector interface {
	Detect(g *network.Graph) (Assignment, error)
}

// Louvain runs gonum's multi-level Louvain optimisation. A fixed Seed makes
// the result reproducible.
type Louvain struct {
	Resolution float64
	Seed       uint64
}

// Detect implements Detector.
func (l Louvain) Detect(g *network.Graph) (Assignment, error) {
	if g.NodeCount() == 0 || g.EdgeCount() == 0 {
		return nil, ErrEmptyGraph
	}
	res := l.Resolution
	if res <= 0 {
		res = 1
	}
	reduced := community.Modularize(g, res, rand.NewPCG(l.Seed, l.Seed^0x9e3779b97f4a7c15))
	return fromCommunities(g, reduced.Communities()), nil
}

// Greedy is single-level local moving: every node starts alone and moves to
// the neighbouring community with the best modularity gain until a pass
// moves nothing or MaxPasses is reached. Nodes are visited in id order, so
// the result is deterministic.
type Greedy struct {
	MaxPasses int
}

// Detect implements Detector.
func (d Greedy) Detect(g *network.Graph) (Assignment, error) {
	n := g.NodeCount()
	if n == 0 || g.EdgeCount() == 0 {
		return nil, ErrEmptyGraph
	}
	maxPasses := d.MaxPasses
	if maxPasses <= 0 {
		maxPasses = defaultMaxPasses
	}

	comm := make([]int, n)
	strength := make([]float64, n)
	commStrength := make([]float64, n)
	var m2 float64
	for i := range n {
		comm[i] = i
		strength[i] = g.Strength(int64(i))
		commStrength[i] = strength[i]
		m2 += strength[i]
	}

	for pass := 0; pass < maxPasses; pass++ {
		moved := 0
		for i := range n {
			// Weight from i to each neighbouring community.
			linked := make(map[int]float64)
			to := g.From(int64(i))
			for to.Next() {
				j := to.Node().ID()
				w, _ := g.Weight(int64(i), j)
				linked[comm[j]] += w
			}

			current := comm[i]
			ki := strength[i]
			commStrength[current] -= ki

			candidates := make([]int, 0, len(linked))
			for c := range linked {
				candidates = append(candidates, c)
			}
			sort.Ints(candidates)

			best := current
			bestGain := linked[current] - commStrength[current]*ki/m2
			for _, c := range candidates {
				if gain := linked[c] - commStrength[c]*ki/m2; gain > bestGain {
					best, bestGain = c, gain
				}
			}

			commStrength[best] += ki
			if best != current {
				comm[i] = best
				moved++
			}
		}
		slog.Debug("partition: greedy pass", "pass", pass, "moved", moved)
		if moved == 0 {
			break
		}
	}

	// Relabel 0..k-1 in order of the lowest member id.
	relabel := make(map[int]int)
	out := make(Assignment, n)
	for i, e := range g.Entities() {
		l, ok := relabel[comm[i]]
		if !ok {
			l = len(relabel)
			relabel[comm[i]] = l
		}
		out[e] = l
	}
	return out, nil
}

// ParseDetector returns the detector named "louvain" or "greedy".
func ParseDetector(name string, seed uint64) (Detector, error) {
	switch name {
	case "", "louvain":
		return Louvain{Resolution: 1, Seed: seed}, nil
	case "greedy":
		return Greedy{}, nil
	default:
		return nil, fmt.Errorf("unknown community detector %q", name)
	}
}

// Best runs d on g and scores the assignment against the same graph. It
// returns the assignment, its modularity and its community count.
func Best(g *network.Graph, d Detector) (Assignment, float64, int, error) {
	a, err := d.Detect(g)
	if err != nil {
		return nil, 0, 0, err
	}
	q, err := Modularity(g, a)
	if err != nil {
		return nil, 0, 0, err
	}
	return a, q, a.Count(), nil
}

// fromCommunities labels communities 0..k-1 ordered by their lowest node id.
func fromCommunities(g *network.Graph, comms [][]graph.Node) Assignment {
	type group struct {
		low int64
		ids []int64
	}
	groups := make([]group, 0, len(comms))
	for _, c := range comms {
		if len(c) == 0 {
			continue
		}
		grp := group{low: c[0].ID()}
		for _, n := range c {
			grp.ids = append(grp.ids, n.ID())
			grp.low = min(grp.low, n.ID())
		}
		groups = append(groups, grp)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].low < groups[j].low })

	out := make(Assignment, g.NodeCount())
	for label, grp := range groups {
		for _, id := range grp.ids {
			out[g.Entity(id)] = label
		}
	}
	return out
}
