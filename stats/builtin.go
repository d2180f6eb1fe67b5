package stats

import (
	"fmt"
	"math"
	"sort"

	gnetwork "gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/path"
	"gonum.org/v1/gonum/graph/topo"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/brunobiangulo/bibnet/network"
	"github.com/brunobiangulo/bibnet/partition"
	"github.com/brunobiangulo/bibnet/record"
)

// Names of the built-in statistics and views.
const (
	Edges                 = "edges"
	Nodes                 = "nodes"
	DegreeAssortativity   = "degree_assortativity"
	Components            = "components"
	DegreeCentrality      = "degree_centrality"
	BetweennessCentrality = "betweenness_centrality"
	EigenvectorCentrality = "eigenvector_centrality"
	Density               = "density"
	EdgeBetweenness       = "edge_betweenness"
	BestModularity        = "best_modularity"
	BestModularityVal     = "best_modularity_val"
	BestModularityNum     = "best_modularity_num"
	PartitionModularity   = "partition_modularity"
	NodeWeight            = "node_weight"
)

const (
	eigenMaxIter = 100
	eigenTol     = 1e-6
)

// NodeValues holds a per-node statistic.
type NodeValues map[record.EntityID]float64

// EdgeScore is the value of an edge statistic.
type EdgeScore struct {
	U     record.EntityID `json:"u"`
	V     record.EntityID `json:"v"`
	Score float64         `json:"score"`
}

// Partition is the value of best_modularity.
type Partition struct {
	Modularity  float64 `json:"modularity"`
	Communities int     `json:"communities"`
}

func builtins() []Statistic {
	return []Statistic{
		{Name: Edges, Description: "number of edges", Compute: edgeCount},
		{Name: Nodes, Description: "number of nodes", Compute: nodeCount},
		{Name: DegreeAssortativity, Description: "Pearson correlation of endpoint degrees", Compute: degreeAssortativity},
		{Name: Components, Description: "number of connected components", Compute: components},
		{Name: DegreeCentrality, Description: "degree divided by n-1", Compute: degreeCentrality},
		{Name: BetweennessCentrality, Description: "normalized betweenness, edge weight as distance", Compute: betweenness},
		{Name: EigenvectorCentrality, Description: "weighted eigenvector centrality", Compute: eigenvector},
		{Name: Density, Description: "2m / n(n-1)", Compute: density},
		{Name: EdgeBetweenness, Description: "normalized edge betweenness, edge weight as distance", Compute: edgeBetweenness},
		{
			Name:        BestModularity,
			Description: "modularity and community count of the detected partition",
			Compute:     bestModularity,
			Views: []View{
				{Name: BestModularityVal, Extract: func(v any) (any, error) {
					p, ok := v.(Partition)
					if !ok {
						return nil, fmt.Errorf("%w: %T is not a partition", ErrUndefined, v)
					}
					return p.Modularity, nil
				}},
				{Name: BestModularityNum, Extract: func(v any) (any, error) {
					p, ok := v.(Partition)
					if !ok {
						return nil, fmt.Errorf("%w: %T is not a partition", ErrUndefined, v)
					}
					return p.Communities, nil
				}},
			},
		},
		{Name: PartitionModularity, Description: "modularity of the supplied partition", NeedsPartition: true, Compute: partitionModularity},
		{Name: NodeWeight, Description: "node occurrence counts", Compute: nodeWeight},
	}
}

func edgeCount(g *network.Graph, _ Options) (any, error) { return g.EdgeCount(), nil }

func nodeCount(g *network.Graph, _ Options) (any, error) { return g.NodeCount(), nil }

func degreeAssortativity(g *network.Graph, _ Options) (any, error) {
	edges := g.WeightedEdges()
	if edges.Len() == 0 {
		return nil, ErrNoEdges
	}
	var x, y []float64
	for edges.Next() {
		e := edges.WeightedEdge()
		du := float64(g.Degree(e.From().ID()))
		dv := float64(g.Degree(e.To().ID()))
		x = append(x, du, dv)
		y = append(y, dv, du)
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return nil, fmt.Errorf("%w: degree variance is zero", ErrUndefined)
	}
	return r, nil
}

func components(g *network.Graph, _ Options) (any, error) {
	return len(topo.ConnectedComponents(g)), nil
}

func degreeCentrality(g *network.Graph, _ Options) (any, error) {
	n := g.NodeCount()
	out := make(NodeValues, n)
	if n == 1 {
		out[g.Entity(0)] = 1
		return out, nil
	}
	for id, e := range g.Entities() {
		out[e] = float64(g.Degree(int64(id))) / float64(n-1)
	}
	return out, nil
}

// betweenness matches networkx's normalized weighted betweenness: gonum
// counts each unordered pair twice, which the 1/((n-1)(n-2)) scale expects.
func betweenness(g *network.Graph, _ Options) (any, error) {
	n := g.NodeCount()
	out := make(NodeValues, n)
	if n == 0 {
		return out, nil
	}
	raw := gnetwork.BetweennessWeighted(g, path.DijkstraAllPaths(g))
	scale := 1.0
	if n > 2 {
		scale = 1 / float64((n-1)*(n-2))
	}
	for id, e := range g.Entities() {
		out[e] = raw[int64(id)] * scale
	}
	return out, nil
}

func edgeBetweenness(g *network.Graph, _ Options) (any, error) {
	n := g.NodeCount()
	if n == 0 {
		return []EdgeScore{}, nil
	}
	raw := gnetwork.EdgeBetweennessWeighted(g, path.DijkstraAllPaths(g))
	scale := 1.0
	if n > 1 {
		scale = 1 / float64(n*(n-1))
	}
	list := g.EdgeList()
	out := make([]EdgeScore, 0, len(list))
	for _, e := range list {
		u, _ := g.NodeID(e.U)
		v, _ := g.NodeID(e.V)
		if v < u {
			u, v = v, u
		}
		out = append(out, EdgeScore{U: e.U, V: e.V, Score: raw[[2]int64{u, v}] * scale})
	}
	return out, nil
}

// eigenvector runs the shifted power iteration x <- (A+I)x on the weighted
// adjacency matrix, normalising by the Euclidean norm, until the L1 change
// drops below n*tol.
func eigenvector(g *network.Graph, _ Options) (any, error) {
	n := g.NodeCount()
	if n == 0 || g.EdgeCount() == 0 {
		return nil, ErrNoEdges
	}

	a := mat.NewSymDense(n, nil)
	for _, e := range g.EdgeList() {
		u, _ := g.NodeID(e.U)
		v, _ := g.NodeID(e.V)
		a.SetSym(int(u), int(v), e.Weight)
	}

	x := mat.NewVecDense(n, nil)
	for i := range n {
		x.SetVec(i, 1/float64(n))
	}
	next := mat.NewVecDense(n, nil)
	for iter := 0; iter < eigenMaxIter; iter++ {
		next.MulVec(a, x)
		next.AddVec(next, x)
		norm := mat.Norm(next, 2)
		if norm == 0 {
			return nil, fmt.Errorf("%w: zero vector", ErrUndefined)
		}
		next.ScaleVec(1/norm, next)

		var diff float64
		for i := range n {
			diff += math.Abs(next.AtVec(i) - x.AtVec(i))
		}
		x.CopyVec(next)
		if diff < float64(n)*eigenTol {
			out := make(NodeValues, n)
			for i, e := range g.Entities() {
				out[e] = x.AtVec(i)
			}
			return out, nil
		}
	}
	return nil, fmt.Errorf("%w: eigenvector centrality after %d iterations", ErrNotConverged, eigenMaxIter)
}

func density(g *network.Graph, _ Options) (any, error) {
	n := g.NodeCount()
	if n <= 1 {
		return 0.0, nil
	}
	return 2 * float64(g.EdgeCount()) / float64(n*(n-1)), nil
}

func bestModularity(g *network.Graph, opts Options) (any, error) {
	_, q, count, err := partition.Best(g, opts.detector())
	if err != nil {
		return nil, err
	}
	return Partition{Modularity: q, Communities: count}, nil
}

func partitionModularity(g *network.Graph, opts Options) (any, error) {
	if opts.Partition == nil {
		return nil, ErrMissingPartition
	}
	return partition.Modularity(g, opts.Partition.AssignmentFor(g))
}

func nodeWeight(g *network.Graph, _ Options) (any, error) {
	out := make(NodeValues, g.NodeCount())
	for _, e := range g.Entities() {
		out[e] = g.NodeWeight(e)
	}
	return out, nil
}

// Sorted returns the node values ordered by descending value, ties by id.
func (v NodeValues) Sorted() []record.EntityID {
	ids := make([]record.EntityID, 0, len(v))
	for id := range v {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if v[ids[i]] != v[ids[j]] {
			return v[ids[i]] > v[ids[j]]
		}
		return ids[i] < ids[j]
	})
	return ids
}
