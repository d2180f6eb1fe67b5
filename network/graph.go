// Package network materializes adjacency maps as weighted undirected graphs.
package network

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"

	"github.com/brunobiangulo/bibnet/adjacency"
	"github.com/brunobiangulo/bibnet/record"
)

// AttrWeight is the node attribute holding the entity's occurrence count.
const AttrWeight = "weight"

// Node is a graph node carrying its entity id.
type Node struct {
	id     int64
	Entity record.EntityID
}

// ID implements graph.Node.
func (n Node) ID() int64 { return n.id }

// Graph is a read-only weighted undirected graph over entities. It embeds the
// gonum graph so it can be passed to gonum algorithms directly. Absent edges
// weigh +Inf so weights act as path lengths in shortest-path searches.
type Graph struct {
	*simple.WeightedUndirectedGraph

	entities []record.EntityID
	ids      map[record.EntityID]int64
	attrs    map[int64]map[string]float64
}

var _ graph.WeightedUndirected = (*Graph)(nil)

// Materialize builds a graph with one node per entity appearing in adj and
// one edge per linked pair; the edge weight of {u,v} is A[u][v] + A[v][u].
// Every node's "weight" attribute is taken from weights, defaulting to 0.
// Node ids follow the sorted entity order, so equal inputs give equal graphs.
func Materialize(adj adjacency.Map, weights adjacency.NodeWeights) *Graph {
	entities := adj.Entities()
	g := &Graph{
		WeightedUndirectedGraph: simple.NewWeightedUndirectedGraph(0, math.Inf(1)),
		entities:                entities,
		ids:                     make(map[record.EntityID]int64, len(entities)),
		attrs:                   make(map[int64]map[string]float64, len(entities)),
	}
	for i, e := range entities {
		id := int64(i)
		g.ids[e] = id
		g.AddNode(Node{id: id, Entity: e})
		g.attrs[id] = map[string]float64{AttrWeight: float64(weights[e])}
	}

	for _, u := range entities {
		row := adj[u]
		targets := make([]record.EntityID, 0, len(row))
		for v := range row {
			targets = append(targets, v)
		}
		sort.Slice(targets, func(i, j int) bool { return targets[i] < targets[j] })

		uid := g.ids[u]
		for _, v := range targets {
			if u == v {
				continue
			}
			vid := g.ids[v]
			w := float64(row[v])
			if existing, ok := g.WeightedUndirectedGraph.Weight(uid, vid); ok {
				w += existing
			}
			g.SetWeightedEdge(g.NewWeightedEdge(g.Node(uid), g.Node(vid), w))
		}
	}
	return g
}

// FromResult materializes an adjacency result.
func FromResult(r *adjacency.Result) *Graph {
	if r == nil {
		return Materialize(nil, nil)
	}
	return Materialize(r.Adjacency, r.Weights)
}

// Entities returns the node entities in id order.
func (g *Graph) Entities() []record.EntityID {
	return append([]record.EntityID(nil), g.entities...)
}

// Entity returns the entity for a node id.
func (g *Graph) Entity(id int64) record.EntityID {
	if id < 0 || id >= int64(len(g.entities)) {
		return ""
	}
	return g.entities[id]
}

// NodeID returns the node id for an entity.
func (g *Graph) NodeID(e record.EntityID) (int64, bool) {
	id, ok := g.ids[e]
	return id, ok
}

// NodeCount returns the number of nodes.
func (g *Graph) NodeCount() int { return len(g.entities) }

// EdgeCount returns the number of undirected edges.
func (g *Graph) EdgeCount() int { return g.WeightedEdges().Len() }

// Degree returns the number of neighbours of id.
func (g *Graph) Degree(id int64) int { return g.From(id).Len() }

// Strength returns the summed weight of the edges incident to id.
func (g *Graph) Strength(id int64) float64 {
	var s float64
	to := g.From(id)
	for to.Next() {
		w, _ := g.WeightedUndirectedGraph.Weight(id, to.Node().ID())
		s += w
	}
	return s
}

// EdgeWeight returns the weight of {u,v} and whether the edge exists.
func (g *Graph) EdgeWeight(u, v record.EntityID) (float64, bool) {
	uid, ok := g.ids[u]
	if !ok {
		return 0, false
	}
	vid, ok := g.ids[v]
	if !ok || uid == vid {
		return 0, false
	}
	e := g.WeightedEdge(uid, vid)
	if e == nil {
		return 0, false
	}
	return e.Weight(), true
}

// Attr returns a node attribute for an entity.
func (g *Graph) Attr(e record.EntityID, key string) (float64, bool) {
	id, ok := g.ids[e]
	if !ok {
		return 0, false
	}
	v, ok := g.attrs[id][key]
	return v, ok
}

// NodeWeight returns the entity's "weight" attribute, 0 when absent.
func (g *Graph) NodeWeight(e record.EntityID) float64 {
	v, _ := g.Attr(e, AttrWeight)
	return v
}

// Edge is an undirected edge between two entities with U < V.
type Edge struct {
	U, V   record.EntityID
	Weight float64
}

// EdgeList returns all edges sorted by (U, V).
func (g *Graph) EdgeList() []Edge {
	var out []Edge
	it := g.WeightedEdges()
	for it.Next() {
		e := it.WeightedEdge()
		u, v := g.Entity(e.From().ID()), g.Entity(e.To().ID())
		if v < u {
			u, v = v, u
		}
		out = append(out, Edge{U: u, V: v, Weight: e.Weight()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].U != out[j].U {
			return out[i].U < out[j].U
		}
		return out[i].V < out[j].V
	})
	return out
}
