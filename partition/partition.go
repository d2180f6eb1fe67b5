// Package partition assigns community labels to graph nodes and scores
// partitions by modularity.
package partition

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/community"
	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/bibnet/network"
	"github.com/brunobiangulo/bibnet/record"
)

// DefaultLabel is given to nodes that no group contains.
const DefaultLabel = 0

// ErrEmptyGraph is returned when modularity is undefined because the graph
// has no nodes or no edge weight.
var ErrEmptyGraph = errors.New("partition: graph has no edges")

// Group is one externally supplied community.
type Group struct {
	Label   int               `yaml:"label" json:"label"`
	Members []record.EntityID `yaml:"members" json:"members"`
}

// Definition is an ordered list of groups. When groups overlap the first
// group containing a node wins.
type Definition []Group

type definitionFile struct {
	Groups Definition `yaml:"groups"`
}

// LoadDefinition reads a YAML group definition:
//
//	groups:
//	  - label: 1
//	    members: [A, B]
//	  - label: 2
//	    members: [C]
func LoadDefinition(path string) (Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading group definition: %w", err)
	}
	var f definitionFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing group definition %s: %w", path, err)
	}
	return f.Groups, nil
}

// Assignment maps every node entity to its community label.
type Assignment map[record.EntityID]int

// Assigner produces a complete assignment for a graph.
type Assigner interface {
	AssignmentFor(g *network.Graph) Assignment
}

// AssignmentFor implements Assigner.
func (d Definition) AssignmentFor(g *network.Graph) Assignment { return Assign(d, g) }

// AssignmentFor restricts a to the nodes of g; nodes a does not mention get
// DefaultLabel.
func (a Assignment) AssignmentFor(g *network.Graph) Assignment {
	out := make(Assignment, g.NodeCount())
	for _, e := range g.Entities() {
		if l, ok := a[e]; ok {
			out[e] = l
		} else {
			out[e] = DefaultLabel
		}
	}
	return out
}

// Assign labels every node of g with the label of the first group in def
// that contains it, or DefaultLabel.
func Assign(def Definition, g *network.Graph) Assignment {
	first := make(map[record.EntityID]int)
	for _, grp := range def {
		for _, m := range grp.Members {
			if _, ok := first[m]; !ok {
				first[m] = grp.Label
			}
		}
	}
	return Assignment(first).AssignmentFor(g)
}

// Labels returns the distinct labels in ascending order.
func (a Assignment) Labels() []int {
	seen := make(map[int]struct{})
	for _, l := range a {
		seen[l] = struct{}{}
	}
	out := make([]int, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	sort.Ints(out)
	return out
}

// Count returns the number of distinct labels.
func (a Assignment) Count() int { return len(a.Labels()) }

// Communities groups the nodes of g by label. Communities are ordered by
// label and members by node id.
func (a Assignment) Communities(g *network.Graph) [][]graph.Node {
	byLabel := make(map[int][]graph.Node)
	for id, e := range g.Entities() {
		l, ok := a[e]
		if !ok {
			l = DefaultLabel
		}
		byLabel[l] = append(byLabel[l], g.Node(int64(id)))
	}
	labels := make([]int, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	sort.Ints(labels)

	out := make([][]graph.Node, 0, len(labels))
	for _, l := range labels {
		out = append(out, byLabel[l])
	}
	return out
}

// Modularity returns the Newman-Girvan modularity of a over g, using the
// edge weights and resolution 1.
func Modularity(g *network.Graph, a Assignment) (float64, error) {
	if g.NodeCount() == 0 || g.EdgeCount() == 0 {
		return 0, ErrEmptyGraph
	}
	return community.Q(g, a.Communities(g), 1), nil
}
