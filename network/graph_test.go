package network

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/bibnet/adjacency"
	"github.com/brunobiangulo/bibnet/record"
	"github.com/brunobiangulo/bibnet/window"
)

func sampleMap() (adjacency.Map, adjacency.NodeWeights) {
	adj := adjacency.Map{
		"A": {"B": 2, "C": 1},
		"B": {"A": 1},
		"D": {"C": 3},
	}
	weights := adjacency.NodeWeights{"A": 3, "B": 3, "C": 2}
	return adj, weights
}

func TestMaterialize(t *testing.T) {
	adj, weights := sampleMap()
	g := Materialize(adj, weights)

	assert.Equal(t, []record.EntityID{"A", "B", "C", "D"}, g.Entities())
	assert.Equal(t, 4, g.NodeCount())
	assert.Equal(t, 3, g.EdgeCount())

	w, ok := g.EdgeWeight("A", "B")
	require.True(t, ok)
	assert.Equal(t, 3.0, w, "both directions are summed")

	w, ok = g.EdgeWeight("B", "A")
	require.True(t, ok)
	assert.Equal(t, 3.0, w)

	w, ok = g.EdgeWeight("C", "D")
	require.True(t, ok)
	assert.Equal(t, 3.0, w)

	_, ok = g.EdgeWeight("B", "C")
	assert.False(t, ok)
	_, ok = g.EdgeWeight("A", "Z")
	assert.False(t, ok)

	assert.Equal(t, 3.0, g.NodeWeight("A"))
	assert.Equal(t, 0.0, g.NodeWeight("D"), "missing weights default to 0")
	v, ok := g.Attr("D", AttrWeight)
	assert.True(t, ok)
	assert.Equal(t, 0.0, v)

	aID, _ := g.NodeID("A")
	assert.Equal(t, 2, g.Degree(aID))
	assert.Equal(t, 4.0, g.Strength(aID))
	assert.Equal(t, record.EntityID("A"), g.Entity(aID))
	assert.Equal(t, record.EntityID(""), g.Entity(99))
}

func TestMaterializeIdempotent(t *testing.T) {
	adj, weights := sampleMap()
	first := Materialize(adj, weights)
	second := Materialize(adj, weights)

	assert.Equal(t, first.Entities(), second.Entities())
	assert.Equal(t, first.EdgeList(), second.EdgeList())
	for _, e := range first.Entities() {
		assert.Equal(t, first.NodeWeight(e), second.NodeWeight(e))
	}
}

func TestMaterializeSkipsSelfLoops(t *testing.T) {
	g := Materialize(adjacency.Map{"A": {"A": 4, "B": 1}}, nil)
	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, []Edge{{U: "A", V: "B", Weight: 1}}, g.EdgeList())
}

func TestMaterializeEmpty(t *testing.T) {
	g := FromResult(nil)
	assert.Zero(t, g.NodeCount())
	assert.Zero(t, g.EdgeCount())
	assert.Empty(t, g.EdgeList())
}

func TestMaterializeAll(t *testing.T) {
	records := []record.Paper{
		{Authors: []record.EntityID{"A", "B"}, Year: 2000},
		{Authors: []record.EntityID{"A", "C"}, Year: 2001},
		{Authors: []record.EntityID{"B", "C"}, Year: 2002},
	}
	nets, err := window.Assemble(context.Background(), records, window.Spec{Width: 3, Start: 2000, End: 2003}, adjacency.Simple, nil)
	require.NoError(t, err)

	series := MaterializeAll(nets)
	assert.Equal(t, []int{2000, 2001, 2002, 2003}, series.Keys())

	g := series.At(2001)
	require.NotNil(t, g)
	assert.Equal(t, 3, g.EdgeCount())

	g = series.At(2003)
	require.NotNil(t, g)
	assert.Equal(t, 2, g.NodeCount())
	assert.Equal(t, []Edge{{U: "B", V: "C", Weight: 1}}, g.EdgeList())
}

func TestSeriesPutKeepsOrder(t *testing.T) {
	s := NewSeries()
	s.Put(3, FromResult(nil))
	s.Put(1, FromResult(nil))
	s.Put(3, FromResult(nil))
	assert.Equal(t, []int{3, 1}, s.Keys())
	assert.Equal(t, 2, s.Len())
	assert.Nil(t, s.At(7))
}
