package network

import (
	"github.com/brunobiangulo/bibnet/adjacency"
	"github.com/brunobiangulo/bibnet/window"
)

// Series is an ordered sequence of graphs keyed by window.
type Series struct {
	keys   []int
	graphs map[int]*Graph
}

// NewSeries returns an empty series.
func NewSeries() *Series {
	return &Series{graphs: make(map[int]*Graph)}
}

// Single wraps one graph as a series with the given key.
func Single(key int, g *Graph) *Series {
	s := NewSeries()
	s.Put(key, g)
	return s
}

// Put appends or replaces the graph for key. New keys are appended, so keys
// keep insertion order.
func (s *Series) Put(key int, g *Graph) {
	if _, ok := s.graphs[key]; !ok {
		s.keys = append(s.keys, key)
	}
	s.graphs[key] = g
}

// Keys returns the window keys in order.
func (s *Series) Keys() []int { return append([]int(nil), s.keys...) }

// Len returns the number of graphs.
func (s *Series) Len() int { return len(s.keys) }

// At returns the graph for key, or nil.
func (s *Series) At(key int) *Graph { return s.graphs[key] }

// MaterializeAll builds one graph per window of nets, in window order. Empty
// windows become empty graphs.
func MaterializeAll(nets *window.Networks) *Series {
	s := NewSeries()
	nets.Each(func(w int, r *adjacency.Result) {
		s.Put(w, FromResult(r))
	})
	return s
}
