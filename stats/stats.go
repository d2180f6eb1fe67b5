// Package stats computes named graph statistics over single graphs and
// windowed graph series. Statistics are looked up in a Registry that is built
// once and never mutated, and every (statistic, window) cell is computed in
// isolation: a failing cell is recorded and reported, never propagated.
package stats

import (
	"errors"
	"fmt"
	"sort"

	"github.com/brunobiangulo/bibnet/network"
	"github.com/brunobiangulo/bibnet/partition"
)

var (
	// ErrComputation wraps every per-cell failure.
	ErrComputation = errors.New("stats: computation failed")
	// ErrNoEdges is returned by statistics that need at least one edge.
	ErrNoEdges = errors.New("stats: graph has no edges")
	// ErrUndefined is returned when a statistic has no defined value for
	// the graph, for instance a correlation over constant degrees.
	ErrUndefined = errors.New("stats: value undefined")
	// ErrNotConverged is returned when an iterative method ran out of
	// iterations.
	ErrNotConverged = errors.New("stats: iteration did not converge")
	// ErrMissingPartition marks statistics dropped because no partition was
	// supplied.
	ErrMissingPartition = errors.New("stats: partition not supplied")
	// ErrUnknownStatistic is returned for names absent from the registry.
	ErrUnknownStatistic = errors.New("stats: unknown statistic")
)

// Options carries the inputs statistics may need besides the graph.
type Options struct {
	// Partition labels nodes for partition_modularity.
	Partition partition.Assigner
	// Detector finds the partition for best_modularity. Nil means Louvain
	// with resolution 1 and seed 0.
	Detector partition.Detector
	// Workers computes up to this many windows concurrently.
	Workers int
}

func (o Options) detector() partition.Detector {
	if o.Detector == nil {
		return partition.Louvain{Resolution: 1}
	}
	return o.Detector
}

// Func computes one statistic for one graph.
type Func func(g *network.Graph, opts Options) (any, error)

// View derives a secondary value from a statistic's value, so that several
// named outputs share one computation.
type View struct {
	Name    string
	Extract func(v any) (any, error)
}

// Statistic is a named, registered computation.
type Statistic struct {
	Name           string
	Description    string
	NeedsPartition bool
	Compute        Func
	Views          []View
}

// Registry maps names to statistics. It is read-only once built.
type Registry struct {
	byName map[string]Statistic
	views  map[string]viewRef
	names  []string
}

type viewRef struct {
	base string
	view View
}

// NewRegistry builds a registry from stats. It panics when two statistics
// or views share a name.
func NewRegistry(stats ...Statistic) *Registry {
	r := &Registry{
		byName: make(map[string]Statistic, len(stats)),
		views:  make(map[string]viewRef),
	}
	for _, s := range stats {
		if _, dup := r.byName[s.Name]; dup {
			panic(fmt.Sprintf("stats: duplicate statistic %q", s.Name))
		}
		r.byName[s.Name] = s
		r.names = append(r.names, s.Name)
	}
	for _, s := range stats {
		for _, v := range s.Views {
			if _, dup := r.byName[v.Name]; dup {
				panic(fmt.Sprintf("stats: view %q shadows a statistic", v.Name))
			}
			if _, dup := r.views[v.Name]; dup {
				panic(fmt.Sprintf("stats: duplicate view %q", v.Name))
			}
			r.views[v.Name] = viewRef{base: s.Name, view: v}
		}
	}
	sort.Strings(r.names)
	return r
}

// Lookup returns the statistic registered under name.
func (r *Registry) Lookup(name string) (Statistic, error) {
	s, ok := r.byName[name]
	if !ok {
		return Statistic{}, fmt.Errorf("%w: %q", ErrUnknownStatistic, name)
	}
	return s, nil
}

// Names returns the registered statistic names, sorted.
func (r *Registry) Names() []string { return append([]string(nil), r.names...) }

// ViewNames returns the registered view names, sorted.
func (r *Registry) ViewNames() []string {
	out := make([]string, 0, len(r.views))
	for n := range r.views {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// resolve maps a statistic or view name to the statistic that computes it.
func (r *Registry) resolve(name string) (Statistic, error) {
	if s, ok := r.byName[name]; ok {
		return s, nil
	}
	if v, ok := r.views[name]; ok {
		return r.byName[v.base], nil
	}
	return Statistic{}, fmt.Errorf("%w: %q", ErrUnknownStatistic, name)
}

var defaultRegistry = NewRegistry(builtins()...)

// DefaultRegistry returns the process-wide registry of built-in statistics.
func DefaultRegistry() *Registry { return defaultRegistry }
