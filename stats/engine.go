package stats

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brunobiangulo/bibnet/network"
)

// AllWindows is the Diagnostic window for failures not tied to one window.
const AllWindows = math.MinInt

// Outcome is the value of one (statistic, window) cell or the reason it
// could not be computed.
type Outcome struct {
	Value any
	Err   error
}

// OK reports whether the cell holds a value.
func (o Outcome) OK() bool { return o.Err == nil }

// Float returns the value as a float64 when it is numeric.
func (o Outcome) Float() (float64, bool) {
	if o.Err != nil {
		return 0, false
	}
	switch v := o.Value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

// Diagnostic records a failed cell or a dropped statistic.
type Diagnostic struct {
	Window    int
	Statistic string
	Err       error
}

func (d Diagnostic) String() string {
	if d.Window == AllWindows {
		return fmt.Sprintf("%s: %v", d.Statistic, d.Err)
	}
	return fmt.Sprintf("%s window %d: %v", d.Statistic, d.Window, d.Err)
}

// Result holds the cells of a computation oriented statistic -> window.
type Result struct {
	// Windows lists the window keys in series order.
	Windows []int
	// Statistics lists the computed statistics in request order.
	Statistics []string
	// Cells is indexed [statistic][window].
	Cells map[string]map[int]Outcome
	// Dropped names partition-dependent statistics skipped for lack of a
	// partition.
	Dropped []string
	// Diagnostics lists every failure, in window then statistic order.
	Diagnostics []Diagnostic

	registry *Registry
}

// Get returns one cell.
func (r *Result) Get(name string, window int) (Outcome, bool) {
	o, ok := r.Cells[name][window]
	return o, ok
}

// Series returns the window -> outcome column for a statistic or a view.
// View cells are derived from the underlying statistic's cells.
func (r *Result) Series(name string) (map[int]Outcome, error) {
	if col, ok := r.Cells[name]; ok {
		return col, nil
	}
	reg := r.registry
	if reg == nil {
		reg = DefaultRegistry()
	}
	ref, ok := reg.views[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStatistic, name)
	}
	base, ok := r.Cells[ref.base]
	if !ok {
		return nil, fmt.Errorf("stats: %q was not computed", ref.base)
	}
	out := make(map[int]Outcome, len(base))
	for w, o := range base {
		if !o.OK() {
			out[w] = o
			continue
		}
		v, err := ref.view.Extract(o.Value)
		out[w] = Outcome{Value: v, Err: err}
	}
	return out, nil
}

// Failed counts failed cells.
func (r *Result) Failed() int {
	n := 0
	for _, col := range r.Cells {
		for _, o := range col {
			if !o.OK() {
				n++
			}
		}
	}
	return n
}

// Engine evaluates registered statistics.
type Engine struct {
	registry *Registry
}

// NewEngine returns an engine over reg; nil uses DefaultRegistry.
func NewEngine(reg *Registry) *Engine {
	if reg == nil {
		reg = DefaultRegistry()
	}
	return &Engine{registry: reg}
}

// Registry returns the engine's registry.
func (e *Engine) Registry() *Registry { return e.registry }

// ComputeOne computes names for a single graph keyed as window 0.
func (e *Engine) ComputeOne(ctx context.Context, g *network.Graph, names []string, opts Options) (*Result, error) {
	return e.Compute(ctx, network.Single(0, g), names, opts)
}

// Compute evaluates names for every graph of series. View names request
// their underlying statistic. Unknown names fail the call before any work;
// per-cell failures are recorded in the result and never returned.
func (e *Engine) Compute(ctx context.Context, series *network.Series, names []string, opts Options) (*Result, error) {
	active, dropped, err := e.plan(names, opts)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res := &Result{
		Windows:    series.Keys(),
		Statistics: make([]string, 0, len(active)),
		Cells:      make(map[string]map[int]Outcome, len(active)),
		Dropped:    dropped,
		registry:   e.registry,
	}
	for _, s := range active {
		res.Statistics = append(res.Statistics, s.Name)
		res.Cells[s.Name] = make(map[int]Outcome, series.Len())
	}
	for _, name := range dropped {
		slog.Warn("stats: dropping statistic without partition", "statistic", name)
		res.Diagnostics = append(res.Diagnostics, Diagnostic{
			Window: AllWindows, Statistic: name, Err: ErrMissingPartition,
		})
	}

	keys := series.Keys()
	rows := make([][]Outcome, len(keys))
	computeWindow := func(i int) {
		g := series.At(keys[i])
		row := make([]Outcome, len(active))
		for j, s := range active {
			row[j] = computeCell(s, g, opts)
		}
		rows[i] = row
	}

	if opts.Workers < 2 {
		for i, w := range keys {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("computing window %d: %w", w, err)
			}
			computeWindow(i)
		}
	} else {
		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Workers)
		for i, w := range keys {
			g.Go(func() error {
				if err := gCtx.Err(); err != nil {
					return fmt.Errorf("computing window %d: %w", w, err)
				}
				computeWindow(i)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	for i, w := range keys {
		for j, s := range active {
			o := rows[i][j]
			res.Cells[s.Name][w] = o
			if !o.OK() {
				slog.Warn("stats: cell failed", "statistic", s.Name, "window", w, "error", o.Err)
				res.Diagnostics = append(res.Diagnostics, Diagnostic{Window: w, Statistic: s.Name, Err: o.Err})
			}
		}
	}

	slog.Info("stats: computation complete",
		"windows", len(keys), "statistics", len(active),
		"failed", len(res.Diagnostics)-len(dropped), "dropped", len(dropped),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return res, nil
}

// plan resolves names to distinct statistics in request order and splits
// off the partition-dependent ones when no partition is supplied.
func (e *Engine) plan(names []string, opts Options) (active []Statistic, dropped []string, err error) {
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		s, err := e.registry.resolve(name)
		if err != nil {
			return nil, nil, err
		}
		if _, dup := seen[s.Name]; dup {
			continue
		}
		seen[s.Name] = struct{}{}
		if s.NeedsPartition && opts.Partition == nil {
			dropped = append(dropped, s.Name)
			continue
		}
		active = append(active, s)
	}
	return active, dropped, nil
}

// computeCell runs one statistic, converting errors and panics into a
// failed Outcome.
func computeCell(s Statistic, g *network.Graph, opts Options) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Err: fmt.Errorf("%w: %s: panic: %v", ErrComputation, s.Name, r)}
		}
	}()
	if g == nil {
		return Outcome{Err: fmt.Errorf("%w: %s: no graph", ErrComputation, s.Name)}
	}
	v, err := s.Compute(g, opts)
	if err != nil {
		return Outcome{Err: fmt.Errorf("%w: %s: %w", ErrComputation, s.Name, err)}
	}
	return Outcome{Value: v}
}
