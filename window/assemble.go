package window

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brunobiangulo/bibnet/adjacency"
	"github.com/brunobiangulo/bibnet/record"
)

// Networks is the ordered collection of per-window adjacency results. Every
// key of spec is present, including windows no record reached.
type Networks struct {
	Spec Spec

	keys  []int
	byKey map[int]*adjacency.Result

	// Undated counts records excluded because their year is unknown.
	Undated int
	// Outside counts dated records that fell in no window.
	Outside int
}

// Keys returns the window keys in ascending order.
func (n *Networks) Keys() []int { return append([]int(nil), n.keys...) }

// Len returns the number of windows.
func (n *Networks) Len() int { return len(n.keys) }

// At returns the result for window w, or nil if w is not a window key.
func (n *Networks) At(w int) *adjacency.Result { return n.byKey[w] }

// Each calls fn for every window in key order.
func (n *Networks) Each(fn func(w int, r *adjacency.Result)) {
	for _, w := range n.keys {
		fn(w, n.byKey[w])
	}
}

// AssembleOption configures Assemble.
type AssembleOption func(*assembleOptions)

type assembleOptions struct {
	workers int
}

// WithWorkers builds up to n windows concurrently. Values below 2 build
// sequentially.
func WithWorkers(n int) AssembleOption {
	return func(o *assembleOptions) { o.workers = n }
}

// Assemble builds one adjacency result per window key of spec. Each window
// owns its own builder; a record contributes independently to every window
// whose range contains its year.
func Assemble(ctx context.Context, records []record.Paper, spec Spec, mode adjacency.Mode, sel *record.Selector, opts ...AssembleOption) (*Networks, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}
	o := assembleOptions{workers: 1}
	for _, opt := range opts {
		opt(&o)
	}

	start := time.Now()
	nets := &Networks{
		Spec:  spec,
		keys:  spec.Keys(),
		byKey: make(map[int]*adjacency.Result),
	}

	// Index records by year, keeping input order within each window.
	byYear := make(map[int][]int)
	for i, p := range records {
		if !p.HasYear() {
			nets.Undated++
			continue
		}
		if len(spec.Covering(p.Year)) == 0 {
			nets.Outside++
			continue
		}
		byYear[p.Year] = append(byYear[p.Year], i)
	}

	build := func(w int) *adjacency.Result {
		lo, hi := spec.Range(w)
		var idx []int
		for y := lo; y <= hi; y++ {
			idx = append(idx, byYear[y]...)
		}
		sort.Ints(idx)

		b := adjacency.NewBuilder(mode, sel)
		for _, i := range idx {
			b.Add(records[i])
		}
		return b.Finalize()
	}

	results := make([]*adjacency.Result, len(nets.keys))
	if o.workers < 2 {
		for i, w := range nets.keys {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("assembling window %d: %w", w, err)
			}
			results[i] = build(w)
		}
	} else {
		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(o.workers)
		for i, w := range nets.keys {
			g.Go(func() error {
				if err := gCtx.Err(); err != nil {
					return fmt.Errorf("assembling window %d: %w", w, err)
				}
				results[i] = build(w)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	for i, w := range nets.keys {
		nets.byKey[w] = results[i]
	}

	if nets.Undated > 0 {
		slog.Warn("window: records without a year were excluded", "count", nets.Undated)
	}
	slog.Info("window: assembled networks",
		"windows", len(nets.keys), "width", spec.Width,
		"records", len(records), "outside", nets.Outside,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return nets, nil
}
