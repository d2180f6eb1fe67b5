// Package bibnet builds co-authorship and subject networks from
// bibliographic records over sliding year windows and computes structural
// statistics for every window.
package bibnet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/brunobiangulo/bibnet/adjacency"
	"github.com/brunobiangulo/bibnet/loader"
	"github.com/brunobiangulo/bibnet/network"
	"github.com/brunobiangulo/bibnet/partition"
	"github.com/brunobiangulo/bibnet/profile"
	"github.com/brunobiangulo/bibnet/record"
	"github.com/brunobiangulo/bibnet/stats"
	"github.com/brunobiangulo/bibnet/store"
	"github.com/brunobiangulo/bibnet/window"
)

// Engine is the main entry point for network analysis.
type Engine interface {
	// Analyze builds the windowed networks of records, computes the
	// configured statistics and entity profiles, and persists the run when
	// a database is configured.
	Analyze(ctx context.Context, records []record.Paper) (*Report, error)

	// AnalyzeFiles loads records from files (format by extension) and
	// analyzes them.
	AnalyzeFiles(ctx context.Context, paths ...string) (*Report, error)

	// Similar returns the k entities of a stored run whose trajectories for
	// statistic are nearest to entity's.
	Similar(ctx context.Context, runID, statistic string, entity record.EntityID, k int) ([]store.Neighbor, error)

	// Runs lists stored runs, newest first.
	Runs(ctx context.Context) ([]store.Run, error)

	// LoadRun returns everything stored for a run.
	LoadRun(ctx context.Context, runID string) (*store.StoredResult, error)

	// DeleteRun removes a stored run.
	DeleteRun(ctx context.Context, runID string) error

	// Store returns the underlying store, or nil without persistence.
	Store() *store.Store

	// Close cleanly shuts down the engine.
	Close() error
}

// Report is the outcome of one analysis.
type Report struct {
	// RunID is set when the run was persisted.
	RunID    string           `json:"run_id,omitempty"`
	Spec     window.Spec      `json:"spec"`
	Records  int              `json:"records"`
	Networks *window.Networks `json:"-"`
	Graphs   *network.Series  `json:"-"`
	Stats    *stats.Result    `json:"-"`
	Profiles profile.Profiles `json:"profiles"`

	// Trajectories holds, per node-valued statistic, one vector per entity
	// with one component per window.
	Trajectories map[string]map[record.EntityID][]float32 `json:"-"`

	// Diagnostics aggregates skipped records and failed statistic cells.
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Diagnostic is a non-fatal problem met during an analysis.
type Diagnostic struct {
	Stage     string `json:"stage"` // load, assemble, stats
	Window    *int   `json:"window,omitempty"`
	Statistic string `json:"statistic,omitempty"`
	Message   string `json:"message"`
}

func (d Diagnostic) String() string {
	s := d.Stage
	if d.Window != nil {
		s += " window " + strconv.Itoa(*d.Window)
	}
	if d.Statistic != "" {
		s += " " + d.Statistic
	}
	return s + ": " + d.Message
}

// Option configures the engine.
type Option func(*engine)

// WithStore uses an open store instead of opening Config.DBPath. The caller
// keeps ownership: Close does not close it.
func WithStore(s *store.Store) Option {
	return func(e *engine) { e.store = s }
}

// WithRegistry computes statistics from reg instead of the default registry.
func WithRegistry(reg *stats.Registry) Option {
	return func(e *engine) { e.stats = stats.NewEngine(reg) }
}

// WithLoaders reads files through r instead of the built-in loaders.
func WithLoaders(r *loader.Registry) Option {
	return func(e *engine) { e.loaders = r }
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg       Config
	mode      adjacency.Mode
	selector  *record.Selector
	detector  partition.Detector
	groups    partition.Definition
	stats     *stats.Engine
	loaders   *loader.Registry
	store     *store.Store
	ownsStore bool

	mu     sync.Mutex
	closed bool
}

// New creates an engine with the given configuration.
func New(cfg Config, opts ...Option) (Engine, error) {
	// Apply defaults for zero values
	if cfg.WindowWidth == 0 {
		cfg.WindowWidth = DefaultConfig().WindowWidth
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &engine{cfg: cfg}
	for _, o := range opts {
		o(e)
	}
	if e.stats == nil {
		e.stats = stats.NewEngine(nil)
	}
	if e.loaders == nil {
		e.loaders = loader.NewRegistry(loader.Options{InitialsOnly: cfg.InitialsOnly})
	}

	for _, name := range cfg.statistics() {
		if _, err := e.stats.Registry().Lookup(name); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	var err error
	if e.mode, err = adjacency.ParseMode(cfg.Mode); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if e.selector, err = cfg.selector(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if e.detector, err = partition.ParseDetector(cfg.Detector, cfg.Seed); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.GroupsFile != "" {
		if e.groups, err = partition.LoadDefinition(cfg.GroupsFile); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		slog.Info("bibnet: loaded partition groups", "path", cfg.GroupsFile, "groups", len(e.groups))
	}

	if e.store == nil && cfg.DBPath != "" {
		s, err := store.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		e.store = s
		e.ownsStore = true
		slog.Info("bibnet: store opened", "path", cfg.DBPath)
	}
	return e, nil
}

func (e *engine) Analyze(ctx context.Context, records []record.Paper) (*Report, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	start := time.Now()

	spec, err := e.windowSpec(records)
	if err != nil {
		return nil, err
	}
	nets, err := window.Assemble(ctx, records, spec, e.mode, e.selector, window.WithWorkers(e.cfg.Workers))
	if err != nil {
		return nil, fmt.Errorf("assembling windows: %w", err)
	}
	graphs := network.MaterializeAll(nets)

	opts := stats.Options{Detector: e.detector, Workers: e.cfg.Workers}
	if len(e.groups) > 0 {
		opts.Partition = e.groups
	}
	res, err := e.stats.Compute(ctx, graphs, e.cfg.statistics(), opts)
	if err != nil {
		return nil, fmt.Errorf("computing statistics: %w", err)
	}

	report := &Report{
		Spec:         spec,
		Records:      len(records),
		Networks:     nets,
		Graphs:       graphs,
		Stats:        res,
		Profiles:     profile.Build(records, e.selector, e.cfg.entropyBase()),
		Trajectories: Trajectories(res),
	}
	report.Diagnostics = append(report.Diagnostics, assembleDiagnostics(nets)...)
	for _, d := range res.Diagnostics {
		diag := Diagnostic{Stage: "stats", Statistic: d.Statistic, Message: d.Err.Error()}
		if d.Window != stats.AllWindows {
			w := d.Window
			diag.Window = &w
		}
		report.Diagnostics = append(report.Diagnostics, diag)
	}

	if e.store != nil {
		if report.RunID, err = e.persist(ctx, report); err != nil {
			return nil, fmt.Errorf("persisting run: %w", err)
		}
	}

	report.Elapsed = time.Since(start)
	slog.Info("bibnet: analysis complete",
		"run", report.RunID, "records", len(records),
		"windows", graphs.Len(), "statistics", len(res.Statistics),
		"diagnostics", len(report.Diagnostics),
		"elapsed", report.Elapsed.Round(time.Millisecond))
	return report, nil
}

func (e *engine) AnalyzeFiles(ctx context.Context, paths ...string) (*Report, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	batch, err := e.loaders.LoadAll(ctx, paths...)
	if err != nil {
		return nil, err
	}
	report, err := e.Analyze(ctx, batch.Records)
	if err != nil {
		return nil, err
	}
	if batch.Skipped > 0 {
		report.Diagnostics = append([]Diagnostic{{
			Stage:   "load",
			Message: fmt.Sprintf("%d unparseable rows skipped", batch.Skipped),
		}}, report.Diagnostics...)
	}
	return report, nil
}

func (e *engine) Similar(ctx context.Context, runID, statistic string, entity record.EntityID, k int) ([]store.Neighbor, error) {
	if err := e.checkStore(); err != nil {
		return nil, err
	}
	return e.store.SimilarTrajectories(ctx, runID, statistic, entity, k)
}

func (e *engine) Runs(ctx context.Context) ([]store.Run, error) {
	if err := e.checkStore(); err != nil {
		return nil, err
	}
	return e.store.ListRuns(ctx)
}

func (e *engine) LoadRun(ctx context.Context, runID string) (*store.StoredResult, error) {
	if err := e.checkStore(); err != nil {
		return nil, err
	}
	return e.store.LoadResult(ctx, runID)
}

func (e *engine) DeleteRun(ctx context.Context, runID string) error {
	if err := e.checkStore(); err != nil {
		return err
	}
	return e.store.DeleteRun(ctx, runID)
}

func (e *engine) Store() *store.Store { return e.store }

func (e *engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	if e.store != nil && e.ownsStore {
		return e.store.Close()
	}
	return nil
}

func (e *engine) checkOpen() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrEngineClosed
	}
	return nil
}

func (e *engine) checkStore() error {
	if err := e.checkOpen(); err != nil {
		return err
	}
	if e.store == nil {
		return ErrStoreRequired
	}
	return nil
}

// windowSpec returns the configured window range, or derives it from the
// dated records (and the year allow-set) when none is configured. A derived
// range is narrowed so that every window stays inside the bounds.
func (e *engine) windowSpec(records []record.Paper) (window.Spec, error) {
	if !e.cfg.deriveYears() {
		return e.cfg.windowSpec(e.cfg.YearStart, e.cfg.YearEnd), nil
	}

	years := e.cfg.Years
	if len(years) == 0 {
		for _, p := range records {
			if p.HasYear() {
				years = append(years, p.Year)
			}
		}
	}
	if len(years) == 0 {
		return window.Spec{}, ErrNoRecords
	}
	lo, hi := years[0], years[0]
	for _, y := range years[1:] {
		lo, hi = min(lo, y), max(hi, y)
	}

	spec := e.cfg.windowSpec(lo, hi)
	if spec.Bounds != nil {
		d := spec.HalfWidth()
		spec.Start = max(spec.Start, spec.Bounds.Min+d)
		spec.End = min(spec.End, spec.Bounds.Max-d)
	}
	slog.Debug("bibnet: derived window range", "start", spec.Start, "end", spec.End)
	return spec, nil
}

func assembleDiagnostics(nets *window.Networks) []Diagnostic {
	var out []Diagnostic
	if nets.Undated > 0 {
		out = append(out, Diagnostic{
			Stage:   "assemble",
			Message: fmt.Sprintf("%d records without a year excluded", nets.Undated),
		})
	}
	nets.Each(func(w int, r *adjacency.Result) {
		if r.Skipped == 0 {
			return
		}
		out = append(out, Diagnostic{
			Stage:   "assemble",
			Window:  &w,
			Message: fmt.Sprintf("%d records skipped", r.Skipped),
		})
	})
	return out
}

// persist stores the report as a new run and returns its id.
func (e *engine) persist(ctx context.Context, r *Report) (string, error) {
	cfgJSON, err := json.Marshal(e.cfg)
	if err != nil {
		return "", fmt.Errorf("encoding config: %w", err)
	}
	run, err := e.store.CreateRun(ctx, store.Run{
		Mode:        e.mode.String(),
		EntityKind:  e.selector.Kind().String(),
		WindowWidth: r.Spec.Width,
		YearStart:   r.Spec.Start,
		YearEnd:     r.Spec.End,
		Records:     r.Records,
		Undated:     r.Networks.Undated,
		Config:      string(cfgJSON),
	})
	if err != nil {
		return "", err
	}
	if err := e.store.SaveNetworks(ctx, run.ID, r.Networks, r.Graphs); err != nil {
		return "", err
	}
	if err := e.store.SaveResult(ctx, run.ID, r.Stats); err != nil {
		return "", err
	}

	names := make([]string, 0, len(r.Trajectories))
	for name := range r.Trajectories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := e.store.SaveTrajectories(ctx, run.ID, name, r.Trajectories[name]); err != nil {
			return "", fmt.Errorf("trajectories %s: %w", name, err)
		}
	}
	slog.Info("bibnet: run persisted", "run", run.ID, "trajectories", len(names))
	return run.ID, nil
}
