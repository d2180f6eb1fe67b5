package bibnet

import (
	"fmt"

	"github.com/brunobiangulo/bibnet/adjacency"
	"github.com/brunobiangulo/bibnet/partition"
	"github.com/brunobiangulo/bibnet/profile"
	"github.com/brunobiangulo/bibnet/record"
	"github.com/brunobiangulo/bibnet/stats"
	"github.com/brunobiangulo/bibnet/window"
)

// DefaultStatistics is computed when Config.Statistics is empty.
var DefaultStatistics = []string{
	stats.Nodes,
	stats.Edges,
	stats.Density,
	stats.Components,
	stats.DegreeAssortativity,
	stats.NodeWeight,
	stats.EigenvectorCentrality,
	stats.BestModularity,
}

// Config holds all configuration for the analysis engine.
type Config struct {
	// DBPath is the SQLite database runs are persisted to. Empty disables
	// persistence.
	DBPath string `json:"db_path" yaml:"db_path" mapstructure:"db_path"`

	// Network construction
	Mode         string   `json:"mode" yaml:"mode" mapstructure:"mode"`                      // simple, bipartite
	EntityKind   string   `json:"entity_kind" yaml:"entity_kind" mapstructure:"entity_kind"` // authors, subjects
	SubjectLevel int      `json:"subject_level" yaml:"subject_level" mapstructure:"subject_level"`
	InitialsOnly bool     `json:"initials_only" yaml:"initials_only" mapstructure:"initials_only"`
	Years        []int    `json:"years,omitempty" yaml:"years,omitempty" mapstructure:"years"`
	EntityFilter []string `json:"entity_filter,omitempty" yaml:"entity_filter,omitempty" mapstructure:"entity_filter"`
	SubjectGate  []string `json:"subject_gate,omitempty" yaml:"subject_gate,omitempty" mapstructure:"subject_gate"`

	// Windows. A zero YearStart and YearEnd derive the range from the
	// records; a zero BoundsMin and BoundsMax disable the bounds check.
	WindowWidth int `json:"window_width" yaml:"window_width" mapstructure:"window_width"`
	YearStart   int `json:"year_start" yaml:"year_start" mapstructure:"year_start"`
	YearEnd     int `json:"year_end" yaml:"year_end" mapstructure:"year_end"`
	BoundsMin   int `json:"bounds_min" yaml:"bounds_min" mapstructure:"bounds_min"`
	BoundsMax   int `json:"bounds_max" yaml:"bounds_max" mapstructure:"bounds_max"`

	// Statistics
	Statistics []string `json:"statistics,omitempty" yaml:"statistics,omitempty" mapstructure:"statistics"`
	GroupsFile string   `json:"groups_file,omitempty" yaml:"groups_file,omitempty" mapstructure:"groups_file"`
	Detector   string   `json:"detector" yaml:"detector" mapstructure:"detector"` // louvain, greedy
	Seed       uint64   `json:"seed" yaml:"seed" mapstructure:"seed"`
	Workers    int      `json:"workers" yaml:"workers" mapstructure:"workers"`

	// Profiles
	EntropyBase float64 `json:"entropy_base" yaml:"entropy_base" mapstructure:"entropy_base"`
}

// DefaultConfig returns a Config for five-year author collaboration windows.
func DefaultConfig() Config {
	return Config{
		Mode:        adjacency.Simple.String(),
		EntityKind:  record.Authors.String(),
		WindowWidth: 5,
		Detector:    "louvain",
		Workers:     1,
		EntropyBase: profile.DefaultBase,
	}
}

// Validate checks every field that can be checked without records.
// Statistic names are checked by New against the engine's registry.
func (c Config) Validate() error {
	if _, err := adjacency.ParseMode(c.Mode); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if _, err := record.ParseKind(c.EntityKind); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.SubjectLevel < 0 || c.SubjectLevel > 3 {
		return fmt.Errorf("%w: subject_level %d not in 0-3", ErrInvalidConfig, c.SubjectLevel)
	}
	if _, err := record.NewFilter(c.EntityFilter...); err != nil {
		return fmt.Errorf("%w: entity_filter: %w", ErrInvalidConfig, err)
	}
	if _, err := record.NewFilter(c.SubjectGate...); err != nil {
		return fmt.Errorf("%w: subject_gate: %w", ErrInvalidConfig, err)
	}
	if _, err := partition.ParseDetector(c.Detector, c.Seed); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers %d is negative", ErrInvalidConfig, c.Workers)
	}
	if c.EntropyBase != 0 && c.EntropyBase <= 1 {
		return fmt.Errorf("%w: entropy_base %g must exceed 1", ErrInvalidConfig, c.EntropyBase)
	}
	// The range itself may still come from the records; check what is known.
	spec := c.windowSpec(c.YearStart, c.YearEnd)
	if !c.deriveYears() {
		if err := spec.Validate(); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	} else if c.WindowWidth < 1 {
		return fmt.Errorf("%w: %w: width %d must be at least 1", ErrInvalidConfig, window.ErrWindowConfig, c.WindowWidth)
	}
	return nil
}

func (c Config) deriveYears() bool { return c.YearStart == 0 && c.YearEnd == 0 }

func (c Config) windowSpec(start, end int) window.Spec {
	spec := window.Spec{Width: c.WindowWidth, Start: start, End: end}
	if c.BoundsMin != 0 || c.BoundsMax != 0 {
		spec.Bounds = &window.Bounds{Min: c.BoundsMin, Max: c.BoundsMax}
	}
	return spec
}

func (c Config) statistics() []string {
	if len(c.Statistics) == 0 {
		return DefaultStatistics
	}
	return c.Statistics
}

func (c Config) entropyBase() float64 {
	if c.EntropyBase == 0 {
		return profile.DefaultBase
	}
	return c.EntropyBase
}

// selector builds the record selector described by the config.
func (c Config) selector() (*record.Selector, error) {
	mode, err := adjacency.ParseMode(c.Mode)
	if err != nil {
		return nil, err
	}
	kind, err := record.ParseKind(c.EntityKind)
	if err != nil {
		return nil, err
	}
	opts := []record.Option{
		record.WithKind(kind),
		record.WithSubjectLevel(c.SubjectLevel),
		record.WithYears(c.Years...),
	}
	if mode == adjacency.Bipartite {
		opts = append(opts, record.WithPairs())
	}
	if len(c.EntityFilter) > 0 {
		f, err := record.NewFilter(c.EntityFilter...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, record.WithEntityFilter(f))
	}
	if len(c.SubjectGate) > 0 {
		f, err := record.NewFilter(c.SubjectGate...)
		if err != nil {
			return nil, err
		}
		opts = append(opts, record.WithSubjectGate(f))
	}
	return record.NewSelector(opts...), nil
}
