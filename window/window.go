// Package window assembles per-window adjacency results over sliding, possibly
// overlapping year windows.
//
// A window keyed w with width W covers the years [w-W/2, w+W/2] inclusive,
// using integer division. Odd widths therefore cover exactly W years; even
// widths are truncated to the same half-width as W-1 and cover W+1 years
// symmetrically. Records of unknown year belong to no window.
package window

import (
	"errors"
	"fmt"
)

// ErrWindowConfig is returned when a window specification is unusable.
var ErrWindowConfig = errors.New("window: invalid window configuration")

// Bounds limits the years any window may reach.
type Bounds struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// Spec describes a sequence of windows keyed by their centre year.
type Spec struct {
	Width int `json:"width" yaml:"width"`
	Start int `json:"start" yaml:"start"`
	End   int `json:"end" yaml:"end"`

	// Bounds, when set, rejects any window reaching outside it.
	Bounds *Bounds `json:"bounds,omitempty" yaml:"bounds,omitempty"`
}

// HalfWidth returns Width/2.
func (s Spec) HalfWidth() int { return s.Width / 2 }

// Validate checks the specification before any record is processed.
func (s Spec) Validate() error {
	if s.Width < 1 {
		return fmt.Errorf("%w: width %d must be at least 1", ErrWindowConfig, s.Width)
	}
	if s.Start > s.End {
		return fmt.Errorf("%w: year range %d-%d is empty", ErrWindowConfig, s.Start, s.End)
	}
	if s.Bounds != nil {
		if s.Bounds.Min > s.Bounds.Max {
			return fmt.Errorf("%w: bounds %d-%d are empty", ErrWindowConfig, s.Bounds.Min, s.Bounds.Max)
		}
		lo, _ := s.Range(s.Start)
		_, hi := s.Range(s.End)
		if lo < s.Bounds.Min || hi > s.Bounds.Max {
			return fmt.Errorf("%w: windows span %d-%d outside bounds %d-%d",
				ErrWindowConfig, lo, hi, s.Bounds.Min, s.Bounds.Max)
		}
	}
	return nil
}

// Keys returns every window key from Start to End.
func (s Spec) Keys() []int {
	if s.Start > s.End {
		return nil
	}
	keys := make([]int, 0, s.End-s.Start+1)
	for w := s.Start; w <= s.End; w++ {
		keys = append(keys, w)
	}
	return keys
}

// Range returns the inclusive year range covered by window w.
func (s Spec) Range(w int) (lo, hi int) {
	d := s.HalfWidth()
	return w - d, w + d
}

// Contains reports whether year falls in window w.
func (s Spec) Contains(w, year int) bool {
	lo, hi := s.Range(w)
	return year >= lo && year <= hi
}

// Covering returns the window keys whose range contains year, ascending.
func (s Spec) Covering(year int) []int {
	d := s.HalfWidth()
	lo := max(year-d, s.Start)
	hi := min(year+d, s.End)
	if lo > hi {
		return nil
	}
	keys := make([]int, 0, hi-lo+1)
	for w := lo; w <= hi; w++ {
		keys = append(keys, w)
	}
	return keys
}
