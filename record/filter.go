package record

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// globMeta are the characters that make a filter item a pattern rather than
// an exact entity id.
const globMeta = "*?[{"

// Filter is an allow-list of entities. Items are either exact ids or glob
// patterns ("45.*", "*|Smith|-"). A nil Filter allows everything.
type Filter struct {
	exact    map[EntityID]struct{}
	patterns []glob.Glob
	raw      []string
}

// NewFilter compiles items into a Filter. Blank items are ignored.
func NewFilter(items ...string) (*Filter, error) {
	f := &Filter{exact: make(map[EntityID]struct{})}
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		f.raw = append(f.raw, item)
		if !strings.ContainsAny(item, globMeta) {
			f.exact[EntityID(item)] = struct{}{}
			continue
		}
		g, err := glob.Compile(item)
		if err != nil {
			return nil, fmt.Errorf("compiling entity pattern %q: %w", item, err)
		}
		f.patterns = append(f.patterns, g)
	}
	return f, nil
}

// MustFilter is like NewFilter but panics on an invalid pattern.
func MustFilter(items ...string) *Filter {
	f, err := NewFilter(items...)
	if err != nil {
		panic(err)
	}
	return f
}

// Match reports whether id is allowed.
func (f *Filter) Match(id EntityID) bool {
	if f == nil {
		return true
	}
	if _, ok := f.exact[id]; ok {
		return true
	}
	for _, g := range f.patterns {
		if g.Match(string(id)) {
			return true
		}
	}
	return false
}

// Empty reports whether the filter has no items. An empty non-nil filter
// allows nothing.
func (f *Filter) Empty() bool {
	return f != nil && len(f.exact) == 0 && len(f.patterns) == 0
}

// Items returns the filter items as given.
func (f *Filter) Items() []string {
	if f == nil {
		return nil
	}
	return append([]string(nil), f.raw...)
}

// Keep returns the ids matched by f, preserving order.
func (f *Filter) Keep(ids []EntityID) []EntityID {
	if f == nil {
		return ids
	}
	out := make([]EntityID, 0, len(ids))
	for _, id := range ids {
		if f.Match(id) {
			out = append(out, id)
		}
	}
	return out
}

// Any reports whether at least one of ids is matched by f.
func (f *Filter) Any(ids []EntityID) bool {
	if f == nil {
		return true
	}
	for _, id := range ids {
		if f.Match(id) {
			return true
		}
	}
	return false
}
