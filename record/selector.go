package record

import (
	"fmt"
	"strings"
)

// Kind names the entity type a network is built over.
type Kind int

const (
	// Authors builds networks whose nodes are author keys.
	Authors Kind = iota
	// Subjects builds networks whose nodes are subject codes.
	Subjects
)

func (k Kind) String() string {
	switch k {
	case Authors:
		return "authors"
	case Subjects:
		return "subjects"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses "authors" or "subjects" (singular forms and "categories"
// are accepted too).
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "authors", "author":
		return Authors, nil
	case "subjects", "subject", "categories", "pacs":
		return Subjects, nil
	default:
		return 0, fmt.Errorf("unknown entity kind %q", s)
	}
}

// Selector extracts the primary and secondary entity lists from a Paper.
// The zero value is not usable; build one with NewSelector.
type Selector struct {
	kind        Kind
	paired      bool
	level       int
	years       map[int]struct{}
	entities    *Filter
	subjectGate *Filter
}

// Option configures a Selector.
type Option func(*Selector)

// WithKind selects which field yields the primary entities.
func WithKind(k Kind) Option {
	return func(s *Selector) { s.kind = k }
}

// WithPairs makes the selector emit authors as primary and subjects as
// secondary entities, for bipartite networks. The kind option is ignored.
func WithPairs() Option {
	return func(s *Selector) { s.paired = true }
}

// WithYears restricts records to the given years. No years means no
// restriction.
func WithYears(years ...int) Option {
	return func(s *Selector) {
		if len(years) == 0 {
			s.years = nil
			return
		}
		s.years = make(map[int]struct{}, len(years))
		for _, y := range years {
			s.years[y] = struct{}{}
		}
	}
}

// WithEntityFilter keeps only primary entities allowed by f.
func WithEntityFilter(f *Filter) Option {
	return func(s *Selector) { s.entities = f }
}

// WithSubjectGate keeps only records with at least one subject allowed by f.
// For subject and bipartite selections the subject list itself is also
// restricted to allowed codes.
func WithSubjectGate(f *Filter) Option {
	return func(s *Selector) { s.subjectGate = f }
}

// WithSubjectLevel converts subject codes with SubjectAtLevel before any
// filtering. Level 0 keeps codes as they are.
func WithSubjectLevel(level int) Option {
	return func(s *Selector) { s.level = level }
}

// NewSelector returns a Selector; without options it selects authors.
func NewSelector(opts ...Option) *Selector {
	s := &Selector{kind: Authors}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Kind returns the primary entity kind.
func (s *Selector) Kind() Kind {
	if s.paired {
		return Authors
	}
	return s.kind
}

// Paired reports whether the selector emits secondary (subject) entities.
func (s *Selector) Paired() bool { return s.paired }

// WithPairs returns a copy of s that also emits subjects as secondary
// entities. Year, entity, subject gate and level settings carry over.
func (s *Selector) WithPairs() *Selector {
	c := *s
	c.paired = true
	return &c
}

// Subjects returns the record's subject codes converted to the selector's
// level, deduplicated in first-seen order.
func (s *Selector) Subjects(p Paper) []EntityID {
	out := make([]EntityID, 0, len(p.Subjects))
	seen := make(map[EntityID]struct{}, len(p.Subjects))
	for _, code := range p.Subjects {
		id, ok := SubjectAtLevel(string(code), s.level)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// InYears reports whether the record passes the year restriction.
func (s *Selector) InYears(p Paper) bool {
	if s.years == nil {
		return true
	}
	_, ok := s.years[p.Year]
	return ok
}

// Select returns the primary and secondary entity lists for p. The secondary
// list is nil unless the selector is paired. An error wrapping ErrMalformed
// is returned when the record must be skipped.
func (s *Selector) Select(p Paper) (primary, secondary []EntityID, err error) {
	if !s.InYears(p) {
		return nil, nil, fmt.Errorf("%w: year %d not selected", ErrMalformed, p.Year)
	}

	subjects := s.Subjects(p)
	if s.subjectGate != nil {
		if !s.subjectGate.Any(subjects) {
			return nil, nil, fmt.Errorf("%w: no selected subject", ErrMalformed)
		}
		subjects = s.subjectGate.Keep(subjects)
	}

	switch {
	case s.paired:
		primary = s.entities.Keep(p.Authors)
		secondary = subjects
		if len(primary) == 0 || len(secondary) == 0 {
			return nil, nil, fmt.Errorf("%w: bipartite record needs authors and subjects", ErrMalformed)
		}
		return primary, secondary, nil
	case s.kind == Subjects:
		primary = s.entities.Keep(subjects)
	default:
		primary = s.entities.Keep(p.Authors)
	}

	if len(primary) == 0 {
		return nil, nil, fmt.Errorf("%w: no %s", ErrMalformed, s.kind)
	}
	return primary, nil, nil
}
