// Package loader reads normalized paper records from tabular and JSON-lines
// files. Loaders are looked up by file extension.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/brunobiangulo/bibnet/record"
)

// ListSeparator splits multi-valued cells in tabular files.
const ListSeparator = ";"

// Batch is the output of one load.
type Batch struct {
	Records []record.Paper
	// Skipped counts rows that could not be parsed.
	Skipped int
}

// Options control how entity ids are normalized.
type Options struct {
	// InitialsOnly reduces given and middle names to initials in author
	// keys.
	InitialsOnly bool
}

// Loader reads records from a file of one of its formats.
type Loader interface {
	Load(ctx context.Context, path string) (*Batch, error)
	SupportedFormats() []string
}

// Registry maps file extensions to loaders.
type Registry struct {
	loaders map[string]Loader
}

// NewRegistry returns a registry with the built-in loaders.
func NewRegistry(opts Options) *Registry {
	r := &Registry{loaders: make(map[string]Loader)}
	for _, l := range []Loader{
		&CSVLoader{opts: opts, comma: ','},
		&TSVLoader{CSVLoader{opts: opts, comma: '\t'}},
		&JSONLLoader{opts: opts},
		&XLSXLoader{opts: opts},
	} {
		for _, f := range l.SupportedFormats() {
			r.loaders[f] = l
		}
	}
	return r
}

// Get returns the loader for a format such as "csv".
func (r *Registry) Get(format string) (Loader, error) {
	l, ok := r.loaders[strings.ToLower(format)]
	if !ok {
		return nil, fmt.Errorf("no loader for format: %s", format)
	}
	return l, nil
}

// Register adds or replaces the loader for format.
func (r *Registry) Register(format string, l Loader) {
	r.loaders[strings.ToLower(format)] = l
}

// Load reads path with the loader registered for its extension.
func (r *Registry) Load(ctx context.Context, path string) (*Batch, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	l, err := r.Get(ext)
	if err != nil {
		return nil, err
	}
	b, err := l.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	if b.Skipped > 0 {
		slog.Warn("loader: skipped unparseable rows", "path", path, "skipped", b.Skipped)
	}
	slog.Info("loader: loaded records", "path", path, "records", len(b.Records))
	return b, nil
}

// LoadAll loads every path and concatenates the batches in order.
func (r *Registry) LoadAll(ctx context.Context, paths ...string) (*Batch, error) {
	out := &Batch{}
	for _, p := range paths {
		b, err := r.Load(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", p, err)
		}
		out.Records = append(out.Records, b.Records...)
		out.Skipped += b.Skipped
	}
	return out, nil
}

// columns locates the record fields in a header row.
type columns struct {
	id, year, authors, subjects int
}

func parseHeader(header []string) (columns, error) {
	c := columns{id: -1, year: -1, authors: -1, subjects: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "id":
			c.id = i
		case "year":
			c.year = i
		case "authors", "author":
			c.authors = i
		case "subjects", "subject", "pacs", "categories":
			c.subjects = i
		}
	}
	if c.year < 0 || (c.authors < 0 && c.subjects < 0) {
		return c, fmt.Errorf("header needs a year column and an authors or subjects column, got %v", header)
	}
	return c, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseRow turns one tabular row into a paper. Rows whose year cell is
// present but not a number are malformed; an empty year yields
// record.UnknownYear.
func parseRow(c columns, row []string, opts Options) (record.Paper, error) {
	p := record.Paper{ID: cell(row, c.id)}
	year, err := parseYear(cell(row, c.year))
	if err != nil {
		return p, err
	}
	p.Year = year
	for _, a := range splitList(cell(row, c.authors)) {
		p.Authors = append(p.Authors, authorID(a, opts))
	}
	for _, s := range splitList(cell(row, c.subjects)) {
		p.Subjects = append(p.Subjects, record.EntityID(s))
	}
	return p, nil
}

func parseYear(s string) (int, error) {
	if s == "" {
		return record.UnknownYear, nil
	}
	y, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: year %q", record.ErrMalformed, s)
	}
	return y, nil
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ListSeparator) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// authorID normalizes an author cell to an entity key. It accepts an
// existing key ("given|middle|surname|suffix"), "Surname, Given Middle" or
// "Given Middle Surname".
func authorID(s string, opts Options) record.EntityID {
	if a, ok := record.ParseAuthorKey(record.EntityID(s)); ok {
		return a.Key(opts.InitialsOnly)
	}
	var a record.Author
	if surname, rest, ok := strings.Cut(s, ","); ok {
		a.Surname = strings.TrimSpace(surname)
		given := strings.Fields(rest)
		if len(given) > 0 {
			a.Given = given[0]
			a.Middle = strings.Join(given[1:], " ")
		}
		return a.Key(opts.InitialsOnly)
	}
	fields := strings.Fields(s)
	switch len(fields) {
	case 0:
		return ""
	case 1:
		a.Surname = fields[0]
	default:
		a.Given = fields[0]
		a.Surname = fields[len(fields)-1]
		a.Middle = strings.Join(fields[1:len(fields)-1], " ")
	}
	return a.Key(opts.InitialsOnly)
}
