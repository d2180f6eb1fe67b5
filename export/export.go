// Package export renders profiles and statistics results as delimited text
// and spreadsheet tables.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/brunobiangulo/bibnet/profile"
	"github.com/brunobiangulo/bibnet/record"
	"github.com/brunobiangulo/bibnet/stats"
)

const (
	// Missing fills entity cells with no value for a window.
	Missing = "0"
	// NA fills window cells whose statistic failed.
	NA = "NA"
)

// Table is a named grid of cells with one header row.
type Table struct {
	Name   string     `json:"name"`
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// Column maps a per-node statistic to a per-window column group named
// <Prefix>_<window>.
type Column struct {
	Prefix    string
	Statistic string
}

// DefaultColumns are the occurrence totals and eigenvector centralities.
var DefaultColumns = []Column{
	{Prefix: "Total", Statistic: stats.NodeWeight},
	{Prefix: "Eigen", Statistic: stats.EigenvectorCentrality},
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'e', 5, 64) }

// EntityTable builds one row per entity with its subject entropy, subject
// count and one cell per window for each column. Entities come from
// profiles when given, otherwise from the per-node values in res. Missing
// values are written as Missing.
func EntityTable(label string, profiles profile.Profiles, res *stats.Result, columns []Column) (*Table, error) {
	if label == "" {
		label = "Entity"
	}
	series := make([]map[int]stats.Outcome, len(columns))
	for i, c := range columns {
		s, err := res.Series(c.Statistic)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Prefix, err)
		}
		series[i] = s
	}

	t := &Table{Name: "entities", Header: []string{label, "Entropy", "Num_Subjects"}}
	for _, c := range columns {
		for _, w := range res.Windows {
			t.Header = append(t.Header, fmt.Sprintf("%s_%d", c.Prefix, w))
		}
	}

	entities := profiles.Entities()
	if len(profiles) == 0 {
		entities = nodeEntities(series)
	}
	for _, e := range entities {
		row := []string{string(e), formatFloat(0), "0"}
		if p, ok := profiles[e]; ok {
			row[1] = formatFloat(p.Entropy)
			row[2] = strconv.Itoa(p.NumSubjects)
		}
		for _, s := range series {
			for _, w := range res.Windows {
				row = append(row, nodeCell(s[w], e))
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

func nodeCell(o stats.Outcome, e record.EntityID) string {
	if !o.OK() {
		return Missing
	}
	vals, ok := o.Value.(stats.NodeValues)
	if !ok {
		return Missing
	}
	v, ok := vals[e]
	if !ok {
		return Missing
	}
	return formatFloat(v)
}

func nodeEntities(series []map[int]stats.Outcome) []record.EntityID {
	seen := make(map[record.EntityID]struct{})
	for _, s := range series {
		for _, o := range s {
			if vals, ok := o.Value.(stats.NodeValues); ok {
				for e := range vals {
					seen[e] = struct{}{}
				}
			}
		}
	}
	out := make([]record.EntityID, 0, len(seen))
	for e := range seen {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// WindowTable builds one row per window with one column per scalar
// statistic or view name. Failed or non-numeric cells are written as NA.
func WindowTable(res *stats.Result, names []string) (*Table, error) {
	t := &Table{Name: "windows", Header: append([]string{"Window"}, names...)}
	series := make([]map[int]stats.Outcome, len(names))
	for i, name := range names {
		s, err := res.Series(name)
		if err != nil {
			return nil, err
		}
		series[i] = s
	}
	for _, w := range res.Windows {
		row := []string{strconv.Itoa(w)}
		for _, s := range series {
			o, ok := s[w]
			if !ok {
				row = append(row, NA)
				continue
			}
			switch v := o.Value.(type) {
			case int:
				row = append(row, strconv.Itoa(v))
			case float64:
				row = append(row, strconv.FormatFloat(v, 'g', -1, 64))
			default:
				row = append(row, NA)
			}
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// ScalarNames returns the statistics of res, and their views, whose cells
// are numbers. Each statistic is followed by its views; reg resolves the
// views and nil means the default registry.
func ScalarNames(res *stats.Result, reg *stats.Registry) []string {
	if reg == nil {
		reg = stats.DefaultRegistry()
	}
	var out []string
	for _, name := range res.Statistics {
		candidates := []string{name}
		if s, err := reg.Lookup(name); err == nil {
			for _, v := range s.Views {
				candidates = append(candidates, v.Name)
			}
		}
		for _, c := range candidates {
			if col, err := res.Series(c); err == nil && numeric(col) {
				out = append(out, c)
			}
		}
	}
	return out
}

func numeric(col map[int]stats.Outcome) bool {
	for _, o := range col {
		if !o.OK() {
			continue
		}
		switch o.Value.(type) {
		case int, float64:
			return true
		}
		return false
	}
	return false
}

// AvailableColumns keeps the columns whose statistic was computed in res.
func AvailableColumns(res *stats.Result, columns []Column) []Column {
	var out []Column
	for _, c := range columns {
		if _, ok := res.Cells[c.Statistic]; ok {
			out = append(out, c)
		}
	}
	return out
}

// WriteCSV writes t with the given delimiter; zero means ';'.
func WriteCSV(w io.Writer, t *Table, delim rune) error {
	if delim == 0 {
		delim = ';'
	}
	cw := csv.NewWriter(w)
	cw.Comma = delim
	if err := cw.Write(t.Header); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return fmt.Errorf("writing rows: %w", err)
	}
	return nil
}
