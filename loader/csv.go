package loader

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
)

// CSVLoader reads comma-separated files with a header row naming the id,
// year, authors and subjects columns.
type CSVLoader struct {
	opts  Options
	comma rune
}

func (l *CSVLoader) SupportedFormats() []string { return []string{"csv"} }

func (l *CSVLoader) Load(ctx context.Context, path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	return l.read(ctx, f)
}

func (l *CSVLoader) read(ctx context.Context, r io.Reader) (*Batch, error) {
	cr := csv.NewReader(r)
	cr.Comma = l.comma
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols, err := parseHeader(header)
	if err != nil {
		return nil, err
	}

	b := &Batch{}
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if line%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		if err != nil {
			b.Skipped++
			slog.Debug("loader: bad row", "line", line, "error", err)
			continue
		}
		p, err := parseRow(cols, row, l.opts)
		if err != nil {
			b.Skipped++
			slog.Debug("loader: bad row", "line", line, "error", err)
			continue
		}
		b.Records = append(b.Records, p)
	}
	return b, nil
}

// TSVLoader reads tab-separated files with the same columns as CSVLoader.
type TSVLoader struct {
	CSVLoader
}

func (l *TSVLoader) SupportedFormats() []string { return []string{"tsv", "tab"} }
