package loader

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xuri/excelize/v2"
)

// XLSXLoader reads the first sheet of a workbook laid out like a CSV file.
type XLSXLoader struct {
	opts Options
}

func (l *XLSXLoader) SupportedFormats() []string { return []string{"xlsx"} }

func (l *XLSXLoader) Load(ctx context.Context, path string) (*Batch, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets in %s", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no data found in XLSX")
	}

	cols, err := parseHeader(rows[0])
	if err != nil {
		return nil, err
	}
	b := &Batch{}
	for i, row := range rows[1:] {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if len(row) == 0 {
			continue
		}
		p, err := parseRow(cols, row, l.opts)
		if err != nil {
			b.Skipped++
			slog.Debug("loader: bad row", "sheet", sheets[0], "row", i+2, "error", err)
			continue
		}
		b.Records = append(b.Records, p)
	}
	return b, nil
}
