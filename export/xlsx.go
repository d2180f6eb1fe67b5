package export

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// WriteXLSX writes every table to its own sheet of a new workbook at path.
// Numeric cells are stored as numbers.
func WriteXLSX(path string, tables ...*Table) error {
	if len(tables) == 0 {
		return fmt.Errorf("export: no tables to write")
	}
	f := excelize.NewFile()
	defer f.Close()

	for i, t := range tables {
		sheet := t.Name
		if sheet == "" {
			sheet = fmt.Sprintf("Sheet%d", i+1)
		}
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
				return fmt.Errorf("naming sheet %s: %w", sheet, err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("creating sheet %s: %w", sheet, err)
		}

		if err := setRow(f, sheet, 1, t.Header); err != nil {
			return err
		}
		for r, row := range t.Rows {
			if err := setRow(f, sheet, r+2, row); err != nil {
				return err
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving workbook: %w", err)
	}
	slog.Info("export: wrote workbook", "path", path, "sheets", len(tables))
	return nil
}

func setRow(f *excelize.File, sheet string, row int, cells []string) error {
	values := make([]any, len(cells))
	for i, c := range cells {
		if v, err := strconv.ParseFloat(c, 64); err == nil {
			values[i] = v
		} else {
			values[i] = c
		}
	}
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("writing %s row %d: %w", sheet, row, err)
	}
	return nil
}
