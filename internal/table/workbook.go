package table

import (
	"fmt"
	"strconv"

	"github.com/xuri/excelize/v2"
)

// ReadSheet loads one sheet of a workbook. The first row is the header.
// Cells hold their stored values, not the number-formatted display text.
func ReadSheet(f *excelize.File, sheet string) (*Table, error) {
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return New(), nil
	}

	t := New(rows[0]...)
	for _, r := range rows[1:] {
		if len(r) > len(t.Columns) {
			r = r[:len(t.Columns)]
		}
		if err := t.Append(r...); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// WriteSheet replaces the contents of sheet with t, creating the sheet if it
// does not exist. Other sheets and the sheet's position are left alone.
func WriteSheet(f *excelize.File, sheet string, t *Table) error {
	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return fmt.Errorf("look up sheet %q: %w", sheet, err)
	}
	if idx < 0 {
		if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("create sheet %q: %w", sheet, err)
		}
	} else {
		existing, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
		if err != nil {
			return fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		for r := len(existing); r >= 1; r-- {
			if err := f.RemoveRow(sheet, r); err != nil {
				return fmt.Errorf("clear sheet %q: %w", sheet, err)
			}
		}
	}

	write := func(rowNum int, cells []string) error {
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(cells))
		for i, c := range cells {
			values[i] = cellValue(c)
		}
		return f.SetSheetRow(sheet, cell, &values)
	}

	if err := write(1, t.Columns); err != nil {
		return fmt.Errorf("write header of %q: %w", sheet, err)
	}
	for i, r := range t.Rows {
		if err := write(i+2, r); err != nil {
			return fmt.Errorf("write row %d of %q: %w", i+1, sheet, err)
		}
	}
	return nil
}

// MergeSheet applies Update(t) to the named sheet of the workbook at path and
// saves it. Only the changed cells are written; styles, formulas and the
// values of every other cell stay as they were.
func MergeSheet(path, sheet string, t *Table) error {
	return editWorkbook(path, func(f *excelize.File) error {
		current, err := ReadSheet(f, sheet)
		if err != nil {
			return err
		}
		for _, c := range current.Changes(t) {
			// Row 1 of the sheet is the header.
			cell, err := excelize.CoordinatesToCellName(c.Col+1, c.Row+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, cellValue(c.Value)); err != nil {
				return fmt.Errorf("write %s!%s: %w", sheet, cell, err)
			}
		}
		return nil
	})
}

// ReplaceSheet overwrites the named sheet of the workbook at path with t.
func ReplaceSheet(path, sheet string, t *Table) error {
	return editWorkbook(path, func(f *excelize.File) error {
		return WriteSheet(f, sheet, t)
	})
}

func editWorkbook(path string, edit func(*excelize.File) error) error {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	if err := edit(f); err != nil {
		return err
	}
	if err := f.Save(); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

// cellValue keeps numeric cells numeric so the tool reading the workbook sees numbers.
func cellValue(s string) interface{} {
	if s == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
