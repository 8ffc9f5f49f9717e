// Package table provides the small tabular type used for templated spreadsheet
// inputs and CSV outputs of the simulation tools.
package table

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Table is a header row plus string cells. Every row has len(Columns) cells.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// New creates an empty table with the given header.
func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

// ReadCSV parses delimited text whose first record is the header. Tab
// separated input is detected from the header line.
func ReadCSV(r io.Reader) (*Table, error) {
	br := bufio.NewReader(r)
	head, err := br.Peek(4096)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	firstLine := string(head)
	if i := strings.IndexByte(firstLine, '\n'); i >= 0 {
		firstLine = firstLine[:i]
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	if strings.Contains(firstLine, "\t") {
		cr.Comma = '\t'
	}

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return New(), nil
	}

	t := New(records[0]...)
	for _, rec := range records[1:] {
		if err := t.Append(rec...); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// ReadCSVFile parses the CSV file at path.
func ReadCSVFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadCSV(f)
}

// WriteCSV writes the header and rows as comma separated values.
func (t *Table) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// Append adds a row. Short rows are padded with empty cells; long rows are rejected.
func (t *Table) Append(cells ...string) error {
	if len(cells) > len(t.Columns) {
		return fmt.Errorf("row has %d cells, table has %d columns", len(cells), len(t.Columns))
	}
	row := make([]string, len(t.Columns))
	copy(row, cells)
	t.Rows = append(t.Rows, row)
	return nil
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.Rows)
}

// Empty reports whether the table has no data rows.
func (t *Table) Empty() bool {
	return len(t.Rows) == 0
}

// ColumnIndex returns the position of a column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Column returns a copy of the named column's cells.
func (t *Table) Column(name string) ([]string, bool) {
	idx := t.ColumnIndex(name)
	if idx < 0 {
		return nil, false
	}
	out := make([]string, len(t.Rows))
	for i, r := range t.Rows {
		out[i] = r[idx]
	}
	return out, true
}

// Value returns the cell at row, column name.
func (t *Table) Value(row int, col string) (string, bool) {
	idx := t.ColumnIndex(col)
	if idx < 0 || row < 0 || row >= len(t.Rows) {
		return "", false
	}
	return t.Rows[row][idx], true
}

// Float parses the cell at row, column name as a number.
func (t *Table) Float(row int, col string) (float64, error) {
	v, ok := t.Value(row, col)
	if !ok {
		return 0, fmt.Errorf("no cell at row %d column %q", row, col)
	}
	return strconv.ParseFloat(strings.TrimSpace(v), 64)
}

// Update overwrites cells of t with the non-empty cells of other, matching
// rows by position and columns by name. Rows or columns of other that t does
// not have are ignored, so the shape of t never changes.
func (t *Table) Update(other *Table) {
	for _, c := range t.Changes(other) {
		t.Rows[c.Row][c.Col] = c.Value
	}
}

// Change is one cell Update would overwrite.
type Change struct {
	Row, Col int
	Value    string
}

// Changes lists the cells Update(other) would modify, skipping values that
// are already equal.
func (t *Table) Changes(other *Table) []Change {
	var out []Change
	for oc, name := range other.Columns {
		tc := t.ColumnIndex(name)
		if tc < 0 {
			continue
		}
		for r := 0; r < len(other.Rows) && r < len(t.Rows); r++ {
			if v := other.Rows[r][oc]; v != "" && v != t.Rows[r][tc] {
				out = append(out, Change{Row: r, Col: tc, Value: v})
			}
		}
	}
	return out
}

// Records returns each row as a column-name keyed map.
func (t *Table) Records() []map[string]string {
	out := make([]map[string]string, len(t.Rows))
	for i, r := range t.Rows {
		m := make(map[string]string, len(t.Columns))
		for c, name := range t.Columns {
			m[name] = r[c]
		}
		out[i] = m
	}
	return out
}

// Clone returns a deep copy.
func (t *Table) Clone() *Table {
	c := New(t.Columns...)
	for _, r := range t.Rows {
		c.Rows = append(c.Rows, append([]string(nil), r...))
	}
	return c
}
