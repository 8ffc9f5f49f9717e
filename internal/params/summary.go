package params

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// SortBy selects the row order of a summary.
type SortBy int

const (
	// SortByInsertion lists parameters in the order they were first set
	SortByInsertion SortBy = iota
	// SortByKey lists parameters alphabetically
	SortByKey
	// SortByTime lists parameters by last modification
	SortByTime
)

// ParseSortBy parses "insertion", "key" or "time".
func ParseSortBy(s string) (SortBy, error) {
	switch s {
	case "", "insertion":
		return SortByInsertion, nil
	case "key":
		return SortByKey, nil
	case "time":
		return SortByTime, nil
	}
	return SortByInsertion, fmt.Errorf("unknown sort mode %q (want insertion, key or time)", s)
}

// SummaryOptions controls Summary output.
type SummaryOptions struct {
	SortBy       SortBy
	ShowMetadata bool
}

// SummaryRow is one rendered line of a summary.
type SummaryRow struct {
	Key   string
	Value string
	Metadata
}

// SummaryRows returns one row per parameter, ordered per opts.SortBy.
func (p *Parameters) SummaryRows(opts SummaryOptions) []SummaryRow {
	keys := p.Keys()
	switch opts.SortBy {
	case SortByKey:
		sort.Strings(keys)
	case SortByTime:
		sort.SliceStable(keys, func(i, j int) bool {
			return p.entries[keys[i]].meta.Modified.Before(p.entries[keys[j]].meta.Modified)
		})
	}

	rows := make([]SummaryRow, 0, len(keys))
	for _, k := range keys {
		e := p.entries[k]
		rows = append(rows, SummaryRow{Key: k, Value: FormatValue(e.value), Metadata: e.meta})
	}
	return rows
}

// Summary renders the parameters as a table.
func (p *Parameters) Summary(opts SummaryOptions) string {
	headers := []string{"Key", "Value"}
	if opts.ShowMetadata {
		headers = append(headers, "Unit", "Description", "Label", "User", "Last Modified")
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
	for _, r := range p.SummaryRows(opts) {
		cells := []string{r.Key, r.Value}
		if opts.ShowMetadata {
			modified := ""
			if !r.Modified.IsZero() {
				modified = r.Modified.Format("2006-01-02 15:04:05")
			}
			cells = append(cells, r.Unit, r.Description, r.Label, r.User, modified)
		}
		t.Row(cells...)
	}
	return t.Render()
}

// ShowSummary writes Summary to w.
func (p *Parameters) ShowSummary(w io.Writer, opts SummaryOptions) error {
	_, err := fmt.Fprintln(w, p.Summary(opts))
	return err
}

// FormatValue renders a parameter value the way summaries and templates show it.
func FormatValue(v any) string {
	switch n := v.(type) {
	case float64:
		return strconv.FormatFloat(n, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(n, 10)
	case bool:
		return strconv.FormatBool(n)
	case string:
		return n
	}
	return fmt.Sprint(v)
}
