// Package transformer holds the in-memory product table and the transforms
// applied to it between extraction and loading.
//
// Every transform returns a new *Table. Inputs are never mutated, so a page
// table can be kept for logging or retries after it has been merged.
package transformer

import "fmt"

// Row is one positional record. V is aligned with the owning Table's Columns.
type Row struct {
	V    []any
	Line int // 1-based record number across the run, 0 if unknown
}

// Table is an ordered set of columns and rows.
type Table struct {
	Columns []string
	Rows    []Row

	index map[string]int
}

// NewTable returns an empty table with the given columns.
func NewTable(columns ...string) *Table {
	t := &Table{Columns: append([]string(nil), columns...)}
	t.reindex()
	return t
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		t.index[c] = i
	}
}

// Len returns the number of rows. A nil table has zero rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// Empty reports whether t has no rows.
func (t *Table) Empty() bool { return t.Len() == 0 }

// ColumnIndex returns the position of name, or -1.
func (t *Table) ColumnIndex(name string) int {
	if t == nil {
		return -1
	}
	if t.index == nil {
		t.reindex()
	}
	i, ok := t.index[name]
	if !ok {
		return -1
	}
	return i
}

// Append adds a row. values must have one entry per column.
func (t *Table) Append(values []any, line int) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("transformer: row has %d values, table has %d columns", len(values), len(t.Columns))
	}
	t.Rows = append(t.Rows, Row{V: values, Line: line})
	return nil
}

// Value returns the cell at row i for column name, or nil when the column is absent.
func (t *Table) Value(i int, name string) any {
	j := t.ColumnIndex(name)
	if j < 0 {
		return nil
	}
	return t.Rows[i].V[j]
}

// Concat merges tables in argument order.
//
// The result has the union of all columns in first-seen order; cells for
// columns a source table lacks are nil. Rows keep their order and are
// renumbered 1..n. nil tables are skipped.
func Concat(tables ...*Table) *Table {
	var cols []string
	seen := make(map[string]bool)
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, c := range t.Columns {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}

	out := NewTable(cols...)
	line := 0
	for _, t := range tables {
		if t == nil {
			continue
		}
		pos := make([]int, len(t.Columns))
		for j, c := range t.Columns {
			pos[j] = out.index[c]
		}
		for _, r := range t.Rows {
			v := make([]any, len(cols))
			for j, cell := range r.V {
				v[pos[j]] = cell
			}
			line++
			out.Rows = append(out.Rows, Row{V: v, Line: line})
		}
	}
	return out
}

// DropColumns returns a copy of t without the named columns.
// It fails, naming the first one, if any column is absent.
func (t *Table) DropColumns(names ...string) (*Table, error) {
	drop := make(map[int]bool, len(names))
	for _, n := range names {
		j := t.ColumnIndex(n)
		if j < 0 {
			return nil, fmt.Errorf("transformer: drop: column %q not in table", n)
		}
		drop[j] = true
	}

	keep := make([]int, 0, len(t.Columns)-len(drop))
	cols := make([]string, 0, len(t.Columns)-len(drop))
	for j, c := range t.Columns {
		if !drop[j] {
			keep = append(keep, j)
			cols = append(cols, c)
		}
	}

	out := NewTable(cols...)
	out.Rows = make([]Row, 0, len(t.Rows))
	for _, r := range t.Rows {
		v := make([]any, len(keep))
		for k, j := range keep {
			v[k] = r.V[j]
		}
		if err := out.Append(v, r.Line); err != nil {
			return nil, err
		}
	}
	return out, nil
}
