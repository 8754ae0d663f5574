package datasource

import (
	"strings"
)

// Table is a fully materialized query result.
type Table struct {
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"rows"`
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// ColumnIndex returns the index of the named column, ignoring case, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

// Value returns the value of column name in row.
func (t *Table) Value(row int, name string) (interface{}, bool) {
	col := t.ColumnIndex(name)
	if col < 0 || row < 0 || row >= len(t.Rows) || col >= len(t.Rows[row]) {
		return nil, false
	}
	return t.Rows[row][col], true
}

// First returns the first column of the first row.
func (t *Table) First() (interface{}, bool) {
	if t.Len() == 0 || len(t.Rows[0]) == 0 {
		return nil, false
	}
	return t.Rows[0][0], true
}

// Column returns the values of the column at index col across all rows.
func (t *Table) Column(col int) []interface{} {
	out := make([]interface{}, 0, t.Len())
	for _, r := range t.Rows {
		if col < len(r) {
			out = append(out, r[col])
		}
	}
	return out
}

// ToMaps converts the table to one map per row keyed by column name.
func (t *Table) ToMaps() []map[string]interface{} {
	out := make([]map[string]interface{}, 0, t.Len())
	for _, r := range t.Rows {
		m := make(map[string]interface{}, len(t.Columns))
		for i, c := range t.Columns {
			if i < len(r) {
				m[c] = r[i]
			}
		}
		out = append(out, m)
	}
	return out
}
