package model

import (
	"strconv"
	"strings"
)

// Row is an ordered mapping of column name to value: one line of model input.
// The zero value is an empty row ready to use.
type Row struct {
	columns []string
	values  []float64
	index   map[string]int
}

// NewRow returns an empty row with room for n columns.
func NewRow(n int) *Row {
	return &Row{
		columns: make([]string, 0, n),
		values:  make([]float64, 0, n),
		index:   make(map[string]int, n),
	}
}

// Set assigns value to column. A new column is appended at the end;
// an existing column keeps its position.
func (r *Row) Set(column string, value float64) {
	if r.index == nil {
		r.index = make(map[string]int)
	}
	if i, ok := r.index[column]; ok {
		r.values[i] = value
		return
	}
	r.index[column] = len(r.columns)
	r.columns = append(r.columns, column)
	r.values = append(r.values, value)
}

// Get returns the value stored for column.
func (r *Row) Get(column string) (float64, bool) {
	i, ok := r.index[column]
	if !ok {
		return 0, false
	}
	return r.values[i], true
}

// Has reports whether column is present.
func (r *Row) Has(column string) bool {
	_, ok := r.index[column]
	return ok
}

// Len returns the number of columns.
func (r *Row) Len() int { return len(r.columns) }

// Columns returns a copy of the column names in order.
func (r *Row) Columns() []string {
	out := make([]string, len(r.columns))
	copy(out, r.columns)
	return out
}

// Values returns a copy of the values in column order.
func (r *Row) Values() []float64 {
	out := make([]float64, len(r.values))
	copy(out, r.values)
	return out
}

// Key renders the row as a stable string, used for caching.
func (r *Row) Key() string {
	var b strings.Builder
	for i, c := range r.columns {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(c)
		b.WriteByte('=')
		b.WriteString(strconv.FormatFloat(r.values[i], 'g', -1, 64))
	}
	return b.String()
}
