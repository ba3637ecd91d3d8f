package trace

import (
	"github.com/obsidianzk/cairoproof/internal/cairoproof/felt"
)

// Table is a column-major matrix of field elements. All columns share the
// same length at all times.
type Table struct {
	cols [][]felt.Element
}

// NewTable allocates a table with numColumns empty columns.
func NewTable(numColumns int) *Table {
	return &Table{cols: make([][]felt.Element, numColumns)}
}

// NumColumns returns the column count.
func (t *Table) NumColumns() int {
	return len(t.cols)
}

// NumRows returns the row count.
func (t *Table) NumRows() int {
	if len(t.cols) == 0 {
		return 0
	}
	return len(t.cols[0])
}

// AddRow appends one row. The row length must match the column count.
func (t *Table) AddRow(row []felt.Element) {
	if len(row) != len(t.cols) {
		panic("trace: row width mismatch")
	}
	for i, v := range row {
		t.cols[i] = append(t.cols[i], v)
	}
}

// Get returns the value at (row, col).
func (t *Table) Get(row, col int) felt.Element {
	return t.cols[col][row]
}

// Set overwrites the value at (row, col).
func (t *Table) Set(row, col int, v felt.Element) {
	t.cols[col][row] = v
}

// Column returns the backing slice of one column.
func (t *Table) Column(col int) []felt.Element {
	return t.cols[col]
}

// Row copies row i into a fresh slice.
func (t *Table) Row(i int) []felt.Element {
	row := make([]felt.Element, len(t.cols))
	for c := range t.cols {
		row[c] = t.cols[c][i]
	}
	return row
}

// Resize grows every column to rows entries, appending zeroes.
func (t *Table) Resize(rows int) {
	for c := range t.cols {
		for len(t.cols[c]) < rows {
			t.cols[c] = append(t.cols[c], felt.Zero())
		}
	}
}

// NextPowerOfTwo returns the smallest power of two >= n, with a floor of 1.
func NextPowerOfTwo(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}
