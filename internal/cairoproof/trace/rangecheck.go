package trace

import (
	"sort"

	"github.com/obsidianzk/cairoproof/internal/cairoproof/fault"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/felt"
)

// RcBound is the exclusive upper bound of every range-checked value.
const RcBound = 1 << 16

// rcFillers returns the values missing between consecutive members of the
// pool multiset, each once, in ascending order. Placing them in the table's
// free pool cells makes the sorted pool continuous from its minimum to its
// maximum.
func rcFillers(pool []uint64) (fillers []uint64, rcMin, rcMax uint64) {
	sorted := append([]uint64(nil), pool...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a] < sorted[b] })
	rcMin, rcMax = sorted[0], sorted[len(sorted)-1]
	for i := 1; i < len(sorted); i++ {
		for v := sorted[i-1] + 1; v < sorted[i]; v++ {
			fillers = append(fillers, v)
		}
	}
	return fillers, rcMin, rcMax
}

// buildRcSorted fills the sorted side of the range-check argument from the
// pool columns of the padded table. Every pool cell must be a 16-bit value
// and the sorted sequence must be continuous; both hold by construction
// after the builder has placed its fillers, so a violation here means the
// inputs were tampered with between execution and table building.
func buildRcSorted(t *Table, l Layout) error {
	rows := t.NumRows()
	values := make([]uint64, 0, rows*l.RcPoolWidth)
	for i := 0; i < rows; i++ {
		for j := 0; j < l.RcPoolWidth; j++ {
			v := felt.U64(t.Get(i, l.RcPoolColumn(j)))
			if v >= RcBound {
				return fault.New(fault.CodeConsistency,
					"range-check pool value %d exceeds the 16-bit bound", v)
			}
			values = append(values, v)
		}
	}
	sort.Slice(values, func(a, b int) bool { return values[a] < values[b] })
	for k := 1; k < len(values); k++ {
		if d := values[k] - values[k-1]; d > 1 {
			return fault.New(fault.CodeConsistency,
				"range-check pool is not continuous: gap between %d and %d",
				values[k-1], values[k])
		}
	}
	for k, v := range values {
		row, j := k/l.RcPoolWidth, k%l.RcPoolWidth
		t.Set(row, l.RcSorted+j, felt.New(v))
	}
	return nil
}

// FillRcPermutation computes the running-product columns of the range-check
// permutation argument for the challenge z.
func FillRcPermutation(t *Table, l Layout, z felt.Element) {
	rows := t.NumRows()
	p := felt.One()
	for i := 0; i < rows; i++ {
		for j := 0; j < l.RcPoolWidth; j++ {
			num := felt.Sub(z, t.Get(i, l.RcPoolColumn(j)))
			den := felt.Sub(z, t.Get(i, l.RcSorted+j))
			p = felt.Mul(p, felt.Mul(num, felt.Inverse(den)))
			t.Set(i, l.RcPerm+j, p)
		}
	}
}
