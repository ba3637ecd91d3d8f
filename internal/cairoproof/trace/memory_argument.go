package trace

import (
	"sort"

	"github.com/obsidianzk/cairoproof/internal/cairoproof/fault"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/felt"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/vm"
)

// memoryHoles returns the cells of every initialized address that the
// execution never touched, in ascending address order. The argument's
// continuity check needs each of these to appear in the table's padding
// region; an address gap with no backing cell cannot be proven and is
// reported as a consistency failure.
func memoryHoles(exec *vm.Execution) ([]vm.MemoryCell, error) {
	accessed := make(map[uint64]struct{}, len(exec.AccessLog))
	for _, c := range exec.AccessLog {
		accessed[c.Address] = struct{}{}
	}
	var holes []vm.MemoryCell
	for addr := uint64(1); addr <= exec.Memory.MaxAddress(); addr++ {
		if _, ok := accessed[addr]; ok {
			continue
		}
		v, ok := exec.Memory.Read(addr)
		if !ok {
			return nil, fault.New(fault.CodeConsistency,
				"memory address %d is inside the used range but holds no value", addr)
		}
		holes = append(holes, vm.MemoryCell{Address: addr, Value: v})
	}
	return holes, nil
}

// buildMemorySorted fills the address-sorted side of the memory argument
// from the execution-order columns of the padded table, verifying the
// single-value and continuity properties along the way. The sorted side
// trades one (0, 0) dummy of the execution side for each program cell, so
// the permutation product ends at a value the verifier computes from the
// public bytecode alone. Fails fast so a corrupted memory log is rejected
// before any proving work starts.
func buildMemorySorted(t *Table, l Layout, words []felt.Element) error {
	rows := t.NumRows()
	type pair struct {
		addr  uint64
		value felt.Element
	}
	pairs := make([]pair, 0, rows*MemWidth)
	dummies := 0
	for i := 0; i < rows; i++ {
		for j := 0; j < MemWidth; j++ {
			addr := felt.U64(t.Get(i, l.MemAddrColumn(j)))
			value := t.Get(i, l.MemValueColumn(j))
			if addr == 0 && felt.IsZero(value) && dummies < len(words) {
				dummies++
				continue
			}
			pairs = append(pairs, pair{addr: addr, value: value})
		}
	}
	if dummies < len(words) {
		return fault.New(fault.CodeConsistency,
			"padding has %d dummy cells, the public memory needs %d", dummies, len(words))
	}
	for i, w := range words {
		pairs = append(pairs, pair{addr: uint64(i) + 1, value: w})
	}
	sort.SliceStable(pairs, func(a, b int) bool { return pairs[a].addr < pairs[b].addr })

	for k := 1; k < len(pairs); k++ {
		prev, cur := pairs[k-1], pairs[k]
		switch cur.addr - prev.addr {
		case 0:
			if !felt.Equal(prev.value, cur.value) {
				return fault.New(fault.CodeConsistency,
					"address %d holds conflicting values %s and %s",
					cur.addr, prev.value.String(), cur.value.String())
			}
		case 1:
			// Adjacent address, any value.
		default:
			return fault.New(fault.CodeConsistency,
				"memory addresses are not continuous: gap between %d and %d",
				prev.addr, cur.addr)
		}
	}

	for k, p := range pairs {
		row, j := k/MemWidth, k%MemWidth
		t.Set(row, l.MemSortedAddr+j, felt.New(p.addr))
		t.Set(row, l.MemSortedValue+j, p.value)
	}
	return nil
}

// FillMemoryPermutation computes the running-product columns of the memory
// permutation argument for the challenges z and alpha. The product walks the
// table in virtual order, row by row and access by access; it ends at
// z^n divided by the public-memory terms, the value the terminal constraint
// pins.
func FillMemoryPermutation(t *Table, l Layout, z, alpha felt.Element) {
	rows := t.NumRows()
	p := felt.One()
	for i := 0; i < rows; i++ {
		for j := 0; j < MemWidth; j++ {
			num := felt.Sub(z, felt.Add(t.Get(i, l.MemAddrColumn(j)),
				felt.Mul(alpha, t.Get(i, l.MemValueColumn(j)))))
			den := felt.Sub(z, felt.Add(t.Get(i, l.MemSortedAddr+j),
				felt.Mul(alpha, t.Get(i, l.MemSortedValue+j))))
			p = felt.Mul(p, felt.Mul(num, felt.Inverse(den)))
			t.Set(i, l.MemPerm+j, p)
		}
	}
}
