package vm

import (
	"sort"

	"github.com/obsidianzk/cairoproof/internal/cairoproof/fault"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/felt"
)

// MemoryCell is a single (address, value) pair. The same address may be read
// many times during an execution, but every occurrence must carry the same
// value.
type MemoryCell struct {
	Address uint64
	Value   felt.Element
}

// Memory is the write-once value store of an execution. Address 0 is a
// reserved dummy cell and is never written by a program.
type Memory struct {
	cells map[uint64]felt.Element
}

// NewMemory creates a memory preloaded with the program bytecode at
// addresses 1..len(words).
func NewMemory(words []felt.Element) *Memory {
	m := &Memory{cells: make(map[uint64]felt.Element, len(words)+16)}
	for i, w := range words {
		m.cells[uint64(i)+1] = w
	}
	return m
}

// Read returns the value at addr and whether the cell is initialized.
func (m *Memory) Read(addr uint64) (felt.Element, bool) {
	v, ok := m.cells[addr]
	return v, ok
}

// Write stores value at addr. Rewriting a cell with a different value
// violates the single-value invariant and is a consistency error; rewriting
// the same value is a no-op.
func (m *Memory) Write(addr uint64, value felt.Element) error {
	if addr == 0 {
		return fault.New(fault.CodeExecution, "write to reserved address 0")
	}
	if prev, ok := m.cells[addr]; ok {
		if !felt.Equal(prev, value) {
			return fault.New(fault.CodeConsistency,
				"address %d already holds %s, refusing to overwrite with %s", addr, prev.String(), value.String())
		}
		return nil
	}
	m.cells[addr] = value
	return nil
}

// Len returns the number of initialized cells.
func (m *Memory) Len() int {
	return len(m.cells)
}

// MaxAddress returns the highest initialized address, or 0 for an empty
// memory.
func (m *Memory) MaxAddress() uint64 {
	var max uint64
	for a := range m.cells {
		if a > max {
			max = a
		}
	}
	return max
}

// Sorted returns every initialized cell in ascending address order.
func (m *Memory) Sorted() []MemoryCell {
	cells := make([]MemoryCell, 0, len(m.cells))
	for a, v := range m.cells {
		cells = append(cells, MemoryCell{Address: a, Value: v})
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].Address < cells[j].Address })
	return cells
}
