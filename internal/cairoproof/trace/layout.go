// Package trace builds the padded, column-addressable proving table from a
// completed execution: the per-step value columns, the memory consistency
// argument and the 16-bit range-check argument.
package trace

import "github.com/obsidianzk/cairoproof/internal/cairoproof/vm"

// Fixed column indices of the execution segment of the table.
const (
	ColPc = iota
	ColAp
	ColFp
	ColFlagBase // 16 flag columns, f0..f15
	_
	_
	_
	_
	_
	_
	_
	_
	_
	_
	_
	_
	_
	_
	_
	ColInst
	ColOffDst // unbiased offsets, in [0, 2^16)
	ColOffOp0
	ColOffOp1
	ColDstAddr
	ColOp0Addr
	ColOp1Addr
	ColDst
	ColOp0
	ColOp1
	ColRes
	ColT0
	ColT1
	ColMul
	ColSelector

	// NumFixedColumns counts the execution-segment columns.
	NumFixedColumns
)

// MemWidth is the number of memory accesses folded per row; the four
// execution-order address columns are pc, dst_addr, op0_addr, op1_addr and
// the value columns are inst, dst, op0, op1.
const MemWidth = vm.AccessesPerStep

// OffsetsPerStep is the number of instruction offsets feeding the
// range-check pool from each row.
const OffsetsPerStep = 3

// BuiltinSpan locates one builtin segment's columns inside the table.
type BuiltinSpan struct {
	Kind vm.BuiltinKind
	// Indicator is 1 on rows accessing the segment.
	Indicator int
	// Value holds the accessed cell value.
	Value int
	// AuxStart is the first of AuxWidth decomposition columns.
	AuxStart int
	AuxWidth int
	// BoundBits is the segment's configured bound.
	BoundBits uint
}

// Layout fixes the complete column arrangement of a trace table. It is a
// pure function of the program's builtin configuration, shared by the
// builder, the constraint system and the engine.
type Layout struct {
	Builtins []BuiltinSpan

	// Sorted memory argument columns.
	MemSortedAddr  int // MemWidth columns
	MemSortedValue int // MemWidth columns
	MemPerm        int // MemWidth post-challenge columns

	// Range-check argument. PoolWidth is the offsets plus every
	// range-check builtin limb column.
	RcPoolWidth int
	RcSorted    int // RcPoolWidth columns
	RcPerm      int // RcPoolWidth post-challenge columns

	NumColumns int
}

// NewLayout computes the layout for a builtin configuration.
func NewLayout(builtins []vm.BuiltinRunner) Layout {
	l := Layout{RcPoolWidth: OffsetsPerStep}
	next := int(NumFixedColumns)
	for _, b := range builtins {
		d := b.Descriptor()
		span := BuiltinSpan{
			Kind:      d.Kind,
			Indicator: next,
			Value:     next + 1,
			AuxStart:  next + 2,
			AuxWidth:  b.AuxWidth(),
			BoundBits: d.BoundBits,
		}
		next += 2 + span.AuxWidth
		l.Builtins = append(l.Builtins, span)
		if d.Kind == vm.BuiltinRangeCheck {
			l.RcPoolWidth += span.AuxWidth
		}
	}
	l.MemSortedAddr = next
	l.MemSortedValue = next + MemWidth
	l.MemPerm = next + 2*MemWidth
	next += 3 * MemWidth
	l.RcSorted = next
	l.RcPerm = next + l.RcPoolWidth
	next += 2 * l.RcPoolWidth
	l.NumColumns = next
	return l
}

// FlagColumn returns the column index of flag i.
func (l Layout) FlagColumn(i int) int {
	return ColFlagBase + i
}

// MemAddrColumn returns the j-th execution-order memory address column.
func (l Layout) MemAddrColumn(j int) int {
	return [MemWidth]int{ColPc, ColDstAddr, ColOp0Addr, ColOp1Addr}[j]
}

// MemValueColumn returns the j-th execution-order memory value column.
func (l Layout) MemValueColumn(j int) int {
	return [MemWidth]int{ColInst, ColDst, ColOp0, ColOp1}[j]
}

// RcPoolColumn returns the j-th column of the execution-order range-check
// pool: the three instruction offsets followed by every range-check builtin
// limb column.
func (l Layout) RcPoolColumn(j int) int {
	if j < OffsetsPerStep {
		return ColOffDst + j
	}
	j -= OffsetsPerStep
	for _, span := range l.Builtins {
		if span.Kind != vm.BuiltinRangeCheck {
			continue
		}
		if j < span.AuxWidth {
			return span.AuxStart + j
		}
		j -= span.AuxWidth
	}
	panic("trace: range-check pool column out of range")
}

// PostChallengeColumns lists the columns the proving engine must fill after
// drawing its permutation challenges.
func (l Layout) PostChallengeColumns() []int {
	cols := make([]int, 0, MemWidth+l.RcPoolWidth)
	for j := 0; j < MemWidth; j++ {
		cols = append(cols, l.MemPerm+j)
	}
	for j := 0; j < l.RcPoolWidth; j++ {
		cols = append(cols, l.RcPerm+j)
	}
	return cols
}
