package trace

import (
	"github.com/obsidianzk/cairoproof/internal/cairoproof/fault"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/felt"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/vm"
)

// offsetBias converts a decoded signed offset back to its 16-bit encoding.
const offsetBias = 1 << 15

// BuiltTrace is the builder's output: the padded table, the layout it
// follows and the scalars the public inputs quote from it.
type BuiltTrace struct {
	Table  *Table
	Layout Layout

	// NumSteps is the executed step count before padding.
	NumSteps int
	RcMin    uint64
	RcMax    uint64
}

// Build turns a completed execution into the padded proving table. The row
// count is the smallest power of two that fits the steps plus the padding
// region needed by the memory holes and the range-check fillers; at least
// one padding row always exists. Building is deterministic: the same
// execution yields a byte-identical table.
func Build(exec *vm.Execution) (*BuiltTrace, error) {
	numSteps := len(exec.Steps)
	if numSteps == 0 {
		return nil, fault.New(fault.CodeConsistency, "cannot build a trace from an empty execution")
	}
	// The final register pins live on the last execution row, which only
	// matches the post-step state when the program ends in the halting
	// self-loop.
	if exec.Registers[numSteps] != exec.Registers[numSteps-1] {
		return nil, fault.New(fault.CodeConsistency,
			"execution does not end in the halting loop: pc %d steps to pc %d",
			exec.Registers[numSteps-1].Pc, exec.Registers[numSteps].Pc)
	}
	l := NewLayout(exec.Builtins)
	t := NewTable(l.NumColumns)

	// Free cells available to range-check fillers: the limb columns of
	// rows that do not access their segment, in row order.
	var freeSlots [][2]int
	pool := make([]uint64, 0, numSteps*l.RcPoolWidth)

	one := felt.One()
	for s, step := range exec.Steps {
		row := make([]felt.Element, l.NumColumns)
		row[ColPc] = felt.New(step.Registers.Pc)
		row[ColAp] = felt.New(step.Registers.Ap)
		row[ColFp] = felt.New(step.Registers.Fp)
		for i := 0; i < vm.NumFlags; i++ {
			row[l.FlagColumn(i)] = felt.New(step.Inst.FlagBit(i))
		}
		row[ColInst] = felt.New(step.Inst.Word)

		offs := [OffsetsPerStep]uint64{
			uint64(step.Inst.OffDst + offsetBias),
			uint64(step.Inst.OffOp0 + offsetBias),
			uint64(step.Inst.OffOp1 + offsetBias),
		}
		for j, off := range offs {
			row[ColOffDst+j] = felt.New(off)
			pool = append(pool, off)
		}

		row[ColDstAddr] = felt.New(step.DstAddr)
		row[ColOp0Addr] = felt.New(step.Op0Addr)
		row[ColOp1Addr] = felt.New(step.Op1Addr)
		row[ColDst] = step.Dst
		row[ColOp0] = step.Op0
		row[ColOp1] = step.Op1
		row[ColRes] = step.Res
		row[ColT0] = felt.Mul(felt.New(step.Inst.FlagBit(vm.FlagPcJnz)), step.Dst)
		row[ColT1] = felt.Mul(row[ColT0], step.Res)
		row[ColMul] = felt.Mul(step.Op0, step.Op1)
		if s < numSteps-1 {
			row[ColSelector] = one
		}

		for b, span := range l.Builtins {
			acc := step.Builtins[b]
			row[span.Indicator] = acc.Indicator
			row[span.Value] = acc.Value
			active := felt.Equal(acc.Indicator, one)
			for j := 0; j < span.AuxWidth; j++ {
				if active {
					row[span.AuxStart+j] = acc.Aux[j]
					if span.Kind == vm.BuiltinRangeCheck {
						pool = append(pool, acc.Aux[j].Uint64())
					}
				} else if span.Kind == vm.BuiltinRangeCheck {
					freeSlots = append(freeSlots, [2]int{s, span.AuxStart + j})
				}
			}
		}
		t.AddRow(row)
	}

	fillers, rcMin, rcMax := rcFillers(pool)
	holes, err := memoryHoles(exec)
	if err != nil {
		return nil, err
	}

	// Size the padding region: one row minimum, enough memory slots for
	// every hole, one (0, 0) dummy per program word for the public-memory
	// argument plus the address-zero cell, and enough pool cells for the
	// fillers that do not fit in the free execution cells.
	padRows := 1
	if n := (len(holes) + len(exec.Program.Words) + 1 + MemWidth - 1) / MemWidth; n > padRows {
		padRows = n
	}
	if overflow := len(fillers) - len(freeSlots); overflow > 0 {
		if n := (overflow + l.RcPoolWidth - 1) / l.RcPoolWidth; n > padRows {
			padRows = n
		}
	}
	rows := NextPowerOfTwo(numSteps + padRows)
	t.Resize(rows)

	// Padding rows reuse the execution-order memory columns to carry the
	// holes; the remaining slots repeat the reserved zero cell so the
	// sorted side stays continuous from address zero.
	k := 0
	for i := numSteps; i < rows; i++ {
		for j := 0; j < MemWidth; j++ {
			cell := vm.MemoryCell{}
			if k < len(holes) {
				cell = holes[k]
			}
			k++
			t.Set(i, l.MemAddrColumn(j), felt.New(cell.Address))
			t.Set(i, l.MemValueColumn(j), cell.Value)
		}
	}

	// Every free pool cell, execution and padding alike, takes the next
	// filler; once the gaps are covered the maximum repeats.
	for i := numSteps; i < rows; i++ {
		for j := 0; j < l.RcPoolWidth; j++ {
			freeSlots = append(freeSlots, [2]int{i, l.RcPoolColumn(j)})
		}
	}
	for k, slot := range freeSlots {
		v := rcMax
		if k < len(fillers) {
			v = fillers[k]
		}
		t.Set(slot[0], slot[1], felt.New(v))
	}

	if err := buildMemorySorted(t, l, exec.Program.Words); err != nil {
		return nil, err
	}
	if err := buildRcSorted(t, l); err != nil {
		return nil, err
	}

	return &BuiltTrace{
		Table:    t,
		Layout:   l,
		NumSteps: numSteps,
		RcMin:    rcMin,
		RcMax:    rcMax,
	}, nil
}
