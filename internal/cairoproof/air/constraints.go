package air

import (
	"fmt"

	"github.com/obsidianzk/cairoproof/internal/cairoproof/felt"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/trace"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/vm"
)

// Constraint degrees quoted below include the selector factor where one is
// applied.

// addInstructionConstraints registers the row-local instruction identities:
// flag booleanity, word packing, operand address computation and the result
// logic. All of them are gated by the selector column so the padding region,
// whose cells carry memory holes and range-check fillers, is exempt.
func (a *Air) addInstructionConstraints() {
	l := a.Layout
	bias := felt.New(1 << 15)
	one := felt.One()

	for i := 0; i < vm.NumFlags-1; i++ {
		col := l.FlagColumn(i)
		a.addConsistency(fmt.Sprintf("flag_bit_%d", i), 3,
			func(row []felt.Element, _ Challenges) felt.Element {
				f := row[col]
				return felt.Mul(row[trace.ColSelector], felt.Mul(f, felt.Sub(f, one)))
			})
	}
	a.addConsistency("flag_zero_slot", 2,
		func(row []felt.Element, _ Challenges) felt.Element {
			return felt.Mul(row[trace.ColSelector], row[l.FlagColumn(vm.NumFlags-1)])
		})

	a.addConsistency("instruction_packing", 2,
		func(row []felt.Element, _ Challenges) felt.Element {
			packed := row[trace.ColOffDst]
			packed = felt.Add(packed, felt.Mul(felt.New(1<<16), row[trace.ColOffOp0]))
			packed = felt.Add(packed, felt.Mul(felt.New(1<<32), row[trace.ColOffOp1]))
			for i := 0; i < vm.NumFlags-1; i++ {
				w := felt.New(1 << (48 + uint(i)))
				packed = felt.Add(packed, felt.Mul(w, row[l.FlagColumn(i)]))
			}
			return felt.Mul(row[trace.ColSelector], felt.Sub(packed, row[trace.ColInst]))
		})

	a.addConsistency("dst_addr", 3,
		func(row []felt.Element, _ Challenges) felt.Element {
			f0 := row[l.FlagColumn(vm.FlagDstRegFP)]
			base := felt.Add(felt.Mul(f0, row[trace.ColFp]),
				felt.Mul(felt.Sub(one, f0), row[trace.ColAp]))
			want := felt.Add(base, felt.Sub(row[trace.ColOffDst], bias))
			return felt.Mul(row[trace.ColSelector], felt.Sub(row[trace.ColDstAddr], want))
		})

	a.addConsistency("op0_addr", 3,
		func(row []felt.Element, _ Challenges) felt.Element {
			f1 := row[l.FlagColumn(vm.FlagOp0RegFP)]
			base := felt.Add(felt.Mul(f1, row[trace.ColFp]),
				felt.Mul(felt.Sub(one, f1), row[trace.ColAp]))
			want := felt.Add(base, felt.Sub(row[trace.ColOffOp0], bias))
			return felt.Mul(row[trace.ColSelector], felt.Sub(row[trace.ColOp0Addr], want))
		})

	a.addConsistency("op1_addr", 3,
		func(row []felt.Element, _ Challenges) felt.Element {
			f2 := row[l.FlagColumn(vm.FlagOp1Imm)]
			f3 := row[l.FlagColumn(vm.FlagOp1FP)]
			f4 := row[l.FlagColumn(vm.FlagOp1AP)]
			rest := felt.Sub(felt.Sub(felt.Sub(one, f2), f3), f4)
			base := felt.Mul(f2, row[trace.ColPc])
			base = felt.Add(base, felt.Mul(f3, row[trace.ColFp]))
			base = felt.Add(base, felt.Mul(f4, row[trace.ColAp]))
			base = felt.Add(base, felt.Mul(rest, row[trace.ColOp0]))
			want := felt.Add(base, felt.Sub(row[trace.ColOffOp1], bias))
			return felt.Mul(row[trace.ColSelector], felt.Sub(row[trace.ColOp1Addr], want))
		})

	// The mul helper column keeps the result constraint at degree three.
	a.addConsistency("mul_helper", 3,
		func(row []felt.Element, _ Challenges) felt.Element {
			prod := felt.Mul(row[trace.ColOp0], row[trace.ColOp1])
			return felt.Mul(row[trace.ColSelector], felt.Sub(row[trace.ColMul], prod))
		})

	a.addConsistency("result_logic", 3,
		func(row []felt.Element, _ Challenges) felt.Element {
			f5 := row[l.FlagColumn(vm.FlagResAdd)]
			f6 := row[l.FlagColumn(vm.FlagResMul)]
			f9 := row[l.FlagColumn(vm.FlagPcJnz)]
			rest := felt.Sub(felt.Sub(felt.Sub(one, f5), f6), f9)
			want := felt.Mul(f5, felt.Add(row[trace.ColOp0], row[trace.ColOp1]))
			want = felt.Add(want, felt.Mul(f6, row[trace.ColMul]))
			want = felt.Add(want, felt.Mul(rest, row[trace.ColOp1]))
			lhs := felt.Mul(felt.Sub(one, f9), row[trace.ColRes])
			return felt.Mul(row[trace.ColSelector], felt.Sub(lhs, want))
		})

	a.addConsistency("t0_helper", 3,
		func(row []felt.Element, _ Challenges) felt.Element {
			want := felt.Mul(row[l.FlagColumn(vm.FlagPcJnz)], row[trace.ColDst])
			return felt.Mul(row[trace.ColSelector], felt.Sub(row[trace.ColT0], want))
		})

	a.addConsistency("t1_helper", 3,
		func(row []felt.Element, _ Challenges) felt.Element {
			want := felt.Mul(row[trace.ColT0], row[trace.ColRes])
			return felt.Mul(row[trace.ColSelector], felt.Sub(row[trace.ColT1], want))
		})

	a.addConsistency("call_saves_fp", 3,
		func(row []felt.Element, _ Challenges) felt.Element {
			f12 := row[l.FlagColumn(vm.FlagOpcodeCall)]
			diff := felt.Sub(row[trace.ColDst], row[trace.ColFp])
			return felt.Mul(row[trace.ColSelector], felt.Mul(f12, diff))
		})

	a.addConsistency("call_saves_return_pc", 3,
		func(row []felt.Element, _ Challenges) felt.Element {
			f12 := row[l.FlagColumn(vm.FlagOpcodeCall)]
			ret := felt.Add(row[trace.ColPc], instructionSize(l, row))
			diff := felt.Sub(row[trace.ColOp0], ret)
			return felt.Mul(row[trace.ColSelector], felt.Mul(f12, diff))
		})

	a.addConsistency("assert_eq", 3,
		func(row []felt.Element, _ Challenges) felt.Element {
			f14 := row[l.FlagColumn(vm.FlagOpcodeAssertEq)]
			diff := felt.Sub(row[trace.ColDst], row[trace.ColRes])
			return felt.Mul(row[trace.ColSelector], felt.Mul(f14, diff))
		})
}

// instructionSize returns 1 + f2 as a field element.
func instructionSize(l trace.Layout, row []felt.Element) felt.Element {
	return felt.Add(felt.One(), row[l.FlagColumn(vm.FlagOp1Imm)])
}

// addRegisterUpdateConstraints registers the transition identities tying
// each row's registers to the next row's.
func (a *Air) addRegisterUpdateConstraints() {
	l := a.Layout
	one := felt.One()
	two := felt.New(2)

	a.addTransition("next_ap", 3,
		func(curr, next []felt.Element, _ Challenges) felt.Element {
			f10 := curr[l.FlagColumn(vm.FlagApAdd)]
			f11 := curr[l.FlagColumn(vm.FlagApAdd1)]
			f12 := curr[l.FlagColumn(vm.FlagOpcodeCall)]
			want := felt.Add(curr[trace.ColAp], felt.Mul(f10, curr[trace.ColRes]))
			want = felt.Add(want, f11)
			want = felt.Add(want, felt.Mul(two, f12))
			return felt.Mul(curr[trace.ColSelector], felt.Sub(next[trace.ColAp], want))
		})

	a.addTransition("next_fp", 3,
		func(curr, next []felt.Element, _ Challenges) felt.Element {
			f12 := curr[l.FlagColumn(vm.FlagOpcodeCall)]
			f13 := curr[l.FlagColumn(vm.FlagOpcodeRet)]
			rest := felt.Sub(felt.Sub(one, f12), f13)
			want := felt.Mul(f12, felt.Add(curr[trace.ColAp], two))
			want = felt.Add(want, felt.Mul(f13, curr[trace.ColDst]))
			want = felt.Add(want, felt.Mul(rest, curr[trace.ColFp]))
			return felt.Mul(curr[trace.ColSelector], felt.Sub(next[trace.ColFp], want))
		})

	// Covers the regular increment on a conditional jump that is not
	// taken: t1 - f9 vanishes in every other case.
	a.addTransition("next_pc_branch", 3,
		func(curr, next []felt.Element, _ Challenges) felt.Element {
			f9 := curr[l.FlagColumn(vm.FlagPcJnz)]
			seq := felt.Add(curr[trace.ColPc], instructionSize(l, curr))
			v := felt.Mul(felt.Sub(curr[trace.ColT1], f9), felt.Sub(next[trace.ColPc], seq))
			return felt.Mul(curr[trace.ColSelector], v)
		})

	a.addTransition("next_pc_update", 3,
		func(curr, next []felt.Element, _ Challenges) felt.Element {
			f7 := curr[l.FlagColumn(vm.FlagPcJumpAbs)]
			f8 := curr[l.FlagColumn(vm.FlagPcJumpRel)]
			f9 := curr[l.FlagColumn(vm.FlagPcJnz)]
			rest := felt.Sub(felt.Sub(felt.Sub(one, f7), f8), f9)
			seq := felt.Add(curr[trace.ColPc], instructionSize(l, curr))

			taken := felt.Mul(curr[trace.ColT0],
				felt.Sub(next[trace.ColPc], felt.Add(curr[trace.ColPc], curr[trace.ColOp1])))
			want := felt.Mul(rest, seq)
			want = felt.Add(want, felt.Mul(f7, curr[trace.ColRes]))
			want = felt.Add(want, felt.Mul(f8, felt.Add(curr[trace.ColPc], curr[trace.ColRes])))
			v := felt.Add(taken,
				felt.Sub(felt.Mul(felt.Sub(one, f9), next[trace.ColPc]), want))
			return felt.Mul(curr[trace.ColSelector], v)
		})
}

// addSelectorConstraints pins down the step selector itself: a bit column
// that never rises again once it falls to zero. The boundary pins place the
// fall exactly at the last execution row, so the claimed step count is the
// number of gated rows.
func (a *Air) addSelectorConstraints() {
	one := felt.One()
	a.addConsistency("selector_bit", 2,
		func(row []felt.Element, _ Challenges) felt.Element {
			s := row[trace.ColSelector]
			return felt.Mul(s, felt.Sub(s, one))
		})
	a.addTransition("selector_monotonic", 2,
		func(curr, next []felt.Element, _ Challenges) felt.Element {
			return felt.Mul(next[trace.ColSelector], felt.Sub(one, curr[trace.ColSelector]))
		})
}

// addBuiltinConstraints registers the per-segment identities: indicator
// booleanity and the recomposition of the accessed value from its limbs or
// bits. These are gated by the indicator rather than the selector, so rows
// that do not touch the segment contribute nothing.
func (a *Air) addBuiltinConstraints() {
	one := felt.One()
	for _, span := range a.Layout.Builtins {
		span := span
		a.addConsistency(fmt.Sprintf("%s_indicator_bit", span.Kind), 2,
			func(row []felt.Element, _ Challenges) felt.Element {
				ind := row[span.Indicator]
				return felt.Mul(ind, felt.Sub(ind, one))
			})

		limbBits := uint(16)
		if span.Kind == vm.BuiltinBitwise {
			limbBits = 1
			for j := 0; j < span.AuxWidth; j++ {
				col := span.AuxStart + j
				a.addConsistency(fmt.Sprintf("%s_bit_%d", span.Kind, j), 2,
					func(row []felt.Element, _ Challenges) felt.Element {
						b := row[col]
						return felt.Mul(b, felt.Sub(b, one))
					})
			}
		}

		a.addConsistency(fmt.Sprintf("%s_recomposition", span.Kind), 2,
			func(row []felt.Element, _ Challenges) felt.Element {
				sum := felt.Zero()
				for j := 0; j < span.AuxWidth; j++ {
					w := felt.New(1 << (uint(j) * limbBits))
					sum = felt.Add(sum, felt.Mul(w, row[span.AuxStart+j]))
				}
				return felt.Mul(row[span.Indicator], felt.Sub(sum, row[span.Value]))
			})
	}
}

// memTerm returns z - (a + alpha*v).
func memTerm(ch Challenges, a, v felt.Element) felt.Element {
	return felt.Sub(ch.MemZ, felt.Add(a, felt.Mul(ch.MemAlpha, v)))
}

// addMemoryArgumentConstraints registers the single-value, continuity and
// permutation identities of the memory argument. The sorted side is walked
// in virtual order: the four slots of a row, then the first slot of the
// next. The argument is intentionally not selector-gated; padding rows
// carry the memory holes and must participate.
func (a *Air) addMemoryArgumentConstraints() {
	l := a.Layout
	one := felt.One()

	for j := 1; j < trace.MemWidth; j++ {
		j := j
		a.addConsistency(fmt.Sprintf("memory_continuity_%d", j), 2,
			func(row []felt.Element, _ Challenges) felt.Element {
				d := felt.Sub(row[l.MemSortedAddr+j], row[l.MemSortedAddr+j-1])
				return felt.Mul(d, felt.Sub(d, one))
			})
		a.addConsistency(fmt.Sprintf("memory_single_value_%d", j), 2,
			func(row []felt.Element, _ Challenges) felt.Element {
				da := felt.Sub(row[l.MemSortedAddr+j], row[l.MemSortedAddr+j-1])
				dv := felt.Sub(row[l.MemSortedValue+j], row[l.MemSortedValue+j-1])
				return felt.Mul(dv, felt.Sub(da, one))
			})
		a.addConsistency(fmt.Sprintf("memory_permutation_%d", j), 2,
			func(row []felt.Element, ch Challenges) felt.Element {
				lhs := felt.Mul(row[l.MemPerm+j],
					memTerm(ch, row[l.MemSortedAddr+j], row[l.MemSortedValue+j]))
				rhs := felt.Mul(row[l.MemPerm+j-1],
					memTerm(ch, row[l.MemAddrColumn(j)], row[l.MemValueColumn(j)]))
				return felt.Sub(lhs, rhs)
			})
	}

	last := trace.MemWidth - 1
	a.addTransition("memory_continuity_wrap", 2,
		func(curr, next []felt.Element, _ Challenges) felt.Element {
			d := felt.Sub(next[l.MemSortedAddr], curr[l.MemSortedAddr+last])
			return felt.Mul(d, felt.Sub(d, one))
		})
	a.addTransition("memory_single_value_wrap", 2,
		func(curr, next []felt.Element, _ Challenges) felt.Element {
			da := felt.Sub(next[l.MemSortedAddr], curr[l.MemSortedAddr+last])
			dv := felt.Sub(next[l.MemSortedValue], curr[l.MemSortedValue+last])
			return felt.Mul(dv, felt.Sub(da, one))
		})
	a.addTransition("memory_permutation_wrap", 2,
		func(curr, next []felt.Element, ch Challenges) felt.Element {
			lhs := felt.Mul(next[l.MemPerm],
				memTerm(ch, next[l.MemSortedAddr], next[l.MemSortedValue]))
			rhs := felt.Mul(curr[l.MemPerm+last],
				memTerm(ch, next[l.MemAddrColumn(0)], next[l.MemValueColumn(0)]))
			return felt.Sub(lhs, rhs)
		})

	a.addInitial("memory_sorted_starts_at_zero", 1,
		func(row []felt.Element, _ Challenges) felt.Element {
			return row[l.MemSortedAddr]
		})
	a.addInitial("memory_dummy_cell_is_zero", 1,
		func(row []felt.Element, _ Challenges) felt.Element {
			return row[l.MemSortedValue]
		})
	a.addInitial("memory_permutation_start", 2,
		func(row []felt.Element, ch Challenges) felt.Element {
			lhs := felt.Mul(row[l.MemPerm],
				memTerm(ch, row[l.MemSortedAddr], row[l.MemSortedValue]))
			rhs := memTerm(ch, row[l.MemAddrColumn(0)], row[l.MemValueColumn(0)])
			return felt.Sub(lhs, rhs)
		})
	// The sorted side carries the program cells once more than the
	// execution side, which holds a (0, 0) dummy for each of them, so the
	// product telescopes to z^n over the public memory terms. Pinning that
	// value binds the table's memory to the exact bytecode in the public
	// inputs.
	a.addTerminal("memory_permutation_end", 1,
		func(row []felt.Element, ch Challenges) felt.Element {
			num, den := felt.One(), felt.One()
			for i, w := range a.Public.Program {
				num = felt.Mul(num, ch.MemZ)
				den = felt.Mul(den, memTerm(ch, felt.New(uint64(i+1)), w))
			}
			return felt.Sub(felt.Mul(row[l.MemPerm+last], den), num)
		})
}

// addRangeCheckConstraints registers the continuity and permutation
// identities of the range-check argument, plus the public minimum and
// maximum pins on the sorted side.
func (a *Air) addRangeCheckConstraints() {
	l := a.Layout
	one := felt.One()

	for j := 1; j < l.RcPoolWidth; j++ {
		j := j
		a.addConsistency(fmt.Sprintf("rc_continuity_%d", j), 2,
			func(row []felt.Element, _ Challenges) felt.Element {
				d := felt.Sub(row[l.RcSorted+j], row[l.RcSorted+j-1])
				return felt.Mul(d, felt.Sub(d, one))
			})
		a.addConsistency(fmt.Sprintf("rc_permutation_%d", j), 2,
			func(row []felt.Element, ch Challenges) felt.Element {
				lhs := felt.Mul(row[l.RcPerm+j], felt.Sub(ch.RcZ, row[l.RcSorted+j]))
				rhs := felt.Mul(row[l.RcPerm+j-1], felt.Sub(ch.RcZ, row[l.RcPoolColumn(j)]))
				return felt.Sub(lhs, rhs)
			})
	}

	last := l.RcPoolWidth - 1
	a.addTransition("rc_continuity_wrap", 2,
		func(curr, next []felt.Element, _ Challenges) felt.Element {
			d := felt.Sub(next[l.RcSorted], curr[l.RcSorted+last])
			return felt.Mul(d, felt.Sub(d, one))
		})
	a.addTransition("rc_permutation_wrap", 2,
		func(curr, next []felt.Element, ch Challenges) felt.Element {
			lhs := felt.Mul(next[l.RcPerm], felt.Sub(ch.RcZ, next[l.RcSorted]))
			rhs := felt.Mul(curr[l.RcPerm+last], felt.Sub(ch.RcZ, next[l.RcPoolColumn(0)]))
			return felt.Sub(lhs, rhs)
		})

	rcMin := felt.New(a.Public.RcMin)
	rcMax := felt.New(a.Public.RcMax)
	a.addInitial("rc_minimum", 1,
		func(row []felt.Element, _ Challenges) felt.Element {
			return felt.Sub(row[l.RcSorted], rcMin)
		})
	a.addInitial("rc_permutation_start", 2,
		func(row []felt.Element, ch Challenges) felt.Element {
			lhs := felt.Mul(row[l.RcPerm], felt.Sub(ch.RcZ, row[l.RcSorted]))
			rhs := felt.Sub(ch.RcZ, row[l.RcPoolColumn(0)])
			return felt.Sub(lhs, rhs)
		})
	a.addTerminal("rc_maximum", 1,
		func(row []felt.Element, _ Challenges) felt.Element {
			return felt.Sub(row[l.RcSorted+last], rcMax)
		})
	a.addTerminal("rc_permutation_end", 1,
		func(row []felt.Element, _ Challenges) felt.Element {
			return felt.Sub(row[l.RcPerm+last], felt.One())
		})
}

// addBoundaryConstraints pins the initial and final register states. The
// final state is pinned at the last execution row; padding rows beyond it
// hold argument data rather than register values.
func (a *Air) addBoundaryConstraints() {
	pub := a.Public
	lastStep := int(pub.NumSteps) - 1
	a.boundary = append(a.boundary,
		BoundaryConstraint{Name: "initial_pc", Row: 0, Column: trace.ColPc, Value: felt.New(pub.Init.Pc)},
		BoundaryConstraint{Name: "initial_ap", Row: 0, Column: trace.ColAp, Value: felt.New(pub.Init.Ap)},
		BoundaryConstraint{Name: "initial_fp", Row: 0, Column: trace.ColFp, Value: felt.New(pub.Init.Fp)},
		BoundaryConstraint{Name: "final_pc", Row: lastStep, Column: trace.ColPc, Value: felt.New(pub.Fin.Pc)},
		BoundaryConstraint{Name: "final_ap", Row: lastStep, Column: trace.ColAp, Value: felt.New(pub.Fin.Ap)},
	)
	// The selector is one on every row before the final execution row and
	// zero from there on; together with monotonicity this fixes the whole
	// column.
	if pub.NumSteps >= 2 {
		a.boundary = append(a.boundary,
			BoundaryConstraint{Name: "selector_first", Row: 0, Column: trace.ColSelector, Value: felt.One()},
			BoundaryConstraint{Name: "selector_last_step", Row: lastStep - 1, Column: trace.ColSelector, Value: felt.One()},
		)
	}
	a.boundary = append(a.boundary,
		BoundaryConstraint{Name: "selector_halt", Row: lastStep, Column: trace.ColSelector, Value: felt.Zero()},
	)
}
