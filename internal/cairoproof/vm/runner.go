package vm

import (
	"github.com/obsidianzk/cairoproof/internal/cairoproof/fault"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/felt"
)

// DefaultMaxSteps bounds re-execution when the caller configures no ceiling.
const DefaultMaxSteps = 1 << 20

// AccessesPerStep is the number of memory accesses recorded per trace row:
// instruction fetch, destination, operand 0 and operand 1. An immediate
// operand is covered by the operand-1 access at pc+1, and the two words a
// call pushes are exactly its destination and operand-0 cells.
const AccessesPerStep = 4

// StepRecord ties together everything one proving-table row needs: the
// register state, the decoded instruction, the resolved operands and the
// builtin auxiliary values.
type StepRecord struct {
	Registers RegisterState
	Inst      Instruction

	DstAddr uint64
	Op0Addr uint64
	Op1Addr uint64

	Dst felt.Element
	Op0 felt.Element
	Op1 felt.Element
	// Res holds the computed result; on a taken conditional jump it holds
	// dst^-1 so the t1 helper column can witness dst != 0.
	Res felt.Element

	// Accesses are the row's memory accesses in fetch, dst, op0, op1 order.
	Accesses [AccessesPerStep]MemoryCell

	// Builtins holds one access record per configured builtin segment.
	Builtins []BuiltinAccess
}

// Execution is the completed output of the re-executor: the ordered step
// records, the register states bracketing them (len(Steps)+1 entries), the
// final memory and the execution-ordered access log.
type Execution struct {
	Steps     []StepRecord
	Registers []RegisterState
	Memory    *Memory
	AccessLog []MemoryCell
	Builtins  []BuiltinRunner
	Program   *Program
}

// Initial returns the first register state.
func (e *Execution) Initial() RegisterState { return e.Registers[0] }

// Final returns the register state after the last step.
func (e *Execution) Final() RegisterState { return e.Registers[len(e.Registers)-1] }

// Runner replays the VM's instruction semantics. Stepping is strictly
// sequential: each step consumes the previous register state and produces
// the next, with no shared mutable state across runs.
type Runner struct {
	prog     *Program
	mem      *Memory
	builtins []BuiltinRunner
	maxSteps uint64
}

// NewRunner prepares a runner over a fresh memory holding the program
// bytecode. maxSteps of zero selects DefaultMaxSteps.
func NewRunner(prog *Program, maxSteps uint64) (*Runner, error) {
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps
	}
	builtins := make([]BuiltinRunner, 0, len(prog.Builtins))
	for _, d := range prog.Builtins {
		b, err := NewBuiltinRunner(d)
		if err != nil {
			return nil, err
		}
		builtins = append(builtins, b)
	}
	return &Runner{
		prog:     prog,
		mem:      NewMemory(prog.Words),
		builtins: builtins,
		maxSteps: maxSteps,
	}, nil
}

// Generate runs the program from init until its halting instruction,
// producing the full trace from scratch. The step ceiling aborts
// deterministically on runaway programs.
func (r *Runner) Generate(init RegisterState) (*Execution, error) {
	exec := &Execution{
		Registers: []RegisterState{init},
		Memory:    r.mem,
		Builtins:  r.builtins,
		Program:   r.prog,
	}
	curr := init
	for {
		if uint64(len(exec.Steps)) >= r.maxSteps {
			return nil, fault.New(fault.CodeResourceExhausted,
				"step ceiling of %d reached at pc %d without halting", r.maxSteps, curr.Pc)
		}
		rec, next, halted, err := r.step(curr)
		if err != nil {
			return nil, err
		}
		exec.Steps = append(exec.Steps, rec)
		exec.Registers = append(exec.Registers, next)
		exec.AccessLog = append(exec.AccessLog, rec.Accesses[:]...)
		if halted {
			break
		}
		curr = next
	}
	return exec, r.finalizeBuiltins()
}

// Replay re-derives every auxiliary value from a minimal external trace and
// cross-checks the recomputed register states and memory accesses against
// the supplied ones. Any divergence is a consistency error, never silently
// reconciled.
func (r *Runner) Replay(states []RegisterState, memLog []MemoryCell) (*Execution, error) {
	if len(states) == 0 {
		return nil, fault.New(fault.CodeIO, "register trace is empty")
	}
	if uint64(len(states)) > r.maxSteps {
		return nil, fault.New(fault.CodeResourceExhausted,
			"register trace has %d steps, above the %d-step ceiling", len(states), r.maxSteps)
	}
	for i, c := range memLog {
		if err := r.mem.Write(c.Address, c.Value); err != nil {
			return nil, fault.Wrap(fault.CodeConsistency, err, "memory log entry %d", i)
		}
	}

	exec := &Execution{
		Registers: []RegisterState{states[0]},
		Memory:    r.mem,
		Builtins:  r.builtins,
		Program:   r.prog,
	}
	for i, curr := range states {
		rec, next, halted, err := r.step(curr)
		if err != nil {
			return nil, err
		}
		if i+1 < len(states) {
			if halted {
				return nil, fault.New(fault.CodeConsistency,
					"execution halts at step %d but the supplied trace has %d steps", i, len(states))
			}
			if next != states[i+1] {
				return nil, fault.New(fault.CodeConsistency,
					"re-executed registers diverge at step %d: computed pc=%d ap=%d fp=%d, supplied pc=%d ap=%d fp=%d",
					i+1, next.Pc, next.Ap, next.Fp, states[i+1].Pc, states[i+1].Ap, states[i+1].Fp)
			}
		}
		exec.Steps = append(exec.Steps, rec)
		exec.Registers = append(exec.Registers, next)
		exec.AccessLog = append(exec.AccessLog, rec.Accesses[:]...)
	}
	return exec, r.finalizeBuiltins()
}

func (r *Runner) finalizeBuiltins() error {
	for _, b := range r.builtins {
		if err := b.Finalize(r.mem); err != nil {
			return err
		}
	}
	return nil
}

// operandAddr applies a signed offset to a base register, rejecting
// addresses outside the machine's address space.
func operandAddr(base uint64, off int32) (uint64, error) {
	if off < 0 {
		mag := uint64(-int64(off))
		if mag > base {
			return 0, fault.New(fault.CodeExecution, "operand address %d%+d underflows the address space", base, off)
		}
		return base - mag, nil
	}
	return base + uint64(off), nil
}

// step executes one instruction, returning the populated record, the next
// register state and whether the designated halting instruction was reached.
func (r *Runner) step(curr RegisterState) (StepRecord, RegisterState, bool, error) {
	var rec StepRecord
	word, ok := r.mem.Read(curr.Pc)
	if !ok {
		return rec, RegisterState{}, false, fault.New(fault.CodeExecution, "instruction fetch from uninitialized address %d", curr.Pc)
	}
	inst, err := Decode(word.Uint64())
	if err != nil {
		return rec, RegisterState{}, false, err
	}
	rec.Registers = curr
	rec.Inst = inst
	size := inst.Size()

	// Operand addresses.
	dstBase, op0Base := curr.Ap, curr.Ap
	if inst.DstReg == DstFP {
		dstBase = curr.Fp
	}
	if inst.Op0Reg == Op0FP {
		op0Base = curr.Fp
	}
	if rec.DstAddr, err = operandAddr(dstBase, inst.OffDst); err != nil {
		return rec, RegisterState{}, false, err
	}
	if rec.Op0Addr, err = operandAddr(op0Base, inst.OffOp0); err != nil {
		return rec, RegisterState{}, false, err
	}

	op0, op0Known := r.mem.Read(rec.Op0Addr)

	var op1Base uint64
	switch inst.Op1Src {
	case Op1SrcImm:
		if inst.OffOp1 != 1 {
			return rec, RegisterState{}, false, fault.New(fault.CodeDecode,
				"immediate operand requires off_op1 of 1, instruction word %#x has %d", word.Uint64(), inst.OffOp1)
		}
		op1Base = curr.Pc
	case Op1SrcFP:
		op1Base = curr.Fp
	case Op1SrcAP:
		op1Base = curr.Ap
	case Op1SrcOp0:
		if !op0Known {
			return rec, RegisterState{}, false, fault.New(fault.CodeExecution,
				"double dereference through uninitialized operand 0 at address %d", rec.Op0Addr)
		}
		op1Base = op0.Uint64()
	}
	if rec.Op1Addr, err = operandAddr(op1Base, inst.OffOp1); err != nil {
		return rec, RegisterState{}, false, err
	}

	op1, op1Known := r.mem.Read(rec.Op1Addr)
	dst, dstKnown := r.mem.Read(rec.DstAddr)

	// Result rule.
	var res felt.Element
	resKnown := false
	switch inst.Res {
	case ResOp1:
		res, resKnown = op1, op1Known
	case ResAdd:
		if op0Known && op1Known {
			res, resKnown = felt.Add(op0, op1), true
		}
	case ResMul:
		if op0Known && op1Known {
			res, resKnown = felt.Mul(op0, op1), true
		}
	case ResUnconstrained:
		// res is unused; the trace-time witness is filled in below.
	}

	// Opcode side effects.
	switch inst.Opcode {
	case OpcodeCall:
		// Push the caller frame: [ap] = fp, [ap+1] = return pc.
		retPc := felt.New(curr.Pc + size)
		if err := r.mem.Write(curr.Ap, felt.New(curr.Fp)); err != nil {
			return rec, RegisterState{}, false, err
		}
		if err := r.mem.Write(curr.Ap+1, retPc); err != nil {
			return rec, RegisterState{}, false, err
		}
		dst, dstKnown = felt.New(curr.Fp), true
		op0, op0Known = retPc, true
	case OpcodeAssertEq:
		switch {
		case resKnown && dstKnown:
			if !felt.Equal(dst, res) {
				return rec, RegisterState{}, false, fault.New(fault.CodeExecution,
					"assert-equal mismatch at pc %d: dst %s != res %s", curr.Pc, dst.String(), res.String())
			}
		case resKnown:
			if err := r.mem.Write(rec.DstAddr, res); err != nil {
				return rec, RegisterState{}, false, err
			}
			dst, dstKnown = res, true
		case dstKnown && inst.Res == ResOp1:
			// res = op1 is the only rule that leaves res underivable;
			// deduce the operand cell from dst.
			if err := r.mem.Write(rec.Op1Addr, dst); err != nil {
				return rec, RegisterState{}, false, err
			}
			op1, op1Known = dst, true
			res, resKnown = dst, true
		default:
			return rec, RegisterState{}, false, fault.New(fault.CodeExecution,
				"assert-equal at pc %d is underdetermined: neither side is known", curr.Pc)
		}
	}

	// Every operand cell must resolve so the row's accesses are concrete.
	if !op0Known {
		return rec, RegisterState{}, false, fault.New(fault.CodeExecution, "read of uninitialized address %d", rec.Op0Addr)
	}
	if !op1Known {
		return rec, RegisterState{}, false, fault.New(fault.CodeExecution, "read of uninitialized address %d", rec.Op1Addr)
	}
	if !dstKnown {
		return rec, RegisterState{}, false, fault.New(fault.CodeExecution, "read of uninitialized address %d", rec.DstAddr)
	}
	if inst.Res != ResUnconstrained && !resKnown {
		return rec, RegisterState{}, false, fault.New(fault.CodeExecution, "result undetermined at pc %d", curr.Pc)
	}

	// Register updates.
	next := RegisterState{}
	halted := false
	switch inst.PcUp {
	case PcRegular:
		next.Pc = curr.Pc + size
	case PcJumpAbs:
		next.Pc = res.Uint64()
	case PcJumpRel:
		rel, err := relativeTarget(curr.Pc, res)
		if err != nil {
			return rec, RegisterState{}, false, err
		}
		next.Pc = rel
		// Only the plain jmp rel 0 is a state fixed point; a call rel 0
		// still advances ap and fp.
		halted = next.Pc == curr.Pc && inst.Opcode == OpcodeNop && inst.ApUp == ApRegular
	case PcJnz:
		if dst.IsZero() {
			next.Pc = curr.Pc + size
		} else {
			target, err := relativeTarget(curr.Pc, op1)
			if err != nil {
				return rec, RegisterState{}, false, err
			}
			next.Pc = target
		}
		// Witness for the t1 helper column: dst^-1 when the jump is
		// taken, zero otherwise.
		if !dst.IsZero() {
			res = felt.Inverse(dst)
		}
	}

	switch inst.ApUp {
	case ApRegular:
		next.Ap = curr.Ap
	case ApAddRes:
		// ap arithmetic is on machine integers; a field-negative advance
		// would diverge from the mod-p register update.
		adv := res.Uint64()
		if adv > felt.Modulus/2 || curr.Ap >= felt.Modulus-adv {
			return rec, RegisterState{}, false, fault.New(fault.CodeExecution,
				"ap advance by %s at pc %d leaves the address space", res.String(), curr.Pc)
		}
		next.Ap = curr.Ap + adv
	case ApAdd1:
		next.Ap = curr.Ap + 1
	case ApAdd2:
		next.Ap = curr.Ap + 2
	}

	switch inst.Opcode {
	case OpcodeCall:
		next.Fp = curr.Ap + 2
	case OpcodeRet:
		next.Fp = dst.Uint64()
	default:
		next.Fp = curr.Fp
	}

	rec.Dst, rec.Op0, rec.Op1, rec.Res = dst, op0, op1, res
	rec.Accesses = [AccessesPerStep]MemoryCell{
		{Address: curr.Pc, Value: word},
		{Address: rec.DstAddr, Value: dst},
		{Address: rec.Op0Addr, Value: op0},
		{Address: rec.Op1Addr, Value: op1},
	}

	if err := r.recordBuiltins(&rec); err != nil {
		return rec, RegisterState{}, false, err
	}
	return rec, next, halted, nil
}

// relativeTarget resolves pc + delta where delta is a field element encoding
// a signed displacement (negative values are p - |delta|).
func relativeTarget(pc uint64, delta felt.Element) (uint64, error) {
	d := delta.Uint64()
	if d <= felt.Modulus/2 {
		return pc + d, nil
	}
	back := felt.Modulus - d
	if back > pc {
		return 0, fault.New(fault.CodeExecution, "relative jump of -%d from pc %d underflows the address space", back, pc)
	}
	return pc - back, nil
}

// recordBuiltins validates the row's accesses that fall inside builtin
// segments and fills the per-descriptor auxiliary values.
func (r *Runner) recordBuiltins(rec *StepRecord) error {
	rec.Builtins = make([]BuiltinAccess, len(r.builtins))
	for i, b := range r.builtins {
		d := b.Descriptor()
		access := BuiltinAccess{Aux: make([]felt.Element, b.AuxWidth())}
		// Skip the fetch access; only operand cells live in builtin
		// segments.
		for _, c := range rec.Accesses[1:] {
			if !d.Contains(c.Address) {
				continue
			}
			aux, err := b.ValidateCell(c.Address, c.Value)
			if err != nil {
				return err
			}
			if access.Indicator.IsZero() {
				access.Indicator = felt.One()
				access.Value = c.Value
				copy(access.Aux, aux)
			}
		}
		rec.Builtins[i] = access
	}
	return nil
}
