package vm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/obsidianzk/cairoproof/internal/cairoproof/fault"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/felt"
)

func generate(t *testing.T, prog *Program) *Execution {
	t.Helper()
	r, err := NewRunner(prog, 0)
	require.NoError(t, err)
	exec, err := r.Generate(prog.EntryState())
	require.NoError(t, err)
	return exec
}

func TestGenerateHaltOnly(t *testing.T) {
	a := NewAssembler()
	a.Halt()
	exec := generate(t, a.Program())

	require.Len(t, exec.Steps, 1)
	init, fin := exec.Initial(), exec.Final()
	require.Equal(t, init, fin)
	require.Equal(t, uint64(1), fin.Pc)
}

func TestGenerateAssertWritesDeducedValue(t *testing.T) {
	a := NewAssembler()
	a.AssertEqImm(41)
	a.Halt()
	prog := a.Program()
	exec := generate(t, prog)

	require.Len(t, exec.Steps, 2)
	entry := prog.EntryState()
	v, ok := exec.Memory.Read(entry.Ap)
	require.True(t, ok)
	require.True(t, felt.Equal(felt.New(41), v))
	require.Equal(t, entry.Ap+1, exec.Final().Ap)
}

func TestGenerateArithmetic(t *testing.T) {
	a := NewAssembler()
	a.AssertEqImm(6)
	a.AssertEqImm(7)
	a.AssertEqMul()
	a.Halt()
	prog := a.Program()
	exec := generate(t, prog)

	entry := prog.EntryState()
	v, ok := exec.Memory.Read(entry.Ap + 2)
	require.True(t, ok)
	require.True(t, felt.Equal(felt.New(42), v))

	// Swap the third instruction for the add variant.
	b := NewAssembler()
	b.AssertEqImm(6)
	b.AssertEqImm(7)
	b.AssertEqAdd()
	b.Halt()
	prog = b.Program()
	exec = generate(t, prog)
	v, ok = exec.Memory.Read(prog.EntryState().Ap + 2)
	require.True(t, ok)
	require.True(t, felt.Equal(felt.New(13), v))
}

func TestGenerateCallRet(t *testing.T) {
	// 1: call rel 4      -> jumps to 5
	// 3: halt            <- return lands here
	// 5: [ap] = 7; ap++
	// 7: ret
	a := NewAssembler()
	a.CallRel(4)
	a.Halt()
	a.AssertEqImm(7)
	a.Ret()
	prog := a.Program()
	exec := generate(t, prog)

	entry := prog.EntryState() // ap = fp = 8
	require.Equal(t, uint64(8), entry.Ap)

	// The call pushed the caller frame.
	fp, ok := exec.Memory.Read(entry.Ap)
	require.True(t, ok)
	require.True(t, felt.Equal(felt.New(entry.Fp), fp))
	ret, ok := exec.Memory.Read(entry.Ap + 1)
	require.True(t, ok)
	require.True(t, felt.Equal(felt.New(3), ret))

	// After returning, execution halts at 3 with the caller's fp.
	fin := exec.Final()
	require.Equal(t, uint64(3), fin.Pc)
	require.Equal(t, entry.Fp, fin.Fp)

	// Step records: call, assert, ret, halt.
	require.Len(t, exec.Steps, 4)
	require.Equal(t, OpcodeCall, exec.Steps[0].Inst.Opcode)
	require.Equal(t, OpcodeAssertEq, exec.Steps[1].Inst.Opcode)
	require.Equal(t, OpcodeRet, exec.Steps[2].Inst.Opcode)
}

func TestGenerateJnz(t *testing.T) {
	t.Run("taken", func(t *testing.T) {
		// 1: [ap] = 5; ap++
		// 3: jnz [ap-1] rel 4   -> taken, lands on 7
		// 5: halt               (skipped)
		// 7: halt
		a := NewAssembler()
		a.AssertEqImm(5)
		a.Jnz(-1, 4)
		a.Halt()
		a.Halt()
		exec := generate(t, a.Program())
		require.Equal(t, uint64(7), exec.Final().Pc)

		// The jnz row witnesses dst^-1 in its res slot.
		jnzStep := exec.Steps[1]
		require.Equal(t, PcJnz, jnzStep.Inst.PcUp)
		require.True(t, felt.Equal(felt.One(), felt.Mul(jnzStep.Dst, jnzStep.Res)))
	})

	t.Run("not taken", func(t *testing.T) {
		a := NewAssembler()
		a.AssertEqImm(0)
		a.Jnz(-1, 4)
		a.Halt()
		a.Halt()
		exec := generate(t, a.Program())
		require.Equal(t, uint64(5), exec.Final().Pc)
		jnzStep := exec.Steps[1]
		require.True(t, jnzStep.Res.IsZero())
	})
}

func TestGenerateApAddAdvancesByResult(t *testing.T) {
	// ap += imm; the assembler has no helper for the ap-add flag, so the
	// word is encoded directly. Unused operands sit at [fp-1].
	inst := Instruction{
		OffDst: -1, OffOp0: -1, OffOp1: 1,
		DstReg: DstFP, Op0Reg: Op0FP, Op1Src: Op1SrcImm,
		Res: ResOp1, PcUp: PcRegular, ApUp: ApAddRes, Opcode: OpcodeNop,
	}
	prog := &Program{
		Words: []felt.Element{
			felt.New(Encode(inst)), felt.New(3),
			felt.New(haltWord), felt.Zero(),
		},
		EntryPc: 1,
	}
	exec := generate(t, prog)
	require.Equal(t, prog.EntryState().Ap+3, exec.Final().Ap)
}

func TestGenerateRejectsNegativeApAdvance(t *testing.T) {
	// A field-negative advance would wrap the machine register away from
	// the mod-p update and must fail at the step that attempts it.
	inst := Instruction{
		OffDst: -1, OffOp0: -1, OffOp1: 1,
		DstReg: DstFP, Op0Reg: Op0FP, Op1Src: Op1SrcImm,
		Res: ResOp1, PcUp: PcRegular, ApUp: ApAddRes, Opcode: OpcodeNop,
	}
	prog := &Program{
		Words: []felt.Element{
			felt.New(Encode(inst)), felt.New(felt.Modulus - 1),
			felt.New(haltWord), felt.Zero(),
		},
		EntryPc: 1,
	}
	r, err := NewRunner(prog, 0)
	require.NoError(t, err)
	_, err = r.Generate(prog.EntryState())
	require.Error(t, err)
	require.Equal(t, fault.CodeExecution, fault.CodeOf(err))
}

func TestCallSelfIsNotHalting(t *testing.T) {
	// call rel 0 revisits its own pc but keeps advancing ap and fp; only
	// the plain jmp rel 0 stops execution.
	a := NewAssembler()
	a.CallRel(0)
	prog := a.Program()

	r, err := NewRunner(prog, 32)
	require.NoError(t, err)
	_, err = r.Generate(prog.EntryState())
	require.Error(t, err)
	require.Equal(t, fault.CodeResourceExhausted, fault.CodeOf(err))
}

func TestGenerateStepCeiling(t *testing.T) {
	// Two jumps bouncing between each other never halt.
	a := NewAssembler()
	a.JmpRel(2) // 1 -> 3
	a.JmpRel(-2) // 3 -> 1
	prog := a.Program()

	r, err := NewRunner(prog, 64)
	require.NoError(t, err)
	_, err = r.Generate(prog.EntryState())
	require.Error(t, err)
	require.Equal(t, fault.CodeResourceExhausted, fault.CodeOf(err))
}

func TestGenerateAssertMismatch(t *testing.T) {
	// Pin [ap] to two different values.
	a := NewAssembler()
	a.AssertEqDstImm(0, 1)
	a.AssertEqDstImm(0, 2)
	a.Halt()
	prog := a.Program()
	r, err := NewRunner(prog, 0)
	require.NoError(t, err)
	_, err = r.Generate(prog.EntryState())
	require.Error(t, err)
	require.Equal(t, fault.CodeExecution, fault.CodeOf(err))
}

func TestGenerateFetchFromUninitialized(t *testing.T) {
	// Jump beyond the bytecode.
	a := NewAssembler()
	a.JmpRel(40)
	prog := a.Program()
	r, err := NewRunner(prog, 0)
	require.NoError(t, err)
	_, err = r.Generate(prog.EntryState())
	require.Error(t, err)
	require.Equal(t, fault.CodeExecution, fault.CodeOf(err))
}

// replayArtifacts runs a program once and returns the minimal external
// trace a prover client would hand over.
func replayArtifacts(t *testing.T, prog *Program) ([]RegisterState, []MemoryCell) {
	t.Helper()
	exec := generate(t, prog)
	states := exec.Registers[:len(exec.Registers)-1]
	return states, exec.Memory.Sorted()
}

func TestReplayMatchesGenerate(t *testing.T) {
	a := NewAssembler()
	a.AssertEqImm(6)
	a.AssertEqImm(7)
	a.AssertEqAdd()
	a.Halt()
	prog := a.Program()
	states, memLog := replayArtifacts(t, prog)

	r, err := NewRunner(prog, 0)
	require.NoError(t, err)
	exec, err := r.Replay(states, memLog)
	require.NoError(t, err)
	require.Len(t, exec.Steps, len(states))
	require.Equal(t, states[0], exec.Initial())
}

func TestReplayRejectsDivergingRegisters(t *testing.T) {
	a := NewAssembler()
	a.AssertEqImm(6)
	a.AssertEqImm(7)
	a.AssertEqAdd()
	a.Halt()
	prog := a.Program()
	states, memLog := replayArtifacts(t, prog)

	states[2].Ap += 1

	r, err := NewRunner(prog, 0)
	require.NoError(t, err)
	_, err = r.Replay(states, memLog)
	require.Error(t, err)
	require.Equal(t, fault.CodeConsistency, fault.CodeOf(err))
}

func TestReplayRejectsTamperedMemory(t *testing.T) {
	a := NewAssembler()
	a.AssertEqImm(6)
	a.AssertEqImm(7)
	a.AssertEqMul()
	a.Halt()
	prog := a.Program()
	states, memLog := replayArtifacts(t, prog)

	// Flip the product cell; the memory log now contradicts re-execution.
	entry := prog.EntryState()
	for i := range memLog {
		if memLog[i].Address == entry.Ap+2 {
			memLog[i].Value = felt.New(43)
		}
	}

	r, err := NewRunner(prog, 0)
	require.NoError(t, err)
	_, err = r.Replay(states, memLog)
	require.Error(t, err)
	require.Equal(t, fault.CodeConsistency, fault.CodeOf(err))
}

func TestReplayRejectsEarlyHalt(t *testing.T) {
	a := NewAssembler()
	a.Halt()
	prog := a.Program()
	states, memLog := replayArtifacts(t, prog)

	// Claim two steps for a program that halts after one.
	states = append(states, states[0])

	r, err := NewRunner(prog, 0)
	require.NoError(t, err)
	_, err = r.Replay(states, memLog)
	require.Error(t, err)
	require.Equal(t, fault.CodeConsistency, fault.CodeOf(err))
}

func TestReplayRejectsEmptyTrace(t *testing.T) {
	a := NewAssembler()
	a.Halt()
	prog := a.Program()
	r, err := NewRunner(prog, 0)
	require.NoError(t, err)
	_, err = r.Replay(nil, nil)
	require.Error(t, err)
	require.Equal(t, fault.CodeIO, fault.CodeOf(err))
}

func TestStepsRecordFourAccesses(t *testing.T) {
	a := NewAssembler()
	a.AssertEqImm(9)
	a.Halt()
	exec := generate(t, a.Program())

	for _, step := range exec.Steps {
		require.Equal(t, step.Registers.Pc, step.Accesses[0].Address)
		require.Equal(t, step.DstAddr, step.Accesses[1].Address)
		require.Equal(t, step.Op0Addr, step.Accesses[2].Address)
		require.Equal(t, step.Op1Addr, step.Accesses[3].Address)
	}
}
