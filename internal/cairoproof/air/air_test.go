package air

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/obsidianzk/cairoproof/internal/cairoproof/fault"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/felt"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/trace"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/vm"
)

func buildFor(t *testing.T, prog *vm.Program) (*trace.BuiltTrace, PublicInputs) {
	t.Helper()
	r, err := vm.NewRunner(prog, 0)
	require.NoError(t, err)
	exec, err := r.Generate(prog.EntryState())
	require.NoError(t, err)
	bt, err := trace.Build(exec)
	require.NoError(t, err)
	pub := PublicInputs{
		ProgramHash: prog.Hash(),
		Program:     prog.Words,
		Init:        exec.Initial(),
		Fin:         exec.Final(),
		RcMin:       bt.RcMin,
		RcMax:       bt.RcMax,
		NumSteps:    uint64(bt.NumSteps),
		NumRows:     uint64(bt.Table.NumRows()),
		Builtins:    prog.Builtins,
	}
	return bt, pub
}

func testChallenges() Challenges {
	return Challenges{
		MemZ:     felt.New(0x1234_5678_9abc_def1),
		MemAlpha: felt.New(0x0fed_cba9_8765_4321),
		RcZ:      felt.New(0x2468_ace0_1357_9bdf),
	}
}

func extend(bt *trace.BuiltTrace, ch Challenges) {
	trace.FillMemoryPermutation(bt.Table, bt.Layout, ch.MemZ, ch.MemAlpha)
	trace.FillRcPermutation(bt.Table, bt.Layout, ch.RcZ)
}

func fullProgram() *vm.Program {
	a := vm.NewAssembler()
	a.AssertEqImm(6)
	a.AssertEqImm(7)
	a.AssertEqMul()
	a.AssertEqAdd()
	a.CallRel(4)
	a.JmpRel(5)
	a.Jnz(-1, 2)
	a.Ret()
	a.Halt()
	return a.Program()
}

func TestCheckTableAcceptsValidExecution(t *testing.T) {
	bt, pub := buildFor(t, fullProgram())
	ch := testChallenges()
	extend(bt, ch)

	a := New(bt.Layout, pub)
	require.NoError(t, a.CheckTable(bt.Table, ch))
}

func TestCheckTableAcceptsBuiltinExecution(t *testing.T) {
	asm := vm.NewAssembler()
	asm.AssertEqDstImm(-1, 70000)
	asm.Halt()
	prog := asm.Program(vm.BuiltinDescriptor{
		Kind: vm.BuiltinRangeCheck, Base: 5, Size: 1, BoundBits: 32,
	})

	bt, pub := buildFor(t, prog)
	ch := testChallenges()
	extend(bt, ch)

	a := New(bt.Layout, pub)
	require.NoError(t, a.CheckTable(bt.Table, ch))
}

func TestCheckTableRejectsTamperedCell(t *testing.T) {
	bt, pub := buildFor(t, fullProgram())
	ch := testChallenges()
	extend(bt, ch)
	a := New(bt.Layout, pub)
	require.NoError(t, a.CheckTable(bt.Table, ch))

	bt.Table.Set(0, trace.ColDst, felt.Add(bt.Table.Get(0, trace.ColDst), felt.One()))
	err := a.CheckTable(bt.Table, ch)
	require.Error(t, err)
	require.Equal(t, fault.CodeRejected, fault.CodeOf(err))
}

func TestCheckTableRejectsWrongFinalState(t *testing.T) {
	bt, pub := buildFor(t, fullProgram())
	ch := testChallenges()
	extend(bt, ch)

	pub.Fin.Pc++
	a := New(bt.Layout, pub)
	err := a.CheckTable(bt.Table, ch)
	require.Error(t, err)
	require.Equal(t, fault.CodeRejected, fault.CodeOf(err))
}

func TestCheckTableRejectsDisabledSelector(t *testing.T) {
	bt, pub := buildFor(t, fullProgram())
	ch := testChallenges()
	extend(bt, ch)
	a := New(bt.Layout, pub)
	require.NoError(t, a.CheckTable(bt.Table, ch))

	// Switching the gate off wholesale must not silence the instruction
	// constraints.
	for i := 0; i < bt.Table.NumRows(); i++ {
		bt.Table.Set(i, trace.ColSelector, felt.Zero())
	}
	err := a.CheckTable(bt.Table, ch)
	require.Error(t, err)
	require.Equal(t, fault.CodeRejected, fault.CodeOf(err))
}

func TestCheckTableRejectsForgedTable(t *testing.T) {
	// A two-row table with no execution in it: garbage instruction words,
	// an ungated selector and an invented final state. Only the register
	// cells the boundary pins look at are filled in.
	prog := fullProgram()
	l := trace.NewLayout(nil)
	tbl := trace.NewTable(l.NumColumns)
	tbl.Resize(2)

	init := prog.EntryState()
	fin := vm.RegisterState{Pc: 7, Ap: 123456, Fp: init.Fp}
	pub := PublicInputs{
		ProgramHash: prog.Hash(),
		Program:     prog.Words,
		Init:        init,
		Fin:         fin,
		NumSteps:    2,
		NumRows:     2,
	}
	tbl.Set(0, trace.ColPc, felt.New(init.Pc))
	tbl.Set(0, trace.ColAp, felt.New(init.Ap))
	tbl.Set(0, trace.ColFp, felt.New(init.Fp))
	tbl.Set(1, trace.ColPc, felt.New(fin.Pc))
	tbl.Set(1, trace.ColAp, felt.New(fin.Ap))
	tbl.Set(0, trace.ColInst, felt.New(99))
	tbl.Set(1, trace.ColInst, felt.New(98))

	ch := testChallenges()
	trace.FillMemoryPermutation(tbl, l, ch.MemZ, ch.MemAlpha)
	trace.FillRcPermutation(tbl, l, ch.RcZ)

	err := New(l, pub).CheckTable(tbl, ch)
	require.Error(t, err)
	require.Equal(t, fault.CodeRejected, fault.CodeOf(err))
}

func TestCheckTableBindsProgramBytecode(t *testing.T) {
	bt, pub := buildFor(t, fullProgram())
	ch := testChallenges()
	extend(bt, ch)
	require.NoError(t, New(bt.Layout, pub).CheckTable(bt.Table, ch))

	// The same table against public inputs quoting different bytecode
	// must fail the memory argument's terminal pin.
	other := pub
	other.Program = append([]felt.Element(nil), pub.Program...)
	other.Program[0] = felt.Add(other.Program[0], felt.One())
	err := New(bt.Layout, other).CheckTable(bt.Table, ch)
	require.Error(t, err)
	require.Equal(t, fault.CodeRejected, fault.CodeOf(err))
}

func TestCheckTableRejectsWrongChallenges(t *testing.T) {
	bt, pub := buildFor(t, fullProgram())
	ch := testChallenges()
	extend(bt, ch)
	a := New(bt.Layout, pub)

	other := ch
	other.MemZ = felt.Add(other.MemZ, felt.One())
	err := a.CheckTable(bt.Table, other)
	require.Error(t, err)
	require.Equal(t, fault.CodeRejected, fault.CodeOf(err))
}

func TestMaxDegreeIsBounded(t *testing.T) {
	bt, pub := buildFor(t, fullProgram())
	a := New(bt.Layout, pub)
	require.LessOrEqual(t, a.MaxDegree(), 3)
}

func TestPublicInputsRoundTrip(t *testing.T) {
	_, pub := buildFor(t, fullProgram())
	pub.Builtins = []vm.BuiltinDescriptor{
		{Kind: vm.BuiltinRangeCheck, Base: 100, Size: 8, BoundBits: 48},
	}

	got, rest, err := DecodePublicInputs(pub.Encode())
	require.NoError(t, err)
	require.Empty(t, rest)
	require.Equal(t, pub, got)
}

func TestDecodePublicInputsTruncated(t *testing.T) {
	_, pub := buildFor(t, fullProgram())
	enc := pub.Encode()
	for _, n := range []int{0, 16, 40, len(enc) - 1} {
		_, _, err := DecodePublicInputs(enc[:n])
		require.Error(t, err, "prefix of %d bytes", n)
		require.Equal(t, fault.CodeDecode, fault.CodeOf(err))
	}
}
