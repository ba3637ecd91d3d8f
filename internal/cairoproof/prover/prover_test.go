package prover

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/obsidianzk/cairoproof/internal/cairoproof/fault"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/felt"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/trace"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/vm"
)

func proveProgram() *vm.Program {
	a := vm.NewAssembler()
	a.AssertEqImm(6)
	a.AssertEqImm(7)
	a.AssertEqMul()
	a.Halt()
	return a.Program()
}

func execute(t *testing.T, prog *vm.Program) *vm.Execution {
	t.Helper()
	r, err := vm.NewRunner(prog, 0)
	require.NoError(t, err)
	exec, err := r.Generate(prog.EntryState())
	require.NoError(t, err)
	return exec
}

func TestProveVerifyRoundTrip(t *testing.T) {
	prog := proveProgram()
	eng := NewLocalEngine()

	proof, err := Prove(eng, execute(t, prog))
	require.NoError(t, err)
	require.NoError(t, Verify(eng, proof, prog.Hash()))
}

func TestProveGeneratedMatchesReplayed(t *testing.T) {
	prog := proveProgram()
	eng := NewLocalEngine()

	generated, err := ProveGenerated(eng, prog, prog.EntryState(), 0)
	require.NoError(t, err)

	exec := execute(t, prog)
	states := exec.Registers[:len(exec.Registers)-1]
	replayed, err := ProveReplayed(eng, prog, states, exec.Memory.Sorted(), 0)
	require.NoError(t, err)

	require.Equal(t, generated, replayed)
	require.NoError(t, Verify(eng, replayed, prog.Hash()))
}

func TestVerifyRejectsWrongProgramHash(t *testing.T) {
	prog := proveProgram()
	eng := NewLocalEngine()
	proof, err := Prove(eng, execute(t, prog))
	require.NoError(t, err)

	var other [32]byte
	other[0] = 0xff
	err = Verify(eng, proof, other)
	require.Error(t, err)
	require.Equal(t, fault.CodeRejected, fault.CodeOf(err))
}

func TestVerifyRejectsMismatchedProgramWords(t *testing.T) {
	prog := proveProgram()
	eng := NewLocalEngine()
	raw, err := Prove(eng, execute(t, prog))
	require.NoError(t, err)

	// Quoting different bytecode under the trusted program's hash must
	// fail the words-to-hash binding before the engine runs.
	p, err := DecodeProof(raw)
	require.NoError(t, err)
	p.Public.Program = append([]felt.Element(nil), p.Public.Program...)
	p.Public.Program[0] = felt.Add(p.Public.Program[0], felt.One())

	err = Verify(eng, p.Encode(), prog.Hash())
	require.Error(t, err)
	require.Equal(t, fault.CodeRejected, fault.CodeOf(err))
}

func TestVerifyRejectsBitFlips(t *testing.T) {
	prog := proveProgram()
	eng := NewLocalEngine()
	proof, err := Prove(eng, execute(t, prog))
	require.NoError(t, err)

	for _, pos := range []int{0, len(proof) / 2, len(proof) - 1} {
		flipped := append([]byte(nil), proof...)
		flipped[pos] ^= 1
		err := Verify(eng, flipped, prog.Hash())
		require.Error(t, err, "flipped byte %d", pos)
		require.Equal(t, fault.CodeMalformedProof, fault.CodeOf(err), "flipped byte %d", pos)
	}
}

func TestVerifyRejectsTamperedMainColumn(t *testing.T) {
	prog := proveProgram()
	eng := NewLocalEngine()
	raw, err := Prove(eng, execute(t, prog))
	require.NoError(t, err)

	p, err := DecodeProof(raw)
	require.NoError(t, err)
	p.Table.Set(0, trace.ColDst, felt.Add(p.Table.Get(0, trace.ColDst), felt.One()))

	// Re-encoding refreshes the checksum, so the tamper must be caught by
	// the column commitment instead.
	err = Verify(eng, p.Encode(), prog.Hash())
	require.Error(t, err)
	require.Equal(t, fault.CodeMalformedProof, fault.CodeOf(err))
}

func TestVerifyRejectsTamperedPermutationColumn(t *testing.T) {
	prog := proveProgram()
	eng := NewLocalEngine()
	raw, err := Prove(eng, execute(t, prog))
	require.NoError(t, err)

	p, err := DecodeProof(raw)
	require.NoError(t, err)
	layout, err := layoutFromPublic(&p.Public)
	require.NoError(t, err)

	col := layout.PostChallengeColumns()[0]
	p.Table.Set(0, col, felt.Add(p.Table.Get(0, col), felt.One()))
	p.AuxCommitment = commitColumns(p.Table, layout.PostChallengeColumns())

	err = Verify(eng, p.Encode(), prog.Hash())
	require.Error(t, err)
	require.Equal(t, fault.CodeRejected, fault.CodeOf(err))
}

func TestDecodeProofTruncated(t *testing.T) {
	prog := proveProgram()
	eng := NewLocalEngine()
	raw, err := Prove(eng, execute(t, prog))
	require.NoError(t, err)

	for _, n := range []int{0, 4, 36, len(raw) / 2, len(raw) - 1} {
		_, err := DecodeProof(raw[:n])
		require.Error(t, err, "prefix of %d bytes", n)
		require.Equal(t, fault.CodeMalformedProof, fault.CodeOf(err))
	}
}

func TestProveRejectsTruncatedExecution(t *testing.T) {
	exec := execute(t, proveProgram())
	exec.Steps = exec.Steps[:len(exec.Steps)-1]
	exec.Registers = exec.Registers[:len(exec.Registers)-1]

	_, err := Prove(NewLocalEngine(), exec)
	require.Error(t, err)
	require.Equal(t, fault.CodeConsistency, fault.CodeOf(err))
}

func TestTranscriptIsDeterministic(t *testing.T) {
	draw := func(seed []byte) [3]felt.Element {
		tr := NewTranscript(seed)
		tr.Send("main_commitment", []byte{1, 2, 3})
		return [3]felt.Element{
			tr.ReceiveFieldElement("memory_z"),
			tr.ReceiveFieldElement("memory_alpha"),
			tr.ReceiveFieldElement("range_check_z"),
		}
	}
	seed := []byte("public inputs")
	require.Equal(t, draw(seed), draw(seed))
	require.NotEqual(t, draw(seed), draw([]byte("other inputs")))
}

func TestTranscriptBindsSentData(t *testing.T) {
	a := NewTranscript([]byte("seed"))
	a.Send("commitment", []byte{1})
	b := NewTranscript([]byte("seed"))
	b.Send("commitment", []byte{2})
	require.NotEqual(t, a.ReceiveFieldElement("z"), b.ReceiveFieldElement("z"))
}

func TestProveVerifyWithBuiltin(t *testing.T) {
	a := vm.NewAssembler()
	a.AssertEqDstImm(-1, 70000)
	a.Halt()
	prog := a.Program(vm.BuiltinDescriptor{
		Kind: vm.BuiltinRangeCheck, Base: 5, Size: 1, BoundBits: 32,
	})

	eng := NewLocalEngine()
	proof, err := Prove(eng, execute(t, prog))
	require.NoError(t, err)
	require.NoError(t, Verify(eng, proof, prog.Hash()))
}
