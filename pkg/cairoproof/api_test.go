package cairoproof

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/obsidianzk/cairoproof/internal/cairoproof/vm"
)

func testArtifact(t *testing.T) []byte {
	t.Helper()
	a := vm.NewAssembler()
	a.AssertEqImm(6)
	a.AssertEqImm(7)
	a.AssertEqMul()
	a.Halt()
	data, err := a.Program().Marshal()
	require.NoError(t, err)
	return data
}

func TestRunAndVerify(t *testing.T) {
	prog, err := ParseProgram(testArtifact(t))
	require.NoError(t, err)

	p, err := NewProver(DefaultConfig())
	require.NoError(t, err)
	proof, err := p.Run(prog)
	require.NoError(t, err)

	v, err := NewVerifier(DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, v.Verify(proof, prog))
}

func TestProveFromTraceFiles(t *testing.T) {
	prog, err := ParseProgram(testArtifact(t))
	require.NoError(t, err)

	// Produce the trace artifacts the way an external executor would.
	r, err := vm.NewRunner(prog, 0)
	require.NoError(t, err)
	exec, err := r.Generate(prog.EntryState())
	require.NoError(t, err)
	traceBytes := vm.EncodeRegisterTrace(exec.Registers[:len(exec.Registers)-1])
	memBytes := vm.EncodeMemoryLog(exec.Memory.Sorted())

	states, err := LoadRegisterTrace(traceBytes)
	require.NoError(t, err)
	memLog, err := LoadMemoryLog(memBytes)
	require.NoError(t, err)

	p, err := NewProver(DefaultConfig())
	require.NoError(t, err)
	proof, err := p.Prove(prog, states, memLog)
	require.NoError(t, err)

	v, err := NewVerifier(DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, v.Verify(proof, prog))
}

func TestProveSurfacesConsistencyError(t *testing.T) {
	prog, err := ParseProgram(testArtifact(t))
	require.NoError(t, err)

	r, err := vm.NewRunner(prog, 0)
	require.NoError(t, err)
	exec, err := r.Generate(prog.EntryState())
	require.NoError(t, err)
	states := append([]RegisterState(nil), exec.Registers[:len(exec.Registers)-1]...)
	states[1].Ap++

	p, err := NewProver(DefaultConfig())
	require.NoError(t, err)
	_, err = p.Prove(prog, states, exec.Memory.Sorted())
	require.Error(t, err)
	require.Equal(t, ErrConsistency, CodeOf(err))
}

func TestVerifySurfacesMalformedProof(t *testing.T) {
	prog, err := ParseProgram(testArtifact(t))
	require.NoError(t, err)

	v, err := NewVerifier(DefaultConfig())
	require.NoError(t, err)
	err = v.Verify([]byte("not a proof"), prog)
	require.Error(t, err)
	require.Equal(t, ErrMalformedProof, CodeOf(err))
}

func TestVerifyRejectsProofForOtherProgram(t *testing.T) {
	progA, err := ParseProgram(testArtifact(t))
	require.NoError(t, err)

	b := vm.NewAssembler()
	b.AssertEqImm(1)
	b.Halt()
	progB := b.Program()

	p, err := NewProver(DefaultConfig())
	require.NoError(t, err)
	proof, err := p.Run(progA)
	require.NoError(t, err)

	v, err := NewVerifier(DefaultConfig())
	require.NoError(t, err)
	err = v.Verify(proof, progB)
	require.Error(t, err)
	require.Equal(t, ErrRejected, CodeOf(err))
}

func TestRunHonorsStepCeiling(t *testing.T) {
	a := vm.NewAssembler()
	a.JmpRel(2)
	a.JmpRel(-2)
	data, err := a.Program().Marshal()
	require.NoError(t, err)
	prog, err := ParseProgram(data)
	require.NoError(t, err)

	p, err := NewProver(&Config{MaxSteps: 64})
	require.NoError(t, err)
	_, err = p.Run(prog)
	require.Error(t, err)
	require.Equal(t, ErrResourceExhausted, CodeOf(err))
}

func TestNilConfigRejected(t *testing.T) {
	_, err := NewProver(nil)
	require.Error(t, err)
	_, err = NewVerifier(nil)
	require.Error(t, err)
}
