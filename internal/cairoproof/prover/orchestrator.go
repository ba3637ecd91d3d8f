package prover

import (
	"github.com/ethereum/go-ethereum/log"

	"github.com/obsidianzk/cairoproof/internal/cairoproof/air"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/fault"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/trace"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/vm"
)

// PublicInputsFor derives the public input tuple of an execution and its
// built trace.
func PublicInputsFor(exec *vm.Execution, bt *trace.BuiltTrace) air.PublicInputs {
	return air.PublicInputs{
		ProgramHash: exec.Program.Hash(),
		Program:     exec.Program.Words,
		Init:        exec.Initial(),
		Fin:         exec.Final(),
		RcMin:       bt.RcMin,
		RcMax:       bt.RcMax,
		NumSteps:    uint64(bt.NumSteps),
		NumRows:     uint64(bt.Table.NumRows()),
		Builtins:    exec.Program.Builtins,
	}
}

// Prove runs the full pipeline over a completed execution: build the table,
// derive the public inputs, instantiate the constraint system and hand off
// to the engine. The returned bytes are the serialized proof envelope.
func Prove(eng Engine, exec *vm.Execution) ([]byte, error) {
	bt, err := trace.Build(exec)
	if err != nil {
		return nil, err
	}
	log.Debug("Trace table built", "steps", bt.NumSteps, "rows", bt.Table.NumRows(), "columns", bt.Table.NumColumns())
	pub := PublicInputsFor(exec, bt)
	a := air.New(bt.Layout, pub)
	proof, err := eng.Prove(bt, a)
	if err != nil {
		return nil, err
	}
	out := proof.Encode()
	log.Debug("Proof envelope encoded", "bytes", len(out))
	return out, nil
}

// ProveGenerated executes the program from its entry state and proves the
// resulting trace.
func ProveGenerated(eng Engine, prog *vm.Program, init vm.RegisterState, maxSteps uint64) ([]byte, error) {
	r, err := vm.NewRunner(prog, maxSteps)
	if err != nil {
		return nil, err
	}
	exec, err := r.Generate(init)
	if err != nil {
		return nil, err
	}
	return Prove(eng, exec)
}

// ProveReplayed re-executes an externally supplied register trace and memory
// log against the program and proves the validated execution. Divergence
// between the supplied trace and the recomputation aborts before any
// proving work.
func ProveReplayed(eng Engine, prog *vm.Program, states []vm.RegisterState, memLog []vm.MemoryCell, maxSteps uint64) ([]byte, error) {
	r, err := vm.NewRunner(prog, maxSteps)
	if err != nil {
		return nil, err
	}
	exec, err := r.Replay(states, memLog)
	if err != nil {
		return nil, err
	}
	return Prove(eng, exec)
}

// Verify decodes a proof envelope and checks it with the engine. The
// expected program hash binds the proof to the program the caller trusts;
// all other inputs come from the envelope itself.
func Verify(eng Engine, proofBytes []byte, programHash [32]byte) error {
	p, err := DecodeProof(proofBytes)
	if err != nil {
		return err
	}
	if p.Public.ProgramHash != programHash {
		return fault.New(fault.CodeRejected,
			"proof is for program %x, expected %x", p.Public.ProgramHash[:8], programHash[:8])
	}
	// The constraint system binds the table's memory to the quoted words;
	// this check binds the words to the hash.
	if vm.WordsHash(p.Public.Program) != p.Public.ProgramHash {
		return fault.New(fault.CodeRejected, "public program words do not match the proof's program hash")
	}
	return eng.Verify(p)
}
