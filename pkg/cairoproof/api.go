package cairoproof

import (
	"github.com/obsidianzk/cairoproof/internal/cairoproof/fault"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/prover"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/vm"
)

// Program is a parsed program artifact.
type Program = vm.Program

// RegisterState is one register triple of an execution trace.
type RegisterState = vm.RegisterState

// MemoryCell is one entry of a binary memory log.
type MemoryCell = vm.MemoryCell

// Config holds the tunable limits of the proving pipeline.
type Config struct {
	// MaxSteps bounds re-execution; zero selects the default ceiling.
	MaxSteps uint64
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{MaxSteps: vm.DefaultMaxSteps}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c == nil {
		return fault.New(fault.CodeUnknown, "config cannot be nil")
	}
	return nil
}

// ParseProgram parses a JSON program artifact.
func ParseProgram(data []byte) (*Program, error) {
	return vm.ParseProgram(data)
}

// LoadRegisterTrace parses a binary register trace.
func LoadRegisterTrace(data []byte) ([]RegisterState, error) {
	return vm.LoadRegisterTrace(data)
}

// LoadMemoryLog parses a binary memory log.
func LoadMemoryLog(data []byte) ([]MemoryCell, error) {
	return vm.LoadMemoryLog(data)
}

// EntryState returns the canonical starting registers for running a program
// from scratch.
func EntryState(prog *Program) RegisterState {
	return prog.EntryState()
}

// Prover drives the proving pipeline with a fixed engine and configuration.
type Prover struct {
	cfg *Config
	eng prover.Engine
}

// NewProver creates a prover backed by the reference engine.
func NewProver(cfg *Config) (*Prover, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Prover{cfg: cfg, eng: prover.NewLocalEngine()}, nil
}

// Prove validates an externally produced register trace and memory log
// against the program by full re-execution, then proves the result. Any
// divergence between the supplied trace and the re-execution fails with
// ErrConsistency before proving starts.
func (p *Prover) Prove(prog *Program, states []RegisterState, memLog []MemoryCell) ([]byte, error) {
	return prover.ProveReplayed(p.eng, prog, states, memLog, p.cfg.MaxSteps)
}

// Run executes the program from its entry state and proves the resulting
// trace, with no external trace files involved.
func (p *Prover) Run(prog *Program) ([]byte, error) {
	return prover.ProveGenerated(p.eng, prog, EntryState(prog), p.cfg.MaxSteps)
}

// Verifier checks serialized proofs.
type Verifier struct {
	eng prover.Engine
}

// NewVerifier creates a verifier backed by the reference engine.
func NewVerifier(cfg *Config) (*Verifier, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Verifier{eng: prover.NewLocalEngine()}, nil
}

// Verify checks a proof against the trusted program. A structurally broken
// envelope fails with ErrMalformedProof; a well-formed proof of an invalid
// execution fails with ErrRejected.
func (v *Verifier) Verify(proof []byte, prog *Program) error {
	return prover.Verify(v.eng, proof, prog.Hash())
}
