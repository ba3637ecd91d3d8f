// Package cairoproof provides the public API for proving and verifying VM
// execution traces.
//
// The pipeline takes a program artifact plus a binary register trace and
// memory log, re-executes the program to validate and complete the trace,
// builds the algebraic proving table and hands it to a proving engine. The
// shipped LocalEngine is a reference backend: its proofs carry the full
// table and verification re-evaluates every constraint.
//
// Proving from externally produced trace files:
//
//	prog, err := cairoproof.ParseProgram(programJSON)
//	if err != nil {
//		log.Fatal(err)
//	}
//	states, err := cairoproof.LoadRegisterTrace(traceBytes)
//	if err != nil {
//		log.Fatal(err)
//	}
//	memLog, err := cairoproof.LoadMemoryLog(memoryBytes)
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	prover, err := cairoproof.NewProver(cairoproof.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	proof, err := prover.Prove(prog, states, memLog)
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Verifying needs only the proof bytes and the trusted program:
//
//	verifier, err := cairoproof.NewVerifier(cairoproof.DefaultConfig())
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := verifier.Verify(proof, prog); err != nil {
//		log.Fatal(err)
//	}
//
// Architecture:
//
//   - pkg/cairoproof/: Public API (this package)
//   - internal/cairoproof/: Private implementation (not importable)
package cairoproof
