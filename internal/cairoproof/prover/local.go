package prover

import (
	"bytes"

	"golang.org/x/crypto/blake2b"

	"github.com/obsidianzk/cairoproof/internal/cairoproof/air"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/fault"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/felt"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/trace"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/vm"
)

// LocalEngine is the reference proving backend. It commits to the table
// columns, derives the permutation challenges by Fiat-Shamir, fills the
// running-product columns and ships the extended table inside the proof;
// verification re-derives the challenges, recomputes every commitment and
// running product and re-evaluates the full constraint system. Proofs are
// therefore as large as the trace and hide nothing, but acceptance is
// exactly the constraint predicate.
type LocalEngine struct{}

// NewLocalEngine returns the reference backend.
func NewLocalEngine() *LocalEngine {
	return &LocalEngine{}
}

// commitColumns hashes the listed columns in order.
func commitColumns(t *trace.Table, cols []int) [32]byte {
	h, _ := blake2b.New256(nil)
	buf := make([]byte, 0, 8)
	for _, c := range cols {
		for _, v := range t.Column(c) {
			buf = felt.AppendLE(buf[:0], v)
			h.Write(buf)
		}
	}
	var sum [32]byte
	h.Sum(sum[:0])
	return sum
}

// mainColumns lists every column committed before the challenges.
func mainColumns(l trace.Layout) []int {
	post := make(map[int]bool)
	for _, c := range l.PostChallengeColumns() {
		post[c] = true
	}
	cols := make([]int, 0, l.NumColumns)
	for c := 0; c < l.NumColumns; c++ {
		if !post[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

// drawChallenges runs the shared transcript schedule.
func drawChallenges(pub *air.PublicInputs, mainCommit [32]byte) air.Challenges {
	tr := NewTranscript(pub.Encode())
	tr.Send("main_commitment", mainCommit[:])
	return air.Challenges{
		MemZ:     tr.ReceiveFieldElement("memory_z"),
		MemAlpha: tr.ReceiveFieldElement("memory_alpha"),
		RcZ:      tr.ReceiveFieldElement("range_check_z"),
	}
}

// Prove implements Engine.
func (e *LocalEngine) Prove(bt *trace.BuiltTrace, a *air.Air) (*Proof, error) {
	l := bt.Layout
	mainCommit := commitColumns(bt.Table, mainColumns(l))
	ch := drawChallenges(&a.Public, mainCommit)

	trace.FillMemoryPermutation(bt.Table, l, ch.MemZ, ch.MemAlpha)
	trace.FillRcPermutation(bt.Table, l, ch.RcZ)
	auxCommit := commitColumns(bt.Table, l.PostChallengeColumns())

	// A table built from a consistent execution always satisfies the
	// constraints; a failure here means the inputs were inconsistent in a
	// way the builder could not see.
	if err := a.CheckTable(bt.Table, ch); err != nil {
		return nil, fault.Wrap(fault.CodeConsistency, err, "witness fails its own constraints")
	}

	return &Proof{
		Public:         a.Public,
		MainCommitment: mainCommit,
		AuxCommitment:  auxCommit,
		Table:          bt.Table,
	}, nil
}

// Verify implements Engine.
func (e *LocalEngine) Verify(p *Proof) error {
	layout, err := layoutFromPublic(&p.Public)
	if err != nil {
		return err
	}
	t := p.Table
	if t == nil {
		return fault.New(fault.CodeMalformedProof, "proof carries no table")
	}
	rows := t.NumRows()
	if t.NumColumns() != layout.NumColumns {
		return fault.New(fault.CodeMalformedProof,
			"table has %d columns, layout needs %d", t.NumColumns(), layout.NumColumns)
	}
	if uint64(rows) != p.Public.NumRows || rows == 0 || rows&(rows-1) != 0 {
		return fault.New(fault.CodeMalformedProof, "table row count %d does not match public inputs", rows)
	}
	if p.Public.NumSteps == 0 || p.Public.NumSteps > uint64(rows) {
		return fault.New(fault.CodeMalformedProof, "step count %d out of range", p.Public.NumSteps)
	}

	mainCommit := commitColumns(t, mainColumns(layout))
	if !bytes.Equal(mainCommit[:], p.MainCommitment[:]) {
		return fault.New(fault.CodeMalformedProof, "main column commitment mismatch")
	}
	ch := drawChallenges(&p.Public, mainCommit)

	// The permutation columns must be exactly what the challenges dictate.
	check := trace.NewTable(t.NumColumns())
	check.Resize(rows)
	for c := 0; c < t.NumColumns(); c++ {
		copy(check.Column(c), t.Column(c))
	}
	trace.FillMemoryPermutation(check, layout, ch.MemZ, ch.MemAlpha)
	trace.FillRcPermutation(check, layout, ch.RcZ)
	for _, c := range layout.PostChallengeColumns() {
		for r := 0; r < rows; r++ {
			if !felt.Equal(check.Get(r, c), t.Get(r, c)) {
				return fault.New(fault.CodeRejected,
					"permutation column %d diverges at row %d", c, r)
			}
		}
	}
	auxCommit := commitColumns(t, layout.PostChallengeColumns())
	if !bytes.Equal(auxCommit[:], p.AuxCommitment[:]) {
		return fault.New(fault.CodeMalformedProof, "aux column commitment mismatch")
	}

	a := air.New(layout, p.Public)
	return a.CheckTable(t, ch)
}

// layoutFromPublic rebuilds the table layout from the builtin descriptors
// quoted in the public inputs.
func layoutFromPublic(pub *air.PublicInputs) (trace.Layout, error) {
	runners := make([]vm.BuiltinRunner, 0, len(pub.Builtins))
	for _, d := range pub.Builtins {
		r, err := vm.NewBuiltinRunner(d)
		if err != nil {
			return trace.Layout{}, fault.Wrap(fault.CodeMalformedProof, err, "builtin configuration")
		}
		runners = append(runners, r)
	}
	return trace.NewLayout(runners), nil
}
