// Package prover turns built trace tables into proofs and checks them. The
// Engine interface isolates the proving backend; LocalEngine is the
// reference backend shipped with the module.
package prover

import (
	"bytes"
	"encoding/binary"

	"golang.org/x/crypto/blake2b"

	"github.com/obsidianzk/cairoproof/internal/cairoproof/air"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/fault"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/felt"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/trace"
)

// Engine produces and checks proofs over extended trace tables.
type Engine interface {
	// Prove extends the table with its post-challenge columns and emits a
	// proof. The table's permutation columns must still be zero.
	Prove(bt *trace.BuiltTrace, a *air.Air) (*Proof, error)
	// Verify checks a proof against its own public inputs.
	Verify(p *Proof) error
}

// proofMagic identifies serialized proof envelopes.
var proofMagic = [4]byte{'c', 'z', 'k', '1'}

// Proof is the reference engine's proof envelope. It carries the full
// extended table, the commitments binding the Fiat-Shamir challenges and
// the public input tuple the verifier checks against.
type Proof struct {
	Public air.PublicInputs

	// MainCommitment binds every column filled before the challenges are
	// drawn; AuxCommitment binds the permutation columns.
	MainCommitment [32]byte
	AuxCommitment  [32]byte

	Table *trace.Table
}

// Encode serializes the proof. The trailing checksum covers the whole
// envelope, so any bit flip is detectable before structural parsing.
func (p *Proof) Encode() []byte {
	var buf bytes.Buffer
	buf.Write(proofMagic[:])
	pub := p.Public.Encode()
	b8 := make([]byte, 8)
	binary.LittleEndian.PutUint64(b8, uint64(len(pub)))
	buf.Write(b8)
	buf.Write(pub)

	binary.LittleEndian.PutUint64(b8, uint64(p.Table.NumColumns()))
	buf.Write(b8)
	binary.LittleEndian.PutUint64(b8, uint64(p.Table.NumRows()))
	buf.Write(b8)
	cell := make([]byte, 0, 8)
	for c := 0; c < p.Table.NumColumns(); c++ {
		for _, v := range p.Table.Column(c) {
			cell = felt.AppendLE(cell[:0], v)
			buf.Write(cell)
		}
	}
	buf.Write(p.MainCommitment[:])
	buf.Write(p.AuxCommitment[:])

	sum := blake2b.Sum256(buf.Bytes())
	buf.Write(sum[:])
	return buf.Bytes()
}

// maxProofColumns bounds the declared column count during decoding.
const maxProofColumns = 1 << 12

// DecodeProof parses a serialized proof envelope. Every structural problem,
// including a checksum mismatch, is reported as a malformed proof.
func DecodeProof(data []byte) (*Proof, error) {
	if len(data) < len(proofMagic)+32 {
		return nil, fault.New(fault.CodeMalformedProof, "proof envelope too short")
	}
	body, sum := data[:len(data)-32], data[len(data)-32:]
	want := blake2b.Sum256(body)
	if !bytes.Equal(sum, want[:]) {
		return nil, fault.New(fault.CodeMalformedProof, "proof checksum mismatch")
	}
	if !bytes.Equal(body[:4], proofMagic[:]) {
		return nil, fault.New(fault.CodeMalformedProof, "bad proof magic")
	}
	body = body[4:]

	if len(body) < 8 {
		return nil, fault.New(fault.CodeMalformedProof, "proof truncated before public inputs")
	}
	pubLen := binary.LittleEndian.Uint64(body)
	body = body[8:]
	if uint64(len(body)) < pubLen {
		return nil, fault.New(fault.CodeMalformedProof, "proof truncated inside public inputs")
	}
	pub, rest, err := air.DecodePublicInputs(body[:pubLen])
	if err != nil {
		return nil, fault.Wrap(fault.CodeMalformedProof, err, "decoding public inputs")
	}
	if len(rest) != 0 {
		return nil, fault.New(fault.CodeMalformedProof, "trailing bytes after public inputs")
	}
	body = body[pubLen:]

	if len(body) < 16 {
		return nil, fault.New(fault.CodeMalformedProof, "proof truncated before table header")
	}
	cols := binary.LittleEndian.Uint64(body)
	rows := binary.LittleEndian.Uint64(body[8:])
	body = body[16:]
	if cols == 0 || cols > maxProofColumns {
		return nil, fault.New(fault.CodeMalformedProof, "unreasonable column count %d", cols)
	}
	if rows == 0 || rows > 1<<32 {
		return nil, fault.New(fault.CodeMalformedProof, "unreasonable row count %d", rows)
	}
	need := cols * rows * 8
	if uint64(len(body)) != need+64 {
		return nil, fault.New(fault.CodeMalformedProof, "table payload size mismatch")
	}
	t := trace.NewTable(int(cols))
	t.Resize(int(rows))
	for c := uint64(0); c < cols; c++ {
		for r := uint64(0); r < rows; r++ {
			v, err := felt.FromLE(body[:8])
			if err != nil {
				return nil, fault.Wrap(fault.CodeMalformedProof, err,
					"table cell (%d, %d)", r, c)
			}
			t.Set(int(r), int(c), v)
			body = body[8:]
		}
	}

	p := &Proof{Public: pub, Table: t}
	copy(p.MainCommitment[:], body[:32])
	copy(p.AuxCommitment[:], body[32:64])
	return p, nil
}
