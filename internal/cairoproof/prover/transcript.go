package prover

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"

	"github.com/obsidianzk/cairoproof/internal/cairoproof/felt"
)

// Transcript is a Fiat-Shamir channel. Both sides feed it the same
// commitments in the same order, so the challenges it yields are a pure
// function of the proof so far.
type Transcript struct {
	state [32]byte
}

// NewTranscript seeds a channel from the public input encoding.
func NewTranscript(seed []byte) *Transcript {
	t := &Transcript{}
	t.state = sha3.Sum256(seed)
	return t
}

// Send absorbs prover data into the channel state.
func (t *Transcript) Send(label string, data []byte) {
	h := sha3.New256()
	h.Write(t.state[:])
	h.Write([]byte(label))
	h.Write(data)
	h.Sum(t.state[:0])
}

// ReceiveFieldElement draws a challenge and advances the state. A 64-bit
// sample of the state is reduced mod p.
func (t *Transcript) ReceiveFieldElement(label string) felt.Element {
	t.Send(label, nil)
	v := binary.LittleEndian.Uint64(t.state[:8])
	return felt.New(v % felt.Modulus)
}
