package vm

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/obsidianzk/cairoproof/internal/cairoproof/fault"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/felt"
)

// BuiltinKind names a builtin segment variant. The set is closed; adding a
// variant means adding its per-step validation and its constraint
// contribution in the air package.
type BuiltinKind string

const (
	BuiltinRangeCheck BuiltinKind = "range_check"
	BuiltinBitwise    BuiltinKind = "bitwise"
)

// BuiltinDescriptor locates one builtin segment in memory and carries its
// numeric bound.
type BuiltinDescriptor struct {
	Kind BuiltinKind `json:"name"`
	// Base is the first address of the segment.
	Base uint64 `json:"base"`
	// Size is the number of reserved cells.
	Size uint64 `json:"size"`
	// BoundBits bounds every input cell to [0, 2^BoundBits).
	BoundBits uint `json:"bound_bits"`
}

// Contains reports whether addr falls inside the segment.
func (d *BuiltinDescriptor) Contains(addr uint64) bool {
	return addr >= d.Base && addr < d.Base+d.Size
}

// Program is the compiled artifact consumed by the re-executor and by
// public-input derivation: bytecode words plus entry metadata.
type Program struct {
	Words    []felt.Element
	EntryPc  uint64
	Builtins []BuiltinDescriptor
}

type programJSON struct {
	Prime    string              `json:"prime"`
	Data     []string            `json:"data"`
	EntryPc  uint64              `json:"entry_pc"`
	Builtins []BuiltinDescriptor `json:"builtins"`
}

// goldilocksPrime is the decimal form written into program artifacts.
const goldilocksPrime = "18446744069414584321"

// ParseProgram decodes a compiled program artifact from its JSON form.
func ParseProgram(data []byte) (*Program, error) {
	var raw programJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fault.Wrap(fault.CodeIO, err, "program artifact is not valid JSON")
	}
	if raw.Prime != goldilocksPrime {
		return nil, fault.New(fault.CodeIO, "program prime %q does not match the Goldilocks field", raw.Prime)
	}
	if len(raw.Data) == 0 {
		return nil, fault.New(fault.CodeIO, "program artifact has no bytecode")
	}
	words := make([]felt.Element, len(raw.Data))
	for i, s := range raw.Data {
		v, err := parseFeltLiteral(s)
		if err != nil {
			return nil, fault.Wrap(fault.CodeIO, err, "program word %d", i)
		}
		words[i] = v
	}
	prog := &Program{Words: words, EntryPc: raw.EntryPc, Builtins: raw.Builtins}
	if prog.EntryPc == 0 {
		prog.EntryPc = 1
	}
	if prog.EntryPc > uint64(len(words)) {
		return nil, fault.New(fault.CodeIO, "entry pc %d is outside the %d-word bytecode", prog.EntryPc, len(words))
	}
	for i := range prog.Builtins {
		b := &prog.Builtins[i]
		switch b.Kind {
		case BuiltinRangeCheck, BuiltinBitwise:
		default:
			return nil, fault.New(fault.CodeIO, "unknown builtin segment %q", b.Kind)
		}
		if b.BoundBits == 0 || b.BoundBits > 64 {
			return nil, fault.New(fault.CodeIO, "builtin %s has invalid bound of %d bits", b.Kind, b.BoundBits)
		}
	}
	return prog, nil
}

// Marshal encodes the program back into its JSON artifact form.
func (p *Program) Marshal() ([]byte, error) {
	raw := programJSON{
		Prime:    goldilocksPrime,
		Data:     make([]string, len(p.Words)),
		EntryPc:  p.EntryPc,
		Builtins: p.Builtins,
	}
	for i, w := range p.Words {
		raw.Data[i] = fmt.Sprintf("%#x", w.Uint64())
	}
	return json.MarshalIndent(raw, "", "  ")
}

// EntryState returns the canonical starting registers: execution begins at
// the entry point with ap and fp on the first address past the bytecode and
// every builtin segment.
func (p *Program) EntryState() RegisterState {
	free := uint64(len(p.Words)) + 1
	for _, b := range p.Builtins {
		if end := b.Base + b.Size; end > free {
			free = end
		}
	}
	return RegisterState{Pc: p.EntryPc, Ap: free, Fp: free}
}

// Hash returns the SHA3-256 digest of the bytecode in little-endian word
// order. The digest is part of the public-input tuple, binding a proof to
// the exact program it attests to.
func (p *Program) Hash() [32]byte {
	return WordsHash(p.Words)
}

// WordsHash digests a bytecode word list the way Program.Hash does. The
// verifier uses it to tie the program words quoted in a proof's public
// inputs back to the hash the caller trusts.
func WordsHash(words []felt.Element) [32]byte {
	h := sha3.New256()
	var buf [8]byte
	for _, w := range words {
		binary.LittleEndian.PutUint64(buf[:], w.Uint64())
		h.Write(buf[:])
	}
	var digest [32]byte
	h.Sum(digest[:0])
	return digest
}

func parseFeltLiteral(s string) (felt.Element, error) {
	s = strings.TrimSpace(s)
	base := 10
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		s, base = s[2:], 16
	}
	v, err := strconv.ParseUint(s, base, 64)
	if err != nil {
		return felt.Element{}, fmt.Errorf("parsing field element literal: %w", err)
	}
	if !felt.IsCanonical(v) {
		return felt.Element{}, fmt.Errorf("value %#x is not a canonical field element", v)
	}
	return felt.New(v), nil
}
