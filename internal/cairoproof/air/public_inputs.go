package air

import (
	"encoding/binary"

	"github.com/obsidianzk/cairoproof/internal/cairoproof/fault"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/felt"
	"github.com/obsidianzk/cairoproof/internal/cairoproof/vm"
)

// PublicInputs is everything the verifier learns about an execution: the
// program identity, the register states bracketing it, the range-check
// bounds and the table dimensions. Proof transcripts are seeded from its
// encoding, so the encoding must be deterministic. Program holds the full
// bytecode; the memory argument's terminal pin is computed from it, and
// ProgramHash must be its digest.
type PublicInputs struct {
	ProgramHash [32]byte
	Init        vm.RegisterState
	Fin         vm.RegisterState
	RcMin       uint64
	RcMax       uint64
	NumSteps    uint64
	NumRows     uint64
	Program     []felt.Element
	Builtins    []vm.BuiltinDescriptor
}

// Encode serializes the tuple as fixed-width little-endian fields.
func (p *PublicInputs) Encode() []byte {
	buf := make([]byte, 0, 32+10*8+len(p.Builtins)*40)
	buf = append(buf, p.ProgramHash[:]...)
	for _, v := range []uint64{
		p.Init.Pc, p.Init.Ap, p.Init.Fp,
		p.Fin.Pc, p.Fin.Ap, p.Fin.Fp,
		p.RcMin, p.RcMax, p.NumSteps, p.NumRows,
	} {
		buf = binary.LittleEndian.AppendUint64(buf, v)
	}
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(p.Program)))
	for _, w := range p.Program {
		buf = felt.AppendLE(buf, w)
	}
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(p.Builtins)))
	for _, b := range p.Builtins {
		kind := []byte(b.Kind)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(len(kind)))
		buf = append(buf, kind...)
		buf = binary.LittleEndian.AppendUint64(buf, b.Base)
		buf = binary.LittleEndian.AppendUint64(buf, b.Size)
		buf = binary.LittleEndian.AppendUint64(buf, uint64(b.BoundBits))
	}
	return buf
}

// DecodePublicInputs parses an encoded tuple, returning the remaining bytes.
func DecodePublicInputs(buf []byte) (PublicInputs, []byte, error) {
	var p PublicInputs
	if len(buf) < 32 {
		return p, nil, fault.New(fault.CodeDecode, "public inputs truncated before program hash")
	}
	copy(p.ProgramHash[:], buf[:32])
	buf = buf[32:]

	fields := []*uint64{
		&p.Init.Pc, &p.Init.Ap, &p.Init.Fp,
		&p.Fin.Pc, &p.Fin.Ap, &p.Fin.Fp,
		&p.RcMin, &p.RcMax, &p.NumSteps, &p.NumRows,
	}
	for _, f := range fields {
		if len(buf) < 8 {
			return p, nil, fault.New(fault.CodeDecode, "public inputs truncated in register block")
		}
		*f = binary.LittleEndian.Uint64(buf)
		buf = buf[8:]
	}

	if len(buf) < 8 {
		return p, nil, fault.New(fault.CodeDecode, "public inputs truncated before program length")
	}
	nw := binary.LittleEndian.Uint64(buf)
	buf = buf[8:]
	if nw == 0 || nw > 1<<20 {
		return p, nil, fault.New(fault.CodeDecode, "unreasonable program length %d", nw)
	}
	p.Program = make([]felt.Element, 0, nw)
	for i := uint64(0); i < nw; i++ {
		if len(buf) < 8 {
			return p, nil, fault.New(fault.CodeDecode, "public inputs truncated in program word %d", i)
		}
		w, err := felt.FromLE(buf[:8])
		if err != nil {
			return p, nil, fault.Wrap(fault.CodeDecode, err, "program word %d", i)
		}
		buf = buf[8:]
		p.Program = append(p.Program, w)
	}

	if len(buf) < 8 {
		return p, nil, fault.New(fault.CodeDecode, "public inputs truncated before builtin count")
	}
	n := binary.LittleEndian.Uint64(buf)
	buf = buf[8:]
	if n > 64 {
		return p, nil, fault.New(fault.CodeDecode, "unreasonable builtin count %d", n)
	}
	for i := uint64(0); i < n; i++ {
		if len(buf) < 8 {
			return p, nil, fault.New(fault.CodeDecode, "public inputs truncated in builtin %d", i)
		}
		kl := binary.LittleEndian.Uint64(buf)
		buf = buf[8:]
		if kl > 64 || uint64(len(buf)) < kl+24 {
			return p, nil, fault.New(fault.CodeDecode, "public inputs truncated in builtin %d", i)
		}
		var d vm.BuiltinDescriptor
		d.Kind = vm.BuiltinKind(buf[:kl])
		buf = buf[kl:]
		d.Base = binary.LittleEndian.Uint64(buf)
		d.Size = binary.LittleEndian.Uint64(buf[8:])
		d.BoundBits = uint(binary.LittleEndian.Uint64(buf[16:]))
		buf = buf[24:]
		p.Builtins = append(p.Builtins, d)
	}
	return p, buf, nil
}
