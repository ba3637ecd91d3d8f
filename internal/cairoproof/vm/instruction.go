// Package vm implements the virtual machine core: instruction decoding,
// write-once memory, the binary trace loader, builtin segments and the
// re-executor that rebuilds a complete proving trace from a program.
package vm

import (
	"github.com/obsidianzk/cairoproof/internal/cairoproof/fault"
)

// Flag bit positions inside the high 15 bits of an instruction word.
const (
	FlagDstRegFP = iota
	FlagOp0RegFP
	FlagOp1Imm
	FlagOp1FP
	FlagOp1AP
	FlagResAdd
	FlagResMul
	FlagPcJumpAbs
	FlagPcJumpRel
	FlagPcJnz
	FlagApAdd
	FlagApAdd1
	FlagOpcodeCall
	FlagOpcodeRet
	FlagOpcodeAssertEq

	// NumFlags counts the flag bits, including the always-zero 16th slot
	// carried in the trace.
	NumFlags = 16
)

// DstReg selects the base register for the destination operand.
type DstReg uint8

const (
	DstAP DstReg = iota
	DstFP
)

// Op0Reg selects the base register for operand 0.
type Op0Reg uint8

const (
	Op0AP Op0Reg = iota
	Op0FP
)

// Op1Src selects the addressing mode for operand 1.
type Op1Src uint8

const (
	// Op1SrcOp0 dereferences op0 plus the offset (double indirection).
	Op1SrcOp0 Op1Src = iota
	// Op1SrcImm reads the immediate word at pc+1; off_op1 must be 1.
	Op1SrcImm
	Op1SrcFP
	Op1SrcAP
)

// ResLogic selects how the result value is computed.
type ResLogic uint8

const (
	// ResOp1 passes op1 through unchanged.
	ResOp1 ResLogic = iota
	ResAdd
	ResMul
	// ResUnconstrained marks res as unused; only legal for jnz.
	ResUnconstrained
)

// PcUpdate selects the program counter update rule.
type PcUpdate uint8

const (
	PcRegular PcUpdate = iota
	PcJumpAbs
	PcJumpRel
	PcJnz
)

// ApUpdate selects the allocation pointer update rule.
type ApUpdate uint8

const (
	ApRegular ApUpdate = iota
	ApAddRes
	ApAdd1
	// ApAdd2 is the implicit +2 performed by call; it has no flag of its
	// own and never appears in an encoded word.
	ApAdd2
)

// Opcode classifies the instruction's side effect.
type Opcode uint8

const (
	OpcodeNop Opcode = iota
	OpcodeCall
	OpcodeRet
	OpcodeAssertEq
)

// Instruction is the decoded form of a single instruction word. Offsets are
// stored in their signed interpretation, in [-2^15, 2^15).
type Instruction struct {
	OffDst int32
	OffOp0 int32
	OffOp1 int32

	DstReg DstReg
	Op0Reg Op0Reg
	Op1Src Op1Src
	Res    ResLogic
	PcUp   PcUpdate
	ApUp   ApUpdate
	Opcode Opcode

	// Word is the raw encoded instruction word.
	Word uint64
}

// Size returns the number of memory words the instruction occupies:
// 2 when an immediate operand follows, 1 otherwise.
func (inst *Instruction) Size() uint64 {
	if inst.Op1Src == Op1SrcImm {
		return 2
	}
	return 1
}

// FlagBit returns flag i of the encoded word as 0 or 1. Flag 15 is always 0
// for a valid instruction.
func (inst *Instruction) FlagBit(i int) uint64 {
	return (inst.Word >> (48 + uint(i))) & 1
}

func unbias(raw uint64) int32 {
	return int32(raw&0xffff) - (1 << 15)
}

// one-hot-or-zero decode of a flag group; reports -1 on a multi-hot pattern
func groupValue(bits ...uint64) int {
	value, set := 0, 0
	for i, b := range bits {
		if b != 0 {
			value = i + 1
			set++
		}
	}
	if set > 1 {
		return -1
	}
	return value
}

// Decode decodes an instruction word. Exactly one legal decoding exists per
// valid flag pattern; every other pattern is a hard decode error.
func Decode(word uint64) (Instruction, error) {
	if word>>63 != 0 {
		return Instruction{}, fault.New(fault.CodeDecode, "instruction word %#x has the reserved high bit set", word)
	}

	bit := func(i int) uint64 { return (word >> (48 + uint(i))) & 1 }

	inst := Instruction{
		OffDst: unbias(word),
		OffOp0: unbias(word >> 16),
		OffOp1: unbias(word >> 32),
		Word:   word,
	}

	inst.DstReg = DstReg(bit(FlagDstRegFP))
	inst.Op0Reg = Op0Reg(bit(FlagOp0RegFP))

	switch groupValue(bit(FlagOp1Imm), bit(FlagOp1FP), bit(FlagOp1AP)) {
	case 0:
		inst.Op1Src = Op1SrcOp0
	case 1:
		inst.Op1Src = Op1SrcImm
	case 2:
		inst.Op1Src = Op1SrcFP
	case 3:
		inst.Op1Src = Op1SrcAP
	default:
		return Instruction{}, fault.New(fault.CodeDecode, "instruction word %#x has conflicting op1 source flags", word)
	}

	switch groupValue(bit(FlagResAdd), bit(FlagResMul)) {
	case 0:
		inst.Res = ResOp1
	case 1:
		inst.Res = ResAdd
	case 2:
		inst.Res = ResMul
	default:
		return Instruction{}, fault.New(fault.CodeDecode, "instruction word %#x has conflicting result flags", word)
	}

	switch groupValue(bit(FlagPcJumpAbs), bit(FlagPcJumpRel), bit(FlagPcJnz)) {
	case 0:
		inst.PcUp = PcRegular
	case 1:
		inst.PcUp = PcJumpAbs
	case 2:
		inst.PcUp = PcJumpRel
	case 3:
		inst.PcUp = PcJnz
	default:
		return Instruction{}, fault.New(fault.CodeDecode, "instruction word %#x has conflicting pc update flags", word)
	}

	switch groupValue(bit(FlagApAdd), bit(FlagApAdd1)) {
	case 0:
		inst.ApUp = ApRegular
	case 1:
		inst.ApUp = ApAddRes
	case 2:
		inst.ApUp = ApAdd1
	default:
		return Instruction{}, fault.New(fault.CodeDecode, "instruction word %#x has conflicting ap update flags", word)
	}

	switch groupValue(bit(FlagOpcodeCall), bit(FlagOpcodeRet), bit(FlagOpcodeAssertEq)) {
	case 0:
		inst.Opcode = OpcodeNop
	case 1:
		inst.Opcode = OpcodeCall
	case 2:
		inst.Opcode = OpcodeRet
	case 3:
		inst.Opcode = OpcodeAssertEq
	default:
		return Instruction{}, fault.New(fault.CodeDecode, "instruction word %#x has conflicting opcode flags", word)
	}

	// jnz leaves res unconstrained and tolerates no other result or
	// opcode behavior on the same word.
	if inst.PcUp == PcJnz {
		if inst.Res != ResOp1 || inst.Opcode != OpcodeNop || inst.ApUp == ApAddRes {
			return Instruction{}, fault.New(fault.CodeDecode, "instruction word %#x is an invalid jnz encoding", word)
		}
		inst.Res = ResUnconstrained
	}

	if inst.Opcode == OpcodeCall {
		if inst.ApUp != ApRegular {
			return Instruction{}, fault.New(fault.CodeDecode, "instruction word %#x combines call with an ap update", word)
		}
		inst.ApUp = ApAdd2
	}

	return inst, nil
}

// Encode packs instruction fields back into a word. It is the inverse of
// Decode for every legal instruction and is used by the assembler helpers
// and by tests.
func Encode(inst Instruction) uint64 {
	rebias := func(off int32) uint64 {
		return uint64(uint16(off + (1 << 15)))
	}
	word := rebias(inst.OffDst) | rebias(inst.OffOp0)<<16 | rebias(inst.OffOp1)<<32

	setFlag := func(i int, on bool) {
		if on {
			word |= 1 << (48 + uint(i))
		}
	}
	setFlag(FlagDstRegFP, inst.DstReg == DstFP)
	setFlag(FlagOp0RegFP, inst.Op0Reg == Op0FP)
	setFlag(FlagOp1Imm, inst.Op1Src == Op1SrcImm)
	setFlag(FlagOp1FP, inst.Op1Src == Op1SrcFP)
	setFlag(FlagOp1AP, inst.Op1Src == Op1SrcAP)
	setFlag(FlagResAdd, inst.Res == ResAdd)
	setFlag(FlagResMul, inst.Res == ResMul)
	setFlag(FlagPcJumpAbs, inst.PcUp == PcJumpAbs)
	setFlag(FlagPcJumpRel, inst.PcUp == PcJumpRel)
	setFlag(FlagPcJnz, inst.PcUp == PcJnz)
	setFlag(FlagApAdd, inst.ApUp == ApAddRes)
	setFlag(FlagApAdd1, inst.ApUp == ApAdd1)
	setFlag(FlagOpcodeCall, inst.Opcode == OpcodeCall)
	setFlag(FlagOpcodeRet, inst.Opcode == OpcodeRet)
	setFlag(FlagOpcodeAssertEq, inst.Opcode == OpcodeAssertEq)
	return word
}
