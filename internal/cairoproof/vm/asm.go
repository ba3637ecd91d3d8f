package vm

import "github.com/obsidianzk/cairoproof/internal/cairoproof/felt"

// Assembler builds small programs word by word. Operand cells that an
// instruction does not use are pointed at [fp-1], which the entry
// convention guarantees is initialized (it holds the last bytecode word).
type Assembler struct {
	words []felt.Element
}

// NewAssembler returns an empty program builder.
func NewAssembler() *Assembler {
	return &Assembler{}
}

func (a *Assembler) emit(inst Instruction) {
	a.words = append(a.words, felt.New(Encode(inst)))
}

func (a *Assembler) imm(v felt.Element) {
	a.words = append(a.words, v)
}

// signedImm encodes a signed displacement as a field element.
func signedImm(d int64) felt.Element {
	if d >= 0 {
		return felt.New(uint64(d))
	}
	return felt.New(felt.Modulus - uint64(-d))
}

// AssertEqImm emits [ap] = v; ap++.
func (a *Assembler) AssertEqImm(v uint64) {
	a.emit(Instruction{
		OffDst: 0, OffOp0: -1, OffOp1: 1,
		DstReg: DstAP, Op0Reg: Op0FP, Op1Src: Op1SrcImm,
		Res: ResOp1, PcUp: PcRegular, ApUp: ApAdd1, Opcode: OpcodeAssertEq,
	})
	a.imm(felt.New(v))
}

// AssertEqDstImm emits [ap+offDst] = v without advancing ap. The unused
// operand 0 reads [fp-2].
func (a *Assembler) AssertEqDstImm(offDst int32, v uint64) {
	a.emit(Instruction{
		OffDst: offDst, OffOp0: -2, OffOp1: 1,
		DstReg: DstAP, Op0Reg: Op0FP, Op1Src: Op1SrcImm,
		Res: ResOp1, PcUp: PcRegular, ApUp: ApRegular, Opcode: OpcodeAssertEq,
	})
	a.imm(felt.New(v))
}

// AssertEqAdd emits [ap] = [ap-2] + [ap-1]; ap++.
func (a *Assembler) AssertEqAdd() {
	a.emit(Instruction{
		OffDst: 0, OffOp0: -2, OffOp1: -1,
		DstReg: DstAP, Op0Reg: Op0AP, Op1Src: Op1SrcAP,
		Res: ResAdd, PcUp: PcRegular, ApUp: ApAdd1, Opcode: OpcodeAssertEq,
	})
}

// AssertEqMul emits [ap] = [ap-2] * [ap-1]; ap++.
func (a *Assembler) AssertEqMul() {
	a.emit(Instruction{
		OffDst: 0, OffOp0: -2, OffOp1: -1,
		DstReg: DstAP, Op0Reg: Op0AP, Op1Src: Op1SrcAP,
		Res: ResMul, PcUp: PcRegular, ApUp: ApAdd1, Opcode: OpcodeAssertEq,
	})
}

// JmpRel emits jmp rel delta.
func (a *Assembler) JmpRel(delta int64) {
	a.emit(Instruction{
		OffDst: -1, OffOp0: -1, OffOp1: 1,
		DstReg: DstFP, Op0Reg: Op0FP, Op1Src: Op1SrcImm,
		Res: ResOp1, PcUp: PcJumpRel, ApUp: ApRegular, Opcode: OpcodeNop,
	})
	a.imm(signedImm(delta))
}

// Jnz emits jmp rel delta if [ap+offDst] != 0.
func (a *Assembler) Jnz(offDst int32, delta int64) {
	a.emit(Instruction{
		OffDst: offDst, OffOp0: -1, OffOp1: 1,
		DstReg: DstAP, Op0Reg: Op0FP, Op1Src: Op1SrcImm,
		Res: ResUnconstrained, PcUp: PcJnz, ApUp: ApRegular, Opcode: OpcodeNop,
	})
	a.imm(signedImm(delta))
}

// CallRel emits call rel delta.
func (a *Assembler) CallRel(delta int64) {
	a.emit(Instruction{
		OffDst: 0, OffOp0: 1, OffOp1: 1,
		DstReg: DstAP, Op0Reg: Op0AP, Op1Src: Op1SrcImm,
		Res: ResOp1, PcUp: PcJumpRel, ApUp: ApAdd2, Opcode: OpcodeCall,
	})
	a.imm(signedImm(delta))
}

// Ret emits the return instruction: fp = [fp-2], pc = [fp-1].
func (a *Assembler) Ret() {
	a.emit(Instruction{
		OffDst: -2, OffOp0: -1, OffOp1: -1,
		DstReg: DstFP, Op0Reg: Op0FP, Op1Src: Op1SrcFP,
		Res: ResOp1, PcUp: PcJumpAbs, ApUp: ApRegular, Opcode: OpcodeRet,
	})
}

// Halt emits the halting self-loop, jmp rel 0.
func (a *Assembler) Halt() {
	a.JmpRel(0)
}

// Program wraps the assembled words into a program artifact.
func (a *Assembler) Program(builtins ...BuiltinDescriptor) *Program {
	words := make([]felt.Element, len(a.words))
	copy(words, a.words)
	return &Program{Words: words, EntryPc: 1, Builtins: builtins}
}
