// Copyright 2024 The ProbeLua Authors
// This file is part of the ProbeLua interpreter.
//
// ProbeLua is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// ProbeLua is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with ProbeLua. If not, see <http://www.gnu.org/licenses/>.

package lua

// Opcode is the 6-bit instruction code occupying the low bits of every
// 32-bit Proto.Code word (spec.md §4.7). Unlike a fixed 4-byte-field
// encoding, Lua packs A (8 bits), B/C (9 bits each, or combined into an
// 18-bit Bx/sBx) into the remaining 26 bits — see decodeInstruction.
type Opcode uint8

const (
	OpMove Opcode = iota
	OpLoadK
	OpLoadBool
	OpLoadNil
	OpGetUpval
	OpGetGlobal
	OpGetTable
	OpSetGlobal
	OpSetUpval
	OpSetTable
	OpNewTable
	OpSelf
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpPow
	OpUnm
	OpNot
	OpLen
	OpConcat
	OpJmp
	OpEq
	OpLt
	OpLe
	OpTest
	OpTestSet
	OpCall
	OpTailCall
	OpReturn
	OpForLoop
	OpForPrep
	OpTForLoop
	OpSetList
	OpClose
	OpClosure
	OpVararg

	opcodeCount
)

var opcodeNames = [opcodeCount]string{
	OpMove: "MOVE", OpLoadK: "LOADK", OpLoadBool: "LOADBOOL", OpLoadNil: "LOADNIL",
	OpGetUpval: "GETUPVAL", OpGetGlobal: "GETGLOBAL", OpGetTable: "GETTABLE",
	OpSetGlobal: "SETGLOBAL", OpSetUpval: "SETUPVAL", OpSetTable: "SETTABLE",
	OpNewTable: "NEWTABLE", OpSelf: "SELF",
	OpAdd: "ADD", OpSub: "SUB", OpMul: "MUL", OpDiv: "DIV", OpMod: "MOD", OpPow: "POW", OpUnm: "UNM",
	OpNot: "NOT", OpLen: "LEN", OpConcat: "CONCAT",
	OpJmp: "JMP", OpEq: "EQ", OpLt: "LT", OpLe: "LE", OpTest: "TEST", OpTestSet: "TESTSET",
	OpCall: "CALL", OpTailCall: "TAILCALL", OpReturn: "RETURN",
	OpForLoop: "FORLOOP", OpForPrep: "FORPREP", OpTForLoop: "TFORLOOP", OpSetList: "SETLIST",
	OpClose: "CLOSE", OpClosure: "CLOSURE", OpVararg: "VARARG",
}

func (op Opcode) String() string {
	if int(op) >= len(opcodeNames) {
		return "UNKNOWN"
	}
	return opcodeNames[op]
}

// Instruction field widths, matching Lua 5.1.5's wire format exactly
// (loader.go's bytecode reader depends on this layout bit-for-bit).
const (
	sizeOp = 6
	sizeA  = 8
	sizeC  = 9
	sizeB  = 9
	sizeBx = sizeC + sizeB

	posOp = 0
	posA  = posOp + sizeOp
	posC  = posA + sizeA
	posB  = posC + sizeC
	posBx = posC

	maxArgBx  = 1<<sizeBx - 1
	maxArgSBx = maxArgBx >> 1

	// rkMask is the high bit of a 9-bit B/C operand: set, the remaining 8
	// bits index the constant table; clear, they index a register (RK
	// encoding, spec.md §4.7).
	rkMask = 1 << (sizeB - 1)
)

// instr decodes the five fixed fields out of a raw 32-bit instruction
// word. Bx and SBx are computed views over the same B/C bits, used only by
// opcodes documented to take a wide operand (LOADK, JMP, CALL targets via
// FORPREP/FORLOOP, CLOSURE).
type instr struct {
	op uint32
}

func decodeInstruction(word uint32) instr { return instr{op: word} }

func (i instr) Opcode() Opcode { return Opcode((i.op >> posOp) & (1<<sizeOp - 1)) }
func (i instr) A() int         { return int((i.op >> posA) & (1<<sizeA - 1)) }
func (i instr) B() int         { return int((i.op >> posB) & (1<<sizeB - 1)) }
func (i instr) C() int         { return int((i.op >> posC) & (1<<sizeC - 1)) }
func (i instr) Bx() int        { return int((i.op >> posBx) & maxArgBx) }
func (i instr) SBx() int       { return i.Bx() - maxArgSBx }

func encodeABC(op Opcode, a, b, c int) uint32 {
	return uint32(op)<<posOp | uint32(a)<<posA | uint32(b)<<posB | uint32(c)<<posC
}

func encodeABx(op Opcode, a, bx int) uint32 {
	return uint32(op)<<posOp | uint32(a)<<posA | uint32(bx)<<posBx
}

func encodeASBx(op Opcode, a, sbx int) uint32 {
	return encodeABx(op, a, sbx+maxArgSBx)
}

// Instruction is the exported view of a decoded instruction word, for
// tooling outside this package (cmd/probelua's disassembler) that has no
// business touching the VM's internal instr type.
type Instruction struct{ i instr }

// DecodeInstruction decodes a raw bytecode word for inspection.
func DecodeInstruction(word uint32) Instruction { return Instruction{decodeInstruction(word)} }

func (ins Instruction) Opcode() Opcode { return ins.i.Opcode() }
func (ins Instruction) A() int         { return ins.i.A() }
func (ins Instruction) B() int         { return ins.i.B() }
func (ins Instruction) C() int         { return ins.i.C() }
func (ins Instruction) Bx() int        { return ins.i.Bx() }
func (ins Instruction) SBx() int       { return ins.i.SBx() }

// isConstant reports whether a 9-bit RK operand names a constant-table
// slot rather than a register.
func isConstant(rk int) bool { return rk&rkMask != 0 }

// constantIndex extracts the constant-table index from an RK operand known
// to satisfy isConstant.
func constantIndex(rk int) int { return rk &^ rkMask }
