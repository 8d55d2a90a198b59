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

// UpvalDesc says where a Proto's Nth upvalue comes from when a CLOSURE
// instruction instantiates it: either a slot on the *enclosing* function's
// register window (InStack=true, Index is a register number) or an
// upvalue already captured by the enclosing closure (InStack=false, Index
// indexes the enclosing closure's own Upvalues).
type UpvalDesc struct {
	InStack bool
	Index   uint8
	Name    string // debug only
}

// LocVar is one entry of the local-variable debug table: the variable's
// name and the [StartPC, EndPC) instruction range over which register
// slots hold it.
type LocVar struct {
	Name    string
	StartPC int
	EndPC   int
}

// Proto is an immutable function prototype: bytecode, constants, nested
// prototypes, and debug info, exactly as emitted by the (out-of-scope)
// compiler/loader. Proto is deliberately NOT a gcObject (see DESIGN.md):
// it is acyclic and its lifetime is a pure function of Closures that
// reference it, so Go's own collector reclaims it once every Closure
// built from it is gone.
type Proto struct {
	Source         string
	LineDefined    int
	LastLineDefined int

	NumParams    uint8
	IsVararg     bool
	MaxStackSize uint8

	Code      []uint32
	Constants []TValue // tags 0-4 only (nil/boolean/number/string)
	Protos    []*Proto

	Upvalues []UpvalDesc

	LineInfo []int32 // one source line per Code entry
	LocVars  []LocVar
	// UpvalueNames parallels Upvalues for disassembly/debug purposes.
	UpvalueNames []string
}

// lineAt returns the source line for instruction pc, or 0 if no debug
// info was recorded.
func (p *Proto) lineAt(pc int) int {
	if pc < 0 || pc >= len(p.LineInfo) {
		return 0
	}
	return int(p.LineInfo[pc])
}

// LineAt is lineAt's exported counterpart, for tooling outside this
// package (cmd/probelua's disassembler).
func (p *Proto) LineAt(pc int) int { return p.lineAt(pc) }
