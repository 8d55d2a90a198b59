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

import "testing"

// TestVMArithAndReturn covers spec.md §8 scenario S1: a hand-assembled
// chunk that adds two constants and returns the result.
func TestVMArithAndReturn(t *testing.T) {
	s := NewState()
	proto := &Proto{
		Constants:    []TValue{MakeNumber(3), MakeNumber(4)},
		MaxStackSize: 3,
		Code: []uint32{
			encodeABx(OpLoadK, 0, 0),
			encodeABx(OpLoadK, 1, 1),
			encodeABC(OpAdd, 2, 0, 1),
			encodeABC(OpReturn, 2, 2, 0),
		},
	}
	closure := s.wrapTopLevel(proto)

	results, err := s.Call(closure, nil, -1)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(results) != 1 || AsNumber(results[0]) != 7 {
		t.Fatalf("results = %v, want [7]", results)
	}
}

// TestVMCallNestedClosure covers scenario S4: CLOSURE + CALL across a
// nested Proto, exercising the register calling convention end-to-end.
func TestVMCallNestedClosure(t *testing.T) {
	s := NewState()
	inner := &Proto{
		Constants:    []TValue{MakeNumber(42)},
		MaxStackSize: 1,
		Code: []uint32{
			encodeABx(OpLoadK, 0, 0),
			encodeABC(OpReturn, 0, 2, 0),
		},
	}
	outer := &Proto{
		Protos:       []*Proto{inner},
		MaxStackSize: 2,
		Code: []uint32{
			encodeABx(OpClosure, 0, 0),
			encodeABC(OpCall, 0, 1, 2),
			encodeABC(OpReturn, 0, 2, 0),
		},
	}
	closure := s.wrapTopLevel(outer)

	results, err := s.Call(closure, nil, -1)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(results) != 1 || AsNumber(results[0]) != 42 {
		t.Fatalf("results = %v, want [42]", results)
	}
}

// TestVMForLoopSum covers FORPREP/FORLOOP's numeric for semantics: sum
// 1..5 into an accumulator register.
func TestVMForLoopSum(t *testing.T) {
	s := NewState()
	// Registers: 0=init(1) 1=limit(5) 2=step(1) 3=loop var, 4=accumulator.
	proto := &Proto{
		Constants:    []TValue{MakeNumber(1), MakeNumber(5), MakeNumber(1), MakeNumber(0)},
		MaxStackSize: 5,
		Code: []uint32{
			encodeABx(OpLoadK, 0, 0), // R0 = 1 (init)
			encodeABx(OpLoadK, 1, 1), // R1 = 5 (limit)
			encodeABx(OpLoadK, 2, 2), // R2 = 1 (step)
			encodeABx(OpLoadK, 4, 3), // R4 = 0 (accumulator)
			encodeASBx(OpForPrep, 0, 1),
			encodeABC(OpAdd, 4, 4, 3), // R4 += R3 (loop var)
			encodeASBx(OpForLoop, 0, -2),
			encodeABC(OpReturn, 4, 2, 0),
		},
	}
	closure := s.wrapTopLevel(proto)

	results, err := s.Call(closure, nil, -1)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(results) != 1 || AsNumber(results[0]) != 15 {
		t.Fatalf("results = %v, want [15] (1+2+3+4+5)", results)
	}
}

// TestVMTableGetSetRoundTrip covers NEWTABLE/SETTABLE/GETTABLE.
func TestVMTableGetSetRoundTrip(t *testing.T) {
	s := NewState()
	proto := &Proto{
		Constants:    []TValue{MakeNumber(1), MakeNumber(99)},
		MaxStackSize: 3,
		Code: []uint32{
			encodeABC(OpNewTable, 0, 0, 0),
			encodeABC(OpSetTable, 0, rkConst(0), rkConst(1)), // t[1] = 99
			encodeABC(OpGetTable, 1, 0, rkConst(0)),          // R1 = t[1]
			encodeABC(OpReturn, 1, 2, 0),
		},
	}
	closure := s.wrapTopLevel(proto)

	results, err := s.Call(closure, nil, -1)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(results) != 1 || AsNumber(results[0]) != 99 {
		t.Fatalf("results = %v, want [99]", results)
	}
}

// rkConst converts a constant-pool index into its RK-encoded operand form.
func rkConst(idx int) int { return idx | rkMask }

// TestVMInvalidOpcodeReported covers the ErrInvalidOpcode path for a
// corrupt/truncated instruction stream.
func TestVMInvalidOpcodeReported(t *testing.T) {
	s := NewState()
	proto := &Proto{
		MaxStackSize: 1,
		Code:         []uint32{uint32(opcodeCount) /* bits 0-5 only, an out-of-range opcode */},
	}
	closure := s.wrapTopLevel(proto)

	_, err := s.Call(closure, nil, -1)
	if err == nil {
		t.Fatal("expected an error for an out-of-range opcode")
	}
}
