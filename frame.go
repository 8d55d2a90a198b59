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

import "fmt"

// maxCallDepth bounds the call-info stack, matching real Lua 5.1.5's
// LUAI_MAXCCALLS default of 200 nested (non-tail) calls (spec.md §8's
// "stack overflow at depth N (configurable)").
const maxCallDepth = 200

// ErrStackOverflow is raised by pushFrame once maxCallDepth is exceeded.
var ErrStackOverflow = fmt.Errorf("stack overflow")

// callInfo is one live call frame (spec.md §4.6): which closure is
// executing, where its registers begin in the coroutine's value stack, the
// program counter into that closure's Proto.Code, how many results the
// caller expects (-1 meaning "all of them", a multiret context), and
// whether this frame was produced by a tail call (for diagnostics only —
// tail calls are otherwise indistinguishable once pushed).
type callInfo struct {
	closure         *Closure
	pc              int
	base            int
	savedTop        int
	expectedResults int
	isTailcall      bool

	// resultDest is the absolute register in the CALLER's frame where this
	// frame's first return value lands once it returns (the CALL
	// instruction's A operand). Unused (0) for the outermost frame of a
	// callClosure/Resume entry, which collects results directly.
	resultDest int

	// varargs holds the extra arguments a vararg function received beyond
	// its declared parameters, consumed by the VARARG opcode.
	varargs []TValue
}

// ensureStack grows the coroutine's value stack so that slot index n is
// addressable, zero-filling (Nil) any newly created slots.
func (co *Coroutine) ensureStack(n int) {
	if n < len(co.stack) {
		return
	}
	grown := make([]TValue, n+1, (n+1)*2)
	copy(grown, co.stack)
	for i := len(co.stack); i <= n; i++ {
		grown[i] = Nil
	}
	co.stack = grown
}

// Top returns the current logical stack height (one past the highest
// occupied absolute index) of the coroutine's value stack.
func (co *Coroutine) Top() int {
	return co.top
}

// SetTop adjusts the logical top, nil-filling newly exposed slots, exactly
// like the embedding API's settop/pop semantics (§6).
func (co *Coroutine) SetTop(n int) {
	co.ensureStack(n)
	for i := co.top; i < n; i++ {
		co.stack[i] = Nil
	}
	co.top = n
}

// Get/Set are absolute-index register accessors used by the VM dispatch
// loop (registers are always addressed as frame.base + R).
func (co *Coroutine) Get(abs int) TValue {
	if abs < 0 || abs >= len(co.stack) {
		return Nil
	}
	return co.stack[abs]
}

func (co *Coroutine) Set(abs int, v TValue) {
	co.ensureStack(abs)
	co.stack[abs] = v
	if abs >= co.top {
		co.top = abs + 1
	}
}

// Push appends v at the current top and advances it, the stack-based
// convenience the embedding API and host closures use.
func (co *Coroutine) Push(v TValue) {
	co.ensureStack(co.top)
	co.stack[co.top] = v
	co.top++
}

// Pop removes and returns the top value.
func (co *Coroutine) Pop() TValue {
	co.top--
	v := co.stack[co.top]
	co.stack[co.top] = Nil
	return v
}

// currentFrame returns the active call frame, or nil if the coroutine has
// no live calls (e.g. not yet started, or just returned to the top level).
func (co *Coroutine) currentFrame() *callInfo {
	if len(co.frames) == 0 {
		return nil
	}
	return &co.frames[len(co.frames)-1]
}

// pushFrame implements §4.6's push_frame. A tail call (isTailcall) reuses
// the current top frame's slot instead of growing the call-info stack,
// which is what gives tail-recursive Lua loops O(1) call-stack depth (§8
// invariant 5); a regular call pushes a fresh entry and is subject to
// maxCallDepth.
func (co *Coroutine) pushFrame(closure *Closure, base, expectedResults, resultDest int, isTailcall bool) error {
	ci := callInfo{
		closure:         closure,
		base:            base,
		savedTop:        co.top,
		expectedResults: expectedResults,
		isTailcall:      isTailcall,
		resultDest:      resultDest,
	}
	if isTailcall && len(co.frames) > 0 {
		old := co.frames[len(co.frames)-1]
		co.closeUpvalues(old.base)
		ci.expectedResults = old.expectedResults
		ci.resultDest = old.resultDest
		co.frames[len(co.frames)-1] = ci
		return nil
	}
	if len(co.frames) >= maxCallDepth {
		return ErrStackOverflow
	}
	co.frames = append(co.frames, ci)
	return nil
}

// popFrame implements §4.6's pop_frame: close every upvalue pointing at or
// above the frame's base, then drop the call-info entry. It does not move
// results; the VM's RETURN handler does that before calling popFrame.
func (co *Coroutine) popFrame() {
	ci := co.frames[len(co.frames)-1]
	co.closeUpvalues(ci.base)
	co.frames = co.frames[:len(co.frames)-1]
}

// Depth reports the number of live call frames, used by debug-info helpers
// and by pcall to record the unwind barrier's depth.
func (co *Coroutine) Depth() int { return len(co.frames) }
