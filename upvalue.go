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

// Upvalue is the open/closed reference cell closures use to share a
// variable (spec.md §4.5/§9). Open, it is a pointer-like view into its
// owning coroutine's value stack at an absolute index (stable across stack
// reallocation because the index, not a Go pointer, is what's stored).
// Closed, it owns its own TValue independent of any stack.
//
// Upvalue is not itself a gcObject: it is kept alive transitively by the
// Closures that reference it (see Closure.gcMark), and by the owning
// Coroutine's open-upvalue list while open.
type Upvalue struct {
	open   bool
	co     *Coroutine // owner while open; cleared on close
	index  int        // absolute stack index, valid only while open
	closed TValue      // owned value, valid only once closed
	next   *Upvalue    // next entry in the coroutine's open-upvalue list
}

func (u *Upvalue) get() TValue {
	if u.open {
		return u.co.stack[u.index]
	}
	return u.closed
}

func (u *Upvalue) set(v TValue) {
	if u.open {
		u.co.stack[u.index] = v
		return
	}
	u.closed = v
}

// close severs the upvalue from the stack, copying the current stack value
// into its own cell.
func (u *Upvalue) close() {
	if !u.open {
		return
	}
	u.closed = u.co.stack[u.index]
	u.open = false
	u.co = nil
	u.next = nil
}

// openUpvalue implements §4.5's open_upvalue: it shares an existing open
// upvalue for the same slot if one exists (so two closures capturing the
// same local observe each other's writes — §8 invariant 4), otherwise
// inserts a new one into the descending-index-sorted open list.
func (co *Coroutine) openUpvalue(slot int) *Upvalue {
	var prev *Upvalue
	cur := co.openUpvals
	for cur != nil && cur.index > slot {
		prev = cur
		cur = cur.next
	}
	if cur != nil && cur.index == slot {
		return cur
	}
	uv := &Upvalue{open: true, co: co, index: slot}
	uv.next = cur
	if prev == nil {
		co.openUpvals = uv
	} else {
		prev.next = uv
	}
	return uv
}

// closeUpvalues implements §4.5's close_upvalues: every open upvalue at or
// above level is closed and unlinked. Invoked by the CLOSE opcode and
// implicitly by RETURN/pop_frame.
func (co *Coroutine) closeUpvalues(level int) {
	for co.openUpvals != nil && co.openUpvals.index >= level {
		uv := co.openUpvals
		co.openUpvals = uv.next
		uv.close()
	}
}
