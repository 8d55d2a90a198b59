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

// GoFunction is a host-native closure body: it receives the calling
// coroutine (for stack/arg access) and the number of arguments pushed just
// below the function itself, and returns the number of results it pushed.
type GoFunction func(co *Coroutine, nargs int) (nresults int, err error)

// Closure is either a Lua closure (Proto + captured Upvalues) or a
// host-native closure (a GoFunction + captured TValues acting as
// upvalues). Both may carry an environment table, defaulting to the
// owning State's globals table.
type Closure struct {
	gcHeader

	proto    *Proto     // nil for a host closure
	upvalues []*Upvalue // Lua closure only

	native  GoFunction // nil for a Lua closure
	captured []TValue  // host closure's captured values

	env *Table
	name string // debug only, e.g. for tracebacks
}

func (c *Closure) gcHead() *gcHeader { return &c.gcHeader }

func (c *Closure) gcMark(g *GC) {
	if c.env != nil {
		g.markObject(c.env)
	}
	for _, uv := range c.upvalues {
		g.markValue(uv.get())
	}
	for _, v := range c.captured {
		g.markValue(v)
	}
}

// IsLua reports whether c wraps a Proto (as opposed to a host GoFunction).
func (c *Closure) IsLua() bool { return c.proto != nil }

// Proto returns the underlying prototype, or nil for a host closure.
func (c *Closure) Proto() *Proto { return c.proto }

// newLuaClosure allocates a closure over proto, resolving each upvalue
// descriptor against either the currently-executing frame (InStack: share
// or open a new Upvalue for that stack slot) or the enclosing closure's
// own upvalue vector (§4.4).
func newLuaClosure(gc *GC, proto *Proto, enclosing *Closure, frameBase int, co *Coroutine, env *Table) *Closure {
	c := &Closure{proto: proto, env: env}
	c.upvalues = make([]*Upvalue, len(proto.Upvalues))
	for i, desc := range proto.Upvalues {
		if desc.InStack {
			c.upvalues[i] = co.openUpvalue(frameBase + int(desc.Index))
		} else {
			c.upvalues[i] = enclosing.upvalues[desc.Index]
		}
	}
	gc.register(c, 40+8*uint64(len(c.upvalues)))
	return c
}

// NewHostClosure wraps fn as a callable value, capturing the given values
// as its upvalues. Used by the embedding API and by the minimal base
// library shim (state.go's OpenBase).
func (s *State) NewHostClosure(fn GoFunction, captured ...TValue) *Closure {
	c := &Closure{native: fn, captured: append([]TValue(nil), captured...), env: s.globals}
	s.gc.register(c, 32+8*uint64(len(captured)))
	return c
}
