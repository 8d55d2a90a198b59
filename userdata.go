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

// Userdata is a GC-managed, opaque host blob with an optional metatable
// (spec.md tag 7 — distinct from light userdata, an unmanaged raw pointer).
// The interpreter core never interprets Data; only host code (via the
// embedding API) and metamethods dispatched against Metatable give it
// meaning.
type Userdata struct {
	gcHeader
	gc   *GC
	Data any
	metatable *Table
}

func newUserdata(gc *GC, data any) *Userdata {
	u := &Userdata{gc: gc, Data: data}
	gc.register(u, 32)
	return u
}

func (u *Userdata) gcHead() *gcHeader { return &u.gcHeader }

func (u *Userdata) gcMark(g *GC) {
	if u.metatable != nil {
		g.markObject(u.metatable)
	}
}

func (u *Userdata) Metatable() *Table { return u.metatable }

// SetMetatable installs mt, forward-barriering it since u may already be
// black when a running finalizer or host callback attaches a metatable.
// When mt has a __gc entry, u is registered with the GC's has-finalizer set.
func (u *Userdata) SetMetatable(mt *Table) {
	u.metatable = mt
	if mt != nil {
		u.gc.barrierForward(u, MakeTable(mt))
		if mt.Get(MakeString(u.gc.state.metaKey("__gc"))).tag != TagNil {
			u.gc.registerFinalizer(u)
		}
	}
}
