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

// State is one independent VM instance (spec.md §5/§6): its own GC, string
// pool, globals table, and main coroutine. Two States never share any
// managed object; an embedder wanting multi-VM parallelism simply creates
// more than one.
type State struct {
	gc      *GC
	strings *Pool
	globals *Table
	registry *Table // host-side storage, parallel to lua_State's registry

	mainThread *Coroutine
	current    *Coroutine // the coroutine presently executing; the main thread at top level

	// metaKeys caches the interned StringObjects for the fixed set of
	// metamethod names the VM looks up every dispatch (__index, __add,
	// ...), so hot-path lookups never re-intern a Go string literal.
	metaKeys map[string]*StringObject

	logger func(string)

	cache *protoCache // optional on-disk Proto cache, see loader.go
}

// NewState implements the embedding API's new_state(): allocate VM, main
// coroutine, string pool, GC (spec.md §6).
func NewState() *State {
	s := &State{}
	s.gc = newGC(s)
	s.strings = newPool(s.gc)
	s.globals = newTable(s.gc, 0, 0)
	s.registry = newTable(s.gc, 0, 0)
	s.mainThread = newMainThread(s.gc, s)
	s.current = s.mainThread
	s.metaKeys = make(map[string]*StringObject, 16)
	for _, name := range []string{
		"__index", "__newindex", "__add", "__sub", "__mul", "__div", "__mod",
		"__pow", "__unm", "__len", "__concat", "__eq", "__lt", "__le",
		"__call", "__gc", "__mode", "__tostring",
	} {
		s.metaKeys[name] = s.strings.Intern([]byte(name))
	}
	return s
}

// metaKey returns the interned StringObject for a fixed metamethod name.
func (s *State) metaKey(name string) *StringObject {
	k, ok := s.metaKeys[name]
	if !ok {
		k = s.strings.Intern([]byte(name))
		s.metaKeys[name] = k
	}
	return k
}

// metamethod looks up name on v's metatable (tables and userdata only;
// other types never carry a per-value metatable in this core).
func (s *State) metamethod(v TValue, name string) TValue {
	var mt *Table
	switch v.tag {
	case TagTable:
		mt = AsTable(v).Metatable()
	case TagUserdata:
		mt = AsUserdata(v).Metatable()
	default:
		return Nil
	}
	if mt == nil {
		return Nil
	}
	return mt.Get(MakeString(s.metaKey(name)))
}

// GC, Strings, Globals, MainThread, Current expose the subsystems the
// embedding API and host closures need direct access to.
func (s *State) GC() *GC               { return s.gc }
func (s *State) Strings() *Pool        { return s.strings }
func (s *State) Globals() *Table       { return s.globals }
func (s *State) MainThread() *Coroutine { return s.mainThread }
func (s *State) Current() *Coroutine {
	if s.current != nil {
		return s.current
	}
	return s.mainThread
}

// NewCoroutine implements coroutine.create(f).
func (s *State) NewCoroutine(body *Closure) *Coroutine {
	return newCoroutine(s.gc, s, body)
}

// NewTable implements the embedding API's new_table(narr, nhash).
func (s *State) NewTable(narr, nhash int) *Table {
	return newTable(s.gc, narr, nhash)
}

// NewUserdata allocates a Userdata wrapping an arbitrary host value.
func (s *State) NewUserdata(data any) *Userdata {
	return newUserdata(s.gc, data)
}

// SetGlobal / GetGlobal implement the embedding API's set_global/get_global.
func (s *State) SetGlobal(name string, v TValue) {
	s.globals.Set(MakeString(s.strings.Intern([]byte(name))), v)
}

func (s *State) GetGlobal(name string) TValue {
	return s.globals.Get(MakeString(s.strings.Intern([]byte(name))))
}

// roots enumerates the GC root set per spec.md §4.2: the globals table, the
// registry, the main thread, the running coroutine when it is not the main
// thread (each coroutine marks its own stack/frames/upvalues in gcMark;
// other coroutines are reached through the values that hold them), and the
// metamethod-name strings cached in metaKeys.
func (s *State) roots() []TValue {
	roots := []TValue{MakeTable(s.globals), MakeTable(s.registry), MakeThread(s.mainThread)}
	if s.current != nil && s.current != s.mainThread {
		roots = append(roots, MakeThread(s.current))
	}
	for _, k := range s.metaKeys {
		roots = append(roots, MakeString(k))
	}
	return roots
}

// runFinalizer invokes a resurrected object's __gc metamethod, catching any
// error so a faulty finalizer cannot corrupt the running program (spec.md
// §7's GC-error kind is reported, never propagated).
func (s *State) runFinalizer(o gcObject) {
	var v TValue
	switch t := o.(type) {
	case *Table:
		v = MakeTable(t)
	case *Userdata:
		v = MakeUserdata(t)
	default:
		return
	}
	fn := s.metamethod(v, "__gc")
	if fn.tag != TagFunction {
		return
	}
	_, err := s.Call(AsClosure(fn), []TValue{v}, 0)
	if err != nil {
		s.log("gc: finalizer error: %v", err)
	}
}

// log is the state's single hook into the ambient xlog package, kept as a
// thin indirection so the GC/VM files never import internal/xlog directly
// (cmd/probelua wires a real logger in; library use without a CLI gets a
// silent default).
func (s *State) log(format string, args ...any) {
	if s.logger != nil {
		s.logger(fmt.Sprintf(format, args...))
	}
}

// SetLogger installs the function used by log(); cmd/probelua wires this
// to internal/xlog's leveled logger.
func (s *State) SetLogger(fn func(string)) { s.logger = fn }

// ---- stack-based embedding API (spec.md §6's push/pop/get/call/pcall) -----
//
// The register VM operates on a Coroutine's own value stack directly; these
// methods give a host embedder (cmd/probelua, a future C-API-style binding)
// a conventional push/pop/index surface layered on top of the current
// coroutine's stack, the way lua_push*/lua_gettop/lua_call sit on top of
// lua_State's stack in reference Lua.

// Push appends a value to the top of the current coroutine's stack.
func (s *State) Push(v TValue) { s.Current().Push(v) }

// Pop removes and returns the value at the top of the current coroutine's
// stack.
func (s *State) Pop() TValue { return s.Current().Pop() }

// Top returns the number of values currently on the stack.
func (s *State) Top() int { return s.Current().Top() }

// Get returns the value at a 1-based stack index, or the |index|'th value
// from the top when index is negative (lua_gettop/lua_tovalue convention).
func (s *State) Get(index int) TValue {
	co := s.Current()
	if index > 0 {
		return co.Get(index - 1)
	}
	return co.Get(co.top + index)
}

// CallN implements the embedding API's unprotected call(nargs, nresults): pop
// nargs arguments and the function below them off the stack, invoke it, and
// push nresults results back (nresults=-1 keeps every result, matching
// LUA_MULTRET). Unlike PCall, a Lua error here propagates to the caller as
// a Go error rather than being caught.
func (s *State) CallN(nargs, nresults int) error {
	co := s.Current()
	args := make([]TValue, nargs)
	for i := nargs - 1; i >= 0; i-- {
		args[i] = co.Pop()
	}
	fn := co.Pop()
	if fn.tag != TagFunction {
		return ErrNotAFunction
	}
	results, err := s.Call(AsClosure(fn), args, nresults)
	if err != nil {
		return err
	}
	for _, r := range results {
		co.Push(r)
	}
	return nil
}

// PCallN is call's protected counterpart (spec.md §6's pcall(nargs,
// nresults)): like CallN, but an error is reported by pushing a single
// false-plus-error-value pair rather than propagating.
func (s *State) PCallN(nargs, nresults int) bool {
	co := s.Current()
	args := make([]TValue, nargs)
	for i := nargs - 1; i >= 0; i-- {
		args[i] = co.Pop()
	}
	fn := co.Pop()
	if fn.tag != TagFunction {
		co.Push(MakeBoolean(false))
		co.Push(MakeString(s.strings.Intern([]byte("attempt to call a non-function value"))))
		return false
	}
	ok, results := s.PCall(AsClosure(fn), args)
	if ok && nresults >= 0 && len(results) > nresults {
		results = results[:nresults]
	}
	co.Push(MakeBoolean(ok))
	for _, r := range results {
		co.Push(r)
	}
	return ok
}

// GCWhat selects the operation performed by GCControl (spec.md §6's
// gc(what, data), mirroring lua_gc's opcode set).
type GCWhat int

const (
	GCStop GCWhat = iota
	GCRestart
	GCCollect
	GCCount
	GCStep
	GCSetPause
	GCSetStepMul
)

// GCControl implements the embedding API's gc(what, data) dispatcher over
// the primitives GC already exposes.
func (s *State) GCControl(what GCWhat, data int) int {
	switch what {
	case GCStop:
		s.gc.Stop()
		return 0
	case GCRestart:
		s.gc.Restart()
		return 0
	case GCCollect:
		s.gc.Collect()
		return 0
	case GCCount:
		return int(s.gc.LiveHeapEstimate() / 1024)
	case GCStep:
		if s.gc.Step(data) {
			return 1
		}
		return 0
	case GCSetPause:
		return int(s.gc.SetPause(uint64(data)))
	case GCSetStepMul:
		return int(s.gc.SetStepMul(uint64(data)))
	default:
		return 0
	}
}
