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

import (
	"errors"
	"fmt"

	"github.com/go-stack/stack"
)

// luaError wraps an arbitrary Lua error value (spec.md §4.9: "the error
// value is whatever was passed to error()") so it survives the trip
// through Go's error-return unwinding instead of being flattened to a
// string. A host error that isn't a luaError (e.g. ErrNotAFunction) is
// reported to Lua code as its Error() string.
type luaError struct {
	value     TValue
	goTrace   string // captured via go-stack at raise time, for embedder diagnostics
	wrapped   error
}

func (e *luaError) Error() string {
	if s, ok := ToString(e.value); ok {
		return s
	}
	return Inspect(e.value)
}

func (e *luaError) Unwrap() error { return e.wrapped }

// raise wraps v as the error propagated up through runLoop/callClosure,
// capturing the current Go call stack for host-side debugging (never
// shown to Lua code, which only ever sees e.value).
func raise(v TValue) error {
	return &luaError{value: v, goTrace: stack.Trace().TrimRuntime().String()}
}

// errorToValue extracts the Lua-visible error value from any Go error:
// a luaError unwraps directly; anything else (I/O, internal sentinels,
// stack overflow) becomes an interned string via its Error() text.
func errorToValue(s *State, err error) TValue {
	var le *luaError
	if errors.As(err, &le) {
		return le.value
	}
	return MakeString(s.strings.Intern([]byte(err.Error())))
}

// PCall implements pcall(f, args...): place a barrier at the current call
// depth, invoke f, and on any error discard every frame pushed above the
// barrier (closing their upvalues) before reporting (false, err) instead
// of letting the error keep propagating.
func (s *State) PCall(f *Closure, args []TValue) (bool, []TValue) {
	co := s.Current()
	depth := len(co.frames)
	top := co.top

	results, err := s.callAnyClosure(co, f, args)
	if err != nil {
		s.unwind(co, depth, top)
		return false, []TValue{errorToValue(s, err)}
	}
	return true, results
}

// XPCall implements xpcall(f, handler, args...): handler runs at the
// error site, before unwinding, so it can still observe the failing
// frame's state (spec.md §4.9).
func (s *State) XPCall(f, handler *Closure, args []TValue) (bool, []TValue) {
	co := s.Current()
	depth := len(co.frames)
	top := co.top

	results, err := s.callAnyClosure(co, f, args)
	if err == nil {
		return true, results
	}

	errVal := errorToValue(s, err)
	handled, herr := s.Call(handler, []TValue{errVal}, 1)
	s.unwind(co, depth, top)
	if herr != nil {
		return false, []TValue{errorToValue(s, herr)}
	}
	return false, handled
}

func (s *State) callAnyClosure(co *Coroutine, f *Closure, args []TValue) ([]TValue, error) {
	return s.callClosure(co, f, args, -1)
}

// unwind discards every call-info entry above depth, closing upvalues at
// each frame's base exactly as a normal RETURN would, then restores the
// value-stack top — the "any frames above it are discarded" half of
// pcall's contract.
func (s *State) unwind(co *Coroutine, depth, top int) {
	for len(co.frames) > depth {
		co.popFrame()
	}
	co.SetTop(top)
}

// Error implements the error(val, level) builtin: raise val, optionally
// prefixing it with "source:line: " when val is a string and level > 0.
func (s *State) Error(val TValue, level int) error {
	if level > 0 && val.tag == TagString {
		co := s.Current()
		if idx := len(co.frames) - level; idx >= 0 && idx < len(co.frames) {
			ci := co.frames[idx]
			prefixed := fmt.Sprintf("%s:%d: %s", ci.closure.proto.Source, ci.closure.proto.lineAt(ci.pc), string(AsString(val).Bytes()))
			val = MakeString(s.strings.Intern([]byte(prefixed)))
		}
	}
	return raise(val)
}
