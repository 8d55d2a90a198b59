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

// OpenBase installs the minimal base-library shim documented in
// SPEC_FULL.md §C: the handful of global functions that are, in real Lua
// 5.1.5, thin host-closures over operations this core already implements
// (rawequal/rawget/rawset/rawlen/tostring/tonumber/type/assert/unpack/
// select), plus pcall/xpcall/error/coroutine.* wired to the mechanisms in
// pcall.go/coroutine.go. It costs nothing beyond what's already built and
// makes the embedding API directly testable end-to-end without a parser.
func (s *State) OpenBase() {
	reg := func(name string, fn GoFunction) {
		s.SetGlobal(name, MakeClosure(s.NewHostClosure(fn)))
	}

	reg("type", func(co *Coroutine, nargs int) (int, error) {
		v := arg(co, 0, nargs)
		co.Push(MakeString(s.strings.Intern([]byte(TypeOf(v).String()))))
		return 1, nil
	})

	reg("tostring", func(co *Coroutine, nargs int) (int, error) {
		v := arg(co, 0, nargs)
		if mm := s.metamethod(v, "__tostring"); mm.tag == TagFunction {
			rs, err := s.Call(AsClosure(mm), []TValue{v}, 1)
			if err != nil {
				return 0, err
			}
			co.Push(rs[0])
			return 1, nil
		}
		if str, ok := ToString(v); ok {
			co.Push(MakeString(s.strings.Intern([]byte(str))))
			return 1, nil
		}
		co.Push(MakeString(s.strings.Intern([]byte(fmt.Sprintf("%s: %p", TypeOf(v), anyRef(v))))))
		return 1, nil
	})

	reg("tonumber", func(co *Coroutine, nargs int) (int, error) {
		v := arg(co, 0, nargs)
		if n, ok := ToNumber(v); ok {
			co.Push(MakeNumber(n))
			return 1, nil
		}
		co.Push(Nil)
		return 1, nil
	})

	reg("rawequal", func(co *Coroutine, nargs int) (int, error) {
		co.Push(MakeBoolean(RawEqual(arg(co, 0, nargs), arg(co, 1, nargs))))
		return 1, nil
	})

	reg("rawget", func(co *Coroutine, nargs int) (int, error) {
		t := arg(co, 0, nargs)
		if t.tag != TagTable {
			return 0, ErrNotIndexable
		}
		co.Push(AsTable(t).Get(arg(co, 1, nargs)))
		return 1, nil
	})

	reg("rawset", func(co *Coroutine, nargs int) (int, error) {
		t := arg(co, 0, nargs)
		if t.tag != TagTable {
			return 0, ErrNotIndexable
		}
		if err := AsTable(t).Set(arg(co, 1, nargs), arg(co, 2, nargs)); err != nil {
			return 0, err
		}
		co.Push(t)
		return 1, nil
	})

	reg("rawlen", func(co *Coroutine, nargs int) (int, error) {
		v := arg(co, 0, nargs)
		switch v.tag {
		case TagTable:
			co.Push(MakeNumber(float64(AsTable(v).Length())))
		case TagString:
			co.Push(MakeNumber(float64(AsString(v).Len())))
		default:
			return 0, ErrLenType
		}
		return 1, nil
	})

	reg("assert", func(co *Coroutine, nargs int) (int, error) {
		v := arg(co, 0, nargs)
		if Truthy(v) {
			for i := 0; i < nargs; i++ {
				co.Push(arg(co, i, nargs))
			}
			return nargs, nil
		}
		msg := arg(co, 1, nargs)
		if msg.tag == TagNil {
			msg = MakeString(s.strings.Intern([]byte("assertion failed!")))
		}
		return 0, raise(msg)
	})

	reg("error", func(co *Coroutine, nargs int) (int, error) {
		val := arg(co, 0, nargs)
		level := 1
		if nargs > 1 {
			if n, ok := ToNumber(arg(co, 1, nargs)); ok {
				level = int(n)
			}
		}
		return 0, s.Error(val, level)
	})

	reg("pcall", func(co *Coroutine, nargs int) (int, error) {
		fn := arg(co, 0, nargs)
		if fn.tag != TagFunction {
			co.Push(MakeBoolean(false))
			co.Push(MakeString(s.strings.Intern([]byte("attempt to call a non-function value"))))
			return 2, nil
		}
		args := make([]TValue, 0, nargs-1)
		for i := 1; i < nargs; i++ {
			args = append(args, arg(co, i, nargs))
		}
		ok, results := s.PCall(AsClosure(fn), args)
		co.Push(MakeBoolean(ok))
		for _, r := range results {
			co.Push(r)
		}
		return 1 + len(results), nil
	})

	reg("xpcall", func(co *Coroutine, nargs int) (int, error) {
		fn := arg(co, 0, nargs)
		handler := arg(co, 1, nargs)
		if fn.tag != TagFunction || handler.tag != TagFunction {
			co.Push(MakeBoolean(false))
			co.Push(MakeString(s.strings.Intern([]byte("attempt to call a non-function value"))))
			return 2, nil
		}
		args := make([]TValue, 0, nargs-2)
		for i := 2; i < nargs; i++ {
			args = append(args, arg(co, i, nargs))
		}
		ok, results := s.XPCall(AsClosure(fn), AsClosure(handler), args)
		co.Push(MakeBoolean(ok))
		for _, r := range results {
			co.Push(r)
		}
		return 1 + len(results), nil
	})

	reg("unpack", func(co *Coroutine, nargs int) (int, error) {
		t := arg(co, 0, nargs)
		if t.tag != TagTable {
			return 0, ErrNotIndexable
		}
		tbl := AsTable(t)
		i, j := 1, tbl.Length()
		if nargs > 1 {
			if n, ok := ToNumber(arg(co, 1, nargs)); ok {
				i = int(n)
			}
		}
		if nargs > 2 {
			if n, ok := ToNumber(arg(co, 2, nargs)); ok {
				j = int(n)
			}
		}
		n := 0
		for k := i; k <= j; k++ {
			co.Push(tbl.Get(MakeNumber(float64(k))))
			n++
		}
		return n, nil
	})

	reg("select", func(co *Coroutine, nargs int) (int, error) {
		sel := arg(co, 0, nargs)
		if sel.tag == TagString {
			if str, _ := ToString(sel); str == "#" {
				co.Push(MakeNumber(float64(nargs - 1)))
				return 1, nil
			}
		}
		n, _ := ToNumber(sel)
		idx := int(n)
		count := 0
		for i := idx; i < nargs; i++ {
			co.Push(arg(co, i, nargs))
			count++
		}
		return count, nil
	})

	s.openCoroutineLib()
}

// arg reads the i'th argument (0-based) a host closure was called with;
// GoFunction's calling convention places arguments on the coroutine's
// stack immediately below the current top (see callNative).
func arg(co *Coroutine, i, nargs int) TValue {
	if i >= nargs {
		return Nil
	}
	return co.Get(co.top - nargs + i)
}

func anyRef(v TValue) any { return v.ref }
