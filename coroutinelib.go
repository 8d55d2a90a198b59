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

// openCoroutineLib installs coroutine.create/resume/yield/status/wrap/
// running/isyieldable (SPEC_FULL.md §C, enumerated from original_source/'s
// coroutine_lib.h surface — spec.md's prose only walks through resume/
// yield, but the full surface costs nothing extra once Coroutine exists).
func (s *State) openCoroutineLib() {
	lib := s.NewTable(0, 8)
	s.SetGlobal("coroutine", MakeTable(lib))
	set := func(name string, fn GoFunction) {
		_ = lib.Set(MakeString(s.strings.Intern([]byte(name))), MakeClosure(s.NewHostClosure(fn)))
	}

	set("create", func(co *Coroutine, nargs int) (int, error) {
		fn := arg(co, 0, nargs)
		if fn.tag != TagFunction {
			return 0, ErrNotAFunction
		}
		nc := s.NewCoroutine(AsClosure(fn))
		co.Push(MakeThread(nc))
		return 1, nil
	})

	set("resume", func(co *Coroutine, nargs int) (int, error) {
		target := arg(co, 0, nargs)
		if target.tag != TagThread {
			return 0, ErrNotAFunction
		}
		tc := AsThread(target)
		args := make([]TValue, 0, nargs-1)
		for i := 1; i < nargs; i++ {
			args = append(args, arg(co, i, nargs))
		}
		ok, results := tc.Resume(args...)
		co.Push(MakeBoolean(ok))
		for _, r := range results {
			co.Push(r)
		}
		return 1 + len(results), nil
	})

	set("yield", func(co *Coroutine, nargs int) (int, error) {
		if co == s.mainThread {
			return 0, ErrYieldAcrossHostCall
		}
		vals := make([]TValue, 0, nargs)
		for i := 0; i < nargs; i++ {
			vals = append(vals, arg(co, i, nargs))
		}
		results := co.Yield(vals...)
		for _, r := range results {
			co.Push(r)
		}
		return len(results), nil
	})

	set("status", func(co *Coroutine, nargs int) (int, error) {
		target := arg(co, 0, nargs)
		if target.tag != TagThread {
			return 0, ErrNotAFunction
		}
		co.Push(MakeString(s.strings.Intern([]byte(AsThread(target).GetStatus().String()))))
		return 1, nil
	})

	set("running", func(co *Coroutine, nargs int) (int, error) {
		co.Push(MakeThread(s.Current()))
		return 1, nil
	})

	set("isyieldable", func(co *Coroutine, nargs int) (int, error) {
		co.Push(MakeBoolean(co != s.mainThread))
		return 1, nil
	})

	set("wrap", func(co *Coroutine, nargs int) (int, error) {
		fn := arg(co, 0, nargs)
		if fn.tag != TagFunction {
			return 0, ErrNotAFunction
		}
		tc := s.NewCoroutine(AsClosure(fn))
		wrapper := s.NewHostClosure(func(co *Coroutine, nargs int) (int, error) {
			args := make([]TValue, 0, nargs)
			for i := 0; i < nargs; i++ {
				args = append(args, arg(co, i, nargs))
			}
			ok, results := tc.Resume(args...)
			if !ok {
				msg := "error in coroutine"
				if len(results) > 0 {
					if str, ok := ToString(results[0]); ok {
						msg = str
					}
				}
				return 0, raise(MakeString(s.strings.Intern([]byte(msg))))
			}
			for _, r := range results {
				co.Push(r)
			}
			return len(results), nil
		})
		co.Push(MakeClosure(wrapper))
		return 1, nil
	})
}
