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

// TestCoroutineResumeYieldRoundTrip covers spec.md §8 scenario S2: a
// coroutine yields a value, the resumer sees it with ok=true, resuming
// again with a new argument hands it back from Yield, and the coroutine's
// eventual return is reported as its final (ok, values).
func TestCoroutineResumeYieldRoundTrip(t *testing.T) {
	s := NewState()
	body := s.NewHostClosure(func(co *Coroutine, nargs int) (int, error) {
		first := arg(co, 0, nargs)
		resumed := co.Yield(first)
		co.Push(resumed[0])
		return 1, nil
	})
	co := s.NewCoroutine(body)

	if got := co.GetStatus(); got != StatusSuspended {
		t.Fatalf("new coroutine status = %v, want suspended", got)
	}

	ok, vals := co.Resume(MakeNumber(1))
	if !ok {
		t.Fatalf("first resume failed: %v", vals)
	}
	if len(vals) != 1 || AsNumber(vals[0]) != 1 {
		t.Fatalf("first resume yielded %v, want [1]", vals)
	}
	if got := co.GetStatus(); got != StatusSuspended {
		t.Errorf("status after yield = %v, want suspended", got)
	}

	ok, vals = co.Resume(MakeNumber(2))
	if !ok {
		t.Fatalf("second resume failed: %v", vals)
	}
	if len(vals) != 1 || AsNumber(vals[0]) != 2 {
		t.Fatalf("second resume returned %v, want [2]", vals)
	}
	if got := co.GetStatus(); got != StatusDead {
		t.Errorf("status after return = %v, want dead", got)
	}
}

func TestCoroutineCannotResumeDead(t *testing.T) {
	s := NewState()
	body := s.NewHostClosure(func(co *Coroutine, nargs int) (int, error) { return 0, nil })
	co := s.NewCoroutine(body)

	ok, _ := co.Resume()
	if !ok {
		t.Fatal("first resume of a trivial body must succeed")
	}
	if co.GetStatus() != StatusDead {
		t.Fatalf("status = %v, want dead", co.GetStatus())
	}

	ok, vals := co.Resume()
	if ok {
		t.Fatal("resuming a dead coroutine must fail")
	}
	if s, ok2 := ToString(vals[0]); !ok2 || s == "" {
		t.Error("resuming a dead coroutine must report a non-empty error value")
	}
}

func TestMainThreadYieldRejected(t *testing.T) {
	s := NewState()
	if s.mainThread.GetStatus() != StatusRunning {
		t.Fatalf("main thread status = %v, want running", s.mainThread.GetStatus())
	}

	s.OpenBase()
	lib := AsTable(s.GetGlobal("coroutine"))
	yield := lib.Get(MakeString(s.Strings().Intern([]byte("yield"))))
	if _, err := s.Call(AsClosure(yield), nil, -1); err != ErrYieldAcrossHostCall {
		t.Errorf("coroutine.yield on the main thread: err = %v, want ErrYieldAcrossHostCall", err)
	}
}
