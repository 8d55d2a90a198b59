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

// TestPCallCatchesHostError covers spec.md §8 scenario S3: pcall traps an
// error() raised deep in a host closure and reports (false, errvalue)
// instead of propagating it to the caller.
func TestPCallCatchesHostError(t *testing.T) {
	s := NewState()
	boom := s.NewHostClosure(func(co *Coroutine, nargs int) (int, error) {
		errVal := MakeString(s.Strings().Intern([]byte("boom")))
		return 0, s.Error(errVal, 0)
	})

	ok, vals := s.PCall(boom, nil)
	if ok {
		t.Fatal("PCall must report ok=false when the callee errors")
	}
	if len(vals) != 1 {
		t.Fatalf("PCall error results = %v, want exactly one value", vals)
	}
	if got, ok2 := ToString(vals[0]); !ok2 || got != "boom" {
		t.Errorf("error value = %v, want %q", Inspect(vals[0]), "boom")
	}
}

// TestPCallSucceedsPassesThroughResults ensures the common non-error path
// returns (true, results) untouched.
func TestPCallSucceedsPassesThroughResults(t *testing.T) {
	s := NewState()
	identity := s.NewHostClosure(func(co *Coroutine, nargs int) (int, error) {
		co.Push(MakeNumber(9))
		return 1, nil
	})

	ok, vals := s.PCall(identity, nil)
	if !ok {
		t.Fatalf("PCall failed unexpectedly: %v", vals)
	}
	if len(vals) != 1 || AsNumber(vals[0]) != 9 {
		t.Fatalf("results = %v, want [9]", vals)
	}
}

// TestPCallUnwindsFramesPushedByCallee verifies that frames and upvalues
// opened above the pcall barrier are fully discarded on error, so the
// coroutine's call depth and value stack return to their pre-call state.
func TestPCallUnwindsFramesPushedByCallee(t *testing.T) {
	s := NewState()
	co := s.mainThread
	depthBefore := co.Depth()
	topBefore := co.Top()

	boom := s.NewHostClosure(func(co *Coroutine, nargs int) (int, error) {
		co.Push(MakeNumber(1))
		co.Push(MakeNumber(2))
		return 0, s.Error(MakeString(s.Strings().Intern([]byte("fail"))), 0)
	})

	ok, _ := s.PCall(boom, nil)
	if ok {
		t.Fatal("expected PCall to fail")
	}
	if co.Depth() != depthBefore {
		t.Errorf("Depth() after failed pcall = %d, want %d", co.Depth(), depthBefore)
	}
	if co.Top() != topBefore {
		t.Errorf("Top() after failed pcall = %d, want %d", co.Top(), topBefore)
	}
}

// TestXPCallRunsHandlerBeforeUnwinding covers xpcall's distinguishing
// behavior: the message handler observes the error value and its own
// transformation of it is what's ultimately reported.
func TestXPCallRunsHandlerBeforeUnwinding(t *testing.T) {
	s := NewState()
	boom := s.NewHostClosure(func(co *Coroutine, nargs int) (int, error) {
		return 0, s.Error(MakeString(s.Strings().Intern([]byte("oops"))), 0)
	})
	handler := s.NewHostClosure(func(co *Coroutine, nargs int) (int, error) {
		msg := arg(co, 0, nargs)
		text, _ := ToString(msg)
		co.Push(MakeString(s.Strings().Intern([]byte("handled:" + text))))
		return 1, nil
	})

	ok, vals := s.XPCall(boom, handler, nil)
	if ok {
		t.Fatal("XPCall must report ok=false when the callee errors")
	}
	if len(vals) != 1 {
		t.Fatalf("handled results = %v, want exactly one value", vals)
	}
	if got, ok2 := ToString(vals[0]); !ok2 || got != "handled:oops" {
		t.Errorf("handled error value = %v, want %q", Inspect(vals[0]), "handled:oops")
	}
}

// TestXPCallSucceedsSkipsHandler ensures the handler never runs on the
// success path.
func TestXPCallSucceedsSkipsHandler(t *testing.T) {
	s := NewState()
	ok1 := s.NewHostClosure(func(co *Coroutine, nargs int) (int, error) {
		co.Push(MakeNumber(3))
		return 1, nil
	})
	handlerCalled := false
	handler := s.NewHostClosure(func(co *Coroutine, nargs int) (int, error) {
		handlerCalled = true
		return 0, nil
	})

	ok, vals := s.XPCall(ok1, handler, nil)
	if !ok {
		t.Fatalf("XPCall failed unexpectedly: %v", vals)
	}
	if handlerCalled {
		t.Error("handler must not run when the protected call succeeds")
	}
}
