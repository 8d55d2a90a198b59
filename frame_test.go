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

func TestStackPushPopGrowsOnDemand(t *testing.T) {
	s := NewState()
	co := s.mainThread

	for i := 0; i < 10; i++ {
		co.Push(MakeNumber(float64(i)))
	}
	if co.Top() != 10 {
		t.Fatalf("Top() = %d, want 10", co.Top())
	}
	for i := 9; i >= 0; i-- {
		v := co.Pop()
		if AsNumber(v) != float64(i) {
			t.Errorf("Pop() = %v, want %d", AsNumber(v), i)
		}
	}
	if co.Top() != 0 {
		t.Errorf("Top() after draining = %d, want 0", co.Top())
	}
}

func TestSetTopNilFillsNewSlots(t *testing.T) {
	s := NewState()
	co := s.mainThread
	co.Push(MakeNumber(1))
	co.SetTop(5)
	if co.Top() != 5 {
		t.Fatalf("Top() = %d, want 5", co.Top())
	}
	for i := 1; i < 5; i++ {
		if got := co.Get(i); got.tag != TagNil {
			t.Errorf("Get(%d) = %v, want nil after SetTop grows the stack", i, Inspect(got))
		}
	}
}

// TestPushFrameStackOverflowAtDepthN covers spec.md §8's "stack overflow at
// depth N" invariant: maxCallDepth non-tail frames succeed, the next fails.
func TestPushFrameStackOverflowAtDepthN(t *testing.T) {
	s := NewState()
	co := s.mainThread
	cl := s.NewHostClosure(func(*Coroutine, int) (int, error) { return 0, nil })

	for i := 0; i < maxCallDepth; i++ {
		if err := co.pushFrame(cl, 0, 0, 0, false); err != nil {
			t.Fatalf("pushFrame #%d: unexpected error %v", i, err)
		}
	}
	if err := co.pushFrame(cl, 0, 0, 0, false); err != ErrStackOverflow {
		t.Errorf("pushFrame at depth %d = %v, want ErrStackOverflow", maxCallDepth+1, err)
	}
}

func TestTailCallReusesFrameSlot(t *testing.T) {
	s := NewState()
	co := s.mainThread
	cl := s.NewHostClosure(func(*Coroutine, int) (int, error) { return 0, nil })

	if err := co.pushFrame(cl, 0, 0, 0, false); err != nil {
		t.Fatalf("pushFrame: %v", err)
	}
	depthBefore := co.Depth()
	if err := co.pushFrame(cl, 0, 0, 0, true); err != nil {
		t.Fatalf("tail pushFrame: %v", err)
	}
	if co.Depth() != depthBefore {
		t.Errorf("Depth() after tail call = %d, want unchanged %d", co.Depth(), depthBefore)
	}
}

func TestPopFrameClosesUpvaluesAtBase(t *testing.T) {
	s := NewState()
	co := s.mainThread
	co.ensureStack(4)
	uv := co.openUpvalue(2)

	co.pushFrame(nil, 2, 0, 0, false)
	co.Set(2, MakeNumber(5))
	co.popFrame()

	if uv.open {
		t.Error("popFrame must close upvalues at or above the frame's base")
	}
}
