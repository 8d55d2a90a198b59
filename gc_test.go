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

// TestGCCollectsUnreachableTable exercises a full mark-sweep cycle: a table
// reachable only from a global is collected once the global is cleared.
func TestGCCollectsUnreachableTable(t *testing.T) {
	s := NewState()
	tbl := s.NewTable(0, 0)
	s.SetGlobal("t", MakeTable(tbl))

	s.gc.Collect()
	if tbl.gcHead().color != s.gc.currentWhite {
		t.Error("a reachable table must survive a full collection re-whitened to the current white")
	}

	s.SetGlobal("t", Nil)
	s.gc.Collect()

	found := false
	for o := s.gc.allObjects; o != nil; o = o.gcHead().next {
		if o == gcObject(tbl) {
			found = true
		}
	}
	if found {
		t.Error("an unreachable table should have been swept off the all-objects list")
	}
}

// TestGCStepMulZeroNeverShrinksBelowFloor: a stepMul of 0 means each cycle's next
// threshold collapses to the floor (initialGCThreshold), so bytesAllocated
// monotonically triggers new cycles rather than growing without bound
// (spec.md §8's stepmul=0 invariant).
func TestGCStepMulZeroNeverShrinksBelowFloor(t *testing.T) {
	s := NewState()
	s.gc.SetStepMul(0)
	s.gc.Collect()
	if s.gc.threshold < initialGCThreshold {
		t.Errorf("threshold = %d, want >= initialGCThreshold (%d)", s.gc.threshold, initialGCThreshold)
	}
}

func TestGCStopAndRestart(t *testing.T) {
	s := NewState()
	s.gc.Stop()
	if done := s.gc.Step(1000); !done {
		t.Error("Step must report done immediately while stopped")
	}
	s.gc.Restart()
	if s.gc.stopped {
		t.Error("Restart must clear stopped")
	}
}

func TestGCSetPauseReturnsPrevious(t *testing.T) {
	s := NewState()
	old := s.gc.SetPause(50)
	if old != defaultPause {
		t.Errorf("SetPause returned %d, want previous value %d", old, defaultPause)
	}
	if s.gc.pause != 50 {
		t.Errorf("pause = %d, want 50", s.gc.pause)
	}
}

// TestGCBackwardBarrierRequeuesBlackTable exercises the backward barrier: a
// black table mutated mid-propagation is demoted back to gray and queued in
// grayAgain, rather than immediately marking its new child, so that the
// next propagate pass rescans all of its (possibly many) entries at once.
func TestGCBackwardBarrierRequeuesBlackTable(t *testing.T) {
	s := NewState()
	parent := s.NewTable(0, 0)
	s.SetGlobal("parent", MakeTable(parent))

	s.gc.beginCycle()
	for len(s.gc.gray) > 0 {
		s.gc.propagateOne()
	}
	if s.gc.isWhite(parent) {
		t.Fatal("parent should have been blackened by propagation")
	}

	child := s.NewTable(0, 0)
	parent.Set(MakeString(s.Strings().Intern([]byte("k"))), MakeTable(child))

	if parent.gcHead().color != colorGray {
		t.Error("mutating a black table must demote it back to gray via the backward barrier")
	}
	found := false
	for _, o := range s.gc.grayAgain {
		if o == gcObject(parent) {
			found = true
		}
	}
	if !found {
		t.Error("a demoted black table must be queued in grayAgain for rescanning")
	}
}
