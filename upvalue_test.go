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

// TestOpenUpvalueSharedForSameSlot covers §8 invariant 4: two closures that
// capture the same local must observe each other's writes through it.
func TestOpenUpvalueSharedForSameSlot(t *testing.T) {
	s := NewState()
	co := s.mainThread
	co.ensureStack(4)

	uv1 := co.openUpvalue(2)
	uv2 := co.openUpvalue(2)
	if uv1 != uv2 {
		t.Fatal("openUpvalue must return the same cell for the same slot")
	}

	uv1.set(MakeNumber(7))
	if got := uv2.get(); AsNumber(got) != 7 {
		t.Errorf("uv2.get() = %v, want 7 (written through uv1)", AsNumber(got))
	}
}

func TestOpenUpvalueDistinctSlots(t *testing.T) {
	s := NewState()
	co := s.mainThread
	co.ensureStack(4)

	a := co.openUpvalue(0)
	b := co.openUpvalue(1)
	if a == b {
		t.Fatal("distinct slots must yield distinct upvalues")
	}
}

func TestCloseUpvaluesSnapshotsAndDetaches(t *testing.T) {
	s := NewState()
	co := s.mainThread
	co.ensureStack(4)

	uv := co.openUpvalue(1)
	co.Set(1, MakeNumber(99))

	co.closeUpvalues(1)
	if uv.open {
		t.Fatal("closeUpvalues must close an upvalue at or above the given level")
	}
	if got := uv.get(); AsNumber(got) != 99 {
		t.Errorf("closed upvalue lost its last stack value: got %v, want 99", AsNumber(got))
	}

	// Mutating the stack slot afterward must no longer affect the closed cell.
	co.Set(1, MakeNumber(1))
	if got := uv.get(); AsNumber(got) != 99 {
		t.Errorf("closed upvalue must be independent of the stack: got %v, want 99", AsNumber(got))
	}
}

func TestCloseUpvaluesRespectsLevel(t *testing.T) {
	s := NewState()
	co := s.mainThread
	co.ensureStack(4)

	below := co.openUpvalue(0)
	above := co.openUpvalue(2)

	co.closeUpvalues(1)
	if below.open != true {
		t.Error("an upvalue below the close level must remain open")
	}
	if above.open {
		t.Error("an upvalue at or above the close level must be closed")
	}
}
