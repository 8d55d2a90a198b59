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

func TestTableArrayAppendAndGet(t *testing.T) {
	s := NewState()
	tbl := s.NewTable(0, 0)

	for i := 1; i <= 5; i++ {
		if err := tbl.Set(MakeNumber(float64(i)), MakeNumber(float64(i*10))); err != nil {
			t.Fatalf("Set(%d): %v", i, err)
		}
	}
	for i := 1; i <= 5; i++ {
		got := tbl.Get(MakeNumber(float64(i)))
		if AsNumber(got) != float64(i*10) {
			t.Errorf("Get(%d) = %v, want %v", i, AsNumber(got), i*10)
		}
	}
	if n := tbl.Length(); n != 5 {
		t.Errorf("Length() = %d, want 5", n)
	}
}

func TestTableNilAndNaNKeysRejected(t *testing.T) {
	s := NewState()
	tbl := s.NewTable(0, 0)

	if err := tbl.Set(Nil, MakeNumber(1)); err != ErrTableIndexNil {
		t.Errorf("Set(nil, ...) = %v, want ErrTableIndexNil", err)
	}
	nan := MakeNumber(nan())
	if err := tbl.Set(nan, MakeNumber(1)); err != ErrTableIndexNaN {
		t.Errorf("Set(NaN, ...) = %v, want ErrTableIndexNaN", err)
	}
	if got := tbl.Get(nan); got.tag != TagNil {
		t.Errorf("Get(NaN) = %v, want nil", Inspect(got))
	}
}

func nan() float64 {
	var zero float64
	return zero / zero
}

func TestTableHashPartAndDelete(t *testing.T) {
	s := NewState()
	tbl := s.NewTable(0, 0)
	key := MakeString(s.Strings().Intern([]byte("answer")))

	if err := tbl.Set(key, MakeNumber(42)); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := tbl.Get(key); AsNumber(got) != 42 {
		t.Errorf("Get = %v, want 42", AsNumber(got))
	}
	if err := tbl.Set(key, Nil); err != nil {
		t.Fatalf("Set(nil): %v", err)
	}
	if got := tbl.Get(key); got.tag != TagNil {
		t.Errorf("Get after delete = %v, want nil", Inspect(got))
	}
}

func TestTableLengthWithHoleUsesBorder(t *testing.T) {
	s := NewState()
	tbl := s.NewTable(0, 0)
	tbl.Set(MakeNumber(1), MakeNumber(1))
	tbl.Set(MakeNumber(2), MakeNumber(1))
	tbl.Set(MakeNumber(3), MakeNumber(1))
	tbl.Set(MakeNumber(3), Nil)

	n := tbl.Length()
	if n != 2 {
		t.Errorf("Length() after clearing tail = %d, want 2", n)
	}
}

func TestTableNextVisitsEveryEntryOnce(t *testing.T) {
	s := NewState()
	tbl := s.NewTable(0, 0)
	tbl.Set(MakeNumber(1), MakeNumber(100))
	tbl.Set(MakeNumber(2), MakeNumber(200))
	k1 := MakeString(s.Strings().Intern([]byte("x")))
	tbl.Set(k1, MakeNumber(300))

	seen := make(map[float64]bool)
	count := 0
	k, v, ok := tbl.Next(Nil)
	for ok {
		count++
		if v.tag == TagNumber {
			seen[v.num] = true
		}
		k, v, ok = tbl.Next(k)
	}
	if count != 3 {
		t.Errorf("Next() visited %d entries, want 3", count)
	}
	for _, want := range []float64{100, 200, 300} {
		if !seen[want] {
			t.Errorf("Next() never produced value %v", want)
		}
	}
}

func TestTableMetatableForwardBarrier(t *testing.T) {
	s := NewState()
	tbl := s.NewTable(0, 0)
	s.SetGlobal("t", MakeTable(tbl))

	s.gc.beginCycle()
	for len(s.gc.gray) > 0 {
		s.gc.propagateOne()
	}
	if tbl.gcHead().color != colorBlack {
		t.Fatal("tbl should have been blackened by propagation")
	}

	mt := s.NewTable(0, 0)
	tbl.SetMetatable(mt)
	if tbl.Metatable() != mt {
		t.Error("Metatable() did not return the table set by SetMetatable")
	}
	if mt.gcHead().color != colorGray {
		t.Error("attaching a white metatable to a black table must gray the metatable via the forward barrier")
	}
}
