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

func setMeta(s *State, t *Table, name string, fn *Closure) {
	mt := t.Metatable()
	if mt == nil {
		mt = s.NewTable(0, 1)
		t.SetMetatable(mt)
	}
	mt.Set(MakeString(s.strings.Intern([]byte(name))), MakeClosure(fn))
}

func TestIndexRawHitSkipsMetamethod(t *testing.T) {
	s := NewState()
	tbl := s.NewTable(0, 1)
	key := MakeString(s.strings.Intern([]byte("k")))
	tbl.Set(key, MakeNumber(1))
	setMeta(s, tbl, "__index", s.NewHostClosure(func(co *Coroutine, nargs int) (int, error) {
		t.Error("__index must not run on a raw hit")
		return 0, nil
	}))

	got, err := s.indexValue(MakeTable(tbl), key)
	if err != nil {
		t.Fatalf("indexValue: %v", err)
	}
	if AsNumber(got) != 1 {
		t.Errorf("got = %v, want 1", Inspect(got))
	}
}

func TestIndexMissFallsBackToFunctionMetamethod(t *testing.T) {
	s := NewState()
	tbl := s.NewTable(0, 0)
	key := MakeString(s.strings.Intern([]byte("missing")))
	setMeta(s, tbl, "__index", s.NewHostClosure(func(co *Coroutine, nargs int) (int, error) {
		co.Push(MakeNumber(77))
		return 1, nil
	}))

	got, err := s.indexValue(MakeTable(tbl), key)
	if err != nil {
		t.Fatalf("indexValue: %v", err)
	}
	if AsNumber(got) != 77 {
		t.Errorf("got = %v, want 77", Inspect(got))
	}
}

func TestIndexMissFallsBackToTableMetamethodChain(t *testing.T) {
	s := NewState()
	base := s.NewTable(0, 1)
	key := MakeString(s.strings.Intern([]byte("k")))
	base.Set(key, MakeNumber(5))

	derived := s.NewTable(0, 0)
	mt := s.NewTable(0, 1)
	mt.Set(MakeString(s.strings.Intern([]byte("__index"))), MakeTable(base))
	derived.SetMetatable(mt)

	got, err := s.indexValue(MakeTable(derived), key)
	if err != nil {
		t.Fatalf("indexValue: %v", err)
	}
	if AsNumber(got) != 5 {
		t.Errorf("got = %v, want 5 (inherited via __index table chain)", Inspect(got))
	}
}

func TestIndexNonTableWithoutMetamethodErrors(t *testing.T) {
	s := NewState()
	_, err := s.indexValue(MakeNumber(1), MakeNumber(1))
	if err != ErrNotIndexable {
		t.Errorf("err = %v, want ErrNotIndexable", err)
	}
}

func TestNewindexRawSlotBypassesMetamethod(t *testing.T) {
	s := NewState()
	tbl := s.NewTable(0, 1)
	key := MakeString(s.strings.Intern([]byte("k")))
	tbl.Set(key, MakeNumber(1))
	setMeta(s, tbl, "__newindex", s.NewHostClosure(func(co *Coroutine, nargs int) (int, error) {
		t.Error("__newindex must not run when the key already has a raw slot")
		return 0, nil
	}))

	if err := s.newindexValue(MakeTable(tbl), key, MakeNumber(2)); err != nil {
		t.Fatalf("newindexValue: %v", err)
	}
	if AsNumber(tbl.Get(key)) != 2 {
		t.Errorf("tbl[k] = %v, want 2", Inspect(tbl.Get(key)))
	}
}

func TestNewindexMissInvokesFunctionMetamethod(t *testing.T) {
	s := NewState()
	tbl := s.NewTable(0, 0)
	key := MakeString(s.strings.Intern([]byte("new")))
	var seenKey, seenVal TValue
	setMeta(s, tbl, "__newindex", s.NewHostClosure(func(co *Coroutine, nargs int) (int, error) {
		seenKey = arg(co, 1, nargs)
		seenVal = arg(co, 2, nargs)
		return 0, nil
	}))

	if err := s.newindexValue(MakeTable(tbl), key, MakeNumber(9)); err != nil {
		t.Fatalf("newindexValue: %v", err)
	}
	if tbl.Get(key).tag != TagNil {
		t.Error("a handled __newindex must not also write the raw slot")
	}
	if !RawEqual(seenKey, key) || AsNumber(seenVal) != 9 {
		t.Errorf("handler saw (%v, %v), want (%v, 9)", Inspect(seenKey), Inspect(seenVal), Inspect(key))
	}
}

func TestArithCoercesNumericStrings(t *testing.T) {
	s := NewState()
	a := MakeString(s.strings.Intern([]byte("10")))
	b := MakeNumber(5)
	got, err := s.arith(OpAdd, a, b)
	if err != nil {
		t.Fatalf("arith: %v", err)
	}
	if AsNumber(got) != 15 {
		t.Errorf("got = %v, want 15", Inspect(got))
	}
}

func TestArithFallsBackToMetamethod(t *testing.T) {
	s := NewState()
	tbl := s.NewTable(0, 0)
	setMeta(s, tbl, "__add", s.NewHostClosure(func(co *Coroutine, nargs int) (int, error) {
		co.Push(MakeNumber(100))
		return 1, nil
	}))

	got, err := s.arith(OpAdd, MakeTable(tbl), MakeNumber(1))
	if err != nil {
		t.Fatalf("arith: %v", err)
	}
	if AsNumber(got) != 100 {
		t.Errorf("got = %v, want 100", Inspect(got))
	}
}

func TestArithWithoutMetamethodErrors(t *testing.T) {
	s := NewState()
	tbl := s.NewTable(0, 0)
	if _, err := s.arith(OpAdd, MakeTable(tbl), MakeNumber(1)); err != ErrArithmeticType {
		t.Errorf("err = %v, want ErrArithmeticType", err)
	}
}

func TestLengthStringAndTable(t *testing.T) {
	s := NewState()
	str := MakeString(s.strings.Intern([]byte("hello")))
	got, err := s.length(str)
	if err != nil || AsNumber(got) != 5 {
		t.Errorf("length(%q) = %v, %v, want 5", "hello", Inspect(got), err)
	}

	tbl := s.NewTable(4, 0)
	tbl.Set(MakeNumber(1), MakeNumber(1))
	tbl.Set(MakeNumber(2), MakeNumber(1))
	tbl.Set(MakeNumber(3), MakeNumber(1))
	got, err = s.length(MakeTable(tbl))
	if err != nil || AsNumber(got) != 3 {
		t.Errorf("length(array-part table) = %v, %v, want 3", Inspect(got), err)
	}
}

func TestLengthIgnoresLenMetamethodOnTables(t *testing.T) {
	s := NewState()
	tbl := s.NewTable(0, 0)
	setMeta(s, tbl, "__len", s.NewHostClosure(func(co *Coroutine, nargs int) (int, error) {
		co.Push(MakeNumber(42))
		return 1, nil
	}))

	got, err := s.length(MakeTable(tbl))
	if err != nil || AsNumber(got) != 0 {
		t.Errorf("length = %v, %v, want 0 (array length; a table's __len is not consulted)", Inspect(got), err)
	}
}

func TestConcatFoldsRightToLeft(t *testing.T) {
	s := NewState()
	co := s.mainThread
	co.ensureStack(3)
	co.Set(0, MakeString(s.strings.Intern([]byte("a"))))
	co.Set(1, MakeString(s.strings.Intern([]byte("b"))))
	co.Set(2, MakeString(s.strings.Intern([]byte("c"))))

	got, err := s.concat(co, 0, 0, 2)
	if err != nil {
		t.Fatalf("concat: %v", err)
	}
	if str, ok := ToString(got); !ok || str != "abc" {
		t.Errorf("got = %v, want %q", Inspect(got), "abc")
	}
}

func TestConcatCoercesNumbers(t *testing.T) {
	s := NewState()
	co := s.mainThread
	co.ensureStack(2)
	co.Set(0, MakeNumber(1))
	co.Set(1, MakeNumber(2))

	got, err := s.concat(co, 0, 0, 1)
	if err != nil {
		t.Fatalf("concat: %v", err)
	}
	if str, ok := ToString(got); !ok || str != "12" {
		t.Errorf("got = %v, want %q", Inspect(got), "12")
	}
}

func TestEqualsRequiresSharedMetamethodForTables(t *testing.T) {
	s := NewState()
	a := s.NewTable(0, 0)
	b := s.NewTable(0, 0)

	eq, err := s.equals(MakeTable(a), MakeTable(b))
	if err != nil {
		t.Fatalf("equals: %v", err)
	}
	if eq {
		t.Error("two distinct empty tables without __eq must not be equal")
	}

	eqFn := s.NewHostClosure(func(co *Coroutine, nargs int) (int, error) {
		co.Push(MakeBoolean(true))
		return 1, nil
	})
	setMeta(s, a, "__eq", eqFn)
	eq, err = s.equals(MakeTable(a), MakeTable(b))
	if err != nil {
		t.Fatalf("equals: %v", err)
	}
	if eq {
		t.Error("__eq on only one operand must not make the tables compare equal")
	}

	setMeta(s, b, "__eq", eqFn)
	eq, err = s.equals(MakeTable(a), MakeTable(b))
	if err != nil {
		t.Fatalf("equals: %v", err)
	}
	if !eq {
		t.Error("a shared __eq on both operands must make the tables compare equal")
	}
}

func TestLessNumericAndStringDirectCompare(t *testing.T) {
	s := NewState()
	lt, err := s.less(MakeNumber(1), MakeNumber(2), false)
	if err != nil || !lt {
		t.Errorf("1 < 2 = %v, %v, want true", lt, err)
	}
	le, err := s.less(MakeString(s.strings.Intern([]byte("a"))), MakeString(s.strings.Intern([]byte("a"))), true)
	if err != nil || !le {
		t.Errorf(`"a" <= "a" = %v, %v, want true`, le, err)
	}
}

func TestLessWithoutMetamethodErrors(t *testing.T) {
	s := NewState()
	a := s.NewTable(0, 0)
	b := s.NewTable(0, 0)
	if _, err := s.less(MakeTable(a), MakeTable(b), false); err != ErrCompareType {
		t.Errorf("err = %v, want ErrCompareType", err)
	}
}
