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
	"strings"
	"testing"
)

func TestInternReturnsCanonicalPointer(t *testing.T) {
	s := NewState()
	a := s.Strings().Intern([]byte("hello"))
	b := s.Strings().Intern([]byte("hello"))
	if a != b {
		t.Error("two Intern calls with identical content must return the same *StringObject")
	}
	c := s.Strings().Intern([]byte("world"))
	if a == c {
		t.Error("distinct content must not share a StringObject")
	}
}

func TestInternLongStrings(t *testing.T) {
	s := NewState()
	long := strings.Repeat("x", shortStringLimit+10)
	a := s.Strings().Intern([]byte(long))
	b := s.Strings().Intern([]byte(long))
	if a != b {
		t.Error("long strings above shortStringLimit must still be interned canonically")
	}
	if a.Len() != len(long) {
		t.Errorf("Len() = %d, want %d", a.Len(), len(long))
	}
}

func TestLuaHashStable(t *testing.T) {
	b := []byte("stable")
	if luaHash(b) != luaHash(append([]byte(nil), b...)) {
		t.Error("luaHash must be a pure function of content")
	}
}
