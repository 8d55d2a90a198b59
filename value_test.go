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

func TestTruthy(t *testing.T) {
	cases := []struct {
		name string
		v    TValue
		want bool
	}{
		{"nil", Nil, false},
		{"false", False, false},
		{"true", True, true},
		{"zero", MakeNumber(0), true},
		{"empty string", MakeString(&StringObject{bytes: nil}), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Truthy(tc.v); got != tc.want {
				t.Errorf("Truthy(%v) = %v, want %v", tc.name, got, tc.want)
			}
		})
	}
}

func TestRawEqualAcrossTags(t *testing.T) {
	if RawEqual(MakeNumber(1), MakeBoolean(true)) {
		t.Error("values of different tags must never be RawEqual")
	}
	if !RawEqual(MakeNumber(3.5), MakeNumber(3.5)) {
		t.Error("equal numbers must be RawEqual")
	}
	if RawEqual(MakeNumber(3), MakeNumber(4)) {
		t.Error("distinct numbers must not be RawEqual")
	}
	if !RawEqual(Nil, Nil) {
		t.Error("nil must be RawEqual to nil")
	}
}

func TestToNumberCoercion(t *testing.T) {
	cases := []struct {
		in      TValue
		want    float64
		wantOK  bool
	}{
		{MakeNumber(42), 42, true},
		{MakeString(&StringObject{bytes: []byte("42")}), 42, true},
		{MakeString(&StringObject{bytes: []byte("  3.5  ")}), 3.5, true},
		{MakeString(&StringObject{bytes: []byte("0x1A")}), 26, true},
		{MakeString(&StringObject{bytes: []byte("-10")}), -10, true},
		{MakeString(&StringObject{bytes: []byte("not a number")}), 0, false},
		{MakeBoolean(true), 0, false},
		{Nil, 0, false},
	}
	for _, tc := range cases {
		got, ok := ToNumber(tc.in)
		if ok != tc.wantOK {
			t.Errorf("ToNumber(%v) ok = %v, want %v", Inspect(tc.in), ok, tc.wantOK)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("ToNumber(%v) = %v, want %v", Inspect(tc.in), got, tc.want)
		}
	}
}

func TestFormatLuaNumber(t *testing.T) {
	cases := []struct {
		n    float64
		want string
	}{
		{3, "3"},
		{3.5, "3.5"},
		{-7, "-7"},
		{0, "0"},
	}
	for _, tc := range cases {
		if got := formatLuaNumber(tc.n); got != tc.want {
			t.Errorf("formatLuaNumber(%v) = %q, want %q", tc.n, got, tc.want)
		}
	}
}

func TestToStringNeverStringifiesContainers(t *testing.T) {
	s := NewState()
	tbl := s.NewTable(0, 0)
	if _, ok := ToString(MakeTable(tbl)); ok {
		t.Error("ToString must not succeed for a table; that's __tostring's job")
	}
}
