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
	"bytes"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"
)

// samplePrototype returns a small hand-built Proto exercising every kind
// of field the bytecode format carries: code, the nil, boolean and number
// constant tags, a nested Proto, and debug info.
func samplePrototype() *Proto {
	inner := &Proto{
		Source:          "=inner",
		LineDefined:     2,
		LastLineDefined: 3,
		NumParams:       0,
		MaxStackSize:    1,
		Code:            []uint32{encodeABx(OpLoadK, 0, 0), encodeABC(OpReturn, 0, 2, 0)},
		Constants:       []TValue{MakeNumber(1)},
		LineInfo:        []int32{2, 3},
	}
	return &Proto{
		Source:          "=sample",
		LineDefined:     0,
		LastLineDefined: 0,
		NumParams:       1,
		IsVararg:        true,
		MaxStackSize:    4,
		Code: []uint32{
			encodeABx(OpClosure, 0, 0),
			encodeABC(OpReturn, 0, 1, 0),
		},
		Constants: []TValue{
			Nil,
			MakeBoolean(true),
			MakeNumber(3.5),
		},
		Protos:       []*Proto{inner},
		LineInfo:     []int32{1, 1},
		LocVars:      []LocVar{{Name: "x", StartPC: 0, EndPC: 2}},
		UpvalueNames: []string{"up1"},
		Upvalues:     []UpvalDesc{{}},
	}
}

// TestProtoCacheRoundTrip covers the load(dump(proto)) = proto law for the
// on-disk cache's serialization format: encoding then decoding a Proto
// tree must reproduce every field byte-for-byte.
func TestProtoCacheRoundTrip(t *testing.T) {
	s := NewState()
	original := samplePrototype()

	encoded, err := s.encodeCachedProto(original)
	if err != nil {
		t.Fatalf("encodeCachedProto: %v", err)
	}
	decoded, err := s.decodeCachedProto(encoded)
	if err != nil {
		t.Fatalf("decodeCachedProto: %v", err)
	}

	assertProtoEqual(t, original, decoded)
}

func assertProtoEqual(t *testing.T, want, got *Proto) {
	t.Helper()
	if got.LineDefined != want.LineDefined || got.LastLineDefined != want.LastLineDefined {
		t.Errorf("line range = (%d,%d), want (%d,%d)", got.LineDefined, got.LastLineDefined, want.LineDefined, want.LastLineDefined)
	}
	if got.NumParams != want.NumParams || got.IsVararg != want.IsVararg || got.MaxStackSize != want.MaxStackSize {
		t.Errorf("params/vararg/maxstack = (%d,%v,%d), want (%d,%v,%d)",
			got.NumParams, got.IsVararg, got.MaxStackSize, want.NumParams, want.IsVararg, want.MaxStackSize)
	}
	if len(got.Code) != len(want.Code) {
		t.Fatalf("len(Code) = %d, want %d", len(got.Code), len(want.Code))
	}
	for i := range want.Code {
		if got.Code[i] != want.Code[i] {
			t.Errorf("Code[%d] = %#x, want %#x", i, got.Code[i], want.Code[i])
		}
	}
	if len(got.Constants) != len(want.Constants) {
		t.Fatalf("len(Constants) = %d, want %d", len(got.Constants), len(want.Constants))
	}
	for i := range want.Constants {
		if !RawEqual(got.Constants[i], want.Constants[i]) {
			t.Errorf("Constants[%d] = %v, want %v", i, Inspect(got.Constants[i]), Inspect(want.Constants[i]))
		}
	}
	if len(got.Protos) != len(want.Protos) {
		t.Fatalf("len(Protos) = %d, want %d", len(got.Protos), len(want.Protos))
	}
	for i := range want.Protos {
		assertProtoEqual(t, want.Protos[i], got.Protos[i])
	}
	if len(got.UpvalueNames) != len(want.UpvalueNames) {
		t.Errorf("len(UpvalueNames) = %d, want %d", len(got.UpvalueNames), len(want.UpvalueNames))
	}
}

// TestLoadRejectsBadMagic covers the header-validation path of Load.
func TestLoadRejectsBadMagic(t *testing.T) {
	s := NewState()
	bad := make([]byte, 12)
	copy(bad, []byte{0x00, 'L', 'u', 'a'})
	if _, err := s.Load(bad, "=bad"); err == nil {
		t.Fatal("expected an error for a bad magic header")
	}
}

// TestLoadRejectsTruncatedHeader covers the "data shorter than the fixed
// 12-byte header" guard.
func TestLoadRejectsTruncatedHeader(t *testing.T) {
	s := NewState()
	if _, err := s.Load([]byte{0x1B, 'L', 'u', 'a'}, "=short"); err == nil {
		t.Fatal("expected an error for a truncated header")
	}
}

// TestLoadParsesMinimalChunk hand-assembles a minimal but complete binary
// chunk (header + a Proto with no constants, no nested protos, no debug
// info) and verifies Load produces a callable closure.
func TestLoadParsesMinimalChunk(t *testing.T) {
	s := NewState()
	var buf bytes.Buffer
	buf.Write(luaBytecodeHeader[:])

	writeLuaString(&buf, "=minimal")
	binary.Write(&buf, binary.LittleEndian, int32(0)) // line_defined
	binary.Write(&buf, binary.LittleEndian, int32(0)) // last_line_defined
	buf.WriteByte(0)                                  // nups
	buf.WriteByte(0)                                  // numparams
	buf.WriteByte(0)                                  // is_vararg
	buf.WriteByte(2)                                  // maxstacksize

	code := []uint32{encodeABx(OpLoadK, 0, 0), encodeABC(OpReturn, 0, 2, 0)}
	binary.Write(&buf, binary.LittleEndian, int32(len(code)))
	for _, w := range code {
		binary.Write(&buf, binary.LittleEndian, w)
	}

	binary.Write(&buf, binary.LittleEndian, int32(1)) // sizek
	buf.WriteByte(3)                                  // number tag
	binary.Write(&buf, binary.LittleEndian, math.Float64bits(11))

	binary.Write(&buf, binary.LittleEndian, int32(0)) // sizep
	binary.Write(&buf, binary.LittleEndian, int32(0)) // sizelineinfo
	binary.Write(&buf, binary.LittleEndian, int32(0)) // sizelocvars
	binary.Write(&buf, binary.LittleEndian, int32(0)) // sizeupvalues

	closure, err := s.Load(buf.Bytes(), "=minimal")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	results, err := s.Call(closure, nil, -1)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if len(results) != 1 || AsNumber(results[0]) != 11 {
		t.Fatalf("results = %v, want [11]", results)
	}
}

// TestEnableDiskCacheRoundTrip exercises EnableDiskCache end-to-end: a
// second Load of the identical bytes hits the cache and still produces a
// runnable closure with the same observable behavior.
func TestEnableDiskCacheRoundTrip(t *testing.T) {
	s := NewState()
	if err := s.EnableDiskCache(filepath.Join(t.TempDir(), "protocache")); err != nil {
		t.Fatalf("EnableDiskCache: %v", err)
	}

	var buf bytes.Buffer
	buf.Write(luaBytecodeHeader[:])
	writeLuaString(&buf, "=cached")
	binary.Write(&buf, binary.LittleEndian, int32(0))
	binary.Write(&buf, binary.LittleEndian, int32(0))
	buf.WriteByte(0)
	buf.WriteByte(0)
	buf.WriteByte(0)
	buf.WriteByte(2)
	code := []uint32{encodeABx(OpLoadK, 0, 0), encodeABC(OpReturn, 0, 2, 0)}
	binary.Write(&buf, binary.LittleEndian, int32(len(code)))
	for _, w := range code {
		binary.Write(&buf, binary.LittleEndian, w)
	}
	binary.Write(&buf, binary.LittleEndian, int32(1))
	buf.WriteByte(3)
	binary.Write(&buf, binary.LittleEndian, math.Float64bits(5))
	binary.Write(&buf, binary.LittleEndian, int32(0))
	binary.Write(&buf, binary.LittleEndian, int32(0))
	binary.Write(&buf, binary.LittleEndian, int32(0))
	binary.Write(&buf, binary.LittleEndian, int32(0))
	data := buf.Bytes()

	first, err := s.Load(data, "=cached")
	if err != nil {
		t.Fatalf("first Load: %v", err)
	}
	second, err := s.Load(data, "=cached")
	if err != nil {
		t.Fatalf("second (cached) Load: %v", err)
	}

	for _, c := range []*Closure{first, second} {
		results, err := s.Call(c, nil, -1)
		if err != nil {
			t.Fatalf("Call: %v", err)
		}
		if len(results) != 1 || AsNumber(results[0]) != 5 {
			t.Fatalf("results = %v, want [5]", results)
		}
	}
}
