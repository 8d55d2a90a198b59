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
	"fmt"
	"strconv"
	"strings"
	"unsafe"

	lru "github.com/hashicorp/golang-lru"
)

// Tag identifies the variant held by a TValue. The numeric values are
// bit-exact with Lua 5.1.5's on-the-wire type tags (see the bytecode
// constant table encoding in loader.go).
type Tag uint8

const (
	TagNil Tag = iota
	TagBoolean
	TagLightUserdata
	TagNumber
	TagString
	TagTable
	TagFunction
	TagUserdata
	TagThread
)

func (t Tag) String() string {
	switch t {
	case TagNil:
		return "nil"
	case TagBoolean:
		return "boolean"
	case TagLightUserdata:
		return "userdata"
	case TagNumber:
		return "number"
	case TagString:
		return "string"
	case TagTable:
		return "table"
	case TagFunction:
		return "function"
	case TagUserdata:
		return "userdata"
	case TagThread:
		return "thread"
	default:
		return "unknown"
	}
}

// TValue is the universal operand representation of the VM: a discriminated
// union over the nine Lua types. Numbers are kept unboxed in num; every
// other non-nil variant is boxed in ref, which holds exactly one of: bool
// (boolean), unsafe.Pointer (light userdata), *StringObject, *Table,
// *Closure, *Userdata, or *Coroutine.
//
// Equality for tags 0-3 compares payloads; for tags 4-8 it compares
// identity, which for ref falls out of Go's native interface comparison
// (pointer equality) since every boxed payload above is a pointer type.
type TValue struct {
	tag Tag
	num float64
	ref any
}

// Nil is the canonical nil value.
var Nil = TValue{tag: TagNil}

// True and False are the canonical boolean values.
var True = TValue{tag: TagBoolean, ref: true}
var False = TValue{tag: TagBoolean, ref: false}

func MakeBoolean(b bool) TValue {
	if b {
		return True
	}
	return False
}

func MakeLightUserdata(ptr unsafe.Pointer) TValue {
	return TValue{tag: TagLightUserdata, ref: ptr}
}

func MakeNumber(n float64) TValue {
	return TValue{tag: TagNumber, num: n}
}

func MakeString(s *StringObject) TValue {
	return TValue{tag: TagString, ref: s}
}

func MakeTable(t *Table) TValue {
	return TValue{tag: TagTable, ref: t}
}

func MakeClosure(c *Closure) TValue {
	return TValue{tag: TagFunction, ref: c}
}

func MakeUserdata(u *Userdata) TValue {
	return TValue{tag: TagUserdata, ref: u}
}

func MakeThread(co *Coroutine) TValue {
	return TValue{tag: TagThread, ref: co}
}

// TypeOf returns the tag of v.
func TypeOf(v TValue) Tag { return v.tag }

func IsNil(v TValue) bool      { return v.tag == TagNil }
func IsBoolean(v TValue) bool  { return v.tag == TagBoolean }
func IsNumber(v TValue) bool   { return v.tag == TagNumber }
func IsString(v TValue) bool   { return v.tag == TagString }
func IsTable(v TValue) bool    { return v.tag == TagTable }
func IsFunction(v TValue) bool { return v.tag == TagFunction }
func IsUserdata(v TValue) bool { return v.tag == TagUserdata }
func IsThread(v TValue) bool   { return v.tag == TagThread }

// AsBoolean, AsNumber, ... are precondition-checked accessors: calling the
// wrong one for v's tag is a programming error in the VM, not a recoverable
// Lua-level condition, so they panic rather than return an (ok bool).
func AsBoolean(v TValue) bool               { return v.ref.(bool) }
func AsLightUserdata(v TValue) unsafe.Pointer { return v.ref.(unsafe.Pointer) }
func AsNumber(v TValue) float64             { return v.num }
func AsString(v TValue) *StringObject       { return v.ref.(*StringObject) }
func AsTable(v TValue) *Table               { return v.ref.(*Table) }
func AsClosure(v TValue) *Closure           { return v.ref.(*Closure) }
func AsUserdata(v TValue) *Userdata         { return v.ref.(*Userdata) }
func AsThread(v TValue) *Coroutine          { return v.ref.(*Coroutine) }

// Truthy reports whether v counts as true in a Lua boolean context: only nil
// and false are false, everything else (including 0 and "") is true.
func Truthy(v TValue) bool {
	if v.tag == TagNil {
		return false
	}
	if v.tag == TagBoolean {
		return v.ref.(bool)
	}
	return true
}

// RawEqual compares a and b without consulting any __eq metamethod.
// Tags 0-3 compare by payload; tags 4-8 compare by identity.
func RawEqual(a, b TValue) bool {
	if a.tag != b.tag {
		return false
	}
	switch a.tag {
	case TagNil:
		return true
	case TagBoolean:
		return a.ref.(bool) == b.ref.(bool)
	case TagLightUserdata:
		return a.ref.(unsafe.Pointer) == b.ref.(unsafe.Pointer)
	case TagNumber:
		return a.num == b.num
	default:
		return a.ref == b.ref
	}
}

// numberCoercionCache memoizes ToNumber results for interned strings, keyed
// by the *StringObject pointer (a stable identity thanks to interning).
// Bounded so that a program that builds and discards many distinct numeric
// strings in a loop does not grow the cache without limit.
var numberCoercionCache, _ = lru.New(4096)

// ToNumber attempts to coerce v to a float64, succeeding for numbers and for
// strings that lexically parse as a Lua numeral (decimal, hex 0x..., with an
// optional exponent and surrounding whitespace). It never panics or raises;
// failure is reported via the second return value.
func ToNumber(v TValue) (float64, bool) {
	switch v.tag {
	case TagNumber:
		return v.num, true
	case TagString:
		s := v.ref.(*StringObject)
		if cached, ok := numberCoercionCache.Get(s); ok {
			r := cached.(numCoercion)
			return r.value, r.ok
		}
		n, ok := parseLuaNumber(string(s.bytes))
		numberCoercionCache.Add(s, numCoercion{value: n, ok: ok})
		return n, ok
	default:
		return 0, false
	}
}

type numCoercion struct {
	value float64
	ok    bool
}

// parseLuaNumber implements Lua 5.1.5's lexical numeral grammar used only
// for arithmetic coercion (never for comparisons): optional surrounding
// whitespace, an optional sign, decimal or 0x/0X-prefixed hexadecimal, and
// for decimals an optional fractional part and exponent.
func parseLuaNumber(s string) (float64, bool) {
	t := strings.TrimSpace(s)
	if t == "" {
		return 0, false
	}
	neg := false
	rest := t
	if rest[0] == '+' || rest[0] == '-' {
		neg = rest[0] == '-'
		rest = rest[1:]
	}
	if len(rest) > 2 && rest[0] == '0' && (rest[1] == 'x' || rest[1] == 'X') {
		n, err := strconv.ParseUint(rest[2:], 16, 64)
		if err != nil {
			// Hex floats are rare; fall back to ParseFloat for exponent forms.
			f, ferr := strconv.ParseFloat(rest, 64)
			if ferr != nil {
				return 0, false
			}
			if neg {
				f = -f
			}
			return f, true
		}
		f := float64(n)
		if neg {
			f = -f
		}
		return f, true
	}
	f, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return 0, false
	}
	if neg {
		f = -f
	}
	return f, true
}

// ToString coerces v to its textual form, succeeding only for numbers and
// strings. Tables, functions, userdata, and threads are never implicitly
// stringified by this function; that is the job of a __tostring metamethod
// dispatched by the VM, not of the value layer.
func ToString(v TValue) (string, bool) {
	switch v.tag {
	case TagString:
		return string(v.ref.(*StringObject).bytes), true
	case TagNumber:
		return formatLuaNumber(v.num), true
	default:
		return "", false
	}
}

// formatLuaNumber renders a float64 the way Lua 5.1.5's "%.14g" default
// format does, printing integral values without a trailing ".0".
func formatLuaNumber(n float64) string {
	if n == float64(int64(n)) && !isSpecialFloat(n) {
		return strconv.FormatInt(int64(n), 10)
	}
	return strconv.FormatFloat(n, 'g', 14, 64)
}

func isSpecialFloat(n float64) bool {
	return n != n || n > 1e18 || n < -1e18
}

// Inspect renders a TValue for diagnostics (error messages, test failure
// output) using go-spew so container cycles in tables never hang the
// process. It is never used for ordinary tostring() semantics.
func Inspect(v TValue) string {
	switch v.tag {
	case TagNil:
		return "nil"
	case TagBoolean:
		return fmt.Sprintf("%v", v.ref)
	case TagNumber:
		return formatLuaNumber(v.num)
	case TagString:
		return strconv.Quote(string(v.ref.(*StringObject).bytes))
	default:
		return spewInspect(v.ref)
	}
}
