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
	"math"
	"strings"
)

// indexValue implements GETTABLE's raw-miss-then-__index fallback
// (spec.md §4.7): a raw table hit returns immediately; a miss (or a
// non-table operand) follows __index, recursing through a chain of tables
// or invoking a handler function, bounded by maxIndexChain.
func (s *State) indexValue(obj, key TValue) (TValue, error) {
	for depth := 0; depth < maxIndexChain; depth++ {
		if obj.tag == TagTable {
			t := AsTable(obj)
			if v := t.Get(key); v.tag != TagNil {
				return v, nil
			}
			mm := s.metamethod(obj, "__index")
			if mm.tag == TagNil {
				return Nil, nil
			}
			if mm.tag == TagFunction {
				rs, err := s.Call(AsClosure(mm), []TValue{obj, key}, 1)
				if err != nil {
					return Nil, err
				}
				return rs[0], nil
			}
			obj = mm
			continue
		}
		mm := s.metamethod(obj, "__index")
		if mm.tag == TagNil {
			return Nil, ErrNotIndexable
		}
		if mm.tag == TagFunction {
			rs, err := s.Call(AsClosure(mm), []TValue{obj, key}, 1)
			if err != nil {
				return Nil, err
			}
			return rs[0], nil
		}
		obj = mm
	}
	return Nil, ErrMetamethodChain
}

// index is indexValue's convenience form for the common case of a table
// operand (GETGLOBAL), where env is always a table.
func (s *State) index(t *Table, key TValue) TValue {
	v, err := s.indexValue(MakeTable(t), key)
	if err != nil {
		return Nil
	}
	return v
}

// newindexValue implements SETTABLE's raw-miss-then-__newindex fallback.
func (s *State) newindexValue(obj, key, val TValue) error {
	for depth := 0; depth < maxIndexChain; depth++ {
		if obj.tag == TagTable {
			t := AsTable(obj)
			if t.Get(key).tag != TagNil || t.Metatable() == nil {
				return t.Set(key, val)
			}
			mm := s.metamethod(obj, "__newindex")
			if mm.tag == TagNil {
				return t.Set(key, val)
			}
			if mm.tag == TagFunction {
				_, err := s.Call(AsClosure(mm), []TValue{obj, key, val}, 0)
				return err
			}
			obj = mm
			continue
		}
		mm := s.metamethod(obj, "__newindex")
		if mm.tag == TagNil {
			return ErrNotIndexable
		}
		if mm.tag == TagFunction {
			_, err := s.Call(AsClosure(mm), []TValue{obj, key, val}, 0)
			return err
		}
		obj = mm
	}
	return ErrMetamethodChain
}

func (s *State) newindex(t *Table, key, val TValue) error {
	return s.newindexValue(MakeTable(t), key, val)
}

// arith implements ADD/SUB/MUL/DIV/MOD/POW: coerce both operands via
// to_number; on failure, dispatch the matching metamethod (spec.md §4.7's
// "Arithmetic coercion" / "Metamethod dispatch" rules).
func (s *State) arith(op Opcode, a, b TValue) (TValue, error) {
	an, aok := ToNumber(a)
	bn, bok := ToNumber(b)
	if aok && bok {
		switch op {
		case OpAdd:
			return MakeNumber(an + bn), nil
		case OpSub:
			return MakeNumber(an - bn), nil
		case OpMul:
			return MakeNumber(an * bn), nil
		case OpDiv:
			return MakeNumber(an / bn), nil
		case OpMod:
			return MakeNumber(an - math.Floor(an/bn)*bn), nil
		case OpPow:
			return MakeNumber(math.Pow(an, bn)), nil
		}
	}
	return s.arithMeta(arithMetaName(op), a, b)
}

func arithMetaName(op Opcode) string {
	switch op {
	case OpAdd:
		return "__add"
	case OpSub:
		return "__sub"
	case OpMul:
		return "__mul"
	case OpDiv:
		return "__div"
	case OpMod:
		return "__mod"
	case OpPow:
		return "__pow"
	default:
		return "__unm"
	}
}

func (s *State) arithMeta(name string, a, b TValue) (TValue, error) {
	mm := s.metamethod(a, name)
	if mm.tag == TagNil {
		mm = s.metamethod(b, name)
	}
	if mm.tag == TagNil {
		return Nil, ErrArithmeticType
	}
	rs, err := s.Call(AsClosure(mm), []TValue{a, b}, 1)
	if err != nil {
		return Nil, err
	}
	return rs[0], nil
}

// length implements LEN: table -> #t (array-length protocol; a table's
// __len is not consulted); string -> byte length; anything else -> __len or
// error.
func (s *State) length(v TValue) (TValue, error) {
	switch v.tag {
	case TagString:
		return MakeNumber(float64(AsString(v).Len())), nil
	case TagTable:
		return MakeNumber(float64(AsTable(v).Length())), nil
	default:
		mm := s.metamethod(v, "__len")
		if mm.tag == TagFunction {
			rs, err := s.Call(AsClosure(mm), []TValue{v}, 1)
			if err != nil {
				return Nil, err
			}
			return rs[0], nil
		}
		return Nil, ErrLenType
	}
}

// concat implements CONCAT: fold registers base+from..base+to right to
// left, coercing numbers/strings directly and falling back to __concat for
// anything else (spec.md §4.7).
func (s *State) concat(co *Coroutine, base, from, to int) (TValue, error) {
	acc := co.Get(base + to)
	for i := to - 1; i >= from; i-- {
		left := co.Get(base + i)
		ls, lok := ToString(left)
		rs, rok := ToString(acc)
		if lok && rok && left.tag != TagTable && acc.tag != TagTable {
			var b strings.Builder
			b.WriteString(ls)
			b.WriteString(rs)
			acc = MakeString(co.state.strings.Intern([]byte(b.String())))
			continue
		}
		mm := s.metamethod(left, "__concat")
		if mm.tag == TagNil {
			mm = s.metamethod(acc, "__concat")
		}
		if mm.tag == TagNil {
			return Nil, ErrConcatType
		}
		rsv, err := s.Call(AsClosure(mm), []TValue{left, acc}, 1)
		if err != nil {
			return Nil, err
		}
		acc = rsv[0]
	}
	return acc, nil
}

// equals implements EQ: raw equality for anything but two same-type
// tables/userdata, which additionally try __eq (spec.md: "EQ additionally
// requires both operands to share a metatable entry for __eq").
func (s *State) equals(a, b TValue) (bool, error) {
	if RawEqual(a, b) {
		return true, nil
	}
	if a.tag != b.tag || (a.tag != TagTable && a.tag != TagUserdata) {
		return false, nil
	}
	mm := s.metamethod(a, "__eq")
	if mm.tag == TagNil || !RawEqual(mm, s.metamethod(b, "__eq")) {
		return false, nil
	}
	rs, err := s.Call(AsClosure(mm), []TValue{a, b}, 1)
	if err != nil {
		return false, err
	}
	return Truthy(rs[0]), nil
}

// less implements LT/LE: numeric and string operands compare directly;
// anything else calls the __lt/__le metamethod of the first operand, or
// failing that of the second.
func (s *State) less(a, b TValue, orEqual bool) (bool, error) {
	if a.tag == TagNumber && b.tag == TagNumber {
		if orEqual {
			return a.num <= b.num, nil
		}
		return a.num < b.num, nil
	}
	if a.tag == TagString && b.tag == TagString {
		as, bs := string(AsString(a).Bytes()), string(AsString(b).Bytes())
		if orEqual {
			return as <= bs, nil
		}
		return as < bs, nil
	}
	name := "__lt"
	if orEqual {
		name = "__le"
	}
	mm := s.metamethod(a, name)
	if mm.tag == TagNil {
		mm = s.metamethod(b, name)
	}
	if mm.tag == TagNil {
		return false, ErrCompareType
	}
	rs, err := s.Call(AsClosure(mm), []TValue{a, b}, 1)
	if err != nil {
		return false, err
	}
	return Truthy(rs[0]), nil
}
