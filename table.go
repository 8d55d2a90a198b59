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
	"errors"
	"math"
)

// ErrTableIndexNil is raised when a table is indexed (set) with a nil key.
var ErrTableIndexNil = errors.New("table index is nil")

// ErrTableIndexNaN is raised when a table is indexed (set) with a NaN key.
var ErrTableIndexNaN = errors.New("table index is NaN")

// Table is the hybrid array+hash map described in spec.md §3/§4.3: a
// contiguous array part for the dense 1..n integer-key prefix, and a hash
// part for everything else. The hash part here is a plain Go map paired
// with an insertion-ordered key slice, which gives next() a stable
// iteration order without reimplementing Lua 5.1.5's Brent-style
// open-addressing main-position scheme (see DESIGN.md for that tradeoff).
type Table struct {
	gcHeader
	gc *GC

	array []TValue

	hash     map[TValue]TValue
	hashKeys []TValue // insertion order, kept in sync with hash

	metatable *Table

	weakKeys, weakValues bool
}

func newTable(gc *GC, narr, nhash int) *Table {
	t := &Table{
		gc:    gc,
		array: make([]TValue, 0, narr),
		hash:  make(map[TValue]TValue, nhash),
	}
	gc.register(t, 48)
	return t
}

func (t *Table) gcHead() *gcHeader { return &t.gcHeader }

// gcMark grays the metatable unconditionally (metatables are always a
// strong reference) and the array/hash contents, respecting the weak-key /
// weak-value mode flags: a weak component is left white here and either
// survives because something else keeps it alive, or is cleared during the
// GC's atomic phase by clearDeadWeakEntries.
func (t *Table) gcMark(g *GC) {
	if t.metatable != nil {
		g.markObject(t.metatable)
	}
	if !t.weakValues {
		for _, v := range t.array {
			g.markValue(v)
		}
	}
	for _, k := range t.hashKeys {
		v := t.hash[k]
		if !t.weakKeys {
			g.markValue(k)
		}
		if !t.weakValues {
			g.markValue(v)
		}
	}
}

// SetMode configures weak-key/weak-value semantics (driven by a
// __mode="k"/"v"/"kv" metatable field) and (un)registers the table with
// the GC's weak-table registry accordingly.
func (t *Table) SetMode(weakKeys, weakValues bool) {
	t.weakKeys, t.weakValues = weakKeys, weakValues
	if weakKeys || weakValues {
		t.gc.registerWeakTable(t)
	} else {
		t.gc.unregisterWeakTable(t)
	}
}

func (t *Table) SetMetatable(mt *Table) {
	t.metatable = mt
	if mt != nil {
		t.gc.barrierForward(t, MakeTable(mt))
		if mode, ok := ToString(mt.Get(MakeString(t.gc.state.metaKey("__mode")))); ok {
			weakKeys, weakValues := false, false
			for _, c := range mode {
				weakKeys = weakKeys || c == 'k'
				weakValues = weakValues || c == 'v'
			}
			t.SetMode(weakKeys, weakValues)
		}
	}
}

func (t *Table) Metatable() *Table { return t.metatable }

// arrayIndex reports the 0-based array slot for a number key that is a
// positive integer within the current array bounds, and whether it applies.
func arrayIndex(key TValue, arrLen int) (int, bool) {
	if key.tag != TagNumber {
		return 0, false
	}
	n := key.num
	if n != math.Trunc(n) || n < 1 || n > float64(arrLen) {
		return 0, false
	}
	return int(n) - 1, true
}

// Get resolves key per spec.md §4.3: nil/NaN keys always miss, in-range
// positive integer keys hit the array part, everything else falls to the
// hash part. Get never consults a metatable __index; that is the VM's job.
func (t *Table) Get(key TValue) TValue {
	if key.tag == TagNil {
		return Nil
	}
	if key.tag == TagNumber && key.num != key.num { // NaN
		return Nil
	}
	if idx, ok := arrayIndex(key, len(t.array)); ok {
		return t.array[idx]
	}
	if v, ok := t.hash[key]; ok {
		return v
	}
	return Nil
}

// Set stores value at key, deleting the entry when value is nil. Returns
// ErrTableIndexNil / ErrTableIndexNaN for invalid keys (raw Set never
// raises for any other reason).
func (t *Table) Set(key, value TValue) error {
	if key.tag == TagNil {
		return ErrTableIndexNil
	}
	if key.tag == TagNumber && key.num != key.num {
		return ErrTableIndexNaN
	}

	t.gc.barrierBackward(t)

	if idx, ok := arrayIndex(key, len(t.array)); ok {
		t.array[idx] = value
		if value.tag == TagNil && idx == len(t.array)-1 {
			t.shrinkArrayTail()
		}
		return nil
	}

	// Appending exactly at the array boundary grows the array part instead
	// of the hash part, matching Lua's amortized-append behavior for
	// sequence-building loops (t[#t+1] = v).
	if key.tag == TagNumber && value.tag != TagNil {
		if int(key.num) == len(t.array)+1 && key.num == math.Trunc(key.num) {
			t.array = append(t.array, value)
			t.migrateFromHash()
			return nil
		}
	}

	if value.tag == TagNil {
		if _, ok := t.hash[key]; ok {
			delete(t.hash, key)
			t.hashKeys = removeTValue(t.hashKeys, key)
		}
		return nil
	}

	if _, exists := t.hash[key]; !exists {
		t.hashKeys = append(t.hashKeys, key)
	}
	t.hash[key] = value
	t.maybeRehash()
	return nil
}

// shrinkArrayTail drops trailing nils so len(array) again reflects a tight
// border candidate; this is an optimization, not a correctness requirement
// (Length still works over an array with interior/trailing nils).
func (t *Table) shrinkArrayTail() {
	n := len(t.array)
	for n > 0 && t.array[n-1].tag == TagNil {
		n--
	}
	t.array = t.array[:n]
}

// migrateFromHash pulls any integer keys that now continue the array
// sequence out of the hash part, matching spec.md's rehash description
// ("count existing integer keys... re-insert all entries").
func (t *Table) migrateFromHash() {
	for {
		next := MakeNumber(float64(len(t.array) + 1))
		v, ok := t.hash[next]
		if !ok {
			return
		}
		delete(t.hash, next)
		t.hashKeys = removeTValue(t.hashKeys, next)
		t.array = append(t.array, v)
	}
}

// maybeRehash decides, per spec.md, "the largest power of two such that ≥
// half of the array slots ≤ that size are occupied" whenever the hash part
// has grown enough that recomputing the split is worthwhile.
func (t *Table) maybeRehash() {
	if len(t.hash) < 4 || len(t.hash)&(len(t.hash)-1) != 0 {
		return // only reconsider the split at hash-part power-of-two sizes
	}
	counts := make(map[int]int)
	total := 0
	for _, k := range t.hashKeys {
		if k.tag == TagNumber && k.num == math.Trunc(k.num) && k.num >= 1 {
			total++
			for sz := 1; sz <= 1<<20 && float64(sz) <= k.num*2; sz <<= 1 {
				if k.num <= float64(sz) {
					counts[sz]++
				}
			}
		}
	}
	best, bestSize := 0, 0
	for sz, c := range counts {
		if c*2 >= sz && sz > bestSize {
			best, bestSize = c, sz
		}
	}
	if bestSize <= len(t.array) {
		return
	}
	_ = best
	newArray := make([]TValue, bestSize)
	copy(newArray, t.array)
	for i := len(t.array); i < bestSize; i++ {
		k := MakeNumber(float64(i + 1))
		if v, ok := t.hash[k]; ok {
			newArray[i] = v
			delete(t.hash, k)
			t.hashKeys = removeTValue(t.hashKeys, k)
		}
	}
	t.array = newArray
	t.shrinkArrayTail()
}

func removeTValue(s []TValue, v TValue) []TValue {
	for i, x := range s {
		if RawEqual(x, v) {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

// Length implements the # operator: any n >= 0 such that t[n] ~= nil and
// t[n+1] == nil. When the array part ends in nil, a binary search over it
// finds a border; otherwise the search continues into the hash part by
// doubling, per spec.md §4.3.
func (t *Table) Length() int {
	n := len(t.array)
	if n > 0 && t.array[n-1].tag == TagNil {
		lo, hi := 0, n
		for hi-lo > 1 {
			mid := (lo + hi) / 2
			if t.array[mid-1].tag == TagNil {
				hi = mid
			} else {
				lo = mid
			}
		}
		return lo
	}
	if _, ok := t.hash[MakeNumber(float64(n+1))]; !ok {
		return n
	}
	i, j := n, n+1
	for {
		if _, ok := t.hash[MakeNumber(float64(j))]; !ok {
			break
		}
		i = j
		if j > 1<<30 {
			// Degenerate non-sequence table; fall back to a linear probe
			// rather than overflow.
			for k := i + 1; ; k++ {
				if _, ok := t.hash[MakeNumber(float64(k))]; !ok {
					return k - 1
				}
			}
		}
		j *= 2
	}
	for j-i > 1 {
		mid := (i + j) / 2
		if _, ok := t.hash[MakeNumber(float64(mid))]; ok {
			i = mid
		} else {
			j = mid
		}
	}
	return i
}

// Next implements generic iteration. The first call passes Nil; each call
// returns the key/value following the given key, or ok=false once
// exhausted. Iteration order is array part first (by index), then hash
// part in insertion order.
func (t *Table) Next(key TValue) (k, v TValue, ok bool) {
	if key.tag == TagNil {
		if len(t.array) > 0 {
			if idx, has := t.firstNonNilArray(0); has {
				return MakeNumber(float64(idx + 1)), t.array[idx], true
			}
		}
		return t.firstHashEntry()
	}
	if idx, inArr := arrayIndex(key, len(t.array)); inArr {
		if next, has := t.firstNonNilArray(idx + 1); has {
			return MakeNumber(float64(next + 1)), t.array[next], true
		}
		return t.firstHashEntry()
	}
	for i, hk := range t.hashKeys {
		if RawEqual(hk, key) {
			if i+1 < len(t.hashKeys) {
				nk := t.hashKeys[i+1]
				return nk, t.hash[nk], true
			}
			return Nil, Nil, false
		}
	}
	return Nil, Nil, false
}

func (t *Table) firstNonNilArray(from int) (int, bool) {
	for i := from; i < len(t.array); i++ {
		if t.array[i].tag != TagNil {
			return i, true
		}
	}
	return 0, false
}

func (t *Table) firstHashEntry() (TValue, TValue, bool) {
	if len(t.hashKeys) == 0 {
		return Nil, Nil, false
	}
	k := t.hashKeys[0]
	return k, t.hash[k], true
}

// clearDeadWeakEntries drops array/hash entries whose weak component is
// unreachable, run once per GC cycle during the atomic phase.
func (t *Table) clearDeadWeakEntries(g *GC) {
	if t.weakValues {
		for i, v := range t.array {
			if isDeadValue(g, v) {
				t.array[i] = Nil
			}
		}
	}
	if !t.weakKeys && !t.weakValues {
		return
	}
	var survivors []TValue
	for _, k := range t.hashKeys {
		v := t.hash[k]
		deadKey := t.weakKeys && isDeadValue(g, k)
		deadVal := t.weakValues && isDeadValue(g, v)
		if deadKey || deadVal {
			delete(t.hash, k)
			continue
		}
		survivors = append(survivors, k)
	}
	t.hashKeys = survivors
}

func isDeadValue(g *GC, v TValue) bool {
	switch v.tag {
	case TagString:
		return g.isWhite(v.ref.(*StringObject))
	case TagTable:
		return g.isWhite(v.ref.(*Table))
	case TagFunction:
		return g.isWhite(v.ref.(*Closure))
	case TagUserdata:
		return g.isWhite(v.ref.(*Userdata))
	case TagThread:
		return g.isWhite(v.ref.(*Coroutine))
	default:
		return false
	}
}
