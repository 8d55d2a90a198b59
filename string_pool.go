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
	"hash/fnv"
	"sync"

	"github.com/VictoriaMetrics/fastcache"
	"github.com/holiman/bloomfilter/v2"
)

// shortStringLimit is the boundary (inclusive) below which a string is
// stored in the plain Go map rather than the fastcache-backed long-string
// store, matching spec.md's "short strings and long strings may use
// distinct storage layouts for compactness" allowance.
const shortStringLimit = 40

// StringObject is an immutable, interned byte sequence with a precomputed
// hash. Two StringObjects with identical content are always the same
// pointer (§8 invariant 1): callers never construct one directly, only via
// Pool.Intern.
type StringObject struct {
	gcHeader
	bytes []byte
	hash  uint64
}

func (s *StringObject) gcHead() *gcHeader { return &s.gcHeader }

// gcMark is a no-op: strings are leaves in the object graph.
func (s *StringObject) gcMark(g *GC) {}

// Len returns the byte length of the string.
func (s *StringObject) Len() int { return len(s.bytes) }

// Bytes returns the string's immutable backing bytes. Callers must not
// mutate the returned slice.
func (s *StringObject) Bytes() []byte { return s.bytes }

// luaHash computes Lua 5.1.5's string hash: a seed XORed with byte samples
// taken at a stride proportional to length, so long strings are hashed
// from a bounded number of sample points rather than every byte.
func luaHash(b []byte) uint64 {
	var h uint32 = uint32(len(b))
	step := (len(b) >> 5) + 1
	for l := len(b); l >= step; l -= step {
		h ^= (h << 5) + (h >> 2) + uint32(b[l-1])
	}
	return uint64(h)
}

// Pool is the process-... well, State-wide string intern table: a hash set
// keyed by (length, content) holding weak references, swept by the GC like
// any other managed object. Short strings live in a plain Go map; long
// strings (> shortStringLimit bytes) are additionally tracked through a
// fastcache-backed content index so a large program with many distinct
// long string literals doesn't bloat one giant Go map.
type Pool struct {
	mu    sync.Mutex
	short map[uint64][]*StringObject // hash -> bucket (collision chain)
	long  *fastcache.Cache           // hash+len key -> serialized pointer slot
	longObjs map[uint64][]*StringObject
	filter *bloomfilter.Filter // fast negative pre-check before the map probe
	gc     *GC
}

func newPool(gc *GC) *Pool {
	filter, err := bloomfilter.New(1<<20, 6)
	if err != nil {
		// bloomfilter.New only fails on invalid (m, k); both are compile-time
		// constants here, so this is unreachable in practice.
		filter = nil
	}
	return &Pool{
		short:    make(map[uint64][]*StringObject),
		long:     fastcache.New(8 * 1024 * 1024),
		longObjs: make(map[uint64][]*StringObject),
		filter:   filter,
		gc:       gc,
	}
}

// maybeInterned does a cheap bloom-filter membership test before the real
// intern probe; a negative answer here proves the string has never been
// interned, letting Intern skip the map/cache lookup entirely on a cold
// string (e.g. during initial chunk loading of a large constant pool).
func (p *Pool) maybeInterned(h uint64) bool {
	if p.filter == nil {
		return true
	}
	fh := fnv.New64a()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(h >> (8 * i))
	}
	fh.Write(buf[:])
	return p.filter.Contains(fh)
}

func (p *Pool) noteInterned(h uint64) {
	if p.filter == nil {
		return
	}
	fh := fnv.New64a()
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(h >> (8 * i))
	}
	fh.Write(buf[:])
	p.filter.Add(fh)
}

// Intern returns the canonical StringObject for b, allocating and
// registering a new one only if b has never been seen before.
func (p *Pool) Intern(b []byte) *StringObject {
	h := luaHash(b)
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.maybeInterned(h) {
		if len(b) <= shortStringLimit {
			for _, cand := range p.short[h] {
				if bytesEqual(cand.bytes, b) {
					return cand
				}
			}
		} else {
			for _, cand := range p.longObjs[h] {
				if bytesEqual(cand.bytes, b) {
					return cand
				}
			}
		}
	}

	s := &StringObject{bytes: append([]byte(nil), b...), hash: h}
	p.gc.register(s, uint64(len(b))+24)
	if len(b) <= shortStringLimit {
		p.short[h] = append(p.short[h], s)
	} else {
		p.longObjs[h] = append(p.longObjs[h], s)
		p.long.Set(longCacheKey(h, len(b)), []byte{1})
	}
	p.noteInterned(h)
	return s
}

func longCacheKey(h uint64, length int) []byte {
	key := make([]byte, 12)
	for i := 0; i < 8; i++ {
		key[i] = byte(h >> (8 * i))
	}
	key[8] = byte(length)
	key[9] = byte(length >> 8)
	key[10] = byte(length >> 16)
	key[11] = byte(length >> 24)
	return key
}

// forget removes a string that the collector has determined is
// unreachable from its intern buckets. Called only from GC.freeObject.
func (p *Pool) forget(s *StringObject) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(s.bytes) <= shortStringLimit {
		p.short[s.hash] = removeStringObject(p.short[s.hash], s)
	} else {
		p.longObjs[s.hash] = removeStringObject(p.longObjs[s.hash], s)
		p.long.Del(longCacheKey(s.hash, len(s.bytes)))
	}
}

func removeStringObject(bucket []*StringObject, s *StringObject) []*StringObject {
	for i, cand := range bucket {
		if cand == s {
			return append(bucket[:i], bucket[i+1:]...)
		}
	}
	return bucket
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
