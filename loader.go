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
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/golang/snappy"
	"github.com/syndtr/goleveldb/leveldb"
	"golang.org/x/crypto/sha3"
)

// ErrLoad is the sentinel every bytecode-format rejection wraps (spec.md
// §7's "syntax/load" error kind).
var ErrLoad = errors.New("load error")

var luaBytecodeHeader = [12]byte{0x1B, 'L', 'u', 'a', 0x51, 0x00, 0x01, 4, 4, 4, 8, 0}

// chunkReader sequences the sizeof(size_t)-sensitive reads the format
// requires. The header above (4-byte size_t) matches 32-bit Lua 5.1.5
// builds; Load also accepts a header declaring an 8-byte size_t and reads
// sizes at that width, and rejects any other size with ErrLoad.
type chunkReader struct {
	r          io.Reader
	sizeT      int
	littleEnd  bool
}

func (s *State) loadErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrLoad, fmt.Sprintf(format, args...))
}

// Load implements the embedding API's load(bytes) -> Closure: parse a
// bit-exact Lua 5.1.5 binary chunk into a top-level Closure wrapping its
// main Proto (spec.md §4.10/§6). It checks an optional on-disk Proto cache
// first, keyed by the chunk's SHA3-256 content hash, before parsing.
func (s *State) Load(data []byte, source string) (*Closure, error) {
	if cached := s.loadFromCache(data); cached != nil {
		return s.wrapTopLevel(cached), nil
	}

	if len(data) < 12 {
		return nil, s.loadErr("truncated header")
	}
	var hdr [12]byte
	copy(hdr[:], data[:12])
	if hdr[0] != luaBytecodeHeader[0] || hdr[1] != 'L' || hdr[2] != 'u' || hdr[3] != 'a' {
		return nil, s.loadErr("not a precompiled chunk (bad magic)")
	}
	if hdr[4] != 0x51 {
		return nil, s.loadErr("version mismatch (got %#x, want 0x51)", hdr[4])
	}
	if hdr[5] != 0x00 {
		return nil, s.loadErr("format mismatch")
	}
	littleEndian := hdr[6] == 1
	sizeT := int(hdr[8])
	if hdr[7] != 4 || (sizeT != 4 && sizeT != 8) || hdr[9] != 4 || hdr[10] != 8 || hdr[11] != 0 {
		return nil, s.loadErr("unsupported platform encoding")
	}

	cr := &chunkReader{r: bytes.NewReader(data[12:]), sizeT: sizeT, littleEnd: littleEndian}
	proto, err := s.readProto(cr, source)
	if err != nil {
		return nil, err
	}
	s.storeInCache(data, proto)
	return s.wrapTopLevel(proto), nil
}

// LoadFile memory-maps path, copies the mapped bytes into a heap buffer,
// and parses them exactly as Load would.
func (s *State) LoadFile(path string) (*Closure, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, s.loadErr("cannot open %s: %v", path, err)
	}
	defer f.Close()

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, s.loadErr("cannot mmap %s: %v", path, err)
	}
	defer m.Unmap()

	data := make([]byte, len(m))
	copy(data, m)
	return s.Load(data, path)
}

func (s *State) wrapTopLevel(proto *Proto) *Closure {
	c := &Closure{proto: proto, env: s.globals}
	s.gc.register(c, 40)
	return c
}

func (cr *chunkReader) byte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(cr.r, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (cr *chunkReader) int32() (int32, error) {
	var b [4]byte
	if _, err := io.ReadFull(cr.r, b[:]); err != nil {
		return 0, err
	}
	if cr.littleEnd {
		return int32(binary.LittleEndian.Uint32(b[:])), nil
	}
	return int32(binary.BigEndian.Uint32(b[:])), nil
}

func (cr *chunkReader) size() (int, error) {
	if cr.sizeT == 4 {
		n, err := cr.int32()
		return int(n), err
	}
	var b [8]byte
	if _, err := io.ReadFull(cr.r, b[:]); err != nil {
		return 0, err
	}
	if cr.littleEnd {
		return int(binary.LittleEndian.Uint64(b[:])), nil
	}
	return int(binary.BigEndian.Uint64(b[:])), nil
}

func (cr *chunkReader) float64() (float64, error) {
	var b [8]byte
	if _, err := io.ReadFull(cr.r, b[:]); err != nil {
		return 0, err
	}
	var bits uint64
	if cr.littleEnd {
		bits = binary.LittleEndian.Uint64(b[:])
	} else {
		bits = binary.BigEndian.Uint64(b[:])
	}
	return math.Float64frombits(bits), nil
}

func (cr *chunkReader) luaString() (string, error) {
	n, err := cr.size()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(cr.r, buf); err != nil {
		return "", err
	}
	if buf[n-1] != 0 {
		return "", fmt.Errorf("string missing trailing NUL")
	}
	return string(buf[:n-1]), nil
}

// readProto recursively parses one Proto and its nested prototypes, per
// spec.md §4.10's field order.
func (s *State) readProto(cr *chunkReader, fallbackSource string) (*Proto, error) {
	p := &Proto{}
	source, err := cr.luaString()
	if err != nil {
		return nil, s.loadErr("source name: %v", err)
	}
	if source == "" {
		source = fallbackSource
	}
	p.Source = source

	lineDefined, err := cr.int32()
	if err != nil {
		return nil, s.loadErr("line_defined: %v", err)
	}
	p.LineDefined = int(lineDefined)

	lastLine, err := cr.int32()
	if err != nil {
		return nil, s.loadErr("last_line_defined: %v", err)
	}
	p.LastLineDefined = int(lastLine)

	nups, err := cr.byte()
	if err != nil {
		return nil, s.loadErr("nups: %v", err)
	}
	numParams, err := cr.byte()
	if err != nil {
		return nil, s.loadErr("numparams: %v", err)
	}
	p.NumParams = numParams
	isVararg, err := cr.byte()
	if err != nil {
		return nil, s.loadErr("is_vararg: %v", err)
	}
	p.IsVararg = isVararg != 0
	maxStack, err := cr.byte()
	if err != nil {
		return nil, s.loadErr("maxstacksize: %v", err)
	}
	p.MaxStackSize = maxStack

	sizeCode, err := cr.int32()
	if err != nil {
		return nil, s.loadErr("sizecode: %v", err)
	}
	p.Code = make([]uint32, sizeCode)
	for i := range p.Code {
		w, err := cr.int32()
		if err != nil {
			return nil, s.loadErr("code[%d]: %v", i, err)
		}
		p.Code[i] = uint32(w)
	}

	sizeK, err := cr.int32()
	if err != nil {
		return nil, s.loadErr("sizek: %v", err)
	}
	p.Constants = make([]TValue, sizeK)
	for i := range p.Constants {
		tag, err := cr.byte()
		if err != nil {
			return nil, s.loadErr("const[%d] tag: %v", i, err)
		}
		switch tag {
		case 0:
			p.Constants[i] = Nil
		case 1:
			b, err := cr.byte()
			if err != nil {
				return nil, s.loadErr("const[%d] bool: %v", i, err)
			}
			p.Constants[i] = MakeBoolean(b != 0)
		case 3:
			n, err := cr.float64()
			if err != nil {
				return nil, s.loadErr("const[%d] number: %v", i, err)
			}
			p.Constants[i] = MakeNumber(n)
		case 4:
			str, err := cr.luaString()
			if err != nil {
				return nil, s.loadErr("const[%d] string: %v", i, err)
			}
			p.Constants[i] = MakeString(s.strings.Intern([]byte(str)))
		default:
			return nil, s.loadErr("const[%d]: unknown tag %d", i, tag)
		}
	}

	sizeP, err := cr.int32()
	if err != nil {
		return nil, s.loadErr("sizep: %v", err)
	}
	p.Protos = make([]*Proto, sizeP)
	for i := range p.Protos {
		child, err := s.readProto(cr, source)
		if err != nil {
			return nil, err
		}
		p.Protos[i] = child
	}

	sizeLineInfo, err := cr.int32()
	if err != nil {
		return nil, s.loadErr("sizelineinfo: %v", err)
	}
	p.LineInfo = make([]int32, sizeLineInfo)
	for i := range p.LineInfo {
		n, err := cr.int32()
		if err != nil {
			return nil, s.loadErr("lineinfo[%d]: %v", i, err)
		}
		p.LineInfo[i] = n
	}

	sizeLocVars, err := cr.int32()
	if err != nil {
		return nil, s.loadErr("sizelocvars: %v", err)
	}
	p.LocVars = make([]LocVar, sizeLocVars)
	for i := range p.LocVars {
		name, err := cr.luaString()
		if err != nil {
			return nil, s.loadErr("locvar[%d] name: %v", i, err)
		}
		startPC, err := cr.int32()
		if err != nil {
			return nil, s.loadErr("locvar[%d] startpc: %v", i, err)
		}
		endPC, err := cr.int32()
		if err != nil {
			return nil, s.loadErr("locvar[%d] endpc: %v", i, err)
		}
		p.LocVars[i] = LocVar{Name: name, StartPC: int(startPC), EndPC: int(endPC)}
	}

	sizeUpvalues, err := cr.int32()
	if err != nil {
		return nil, s.loadErr("sizeupvalues: %v", err)
	}
	p.UpvalueNames = make([]string, sizeUpvalues)
	for i := range p.UpvalueNames {
		name, err := cr.luaString()
		if err != nil {
			return nil, s.loadErr("upvalue[%d] name: %v", i, err)
		}
		p.UpvalueNames[i] = name
	}
	if int(nups) != len(p.UpvalueNames) && len(p.UpvalueNames) != 0 {
		return nil, s.loadErr("nups (%d) disagrees with upvalue name count (%d)", nups, len(p.UpvalueNames))
	}
	p.Upvalues = make([]UpvalDesc, nups)

	return p, nil
}

// ---- optional on-disk Proto cache -----------------------------------------

// protoCache is a lazily-opened goleveldb database mapping a chunk's
// SHA3-256 content hash to its snappy-compressed serialized Proto tree, so
// that repeated Load() calls on the same bytecode (a script re-run, a REPL
// reload) skip re-parsing. Opt-in: nil until EnableDiskCache is called.
type protoCache struct {
	db *leveldb.DB
}

// EnableDiskCache opens (creating if absent) a goleveldb cache at dir for
// this State's subsequent Load calls.
func (s *State) EnableDiskCache(dir string) error {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return fmt.Errorf("open proto cache: %w", err)
	}
	s.cache = &protoCache{db: db}
	return nil
}

func (s *State) cacheKey(data []byte) []byte {
	h := sha3.Sum256(data)
	return h[:]
}

func (s *State) loadFromCache(data []byte) *Proto {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.db.Get(s.cacheKey(data), nil)
	if err != nil {
		return nil
	}
	plain, err := snappy.Decode(nil, raw)
	if err != nil {
		return nil
	}
	proto, err := s.decodeCachedProto(plain)
	if err != nil {
		return nil
	}
	return proto
}

func (s *State) storeInCache(data []byte, proto *Proto) {
	if s.cache == nil {
		return
	}
	plain, err := s.encodeCachedProto(proto)
	if err != nil {
		return
	}
	compressed := snappy.Encode(nil, plain)
	_ = s.cache.db.Put(s.cacheKey(data), compressed, nil)
}

// encodeCachedProto/decodeCachedProto reuse the exact same on-wire Proto
// format Load/readProto already implement (source/code/constants/nested
// protos/debug info), just without the 12-byte outer chunk header, since
// the cache already keys on the original bytes' hash and needs only the
// parsed tree back.
func (s *State) encodeCachedProto(p *Proto) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.writeProtoCached(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *State) writeProtoCached(buf *bytes.Buffer, p *Proto) error {
	writeLuaString(buf, p.Source)
	binary.Write(buf, binary.LittleEndian, int32(p.LineDefined))
	binary.Write(buf, binary.LittleEndian, int32(p.LastLineDefined))
	buf.WriteByte(byte(len(p.Upvalues)))
	buf.WriteByte(p.NumParams)
	if p.IsVararg {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
	buf.WriteByte(p.MaxStackSize)

	binary.Write(buf, binary.LittleEndian, int32(len(p.Code)))
	for _, w := range p.Code {
		binary.Write(buf, binary.LittleEndian, w)
	}

	binary.Write(buf, binary.LittleEndian, int32(len(p.Constants)))
	for _, k := range p.Constants {
		switch k.tag {
		case TagNil:
			buf.WriteByte(0)
		case TagBoolean:
			buf.WriteByte(1)
			if AsBoolean(k) {
				buf.WriteByte(1)
			} else {
				buf.WriteByte(0)
			}
		case TagNumber:
			buf.WriteByte(3)
			binary.Write(buf, binary.LittleEndian, math.Float64bits(AsNumber(k)))
		case TagString:
			buf.WriteByte(4)
			writeLuaString(buf, string(AsString(k).Bytes()))
		}
	}

	binary.Write(buf, binary.LittleEndian, int32(len(p.Protos)))
	for _, child := range p.Protos {
		if err := s.writeProtoCached(buf, child); err != nil {
			return err
		}
	}

	binary.Write(buf, binary.LittleEndian, int32(len(p.LineInfo)))
	for _, n := range p.LineInfo {
		binary.Write(buf, binary.LittleEndian, n)
	}

	binary.Write(buf, binary.LittleEndian, int32(len(p.LocVars)))
	for _, lv := range p.LocVars {
		writeLuaString(buf, lv.Name)
		binary.Write(buf, binary.LittleEndian, int32(lv.StartPC))
		binary.Write(buf, binary.LittleEndian, int32(lv.EndPC))
	}

	binary.Write(buf, binary.LittleEndian, int32(len(p.UpvalueNames)))
	for _, name := range p.UpvalueNames {
		writeLuaString(buf, name)
	}
	return nil
}

func writeLuaString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, int32(len(s)+1))
	buf.WriteString(s)
	buf.WriteByte(0)
}

func (s *State) decodeCachedProto(data []byte) (*Proto, error) {
	cr := &chunkReader{r: bytes.NewReader(data), sizeT: 4, littleEnd: true}
	return s.readProto(cr, "")
}
