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
	"fmt"
)

// ---- Error sentinels (spec.md §7's "type", "runtime", and related kinds) --

var (
	ErrNotAFunction    = errors.New("attempt to call a non-function value")
	ErrNotIndexable    = errors.New("attempt to index a non-table value")
	ErrArithmeticType  = errors.New("attempt to perform arithmetic on an incompatible value")
	ErrConcatType      = errors.New("attempt to concatenate an incompatible value")
	ErrLenType         = errors.New("attempt to get length of an incompatible value")
	ErrCompareType     = errors.New("attempt to compare incompatible values")
	ErrInvalidOpcode   = errors.New("invalid opcode")
	ErrMetamethodChain = errors.New("'__index' chain too long; possible loop")
)

// maxIndexChain bounds __index/__newindex recursion (spec.md §4.7:
// "bounded by a chain-depth limit to detect loops").
const maxIndexChain = 100

// Call implements the embedding API's call(nargs, nresults): invoke c with
// args on the state's current coroutine and collect its results, through
// callClosure (which pcall and Resume also call directly).
func (s *State) Call(c *Closure, args []TValue, nresults int) ([]TValue, error) {
	return s.callClosure(s.Current(), c, args, nresults)
}

// callClosure runs c to completion (native: a direct Go call; Lua: pushes
// a frame and drives runLoop until it unwinds back to the caller's depth)
// and returns exactly nresults values (nresults < 0 means "all of them").
func (s *State) callClosure(co *Coroutine, c *Closure, args []TValue, nresults int) ([]TValue, error) {
	if c.native != nil {
		return s.callNative(co, c, args, nresults)
	}

	base := co.top
	s.gc.Step(len(args) + 8)

	for i, a := range args {
		co.Set(base+i, a)
	}
	np := int(c.proto.NumParams)
	for i := len(args); i < np; i++ {
		co.Set(base+i, Nil)
	}
	var varargs []TValue
	if c.proto.IsVararg && len(args) > np {
		varargs = append(varargs, args[np:]...)
	}
	co.SetTop(base + int(c.proto.MaxStackSize))

	entryDepth := len(co.frames)
	if err := co.pushFrame(c, base, nresults, 0, false); err != nil {
		return nil, err
	}
	co.frames[len(co.frames)-1].varargs = varargs

	results, err := s.runLoop(co, entryDepth)
	if err != nil {
		return nil, err
	}
	return adjustResults(results, nresults), nil
}

func (s *State) callNative(co *Coroutine, c *Closure, args []TValue, nresults int) ([]TValue, error) {
	base := co.top
	for _, a := range args {
		co.Push(a)
	}
	n, err := c.native(co, len(args))
	if err != nil {
		co.SetTop(base)
		return nil, err
	}
	results := make([]TValue, n)
	copy(results, co.stack[co.top-n:co.top])
	co.SetTop(base)
	return adjustResults(results, nresults), nil
}

func adjustResults(results []TValue, nresults int) []TValue {
	if nresults < 0 {
		return results
	}
	out := make([]TValue, nresults)
	for i := range out {
		if i < len(results) {
			out[i] = results[i]
		} else {
			out[i] = Nil
		}
	}
	return out
}

// runLoop is the fetch-decode-execute loop (spec.md §4.7). It runs until
// the call-info stack unwinds back to entryDepth (the frame count just
// before the entry call was pushed), returning that call's results.
func (s *State) runLoop(co *Coroutine, entryDepth int) ([]TValue, error) {
	for {
		ci := co.currentFrame()
		if ci == nil || len(co.frames) <= entryDepth {
			return nil, nil
		}
		proto := ci.closure.proto
		if ci.pc < 0 || ci.pc >= len(proto.Code) {
			return nil, fmt.Errorf("%w: pc %d past end of code", ErrInvalidOpcode, ci.pc)
		}
		word := proto.Code[ci.pc]
		ci.pc++

		in := decodeInstruction(word)
		done, results, err := s.dispatch(co, entryDepth, in)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", proto.Source, proto.lineAt(ci.pc-1), err)
		}
		if done {
			return results, nil
		}

		if g := s.gc; !g.stopped {
			g.Step(4)
		}
	}
}

// rk resolves a 9-bit RK operand against either the current frame's
// registers or its proto's constant table.
func (s *State) rk(co *Coroutine, ci *callInfo, operand int) TValue {
	if isConstant(operand) {
		return ci.closure.proto.Constants[constantIndex(operand)]
	}
	return co.Get(ci.base + operand)
}

// dispatch executes exactly one decoded instruction. done=true means the
// entry call has returned and results holds its values.
func (s *State) dispatch(co *Coroutine, entryDepth int, in instr) (done bool, results []TValue, err error) {
	ci := co.currentFrame()
	base := ci.base
	reg := func(n int) TValue { return co.Get(base + n) }
	setReg := func(n int, v TValue) { co.Set(base+n, v) }

	switch in.Opcode() {
	case OpMove:
		setReg(in.A(), reg(in.B()))

	case OpLoadK:
		setReg(in.A(), ci.closure.proto.Constants[in.Bx()])

	case OpLoadBool:
		setReg(in.A(), MakeBoolean(in.B() != 0))
		if in.C() != 0 {
			co.frames[len(co.frames)-1].pc++
		}

	case OpLoadNil:
		for i := in.A(); i <= in.B(); i++ {
			setReg(i, Nil)
		}

	case OpGetUpval:
		setReg(in.A(), ci.closure.upvalues[in.B()].get())

	case OpSetUpval:
		ci.closure.upvalues[in.B()].set(reg(in.A()))

	case OpGetGlobal:
		key := ci.closure.proto.Constants[in.Bx()]
		env := ci.closure.env
		if env == nil {
			env = s.globals
		}
		setReg(in.A(), s.index(env, key))

	case OpSetGlobal:
		key := ci.closure.proto.Constants[in.Bx()]
		env := ci.closure.env
		if env == nil {
			env = s.globals
		}
		if err := s.newindex(env, key, reg(in.A())); err != nil {
			return false, nil, err
		}

	case OpGetTable:
		key := s.rk(co, ci, in.C())
		v, err := s.indexValue(reg(in.B()), key)
		if err != nil {
			return false, nil, err
		}
		setReg(in.A(), v)

	case OpSetTable:
		key := s.rk(co, ci, in.B())
		val := s.rk(co, ci, in.C())
		if err := s.newindexValue(reg(in.A()), key, val); err != nil {
			return false, nil, err
		}

	case OpNewTable:
		setReg(in.A(), MakeTable(s.NewTable(fbToInt(in.B()), fbToInt(in.C()))))

	case OpSelf:
		obj := reg(in.B())
		setReg(in.A()+1, obj)
		key := s.rk(co, ci, in.C())
		v, err := s.indexValue(obj, key)
		if err != nil {
			return false, nil, err
		}
		setReg(in.A(), v)

	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpPow:
		a := s.rk(co, ci, in.B())
		b := s.rk(co, ci, in.C())
		v, err := s.arith(in.Opcode(), a, b)
		if err != nil {
			return false, nil, err
		}
		setReg(in.A(), v)

	case OpUnm:
		a := reg(in.B())
		if n, ok := ToNumber(a); ok {
			setReg(in.A(), MakeNumber(-n))
			break
		}
		v, err := s.arithMeta("__unm", a, a)
		if err != nil {
			return false, nil, err
		}
		setReg(in.A(), v)

	case OpNot:
		setReg(in.A(), MakeBoolean(!Truthy(reg(in.B()))))

	case OpLen:
		v, err := s.length(reg(in.B()))
		if err != nil {
			return false, nil, err
		}
		setReg(in.A(), v)

	case OpConcat:
		v, err := s.concat(co, base, in.B(), in.C())
		if err != nil {
			return false, nil, err
		}
		setReg(in.A(), v)

	case OpJmp:
		co.frames[len(co.frames)-1].pc += in.SBx()

	case OpEq:
		eq, err := s.equals(s.rk(co, ci, in.B()), s.rk(co, ci, in.C()))
		if err != nil {
			return false, nil, err
		}
		if eq != (in.A() != 0) {
			co.frames[len(co.frames)-1].pc++
		}

	case OpLt:
		lt, err := s.less(s.rk(co, ci, in.B()), s.rk(co, ci, in.C()), false)
		if err != nil {
			return false, nil, err
		}
		if lt != (in.A() != 0) {
			co.frames[len(co.frames)-1].pc++
		}

	case OpLe:
		le, err := s.less(s.rk(co, ci, in.B()), s.rk(co, ci, in.C()), true)
		if err != nil {
			return false, nil, err
		}
		if le != (in.A() != 0) {
			co.frames[len(co.frames)-1].pc++
		}

	case OpTest:
		if Truthy(reg(in.A())) != (in.C() != 0) {
			co.frames[len(co.frames)-1].pc++
		}

	case OpTestSet:
		v := reg(in.B())
		if Truthy(v) == (in.C() != 0) {
			setReg(in.A(), v)
		} else {
			co.frames[len(co.frames)-1].pc++
		}

	case OpCall:
		d, r, e := s.execCall(co, entryDepth, in, false)
		return d, r, e

	case OpTailCall:
		d, r, e := s.execCall(co, entryDepth, in, true)
		return d, r, e

	case OpReturn:
		vals := s.gatherVarArgs(co, base, in.A(), in.B())
		return s.doReturn(co, entryDepth, vals)

	case OpForPrep:
		init, _ := ToNumber(reg(in.A()))
		step, _ := ToNumber(reg(in.A() + 2))
		setReg(in.A(), MakeNumber(init-step))
		co.frames[len(co.frames)-1].pc += in.SBx()

	case OpForLoop:
		step, _ := ToNumber(reg(in.A() + 2))
		v, _ := ToNumber(reg(in.A()))
		v += step
		limit, _ := ToNumber(reg(in.A() + 1))
		cont := (step >= 0 && v <= limit) || (step < 0 && v >= limit)
		if cont {
			setReg(in.A(), MakeNumber(v))
			setReg(in.A()+3, MakeNumber(v))
			co.frames[len(co.frames)-1].pc += in.SBx()
		}

	case OpTForLoop:
		iterFn := reg(in.A())
		iterState := reg(in.A() + 1)
		ctrl := reg(in.A() + 2)
		if iterFn.tag != TagFunction {
			return false, nil, ErrNotAFunction
		}
		rs, err := s.callClosure(co, AsClosure(iterFn), []TValue{iterState, ctrl}, in.C())
		if err != nil {
			return false, nil, err
		}
		for i, v := range rs {
			setReg(in.A()+3+i, v)
		}
		if len(rs) > 0 && rs[0].tag != TagNil {
			setReg(in.A()+2, rs[0])
		} else {
			co.frames[len(co.frames)-1].pc++
		}

	case OpSetList:
		t := AsTable(reg(in.A()))
		n := in.B()
		if n == 0 {
			n = co.top - (base + in.A() + 1)
		}
		blockBase := (in.C() - 1) * 50 // FIELDS_PER_FLUSH, matching Lua 5.1.5
		for i := 1; i <= n; i++ {
			_ = t.Set(MakeNumber(float64(blockBase+i)), reg(in.A()+i))
		}

	case OpClose:
		co.closeUpvalues(base + in.A())

	case OpClosure:
		proto := ci.closure.proto.Protos[in.Bx()]
		nc := newLuaClosure(s.gc, proto, ci.closure, base, co, ci.closure.env)
		setReg(in.A(), MakeClosure(nc))

	case OpVararg:
		va := ci.varargs
		want := in.B() - 1
		if want < 0 {
			want = len(va)
			co.SetTop(base + in.A() + want)
		}
		for i := 0; i < want; i++ {
			if i < len(va) {
				setReg(in.A()+i, va[i])
			} else {
				setReg(in.A()+i, Nil)
			}
		}

	default:
		return false, nil, fmt.Errorf("%w: %d", ErrInvalidOpcode, in.Opcode())
	}
	return false, nil, nil
}

// fbToInt decodes NEWTABLE's "floating byte" size hint (a crude
// mantissa/exponent encoding Lua uses to fit array/hash size hints into a
// handful of bits) back into a plain int. Values below 8 are literal.
func fbToInt(fb int) int {
	if fb < 8 {
		return fb
	}
	exp := (fb >> 3) - 1
	mantissa := fb & 7
	return (mantissa + 8) << uint(exp)
}

// gatherVarArgs collects the B-1 (or "to top") values starting at register
// a, used by RETURN and CALL's argument gathering.
func (s *State) gatherVarArgs(co *Coroutine, base, a, b int) []TValue {
	if b == 0 {
		n := co.top - (base + a)
		out := make([]TValue, n)
		for i := 0; i < n; i++ {
			out[i] = co.Get(base + a + i)
		}
		return out
	}
	out := make([]TValue, b-1)
	for i := range out {
		out[i] = co.Get(base + a + i)
	}
	return out
}

// execCall handles both CALL and TAILCALL: resolve the callee at register
// A, gather its arguments, and either recurse into a Lua frame (letting
// runLoop's outer for-loop continue) or invoke a native closure inline.
func (s *State) execCall(co *Coroutine, entryDepth int, in instr, tail bool) (bool, []TValue, error) {
	ci := co.currentFrame()
	base := ci.base
	a := in.A()
	fnVal := co.Get(base + a)
	args := s.gatherVarArgs(co, base, a+1, in.B())

	if fnVal.tag == TagFunction && AsClosure(fnVal).native == nil {
		c := AsClosure(fnVal)
		callBase := base + a + 1
		co.SetTop(callBase + len(args))
		for i, v := range args {
			co.Set(callBase+i, v)
		}
		np := int(c.proto.NumParams)
		for i := len(args); i < np; i++ {
			co.Set(callBase+i, Nil)
		}
		var varargs []TValue
		if c.proto.IsVararg && len(args) > np {
			varargs = append(varargs, args[np:]...)
		}
		co.SetTop(callBase + int(c.proto.MaxStackSize))
		nresults := in.C() - 1
		if err := co.pushFrame(c, callBase, nresults, base+a, tail); err != nil {
			return false, nil, err
		}
		co.frames[len(co.frames)-1].varargs = varargs
		return false, nil, nil
	}

	results, err := s.callAny(co, fnVal, args, in.C()-1)
	if err != nil {
		return false, nil, err
	}
	if tail {
		return s.doReturn(co, entryDepth, results)
	}
	placeResults(co, base+a, results, in.C())
	return false, nil, nil
}

// callAny dispatches a call to any callable value: a Closure directly, or
// (if v carries a __call metamethod) a metamethod-mediated call.
func (s *State) callAny(co *Coroutine, v TValue, args []TValue, nresults int) ([]TValue, error) {
	if v.tag == TagFunction {
		return s.callClosure(co, AsClosure(v), args, nresults)
	}
	mm := s.metamethod(v, "__call")
	if mm.tag == TagFunction {
		return s.callClosure(co, AsClosure(mm), append([]TValue{v}, args...), nresults)
	}
	return nil, ErrNotAFunction
}

// placeResults writes a call's results into the caller's registers
// starting at dest, per the CALL instruction's C operand (0 = "keep all on
// the stack, multiret"; n>0 = exactly n-1 results expected).
func placeResults(co *Coroutine, dest int, results []TValue, c int) {
	if c == 0 {
		co.SetTop(dest)
		for _, r := range results {
			co.Push(r)
		}
		return
	}
	want := c - 1
	for i := 0; i < want; i++ {
		if i < len(results) {
			co.Set(dest+i, results[i])
		} else {
			co.Set(dest+i, Nil)
		}
	}
}

// doReturn implements the RETURN opcode's frame-pop-and-place-results
// behavior, continuing execution in the caller or, once entryDepth is
// reached, handing the values back to callClosure/runLoop's caller.
func (s *State) doReturn(co *Coroutine, entryDepth int, vals []TValue) (bool, []TValue, error) {
	ci := co.currentFrame()
	dest := ci.resultDest
	expected := ci.expectedResults
	co.popFrame()

	if len(co.frames) <= entryDepth {
		return true, vals, nil
	}

	c := expected + 1
	if expected < 0 {
		c = 0
	}
	placeResults(co, dest, vals, c)
	return false, nil, nil
}
