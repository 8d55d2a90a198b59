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

	"github.com/google/uuid"
)

// Status is one of a coroutine's four lifecycle states (spec.md §4.8).
type Status int

const (
	StatusSuspended Status = iota
	StatusRunning
	StatusNormal
	StatusDead
)

func (s Status) String() string {
	switch s {
	case StatusSuspended:
		return "suspended"
	case StatusRunning:
		return "running"
	case StatusNormal:
		return "normal"
	case StatusDead:
		return "dead"
	default:
		return "unknown"
	}
}

// ErrCannotResumeDead / ErrCannotResumeNonSuspended / ErrYieldAcrossHostCall
// are the three rejection paths resume/yield can take without ever
// entering the dispatch loop (spec.md §4.8/§8 scenario S2).
var (
	ErrCannotResumeDead         = errors.New("cannot resume dead coroutine")
	ErrCannotResumeNonSuspended = errors.New("cannot resume non-suspended coroutine")
	ErrYieldAcrossHostCall      = errors.New("attempt to yield across a C-call boundary")
)

// transferKind tags what a running coroutine's goroutine sent back across
// yieldCh: a voluntary yield, a normal return, or an escaping error.
type transferKind int

const (
	transferYield transferKind = iota
	transferReturn
	transferError
)

type transfer struct {
	kind   transferKind
	values []TValue
	err    error
}

// Coroutine is a stackful cooperative continuation (spec.md's "thread"):
// its own value stack, its own call-info stack, its own open-upvalue list.
// Go has no portable way to suspend an arbitrary call stack mid-function
// short of a real OS-level stack, so each Coroutine that is ever resumed
// runs its dispatch loop on a dedicated goroutine (whose stack IS that OS
// stack — exactly the "owning an OS stack per coroutine" strategy spec.md
// §9 names as the simplest mapping) and hands control back and forth with
// its resumer over a pair of unbuffered channels, one command at a time,
// never concurrently — the same single-goroutine-serializes-a-stateful-
// resource shape as a Lua-via-cgo bridge's dedicated state goroutine.
type Coroutine struct {
	gcHeader
	gc    *GC
	state *State
	id    uuid.UUID

	status Status
	body   *Closure // the function coroutine.create was given; nil for the main thread

	stack      []TValue
	top        int
	frames     []callInfo
	openUpvals *Upvalue

	resumer *Coroutine // who is waiting on this coroutine's yieldCh

	resumeCh chan []TValue // resumer -> body goroutine: resume args / first call args
	yieldCh  chan transfer // body goroutine -> resumer: yield/return/error
	started  bool
}

func newCoroutine(gc *GC, state *State, body *Closure) *Coroutine {
	co := &Coroutine{
		gc:       gc,
		state:    state,
		id:       uuid.New(),
		status:   StatusSuspended,
		body:     body,
		stack:    make([]TValue, 64),
		resumeCh: make(chan []TValue),
		yieldCh:  make(chan transfer),
	}
	for i := range co.stack {
		co.stack[i] = Nil
	}
	gc.register(co, 128)
	return co
}

// newMainThread builds the one coroutine that is never resumed through the
// scheduler protocol below — it runs on the embedder's own goroutine
// starting out StatusRunning, and Call/pcall on it recurse directly rather
// than going through a channel handoff.
func newMainThread(gc *GC, state *State) *Coroutine {
	co := newCoroutine(gc, state, nil)
	co.status = StatusRunning
	co.started = true
	return co
}

func (co *Coroutine) gcHead() *gcHeader { return &co.gcHeader }

func (co *Coroutine) gcMark(g *GC) {
	if co.body != nil {
		g.markObject(co.body)
	}
	for i := 0; i < co.top; i++ {
		g.markValue(co.stack[i])
	}
	for _, ci := range co.frames {
		if ci.closure != nil {
			g.markObject(ci.closure)
		}
	}
	for uv := co.openUpvals; uv != nil; uv = uv.next {
		g.markValue(uv.get())
	}
}

// GetStatus reports the coroutine's current lifecycle state.
func (co *Coroutine) GetStatus() Status { return co.status }

// Resume implements spec.md §4.8's resume protocol. It blocks the calling
// goroutine (the resumer) until the resumed coroutine next yields, returns,
// or errors.
func (co *Coroutine) Resume(args ...TValue) (bool, []TValue) {
	switch co.status {
	case StatusDead:
		return false, []TValue{errorValue(co.state, ErrCannotResumeDead)}
	case StatusRunning, StatusNormal:
		return false, []TValue{errorValue(co.state, ErrCannotResumeNonSuspended)}
	}

	caller := co.state.current
	if caller != nil {
		caller.status = StatusNormal
	}
	co.resumer = caller
	co.status = StatusRunning
	co.state.current = co

	if !co.started {
		co.started = true
		go co.runBody()
	}
	co.resumeCh <- args

	t := <-co.yieldCh

	co.state.current = caller
	if caller != nil {
		caller.status = StatusRunning
	}

	switch t.kind {
	case transferYield:
		co.status = StatusSuspended
		return true, t.values
	case transferReturn:
		co.status = StatusDead
		return true, t.values
	default:
		co.status = StatusDead
		return false, t.values
	}
}

// runBody is the coroutine's dedicated goroutine: it waits for the first
// resume, runs the VM dispatch loop over its own body closure, and reports
// exactly one final transfer (a return or an error) after any number of
// yields.
func (co *Coroutine) runBody() {
	args := <-co.resumeCh
	results, err := co.state.callClosure(co, co.body, args, -1)
	if err != nil {
		co.yieldCh <- transfer{kind: transferError, values: []TValue{errorValue(co.state, err)}}
		return
	}
	co.yieldCh <- transfer{kind: transferReturn, values: results}
}

// Yield implements spec.md §4.8's yield: it must be called from within
// runBody's goroutine (i.e. co.state.current == co), suspends that
// goroutine on resumeCh, and returns once a subsequent Resume supplies new
// arguments.
func (co *Coroutine) Yield(vals ...TValue) []TValue {
	co.yieldCh <- transfer{kind: transferYield, values: vals}
	return <-co.resumeCh
}

// errorValue wraps a Go error as the TValue resume/pcall hand back to Lua
// code, per §4.9's "the error value is whatever was passed to error() —
// typically a string".
func errorValue(s *State, err error) TValue {
	return MakeString(s.strings.Intern([]byte(fmt.Sprint(err))))
}
