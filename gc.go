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
	mapset "github.com/deckarep/golang-set"
	"github.com/fjl/memsize"
)

// gcColor is one of the four tri-color states an object can be in.
// Two white shades let the collector distinguish, at sweep time, objects
// allocated during the current cycle (which must survive) from objects
// that failed to be marked (which must be freed).
type gcColor uint8

const (
	colorWhite0 gcColor = iota
	colorWhite1
	colorGray
	colorBlack
)

// gcHeader is embedded by every type the collector manages directly:
// StringObject, Table, Closure, Userdata, Coroutine. Proto and Upvalue are
// deliberately NOT gc-managed (see DESIGN.md) and are reclaimed by Go's own
// collector once unreachable from a managed object.
type gcHeader struct {
	color        gcColor
	next         gcObject // intrusive "all objects" sweep list
	hasFinalizer bool
	resurrected  bool // true once queued for a single finalizer run
}

// gcObject is implemented by every heap type participating in collection.
type gcObject interface {
	gcHead() *gcHeader
	// gcMark grays every child this object references, following the
	// weak/strong rules for the object's own kind (only *Table overrides
	// the default "mark everything" behavior).
	gcMark(g *GC)
}

// gcPhase is the collector's position in the Pause/Propagate/Atomic/
// Sweep/Finalize state machine (§4.2).
type gcPhase int

const (
	phasePause gcPhase = iota
	phasePropagate
	phaseAtomic
	phaseSweep
	phaseFinalize
)

func (p gcPhase) String() string {
	switch p {
	case phasePause:
		return "pause"
	case phasePropagate:
		return "propagate"
	case phaseAtomic:
		return "atomic"
	case phaseSweep:
		return "sweep"
	case phaseFinalize:
		return "finalize"
	default:
		return "unknown"
	}
}

// GC is the incremental tri-color mark-and-sweep collector shared by every
// coroutine of one State. There is exactly one GC per State; it is never
// shared across States (§5 — independent VMs get independent GCs).
type GC struct {
	state *State

	currentWhite gcColor
	phase        gcPhase
	stopped      bool

	allObjects gcObject // head of the intrusive sweep list
	sweepCur   gcObject // sweep cursor, valid only during phaseSweep

	gray      []gcObject
	grayAgain []gcObject // objects re-grayed by the table backward barrier

	weakTables   mapset.Set // elements are *Table
	finalizerSet mapset.Set // elements are gcObject with a __gc metamethod
	toFinalize   []gcObject

	bytesAllocated uint64
	threshold      uint64

	pause uint64 // percent; a cycle starts once bytesAllocated reaches threshold*pause/100
	// stepMul is a percent: endCycle sets the next threshold to the bytes
	// allocated during the cycle times stepMul/100, never below
	// initialGCThreshold. It does not scale the work a Step performs, and a
	// value of 0 does not stop collection.
	stepMul uint64
}

const (
	defaultPause   = 200
	defaultStepMul = 200
	initialGCThreshold = 64 * 1024
)

// newGC creates a collector in the Pause phase with Lua 5.1.5's default
// tuning parameters.
func newGC(state *State) *GC {
	return &GC{
		state:        state,
		currentWhite: colorWhite0,
		phase:        phasePause,
		weakTables:   mapset.NewSet(),
		finalizerSet: mapset.NewSet(),
		pause:        defaultPause,
		stepMul:      defaultStepMul,
		threshold:    initialGCThreshold,
	}
}

// register links a freshly allocated object into the sweep list and colors
// it the current white. Called by every constructor (newTable,
// newLuaClosure, NewHostClosure, newUserdata, newCoroutine, Pool.Intern)
// immediately after allocation.
func (g *GC) register(o gcObject, size uint64) {
	h := o.gcHead()
	h.color = g.currentWhite
	h.next = g.allObjects
	g.allObjects = o
	g.bytesAllocated += size
}

// isWhite, isDead report the collector-relevant state of an object.
func (g *GC) isWhite(o gcObject) bool {
	c := o.gcHead().color
	return c == colorWhite0 || c == colorWhite1
}

func (g *GC) isDeadWhite(o gcObject, dead gcColor) bool {
	return o.gcHead().color == dead
}

// markObject grays a white object and pushes it onto the gray worklist.
// No-op for anything already gray or black.
func (g *GC) markObject(o gcObject) {
	if o == nil {
		return
	}
	h := o.gcHead()
	if h.color == colorGray || h.color == colorBlack {
		return
	}
	h.color = colorGray
	g.gray = append(g.gray, o)
}

// markValue grays the boxed object a TValue references, if any. Numbers,
// nil, booleans, and light userdata never participate in GC.
func (g *GC) markValue(v TValue) {
	switch v.tag {
	case TagString:
		g.markObject(v.ref.(*StringObject))
	case TagTable:
		g.markObject(v.ref.(*Table))
	case TagFunction:
		g.markObject(v.ref.(*Closure))
	case TagUserdata:
		g.markObject(v.ref.(*Userdata))
	case TagThread:
		g.markObject(v.ref.(*Coroutine))
	}
}

// barrierForward implements the "forward barrier": when a black object o
// is made to reference white child v, gray the child immediately so the
// invariant "no black object references white" holds without waiting for
// the next propagate step. Used by Table.SetMetatable and
// Userdata.SetMetatable.
func (g *GC) barrierForward(parent gcObject, child TValue) {
	if g.phase != phasePropagate && g.phase != phaseAtomic {
		return
	}
	if parent.gcHead().color != colorBlack {
		return
	}
	g.markValue(child)
}

// barrierBackward implements the "backward barrier" used by tables: rather
// than gray every child on every Set (expensive for bulk mutation), a black
// table that is mutated is demoted back to gray and requeued, so the next
// propagate pass rescans all of its children in one pass.
func (g *GC) barrierBackward(t *Table) {
	if g.phase != phasePropagate && g.phase != phaseAtomic {
		return
	}
	h := t.gcHead()
	if h.color != colorBlack {
		return
	}
	h.color = colorGray
	g.grayAgain = append(g.grayAgain, t)
}

// registerFinalizer adds o to the has-finalizer set when
// Userdata.SetMetatable installs a metatable with a __gc entry.
func (g *GC) registerFinalizer(o gcObject) {
	o.gcHead().hasFinalizer = true
	g.finalizerSet.Add(o)
}

// registerWeakTable adds t to the weak-table registry consulted during the
// atomic phase.
func (g *GC) registerWeakTable(t *Table) {
	g.weakTables.Add(t)
}

func (g *GC) unregisterWeakTable(t *Table) {
	g.weakTables.Remove(t)
}

// addBytes accounts freshly allocated memory (e.g. table rehash growth,
// string interning) toward the trigger threshold, without a full
// allocation record (used where the object already exists).
func (g *GC) addBytes(n uint64) { g.bytesAllocated += n }

// Step advances the collector by up to workBudget units of work, where one
// unit is "one object propagated" or "one object swept". It returns true
// once a full cycle completes and the collector returns to Pause.
func (g *GC) Step(workBudget int) bool {
	if g.stopped {
		return true
	}
	switch g.phase {
	case phasePause:
		if g.bytesAllocated*100 < g.threshold*uint64(g.pause) {
			return true
		}
		g.beginCycle()
		return false
	case phasePropagate:
		for i := 0; i < workBudget; i++ {
			if len(g.gray) == 0 {
				g.atomicStep()
				return false
			}
			g.propagateOne()
		}
		return false
	case phaseAtomic:
		// Non-yielding by design, already executed by atomicStep.
		g.phase = phaseSweep
		g.sweepCur = g.allObjects
		return false
	case phaseSweep:
		for i := 0; i < workBudget; i++ {
			if g.sweepCur == nil {
				g.phase = phaseFinalize
				return false
			}
			g.sweepOne()
		}
		return false
	case phaseFinalize:
		if len(g.toFinalize) == 0 {
			g.endCycle()
			return true
		}
		g.finalizeOne()
		return false
	}
	return true
}

// beginCycle transitions Pause -> Propagate by marking the root set gray.
func (g *GC) beginCycle() {
	g.phase = phasePropagate
	g.gray = g.gray[:0]
	g.grayAgain = g.grayAgain[:0]
	for _, v := range g.state.roots() {
		g.markValue(v)
	}
}

// propagateOne pops one gray object, grays its children, and blackens it.
func (g *GC) propagateOne() {
	n := len(g.gray)
	o := g.gray[n-1]
	g.gray = g.gray[:n-1]
	o.gcMark(g)
	o.gcHead().color = colorBlack
}

// atomicStep performs the non-yielding atomic phase: re-mark roots, drain
// grayAgain, sweep weak-table entries whose weak component died, and queue
// unreachable finalizable objects for resurrection.
func (g *GC) atomicStep() {
	g.phase = phaseAtomic
	for _, v := range g.state.roots() {
		g.markValue(v)
	}
	for len(g.gray) > 0 || len(g.grayAgain) > 0 {
		for len(g.grayAgain) > 0 {
			n := len(g.grayAgain)
			o := g.grayAgain[n-1]
			g.grayAgain = g.grayAgain[:n-1]
			g.markObject(o)
		}
		for len(g.gray) > 0 {
			g.propagateOne()
		}
	}

	g.weakTables.Each(func(item any) bool {
		t := item.(*Table)
		t.clearDeadWeakEntries(g)
		return false
	})

	g.finalizerSet.Each(func(item any) bool {
		o := item.(gcObject)
		h := o.gcHead()
		if g.isWhite(o) && !h.resurrected {
			h.resurrected = true
			g.markObject(o) // resurrect: survive one more cycle
			g.toFinalize = append(g.toFinalize, o)
		}
		return false
	})
	for len(g.gray) > 0 {
		g.propagateOne()
	}
}

// sweepOne frees or flips a single object from the intrusive list.
func (g *GC) sweepOne() {
	o := g.sweepCur
	g.sweepCur = o.gcHead().next
	if g.isWhite(o) {
		g.freeObject(o)
		return
	}
	o.gcHead().color = g.nextWhite() // survivor re-whitened for the next cycle
}

// nextWhite is the shade that will represent "alive, not yet marked" for
// the NEXT cycle; used here so surviving black objects are correctly
// classified once the cycle flips.
func (g *GC) nextWhite() gcColor {
	if g.currentWhite == colorWhite0 {
		return colorWhite1
	}
	return colorWhite0
}

// freeObject detaches string pool entries and otherwise just drops the
// reference, letting Go's own GC reclaim the backing memory.
func (g *GC) freeObject(o gcObject) {
	if s, ok := o.(*StringObject); ok {
		g.state.strings.forget(s)
	}
	g.finalizerSet.Remove(o)
	if t, ok := o.(*Table); ok {
		g.unregisterWeakTable(t)
	}
}

// finalizeOne runs one pending __gc finalizer in a protected environment;
// a finalizer error is captured, not propagated, per §7's GC-error kind.
func (g *GC) finalizeOne() {
	n := len(g.toFinalize)
	o := g.toFinalize[n-1]
	g.toFinalize = g.toFinalize[:n-1]
	g.state.runFinalizer(o)
}

// endCycle flips the current white and returns to Pause, computing the
// next trigger threshold from stepMul.
func (g *GC) endCycle() {
	if g.currentWhite == colorWhite0 {
		g.currentWhite = colorWhite1
	} else {
		g.currentWhite = colorWhite0
	}
	g.phase = phasePause
	g.threshold = g.bytesAllocated * g.stepMul / 100
	if g.threshold < initialGCThreshold {
		g.threshold = initialGCThreshold
	}
	g.bytesAllocated = 0
}

// Collect forces one full cycle to completion regardless of the current
// phase or threshold; used by the embedding API's gc(COLLECT) and by tests
// (§8 S5).
func (g *GC) Collect() {
	if g.phase == phasePause {
		g.beginCycle()
	}
	for !g.Step(1 << 30) {
	}
}

// LiveHeapEstimate scans the live object graph with fjl/memsize to report
// an actual byte estimate of reachable Go memory, backing the embedding
// API's gc("count") operation (spec.md's gc() is otherwise only required
// to report the collector's own allocation counter, but a real estimate is
// strictly more useful to an embedder).
func (g *GC) LiveHeapEstimate() uint64 {
	r := memsize.Scan(g.state.mainThread)
	return uint64(r.Total)
}

// SetPause and SetStepMul implement the gc(SETPAUSE, n) / gc(SETSTEPMUL, n)
// embedding-API operations.
func (g *GC) SetPause(p uint64) uint64 {
	old := g.pause
	g.pause = p
	return old
}

func (g *GC) SetStepMul(m uint64) uint64 {
	old := g.stepMul
	g.stepMul = m
	return old
}

func (g *GC) Stop()    { g.stopped = true }
func (g *GC) Restart() { g.stopped = false }
func (g *GC) Count() uint64 { return g.bytesAllocated }
