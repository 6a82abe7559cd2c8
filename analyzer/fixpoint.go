// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package analyzer

import (
	"github.com/google/capdrop/capset"
	"github.com/google/capdrop/program"
)

// state holds every set computed by one run.  Function-level sets are
// indexed by slot (see indexedGraph), block-level sets by block id.
type state struct {
	// requiredIn is everything a function may need from its entry onwards,
	// including its callees.  requiredOut is the part contributed by its
	// callees.
	requiredIn, requiredOut []capset.Set
	// returnLive is what the callers of a function may still need after it
	// returns.
	returnLive []capset.Set
	// in and out are the live capabilities on entry to and exit from each
	// block.
	in, out []capset.Set

	localFunc  []capset.Set
	localBlock []capset.Set
	opaque     []bool
}

func newState(g *indexedGraph) *state {
	nslots, nblocks := g.numSlots(), len(g.Blocks)
	return &state{
		requiredIn:  make([]capset.Set, nslots),
		requiredOut: make([]capset.Set, nslots),
		returnLive:  make([]capset.Set, nslots),
		in:          make([]capset.Set, nblocks),
		out:         make([]capset.Set, nblocks),
		localFunc:   make([]capset.Set, nslots),
		localBlock:  make([]capset.Set, nblocks),
		opaque:      make([]bool, nslots),
	}
}

// The worklist holds function slots and blocks in one id space: slots come
// first, and block b is entity numSlots()+b.
func (r *run) blockEntity(b program.BlockID) int { return r.g.numSlots() + int(b) }

// calleeRequired returns what the callees of a call site may need: the
// requirements of every known target, and those of CallsExternal if the
// call may reach code outside its known targets.  Completeness is decided
// per call site.
func (r *run) calleeRequired(b *program.Block) capset.Set {
	var s capset.Set
	for _, t := range b.Call.Targets() {
		s = s.Union(r.st.requiredIn[r.g.slot(t)])
	}
	if b.Call.ReachesExternal() {
		s = s.Union(r.st.requiredIn[r.g.callsExternalSlot()])
	}
	return s
}

// functionTransfer computes the function-level sets of a slot from the
// current state.
func (r *run) functionTransfer(slot int) (in, out, ret capset.Set) {
	g, st := r.g, r.st
	switch slot {
	case g.callingExternalSlot():
		// Code outside the program may call any externally callable function.
		for _, f := range g.external {
			out = out.Union(st.requiredIn[f])
		}
	case g.callsExternalSlot():
		// An unknown callee may call back into the program.
		out = st.requiredIn[g.callingExternalSlot()]
	default:
		for _, b := range g.sites[slot] {
			out = out.Union(r.calleeRequired(g.Block(b)))
		}
	}
	in = out.Union(st.localFunc[slot])
	for _, b := range g.callers[slot] {
		ret = ret.Union(st.out[b])
	}
	if g.isExternal[slot] {
		ret = ret.Union(st.returnLive[g.callsExternalSlot()])
	}
	return in, out, ret
}

// blockTransfer computes in and out of a block from the current state.
func (r *run) blockTransfer(id program.BlockID) (in, out capset.Set) {
	g, st := r.g, r.st
	b := g.Block(id)
	for _, s := range b.Succs {
		out = out.Union(st.in[s])
	}
	if g.Functions[b.Function].Exit == id {
		out = out.Union(st.returnLive[b.Function])
	}
	in = out.Union(st.localBlock[id])
	if b.Kind == program.CallSite {
		in = in.Union(r.calleeRequired(b))
	}
	return in, out
}

// solve runs the combined call-graph and control-flow fixpoint to
// convergence.  Every set only grows, and each can grow at most N times, so
// the loop terminates.
func (r *run) solve() {
	g, st := r.g, r.st
	w := newWorklist(r.cfg.Order, r.cfg.Seed)
	for i := len(g.Blocks) - 1; i >= 0; i-- {
		if !st.opaque[g.Blocks[i].Function] {
			w.push(r.blockEntity(program.BlockID(i)))
		}
	}
	for slot := g.numSlots() - 1; slot >= 0; slot-- {
		w.push(slot)
	}
	if r.cfg.Order == OrderRandom {
		// Shuffle the initial order as well.
		r.shuffle(w)
	}
	for {
		e, ok := w.pop()
		if !ok {
			break
		}
		r.stats.Visits++
		if e < g.numSlots() {
			r.visitFunction(w, e)
		} else {
			r.visitBlock(w, program.BlockID(e-g.numSlots()))
		}
	}
}

func (r *run) shuffle(w *worklist) {
	w.rng.Shuffle(len(w.items), func(i, j int) {
		w.items[i], w.items[j] = w.items[j], w.items[i]
	})
}

func (r *run) visitFunction(w *worklist, slot int) {
	g, st := r.g, r.st
	in, out, ret := r.functionTransfer(slot)
	f := g.function(slot)
	r.join(&st.requiredOut[slot], out, FieldRequiredOut, f, program.NoBlock)
	if r.join(&st.requiredIn[slot], in, FieldRequiredIn, f, program.NoBlock) {
		// Callers see the new requirement at their call sites.
		for _, b := range g.callers[slot] {
			if !st.opaque[g.Block(b).Function] {
				w.push(r.blockEntity(b))
			}
			w.push(g.slot(g.Block(b).Function))
		}
		switch {
		case g.isExternal[slot]:
			w.push(g.callingExternalSlot())
		case slot == g.callingExternalSlot():
			w.push(g.callsExternalSlot())
		}
	}
	if r.join(&st.returnLive[slot], ret, FieldReturnLive, f, program.NoBlock) {
		if exit := g.exitBlock(slot); exit != program.NoBlock && !st.opaque[slot] {
			w.push(r.blockEntity(exit))
		}
		if slot == g.callsExternalSlot() {
			for _, e := range g.external {
				w.push(e)
			}
		}
	}
}

func (r *run) visitBlock(w *worklist, id program.BlockID) {
	g, st := r.g, r.st
	in, out := r.blockTransfer(id)
	b := g.Block(id)
	if r.join(&st.out[id], out, FieldOut, b.Function, id) && b.Kind == program.CallSite {
		// What is live after the call is live at the callees' exits.
		for _, slot := range g.calleeSlots(b) {
			w.push(slot)
		}
	}
	if r.join(&st.in[id], in, FieldIn, b.Function, id) {
		for _, p := range g.preds[id] {
			w.push(r.blockEntity(p))
		}
	}
}

// join adds src to *dst, reporting the growth to Config.OnUpdate.
func (r *run) join(dst *capset.Set, src capset.Set, field Field, f program.FunctionID, b program.BlockID) bool {
	old := *dst
	if !capset.Join(dst, src) {
		return false
	}
	r.stats.Updates++
	if r.cfg.OnUpdate != nil {
		r.cfg.OnUpdate(Update{Field: field, Function: f, Block: b, Old: old, New: *dst})
	}
	return true
}
