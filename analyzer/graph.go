// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package analyzer

import (
	"slices"

	"github.com/google/capdrop/program"
)

// indexedGraph contains an input Program, along with structures indexing the
// call graph and control-flow graphs within it.
//
// Function-level state is stored per "slot".  Slots 0..n-1 are the program's
// functions; slot n is the CallsExternal sentinel and slot n+1 is
// CallingExternal.
type indexedGraph struct {
	*program.Program

	nfuncs int

	// preds lists the control-flow predecessors of each block.
	preds [][]program.BlockID

	// sites lists the call site blocks owned by each function slot.
	sites [][]program.BlockID

	// callers lists, per function slot, the call site blocks that may
	// transfer control to it.  For the CallsExternal slot these are the
	// unresolved and incompletely resolved call sites.
	callers [][]program.BlockID

	// external lists the functions callable from outside the program: those
	// with their address taken, except the entry function.  external[i] is a
	// slot.
	external   []int
	isExternal []bool

	// indirect and complete count indirect call sites, and those among them
	// whose resolution is complete.
	indirect, complete int
}

func indexGraph(p *program.Program) *indexedGraph {
	n := len(p.Functions)
	g := &indexedGraph{
		Program:    p,
		nfuncs:     n,
		preds:      make([][]program.BlockID, len(p.Blocks)),
		sites:      make([][]program.BlockID, n+2),
		callers:    make([][]program.BlockID, n+2),
		isExternal: make([]bool, n+2),
	}
	for i := range p.Blocks {
		b := &p.Blocks[i]
		for _, s := range b.Succs {
			g.preds[s] = append(g.preds[s], b.ID)
		}
		if b.Kind != program.CallSite {
			continue
		}
		g.sites[b.Function] = append(g.sites[b.Function], b.ID)
		for _, slot := range g.calleeSlots(b) {
			g.callers[slot] = append(g.callers[slot], b.ID)
		}
		if b.Call.Kind != program.Direct {
			g.indirect++
			if !b.Call.ReachesExternal() {
				g.complete++
			}
		}
	}
	for _, ps := range g.preds {
		slices.Sort(ps)
	}
	for i := range p.Functions {
		f := &p.Functions[i]
		if f.AddressTaken && f.ID != p.Entry {
			g.external = append(g.external, i)
			g.isExternal[i] = true
		}
	}
	return g
}

func (g *indexedGraph) callsExternalSlot() int   { return g.nfuncs }
func (g *indexedGraph) callingExternalSlot() int { return g.nfuncs + 1 }
func (g *indexedGraph) numSlots() int            { return g.nfuncs + 2 }

// slot returns the state slot of a function id, including the sentinels.
func (g *indexedGraph) slot(f program.FunctionID) int {
	switch f {
	case program.CallsExternal:
		return g.callsExternalSlot()
	case program.CallingExternal:
		return g.callingExternalSlot()
	}
	return int(f)
}

// function returns the function id of a state slot.
func (g *indexedGraph) function(slot int) program.FunctionID {
	switch slot {
	case g.callsExternalSlot():
		return program.CallsExternal
	case g.callingExternalSlot():
		return program.CallingExternal
	}
	return program.FunctionID(slot)
}

// calleeSlots returns the sorted, distinct slots of the functions a call
// site may reach, with the CallsExternal slot standing for callees outside
// the known targets.
func (g *indexedGraph) calleeSlots(b *program.Block) []int {
	var slots []int
	for _, t := range b.Call.Targets() {
		slots = append(slots, g.slot(t))
	}
	if b.Call.ReachesExternal() {
		slots = append(slots, g.callsExternalSlot())
	}
	slices.Sort(slots)
	return slices.Compact(slots)
}

// exitBlock returns the canonical exit block of a function slot, or
// program.NoBlock if it has none.
func (g *indexedGraph) exitBlock(slot int) program.BlockID {
	if slot >= g.nfuncs {
		return program.NoBlock
	}
	return g.Functions[slot].Exit
}
