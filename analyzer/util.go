// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package analyzer

import (
	"slices"
	"strings"

	"github.com/google/capdrop/capset"
	"github.com/google/capdrop/program"
	"golang.org/x/tools/container/intsets"
)

// bfsState is the state of a BFS search over blocks, and can be used to
// trace paths from a root of the search to any block reached.
type bfsState struct {
	seen intsets.Sparse
	// from is indexed by block id and holds the block through which the
	// search first reached a block: a control-flow predecessor, or the call
	// site entering its function.  It is program.NoBlock for roots, and only
	// meaningful for blocks in seen.
	from []program.BlockID
	// order lists the reached blocks in the order they were reached.
	order []program.BlockID
}

// searchFromEntry visits every block reachable from the entry function, then
// every block reachable from functions callable from outside the program
// that the first pass missed.  Calls are followed to all their possible
// targets, and calls to unknown targets to every externally callable
// function.
func searchFromEntry(g *indexedGraph) *bfsState {
	st := &bfsState{from: make([]program.BlockID, len(g.Blocks))}
	visit := func(b, from program.BlockID) {
		if b != program.NoBlock && st.seen.Insert(int(b)) {
			st.from[b] = from
			st.order = append(st.order, b)
		}
	}
	enter := func(slot int, from program.BlockID) {
		if slot < g.nfuncs {
			visit(g.Functions[slot].EntryBlock(), from)
		}
	}
	next := 0
	drain := func() {
		for ; next < len(st.order); next++ {
			b := g.Block(st.order[next])
			for _, s := range b.Succs {
				visit(s, b.ID)
			}
			if b.Kind != program.CallSite {
				continue
			}
			for _, slot := range g.calleeSlots(b) {
				if slot != g.callsExternalSlot() {
					enter(slot, b.ID)
					continue
				}
				for _, e := range g.external {
					enter(e, b.ID)
				}
			}
		}
	}
	enter(g.slot(g.Entry), program.NoBlock)
	drain()
	for _, e := range g.external {
		enter(e, program.NoBlock)
	}
	drain()
	return st
}

// path returns the blocks leading from a root of the search to b, inclusive,
// or nil if b was not reached.
func (st *bfsState) path(b program.BlockID) []program.BlockID {
	if b == program.NoBlock || !st.seen.Has(int(b)) {
		return nil
	}
	var p []program.BlockID
	for ; b != program.NoBlock; b = st.from[b] {
		p = append(p, b)
	}
	slices.Reverse(p)
	return p
}

// compareSets orders sets by size, then by their members.
func compareSets(a, b capset.Set) int {
	if x, y := a.Count(), b.Count(); x != y {
		return x - y
	}
	return strings.Compare(a.String(), b.String())
}
