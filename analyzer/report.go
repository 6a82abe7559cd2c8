// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package analyzer

import (
	"slices"

	"github.com/google/capdrop/capset"
	"github.com/google/capdrop/program"
)

// SetCount is a distinct live set and the number of blocks entered with it.
type SetCount struct {
	Set    capset.Set
	Blocks int
}

// UniqueSets returns the distinct sets live on entry to the blocks of
// non-opaque functions, most frequent first.
func (res *Result) UniqueSets() []SetCount {
	r := res.r
	counts := make(map[capset.Set]int)
	for i := range r.g.Blocks {
		if r.st.opaque[r.g.Blocks[i].Function] {
			continue
		}
		counts[r.st.in[i]]++
	}
	out := make([]SetCount, 0, len(counts))
	for s, n := range counts {
		out = append(out, SetCount{Set: s, Blocks: n})
	}
	slices.SortFunc(out, func(a, b SetCount) int {
		if a.Blocks != b.Blocks {
			return b.Blocks - a.Blocks
		}
		return compareSets(a.Set, b.Set)
	})
	return out
}

// Exposure is the amount of code that runs while a given set of
// capabilities is live.
type Exposure struct {
	Set capset.Set
	// Blocks is the number of reachable blocks entered with Set live, and
	// Instructions the sum of their sizes.  A block of unknown size counts
	// as one instruction.
	Blocks, Instructions int
}

// Exposure returns, for each distinct live set, how much reachable code
// executes with that set live, largest first.  Code is reachable from the
// entry function and from every function callable from outside the program.
// Calls are followed to all their possible targets; calls to unknown targets
// may reach any function callable from outside the program.
func (res *Result) Exposure() []Exposure {
	r := res.r
	byset := make(map[capset.Set]*Exposure)
	for _, id := range searchFromEntry(r.g).order {
		s := r.st.in[id]
		e := byset[s]
		if e == nil {
			e = &Exposure{Set: s}
			byset[s] = e
		}
		e.Blocks++
		if n := r.g.Blocks[id].Size; n > 0 {
			e.Instructions += n
		} else {
			e.Instructions++
		}
	}
	out := make([]Exposure, 0, len(byset))
	for _, e := range byset {
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b Exposure) int {
		if a.Instructions != b.Instructions {
			return b.Instructions - a.Instructions
		}
		return compareSets(a.Set, b.Set)
	})
	return out
}

// PathTo returns a chain of blocks through which control may reach b: each
// block is followed by a successor or by the entry block of a function it
// calls.  The chain starts at the entry of the program when b is reachable
// from it, and otherwise at the entry of a function callable from outside
// the program.  It returns nil if b is unreachable.
func (res *Result) PathTo(b program.BlockID) []program.BlockID {
	return searchFromEntry(res.r.g).path(b)
}
