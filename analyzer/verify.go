// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package analyzer

import (
	"errors"
	"fmt"

	"github.com/google/capdrop/program"
)

// Verify checks the result against the properties it must satisfy:
//
//   - applying any transfer function again adds nothing (the sets are a
//     fixed point);
//   - no block drops a capability still live on its exit
//     (dropEnd[B] ∩ out[B] = ∅);
//   - along every edge P->S, whatever P still holds is either needed by S
//     or dropped on entry to S (out[P] ⊆ in[S] ∪ dropStart[S]);
//   - the entry drop contains nothing the entry function requires.
//
// A nil error means every check passed.
func (res *Result) Verify() error {
	r := res.r
	g, st := r.g, r.st
	errs := r.unstable()
	for i := range g.Blocks {
		b := &g.Blocks[i]
		if st.opaque[b.Function] {
			continue
		}
		name := g.BlockName(b.ID)
		if d := res.DropEnd[b.ID].Intersect(st.out[i]); !d.IsEmpty() {
			errs = append(errs, fmt.Errorf("block %s: drops %v at its end, which is live on exit", name, d))
		}
		for _, s := range b.Succs {
			if lost := st.out[i].Difference(st.in[s].Union(res.DropStart[s])); !lost.IsEmpty() {
				errs = append(errs, fmt.Errorf("edge %s -> %s: %v neither live nor dropped", name, g.BlockName(s), lost))
			}
		}
	}
	if e := res.Program.Entry; !res.EntryDrop.Intersect(res.RequiredIn(e)).IsEmpty() {
		errs = append(errs, fmt.Errorf("entry drop overlaps the requirement of %s", g.FunctionName(e)))
	}
	return errors.Join(errs...)
}

// Converged reports whether every set is a fixed point of its transfer
// function, that is, whether running the fixpoint again would change
// nothing.
func (res *Result) Converged() bool {
	return len(res.r.unstable()) == 0
}

// unstable returns an error for each entity whose transfer function would
// add to its current sets.
func (r *run) unstable() []error {
	g, st := r.g, r.st
	var errs []error
	for slot := 0; slot < g.numSlots(); slot++ {
		if st.opaque[slot] {
			continue
		}
		in, out, ret := r.functionTransfer(slot)
		if !in.SubsetOf(st.requiredIn[slot]) || !out.SubsetOf(st.requiredOut[slot]) || !ret.SubsetOf(st.returnLive[slot]) {
			errs = append(errs, fmt.Errorf("function %s: sets are not a fixed point", g.FunctionName(g.function(slot))))
		}
	}
	for i := range g.Blocks {
		if st.opaque[g.Blocks[i].Function] {
			continue
		}
		in, out := r.blockTransfer(program.BlockID(i))
		if !in.SubsetOf(st.in[i]) || !out.SubsetOf(st.out[i]) {
			errs = append(errs, fmt.Errorf("block %s: sets are not a fixed point", g.BlockName(program.BlockID(i))))
		}
	}
	return errs
}
