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

// computeDrops derives the drop maps from converged liveness.
//
// dropEnd[B] is in[B] \ out[B]: live entering B, needed by no successor, so
// it can be revoked before control leaves B.  dropStart[S] accumulates
// out[P] \ in[S] over the edges P->S: still held when arriving from P, but
// not needed by S.  Empty entries are omitted.
func (r *run) computeDrops() (dropEnd, dropStart map[program.BlockID]capset.Set) {
	g, st := r.g, r.st
	dropEnd = make(map[program.BlockID]capset.Set)
	dropStart = make(map[program.BlockID]capset.Set)
	for i := range g.Blocks {
		b := &g.Blocks[i]
		if st.opaque[b.Function] {
			continue
		}
		if d := st.in[i].Difference(st.out[i]); !d.IsEmpty() {
			dropEnd[b.ID] = d
		}
		for _, s := range b.Succs {
			if d := st.out[i].Difference(st.in[s]); !d.IsEmpty() {
				acc := dropStart[s]
				capset.Join(&acc, d)
				dropStart[s] = acc
			}
		}
	}
	return dropEnd, dropStart
}

// entryDrop returns the capabilities the entry function never needs, which
// can be revoked once when the process starts.
func (r *run) entryDrop() capset.Set {
	return r.g.Capabilities.Complement(r.st.requiredIn[r.g.slot(r.g.Entry)])
}
