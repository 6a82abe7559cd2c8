// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package analyzer

import (
	"testing"

	"github.com/google/capdrop/capset"
	"github.com/google/capdrop/program"
	"github.com/google/go-cmp/cmp"
)

func TestExposure(t *testing.T) {
	b := program.NewBuilder(linux)
	main := b.Func("main")
	helper := b.Func("helper")
	unused := b.Func("unused")
	r := b.Raise(main, "raise", program.Lit(capset.CAP_CHOWN)...)
	c := b.Call(main, "call", program.DirectCall(helper))
	u := b.Plain(main, "use")
	b.Uses(u, program.Lit(capset.CAP_CHOWN)...)
	b.Chain(r, c, u).Return(u)
	b.Size(r, 3).Size(c, 1)
	h := b.Plain(helper, "body")
	b.Size(h, 5).Return(h)
	x := b.Plain(unused, "body")
	b.Size(x, 100).Return(x)
	res := analyze(t, b.MustBuild(), nil)

	chown := caps(capset.CAP_CHOWN)
	want := []Exposure{{Set: chown, Blocks: 4, Instructions: 10}}
	if diff := cmp.Diff(want, res.Exposure(), setComparer); diff != "" {
		t.Errorf("Exposure: diff %s", diff)
	}
	wantSets := []SetCount{{Set: chown, Blocks: 4}, {Set: capset.Set{}, Blocks: 1}}
	if diff := cmp.Diff(wantSets, res.UniqueSets(), setComparer); diff != "" {
		t.Errorf("UniqueSets: diff %s", diff)
	}
	if diff := cmp.Diff([]program.BlockID{r, c, h}, res.PathTo(h)); diff != "" {
		t.Errorf("PathTo(helper.body): diff %s", diff)
	}
	if got := res.PathTo(x); got != nil {
		t.Errorf("PathTo(unused.body): got %v, want nil", got)
	}
}

func TestExposureThroughUnknownCalls(t *testing.T) {
	b := program.NewBuilder(linux)
	main := b.Func("main")
	callback := b.Func("callback")
	b.AddressTaken(callback)
	c := b.Call(main, "call", program.UnresolvedCall())
	b.Return(c)
	r := b.Raise(callback, "raise", program.Lit(capset.CAP_KILL)...)
	b.Size(r, 2).Return(r)
	res := analyze(t, b.MustBuild(), nil)

	want := []Exposure{{Set: caps(capset.CAP_KILL), Blocks: 2, Instructions: 3}}
	if diff := cmp.Diff(want, res.Exposure(), setComparer); diff != "" {
		t.Errorf("Exposure: diff %s", diff)
	}
	if diff := cmp.Diff([]program.BlockID{c, r}, res.PathTo(r)); diff != "" {
		t.Errorf("PathTo(callback.raise): diff %s", diff)
	}
}

func TestExposureOfExternalCallbacks(t *testing.T) {
	b := program.NewBuilder(linux)
	main := b.Func("main")
	callback := b.Func("on_signal")
	b.AddressTaken(callback)
	r := b.Raise(main, "raise", program.Lit(capset.CAP_CHOWN)...)
	u := b.Plain(main, "use")
	b.Uses(u, program.Lit(capset.CAP_CHOWN)...)
	b.Edge(r, u).Return(u)
	b.Size(r, 2)
	h := b.Plain(callback, "body")
	b.Uses(h, program.Lit(capset.CAP_KILL)...)
	b.Size(h, 4).Return(h)
	res := analyze(t, b.MustBuild(), nil)

	want := []Exposure{
		{Set: caps(capset.CAP_KILL), Blocks: 1, Instructions: 4},
		{Set: caps(capset.CAP_CHOWN), Blocks: 2, Instructions: 3},
	}
	if diff := cmp.Diff(want, res.Exposure(), setComparer); diff != "" {
		t.Errorf("Exposure: diff %s", diff)
	}
	if diff := cmp.Diff([]program.BlockID{h}, res.PathTo(h)); diff != "" {
		t.Errorf("PathTo(on_signal.body): diff %s", diff)
	}
	if diff := cmp.Diff([]program.BlockID{r, u}, res.PathTo(u)); diff != "" {
		t.Errorf("PathTo(main.use): diff %s", diff)
	}
}
