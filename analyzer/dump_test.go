// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package analyzer

import (
	"bytes"
	"testing"

	"github.com/fatih/color"
	"github.com/google/capdrop/capset"
	"github.com/google/capdrop/program"
	"github.com/sebdah/goldie/v2"
)

func init() {
	color.NoColor = true
}

var abc = capset.MustEnumeration("A", "B", "C")

func TestDump(t *testing.T) {
	b := program.NewBuilder(abc)
	main := b.Func("main")
	helper := b.Func("helper")
	start := b.Raise(main, "start", program.Lit(0, 1)...)
	call := b.Call(main, "call", program.DirectCall(helper))
	done := b.Plain(main, "done")
	b.Uses(done, program.Lit(0)...)
	b.Chain(start, call, done).Return(done)
	h := b.Plain(helper, "h")
	b.Uses(h, program.Lit(1)...)
	b.Return(h)
	res := analyze(t, b.MustBuild(), nil)

	var buf bytes.Buffer
	if err := Dump(&buf, res); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	g := goldie.New(t)
	g.Assert(t, "dump", buf.Bytes())
}

func TestDumpSkipped(t *testing.T) {
	b := program.NewBuilder(abc)
	main := b.Func("main")
	b.Return(b.Plain(main, "start"))
	res := analyze(t, b.MustBuild(), nil)

	var buf bytes.Buffer
	if err := Dump(&buf, res); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	if got, want := buf.String(), "skipped: priv_raise is not referenced\n"; got != want {
		t.Errorf("Dump: got %q, want %q", got, want)
	}
}
