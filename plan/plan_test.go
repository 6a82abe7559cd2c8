// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package plan

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/google/capdrop/analyzer"
	"github.com/google/capdrop/capset"
	"github.com/google/capdrop/program"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/testing/protocmp"
	"google.golang.org/protobuf/types/known/structpb"
)

var linux = capset.Linux()

func analyze(t *testing.T, p *program.Program) *analyzer.Result {
	t.Helper()
	res, err := analyzer.Analyze(p, &analyzer.Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	return res
}

// raiseThenUse raises CAP_CHOWN and then uses it before returning.
func raiseThenUse() (p *program.Program, raise, use program.BlockID) {
	b := program.NewBuilder(linux)
	main := b.Func("main")
	raise = b.Raise(main, "raise", program.Lit(capset.CAP_CHOWN)...)
	use = b.Plain(main, "use")
	b.Uses(use, program.Lit(capset.CAP_CHOWN)...)
	b.Edge(raise, use).Return(use)
	return b.MustBuild(), raise, use
}

var setComparer = cmp.Comparer(func(a, b capset.Set) bool { return a == b })

func TestNew(t *testing.T) {
	p, raise, use := raiseThenUse()
	res := analyze(t, p)
	chown := linux.MustSet(capset.CAP_CHOWN)

	got := New(res)
	want := []Insertion{
		{Position: ProcessStart, Function: 0, Block: raise, Caps: linux.Complement(chown)},
		{Position: BlockEnd, Function: 0, Block: use, Caps: chown},
	}
	if got.Primitive != DefaultPrimitive {
		t.Errorf("Primitive: got %q, want %q", got.Primitive, DefaultPrimitive)
	}
	if diff := cmp.Diff(want, got.Insertions, setComparer); diff != "" {
		t.Errorf("New: diff %s", diff)
	}

	got = New(res, Only(linux.MustSet(capset.CAP_CHOWN, capset.CAP_KILL)))
	want = []Insertion{
		{Position: ProcessStart, Function: 0, Block: raise, Caps: linux.MustSet(capset.CAP_KILL)},
		{Position: BlockEnd, Function: 0, Block: use, Caps: chown},
	}
	if diff := cmp.Diff(want, got.Insertions, setComparer); diff != "" {
		t.Errorf("New(Only): diff %s", diff)
	}

	got = New(res, Only(linux.MustSet(capset.CAP_SETUID)))
	if len(got.Insertions) != 1 || got.Insertions[0].Position != ProcessStart {
		t.Errorf("New(Only(CAP_SETUID)): got %v, want a single process-start insertion", got.Insertions)
	}
}

func TestOrder(t *testing.T) {
	b := program.NewBuilder(linux)
	main := b.Func("main")
	r := b.Raise(main, "raise", program.Lit(capset.CAP_SYS_BOOT)...)
	ok := b.Plain(main, "ok")
	fail := b.Plain(main, "abort")
	b.Uses(fail, program.Lit(capset.CAP_SYS_BOOT)...)
	b.Edge(r, ok, fail).Return(ok).Unreachable(fail)
	res := analyze(t, b.MustBuild())

	var got []Position
	var blocks []program.BlockID
	for _, in := range New(res).Insertions {
		got = append(got, in.Position)
		blocks = append(blocks, in.Block)
	}
	if diff := cmp.Diff([]Position{ProcessStart, BlockStart, BlockEnd}, got); diff != "" {
		t.Errorf("positions: diff %s", diff)
	}
	if diff := cmp.Diff([]program.BlockID{r, ok, fail}, blocks); diff != "" {
		t.Errorf("blocks: diff %s", diff)
	}
}

func TestCompareInsertions(t *testing.T) {
	ins := []Insertion{
		{Position: BlockEnd, Block: 2},
		{Position: BlockStart, Block: 5},
		{Position: BlockEnd, Block: 0},
		{Position: ProcessStart, Block: 7},
		{Position: BlockStart, Block: 2},
	}
	slices.SortFunc(ins, compareInsertions)
	want := []Insertion{
		{Position: ProcessStart, Block: 7},
		{Position: BlockEnd, Block: 0},
		{Position: BlockStart, Block: 2},
		{Position: BlockEnd, Block: 2},
		{Position: BlockStart, Block: 5},
	}
	if diff := cmp.Diff(want, ins, setComparer); diff != "" {
		t.Errorf("sorted insertions: diff %s", diff)
	}
}

func TestSkipped(t *testing.T) {
	b := program.NewBuilder(linux)
	main := b.Func("main")
	b.Return(b.Plain(main, "start"))
	res := analyze(t, b.MustBuild())
	if got := New(res).Insertions; len(got) != 0 {
		t.Errorf("New: got %v, want no insertions", got)
	}
}

func TestArgs(t *testing.T) {
	for _, test := range []struct {
		caps capset.Set
		want []int64
	}{
		{linux.MustSet(capset.CAP_CHOWN), []int64{1, 0}},
		{linux.MustSet(capset.CAP_SYS_ADMIN, capset.CAP_CHOWN, capset.CAP_FOWNER), []int64{3, 0, 3, 21}},
		{linux.MustSet(capset.CAP_CHECKPOINT_RESTORE), []int64{1, 40}},
	} {
		got := Insertion{Caps: test.caps}.Args()
		if diff := cmp.Diff(test.want, got); diff != "" {
			t.Errorf("Args(%v): got %v, want %v; diff %s", test.caps, got, test.want, diff)
		}
	}
}

type recorder struct {
	calls []string
	fail  error
}

func (r *recorder) InsertCall(at Insertion, sym string, args []int64) error {
	if r.fail != nil && len(r.calls) == 1 {
		return r.fail
	}
	r.calls = append(r.calls, fmt.Sprintf("%v %s %v", at.Position, sym, args))
	return nil
}

func TestApply(t *testing.T) {
	p, _, _ := raiseThenUse()
	pl := New(analyze(t, p), WithPrimitive("drop_caps"))

	var rw recorder
	if err := pl.Apply(&rw); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	want := []string{"process-start drop_caps [40 1 2 3 4 5 6 7 8 9 10 11 12 13 14 15 16 17 18 19 20 21 22 23 24 25 26 27 28 29 30 31 32 33 34 35 36 37 38 39 40]", "block-end drop_caps [1 0]"}
	if diff := cmp.Diff(want, rw.calls); diff != "" {
		t.Errorf("Apply: diff %s", diff)
	}

	errFull := errors.New("no room")
	rw = recorder{fail: errFull}
	if err := pl.Apply(&rw); !errors.Is(err, errFull) {
		t.Errorf("Apply: got err %v, want %v", err, errFull)
	}
}

func TestProto(t *testing.T) {
	p, _, _ := raiseThenUse()
	pl := New(analyze(t, p), Only(linux.MustSet(capset.CAP_CHOWN, capset.CAP_KILL)))
	got, err := pl.Proto()
	if err != nil {
		t.Fatalf("Proto: %v", err)
	}
	want, err := structpb.NewStruct(map[string]any{
		"primitive": "priv_remove",
		"insertions": []any{
			map[string]any{
				"position":     "process-start",
				"function":     "main",
				"block":        "main.raise",
				"capabilities": []any{"CAP_KILL"},
				"args":         []any{1, 5},
			},
			map[string]any{
				"position":     "block-end",
				"function":     "main",
				"block":        "main.use",
				"capabilities": []any{"CAP_CHOWN"},
				"args":         []any{1, 0},
			},
		},
	})
	if err != nil {
		t.Fatalf("structpb.NewStruct: %v", err)
	}
	if diff := cmp.Diff(want, got, protocmp.Transform()); diff != "" {
		t.Errorf("Proto: diff %s", diff)
	}

	js, err := pl.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	var decoded structpb.Struct
	if err := protojson.Unmarshal(js, &decoded); err != nil {
		t.Fatalf("protojson.Unmarshal: %v", err)
	}
	if diff := cmp.Diff(want, &decoded, protocmp.Transform()); diff != "" {
		t.Errorf("MarshalJSON: diff %s", diff)
	}
}

func TestWriteText(t *testing.T) {
	p, _, _ := raiseThenUse()
	pl := New(analyze(t, p), WithPrimitive("drop_caps"), Only(linux.MustSet(capset.CAP_CHOWN, capset.CAP_KILL)))
	var buf bytes.Buffer
	if err := pl.WriteText(&buf); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	want := "process-start  main.raise  drop_caps(1, 5)  # CAP_KILL\n" +
		"block-end      main.use    drop_caps(1, 0)  # CAP_CHOWN\n"
	if got := buf.String(); got != want {
		t.Errorf("WriteText: got\n%s\nwant\n%s", got, want)
	}
}
