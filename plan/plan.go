// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

// Package plan turns the drop sets computed by the analyzer into a list of
// revocation calls to insert into a program.  It performs no rewriting
// itself; a Rewriter does.
package plan

import (
	"cmp"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/google/capdrop/analyzer"
	"github.com/google/capdrop/capset"
	"github.com/google/capdrop/program"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// DefaultPrimitive is the symbol of the revocation primitive.
const DefaultPrimitive = "priv_remove"

// Position says where in a block a revocation call goes.
type Position int

const (
	// ProcessStart is the start of the entry function's first block,
	// before anything else runs.
	ProcessStart Position = iota
	// BlockStart is the start of a block, before its first instruction.
	BlockStart
	// BlockEnd is the end of a block, just before its terminator.
	BlockEnd
)

func (p Position) String() string {
	switch p {
	case ProcessStart:
		return "process-start"
	case BlockStart:
		return "block-start"
	case BlockEnd:
		return "block-end"
	}
	return fmt.Sprintf("Position(%d)", int(p))
}

// Insertion is one revocation call.
type Insertion struct {
	Position Position
	Function program.FunctionID
	Block    program.BlockID
	// Caps is the set of capabilities to revoke.  It is never empty.
	Caps capset.Set
}

// Args returns the arguments of the revocation call: the number of
// capabilities, followed by their kinds in increasing order.
func (in Insertion) Args() []int64 {
	args := []int64{int64(in.Caps.Count())}
	for k := range in.Caps.All() {
		args = append(args, int64(k))
	}
	return args
}

// Plan is the list of revocation calls for one analyzed program.
type Plan struct {
	Program *program.Program
	// Primitive is the symbol of the revocation primitive.
	Primitive string
	// Insertions are ordered by position: the process start first, then by
	// block, with a block's start before its end.
	Insertions []Insertion
}

type options struct {
	primitive string
	only      *capset.Set
}

// An Option configures New.
type Option func(*options)

// WithPrimitive sets the symbol of the revocation primitive.
func WithPrimitive(sym string) Option {
	return func(o *options) { o.primitive = sym }
}

// Only restricts the plan to revoking members of s.  Insertions left with
// nothing to revoke are omitted.
func Only(s capset.Set) Option {
	return func(o *options) { o.only = &s }
}

// New returns the plan for an analysis result.
func New(res *analyzer.Result, opts ...Option) *Plan {
	o := options{primitive: DefaultPrimitive}
	for _, opt := range opts {
		opt(&o)
	}
	p := &Plan{Program: res.Program, Primitive: o.primitive}
	add := func(pos Position, b program.BlockID, s capset.Set) {
		if o.only != nil {
			s = s.Intersect(*o.only)
		}
		if s.IsEmpty() {
			return
		}
		p.Insertions = append(p.Insertions, Insertion{
			Position: pos,
			Function: res.Program.Block(b).Function,
			Block:    b,
			Caps:     s,
		})
	}
	entry := res.Program.Entry
	if b := res.Program.Function(entry).EntryBlock(); b != program.NoBlock {
		add(ProcessStart, b, res.EntryDrop)
	}
	for b, s := range res.DropStart {
		add(BlockStart, b, s)
	}
	for b, s := range res.DropEnd {
		add(BlockEnd, b, s)
	}
	slices.SortFunc(p.Insertions, compareInsertions)
	return p
}

// compareInsertions orders the process-start drop first, then the others by
// block, with a block's start before its end.  ProcessStart is the lowest
// Position, so comparing positions puts it first.
func compareInsertions(a, b Insertion) int {
	if a.Position == ProcessStart || b.Position == ProcessStart {
		if c := cmp.Compare(a.Position, b.Position); c != 0 {
			return c
		}
	}
	if c := cmp.Compare(a.Block, b.Block); c != 0 {
		return c
	}
	return cmp.Compare(a.Position, b.Position)
}

// Rewriter inserts calls into the code of a program.
type Rewriter interface {
	// InsertCall inserts a call to sym with the given arguments at the
	// location described by at.
	InsertCall(at Insertion, sym string, args []int64) error
}

// Apply hands every insertion of the plan to rw, in order.  It stops at the
// first error.
func (p *Plan) Apply(rw Rewriter) error {
	for _, in := range p.Insertions {
		if err := rw.InsertCall(in, p.Primitive, in.Args()); err != nil {
			return fmt.Errorf("inserting %s at %s of %s: %w",
				p.Primitive, in.Position, p.Program.BlockName(in.Block), err)
		}
	}
	return nil
}

// Proto returns the plan as a structpb.Struct of the form
//
//	{"primitive": "priv_remove",
//	 "insertions": [{"position": "block-end", "function": "main",
//	                 "block": "main.use", "capabilities": ["CAP_CHOWN"],
//	                 "args": [1, 0]}]}
func (p *Plan) Proto() (*structpb.Struct, error) {
	caps := p.Program.Capabilities
	ins := make([]any, 0, len(p.Insertions))
	for _, in := range p.Insertions {
		var names, args []any
		for k := range in.Caps.All() {
			names = append(names, caps.Name(k))
		}
		for _, a := range in.Args() {
			args = append(args, a)
		}
		ins = append(ins, map[string]any{
			"position":     in.Position.String(),
			"function":     p.Program.FunctionName(in.Function),
			"block":        p.Program.BlockName(in.Block),
			"capabilities": names,
			"args":         args,
		})
	}
	return structpb.NewStruct(map[string]any{
		"primitive":  p.Primitive,
		"insertions": ins,
	})
}

// MarshalJSON encodes the plan in the form returned by Proto.
func (p *Plan) MarshalJSON() ([]byte, error) {
	s, err := p.Proto()
	if err != nil {
		return nil, err
	}
	return protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(s)
}

// WriteText writes the plan as a table of calls, one per line.
func (p *Plan) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	for _, in := range p.Insertions {
		fmt.Fprintf(tw, "%s\t%s\t%s(%s)\t# %s\n",
			in.Position, p.Program.BlockName(in.Block), p.Primitive,
			formatArgs(in.Args()), p.Program.Capabilities.Format(in.Caps))
	}
	return tw.Flush()
}

func formatArgs(args []int64) string {
	var s string
	for i, a := range args {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprint(a)
	}
	return s
}
