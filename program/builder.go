// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package program

import (
	"slices"

	"github.com/google/capdrop/capset"
)

// Builder constructs a Program incrementally.  Blocks are added to a
// function in order; the first block added to a function is its entry.
//
//	b := program.NewBuilder(capset.Linux())
//	main := b.Func("main")
//	r := b.Raise(main, "raise", program.Lit(capset.CAP_CHOWN)...)
//	u := b.Plain(main, "use")
//	b.Edge(r, u)
//	b.Return(u)
//	p, err := b.Build()
type Builder struct {
	p        Program
	entrySet bool
}

// NewBuilder returns a Builder for a program over the given capabilities.
func NewBuilder(caps *capset.Enumeration) *Builder {
	return &Builder{p: Program{Capabilities: caps, Entry: -1}}
}

// Func adds a function.  The first function named "main" becomes the entry
// unless Entry is called.
func (b *Builder) Func(name string) FunctionID {
	id := FunctionID(len(b.p.Functions))
	b.p.Functions = append(b.p.Functions, Function{ID: id, Name: name, Exit: NoBlock})
	if !b.entrySet && name == "main" {
		b.p.Entry = id
		b.entrySet = true
	}
	return id
}

// Entry designates the entry function.
func (b *Builder) Entry(f FunctionID) *Builder {
	b.p.Entry = f
	b.entrySet = true
	return b
}

// AddressTaken marks f as callable from outside the program.
func (b *Builder) AddressTaken(f FunctionID) *Builder {
	b.p.Functions[f].AddressTaken = true
	return b
}

// Declare records an external symbol referenced by the program.
func (b *Builder) Declare(sym string) *Builder {
	if !slices.Contains(b.p.Declared, sym) {
		b.p.Declared = append(b.p.Declared, sym)
	}
	return b
}

// RaisePrimitive sets the symbol of the privilege-raise primitive.
func (b *Builder) RaisePrimitive(sym string) *Builder {
	b.p.RaisePrimitive = sym
	return b
}

func (b *Builder) block(f FunctionID, name string, kind BlockKind) BlockID {
	id := BlockID(len(b.p.Blocks))
	b.p.Blocks = append(b.p.Blocks, Block{ID: id, Function: f, Name: name, Kind: kind})
	b.p.Functions[f].Blocks = append(b.p.Functions[f].Blocks, id)
	return id
}

// Plain adds a block that neither raises privilege nor calls.
func (b *Builder) Plain(f FunctionID, name string) BlockID {
	return b.block(f, name, Plain)
}

// Raise adds a block calling the privilege-raise primitive with args.
func (b *Builder) Raise(f FunctionID, name string, args ...Arg) BlockID {
	id := b.block(f, name, PrivilegeRaise)
	b.p.Blocks[id].Raise = args
	b.Declare(b.p.Primitive())
	return id
}

// Call adds a call site block.
func (b *Builder) Call(f FunctionID, name string, target CallTarget) BlockID {
	id := b.block(f, name, CallSite)
	b.p.Blocks[id].Call = target
	return id
}

// Uses adds entries to the local capability-use table of blk.
func (b *Builder) Uses(blk BlockID, args ...Arg) *Builder {
	b.p.Blocks[blk].Uses = append(b.p.Blocks[blk].Uses, args...)
	return b
}

// Size sets the instruction count of blk.
func (b *Builder) Size(blk BlockID, n int) *Builder {
	b.p.Blocks[blk].Size = n
	return b
}

// Edge adds control-flow edges from blk to each of succs, in order.
func (b *Builder) Edge(blk BlockID, succs ...BlockID) *Builder {
	b.p.Blocks[blk].Succs = append(b.p.Blocks[blk].Succs, succs...)
	return b
}

// Chain adds an edge between each consecutive pair of blocks.
func (b *Builder) Chain(blks ...BlockID) *Builder {
	for i := 1; i < len(blks); i++ {
		b.Edge(blks[i-1], blks[i])
	}
	return b
}

// Return makes blk the canonical exit of its function.
func (b *Builder) Return(blk BlockID) *Builder {
	b.p.Blocks[blk].Exit = ExitReturn
	b.p.Functions[b.p.Blocks[blk].Function].Exit = blk
	return b
}

// Unreachable marks blk as ending execution.
func (b *Builder) Unreachable(blk BlockID) *Builder {
	b.p.Blocks[blk].Exit = ExitUnreachable
	return b
}

// Unwind marks blk as leaving its function by unwinding.
func (b *Builder) Unwind(blk BlockID) *Builder {
	b.p.Blocks[blk].Exit = ExitUnwind
	return b
}

// Program returns the program built so far without validating it.
func (b *Builder) Program() *Program {
	p := b.p
	if p.Entry < 0 && len(p.Functions) > 0 {
		p.Entry = 0
	}
	return &p
}

// Build validates and returns the program.
func (b *Builder) Build() (*Program, error) {
	p := b.Program()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// MustBuild is like Build but panics on error.
func (b *Builder) MustBuild() *Program {
	p, err := b.Build()
	if err != nil {
		panic(err)
	}
	return p
}
