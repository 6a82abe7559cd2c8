// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

// Package program defines the structural input of the capability liveness
// analysis: functions, their control-flow graphs, call targets and the
// per-block capability uses.
//
// Functions and blocks are identified by dense integer ids indexing
// Program.Functions and Program.Blocks.  A Program is treated as read-only
// once it has been handed to the analyzer.
package program

import (
	"fmt"
	"slices"

	"github.com/google/capdrop/capset"
)

// FunctionID identifies a function.  Non-negative ids index
// Program.Functions; negative ids denote the external sentinels.
type FunctionID int

// BlockID identifies a block by its index in Program.Blocks.
type BlockID int

const (
	// CallsExternal stands for code outside the analyzed program that is
	// called from inside it: unresolved indirect calls and foreign callees.
	CallsExternal FunctionID = -1
	// CallingExternal stands for callers outside the analyzed program, such
	// as a runtime invoking a registered callback.
	CallingExternal FunctionID = -2

	// NoBlock is the Exit of a function that never returns normally.
	NoBlock BlockID = -1
)

// DefaultRaisePrimitive is the symbol of the privilege-raise primitive used
// when Program.RaisePrimitive is empty.
const DefaultRaisePrimitive = "priv_raise"

func (id FunctionID) String() string {
	switch id {
	case CallsExternal:
		return "<calls-external>"
	case CallingExternal:
		return "<calling-external>"
	}
	return fmt.Sprintf("f%d", int(id))
}

// IsSentinel reports whether id is one of the external sentinels.
func (id FunctionID) IsSentinel() bool { return id == CallsExternal || id == CallingExternal }

// BlockKind classifies what a block does.  The block splitting done before
// the analysis guarantees that a privilege raise or a call is alone in its
// block.
type BlockKind int

const (
	Plain BlockKind = iota
	PrivilegeRaise
	CallSite
)

func (k BlockKind) String() string {
	switch k {
	case Plain:
		return "plain"
	case PrivilegeRaise:
		return "raise"
	case CallSite:
		return "call"
	}
	return fmt.Sprintf("BlockKind(%d)", int(k))
}

// ExitKind describes how control leaves a block that has no successors.
type ExitKind int

const (
	// ExitNone is the kind of a block that continues to its successors.
	ExitNone ExitKind = iota
	// ExitReturn returns to the caller.  Only the canonical exit block of a
	// function may return.
	ExitReturn
	// ExitUnreachable ends execution, as after a call to abort.
	ExitUnreachable
	// ExitUnwind leaves the function by unwinding.  The analysis has no
	// transfer function for it and rejects functions containing one.
	ExitUnwind
)

func (k ExitKind) String() string {
	switch k {
	case ExitNone:
		return "none"
	case ExitReturn:
		return "return"
	case ExitUnreachable:
		return "unreachable"
	case ExitUnwind:
		return "unwind"
	}
	return fmt.Sprintf("ExitKind(%d)", int(k))
}

// CallKind distinguishes the forms of CallTarget.
type CallKind int

const (
	Direct CallKind = iota
	IndirectResolved
	IndirectUnresolved
)

func (k CallKind) String() string {
	switch k {
	case Direct:
		return "direct"
	case IndirectResolved:
		return "resolved"
	case IndirectUnresolved:
		return "unresolved"
	}
	return fmt.Sprintf("CallKind(%d)", int(k))
}

// CallTarget is the callee of a call site.
type CallTarget struct {
	Kind CallKind
	// Callee is the target of a Direct call.
	Callee FunctionID
	// Candidates are the possible targets of an IndirectResolved call.
	Candidates []FunctionID
	// Complete is set when Candidates is known to contain every possible
	// target.  An incomplete resolution may be missing members.
	Complete bool
}

// DirectCall returns the target of a direct call to f.
func DirectCall(f FunctionID) CallTarget { return CallTarget{Kind: Direct, Callee: f} }

// ResolvedCall returns the target of an indirect call whose possible callees
// were resolved to fs.
func ResolvedCall(complete bool, fs ...FunctionID) CallTarget {
	return CallTarget{Kind: IndirectResolved, Candidates: fs, Complete: complete}
}

// UnresolvedCall returns the target of an indirect call with unknown callees.
func UnresolvedCall() CallTarget { return CallTarget{Kind: IndirectUnresolved} }

// Targets returns the functions in the analyzed program the call may reach.
func (c CallTarget) Targets() []FunctionID {
	switch c.Kind {
	case Direct:
		return []FunctionID{c.Callee}
	case IndirectResolved:
		return c.Candidates
	}
	return nil
}

// ReachesExternal reports whether the call may reach code outside its known
// targets: it is unresolved, or its resolution is incomplete.
func (c CallTarget) ReachesExternal() bool {
	switch c.Kind {
	case IndirectUnresolved:
		return true
	case IndirectResolved:
		return !c.Complete
	}
	return false
}

// Arg is an argument of a privilege raise, or an entry of the local
// capability-use table.  Const is false when the value is not a
// compile-time constant, in which case Value is meaningless.
type Arg struct {
	Value int64
	Const bool
}

// Lit returns constant arguments for the given capability kinds.
func Lit(kinds ...int64) []Arg {
	args := make([]Arg, len(kinds))
	for i, k := range kinds {
		args[i] = Arg{Value: k, Const: true}
	}
	return args
}

// Block is a node of a function's control-flow graph.
type Block struct {
	ID       BlockID
	Function FunctionID
	// Name is used in diagnostics only.
	Name  string
	Succs []BlockID
	Kind  BlockKind
	// Raise holds the arguments of a PrivilegeRaise block.
	Raise []Arg
	// Call is the target of a CallSite block.
	Call CallTarget
	// Uses lists capabilities exercised by the block itself, beyond a raise.
	Uses []Arg
	// Exit tells how a block without successors ends.
	Exit ExitKind
	// Size is the number of instructions in the block, if known.
	Size int
}

// Function is a function of the program.  A function without blocks is a
// declaration, for example of a foreign function.
type Function struct {
	ID     FunctionID
	Name   string
	Blocks []BlockID
	// Exit is the canonical exit block, or NoBlock if the function never
	// returns normally.
	Exit BlockID
	// AddressTaken marks functions that may be called from outside the
	// analyzed program.
	AddressTaken bool
}

// IsDeclaration reports whether f has no body.
func (f *Function) IsDeclaration() bool { return len(f.Blocks) == 0 }

// EntryBlock returns the first block of f, or NoBlock for a declaration.
func (f *Function) EntryBlock() BlockID {
	if len(f.Blocks) == 0 {
		return NoBlock
	}
	return f.Blocks[0]
}

// Program is the complete structural input of one analysis run.
type Program struct {
	Capabilities *capset.Enumeration
	Functions    []Function
	Blocks       []Block
	// Entry is the function where execution of the program starts.
	Entry FunctionID
	// RaisePrimitive is the symbol of the privilege-raise primitive.  Empty
	// means DefaultRaisePrimitive.
	RaisePrimitive string
	// Declared lists external symbols the program references.
	Declared []string
}

// Function returns the function with the given id, which must be valid.
func (p *Program) Function(id FunctionID) *Function { return &p.Functions[id] }

// Block returns the block with the given id, which must be valid.
func (p *Program) Block(id BlockID) *Block { return &p.Blocks[id] }

// FunctionName returns a printable name for id, including the sentinels.
func (p *Program) FunctionName(id FunctionID) string {
	if id < 0 || int(id) >= len(p.Functions) {
		return id.String()
	}
	if n := p.Functions[id].Name; n != "" {
		return n
	}
	return id.String()
}

// BlockName returns a printable name for a block, qualified by its function.
func (p *Program) BlockName(id BlockID) string {
	if id < 0 || int(id) >= len(p.Blocks) {
		return fmt.Sprintf("b%d", int(id))
	}
	b := &p.Blocks[id]
	name := b.Name
	if name == "" {
		name = fmt.Sprintf("b%d", int(id))
	}
	return p.FunctionName(b.Function) + "." + name
}

// FunctionByName returns the id of the named function.
func (p *Program) FunctionByName(name string) (FunctionID, bool) {
	for i := range p.Functions {
		if p.Functions[i].Name == name {
			return FunctionID(i), true
		}
	}
	return 0, false
}

// Primitive returns the symbol of the privilege-raise primitive.
func (p *Program) Primitive() string {
	if p.RaisePrimitive == "" {
		return DefaultRaisePrimitive
	}
	return p.RaisePrimitive
}

// HasRaisePrimitive reports whether the program references the
// privilege-raise primitive: it contains a PrivilegeRaise block, or the
// primitive is a declared symbol or a function.
func (p *Program) HasRaisePrimitive() bool {
	for i := range p.Blocks {
		if p.Blocks[i].Kind == PrivilegeRaise {
			return true
		}
	}
	sym := p.Primitive()
	if slices.Contains(p.Declared, sym) {
		return true
	}
	_, ok := p.FunctionByName(sym)
	return ok
}
