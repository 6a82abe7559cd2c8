// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package program

import (
	"errors"
	"fmt"
)

// StructureError reports a Program that breaks a structural precondition of
// the analysis.
type StructureError struct {
	Function string
	Block    string
	Message  string
}

func (e *StructureError) Error() string {
	switch {
	case e.Block != "":
		return fmt.Sprintf("invalid program: block %s: %s", e.Block, e.Message)
	case e.Function != "":
		return fmt.Sprintf("invalid program: function %s: %s", e.Function, e.Message)
	}
	return "invalid program: " + e.Message
}

// Validate checks that p is well formed: the entry function has a body, ids
// are dense and consistent, every edge stays inside one function, every call target exists, and each
// function has at most one returning block, which is its canonical exit.
//
// Validate does not check the capability arguments of blocks; those are
// checked when the analyzer extracts local capability uses.
func (p *Program) Validate() error {
	if p.Capabilities == nil {
		return &StructureError{Message: "no capability enumeration"}
	}
	validFunc := func(id FunctionID) bool { return id >= 0 && int(id) < len(p.Functions) }
	validBlock := func(id BlockID) bool { return id >= 0 && int(id) < len(p.Blocks) }
	if !validFunc(p.Entry) {
		return &StructureError{Message: fmt.Sprintf("entry function %v does not exist", p.Entry)}
	}
	if p.Functions[p.Entry].IsDeclaration() {
		return &StructureError{Function: p.FunctionName(p.Entry), Message: "is the entry function but has no blocks"}
	}
	owner := make([]FunctionID, len(p.Blocks))
	for i := range owner {
		owner[i] = -1
	}
	var errs []error
	for i := range p.Functions {
		f := &p.Functions[i]
		fail := func(format string, args ...any) {
			errs = append(errs, &StructureError{Function: p.FunctionName(FunctionID(i)), Message: fmt.Sprintf(format, args...)})
		}
		if f.ID != FunctionID(i) {
			fail("has id %v at index %d", f.ID, i)
			continue
		}
		for _, b := range f.Blocks {
			if !validBlock(b) {
				fail("lists nonexistent block b%d", int(b))
				continue
			}
			if owner[b] != -1 {
				fail("lists block %s, already owned by %s", p.BlockName(b), p.FunctionName(owner[b]))
				continue
			}
			owner[b] = f.ID
		}
		if f.Exit != NoBlock {
			if !validBlock(f.Exit) || owner[f.Exit] != f.ID {
				fail("exit block b%d is not one of its blocks", int(f.Exit))
			}
		}
		if f.IsDeclaration() && f.Exit != NoBlock {
			fail("is a declaration but has an exit block")
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	for i := range p.Blocks {
		b := &p.Blocks[i]
		fail := func(format string, args ...any) {
			errs = append(errs, &StructureError{Block: p.BlockName(BlockID(i)), Message: fmt.Sprintf(format, args...)})
		}
		if b.ID != BlockID(i) {
			fail("has id b%d at index %d", int(b.ID), i)
			continue
		}
		if owner[i] == -1 || owner[i] != b.Function {
			fail("is not listed by its function %v", b.Function)
			continue
		}
		for _, s := range b.Succs {
			if !validBlock(s) {
				fail("has nonexistent successor b%d", int(s))
			} else if owner[s] != b.Function {
				fail("has successor %s in another function", p.BlockName(s))
			}
		}
		if len(b.Succs) > 0 && b.Exit != ExitNone {
			fail("has successors and exit kind %v", b.Exit)
		}
		if len(b.Succs) == 0 && b.Exit == ExitNone {
			fail("has no successors and no exit kind")
		}
		if b.Exit == ExitReturn && p.Functions[b.Function].Exit != b.ID {
			fail("returns but is not the canonical exit of %s", p.FunctionName(b.Function))
		}
		if p.Functions[b.Function].Exit == b.ID && b.Exit != ExitReturn {
			fail("is the canonical exit but does not return")
		}
		switch b.Kind {
		case Plain:
			if len(b.Raise) > 0 {
				fail("is plain but has raise arguments")
			}
		case PrivilegeRaise:
			if len(b.Raise) == 0 {
				fail("raises no capability")
			}
		case CallSite:
			if len(b.Raise) > 0 {
				fail("is a call site but has raise arguments")
			}
			switch b.Call.Kind {
			case Direct:
				if !validFunc(b.Call.Callee) {
					fail("calls nonexistent function %v", b.Call.Callee)
				}
			case IndirectResolved:
				for _, c := range b.Call.Candidates {
					if !validFunc(c) {
						fail("may call nonexistent function %v", c)
					}
				}
			case IndirectUnresolved:
			default:
				fail("has unknown call kind %v", b.Call.Kind)
			}
		default:
			fail("has unknown kind %v", b.Kind)
		}
	}
	return errors.Join(errs...)
}
