// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package analyzer

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/google/capdrop/capset"
	"github.com/google/capdrop/program"
)

// Dump writes the converged sets of every function and block, and the drop
// sets, as human-readable tables.  The output is meant for debugging; its
// format may change.
func Dump(w io.Writer, res *Result) error {
	var (
		p     = res.Program
		caps  = p.Capabilities
		bold  = color.New(color.Bold).SprintFunc()
		red   = color.New(color.FgRed).SprintFunc()
		names = func(s capset.Set) string { return formatSet(caps, s) }
	)
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	if res.Skipped {
		fmt.Fprintf(tw, "skipped: %s is not referenced\n", p.Primitive())
		return tw.Flush()
	}
	fmt.Fprintf(tw, "entry drop: %s\n", red(names(res.EntryDrop)))
	for i := range p.Functions {
		f := &p.Functions[i]
		header := "== function " + f.Name
		switch {
		case f.IsDeclaration():
			header += " (declaration)"
		case res.Opaque(f.ID):
			header += " (opaque)"
		}
		fmt.Fprintln(tw, bold(header))
		fmt.Fprintf(tw, "required in:  %s\n", names(res.RequiredIn(f.ID)))
		fmt.Fprintf(tw, "required out: %s\n", names(res.RequiredOut(f.ID)))
		fmt.Fprintf(tw, "return live:  %s\n", names(res.ReturnLive(f.ID)))
		if f.IsDeclaration() {
			continue
		}
		fmt.Fprintln(tw, "block\tkind\tin\tout\tdrop end\tdrop start")
		for _, id := range f.Blocks {
			b := p.Block(id)
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				blockLabel(b), b.Kind,
				names(res.In(id)), names(res.Out(id)),
				names(res.DropEnd[id]), names(res.DropStart[id]))
		}
	}
	for _, f := range []program.FunctionID{program.CallsExternal, program.CallingExternal} {
		fmt.Fprintln(tw, bold("== "+f.String()))
		fmt.Fprintf(tw, "required in:  %s\n", names(res.RequiredIn(f)))
		fmt.Fprintf(tw, "return live:  %s\n", names(res.ReturnLive(f)))
	}
	if len(res.Diagnostics) > 0 {
		fmt.Fprintln(tw, bold("== diagnostics"))
		for _, err := range res.Diagnostics {
			fmt.Fprintln(tw, err)
		}
	}
	return tw.Flush()
}

func blockLabel(b *program.Block) string {
	if b.Name != "" {
		return b.Name
	}
	return fmt.Sprintf("b%d", int(b.ID))
}

func formatSet(caps *capset.Enumeration, s capset.Set) string {
	if s.IsEmpty() {
		return "-"
	}
	return caps.Format(s)
}
