// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/google/capdrop/analyzer"
	"github.com/google/capdrop/capset"
	"github.com/google/capdrop/program"
	"github.com/spf13/cobra"
)

// AnalyzeOutput is the JSON payload of the analyze command.
type AnalyzeOutput struct {
	Skipped     bool             `json:"skipped,omitempty"`
	EntryDrop   []string         `json:"entry_drop"`
	Drops       []BlockDrops     `json:"drops"`
	Stats       analyzer.Stats   `json:"stats"`
	Diagnostics []string         `json:"diagnostics,omitempty"`
	Exposure    []ExposureOutput `json:"exposure,omitempty"`
}

// BlockDrops lists the capabilities revoked at the start and end of a block.
type BlockDrops struct {
	Block string   `json:"block"`
	Start []string `json:"start,omitempty"`
	End   []string `json:"end,omitempty"`
}

// ExposureOutput is one entry of the exposure report.
type ExposureOutput struct {
	Live         []string `json:"live"`
	Blocks       int      `json:"blocks"`
	Instructions int      `json:"instructions"`
}

// NewAnalyzeCommand creates the analyze command.
func NewAnalyzeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &analysisOptions{}
	var exposure bool

	cmd := &cobra.Command{
		Use:   "analyze <program.yaml>",
		Short: "Compute where capabilities can be revoked",
		Long: `Analyze a program and report the capabilities to revoke at process start,
and at the start and end of each block.  Use "-" to read the program from
stdin.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.run(rootOpts, cmd, args[0])
			if err != nil {
				return outputError(rootOpts, cmd.OutOrStdout(), err)
			}
			out := analyzeOutput(res, exposure)
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: out, RunID: res.RunID.String()})
			}
			return writeAnalyzeText(cmd.OutOrStdout(), res, out)
		},
	}
	opts.addFlags(cmd)
	cmd.Flags().BoolVar(&exposure, "exposure", false, "report how much code runs under each live set")

	return cmd
}

func names(caps *capset.Enumeration, s capset.Set) []string {
	out := []string{}
	for k := range s.All() {
		out = append(out, caps.Name(k))
	}
	return out
}

func analyzeOutput(res *analyzer.Result, exposure bool) *AnalyzeOutput {
	p := res.Program
	caps := p.Capabilities
	out := &AnalyzeOutput{
		Skipped:   res.Skipped,
		EntryDrop: names(caps, res.EntryDrop),
		Drops:     []BlockDrops{},
		Stats:     res.Stats,
	}
	for i := range p.Blocks {
		id := program.BlockID(i)
		start, end := res.DropStart[id], res.DropEnd[id]
		if start.IsEmpty() && end.IsEmpty() {
			continue
		}
		d := BlockDrops{Block: p.BlockName(id)}
		if !start.IsEmpty() {
			d.Start = names(caps, start)
		}
		if !end.IsEmpty() {
			d.End = names(caps, end)
		}
		out.Drops = append(out.Drops, d)
	}
	for _, err := range res.Diagnostics {
		out.Diagnostics = append(out.Diagnostics, err.Error())
	}
	if exposure && !res.Skipped {
		for _, e := range res.Exposure() {
			out.Exposure = append(out.Exposure, ExposureOutput{
				Live:         names(caps, e.Set),
				Blocks:       e.Blocks,
				Instructions: e.Instructions,
			})
		}
	}
	return out
}

func writeAnalyzeText(w io.Writer, res *analyzer.Result, out *AnalyzeOutput) error {
	if out.Skipped {
		_, err := fmt.Fprintf(w, "skipped: %s is not referenced\n", res.Program.Primitive())
		return err
	}
	caps := res.Program.Capabilities
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintf(tw, "entry drop: %s\n", orDash(caps.Format(res.EntryDrop)))
	if len(out.Drops) > 0 {
		fmt.Fprintln(tw, "block\tdrop start\tdrop end")
		for i := range res.Program.Blocks {
			id := program.BlockID(i)
			start, end := res.DropStart[id], res.DropEnd[id]
			if start.IsEmpty() && end.IsEmpty() {
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", res.Program.BlockName(id),
				orDash(caps.Format(start)), orDash(caps.Format(end)))
		}
	}
	if len(out.Exposure) > 0 {
		fmt.Fprintln(tw, "instructions\tblocks\tlive")
		for _, e := range res.Exposure() {
			fmt.Fprintf(tw, "%d\t%d\t%s\n", e.Instructions, e.Blocks, orDash(caps.Format(e.Set)))
		}
	}
	for _, d := range out.Diagnostics {
		fmt.Fprintf(tw, "diagnostic: %s\n", d)
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
