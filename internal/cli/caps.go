// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/google/capdrop/capset"
	"github.com/spf13/cobra"
)

// CapabilityOutput is one entry of the caps command's JSON payload.
type CapabilityOutput struct {
	Kind int    `json:"kind"`
	Name string `json:"name"`
}

// NewCapsCommand creates the caps command.
func NewCapsCommand(rootOpts *RootOptions) *cobra.Command {
	var list string

	cmd := &cobra.Command{
		Use:   "caps",
		Short: "List the Linux capabilities and their numbers",
		Long: `List the Linux capability enumeration used by programs declaring
"capabilities: linux".  With --list, only the capabilities a list selects are
shown, as the --only flag of the plan command would select them.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			caps := capset.Linux()
			s, err := caps.Parse(list)
			if err != nil {
				return outputError(rootOpts, cmd.OutOrStdout(), usageError("invalid --list", err))
			}
			out := []CapabilityOutput{}
			for _, k := range s.Kinds() {
				out = append(out, CapabilityOutput{Kind: k, Name: caps.Name(k)})
			}
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), CLIResponse{Status: "ok", Data: out})
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 8, 2, ' ', 0)
			for _, c := range out {
				fmt.Fprintf(tw, "%d\t%s\n", c.Kind, c.Name)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&list, "list", "", "comma-separated capability names, optionally all prefixed with -")

	return cmd
}
