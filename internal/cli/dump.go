// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package cli

import (
	"github.com/google/capdrop/analyzer"
	"github.com/spf13/cobra"
)

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &analysisOptions{}

	cmd := &cobra.Command{
		Use:   "dump <program.yaml>",
		Short: "Print the converged liveness tables of every function",
		Long: `Analyze a program and print, for every function and block, the converged
requirement and liveness sets along with the drop sets.  The output is meant
for debugging and has no stable format; --format is ignored.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.run(rootOpts, cmd, args[0])
			if err != nil {
				return outputError(rootOpts, cmd.OutOrStdout(), err)
			}
			return analyzer.Dump(cmd.OutOrStdout(), res)
		},
	}
	opts.addFlags(cmd)

	return cmd
}
