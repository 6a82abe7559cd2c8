// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package cli

import (
	"fmt"

	"github.com/google/capdrop/plan"
	"github.com/spf13/cobra"
)

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &analysisOptions{}
	var (
		only      string
		primitive string
	)

	cmd := &cobra.Command{
		Use:   "plan <program.yaml>",
		Short: "List the revocation calls to insert into a program",
		Long: `Analyze a program and list the calls to the revocation primitive a rewriter
should insert, with their count-prefixed argument lists.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := opts.run(rootOpts, cmd, args[0])
			if err != nil {
				return outputError(rootOpts, cmd.OutOrStdout(), err)
			}
			planOpts := []plan.Option{plan.WithPrimitive(primitive)}
			if cmd.Flags().Changed("only") {
				s, err := res.Program.Capabilities.Parse(only)
				if err != nil {
					return outputError(rootOpts, cmd.OutOrStdout(), usageError("invalid --only", err))
				}
				planOpts = append(planOpts, plan.Only(s))
			}
			pl := plan.New(res, planOpts...)
			if rootOpts.Format == "json" {
				js, err := pl.MarshalJSON()
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(js))
				return err
			}
			return pl.WriteText(cmd.OutOrStdout())
		},
	}
	opts.addFlags(cmd)
	cmd.Flags().StringVar(&only, "only", "",
		"comma-separated capabilities to revoke; prefix every name with - to exclude them instead")
	cmd.Flags().StringVar(&primitive, "primitive", plan.DefaultPrimitive, "symbol of the revocation primitive")

	return cmd
}
