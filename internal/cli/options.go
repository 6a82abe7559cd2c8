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

// analysisOptions holds the flags shared by every command that runs the
// analysis.
type analysisOptions struct {
	Strict         string
	MissingRaise   string
	Order          string
	Seed           uint64
	Verify         bool
	RaisePrimitive string
	Declare        []string
}

func (o *analysisOptions) addFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&o.Strict, "strict", "run", "what a structural error aborts (run|function)")
	f.StringVar(&o.MissingRaise, "missing-raise", "proceed",
		"what to do if the program never references the raise primitive (proceed|fail)")
	f.StringVar(&o.Order, "order", "fifo", "worklist order (fifo|lifo|random)")
	f.Uint64Var(&o.Seed, "seed", 0, "seed for --order=random")
	f.BoolVar(&o.Verify, "verify", false, "check the result before reporting it")
	f.StringVar(&o.RaisePrimitive, "raise-primitive", "", "override the symbol of the raise primitive")
	f.StringSliceVar(&o.Declare, "declare", nil, "further external symbols the program references")
}

// run loads the program in the named file and analyzes it.
func (o *analysisOptions) run(root *RootOptions, cmd *cobra.Command, name string) (*analyzer.Result, error) {
	config := &analyzer.Config{
		Seed:   o.Seed,
		Logger: root.logger(cmd.ErrOrStderr()),
	}
	var err error
	if config.Strictness, err = analyzer.ParseStrictness(o.Strict); err != nil {
		return nil, usageError("invalid --strict", err)
	}
	if config.MissingRaise, err = analyzer.ParseMissingRaisePolicy(o.MissingRaise); err != nil {
		return nil, usageError("invalid --missing-raise", err)
	}
	if config.Order, err = analyzer.ParseOrder(o.Order); err != nil {
		return nil, usageError("invalid --order", err)
	}

	p, err := analyzer.LoadProgram(name, analyzer.LoadConfig{
		RaisePrimitive: o.RaisePrimitive,
		Declared:       o.Declare,
	})
	if err != nil {
		return nil, usageError("loading program", err)
	}
	res, err := analyzer.Analyze(p, config)
	if err != nil {
		return nil, failure("analysis failed", err)
	}
	if o.Verify {
		if err := res.Verify(); err != nil {
			return nil, failure("verification failed", err)
		}
	}
	return res, nil
}
