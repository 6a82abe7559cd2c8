// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

// Command capdrop computes where a program can revoke its capabilities.
package main

import (
	"fmt"
	"os"

	"github.com/google/capdrop/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "capdrop:", err)
		os.Exit(cli.ExitStatus(err))
	}
}
