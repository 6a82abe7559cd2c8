// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package analyzer

import (
	"fmt"
	"os"

	"github.com/google/capdrop/program"
)

// LoadConfig specifies overrides applied to a program loaded from a file.
type LoadConfig struct {
	// RaisePrimitive, if non-empty, replaces the symbol of the
	// privilege-raise primitive named by the file.
	RaisePrimitive string
	// Declared lists further external symbols the program is taken to
	// reference.
	Declared []string
}

// LoadProgram reads the YAML form of a program from the named file, or from
// stdin if name is "-", and applies lcfg to it.  The program is validated.
func LoadProgram(name string, lcfg LoadConfig) (*program.Program, error) {
	var (
		p   *program.Program
		err error
	)
	if name == "-" {
		if p, err = program.Decode(os.Stdin); err != nil {
			err = fmt.Errorf("stdin: %w", err)
		}
	} else {
		p, err = program.Load(name)
	}
	if err != nil {
		return nil, err
	}
	if lcfg.RaisePrimitive != "" {
		p.RaisePrimitive = lcfg.RaisePrimitive
	}
	p.Declared = append(p.Declared, lcfg.Declared...)
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return p, nil
}
