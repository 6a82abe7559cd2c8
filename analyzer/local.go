// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package analyzer

import (
	"errors"
	"fmt"

	"github.com/google/capdrop/capset"
	"github.com/google/capdrop/program"
)

// extractLocal fills in the capabilities each block and function uses
// directly: the arguments of privilege raises and the entries of the local
// use table.  Functions with structural errors are either reported as fatal
// or made opaque, depending on the configured strictness.
func (r *run) extractLocal() error {
	caps := r.g.Capabilities
	for i := range r.g.Functions {
		f := &r.g.Functions[i]
		var errs []error
		for _, id := range f.Blocks {
			b := r.g.Block(id)
			if b.Exit == program.ExitUnwind {
				errs = append(errs, r.blockError(b, ErrCodeUnwindExit, "unwind exits are not supported", nil))
			}
			var local capset.Set
			args := b.Uses
			if b.Kind == program.PrivilegeRaise {
				args = append(append([]program.Arg(nil), b.Raise...), b.Uses...)
			}
			for j, a := range args {
				if !a.Const {
					errs = append(errs, r.blockError(b, ErrCodeNonConstant,
						fmt.Sprintf("capability argument %d is not a constant", j), nil))
					continue
				}
				s, err := caps.Set(a.Value)
				if err != nil {
					errs = append(errs, r.blockError(b, ErrCodeOutOfRange,
						fmt.Sprintf("capability argument %d", j), err))
					continue
				}
				local = local.Union(s)
			}
			r.st.localBlock[id] = local
			r.st.localFunc[i] = r.st.localFunc[i].Union(local)
		}
		if len(errs) == 0 {
			continue
		}
		if r.cfg.Strictness == StrictRun {
			return errors.Join(errs...)
		}
		r.log.Warn("function made opaque after structural errors",
			"function", f.Name, "errors", len(errs))
		r.diagnostics = append(r.diagnostics, errs...)
		r.makeOpaque(i)
	}
	return nil
}

// makeOpaque marks a function as needing every capability throughout.  Its
// blocks are never visited by the fixpoint.
func (r *run) makeOpaque(slot int) {
	all := r.g.Capabilities.All()
	r.st.opaque[slot] = true
	r.st.localFunc[slot] = all
	for _, id := range r.g.Functions[slot].Blocks {
		r.st.in[id] = all
		r.st.out[id] = all
	}
	r.stats.Opaque++
}

func (r *run) blockError(b *program.Block, code ErrorCode, msg string, err error) *Error {
	return &Error{
		Code:     code,
		Function: r.g.FunctionName(b.Function),
		Block:    r.g.BlockName(b.ID),
		Message:  msg,
		Err:      err,
	}
}
