// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

// Package analyzer computes, for every point of a program, the capabilities
// that may still be needed from that point on, and derives the points where
// capabilities can be revoked.
//
// The analysis is a single fixpoint over two coupled problems.  Over the
// call graph it computes requiredIn[F], everything F and its callees may
// need.  Over each control-flow graph it computes a backward may-liveness
// in[B] and out[B], where a call site needs its callees' requiredIn and a
// function's exit block needs whatever its callers need after the call
// returns.  Calls whose targets are not fully known go through the
// CallsExternal sentinel, which may reach any function callable from outside
// the program.
package analyzer

import (
	"errors"
	"log/slog"

	"github.com/google/capdrop/capset"
	"github.com/google/capdrop/program"
	"github.com/google/uuid"
)

// run is the context of one analysis.  It is never shared between runs.
type run struct {
	id  uuid.UUID
	cfg *Config
	log *slog.Logger
	g   *indexedGraph
	st  *state

	stats       Stats
	diagnostics []error
}

// Stats describes the work done by a run.
type Stats struct {
	// Functions and Blocks count the program's functions and blocks.
	Functions, Blocks int
	// Visits is the number of entities the fixpoint visited, and Updates the
	// number of times a set grew.
	Visits, Updates int
	// IndirectCalls counts indirect call sites, and CompleteCalls those whose
	// resolution is complete.
	IndirectCalls, CompleteCalls int
	// ExternalCalls counts call sites that may reach code outside their
	// known targets.
	ExternalCalls int
	// Opaque counts functions given up on after structural errors.
	Opaque int
}

// Result is the converged outcome of an analysis.  It is read-only.
type Result struct {
	// Program is the analyzed program.
	Program *program.Program
	// RunID identifies the run in logs.
	RunID uuid.UUID
	// Skipped is set when the program never references the privilege-raise
	// primitive and the configuration chose to proceed.  All sets are empty.
	Skipped bool

	// DropEnd maps blocks to the capabilities to revoke before leaving them.
	DropEnd map[program.BlockID]capset.Set
	// DropStart maps blocks to the capabilities to revoke on entering them.
	DropStart map[program.BlockID]capset.Set
	// EntryDrop is the set of capabilities never needed anywhere, to revoke
	// when the process starts.
	EntryDrop capset.Set

	// Diagnostics holds the errors of functions made opaque under
	// StrictFunction.
	Diagnostics []error
	Stats       Stats

	r *run
}

// Analyze runs the analysis on p.  If config is nil, the zero Config is used.
//
// Analyze returns an error, and no Result, if p fails validation, if a
// function breaks a structural precondition under StrictRun, or if p never
// references the privilege-raise primitive under MissingRaiseFail.  The
// returned errors are *Error values.
func Analyze(p *program.Program, config *Config) (*Result, error) {
	if config == nil {
		config = &Config{}
	}
	r := &run{id: uuid.New(), cfg: config}
	r.log = config.logger().With("run", r.id.String())

	if err := p.Validate(); err != nil {
		return nil, &Error{Code: ErrCodeInvalidStructure, Message: "program fails validation", Err: err}
	}
	r.g = indexGraph(p)
	r.st = newState(r.g)
	r.stats.Functions = len(p.Functions)
	r.stats.Blocks = len(p.Blocks)
	r.stats.IndirectCalls = r.g.indirect
	r.stats.CompleteCalls = r.g.complete
	r.stats.ExternalCalls = len(r.g.callers[r.g.callsExternalSlot()])

	if !p.HasRaisePrimitive() {
		if config.MissingRaise == MissingRaiseFail {
			return nil, &Error{
				Code:    ErrCodeMissingRaise,
				Message: "program does not reference " + p.Primitive(),
			}
		}
		r.log.Info("privilege-raise primitive not referenced, nothing to analyze",
			"primitive", p.Primitive())
		return r.result(true), nil
	}

	r.log.Debug("extracting local capability uses",
		"functions", r.stats.Functions, "blocks", r.stats.Blocks)
	if err := r.extractLocal(); err != nil {
		return nil, err
	}
	if r.stats.IndirectCalls > 0 {
		r.log.Debug("indirect call resolution",
			"indirect", r.stats.IndirectCalls,
			"complete", r.stats.CompleteCalls,
			"ratio", float64(r.stats.CompleteCalls)/float64(r.stats.IndirectCalls))
	}
	if r.stats.ExternalCalls > 0 {
		r.log.Warn("call sites with unknown targets use conservative requirements",
			"sites", r.stats.ExternalCalls)
	}

	r.solve()
	res := r.result(false)
	r.log.Info("analysis converged",
		"visits", r.stats.Visits,
		"updates", r.stats.Updates,
		"drop_end", len(res.DropEnd),
		"drop_start", len(res.DropStart),
		"entry_drop", res.EntryDrop.Count())
	return res, nil
}

func (r *run) result(skipped bool) *Result {
	res := &Result{
		Program:     r.g.Program,
		RunID:       r.id,
		Skipped:     skipped,
		Diagnostics: r.diagnostics,
		r:           r,
	}
	if skipped {
		res.DropEnd = map[program.BlockID]capset.Set{}
		res.DropStart = map[program.BlockID]capset.Set{}
	} else {
		res.DropEnd, res.DropStart = r.computeDrops()
		res.EntryDrop = r.entryDrop()
	}
	res.Stats = r.stats
	return res
}

// RequiredIn returns everything f and its callees may need from f's entry
// onwards.  f may be one of the sentinels.
func (res *Result) RequiredIn(f program.FunctionID) capset.Set {
	return res.r.st.requiredIn[res.r.g.slot(f)]
}

// RequiredOut returns the part of RequiredIn(f) contributed by f's callees.
func (res *Result) RequiredOut(f program.FunctionID) capset.Set {
	return res.r.st.requiredOut[res.r.g.slot(f)]
}

// ReturnLive returns what the callers of f may still need after f returns.
func (res *Result) ReturnLive(f program.FunctionID) capset.Set {
	return res.r.st.returnLive[res.r.g.slot(f)]
}

// In returns the capabilities live on entry to block b.
func (res *Result) In(b program.BlockID) capset.Set { return res.r.st.in[b] }

// Out returns the capabilities live on exit from block b.
func (res *Result) Out(b program.BlockID) capset.Set { return res.r.st.out[b] }

// Local returns the capabilities block b uses itself.
func (res *Result) Local(b program.BlockID) capset.Set { return res.r.st.localBlock[b] }

// Opaque reports whether f was given up on after structural errors.
func (res *Result) Opaque(f program.FunctionID) bool { return res.r.st.opaque[res.r.g.slot(f)] }

// Err returns the diagnostics of the run joined into one error, or nil.
func (res *Result) Err() error { return errors.Join(res.Diagnostics...) }
