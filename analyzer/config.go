// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package analyzer

import (
	"fmt"
	"log/slog"

	"github.com/google/capdrop/capset"
	"github.com/google/capdrop/program"
)

// Config holds configuration for the analyzer.
type Config struct {
	// Strictness determines what happens when a function breaks a
	// structural precondition, such as containing an unwind exit.
	Strictness Strictness
	// MissingRaise determines what happens when the program never references
	// the privilege-raise primitive.
	MissingRaise MissingRaisePolicy
	// Order is the order in which the fixpoint visits pending entities.  The
	// converged result does not depend on it.
	Order Order
	// Seed seeds the random visiting order of OrderRandom.
	Seed uint64
	// Logger receives progress messages.  If Logger is nil, slog.Default()
	// is used.
	Logger *slog.Logger
	// OnUpdate, if non-nil, is called every time the fixpoint adds members to
	// one of its sets.
	OnUpdate func(Update)
}

// Strictness selects how structural errors in a function are handled.
type Strictness int

const (
	// StrictRun aborts the whole run on the first function with a
	// structural error.
	StrictRun Strictness = iota
	// StrictFunction gives up on the offending function only.  It is treated
	// as needing every capability at every point, no drop points are
	// computed inside it, and its errors are reported in Result.Diagnostics.
	StrictFunction
)

func (s Strictness) String() string {
	switch s {
	case StrictRun:
		return "run"
	case StrictFunction:
		return "function"
	}
	return fmt.Sprintf("Strictness(%d)", int(s))
}

// ParseStrictness parses the String form of a Strictness.
func ParseStrictness(s string) (Strictness, error) {
	switch s {
	case "run":
		return StrictRun, nil
	case "function":
		return StrictFunction, nil
	}
	return 0, fmt.Errorf("unknown strictness %q (want run or function)", s)
}

// MissingRaisePolicy selects the behavior for programs that never reference
// the privilege-raise primitive.
type MissingRaisePolicy int

const (
	// MissingRaiseProceed returns an empty Result with Skipped set.
	MissingRaiseProceed MissingRaisePolicy = iota
	// MissingRaiseFail returns an error with code ErrCodeMissingRaise.
	MissingRaiseFail
)

func (m MissingRaisePolicy) String() string {
	switch m {
	case MissingRaiseProceed:
		return "proceed"
	case MissingRaiseFail:
		return "fail"
	}
	return fmt.Sprintf("MissingRaisePolicy(%d)", int(m))
}

// ParseMissingRaisePolicy parses the String form of a MissingRaisePolicy.
func ParseMissingRaisePolicy(s string) (MissingRaisePolicy, error) {
	switch s {
	case "proceed":
		return MissingRaiseProceed, nil
	case "fail":
		return MissingRaiseFail, nil
	}
	return 0, fmt.Errorf("unknown missing-raise policy %q (want proceed or fail)", s)
}

// Order is a visiting order for the fixpoint worklist.
type Order int

const (
	// OrderFIFO visits entities in the order they became pending, starting
	// with blocks from last to first.
	OrderFIFO Order = iota
	// OrderLIFO visits the most recently pending entity first.
	OrderLIFO
	// OrderRandom visits pending entities in a pseudo-random order derived
	// from Config.Seed.
	OrderRandom
)

func (o Order) String() string {
	switch o {
	case OrderFIFO:
		return "fifo"
	case OrderLIFO:
		return "lifo"
	case OrderRandom:
		return "random"
	}
	return fmt.Sprintf("Order(%d)", int(o))
}

// ParseOrder parses the String form of an Order.
func ParseOrder(s string) (Order, error) {
	for _, o := range []Order{OrderFIFO, OrderLIFO, OrderRandom} {
		if o.String() == s {
			return o, nil
		}
	}
	return 0, fmt.Errorf("unknown order %q (want fifo, lifo or random)", s)
}

// Field names one of the sets maintained by the fixpoint.
type Field int

const (
	FieldRequiredIn Field = iota
	FieldRequiredOut
	FieldReturnLive
	FieldIn
	FieldOut
)

func (f Field) String() string {
	switch f {
	case FieldRequiredIn:
		return "requiredIn"
	case FieldRequiredOut:
		return "requiredOut"
	case FieldReturnLive:
		return "returnLive"
	case FieldIn:
		return "in"
	case FieldOut:
		return "out"
	}
	return fmt.Sprintf("Field(%d)", int(f))
}

// Update describes one growth step of a set during the fixpoint.  Block is
// program.NoBlock for the function-level fields.
type Update struct {
	Field    Field
	Function program.FunctionID
	Block    program.BlockID
	Old, New capset.Set
}

func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}
