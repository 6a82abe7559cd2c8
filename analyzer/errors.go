// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package analyzer

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes analysis errors.
type ErrorCode string

const (
	// ErrCodeUnwindExit indicates a block leaving its function by unwinding.
	ErrCodeUnwindExit ErrorCode = "UNWIND_EXIT"
	// ErrCodeOutOfRange indicates a capability number outside the
	// enumeration.
	ErrCodeOutOfRange ErrorCode = "CAPABILITY_OUT_OF_RANGE"
	// ErrCodeNonConstant indicates a capability argument that is not a
	// compile-time constant.
	ErrCodeNonConstant ErrorCode = "NON_CONSTANT_ARGUMENT"
	// ErrCodeMissingRaise indicates a program that never references the
	// privilege-raise primitive.
	ErrCodeMissingRaise ErrorCode = "MISSING_RAISE_PRIMITIVE"
	// ErrCodeInvalidStructure indicates a program that fails validation.
	ErrCodeInvalidStructure ErrorCode = "INVALID_STRUCTURE"
)

// Error is an error detected while analyzing a program.  Function and Block
// name the offending location when there is one.
type Error struct {
	Code     ErrorCode
	Function string
	Block    string
	Message  string
	// Err is the underlying error, if any.
	Err error
}

func (e *Error) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg += ": " + e.Err.Error()
		}
	}
	switch {
	case e.Block != "":
		return fmt.Sprintf("%s: %s (function=%s, block=%s)", e.Code, msg, e.Function, e.Block)
	case e.Function != "":
		return fmt.Sprintf("%s: %s (function=%s)", e.Code, msg, e.Function)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// IsStructural reports whether err is a structural error: a program or
// function the analysis cannot handle.
func IsStructural(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code != ErrCodeMissingRaise
	}
	return false
}

// IsMissingRaise reports whether err reports a program without the
// privilege-raise primitive.
func IsMissingRaise(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCodeMissingRaise
	}
	return false
}

// HasCode reports whether err is or wraps an *Error with the given code.
func HasCode(err error, code ErrorCode) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
