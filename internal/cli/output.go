// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package cli

import (
	"encoding/json"
	"errors"
	"io"

	"github.com/google/capdrop/analyzer"
)

// Exit statuses of the capdrop command.
const (
	// StatusFailure reports a program the analysis rejected, a result that
	// failed verification, or any other failure while running a command.
	StatusFailure = 1
	// StatusUsage reports bad flags or an unreadable program.
	StatusUsage = 2
)

// statusError ends a command with an exit status.  code is reported in JSON
// output: the analyzer error code when there is one.
type statusError struct {
	status int
	code   string
	what   string
	err    error
}

func (e *statusError) Error() string {
	if e.err == nil {
		return e.what
	}
	return e.what + ": " + e.err.Error()
}

func (e *statusError) Unwrap() error { return e.err }

// usageError reports a bad command line or input file.  err may be nil.
func usageError(what string, err error) error {
	return &statusError{status: StatusUsage, code: "USAGE", what: what, err: err}
}

// failure reports a failed analysis, keeping the analyzer error code of err.
func failure(what string, err error) error {
	code := "FAILURE"
	var ae *analyzer.Error
	if errors.As(err, &ae) {
		code = string(ae.Code)
	}
	return &statusError{status: StatusFailure, code: code, what: what, err: err}
}

// ExitStatus returns the process exit status for an error returned by a
// command: 0 for nil, and StatusFailure for errors without a status.
func ExitStatus(err error) int {
	if err == nil {
		return 0
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.status
	}
	return StatusFailure
}

// errorCode returns the code reported for err in JSON output.
func errorCode(err error) string {
	var se *statusError
	if errors.As(err, &se) {
		return se.code
	}
	return "FAILURE"
}

// writeJSON writes v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
	RunID  string    `json:"run_id,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`    // analyzer error code, USAGE or FAILURE
	Message string `json:"message"` // human-readable message
}

// outputError reports err in JSON when that format is selected, and returns
// it for the exit status.  In text format cobra's caller prints it.
func outputError(opts *RootOptions, w io.Writer, err error) error {
	if opts.Format == "json" {
		_ = writeJSON(w, CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: errorCode(err), Message: err.Error()},
		})
	}
	return err
}
