// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/capdrop/analyzer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitStatus(t *testing.T) {
	outOfRange := &analyzer.Error{Code: analyzer.ErrCodeOutOfRange, Message: "capability argument 0"}
	for _, test := range []struct {
		name   string
		err    error
		status int
		code   string
		msg    string
	}{
		{"nil", nil, 0, "", ""},
		{"plain", errors.New("disk full"), StatusFailure, "FAILURE", "disk full"},
		{"usage", usageError("invalid --order", errors.New("sideways")), StatusUsage, "USAGE", "invalid --order: sideways"},
		{"usage without cause", usageError("invalid format", nil), StatusUsage, "USAGE", "invalid format"},
		{"analysis", failure("analysis failed", outOfRange), StatusFailure, "CAPABILITY_OUT_OF_RANGE",
			"analysis failed: CAPABILITY_OUT_OF_RANGE: capability argument 0"},
		{"analysis without code", failure("verification failed", errors.New("unstable")), StatusFailure, "FAILURE",
			"verification failed: unstable"},
		{"wrapped", fmt.Errorf("plan: %w", usageError("invalid --only", nil)), StatusUsage, "USAGE", "plan: invalid --only"},
	} {
		t.Run(test.name, func(t *testing.T) {
			assert.Equal(t, test.status, ExitStatus(test.err))
			if test.err == nil {
				return
			}
			assert.Equal(t, test.code, errorCode(test.err))
			assert.Equal(t, test.msg, test.err.Error())
		})
	}
}

func TestUsageErrorJSON(t *testing.T) {
	out, err := execute(t, "analyze", "--format", "json", "--order", "sideways", "testdata/callback.yaml")
	require.Error(t, err)
	assert.Equal(t, StatusUsage, ExitStatus(err))

	var resp analyzeResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "USAGE", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "invalid --order")
}
