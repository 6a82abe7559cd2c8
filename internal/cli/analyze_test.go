// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package cli

import (
	"encoding/json"
	"testing"

	"github.com/google/capdrop/analyzer"
	"github.com/google/capdrop/capset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allLinux() string {
	caps := capset.Linux()
	return caps.Format(caps.All())
}

type analyzeResponse struct {
	Status string        `json:"status"`
	Data   AnalyzeOutput `json:"data"`
	Error  *CLIError     `json:"error"`
	RunID  string        `json:"run_id"`
}

func TestAnalyzeText(t *testing.T) {
	out, err := execute(t, "analyze", "testdata/callback.yaml")
	require.NoError(t, err)
	want := "entry drop: -\n" +
		"block            drop start  drop end\n" +
		"main.setup       -           SETUID\n" +
		"main.bind        -           NET_BIND\n" +
		"main.register    -           KILL\n" +
		"on_signal.raise  -           KILL\n"
	assert.Equal(t, want, out)
}

func TestAnalyzeJSON(t *testing.T) {
	out, err := execute(t, "analyze", "--format", "json", "--exposure", "--verify", "testdata/callback.yaml")
	require.NoError(t, err)

	var resp analyzeResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, resp.RunID)
	assert.Empty(t, resp.Data.EntryDrop)
	assert.Equal(t, []BlockDrops{
		{Block: "main.setup", End: []string{"SETUID"}},
		{Block: "main.bind", End: []string{"NET_BIND"}},
		{Block: "main.register", End: []string{"KILL"}},
		{Block: "on_signal.raise", End: []string{"KILL"}},
	}, resp.Data.Drops)
	assert.Equal(t, []ExposureOutput{
		{Live: []string{}, Blocks: 2, Instructions: 11},
		{Live: []string{"NET_BIND", "KILL"}, Blocks: 1, Instructions: 4},
		{Live: []string{"KILL"}, Blocks: 2, Instructions: 2},
		{Live: []string{"NET_BIND", "SETUID", "KILL"}, Blocks: 1, Instructions: 1},
	}, resp.Data.Exposure)
	assert.Equal(t, 3, resp.Data.Stats.Functions)
	assert.Equal(t, 6, resp.Data.Stats.Blocks)
	assert.Equal(t, 2, resp.Data.Stats.IndirectCalls)
	assert.Equal(t, 1, resp.Data.Stats.CompleteCalls)
	assert.Equal(t, 1, resp.Data.Stats.ExternalCalls)
}

func TestAnalyzeOrders(t *testing.T) {
	want, err := execute(t, "analyze", "testdata/callback.yaml")
	require.NoError(t, err)
	for _, args := range [][]string{
		{"--order", "lifo"},
		{"--order", "random", "--seed", "3"},
		{"--order", "random", "--seed", "42"},
	} {
		got, err := execute(t, append([]string{"analyze", "testdata/callback.yaml"}, args...)...)
		require.NoError(t, err, "%v", args)
		assert.Equal(t, want, got, "%v", args)
	}
}

func TestAnalyzeErrors(t *testing.T) {
	out, err := execute(t, "analyze", "--format", "json", "testdata/out_of_range.yaml")
	require.Error(t, err)
	assert.Equal(t, StatusFailure, ExitStatus(err))
	assert.True(t, analyzer.HasCode(err, analyzer.ErrCodeOutOfRange))

	var resp analyzeResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, string(analyzer.ErrCodeOutOfRange), resp.Error.Code)

	out, err = execute(t, "analyze", "--strict", "function", "testdata/out_of_range.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "entry drop: -\n")
	assert.Contains(t, out, "diagnostic: CAPABILITY_OUT_OF_RANGE")

	_, err = execute(t, "analyze", "--order", "sideways", "testdata/callback.yaml")
	require.Error(t, err)
	assert.Equal(t, StatusUsage, ExitStatus(err))

	_, err = execute(t, "analyze", "testdata/missing.yaml")
	require.Error(t, err)
	assert.Equal(t, StatusUsage, ExitStatus(err))
}

func TestAnalyzeMissingRaise(t *testing.T) {
	out, err := execute(t, "analyze", "testdata/no_raise.yaml")
	require.NoError(t, err)
	assert.Equal(t, "skipped: priv_raise is not referenced\n", out)

	_, err = execute(t, "analyze", "--missing-raise", "fail", "testdata/no_raise.yaml")
	require.Error(t, err)
	assert.True(t, analyzer.IsMissingRaise(err))

	out, err = execute(t, "analyze", "--missing-raise", "fail", "--declare", "priv_raise", "testdata/no_raise.yaml")
	require.NoError(t, err)
	assert.Equal(t, "entry drop: "+allLinux()+"\n", out)
}

func TestPlan(t *testing.T) {
	out, err := execute(t, "plan", "--only", "CHOWN,KILL", "--primitive", "drop_caps", "testdata/raise_use.yaml")
	require.NoError(t, err)
	assert.Equal(t,
		"process-start  main.raise  drop_caps(1, 5)  # CAP_KILL\n"+
			"block-end      main.use    drop_caps(1, 0)  # CAP_CHOWN\n", out)

	out, err = execute(t, "plan", "--format", "json", "--only=-CHOWN", "testdata/raise_use.yaml")
	require.NoError(t, err)
	var decoded struct {
		Primitive  string `json:"primitive"`
		Insertions []struct {
			Position     string    `json:"position"`
			Block        string    `json:"block"`
			Capabilities []string  `json:"capabilities"`
			Args         []float64 `json:"args"`
		} `json:"insertions"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, "priv_remove", decoded.Primitive)
	require.Len(t, decoded.Insertions, 1)
	assert.Equal(t, "process-start", decoded.Insertions[0].Position)
	assert.Equal(t, "main.raise", decoded.Insertions[0].Block)
	assert.Len(t, decoded.Insertions[0].Capabilities, 40)
	assert.Equal(t, float64(40), decoded.Insertions[0].Args[0])

	_, err = execute(t, "plan", "--only", "NOT_A_CAP", "testdata/raise_use.yaml")
	require.Error(t, err)
	assert.Equal(t, StatusUsage, ExitStatus(err))
}

func TestDump(t *testing.T) {
	out, err := execute(t, "dump", "testdata/raise_use.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "== function main\n")
	assert.Contains(t, out, "required in:  CAP_CHOWN\n")
	assert.Contains(t, out, "== <calls-external>\n")
}
