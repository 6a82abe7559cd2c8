// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package analyzer

import (
	"bytes"
	"maps"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
)

func TestParseOptions(t *testing.T) {
	for _, o := range []Order{OrderFIFO, OrderLIFO, OrderRandom} {
		if got, err := ParseOrder(o.String()); err != nil || got != o {
			t.Errorf("ParseOrder(%q): got %v, %v, want %v", o.String(), got, err, o)
		}
	}
	for _, s := range []Strictness{StrictRun, StrictFunction} {
		if got, err := ParseStrictness(s.String()); err != nil || got != s {
			t.Errorf("ParseStrictness(%q): got %v, %v, want %v", s.String(), got, err, s)
		}
	}
	for _, m := range []MissingRaisePolicy{MissingRaiseProceed, MissingRaiseFail} {
		if got, err := ParseMissingRaisePolicy(m.String()); err != nil || got != m {
			t.Errorf("ParseMissingRaisePolicy(%q): got %v, %v, want %v", m.String(), got, err, m)
		}
	}
	if _, err := ParseOrder("sideways"); err == nil {
		t.Errorf(`ParseOrder("sideways"): got nil error`)
	}
	if _, err := ParseStrictness(""); err == nil {
		t.Errorf(`ParseStrictness(""): got nil error`)
	}
	if _, err := ParseMissingRaisePolicy("ignore"); err == nil {
		t.Errorf(`ParseMissingRaisePolicy("ignore"): got nil error`)
	}
}

func TestLoadProgram(t *testing.T) {
	p, err := LoadProgram(filepath.Join("testdata", "helper.yaml"), LoadConfig{})
	if err != nil {
		t.Fatalf("LoadProgram: %v", err)
	}
	if got, want := p.Primitive(), "acquire"; got != want {
		t.Errorf("Primitive: got %q, want %q", got, want)
	}
	res := analyze(t, p, nil)

	// The file describes the same program as TestDump.
	var buf bytes.Buffer
	if err := Dump(&buf, res); err != nil {
		t.Fatalf("Dump: %v", err)
	}
	goldie.New(t).Assert(t, "dump", buf.Bytes())

	p, err = LoadProgram(filepath.Join("testdata", "helper.yaml"), LoadConfig{RaisePrimitive: "priv_raise"})
	if err != nil {
		t.Fatalf("LoadProgram: %v", err)
	}
	renamed := analyze(t, p, &Config{MissingRaise: MissingRaiseFail})
	if renamed.Skipped {
		t.Fatalf("Analyze with a renamed primitive: got Skipped true")
	}
	if !maps.Equal(renamed.DropEnd, res.DropEnd) || renamed.EntryDrop != res.EntryDrop {
		t.Errorf("Analyze with a renamed primitive: got dropEnd=%v entryDrop=%v, want dropEnd=%v entryDrop=%v",
			renamed.DropEnd, renamed.EntryDrop, res.DropEnd, res.EntryDrop)
	}

	p, err = LoadProgram(filepath.Join("testdata", "helper.yaml"),
		LoadConfig{RaisePrimitive: "priv_raise", Declared: []string{"priv_raise"}})
	if err != nil {
		t.Fatalf("LoadProgram: %v", err)
	}
	if res := analyze(t, p, nil); res.Skipped {
		t.Errorf("Analyze with a declared primitive: got Skipped true")
	}

	if _, err := LoadProgram(filepath.Join("testdata", "missing.yaml"), LoadConfig{}); !os.IsNotExist(err) {
		t.Errorf("LoadProgram(missing.yaml): got err %v, want a not-exist error", err)
	}
}
