// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package program

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/google/capdrop/capset"
	"gopkg.in/yaml.v3"
)

// The YAML form of a Program names functions and blocks instead of
// numbering them:
//
//	capabilities: linux          # or a list of names
//	entry: main
//	functions:
//	  - name: main
//	    blocks:
//	      - name: start
//	        raise: [CAP_CHOWN]   # names, numbers, or "?" for a non-constant
//	        succs: [work]
//	      - name: work
//	        call: helper         # or {candidates: [a, b], complete: true}
//	        succs: [done]        # or {unresolved: true}
//	      - name: done
//	        uses: [CAP_CHOWN]
//	        exit: return
//	  - name: helper
//	    address_taken: true
//	    blocks: [...]
type fileProgram struct {
	Capabilities   capabilityList `yaml:"capabilities"`
	Entry          string         `yaml:"entry"`
	RaisePrimitive string         `yaml:"raise_primitive"`
	Declared       []string       `yaml:"declared"`
	Functions      []fileFunction `yaml:"functions"`
}

type fileFunction struct {
	Name         string      `yaml:"name"`
	AddressTaken bool        `yaml:"address_taken"`
	Blocks       []fileBlock `yaml:"blocks"`
}

type fileBlock struct {
	Name  string    `yaml:"name"`
	Raise []yamlArg `yaml:"raise"`
	Uses  []yamlArg `yaml:"uses"`
	Call  *fileCall `yaml:"call"`
	Succs []string  `yaml:"succs"`
	Exit  string    `yaml:"exit"`
	Size  int       `yaml:"size"`
}

// capabilityList is either the name of a built-in enumeration or a list of
// capability names.
type capabilityList struct {
	builtin string
	names   []string
}

func (c *capabilityList) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		return n.Decode(&c.builtin)
	}
	return n.Decode(&c.names)
}

func (c *capabilityList) enumeration() (*capset.Enumeration, error) {
	switch {
	case c.names != nil:
		return capset.NewEnumeration(c.names)
	case c.builtin == "" || c.builtin == "linux":
		return capset.Linux(), nil
	}
	return nil, fmt.Errorf("unknown capability enumeration %q", c.builtin)
}

// yamlArg is a capability name, a capability number, or "?".
type yamlArg struct {
	text string
	line int
}

func (a *yamlArg) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: capability argument must be a scalar", n.Line)
	}
	a.text, a.line = n.Value, n.Line
	return nil
}

// fileCall is either a function name or a mapping describing an indirect
// call.
type fileCall struct {
	direct     string
	Candidates []string `yaml:"candidates"`
	Complete   bool     `yaml:"complete"`
	Unresolved bool     `yaml:"unresolved"`
}

func (c *fileCall) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		return n.Decode(&c.direct)
	}
	type plain fileCall
	return n.Decode((*plain)(c))
}

// Decode reads a Program in YAML form from r and validates it.
func Decode(r io.Reader) (*Program, error) {
	var fp fileProgram
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&fp); err != nil {
		return nil, fmt.Errorf("decoding program: %w", err)
	}
	return fp.build()
}

// Load reads a Program in YAML form from the named file.
func Load(path string) (*Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	p, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return p, nil
}

func (fp *fileProgram) build() (*Program, error) {
	caps, err := fp.Capabilities.enumeration()
	if err != nil {
		return nil, err
	}
	b := NewBuilder(caps)
	if fp.RaisePrimitive != "" {
		b.RaisePrimitive(fp.RaisePrimitive)
	}
	for _, sym := range fp.Declared {
		b.Declare(sym)
	}
	funcs := make(map[string]FunctionID)
	for _, ff := range fp.Functions {
		if _, ok := funcs[ff.Name]; ok || ff.Name == "" {
			return nil, fmt.Errorf("function name %q is empty or repeated", ff.Name)
		}
		funcs[ff.Name] = b.Func(ff.Name)
		if ff.AddressTaken {
			b.AddressTaken(funcs[ff.Name])
		}
	}
	if fp.Entry != "" {
		f, ok := funcs[fp.Entry]
		if !ok {
			return nil, fmt.Errorf("entry function %q is not defined", fp.Entry)
		}
		b.Entry(f)
	}
	lookup := func(name string) (FunctionID, error) {
		if f, ok := funcs[name]; ok {
			return f, nil
		}
		return 0, fmt.Errorf("call to undefined function %q", name)
	}
	args := func(as []yamlArg) ([]Arg, error) {
		out := make([]Arg, 0, len(as))
		for _, a := range as {
			if a.text == "?" {
				out = append(out, Arg{})
				continue
			}
			if v, err := strconv.ParseInt(a.text, 10, 64); err == nil {
				out = append(out, Arg{Value: v, Const: true})
				continue
			}
			k, ok := caps.Lookup(a.text)
			if !ok {
				return nil, fmt.Errorf("line %d: unknown capability %q", a.line, a.text)
			}
			out = append(out, Arg{Value: int64(k), Const: true})
		}
		return out, nil
	}
	for _, ff := range fp.Functions {
		f := funcs[ff.Name]
		blocks := make(map[string]BlockID)
		ids := make([]BlockID, len(ff.Blocks))
		for i, fb := range ff.Blocks {
			if _, ok := blocks[fb.Name]; ok || fb.Name == "" {
				return nil, fmt.Errorf("function %s: block name %q is empty or repeated", ff.Name, fb.Name)
			}
			raise, err := args(fb.Raise)
			if err != nil {
				return nil, fmt.Errorf("function %s, block %s: %w", ff.Name, fb.Name, err)
			}
			uses, err := args(fb.Uses)
			if err != nil {
				return nil, fmt.Errorf("function %s, block %s: %w", ff.Name, fb.Name, err)
			}
			switch {
			case fb.Call != nil && len(raise) > 0:
				return nil, fmt.Errorf("function %s, block %s: both raises and calls", ff.Name, fb.Name)
			case fb.Call != nil:
				target, err := fb.Call.target(lookup)
				if err != nil {
					return nil, fmt.Errorf("function %s, block %s: %w", ff.Name, fb.Name, err)
				}
				ids[i] = b.Call(f, fb.Name, target)
			case len(raise) > 0:
				ids[i] = b.Raise(f, fb.Name, raise...)
			default:
				ids[i] = b.Plain(f, fb.Name)
			}
			blocks[fb.Name] = ids[i]
			b.Uses(ids[i], uses...)
			b.Size(ids[i], fb.Size)
		}
		for i, fb := range ff.Blocks {
			for _, s := range fb.Succs {
				sid, ok := blocks[s]
				if !ok {
					return nil, fmt.Errorf("function %s, block %s: undefined successor %q", ff.Name, fb.Name, s)
				}
				b.Edge(ids[i], sid)
			}
			switch fb.Exit {
			case "":
			case "return":
				b.Return(ids[i])
			case "unreachable":
				b.Unreachable(ids[i])
			case "unwind":
				b.Unwind(ids[i])
			default:
				return nil, fmt.Errorf("function %s, block %s: unknown exit kind %q", ff.Name, fb.Name, fb.Exit)
			}
		}
	}
	return b.Build()
}

func (c *fileCall) target(lookup func(string) (FunctionID, error)) (CallTarget, error) {
	switch {
	case c.direct != "":
		f, err := lookup(c.direct)
		if err != nil {
			return CallTarget{}, err
		}
		return DirectCall(f), nil
	case c.Unresolved:
		if len(c.Candidates) > 0 {
			return CallTarget{}, fmt.Errorf("unresolved call lists candidates")
		}
		return UnresolvedCall(), nil
	}
	fs := make([]FunctionID, 0, len(c.Candidates))
	for _, name := range c.Candidates {
		f, err := lookup(name)
		if err != nil {
			return CallTarget{}, err
		}
		fs = append(fs, f)
	}
	return ResolvedCall(c.Complete, fs...), nil
}
