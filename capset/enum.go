// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package capset

import (
	"errors"
	"fmt"
	"strings"
)

// ErrOutOfRange is matched by errors.Is for every *RangeError.
var ErrOutOfRange = errors.New("capability kind out of range")

// RangeError reports a capability kind that is not in [0, N).
type RangeError struct {
	Kind int64
	N    int
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("capability kind %d out of range [0, %d)", e.Kind, e.N)
}

func (e *RangeError) Is(target error) bool { return target == ErrOutOfRange }

// Enumeration is a closed, ordered list of capability kinds.  Kind k has the
// name Name(k).
type Enumeration struct {
	names []string
	index map[string]int
}

// NewEnumeration returns an Enumeration of the given names.  Names must be
// non-empty and unique, ignoring case and an optional "CAP_" prefix.
func NewEnumeration(names []string) (*Enumeration, error) {
	if len(names) == 0 {
		return nil, errors.New("capset: empty enumeration")
	}
	if len(names) > MaxKinds {
		return nil, fmt.Errorf("capset: %d capability kinds, at most %d supported", len(names), MaxKinds)
	}
	e := &Enumeration{
		names: append([]string(nil), names...),
		index: make(map[string]int, len(names)),
	}
	for k, name := range names {
		key := canonical(name)
		if key == "" {
			return nil, fmt.Errorf("capset: empty name for kind %d", k)
		}
		if prev, ok := e.index[key]; ok {
			return nil, fmt.Errorf("capset: kinds %d and %d are both named %q", prev, k, name)
		}
		e.index[key] = k
	}
	return e, nil
}

// MustEnumeration is like NewEnumeration but panics on error.
func MustEnumeration(names ...string) *Enumeration {
	e, err := NewEnumeration(names)
	if err != nil {
		panic(err)
	}
	return e
}

// canonical maps "CAP_NET_ADMIN", "net_admin" and "NET_ADMIN" to the same key.
func canonical(name string) string {
	name = strings.ToUpper(strings.TrimSpace(name))
	return strings.TrimPrefix(name, "CAP_")
}

// Len returns the number of kinds N.
func (e *Enumeration) Len() int { return len(e.names) }

// Names returns a copy of the kind names in kind order.
func (e *Enumeration) Names() []string { return append([]string(nil), e.names...) }

// Name returns the name of kind k, or a numeric placeholder if k is out of
// range.
func (e *Enumeration) Name(k int) string {
	if k < 0 || k >= len(e.names) {
		return fmt.Sprintf("CAP_%d", k)
	}
	return e.names[k]
}

// Lookup returns the kind with the given name.
func (e *Enumeration) Lookup(name string) (int, bool) {
	k, ok := e.index[canonical(name)]
	return k, ok
}

// Set returns the set of the given kinds.  A kind outside [0, N) yields a
// *RangeError.
func (e *Enumeration) Set(kinds ...int64) (Set, error) {
	var s Set
	for _, k := range kinds {
		if k < 0 || k >= int64(len(e.names)) {
			return Set{}, &RangeError{Kind: k, N: len(e.names)}
		}
		s = s.with(int(k))
	}
	return s, nil
}

// MustSet is like Set but panics on error.  It is intended for tests and
// tables of constants.
func (e *Enumeration) MustSet(kinds ...int64) Set {
	s, err := e.Set(kinds...)
	if err != nil {
		panic(err)
	}
	return s
}

// Named returns the set of the named kinds.
func (e *Enumeration) Named(names ...string) (Set, error) {
	var s Set
	for _, n := range names {
		k, ok := e.Lookup(n)
		if !ok {
			return Set{}, fmt.Errorf("unknown capability %q", n)
		}
		s = s.with(k)
	}
	return s, nil
}

// All returns the set of every kind in e.
func (e *Enumeration) All() Set {
	var s Set
	for k := range e.names {
		s = s.with(k)
	}
	return s
}

// Complement returns the kinds of e that are not in s.
func (e *Enumeration) Complement(s Set) Set {
	return e.All().Difference(s)
}

// Contains reports whether every member of s is a kind of e.
func (e *Enumeration) Contains(s Set) bool {
	return s.SubsetOf(e.All())
}

// Format returns the names of the members of s separated by commas.
func (e *Enumeration) Format(s Set) string {
	var b strings.Builder
	for k := range s.All() {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(e.Name(k))
	}
	return b.String()
}

// Parse parses a comma-separated list of capability names.  If every name is
// prefixed with '-', the result is every kind except the listed ones.  An
// empty list means every kind.  Names may omit the "CAP_" prefix.
func (e *Enumeration) Parse(list string) (Set, error) {
	if list == "" {
		return e.All(), nil
	}
	elems := strings.Split(list, ",")
	negated := strings.HasPrefix(elems[0], "-")
	var s Set
	for _, el := range elems {
		if strings.HasPrefix(el, "-") != negated {
			return Set{}, fmt.Errorf("capability list %q mixes negated and non-negated names", list)
		}
		el = strings.TrimPrefix(el, "-")
		if el == "" {
			return Set{}, fmt.Errorf("capability list %q has an empty element", list)
		}
		k, ok := e.Lookup(el)
		if !ok {
			return Set{}, fmt.Errorf("unknown capability %q", el)
		}
		s = s.with(k)
	}
	if negated {
		return e.Complement(s), nil
	}
	return s, nil
}
