// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

// Package capset provides a fixed-width bitset over an enumeration of
// capability kinds.
//
// A Set is a plain comparable value: assigning it copies it, and it can be
// used as a map key.  Capability kind k is stored in bit k.  A Set on its own
// does not know how many kinds exist; the Enumeration it belongs to bounds
// the kinds that can be added to it and defines its complement.
package capset

import (
	"iter"
	"math/bits"
	"strconv"
	"strings"
)

// MaxKinds is the largest number of capability kinds an Enumeration may have.
const MaxKinds = 128

const wordBits = 64

// Set is a set of capability kinds.  The zero value is the empty set.
type Set struct {
	w [MaxKinds / wordBits]uint64
}

// Join adds the members of src to *dst and reports whether *dst changed.
// Join never removes a member from *dst.
func Join(dst *Set, src Set) (changed bool) {
	for i := range dst.w {
		if src.w[i]&^dst.w[i] != 0 {
			changed = true
		}
		dst.w[i] |= src.w[i]
	}
	return changed
}

// Union returns the members of s or t.
func (s Set) Union(t Set) Set {
	for i := range s.w {
		s.w[i] |= t.w[i]
	}
	return s
}

// Intersect returns the members of both s and t.
func (s Set) Intersect(t Set) Set {
	for i := range s.w {
		s.w[i] &= t.w[i]
	}
	return s
}

// Difference returns the members of s that are not in t.
func (s Set) Difference(t Set) Set {
	for i := range s.w {
		s.w[i] &^= t.w[i]
	}
	return s
}

// IsEmpty reports whether s has no members.
func (s Set) IsEmpty() bool {
	for _, w := range s.w {
		if w != 0 {
			return false
		}
	}
	return true
}

// Count returns the number of members of s.
func (s Set) Count() int {
	n := 0
	for _, w := range s.w {
		n += bits.OnesCount64(w)
	}
	return n
}

// Has reports whether kind k is a member of s.  Kinds outside the
// representable range are never members.
func (s Set) Has(k int) bool {
	if k < 0 || k >= MaxKinds {
		return false
	}
	return s.w[k/wordBits]&(1<<(uint(k)%wordBits)) != 0
}

// SubsetOf reports whether every member of s is also a member of t.
func (s Set) SubsetOf(t Set) bool {
	return s.Difference(t).IsEmpty()
}

// All returns an iterator over the members of s in increasing order.
func (s Set) All() iter.Seq[int] {
	return func(yield func(int) bool) {
		for i, w := range s.w {
			for w != 0 {
				b := bits.TrailingZeros64(w)
				if !yield(i*wordBits + b) {
					return
				}
				w &^= 1 << uint(b)
			}
		}
	}
}

// Kinds returns the members of s in increasing order.
func (s Set) Kinds() []int {
	kinds := make([]int, 0, s.Count())
	for k := range s.All() {
		kinds = append(kinds, k)
	}
	return kinds
}

// String returns the members of s as a list of numbers, e.g. "{0,12}".
func (s Set) String() string {
	var b strings.Builder
	b.WriteByte('{')
	first := true
	for k := range s.All() {
		if !first {
			b.WriteByte(',')
		}
		first = false
		b.WriteString(strconv.Itoa(k))
	}
	b.WriteByte('}')
	return b.String()
}

// with returns s with kind k added.  The caller checks the range.
func (s Set) with(k int) Set {
	s.w[k/wordBits] |= 1 << (uint(k) % wordBits)
	return s
}
