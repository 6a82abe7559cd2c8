// Copyright 2023 Google LLC
//
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file or at
// https://developers.google.com/open-source/licenses/bsd

package analyzer

import (
	"math/rand/v2"

	"golang.org/x/tools/container/intsets"
)

// worklist is a set of pending entities with a visiting order.  An entity is
// pending at most once at a time.
type worklist struct {
	order  Order
	rng    *rand.Rand
	items  []int
	queued intsets.Sparse
}

func newWorklist(order Order, seed uint64) *worklist {
	w := &worklist{order: order}
	if order == OrderRandom {
		w.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
	return w
}

// push makes x pending, unless it already is.
func (w *worklist) push(x int) {
	if w.queued.Insert(x) {
		w.items = append(w.items, x)
	}
}

// pop removes and returns the next pending entity.
func (w *worklist) pop() (int, bool) {
	if len(w.items) == 0 {
		return 0, false
	}
	var x int
	switch w.order {
	case OrderLIFO:
		x = w.items[len(w.items)-1]
		w.items = w.items[:len(w.items)-1]
	case OrderRandom:
		i := w.rng.IntN(len(w.items))
		x = w.items[i]
		last := len(w.items) - 1
		w.items[i] = w.items[last]
		w.items = w.items[:last]
	default:
		x = w.items[0]
		w.items = w.items[1:]
	}
	w.queued.Remove(x)
	return x, true
}
