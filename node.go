// Copyright 2024 Google Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ostree

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

// Node is what a NodeFactory hands to a tree: a key, its value and whether
// the value may be replaced later.  A Node is not connected to anything; the
// tree copies it into its arena and links it there.
type Node[K, V any] struct {
	key     K
	value   V
	mutable bool
}

// NewNode returns a node whose value can be replaced by later calls to Put.
// It is the default NodeFactory.
func NewNode[K, V any](key K, value V) *Node[K, V] {
	return &Node[K, V]{key: key, value: value, mutable: true}
}

// NewImmutableNode returns a node whose value is fixed: a later Put of the
// same key fails with ErrImmutableValue.
func NewImmutableNode[K, V any](key K, value V) *Node[K, V] {
	return &Node[K, V]{key: key, value: value}
}

// Key returns the node's key.
func (n *Node[K, V]) Key() K { return n.key }

// Value returns the node's value.
func (n *Node[K, V]) Value() V { return n.value }

// Mutable reports whether the node's value may be replaced.
func (n *Node[K, V]) Mutable() bool { return n.mutable }

// SetValue replaces the value of a node that has not been handed to a tree
// yet.  It fails with ErrImmutableValue on an immutable node.
func (n *Node[K, V]) SetValue(value V) error {
	if !n.mutable {
		return fmt.Errorf("%w: key %v", ErrImmutableValue, n.key)
	}
	n.value = value
	return nil
}

// NodeFactory builds the node stored for a key the first time it is
// inserted.  It must not return nil.
type NodeFactory[K, V any] func(key K, value V) *Node[K, V]

// handle addresses an entry in an arena.  The zero handle is reserved and
// stands for "no node".
type handle uint32

const (
	nilHandle handle = 0
	maxHandle        = math.MaxUint32
)

// entry is the arena record of a single tree node.
type entry[K, V any] struct {
	key                 K
	value               V
	parent, left, right handle
	size                int
	red                 bool
	mutable             bool
}

// arena stores the entries of one tree.  Freed slots are kept on a free list
// and handed out again before the storage grows.
type arena[K, V any] struct {
	storage  []entry[K, V]
	freelist []handle
	log      zerolog.Logger
}

func newArena[K, V any](capacity int, log zerolog.Logger) arena[K, V] {
	// Slot zero is reserved.
	storage := make([]entry[K, V], 1, capacity+1)
	return arena[K, V]{storage: storage, log: log}
}

// malloc returns a zeroed slot.  It may grow the storage, which invalidates
// any *entry obtained from at before the call.
func (a *arena[K, V]) malloc() handle {
	if index := len(a.freelist) - 1; index >= 0 {
		h := a.freelist[index]
		a.freelist = a.freelist[:index]
		return h
	}
	n := len(a.storage)
	if uint64(n) >= maxHandle {
		panic("ostree: arena is full")
	}
	if n == cap(a.storage) {
		a.log.Debug().Int("slots", n).Msg("growing node arena")
	}
	a.storage = append(a.storage, entry[K, V]{})
	return handle(n)
}

// release zeroes the slot, dropping its key and value, and puts it on the
// free list.
func (a *arena[K, V]) release(h handle) {
	if h == nilHandle {
		panic("ostree: cannot release the nil handle")
	}
	a.storage[h] = entry[K, V]{}
	a.freelist = append(a.freelist, h)
}

func (a *arena[K, V]) at(h handle) *entry[K, V] {
	return &a.storage[h]
}

// used returns the number of live entries.
func (a *arena[K, V]) used() int {
	return len(a.storage) - 1 - len(a.freelist)
}

// slots returns the number of allocated slots, live or free.
func (a *arena[K, V]) slots() int {
	return len(a.storage) - 1
}

func (a *arena[K, V]) reset() {
	clear(a.storage)
	a.storage = a.storage[:1]
	a.freelist = a.freelist[:0]
}

func (a *arena[K, V]) clone() arena[K, V] {
	storage := make([]entry[K, V], len(a.storage), cap(a.storage))
	copy(storage, a.storage)
	freelist := make([]handle, len(a.freelist))
	copy(freelist, a.freelist)
	return arena[K, V]{storage: storage, freelist: freelist, log: a.log}
}

// Stats describes a tree and counts the work done by its write path since it
// was built.  Counters survive Clear.
type Stats struct {
	// Len is the number of keys in the tree.
	Len int
	// Height is the number of nodes on the longest root-to-leaf path.
	Height int
	// Slots is the number of arena slots allocated, live or free.
	Slots int

	Puts       uint64
	Replaces   uint64
	Deletes    uint64
	Rotations  uint64
	ColorFlips uint64
	Allocs     uint64
	Frees      uint64
}

// Add returns the sum of two Stats.  Height is the larger of the two.
func (s Stats) Add(o Stats) Stats {
	s.Len += o.Len
	s.Height = max(s.Height, o.Height)
	s.Slots += o.Slots
	s.Puts += o.Puts
	s.Replaces += o.Replaces
	s.Deletes += o.Deletes
	s.Rotations += o.Rotations
	s.ColorFlips += o.ColorFlips
	s.Allocs += o.Allocs
	s.Frees += o.Frees
	return s
}
