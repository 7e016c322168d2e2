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

// Package ostree implements in-memory order-statistics binary search trees.
//
// Two trees are provided. OrderedTree is a plain (unbalanced) binary search
// tree whose nodes carry the size of the subtree rooted at them, which makes
// rank and select queries possible without a full scan. BalancedTree is the
// same tree kept balanced as a left-leaning red-black tree: every Put rotates
// and recolors nodes on its way back up to the root.
//
// Nodes do not live on the heap one by one.  Each tree owns a flat arena of
// node records addressed by integer handles, so parent links are plain
// indices rather than pointers and dropping a whole tree (Clear) is a single
// operation.
//
// Nodes are created through a NodeFactory supplied when the tree is built.
// The factory decides whether the value stored under a key may later be
// replaced (NewNode) or not (NewImmutableNode).
//
// Deletion (Delete, DeleteMin, DeleteMax) is shared by both trees and
// performs no color fix-up, so the red-black height bound of BalancedTree
// only holds for workloads that have not deleted anything since the tree was
// last empty.
//
// Write operations are not safe for concurrent mutation by multiple
// goroutines, but Read operations on a tree nobody is writing to are.
// Wrap a tree in Locked to serialize access from several goroutines.
package ostree

import (
	"cmp"
	"errors"

	"github.com/rs/zerolog"
)

// ErrImmutableValue is returned when replacing the value of a node that was
// created by NewImmutableNode.
var ErrImmutableValue = errors.New("ostree: value is immutable")

// CompareFunc determines how to order keys of type K.  It must implement a
// total order and return a negative number when a < b, zero when a and b are
// the same key, and a positive number when a > b.
//
// Keys that compare as zero are treated as the same entry; the trees never
// use == on keys.
type CompareFunc[K any] func(a, b K) int

// Comparable is implemented by key types that carry their own ordering.
type Comparable[K any] interface {
	// Compare returns a value indicating the sort order relationship between
	// the receiver and the parameter, with the same contract as CompareFunc.
	Compare(than K) int
}

// Compare returns a CompareFunc for types that support the '<' operator.
func Compare[K cmp.Ordered]() CompareFunc[K] {
	return cmp.Compare[K]
}

// CompareComparable returns a CompareFunc that delegates to the key's own
// Compare method.  Compare is called on the left operand, so a nil pointer key
// panics inside the key type and the panic reaches the caller unchanged.
func CompareComparable[K Comparable[K]]() CompareFunc[K] {
	return func(a, b K) int { return a.Compare(b) }
}

// ItemIterator allows callers of {A/De}scend* to iterate in-order over
// portions of the tree.  When this function returns false, iteration will stop
// and the associated Ascend* function will immediately return.
type ItemIterator[K, V any] func(key K, value V) bool

// Map is the set of operations shared by OrderedTree, BalancedTree and
// Locked.
type Map[K, V any] interface {
	Len() int
	ContainsKey(key K) bool
	ContainsValueFunc(match func(V) bool) bool
	Get(key K) (V, bool)
	Put(key K, value V) (V, bool, error)
	Delete(key K) (V, bool)
	DeleteMin() (K, V, bool)
	DeleteMax() (K, V, bool)
	Min() (K, bool)
	Max() (K, bool)
	Floor(key K) (K, bool)
	Ceiling(key K) (K, bool)
	Rank(key K) int
	Select(rank int) (K, V, bool)
	Ascend(iterator ItemIterator[K, V])
	Descend(iterator ItemIterator[K, V])
	Height() int
	Clear()
	Check() error
	Stats() Stats
}

// ContainsValue reports whether any key in m is mapped to value.  It visits
// every node in the worst case.
func ContainsValue[K any, V comparable](m Map[K, V], value V) bool {
	return m.ContainsValueFunc(func(v V) bool { return v == value })
}

type options struct {
	logger   zerolog.Logger
	capacity int
}

// Option configures a tree at construction time.
type Option func(*options)

// WithLogger sets the logger used for debug events such as arena growth.
// Trees are silent by default.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCapacity preallocates room for n nodes in the tree's arena.
func WithCapacity(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.capacity = n
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type direction int

const (
	descend = direction(-1)
	ascend  = direction(+1)
)

type optionalKey[K any] struct {
	key   K
	valid bool
}

func optional[K any](key K) optionalKey[K] {
	return optionalKey[K]{key: key, valid: true}
}

func empty[K any]() optionalKey[K] {
	return optionalKey[K]{}
}
