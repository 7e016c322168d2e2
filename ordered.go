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
	"cmp"
	"fmt"
	"iter"

	"github.com/rs/zerolog"
)

// OrderedTree is an unbalanced binary search tree whose nodes know the size
// of their subtree.
//
// Lookups walk down from the root, so they cost O(log n) on random input and
// O(n) on sorted input.  Use BalancedTree when insertion order is not random.
//
// Write operations are not safe for concurrent mutation by multiple
// goroutines, but Read operations are.
type OrderedTree[K, V any] struct {
	cmp     CompareFunc[K]
	factory NodeFactory[K, V]
	arena   arena[K, V]
	root    handle
	stats   Stats
	log     zerolog.Logger
}

// NewOrderedTree creates an empty tree ordered by cmp whose nodes are built by
// factory.  A nil factory means NewNode.
func NewOrderedTree[K, V any](cmp CompareFunc[K], factory NodeFactory[K, V], opts ...Option) *OrderedTree[K, V] {
	t := &OrderedTree[K, V]{}
	t.init(cmp, factory, opts)
	return t
}

// NewOrdered creates an empty OrderedTree for ordered key types.
func NewOrdered[K cmp.Ordered, V any](opts ...Option) *OrderedTree[K, V] {
	return NewOrderedTree[K, V](Compare[K](), nil, opts...)
}

// NewComparable creates an empty OrderedTree for keys implementing
// Comparable.
func NewComparable[K Comparable[K], V any](opts ...Option) *OrderedTree[K, V] {
	return NewOrderedTree[K, V](CompareComparable[K](), nil, opts...)
}

func (t *OrderedTree[K, V]) init(cmp CompareFunc[K], factory NodeFactory[K, V], opts []Option) {
	if cmp == nil {
		panic("ostree: nil compare function")
	}
	if factory == nil {
		factory = NewNode[K, V]
	}
	o := buildOptions(opts)
	t.cmp = cmp
	t.factory = factory
	t.arena = newArena[K, V](o.capacity, o.logger)
	t.log = o.logger
}

// Len returns the number of keys currently in the tree.
func (t *OrderedTree[K, V]) Len() int {
	return t.size(t.root)
}

// Get looks for key in the tree, returning its value.  It returns
// (zeroValue, false) if unable to find that key.
func (t *OrderedTree[K, V]) Get(key K) (_ V, _ bool) {
	h := t.find(key)
	if h == nilHandle {
		return
	}
	return t.arena.at(h).value, true
}

// ContainsKey returns true if the given key is in the tree.
func (t *OrderedTree[K, V]) ContainsKey(key K) bool {
	return t.find(key) != nilHandle
}

// ContainsValueFunc reports whether match returns true for the value of any
// node.  Nodes are visited in key order by following parent links, so the
// walk uses neither recursion nor an explicit stack.
func (t *OrderedTree[K, V]) ContainsValueFunc(match func(V) bool) bool {
	for h := t.leftmost(t.root); h != nilHandle; h = t.next(h) {
		if match(t.arena.at(h).value) {
			return true
		}
	}
	return false
}

// Put maps key to value.  If key was already present its value is replaced
// and the previous value is returned together with true.  Otherwise a node is
// created through the tree's NodeFactory and (zeroValue, false) is returned.
//
// Replacing the value of an immutable node fails with ErrImmutableValue and
// leaves the tree unchanged.
func (t *OrderedTree[K, V]) Put(key K, value V) (V, bool, error) {
	return t.insert(key, value, nil)
}

// insert walks down to key, creating or updating its node, and recomputes the
// size of every node on the way back up.  fix, when set, is applied to every
// node on the path after its size is updated and returns the handle that
// takes the node's place.
func (t *OrderedTree[K, V]) insert(key K, value V, fix func(handle) handle) (old V, replaced bool, err error) {
	var root handle
	root, old, replaced, err = t.put(nilHandle, t.root, key, value, fix)
	t.root = root
	t.arena.at(root).parent = nilHandle
	if err != nil {
		return old, false, err
	}
	t.stats.Puts++
	if replaced {
		t.stats.Replaces++
	}
	return old, replaced, nil
}

func (t *OrderedTree[K, V]) put(parent, h handle, key K, value V, fix func(handle) handle) (_ handle, old V, replaced bool, err error) {
	if h == nilHandle {
		return t.newEntry(parent, key, value), old, false, nil
	}
	c := t.cmp(key, t.arena.at(h).key)
	switch {
	case c < 0:
		var child handle
		child, old, replaced, err = t.put(h, t.arena.at(h).left, key, value, fix)
		t.setLeft(h, child)
	case c > 0:
		var child handle
		child, old, replaced, err = t.put(h, t.arena.at(h).right, key, value, fix)
		t.setRight(h, child)
	default:
		n := t.arena.at(h)
		if !n.mutable {
			return h, old, false, fmt.Errorf("%w: key %v", ErrImmutableValue, n.key)
		}
		old, n.value = n.value, value
		return h, old, true, nil
	}
	if err != nil || replaced {
		return h, old, replaced, err
	}
	t.update(h)
	if fix != nil {
		h = fix(h)
	}
	return h, old, replaced, nil
}

// newEntry asks the factory for a node and copies it into a fresh, red,
// childless arena slot.
func (t *OrderedTree[K, V]) newEntry(parent handle, key K, value V) handle {
	seed := t.factory(key, value)
	if seed == nil {
		panic("ostree: node factory returned nil")
	}
	h := t.arena.malloc()
	*t.arena.at(h) = entry[K, V]{
		key:     seed.key,
		value:   seed.value,
		mutable: seed.mutable,
		parent:  parent,
		size:    1,
		red:     true,
	}
	t.stats.Allocs++
	return h
}

// Select returns the key and value whose 0-based rank in key order is rank.
// It returns false if rank is negative or not less than Len().
func (t *OrderedTree[K, V]) Select(rank int) (_ K, _ V, _ bool) {
	if rank < 0 || rank >= t.Len() {
		return
	}
	h := t.root
	for h != nilHandle {
		n := t.arena.at(h)
		left := t.size(n.left)
		switch {
		case rank < left:
			h = n.left
		case rank > left:
			rank -= left + 1
			h = n.right
		default:
			return n.key, n.value, true
		}
	}
	panic("ostree: subtree sizes are corrupt")
}

// Rank returns the number of keys in the tree strictly less than key.
func (t *OrderedTree[K, V]) Rank(key K) int {
	rank := 0
	h := t.root
	for h != nilHandle {
		n := t.arena.at(h)
		c := t.cmp(key, n.key)
		switch {
		case c < 0:
			h = n.left
		case c > 0:
			rank += t.size(n.left) + 1
			h = n.right
		default:
			return rank + t.size(n.left)
		}
	}
	return rank
}

// Floor returns the largest key less than or equal to key, or
// (zeroValue, false) if there is none.
func (t *OrderedTree[K, V]) Floor(key K) (_ K, _ bool) {
	h := t.floor(key)
	if h == nilHandle {
		return
	}
	return t.arena.at(h).key, true
}

// Ceiling returns the smallest key greater than or equal to key, or
// (zeroValue, false) if there is none.
func (t *OrderedTree[K, V]) Ceiling(key K) (_ K, _ bool) {
	h := t.ceiling(key)
	if h == nilHandle {
		return
	}
	return t.arena.at(h).key, true
}

// floor walks down once, remembering the last node smaller than key.
func (t *OrderedTree[K, V]) floor(key K) handle {
	best := nilHandle
	h := t.root
	for h != nilHandle {
		n := t.arena.at(h)
		c := t.cmp(key, n.key)
		switch {
		case c == 0:
			return h
		case c < 0:
			h = n.left
		default:
			best = h
			h = n.right
		}
	}
	return best
}

func (t *OrderedTree[K, V]) ceiling(key K) handle {
	best := nilHandle
	h := t.root
	for h != nilHandle {
		n := t.arena.at(h)
		c := t.cmp(key, n.key)
		switch {
		case c == 0:
			return h
		case c > 0:
			h = n.right
		default:
			best = h
			h = n.left
		}
	}
	return best
}

// Min returns the smallest key in the tree, or (zeroValue, false) if the tree
// is empty.
func (t *OrderedTree[K, V]) Min() (_ K, _ bool) {
	if t.root == nilHandle {
		return
	}
	return t.arena.at(t.leftmost(t.root)).key, true
}

// Max returns the largest key in the tree, or (zeroValue, false) if the tree
// is empty.
func (t *OrderedTree[K, V]) Max() (_ K, _ bool) {
	if t.root == nilHandle {
		return
	}
	return t.arena.at(t.rightmost(t.root)).key, true
}

// DeleteMin removes the smallest key in the tree and returns it with its
// value.  If the tree is empty, returns (zeroValue, zeroValue, false).
func (t *OrderedTree[K, V]) DeleteMin() (_ K, _ V, _ bool) {
	if t.root == nilHandle {
		return
	}
	key, value := t.remove(t.leftmost(t.root))
	return key, value, true
}

// DeleteMax removes the largest key in the tree and returns it with its
// value.  If the tree is empty, returns (zeroValue, zeroValue, false).
func (t *OrderedTree[K, V]) DeleteMax() (_ K, _ V, _ bool) {
	if t.root == nilHandle {
		return
	}
	key, value := t.remove(t.rightmost(t.root))
	return key, value, true
}

// Delete removes key from the tree, returning its value.  If no such key
// exists, returns (zeroValue, false) and leaves the tree untouched.
func (t *OrderedTree[K, V]) Delete(key K) (_ V, _ bool) {
	h := t.find(key)
	if h == nilHandle {
		return
	}
	_, value := t.remove(h)
	return value, true
}

// remove unlinks x and frees its slot.
//
// A node with children is replaced by a node taken from its larger subtree:
// the minimum of the right subtree when that subtree is at least as large as
// the left one, the maximum of the left subtree otherwise.  The replacement
// inherits x's children, parent slot and color.  No rebalancing is done.
func (t *OrderedTree[K, V]) remove(x handle) (K, V) {
	n := *t.arena.at(x)
	var repl, low handle
	switch {
	case n.right != nilHandle && t.size(n.right) >= t.size(n.left):
		repl, low = t.detachMin(n.right)
		if repl != n.right {
			t.setRight(repl, n.right)
		}
		t.setLeft(repl, n.left)
	case n.left != nilHandle:
		repl, low = t.detachMax(n.left)
		if repl != n.left {
			t.setLeft(repl, n.left)
		}
		t.setRight(repl, n.right)
	default:
		low = n.parent
	}
	if repl != nilHandle {
		t.arena.at(repl).red = n.red
	}
	t.replaceChild(n.parent, x, repl)

	for h := low; h != nilHandle; h = t.arena.at(h).parent {
		t.update(h)
	}

	t.arena.release(x)
	t.stats.Deletes++
	t.stats.Frees++
	return n.key, n.value
}

// detachMin unlinks the smallest node of the subtree rooted at sub, moving
// its right child into its place.  It returns the detached node and the
// lowest node whose size is now stale.  When sub itself is the smallest node
// it keeps its right subtree and the caller relinks it as a whole.
func (t *OrderedTree[K, V]) detachMin(sub handle) (m, low handle) {
	m = t.leftmost(sub)
	if m == sub {
		return m, m
	}
	n := t.arena.at(m)
	parent, child := n.parent, n.right
	n.right = nilHandle
	t.setLeft(parent, child)
	return m, parent
}

func (t *OrderedTree[K, V]) detachMax(sub handle) (m, low handle) {
	m = t.rightmost(sub)
	if m == sub {
		return m, m
	}
	n := t.arena.at(m)
	parent, child := n.parent, n.left
	n.left = nilHandle
	t.setRight(parent, child)
	return m, parent
}

// Height returns the number of nodes on the longest path from the root to a
// leaf; 0 for an empty tree.
func (t *OrderedTree[K, V]) Height() int {
	return t.height(t.root)
}

func (t *OrderedTree[K, V]) height(h handle) int {
	if h == nilHandle {
		return 0
	}
	n := t.arena.at(h)
	return 1 + max(t.height(n.left), t.height(n.right))
}

// Clear removes all keys from the tree at once.
func (t *OrderedTree[K, V]) Clear() {
	t.log.Debug().Int("len", t.Len()).Int("slots", t.arena.slots()).Msg("clearing tree")
	t.arena.reset()
	t.root = nilHandle
}

// Clone returns a copy of the tree.  Keys and values are copied by
// assignment, so pointers inside them are shared with t.
func (t *OrderedTree[K, V]) Clone() *OrderedTree[K, V] {
	c := *t
	c.arena = t.arena.clone()
	return &c
}

// Keys returns all keys in ascending order.
func (t *OrderedTree[K, V]) Keys() []K {
	keys := make([]K, 0, t.Len())
	for h := t.leftmost(t.root); h != nilHandle; h = t.next(h) {
		keys = append(keys, t.arena.at(h).key)
	}
	return keys
}

// All returns an iterator over the key/value pairs in ascending key order.
// The tree must not be modified during iteration.
func (t *OrderedTree[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		t.Ascend(yield)
	}
}

// Stats returns the tree's counters together with its current length,
// height and arena size.  Computing the height visits every node.
func (t *OrderedTree[K, V]) Stats() Stats {
	s := t.stats
	s.Len = t.Len()
	s.Height = t.Height()
	s.Slots = t.arena.slots()
	return s
}

// Internal node accessors.

func (t *OrderedTree[K, V]) find(key K) handle {
	h := t.root
	for h != nilHandle {
		n := t.arena.at(h)
		c := t.cmp(key, n.key)
		switch {
		case c < 0:
			h = n.left
		case c > 0:
			h = n.right
		default:
			return h
		}
	}
	return nilHandle
}

func (t *OrderedTree[K, V]) size(h handle) int {
	if h == nilHandle {
		return 0
	}
	return t.arena.at(h).size
}

func (t *OrderedTree[K, V]) isRed(h handle) bool {
	if h == nilHandle {
		return false
	}
	return t.arena.at(h).red
}

// update recomputes the subtree size of h from its children.
func (t *OrderedTree[K, V]) update(h handle) {
	n := t.arena.at(h)
	n.size = 1 + t.size(n.left) + t.size(n.right)
}

func (t *OrderedTree[K, V]) setLeft(h, child handle) {
	t.arena.at(h).left = child
	if child != nilHandle {
		t.arena.at(child).parent = h
	}
}

func (t *OrderedTree[K, V]) setRight(h, child handle) {
	t.arena.at(h).right = child
	if child != nilHandle {
		t.arena.at(child).parent = h
	}
}

// replaceChild puts x where old hangs under parent, or at the root when
// parent is nil.
func (t *OrderedTree[K, V]) replaceChild(parent, old, x handle) {
	switch {
	case parent == nilHandle:
		if t.root != old {
			panic("ostree: corrupt tree")
		}
		t.root = x
		if x != nilHandle {
			t.arena.at(x).parent = nilHandle
		}
	case t.arena.at(parent).left == old:
		t.setLeft(parent, x)
	case t.arena.at(parent).right == old:
		t.setRight(parent, x)
	default:
		panic("ostree: corrupt tree")
	}
}

func (t *OrderedTree[K, V]) leftmost(h handle) handle {
	if h == nilHandle {
		return nilHandle
	}
	for l := t.arena.at(h).left; l != nilHandle; l = t.arena.at(h).left {
		h = l
	}
	return h
}

func (t *OrderedTree[K, V]) rightmost(h handle) handle {
	if h == nilHandle {
		return nilHandle
	}
	for r := t.arena.at(h).right; r != nilHandle; r = t.arena.at(h).right {
		h = r
	}
	return h
}

// next returns the node following h in key order, or nil.
func (t *OrderedTree[K, V]) next(h handle) handle {
	if r := t.arena.at(h).right; r != nilHandle {
		return t.leftmost(r)
	}
	for {
		p := t.arena.at(h).parent
		if p == nilHandle || t.arena.at(p).left == h {
			return p
		}
		h = p
	}
}

// prev returns the node preceding h in key order, or nil.
func (t *OrderedTree[K, V]) prev(h handle) handle {
	if l := t.arena.at(h).left; l != nilHandle {
		return t.rightmost(l)
	}
	for {
		p := t.arena.at(h).parent
		if p == nilHandle || t.arena.at(p).right == h {
			return p
		}
		h = p
	}
}
