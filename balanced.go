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

import "cmp"

// BalancedTree is an OrderedTree kept balanced as a left-leaning red-black
// tree (Sedgewick, 2008).
//
// Only Put rebalances.  The delete operations are those of OrderedTree and do
// no color fix-up, so after deletions the height is no longer bounded by
// 2*log2(n+1) and long delete-heavy workloads drift towards an unbalanced
// tree.  Subtree sizes, and with them Rank and Select, stay exact either way.
//
// Write operations are not safe for concurrent mutation by multiple
// goroutines, but Read operations are.
type BalancedTree[K, V any] struct {
	OrderedTree[K, V]
}

// NewBalancedTree creates an empty tree ordered by cmp whose nodes are built
// by factory.  A nil factory means NewNode.
func NewBalancedTree[K, V any](cmp CompareFunc[K], factory NodeFactory[K, V], opts ...Option) *BalancedTree[K, V] {
	t := &BalancedTree[K, V]{}
	t.init(cmp, factory, opts)
	return t
}

// NewBalancedOrdered creates an empty BalancedTree for ordered key types.
func NewBalancedOrdered[K cmp.Ordered, V any](opts ...Option) *BalancedTree[K, V] {
	return NewBalancedTree[K, V](Compare[K](), nil, opts...)
}

// NewBalancedComparable creates an empty BalancedTree for keys implementing
// Comparable.
func NewBalancedComparable[K Comparable[K], V any](opts ...Option) *BalancedTree[K, V] {
	return NewBalancedTree[K, V](CompareComparable[K](), nil, opts...)
}

// Put maps key to value like OrderedTree.Put, then restores the left-leaning
// red-black shape on the path back to the root and paints the root black.
func (t *BalancedTree[K, V]) Put(key K, value V) (V, bool, error) {
	old, replaced, err := t.insert(key, value, t.fixUp)
	if t.root != nilHandle {
		t.arena.at(t.root).red = false
	}
	return old, replaced, err
}

// Clone returns a copy of the tree.  Keys and values are copied by
// assignment.
func (t *BalancedTree[K, V]) Clone() *BalancedTree[K, V] {
	return &BalancedTree[K, V]{OrderedTree: *t.OrderedTree.Clone()}
}

// fixUp removes a right-leaning red link, splits two reds in a row and then
// splits a temporary 4-node, in that order.  It returns the new root of the
// subtree.
func (t *BalancedTree[K, V]) fixUp(h handle) handle {
	if t.isRed(t.arena.at(h).right) && !t.isRed(t.arena.at(h).left) {
		h = t.rotateLeft(h)
	}
	if l := t.arena.at(h).left; t.isRed(l) && t.isRed(t.arena.at(l).left) {
		h = t.rotateRight(h)
	}
	if n := t.arena.at(h); t.isRed(n.left) && t.isRed(n.right) {
		t.flipColors(h)
	}
	return h
}

// rotateLeft turns (h a (x b c)) into (x (h a b) c).  x takes h's color and
// parent, h becomes red.
func (t *BalancedTree[K, V]) rotateLeft(h handle) handle {
	n := t.arena.at(h)
	x := n.right
	parent := n.parent
	t.setRight(h, t.arena.at(x).left)
	t.setLeft(x, h)
	xn := t.arena.at(x)
	xn.parent = parent
	xn.red = n.red
	n.red = true
	t.update(h)
	t.update(x)
	t.stats.Rotations++
	return x
}

// rotateRight turns (h (x a b) c) into (x a (h b c)).
func (t *BalancedTree[K, V]) rotateRight(h handle) handle {
	n := t.arena.at(h)
	x := n.left
	parent := n.parent
	t.setLeft(h, t.arena.at(x).right)
	t.setRight(x, h)
	xn := t.arena.at(x)
	xn.parent = parent
	xn.red = n.red
	n.red = true
	t.update(h)
	t.update(x)
	t.stats.Rotations++
	return x
}

// flipColors makes h red and both of its children black.
func (t *BalancedTree[K, V]) flipColors(h handle) {
	n := t.arena.at(h)
	n.red = true
	t.arena.at(n.left).red = false
	t.arena.at(n.right).red = false
	t.stats.ColorFlips++
}

// Check verifies the binary search tree invariants checked by
// OrderedTree.Check and, in addition, the left-leaning red-black ones: black
// root, no red right child, no red node with a red left child and the same
// number of black nodes on every root-to-leaf path.
//
// The red-black part only holds after insertions; call t.OrderedTree.Check
// on a tree that has seen deletions.
func (t *BalancedTree[K, V]) Check() error {
	if err := t.OrderedTree.Check(); err != nil {
		return err
	}
	if t.isRed(t.root) {
		return t.violation("red root", t.root, "the root must be black")
	}
	if _, err := t.checkColors(t.root); err != nil {
		return err
	}
	return nil
}

// checkColors returns the black height of the subtree rooted at h.
func (t *BalancedTree[K, V]) checkColors(h handle) (int, error) {
	if h == nilHandle {
		return 0, nil
	}
	n := t.arena.at(h)
	if t.isRed(n.right) {
		return 0, t.violation("right-leaning red link", h, "right child is red")
	}
	if n.red && t.isRed(n.left) {
		return 0, t.violation("double red", h, "red node with a red left child")
	}
	lh, err := t.checkColors(n.left)
	if err != nil {
		return 0, err
	}
	rh, err := t.checkColors(n.right)
	if err != nil {
		return 0, err
	}
	if lh != rh {
		return 0, t.violation("black height", h, "left and right black heights differ")
	}
	if !n.red {
		lh++
	}
	return lh, nil
}
