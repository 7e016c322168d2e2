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

// iterate provides a simple method for iterating over the keys in the tree,
// following parent links from one node to the next.  start is inclusive and
// stop is exclusive in the direction of travel.
func (t *OrderedTree[K, V]) iterate(dir direction, start, stop optionalKey[K], iter ItemIterator[K, V]) {
	var h handle
	switch dir {
	case ascend:
		if start.valid {
			h = t.ceiling(start.key)
		} else {
			h = t.leftmost(t.root)
		}
		for ; h != nilHandle; h = t.next(h) {
			n := t.arena.at(h)
			if stop.valid && t.cmp(n.key, stop.key) >= 0 {
				return
			}
			if !iter(n.key, n.value) {
				return
			}
		}
	case descend:
		if start.valid {
			h = t.floor(start.key)
		} else {
			h = t.rightmost(t.root)
		}
		for ; h != nilHandle; h = t.prev(h) {
			n := t.arena.at(h)
			if stop.valid && t.cmp(n.key, stop.key) <= 0 {
				return
			}
			if !iter(n.key, n.value) {
				return
			}
		}
	}
}

// AscendRange calls the iterator for every key in the tree within the range
// [greaterOrEqual, lessThan), until iterator returns false.
func (t *OrderedTree[K, V]) AscendRange(greaterOrEqual, lessThan K, iterator ItemIterator[K, V]) {
	t.iterate(ascend, optional(greaterOrEqual), optional(lessThan), iterator)
}

// AscendLessThan calls the iterator for every key in the tree within the range
// [first, pivot), until iterator returns false.
func (t *OrderedTree[K, V]) AscendLessThan(pivot K, iterator ItemIterator[K, V]) {
	t.iterate(ascend, empty[K](), optional(pivot), iterator)
}

// AscendGreaterOrEqual calls the iterator for every key in the tree within
// the range [pivot, last], until iterator returns false.
func (t *OrderedTree[K, V]) AscendGreaterOrEqual(pivot K, iterator ItemIterator[K, V]) {
	t.iterate(ascend, optional(pivot), empty[K](), iterator)
}

// Ascend calls the iterator for every key in the tree within the range
// [first, last], until iterator returns false.
func (t *OrderedTree[K, V]) Ascend(iterator ItemIterator[K, V]) {
	t.iterate(ascend, empty[K](), empty[K](), iterator)
}

// DescendRange calls the iterator for every key in the tree within the range
// [lessOrEqual, greaterThan), until iterator returns false.
func (t *OrderedTree[K, V]) DescendRange(lessOrEqual, greaterThan K, iterator ItemIterator[K, V]) {
	t.iterate(descend, optional(lessOrEqual), optional(greaterThan), iterator)
}

// DescendLessOrEqual calls the iterator for every key in the tree within the
// range [pivot, first], until iterator returns false.
func (t *OrderedTree[K, V]) DescendLessOrEqual(pivot K, iterator ItemIterator[K, V]) {
	t.iterate(descend, optional(pivot), empty[K](), iterator)
}

// DescendGreaterThan calls the iterator for every key in the tree within
// the range [last, pivot), until iterator returns false.
func (t *OrderedTree[K, V]) DescendGreaterThan(pivot K, iterator ItemIterator[K, V]) {
	t.iterate(descend, empty[K](), optional(pivot), iterator)
}

// Descend calls the iterator for every key in the tree within the range
// [last, first], until iterator returns false.
func (t *OrderedTree[K, V]) Descend(iterator ItemIterator[K, V]) {
	t.iterate(descend, empty[K](), empty[K](), iterator)
}
