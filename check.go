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

import "fmt"

// InvariantError describes the first broken invariant found by Check.
type InvariantError struct {
	// Invariant names the property that does not hold, e.g. "order" or
	// "black height".
	Invariant string
	// Key is the key of the node where the violation was detected, or nil
	// when the tree itself is at fault.
	Key any
	// Detail is a human readable description.
	Detail string
}

func (e *InvariantError) Error() string {
	if e.Key == nil {
		return fmt.Sprintf("ostree: %s invariant violated: %s", e.Invariant, e.Detail)
	}
	return fmt.Sprintf("ostree: %s invariant violated at key %v: %s", e.Invariant, e.Key, e.Detail)
}

func (t *OrderedTree[K, V]) violation(invariant string, h handle, detail string) *InvariantError {
	err := &InvariantError{Invariant: invariant, Detail: detail}
	if h != nilHandle {
		err.Key = t.arena.at(h).key
	}
	t.log.Warn().Err(err).Msg("tree check failed")
	return err
}

// Check walks the whole tree and verifies that keys are in strictly
// increasing order, that every node's parent link points back at the node
// holding it and that every subtree size equals one plus the sizes of its
// children.  It returns nil or an *InvariantError.
func (t *OrderedTree[K, V]) Check() error {
	if t.root != nilHandle && t.arena.at(t.root).parent != nilHandle {
		return t.violation("parent link", t.root, "root has a parent")
	}
	if err := t.checkNode(t.root, nilHandle, empty[K](), empty[K]()); err != nil {
		return err
	}
	if used, n := t.arena.used(), t.Len(); used != n {
		return t.violation("size", nilHandle, fmt.Sprintf("%d live arena slots for %d keys", used, n))
	}
	t.log.Debug().Int("len", t.Len()).Msg("tree check passed")
	return nil
}

// checkNode checks the subtree at h, whose keys must lie strictly between lo
// and hi.
func (t *OrderedTree[K, V]) checkNode(h, parent handle, lo, hi optionalKey[K]) error {
	if h == nilHandle {
		return nil
	}
	n := t.arena.at(h)
	if n.parent != parent {
		return t.violation("parent link", h, "parent link does not point at the parent node")
	}
	if lo.valid && t.cmp(lo.key, n.key) >= 0 {
		return t.violation("order", h, fmt.Sprintf("key not greater than %v", lo.key))
	}
	if hi.valid && t.cmp(n.key, hi.key) >= 0 {
		return t.violation("order", h, fmt.Sprintf("key not less than %v", hi.key))
	}
	if want := 1 + t.size(n.left) + t.size(n.right); n.size != want {
		return t.violation("size", h, fmt.Sprintf("size is %d, want %d", n.size, want))
	}
	if err := t.checkNode(n.left, h, lo, optional(n.key)); err != nil {
		return err
	}
	return t.checkNode(n.right, h, optional(n.key), hi)
}
