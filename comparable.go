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

// Int implements the Comparable interface for integers.
type Int int

// Compare returns -1, 0 or +1 depending on whether a is less than, equal to
// or greater than b.
func (a Int) Compare(b Int) int {
	return cmp.Compare(a, b)
}

// String is a Comparable string key.
type String string

func (a String) Compare(b String) int {
	return cmp.Compare(a, b)
}

var (
	_ Comparable[Int]    = Int(0)
	_ Comparable[String] = String("")

	_ Map[int, int] = (*OrderedTree[int, int])(nil)
	_ Map[int, int] = (*BalancedTree[int, int])(nil)
)
