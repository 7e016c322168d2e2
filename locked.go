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

import "sync"

// Locked serializes access to a Map.  Operations that modify the map hold an
// exclusive lock; queries hold a shared one.
//
// The iterator passed to Ascend and Descend runs under the read lock and must
// not call back into the Locked map at all: a nested read lock deadlocks once
// a writer is waiting.
type Locked[K, V any] struct {
	mu sync.RWMutex
	m  Map[K, V]
}

var _ Map[int, int] = (*Locked[int, int])(nil)

// NewLocked wraps m.  m must not be used directly afterwards.
func NewLocked[K, V any](m Map[K, V]) *Locked[K, V] {
	return &Locked[K, V]{m: m}
}

// Len is Map.Len under the read lock.
func (l *Locked[K, V]) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.Len()
}

// ContainsKey is Map.ContainsKey under the read lock.
func (l *Locked[K, V]) ContainsKey(key K) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.ContainsKey(key)
}

// ContainsValueFunc is Map.ContainsValueFunc under the read lock.
func (l *Locked[K, V]) ContainsValueFunc(match func(V) bool) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.ContainsValueFunc(match)
}

// Get is Map.Get under the read lock.
func (l *Locked[K, V]) Get(key K) (V, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.Get(key)
}

// Put is Map.Put under the write lock.
func (l *Locked[K, V]) Put(key K, value V) (V, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m.Put(key, value)
}

// Delete is Map.Delete under the write lock.
func (l *Locked[K, V]) Delete(key K) (V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m.Delete(key)
}

// DeleteMin is Map.DeleteMin under the write lock.
func (l *Locked[K, V]) DeleteMin() (K, V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m.DeleteMin()
}

// DeleteMax is Map.DeleteMax under the write lock.
func (l *Locked[K, V]) DeleteMax() (K, V, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.m.DeleteMax()
}

// Min is Map.Min under the read lock.
func (l *Locked[K, V]) Min() (K, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.Min()
}

// Max is Map.Max under the read lock.
func (l *Locked[K, V]) Max() (K, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.Max()
}

// Floor is Map.Floor under the read lock.
func (l *Locked[K, V]) Floor(key K) (K, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.Floor(key)
}

// Ceiling is Map.Ceiling under the read lock.
func (l *Locked[K, V]) Ceiling(key K) (K, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.Ceiling(key)
}

// Rank is Map.Rank under the read lock.
func (l *Locked[K, V]) Rank(key K) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.Rank(key)
}

// Select is Map.Select under the read lock.
func (l *Locked[K, V]) Select(rank int) (K, V, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.Select(rank)
}

// Ascend is Map.Ascend with the read lock held for the whole walk.
func (l *Locked[K, V]) Ascend(iterator ItemIterator[K, V]) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.m.Ascend(iterator)
}

// Descend is Map.Descend with the read lock held for the whole walk.
func (l *Locked[K, V]) Descend(iterator ItemIterator[K, V]) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	l.m.Descend(iterator)
}

// Height is Map.Height under the read lock.
func (l *Locked[K, V]) Height() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.Height()
}

// Clear is Map.Clear under the write lock.
func (l *Locked[K, V]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.m.Clear()
}

// Check is Map.Check under the read lock.
func (l *Locked[K, V]) Check() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.Check()
}

// Stats is Map.Stats under the read lock.
func (l *Locked[K, V]) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.m.Stats()
}
