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

// Package hashmap implements a hash map whose buckets are balanced
// order-statistics trees.
//
// Keys are hashed with xxhash and wrapped together with their hash into a
// composite key ordered by hash first.  Each bucket owns an
// ostree.BalancedTree of such keys and a mutex, so operations on different
// buckets proceed in parallel and colliding keys cost O(log n) instead of a
// list scan.
package hashmap

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/google/ostree"
)

// DefaultBuckets is the bucket count used when none is given.
const DefaultBuckets = 16

// ErrUnequalKey is returned by Put for a key that is not equal to itself,
// such as a NaN float.
var ErrUnequalKey = errors.New("hashmap: key is not equal to itself")

// hashedKey is the key actually stored in a bucket tree.
type hashedKey[K any] struct {
	hash uint64
	key  K
}

type bucket[K comparable, V any] struct {
	mu   sync.Mutex
	tree *ostree.BalancedTree[hashedKey[K], V]
}

// Map is a hash map safe for concurrent use.  The zero value is not usable;
// call New.
type Map[K comparable, V any] struct {
	buckets   []bucket[K, V]
	mask      uint64
	hash      func(K) uint64
	tie       ostree.CompareFunc[K]
	immutable bool
	log       zerolog.Logger
}

type config[K comparable] struct {
	buckets   int
	hash      func(K) uint64
	tie       ostree.CompareFunc[K]
	immutable bool
	log       zerolog.Logger
}

// Option configures a Map.
type Option[K comparable] func(*config[K])

// WithBuckets sets the number of buckets.  It is rounded up to a power of two.
func WithBuckets[K comparable](n int) Option[K] {
	return func(c *config[K]) { c.buckets = n }
}

// WithHasher replaces the default xxhash based hash function.
func WithHasher[K comparable](hash func(K) uint64) Option[K] {
	return func(c *config[K]) { c.hash = hash }
}

// WithTieBreak orders keys whose hashes collide.  The default orders them by
// their %#v rendering and panics on distinct keys that render identically.
func WithTieBreak[K comparable](tie ostree.CompareFunc[K]) Option[K] {
	return func(c *config[K]) { c.tie = tie }
}

// WithImmutableValues makes the first value stored under a key final: later
// Puts of that key fail with ostree.ErrImmutableValue until it is removed.
func WithImmutableValues[K comparable]() Option[K] {
	return func(c *config[K]) { c.immutable = true }
}

// WithLogger sets the logger handed to the map and its bucket trees.
func WithLogger[K comparable](log zerolog.Logger) Option[K] {
	return func(c *config[K]) { c.log = log }
}

// New returns an empty map.
func New[K comparable, V any](opts ...Option[K]) *Map[K, V] {
	c := config[K]{
		buckets: DefaultBuckets,
		hash:    Hash[K],
		tie:     renderedOrder[K],
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	n := roundPow2(c.buckets)
	m := &Map[K, V]{
		buckets:   make([]bucket[K, V], n),
		mask:      uint64(n - 1),
		hash:      c.hash,
		tie:       c.tie,
		immutable: c.immutable,
		log:       c.log,
	}
	for i := range m.buckets {
		m.buckets[i].tree = ostree.NewBalancedTree[hashedKey[K], V](m.compare, m.newNode, ostree.WithLogger(c.log))
	}
	m.log.Debug().Int("buckets", n).Bool("immutable", c.immutable).Msg("hash map created")
	return m
}

func roundPow2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << bits.Len(uint(n-1))
}

func (m *Map[K, V]) compare(a, b hashedKey[K]) int {
	if c := cmp.Compare(a.hash, b.hash); c != 0 {
		return c
	}
	return m.tie(a.key, b.key)
}

func (m *Map[K, V]) newNode(key hashedKey[K], value V) *ostree.Node[hashedKey[K], V] {
	if m.immutable {
		return ostree.NewImmutableNode(key, value)
	}
	return ostree.NewNode(key, value)
}

// lookup returns the composite key for key and the bucket holding it, locked.
func (m *Map[K, V]) lookup(key K) (hashedKey[K], *bucket[K, V]) {
	h := m.hash(key)
	b := &m.buckets[h&m.mask]
	b.mu.Lock()
	return hashedKey[K]{hash: h, key: key}, b
}

// Get returns the value stored under key.
func (m *Map[K, V]) Get(key K) (V, bool) {
	if key != key {
		var zero V
		return zero, false
	}
	hk, b := m.lookup(key)
	defer b.mu.Unlock()
	return b.tree.Get(hk)
}

// Put stores value under key and returns the previous value, if any.  Keys
// that are not equal to themselves are rejected with ErrUnequalKey.
func (m *Map[K, V]) Put(key K, value V) (V, bool, error) {
	if key != key {
		var zero V
		return zero, false, fmt.Errorf("%w: %#v", ErrUnequalKey, key)
	}
	hk, b := m.lookup(key)
	defer b.mu.Unlock()
	return b.tree.Put(hk, value)
}

// Remove deletes key and returns the value it held.
func (m *Map[K, V]) Remove(key K) (V, bool) {
	if key != key {
		var zero V
		return zero, false
	}
	hk, b := m.lookup(key)
	defer b.mu.Unlock()
	return b.tree.Delete(hk)
}

// Len returns the number of keys.  Buckets are counted one at a time, so the
// result is only exact while no other goroutine writes.
func (m *Map[K, V]) Len() int {
	n := 0
	for i := range m.buckets {
		b := &m.buckets[i]
		b.mu.Lock()
		n += b.tree.Len()
		b.mu.Unlock()
	}
	return n
}

// Buckets returns the number of buckets.
func (m *Map[K, V]) Buckets() int {
	return len(m.buckets)
}

// Range calls f for every key and value, bucket by bucket, until f returns
// false.  f runs with the bucket locked and must not call back into m.
func (m *Map[K, V]) Range(f func(key K, value V) bool) {
	for i := range m.buckets {
		b := &m.buckets[i]
		more := true
		b.mu.Lock()
		b.tree.Ascend(func(hk hashedKey[K], v V) bool {
			more = f(hk.key, v)
			return more
		})
		b.mu.Unlock()
		if !more {
			return
		}
	}
}

// Stats sums the counters of all bucket trees.  Height is the tallest bucket.
func (m *Map[K, V]) Stats() ostree.Stats {
	var s ostree.Stats
	for i := range m.buckets {
		b := &m.buckets[i]
		b.mu.Lock()
		s = s.Add(b.tree.Stats())
		b.mu.Unlock()
	}
	return s
}

// Check runs ostree's structural check on every bucket.
func (m *Map[K, V]) Check() error {
	for i := range m.buckets {
		b := &m.buckets[i]
		b.mu.Lock()
		err := b.tree.OrderedTree.Check()
		b.mu.Unlock()
		if err != nil {
			return fmt.Errorf("bucket %d: %w", i, err)
		}
	}
	return nil
}

// Hash is the default hash function.  Strings, integers and floats are hashed
// from their bytes; any other key is hashed from its %#v rendering.  Negative
// zero hashes like zero, as the two compare equal.
func Hash[K comparable](key K) uint64 {
	var buf [8]byte
	switch k := any(key).(type) {
	case string:
		return xxhash.Sum64String(k)
	case int:
		binary.LittleEndian.PutUint64(buf[:], uint64(k))
	case int64:
		binary.LittleEndian.PutUint64(buf[:], uint64(k))
	case int32:
		binary.LittleEndian.PutUint64(buf[:], uint64(k))
	case uint:
		binary.LittleEndian.PutUint64(buf[:], uint64(k))
	case uint64:
		binary.LittleEndian.PutUint64(buf[:], k)
	case uint32:
		binary.LittleEndian.PutUint64(buf[:], uint64(k))
	case float64:
		binary.LittleEndian.PutUint64(buf[:], floatBits(k))
	case float32:
		binary.LittleEndian.PutUint64(buf[:], floatBits(float64(k)))
	default:
		return xxhash.Sum64String(fmt.Sprintf("%#v", key))
	}
	return xxhash.Sum64(buf[:])
}

func floatBits(f float64) uint64 {
	if f == 0 {
		f = 0
	}
	return math.Float64bits(f)
}

func renderedOrder[K comparable](a, b K) int {
	if a == b {
		return 0
	}
	if c := cmp.Compare(fmt.Sprintf("%#v", a), fmt.Sprintf("%#v", b)); c != 0 {
		return c
	}
	panic(fmt.Sprintf("hashmap: cannot order distinct keys %#v and %#v; use WithTieBreak", a, b))
}
