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

package hashmap

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/ostree"
)

func TestPutGetRemove(t *testing.T) {
	m := New[string, int]()
	for i := 0; i < 1000; i++ {
		_, replaced, err := m.Put(fmt.Sprint("key", i), i)
		require.NoError(t, err)
		require.False(t, replaced)
	}
	assert.Equal(t, 1000, m.Len())

	old, replaced, err := m.Put("key7", 70)
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Equal(t, 7, old)

	v, ok := m.Get("key7")
	assert.True(t, ok)
	assert.Equal(t, 70, v)
	_, ok = m.Get("missing")
	assert.False(t, ok)

	v, ok = m.Remove("key8")
	assert.True(t, ok)
	assert.Equal(t, 8, v)
	_, ok = m.Remove("key8")
	assert.False(t, ok)
	assert.Equal(t, 999, m.Len())
	require.NoError(t, m.Check())
}

func TestBucketsRoundedToPowerOfTwo(t *testing.T) {
	for _, tc := range []struct{ in, want int }{
		{0, 1}, {1, 1}, {2, 2}, {3, 4}, {16, 16}, {17, 32}, {1000, 1024},
	} {
		m := New[int, int](WithBuckets[int](tc.in))
		assert.Equal(t, tc.want, m.Buckets(), "buckets(%d)", tc.in)
	}
	assert.Equal(t, DefaultBuckets, New[int, int]().Buckets())
}

func TestCollidingKeysShareABucket(t *testing.T) {
	m := New[int, string](
		WithHasher(func(int) uint64 { return 42 }),
		WithTieBreak(ostree.Compare[int]()),
	)
	for _, k := range rand.Perm(500) {
		m.Put(k, fmt.Sprint(k))
	}
	assert.Equal(t, 500, m.Len())
	for k := 0; k < 500; k++ {
		v, ok := m.Get(k)
		require.True(t, ok)
		require.Equal(t, fmt.Sprint(k), v)
	}

	// Every key hashes to the same bucket, which the tree keeps shallow.
	s := m.Stats()
	assert.Equal(t, 500, s.Len)
	assert.LessOrEqual(t, s.Height, 18)

	var keys []int
	m.Range(func(k int, _ string) bool {
		keys = append(keys, k)
		return true
	})
	assert.True(t, sort.IntsAreSorted(keys))
	assert.Len(t, keys, 500)
}

type point struct{ x, y int }

func TestStructKeysDefaultHasher(t *testing.T) {
	m := New[point, string](WithHasher(func(point) uint64 { return 0 }))
	m.Put(point{1, 2}, "a")
	m.Put(point{2, 1}, "b")
	m.Put(point{1, 2}, "c")
	assert.Equal(t, 2, m.Len())
	v, _ := m.Get(point{1, 2})
	assert.Equal(t, "c", v)

	assert.Equal(t, Hash(point{3, 4}), Hash(point{3, 4}))
	assert.NotEqual(t, Hash(point{3, 4}), Hash(point{4, 3}))
}

func TestHashIntegerWidths(t *testing.T) {
	assert.Equal(t, Hash[int](7), Hash[int64](7))
	assert.NotEqual(t, Hash("a"), Hash("b"))
	assert.NotEqual(t, Hash(1), Hash(2))
}

func TestFloatKeys(t *testing.T) {
	negZero := math.Copysign(0, -1)
	assert.Equal(t, Hash(0.0), Hash(negZero))
	assert.Equal(t, Hash(float32(0)), Hash(float32(negZero)))
	assert.Equal(t, Hash(float32(1.5)), Hash(1.5))
	assert.NotEqual(t, Hash(1.0), Hash(2.0))

	m := New[float64, string]()
	_, _, err := m.Put(0.0, "zero")
	require.NoError(t, err)
	v, ok := m.Get(negZero)
	require.True(t, ok)
	assert.Equal(t, "zero", v)
	old, replaced, err := m.Put(negZero, "negative zero")
	require.NoError(t, err)
	assert.True(t, replaced)
	assert.Equal(t, "zero", old)
	assert.Equal(t, 1, m.Len())

	nan := math.NaN()
	_, _, err = m.Put(nan, "a")
	require.ErrorIs(t, err, ErrUnequalKey)
	_, _, err = m.Put(nan, "b")
	require.ErrorIs(t, err, ErrUnequalKey)
	_, ok = m.Get(nan)
	assert.False(t, ok)
	_, ok = m.Remove(nan)
	assert.False(t, ok)
	assert.Equal(t, 1, m.Len())
	require.NoError(t, m.Check())
}

func TestImmutableValues(t *testing.T) {
	m := New[string, int](WithImmutableValues[string]())
	_, _, err := m.Put("a", 1)
	require.NoError(t, err)
	_, _, err = m.Put("a", 2)
	require.ErrorIs(t, err, ostree.ErrImmutableValue)
	v, _ := m.Get("a")
	assert.Equal(t, 1, v)

	m.Remove("a")
	_, _, err = m.Put("a", 3)
	require.NoError(t, err)
}

func TestRangeStops(t *testing.T) {
	m := New[int, int](WithBuckets[int](4))
	for i := 0; i < 100; i++ {
		m.Put(i, i)
	}
	n := 0
	m.Range(func(int, int) bool {
		n++
		return n < 10
	})
	assert.Equal(t, 10, n)
}

func TestConcurrentWriters(t *testing.T) {
	m := New[string, int](WithBuckets[string](8))
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				k := fmt.Sprintf("%d/%d", w, i)
				if _, _, err := m.Put(k, i); err != nil {
					panic(err)
				}
				if i%3 == 0 {
					m.Remove(k)
				}
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 8*666, m.Len())
	require.NoError(t, m.Check())

	s := m.Stats()
	assert.EqualValues(t, 8*1000, s.Puts)
	assert.EqualValues(t, 8*334, s.Deletes)
}

// opaque renders every value the same way.
type opaque struct{ id int }

func (opaque) GoString() string { return "opaque" }

func TestDefaultTieBreakPanicsOnIndistinguishableKeys(t *testing.T) {
	assert.Equal(t, 0, renderedOrder(opaque{1}, opaque{1}))
	assert.Panics(t, func() { renderedOrder(opaque{1}, opaque{2}) })
}

func TestRenderedOrder(t *testing.T) {
	assert.Equal(t, 0, renderedOrder("x", "x"))
	assert.Equal(t, -1, renderedOrder(point{1, 1}, point{2, 0}))
	assert.True(t, strings.HasPrefix(fmt.Sprintf("%#v", point{}), "hashmap.point"))
}

func BenchmarkPut(b *testing.B) {
	keys := make([]string, 10000)
	for i := range keys {
		keys[i] = fmt.Sprint("key", i)
	}
	m := New[string, int](WithBuckets[string](256))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.Put(keys[i%len(keys)], i)
	}
}
