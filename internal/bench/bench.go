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

// Package bench drives a random workload against one of the ostree maps.
package bench

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/google/ostree"
	"github.com/google/ostree/hashmap"
	"github.com/google/ostree/internal/config"
	"github.com/google/ostree/metrics"
)

// ctxCheckInterval is how many operations run between context checks.
const ctxCheckInterval = 1024

// store is the part of the map API every workload uses.
type store interface {
	Put(key, value int64) (int64, bool, error)
	Get(key int64) (int64, bool)
	Delete(key int64) (int64, bool)
	Len() int
	Stats() ostree.Stats
}

// hashStore adapts hashmap.Map to store.
type hashStore struct {
	*hashmap.Map[int64, int64]
}

func (h hashStore) Delete(key int64) (int64, bool) { return h.Remove(key) }

// Bench holds one configured workload.  It is not reusable: call Run once.
type Bench struct {
	cfg    config.WorkloadConfig
	check  bool
	log    zerolog.Logger
	store  store
	ranked ostree.Map[int64, int64]
	// verify runs the invariant check appropriate for the current state.
	verify func(afterDeletes bool) error
}

// New builds the map named by cfg.Workload.Tree.
func New(cfg *config.Config, log zerolog.Logger) (*Bench, error) {
	b := &Bench{cfg: cfg.Workload, check: cfg.Check, log: log}
	treeLog := log.With().Str("tree", cfg.Workload.Tree).Logger()
	opts := []ostree.Option{ostree.WithLogger(treeLog), ostree.WithCapacity(cfg.Workload.Keys)}

	switch cfg.Workload.Tree {
	case config.TreeBalanced:
		tr := ostree.NewBalancedOrdered[int64, int64](opts...)
		l := ostree.NewLocked[int64, int64](tr)
		b.store, b.ranked = l, l
		b.verify = func(afterDeletes bool) error {
			if afterDeletes {
				return tr.OrderedTree.Check()
			}
			return l.Check()
		}
	case config.TreeOrdered:
		l := ostree.NewLocked[int64, int64](ostree.NewOrdered[int64, int64](opts...))
		b.store, b.ranked = l, l
		b.verify = func(bool) error { return l.Check() }
	case config.TreeHashMap:
		m := hashmap.New[int64, int64](
			hashmap.WithBuckets[int64](cfg.HashMap.Buckets),
			hashmap.WithLogger[int64](treeLog),
		)
		b.store = hashStore{m}
		b.verify = func(bool) error { return m.Check() }
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidTree, cfg.Workload.Tree)
	}
	return b, nil
}

// Source returns the map under test, for metrics collection.  It is safe to
// call Stats on it while Run is in progress.
func (b *Bench) Source() metrics.StatsSource {
	return b.store
}

// Result summarizes a run.
type Result struct {
	Tree     string
	Inserted int
	Replaced int
	Queries  int
	Deleted  int

	InsertTime time.Duration
	QueryTime  time.Duration
	DeleteTime time.Duration

	Stats   ostree.Stats
	Checked bool
}

// Run inserts cfg.Keys random keys, runs the queries, deletes the configured
// fraction of the keys and finally checks the map's invariants if asked to.
// It stops early with ctx.Err() when ctx is done.
func (b *Bench) Run(ctx context.Context) (*Result, error) {
	rng := rand.New(rand.NewSource(b.cfg.Seed))
	res := &Result{Tree: b.cfg.Tree}
	keySpace := int64(b.cfg.Keys) * 4

	b.log.Info().
		Str("keys", humanize.Comma(int64(b.cfg.Keys))).
		Int64("seed", b.cfg.Seed).
		Msg("starting run")

	inserted := make([]int64, 0, b.cfg.Keys)
	start := time.Now()
	for i := 0; i < b.cfg.Keys; i++ {
		if err := tick(ctx, i); err != nil {
			return nil, err
		}
		k := rng.Int63n(keySpace)
		_, replaced, err := b.store.Put(k, int64(i))
		if err != nil {
			return nil, fmt.Errorf("put %d: %w", k, err)
		}
		if replaced {
			res.Replaced++
		} else {
			inserted = append(inserted, k)
		}
		if step := b.cfg.Keys / 10; step > 0 && (i+1)%step == 0 {
			b.log.Debug().Msgf("inserted %s of %s keys", humanize.Comma(int64(i+1)), humanize.Comma(int64(b.cfg.Keys)))
		}
	}
	res.Inserted = len(inserted)
	res.InsertTime = time.Since(start)
	b.log.Info().
		Str("distinct", humanize.Comma(int64(res.Inserted))).
		Dur("elapsed", res.InsertTime).
		Msg("inserted keys")

	if b.check {
		if err := b.verify(false); err != nil {
			return nil, fmt.Errorf("after inserts: %w", err)
		}
	}

	start = time.Now()
	for i := 0; i < b.cfg.Queries; i++ {
		if err := tick(ctx, i); err != nil {
			return nil, err
		}
		if err := b.query(rng, inserted, keySpace); err != nil {
			return nil, err
		}
		res.Queries++
	}
	res.QueryTime = time.Since(start)

	toDelete := int(float64(len(inserted)) * b.cfg.DeleteFraction)
	start = time.Now()
	for i, j := range rng.Perm(len(inserted))[:toDelete] {
		if err := tick(ctx, i); err != nil {
			return nil, err
		}
		if _, ok := b.store.Delete(inserted[j]); !ok {
			return nil, fmt.Errorf("delete %d: key not found", inserted[j])
		}
		res.Deleted++
	}
	res.DeleteTime = time.Since(start)

	if b.check {
		if err := b.verify(res.Deleted > 0); err != nil {
			return nil, fmt.Errorf("after deletes: %w", err)
		}
		res.Checked = true
	}
	res.Stats = b.store.Stats()
	if want := res.Inserted - res.Deleted; res.Stats.Len != want {
		return nil, fmt.Errorf("map holds %d keys, want %d", res.Stats.Len, want)
	}

	b.log.Info().
		Str("len", humanize.Comma(int64(res.Stats.Len))).
		Int("height", res.Stats.Height).
		Uint64("rotations", res.Stats.Rotations).
		Msg("run complete")
	return res, nil
}

// query runs one random lookup.  Trees answer rank, select, floor and
// ceiling queries and the answers are cross-checked; the hash map only
// answers Get.
func (b *Bench) query(rng *rand.Rand, inserted []int64, keySpace int64) error {
	if b.ranked == nil {
		k := inserted[rng.Intn(len(inserted))]
		if _, ok := b.store.Get(k); !ok {
			return fmt.Errorf("get %d: key not found", k)
		}
		return nil
	}
	probe := rng.Int63n(keySpace)
	r := b.ranked.Rank(probe)
	if c, ok := b.ranked.Ceiling(probe); ok {
		k, _, found := b.ranked.Select(r)
		if !found || k != c {
			return fmt.Errorf("select(rank(%d)) = %d, ceiling = %d", probe, k, c)
		}
	} else if r != b.ranked.Len() {
		return fmt.Errorf("rank(%d) = %d past the largest key, want %d", probe, r, b.ranked.Len())
	}
	if f, ok := b.ranked.Floor(probe); ok && f > probe {
		return fmt.Errorf("floor(%d) = %d", probe, f)
	}
	return nil
}

func tick(ctx context.Context, i int) error {
	if i%ctxCheckInterval == 0 {
		return ctx.Err()
	}
	return nil
}

// NewLogger builds the logger described by cfg.
func NewLogger(cfg config.LoggingConfig, w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("%w: %q", config.ErrInvalidLogLevel, cfg.Level)
	}
	if cfg.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
