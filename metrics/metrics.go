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

// Package metrics exports tree statistics to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/google/ostree"
)

// StatsSource is anything that can report ostree.Stats: a tree, a Locked
// tree or a hashmap.Map.
type StatsSource interface {
	Stats() ostree.Stats
}

type metric struct {
	desc  *prometheus.Desc
	typ   prometheus.ValueType
	value func(ostree.Stats) float64
}

// Collector reads a StatsSource every time it is scraped.  The source must be
// safe to call from the scraping goroutine; wrap plain trees in ostree.Locked.
type Collector struct {
	source  StatsSource
	metrics []metric
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a Collector whose metric names start with namespace
// and carry the given constant labels.
func NewCollector(source StatsSource, namespace string, labels prometheus.Labels) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "tree", name), help, nil, labels)
	}
	gauge := func(name, help string, f func(ostree.Stats) float64) metric {
		return metric{desc(name, help), prometheus.GaugeValue, f}
	}
	counter := func(name, help string, f func(ostree.Stats) uint64) metric {
		return metric{desc(name, help), prometheus.CounterValue, func(s ostree.Stats) float64 { return float64(f(s)) }}
	}
	return &Collector{
		source: source,
		metrics: []metric{
			gauge("size", "Number of keys in the tree.",
				func(s ostree.Stats) float64 { return float64(s.Len) }),
			gauge("height", "Number of nodes on the longest root-to-leaf path.",
				func(s ostree.Stats) float64 { return float64(s.Height) }),
			gauge("arena_slots", "Node slots allocated in the arena, live or free.",
				func(s ostree.Stats) float64 { return float64(s.Slots) }),
			counter("puts_total", "Successful Put calls.",
				func(s ostree.Stats) uint64 { return s.Puts }),
			counter("replacements_total", "Put calls that replaced an existing value.",
				func(s ostree.Stats) uint64 { return s.Replaces }),
			counter("deletes_total", "Keys removed.",
				func(s ostree.Stats) uint64 { return s.Deletes }),
			counter("rotations_total", "Left and right rotations.",
				func(s ostree.Stats) uint64 { return s.Rotations }),
			counter("color_flips_total", "Color flips.",
				func(s ostree.Stats) uint64 { return s.ColorFlips }),
			counter("node_allocs_total", "Arena slots handed out.",
				func(s ostree.Stats) uint64 { return s.Allocs }),
			counter("node_frees_total", "Arena slots returned to the free list.",
				func(s ostree.Stats) uint64 { return s.Frees }),
		},
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, m := range c.metrics {
		ch <- m.desc
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source.Stats()
	for _, m := range c.metrics {
		ch <- prometheus.MustNewConstMetric(m.desc, m.typ, m.value(s))
	}
}
