// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
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

package cacheorbust

import (
	"sync/atomic"

	"github.com/dcrosta/cacheorbust/internal/metrics"
)

// threadCounters is one server worker's private tally of HIT/MISS/ENQUEUE/
// FLUSH, per spec.md §4.4: written only by its owning goroutine, so plain
// int64 fields need no synchronization.
type threadCounters struct {
	hit     int64
	miss    int64
	enqueue int64
	flush   int64
}

// OpCounters implements the two-shard counter scheme of spec.md §4.4 and
// §9: a per-worker-thread array for session-path ops, and a single global
// atomic pair for background fetch-path ops. mirror is an optional
// Prometheus reflection (SPEC_FULL.md §4.4 expansion); nil when no
// metrics_addr was configured.
type OpCounters struct {
	perThread []threadCounters

	fetch     atomic.Int64
	fetchFail atomic.Int64

	mirror *metrics.Counters
}

// NewOpCounters allocates perThread slots for serverThreads workers. mirror
// may be nil.
func NewOpCounters(serverThreads int, mirror *metrics.Counters) *OpCounters {
	if serverThreads <= 0 {
		serverThreads = 1
	}
	return &OpCounters{
		perThread: make([]threadCounters, serverThreads),
		mirror:    mirror,
	}
}

func (c *OpCounters) IncHit(threadID int) {
	c.perThread[threadID].hit++
	if c.mirror != nil {
		c.mirror.IncHit()
	}
}

func (c *OpCounters) IncMiss(threadID int) {
	c.perThread[threadID].miss++
	if c.mirror != nil {
		c.mirror.IncMiss()
	}
}

func (c *OpCounters) IncEnqueue(threadID int) {
	c.perThread[threadID].enqueue++
	if c.mirror != nil {
		c.mirror.IncEnqueue()
	}
}

func (c *OpCounters) IncFlush(threadID int) {
	c.perThread[threadID].flush++
	if c.mirror != nil {
		c.mirror.IncFlush()
	}
}

// IncFetch and IncFetchFail satisfy fetch.Counters so the fetch worker pool
// can drive these directly; they use atomic addition per spec.md §4.4
// because multiple fetcher goroutines write them concurrently.
func (c *OpCounters) IncFetch() {
	c.fetch.Add(1)
	if c.mirror != nil {
		c.mirror.IncFetch()
	}
}

func (c *OpCounters) IncFetchFail() {
	c.fetchFail.Add(1)
	if c.mirror != nil {
		c.mirror.IncFetchFail()
	}
}

// Snapshot is the summed view of all shards at one instant, used to build
// the stats command's output. No snapshot isolation is attempted, matching
// spec.md §4.4's "eventual-consistency reads are acceptable".
type Snapshot struct {
	Hit       int64
	Miss      int64
	Enqueue   int64
	Flush     int64
	Fetch     int64
	FetchFail int64
}

func (c *OpCounters) Snapshot() Snapshot {
	var s Snapshot
	for i := range c.perThread {
		s.Hit += c.perThread[i].hit
		s.Miss += c.perThread[i].miss
		s.Enqueue += c.perThread[i].enqueue
		s.Flush += c.perThread[i].flush
	}
	s.Fetch = c.fetch.Load()
	s.FetchFail = c.fetchFail.Load()
	return s
}

// HitRate reports hit/(hit+miss), or 0.0 when no well-formed gets have been
// processed yet (spec.md §8 invariant 7).
func (s Snapshot) HitRate() float64 {
	total := s.Hit + s.Miss
	if total == 0 {
		return 0.0
	}
	return float64(s.Hit) / float64(total)
}
