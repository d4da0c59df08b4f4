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

// Package metrics mirrors the op counters of SPEC_FULL.md §4.4 onto
// Prometheus, grounded on the counter-registration shape of
// churn/prom_counters.go: one prometheus.Counter per op kind, registered
// against a private registry so a process can run more than one service
// instance in tests without collector-already-registered panics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Counters holds the six op-counter kinds of spec.md §4.4 (hit, miss,
// enqueue, fetch, fetch_fail, flush) as Prometheus counters, alongside
// queue-depth and client-pool-size gauges sampled via GaugeFunc.
type Counters struct {
	Hit       prometheus.Counter
	Miss      prometheus.Counter
	Enqueue   prometheus.Counter
	Fetch     prometheus.Counter
	FetchFail prometheus.Counter
	Flush     prometheus.Counter
}

// NewCounters builds and registers a Counters set against reg under the
// cacheorbust_ namespace, mirroring prom_counters.go's registerCounter
// helper but collapsed into one constructor since the op-kind set is fixed.
func NewCounters(reg *prometheus.Registry) *Counters {
	c := &Counters{
		Hit:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: "cacheorbust", Name: "hit_total", Help: "Total get commands served from cache without a fetch."}),
		Miss:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: "cacheorbust", Name: "miss_total", Help: "Total get commands that found no ready record."}),
		Enqueue:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: "cacheorbust", Name: "enqueue_total", Help: "Total fetch tasks enqueued from an ABSENT state."}),
		Fetch:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "cacheorbust", Name: "fetch_total", Help: "Total successful origin fetches."}),
		FetchFail: prometheus.NewCounter(prometheus.CounterOpts{Namespace: "cacheorbust", Name: "fetch_fail_total", Help: "Total failed origin fetches."}),
		Flush:     prometheus.NewCounter(prometheus.CounterOpts{Namespace: "cacheorbust", Name: "flush_total", Help: "Total flush_all commands processed."}),
	}
	reg.MustRegister(c.Hit, c.Miss, c.Enqueue, c.Fetch, c.FetchFail, c.Flush)
	return c
}

// IncFetch and IncFetchFail satisfy fetch.Counters, letting the fetch
// worker pool drive Prometheus directly alongside the in-process op
// counters in internal/cacheorbust.
func (c *Counters) IncFetch()     { c.Fetch.Inc() }
func (c *Counters) IncFetchFail() { c.FetchFail.Inc() }

func (c *Counters) IncHit()     { c.Hit.Inc() }
func (c *Counters) IncMiss()    { c.Miss.Inc() }
func (c *Counters) IncEnqueue() { c.Enqueue.Inc() }
func (c *Counters) IncFlush()   { c.Flush.Inc() }

// RegisterGauges wires queue-depth and client-pool-size gauges sampled
// on scrape via the supplied closures, rather than pushed on every
// mutation — cheaper for values that change on nearly every request.
func RegisterGauges(reg *prometheus.Registry, queueDepth, poolSize func() float64) {
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: "cacheorbust", Name: "fetch_queue_depth", Help: "Current number of fetch tasks waiting to start."},
		queueDepth,
	))
	reg.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: "cacheorbust", Name: "client_pool_size", Help: "Current number of tracked HTTP client pool entries."},
		poolSize,
	))
}
