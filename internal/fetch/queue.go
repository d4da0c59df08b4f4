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

package fetch

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/dcrosta/cacheorbust/internal/ttlkv"
)

// Counters is the subset of op-counter increments the fetch path drives.
// Kept as a tiny interface (rather than importing the cacheorbust package's
// concrete counters type) to avoid a dependency cycle between fetch and the
// package that owns the request handler.
type Counters interface {
	IncFetch()
	IncFetchFail()
}

// Queue is the bounded fetch worker pool of spec.md §4.2, grounded on
// FetchQueue in original_source/fetch.{h,cc} and on the goroutine-pool
// Start/Stop shape of core.Worker in
// internal/ratelimiter/core/worker.go. It drains an unbounded FIFO of Tasks
// with a fixed number of worker goroutines.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []Task
	closed bool
	wg     sync.WaitGroup

	nworkers int
	kv       ttlkv.Store
	pool     *ClientPool
	counters Counters
	log      zerolog.Logger

	// sf collapses concurrent fetches for the same key into one in-flight
	// HTTP round trip, per SPEC_FULL.md §4.2 — strengthens, but never
	// replaces, the sentinel's single-flight guarantee.
	sf singleflight.Group
}

// NewQueue builds a Queue with nworkers goroutines, backed by kv for result
// storage and pool for keep-alive HTTP clients.
func NewQueue(nworkers int, kv ttlkv.Store, pool *ClientPool, counters Counters, log zerolog.Logger) *Queue {
	if nworkers <= 0 {
		nworkers = 1
	}
	q := &Queue{
		nworkers: nworkers,
		kv:       kv,
		pool:     pool,
		counters: counters,
		log:      log,
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start launches the worker goroutines.
func (q *Queue) Start() {
	for i := 0; i < q.nworkers; i++ {
		q.wg.Add(1)
		go q.loop()
	}
}

// Stop signals workers to exit once the queue drains; it does not cancel
// tasks already running. Call Wait afterward to join the workers.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Wait blocks until every worker goroutine has returned.
func (q *Queue) Wait() {
	q.wg.Wait()
}

// Add enqueues t. It is a no-op once Stop has been called — pending tasks at
// shutdown are drained best-effort per spec.md §4.5; their sentinels simply
// expire if dropped.
func (q *Queue) Add(t Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, t)
	q.cond.Signal()
}

// Depth reports the number of tasks waiting to start, for the stats
// command's queue_size gauge.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) loop() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		t := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		q.run(t)
	}
}

// run executes one Task end to end, implementing spec.md §4.2 steps 1-5.
func (q *Queue) run(t Task) {
	_, _, _ = q.sf.Do(t.Key, func() (interface{}, error) {
		q.fetchAndStore(t)
		return nil, nil
	})
}

func (q *Queue) fetchAndStore(t Task) {
	u, err := url.Parse(t.URL)
	if err != nil || u.Hostname() == "" {
		q.log.Info().Str("url", t.URL).Msg("illegal URL")
		q.removeAndFail(t.Key)
		return
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https":
			port = "443"
		default:
			port = "80"
		}
	}
	hostport := u.Hostname() + ":" + port

	handle, client := q.pool.Acquire(hostport)

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		q.pool.Release(handle, client, false)
		q.log.Error().Err(err).Str("url", t.URL).Msg("failed to build request")
		q.removeAndFail(t.Key)
		return
	}
	req.Host = hostport

	resp, err := client.Do(req)
	if err != nil {
		q.pool.Release(handle, client, false)
		q.log.Error().Err(err).Str("url", t.URL).Msg("failed to fetch URL")
		q.removeAndFail(t.Key)
		return
	}
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil || (resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent) {
		q.pool.Release(handle, client, false)
		q.log.Error().Int("status", resp.StatusCode).Str("url", t.URL).Msg("failed to fetch URL")
		q.removeAndFail(t.Key)
		return
	}
	q.pool.Release(handle, client, true)

	record := ttlkv.EncodeReady(body)
	if err := q.kv.Set(context.Background(), t.Key, record, t.TTL); err != nil {
		_ = q.kv.Remove(context.Background(), t.Key)
		q.counters.IncFetchFail()
		q.log.Error().Err(err).Str("key", t.Key).Msg("failed to set cache record")
		return
	}
	q.counters.IncFetch()
}

func (q *Queue) removeAndFail(key string) {
	_ = q.kv.Remove(context.Background(), key)
	q.counters.IncFetchFail()
}
