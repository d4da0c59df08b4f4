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
	"net"
	"net/http"
	"sync"
	"time"
)

// connectTimeout bounds both TCP connect and the per-fetch round trip, per
// the 5s deadline original_source/fetch.cc passes to HTTPClient::open.
const connectTimeout = 5 * time.Second

// Handle is an opaque, pointer-free reference to a pooled client entry —
// the arena+index strategy design note 9 of the spec calls for in place of
// keying eviction/return by client pointer identity.
type Handle int

type poolEntry struct {
	hostport string
	client   *http.Client
	inUse    bool
	live     bool // false once evicted; the slot is free for reuse
}

// ClientPool is the thread-safe keep-alive HTTP client pool described in
// spec.md §4.3, grounded on FetchQueue::get_client/return_client in
// original_source/fetch.cc. It keys clients by "host:port" and bounds total
// size to 2×capacity so that at least capacity entries are always idle
// whenever the pool is full — the invariant the eviction loop relies on to
// make progress (spec.md §9's fix for the original's non-terminating scan).
type ClientPool struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buckets  map[string][]Handle
	entries  []poolEntry
	freeList []Handle

	capacity     int // fetcher_threads; pool size is bounded at 2×capacity
	useKeepalive bool
}

// NewClientPool builds a pool sized for capacity concurrent fetchers.
// useKeepalive mirrors the _use_keepalive toggle: when false, every Acquire
// returns a fresh, untracked client and Release always closes it.
func NewClientPool(capacity int, useKeepalive bool) *ClientPool {
	if capacity <= 0 {
		capacity = 1
	}
	p := &ClientPool{
		buckets:      make(map[string][]Handle),
		capacity:     capacity,
		useKeepalive: useKeepalive,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func newClient(hostport string) *http.Client {
	dialer := &net.Dialer{Timeout: connectTimeout}
	return &http.Client{
		Timeout: connectTimeout,
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, _ string) (net.Conn, error) {
				return dialer.DialContext(ctx, network, hostport)
			},
		},
	}
}

// Acquire returns a keep-alive client bound to hostport, borrowing an idle
// entry if one exists, evicting idle entries to make room if the pool is at
// capacity, or creating a fresh client otherwise. The returned Handle must
// be passed to Release exactly once.
func (p *ClientPool) Acquire(hostport string) (Handle, *http.Client) {
	if !p.useKeepalive {
		return -1, newClient(hostport)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	for _, h := range p.buckets[hostport] {
		e := &p.entries[h]
		if e.live && !e.inUse {
			e.inUse = true
			return h, e.client
		}
	}

	for p.size() >= 2*p.capacity {
		if !p.evictIdleLocked() {
			// Invariant (spec.md §9): size >= 2*capacity implies at least
			// capacity idle entries exist. If a scan finds none, some
			// caller is about to Release one; wait rather than spin.
			p.cond.Wait()
		}
	}

	client := newClient(hostport)
	h := p.allocLocked(hostport, client)
	return h, client
}

// Release returns a borrowed client. keep=true marks it idle for reuse;
// keep=false evicts and closes it (e.g. after a transport error).
// Calling Release with a Handle Acquire never tracked (useKeepalive=false,
// signalled by handle<0) simply closes the client.
func (p *ClientPool) Release(h Handle, client *http.Client, keep bool) {
	if h < 0 {
		closeIdleClient(client)
		return
	}

	p.mu.Lock()
	e := &p.entries[h]
	if !e.live || e.client != client {
		p.mu.Unlock()
		closeIdleClient(client)
		return
	}
	if keep {
		e.inUse = false
		p.mu.Unlock()
		p.cond.Broadcast()
		return
	}
	p.freeLocked(h)
	p.mu.Unlock()
	closeIdleClient(client)
	p.cond.Broadcast()
}

// Size reports the current number of tracked entries (idle + in use).
func (p *ClientPool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size()
}

func (p *ClientPool) size() int {
	total := 0
	for _, hs := range p.buckets {
		total += len(hs)
	}
	return total
}

// evictIdleLocked closes and frees every idle entry across the whole pool in
// one pass, matching FetchQueue::get_client's full-pool scan. It returns
// whether it evicted at least one entry.
func (p *ClientPool) evictIdleLocked() bool {
	evicted := false
	for hostport, handles := range p.buckets {
		kept := handles[:0:0]
		for _, h := range handles {
			e := &p.entries[h]
			if e.live && !e.inUse {
				closeIdleClient(e.client)
				e.live = false
				e.client = nil
				p.freeList = append(p.freeList, h)
				evicted = true
				continue
			}
			kept = append(kept, h)
		}
		p.buckets[hostport] = kept
	}
	return evicted
}

func (p *ClientPool) allocLocked(hostport string, client *http.Client) Handle {
	var h Handle
	if n := len(p.freeList); n > 0 {
		h = p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		p.entries[h] = poolEntry{hostport: hostport, client: client, inUse: true, live: true}
	} else {
		h = Handle(len(p.entries))
		p.entries = append(p.entries, poolEntry{hostport: hostport, client: client, inUse: true, live: true})
	}
	p.buckets[hostport] = append(p.buckets[hostport], h)
	return h
}

func (p *ClientPool) freeLocked(h Handle) {
	e := &p.entries[h]
	hostport := e.hostport
	e.live = false
	e.client = nil
	p.freeList = append(p.freeList, h)
	handles := p.buckets[hostport]
	for i, hh := range handles {
		if hh == h {
			p.buckets[hostport] = append(handles[:i], handles[i+1:]...)
			break
		}
	}
}

func closeIdleClient(client *http.Client) {
	if client == nil {
		return
	}
	if t, ok := client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
}
