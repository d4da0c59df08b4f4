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

package ttlkv

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/coocood/freecache"
)

// Memory is an in-process Store backed by github.com/coocood/freecache, the
// same library iiivansss84/dcache uses for its local cache tier. freecache
// pre-allocates a fixed ring buffer sized in bytes and evicts LRU-within-slab
// on pressure, which keeps Set/Get allocation-free on the hot path.
//
// freecache has no API to sum the bytes of currently-live values, so Memory
// tracks an approximate running total itself; it is accurate except across
// freecache's own background expiry/eviction, which the spec's "approximate"
// wording for bytes() allows for.
type Memory struct {
	cache *freecache.Cache

	mu       sync.Mutex
	sizes    map[string]int
	approx   int64
	approxOK int64 // entry count, maintained alongside sizes
}

// NewMemory creates a Memory store with a fixed-size backing arena of
// sizeBytes. freecache recommends at least 512KiB; very small sizes will
// evict aggressively.
func NewMemory(sizeBytes int) *Memory {
	if sizeBytes <= 0 {
		sizeBytes = 64 * 1024 * 1024
	}
	return &Memory{
		cache: freecache.NewCache(sizeBytes),
		sizes: make(map[string]int),
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, err := m.cache.Get([]byte(key))
	if err == freecache.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttlSeconds int32) error {
	if ttlSeconds < 0 {
		ttlSeconds = 0
	}
	if err := m.cache.Set([]byte(key), value, int(ttlSeconds)); err != nil {
		return err
	}
	m.mu.Lock()
	if old, ok := m.sizes[key]; ok {
		atomic.AddInt64(&m.approx, int64(len(value)-old))
	} else {
		atomic.AddInt64(&m.approx, int64(len(value)))
		atomic.AddInt64(&m.approxOK, 1)
	}
	m.sizes[key] = len(value)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.cache.Del([]byte(key))
	m.mu.Lock()
	if old, ok := m.sizes[key]; ok {
		atomic.AddInt64(&m.approx, -int64(old))
		atomic.AddInt64(&m.approxOK, -1)
		delete(m.sizes, key)
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.cache.Clear()
	m.mu.Lock()
	m.sizes = make(map[string]int)
	atomic.StoreInt64(&m.approx, 0)
	atomic.StoreInt64(&m.approxOK, 0)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Count(_ context.Context) (int64, error) {
	return m.cache.EntryCount(), nil
}

func (m *Memory) Size(_ context.Context) (int64, error) {
	return atomic.LoadInt64(&m.approx), nil
}
