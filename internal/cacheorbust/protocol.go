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

// Package cacheorbust implements the cache/fetch coordination engine: the
// get command's sentinel-based single-flight state machine, the stats and
// flush_all commands, and the service lifecycle wiring the TTL-KV, fetch
// worker pool and HTTP client pool together.
package cacheorbust

import (
	"context"
	"math/bits"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dcrosta/cacheorbust/internal/fetch"
	"github.com/dcrosta/cacheorbust/internal/ttlkv"
)

// Version is the implementation-defined identifier string spec.md §4.1's
// stats output calls for.
const Version = "cacheorbust/1.0"

// sentinelTTL is the fixed 30s PENDING window of spec.md §3.
const sentinelTTL = int32(30)

// maxLineBytes bounds a single request line, per spec.md §4.1 and §6.
const maxLineBytes = 16 * 1024

// Handler implements the get/stats/flush_all/quit command set described in
// spec.md §4.1, grounded on original_source/server.cc's per-line dispatch
// switch. One Handler is shared by all server worker goroutines; per-call
// state (the caller's threadID) is passed into HandleLine rather than held
// on the struct.
type Handler struct {
	kv       ttlkv.Store
	queue    *fetch.Queue
	counters *OpCounters

	defaultTTL    int32
	serverThreads int

	startTime time.Time
	pid       int
	connCount *atomic.Int64
}

// NewHandler builds a Handler. connCount is shared with the server's accept
// loop so curr_connections reflects live sessions.
func NewHandler(kv ttlkv.Store, queue *fetch.Queue, counters *OpCounters, defaultTTL int32, serverThreads int, pid int, connCount *atomic.Int64) *Handler {
	return &Handler{
		kv:            kv,
		queue:         queue,
		counters:      counters,
		defaultTTL:    defaultTTL,
		serverThreads: serverThreads,
		startTime:     time.Now(),
		pid:           pid,
		connCount:     connCount,
	}
}

// HandleLine dispatches one already-trimmed request line (without the
// trailing \r\n) and returns the wire-format response and whether the
// session should close afterward (the quit command, or a line exceeding
// maxLineBytes — the latter is enforced by the caller, which owns line
// reading).
func (h *Handler) HandleLine(ctx context.Context, threadID int, line string) (response []byte, closeSession bool) {
	tokens := strings.Fields(line)
	if len(tokens) == 0 {
		return []byte("ERROR\r\n"), false
	}

	switch tokens[0] {
	case "get":
		return h.handleGet(ctx, threadID, tokens), false
	case "stats":
		return h.handleStats(threadID), false
	case "flush_all":
		return h.handleFlushAll(ctx, threadID), false
	case "quit":
		return nil, true
	default:
		return []byte("ERROR\r\n"), false
	}
}

func (h *Handler) handleGet(ctx context.Context, threadID int, tokens []string) []byte {
	n := len(tokens)
	if n < 2 {
		return []byte("CLIENT_ERROR missing key\r\n")
	}
	if n < 3 {
		return []byte("CLIENT_ERROR missing URL\r\n")
	}
	if n > 4 {
		return []byte("CLIENT_ERROR extra data after TTL\r\n")
	}

	key := tokens[1]
	url := tokens[2]
	ttl := h.defaultTTL
	if n == 4 {
		// Malformed numeric TTL is accepted and coerced, never rejected
		// (spec.md §4.1).
		if v, err := strconv.ParseInt(tokens[3], 10, 32); err == nil {
			ttl = int32(v)
		}
	}

	record, ok, err := h.kv.Get(ctx, key)
	if err != nil {
		return []byte("SERVER_ERROR " + err.Error() + "\r\n")
	}

	if !ok {
		// ABSENT -> PENDING.
		if err := h.kv.Set(ctx, key, ttlkv.EncodePending(), sentinelTTL); err != nil {
			return []byte("SERVER_ERROR could not set sentinel\r\n")
		}
		h.queue.Add(fetch.NewTask(key, url, ttl))
		h.counters.IncMiss(threadID)
		h.counters.IncEnqueue(threadID)
		return []byte("END\r\n")
	}

	flags, payload := ttlkv.Decode(record)
	if ttlkv.IsPending(flags) {
		// PENDING -> PENDING: a fetch is already in flight.
		h.counters.IncMiss(threadID)
		return []byte("END\r\n")
	}

	// READY.
	h.counters.IncHit(threadID)
	return buildValueResponse(key, payload)
}

func buildValueResponse(key string, payload []byte) []byte {
	var b strings.Builder
	b.Grow(len(key) + len(payload) + 32)
	b.WriteString("VALUE ")
	b.WriteString(key)
	b.WriteString(" 0 ")
	b.WriteString(strconv.Itoa(len(payload)))
	b.WriteString("\r\n")
	b.Write(payload)
	b.WriteString("\r\nEND\r\n")
	return []byte(b.String())
}

func (h *Handler) handleFlushAll(ctx context.Context, threadID int) []byte {
	h.counters.IncFlush(threadID)
	if err := h.kv.Clear(ctx); err != nil {
		return []byte("SERVER_ERROR " + err.Error() + "\r\n")
	}
	return []byte("OK\r\n")
}

func (h *Handler) handleStats(threadID int) []byte {
	ctx := context.Background()
	snap := h.counters.Snapshot()
	currItems, _ := h.kv.Count(ctx)
	bytesUsed, _ := h.kv.Size(ctx)

	var b strings.Builder
	stat := func(name string, value string) {
		b.WriteString("STAT ")
		b.WriteString(name)
		b.WriteString(" ")
		b.WriteString(value)
		b.WriteString("\r\n")
	}

	stat("pid", strconv.Itoa(h.pid))
	stat("uptime", strconv.FormatInt(int64(time.Since(h.startTime).Seconds()), 10))
	stat("time", strconv.FormatInt(time.Now().Unix(), 10))
	stat("version", Version)
	stat("pointer_size", strconv.Itoa(bits.UintSize))
	stat("curr_connections", strconv.FormatInt(h.connCount.Load(), 10))
	stat("threads", strconv.Itoa(h.serverThreads))
	stat("curr_items", strconv.FormatInt(currItems, 10))
	stat("bytes", strconv.FormatInt(bytesUsed, 10))
	stat("flush", strconv.FormatInt(snap.Flush, 10))
	stat("hit", strconv.FormatInt(snap.Hit, 10))
	stat("miss", strconv.FormatInt(snap.Miss, 10))
	stat("hit_rate", strconv.FormatFloat(snap.HitRate(), 'f', 6, 64))
	stat("enqueue", strconv.FormatInt(snap.Enqueue, 10))
	stat("queue_size", strconv.Itoa(h.queue.Depth()))
	stat("fetch", strconv.FormatInt(snap.Fetch, 10))
	stat("fetch_failed", strconv.FormatInt(snap.FetchFail, 10))
	b.WriteString("END\r\n")

	return []byte(b.String())
}
