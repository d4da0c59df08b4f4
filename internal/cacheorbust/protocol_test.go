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
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dcrosta/cacheorbust/internal/fetch"
	"github.com/dcrosta/cacheorbust/internal/ttlkv"
)

func newTestHandler() (*Handler, ttlkv.Store, *fetch.Queue) {
	kv := ttlkv.NewMemory(1 << 20)
	counters := NewOpCounters(4, nil)
	pool := fetch.NewClientPool(2, true)
	q := fetch.NewQueue(2, kv, pool, counters, zerolog.Nop())
	var connCount atomic.Int64
	h := NewHandler(kv, q, counters, 3600, 4, 1234, &connCount)
	return h, kv, q
}

func TestHandleGet_AbsentWritesSentinelAndEnqueues(t *testing.T) {
	h, kv, q := newTestHandler()
	ctx := context.Background()

	resp, closeSession := h.HandleLine(ctx, 0, "get k http://h/p 60")
	if closeSession {
		t.Fatalf("get should not close session")
	}
	if string(resp) != "END\r\n" {
		t.Fatalf("unexpected response: %q", resp)
	}

	record, ok, _ := kv.Get(ctx, "k")
	if !ok {
		t.Fatalf("expected sentinel written")
	}
	flags, _ := ttlkv.Decode(record)
	if !ttlkv.IsPending(flags) {
		t.Fatalf("expected PENDING flag set")
	}
	if got := q.Depth(); got != 1 {
		t.Fatalf("expected 1 queued task, got %d", got)
	}

	snap := h.counters.Snapshot()
	if snap.Miss != 1 || snap.Enqueue != 1 {
		t.Fatalf("unexpected counters: %+v", snap)
	}
}

func TestHandleGet_PendingDoesNotReEnqueue(t *testing.T) {
	h, kv, q := newTestHandler()
	ctx := context.Background()
	_ = kv.Set(ctx, "k", ttlkv.EncodePending(), 30)

	resp, _ := h.HandleLine(ctx, 0, "get k http://h/p")
	if string(resp) != "END\r\n" {
		t.Fatalf("unexpected response: %q", resp)
	}
	if got := q.Depth(); got != 0 {
		t.Fatalf("expected no re-enqueue, got depth %d", got)
	}
	if h.counters.Snapshot().Miss != 1 {
		t.Fatalf("expected miss counted")
	}
}

func TestHandleGet_ReadyReturnsValue(t *testing.T) {
	h, kv, _ := newTestHandler()
	ctx := context.Background()
	_ = kv.Set(ctx, "k", ttlkv.EncodeReady([]byte("hello")), 3600)

	resp, _ := h.HandleLine(ctx, 0, "get k http://h/p")
	if string(resp) != "VALUE k 0 5\r\nhello\r\nEND\r\n" {
		t.Fatalf("unexpected response: %q", resp)
	}
	if h.counters.Snapshot().Hit != 1 {
		t.Fatalf("expected hit counted")
	}
}

func TestHandleGet_NoContentYieldsEmptyValue(t *testing.T) {
	h, kv, _ := newTestHandler()
	ctx := context.Background()
	_ = kv.Set(ctx, "k", ttlkv.EncodeReady(nil), 3600)

	resp, _ := h.HandleLine(ctx, 0, "get k http://h/p")
	if string(resp) != "VALUE k 0 0\r\n\r\nEND\r\n" {
		t.Fatalf("unexpected response: %q", resp)
	}
}

func TestHandleGet_ArgumentValidation(t *testing.T) {
	h, _, _ := newTestHandler()
	ctx := context.Background()

	cases := []struct {
		line string
		want string
	}{
		{"get", "CLIENT_ERROR missing key\r\n"},
		{"get k", "CLIENT_ERROR missing URL\r\n"},
		{"get k http://h/p 60 extra", "CLIENT_ERROR extra data after TTL\r\n"},
	}
	for _, c := range cases {
		resp, _ := h.HandleLine(ctx, 0, c.line)
		if string(resp) != c.want {
			t.Fatalf("line %q: got %q, want %q", c.line, resp, c.want)
		}
	}
}

func TestHandleGet_MalformedTTLCoercedNotRejected(t *testing.T) {
	h, kv, _ := newTestHandler()
	ctx := context.Background()
	resp, _ := h.HandleLine(ctx, 0, "get k http://h/p not-a-number")
	if string(resp) != "END\r\n" {
		t.Fatalf("expected miss response despite malformed TTL, got %q", resp)
	}
	if _, ok, _ := kv.Get(ctx, "k"); !ok {
		t.Fatalf("expected sentinel written despite malformed TTL")
	}
}

func TestHandleFlushAll(t *testing.T) {
	h, kv, _ := newTestHandler()
	ctx := context.Background()
	_ = kv.Set(ctx, "k", ttlkv.EncodeReady([]byte("x")), 60)

	resp, _ := h.HandleLine(ctx, 0, "flush_all")
	if string(resp) != "OK\r\n" {
		t.Fatalf("unexpected response: %q", resp)
	}
	if _, ok, _ := kv.Get(ctx, "k"); ok {
		t.Fatalf("expected KV cleared")
	}
	if h.counters.Snapshot().Flush != 1 {
		t.Fatalf("expected flush counted")
	}
}

func TestHandleQuit(t *testing.T) {
	h, _, _ := newTestHandler()
	resp, closeSession := h.HandleLine(context.Background(), 0, "quit")
	if !closeSession {
		t.Fatalf("expected quit to close session")
	}
	if resp != nil {
		t.Fatalf("expected no response body for quit, got %q", resp)
	}
}

func TestHandleUnknownCommand(t *testing.T) {
	h, _, _ := newTestHandler()
	resp, closeSession := h.HandleLine(context.Background(), 0, "bogus")
	if closeSession {
		t.Fatalf("unknown command should keep session open")
	}
	if string(resp) != "ERROR\r\n" {
		t.Fatalf("unexpected response: %q", resp)
	}
}

func TestHandleStats_ReflectsMixedTraffic(t *testing.T) {
	h, kv, _ := newTestHandler()
	ctx := context.Background()
	_ = kv.Set(ctx, "ready", ttlkv.EncodeReady([]byte("v")), 60)

	h.HandleLine(ctx, 0, "get ready http://h/p")
	h.HandleLine(ctx, 0, "get ready http://h/p")
	h.HandleLine(ctx, 0, "get ready http://h/p")
	h.HandleLine(ctx, 0, "get missing1 http://h/p")
	h.HandleLine(ctx, 0, "get missing1 http://h/p")

	resp, _ := h.HandleLine(ctx, 0, "stats")
	out := string(resp)
	for _, want := range []string{"STAT hit 3\r\n", "STAT miss 2\r\n", "STAT hit_rate 0.600000\r\n"} {
		if !strings.Contains(out, want) {
			t.Fatalf("stats output missing %q:\n%s", want, out)
		}
	}
	if !strings.HasSuffix(out, "END\r\n") {
		t.Fatalf("stats output must end with END\\r\\n, got %q", out)
	}
}
