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

//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// TestE2E_RedisBackedFill verifies the real Redis TTL-KV adapter path: the
// cold-hit-via-fill scenario (SPEC_FULL.md §8 scenario 1), but backed by an
// actual Redis instance instead of the in-memory default. Requires a Redis
// reachable at 127.0.0.1:6379.
func TestE2E_RedisBackedFill(t *testing.T) {
	rc := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		t.Skipf("Skipping: Redis not reachable on 127.0.0.1:6379: %v", err)
	}
	defer rc.Close()

	key := "e2e-redis-key"
	prefix := "cob-e2e:"
	_ = rc.Del(context.Background(), prefix+key).Err()
	t.Cleanup(func() { rc.Del(context.Background(), prefix+key) })

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("redis-backed"))
	}))
	defer origin.Close()

	rs := buildAndStartServer(t,
		"-ttl-kv=redis",
		"-ttl-kv-addr=127.0.0.1:6379",
		"-ttl-kv-prefix="+prefix,
	)
	s := dial(t, rs.addr)

	s.send(fmt.Sprintf("get %s %s 60", key, origin.URL))
	if got := s.readLine(); got != "END\r\n" {
		t.Fatalf("expected miss, got %q", got)
	}

	pollUntil(t, 2*time.Second, func() bool {
		v, err := rc.Get(context.Background(), prefix+key).Bytes()
		return err == nil && len(v) > 0 && v[0] == 0
	})

	s.send(fmt.Sprintf("get %s %s", key, origin.URL))
	want := "VALUE " + key + " 0 12\r\n"
	if got := s.readLine(); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
	if got := s.readN(len("redis-backed\r\n")); got != "redis-backed\r\n" {
		t.Fatalf("expected body, got %q", got)
	}
	if got := s.readLine(); got != "END\r\n" {
		t.Fatalf("expected END, got %q", got)
	}
}
