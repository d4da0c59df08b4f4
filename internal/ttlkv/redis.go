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
	"errors"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisClient abstracts the handful of commands Redis needs, the same way
// persistence.RedisEvaler abstracts Eval: it lets tests substitute a fake
// without dragging a live Redis server into unit tests.
type RedisClient interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	Del(ctx context.Context, key string) error
	FlushDB(ctx context.Context) error
	DBSize(ctx context.Context) (int64, error)
	UsedMemory(ctx context.Context) (int64, error)
}

// Redis is a Store backed by a real Redis server via github.com/redis/go-redis/v9,
// the client persistence.GoRedisEvaler wraps for the idempotent-commit adapters.
type Redis struct {
	client RedisClient
	prefix string
}

// NewRedis returns a Store that namespaces every key under prefix (so a
// shared Redis instance can host multiple cacheorbust deployments without
// key collisions).
func NewRedis(client RedisClient, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(k string) string {
	if r.prefix == "" {
		return k
	}
	return r.prefix + k
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := r.client.Get(ctx, r.key(key))
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, value []byte, ttlSeconds int32) error {
	var ttl time.Duration
	if ttlSeconds > 0 {
		ttl = time.Duration(ttlSeconds) * time.Second
	}
	return r.client.Set(ctx, r.key(key), value, ttl)
}

func (r *Redis) Remove(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.key(key))
}

func (r *Redis) Clear(ctx context.Context) error {
	return r.client.FlushDB(ctx)
}

func (r *Redis) Count(ctx context.Context) (int64, error) {
	return r.client.DBSize(ctx)
}

// Size returns Redis's reported used_memory, an instance-wide approximation
// (Redis does not cheaply expose the summed size of an arbitrary key subset).
func (r *Redis) Size(ctx context.Context) (int64, error) {
	return r.client.UsedMemory(ctx)
}

// GoRedisClient adapts *redis.Client (or any redis.UniversalClient) to
// RedisClient, mirroring persistence.NewGoRedisEvaler's thin-wrapper shape.
type GoRedisClient struct {
	c redis.UniversalClient
}

// NewGoRedisClient builds a GoRedisClient from an address like "127.0.0.1:6379".
func NewGoRedisClient(addr string) *GoRedisClient {
	return &GoRedisClient{c: redis.NewClient(&redis.Options{Addr: addr})}
}

// WrapGoRedisClient adapts an already-constructed client (e.g. a cluster or
// sentinel client built elsewhere).
func WrapGoRedisClient(c redis.UniversalClient) *GoRedisClient {
	return &GoRedisClient{c: c}
}

func (g *GoRedisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return g.c.Set(ctx, key, value, ttl).Err()
}

func (g *GoRedisClient) Get(ctx context.Context, key string) ([]byte, error) {
	return g.c.Get(ctx, key).Bytes()
}

func (g *GoRedisClient) Del(ctx context.Context, key string) error {
	return g.c.Del(ctx, key).Err()
}

func (g *GoRedisClient) FlushDB(ctx context.Context) error {
	return g.c.FlushDB(ctx).Err()
}

func (g *GoRedisClient) DBSize(ctx context.Context) (int64, error) {
	return g.c.DBSize(ctx).Result()
}

func (g *GoRedisClient) UsedMemory(ctx context.Context) (int64, error) {
	info, err := g.c.Info(ctx, "memory").Result()
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(info, "\r\n") {
		if strings.HasPrefix(line, "used_memory:") {
			return strconv.ParseInt(strings.TrimPrefix(line, "used_memory:"), 10, 64)
		}
	}
	return 0, nil
}
