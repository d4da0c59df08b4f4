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

import "fmt"

// Options carries the knobs the Build selector needs for either backend.
type Options struct {
	MemoryBytes int    // Memory backend arena size, in bytes
	RedisAddr   string // Redis backend server address, e.g. "127.0.0.1:6379"
	RedisPrefix string // Redis backend key prefix
}

// Build constructs a Store for the named adapter ("memory" or "redis"),
// mirroring persistence.BuildPersister's string-selector shape so the
// service's config layer can choose a backend without a type switch of its
// own.
func Build(adapter string, opts Options) (Store, error) {
	switch adapter {
	case "", "memory":
		return NewMemory(opts.MemoryBytes), nil
	case "redis":
		if opts.RedisAddr == "" {
			return nil, fmt.Errorf("ttlkv: redis adapter requires RedisAddr")
		}
		return NewRedis(NewGoRedisClient(opts.RedisAddr), opts.RedisPrefix), nil
	default:
		return nil, fmt.Errorf("ttlkv: unknown adapter %q", adapter)
	}
}
