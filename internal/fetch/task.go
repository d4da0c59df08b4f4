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

// Package fetch implements the bounded worker pool that fills cache misses:
// it consumes Tasks, performs one HTTP GET per task through a keep-alive
// client pool, and writes the result back to a ttlkv.Store.
package fetch

// Task is an immutable unit of work: fetch url over HTTP and store the
// response body under key with the given ttl. Grounded on cob::FetchTask in
// original_source/fetch.h — key/url/ttl fields carried over verbatim.
type Task struct {
	Key string
	URL string
	TTL int32
}

// NewTask constructs a Task. It exists mainly so call sites read like the
// original constructor (FetchTask(key, url, ttl)) rather than a bare struct
// literal.
func NewTask(key, url string, ttl int32) Task {
	return Task{Key: key, URL: url, TTL: ttl}
}
