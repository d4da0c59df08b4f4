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
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Config holds the result of parsing an option string, per spec.md §4.5 and
// §6, plus the SPEC_FULL.md §4.5 expansion fields (metrics_addr, ttl_kv,
// ttl_kv_addr, ttl_kv_prefix). Service uses MetricsAddr to start the opt-in
// metrics endpoint; the TTL-KV fields are parsed and kept here, but nothing
// in this package builds a backend from them (the Store is passed to
// Configure ready-made).
type Config struct {
	Host           string
	Port           int
	ServerThreads  int
	FetcherThreads int
	TTL            int32
	Keepalive      bool

	MetricsAddr string // empty disables the /metrics endpoint

	TTLKVAdapter string // "" or "memory" (default), or "redis"
	TTLKVAddr    string // redis address, required when adapter=="redis"
	TTLKVPrefix  string // redis key prefix, optional
}

// DefaultConfig returns the option defaults of spec.md §4.5.
func DefaultConfig() Config {
	return Config{
		Host:           "",
		Port:           6080,
		ServerThreads:  16,
		FetcherThreads: 16,
		TTL:            3600,
		Keepalive:      true,
	}
}

// ParseConfig parses options as "#"-separated key=value pairs, per spec.md
// §4.5 and §6. Unknown options are logged at ERROR and skipped — never
// rejected — matching configure()'s documented tolerance. Malformed numeric
// values fall back to the default and are also logged at ERROR, since the
// source gave no defined coercion for them (unlike the `get` command's TTL
// argument, which spec.md §4.1 explicitly requires accepting and coercing).
func ParseConfig(options string, log zerolog.Logger) Config {
	cfg := DefaultConfig()
	if options == "" {
		return cfg
	}

	for _, pair := range strings.Split(options, "#") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			log.Error().Str("option", pair).Msg("malformed config option, missing '='")
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "host":
			cfg.Host = value
		case "port":
			if n, err := strconv.Atoi(value); err == nil {
				cfg.Port = n
			} else {
				log.Error().Str("value", value).Msg("malformed port, using default")
			}
		case "server_threads":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				cfg.ServerThreads = n
			} else {
				log.Error().Str("value", value).Msg("malformed server_threads, using default")
			}
		case "fetcher_threads":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				cfg.FetcherThreads = n
			} else {
				log.Error().Str("value", value).Msg("malformed fetcher_threads, using default")
			}
		case "ttl":
			if n, err := strconv.ParseInt(value, 10, 32); err == nil {
				cfg.TTL = int32(n)
			} else {
				log.Error().Str("value", value).Msg("malformed ttl, using default")
			}
		case "keepalive":
			// spec.md §9: the source inverts this comparison (effectively
			// treating any non-"true" as true). Use correct equality.
			switch value {
			case "true":
				cfg.Keepalive = true
			case "false":
				cfg.Keepalive = false
			default:
				log.Error().Str("value", value).Msg("malformed keepalive, using default true")
				cfg.Keepalive = true
			}
		case "metrics_addr":
			cfg.MetricsAddr = value
		case "ttl_kv":
			cfg.TTLKVAdapter = value
		case "ttl_kv_addr":
			cfg.TTLKVAddr = value
		case "ttl_kv_prefix":
			cfg.TTLKVPrefix = value
		default:
			log.Error().Str("option", key).Msg("unknown config option, ignoring")
		}
	}

	return cfg
}
