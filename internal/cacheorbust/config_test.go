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
	"testing"

	"github.com/rs/zerolog"
)

func TestParseConfig_Defaults(t *testing.T) {
	cfg := ParseConfig("", zerolog.Nop())
	want := DefaultConfig()
	if cfg != want {
		t.Fatalf("got %+v, want %+v", cfg, want)
	}
}

func TestParseConfig_Overrides(t *testing.T) {
	cfg := ParseConfig("host=10.0.0.1#port=7000#server_threads=4#fetcher_threads=8#ttl=120#keepalive=false", zerolog.Nop())
	if cfg.Host != "10.0.0.1" || cfg.Port != 7000 || cfg.ServerThreads != 4 || cfg.FetcherThreads != 8 || cfg.TTL != 120 || cfg.Keepalive {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestParseConfig_KeepaliveEqualityNotInverted(t *testing.T) {
	// spec.md §9: the source's keepalive parsing inverts the comparison.
	// Any value other than the literal "false" must NOT be treated as
	// false, and any value other than the literal "true" must NOT be
	// treated as true — malformed values fall back to the documented
	// default (true), logged at ERROR.
	cases := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"false", false},
		{"yes", true},
		{"0", true},
		{"", true},
	}
	for _, c := range cases {
		cfg := ParseConfig("keepalive="+c.value, zerolog.Nop())
		if cfg.Keepalive != c.want {
			t.Fatalf("keepalive=%q: got %v, want %v", c.value, cfg.Keepalive, c.want)
		}
	}
}

func TestParseConfig_UnknownOptionIgnored(t *testing.T) {
	cfg := ParseConfig("bogus=1#port=9090", zerolog.Nop())
	if cfg.Port != 9090 {
		t.Fatalf("expected known options still applied, got %+v", cfg)
	}
}

func TestParseConfig_MalformedNumericFallsBackToDefault(t *testing.T) {
	cfg := ParseConfig("port=not-a-number#server_threads=-5", zerolog.Nop())
	want := DefaultConfig()
	if cfg.Port != want.Port || cfg.ServerThreads != want.ServerThreads {
		t.Fatalf("expected defaults on malformed numeric input, got %+v", cfg)
	}
}

func TestParseConfig_ExpansionOptions(t *testing.T) {
	cfg := ParseConfig("metrics_addr=127.0.0.1:9999#ttl_kv=redis#ttl_kv_addr=127.0.0.1:6379#ttl_kv_prefix=cob:", zerolog.Nop())
	if cfg.MetricsAddr != "127.0.0.1:9999" || cfg.TTLKVAdapter != "redis" || cfg.TTLKVAddr != "127.0.0.1:6379" || cfg.TTLKVPrefix != "cob:" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}
