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

package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dcrosta/cacheorbust/internal/cacheorbust"
	"github.com/dcrosta/cacheorbust/internal/ttlkv"
)

func main() {
	var (
		options     = flag.String("options", "", "'#'-separated key=value config options (see SPEC_FULL.md §4.5)")
		ttlKV       = flag.String("ttl-kv", "memory", "TTL-KV backend: memory or redis")
		ttlKVAddr   = flag.String("ttl-kv-addr", "", "redis address (required when -ttl-kv=redis)")
		ttlKVPrefix = flag.String("ttl-kv-prefix", "", "redis key prefix")
		memBytes    = flag.Int("ttl-kv-memory-bytes", 0, "in-memory arena size in bytes (0 = default)")
		logPretty   = flag.Bool("log-pretty", false, "human-readable console log output instead of JSON")
	)
	flag.Parse()

	log := newLogger(*logPretty)

	kv, err := ttlkv.Build(*ttlKV, ttlkv.Options{
		MemoryBytes: *memBytes,
		RedisAddr:   *ttlKVAddr,
		RedisPrefix: *ttlKVPrefix,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build TTL-KV backend")
	}

	svc := cacheorbust.Configure(kv, log, *options)
	if err := svc.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start cacheorbust")
	}
	log.Info().Str("addr", svc.Addr()).Msg("cacheorbust started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("shutting down")

	if err := svc.Stop(); err != nil {
		log.Error().Err(err).Msg("error stopping server")
	}

	done := make(chan struct{})
	go func() {
		svc.Finish()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		log.Error().Msg("timed out waiting for in-flight sessions to drain")
	}
}

func newLogger(pretty bool) zerolog.Logger {
	var w = os.Stderr
	if pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}
	return zerolog.New(w).With().Timestamp().Logger()
}
