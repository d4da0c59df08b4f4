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
	"fmt"
	"os"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/dcrosta/cacheorbust/internal/fetch"
	"github.com/dcrosta/cacheorbust/internal/metrics"
	"github.com/dcrosta/cacheorbust/internal/ttlkv"
)

// Service ties the TTL-KV, HTTP client pool, fetch worker pool, op counters
// and TCP server together behind the configure/start/stop/finish lifecycle
// of spec.md §2 item 6 and §4.5. The TTL-KV and logger are borrowed (not
// owned, per spec.md §9); the fetch queue, client pool and server listener
// are owned. Finish tears down the server and fetch queue in reverse
// construction order; the client pool has no teardown step.
type Service struct {
	cfg Config
	log zerolog.Logger
	kv  ttlkv.Store

	pool     *fetch.ClientPool
	queue    *fetch.Queue
	counters *OpCounters
	handler  *Handler
	server   *Server

	metricsEndpoint *metrics.Endpoint

	connCount atomic.Int64
}

// Configure parses options (per spec.md §4.5/§6) and records kv and log as
// borrowed collaborators. It does not bind a listener or start any
// goroutines; call Start for that.
func Configure(kv ttlkv.Store, log zerolog.Logger, options string) *Service {
	cfg := ParseConfig(options, log)
	return &Service{
		cfg: cfg,
		log: log,
		kv:  kv,
	}
}

// Start resolves the configured address, constructs and starts the fetch
// worker pool, and binds and starts the TCP server. The optional metrics
// endpoint (SPEC_FULL.md §4.5 expansion) is started first so a bad
// metrics_addr fails fast before any pool or listener is created.
func (s *Service) Start() error {
	var mirror *metrics.Counters
	if s.cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		mirror = metrics.NewCounters(reg)
		ep, err := metrics.Serve(s.cfg.MetricsAddr, reg, s.log)
		if err != nil {
			return fmt.Errorf("start metrics endpoint: %w", err)
		}
		s.metricsEndpoint = ep
		metrics.RegisterGauges(reg,
			func() float64 { return float64(s.queue.Depth()) },
			func() float64 { return float64(s.pool.Size()) },
		)
	}

	s.counters = NewOpCounters(s.cfg.ServerThreads, mirror)
	s.pool = fetch.NewClientPool(s.cfg.FetcherThreads, s.cfg.Keepalive)
	s.queue = fetch.NewQueue(s.cfg.FetcherThreads, s.kv, s.pool, s.counters, s.log)
	s.queue.Start()

	s.handler = NewHandler(s.kv, s.queue, s.counters, s.cfg.TTL, s.cfg.ServerThreads, os.Getpid(), &s.connCount)

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	srv, err := NewServer(addr, s.cfg.ServerThreads, s.handler, &s.connCount, s.log)
	if err != nil {
		s.log.Error().Err(err).Str("addr", addr).Msg("failed to resolve/bind listen address")
		s.queue.Stop()
		s.queue.Wait()
		return fmt.Errorf("start server: %w", err)
	}
	s.server = srv
	s.server.Start()

	s.log.Info().Str("addr", s.server.Addr()).Msg("cacheorbust listening")
	return nil
}

// Addr reports the server's bound listen address, primarily for tests that
// configure port 0.
func (s *Service) Addr() string {
	return s.server.Addr()
}

// Stop signals the server to stop accepting new connections, per spec.md
// §4.5. In-flight sessions drain on their own per the transport policy
// (idle timeout or client-initiated quit/close).
func (s *Service) Stop() error {
	return s.server.Stop()
}

// Finish joins the server and fetch queue and releases owned resources, in
// reverse construction order: server, then queue, then the metrics
// endpoint. The client pool is left as it is; its idle clients are not
// closed here.
func (s *Service) Finish() {
	s.server.Wait()
	s.queue.Stop()
	s.queue.Wait()
	if s.metricsEndpoint != nil {
		s.metricsEndpoint.Close()
	}
}
