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

package metrics

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Endpoint is a started /metrics HTTP server, grounded on the
// startMetricsEndpoint/net.Listen-then-go-http.Serve shape of
// churn/prom_counters.go — listen synchronously so a bad address fails
// Service.Start immediately, then serve in the background.
type Endpoint struct {
	listener net.Listener
	server   *http.Server
	log      zerolog.Logger
}

// Serve binds addr and starts serving reg's metrics in the background. The
// metrics endpoint is opt-in (SPEC_FULL.md §6): callers only invoke Serve
// when a metrics_addr option was configured.
func Serve(addr string, reg *prometheus.Registry, log zerolog.Logger) (*Endpoint, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux}

	e := &Endpoint{listener: ln, server: srv, log: log}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics endpoint stopped unexpectedly")
		}
	}()
	log.Info().Str("addr", ln.Addr().String()).Msg("metrics endpoint listening")
	return e, nil
}

// Addr reports the bound listen address, useful when addr used a ":0" port.
func (e *Endpoint) Addr() string {
	return e.listener.Addr().String()
}

// Close shuts the endpoint down, giving in-flight scrapes up to five seconds
// to complete.
func (e *Endpoint) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return e.server.Shutdown(ctx)
}
