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
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// sessionIdleTimeout is the 30s inactivity deadline of spec.md §5.
const sessionIdleTimeout = 30 * time.Second

// Server is the TCP accept loop and fixed server_threads-sized worker pool
// of spec.md §2 item 5 and §5, grounded on the accept-then-dispatch shape
// of original_source/server.cc. Each worker owns a stable threadID in
// [0, serverThreads) for lock-free per-thread op counter increments.
type Server struct {
	listener net.Listener
	handler  *Handler
	log      zerolog.Logger

	threads   int
	connCount *atomic.Int64

	conns chan net.Conn
	wg    sync.WaitGroup
}

// NewServer binds addr ("host:port", host may be empty for all interfaces)
// and prepares threads worker goroutines. It does not start accepting until
// Start is called.
func NewServer(addr string, threads int, handler *Handler, connCount *atomic.Int64, log zerolog.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	if threads <= 0 {
		threads = 1
	}
	return &Server{
		listener:  ln,
		handler:   handler,
		log:       log,
		threads:   threads,
		connCount: connCount,
		conns:     make(chan net.Conn, threads),
	}, nil
}

// Addr reports the bound listen address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start launches the worker goroutines and the accept loop. It returns
// immediately; the accept loop and workers run in the background.
func (s *Server) Start() {
	for id := 0; id < s.threads; id++ {
		s.wg.Add(1)
		go s.worker(id)
	}
	s.wg.Add(1)
	go s.acceptLoop()
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	defer close(s.conns)
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Error().Err(err).Msg("accept failed")
			return
		}
		s.conns <- conn
	}
}

func (s *Server) worker(threadID int) {
	defer s.wg.Done()
	for conn := range s.conns {
		s.handleConn(threadID, conn)
	}
}

func (s *Server) handleConn(threadID int, conn net.Conn) {
	s.connCount.Add(1)
	defer s.connCount.Add(-1)
	defer conn.Close()

	reader := bufio.NewReaderSize(conn, maxLineBytes+1)
	ctx := context.Background()

	for {
		conn.SetReadDeadline(time.Now().Add(sessionIdleTimeout))

		// ReadSlice (rather than ReadString) bounds memory use to the
		// reader's buffer: a line with no newline within maxLineBytes
		// returns bufio.ErrBufferFull instead of growing unbounded.
		raw, err := reader.ReadSlice('\n')
		if err == bufio.ErrBufferFull {
			return
		}
		if err != nil {
			return
		}
		if len(raw) > maxLineBytes {
			return
		}
		line := strings.TrimRight(string(raw), "\r\n")

		resp, closeSession := s.handler.HandleLine(ctx, threadID, line)
		if resp != nil {
			if _, err := conn.Write(resp); err != nil {
				return
			}
		}
		if closeSession {
			return
		}
	}
}

// Stop closes the listener, which unblocks Accept and begins draining
// in-flight sessions per spec.md §4.5; it does not forcibly close open
// connections.
func (s *Server) Stop() error {
	return s.listener.Close()
}

// Wait blocks until the accept loop and all worker goroutines have
// returned (i.e. every in-flight connection has been closed by its peer,
// by idle timeout, or by quit).
func (s *Server) Wait() {
	s.wg.Wait()
}
