// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/z5labs/httpsvc/internal/noop"
	"github.com/z5labs/httpsvc/internal/otelslog"
	"github.com/z5labs/httpsvc/internal/slogfield"
	"github.com/z5labs/httpsvc/internal/try"
)

// Handler serves exchanges. ServeExchange runs on the connection's loop
// and must not block; the exchange must eventually be released.
type Handler interface {
	ServeExchange(*Exchange)
}

// HandlerFunc is a functional implementation of [Handler].
type HandlerFunc func(*Exchange)

// ServeExchange implements the [Handler] interface.
func (f HandlerFunc) ServeExchange(ex *Exchange) {
	f(ex)
}

// ErrServerClosed is returned by Start once Close has been called.
var ErrServerClosed = errors.New("transport: server closed")

// maxDrain caps how much of an unread request body is discarded so the
// connection can be reused.
const maxDrain = 256 << 10

type serverOptions struct {
	logHandler  slog.Handler
	tlsConfig   *tls.Config
	persistent  bool
	idleTimeout time.Duration
	metrics     *Metrics
}

// ServerOption configures a [Server].
type ServerOption func(*serverOptions)

// LogHandler sets the server's log handler.
func LogHandler(h slog.Handler) ServerOption {
	return func(so *serverOptions) {
		so.logHandler = h
	}
}

// TLSConfig makes the server accept TLS connections only.
func TLSConfig(cfg *tls.Config) ServerOption {
	return func(so *serverOptions) {
		so.tlsConfig = cfg
	}
}

// PersistentConnections controls whether connections are reused for
// more than one request.
func PersistentConnections(enabled bool) ServerOption {
	return func(so *serverOptions) {
		so.persistent = enabled
	}
}

// IdleTimeout bounds how long a connection may wait for its next request.
// Zero disables the timeout.
func IdleTimeout(d time.Duration) ServerOption {
	return func(so *serverOptions) {
		so.idleTimeout = d
	}
}

// WithMetrics sets the collectors the server reports to.
func WithMetrics(m *Metrics) ServerOption {
	return func(so *serverOptions) {
		so.metrics = m
	}
}

// Server accepts connections on one address and dispatches every request
// read from them to a Handler on the connection's loop.
type Server struct {
	log     *slog.Logger
	addr    string
	loops   *LoopGroup
	handler Handler
	opts    serverOptions

	mu       sync.Mutex
	ln       net.Listener
	stopping bool
	closed   bool
	conns    map[*Conn]struct{}
	accepts  sync.WaitGroup
	readers  sync.WaitGroup
}

// NewServer returns a server for addr. Nothing is bound until Start.
func NewServer(addr string, loops *LoopGroup, h Handler, opts ...ServerOption) *Server {
	so := serverOptions{
		logHandler: noop.LogHandler{},
		persistent: true,
	}
	for _, opt := range opts {
		opt(&so)
	}
	return &Server{
		log:     otelslog.New(so.logHandler),
		addr:    addr,
		loops:   loops,
		handler: h,
		opts:    so,
		conns:   make(map[*Conn]struct{}),
	}
}

// Start binds the address and begins accepting connections. Starting a
// started server is a no-op.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrServerClosed
	}
	if s.ln != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	if s.opts.tlsConfig != nil {
		ln = tls.NewListener(ln, s.opts.tlsConfig)
	}
	s.ln = ln
	s.stopping = false

	s.accepts.Add(1)
	go s.accept(ln)
	return nil
}

// Addr returns the bound address, or nil if the server is not started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Stop stops accepting connections. Open connections keep being served.
func (s *Server) Stop() error {
	s.mu.Lock()
	ln := s.ln
	s.ln = nil
	s.stopping = true
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}
	s.accepts.Wait()

	s.mu.Lock()
	s.stopping = false
	s.mu.Unlock()
	return err
}

// IsStopping reports whether Stop is in progress.
func (s *Server) IsStopping() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopping
}

// IsStopped reports whether the server is not accepting connections.
func (s *Server) IsStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ln == nil
}

// Close stops the server and closes every connection it still owns.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	err := s.Stop()

	s.mu.Lock()
	conns := make([]*Conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.Abort()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.readers.Wait()
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return err
	}
}

func (s *Server) accept(ln net.Listener) {
	defer s.accepts.Done()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			s.log.Error("failed to accept connection", slogfield.Error(err))
			return
		}

		c := newConn(nc, s.loops.Next(), s.opts.metrics)
		c.metrics.connectionAccepted()

		s.mu.Lock()
		s.conns[c] = struct{}{}
		s.mu.Unlock()

		s.readers.Add(1)
		go s.serve(c)
	}
}

func (s *Server) forget(c *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

func (s *Server) serve(c *Conn) {
	defer s.readers.Done()
	defer s.forget(c)

	br := bufio.NewReader(c.nc)
	for {
		if s.opts.idleTimeout > 0 {
			c.nc.SetReadDeadline(time.Now().Add(s.opts.idleTimeout))
		}
		req, err := http.ReadRequest(br)
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				s.log.Debug("closing connection after failed read", slogfield.Error(err))
			}
			c.Close()
			return
		}
		c.nc.SetReadDeadline(time.Time{})
		c.metrics.requestRead()
		req.RemoteAddr = c.nc.RemoteAddr().String()

		ex := newExchange(c, br, req, s.opts.persistent)
		c.loop.Execute(func() {
			err := try.Call(func() error {
				s.handler.ServeExchange(ex)
				return nil
			})
			if err != nil {
				s.log.Error("handler panicked", slogfield.Error(err), slogfield.Path(req.URL.Path))
				c.Abort()
				ex.Release()
			}
		})

		select {
		case <-ex.done:
		case <-c.Closed():
			return
		}
		if ex.wasHijacked() {
			return
		}
		if !c.IsOpen() {
			return
		}
		n, _ := io.CopyN(io.Discard, req.Body, maxDrain+1)
		req.Body.Close()
		if n > maxDrain {
			c.Close()
			return
		}
	}
}
