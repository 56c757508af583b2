// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/z5labs/httpsvc/httpmsg"
	"github.com/z5labs/httpsvc/internal/slogfield"
	"github.com/z5labs/httpsvc/internal/try"
	"github.com/z5labs/httpsvc/streaming"
	"github.com/z5labs/httpsvc/transport"

	"github.com/gorilla/websocket"
)

// disposeTimeout bounds how long Dispose waits for connections to go away.
const disposeTimeout = 10 * time.Second

// listenerServer is a Server backed by a transport.Server.
type listenerServer struct {
	log      *slog.Logger
	addr     Address
	protocol httpmsg.Protocol
	ts       *transport.Server
	engine   *streaming.Engine
	handlers *handlerTable
	upgrader websocket.Upgrader
	disposed atomic.Bool
}

func newListenerServer(log *slog.Logger, addr Address, cfg Configuration, loops *transport.LoopGroup, engine *streaming.Engine, opts ...transport.ServerOption) *listenerServer {
	s := &listenerServer{
		log:      log.With(slogfield.Address(addr)),
		addr:     addr,
		protocol: cfg.Protocol(),
		engine:   engine,
		handlers: &handlerTable{},
	}
	opts = append(
		opts,
		transport.TLSConfig(cfg.TLS),
		transport.PersistentConnections(cfg.UsePersistentConnections),
		transport.IdleTimeout(cfg.ConnectionIdleTimeout),
	)
	s.ts = transport.NewServer(addr.String(), loops, transport.HandlerFunc(s.serve), opts...)
	return s
}

func (s *listenerServer) Start() error {
	if s.disposed.Load() {
		return ErrDisposedListener
	}
	err := s.ts.Start()
	if err != nil {
		return err
	}
	s.log.Info("started listening", slogfield.String("protocol", string(s.protocol)))
	return nil
}

func (s *listenerServer) Stop() error {
	err := s.ts.Stop()
	s.log.Info("stopped listening")
	return err
}

func (s *listenerServer) Dispose() error {
	if !s.disposed.CompareAndSwap(false, true) {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), disposeTimeout)
	defer cancel()
	return s.ts.Close(ctx)
}

// Address returns the bound address once started, which differs from
// the configured one when listening on port 0.
func (s *listenerServer) Address() Address {
	if addr := s.ts.Addr(); addr != nil {
		if a, ok := addressOf(addr); ok {
			return a
		}
	}
	return s.addr
}

func (s *listenerServer) Protocol() httpmsg.Protocol {
	return s.protocol
}

func (s *listenerServer) IsStopping() bool {
	return s.ts.IsStopping()
}

func (s *listenerServer) IsStopped() bool {
	return s.ts.IsStopped()
}

func (s *listenerServer) AddRequestHandler(methods []string, path string, h RequestHandler) HandlerManager {
	return s.handlers.add(methods, path, h)
}

func (s *listenerServer) AddWebSocketHandler(h WebSocketHandler) HandlerManager {
	return s.handlers.addWebSocket(h)
}

func (s *listenerServer) serve(ex *transport.Exchange) {
	req := ex.Request()
	if websocket.IsWebSocketUpgrade(ex.HTTPRequest()) {
		s.serveWebSocket(ex)
		return
	}

	r, status := s.handlers.lookup(req.Method, req.Path())
	w := newResponder(s, ex)
	if r == nil {
		w.status(status)
		return
	}

	err := try.Call(func() error {
		r.handler.Handle(req, w)
		return nil
	})
	if err != nil {
		s.log.Error("request handler panicked", slogfield.Error(err), slogfield.Path(req.Path()))
		w.status(http.StatusInternalServerError)
	}
}

// exchange adapts a transport exchange to the streaming engine.
type exchange struct {
	ex *transport.Exchange
}

func (e exchange) Conn() streaming.Conn {
	c := e.ex.Conn()
	if c == nil {
		return nil
	}
	return c
}

func (e exchange) Request() *httpmsg.Request {
	return e.ex.Request()
}

func (e exchange) KeepAlive() bool {
	return e.ex.KeepAlive()
}

// responder sends the single response of an exchange and releases the
// exchange once the response is done.
type responder struct {
	s         *listenerServer
	ex        *transport.Exchange
	responded atomic.Bool
}

func newResponder(s *listenerServer, ex *transport.Exchange) *responder {
	return &responder{s: s, ex: ex}
}

// Respond implements the [Responder] interface.
func (w *responder) Respond(resp *httpmsg.Response, cb streaming.ResponseCallback) error {
	if !w.responded.CompareAndSwap(false, true) {
		return nil
	}
	if cb == nil {
		cb = streaming.CallbackFuncs{}
	}

	release := streaming.CallbackFuncs{
		Sent: func() {
			w.ex.Release()
			cb.OnSent()
		},
		Error: func(err error) {
			w.ex.Release()
			cb.OnError(err)
		},
	}
	err := w.s.engine.Send(exchange{ex: w.ex}, resp, release)
	if err == nil {
		return nil
	}

	w.s.log.Error("failed to prepare response", slogfield.Error(err), slogfield.Path(w.ex.Request().Path()))
	w.send(http.StatusInternalServerError, nil)
	return err
}

func (w *responder) status(code int) {
	if !w.responded.CompareAndSwap(false, true) {
		return
	}
	w.send(code, nil)
}

func (w *responder) send(code int, header http.Header) {
	if header == nil {
		header = make(http.Header)
	}
	if header.Get("Content-Type") == "" {
		header.Set("Content-Type", "text/plain; charset=utf-8")
	}
	resp := &httpmsg.Response{
		StatusCode: code,
		Header:     header,
		Entity:     httpmsg.Bytes([]byte(http.StatusText(code))),
	}
	err := w.s.engine.Send(exchange{ex: w.ex}, resp, streaming.CallbackFuncs{
		Sent:  w.ex.Release,
		Error: func(error) { w.ex.Release() },
	})
	if err != nil {
		w.ex.Release()
	}
}
