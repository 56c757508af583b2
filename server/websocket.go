// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"bufio"
	"bytes"
	"net"
	"net/http"

	"github.com/z5labs/httpsvc/httpmsg"
	"github.com/z5labs/httpsvc/internal/slogfield"
	"github.com/z5labs/httpsvc/internal/try"
	"github.com/z5labs/httpsvc/transport"
)

func (s *listenerServer) serveWebSocket(ex *transport.Exchange) {
	req := ex.Request()
	r, status := s.handlers.lookupWebSocket(req.Path())
	if r == nil {
		newResponder(s, ex).status(status)
		return
	}

	w := &upgradeWriter{ex: ex, header: make(http.Header)}
	conn, err := s.upgrader.Upgrade(w, ex.HTTPRequest(), nil)
	if err != nil {
		s.log.Debug("websocket upgrade failed", slogfield.Error(err), slogfield.Path(req.Path()))
		if !w.hijacked {
			w.flush(s)
		}
		return
	}

	h := r.websocket
	go func() {
		defer conn.Close()

		err := try.Call(func() error {
			h.ServeWebSocket(conn, req)
			return nil
		})
		if err != nil {
			s.log.Error("websocket handler panicked", slogfield.Error(err), slogfield.Path(req.Path()))
		}
	}()
}

// upgradeWriter is the http.ResponseWriter the upgrader sees. The
// handshake itself is written by the upgrader after Hijack; anything
// written before that is a rejection sent through the streaming engine.
type upgradeWriter struct {
	ex       *transport.Exchange
	header   http.Header
	status   int
	body     bytes.Buffer
	hijacked bool
}

func (w *upgradeWriter) Header() http.Header {
	return w.header
}

func (w *upgradeWriter) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
}

func (w *upgradeWriter) Write(p []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(p)
}

func (w *upgradeWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	nc, brw, err := w.ex.Hijack()
	if err != nil {
		return nil, nil, err
	}
	w.hijacked = true
	return nc, brw, nil
}

func (w *upgradeWriter) flush(s *listenerServer) {
	status := w.status
	if status == 0 {
		status = http.StatusBadRequest
	}
	resp := &httpmsg.Response{
		StatusCode: status,
		Header:     w.header,
		Entity:     httpmsg.Bytes(w.body.Bytes()),
	}
	rw := newResponder(s, w.ex)
	err := rw.Respond(resp, nil)
	if err != nil {
		w.ex.Release()
	}
}
