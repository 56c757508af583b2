// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package transport

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/z5labs/httpsvc/httpmsg"
)

// ErrAlreadyReleased is returned by Hijack once the exchange was released.
var ErrAlreadyReleased = errors.New("transport: exchange already released")

// Exchange is one request read from a connection together with the
// connection its response must be written to. The connection reads no
// further requests until the exchange is released.
type Exchange struct {
	conn      *Conn
	req       *http.Request
	msg       *httpmsg.Request
	br        *bufio.Reader
	keepAlive bool

	mu       sync.Mutex
	released bool
	hijacked bool
	done     chan struct{}
}

func newExchange(c *Conn, br *bufio.Reader, req *http.Request, persistent bool) *Exchange {
	return &Exchange{
		conn:      c,
		req:       req,
		msg:       httpmsg.FromHTTP(req),
		br:        br,
		keepAlive: persistent && !req.Close,
		done:      make(chan struct{}),
	}
}

// Conn returns the connection, or nil once it has been torn down.
func (e *Exchange) Conn() *Conn {
	select {
	case <-e.conn.Closed():
		return nil
	default:
		return e.conn
	}
}

// Request returns the request.
func (e *Exchange) Request() *httpmsg.Request {
	return e.msg
}

// HTTPRequest returns the request as parsed by net/http.
func (e *Exchange) HTTPRequest() *http.Request {
	return e.req
}

// KeepAlive reports whether the connection may be reused after the
// response, absent any Connection header on the response itself.
func (e *Exchange) KeepAlive() bool {
	return e.keepAlive
}

// Release signals that the response has been fully written or abandoned.
// It is safe to call more than once.
func (e *Exchange) Release() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.released {
		return
	}
	e.released = true
	close(e.done)
}

// Hijack takes over the underlying connection. Writes queued before the
// call are flushed first. The exchange is released and the transport no
// longer reads from or closes the connection.
func (e *Exchange) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return nil, nil, ErrAlreadyReleased
	}
	e.mu.Unlock()

	nc, err := e.conn.detach()
	if err != nil {
		return nil, nil, err
	}
	nc.SetDeadline(time.Time{})

	e.mu.Lock()
	e.hijacked = true
	e.mu.Unlock()
	e.Release()

	return nc, bufio.NewReadWriter(e.br, bufio.NewWriter(nc)), nil
}

func (e *Exchange) wasHijacked() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hijacked
}
