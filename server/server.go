// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package server creates, tracks and serves HTTP listening endpoints.
//
// A [Manager] owns the transport loops and worker pool shared by every
// server. Servers are registered in a [Registry] keyed by address and
// [Identifier]; several identifiers may share one address, each holding
// its own handle onto the same listening server.
package server

import (
	"github.com/z5labs/httpsvc/httpmsg"
	"github.com/z5labs/httpsvc/streaming"

	"github.com/gorilla/websocket"
)

// Server is one listening endpoint.
type Server interface {
	// Start begins accepting connections.
	Start() error

	// Stop stops accepting connections. Open connections keep draining.
	Stop() error

	// Dispose releases every resource held by the server. Calling it
	// more than once is a no-op.
	Dispose() error

	Address() Address
	Protocol() httpmsg.Protocol
	IsStopping() bool
	IsStopped() bool

	// AddRequestHandler registers h for requests whose path matches path
	// and whose method is in methods. An empty methods matches any
	// method. A path ending in "/*" matches every path below it.
	AddRequestHandler(methods []string, path string, h RequestHandler) HandlerManager

	// AddWebSocketHandler registers h for upgrade requests to h.Path().
	AddWebSocketHandler(h WebSocketHandler) HandlerManager
}

// HandlerManager controls a registered handler.
type HandlerManager interface {
	// Start makes the handler serve matching requests.
	Start()

	// Stop makes matching requests get a 503 response.
	Stop()

	// Dispose removes the handler.
	Dispose()
}

// Responder sends the response to a request. Only the first call to
// Respond has any effect.
type Responder interface {
	Respond(resp *httpmsg.Response, cb streaming.ResponseCallback) error
}

// RequestHandler handles requests. Handle runs on a transport loop and
// should respond without blocking, e.g. with a streaming entity.
type RequestHandler interface {
	Handle(req *httpmsg.Request, w Responder)
}

// RequestHandlerFunc is a functional implementation of [RequestHandler].
type RequestHandlerFunc func(*httpmsg.Request, Responder)

// Handle implements the [RequestHandler] interface.
func (f RequestHandlerFunc) Handle(req *httpmsg.Request, w Responder) {
	f(req, w)
}

// WebSocketHandler serves upgraded WebSocket connections. ServeWebSocket
// runs on its own goroutine and owns conn.
type WebSocketHandler interface {
	Path() string
	ServeWebSocket(conn *websocket.Conn, req *httpmsg.Request)
}
