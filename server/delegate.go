// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import "github.com/z5labs/httpsvc/httpmsg"

// Delegate forwards every method to the wrapped Server. Embed it to
// decorate a Server while only overriding the methods of interest.
type Delegate struct {
	Server Server
}

// Start implements the [Server] interface.
func (d Delegate) Start() error {
	return d.Server.Start()
}

// Stop implements the [Server] interface.
func (d Delegate) Stop() error {
	return d.Server.Stop()
}

// Dispose implements the [Server] interface.
func (d Delegate) Dispose() error {
	return d.Server.Dispose()
}

// Address implements the [Server] interface.
func (d Delegate) Address() Address {
	return d.Server.Address()
}

// Protocol implements the [Server] interface.
func (d Delegate) Protocol() httpmsg.Protocol {
	return d.Server.Protocol()
}

// IsStopping implements the [Server] interface.
func (d Delegate) IsStopping() bool {
	return d.Server.IsStopping()
}

// IsStopped implements the [Server] interface.
func (d Delegate) IsStopped() bool {
	return d.Server.IsStopped()
}

// AddRequestHandler implements the [Server] interface.
func (d Delegate) AddRequestHandler(methods []string, path string, h RequestHandler) HandlerManager {
	return d.Server.AddRequestHandler(methods, path, h)
}

// AddWebSocketHandler implements the [Server] interface.
func (d Delegate) AddWebSocketHandler(h WebSocketHandler) HandlerManager {
	return d.Server.AddWebSocketHandler(h)
}
