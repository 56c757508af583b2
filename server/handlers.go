// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
)

type routeState int32

const (
	routeStarted routeState = iota
	routeStopped
	routeDisposed
)

type route struct {
	table   *handlerTable
	methods map[string]struct{}
	path    string
	prefix  bool
	state   atomic.Int32

	handler   RequestHandler
	websocket WebSocketHandler
}

// Start implements the [HandlerManager] interface.
func (r *route) Start() {
	r.state.CompareAndSwap(int32(routeStopped), int32(routeStarted))
}

// Stop implements the [HandlerManager] interface.
func (r *route) Stop() {
	r.state.CompareAndSwap(int32(routeStarted), int32(routeStopped))
}

// Dispose implements the [HandlerManager] interface.
func (r *route) Dispose() {
	if routeState(r.state.Swap(int32(routeDisposed))) == routeDisposed {
		return
	}
	r.table.remove(r)
}

func (r *route) matchesPath(path string) bool {
	if !r.prefix {
		return path == r.path
	}
	return path == r.path || strings.HasPrefix(path, r.path+"/") || r.path == ""
}

func (r *route) allows(method string) bool {
	if len(r.methods) == 0 {
		return true
	}
	_, ok := r.methods[method]
	return ok
}

// handlerTable matches requests against registered paths. Exact paths
// win over prefixes and longer prefixes over shorter ones.
type handlerTable struct {
	mu     sync.RWMutex
	routes []*route
	ws     []*route
}

func newRoute(t *handlerTable, methods []string, path string) *route {
	r := &route{table: t}
	if len(methods) > 0 {
		r.methods = make(map[string]struct{}, len(methods))
		for _, m := range methods {
			r.methods[strings.ToUpper(m)] = struct{}{}
		}
	}
	if p, ok := strings.CutSuffix(path, "/*"); ok {
		r.path = p
		r.prefix = true
	} else {
		r.path = path
	}
	return r
}

func (t *handlerTable) add(methods []string, path string, h RequestHandler) *route {
	r := newRoute(t, methods, path)
	r.handler = h

	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes = append(t.routes, r)
	return r
}

func (t *handlerTable) addWebSocket(h WebSocketHandler) *route {
	r := newRoute(t, nil, h.Path())
	r.websocket = h

	t.mu.Lock()
	defer t.mu.Unlock()
	t.ws = append(t.ws, r)
	return r
}

func (t *handlerTable) remove(r *route) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.routes = without(t.routes, r)
	t.ws = without(t.ws, r)
}

func without(routes []*route, r *route) []*route {
	out := routes[:0:0]
	for _, x := range routes {
		if x != r {
			out = append(out, x)
		}
	}
	return out
}

// lookup returns the route for a request and the status to answer with
// when there is no route to serve it.
func (t *handlerTable) lookup(method, path string) (*route, int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return match(t.routes, method, path)
}

func (t *handlerTable) lookupWebSocket(path string) (*route, int) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return match(t.ws, http.MethodGet, path)
}

func match(routes []*route, method, path string) (*route, int) {
	var (
		best        *route
		pathMatched bool
	)
	for _, r := range routes {
		if !r.matchesPath(path) {
			continue
		}
		pathMatched = true
		if !r.allows(method) {
			continue
		}
		if best == nil || better(r, best) {
			best = r
		}
	}
	switch {
	case best == nil && pathMatched:
		return nil, http.StatusMethodNotAllowed
	case best == nil:
		return nil, http.StatusNotFound
	case routeState(best.state.Load()) != routeStarted:
		return nil, http.StatusServiceUnavailable
	}
	return best, 0
}

func better(a, b *route) bool {
	if a.prefix != b.prefix {
		return !a.prefix
	}
	return len(a.path) > len(b.path)
}
