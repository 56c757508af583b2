// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"errors"
	"fmt"
	"sync"

	"github.com/z5labs/httpsvc/httpmsg"
)

// Factory creates the listening server for a newly used address.
type Factory func(Address) (Server, error)

type entry struct {
	server   Server
	protocol httpmsg.Protocol
	ids      map[Identifier]*handle
	starts   int
}

// Registry tracks which addresses are bound and by which identifiers.
// Identifiers are unique across the registry.
type Registry struct {
	mu      sync.Mutex
	entries map[Address]*entry
	byID    map[Identifier]*handle
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[Address]*entry),
		byID:    make(map[Identifier]*handle),
	}
}

// Create returns a new handle for id at addr. The first identifier at an
// address creates the listening server with factory; later identifiers
// share it. Creating an identifier which is already live, or using an
// address overlapping a different bound address, fails with an
// [AlreadyExistsError].
func (r *Registry) Create(addr Address, id Identifier, protocol httpmsg.Protocol, factory Factory) (Server, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byID[id]; ok {
		return nil, AlreadyExistsError{Address: addr, Identifier: id}
	}

	e, ok := r.entries[addr]
	if !ok {
		for other := range r.entries {
			if other.Overlaps(addr) {
				return nil, AlreadyExistsError{Address: addr, Identifier: id}
			}
		}

		s, err := factory(addr)
		if err != nil {
			return nil, CreationError{Identifier: id, Cause: err}
		}
		e = &entry{
			server:   s,
			protocol: protocol,
			ids:      make(map[Identifier]*handle),
		}
		r.entries[addr] = e
	}
	if e.protocol != protocol {
		return nil, CreationError{
			Identifier: id,
			Cause:      fmt.Errorf("address %s is already serving %s", addr, e.protocol),
		}
	}

	h := &handle{
		Delegate: Delegate{Server: e.server},
		registry: r,
		addr:     addr,
		id:       id,
	}
	e.ids[id] = h
	r.byID[id] = h
	return h, nil
}

// Lookup returns the live handle for id.
func (r *Registry) Lookup(id Identifier) (Server, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.byID[id]
	if !ok {
		return nil, NotFoundError{Identifier: id}
	}
	return h, nil
}

// Contains reports whether id is live at addr.
func (r *Registry) Contains(addr Address, id Identifier) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[addr]
	if !ok {
		return false
	}
	_, ok = e.ids[id]
	return ok
}

// Servers returns a snapshot of the live handles.
func (r *Registry) Servers() []Server {
	r.mu.Lock()
	defer r.mu.Unlock()

	servers := make([]Server, 0, len(r.byID))
	for _, h := range r.byID {
		servers = append(servers, h)
	}
	return servers
}

// DisposeAll disposes every live handle.
func (r *Registry) DisposeAll() error {
	var errs []error
	for _, s := range r.Servers() {
		err := s.Dispose()
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (r *Registry) start(h *handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[h.addr]
	if !ok {
		return DisposedError{Identifier: h.id}
	}
	if e.starts == 0 {
		err := e.server.Start()
		if err != nil {
			return err
		}
	}
	e.starts++
	return nil
}

func (r *Registry) stop(h *handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[h.addr]
	if !ok {
		return nil
	}
	e.starts--
	if e.starts > 0 {
		return nil
	}
	e.starts = 0
	return e.server.Stop()
}

// remove forgets h and disposes the listening server once no identifier
// uses its address anymore.
func (r *Registry) remove(h *handle) error {
	r.mu.Lock()
	e, ok := r.entries[h.addr]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(e.ids, h.id)
	delete(r.byID, h.id)
	if len(e.ids) > 0 {
		r.mu.Unlock()
		return nil
	}
	delete(r.entries, h.addr)
	r.mu.Unlock()

	return e.server.Dispose()
}

// handle is the registry's view of a server for one identifier.
type handle struct {
	Delegate

	registry *Registry
	addr     Address
	id       Identifier

	mu       sync.Mutex
	started  bool
	disposed bool
	managers []HandlerManager
}

// Start implements the [Server] interface.
func (h *handle) Start() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.disposed {
		return DisposedError{Identifier: h.id}
	}
	if h.started {
		return nil
	}
	err := h.registry.start(h)
	if err != nil {
		return err
	}
	h.started = true
	return nil
}

// Stop implements the [Server] interface.
func (h *handle) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stopLocked()
}

func (h *handle) stopLocked() error {
	if !h.started {
		return nil
	}
	h.started = false
	return h.registry.stop(h)
}

// Dispose implements the [Server] interface.
func (h *handle) Dispose() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.disposed {
		return nil
	}
	h.disposed = true

	stopErr := h.stopLocked()
	for _, m := range h.managers {
		m.Dispose()
	}
	h.managers = nil
	return errors.Join(stopErr, h.registry.remove(h))
}

// IsStopped implements the [Server] interface.
func (h *handle) IsStopped() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return !h.started || h.Delegate.IsStopped()
}

// AddRequestHandler implements the [Server] interface.
func (h *handle) AddRequestHandler(methods []string, path string, rh RequestHandler) HandlerManager {
	m := h.Delegate.AddRequestHandler(methods, path, rh)
	h.track(m)
	return m
}

// AddWebSocketHandler implements the [Server] interface.
func (h *handle) AddWebSocketHandler(wh WebSocketHandler) HandlerManager {
	m := h.Delegate.AddWebSocketHandler(wh)
	h.track(m)
	return m
}

func (h *handle) track(m HandlerManager) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.managers = append(h.managers, m)
}
