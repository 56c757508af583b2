// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"

	"github.com/z5labs/httpsvc/internal/fixedpool"
	"github.com/z5labs/httpsvc/internal/noop"
	"github.com/z5labs/httpsvc/internal/otelslog"
	"github.com/z5labs/httpsvc/internal/slogfield"
	"github.com/z5labs/httpsvc/streaming"
	"github.com/z5labs/httpsvc/transport"
	"github.com/z5labs/httpsvc/worker"
)

type managerOptions struct {
	logHandler       slog.Handler
	selectors        int
	workers          int
	queueSize        int
	streamingOpts    []streaming.Option
	transportMetrics *transport.Metrics
}

// ManagerOption configures a [Manager].
type ManagerOption func(*managerOptions)

// LogHandler sets the handler every component created by the manager logs to.
func LogHandler(h slog.Handler) ManagerOption {
	return func(mo *managerOptions) {
		mo.logHandler = h
	}
}

// Selectors sets the number of transport loops.
func Selectors(n int) ManagerOption {
	return func(mo *managerOptions) {
		mo.selectors = n
	}
}

// Workers sets the size of the default worker pool.
func Workers(n int) ManagerOption {
	return func(mo *managerOptions) {
		mo.workers = n
	}
}

// WorkerQueueSize sets how many handed off steps may wait for a worker.
func WorkerQueueSize(n int) ManagerOption {
	return func(mo *managerOptions) {
		mo.queueSize = n
	}
}

// StreamingOptions are applied to the streaming engine of every server.
func StreamingOptions(opts ...streaming.Option) ManagerOption {
	return func(mo *managerOptions) {
		mo.streamingOpts = append(mo.streamingOpts, opts...)
	}
}

// TransportMetrics sets the collectors every transport server reports to.
func TransportMetrics(m *transport.Metrics) ManagerOption {
	return func(mo *managerOptions) {
		mo.transportMetrics = m
	}
}

// DefaultSelectors returns the default transport loop count,
// GOMAXPROCS but at least 2.
func DefaultSelectors() int {
	return max(runtime.GOMAXPROCS(0), 2)
}

// Manager owns the transport loops, worker pool and registry shared by
// every server it creates.
type Manager struct {
	log  *slog.Logger
	opts managerOptions

	initOnce sync.Once
	mu       sync.Mutex
	ready    bool
	disposed bool
	loops    *transport.LoopGroup
	pool     *worker.Pool
	running  *fixedpool.Running
	registry *Registry
}

// NewManager returns a manager which must be initialized before use.
func NewManager(opts ...ManagerOption) *Manager {
	mo := managerOptions{
		logHandler: noop.LogHandler{},
		selectors:  DefaultSelectors(),
		workers:    worker.ForIO(0),
	}
	for _, opt := range opts {
		opt(&mo)
	}
	return &Manager{
		log:  otelslog.New(mo.logHandler),
		opts: mo,
	}
}

// Init starts the transport loops and worker pool. Only the first call
// has any effect; the loops and workers stop when Dispose is called.
func (m *Manager) Init(ctx context.Context) {
	m.initOnce.Do(func() {
		var poolOpts []worker.Option
		poolOpts = append(poolOpts, worker.LogHandler(m.opts.logHandler))
		if m.opts.queueSize > 0 {
			poolOpts = append(poolOpts, worker.QueueSize(m.opts.queueSize))
		}

		m.mu.Lock()
		defer m.mu.Unlock()

		m.loops = transport.NewLoopGroup(m.opts.selectors, m.opts.logHandler)
		m.pool = worker.NewPool(m.opts.workers, poolOpts...)
		m.registry = NewRegistry()
		m.running = fixedpool.Start(context.WithoutCancel(ctx), m.loops.Run, m.pool.Run)
		m.ready = true

		m.log.InfoContext(
			ctx,
			"initialized connection manager",
			slogfield.Int("selectors", m.loops.Len()),
			slogfield.Int("workers", m.pool.Size()),
		)
	})
}

func (m *Manager) state() (*Registry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.ready || m.disposed {
		return nil, ErrNotInitialized
	}
	return m.registry, nil
}

// Create creates, but does not start, a server for cfg in the given
// deployment context.
func (m *Manager) Create(cfg Configuration, contextID string) (Server, error) {
	registry, err := m.state()
	if err != nil {
		return nil, err
	}

	id := Identifier{Context: contextID, Name: cfg.Name}
	addr, err := ResolveAddress(cfg.Host, cfg.Port)
	if err != nil {
		return nil, CreationError{Identifier: id, Cause: err}
	}

	return registry.Create(addr, id, cfg.Protocol(), func(addr Address) (Server, error) {
		var exec streaming.Executor = m.pool
		if cfg.Workers != nil {
			if w := cfg.Workers(); w != nil {
				exec = w
			}
		}
		engine := streaming.NewEngine(exec, append([]streaming.Option{streaming.LogHandler(m.opts.logHandler)}, m.opts.streamingOpts...)...)

		s := newListenerServer(
			m.log,
			addr,
			cfg,
			m.loops,
			engine,
			transport.LogHandler(m.opts.logHandler),
			transport.WithMetrics(m.opts.transportMetrics),
		)
		m.log.Info("created server", slogfield.Server(id), slogfield.Address(addr))
		return s, nil
	})
}

// Lookup returns the server created for id.
func (m *Manager) Lookup(id Identifier) (Server, error) {
	registry, err := m.state()
	if err != nil {
		return nil, err
	}
	return registry.Lookup(id)
}

// ContainsServerFor reports whether a server for id exists at addr.
func (m *Manager) ContainsServerFor(addr Address, id Identifier) bool {
	registry, err := m.state()
	if err != nil {
		return false
	}
	return registry.Contains(addr, id)
}

// Dispose disposes every server and stops the loops and workers.
func (m *Manager) Dispose() error {
	m.mu.Lock()
	if !m.ready || m.disposed {
		m.mu.Unlock()
		return nil
	}
	m.disposed = true
	registry := m.registry
	running := m.running
	pool := m.pool
	m.mu.Unlock()

	disposeErr := registry.DisposeAll()
	pool.Close()
	return errors.Join(disposeErr, running.Stop())
}
