// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package worker provides a bounded pool of goroutines for running
// blocking steps away from the transport loops.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/z5labs/httpsvc/internal/noop"
	"github.com/z5labs/httpsvc/internal/otelslog"
	"github.com/z5labs/httpsvc/internal/slogfield"
	"github.com/z5labs/httpsvc/internal/try"

	"golang.org/x/sync/errgroup"
)

var (
	// ErrPoolSaturated is returned by Submit when the task queue is full.
	ErrPoolSaturated = errors.New("worker: pool saturated")

	// ErrPoolClosed is returned by Submit once the pool has been closed.
	ErrPoolClosed = errors.New("worker: pool closed")
)

type options struct {
	logHandler slog.Handler
	queueSize  int
}

// Option configures a [Pool].
type Option func(*options)

// LogHandler sets the handler used for logging task panics.
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = h
	}
}

// QueueSize sets how many submitted tasks may wait for a free worker.
// It defaults to four times the pool size.
func QueueSize(n int) Option {
	return func(o *options) {
		o.queueSize = n
	}
}

// Pool runs submitted tasks on a fixed number of goroutines.
type Pool struct {
	log  *slog.Logger
	size int

	mu     sync.RWMutex
	closed bool
	tasks  chan func()
}

// NewPool returns a pool of size workers. Workers only begin executing
// tasks once Run is called.
func NewPool(size int, opts ...Option) *Pool {
	if size < 1 {
		size = 1
	}
	o := &options{
		logHandler: noop.LogHandler{},
		queueSize:  4 * size,
	}
	for _, opt := range opts {
		opt(o)
	}
	return &Pool{
		log:   otelslog.New(o.logHandler),
		size:  size,
		tasks: make(chan func(), o.queueSize),
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Submit queues f for execution without blocking.
func (p *Pool) Submit(f func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.tasks <- f:
		return nil
	default:
		return ErrPoolSaturated
	}
}

// Close stops accepting new tasks. Tasks already queued are still run.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	close(p.tasks)
}

// Run executes tasks until ctx is cancelled or Close is called. Queued
// tasks are drained before Run returns.
func (p *Pool) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, p.Close)
	defer stop()

	var g errgroup.Group
	for i := 0; i < p.size; i++ {
		g.Go(func() error {
			for f := range p.tasks {
				p.exec(f)
			}
			return nil
		})
	}
	return g.Wait()
}

func (p *Pool) exec(f func()) {
	err := try.Call(func() error {
		f()
		return nil
	})
	if err != nil {
		p.log.Error("worker task panicked", slogfield.Error(err))
	}
}
