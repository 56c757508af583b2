// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package transport

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/z5labs/httpsvc/internal/fixedpool"
	"github.com/z5labs/httpsvc/internal/noop"
	"github.com/z5labs/httpsvc/internal/otelslog"
	"github.com/z5labs/httpsvc/internal/slogfield"
	"github.com/z5labs/httpsvc/internal/try"
)

// Loop is a single goroutine which runs callbacks in submission order.
// Write completions, close notifications and request dispatch for the
// connections assigned to a loop all run on it.
type Loop struct {
	log *slog.Logger

	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
}

// NewLoop returns a loop which does nothing until Run is called.
func NewLoop(h slog.Handler) *Loop {
	if h == nil {
		h = noop.LogHandler{}
	}
	return &Loop{
		log:  otelslog.New(h),
		wake: make(chan struct{}, 1),
	}
}

// Execute schedules f to run on the loop. Once the loop has stopped,
// f runs immediately on the calling goroutine.
func (l *Loop) Execute(f func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		l.call(f)
		return
	}
	l.queue = append(l.queue, f)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run processes callbacks until ctx is cancelled. Callbacks queued
// at that point still run before Run returns.
func (l *Loop) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.stopped = true
			rest := l.queue
			l.queue = nil
			l.mu.Unlock()

			for _, f := range rest {
				l.call(f)
			}
			return nil
		case <-l.wake:
		}

		for {
			l.mu.Lock()
			batch := l.queue
			l.queue = nil
			l.mu.Unlock()
			if len(batch) == 0 {
				break
			}
			for _, f := range batch {
				l.call(f)
			}
		}
	}
}

func (l *Loop) call(f func()) {
	err := try.Call(func() error {
		f()
		return nil
	})
	if err != nil {
		l.log.Error("loop callback panicked", slogfield.Error(err))
	}
}

// LoopGroup spreads connections over a fixed number of loops.
type LoopGroup struct {
	loops []*Loop
	next  atomic.Uint64
}

// NewLoopGroup returns n loops, at least one.
func NewLoopGroup(n int, h slog.Handler) *LoopGroup {
	if n < 1 {
		n = 1
	}
	g := &LoopGroup{loops: make([]*Loop, n)}
	for i := range g.loops {
		g.loops[i] = NewLoop(h)
	}
	return g
}

// Len returns the number of loops.
func (g *LoopGroup) Len() int {
	return len(g.loops)
}

// Next returns the loop to assign the next connection to.
func (g *LoopGroup) Next() *Loop {
	i := g.next.Add(1) - 1
	return g.loops[i%uint64(len(g.loops))]
}

// Run runs every loop until ctx is cancelled.
func (g *LoopGroup) Run(ctx context.Context) error {
	tasks := make([]fixedpool.Task, len(g.loops))
	for i, l := range g.loops {
		tasks[i] = l.Run
	}
	return fixedpool.Wait(ctx, tasks...)
}
