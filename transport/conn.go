// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package transport

import (
	"errors"
	"net"
	"sync"
)

// ErrDetached is reported to writes issued after a connection was hijacked.
var ErrDetached = errors.New("transport: connection detached")

type pendingWrite struct {
	p    []byte
	done func(error)
}

// Conn is a connection whose writes never block the caller. Writes are
// performed by a dedicated goroutine and their completions are delivered
// on the connection's loop in the order the writes were issued.
type Conn struct {
	nc      net.Conn
	loop    *Loop
	metrics *Metrics

	mu        sync.Mutex
	pending   []pendingWrite
	closing   bool
	closed    bool
	detached  bool
	notifiers map[uint64]func()
	nextID    uint64

	wake       chan struct{}
	writerDone chan struct{}
	closedCh   chan struct{}
}

func newConn(nc net.Conn, loop *Loop, m *Metrics) *Conn {
	c := &Conn{
		nc:         nc,
		loop:       loop,
		metrics:    m,
		notifiers:  make(map[uint64]func()),
		wake:       make(chan struct{}, 1),
		writerDone: make(chan struct{}),
		closedCh:   make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// Loop returns the loop the connection's callbacks run on.
func (c *Conn) Loop() *Loop {
	return c.loop
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.nc.RemoteAddr()
}

// Write queues p and returns immediately. done is called on the loop
// once p has been written or the write failed. p must not be modified
// until done is called.
func (c *Conn) Write(p []byte, done func(error)) {
	c.mu.Lock()
	var err error
	switch {
	case c.detached:
		err = ErrDetached
	case c.closing || c.closed:
		err = net.ErrClosed
	}
	if err != nil {
		c.mu.Unlock()
		c.complete(done, err)
		return
	}
	c.pending = append(c.pending, pendingWrite{p: p, done: done})
	c.mu.Unlock()

	c.signal()
}

// Close closes the connection once all queued writes are flushed.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closing || c.closed || c.detached {
		c.mu.Unlock()
		return nil
	}
	c.closing = true
	c.mu.Unlock()

	c.signal()
	return nil
}

// IsOpen reports whether the connection still accepts writes.
func (c *Conn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closing && !c.closed && !c.detached
}

// Closed is closed once the underlying connection has been closed.
func (c *Conn) Closed() <-chan struct{} {
	return c.closedCh
}

// NotifyClosed registers f to run on the loop when the connection is
// closed. If it already is, f is scheduled right away. The returned
// function unregisters f.
func (c *Conn) NotifyClosed(f func()) (cancel func()) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.loop.Execute(f)
		return func() {}
	}
	id := c.nextID
	c.nextID++
	c.notifiers[id] = f
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.notifiers, id)
	}
}

// Abort closes the connection immediately, failing any queued writes.
func (c *Conn) Abort() {
	c.abort()
}

func (c *Conn) abort() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	detached := c.detached
	pending := c.pending
	c.pending = nil
	notifiers := c.notifiers
	c.notifiers = nil
	c.mu.Unlock()

	c.nc.Close()
	close(c.closedCh)
	c.signal()
	if !detached {
		c.metrics.connectionClosed()
	}

	for _, w := range pending {
		c.complete(w.done, net.ErrClosed)
	}
	for _, f := range notifiers {
		c.loop.Execute(f)
	}
}

// detach stops the writer once queued writes are flushed and hands the
// underlying connection to the caller.
func (c *Conn) detach() (net.Conn, error) {
	c.mu.Lock()
	if c.closing || c.closed {
		c.mu.Unlock()
		return nil, net.ErrClosed
	}
	c.detached = true
	c.mu.Unlock()

	c.signal()
	<-c.writerDone

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, net.ErrClosed
	}
	c.metrics.connectionClosed()
	return c.nc, nil
}

func (c *Conn) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Conn) complete(done func(error), err error) {
	if done == nil {
		return
	}
	c.loop.Execute(func() { done(err) })
}

func (c *Conn) writeLoop() {
	defer close(c.writerDone)

	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		if len(c.pending) > 0 {
			w := c.pending[0]
			c.pending = c.pending[1:]
			c.mu.Unlock()

			n, err := c.nc.Write(w.p)
			c.metrics.bytesWritten(n)
			c.complete(w.done, err)
			if err != nil {
				c.abort()
				return
			}
			continue
		}
		if c.detached {
			c.mu.Unlock()
			return
		}
		if c.closing {
			c.mu.Unlock()
			c.abort()
			return
		}
		c.mu.Unlock()

		<-c.wake
	}
}
