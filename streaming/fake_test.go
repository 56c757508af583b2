// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package streaming

import (
	"bytes"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/z5labs/httpsvc/httpmsg"
)

type fakeConn struct {
	async    bool
	writeErr error

	mu        sync.Mutex
	writes    [][]byte
	pending   []func()
	closes    int
	closed    bool
	notifiers map[int]func()
	nextID    int
}

func newFakeConn() *fakeConn {
	return &fakeConn{notifiers: make(map[int]func())}
}

func (c *fakeConn) Write(p []byte, done func(error)) {
	c.mu.Lock()
	c.writes = append(c.writes, bytes.Clone(p))
	err := c.writeErr
	if c.async {
		c.pending = append(c.pending, func() { done(err) })
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	done(err)
}

// flush runs queued completions, including those queued while flushing.
func (c *fakeConn) flush() {
	for {
		c.mu.Lock()
		if len(c.pending) == 0 {
			c.mu.Unlock()
			return
		}
		f := c.pending[0]
		c.pending = c.pending[1:]
		c.mu.Unlock()
		f()
	}
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	c.closed = true
	return nil
}

func (c *fakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.closed
}

func (c *fakeConn) NotifyClosed(f func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID++
	c.notifiers[id] = f
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.notifiers, id)
	}
}

// peerClosed simulates the transport noticing the peer went away.
func (c *fakeConn) peerClosed() {
	c.mu.Lock()
	c.closed = true
	fs := make([]func(), 0, len(c.notifiers))
	for _, f := range c.notifiers {
		fs = append(fs, f)
	}
	c.mu.Unlock()
	for _, f := range fs {
		f()
	}
}

func (c *fakeConn) output() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return bytes.Join(c.writes, nil)
}

func (c *fakeConn) writeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.writes)
}

func (c *fakeConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type fakeExchange struct {
	conn      Conn
	req       *httpmsg.Request
	keepAlive bool
}

func (e *fakeExchange) Conn() Conn { return e.conn }

func (e *fakeExchange) Request() *httpmsg.Request { return e.req }

func (e *fakeExchange) KeepAlive() bool { return e.keepAlive }

func get11() *httpmsg.Request {
	return &httpmsg.Request{Method: "GET", Version: httpmsg.HTTP11}
}

type fakeExecutor struct {
	err error

	mu    sync.Mutex
	tasks []func()
}

func (e *fakeExecutor) Submit(f func()) error {
	if e.err != nil {
		return e.err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, f)
	return nil
}

func (e *fakeExecutor) submitted() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks)
}

func (e *fakeExecutor) runAll() {
	e.mu.Lock()
	tasks := e.tasks
	e.tasks = nil
	e.mu.Unlock()
	for _, f := range tasks {
		f()
	}
}

type recorder struct {
	sent atomic.Int64

	mu   sync.Mutex
	errs []error
}

func (r *recorder) OnSent() {
	r.sent.Add(1)
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recorder) errors() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func (r *recorder) calls() int {
	return int(r.sent.Load()) + len(r.errors())
}

type trackedBody struct {
	r       io.Reader
	readErr error
	panics  bool
	closes  atomic.Int64
}

func (b *trackedBody) Read(p []byte) (int, error) {
	if b.panics {
		panic("read exploded")
	}
	if b.readErr != nil {
		return 0, b.readErr
	}
	return b.r.Read(p)
}

func (b *trackedBody) Close() error {
	b.closes.Add(1)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
