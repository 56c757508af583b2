// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package streaming

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/z5labs/httpsvc/httpmsg"
	"github.com/z5labs/httpsvc/internal/slogfield"
	"github.com/z5labs/httpsvc/internal/try"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// State is the position of a session in its lifecycle.
type State int32

const (
	NotStarted State = iota
	SendingHeaders
	Streaming
	Completed
	Failed
)

// String implements the [fmt.Stringer] interface.
func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case SendingHeaders:
		return "sending_headers"
	case Streaming:
		return "streaming"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

// trampoline states for the single in-flight write.
const (
	idle int32 = iota
	writeIssued
	completedSync
	writeReturned
)

// maxEmptyReads bounds consecutive (0, nil) reads from a body.
const maxEmptyReads = 100

// Session streams one response body onto one connection.
type Session struct {
	engine      *Engine
	ex          Exchange
	resp        *httpmsg.Response
	body        io.ReadCloser
	src         io.Reader
	cb          ResponseCallback
	availableAt time.Time
	out         outbound

	ctx  context.Context
	span trace.Span
	log  *slog.Logger

	// state doubles as the failure latch: it only ever moves forward and
	// the move into Completed or Failed happens by compare and swap.
	state      atomic.Int32
	trampoline atomic.Int32
	unnotify   atomic.Pointer[func()]
	sent       atomic.Int64

	// Only touched by the goroutine currently running a step.
	buf         []byte
	wbuf        bytes.Buffer
	headPending bool
	eof         bool
	readErr     error
	emptyReads  int
}

func newSession(e *Engine, ex Exchange, resp *httpmsg.Response, body io.ReadCloser, length int64, cb ResponseCallback, availableAt time.Time) *Session {
	var req *httpmsg.Request
	exchangeKeepAlive := false
	if ex != nil {
		req = ex.Request()
		exchangeKeepAlive = ex.KeepAlive()
	}

	s := &Session{
		engine:      e,
		ex:          ex,
		resp:        resp,
		body:        body,
		src:         body,
		cb:          cb,
		availableAt: availableAt,
		out:         prepare(req, resp, length, exchangeKeepAlive),
	}
	if s.out.framing == framingIdentity {
		s.src = io.LimitReader(body, s.out.length)
	}

	attrs := []attribute.KeyValue{
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.String("httpsvc.framing", s.out.framing.String()),
		attribute.Bool("httpsvc.keep_alive", s.out.keepAlive),
	}
	s.ctx, s.span = e.tracer.Start(context.Background(), "streaming.Session", trace.WithAttributes(attrs...))
	s.log = e.log
	return s
}

// Header returns the header which is sent with the response.
func (s *Session) Header() http.Header {
	return s.out.header
}

// KeepAlive reports whether the connection is kept open once the
// response was sent.
func (s *Session) KeepAlive() bool {
	return s.out.keepAlive
}

// State returns the current state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// BytesSent returns the number of body bytes written so far.
func (s *Session) BytesSent() int64 {
	return s.sent.Load()
}

// Start begins sending the response. The header is serialized right
// away and written together with the first chunk. If the response was
// available for longer than the engine's selector timeout, the first
// step runs on the worker executor; otherwise it runs before Start
// returns.
func (s *Session) Start() {
	if !s.state.CompareAndSwap(int32(NotStarted), int32(SendingHeaders)) {
		return
	}

	s.wbuf.Reset()
	writeHead(&s.wbuf, s.resp.StatusCode, s.out.header, s.engine.now())
	s.headPending = true

	conn := s.conn()
	if conn == nil {
		s.Fail(ConnectionClosedError{})
		return
	}
	cancel := conn.NotifyClosed(func() {
		s.Fail(ConnectionClosedError{})
	})
	s.unnotify.Store(&cancel)
	if s.State().Terminal() {
		cancel()
	}

	elapsed := s.engine.now().Sub(s.availableAt)
	if elapsed < s.engine.threshold {
		s.resume()
		return
	}

	s.engine.metrics.handedOff()
	s.log.DebugContext(
		s.ctx,
		"handing off response streaming to worker",
		slogfield.Duration("elapsed", elapsed),
		slogfield.Duration("threshold", s.engine.threshold),
	)
	s.span.AddEvent("handoff")
	err := s.engine.pool.Submit(s.resume)
	if err != nil {
		s.Fail(HandOffError{Cause: err})
	}
}

// resume drives the session and routes any error left by SendChunk to
// the failure path.
func (s *Session) resume() {
	err := s.SendChunk()
	if err != nil {
		s.Fail(err)
	}
}

// SendChunk reads the next chunk of the body and writes it. When the
// write completes on the same goroutine, SendChunk moves on to the next
// chunk itself; otherwise the write's completion continues the session
// and SendChunk returns.
//
// A read error which is an I/O fault, see [IsIOFault], is returned
// unchanged and the caller is responsible for failing the session.
// Any other read error fails the session with a [StreamReadError].
func (s *Session) SendChunk() error {
	for {
		wrote, err := s.step()
		if err != nil || !wrote {
			return err
		}
		if s.trampoline.CompareAndSwap(writeIssued, writeReturned) {
			return nil
		}
		s.trampoline.Store(idle)
	}
}

// step issues at most one write.
func (s *Session) step() (bool, error) {
	switch s.State() {
	case NotStarted, Completed, Failed:
		return false, nil
	case SendingHeaders:
		s.state.CompareAndSwap(int32(SendingHeaders), int32(Streaming))
	}

	if s.out.framing == framingNone || s.eof {
		return s.finish(), nil
	}
	if s.readErr != nil {
		return false, s.readFailed(s.readErr)
	}

	if s.buf == nil {
		s.buf = make([]byte, s.engine.chunkSize)
	}
	var n int
	for n == 0 && !s.eof && s.readErr == nil {
		var err error
		n, err = s.read(s.buf)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			s.eof = true
		default:
			s.readErr = err
		}
		if n == 0 && err == nil {
			s.emptyReads++
			if s.emptyReads >= maxEmptyReads {
				s.readErr = io.ErrNoProgress
			}
		}
	}
	if n == 0 {
		if s.readErr != nil {
			return false, s.readFailed(s.readErr)
		}
		return s.finish(), nil
	}
	s.emptyReads = 0

	if !s.headPending {
		s.wbuf.Reset()
	}
	s.headPending = false
	writeChunk(&s.wbuf, s.out.framing, s.buf[:n])

	s.engine.metrics.chunkSent(n)
	s.write(func() {
		s.sent.Add(int64(n))
	})
	return true, nil
}

func (s *Session) read(p []byte) (n int, err error) {
	perr := try.Call(func() error {
		n, err = s.src.Read(p)
		return nil
	})
	if perr != nil {
		return 0, perr
	}
	return n, err
}

func (s *Session) readFailed(err error) error {
	if IsIOFault(err) {
		return err
	}
	s.Fail(StreamReadError{Cause: err})
	return nil
}

// finish writes whatever has not been flushed yet, i.e. the header of
// an empty body or the chunked trailer, and completes the session.
func (s *Session) finish() bool {
	if s.out.framing == framingIdentity && s.sent.Load() < s.out.length {
		s.Fail(StreamReadError{Cause: io.ErrUnexpectedEOF})
		return false
	}

	if !s.headPending {
		s.wbuf.Reset()
	}
	s.headPending = false
	writeTrailer(&s.wbuf, s.out.framing)
	if s.wbuf.Len() == 0 {
		s.complete()
		return false
	}
	s.write(s.complete)
	return true
}

// write issues the pending write buffer. onSuccess runs before the
// session continues.
func (s *Session) write(onSuccess func()) {
	conn := s.conn()
	if conn == nil {
		s.Fail(ConnectionClosedError{})
		return
	}

	s.trampoline.Store(writeIssued)
	conn.Write(s.wbuf.Bytes(), func(err error) {
		if err != nil {
			s.Fail(WriteError{Cause: err})
		} else {
			onSuccess()
		}
		if s.trampoline.CompareAndSwap(writeIssued, completedSync) {
			return
		}
		s.trampoline.Store(idle)
		if err == nil {
			s.resume()
		}
	})
}

func (s *Session) complete() {
	for {
		st := s.State()
		if st.Terminal() {
			return
		}
		if s.state.CompareAndSwap(int32(st), int32(Completed)) {
			break
		}
	}
	s.stopNotify()

	err := try.Closer(s.body)
	if err != nil {
		s.log.WarnContext(s.ctx, "failed to close response body", slogfield.Error(err))
	}

	s.engine.metrics.finished("completed")
	s.span.SetAttributes(attribute.Int64("httpsvc.bytes_sent", s.BytesSent()))
	s.span.End()

	s.cb.OnSent()

	if !s.out.keepAlive {
		if conn := s.conn(); conn != nil {
			conn.Close()
		}
	}
}

// Fail moves the session to Failed. Only the first call, and only if
// the session has not completed, closes the body, reports cause to the
// callback and closes the connection. Every other call is a no-op.
func (s *Session) Fail(cause error) {
	for {
		st := s.State()
		if st.Terminal() {
			return
		}
		if s.state.CompareAndSwap(int32(st), int32(Failed)) {
			break
		}
	}
	s.stopNotify()

	err := try.Closer(s.body)
	if err != nil {
		s.log.WarnContext(s.ctx, "failed to close response body", slogfield.Error(err))
	}

	s.log.DebugContext(
		s.ctx,
		"failed to send response",
		slogfield.Error(cause),
		slogfield.BytesSent(s.BytesSent()),
	)
	s.engine.metrics.finished("failed")
	s.span.RecordError(cause)
	s.span.SetStatus(codes.Error, cause.Error())
	s.span.End()

	s.cb.OnError(cause)

	if conn := s.conn(); conn != nil && conn.IsOpen() {
		conn.Close()
	}
}

func (s *Session) stopNotify() {
	cancel := s.unnotify.Swap(nil)
	if cancel != nil {
		(*cancel)()
	}
}

func (s *Session) conn() Conn {
	if s.ex == nil {
		return nil
	}
	return s.ex.Conn()
}
