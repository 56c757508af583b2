// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package streaming writes HTTP responses onto non-blocking connections,
// pulling the body from its source one chunk at a time.
//
// A [Session] owns one response. Each chunk is read and then written
// with a completion callback which continues the session, so at most
// one write per session is ever in flight. Whether the first chunk is
// sent on the calling goroutine or on a worker is decided once, in
// Start, by how long the response waited before being started.
package streaming

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/z5labs/httpsvc/httpmsg"
	"github.com/z5labs/httpsvc/internal/noop"
	"github.com/z5labs/httpsvc/internal/otelslog"
	"github.com/z5labs/httpsvc/multipart"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultSelectorTimeout is how long a response may wait before its
	// streaming is handed off to the worker executor.
	DefaultSelectorTimeout = 2 * time.Millisecond

	// DefaultChunkSize is the maximum number of body bytes read per chunk.
	DefaultChunkSize = 8192
)

// Conn is the non-blocking connection a response is written to.
type Conn interface {
	// Write queues p and returns immediately. done is called once p was
	// written or the write failed. It may be called before Write returns.
	Write(p []byte, done func(error))

	// Close closes the connection after queued writes are flushed.
	Close() error

	IsOpen() bool

	// NotifyClosed registers f to be called when the connection closes.
	NotifyClosed(f func()) (cancel func())
}

// Exchange is the request a response is being written for.
type Exchange interface {
	// Conn returns the connection, or nil if it has already been torn down.
	Conn() Conn
	Request() *httpmsg.Request

	// KeepAlive is the connection reuse default when the response does
	// not carry a Connection header.
	KeepAlive() bool
}

// Executor runs the first step of sessions which were handed off.
type Executor interface {
	Submit(func()) error
}

// ResponseCallback learns the outcome of a session. Exactly one of its
// methods is called, exactly once.
type ResponseCallback interface {
	OnSent()
	OnError(error)
}

// CallbackFuncs is a functional implementation of [ResponseCallback].
// Nil funcs are ignored.
type CallbackFuncs struct {
	Sent  func()
	Error func(error)
}

// OnSent implements the [ResponseCallback] interface.
func (f CallbackFuncs) OnSent() {
	if f.Sent != nil {
		f.Sent()
	}
}

// OnError implements the [ResponseCallback] interface.
func (f CallbackFuncs) OnError(err error) {
	if f.Error != nil {
		f.Error(err)
	}
}

type options struct {
	selectorTimeout time.Duration
	chunkSize       int
	logHandler      slog.Handler
	metrics         *Metrics
	tracer          trace.Tracer
}

// Option configures an [Engine].
type Option func(*options)

// SelectorTimeout sets how long a response may wait between becoming
// available and being started before its first step is handed off.
// A value of zero or less always hands off.
func SelectorTimeout(d time.Duration) Option {
	return func(o *options) {
		o.selectorTimeout = d
	}
}

// ChunkSize sets the maximum number of body bytes read per chunk.
func ChunkSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.chunkSize = n
		}
	}
}

// LogHandler sets the engine's log handler.
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = h
	}
}

// WithMetrics sets the collectors sessions report to.
func WithMetrics(m *Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

// Tracer sets the tracer sessions create their spans with.
func Tracer(t trace.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

// Engine creates streaming sessions which share one worker executor.
type Engine struct {
	pool      Executor
	threshold time.Duration
	chunkSize int
	log       *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

// NewEngine returns an engine which hands sessions off to pool.
func NewEngine(pool Executor, opts ...Option) *Engine {
	o := &options{
		selectorTimeout: DefaultSelectorTimeout,
		chunkSize:       DefaultChunkSize,
		logHandler:      noop.LogHandler{},
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = NewMetrics(nil)
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer("github.com/z5labs/httpsvc/streaming")
	}
	return &Engine{
		pool:      pool,
		threshold: o.selectorTimeout,
		chunkSize: o.chunkSize,
		log:       otelslog.New(o.logHandler),
		metrics:   o.metrics,
		tracer:    o.tracer,
		now:       time.Now,
	}
}

// SelectorTimeout returns the hand-off threshold.
func (e *Engine) SelectorTimeout() time.Duration {
	return e.threshold
}

// Send creates a session for resp and starts it. Multipart entities are
// encoded first; an encoding error is returned before anything is
// written and the callback is not called.
func (e *Engine) Send(ex Exchange, resp *httpmsg.Response, cb ResponseCallback) error {
	s, err := e.NewSession(ex, resp, cb)
	if err != nil {
		return err
	}
	s.Start()
	return nil
}

// NewSession prepares the session for resp. The response counts as
// available from this call on. The session takes ownership of the
// entity's body. A nil cb is treated as a callback that does nothing.
func (e *Engine) NewSession(ex Exchange, resp *httpmsg.Response, cb ResponseCallback) (*Session, error) {
	availableAt := e.now()
	if cb == nil {
		cb = CallbackFuncs{}
	}

	body, length, contentType, err := openEntity(resp)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		resp = &httpmsg.Response{
			StatusCode: resp.StatusCode,
			Header:     resp.Header.Clone(),
			Entity:     resp.Entity,
		}
		if resp.Header == nil {
			resp.Header = make(http.Header)
		}
		resp.Header.Set("Content-Type", contentType)
	}
	return newSession(e, ex, resp, body, length, cb, availableAt), nil
}

func openEntity(resp *httpmsg.Response) (body io.ReadCloser, length int64, contentType string, err error) {
	switch x := resp.Entity.(type) {
	case nil:
		return io.NopCloser(strings.NewReader("")), 0, "", nil
	case *httpmsg.BytesEntity:
		return io.NopCloser(bytes.NewReader(x.Bytes)), int64(len(x.Bytes)), "", nil
	case *httpmsg.StreamEntity:
		return x.Body, x.Length, "", nil
	case *httpmsg.MultipartEntity:
		ct := resp.Header.Get("Content-Type")
		if ct == "" {
			ct = "multipart/form-data"
		}
		b, err := multipart.Encode(x, ct)
		if err != nil {
			return nil, 0, "", err
		}
		return io.NopCloser(bytes.NewReader(b.Bytes)), int64(len(b.Bytes)), b.ContentType, nil
	default:
		return io.NopCloser(strings.NewReader("")), 0, "", nil
	}
}
