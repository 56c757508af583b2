// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package transport

import (
	"bufio"
	"context"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runLoop(t *testing.T) *Loop {
	l := NewLoop(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l
}

func TestLoop_Execute(t *testing.T) {
	t.Run("will run callbacks in order", func(t *testing.T) {
		t.Run("if they are executed from multiple goroutines", func(t *testing.T) {
			l := runLoop(t)

			var mu sync.Mutex
			var got []int
			var wg sync.WaitGroup
			for i := 0; i < 100; i++ {
				wg.Add(1)
				i := i
				l.Execute(func() {
					defer wg.Done()
					mu.Lock()
					got = append(got, i)
					mu.Unlock()
				})
			}
			wg.Wait()

			require.Len(t, got, 100)
			for i, v := range got {
				assert.Equal(t, i, v)
			}
		})
	})

	t.Run("will run the callback inline", func(t *testing.T) {
		t.Run("if the loop has stopped", func(t *testing.T) {
			l := NewLoop(nil)
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			require.NoError(t, l.Run(ctx))

			ran := false
			l.Execute(func() { ran = true })
			assert.True(t, ran)
		})
	})

	t.Run("will keep running", func(t *testing.T) {
		t.Run("if a callback panics", func(t *testing.T) {
			l := runLoop(t)

			done := make(chan struct{})
			l.Execute(func() { panic("boom") })
			l.Execute(func() { close(done) })

			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("loop stopped after panic")
			}
		})
	})
}

func TestLoopGroup_Next(t *testing.T) {
	t.Run("will round robin", func(t *testing.T) {
		t.Run("if there are multiple loops", func(t *testing.T) {
			g := NewLoopGroup(2, nil)
			a := g.Next()
			b := g.Next()
			c := g.Next()

			assert.NotSame(t, a, b)
			assert.Same(t, a, c)
			assert.Equal(t, 2, g.Len())
		})
	})
}

func pipeConn(t *testing.T) (*Conn, net.Conn) {
	server, client := net.Pipe()
	c := newConn(server, runLoop(t), nil)
	t.Cleanup(func() {
		c.Abort()
		client.Close()
	})
	return c, client
}

func TestConn_Write(t *testing.T) {
	t.Run("will complete writes in order", func(t *testing.T) {
		t.Run("if several writes are queued", func(t *testing.T) {
			c, client := pipeConn(t)

			go io.Copy(io.Discard, client)

			var mu sync.Mutex
			var order []string
			var wg sync.WaitGroup
			for _, s := range []string{"a", "b", "c"} {
				s := s
				wg.Add(1)
				c.Write([]byte(s), func(err error) {
					defer wg.Done()
					assert.NoError(t, err)
					mu.Lock()
					order = append(order, s)
					mu.Unlock()
				})
			}
			wg.Wait()

			assert.Equal(t, []string{"a", "b", "c"}, order)
		})
	})

	t.Run("will report net.ErrClosed", func(t *testing.T) {
		t.Run("if the connection is closing", func(t *testing.T) {
			c, _ := pipeConn(t)
			require.NoError(t, c.Close())
			assert.False(t, c.IsOpen())

			errCh := make(chan error, 1)
			c.Write([]byte("x"), func(err error) { errCh <- err })
			assert.ErrorIs(t, <-errCh, net.ErrClosed)
		})
	})
}

func TestConn_Close(t *testing.T) {
	t.Run("will flush queued writes first", func(t *testing.T) {
		t.Run("if writes are pending", func(t *testing.T) {
			c, client := pipeConn(t)

			c.Write([]byte("hello"), nil)
			c.Close()

			b, err := io.ReadAll(client)
			require.NoError(t, err)
			assert.Equal(t, "hello", string(b))

			<-c.Closed()
		})
	})
}

func TestConn_NotifyClosed(t *testing.T) {
	t.Run("will call the notifier", func(t *testing.T) {
		t.Run("if the connection is aborted", func(t *testing.T) {
			c, _ := pipeConn(t)

			called := make(chan struct{})
			c.NotifyClosed(func() { close(called) })
			c.Abort()

			<-called
		})

		t.Run("if the connection was already closed", func(t *testing.T) {
			c, _ := pipeConn(t)
			c.Abort()

			called := make(chan struct{})
			c.NotifyClosed(func() { close(called) })
			<-called
		})
	})

	t.Run("will not call the notifier", func(t *testing.T) {
		t.Run("if it was cancelled", func(t *testing.T) {
			c, _ := pipeConn(t)

			called := make(chan struct{}, 1)
			cancel := c.NotifyClosed(func() { called <- struct{}{} })
			cancel()
			c.Abort()

			flushed := make(chan struct{})
			c.Loop().Execute(func() { close(flushed) })
			<-flushed
			assert.Len(t, called, 0)
		})
	})
}

func startServer(t *testing.T, h Handler, opts ...ServerOption) *Server {
	loops := NewLoopGroup(2, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		loops.Run(ctx)
	}()

	s := NewServer("127.0.0.1:0", loops, h, opts...)
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		s.Close(context.Background())
		cancel()
		<-done
	})
	return s
}

func respond(body string) HandlerFunc {
	return func(ex *Exchange) {
		resp := "HTTP/1.1 200 OK\r\nContent-Length: " + strconv.Itoa(len(body)) + "\r\n\r\n" + body
		ex.Conn().Write([]byte(resp), func(err error) {
			if !ex.KeepAlive() {
				ex.Conn().Close()
			}
			ex.Release()
		})
	}
}

func TestServer(t *testing.T) {
	t.Run("will serve several requests", func(t *testing.T) {
		t.Run("if the connection is persistent", func(t *testing.T) {
			reg := prometheus.NewRegistry()
			m := NewMetrics(reg)
			s := startServer(t, respond("ok"), WithMetrics(m))

			nc, err := net.Dial("tcp", s.Addr().String())
			require.NoError(t, err)
			defer nc.Close()

			br := bufio.NewReader(nc)
			for i := 0; i < 3; i++ {
				_, err = io.WriteString(nc, "GET / HTTP/1.1\r\nHost: test\r\n\r\n")
				require.NoError(t, err)

				resp, err := http.ReadResponse(br, nil)
				require.NoError(t, err)
				b, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.Equal(t, "ok", string(b))
			}

			assert.Equal(t, float64(1), testutil.ToFloat64(m.accepted))
			assert.Equal(t, float64(3), testutil.ToFloat64(m.requests))
		})
	})

	t.Run("will close the connection", func(t *testing.T) {
		t.Run("if persistent connections are disabled", func(t *testing.T) {
			s := startServer(t, respond("ok"), PersistentConnections(false))

			nc, err := net.Dial("tcp", s.Addr().String())
			require.NoError(t, err)
			defer nc.Close()

			_, err = io.WriteString(nc, "GET / HTTP/1.1\r\nHost: test\r\n\r\n")
			require.NoError(t, err)

			b, err := io.ReadAll(nc)
			require.NoError(t, err)
			assert.True(t, strings.HasSuffix(string(b), "\r\n\r\nok"))
		})
	})

	t.Run("will stop accepting connections", func(t *testing.T) {
		t.Run("if it is stopped", func(t *testing.T) {
			s := startServer(t, respond("ok"))
			addr := s.Addr().String()

			require.NoError(t, s.Stop())
			assert.True(t, s.IsStopped())
			assert.False(t, s.IsStopping())

			_, err := net.Dial("tcp", addr)
			assert.Error(t, err)
		})
	})

	t.Run("will hand over the connection", func(t *testing.T) {
		t.Run("if the exchange is hijacked", func(t *testing.T) {
			hijacked := make(chan net.Conn, 1)
			s := startServer(t, HandlerFunc(func(ex *Exchange) {
				nc, _, err := ex.Hijack()
				if !assert.NoError(t, err) {
					return
				}
				hijacked <- nc
			}))

			nc, err := net.Dial("tcp", s.Addr().String())
			require.NoError(t, err)
			defer nc.Close()

			_, err = io.WriteString(nc, "GET /ws HTTP/1.1\r\nHost: test\r\n\r\n")
			require.NoError(t, err)

			server := <-hijacked
			defer server.Close()

			_, err = io.WriteString(server, "raw")
			require.NoError(t, err)

			b := make([]byte, 3)
			_, err = io.ReadFull(nc, b)
			require.NoError(t, err)
			assert.Equal(t, "raw", string(b))
		})
	})
}
