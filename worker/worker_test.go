// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package worker

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Submit(t *testing.T) {
	t.Run("will run the task", func(t *testing.T) {
		t.Run("if the pool is running", func(t *testing.T) {
			p := NewPool(2, QueueSize(10))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			runErr := make(chan error, 1)
			go func() { runErr <- p.Run(ctx) }()

			var wg sync.WaitGroup
			var n atomic.Int64
			for i := 0; i < 10; i++ {
				wg.Add(1)
				err := p.Submit(func() {
					defer wg.Done()
					n.Add(1)
				})
				require.NoError(t, err)
			}
			wg.Wait()
			assert.Equal(t, int64(10), n.Load())

			cancel()
			assert.NoError(t, <-runErr)
		})

		t.Run("if the task was queued before the pool was closed", func(t *testing.T) {
			p := NewPool(1)

			var ran atomic.Bool
			require.NoError(t, p.Submit(func() { ran.Store(true) }))
			p.Close()

			err := p.Run(context.Background())
			require.NoError(t, err)
			assert.True(t, ran.Load())
		})
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the queue is full", func(t *testing.T) {
			p := NewPool(1, QueueSize(1))

			require.NoError(t, p.Submit(func() {}))
			err := p.Submit(func() {})
			assert.ErrorIs(t, err, ErrPoolSaturated)
		})

		t.Run("if the pool is closed", func(t *testing.T) {
			p := NewPool(1)
			p.Close()
			p.Close()

			err := p.Submit(func() {})
			assert.ErrorIs(t, err, ErrPoolClosed)
		})
	})

	t.Run("will keep running", func(t *testing.T) {
		t.Run("if a task panics", func(t *testing.T) {
			p := NewPool(1)

			done := make(chan struct{})
			require.NoError(t, p.Submit(func() { panic("boom") }))
			require.NoError(t, p.Submit(func() { close(done) }))
			p.Close()

			err := p.Run(context.Background())
			require.NoError(t, err)
			<-done
		})
	})
}

func TestCount(t *testing.T) {
	t.Run("will scale with GOMAXPROCS", func(t *testing.T) {
		t.Run("if no limit is given", func(t *testing.T) {
			assert.Equal(t, 2*runtime.GOMAXPROCS(0), ForIO(0))
			assert.Equal(t, runtime.GOMAXPROCS(0), ForCPU(0))
		})
	})

	t.Run("will cap the count", func(t *testing.T) {
		t.Run("if a limit is given", func(t *testing.T) {
			assert.Equal(t, 1, ForIO(1))
			assert.Equal(t, 1, Count(0, 0))
		})
	})
}
