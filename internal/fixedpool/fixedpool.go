// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package fixedpool runs a fixed set of long lived tasks together.
package fixedpool

import (
	"context"
	"errors"

	"github.com/z5labs/httpsvc/internal/try"

	"golang.org/x/sync/errgroup"
)

// Task is a long lived unit of work which should return once its
// context is cancelled.
type Task func(context.Context) error

// Wait runs every task concurrently and blocks until all of them
// have returned. The first task to fail cancels the others. Panics
// are recovered and reported as errors.
func Wait(ctx context.Context, tasks ...Task) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, task := range tasks {
		task := task
		g.Go(func() (err error) {
			defer try.Recover(&err)

			return task(gctx)
		})
	}
	return g.Wait()
}

// Running is a set of tasks started in the background by [Start].
type Running struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Start runs the tasks in the background until Stop is called or one
// of them fails.
func Start(ctx context.Context, tasks ...Task) *Running {
	ctx, cancel := context.WithCancel(ctx)
	r := &Running{
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(r.done)

		r.err = Wait(ctx, tasks...)
	}()
	return r
}

// Stop cancels the running tasks and waits for them to return.
// Cancellation is not reported as an error.
func (r *Running) Stop() error {
	r.cancel()
	<-r.done
	if errors.Is(r.err, context.Canceled) {
		return nil
	}
	return r.err
}
