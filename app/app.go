// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package app provides decorators for common [httpsvc.App] patterns.
package app

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/z5labs/httpsvc"
	"github.com/z5labs/httpsvc/internal/try"
	"github.com/z5labs/httpsvc/otelconfig"
)

type runFunc func(context.Context) error

func (f runFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// Recover will wrap the given [httpsvc.App] with panic recovery.
// If the recovered panic value implements [error] then it will
// be directly returned. If it does not implement [error] then a
// [try.PanicError] will be returned instead.
func Recover(app httpsvc.App) httpsvc.App {
	return runFunc(func(ctx context.Context) (err error) {
		defer try.Recover(&err)

		return app.Run(ctx)
	})
}

// WithSignalNotifications cancels the [context.Context] passed to app.Run
// once any of signals is received by the process.
func WithSignalNotifications(app httpsvc.App, signals ...os.Signal) httpsvc.App {
	return runFunc(func(ctx context.Context) error {
		sigCtx, cancel := signal.NotifyContext(ctx, signals...)
		defer cancel()

		return app.Run(sigCtx)
	})
}

// LifecycleHook represents functionality that needs to be performed
// at a specific "time" relative to the execution of [httpsvc.App.Run].
type LifecycleHook interface {
	Run(context.Context) error
}

// LifecycleHookFunc
type LifecycleHookFunc func(context.Context) error

// Run implements the [LifecycleHook] interface.
func (f LifecycleHookFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// ComposeLifecycleHooks runs every hook in order, even after one fails,
// and joins their errors.
func ComposeLifecycleHooks(hooks ...LifecycleHook) LifecycleHook {
	return LifecycleHookFunc(func(ctx context.Context) error {
		errs := make([]error, 0, len(hooks))
		for _, hook := range hooks {
			if hook == nil {
				continue
			}
			err := hook.Run(ctx)
			if err == nil {
				continue
			}
			errs = append(errs, err)
		}
		return errors.Join(errs...)
	})
}

// Lifecycle
type Lifecycle struct {
	// PreRun is executed before the underlying [httpsvc.App].
	// An error from it prevents the app from running.
	PreRun LifecycleHook

	// PostRun is always executed regardless if the underlying [httpsvc.App]
	// returns an error or panics.
	PostRun LifecycleHook
}

// WithLifecycleHooks runs the [LifecycleHook]s of lifecycle around app.Run.
func WithLifecycleHooks(app httpsvc.App, lifecycle Lifecycle) httpsvc.App {
	return runFunc(func(ctx context.Context) (err error) {
		defer runPostRunHook(ctx, lifecycle.PostRun, &err)

		if lifecycle.PreRun != nil {
			err = lifecycle.PreRun.Run(ctx)
			if err != nil {
				return err
			}
		}
		return app.Run(ctx)
	})
}

func runPostRunHook(ctx context.Context, hook LifecycleHook, err *error) {
	if hook == nil {
		return
	}

	hookErr := hook.Run(context.WithoutCancel(ctx))

	// errors.Join will not return an error if both
	// *err and hookErr are nil.
	*err = errors.Join(*err, hookErr)
}

// WithOTel installs the tracer provider built by initer before app runs
// and shuts it down afterwards.
func WithOTel(app httpsvc.App, initer otelconfig.Initializer) httpsvc.App {
	return WithLifecycleHooks(app, Lifecycle{
		PreRun: LifecycleHookFunc(func(ctx context.Context) error {
			return otelconfig.Install(ctx, initer)
		}),
		PostRun: LifecycleHookFunc(otelconfig.Shutdown),
	})
}
