// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package app

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/z5labs/httpsvc/internal/try"
	"github.com/z5labs/httpsvc/otelconfig"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestRecover(t *testing.T) {
	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the underlying App returns an error", func(t *testing.T) {
			appErr := errors.New("failed to run")
			app := Recover(runFunc(func(ctx context.Context) error {
				return appErr
			}))

			err := app.Run(context.Background())
			assert.ErrorIs(t, err, appErr)
		})

		t.Run("if the underlying App panics with an error value", func(t *testing.T) {
			appErr := errors.New("failed to run")
			app := Recover(runFunc(func(ctx context.Context) error {
				panic(appErr)
			}))

			err := app.Run(context.Background())
			assert.ErrorIs(t, err, appErr)
		})

		t.Run("if the underlying App panics with a non-error value", func(t *testing.T) {
			app := Recover(runFunc(func(ctx context.Context) error {
				panic("hello world")
			}))

			err := app.Run(context.Background())

			var perr try.PanicError
			require.ErrorAs(t, err, &perr)
			assert.Equal(t, "hello world", perr.Value)
		})
	})
}

func TestWithSignalNotifications(t *testing.T) {
	t.Run("will propagate context cancellation", func(t *testing.T) {
		t.Run("if the parent context is cancelled", func(t *testing.T) {
			app := WithSignalNotifications(runFunc(func(ctx context.Context) error {
				<-ctx.Done()
				return ctx.Err()
			}))

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			err := app.Run(ctx)
			assert.ErrorIs(t, err, context.Canceled)
		})
	})
}

func TestWithLifecycleHooks(t *testing.T) {
	t.Run("will return error", func(t *testing.T) {
		t.Run("if the underlying app fails", func(t *testing.T) {
			appErr := errors.New("failed to run")
			app := WithLifecycleHooks(runFunc(func(ctx context.Context) error {
				return appErr
			}), Lifecycle{})

			err := app.Run(context.Background())
			assert.ErrorIs(t, err, appErr)
		})

		t.Run("if the Lifecycle.PostRun hook fails", func(t *testing.T) {
			hookErr := errors.New("failed to run hook")
			app := WithLifecycleHooks(runFunc(func(ctx context.Context) error {
				return nil
			}), Lifecycle{
				PostRun: LifecycleHookFunc(func(ctx context.Context) error {
					return hookErr
				}),
			})

			err := app.Run(context.Background())
			assert.ErrorIs(t, err, hookErr)
		})

		t.Run("if both underlying app and the Lifecycle.PostRun hook fail", func(t *testing.T) {
			appErr := errors.New("failed to run")
			hookErr := errors.New("failed to run hook")
			app := WithLifecycleHooks(runFunc(func(ctx context.Context) error {
				return appErr
			}), Lifecycle{
				PostRun: LifecycleHookFunc(func(ctx context.Context) error {
					return hookErr
				}),
			})

			err := app.Run(context.Background())
			assert.ErrorIs(t, err, appErr)
			assert.ErrorIs(t, err, hookErr)
		})

		t.Run("if the Lifecycle.PreRun hook fails", func(t *testing.T) {
			hookErr := errors.New("failed to run hook")
			ran := false
			postRan := false
			app := WithLifecycleHooks(runFunc(func(ctx context.Context) error {
				ran = true
				return nil
			}), Lifecycle{
				PreRun: LifecycleHookFunc(func(ctx context.Context) error {
					return hookErr
				}),
				PostRun: LifecycleHookFunc(func(ctx context.Context) error {
					postRan = true
					return nil
				}),
			})

			err := app.Run(context.Background())
			assert.ErrorIs(t, err, hookErr)
			assert.False(t, ran)
			assert.True(t, postRan)
		})
	})

	t.Run("will run the PostRun hook with a live context", func(t *testing.T) {
		t.Run("if the run context was cancelled", func(t *testing.T) {
			var hookCtxErr error
			app := WithLifecycleHooks(runFunc(func(ctx context.Context) error {
				return nil
			}), Lifecycle{
				PostRun: LifecycleHookFunc(func(ctx context.Context) error {
					hookCtxErr = ctx.Err()
					return nil
				}),
			})

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			err := app.Run(ctx)
			assert.NoError(t, err)
			assert.NoError(t, hookCtxErr)
		})
	})
}

func TestComposeLifecycleHooks(t *testing.T) {
	t.Run("will return an error", func(t *testing.T) {
		t.Run("if multiple lifecycle hooks failed", func(t *testing.T) {
			errA := errors.New("a")
			errB := errors.New("b")
			calls := 0
			hook := ComposeLifecycleHooks(
				LifecycleHookFunc(func(ctx context.Context) error {
					calls++
					return errA
				}),
				nil,
				LifecycleHookFunc(func(ctx context.Context) error {
					calls++
					return errB
				}),
			)

			err := hook.Run(context.Background())
			assert.ErrorIs(t, err, errA)
			assert.ErrorIs(t, err, errB)
			assert.Equal(t, 2, calls)
		})
	})

	t.Run("will not return an error", func(t *testing.T) {
		t.Run("if every hook succeeds", func(t *testing.T) {
			hook := ComposeLifecycleHooks(LifecycleHookFunc(func(ctx context.Context) error {
				return nil
			}))

			assert.NoError(t, hook.Run(context.Background()))
		})
	})
}

func TestWithOTel(t *testing.T) {
	t.Run("will export spans", func(t *testing.T) {
		t.Run("if the app records a span", func(t *testing.T) {
			prev := otel.GetTracerProvider()
			defer otel.SetTracerProvider(prev)

			var buf bytes.Buffer
			app := WithOTel(runFunc(func(ctx context.Context) error {
				_, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
				assert.True(t, ok)

				_, span := otel.Tracer("app").Start(ctx, "handle-request")
				span.End()
				return nil
			}), otelconfig.Local(otelconfig.Writer(&buf)))

			err := app.Run(context.Background())
			require.NoError(t, err)
			assert.Contains(t, buf.String(), "handle-request")
		})
	})
}
