// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package httpsvc

import (
	"context"
	"fmt"

	"github.com/z5labs/httpsvc/config"
)

// App is anything runnable until its context is cancelled, e.g.
// a process serving HTTP through a [Service].
type App interface {
	Run(context.Context) error
}

// AppBuilder builds an [App] from a decoded config.
type AppBuilder[T any] interface {
	Build(ctx context.Context, cfg T) (App, error)
}

// AppBuilderFunc is a functional implementation of [AppBuilder].
type AppBuilderFunc[T any] func(context.Context, T) (App, error)

// Build implements the [AppBuilder] interface.
func (f AppBuilderFunc[T]) Build(ctx context.Context, cfg T) (App, error) {
	return f(ctx, cfg)
}

// Run reads the provided config sources, unmarshals them into T,
// builds the App with builder and, lastly, runs it.
func Run[T any](ctx context.Context, builder AppBuilder[T], srcs ...config.Source) error {
	m, err := config.Read(srcs...)
	if err != nil {
		return ConfigReadError{Cause: err}
	}

	var cfg T
	err = m.Unmarshal(&cfg)
	if err != nil {
		return ConfigUnmarshalError{Type: fmt.Sprintf("%T", cfg), Cause: err}
	}

	app, err := builder.Build(ctx, cfg)
	if err != nil {
		return AppBuildError{Cause: err}
	}

	err = app.Run(ctx)
	if err != nil {
		return AppRunError{Cause: err}
	}
	return nil
}

// ConfigReadError is returned by [Run] when a config source could not be applied.
type ConfigReadError struct {
	Cause error
}

func (e ConfigReadError) Error() string {
	return fmt.Sprintf("httpsvc: reading config: %s", e.Cause)
}

func (e ConfigReadError) Unwrap() error { return e.Cause }

// ConfigUnmarshalError is returned by [Run] when the merged config does
// not decode into the config type.
type ConfigUnmarshalError struct {
	Type  string
	Cause error
}

func (e ConfigUnmarshalError) Error() string {
	return fmt.Sprintf("httpsvc: decoding config into %s: %s", e.Type, e.Cause)
}

func (e ConfigUnmarshalError) Unwrap() error { return e.Cause }

// AppBuildError wraps the error returned by an [AppBuilder].
type AppBuildError struct {
	Cause error
}

func (e AppBuildError) Error() string {
	return fmt.Sprintf("httpsvc: building app: %s", e.Cause)
}

func (e AppBuildError) Unwrap() error { return e.Cause }

// AppRunError wraps the error returned by [App.Run].
type AppRunError struct {
	Cause error
}

func (e AppRunError) Error() string {
	return fmt.Sprintf("httpsvc: running app: %s", e.Cause)
}

func (e AppRunError) Unwrap() error { return e.Cause }
