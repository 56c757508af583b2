// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package app

import (
	"context"
	"fmt"
)

func ExampleRecover() {
	app := runFunc(func(ctx context.Context) error {
		var handlers map[string]func()
		handlers["/stream"] = func() {}
		return nil
	})

	err := Recover(app).Run(context.Background())

	fmt.Println(err)
	// Output: recovered from panic: assignment to entry in nil map
}

func ExampleWithLifecycleHooks() {
	app := runFunc(func(ctx context.Context) error {
		fmt.Println("serving")
		return nil
	})

	err := WithLifecycleHooks(app, Lifecycle{
		PreRun: LifecycleHookFunc(func(ctx context.Context) error {
			fmt.Println("starting")
			return nil
		}),
		PostRun: LifecycleHookFunc(func(ctx context.Context) error {
			fmt.Println("stopped")
			return nil
		}),
	}).Run(context.Background())

	fmt.Println(err)
	// Output: starting
	// serving
	// stopped
	// <nil>
}
