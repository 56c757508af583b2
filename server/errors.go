// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned by a Manager used before Init.
var ErrNotInitialized = errors.New("server: connection manager not initialized")

// AlreadyExistsError is returned when a server for the same address and
// identifier, or an overlapping address, is already live.
type AlreadyExistsError struct {
	Address    Address
	Identifier Identifier
}

// Error implements the [error] interface.
func (e AlreadyExistsError) Error() string {
	return fmt.Sprintf("a server for %s already exists at %s", e.Identifier, e.Address)
}

// NotFoundError is returned when no live server has the identifier.
type NotFoundError struct {
	Identifier Identifier
}

// Error implements the [error] interface.
func (e NotFoundError) Error() string {
	return fmt.Sprintf("no server found for %s", e.Identifier)
}

// CreationError is returned when a server could not be created.
type CreationError struct {
	Identifier Identifier
	Cause      error
}

// Error implements the [error] interface.
func (e CreationError) Error() string {
	return fmt.Sprintf("failed to create server %s: %s", e.Identifier, e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e CreationError) Unwrap() error {
	return e.Cause
}

// DisposedError is returned when starting a server that was disposed.
type DisposedError struct {
	Identifier Identifier
}

// Error implements the [error] interface.
func (e DisposedError) Error() string {
	return fmt.Sprintf("server %s has been disposed", e.Identifier)
}

// ErrDisposedListener is returned when starting a listening server after
// it was disposed.
var ErrDisposedListener = errors.New("server: listener disposed")
