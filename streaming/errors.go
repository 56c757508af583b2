// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package streaming

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"syscall"
)

// StreamReadError is reported when the response body could not be read
// for a reason other than an I/O fault.
type StreamReadError struct {
	Cause error
}

// Error implements the [error] interface.
func (e StreamReadError) Error() string {
	return fmt.Sprintf("failed to read response body: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e StreamReadError) Unwrap() error {
	return e.Cause
}

// WriteError is reported when the connection failed to write a chunk.
type WriteError struct {
	Cause error
}

// Error implements the [error] interface.
func (e WriteError) Error() string {
	return fmt.Sprintf("failed to write response chunk: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e WriteError) Unwrap() error {
	return e.Cause
}

// ConnectionClosedError is reported when the connection closes before
// the response was fully sent.
type ConnectionClosedError struct{}

// Error implements the [error] interface.
func (ConnectionClosedError) Error() string {
	return "connection closed before the response was sent"
}

// HandOffError is reported when the first step of a session could not be
// submitted to the worker executor.
type HandOffError struct {
	Cause error
}

// Error implements the [error] interface.
func (e HandOffError) Error() string {
	return fmt.Sprintf("failed to hand off response streaming to worker: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e HandOffError) Unwrap() error {
	return e.Cause
}

// IsIOFault reports whether err, or any error it wraps, is a transport
// level I/O fault. SendChunk returns these read errors unchanged to its
// caller instead of wrapping them in a [StreamReadError].
//
// The I/O faults are:
//   - *fs.PathError
//   - any net.Error
//   - syscall.Errno
//   - io.ErrUnexpectedEOF, io.ErrClosedPipe, os.ErrClosed and net.ErrClosed
//   - any error with an IOFault() bool method returning true
//
// An error with an IOFault method is judged by that method alone.
func IsIOFault(err error) bool {
	if err == nil {
		return false
	}

	var f interface{ IOFault() bool }
	if errors.As(err, &f) {
		return f.IOFault()
	}

	var (
		pathErr *fs.PathError
		netErr  net.Error
		errno   syscall.Errno
	)
	switch {
	case errors.As(err, &pathErr), errors.As(err, &netErr), errors.As(err, &errno):
		return true
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.ErrClosedPipe):
		return true
	case errors.Is(err, os.ErrClosed), errors.Is(err, net.ErrClosed):
		return true
	}
	return false
}
