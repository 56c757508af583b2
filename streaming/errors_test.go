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
	"testing"

	"github.com/stretchr/testify/assert"
)

type faultError struct {
	fault bool
}

func (e faultError) Error() string { return "fault" }

func (e faultError) IOFault() bool { return e.fault }

func TestIsIOFault(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "nil", err: nil, expected: false},
		{name: "plain error", err: errors.New("boom"), expected: false},
		{name: "path error", err: &fs.PathError{Op: "read", Path: "a", Err: fs.ErrPermission}, expected: true},
		{name: "op error", err: &net.OpError{Op: "read", Err: errors.New("reset")}, expected: true},
		{name: "errno", err: syscall.ECONNRESET, expected: true},
		{name: "wrapped errno", err: fmt.Errorf("runtime: %w", syscall.EPIPE), expected: true},
		{name: "unexpected eof", err: io.ErrUnexpectedEOF, expected: true},
		{name: "closed pipe", err: io.ErrClosedPipe, expected: true},
		{name: "closed file", err: os.ErrClosed, expected: true},
		{name: "closed network connection", err: net.ErrClosed, expected: true},
		{name: "eof", err: io.EOF, expected: false},
		{name: "stream read error around a plain error", err: StreamReadError{Cause: errors.New("x")}, expected: false},
		{name: "explicit fault", err: faultError{fault: true}, expected: true},
		{name: "explicit non fault", err: fmt.Errorf("wrapped: %w", faultError{fault: false}), expected: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsIOFault(tc.err))
		})
	}
}
