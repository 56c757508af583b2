// Copyright (c) 2023 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package slogfield standardizes the attribute keys used in log records.
package slogfield

import (
	"fmt"
	"log/slog"
	"time"
)

// Error returns an slog.Attr for a error.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// String returns an slog.Attr for a string.
func String(key, value string) slog.Attr {
	return slog.String(key, value)
}

// Int returns an slog.Attr for a int.
func Int(key string, n int) slog.Attr {
	return slog.Int(key, n)
}

// Int64 returns an slog.Attr for a int64.
func Int64(key string, n int64) slog.Attr {
	return slog.Int64(key, n)
}

// Bool returns an slog.Attr for a bool.
func Bool(key string, value bool) slog.Attr {
	return slog.Bool(key, value)
}

// Duration returns an slog.Attr for a time.Duration.
func Duration(key string, d time.Duration) slog.Attr {
	return slog.Duration(key, d)
}

// Address returns an slog.Attr for a network address.
func Address(addr fmt.Stringer) slog.Attr {
	return slog.String("address", addr.String())
}

// Server returns an slog.Attr for a server identifier.
func Server(id fmt.Stringer) slog.Attr {
	return slog.String("server", id.String())
}

// Path returns an slog.Attr for a request path.
func Path(path string) slog.Attr {
	return slog.String("path", path)
}

// BytesSent returns an slog.Attr for the number of body bytes written.
func BytesSent(n int64) slog.Attr {
	return slog.Int64("bytes_sent", n)
}
