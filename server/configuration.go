// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package server

import (
	"crypto/tls"
	"time"

	"github.com/z5labs/httpsvc/httpmsg"
	"github.com/z5labs/httpsvc/streaming"
)

// Configuration describes a server to create.
type Configuration struct {
	Host string
	Port uint16

	// TLS makes the server listen for HTTPS.
	TLS *tls.Config

	UsePersistentConnections bool
	ConnectionIdleTimeout    time.Duration

	Name string

	// Workers supplies the executor responses are handed off to. The
	// manager's worker pool is used when it is nil.
	Workers func() streaming.Executor
}

// Protocol returns the protocol the configuration listens with.
func (c Configuration) Protocol() httpmsg.Protocol {
	if c.TLS != nil {
		return httpmsg.HTTPS
	}
	return httpmsg.HTTP
}
