// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package httpsvc

import (
	"bytes"
	"crypto/tls"
	_ "embed"
	"time"

	"github.com/z5labs/httpsvc/config"
	"github.com/z5labs/httpsvc/otelconfig"
	"github.com/z5labs/httpsvc/server"
)

//go:embed default_config.yaml
var defaultConfig []byte

// EnvPrefix prefixes every environment variable read by [ConfigSources].
const EnvPrefix = "HTTPSVC"

// DefaultConfig is the base every other config source is merged onto.
func DefaultConfig() config.Source {
	return config.FromYaml(bytes.NewReader(defaultConfig))
}

// ConfigSources returns the default config overridden by extra, in order,
// and finally by HTTPSVC_ prefixed environment variables,
// e.g. HTTPSVC_STREAMING_SELECTORTIMEOUT=5ms.
func ConfigSources(extra ...config.Source) []config.Source {
	srcs := make([]config.Source, 0, len(extra)+2)
	srcs = append(srcs, DefaultConfig())
	srcs = append(srcs, extra...)
	srcs = append(srcs, config.FromEnv(EnvPrefix))
	return srcs
}

// Config
type Config struct {
	Streaming   StreamingConfig   `config:"streaming"`
	Connections ConnectionsConfig `config:"connections"`
	OTel        otelconfig.Config `config:"otel"`
	Servers     []ServerConfig    `config:"servers"`
}

// StreamingConfig
type StreamingConfig struct {
	// SelectorTimeout is the hand-off threshold of response streaming.
	SelectorTimeout time.Duration `config:"selectorTimeout"`
	ChunkSize       int           `config:"chunkSize"`
}

// ConnectionsConfig sizes the loops and workers shared by every server.
type ConnectionsConfig struct {
	Selectors       int `config:"selectors"`
	Workers         int `config:"workers"`
	WorkerQueueSize int `config:"workerQueueSize"`
}

// ServerConfig describes one listening server.
type ServerConfig struct {
	Name                         string        `config:"name"`
	Host                         string        `config:"host"`
	Port                         uint16        `config:"port"`
	DisablePersistentConnections bool          `config:"disablePersistentConnections"`
	IdleTimeout                  time.Duration `config:"idleTimeout"`
	TLS                          TLSConfig     `config:"tls"`
}

// TLSConfig enables HTTPS when both files are set.
type TLSConfig struct {
	CertFile string `config:"certFile"`
	KeyFile  string `config:"keyFile"`
}

// Configuration converts c into a [server.Configuration], loading the
// TLS key pair if one is configured.
func (c ServerConfig) Configuration() (server.Configuration, error) {
	cfg := server.Configuration{
		Name:                     c.Name,
		Host:                     c.Host,
		Port:                     c.Port,
		UsePersistentConnections: !c.DisablePersistentConnections,
		ConnectionIdleTimeout:    c.IdleTimeout,
	}
	if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
		return cfg, nil
	}

	cert, err := tls.LoadX509KeyPair(c.TLS.CertFile, c.TLS.KeyFile)
	if err != nil {
		return cfg, err
	}
	cfg.TLS = &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	return cfg, nil
}
