// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package httpsvc

import (
	"strings"
	"testing"
	"time"

	"github.com/z5labs/httpsvc/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readConfig(t *testing.T, extra ...config.Source) Config {
	t.Helper()

	m, err := config.Read(ConfigSources(extra...)...)
	require.NoError(t, err)

	var cfg Config
	require.NoError(t, m.Unmarshal(&cfg))
	return cfg
}

func TestDefaultConfig(t *testing.T) {
	t.Run("will set the streaming defaults", func(t *testing.T) {
		t.Run("if nothing overrides them", func(t *testing.T) {
			cfg := readConfig(t)

			assert.Equal(t, 2*time.Millisecond, cfg.Streaming.SelectorTimeout)
			assert.Equal(t, 8192, cfg.Streaming.ChunkSize)
			assert.Equal(t, 0, cfg.Connections.Selectors)
			assert.Equal(t, "httpsvc", cfg.OTel.ServiceName)
			assert.Equal(t, "none", cfg.OTel.Exporter)
			assert.Empty(t, cfg.Servers)
		})
	})

	t.Run("will use the environment", func(t *testing.T) {
		t.Run("if the selector timeout is overridden", func(t *testing.T) {
			t.Setenv("HTTPSVC_STREAMING_SELECTORTIMEOUT", "5ms")

			cfg := readConfig(t)
			assert.Equal(t, 5*time.Millisecond, cfg.Streaming.SelectorTimeout)
		})
	})

	t.Run("will decode servers", func(t *testing.T) {
		t.Run("if they are listed in an extra source", func(t *testing.T) {
			src := config.FromYaml(strings.NewReader(`
servers:
  - name: files
    host: 127.0.0.1
    port: 8080
    idleTimeout: 30s
  - name: ops
    port: 9090
    disablePersistentConnections: true
`))

			cfg := readConfig(t, src)
			require.Len(t, cfg.Servers, 2)

			files, err := cfg.Servers[0].Configuration()
			require.NoError(t, err)
			assert.Equal(t, "files", files.Name)
			assert.Equal(t, "127.0.0.1", files.Host)
			assert.Equal(t, uint16(8080), files.Port)
			assert.Equal(t, 30*time.Second, files.ConnectionIdleTimeout)
			assert.True(t, files.UsePersistentConnections)
			assert.Nil(t, files.TLS)

			ops, err := cfg.Servers[1].Configuration()
			require.NoError(t, err)
			assert.False(t, ops.UsePersistentConnections)
		})
	})
}

func TestServerConfig_Configuration(t *testing.T) {
	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the key pair cannot be loaded", func(t *testing.T) {
			dir := t.TempDir()
			c := ServerConfig{
				Name: "secure",
				TLS: TLSConfig{
					CertFile: dir + "/missing.crt",
					KeyFile:  dir + "/missing.key",
				},
			}

			_, err := c.Configuration()
			assert.Error(t, err)
		})
	})
}
