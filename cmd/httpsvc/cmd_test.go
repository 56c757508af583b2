// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/z5labs/httpsvc/config"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCLIConfig(t *testing.T, args ...string) Config {
	t.Helper()

	v := viper.New()
	cmd := newServeCmdWith(v)
	require.NoError(t, cmd.ParseFlags(args))

	configFile, err := cmd.Flags().GetString("config")
	require.NoError(t, err)

	srcs, err := sources(configFile, v)
	require.NoError(t, err)

	m, err := config.Read(srcs...)
	require.NoError(t, err)

	var cfg Config
	require.NoError(t, m.Unmarshal(&cfg))
	return cfg
}

func TestServeCmd_Config(t *testing.T) {
	t.Run("will use the defaults", func(t *testing.T) {
		t.Run("if no flag is passed", func(t *testing.T) {
			cfg := readCLIConfig(t)

			assert.Equal(t, "files", cfg.Listen.Name)
			assert.Equal(t, uint16(8080), cfg.Listen.Port)
			assert.Equal(t, time.Minute, cfg.Listen.IdleTimeout)
			assert.Equal(t, ".", cfg.Files.Root)
			assert.Equal(t, "/ws", cfg.Files.WebSocketPath)
			assert.Equal(t, ":9090", cfg.Ops.Addr)
			assert.Equal(t, slog.LevelInfo, cfg.Logging.Level)
			assert.Equal(t, 2*time.Millisecond, cfg.Streaming.SelectorTimeout)
			assert.Equal(t, 8192, cfg.Streaming.ChunkSize)
		})
	})

	t.Run("will override the defaults", func(t *testing.T) {
		t.Run("if flags are passed", func(t *testing.T) {
			cfg := readCLIConfig(
				t,
				"--port", "8081",
				"--root", "/srv",
				"--selector-timeout", "10ms",
				"--log-level", "DEBUG",
				"--otel-exporter", "stdout",
			)

			assert.Equal(t, uint16(8081), cfg.Listen.Port)
			assert.Equal(t, "/srv", cfg.Files.Root)
			assert.Equal(t, 10*time.Millisecond, cfg.Streaming.SelectorTimeout)
			assert.Equal(t, slog.LevelDebug, cfg.Logging.Level)
			assert.Equal(t, "stdout", cfg.OTel.Exporter)
		})

		t.Run("if a config file is passed", func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.yaml")
			err := os.WriteFile(path, []byte("files:\n  root: /data\nstreaming:\n  chunkSize: 4096\n"), 0o600)
			require.NoError(t, err)

			cfg := readCLIConfig(t, "--config", path, "--chunk-size", "2048")

			assert.Equal(t, "/data", cfg.Files.Root)
			assert.Equal(t, 2048, cfg.Streaming.ChunkSize)
		})
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if the config file does not exist", func(t *testing.T) {
			_, err := sources(filepath.Join(t.TempDir(), "missing.yaml"), viper.New())
			assert.ErrorIs(t, err, os.ErrNotExist)
		})
	})
}
