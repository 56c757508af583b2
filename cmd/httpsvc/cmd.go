// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"bytes"
	_ "embed"
	"os"
	"time"

	"github.com/z5labs/httpsvc"
	"github.com/z5labs/httpsvc/config"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

//go:embed default_config.yaml
var defaultConfig []byte

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "httpsvc",
		Short:        "Asynchronous HTTP response streaming service",
		SilenceUsage: true,
	}
	cmd.AddCommand(newServeCmd())
	return cmd
}

// flagKeys maps serve flags to the config keys they override.
var flagKeys = map[string]string{
	"root":             "files.root",
	"host":             "listen.host",
	"port":             "listen.port",
	"ops-addr":         "ops.addr",
	"selector-timeout": "streaming.selectorTimeout",
	"chunk-size":       "streaming.chunkSize",
	"workers":          "connections.workers",
	"otel-exporter":    "otel.exporter",
	"otel-target":      "otel.target",
	"log-level":        "logging.level",
}

func newServeCmd() *cobra.Command {
	return newServeCmdWith(viper.New())
}

func newServeCmdWith(v *viper.Viper) *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a directory over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			srcs, err := sources(configFile, v)
			if err != nil {
				return err
			}
			return httpsvc.Run(
				cmd.Context(),
				httpsvc.AppBuilderFunc[Config](Init),
				srcs...,
			)
		},
	}

	fs := cmd.Flags()
	fs.StringVarP(&configFile, "config", "c", "", "yaml config file merged over the defaults")
	fs.String("root", ".", "directory served under /files/ and /bundle/")
	fs.String("host", "", "host the file server listens on, all interfaces if empty")
	fs.Uint16("port", 8080, "port the file server listens on")
	fs.String("ops-addr", ":9090", "address of the metrics and health endpoints")
	fs.Duration("selector-timeout", 2*time.Millisecond, "delay after which response streaming is handed off to a worker")
	fs.Int("chunk-size", 8192, "maximum bytes written per response chunk")
	fs.Int("workers", 0, "worker pool size, 0 sizes it for I/O bound work")
	fs.String("otel-exporter", "none", "trace exporter: none, stdout or otlp")
	fs.String("otel-target", "", "OTLP collector gRPC target")
	fs.String("log-level", "INFO", "minimum log level")

	bindFlags(v, fs)
	return cmd
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	for name, key := range flagKeys {
		// only fails for a nil flag
		_ = v.BindPFlag(key, fs.Lookup(name))
	}
}

func sources(configFile string, v *viper.Viper) ([]config.Source, error) {
	var fileSrc config.Source
	if configFile != "" {
		f, err := os.Open(configFile)
		if err != nil {
			return nil, err
		}
		fileSrc = config.FromYaml(f)
	}

	return httpsvc.ConfigSources(
		config.FromYaml(bytes.NewReader(defaultConfig)),
		fileSrc,
		config.FromViper(v),
	), nil
}
