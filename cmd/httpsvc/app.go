// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/z5labs/httpsvc"
	"github.com/z5labs/httpsvc/app"
	"github.com/z5labs/httpsvc/health"
	"github.com/z5labs/httpsvc/internal/otelslog"
	"github.com/z5labs/httpsvc/internal/slogfield"
	"github.com/z5labs/httpsvc/server"
	"github.com/z5labs/httpsvc/worker"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// Config
type Config struct {
	httpsvc.Config `config:",squash"`

	Logging struct {
		Level slog.Level `config:"level"`
	} `config:"logging"`

	// Listen is the file server. It is created alongside any entry of Servers.
	Listen httpsvc.ServerConfig `config:"listen"`

	Files struct {
		Root          string `config:"root"`
		WebSocketPath string `config:"webSocketPath"`
	} `config:"files"`

	Ops struct {
		Addr string `config:"addr"`
	} `config:"ops"`
}

// Init builds the file server app from cfg.
func Init(ctx context.Context, cfg Config) (httpsvc.App, error) {
	logHandler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		AddSource: true,
		Level:     cfg.Logging.Level,
	})

	initer, err := cfg.OTel.Initializer()
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	servers := cfg.Servers
	if cfg.Listen.Name != "" {
		servers = append([]httpsvc.ServerConfig{cfg.Listen}, servers...)
	}

	bundlePool := worker.NewPool(worker.ForIO(0), worker.LogHandler(logHandler))

	fs := &fileServer{
		log:        otelslog.New(logHandler),
		svc:        httpsvc.NewService(cfg.Config, httpsvc.LogHandler(logHandler), httpsvc.Registerer(reg)),
		reg:        reg,
		servers:    servers,
		opsAddr:    cfg.Ops.Addr,
		files:      newFileHandler(cfg.Files.Root, logHandler),
		bundles:    newBundleHandler(cfg.Files.Root, bundlePool, logHandler),
		bundlePool: bundlePool,
		echo:       echoSocket{path: cfg.Files.WebSocketPath, log: otelslog.New(logHandler)},
	}
	fs.ready.Set(false)

	var rt httpsvc.App = fs
	rt = app.Recover(rt)
	rt = app.WithOTel(rt, initer)
	rt = app.WithSignalNotifications(rt, os.Interrupt, syscall.SIGTERM)
	return rt, nil
}

type fileServer struct {
	log     *slog.Logger
	svc     *httpsvc.Service
	reg     *prometheus.Registry
	servers []httpsvc.ServerConfig
	opsAddr string

	files   server.RequestHandler
	bundles server.RequestHandler
	echo    server.WebSocketHandler

	// bundlePool reads bundle directories off the transport loops.
	bundlePool *worker.Pool

	ready   health.Binary
	started []server.Server
}

// Run implements the [httpsvc.App] interface.
func (s *fileServer) Run(ctx context.Context) (err error) {
	err = s.svc.Start(ctx)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, s.svc.Stop())
	}()

	factory := s.svc.ServerFactory()
	for _, sc := range s.servers {
		cfg, err := sc.Configuration()
		if err != nil {
			return err
		}
		srv, err := factory.Create(cfg)
		if err != nil {
			return err
		}
		s.register(srv)

		err = srv.Start()
		if err != nil {
			return err
		}
		s.started = append(s.started, srv)
		s.log.InfoContext(
			ctx,
			"listening",
			slogfield.String("name", cfg.Name),
			slogfield.Address(srv.Address()),
			slogfield.String("protocol", string(srv.Protocol())),
		)
	}

	ls, err := net.Listen("tcp", s.opsAddr)
	if err != nil {
		return err
	}
	ops := &http.Server{
		Handler:           s.opsHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.ready.Set(true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.bundlePool.Run(gctx)
	})
	g.Go(func() error {
		err := ops.Serve(ls)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gctx.Done()
		s.ready.Set(false)
		s.log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 5*time.Second)
		defer cancel()
		return ops.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *fileServer) register(srv server.Server) {
	methods := []string{http.MethodGet, http.MethodHead}
	srv.AddRequestHandler(methods, "/files/*", s.files).Start()
	srv.AddRequestHandler(methods, "/bundle/*", s.bundles).Start()
	if s.echo.Path() != "" {
		srv.AddWebSocketHandler(s.echo).Start()
	}
}

func (s *fileServer) opsHandler() http.Handler {
	serving := health.MetricFunc(func(ctx context.Context) bool {
		for _, srv := range s.started {
			if srv.IsStopping() || srv.IsStopped() {
				return false
			}
		}
		return true
	})

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}))
	mux.Handle("/health/liveness", health.Handler(health.MetricFunc(func(context.Context) bool {
		return true
	})))
	mux.Handle("/health/readiness", health.Handler(health.And(&s.ready, serving)))
	return mux
}
