// Copyright (c) 2025 Z5Labs and Contributors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package httpsvc

import (
	"context"
	"log/slog"

	"github.com/z5labs/httpsvc/internal/noop"
	"github.com/z5labs/httpsvc/internal/otelslog"
	"github.com/z5labs/httpsvc/internal/slogfield"
	"github.com/z5labs/httpsvc/server"
	"github.com/z5labs/httpsvc/streaming"
	"github.com/z5labs/httpsvc/transport"

	"github.com/prometheus/client_golang/prometheus"
)

// ContainerContext is the deployment context of [Service.ServerFactory].
const ContainerContext = "container"

type serviceOptions struct {
	logHandler slog.Handler
	registerer prometheus.Registerer
}

// ServiceOption configures a [Service].
type ServiceOption func(*serviceOptions)

// LogHandler sets the handler the service and every server log to.
func LogHandler(h slog.Handler) ServiceOption {
	return func(so *serviceOptions) {
		so.logHandler = h
	}
}

// Registerer registers the streaming and transport collectors with reg.
func Registerer(reg prometheus.Registerer) ServiceOption {
	return func(so *serviceOptions) {
		so.registerer = reg
	}
}

// Service is the HTTP service. It must be started before any server
// is created and stopping it disposes every server.
type Service struct {
	log     *slog.Logger
	manager *server.Manager
}

// NewService returns a service configured by cfg.
func NewService(cfg Config, opts ...ServiceOption) *Service {
	so := serviceOptions{
		logHandler: noop.LogHandler{},
	}
	for _, opt := range opts {
		opt(&so)
	}

	streamingOpts := []streaming.Option{
		streaming.SelectorTimeout(cfg.Streaming.SelectorTimeout),
		streaming.ChunkSize(cfg.Streaming.ChunkSize),
		streaming.WithMetrics(streaming.NewMetrics(so.registerer)),
	}
	managerOpts := []server.ManagerOption{
		server.LogHandler(so.logHandler),
		server.StreamingOptions(streamingOpts...),
		server.TransportMetrics(transport.NewMetrics(so.registerer)),
		server.WorkerQueueSize(cfg.Connections.WorkerQueueSize),
	}
	if cfg.Connections.Selectors > 0 {
		managerOpts = append(managerOpts, server.Selectors(cfg.Connections.Selectors))
	}
	if cfg.Connections.Workers > 0 {
		managerOpts = append(managerOpts, server.Workers(cfg.Connections.Workers))
	}

	return &Service{
		log:     otelslog.New(so.logHandler),
		manager: server.NewManager(managerOpts...),
	}
}

// Name returns the service name, "HTTP Service".
func (s *Service) Name() string {
	return "HTTP Service"
}

// Start initializes the connection manager if it has not been already.
func (s *Service) Start(ctx context.Context) error {
	s.manager.Init(ctx)
	s.log.InfoContext(ctx, "started service", slogfield.String("service", s.Name()))
	return nil
}

// Stop disposes every server created through the service.
func (s *Service) Stop() error {
	err := s.manager.Dispose()
	if err != nil {
		s.log.Error("failed to dispose connection manager", slogfield.Error(err))
		return err
	}
	s.log.Info("stopped service", slogfield.String("service", s.Name()))
	return nil
}

// ServerFactory returns the factory of the container context.
func (s *Service) ServerFactory() ServerFactory {
	return s.ServerFactoryFor(ContainerContext)
}

// ServerFactoryFor returns the factory of the given deployment context.
func (s *Service) ServerFactoryFor(contextID string) ServerFactory {
	return ServerFactory{
		context: contextID,
		manager: s.manager,
	}
}

// ServerFactory creates and looks up servers within one deployment context.
type ServerFactory struct {
	context string
	manager *server.Manager
}

// Context returns the deployment context servers are created in.
func (f ServerFactory) Context() string {
	return f.context
}

// Create creates, but does not start, a server.
func (f ServerFactory) Create(cfg server.Configuration) (server.Server, error) {
	return f.manager.Create(cfg, f.context)
}

// Lookup returns the server previously created under name.
func (f ServerFactory) Lookup(name string) (server.Server, error) {
	return f.manager.Lookup(server.Identifier{Context: f.context, Name: name})
}
