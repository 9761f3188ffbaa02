// Package server wires the gateway together: session store, registry,
// telemetry, metrics, the GT06 listener and the management API, with ordered
// startup and graceful shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wheelseye/devicegateway/internal/logger"
	"github.com/wheelseye/devicegateway/internal/protocol/gt06"
	"github.com/wheelseye/devicegateway/pkg/adapter"
	gt06adapter "github.com/wheelseye/devicegateway/pkg/adapter/gt06"
	"github.com/wheelseye/devicegateway/pkg/api"
	"github.com/wheelseye/devicegateway/pkg/config"
	"github.com/wheelseye/devicegateway/pkg/metrics"
	prommetrics "github.com/wheelseye/devicegateway/pkg/metrics/prometheus"
	"github.com/wheelseye/devicegateway/pkg/session"
	badgerstore "github.com/wheelseye/devicegateway/pkg/session/store/badger"
	memorystore "github.com/wheelseye/devicegateway/pkg/session/store/memory"
	redisstore "github.com/wheelseye/devicegateway/pkg/session/store/redis"
	"github.com/wheelseye/devicegateway/pkg/telemetry"
)

// sessionGaugeInterval is how often the active-session gauge is refreshed
// from the store.
const sessionGaugeInterval = 30 * time.Second

// Server owns every component of a running gateway instance.
type Server struct {
	cfg *config.Config

	store     session.Store
	registry  *session.Registry
	emitter   *telemetry.Emitter
	gwMetrics metrics.GatewayMetrics
	adapter   *gt06adapter.Adapter
	apiServer *api.Server
}

// New builds a gateway from configuration. Nothing is listening yet; call
// Serve.
func New(cfg *config.Config) (*Server, error) {
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}
	gwMetrics := prommetrics.NewGatewayMetrics()

	store, err := newStore(cfg)
	if err != nil {
		return nil, err
	}

	registry := session.NewRegistry(store, session.RegistryConfig{
		TTL:           cfg.Gateway.SessionTTL,
		IdleTimeout:   cfg.Gateway.IdleTimeout,
		SweepInterval: cfg.Gateway.CleanupInterval,
	})

	var emitter *telemetry.Emitter
	if cfg.Telemetry.Enabled {
		emitter = telemetry.NewEmitter()
		if cfg.Telemetry.LogSink {
			emitter.AddSink(telemetry.NewLogSink())
		}
	}

	listener := gt06adapter.New(gt06adapter.Config{
		BaseConfig: adapter.BaseConfig{
			ListenAddress:   cfg.Gateway.ListenAddress,
			MaxConnections:  cfg.Gateway.MaxConnections,
			ShutdownTimeout: cfg.ShutdownTimeout,
		},
		ReadBufferSize: cfg.Gateway.ReadBufferSize,
		IdleTimeout:    cfg.Gateway.IdleTimeout,
		Decoder: gt06.DecoderConfig{
			MaxFrameLength: cfg.Gateway.MaxFrameLength,
			StrictCRC:      cfg.Gateway.StrictCRC,
			StrictStopBits: cfg.Gateway.StrictStopBits,
		},
	}, registry, emitter, gwMetrics)

	registry.SetEvictionObserver(func(s *session.DeviceSession) {
		emitter.EmitSession(s.IMEI, s.ID, &telemetry.SessionEvent{
			Type:          telemetry.SessionEvicted,
			Variant:       s.Variant,
			RemoteAddress: s.RemoteAddress,
		})
		gwMetrics.RecordSessionEvicted()
		gwMetrics.RecordEventPublished(string(telemetry.TopicSessions))
	})

	s := &Server{
		cfg:       cfg,
		store:     store,
		registry:  registry,
		emitter:   emitter,
		gwMetrics: gwMetrics,
		adapter:   listener,
	}

	if cfg.API.Enabled {
		s.apiServer = api.NewServer(cfg.API, api.RouterDeps{
			Registry:  registry,
			Sender:    listener,
			IsOffline: func(err error) bool { return errors.Is(err, gt06adapter.ErrDeviceOffline) },
		})
	}

	return s, nil
}

// newStore builds the configured session store backend.
func newStore(cfg *config.Config) (session.Store, error) {
	switch cfg.Store.Type {
	case "memory":
		logger.Info("session store initialized", logger.StoreType("memory"))
		return memorystore.New(), nil

	case "badger":
		store, err := badgerstore.New(badgerstore.Config{Path: cfg.Store.Badger.Path})
		if err != nil {
			return nil, fmt.Errorf("opening badger session store: %w", err)
		}
		logger.Info("session store initialized",
			logger.StoreType("badger"), "path", cfg.Store.Badger.Path)
		return store, nil

	case "redis":
		store, err := redisstore.New(redisstore.Config{
			Addr:         cfg.Store.Redis.Addr,
			Password:     cfg.Store.Redis.Password,
			DB:           cfg.Store.Redis.DB,
			MaxIdle:      cfg.Store.Redis.MaxIdle,
			MaxActive:    cfg.Store.Redis.MaxActive,
			IdleTimeout:  cfg.Store.Redis.IdleTimeout,
			DialTimeout:  cfg.Store.Redis.DialTimeout,
			ReadTimeout:  cfg.Store.Redis.ReadTimeout,
			WriteTimeout: cfg.Store.Redis.WriteTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("connecting redis session store: %w", err)
		}
		logger.Info("session store initialized",
			logger.StoreType("redis"), "addr", cfg.Store.Redis.Addr)
		return store, nil

	default:
		return nil, fmt.Errorf("unknown session store type %q", cfg.Store.Type)
	}
}

// Serve runs the gateway until ctx is cancelled or a component fails. On
// return all components are shut down.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.registry.StartSweeper(ctx)
	go s.updateSessionGauge(ctx)

	started := 1
	errCh := make(chan error, 2)
	go func() { errCh <- s.serveListener(ctx, s.adapter) }()
	if s.apiServer != nil {
		started++
		go func() { errCh <- s.serveAPI(ctx) }()
	}

	// First failure (or cancellation) brings everything down.
	var firstErr error
	for i := 0; i < started; i++ {
		if err := <-errCh; err != nil {
			if firstErr == nil {
				firstErr = err
			}
			cancel()
		}
	}

	s.shutdownShared()
	return firstErr
}

// serveListener runs one device-facing listener to completion. Taking the
// interface keeps this loop protocol-agnostic when more tracker families
// get their own adapters.
func (s *Server) serveListener(ctx context.Context, listener adapter.Adapter) error {
	if err := listener.Serve(ctx); err != nil {
		return fmt.Errorf("%s listener failed: %w", listener.Protocol(), err)
	}
	return nil
}

func (s *Server) serveAPI(ctx context.Context) error {
	if err := s.apiServer.Start(ctx); err != nil {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// shutdownShared closes the components the listeners depend on, after the
// listeners themselves have stopped.
func (s *Server) shutdownShared() {
	if err := s.emitter.Close(); err != nil {
		logger.Warn("telemetry shutdown error", logger.Err(err))
	}
	if err := s.store.Close(); err != nil {
		logger.Warn("session store shutdown error", logger.Err(err))
	}
	logger.Info("gateway stopped")
}

// updateSessionGauge periodically publishes the live session count.
func (s *Server) updateSessionGauge(ctx context.Context) {
	ticker := time.NewTicker(sessionGaugeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessions, err := s.registry.List(ctx)
			if err != nil {
				logger.Debug("session gauge refresh failed", logger.Err(err))
				continue
			}
			s.gwMetrics.SetActiveSessions(len(sessions))
		}
	}
}

// Registry exposes the session registry, used by tests and tooling.
func (s *Server) Registry() *session.Registry {
	return s.registry
}

// Adapter exposes the device listener, used by tests and tooling.
func (s *Server) Adapter() *gt06adapter.Adapter {
	return s.adapter
}

// APIServer exposes the management API server, nil when disabled.
func (s *Server) APIServer() *api.Server {
	return s.apiServer
}
