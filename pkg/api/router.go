// Package api provides the HTTP management surface of the gateway: health
// probes, session inspection, command delivery and the Prometheus scrape
// endpoint.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wheelseye/devicegateway/internal/logger"
	"github.com/wheelseye/devicegateway/pkg/api/handlers"
	"github.com/wheelseye/devicegateway/pkg/metrics"
	"github.com/wheelseye/devicegateway/pkg/session"
)

// RouterDeps carries the collaborators the routes need. Sender may be nil
// when the device listener is not running (command delivery answers 503).
type RouterDeps struct {
	Registry  *session.Registry
	Sender    handlers.CommandSender
	IsOffline func(error) bool
}

// NewRouter creates and configures the chi router with all middleware and
// routes.
//
// Routes:
//   - GET  /health                          - Liveness probe
//   - GET  /health/ready                    - Readiness probe
//   - GET  /metrics                         - Prometheus scrape endpoint
//   - GET  /api/v1/devices/sessions         - List device sessions
//   - GET  /api/v1/devices/{imei}/session   - Look up one device session
//   - POST /api/v1/devices/{imei}/commands  - Deliver a command to a device
func NewRouter(deps RouterDeps, requestTimeout time.Duration) http.Handler {
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}

	r := chi.NewRouter()

	// Middleware stack; order matters.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	healthHandler := handlers.NewHealthHandler(deps.Registry)
	devicesHandler := handlers.NewDevicesHandler(deps.Registry, deps.Sender, deps.IsOffline)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	if metrics.IsEnabled() {
		r.Get("/metrics", promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}).ServeHTTP)
	}

	r.Route("/api/v1/devices", func(r chi.Router) {
		r.Get("/sessions", devicesHandler.ListSessions)
		r.Route("/{imei}", func(r chi.Router) {
			r.Get("/session", devicesHandler.GetSession)
			r.Post("/commands", devicesHandler.SendCommand)
		})
	})

	// Root redirect to health for convenience.
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger logs requests using the internal logger: start at DEBUG,
// completion at INFO with status and duration.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.Info("API request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
		)
	})
}
