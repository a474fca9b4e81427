// Package http provides the HTTP server and handlers.
package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ngds/geobridge/internal/config"
	"github.com/ngds/geobridge/internal/domain"
	"github.com/ngds/geobridge/internal/ports/input"
)

// Services are the application ports the API dispatches to.
type Services struct {
	Spatializer input.Spatializer
	Publisher   input.LayerPublisher
	Catalog     input.CatalogAdmin
	Health      input.HealthChecker
}

// Authenticator resolves an Authorization header value to a principal.
type Authenticator interface {
	Verify(token string) (domain.Principal, error)
}

// Options are optional server collaborators.
type Options struct {
	Authenticator     Authenticator                   // nil treats every caller as anonymous
	MetricsMiddleware func(http.Handler) http.Handler // nil disables HTTP metrics
	MetricsHandler    http.Handler                    // served at MetricsPath when set
	MetricsPath       string
}

// Server wraps the HTTP server with application handlers.
type Server struct {
	server   *http.Server
	router   *mux.Router
	services Services
	actions  map[string]actionFunc
	opts     Options
	logger   *slog.Logger
	config   config.ServerConfig
}

// NewServer creates a new HTTP server.
func NewServer(cfg config.ServerConfig, services Services, opts Options, logger *slog.Logger) *Server {
	s := &Server{
		services: services,
		opts:     opts,
		logger:   logger,
		config:   cfg,
	}

	s.actions = s.registerActions()
	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:         cfg.Address(),
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	if s.opts.MetricsMiddleware != nil {
		r.Use(s.opts.MetricsMiddleware)
	}
	if policy := newCORSPolicy(s.config.CORS.AllowedOrigins); policy != nil {
		r.Use(policy.middleware)
	}

	// Health endpoints
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.healthCheck(s.services.Health.IsHealthy, "unhealthy")).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.healthCheck(s.services.Health.IsReady, "not ready")).Methods(http.MethodGet)

	// Action API
	api := r.PathPrefix("/api/3/action").Subrouter()
	api.Use(s.authMiddleware)
	api.HandleFunc("/{action}", s.handleAction).Methods(http.MethodGet, http.MethodPost, http.MethodOptions)

	// OpenAPI document and docs page
	r.HandleFunc("/openapi.json", s.handleOpenAPI).Methods(http.MethodGet)
	r.HandleFunc("/docs", s.handleDocs).Methods(http.MethodGet)

	if s.opts.MetricsHandler != nil {
		path := s.opts.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.Handle(path, s.opts.MetricsHandler).Methods(http.MethodGet)
	}

	return r
}

// Router returns the mux router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// HTTPServer returns the underlying server, e.g. to serve it over TLS.
func (s *Server) HTTPServer() *http.Server {
	return s.server
}

// Start starts the HTTP server. It returns nil after Shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "address", s.config.Address())
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
