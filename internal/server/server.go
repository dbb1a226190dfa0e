// Package server hosts a store catalog over HTTP.
//
//	GET  /healthz
//	GET  /api/v1/stores
//	GET  /api/v1/stores/{name}
//	POST /api/v1/query
//	GET  /metrics
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v3"

	"github.com/kemiz/fsgrid/internal/metrics"
	"github.com/kemiz/fsgrid/internal/querysql"
	"github.com/kemiz/fsgrid/internal/runner"
	"github.com/kemiz/fsgrid/internal/store"
)

// Server serves queries against one Catalog. The catalog is read only
// from the server's point of view; loads happen before Start.
type Server struct {
	catalog    *store.Catalog
	runner     *runner.Runner
	logger     *slog.Logger
	metrics    *metrics.Metrics
	handler    http.Handler
	httpServer *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server and request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics records query timings and serves them on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New creates a Server listening on addr.
func New(catalog *store.Catalog, addr string, opts ...Option) *Server {
	s := &Server{
		catalog: catalog,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.runner = runner.New(catalog,
		runner.WithCompiler(querysql.NewSQLCompiler(catalog.Schemas())),
		runner.WithLogger(s.logger),
		runner.WithMetrics(s.metrics))
	s.handler = s.routes()
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(httplog.RequestLogger(s.logger, &httplog.Options{
		Level:             slog.LevelDebug,
		Schema:            httplog.SchemaECS.Concise(true),
		LogRequestHeaders: []string{},
	}))

	r.Get("/healthz", s.health)
	r.Handle("/metrics", s.metrics.Handler())
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/stores", s.listStores)
		r.Get("/stores/{name}", s.getStore)
		r.Post("/query", s.runQuery)
	})
	return r
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", slog.String("addr", s.httpServer.Addr))
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("starting HTTP server", slog.String("addr", l.Addr().String()))
	err := s.httpServer.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and waits for in-flight queries.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
