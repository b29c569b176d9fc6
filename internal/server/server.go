// Package server provides the HTTP API for lore.
package server

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/lore/internal/config"
	"github.com/hyperjump/lore/internal/metrics"
	"github.com/hyperjump/lore/internal/ratelimit"
	"github.com/hyperjump/lore/internal/watcher"
	"github.com/hyperjump/lore/pkg/lore"
)

// InboxService is the import inbox as the API sees it. *watcher.Inbox implements it.
type InboxService interface {
	Directories() []string
	AddDirectory(path string) error
	RemoveDirectory(path string) error
	Stats() watcher.InboxStats
}

// Server is the HTTP server for the lore API.
type Server struct {
	engine  *lore.Engine
	config  *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
	limiter ratelimit.Backend
	inbox   InboxService

	maxImportBytes int64

	configPath string
	configMu   sync.Mutex

	server *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics serves /metrics and counts requests.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithRateLimiter limits /api requests per client.
func WithRateLimiter(b ratelimit.Backend) Option {
	return func(s *Server) { s.limiter = b }
}

// WithInbox enables the watch directory endpoints. When configPath is set,
// directory changes are saved back to the config file.
func WithInbox(in InboxService, configPath string) Option {
	return func(s *Server) {
		s.inbox = in
		s.configPath = configPath
	}
}

// WithMaxImportBytes caps import request bodies; n <= 0 keeps the default.
func WithMaxImportBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxImportBytes = n
		}
	}
}

// NewServer creates a server for engine.
func NewServer(engine *lore.Engine, cfg *config.Config, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:         engine,
		config:         cfg,
		logger:         logger,
		maxImportBytes: defaultMaxImportBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	r.Route("/api/v1", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(ratelimit.Middleware(s.limiter, ratelimit.ClientIP, s.logger))
		}
		r.Post("/lessons", s.handlePublish)
		r.Get("/lessons", s.handleList)
		r.Get("/lessons/{id}", s.handleGet)
		r.Delete("/lessons/{id}", s.handleDelete)
		r.Post("/query", s.handleQuery)
		r.Post("/search", s.handleSearch)
		r.Get("/export", s.handleExport)
		r.Post("/import", s.handleImport)
		r.Get("/status", s.handleStatus)

		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// requestLogger logs each request through zap and counts it when metrics are on.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
		if s.metrics != nil {
			s.metrics.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		}
	})
}
