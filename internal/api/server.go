// Package api is the optional operator HTTP surface: health, an SSE stream
// of hub events, owner probes, and the failure journal.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/affinity/internal/affinity"
	"github.com/mattjoyce/affinity/internal/events"
	"github.com/mattjoyce/affinity/internal/journal"
)

// Dispatcher is the part of affinity.Dispatcher the API uses.
type Dispatcher interface {
	Stats() affinity.Stats
	Dispatch(w affinity.Work) error
}

// FailureLister reads recorded work failures.
type FailureLister interface {
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Config holds API server configuration
type Config struct {
	Listen string
	// APIKey protects the mutating and journal routes when set.
	APIKey string
	// ProbeTimeout bounds POST /ping?wait=true.
	ProbeTimeout time.Duration
}

// Server represents the HTTP API server
type Server struct {
	config     Config
	dispatcher Dispatcher
	hub        *events.Hub
	ownerStats func() any
	failures   FailureLister
	logger     *slog.Logger
	server     *http.Server
	startedAt  time.Time
}

// Option configures optional Server collaborators.
type Option func(*Server)

// WithOwnerStats adds the owner host's counters to /healthz.
func WithOwnerStats(fn func() any) Option {
	return func(s *Server) {
		s.ownerStats = fn
	}
}

// WithFailures enables GET /failures.
func WithFailures(f FailureLister) Option {
	return func(s *Server) {
		s.failures = f
	}
}

// New creates a new API server instance
func New(config Config, d Dispatcher, hub *events.Hub, logger *slog.Logger, opts ...Option) *Server {
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = 2 * time.Second
	}
	s := &Server{
		config:     config,
		dispatcher: d,
		hub:        hub,
		logger:     logger,
		startedAt:  time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start starts the HTTP server (blocking)
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("API server starting", "listen", s.config.Listen)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("API server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

// Handler returns the routed handler, for embedding and tests.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/events", s.handleEvents)

	r.Group(func(r chi.Router) {
		if s.config.APIKey != "" {
			r.Use(s.authMiddleware)
		}
		r.Post("/ping", s.handlePing)
		r.Get("/failures", s.handleFailures)
	})

	return r
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
