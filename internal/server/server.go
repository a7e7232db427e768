// Package server exposes the telemetry operations over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/Dicklesworthstone/hostprobe/internal/config"
	"github.com/Dicklesworthstone/hostprobe/internal/model"
)

// Service is the set of operations the routes call.
type Service interface {
	Processes(ctx context.Context) ([]model.ProcessRecord, error)
	SystemSummary(ctx context.Context) (model.SystemSummary, error)
	Disks(ctx context.Context) ([]model.DiskRecord, error)
	ProcessHandles(ctx context.Context, pid uint32) ([]model.HandleRecord, error)
	Snapshot(ctx context.Context) (*model.Snapshot, error)
}

// Server represents the HTTP server
type Server struct {
	cfg         config.ServerConfig
	svc         Service
	log         *slog.Logger
	httpServer  *http.Server
	rateLimiter *rate.Limiter
	mu          sync.RWMutex
	ready       bool
}

func New(cfg config.ServerConfig, svc Service, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}
	s := &Server{
		cfg:         cfg,
		svc:         svc,
		log:         log,
		rateLimiter: rate.NewLimiter(limit, cfg.RateBurst),
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s
}

// Router builds the route tree. System endpoints bypass the rate limiter.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.StripSlashes)
	r.Use(s.requestIDMiddleware)
	r.Use(s.panicRecoveryMiddleware)
	r.Use(s.metricsMiddleware)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusNotFound, ErrCodeNotFound, "route not found", false, nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, r, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "method not allowed", false, nil)
	})

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.rateLimitMiddleware)
		r.Use(s.loggingMiddleware)

		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/system", s.handleSystem)
		r.Get("/disks", s.handleDisks)
		r.Get("/filesystem/partitions", s.handleDisks)
		r.Route("/processes", func(r chi.Router) {
			r.Get("/", s.handleProcesses)
			r.Get("/{pid}/handles", s.handleProcessHandles)
		})
	})
	return r
}

// SetReady marks the server as ready to serve traffic
func (s *Server) SetReady(ready bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = ready
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.SetReady(true)
	s.log.Info("server listening", "addr", s.httpServer.Addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	s.log.Info("shutting down server")
	return s.httpServer.Shutdown(shutdownCtx)
}
