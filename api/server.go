// Package api serves the persistence service over HTTP. Every JSON response
// uses the {success, data, error, message} envelope.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/asaidimu/go-sieve/core/persistence"
	"github.com/asaidimu/go-sieve/metrics"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// DefaultMaxBodySize bounds request bodies.
const DefaultMaxBodySize int64 = 1 << 20

// Server wraps the persistence layer and provides HTTP handlers.
type Server struct {
	persistence persistence.PersistenceInterface
	logger      *zap.Logger
	metrics     *metrics.Metrics
	router      *httprouter.Router
	maxBodySize int64
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics records request metrics in m and serves them on /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithMaxBodySize overrides DefaultMaxBodySize.
func WithMaxBodySize(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBodySize = n
		}
	}
}

// NewServer creates a new API server instance. A nil logger discards output.
func NewServer(p persistence.PersistenceInterface, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	server := &Server{
		persistence: p,
		logger:      logger,
		router:      httprouter.New(),
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(server)
	}

	server.setupRoutes()
	return server
}

// ServeHTTP implements http.Handler with CORS applied.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.CORSMiddleware(s.router).ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	s.handle(http.MethodPost, "/api/collections/:collection/documents", s.handleInsertDocuments)
	s.handle(http.MethodGet, "/api/collections/:collection/documents", s.handleListDocuments)
	s.handle(http.MethodPost, "/api/collections/:collection/filter", s.handleFilter)

	s.handle(http.MethodPost, "/api/rulesets", s.handleCreateRuleSet)
	s.handle(http.MethodGet, "/api/rulesets", s.handleListRuleSets)
	s.handle(http.MethodGet, "/api/rulesets/:id", s.handleGetRuleSet)
	s.handle(http.MethodPut, "/api/rulesets/:id", s.handleUpdateRuleSet)
	s.handle(http.MethodDelete, "/api/rulesets/:id", s.handleDeleteRuleSet)
	s.handle(http.MethodPost, "/api/rulesets/:id/apply", s.handleApplyRuleSet)

	if s.metrics != nil {
		s.router.Handler(http.MethodGet, "/metrics", s.metrics.Handler())
	}

	s.router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeErrorResponse(w, http.StatusNotFound, CodeNotFound, fmt.Sprintf("No route for %s %s", r.Method, r.URL.Path), nil)
	})
	s.router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeErrorResponse(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, fmt.Sprintf("Method %s not allowed", r.Method), nil)
	})
	s.router.PanicHandler = func(w http.ResponseWriter, r *http.Request, v any) {
		s.logger.Error("Handler panicked", zap.String("path", r.URL.Path), zap.Any("panic", v))
		s.writeErrorResponse(w, http.StatusInternalServerError, CodeInternal, "Internal server error", nil)
	}
}

// handle registers h under route, recording request metrics by route pattern.
func (s *Server) handle(method, route string, h httprouter.Handle) {
	if s.metrics == nil {
		s.router.Handle(method, route, h)
		return
	}
	s.router.Handle(method, route, func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		h(recorder, r, ps)
		s.metrics.ObserveHTTP(method, route, recorder.status, time.Since(start))
	})
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.written {
		rw.status = code
		rw.written = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.written = true
	return rw.ResponseWriter.Write(b)
}

func (rw *statusRecorder) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// CORSMiddleware adds permissive CORS headers and answers preflight requests.
func (s *Server) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Run serves on addr until ctx is done, then shuts down gracefully, waiting
// at most shutdownTimeout for in-flight requests.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting API server", zap.String("address", addr))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down API server", zap.Duration("timeout", shutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
