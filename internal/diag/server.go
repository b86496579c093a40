// Package diag serves a local diagnostics API: health, Prometheus metrics,
// update status and an on-demand update check.
package diag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/deskhost/deskhost/internal/observability"
	"github.com/deskhost/deskhost/internal/storage"
	"github.com/deskhost/deskhost/internal/updater"
)

const (
	defaultHistoryLimit = 10
	shutdownTimeout     = 5 * time.Second
)

// Updater is the part of the update controller the API drives.
type Updater interface {
	Status() updater.Status
	CheckNow(ctx context.Context) (updater.Status, error)
}

// History lists persisted update cycles, newest first.
type History interface {
	UpdateHistory(limit int) ([]*storage.UpdateRecord, error)
}

// Options wires the server's dependencies. Nil members disable their routes.
type Options struct {
	Updater Updater
	History History
	Health  *observability.HealthManager
	Metrics http.Handler
	Version string
}

// APIResponse is the envelope of every /api/v1 response.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// StatusResponse is the payload of GET /api/v1/status.
type StatusResponse struct {
	Version   string                  `json:"version"`
	Updater   *updater.Status         `json:"updater,omitempty"`
	History   []*storage.UpdateRecord `json:"history,omitempty"`
	Timestamp int64                   `json:"timestamp"`
}

// Server is the diagnostics HTTP server.
type Server struct {
	opts   Options
	logger *zap.Logger
	router *chi.Mux

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	done     chan struct{}
}

func New(opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		opts:   opts,
		logger: logger.Named("diag"),
		router: chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(s.httpLoggingMiddleware())
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)

	if s.opts.Health != nil {
		s.router.Get("/healthz", s.opts.Health.HealthzHandler())
	} else {
		s.router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
		})
	}
	if s.opts.Metrics != nil {
		s.router.Handle("/metrics", s.opts.Metrics)
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleGetStatus)
		r.Route("/update", func(r chi.Router) {
			r.Get("/history", s.handleGetHistory)
			r.Post("/check", s.handleCheckNow)
		})
	})
}

// Start listens on addr and serves in the background. Use port 0 for an
// ephemeral port; Addr reports the bound address.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("diagnostics server already started")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if host, _, err := net.SplitHostPort(ln.Addr().String()); err == nil {
		if ip := net.ParseIP(host); ip != nil && !ip.IsLoopback() {
			s.logger.Warn("Diagnostics server is reachable from the network", zap.String("addr", ln.Addr().String()))
		}
	}

	s.listener = ln
	s.done = make(chan struct{})
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(s.logger),
	}

	go func(srv *http.Server, done chan struct{}) {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Diagnostics server stopped", zap.Error(err))
		}
	}(s.srv, s.done)

	s.logger.Info("Diagnostics server listening", zap.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown stops the server gracefully. It is a no-op if never started.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv, done := s.srv, s.done
	s.srv = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(ctx)
	<-done
	if err != nil {
		return fmt.Errorf("failed to shut down diagnostics server: %w", err)
	}
	return nil
}

func (s *Server) handleGetStatus(w http.ResponseWriter, _ *http.Request) {
	resp := StatusResponse{
		Version:   s.opts.Version,
		Timestamp: time.Now().Unix(),
	}
	if s.opts.Updater != nil {
		st := s.opts.Updater.Status()
		resp.Updater = &st
	}
	if s.opts.History != nil {
		history, err := s.opts.History.UpdateHistory(defaultHistoryLimit)
		if err != nil {
			s.logger.Warn("Failed to read update history", zap.Error(err))
		}
		resp.History = history
	}
	s.writeSuccess(w, resp)
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		s.writeError(w, http.StatusNotFound, "update history is not available")
		return
	}

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	history, err := s.opts.History.UpdateHistory(limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeSuccess(w, history)
}

// handleCheckNow runs a cycle synchronously; prompts shown during the cycle
// are answered in the window before the response is written.
func (s *Server) handleCheckNow(w http.ResponseWriter, r *http.Request) {
	if s.opts.Updater == nil {
		s.writeError(w, http.StatusNotFound, "updater is not configured")
		return
	}

	st, err := s.opts.Updater.CheckNow(r.Context())
	switch {
	case errors.Is(err, updater.ErrCycleInProgress):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, updater.ErrNotStarted):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	default:
		s.writeSuccess(w, st)
	}
}

func (s *Server) httpLoggingMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(ww, r)

			s.logger.Debug("HTTP request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Int("status", ww.statusCode),
				zap.Duration("duration", time.Since(start)))
		})
	}
}

// responseWriter captures the status code for logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if flusher, ok := rw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, APIResponse{Success: false, Error: message})
}

func (s *Server) writeSuccess(w http.ResponseWriter, data interface{}) {
	s.writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: data})
}
