// Package api exposes the SleepAdvisor HTTP surface: health, the Twilio
// inbound webhook and read access to cached results.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/BTreeMap/SleepAdvisor/internal/store"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = ":8080"
	// shutdownTimeout bounds graceful HTTP shutdown.
	shutdownTimeout = 10 * time.Second
	// readHeaderTimeout protects against slow clients.
	readHeaderTimeout = 10 * time.Second
)

// SessionCounter reports the number of active questionnaire sessions.
type SessionCounter interface {
	Len() int
}

// Server serves the HTTP API.
type Server struct {
	sessions SessionCounter
	results  store.ResultStore
	webhook  http.HandlerFunc
	router   chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithTwilioWebhook mounts h at POST /webhook/twilio.
func WithTwilioWebhook(h http.HandlerFunc) Option {
	return func(s *Server) { s.webhook = h }
}

// NewServer builds the router.
func NewServer(sessions SessionCounter, results store.ResultStore, opts ...Option) *Server {
	s := &Server{sessions: sessions, results: results}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chiMiddleware.Recoverer)

	r.Get("/health", s.healthHandler)
	r.Get("/results/{userID}", s.resultHandler)
	if s.webhook != nil {
		r.Post("/webhook/twilio", s.webhook)
	}
	s.router = r
	return s
}

// Handler returns the HTTP handler of the server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("SleepAdvisor API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	slog.Info("SleepAdvisor API shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown failed: %w", err)
	}
	return nil
}

// requestLogger logs one structured line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", chiMiddleware.GetReqID(r.Context()))
	})
}
