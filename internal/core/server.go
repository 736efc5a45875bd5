// Package core is the HTTP chassis of the status webhook. It builds a chi
// router with the cross-cutting middleware (panic recovery, request ids,
// security headers, request logging) and the health endpoint, and hosts
// the route registrars supplied by the entry point.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"screeningcomms/internal/config"
)

// Server holds the router and its dependencies.
type Server struct {
	Config       *config.Config
	Logger       *slog.Logger
	HealthChecks []HealthCheck

	// RouteRegistrars mount domain handlers at the root of the router.
	RouteRegistrars []func(chi.Router)

	router *chi.Mux
	http   *http.Server
}

// NewServer creates a Server. Routes are mounted separately by MountRoutes
// so tests can adjust the registrars first.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}
	router := chi.NewRouter()
	return &Server{
		Config: cfg,
		Logger: logger,
		router: router,
		http: &http.Server{
			Addr:         ":" + cfg.Server.Port,
			Handler:      router,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
		},
	}, nil
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ListenAndServe serves on the configured port until Shutdown is called.
// It returns nil at once if Shutdown already ran.
func (s *Server) ListenAndServe() error {
	s.Logger.Info("webhook server listening", "addr", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")
	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	s.Logger.Info("server shutdown complete")
	return nil
}
