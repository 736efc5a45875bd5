// Package main is the entry point for the status webhook server.
//
// It loads the webhook and queue configuration, builds the HTTP server with
// the core chassis (middleware, routing, health checks), mounts the status
// callback route and serves until SIGINT or SIGTERM, then drains in-flight
// requests.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"screeningcomms/internal/app"
	"screeningcomms/internal/config"
	"screeningcomms/internal/core"
	"screeningcomms/internal/status"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Load(ctx, config.SectionWebhook, config.SectionQueue)
	if err != nil {
		return err
	}
	defer a.Close()

	srv, err := newServer(a.Config, a.Logger, a.WebhookHandler(),
		app.QueueCheck("status_queue", a.StatusQueue()))
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return serve(ctx, srv, a.Config, a.Logger)
}

// newServer builds the router with the webhook mounted.
func newServer(cfg *config.Config, logger *slog.Logger, webhook *status.WebhookHandler, checks ...core.HealthCheck) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, err
	}
	srv.HealthChecks = checks
	srv.RouteRegistrars = append(srv.RouteRegistrars, webhook.RegisterRoutes)
	srv.MountRoutes()
	return srv, nil
}

// serve runs the server until ctx is cancelled, then shuts it down within
// the configured timeout.
func serve(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("initiating graceful shutdown")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped cleanly")
	return nil
}
