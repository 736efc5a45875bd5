package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"screeningcomms/internal/config"
	"screeningcomms/internal/core"
	"screeningcomms/internal/security"
	"screeningcomms/internal/status"
)

type captureQueue struct {
	bodies []string
}

func (q *captureQueue) Send(_ context.Context, body string) error {
	q.bodies = append(q.bodies, body)
	return nil
}

func testConfig() *config.Config {
	cfg := &config.Config{Environment: "test"}
	cfg.Server.Port = "0"
	return cfg
}

func buildTestServer(t *testing.T, q *captureQueue, checks ...core.HealthCheck) *core.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	webhook := status.NewWebhookHandler(q, "api-key", "app-id.api-key", logger)
	srv, err := newServer(testConfig(), logger, webhook, checks...)
	if err != nil {
		t.Fatalf("newServer: %v", err)
	}
	return srv
}

func TestWebhookRouteMounted(t *testing.T) {
	q := &captureQueue{}
	srv := buildTestServer(t, q)

	body := `{"data":[{"type":"MessageStatus"}]}`
	req := httptest.NewRequest(http.MethodPost, "/message-status/create", strings.NewReader(body))
	req.Header.Set("x-api-key", "api-key")
	req.Header.Set("x-hmac-sha256-signature", security.Sign("app-id.api-key", []byte(body)))
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(q.bodies) != 1 || q.bodies[0] != body {
		t.Errorf("expected body to be enqueued verbatim, got %v", q.bodies)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("expected X-Request-Id header")
	}
}

func TestHealthReportsStatusQueue(t *testing.T) {
	srv := buildTestServer(t, &captureQueue{}, core.HealthCheck{
		Name: "status_queue",
		Run:  func(context.Context) error { return errors.New("unreachable") },
	})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "status_queue") {
		t.Errorf("expected check name in body, got %s", rec.Body.String())
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	srv := buildTestServer(t, &captureQueue{})
	cfg := testConfig()
	cfg.Server.ShutdownTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := serve(ctx, srv, cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err != nil {
		t.Fatalf("serve: %v", err)
	}
}

func TestWebhookRejectionBody(t *testing.T) {
	q := &captureQueue{}
	srv := buildTestServer(t, q)

	body := `{"data":[{"type":"MessageStatus"}]}`
	req := httptest.NewRequest(http.MethodPost, "/message-status/create", strings.NewReader(body))
	req.Header.Set("x-api-key", "api-key")
	req.Header.Set("x-hmac-sha256-signature", security.Sign("app-id.api-key", []byte(body+" ")))
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if got, want := rec.Body.String(), `{"error":{"message":"Signature does not match"}}`; got != want {
		t.Errorf("body = %s, want %s", got, want)
	}
	if len(q.bodies) != 0 {
		t.Errorf("rejected callback was enqueued: %v", q.bodies)
	}
}
