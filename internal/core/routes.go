package core

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"screeningcomms/internal/types"
)

// defaultRequestTimeout bounds a single webhook request, queue write
// included.
const defaultRequestTimeout = 10 * time.Second

// redactedHeaders carry the webhook's shared secrets.
var redactedHeaders = []string{
	"Authorization",
	"X-Api-Key",
	"X-Hmac-Sha256-Signature",
}

// MountRoutes registers the middleware chain, the health endpoint and the
// domain routes. recoverPanics is outermost; the access log sees the
// request id and the final status.
func (s *Server) MountRoutes() {
	s.router.Use(s.recoverPanics)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	// JSON only: nothing may be framed, sniffed or cached.
	s.router.Use(middleware.SetHeader("X-Content-Type-Options", "nosniff"))
	s.router.Use(middleware.SetHeader("X-Frame-Options", "DENY"))
	s.router.Use(middleware.NoCache)
	s.router.Use(accessLog(s.Logger, redactedHeaders...))

	s.router.Get("/health", s.HandleHealth)
	for _, registrar := range s.RouteRegistrars {
		registrar(s.router)
	}
}

func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Server.WriteTimeout > 0 {
		return s.Config.Server.WriteTimeout
	}
	return defaultRequestTimeout
}

// ContextTimeoutMiddleware sets a deadline on the request context.
func ContextTimeoutMiddleware(duration time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), duration)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDMiddleware reuses an incoming X-Request-Id or generates one,
// stores it in the context and echoes it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := types.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
