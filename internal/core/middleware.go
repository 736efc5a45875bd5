package core

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"screeningcomms/internal/types"
)

// recoverPanics turns a handler panic into a logged 500 with the error
// envelope. http.ErrAbortHandler is re-raised so net/http can drop the
// connection.
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}
			s.Logger.ErrorContext(r.Context(), "panic in webhook handler",
				"method", r.Method,
				"path", r.URL.Path,
				"panic", fmt.Sprint(rvr),
				"stack", string(debug.Stack()),
			)
			Error(w, r, nil)
		}()
		next.ServeHTTP(w, r)
	})
}

// accessLog writes one line per request. Bodies are never logged; headers
// named in masked are replaced with [REDACTED].
func accessLog(logger *slog.Logger, masked ...string) func(http.Handler) http.Handler {
	mask := make(map[string]bool, len(masked))
	for _, h := range masked {
		mask[http.CanonicalHeaderKey(h)] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}

			headers := make([]any, 0, len(r.Header))
			for name, values := range r.Header {
				v := "[REDACTED]"
				if !mask[name] {
					v = fmt.Sprint(values)
				}
				headers = append(headers, slog.String(name, v))
			}

			logger.LogAttrs(r.Context(), level, "request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Int("bytes", ww.BytesWritten()),
				slog.Duration("duration", time.Since(start)),
				slog.String("request_id", types.GetRequestID(r.Context())),
				slog.Group("headers", headers...),
			)
		})
	}
}
