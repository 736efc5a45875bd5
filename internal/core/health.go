package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// healthTimeout bounds all checks together.
const healthTimeout = 2 * time.Second

var errCheckTimedOut = errors.New("timed out")

// HealthCheck is one dependency reported by GET /health.
type HealthCheck struct {
	Name string
	Run  func(ctx context.Context) error
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HandleHealth runs every check concurrently. It answers 200 "ok" when all
// pass and 503 "degraded" otherwise, with "ok" or the error text per check.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	status := http.StatusOK
	if len(s.HealthChecks) > 0 {
		resp.Checks = make(map[string]string, len(s.HealthChecks))
	}
	for i, err := range runChecks(ctx, s.HealthChecks) {
		name := s.HealthChecks[i].Name
		if err == nil {
			resp.Checks[name] = "ok"
			continue
		}
		resp.Checks[name] = err.Error()
		resp.Status = "degraded"
		status = http.StatusServiceUnavailable
	}
	JSON(w, r, status, resp)
}

// runChecks returns one error per check, in order. Checks still running
// when ctx ends report errCheckTimedOut.
func runChecks(ctx context.Context, checks []HealthCheck) []error {
	type result struct {
		i   int
		err error
	}
	done := make(chan result, len(checks))
	for i, c := range checks {
		go func() {
			defer func() {
				if v := recover(); v != nil {
					done <- result{i, fmt.Errorf("panic: %v", v)}
				}
			}()
			done <- result{i, c.Run(ctx)}
		}()
	}

	errs := make([]error, len(checks))
	for i := range errs {
		errs[i] = errCheckTimedOut
	}
	for range checks {
		select {
		case res := <-done:
			errs[res.i] = res.err
		case <-ctx.Done():
			return errs
		}
	}
	return errs
}
