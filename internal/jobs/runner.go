// Package jobs runs job bodies with uniform bookkeeping. Every run gets a
// correlation id and the job name in its context, logs its start and end,
// and emits {job}Completed or {job}Error both as a structured log event
// and as a counter.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/google/uuid"

	"screeningcomms/internal/types"
)

// EventSink receives job completion events.
type EventSink interface {
	JobEvent(ctx context.Context, job string, failed bool) error
}

// Runner wraps job bodies.
type Runner struct {
	sink   EventSink
	logger *slog.Logger
}

// NewRunner creates a Runner. sink may be nil.
func NewRunner(sink EventSink, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{sink: sink, logger: logger}
}

// Run executes fn as job. A panic in fn is reported as the job's error.
func (r *Runner) Run(ctx context.Context, job string, fn func(ctx context.Context) error) (err error) {
	ctx = types.WithJobName(ctx, job)
	if types.GetRequestID(ctx) == "" {
		ctx = types.WithRequestID(ctx, uuid.NewString())
	}
	logger := r.logger.With("job", job, "correlation_id", types.GetRequestID(ctx))
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			logger.ErrorContext(ctx, "job panicked", "panic", p, "stack", string(debug.Stack()))
			err = types.NewAppError(types.ErrCodeInternalUnexpected, fmt.Sprintf("job panicked: %v", p), nil)
		}
		r.finish(ctx, logger, job, time.Since(start), err)
	}()

	logger.InfoContext(ctx, "job started")
	return fn(ctx)
}

func (r *Runner) finish(ctx context.Context, logger *slog.Logger, job string, elapsed time.Duration, err error) {
	if err != nil {
		logger.ErrorContext(ctx, job+"Error: "+err.Error(),
			"event", job+"Error",
			"error_code", string(types.CodeOf(err)),
			"duration_ms", elapsed.Milliseconds(),
		)
	} else {
		logger.InfoContext(ctx, job+"Completed",
			"event", job+"Completed",
			"duration_ms", elapsed.Milliseconds(),
		)
	}
	if r.sink == nil {
		return
	}
	if serr := r.sink.JobEvent(ctx, job, err != nil); serr != nil {
		logger.WarnContext(ctx, "failed to publish job event", "error", serr)
	}
}

// Wrap adapts a Lambda handler so that every invocation runs as job.
func Wrap[T any](r *Runner, job string, fn func(ctx context.Context, payload json.RawMessage) (T, error)) func(context.Context, json.RawMessage) (T, error) {
	return func(ctx context.Context, payload json.RawMessage) (T, error) {
		var out T
		err := r.Run(ctx, job, func(ctx context.Context) error {
			var err error
			out, err = fn(ctx, payload)
			return err
		})
		return out, err
	}
}

// Start runs fn as job. Under the Lambda runtime every invocation runs fn
// and Start does not return; otherwise fn runs once and Start returns the
// process exit status.
func (r *Runner) Start(job string, fn func(ctx context.Context) error) int {
	if InLambda() {
		lambda.Start(func(ctx context.Context, _ json.RawMessage) error {
			return r.Run(ctx, job, fn)
		})
		return 0
	}
	return ExitCode(r.Run(context.Background(), job, fn))
}

// InLambda reports whether the process runs under the Lambda runtime.
func InLambda() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// ExitCode maps a job result to a process exit status.
func ExitCode(err error) int {
	if err != nil {
		return 1
	}
	return 0
}
