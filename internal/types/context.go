package types

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	jobNameKey   contextKey = "job_name"
)

// WithRequestID returns a context carrying the request or correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns the request id stored in ctx, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithJobName returns a context tagged with the running job's name.
func WithJobName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, jobNameKey, name)
}

// GetJobName returns the job name stored in ctx, or "".
func GetJobName(ctx context.Context) string {
	name, _ := ctx.Value(jobNameKey).(string)
	return name
}
