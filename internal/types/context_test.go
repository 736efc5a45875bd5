package types

import (
	"context"
	"testing"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	if GetRequestID(ctx) != "" || GetJobName(ctx) != "" {
		t.Fatal("empty context should carry no values")
	}

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithJobName(ctx, JobSendBatch)

	if got := GetRequestID(ctx); got != "req-1" {
		t.Errorf("GetRequestID() = %q", got)
	}
	if got := GetJobName(ctx); got != JobSendBatch {
		t.Errorf("GetJobName() = %q", got)
	}
}

func TestContextKeys_ArePrivate(t *testing.T) {
	ctx := context.WithValue(context.Background(), "request_id", "spoofed") //nolint:staticcheck
	if GetRequestID(ctx) != "" {
		t.Error("a plain string key must not collide with the private key type")
	}
}
