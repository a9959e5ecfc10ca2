package id

import (
	"context"
	"testing"
)

func TestWithUserID(t *testing.T) {
	ctx := context.Background()
	ctx = WithUserID(ctx, "user-123")
	if got := UserIDFromContext(ctx); got != "user-123" {
		t.Fatalf("expected user-123, got %s", got)
	}
	// empty user should be ignored
	ctx = WithUserID(ctx, "")
	if got := UserIDFromContext(ctx); got != "user-123" {
		t.Fatalf("expected stored user to remain user-123, got %s", got)
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}
	ctx := WithRequestID(context.Background(), "req-1")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("expected req-1, got %q", got)
	}
}
