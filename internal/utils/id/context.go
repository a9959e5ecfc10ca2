package id

import "context"

type contextKey string

const (
	requestKey contextKey = "mediasvc_request_id"
	userKey    contextKey = "mediasvc_user_id"
)

// WithRequestID stores the request correlation identifier on the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestKey, requestID)
}

// RequestIDFromContext returns the request identifier stored on ctx, if any.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestKey).(string); ok {
		return v
	}
	return ""
}

// WithUserID stores the caller identity supplied by the upstream auth layer.
func WithUserID(ctx context.Context, userID string) context.Context {
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userKey, userID)
}

// UserIDFromContext returns the caller identity stored on ctx, if any.
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(userKey).(string); ok {
		return v
	}
	return ""
}
