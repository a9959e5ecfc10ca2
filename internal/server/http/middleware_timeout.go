package http

import (
	"context"
	"net/http"
	"time"
)

// UploadTimeoutMiddleware bounds the lifetime of upload requests. The
// connection read deadline cuts off a client that stops sending the body;
// body reads do not observe the context deadline. Streaming routes are
// unaffected.
func UploadTimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isUploadRequest(r) {
				next.ServeHTTP(w, r)
				return
			}
			deadline := time.Now().Add(timeout)
			// Recorders and other writers without a connection return ErrNotSupported.
			_ = http.NewResponseController(w).SetReadDeadline(deadline)

			ctx, cancel := context.WithDeadline(r.Context(), deadline)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func isUploadRequest(r *http.Request) bool {
	return r != nil && r.Method == http.MethodPost && r.URL != nil && isUploadPath(r.URL.Path)
}
