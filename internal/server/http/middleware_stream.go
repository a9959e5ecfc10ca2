package http

import (
	"context"
	"net/http"
	"strings"
	"time"

	"mediasvc/internal/media"
)

// StreamGuardConfig bounds media downloads. Zero values disable each limit.
type StreamGuardConfig struct {
	MaxConcurrent int
	MaxDuration   time.Duration
}

// StreamGuardMiddleware caps concurrent media downloads and how long a single
// download may run. Requests over the cap receive 429 immediately.
func StreamGuardMiddleware(cfg StreamGuardConfig) func(http.Handler) http.Handler {
	if cfg.MaxDuration <= 0 && cfg.MaxConcurrent <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	var sem chan struct{}
	if cfg.MaxConcurrent > 0 {
		sem = make(chan struct{}, cfg.MaxConcurrent)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !isStreamRequest(r) {
				next.ServeHTTP(w, r)
				return
			}

			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				default:
					writeRejection(w, http.StatusTooManyRequests, 1, apiError{
						Message: "Too many concurrent downloads. Please retry later.",
						Code:    media.CodeStreamLimit,
					})
					return
				}
			}

			if cfg.MaxDuration > 0 {
				ctx, cancel := context.WithTimeout(r.Context(), cfg.MaxDuration)
				defer cancel()
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isStreamRequest(r *http.Request) bool {
	if r == nil || r.URL == nil || r.Method != http.MethodGet {
		return false
	}
	path := r.URL.Path
	return strings.Contains(path, "/files/") || strings.Contains(path, "/view/")
}
