package http

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"mediasvc/internal/logging"
	"mediasvc/internal/utils/id"
)

const (
	headerRequestID = "X-Request-Id"
	headerUserID    = "X-User-Id"
)

type routeContextKey struct{}

type routeHolder struct {
	mu    sync.Mutex
	route string
}

// RouteContextMiddleware installs a holder that the router fills with the
// matched route template, so outer middleware can label metrics by route.
func RouteContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := r.Context().Value(routeContextKey{}).(*routeHolder); ok {
			next.ServeHTTP(w, r)
			return
		}
		ctx := context.WithValue(r.Context(), routeContextKey{}, &routeHolder{})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func annotateRoute(ctx context.Context, route string) {
	holder, ok := ctx.Value(routeContextKey{}).(*routeHolder)
	if !ok || route == "" {
		return
	}
	holder.mu.Lock()
	holder.route = route
	holder.mu.Unlock()
}

func routeFromContext(ctx context.Context) string {
	holder, ok := ctx.Value(routeContextKey{}).(*routeHolder)
	if !ok {
		return ""
	}
	holder.mu.Lock()
	defer holder.mu.Unlock()
	return holder.route
}

// RequestIDMiddleware propagates X-Request-Id, generating one when absent.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(headerRequestID))
		if requestID == "" || len(requestID) > 128 {
			requestID = id.NewRequestID()
		}
		w.Header().Set(headerRequestID, requestID)
		ctx := id.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware logs one line per request once the response is written.
func LoggingMiddleware(logger logging.Logger) func(http.Handler) http.Handler {
	logger = logging.OrNop(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec, wrapped := trackResponse(w)
			start := time.Now()
			next.ServeHTTP(wrapped, r)
			logging.FromContext(r.Context(), logger).Info("%s %s from %s -> %d (%d bytes, %s)",
				r.Method, r.URL.Path, clientIP(r), rec.status, rec.bytes, time.Since(start).Round(time.Microsecond))
		})
	}
}

// identity copies the caller identity supplied by an upstream auth layer
// into the request context.
func identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID := strings.TrimSpace(c.GetHeader(headerUserID)); userID != "" {
			c.Request = c.Request.WithContext(id.WithUserID(c.Request.Context(), userID))
		}
		c.Next()
	}
}

// routeAnnotation records the matched gin route template.
func routeAnnotation() gin.HandlerFunc {
	return func(c *gin.Context) {
		annotateRoute(c.Request.Context(), c.FullPath())
		c.Next()
	}
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		return strings.TrimSpace(parts[0])
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return strings.Trim(r.RemoteAddr, "[]")
}
