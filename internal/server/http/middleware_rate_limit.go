package http

import (
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"mediasvc/internal/media"
	"mediasvc/internal/utils/id"
)

const (
	defaultRateLimitClients = 10000
	defaultRateLimitIdle    = 15 * time.Minute
)

// RateLimitConfig bounds requests per caller. A zero RequestsPerMinute
// disables limiting. Buckets idle for EntryTTL are forgotten.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
	EntryTTL          time.Duration
	MaxClients        int
}

// callerBuckets keeps one token bucket per caller key.
type callerBuckets struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	buckets *expirable.LRU[string, *rate.Limiter]
}

func newCallerBuckets(cfg RateLimitConfig) *callerBuckets {
	ttl := cfg.EntryTTL
	if ttl <= 0 {
		ttl = defaultRateLimitIdle
	}
	size := cfg.MaxClients
	if size <= 0 {
		size = defaultRateLimitClients
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = cfg.RequestsPerMinute
	}
	return &callerBuckets{
		limit:   rate.Limit(float64(cfg.RequestsPerMinute) / 60),
		burst:   burst,
		buckets: expirable.NewLRU[string, *rate.Limiter](size, nil, ttl),
	}
}

// take spends one token for key. When the bucket is empty it reports how long
// until the next token.
func (b *callerBuckets) take(key string) (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	limiter, ok := b.buckets.Get(key)
	if !ok {
		limiter = rate.NewLimiter(b.limit, b.burst)
	}
	// Re-adding refreshes the idle deadline.
	b.buckets.Add(key, limiter)

	now := time.Now()
	if limiter.AllowN(now, 1) {
		return true, 0
	}
	missing := 1 - limiter.TokensAt(now)
	return false, time.Duration(missing / float64(b.limit) * float64(time.Second))
}

// RateLimitMiddleware answers 429 once a caller's bucket is empty. Callers are
// keyed by X-User-Id when present, otherwise by client IP.
func RateLimitMiddleware(cfg RateLimitConfig) func(http.Handler) http.Handler {
	if cfg.RequestsPerMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	buckets := newCallerBuckets(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if ok, wait := buckets.take(rateLimitKey(r)); !ok {
				writeRejection(w, http.StatusTooManyRequests, retryAfterSeconds(wait), apiError{
					Message: "Too many requests. Please retry later.",
					Code:    media.CodeRateLimited,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(wait time.Duration) int {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

func rateLimitKey(r *http.Request) string {
	if userID := strings.TrimSpace(r.Header.Get(headerUserID)); userID != "" {
		return "user:" + userID
	}
	if userID := id.UserIDFromContext(r.Context()); userID != "" {
		return "user:" + userID
	}
	if ip := clientIP(r); ip != "" {
		return "ip:" + ip
	}
	return "anonymous"
}
