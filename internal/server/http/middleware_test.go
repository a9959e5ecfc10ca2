package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"mediasvc/internal/media"
	"mediasvc/internal/observability"
	"mediasvc/internal/utils/id"
)

func TestRateLimitMiddlewareRejectsBurstOverflow(t *testing.T) {
	handler := RateLimitMiddleware(RateLimitConfig{RequestsPerMinute: 1, Burst: 1})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/media/list", nil)
	req.Header.Set(headerUserID, "alice")
	first := httptest.NewRecorder()
	handler.ServeHTTP(first, req)
	if first.Code != http.StatusNoContent {
		t.Fatalf("expected first request to pass, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, req)
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", second.Code)
	}
	if got := second.Header().Get("Retry-After"); got != "60" {
		t.Fatalf("expected Retry-After 60, got %q", got)
	}
	if body := decode[apiError](t, second); body.Code != media.CodeRateLimited {
		t.Fatalf("expected %s, got %s", media.CodeRateLimited, body.Code)
	}

	other := httptest.NewRequest(http.MethodGet, "/api/media/list", nil)
	other.Header.Set(headerUserID, "bob")
	third := httptest.NewRecorder()
	handler.ServeHTTP(third, other)
	if third.Code != http.StatusNoContent {
		t.Fatalf("expected a separate bucket per caller, got %d", third.Code)
	}
}

func TestRateLimitMiddlewareDisabled(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	handler := RateLimitMiddleware(RateLimitConfig{})(next)
	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
}

func TestCallerBucketsForgetIdleCallers(t *testing.T) {
	buckets := newCallerBuckets(RateLimitConfig{RequestsPerMinute: 1, Burst: 1, EntryTTL: 20 * time.Millisecond})

	if ok, _ := buckets.take("ip:1"); !ok {
		t.Fatal("expected first request to be allowed")
	}
	ok, wait := buckets.take("ip:1")
	if ok {
		t.Fatal("expected empty bucket to reject")
	}
	if wait <= 0 || wait > time.Minute {
		t.Fatalf("unexpected wait %s", wait)
	}

	time.Sleep(60 * time.Millisecond)
	if ok, _ := buckets.take("ip:1"); !ok {
		t.Fatal("expected idle caller to start with a fresh bucket")
	}
}

func TestRetryAfterSecondsRoundsUp(t *testing.T) {
	if got := retryAfterSeconds(0); got != 1 {
		t.Fatalf("expected floor of 1, got %d", got)
	}
	if got := retryAfterSeconds(59500 * time.Millisecond); got != 60 {
		t.Fatalf("expected 60, got %d", got)
	}
}

func TestUploadTimeoutMiddlewareAppliesToUploadsOnly(t *testing.T) {
	var deadlines []bool
	handler := UploadTimeoutMiddleware(time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok := r.Context().Deadline()
		deadlines = append(deadlines, ok)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/media/upload", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/media/upload-multiple", nil))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/media/files/abc.mp4", nil))

	want := []bool{true, true, false}
	if fmt.Sprint(deadlines) != fmt.Sprint(want) {
		t.Fatalf("expected deadlines %v, got %v", want, deadlines)
	}
}

func TestRequestIDMiddlewareGeneratesID(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = id.RequestIDFromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" {
		t.Fatal("expected generated request id in context")
	}
	if got := rec.Header().Get(headerRequestID); got != seen {
		t.Fatalf("expected response header %q, got %q", seen, got)
	}
}

func TestObservabilityMiddlewareRecordsResolvedRoute(t *testing.T) {
	collector := &observability.MetricsCollector{}
	var gotRoute string
	var gotStatus int
	collector.SetTestHooks(observability.MetricsTestHooks{
		HTTPServerRequest: func(method, route string, status int, _ time.Duration, _ int64) {
			gotRoute = route
			gotStatus = status
		},
	})
	obs := &observability.Observability{Metrics: collector}

	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		annotateRoute(r.Context(), "/api/media/files/:key")
		w.WriteHeader(http.StatusPartialContent)
	})
	handler := RouteContextMiddleware(ObservabilityMiddleware(obs, nil)(inner))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/media/files/x.mp4", nil))

	if gotRoute != "/api/media/files/:key" {
		t.Fatalf("expected route template, got %q", gotRoute)
	}
	if gotStatus != http.StatusPartialContent {
		t.Fatalf("expected status 206, got %d", gotStatus)
	}
}

func TestStatusForClassifiesErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{media.ValidationError(media.CodeInvalidFileType, "bad"), http.StatusBadRequest},
		{media.NotFoundError(media.CodeMediaNotFound, "gone"), http.StatusNotFound},
		{media.RangeError(10), http.StatusRequestedRangeNotSatisfiable},
		{media.StoreError(media.CodeUploadError, "failed", errors.New("disk full")), http.StatusInternalServerError},
		{media.StoreError(media.CodeUploadError, "failed", context.DeadlineExceeded), http.StatusRequestTimeout},
		{&http.MaxBytesError{Limit: 1}, http.StatusRequestEntityTooLarge},
		{requestBodyError(&net.OpError{Op: "read", Net: "tcp", Err: os.ErrDeadlineExceeded}), http.StatusRequestTimeout},
		{requestBodyError(fmt.Errorf("multipart: NextPart: %w", os.ErrDeadlineExceeded)), http.StatusRequestTimeout},
		{requestBodyError(errors.New("malformed MIME header")), http.StatusBadRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusFor(tc.err); got != tc.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}

	body := errorBody(media.StoreError(media.CodeDeleteError, "Failed to delete file", errors.New("unlink /srv/uploads/x: busy")), http.StatusInternalServerError)
	if body.Code != media.CodeDeleteError || body.Message != "Failed to delete file" || body.Details != "" {
		t.Fatalf("unexpected store error body: %+v", body)
	}
}

func TestETagMatching(t *testing.T) {
	etag := `"abc-10"`
	for header, want := range map[string]bool{
		"":              false,
		"*":             true,
		`"abc-10"`:      true,
		`W/"abc-10"`:    true,
		`"x", "abc-10"`: true,
		`"abc-11"`:      false,
	} {
		if got := etagMatches(header, etag); got != want {
			t.Fatalf("etagMatches(%q) = %v, want %v", header, got, want)
		}
	}
}

func TestCORSConfigAllowsListedOrigins(t *testing.T) {
	if cfg := corsConfig(nil); !cfg.AllowAllOrigins {
		t.Fatal("expected all origins when none configured")
	}
	if cfg := corsConfig([]string{"https://a.example", "*"}); !cfg.AllowAllOrigins || len(cfg.AllowOrigins) != 0 {
		t.Fatalf("expected wildcard to allow all origins, got %+v", cfg.AllowOrigins)
	}
	cfg := corsConfig([]string{" https://dash.example ", ""})
	if cfg.AllowAllOrigins || len(cfg.AllowOrigins) != 1 || cfg.AllowOrigins[0] != "https://dash.example" {
		t.Fatalf("unexpected origins: %+v", cfg.AllowOrigins)
	}
}

func TestStreamGuardLimitsConcurrentDownloads(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	handler := StreamGuardMiddleware(StreamGuardConfig{MaxConcurrent: 1})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/media/view/slow.mp4" {
			close(entered)
			<-release
		}
		w.WriteHeader(http.StatusOK)
	}))

	done := make(chan int)
	go func() {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/media/view/slow.mp4", nil))
		done <- rec.Code
	}()
	<-entered

	blocked := httptest.NewRecorder()
	handler.ServeHTTP(blocked, httptest.NewRequest(http.MethodGet, "/api/media/files/other.png", nil))
	if blocked.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 while a download is in flight, got %d", blocked.Code)
	}

	list := httptest.NewRecorder()
	handler.ServeHTTP(list, httptest.NewRequest(http.MethodGet, "/api/media/list", nil))
	if list.Code != http.StatusOK {
		t.Fatalf("non-download routes must bypass the guard, got %d", list.Code)
	}

	close(release)
	if code := <-done; code != http.StatusOK {
		t.Fatalf("expected in-flight download to finish, got %d", code)
	}

	after := httptest.NewRecorder()
	handler.ServeHTTP(after, httptest.NewRequest(http.MethodGet, "/api/media/files/other.png", nil))
	if after.Code != http.StatusOK {
		t.Fatalf("expected slot to be released, got %d", after.Code)
	}
}
