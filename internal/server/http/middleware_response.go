package http

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// statusWriter remembers the status and body size written through it.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

type flushingStatusWriter struct {
	*statusWriter
	http.Flusher
}

// trackResponse wraps w once. The second value is what handlers should write
// to; it still implements http.Flusher when w does, so media streams can be
// flushed chunk by chunk.
func trackResponse(w http.ResponseWriter) (*statusWriter, http.ResponseWriter) {
	if sw, ok := w.(*statusWriter); ok {
		return sw, w
	}
	if fsw, ok := w.(*flushingStatusWriter); ok {
		return fsw.statusWriter, w
	}
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	if flusher, ok := w.(http.Flusher); ok {
		return sw, &flushingStatusWriter{statusWriter: sw, Flusher: flusher}
	}
	return sw, sw
}

// writeRejection answers outside gin with the standard error body.
func writeRejection(w http.ResponseWriter, status, retryAfter int, body apiError) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
