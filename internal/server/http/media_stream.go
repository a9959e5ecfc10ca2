package http

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"mediasvc/internal/media"
	"mediasvc/internal/storage"
)

const immutableCacheControl = "public, max-age=31536000, immutable"

// writeMedia streams reader to w. Headers are derived from the stored
// metadata; the body is skipped for HEAD and for a matching If-None-Match.
// It returns the number of payload bytes written.
func writeMedia(w http.ResponseWriter, r *http.Request, reader *storage.Reader) (int64, error) {
	obj := reader.Object
	etag := entityTag(obj)

	header := w.Header()
	contentType := obj.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)
	header.Set("Cache-Control", immutableCacheControl)
	header.Set("ETag", etag)
	header.Set("X-Content-Type-Options", "nosniff")
	if disposition := media.ContentDisposition(obj.OriginalName); disposition != "" {
		header.Set("Content-Disposition", disposition)
	}
	if modified := lastModified(obj); !modified.IsZero() {
		header.Set("Last-Modified", modified.UTC().Format(http.TimeFormat))
	}
	if obj.IsVideo() {
		header.Set("Accept-Ranges", "bytes")
	}

	if reader.Range == nil && etagMatches(r.Header.Get("If-None-Match"), etag) {
		w.WriteHeader(http.StatusNotModified)
		return 0, nil
	}

	status := http.StatusOK
	if reader.Range != nil {
		header.Set("Content-Range", reader.Range.ContentRange(obj.SizeBytes))
		status = http.StatusPartialContent
	}
	header.Set("Content-Length", strconv.FormatInt(reader.Length(), 10))
	w.WriteHeader(status)
	if r.Method == http.MethodHead {
		return 0, nil
	}
	return io.Copy(w, &cancelableReader{ctx: r.Context(), r: reader})
}

// entityTag identifies immutable content by id and size.
func entityTag(obj media.Object) string {
	return fmt.Sprintf(`"%s-%d"`, obj.ID, obj.SizeBytes)
}

func lastModified(obj media.Object) time.Time {
	if !obj.ModifiedAt.IsZero() {
		return obj.ModifiedAt
	}
	return obj.CreatedAt
}

func etagMatches(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "" {
		return false
	}
	if header == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag {
			return true
		}
	}
	return false
}

// cancelableReader stops the copy once the client has gone away.
type cancelableReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *cancelableReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
