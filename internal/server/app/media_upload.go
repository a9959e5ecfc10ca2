package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"mediasvc/internal/media"
	"mediasvc/internal/observability"
	"mediasvc/internal/utils/id"
)

var errFileTooLarge = errors.New("file exceeds size ceiling")

// UploadMeta carries request-level attributes applied to every uploaded part.
type UploadMeta struct {
	OwnerRef   string
	TaskID     string
	BuildingID string
}

func (m UploadMeta) tags() map[string]string {
	tags := map[string]string{}
	if v := strings.TrimSpace(m.TaskID); v != "" {
		tags[media.TagTaskID] = v
	}
	if v := strings.TrimSpace(m.BuildingID); v != "" {
		tags[media.TagBuildingID] = v
	}
	if len(tags) == 0 {
		return nil
	}
	return tags
}

// Upload validates and stores a single part.
func (s *MediaService) Upload(ctx context.Context, part media.Part, meta UploadMeta) (media.Object, error) {
	ctx, span := s.startSpan(ctx, observability.SpanMediaUpload)
	obj, err := s.upload(ctx, part, meta)
	if err == nil {
		span.SetAttributes(observability.MediaAttrs(obj.ID, obj.MimeType, obj.SizeBytes)...)
		span.SetAttributes(attribute.String(observability.AttrCategory, string(obj.Category)))
	}
	observability.EndSpan(span, err)

	status := "success"
	if err != nil {
		status = media.CodeOf(err)
		if status == "" {
			status = media.CodeUploadError
		}
		s.log(ctx).Warn("Upload of %q rejected: %v", part.OriginalName, err)
	} else {
		s.log(ctx).Info("Stored %s (%s, %d bytes) as %s", obj.OriginalName, obj.MimeType, obj.SizeBytes, obj.ID)
	}
	s.metrics.RecordUpload(ctx, string(obj.Category), status, obj.SizeBytes)
	return obj, err
}

func (s *MediaService) upload(ctx context.Context, part media.Part, meta UploadMeta) (media.Object, error) {
	if part.Open == nil {
		return media.Object{}, media.ValidationError(media.CodeNoFile, "No file uploaded")
	}
	if part.Size > s.config.MaxFileSize {
		return media.Object{}, s.tooLarge()
	}
	rc, err := part.Open()
	if err != nil {
		return media.Object{}, media.StoreError(media.CodeUploadError, "Failed to read uploaded file", err)
	}
	defer rc.Close()

	buffered := bufio.NewReaderSize(rc, media.SniffLength)
	head, err := buffered.Peek(media.SniffLength)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return media.Object{}, media.StoreError(media.CodeUploadError, "Failed to read uploaded file", err)
	}
	if len(head) == 0 {
		return media.Object{}, media.ValidationError(media.CodeEmptyFile, "Uploaded file is empty")
	}
	mimeType, category, err := s.validator.Resolve(part.MimeType, head)
	if err != nil {
		return media.Object{}, err
	}

	mediaID := s.ids.NewID()
	originalName := media.NormalizeOriginalName(part.OriginalName)
	obj := media.Object{
		ID:           mediaID,
		StoredName:   media.StoredName(mediaID, originalName, mimeType),
		OriginalName: originalName,
		MimeType:     mimeType,
		Category:     category,
		CreatedAt:    s.now().UTC(),
		OwnerRef:     firstNonEmpty(meta.OwnerRef, id.UserIDFromContext(ctx)),
		Tags:         meta.tags(),
	}

	stored, err := s.store.Put(ctx, obj, &ceilingReader{r: buffered, remaining: s.config.MaxFileSize})
	if err != nil {
		if errors.Is(err, errFileTooLarge) {
			return media.Object{}, s.tooLarge()
		}
		return media.Object{}, classifyStoreError(err, media.CodeUploadError, "Failed to store uploaded file")
	}
	s.cache.putObject(stored)
	s.cache.invalidateStats()
	return stored, nil
}

func (s *MediaService) tooLarge() error {
	return media.ValidationError(media.CodeFileTooLarge,
		fmt.Sprintf("File too large. Maximum size is %s", FormatMegabytes(s.config.MaxFileSize)))
}

// UploadMany stores every part independently, preserving input order in the
// result. A failing part never aborts its siblings; only request-level limits
// produce an error.
func (s *MediaService) UploadMany(ctx context.Context, parts []media.Part, meta UploadMeta) ([]media.UploadResult, error) {
	if len(parts) == 0 {
		return nil, media.ValidationError(media.CodeNoFiles, "No files uploaded")
	}
	if len(parts) > s.config.MaxFiles {
		return nil, media.ValidationError(media.CodeTooManyFiles,
			fmt.Sprintf("Too many files. Maximum is %d files per request", s.config.MaxFiles))
	}

	results := make([]media.UploadResult, len(parts))
	var g errgroup.Group
	g.SetLimit(s.config.UploadConcurrency)
	for i, part := range parts {
		g.Go(func() error {
			result := media.UploadResult{Index: i, OriginalName: media.NormalizeOriginalName(part.OriginalName)}
			obj, err := s.Upload(ctx, part, meta)
			if err != nil {
				result.Err = err
			} else {
				result.Object = &obj
			}
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// ceilingReader fails once more than remaining bytes have been read.
type ceilingReader struct {
	r         io.Reader
	remaining int64
}

func (c *ceilingReader) Read(p []byte) (int, error) {
	if c.remaining < 0 {
		return 0, errFileTooLarge
	}
	if int64(len(p)) > c.remaining+1 {
		p = p[:c.remaining+1]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining < 0 {
		return n, errFileTooLarge
	}
	return n, err
}

// FormatMegabytes renders a byte limit the way limits are advertised, e.g. "50MB".
func FormatMegabytes(size int64) string {
	if size%(1<<20) == 0 {
		return fmt.Sprintf("%dMB", size>>20)
	}
	return fmt.Sprintf("%.1fMB", float64(size)/(1<<20))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
