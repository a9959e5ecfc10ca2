package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"mediasvc/internal/logging"
	"mediasvc/internal/media"
	"mediasvc/internal/observability"
	"mediasvc/internal/server/app"
)

// multipartOverhead is the allowance for form fields and part headers on top
// of the file payloads when sizing the request body limit.
const multipartOverhead int64 = 1 << 20

// MediaHandler serves the media HTTP API.
type MediaHandler struct {
	service *app.MediaService
	logger  logging.Logger
	metrics *observability.MetricsCollector
}

// MediaHandlerOption customises a MediaHandler.
type MediaHandlerOption func(*MediaHandler)

// WithHandlerLogger overrides the handler logger.
func WithHandlerLogger(logger logging.Logger) MediaHandlerOption {
	return func(h *MediaHandler) { h.logger = logging.OrNop(logger) }
}

// WithHandlerObservability wires stream metrics.
func WithHandlerObservability(obs *observability.Observability) MediaHandlerOption {
	return func(h *MediaHandler) {
		if obs != nil {
			h.metrics = obs.Metrics
		}
	}
}

// NewMediaHandler builds a handler around service.
func NewMediaHandler(service *app.MediaService, opts ...MediaHandlerOption) *MediaHandler {
	h := &MediaHandler{
		service: service,
		logger:  logging.NewComponentLogger("MediaHandler"),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *MediaHandler) register(group *gin.RouterGroup) {
	group.POST("/upload", h.HandleUpload)
	group.POST("/upload-multiple", h.HandleUploadMultiple)

	group.GET("/files/:key", h.HandleServeFile)
	group.HEAD("/files/:key", h.HandleServeFile)
	group.DELETE("/files/:key", h.HandleDeleteFile)

	group.GET("/view/:key", h.HandleServeMedia)
	group.HEAD("/view/:key", h.HandleServeMedia)
	group.DELETE("/view/:key", h.HandleDeleteMedia)

	group.GET("/info/:key", h.HandleInfo)
	group.GET("/list", h.HandleList)
	group.GET("/stats", h.HandleStats)
	group.GET("/health", h.HandleHealth)
}

// HandleUpload stores the single multipart field "file".
func (h *MediaHandler) HandleUpload(c *gin.Context) {
	cfg := h.service.Config()
	form, err := h.readForm(c, cfg.MaxFileSize+multipartOverhead)
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer func() { _ = form.RemoveAll() }()

	files := form.File["file"]
	if len(files) == 0 {
		h.writeError(c, media.ValidationError(media.CodeNoFile, "No file uploaded"))
		return
	}
	if len(files) > 1 {
		h.writeError(c, media.ValidationError(media.CodeTooManyFiles, "Use /upload-multiple to upload more than one file"))
		return
	}

	obj, err := h.service.Upload(c.Request.Context(), partFromHeader(files[0]), uploadMetaFrom(form))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newUploadResponse(h.service, obj))
}

// HandleUploadMultiple stores every part of the multipart field "files".
// The response is 201 when all parts were stored and 207 otherwise.
func (h *MediaHandler) HandleUploadMultiple(c *gin.Context) {
	cfg := h.service.Config()
	form, err := h.readForm(c, int64(cfg.MaxFiles)*cfg.MaxFileSize+multipartOverhead)
	if err != nil {
		h.writeError(c, err)
		return
	}
	defer func() { _ = form.RemoveAll() }()

	headers := form.File["files"]
	parts := make([]media.Part, 0, len(headers))
	for _, fh := range headers {
		parts = append(parts, partFromHeader(fh))
	}
	results, err := h.service.UploadMany(c.Request.Context(), parts, uploadMetaFrom(form))
	if err != nil {
		h.writeError(c, err)
		return
	}

	resp := batchUploadResponse{
		Files:  make([]uploadResponse, 0, len(results)),
		Errors: make([]uploadErrorEntry, 0),
	}
	for _, result := range results {
		if result.Err != nil {
			body := errorBody(result.Err, statusFor(result.Err))
			resp.Errors = append(resp.Errors, uploadErrorEntry{
				Index:        result.Index,
				OriginalName: result.OriginalName,
				Message:      body.Message,
				Code:         body.Code,
			})
			continue
		}
		resp.Files = append(resp.Files, newUploadResponse(h.service, *result.Object))
	}
	resp.Uploaded = len(resp.Files)
	resp.Failed = len(resp.Errors)

	status := http.StatusCreated
	if resp.Failed > 0 {
		status = http.StatusMultiStatus
	}
	c.JSON(status, resp)
}

// HandleServeFile streams by stored name or id.
func (h *MediaHandler) HandleServeFile(c *gin.Context) {
	h.serve(c, media.CodeFileNotFound, "File not found")
}

// HandleServeMedia streams by id.
func (h *MediaHandler) HandleServeMedia(c *gin.Context) {
	h.serve(c, media.CodeMediaNotFound, "Media not found")
}

func (h *MediaHandler) serve(c *gin.Context, notFoundCode, notFoundMessage string) {
	ctx := c.Request.Context()
	reader, err := h.service.Open(ctx, c.Param("key"), c.GetHeader("Range"))
	if err != nil {
		h.writeError(c, notFoundAs(err, notFoundCode, notFoundMessage))
		return
	}
	defer func() { _ = reader.Close() }()

	written, err := writeMedia(c.Writer, c.Request, reader)
	if h.metrics != nil {
		h.metrics.RecordStream(ctx, string(reader.Object.Category), reader.Range != nil, written)
	}
	if err != nil {
		// Headers are already sent; the client sees a truncated body.
		logging.FromContext(ctx, h.logger).Warn("Streaming %s aborted after %d bytes: %v", reader.Object.ID, written, err)
	}
}

// HandleDeleteFile deletes by stored name or id.
func (h *MediaHandler) HandleDeleteFile(c *gin.Context) {
	key := c.Param("key")
	if _, err := h.service.Delete(c.Request.Context(), key); err != nil {
		h.writeError(c, notFoundAs(err, media.CodeFileNotFound, "File not found"))
		return
	}
	c.JSON(http.StatusOK, deleteFileResponse{Message: "File deleted successfully", Filename: key})
}

// HandleDeleteMedia deletes by id.
func (h *MediaHandler) HandleDeleteMedia(c *gin.Context) {
	obj, err := h.service.Delete(c.Request.Context(), c.Param("key"))
	if err != nil {
		h.writeError(c, notFoundAs(err, media.CodeMediaNotFound, "Media not found"))
		return
	}
	c.JSON(http.StatusOK, deleteMediaResponse{Message: "Media deleted successfully", MediaID: obj.ID})
}

// HandleInfo returns object metadata.
func (h *MediaHandler) HandleInfo(c *gin.Context) {
	obj, err := h.service.Info(c.Request.Context(), c.Param("key"))
	if err != nil {
		h.writeError(c, notFoundAs(err, media.CodeFileNotFound, "File not found"))
		return
	}
	c.JSON(http.StatusOK, newMediaResponse(h.service, obj))
}

// HandleList returns one catalog page.
func (h *MediaHandler) HandleList(c *gin.Context) {
	query, detail := parseListQuery(c)
	if detail != "" {
		c.JSON(http.StatusBadRequest, apiError{Message: "Invalid query parameters", Code: media.CodeInvalidQuery, Details: detail})
		return
	}
	page, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		h.writeError(c, err)
		return
	}
	resp := listResponse{Media: make([]mediaResponse, 0, len(page.Media)), Pagination: page.Pagination}
	for _, obj := range page.Media {
		resp.Media = append(resp.Media, newMediaResponse(h.service, obj))
	}
	c.JSON(http.StatusOK, resp)
}

func parseListQuery(c *gin.Context) (media.ListQuery, string) {
	var q media.ListQuery
	var err error
	if q.Page, err = positiveInt(c.Query("page")); err != nil {
		return q, "page must be a positive integer"
	}
	if q.Limit, err = positiveInt(c.Query("limit")); err != nil {
		return q, "limit must be a positive integer"
	}
	if raw := strings.TrimSpace(c.Query("type")); raw != "" {
		category, ok := media.ParseCategory(raw)
		if !ok {
			return q, fmt.Sprintf("type must be %q or %q", media.CategoryImage, media.CategoryVideo)
		}
		q.Category = category
	}
	q.TaskID = strings.TrimSpace(c.Query("taskId"))
	q.BuildingID = strings.TrimSpace(c.Query("buildingId"))
	q.OwnerRef = strings.TrimSpace(c.Query("ownerRef"))
	return q, ""
}

func positiveInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if value < 1 {
		return 0, errors.New("not positive")
	}
	return value, nil
}

// HandleStats returns catalog counters.
func (h *MediaHandler) HandleStats(c *gin.Context) {
	stats, err := h.service.Stats(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// HandleHealth reports store reachability and the advertised limits.
func (h *MediaHandler) HandleHealth(c *gin.Context) {
	health := h.service.Health(c.Request.Context())
	resp := healthResponse{
		Status:       "healthy",
		StorageType:  health.StorageType,
		MediaCount:   health.MediaCount,
		TotalSize:    fmt.Sprintf("%.2f MB", float64(health.TotalSize)/1024/1024),
		MaxFileSize:  app.FormatMegabytes(health.MaxFileSize),
		MaxFiles:     health.MaxFiles,
		AllowedTypes: []string{"images", "videos"},
		Timestamp:    health.CheckedAt,
	}
	status := http.StatusOK
	if !health.Healthy {
		resp.Status = "unhealthy"
		resp.Error = "storage unavailable"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, resp)
}

func (h *MediaHandler) readForm(c *gin.Context, limit int64) (*multipart.Form, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	form, err := c.MultipartForm()
	if err != nil {
		return nil, requestBodyError(err)
	}
	return form, nil
}

func (h *MediaHandler) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	body := errorBody(err, status)
	logger := logging.FromContext(c.Request.Context(), h.logger)
	if status >= http.StatusInternalServerError {
		logger.Error("HTTP %d %s %s - %s: %v", status, c.Request.Method, c.Request.URL.Path, body.Code, err)
	} else {
		logger.Warn("HTTP %d %s %s - %s", status, c.Request.Method, c.Request.URL.Path, body.Code)
	}

	var mediaErr *media.Error
	if errors.As(err, &mediaErr) && errors.Is(mediaErr.Kind, media.ErrRange) {
		c.Header("Content-Range", media.UnsatisfiedContentRange(mediaErr.Size))
	}
	c.AbortWithStatusJSON(status, body)
}

func partFromHeader(fh *multipart.FileHeader) media.Part {
	return media.Part{
		OriginalName: fh.Filename,
		MimeType:     fh.Header.Get("Content-Type"),
		Size:         fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

func uploadMetaFrom(form *multipart.Form) app.UploadMeta {
	return app.UploadMeta{
		TaskID:     formValue(form, "taskId"),
		BuildingID: formValue(form, "buildingId"),
	}
}

func formValue(form *multipart.Form, key string) string {
	if values := form.Value[key]; len(values) > 0 {
		return strings.TrimSpace(values[0])
	}
	return ""
}
