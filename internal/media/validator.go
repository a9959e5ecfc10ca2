package media

import (
	"mime"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// SniffLength is the number of leading bytes inspected when the declared type is unusable.
const SniffLength = 3072

var defaultAllowList = map[string]Category{
	// images
	"image/jpeg": CategoryImage,
	"image/jpg":  CategoryImage,
	"image/png":  CategoryImage,
	"image/gif":  CategoryImage,
	"image/webp": CategoryImage,
	"image/bmp":  CategoryImage,
	"image/tiff": CategoryImage,
	// videos
	"video/mp4":       CategoryVideo,
	"video/mpeg":      CategoryVideo,
	"video/quicktime": CategoryVideo,
	"video/x-msvideo": CategoryVideo,
	"video/avi":       CategoryVideo,
	"video/x-ms-wmv":  CategoryVideo,
	"video/webm":      CategoryVideo,
	"video/3gpp":      CategoryVideo,
	"video/x-flv":     CategoryVideo,
}

// TypeValidator classifies MIME types against a fixed allow-list.
// It holds no mutable state and is safe for concurrent use.
type TypeValidator struct {
	allowed map[string]Category
}

// NewTypeValidator returns a validator using the default image/video allow-list.
func NewTypeValidator() *TypeValidator {
	allowed := make(map[string]Category, len(defaultAllowList))
	for k, v := range defaultAllowList {
		allowed[k] = v
	}
	return &TypeValidator{allowed: allowed}
}

var defaultValidator = NewTypeValidator()

// Classify reports the category of mimeType using the default allow-list.
func Classify(mimeType string) (Category, bool) {
	return defaultValidator.Classify(mimeType)
}

// Classify reports whether mimeType is allowed and, if so, its category.
// Parameters and letter case are ignored.
func (v *TypeValidator) Classify(mimeType string) (Category, bool) {
	normalized := NormalizeMimeType(mimeType)
	if normalized == "" {
		return "", false
	}
	category, ok := v.allowed[normalized]
	return category, ok
}

// Resolve picks the effective MIME type for an upload and classifies it.
// The declared type wins unless it is empty or application/octet-stream, in
// which case head (the first bytes of the payload) is sniffed.
func (v *TypeValidator) Resolve(declared string, head []byte) (string, Category, error) {
	mimeType := NormalizeMimeType(declared)
	if mimeType == "" || mimeType == "application/octet-stream" {
		if len(head) > 0 {
			mimeType = NormalizeMimeType(mimetype.Detect(head).String())
		}
	}
	category, ok := v.Classify(mimeType)
	if !ok {
		if mimeType == "" {
			mimeType = "unknown"
		}
		return "", "", ValidationError(CodeInvalidFileType,
			"Invalid file type: "+mimeType+". Only images and videos are allowed.")
	}
	return mimeType, category, nil
}

// AllowedTypes lists the accepted MIME types in sorted order.
func (v *TypeValidator) AllowedTypes() []string {
	out := make([]string, 0, len(v.allowed))
	for k := range v.allowed {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// NormalizeMimeType lowercases a media type and strips its parameters.
func NormalizeMimeType(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	if parsed, _, err := mime.ParseMediaType(trimmed); err == nil {
		return parsed
	}
	if base, _, found := strings.Cut(trimmed, ";"); found {
		trimmed = base
	}
	return strings.ToLower(strings.TrimSpace(trimmed))
}

func normalizeToken(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
