package media

import (
	"mime"
	"regexp"
	"strings"
	"unicode"
)

const (
	maxKeyLength          = 255
	maxOriginalNameLength = 255
)

var storedNamePattern = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// preferredExtensions pins the extension used for stored names so it does not
// depend on the host's mime.types database.
var preferredExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/jpg":       ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"image/bmp":       ".bmp",
	"image/tiff":      ".tiff",
	"video/mp4":       ".mp4",
	"video/mpeg":      ".mpeg",
	"video/quicktime": ".mov",
	"video/x-msvideo": ".avi",
	"video/avi":       ".avi",
	"video/x-ms-wmv":  ".wmv",
	"video/webm":      ".webm",
	"video/3gpp":      ".3gp",
	"video/x-flv":     ".flv",
}

// ValidateKey rejects identifiers that could escape the storage root.
// It runs before any store call for every path parameter.
func ValidateKey(key string) error {
	if key == "" || strings.TrimSpace(key) != key {
		return invalidKey()
	}
	if len(key) > maxKeyLength {
		return invalidKey()
	}
	if strings.Contains(key, "..") || strings.ContainsAny(key, `/\`) {
		return invalidKey()
	}
	for _, r := range key {
		if r == 0 || unicode.IsControl(r) {
			return invalidKey()
		}
	}
	return nil
}

func invalidKey() error {
	return ValidationError(CodeInvalidIdentifier, "Invalid file identifier")
}

// ParseKey validates a path parameter that is either a bare id or a stored
// name ("<id><ext>") and returns the id.
func ParseKey(key string) (string, error) {
	if err := ValidateKey(key); err != nil {
		return "", err
	}
	id, _, _ := strings.Cut(key, ".")
	if id == "" {
		return "", invalidKey()
	}
	return id, nil
}

// StoredName derives the internal file name from the generated id and the
// validated extension. Client input never contributes more than the extension.
func StoredName(id, originalName, mimeType string) string {
	return id + ExtensionFor(originalName, mimeType)
}

// ExtensionFor returns a safe extension for an upload, preferring the
// original file's extension and falling back to the MIME type.
func ExtensionFor(originalName, mimeType string) string {
	name := strings.TrimSpace(originalName)
	if idx := strings.LastIndex(name, "."); idx >= 0 {
		if ext := SanitizeExt(name[idx:]); ext != "" {
			return ext
		}
	}
	normalized := NormalizeMimeType(mimeType)
	if ext, ok := preferredExtensions[normalized]; ok {
		return ext
	}
	exts, err := mime.ExtensionsByType(normalized)
	if err != nil || len(exts) == 0 {
		return ""
	}
	return SanitizeExt(exts[0])
}

// SanitizeExt lowercases ext and accepts only ".[a-z0-9]{1,10}".
func SanitizeExt(ext string) string {
	trimmed := strings.ToLower(strings.TrimSpace(ext))
	if !strings.HasPrefix(trimmed, ".") {
		return ""
	}
	trimmed = strings.TrimPrefix(trimmed, ".")
	if trimmed == "" || len(trimmed) > 10 {
		return ""
	}
	for _, r := range trimmed {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			continue
		}
		return ""
	}
	return "." + trimmed
}

// NormalizeOriginalName strips directory components and control characters
// from a client file name. The result is for display only.
func NormalizeOriginalName(name string) string {
	trimmed := strings.TrimSpace(name)
	if idx := strings.LastIndexAny(trimmed, `/\`); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, trimmed)
	trimmed = strings.TrimSpace(trimmed)
	if trimmed == "" || trimmed == "." || trimmed == ".." {
		return "upload"
	}
	if runes := []rune(trimmed); len(runes) > maxOriginalNameLength {
		trimmed = string(runes[:maxOriginalNameLength])
	}
	return trimmed
}

// SafeFileName reduces a display name to [A-Za-z0-9._-], capped at 80 chars.
func SafeFileName(name string) string {
	cleaned := storedNamePattern.ReplaceAllString(NormalizeOriginalName(name), "_")
	cleaned = strings.Trim(cleaned, "._-")
	if cleaned == "" {
		return "upload"
	}
	if len(cleaned) > 80 {
		cleaned = cleaned[:80]
	}
	return cleaned
}

// ContentDisposition formats an inline disposition header for name.
func ContentDisposition(name string) string {
	if value := mime.FormatMediaType("inline", map[string]string{"filename": NormalizeOriginalName(name)}); value != "" {
		return value
	}
	return `inline; filename="` + SafeFileName(name) + `"`
}
