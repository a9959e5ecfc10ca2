package media

import (
	"errors"
	"fmt"
)

// Error kinds. Every *Error unwraps to exactly one of these.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrStore      = errors.New("storage error")
	ErrRange      = errors.New("range not satisfiable")
)

// Stable error codes returned to clients.
const (
	CodeNoFile            = "NO_FILE"
	CodeNoFiles           = "NO_FILES"
	CodeInvalidFileType   = "INVALID_FILE_TYPE"
	CodeFileTooLarge      = "FILE_TOO_LARGE"
	CodeTooManyFiles      = "TOO_MANY_FILES"
	CodeInvalidIdentifier = "INVALID_IDENTIFIER"
	CodeInvalidQuery      = "INVALID_QUERY"
	CodeEmptyFile         = "EMPTY_FILE"
	CodeFileNotFound      = "FILE_NOT_FOUND"
	CodeMediaNotFound     = "MEDIA_NOT_FOUND"
	CodeRangeNotSatisfied = "RANGE_NOT_SATISFIABLE"
	CodeUploadError       = "UPLOAD_ERROR"
	CodeServeError        = "SERVE_ERROR"
	CodeDeleteError       = "DELETE_ERROR"
	CodeInfoError         = "INFO_ERROR"
	CodeListError         = "LIST_ERROR"
	CodeStatsError        = "STATS_ERROR"
	CodeRateLimited       = "RATE_LIMITED"
	CodeStreamLimit       = "STREAM_LIMIT"
	CodeRequestTooLarge   = "REQUEST_TOO_LARGE"
	CodeRequestTimeout    = "REQUEST_TIMEOUT"
	CodeInternal          = "INTERNAL_ERROR"
)

// Error is a classified media error carrying a client-facing code.
type Error struct {
	Kind    error
	Code    string
	Message string
	Err     error
	// Size is the total object size for range errors.
	Size int64
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// ErrorCode returns the client-facing code.
func (e *Error) ErrorCode() string { return e.Code }

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ValidationError builds a client-fault error.
func ValidationError(code, message string) error {
	return &Error{Kind: ErrValidation, Code: code, Message: message}
}

// NotFoundError builds a missing-object error.
func NotFoundError(code, message string) error {
	return &Error{Kind: ErrNotFound, Code: code, Message: message}
}

// StoreError wraps an underlying storage failure.
func StoreError(code, message string, err error) error {
	return &Error{Kind: ErrStore, Code: code, Message: message, Err: err}
}

// RangeError reports an unsatisfiable byte range for an object of size bytes.
func RangeError(size int64) error {
	return &Error{
		Kind:    ErrRange,
		Code:    CodeRangeNotSatisfied,
		Message: "Requested range not satisfiable",
		Size:    size,
	}
}

// CodeOf returns the client code carried by err, or "" if err is not classified.
func CodeOf(err error) string {
	var mediaErr *Error
	if errors.As(err, &mediaErr) {
		return mediaErr.Code
	}
	return ""
}

// MessageOf returns the client-safe message carried by err.
func MessageOf(err error) string {
	var mediaErr *Error
	if errors.As(err, &mediaErr) {
		return mediaErr.Message
	}
	return ""
}
