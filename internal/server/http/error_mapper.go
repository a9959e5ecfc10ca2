package http

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"

	"mediasvc/internal/media"
)

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Details string `json:"details,omitempty"`
}

// statusFor maps a classified error to its HTTP status.
func statusFor(err error) int {
	var maxBytes *http.MaxBytesError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &maxBytes), media.CodeOf(err) == media.CodeRequestTooLarge:
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	case errors.Is(err, media.ErrRange):
		return http.StatusRequestedRangeNotSatisfiable
	case errors.Is(err, media.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, media.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorBody renders err for clients. Store failures keep their code but never
// carry the underlying cause.
func errorBody(err error, status int) apiError {
	if status == http.StatusRequestTimeout {
		return apiError{Message: "Request timed out", Code: media.CodeRequestTimeout}
	}
	if status == http.StatusRequestEntityTooLarge {
		return apiError{Message: "Request body too large", Code: media.CodeRequestTooLarge}
	}
	code := media.CodeOf(err)
	message := media.MessageOf(err)
	if code == "" {
		code = media.CodeInternal
	}
	if message == "" {
		message = "Internal server error"
	}
	return apiError{Message: message, Code: code}
}

// notFoundAs rewrites a not-found error with the route-specific code.
func notFoundAs(err error, code, message string) error {
	if code == "" || !errors.Is(err, media.ErrNotFound) {
		return err
	}
	return media.NotFoundError(code, message)
}

func requestBodyError(err error) error {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return err
	}
	if isReadTimeout(err) {
		return &media.Error{
			Kind:    media.ErrValidation,
			Code:    media.CodeRequestTimeout,
			Message: "Request timed out",
			Err:     errors.Join(context.DeadlineExceeded, err),
		}
	}
	if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
		return media.ValidationError(media.CodeUploadError, "Request must be multipart/form-data")
	}
	return media.ValidationError(media.CodeUploadError, "Failed to parse upload request")
}

// isReadTimeout reports a body read cut off by the connection deadline.
func isReadTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
