package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrorType is the retry classification of a backend error.
type ErrorType int

const (
	ErrorTypeTransient ErrorType = iota
	ErrorTypePermanent
)

func (t ErrorType) String() string {
	if t == ErrorTypeTransient {
		return "transient"
	}
	return "permanent"
}

// ClassifiedError pins the retry classification of a backend failure so
// later layers do not have to guess from the message.
type ClassifiedError struct {
	Type       ErrorType
	Err        error
	StatusCode int
	Message    string
}

func (e *ClassifiedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s error: %v", e.Type, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// NewTransientError marks err as retryable.
func NewTransientError(err error, message string) *ClassifiedError {
	return &ClassifiedError{Type: ErrorTypeTransient, Err: err, Message: message}
}

// NewPermanentError marks err as final.
func NewPermanentError(err error, message string) *ClassifiedError {
	return &ClassifiedError{Type: ErrorTypePermanent, Err: err, Message: message}
}

// statusCoder matches SDK response errors such as smithy-go's
// awshttp.ResponseError.
type statusCoder interface {
	HTTPStatusCode() int
}

// IsTransient reports whether a store call that failed with err is worth
// repeating. Cancellation is never retried.
func IsTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		if classified.StatusCode > 0 {
			return retryableStatus(classified.StatusCode)
		}
		return classified.Type == ErrorTypeTransient
	}

	var coder statusCoder
	if errors.As(err, &coder) {
		return retryableStatus(coder.HTTPStatusCode())
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return retryableSQLState(pgErr.Code)
	}

	return isConnectionError(err)
}

// IsPermanent is the complement of IsTransient for non-nil errors.
func IsPermanent(err error) bool {
	return err != nil && !IsTransient(err)
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Connection exceptions (08), insufficient resources (53), operator
// intervention (57P0x) and serialization failures (40001, 40P01).
func retryableSQLState(code string) bool {
	switch {
	case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "53"):
		return true
	case code == "57P01", code == "57P02", code == "57P03":
		return true
	case code == "40001", code == "40P01":
		return true
	}
	return false
}

var connectionErrnos = []syscall.Errno{
	syscall.ECONNREFUSED,
	syscall.ECONNRESET,
	syscall.EPIPE,
	syscall.ETIMEDOUT,
	syscall.ENETUNREACH,
	syscall.EHOSTUNREACH,
}

var connectionMessages = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"i/o timeout",
	"tls handshake timeout",
}

func isConnectionError(err error) bool {
	for _, errno := range connectionErrnos {
		if errors.Is(err, errno) {
			return true
		}
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}

	msg := strings.ToLower(err.Error())
	for _, pattern := range connectionMessages {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
