package errors

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

type statusErr struct{ code int }

func (e statusErr) Error() string       { return fmt.Sprintf("status %d", e.code) }
func (e statusErr) HTTPStatusCode() int { return e.code }

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit transient", NewTransientError(errors.New("x"), ""), true},
		{"explicit permanent", NewPermanentError(errors.New("x"), ""), false},
		{"wrapped 503", fmt.Errorf("put: %w", statusErr{503}), true},
		{"429", statusErr{429}, true},
		{"404", statusErr{404}, false},
		{"403", statusErr{403}, false},
		{"conn reset", syscall.ECONNRESET, true},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("refused")}, true},
		{"canceled", fmt.Errorf("get: %w", context.Canceled), false},
		{"plain", errors.New("invalid bucket name"), false},
		{"unexpected eof", fmt.Errorf("read body: %w", io.ErrUnexpectedEOF), true},
		{"pg connection failure", &pgconn.PgError{Code: "08006"}, true},
		{"pg admin shutdown", fmt.Errorf("query: %w", &pgconn.PgError{Code: "57P01"}), true},
		{"pg unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"status overrides type", &ClassifiedError{Type: ErrorTypeTransient, StatusCode: 404}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestIsPermanent(t *testing.T) {
	assert.False(t, IsPermanent(statusErr{502}))
	assert.True(t, IsPermanent(statusErr{400}))
	assert.False(t, IsPermanent(nil))
	assert.Equal(t, "transient", ErrorTypeTransient.String())
	assert.Contains(t, NewPermanentError(errors.New("denied"), "").Error(), "permanent error: denied")
}
