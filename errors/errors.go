package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrWorkerPanic = fmt.Errorf("worker panic")

	// Delivery pipeline errors returned synchronously to the sender.
	ErrNotAMember         = fmt.Errorf("sender is not a member of the room")
	ErrPersistenceFailure = fmt.Errorf("message could not be persisted")
	ErrContentMismatch    = fmt.Errorf("attachment payload does not match the declared message type")
	ErrMessageNotFound    = fmt.Errorf("message not found")

	// ErrNotReachable means a call-signal target has no live connection.
	// Signals are never queued, the caller decides what to do next.
	ErrNotReachable = fmt.Errorf("target identity has no live connection")

	// ErrStaleConnectionWrite is a per-recipient fan-out failure. It is logged
	// and swallowed, never propagated to the sender.
	ErrStaleConnectionWrite = fmt.Errorf("write to a closed or saturated connection")

	ErrAuthenticationFailure = fmt.Errorf("handshake could not establish an identity")
	ErrInvalidCredentials    = fmt.Errorf("invalid email or password")
	ErrInvalidPassword       = fmt.Errorf("password does not meet complexity requirements")
	ErrUserAlreadyExists     = fmt.Errorf("an account already exists for this email")
	ErrTokenGeneration       = fmt.Errorf("token generation failed")
)

// MapToHTTPStatus translates domain errors into HTTP status codes at the
// transport boundary. Anything unknown is a 500.
func MapToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotAMember):
		return http.StatusForbidden
	case errors.Is(err, ErrAuthenticationFailure), errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrUserAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidPassword), errors.Is(err, ErrContentMismatch):
		return http.StatusBadRequest
	case errors.Is(err, ErrMessageNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrNotReachable):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}
