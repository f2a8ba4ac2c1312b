// Package apperror defines the application's error taxonomy.
//
// The service layer returns these typed errors; the HTTP layer translates
// them to status codes with errors.Is/errors.As. Keeping the sentinels here
// means no other package needs to compare error strings.
package apperror

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCredentials means no upstream access token is configured.
	ErrMissingCredentials = errors.New("missing credentials")

	// ErrNotFound means the upstream reports no such user.
	ErrNotFound = errors.New("not found")

	// ErrAuthFailed means the upstream rejected our credentials.
	ErrAuthFailed = errors.New("upstream auth failed")

	// ErrRateLimited means the upstream rejected the request for quota reasons.
	ErrRateLimited = errors.New("upstream rate limited")

	// ErrUpstream covers all other transport or protocol failures upstream.
	ErrUpstream = errors.New("upstream error")

	// ErrTooManyInFlight means the concurrent-fetch ceiling was hit.
	ErrTooManyInFlight = errors.New("too many fetches in flight")

	// ErrValidation means the caller supplied invalid input.
	ErrValidation = errors.New("validation error")
)

// AppError pairs a sentinel error with a human-readable message.
type AppError struct {
	Err     error  // one of the sentinels above
	Message string // human-readable error message
	Field   string // optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// MissingCredentials reports that no upstream token is configured.
func MissingCredentials() *AppError {
	return &AppError{
		Err:     ErrMissingCredentials,
		Message: "no GitHub access token is configured",
	}
}

// NotFound reports that the upstream has no user with the given login.
func NotFound(username string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("user %q not found", username),
	}
}

// AuthFailed reports an upstream credential rejection.
func AuthFailed(message string) *AppError {
	return &AppError{
		Err:     ErrAuthFailed,
		Message: message,
	}
}

// RateLimited reports an upstream rate-limit rejection.
func RateLimited(message string) *AppError {
	return &AppError{
		Err:     ErrRateLimited,
		Message: message,
	}
}

// Upstream wraps any other upstream transport or protocol failure.
func Upstream(err error) *AppError {
	return &AppError{
		Err:     ErrUpstream,
		Message: fmt.Sprintf("upstream request failed: %v", err),
	}
}

// TooManyInFlight reports that the concurrent upstream-fetch ceiling was hit.
func TooManyInFlight(limit int) *AppError {
	return &AppError{
		Err:     ErrTooManyInFlight,
		Message: fmt.Sprintf("more than %d fetches in flight, try again later", limit),
	}
}

// ValidationFailed reports invalid caller-supplied input.
func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}
