package service

import "errors"

var (
	// ErrInvalidInput is returned for empty or whitespace-only submissions
	// before any side effect happens.
	ErrInvalidInput = errors.New("content must not be empty")
	// ErrPersistence means the audit record could not be written. No record
	// exists for the failed evaluation.
	ErrPersistence = errors.New("failed to persist evaluation record")

	ErrUnauthorized       = errors.New("unauthorized")
	ErrTokenExpired       = errors.New("token expired")
	ErrTokenRevoked       = errors.New("token revoked")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// IsAuthError reports whether err should be surfaced as 401.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) ||
		errors.Is(err, ErrTokenExpired) ||
		errors.Is(err, ErrTokenRevoked) ||
		errors.Is(err, ErrInvalidCredentials)
}
