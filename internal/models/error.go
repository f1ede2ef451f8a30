package models

import "errors"

// Sentinel errors for common failure conditions. Policy denials that need to
// carry data (retry-after hints) use dedicated error types in the services
// package instead.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// ErrPermanentlyBlocked refuses a client past the permanent threshold;
	// only manual unblocking clears it
	ErrPermanentlyBlocked = errors.New("client permanently blocked")

	// Session failures (distinct for audit logging; callers treat all as deny)
	ErrSessionExpired   = errors.New("session expired")
	ErrSessionMalformed = errors.New("session token malformed")
	ErrSessionTooOld    = errors.New("session exceeded absolute lifetime")
)
