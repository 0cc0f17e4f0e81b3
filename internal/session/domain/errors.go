package domain

import "errors"

var (
	// ErrStoreUnavailable is returned when the durable session store cannot be reached or times out.
	// It is recoverable: callers fall back to the device-local cache.
	ErrStoreUnavailable = errors.New("session store unavailable")

	// ErrNotFound is returned when no row matches a token, or the identity behind a session no longer exists.
	ErrNotFound = errors.New("not found")

	// ErrExpired is returned when a session row exists but is past its expiry.
	ErrExpired = errors.New("session expired")

	// ErrInvalid is the only rejection callers of Validate see. The user must log in again.
	ErrInvalid = errors.New("invalid session")
)
