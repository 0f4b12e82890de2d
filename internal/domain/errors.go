package domain

import "errors"

// Portal services return these wrapped; the HTTP layer maps them to status
// codes and the portal client maps status codes back. Only ErrUnauthorized
// from session validation ends a client session.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")
	// ErrUnavailable is transient: network errors, timeouts and 5xx.
	ErrUnavailable = errors.New("unavailable")
)
