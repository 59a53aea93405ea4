package warden

import "errors"

// Sentinel errors for the warden domain. Backend stores return these
// (or wrap them) so callers can branch without depending on a specific
// storage implementation.
var (
	ErrNotFound  = errors.New("not found")
	ErrConflict  = errors.New("conflict")
	ErrForbidden = errors.New("forbidden")
)
