package models

import "errors"

// Error kinds returned by the repository and service layers. Callers wrap
// them with fmt.Errorf("%w: ...") and inspect them with errors.Is.
var (
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrNotFound         = errors.New("not found")
	ErrForbidden        = errors.New("forbidden")
	ErrConflict         = errors.New("conflict")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrUnauthenticated  = errors.New("unauthenticated")
)
