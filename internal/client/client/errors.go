package client

import "errors"

var (
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	ErrNotFound     = errors.New("not found on server")
	ErrRejected     = errors.New("rejected by server")
)

// IsTransient reports whether err may go away on retry.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
