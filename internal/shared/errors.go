package shared

import "errors"

var (
	// ErrNotFound indicates a collaborator record does not exist.
	ErrNotFound = errors.New("not found")
)
