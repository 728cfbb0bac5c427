package documents

import "errors"

var (
	// ErrNotFound is returned by repositories for a missing document or version.
	ErrNotFound = errors.New("not found")
)
