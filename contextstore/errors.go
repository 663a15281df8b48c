package contextstore

import "errors"

// Sentinel errors for store operations.
var (
	ErrContextNotFound = errors.New("context not found")
	ErrEmptyContextID  = errors.New("context id is empty")
)
