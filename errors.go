package forcelayout

import "errors"

// Sentinel errors.
var (
	// ErrInvalidConfig indicates a Config field outside its valid range.
	ErrInvalidConfig = errors.New("forcelayout: invalid config")

	// ErrClosed indicates use of a Layout after Close.
	ErrClosed = errors.New("forcelayout: layout closed")
)
