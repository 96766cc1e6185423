package shared

import "errors"

var (
	// ErrInvalidCredentials indicates a rejected API token.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrClosed is returned by controllers used after teardown.
	ErrClosed = errors.New("closed")
)
