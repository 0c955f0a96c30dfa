package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals that a referenced record does not exist on the
	// backend.
	ErrNotFound = errors.New("record not found")

	// ErrMissingAuthToken signals that a session-authenticated request was
	// attempted without an active session token.
	ErrMissingAuthToken = errors.New("no session auth token available")
)

// ServerError is a non-2xx backend response not otherwise classified.
type ServerError struct {
	StatusCode  int
	Name        string
	Description string
}

func (e *ServerError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("server error %d: %s: %s", e.StatusCode, e.Name, e.Description)
	}
	return fmt.Sprintf("server error %d", e.StatusCode)
}
