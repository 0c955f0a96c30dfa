package sessions

import (
	"context"
	"errors"
)

// ErrMissingSessionID is returned when a session without a backend-assigned
// ID is promoted to active.
var ErrMissingSessionID = errors.New("session has no id and cannot be active")

// Store persists the single active session (and active social identity
// pointer) per client context key. SetActive overwrites, never merges, and
// returns the canonical stored form re-read after the write so callers
// observe exactly what was persisted. Passing a nil session clears the slot.
//
// GetActive returns (nil, nil) when no session is active for the key.
type Store interface {
	GetActive(ctx context.Context, key string) (*Session, error)
	SetActive(ctx context.Context, key string, session *Session) (*Session, error)

	GetActiveIdentity(ctx context.Context, key string) (*ActiveIdentity, error)
	SetActiveIdentity(ctx context.Context, key string, identity *ActiveIdentity) error
}
