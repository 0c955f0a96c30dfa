package users

import "errors"

var (
	// ErrActiveSessionConflict signals the singleton-session invariant would
	// be violated: a session is already active for this client context.
	ErrActiveSessionConflict = errors.New("an active session already exists")

	// ErrInvalidCredentials signals malformed login input: neither a trimmed
	// non-empty username/password pair nor a social identity token map.
	ErrInvalidCredentials = errors.New("invalid login credentials")

	// ErrUnsupportedIdentity signals an identity provider that is not
	// recognized, is ambiguous, or has no refresh route.
	ErrUnsupportedIdentity = errors.New("unsupported social identity")
)
