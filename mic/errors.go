package mic

import "errors"

var (
	// ErrTokenRefresh signals that the provider rejected a refresh-token
	// exchange.
	ErrTokenRefresh = errors.New("token refresh rejected")

	// ErrFlowAbandoned signals that the caller abandoned a handshake before
	// the user agent came back.
	ErrFlowAbandoned = errors.New("authorization flow abandoned")

	// ErrStateMismatch signals a redirect whose state parameter does not
	// match the handshake that is waiting for it.
	ErrStateMismatch = errors.New("redirect state mismatch")

	// ErrNotAwaitingRedirect signals a redirect delivered to a handshake
	// that is not waiting for one.
	ErrNotAwaitingRedirect = errors.New("handshake is not awaiting a redirect")
)
