package users

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-baas-sdk/sessions"
	"github.com/jrsteele09/go-baas-sdk/transport"
)

// User is one user's backend record plus its session behavior. A User moves
// between anonymous (no backing record), active (its session is the stored
// active session for the context) and inactive (has data but is not active).
type User struct {
	svc  *Service
	data *sessions.Session
}

// Session exposes the user's current session data.
func (u *User) Session() *sessions.Session {
	return u.data
}

// ID returns the backend-assigned identifier, empty for anonymous users.
func (u *User) ID() string {
	if u.data == nil {
		return ""
	}
	return u.data.ID
}

// IsActive reports whether this user's session is the stored active session
// for the context. A session without an ID is never active.
func (u *User) IsActive(ctx context.Context) (bool, error) {
	if u.ID() == "" {
		return false, nil
	}
	active, err := u.svc.manager.Active(ctx, u.svc.ContextKey())
	if err != nil {
		return false, err
	}
	return active != nil && active.ID == u.ID(), nil
}

// Login authenticates against the backend and promotes this user's session
// to active. It fails with ErrActiveSessionConflict when any session is
// already active for the context, and with ErrInvalidCredentials before any
// transport call when the credentials are malformed.
func (u *User) Login(ctx context.Context, creds Credentials) error {
	body, err := u.svc.loginBody(creds)
	if err != nil {
		return err
	}

	key := u.svc.ContextKey()
	return u.svc.manager.Do(key, func() error {
		active, err := u.svc.manager.Active(ctx, key)
		if err != nil {
			return err
		}
		if active != nil {
			if active.ID == u.ID() {
				return errors.Wrap(ErrActiveSessionConflict, "this user is already logged in")
			}
			return errors.Wrap(ErrActiveSessionConflict, "another session is active for this context")
		}

		resp, err := u.svc.transport.Execute(ctx, transport.Request{
			Method:   http.MethodPost,
			Path:     u.svc.userPath("login"),
			Body:     body,
			AuthMode: transport.AuthApp,
		})
		if err != nil {
			return err
		}

		session, err := u.svc.codec.Decode(resp.Data)
		if err != nil {
			return err
		}
		stored, err := u.svc.manager.SetActive(ctx, key, session)
		if err != nil {
			return err
		}
		u.data = stored
		u.svc.logger.Debug().Str("user", stored.ID).Msg("session promoted to active")
		return nil
	})
}

// Logout ends this user's active session. When the user is not active it is
// a no-op returning nil immediately, without any transport call. Otherwise
// the server-side logout is best effort: transport failures are logged and
// swallowed, and the local active session is cleared regardless, so persisted
// state can never keep a session the caller asked to end.
func (u *User) Logout(ctx context.Context) (*User, error) {
	key := u.svc.ContextKey()
	var result *User
	err := u.svc.manager.Do(key, func() error {
		active, err := u.svc.manager.Active(ctx, key)
		if err != nil {
			return err
		}
		if active == nil || u.ID() == "" || active.ID != u.ID() {
			return nil
		}

		if _, terr := u.svc.transport.Execute(ctx, transport.Request{
			Method:   http.MethodPost,
			Path:     u.svc.userPath("_logout"),
			AuthMode: transport.AuthSession,
		}); terr != nil {
			u.svc.logger.Warn().Err(terr).Msg("server-side logout failed; clearing local session anyway")
		}

		current, err := u.svc.manager.Active(ctx, key)
		if err != nil {
			return err
		}
		if current != nil && current.ID == u.ID() {
			if _, err := u.svc.manager.SetActive(ctx, key, nil); err != nil {
				return err
			}
		}
		result = u
		return nil
	})
	return result, err
}

// Signup creates a user record from this user's data merged with data. With
// promote set the new session becomes the active session, which requires
// that no session is currently active (ErrActiveSessionConflict otherwise).
func (u *User) Signup(ctx context.Context, data map[string]any, promote bool) error {
	key := u.svc.ContextKey()
	return u.svc.manager.Do(key, func() error {
		if promote {
			active, err := u.svc.manager.Active(ctx, key)
			if err != nil {
				return err
			}
			if active != nil {
				return errors.Wrap(ErrActiveSessionConflict, "cannot promote a signup while a session is active")
			}
		}

		body, err := u.signupBody(data)
		if err != nil {
			return err
		}
		resp, err := u.svc.transport.Execute(ctx, transport.Request{
			Method:   http.MethodPost,
			Path:     u.svc.userPath(),
			Body:     body,
			AuthMode: transport.AuthApp,
		})
		if err != nil {
			return err
		}

		session, err := u.svc.codec.Decode(resp.Data)
		if err != nil {
			return err
		}
		u.data = session
		if promote {
			stored, err := u.svc.manager.SetActive(ctx, key, session)
			if err != nil {
				return err
			}
			u.data = stored
		}
		u.svc.logger.Debug().Str("user", session.ID).Bool("promoted", promote).Msg("user created")
		return nil
	})
}

// signupBody merges the caller's data over the user's current document.
func (u *User) signupBody(data map[string]any) (map[string]any, error) {
	encoded, err := u.svc.codec.Encode(u.data)
	if err != nil {
		return nil, err
	}
	body := map[string]any{}
	if err := json.Unmarshal(encoded, &body); err != nil {
		return nil, errors.Wrap(err, "[User.Signup] failed to build request body")
	}
	for k, v := range data {
		body[k] = v
	}
	return body, nil
}

// RefreshProfile fetches the canonical server record for the current session
// and promotes the result to active. The profile endpoint omits the auth
// token, so the previously active session's token is carried forward rather
// than lost.
func (u *User) RefreshProfile(ctx context.Context) error {
	key := u.svc.ContextKey()
	return u.svc.manager.Do(key, func() error {
		prior, err := u.svc.manager.Active(ctx, key)
		if err != nil {
			return err
		}

		resp, err := u.svc.transport.Execute(ctx, transport.Request{
			Method:   http.MethodGet,
			Path:     u.svc.userPath("_me"),
			AuthMode: transport.AuthSession,
		})
		if err != nil {
			return err
		}

		session, err := u.svc.codec.Decode(resp.Data)
		if err != nil {
			return err
		}
		if session.Metadata.AuthToken == "" && prior != nil {
			session.Metadata.AuthToken = prior.AuthToken()
		}

		stored, err := u.svc.manager.SetActive(ctx, key, session)
		if err != nil {
			return err
		}
		u.data = stored
		return nil
	})
}
