package users

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-baas-sdk/sessions"
	"github.com/jrsteele09/go-baas-sdk/transport"
)

// ConnectOption carries optional redirect/client metadata recorded with the
// active social identity pointer so a refresh can replay the handshake.
type ConnectOption func(*connectOptions)

type connectOptions struct {
	redirectURI string
	clientID    string
}

// WithRedirectURI records the redirect URI used to obtain the token.
func WithRedirectURI(uri string) ConnectOption {
	return func(o *connectOptions) {
		o.redirectURI = uri
	}
}

// WithClientID records the provider client ID used to obtain the token.
func WithClientID(clientID string) ConnectOption {
	return func(o *connectOptions) {
		o.clientID = clientID
	}
}

// Connect merges token into the user's social identities under provider and
// reconciles the result with the backend: an identity-scoped update when
// this user is already active, a login otherwise. A login failing because no
// user record exists falls through to one signup followed by one retry; any
// other failure propagates unchanged. On success the provider is recorded as
// the context's active social identity.
func (u *User) Connect(ctx context.Context, provider string, token map[string]any, opts ...ConnectOption) error {
	var options connectOptions
	for _, opt := range opts {
		opt(&options)
	}
	return u.attemptLink(ctx, provider, token, options, true)
}

// attemptLink is one linking attempt. allowCreate bounds the
// create-then-link recovery to exactly one hop: the retry after a signup runs
// with allowCreate false, so a fresh record reported missing propagates.
func (u *User) attemptLink(ctx context.Context, provider string, token map[string]any, options connectOptions, allowCreate bool) error {
	if u.data == nil {
		u.data = &sessions.Session{}
	}
	u.data.SetIdentity(provider, token)

	active, err := u.IsActive(ctx)
	if err != nil {
		return err
	}

	if active {
		err = u.save(ctx, provider)
	} else {
		err = u.Login(ctx, Credentials{
			SocialIdentity: map[string]map[string]any{provider: u.data.Identity(provider)},
		})
		if errors.Is(err, transport.ErrNotFound) && allowCreate {
			return u.createThenLink(ctx, provider, token, options)
		}
	}
	if err != nil {
		return err
	}

	return u.recordActiveIdentity(ctx, provider, options)
}

// createThenLink is the recovery path for a missing user record: sign up
// with the merged data, then retry the link once.
func (u *User) createThenLink(ctx context.Context, provider string, token map[string]any, options connectOptions) error {
	u.svc.logger.Debug().Str("provider", provider).Msg("no user record for identity; creating one")
	if err := u.Signup(ctx, nil, true); err != nil {
		return err
	}
	return u.attemptLink(ctx, provider, token, options, false)
}

func (u *User) recordActiveIdentity(ctx context.Context, provider string, options connectOptions) error {
	return u.svc.manager.SetActiveIdentity(ctx, u.svc.ContextKey(), &sessions.ActiveIdentity{
		Provider:    provider,
		Token:       u.data.Identity(provider),
		RedirectURI: options.redirectURI,
		ClientID:    options.clientID,
		ConnectedAt: u.svc.nowTime(),
	})
}

// save issues an update of the user's record. When scopedProvider is set the
// outgoing payload is restricted to that one identity: other identity entries
// carrying a non-empty token are unconfirmed local state and are stripped, so
// the update cannot overwrite server-side identity records for providers not
// involved in the operation. The server's response then becomes the user's
// local data, so stripped entries must be re-linked through Connect.
func (u *User) save(ctx context.Context, scopedProvider string) error {
	key := u.svc.ContextKey()
	return u.svc.manager.Do(key, func() error {
		payload := u.data.Clone()
		if scopedProvider != "" {
			for provider, token := range payload.SocialIdentities {
				if provider != scopedProvider && len(token) > 0 {
					delete(payload.SocialIdentities, provider)
				}
			}
		}
		body, err := u.svc.codec.Encode(payload)
		if err != nil {
			return err
		}

		resp, err := u.svc.transport.Execute(ctx, transport.Request{
			Method:   http.MethodPut,
			Path:     u.svc.userPath(u.ID()),
			Body:     body,
			AuthMode: transport.AuthSession,
		})
		if err != nil {
			return err
		}

		session, err := u.svc.codec.Decode(resp.Data)
		if err != nil {
			return err
		}
		u.data = session

		// Keep the persisted active session in step with the new record so
		// stored and in-memory state never diverge.
		active, err := u.svc.manager.Active(ctx, key)
		if err != nil {
			return err
		}
		if active != nil && active.ID == session.ID {
			stored, err := u.svc.manager.SetActive(ctx, key, session)
			if err != nil {
				return err
			}
			u.data = stored
		}
		return nil
	})
}

// Disconnect removes provider's entry from the user's social identities. The
// change is persisted when the user has a backend record; a local-only user
// succeeds without any network. The context's active social identity pointer
// is cleared iff it pointed at the removed provider.
func (u *User) Disconnect(ctx context.Context, provider string) error {
	if u.data == nil {
		u.data = &sessions.Session{}
	}
	u.data.RemoveIdentity(provider)

	if u.ID() != "" {
		if err := u.save(ctx, ""); err != nil {
			return err
		}
	}

	key := u.svc.ContextKey()
	identity, err := u.svc.manager.ActiveIdentity(ctx, key)
	if err != nil {
		return err
	}
	if identity != nil && identity.Provider == provider {
		return u.svc.manager.SetActiveIdentity(ctx, key, nil)
	}
	return nil
}

// RefreshAuthToken refreshes the token of the context's active social
// identity and feeds the result back through Connect. Providers without a
// registered refresh route fail with ErrUnsupportedIdentity.
func (u *User) RefreshAuthToken(ctx context.Context) error {
	key := u.svc.ContextKey()
	identity, err := u.svc.manager.ActiveIdentity(ctx, key)
	if err != nil {
		return err
	}
	if identity == nil {
		return errors.Wrap(ErrUnsupportedIdentity, "no active social identity to refresh")
	}

	refresher, ok := u.svc.refreshers[identity.Provider]
	if !ok {
		return errors.Wrapf(ErrUnsupportedIdentity, "no refresh route for provider %q", identity.Provider)
	}

	refreshed, err := refresher(ctx, identity)
	if err != nil {
		return err
	}
	return u.Connect(ctx, identity.Provider, refreshed,
		WithRedirectURI(identity.RedirectURI),
		WithClientID(identity.ClientID),
	)
}
