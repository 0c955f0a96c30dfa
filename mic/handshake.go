package mic

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Status is a handshake's position in the redirect state machine.
type Status string

const (
	StatusStart            Status = "start"
	StatusAwaitingRedirect Status = "awaiting_redirect"
	StatusExchangingCode   Status = "exchanging_code"
	StatusComplete         Status = "complete"
	StatusFailed           Status = "failed"
)

// Handshake is one in-flight redirect handshake. After Begin the user agent
// must be sent to LoginURI; the redirect it eventually lands on is handed
// back through Deliver (from a callback) or directly to CompleteRedirect.
// Abandoning a handshake (cancelling Await's context, or simply dropping it)
// changes no session state: nothing is committed until the exchange
// completes.
type Handshake struct {
	flow        *Flow
	grant       GrantType
	redirectURI string
	state       string
	loginURI    string

	mu        sync.Mutex
	status    Status
	redirects chan *url.URL
}

// Begin requests a temporary login URI from the provider and returns a
// handshake awaiting the user agent's redirect.
func (f *Flow) Begin(ctx context.Context, redirectURI string, grant GrantType) (*Handshake, error) {
	h := &Handshake{
		flow:        f,
		grant:       grant,
		redirectURI: redirectURI,
		state:       uuid.New().String(),
		status:      StatusStart,
		redirects:   make(chan *url.URL, 1),
	}

	loginURI, err := f.requestTempLoginURI(ctx, redirectURI, h.state, grant)
	if err != nil {
		h.setStatus(StatusFailed)
		return nil, err
	}
	h.loginURI = loginURI
	h.setStatus(StatusAwaitingRedirect)
	f.logger.Debug().Str("grant", string(grant)).Msg("handshake awaiting redirect")
	return h, nil
}

// LoginURI is where the user agent must be sent to authenticate.
func (h *Handshake) LoginURI() string {
	return h.loginURI
}

// State is the anti-forgery value the provider echoes on the redirect.
func (h *Handshake) State() string {
	return h.state
}

// Status reports the handshake's current state.
func (h *Handshake) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

func (h *Handshake) setStatus(status Status) {
	h.mu.Lock()
	h.status = status
	h.mu.Unlock()
}

// Deliver hands the user agent's redirect to a handshake blocked in Await.
func (h *Handshake) Deliver(redirect *url.URL) error {
	if h.Status() != StatusAwaitingRedirect {
		return ErrNotAwaitingRedirect
	}
	select {
	case h.redirects <- redirect:
		return nil
	default:
		return ErrNotAwaitingRedirect
	}
}

// Await blocks until a redirect is delivered, then completes the handshake.
// Cancelling ctx abandons the flow with ErrFlowAbandoned and leaves any
// session state untouched.
func (h *Handshake) Await(ctx context.Context) (*Token, error) {
	select {
	case <-ctx.Done():
		h.setStatus(StatusFailed)
		return nil, errors.Wrap(ErrFlowAbandoned, ctx.Err().Error())
	case redirect := <-h.redirects:
		return h.CompleteRedirect(ctx, redirect)
	}
}

// CompleteRedirect finishes the handshake from the redirect the user agent
// landed on: validating state, surfacing provider errors, and exchanging the
// authorization code when the grant requires it.
func (h *Handshake) CompleteRedirect(ctx context.Context, redirect *url.URL) (*Token, error) {
	if h.Status() != StatusAwaitingRedirect {
		return nil, ErrNotAwaitingRedirect
	}

	params := redirectParams(redirect)

	if params.Get("state") != h.state {
		h.setStatus(StatusFailed)
		return nil, ErrStateMismatch
	}
	if errName := params.Get("error"); errName != "" {
		h.setStatus(StatusFailed)
		return nil, errors.Errorf("[Handshake.CompleteRedirect] provider returned %q: %s", errName, params.Get("error_description"))
	}

	switch h.grant {
	case GrantImplicit:
		token, err := h.implicitToken(params)
		if err != nil {
			h.setStatus(StatusFailed)
			return nil, err
		}
		h.setStatus(StatusComplete)
		return token, nil
	default:
		return h.exchangeCode(ctx, params.Get("code"))
	}
}

func (h *Handshake) exchangeCode(ctx context.Context, code string) (*Token, error) {
	if code == "" {
		h.setStatus(StatusFailed)
		return nil, errors.New("[Handshake.CompleteRedirect] redirect carried no authorization code")
	}
	h.setStatus(StatusExchangingCode)

	oauthToken, err := h.flow.oauthConfig(h.redirectURI).Exchange(h.flow.clientContext(ctx), code)
	if err != nil {
		h.setStatus(StatusFailed)
		return nil, errors.Wrap(err, "[Handshake.CompleteRedirect] code exchange failed")
	}

	if h.flow.verifier != nil {
		if rawIDToken, ok := oauthToken.Extra("id_token").(string); ok {
			if _, err := h.flow.verifier.Verify(ctx, rawIDToken); err != nil {
				h.setStatus(StatusFailed)
				return nil, errors.Wrap(err, "[Handshake.CompleteRedirect] ID token verification failed")
			}
		}
	}

	h.setStatus(StatusComplete)
	return h.flow.buildToken(oauthToken, h.redirectURI), nil
}

func (h *Handshake) implicitToken(params url.Values) (*Token, error) {
	accessToken := params.Get("access_token")
	if accessToken == "" {
		return nil, errors.New("[Handshake.CompleteRedirect] redirect carried no access token")
	}

	token := &Token{
		AccessToken:  accessToken,
		TokenType:    params.Get("token_type"),
		RefreshToken: params.Get("refresh_token"),
		Identity:     Identity,
		ClientID:     h.flow.appKey,
		RedirectURI:  h.redirectURI,
	}
	if token.TokenType == "" {
		token.TokenType = "Bearer"
	}
	if expiresIn, err := strconv.ParseInt(params.Get("expires_in"), 10, 64); err == nil {
		token.Expiry = h.flow.nowTime().Add(time.Duration(expiresIn) * time.Second)
	} else {
		token.Expiry = expiryFromJWT(accessToken)
	}
	return token, nil
}

// redirectParams merges query and fragment parameters: authorization-code
// redirects use the query, implicit redirects deliver the token in the
// fragment.
func redirectParams(redirect *url.URL) url.Values {
	params := url.Values{}
	for k, vs := range redirect.Query() {
		params[k] = vs
	}
	if redirect.Fragment != "" {
		if fragment, err := url.ParseQuery(redirect.Fragment); err == nil {
			for k, vs := range fragment {
				params[k] = vs
			}
		}
	}
	return params
}
