// Package mic drives the redirect-based OAuth handshake with the backend's
// identity-provider endpoint: request a temporary login URI, wait for the
// user agent to come back with a code or token, and exchange the code when
// the grant requires it. Tokens it produces are linked to users under the
// Identity provider name.
package mic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/jrsteele09/go-baas-sdk/internal/config"
)

// Identity is the provider name MIC tokens are linked under, and the only
// provider wired to a refresh route.
const Identity = "baasAuth"

// GrantType selects the handshake variant.
type GrantType string

const (
	// GrantAuthorizationCode delivers a code on the redirect and requires a
	// token-endpoint exchange.
	GrantAuthorizationCode GrantType = "authorization_code"
	// GrantImplicit delivers the token directly in the redirect.
	GrantImplicit GrantType = "implicit"
)

const (
	authPath  = "/oauth/auth"
	tokenPath = "/oauth/token"
)

// Token is the outcome of a completed handshake. It carries the client and
// redirect context used, so it can be replayed on refresh.
type Token struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	Expiry       time.Time
	Identity     string
	ClientID     string
	RedirectURI  string
}

// Payload renders the token as the identity payload the user connect flow
// merges into a session's social identities.
func (t *Token) Payload() map[string]any {
	payload := map[string]any{
		"access_token": t.AccessToken,
		"token_type":   t.TokenType,
		"client_id":    t.ClientID,
		"redirect_uri": t.RedirectURI,
	}
	if t.RefreshToken != "" {
		payload["refresh_token"] = t.RefreshToken
	}
	if !t.Expiry.IsZero() {
		payload["expires"] = t.Expiry.UTC().Format(time.RFC3339)
	}
	return payload
}

// Flow performs handshakes against one identity-provider endpoint.
type Flow struct {
	authBase   *url.URL
	appKey     string
	appSecret  string
	httpClient *http.Client
	verifier   *oidc.IDTokenVerifier
	logger     zerolog.Logger
	nowTime    func() time.Time
}

// Option configures a Flow.
type Option func(*Flow)

// WithHTTPClient overrides the HTTP client used for provider calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(f *Flow) {
		f.httpClient = hc
	}
}

// WithLogger sets the flow's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(f *Flow) {
		f.logger = logger
	}
}

// WithVerifier enables OIDC ID-token verification on code exchanges that
// return one.
func WithVerifier(verifier *oidc.IDTokenVerifier) Option {
	return func(f *Flow) {
		f.verifier = verifier
	}
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) Option {
	return func(f *Flow) {
		f.nowTime = nowFunc
	}
}

// New creates a Flow for cfg's auth host, authenticating as the app.
func New(cfg config.Config, appKey, appSecret string, opts ...Option) (*Flow, error) {
	if appKey == "" {
		return nil, errors.New("[mic.New] app key is required")
	}
	authBase, err := url.Parse(cfg.AuthHost)
	if err != nil {
		return nil, errors.Wrap(err, "[mic.New] invalid auth host")
	}

	flow := &Flow{
		authBase:   authBase,
		appKey:     appKey,
		appSecret:  appSecret,
		httpClient: http.DefaultClient,
		logger:     zerolog.Nop(),
		nowTime:    time.Now,
	}
	for _, opt := range opts {
		opt(flow)
	}
	return flow, nil
}

func (f *Flow) endpoint(path string) string {
	target := *f.authBase
	target.Path = path
	return target.String()
}

func (f *Flow) oauthConfig(redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     f.appKey,
		ClientSecret: f.appSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:  f.endpoint(authPath),
			TokenURL: f.endpoint(tokenPath),
		},
	}
}

// clientContext routes the oauth2 library's own HTTP calls through the
// flow's client.
func (f *Flow) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
}

// Refresh exchanges a token's refresh token for a new token set. Provider
// rejection surfaces as ErrTokenRefresh.
func (f *Flow) Refresh(ctx context.Context, token *Token) (*Token, error) {
	if token == nil || token.RefreshToken == "" {
		return nil, errors.Wrap(ErrTokenRefresh, "no refresh token to exchange")
	}

	source := f.oauthConfig(token.RedirectURI).TokenSource(f.clientContext(ctx), &oauth2.Token{
		RefreshToken: token.RefreshToken,
	})
	refreshed, err := source.Token()
	if err != nil {
		return nil, errors.Wrap(ErrTokenRefresh, err.Error())
	}
	return f.buildToken(refreshed, token.RedirectURI), nil
}

// RefreshPayload adapts Refresh to the user service's refresh dispatch
// table: it rebuilds the Token from a stored identity payload, refreshes it,
// and returns the new payload.
func (f *Flow) RefreshPayload(ctx context.Context, provider string, payload map[string]any, redirectURI string) (map[string]any, error) {
	if provider != Identity {
		return nil, errors.Errorf("[Flow.RefreshPayload] unexpected provider %q", provider)
	}
	token := &Token{
		Identity:    Identity,
		ClientID:    f.appKey,
		RedirectURI: redirectURI,
	}
	if refresh, ok := payload["refresh_token"].(string); ok {
		token.RefreshToken = refresh
	}
	refreshed, err := f.Refresh(ctx, token)
	if err != nil {
		return nil, err
	}
	return refreshed.Payload(), nil
}

// buildToken converts an oauth2 token, filling the expiry from the access
// token's exp claim when the provider response omitted it.
func (f *Flow) buildToken(t *oauth2.Token, redirectURI string) *Token {
	token := &Token{
		AccessToken:  t.AccessToken,
		TokenType:    t.TokenType,
		RefreshToken: t.RefreshToken,
		Expiry:       t.Expiry,
		Identity:     Identity,
		ClientID:     f.appKey,
		RedirectURI:  redirectURI,
	}
	if token.Expiry.IsZero() {
		token.Expiry = expiryFromJWT(token.AccessToken)
	}
	return token
}

// requestTempLoginURI asks the provider endpoint for the temporary login URI
// the user agent must be sent to. The state nonce travels with the request so
// the provider echoes it on the redirect.
func (f *Flow) requestTempLoginURI(ctx context.Context, redirectURI, state string, grant GrantType) (string, error) {
	form := url.Values{
		"client_id":     []string{f.appKey},
		"redirect_uri":  []string{redirectURI},
		"response_type": []string{responseType(grant)},
		"state":         []string{state},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.endpoint(authPath), strings.NewReader(form.Encode()))
	if err != nil {
		return "", errors.Wrap(err, "[Flow.Begin] failed to build login URI request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(f.appKey, f.appSecret)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "[Flow.Begin] login URI request failed")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.Errorf("[Flow.Begin] login URI request returned status %d", resp.StatusCode)
	}

	var body struct {
		TempLoginURI string `json:"temp_login_uri"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", errors.Wrap(err, "[Flow.Begin] failed to decode login URI response")
	}
	if body.TempLoginURI == "" {
		return "", errors.New("[Flow.Begin] provider returned no temp login URI")
	}
	return body.TempLoginURI, nil
}

func responseType(grant GrantType) string {
	if grant == GrantImplicit {
		return "token"
	}
	return "code"
}

// expiryFromJWT pulls the exp claim out of a JWT access token without
// verifying it; verification happens server-side, this is only an expiry
// hint for refresh scheduling.
func expiryFromJWT(accessToken string) time.Time {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
