// Package users implements the user session lifecycle: login, logout,
// signup, profile refresh, and linking of third-party social identities.
package users

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-baas-sdk/internal/config"
	"github.com/jrsteele09/go-baas-sdk/sessions"
	"github.com/jrsteele09/go-baas-sdk/transport"
)

// Transport sends authenticated requests to the backend.
type Transport interface {
	Execute(ctx context.Context, req transport.Request) (*transport.Response, error)
}

// Refresher exchanges an identity's refresh token for a fresh token payload.
type Refresher func(ctx context.Context, identity *sessions.ActiveIdentity) (map[string]any, error)

// Service owns the shared state of one client context: configuration, the
// session manager enforcing the singleton invariant, the transport, and the
// refresh dispatch table keyed by provider name.
type Service struct {
	cfg        config.Config
	appKey     string
	codec      sessions.Codec
	manager    *sessions.Manager
	transport  Transport
	refreshers map[string]Refresher
	logger     zerolog.Logger
	nowTime    func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the logger used by lifecycle operations.
func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing).
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithRefresher registers the token refresh routine for one identity
// provider. Providers without a registered refresher fail RefreshAuthToken
// with ErrUnsupportedIdentity.
func WithRefresher(provider string, refresher Refresher) ServiceOption {
	return func(s *Service) {
		s.refreshers[provider] = refresher
	}
}

// NewService initializes a Service with its required collaborators.
func NewService(cfg config.Config, appKey string, manager *sessions.Manager, tr Transport, opts ...ServiceOption) (*Service, error) {
	if appKey == "" {
		return nil, errors.New("[NewService] app key is required")
	}
	if manager == nil {
		return nil, errors.New("[NewService] session manager is required")
	}
	if tr == nil {
		return nil, errors.New("[NewService] transport is required")
	}

	service := &Service{
		cfg:        cfg,
		appKey:     appKey,
		codec:      sessions.NewCodec(cfg),
		manager:    manager,
		transport:  tr,
		refreshers: make(map[string]Refresher),
		logger:     zerolog.Nop(),
		nowTime:    time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// ContextKey is the storage key under which this client context's active
// session lives.
func (s *Service) ContextKey() string {
	return s.cfg.ActiveSessionPrefix + "." + s.appKey
}

// NewUser returns an empty, anonymous user bound to this context.
func (s *Service) NewUser() *User {
	return &User{svc: s, data: &sessions.Session{}}
}

// ActiveUser returns the user wrapping the currently active session, or nil
// when no session is active.
func (s *Service) ActiveUser(ctx context.Context) (*User, error) {
	active, err := s.manager.Active(ctx, s.ContextKey())
	if err != nil {
		return nil, err
	}
	if active == nil {
		return nil, nil
	}
	return &User{svc: s, data: active}, nil
}

// AuthTokenFunc returns a transport.TokenFunc resolving the active session's
// auth token, for wiring session-authenticated requests.
func (s *Service) AuthTokenFunc() transport.TokenFunc {
	return func(ctx context.Context) (string, error) {
		active, err := s.manager.Active(ctx, s.ContextKey())
		if err != nil {
			return "", err
		}
		return active.AuthToken(), nil
	}
}

// userPath builds a path under the user namespace for this app.
func (s *Service) userPath(elem ...string) string {
	path := "/" + s.cfg.UserNamespace + "/" + s.appKey
	for _, e := range elem {
		path += "/" + e
	}
	return path
}
