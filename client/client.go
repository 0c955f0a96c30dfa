// Package client assembles a configured SDK instance: one transport, one
// session store, and the user, social, and identity-provider services bound
// to a single app context.
package client

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-baas-sdk/internal/config"
	"github.com/jrsteele09/go-baas-sdk/mic"
	"github.com/jrsteele09/go-baas-sdk/sessions"
	"github.com/jrsteele09/go-baas-sdk/social"
	"github.com/jrsteele09/go-baas-sdk/transport"
	"github.com/jrsteele09/go-baas-sdk/users"
)

// Client is a fully wired SDK instance for one app key. Two Clients sharing
// a session store and app key share the same active session.
type Client struct {
	instanceID string
	cfg        config.Config
	appKey     string
	logger     zerolog.Logger

	store     sessions.Store
	manager   *sessions.Manager
	transport *transport.Client
	users     *users.Service
	social    *social.Orchestrator
	flow      *mic.Flow

	closeStore func() error
}

type options struct {
	logger     zerolog.Logger
	httpClient *http.Client
	store      sessions.Store
	closeStore func() error
	storeErr   error
	bridges    map[string]social.Bridge
	collection string
}

// Option configures a Client.
type Option func(*options)

// WithLogger sets the logger propagated to every service the client builds.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithHTTPClient overrides the HTTP client used by the transport and the
// identity-provider flow.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) {
		o.httpClient = hc
	}
}

// WithStore uses a caller-owned session store instead of the default
// in-memory one. The caller remains responsible for closing it.
func WithStore(store sessions.Store) Option {
	return func(o *options) {
		o.store = store
		o.closeStore = nil
	}
}

// WithBoltStore persists sessions to a bolt file at path. An empty
// passphrase stores sessions unencrypted.
func WithBoltStore(path, passphrase string) Option {
	return func(o *options) {
		var boltOpts []sessions.BoltOption
		if passphrase != "" {
			boltOpts = append(boltOpts, sessions.WithPassphrase(passphrase))
		}
		store, err := sessions.OpenBoltStore(path, sessions.DefaultCodec(), boltOpts...)
		if err != nil {
			o.storeErr = err
			return
		}
		o.store = store
		o.closeStore = store.Close
	}
}

// WithRedisStore persists sessions in redis so multiple processes share the
// active session.
func WithRedisStore(rdb *redis.Client, prefix string) Option {
	return func(o *options) {
		o.store = sessions.NewRedisStore(rdb, sessions.DefaultCodec(), prefix)
		o.closeStore = nil
	}
}

// WithBridge registers a provider handshake bridge with the social
// orchestrator.
func WithBridge(provider string, bridge Bridge) Option {
	return func(o *options) {
		if o.bridges == nil {
			o.bridges = map[string]social.Bridge{}
		}
		o.bridges[provider] = bridge
	}
}

// WithIdentityCollection overrides the backend collection the social
// orchestrator reads provider credentials from.
func WithIdentityCollection(name string) Option {
	return func(o *options) {
		o.collection = name
	}
}

// Bridge re-exports the social handshake bridge so callers wiring a client
// need not import the social package.
type Bridge = social.Bridge

// New builds a Client for the given app credentials. The store defaults to
// in-memory; sessions then live only as long as the process.
func New(cfg config.Config, appKey, appSecret string, opts ...Option) (*Client, error) {
	if appKey == "" {
		return nil, errors.New("[client.New] app key is required")
	}

	o := options{logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.storeErr != nil {
		return nil, errors.Wrap(o.storeErr, "[client.New] failed to open session store")
	}
	if o.store == nil {
		o.store = sessions.NewInMemoryStore(sessions.DefaultCodec())
	}

	manager := sessions.NewManager(o.store)

	// The transport resolves session tokens through the user service, which
	// itself calls through the transport. The closure breaks the cycle; the
	// service exists before any request runs.
	var userService *users.Service
	transportOpts := []transport.Option{
		transport.WithLogger(o.logger),
		transport.WithTokenFunc(func(ctx context.Context) (string, error) {
			return userService.AuthTokenFunc()(ctx)
		}),
	}
	micOpts := []mic.Option{mic.WithLogger(o.logger)}
	if o.httpClient != nil {
		transportOpts = append(transportOpts, transport.WithHTTPClient(o.httpClient))
		micOpts = append(micOpts, mic.WithHTTPClient(o.httpClient))
	}

	tr, err := transport.New(cfg, appKey, appSecret, transportOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "[client.New] failed to create transport")
	}

	flow, err := mic.New(cfg, appKey, appSecret, micOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "[client.New] failed to create identity-provider flow")
	}

	userService, err = users.NewService(cfg, appKey, manager, tr,
		users.WithLogger(o.logger),
		users.WithRefresher(mic.Identity, func(ctx context.Context, identity *sessions.ActiveIdentity) (map[string]any, error) {
			return flow.RefreshPayload(ctx, identity.Provider, identity.Token, identity.RedirectURI)
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[client.New] failed to create user service")
	}

	socialOpts := []social.Option{social.WithLogger(o.logger)}
	if o.collection != "" {
		socialOpts = append(socialOpts, social.WithCollection(o.collection))
	}
	for provider, bridge := range o.bridges {
		socialOpts = append(socialOpts, social.WithBridge(provider, bridge))
	}
	orchestrator, err := social.NewOrchestrator(cfg, appKey, tr, socialOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "[client.New] failed to create social orchestrator")
	}

	return &Client{
		instanceID: uuid.NewString(),
		cfg:        cfg,
		appKey:     appKey,
		logger:     o.logger,
		store:      o.store,
		manager:    manager,
		transport:  tr,
		users:      userService,
		social:     orchestrator,
		flow:       flow,
		closeStore: o.closeStore,
	}, nil
}

// InstanceID identifies this client instance; it is fresh per New call and
// not tied to the session store.
func (c *Client) InstanceID() string { return c.instanceID }

// AppKey returns the app key the client was built for.
func (c *Client) AppKey() string { return c.appKey }

// Config returns the client's configuration.
func (c *Client) Config() config.Config { return c.cfg }

// Users returns the user service.
func (c *Client) Users() *users.Service { return c.users }

// Social returns the social login orchestrator.
func (c *Client) Social() *social.Orchestrator { return c.social }

// Auth returns the identity-provider handshake flow.
func (c *Client) Auth() *mic.Flow { return c.flow }

// Sessions returns the session manager shared by the client's services.
func (c *Client) Sessions() *sessions.Manager { return c.manager }

// Transport returns the wire client, for callers issuing raw requests.
func (c *Client) Transport() *transport.Client { return c.transport }

// Ping verifies the backend is reachable with the app credentials.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.transport.Execute(ctx, transport.Request{
		Method:   http.MethodGet,
		Path:     "/" + c.cfg.DataNamespace + "/" + c.appKey,
		AuthMode: transport.AuthApp,
	}); err != nil {
		return errors.Wrap(err, "[Client.Ping] backend unreachable")
	}
	return nil
}

// Close releases any store the client opened itself. Stores supplied by the
// caller are left open.
func (c *Client) Close() error {
	if c.closeStore == nil {
		return nil
	}
	return c.closeStore()
}
