// Package social coordinates provider-initiated identity connects: checking
// that a provider is supported, looking up its stored credentials, running
// the provider's own login handshake through a bridge, and feeding the
// resulting token into the user connect flow.
package social

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/jrsteele09/go-baas-sdk/internal/config"
	"github.com/jrsteele09/go-baas-sdk/query"
	"github.com/jrsteele09/go-baas-sdk/transport"
	"github.com/jrsteele09/go-baas-sdk/users"
)

// supportedProviders is the fixed set of providers a bridge may serve.
var supportedProviders = map[string]struct{}{
	"facebook": {},
	"google":   {},
	"linkedin": {},
}

// identityField is the credential-record field naming the provider.
const identityField = "identity"

// Bridge is the third-party library adapter performing a provider's own
// login handshake. The credential record configures the bridge; the returned
// payload is the provider's auth response.
type Bridge interface {
	Login(ctx context.Context, credential map[string]any) (map[string]any, error)
}

// Orchestrator drives provider-initiated connects for one client context.
type Orchestrator struct {
	cfg        config.Config
	appKey     string
	transport  users.Transport
	bridges    map[string]Bridge
	collection string
	logger     zerolog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBridge registers the bridge serving one provider.
func WithBridge(provider string, bridge Bridge) Option {
	return func(o *Orchestrator) {
		o.bridges[provider] = bridge
	}
}

// WithCollection overrides the collection holding provider credentials.
func WithCollection(name string) Option {
	return func(o *Orchestrator) {
		o.collection = name
	}
}

// WithLogger sets the orchestrator's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator creates an Orchestrator using cfg's default credential
// collection.
func NewOrchestrator(cfg config.Config, appKey string, tr users.Transport, opts ...Option) (*Orchestrator, error) {
	if appKey == "" {
		return nil, errors.New("[NewOrchestrator] app key is required")
	}
	if tr == nil {
		return nil, errors.New("[NewOrchestrator] transport is required")
	}

	orchestrator := &Orchestrator{
		cfg:        cfg,
		appKey:     appKey,
		transport:  tr,
		bridges:    make(map[string]Bridge),
		collection: cfg.IdentityCollection,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(orchestrator)
	}
	return orchestrator, nil
}

// IsSupported reports whether provider can be connected: it must be in the
// supported set and have a bridge registered.
func (o *Orchestrator) IsSupported(provider string) bool {
	if _, ok := supportedProviders[provider]; !ok {
		return false
	}
	_, ok := o.bridges[provider]
	return ok
}

// Connect looks up the stored credential for provider, runs the provider's
// login handshake through its bridge, and links the resulting token to u.
// Unsupported providers fail fast before any network call.
func (o *Orchestrator) Connect(ctx context.Context, u *users.User, provider string) error {
	if !o.IsSupported(provider) {
		return errors.Wrapf(users.ErrUnsupportedIdentity, "provider %q has no registered bridge or is not supported", provider)
	}

	credential, err := o.lookupCredential(ctx, provider)
	if err != nil {
		return err
	}

	payload, err := o.bridges[provider].Login(ctx, credential)
	if err != nil {
		return errors.Wrapf(err, "[Orchestrator.Connect] %s login handshake failed", provider)
	}

	o.logger.Debug().Str("provider", provider).Msg("provider handshake complete; linking identity")
	return u.Connect(ctx, provider, payload)
}

// lookupCredential fetches the single credential record configured for
// provider. Zero or more than one matching record is ambiguous and fails
// with ErrUnsupportedIdentity.
func (o *Orchestrator) lookupCredential(ctx context.Context, provider string) (map[string]any, error) {
	values, err := query.Equals(identityField, provider).Values()
	if err != nil {
		return nil, err
	}

	resp, err := o.transport.Execute(ctx, transport.Request{
		Method:   http.MethodGet,
		Path:     "/" + o.cfg.DataNamespace + "/" + o.appKey + "/" + o.collection,
		Query:    values,
		AuthMode: transport.AuthApp,
	})
	if err != nil {
		return nil, err
	}

	var records []map[string]any
	if err := json.Unmarshal(resp.Data, &records); err != nil {
		return nil, errors.Wrap(err, "[Orchestrator.Connect] failed to unmarshal credential records")
	}
	if len(records) != 1 {
		return nil, errors.Wrapf(users.ErrUnsupportedIdentity, "expected exactly one %s credential record, found %d", provider, len(records))
	}
	return records[0], nil
}
