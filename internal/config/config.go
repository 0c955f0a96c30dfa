package config

import (
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Config holds the endpoint namespaces and wire field names the SDK uses when
// talking to the backend. Every value has a fixed default and can be
// overridden through the environment, so one binary can point at different
// deployments without code changes.
type Config struct {
	// Hosts
	APIHost  string `env:"BAAS_API_HOST" envDefault:"https://baas.example.com"`
	AuthHost string `env:"BAAS_AUTH_HOST" envDefault:"https://auth.example.com"`

	// Endpoint namespaces
	UserNamespace string `env:"BAAS_USER_NAMESPACE" envDefault:"user"`
	RPCNamespace  string `env:"BAAS_RPC_NAMESPACE" envDefault:"rpc"`
	DataNamespace string `env:"BAAS_DATA_NAMESPACE" envDefault:"appdata"`

	// Collection holding identity-provider credentials for social connects
	IdentityCollection string `env:"BAAS_IDENTITY_COLLECTION" envDefault:"identities"`

	// Wire field names
	IDField       string `env:"BAAS_ID_FIELD" envDefault:"_id"`
	KMDField      string `env:"BAAS_KMD_FIELD" envDefault:"_kmd"`
	ACLField      string `env:"BAAS_ACL_FIELD" envDefault:"_acl"`
	SocialField   string `env:"BAAS_SOCIAL_IDENTITY_FIELD" envDefault:"_socialIdentity"`
	UsernameField string `env:"BAAS_USERNAME_FIELD" envDefault:"username"`
	EmailField    string `env:"BAAS_EMAIL_FIELD" envDefault:"email"`

	// Key prefix under which the active session is persisted per client context
	ActiveSessionPrefix string `env:"BAAS_ACTIVE_SESSION_PREFIX" envDefault:"active_session"`

	// Default timeout applied to backend requests when the caller supplies none
	RequestTimeout time.Duration `env:"BAAS_REQUEST_TIMEOUT" envDefault:"30s"`
}

// Load builds a Config from the environment, falling back to the defaults for
// anything unset.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "[config.Load] failed to parse environment")
	}
	return cfg, nil
}

// Default returns the built-in configuration without consulting the
// environment.
func Default() Config {
	return Config{
		APIHost:             "https://baas.example.com",
		AuthHost:            "https://auth.example.com",
		UserNamespace:       "user",
		RPCNamespace:        "rpc",
		DataNamespace:       "appdata",
		IdentityCollection:  "identities",
		IDField:             "_id",
		KMDField:            "_kmd",
		ACLField:            "_acl",
		SocialField:         "_socialIdentity",
		UsernameField:       "username",
		EmailField:          "email",
		ActiveSessionPrefix: "active_session",
		RequestTimeout:      30 * time.Second,
	}
}
