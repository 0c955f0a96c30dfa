package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-baas-sdk/internal/config"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("BAAS_API_HOST", "https://eu.baas.example.com")
	t.Setenv("BAAS_ID_FIELD", "_uid")
	t.Setenv("BAAS_IDENTITY_COLLECTION", "provider-credentials")
	t.Setenv("BAAS_REQUEST_TIMEOUT", "5s")

	cfg, err := config.Load()
	require.NoError(t, err)
	require.Equal(t, "https://eu.baas.example.com", cfg.APIHost)
	require.Equal(t, "_uid", cfg.IDField)
	require.Equal(t, "provider-credentials", cfg.IdentityCollection)
	require.Equal(t, 5*time.Second, cfg.RequestTimeout)

	// Untouched values keep their defaults
	require.Equal(t, "_kmd", cfg.KMDField)
	require.Equal(t, "_socialIdentity", cfg.SocialField)
}

func TestLoadRejectsMalformedDuration(t *testing.T) {
	t.Setenv("BAAS_REQUEST_TIMEOUT", "soon")

	_, err := config.Load()
	require.Error(t, err)
}
