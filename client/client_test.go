package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-baas-sdk/client"
	"github.com/jrsteele09/go-baas-sdk/internal/config"
	"github.com/jrsteele09/go-baas-sdk/sessions"
	"github.com/jrsteele09/go-baas-sdk/users"
)

const (
	testAppKey    = "app-key-1"
	testAppSecret = "app-secret-1"
)

func testConfig(apiHost string) config.Config {
	cfg := config.Default()
	if apiHost != "" {
		cfg.APIHost = apiHost
	}
	return cfg
}

func TestNewRequiresAppKey(t *testing.T) {
	_, err := client.New(testConfig(""), "", testAppSecret)
	require.Error(t, err)
}

func TestInstanceIDsAreUnique(t *testing.T) {
	a, err := client.New(testConfig(""), testAppKey, testAppSecret)
	require.NoError(t, err)
	b, err := client.New(testConfig(""), testAppKey, testAppSecret)
	require.NoError(t, err)

	require.NotEmpty(t, a.InstanceID())
	require.NotEqual(t, a.InstanceID(), b.InstanceID())
	require.Equal(t, testAppKey, a.AppKey())
}

func TestServicesShareSessionManager(t *testing.T) {
	c, err := client.New(testConfig(""), testAppKey, testAppSecret)
	require.NoError(t, err)

	ctx := context.Background()
	session := &sessions.Session{ID: "user-1", Username: "alice"}
	session.Metadata.AuthToken = "token-1"

	_, err = c.Sessions().SetActive(ctx, c.Users().ContextKey(), session)
	require.NoError(t, err)

	active, err := c.Users().ActiveUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, "user-1", active.ID())
}

func TestCallerSuppliedStore(t *testing.T) {
	store := sessions.NewInMemoryStore(sessions.DefaultCodec())
	c, err := client.New(testConfig(""), testAppKey, testAppSecret, client.WithStore(store))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = c.Sessions().SetActive(ctx, c.Users().ContextKey(), &sessions.Session{ID: "user-1"})
	require.NoError(t, err)

	// The store the caller handed over holds the session directly.
	got, err := store.GetActive(ctx, c.Users().ContextKey())
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "user-1", got.ID)

	require.NoError(t, c.Close())
}

func TestBoltStorePersistsAcrossClients(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	ctx := context.Background()

	first, err := client.New(testConfig(""), testAppKey, testAppSecret, client.WithBoltStore(path, "passphrase-1"))
	require.NoError(t, err)
	_, err = first.Sessions().SetActive(ctx, first.Users().ContextKey(), &sessions.Session{ID: "user-1"})
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := client.New(testConfig(""), testAppKey, testAppSecret, client.WithBoltStore(path, "passphrase-1"))
	require.NoError(t, err)
	defer second.Close() //nolint:errcheck

	active, err := second.Users().ActiveUser(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	require.Equal(t, "user-1", active.ID())
}

func TestBoltStoreOpenFailureSurfacesFromNew(t *testing.T) {
	// A directory path cannot be opened as a bolt file.
	_, err := client.New(testConfig(""), testAppKey, testAppSecret, client.WithBoltStore(t.TempDir(), ""))
	require.Error(t, err)
}

func TestLoginThroughAssembledClient(t *testing.T) {
	var loginCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/user/" + testAppKey + "/login":
			loginCalls++
			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			require.Equal(t, testAppKey, user)
			require.Equal(t, testAppSecret, pass)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"_id":      "user-1",
				"username": "alice",
				"_kmd":     map[string]any{"authtoken": "token-1"},
			})
		case "/user/" + testAppKey + "/_me":
			require.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"_id":      "user-1",
				"username": "alice",
				"email":    "alice@example.com",
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c, err := client.New(testConfig(srv.URL), testAppKey, testAppSecret)
	require.NoError(t, err)
	ctx := context.Background()

	u := c.Users().NewUser()
	require.NoError(t, u.Login(ctx, users.Credentials{Username: "alice", Password: "secret"}))
	require.Equal(t, 1, loginCalls)

	active, err := u.IsActive(ctx)
	require.NoError(t, err)
	require.True(t, active)

	// The session-authenticated path resolves its bearer token through the
	// wired token func.
	require.NoError(t, u.RefreshProfile(ctx))
	require.Equal(t, "alice@example.com", u.Session().Email)
}

func TestPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/appdata/"+testAppKey, r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"hello": "app-key-1"})
	}))
	defer srv.Close()

	c, err := client.New(testConfig(srv.URL), testAppKey, testAppSecret)
	require.NoError(t, err)
	require.NoError(t, c.Ping(context.Background()))
}

func TestPingHonoursDataNamespace(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/blobs/"+testAppKey, r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{"hello": "app-key-1"})
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.DataNamespace = "blobs"

	c, err := client.New(cfg, testAppKey, testAppSecret)
	require.NoError(t, err)
	require.NoError(t, c.Ping(context.Background()))
}
