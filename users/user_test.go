package users_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-baas-sdk/internal/config"
	"github.com/jrsteele09/go-baas-sdk/sessions"
	"github.com/jrsteele09/go-baas-sdk/sessions/storefakes"
	"github.com/jrsteele09/go-baas-sdk/transport"
	"github.com/jrsteele09/go-baas-sdk/transport/transportfakes"
	"github.com/jrsteele09/go-baas-sdk/users"
)

const testAppKey = "app-key-1"

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// testFixture holds all test dependencies.
type testFixture struct {
	store     *storefakes.FakeStore
	manager   *sessions.Manager
	transport *transportfakes.FakeTransport
	service   *users.Service
}

func setupTestFixture(t *testing.T, opts ...users.ServiceOption) *testFixture {
	t.Helper()

	store := storefakes.NewFakeStore()
	manager := sessions.NewManager(store)
	fakeTransport := transportfakes.NewFakeTransport()

	opts = append(opts, users.WithNowTime(func() time.Time { return testNow }))
	service, err := users.NewService(config.Default(), testAppKey, manager, fakeTransport, opts...)
	require.NoError(t, err)

	return &testFixture{
		store:     store,
		manager:   manager,
		transport: fakeTransport,
		service:   service,
	}
}

func userDocument(id, token string, extra map[string]any) map[string]any {
	doc := map[string]any{
		"_id":  id,
		"_kmd": map[string]any{"authtoken": token},
	}
	for k, v := range extra {
		doc[k] = v
	}
	return doc
}

func TestLoginTrimsCredentialsAndPromotes(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.transport.Stub(http.StatusOK, userDocument("user-1", "T1", map[string]any{"username": "bob"}))

	user := f.service.NewUser()
	err := user.Login(ctx, users.Credentials{Username: " bob ", Password: " pw "})
	require.NoError(t, err)

	// The transport received trimmed credentials
	require.Len(t, f.transport.Requests, 1)
	req := f.transport.Requests[0]
	require.Equal(t, http.MethodPost, req.Method)
	require.Equal(t, "/user/app-key-1/login", req.Path)
	require.Equal(t, transport.AuthApp, req.AuthMode)
	body := req.Body.(map[string]any)
	require.Equal(t, "bob", body["username"])
	require.Equal(t, "pw", body["password"])

	// The session became active with the returned _id
	active, err := f.manager.Active(ctx, f.service.ContextKey())
	require.NoError(t, err)
	require.Equal(t, "user-1", active.ID)
	require.Equal(t, "T1", active.AuthToken())
	require.Equal(t, "user-1", user.ID())
}

func TestLoginRejectsMalformedCredentialsBeforeTransport(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	cases := []users.Credentials{
		{},
		{Username: "bob"},
		{Password: "pw"},
		{Username: "   ", Password: "pw"},
		{Username: "bob", Password: "   "},
	}
	for _, creds := range cases {
		err := f.service.NewUser().Login(ctx, creds)
		require.ErrorIs(t, err, users.ErrInvalidCredentials)
	}
	require.Zero(t, f.transport.CallCount())
}

func TestLoginSocialIdentityPassesThroughUntrimmed(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.transport.Stub(http.StatusOK, userDocument("user-1", "T1", nil))

	identity := map[string]map[string]any{
		"facebook": {"access_token": " raw-token "},
	}
	err := f.service.NewUser().Login(ctx, users.Credentials{SocialIdentity: identity})
	require.NoError(t, err)

	body := f.transport.Requests[0].Body.(map[string]any)
	social := body["_socialIdentity"].(map[string]map[string]any)
	require.Equal(t, " raw-token ", social["facebook"]["access_token"])
	require.NotContains(t, body, "username")
}

func TestLoginConflictsWhenAnotherSessionIsActive(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.transport.Stub(http.StatusOK, userDocument("user-1", "T1", nil))

	require.NoError(t, f.service.NewUser().Login(ctx, users.Credentials{Username: "bob", Password: "pw"}))

	err := f.service.NewUser().Login(ctx, users.Credentials{Username: "alice", Password: "pw"})
	require.ErrorIs(t, err, users.ErrActiveSessionConflict)
	// Only the first login reached the transport
	require.Equal(t, 1, f.transport.CallCount())
}

func TestLoginConflictsWhenSameUserAlreadyActive(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.transport.Stub(http.StatusOK, userDocument("user-1", "T1", nil))

	user := f.service.NewUser()
	require.NoError(t, user.Login(ctx, users.Credentials{Username: "bob", Password: "pw"}))

	err := user.Login(ctx, users.Credentials{Username: "bob", Password: "pw"})
	require.ErrorIs(t, err, users.ErrActiveSessionConflict)
}

func TestLogoutWhenNotActiveIsSilent(t *testing.T) {
	f := setupTestFixture(t)

	result, err := f.service.NewUser().Logout(context.Background())
	require.NoError(t, err)
	require.Nil(t, result)
	require.Zero(t, f.transport.CallCount())
}

func TestLogoutClearsActiveSession(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.transport.Stub(http.StatusOK, userDocument("user-1", "T1", nil))
	f.transport.Stub(http.StatusNoContent, map[string]any{})

	user := f.service.NewUser()
	require.NoError(t, user.Login(ctx, users.Credentials{Username: "bob", Password: "pw"}))

	result, err := user.Logout(ctx)
	require.NoError(t, err)
	require.Equal(t, user, result)

	active, err := f.manager.Active(ctx, f.service.ContextKey())
	require.NoError(t, err)
	require.Nil(t, active)

	// Requests: login + logout
	require.Equal(t, 2, f.transport.CallCount())
	require.Equal(t, "/user/app-key-1/_logout", f.transport.Requests[1].Path)
	require.Equal(t, transport.AuthSession, f.transport.Requests[1].AuthMode)
}

func TestLogoutClearsLocalStateDespiteTransportFailure(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.transport.Stub(http.StatusOK, userDocument("user-1", "T1", nil))
	f.transport.StubErr(&transport.ServerError{StatusCode: http.StatusBadGateway})

	user := f.service.NewUser()
	require.NoError(t, user.Login(ctx, users.Credentials{Username: "bob", Password: "pw"}))

	result, err := user.Logout(ctx)
	require.NoError(t, err)
	require.Equal(t, user, result)

	active, err := f.manager.Active(ctx, f.service.ContextKey())
	require.NoError(t, err)
	require.Nil(t, active)
}

func TestSignupPromotesByDefaultThenLoginConflicts(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.transport.Stub(http.StatusCreated, userDocument("user-9", "T9", map[string]any{"username": "carol"}))

	user := f.service.NewUser()
	require.NoError(t, user.Signup(ctx, map[string]any{"username": "carol", "password": "pw"}, true))
	require.Equal(t, "user-9", user.ID())

	// Signup already promoted the new session, so a login is rejected.
	err := f.service.NewUser().Login(ctx, users.Credentials{Username: "carol", Password: "pw"})
	require.ErrorIs(t, err, users.ErrActiveSessionConflict)
}

func TestSignupWithoutPromoteLeavesContextFree(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.transport.Stub(http.StatusCreated, userDocument("user-9", "T9", nil))

	user := f.service.NewUser()
	require.NoError(t, user.Signup(ctx, map[string]any{"username": "carol"}, false))
	require.Equal(t, "user-9", user.ID())

	active, err := f.manager.Active(ctx, f.service.ContextKey())
	require.NoError(t, err)
	require.Nil(t, active)
}

func TestSignupWithPromoteConflictsWhenSessionActive(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.transport.Stub(http.StatusOK, userDocument("user-1", "T1", nil))

	require.NoError(t, f.service.NewUser().Login(ctx, users.Credentials{Username: "bob", Password: "pw"}))

	err := f.service.NewUser().Signup(ctx, map[string]any{"username": "carol"}, true)
	require.ErrorIs(t, err, users.ErrActiveSessionConflict)
	require.Equal(t, 1, f.transport.CallCount())
}

func TestRefreshProfileCarriesForwardAuthToken(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.transport.Stub(http.StatusOK, userDocument("user-1", "T1", nil))
	// The profile endpoint omits _kmd.authtoken
	f.transport.Stub(http.StatusOK, map[string]any{
		"_id":   "user-1",
		"_kmd":  map[string]any{"lmt": "2026-03-01T00:00:00.000Z"},
		"email": "bob@example.com",
	})

	user := f.service.NewUser()
	require.NoError(t, user.Login(ctx, users.Credentials{Username: "bob", Password: "pw"}))
	require.NoError(t, user.RefreshProfile(ctx))

	require.Equal(t, "bob@example.com", user.Session().Email)
	require.Equal(t, "T1", user.Session().AuthToken())

	active, err := f.manager.Active(ctx, f.service.ContextKey())
	require.NoError(t, err)
	require.Equal(t, "T1", active.AuthToken())
	require.Equal(t, "bob@example.com", active.Email)
}

func TestActiveUserReflectsStore(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	user, err := f.service.ActiveUser(ctx)
	require.NoError(t, err)
	require.Nil(t, user)

	f.transport.Stub(http.StatusOK, userDocument("user-1", "T1", nil))
	require.NoError(t, f.service.NewUser().Login(ctx, users.Credentials{Username: "bob", Password: "pw"}))

	user, err = f.service.ActiveUser(ctx)
	require.NoError(t, err)
	require.Equal(t, "user-1", user.ID())
}

func TestAuthTokenFuncResolvesActiveToken(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	token, err := f.service.AuthTokenFunc()(ctx)
	require.NoError(t, err)
	require.Empty(t, token)

	f.transport.Stub(http.StatusOK, userDocument("user-1", "T1", nil))
	require.NoError(t, f.service.NewUser().Login(ctx, users.Credentials{Username: "bob", Password: "pw"}))

	token, err = f.service.AuthTokenFunc()(ctx)
	require.NoError(t, err)
	require.Equal(t, "T1", token)
}
