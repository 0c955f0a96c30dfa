package users_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/jrsteele09/go-baas-sdk/transport"
	"github.com/jrsteele09/go-baas-sdk/users"
)

func TestExists(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	f.transport.Stub(http.StatusOK, map[string]any{"usernameExists": true})

	taken, err := f.service.Exists(ctx, " bob ")
	require.NoError(t, err)
	require.True(t, taken)

	require.Len(t, f.transport.Requests, 1)
	req := f.transport.Requests[0]
	require.Equal(t, http.MethodPost, req.Method)
	require.Equal(t, "/rpc/app-key-1/check-username-exists", req.Path)
	require.Equal(t, transport.AuthApp, req.AuthMode)
	body := req.Body.(map[string]any)
	require.Equal(t, "bob", body["username"])
}

func TestExistsEmptyUsername(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.service.Exists(context.Background(), "   ")
	require.ErrorIs(t, err, users.ErrInvalidCredentials)
	require.Equal(t, 0, f.transport.CallCount())
}

func TestResetPassword(t *testing.T) {
	f := setupTestFixture(t)
	f.transport.Stub(http.StatusNoContent, nil)

	err := f.service.ResetPassword(context.Background(), "bob@example.com")
	require.NoError(t, err)

	require.Len(t, f.transport.Requests, 1)
	require.Equal(t, "/rpc/app-key-1/bob@example.com/user-password-reset-initiate", f.transport.Requests[0].Path)
}

func TestResetPasswordPropagatesTransportError(t *testing.T) {
	f := setupTestFixture(t)
	f.transport.StubErr(errors.New("backend unreachable"))

	err := f.service.ResetPassword(context.Background(), "bob")
	require.Error(t, err)
}

func TestVerifyEmail(t *testing.T) {
	f := setupTestFixture(t)
	f.transport.Stub(http.StatusNoContent, nil)

	err := f.service.VerifyEmail(context.Background(), "bob")
	require.NoError(t, err)

	require.Len(t, f.transport.Requests, 1)
	require.Equal(t, "/rpc/app-key-1/bob/user-email-verification-initiate", f.transport.Requests[0].Path)
}
