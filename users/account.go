package users

import (
	"context"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-baas-sdk/transport"
)

// rpcPath builds a path under the RPC namespace for this app.
func (s *Service) rpcPath(elem ...string) string {
	path := "/" + s.cfg.RPCNamespace + "/" + s.appKey
	for _, e := range elem {
		path += "/" + e
	}
	return path
}

// Exists reports whether a username is already taken. It authenticates as the
// app, so it works without an active session.
func (s *Service) Exists(ctx context.Context, username string) (bool, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return false, errors.Wrap(ErrInvalidCredentials, "username is required")
	}

	resp, err := s.transport.Execute(ctx, transport.Request{
		Method:   http.MethodPost,
		Path:     s.rpcPath("check-username-exists"),
		Body:     map[string]any{"username": username},
		AuthMode: transport.AuthApp,
	})
	if err != nil {
		return false, errors.Wrap(err, "[Service.Exists] username check failed")
	}

	var result struct {
		UsernameExists bool `json:"usernameExists"`
	}
	if err := resp.Decode(&result); err != nil {
		return false, err
	}
	return result.UsernameExists, nil
}

// ResetPassword asks the backend to start a password reset for the account
// behind the given username or email. The backend delivers the reset link
// out-of-band; no session state changes.
func (s *Service) ResetPassword(ctx context.Context, usernameOrEmail string) error {
	usernameOrEmail = strings.TrimSpace(usernameOrEmail)
	if usernameOrEmail == "" {
		return errors.Wrap(ErrInvalidCredentials, "username or email is required")
	}

	_, err := s.transport.Execute(ctx, transport.Request{
		Method:   http.MethodPost,
		Path:     s.rpcPath(usernameOrEmail, "user-password-reset-initiate"),
		AuthMode: transport.AuthApp,
	})
	if err != nil {
		return errors.Wrap(err, "[Service.ResetPassword] reset request failed")
	}
	return nil
}

// VerifyEmail asks the backend to send a verification email for the account
// behind the given username.
func (s *Service) VerifyEmail(ctx context.Context, username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return errors.Wrap(ErrInvalidCredentials, "username is required")
	}

	_, err := s.transport.Execute(ctx, transport.Request{
		Method:   http.MethodPost,
		Path:     s.rpcPath(username, "user-email-verification-initiate"),
		AuthMode: transport.AuthApp,
	})
	if err != nil {
		return errors.Wrap(err, "[Service.VerifyEmail] verification request failed")
	}
	return nil
}
