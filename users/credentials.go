package users

import (
	"strings"

	"github.com/pkg/errors"
)

// Credentials carries login input: either a username/password pair or a
// social identity token map (provider name -> token payload).
type Credentials struct {
	Username       string
	Password       string
	SocialIdentity map[string]map[string]any
}

// loginBody validates credentials and builds the login request document.
// Username and password are trimmed of surrounding whitespace; social
// identity payloads are provider-issued and pass through untouched.
func (s *Service) loginBody(creds Credentials) (map[string]any, error) {
	body := map[string]any{}

	if len(creds.SocialIdentity) > 0 {
		body[s.cfg.SocialField] = creds.SocialIdentity
		if creds.Username != "" {
			body[s.cfg.UsernameField] = creds.Username
		}
		if creds.Password != "" {
			body["password"] = creds.Password
		}
		return body, nil
	}

	username := strings.TrimSpace(creds.Username)
	password := strings.TrimSpace(creds.Password)
	if username == "" || password == "" {
		return nil, errors.Wrap(ErrInvalidCredentials, "username and password are required when no social identity is supplied")
	}
	body[s.cfg.UsernameField] = username
	body["password"] = password
	return body, nil
}
