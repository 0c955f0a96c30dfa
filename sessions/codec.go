package sessions

import (
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/jrsteele09/go-baas-sdk/internal/config"
)

// Codec translates between Session values and the backend's wire form. The
// field names are configurable because deployments can rename the reserved
// attributes; everything the codec does not recognize round-trips through
// Session.Attributes untouched.
type Codec struct {
	idField       string
	kmdField      string
	aclField      string
	socialField   string
	usernameField string
	emailField    string
}

// NewCodec builds a Codec from the configured wire field names.
func NewCodec(cfg config.Config) Codec {
	return Codec{
		idField:       cfg.IDField,
		kmdField:      cfg.KMDField,
		aclField:      cfg.ACLField,
		socialField:   cfg.SocialField,
		usernameField: cfg.UsernameField,
		emailField:    cfg.EmailField,
	}
}

// DefaultCodec returns a Codec using the built-in field names.
func DefaultCodec() Codec {
	return NewCodec(config.Default())
}

// Decode parses a backend user document into a Session.
func (c Codec) Decode(data []byte) (*Session, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, errors.Wrap(err, "[Codec.Decode] failed to unmarshal session document")
	}

	session := &Session{}
	if err := popField(raw, c.idField, &session.ID); err != nil {
		return nil, err
	}
	if err := popField(raw, c.usernameField, &session.Username); err != nil {
		return nil, err
	}
	if err := popField(raw, c.emailField, &session.Email); err != nil {
		return nil, err
	}
	if err := popField(raw, c.kmdField, &session.Metadata); err != nil {
		return nil, err
	}
	if err := popField(raw, c.aclField, &session.ACL); err != nil {
		return nil, err
	}
	if err := popField(raw, c.socialField, &session.SocialIdentities); err != nil {
		return nil, err
	}

	if len(raw) > 0 {
		session.Attributes = make(map[string]any, len(raw))
		for field, value := range raw {
			var decoded any
			if err := json.Unmarshal(value, &decoded); err != nil {
				return nil, errors.Wrapf(err, "[Codec.Decode] failed to unmarshal attribute %q", field)
			}
			session.Attributes[field] = decoded
		}
	}
	return session, nil
}

// Encode renders a Session back into its backend wire form. Unset reserved
// fields are omitted so a fresh local session serializes to a minimal
// document.
func (c Codec) Encode(session *Session) ([]byte, error) {
	doc := make(map[string]any, len(session.Attributes)+6)
	for field, value := range session.Attributes {
		doc[field] = value
	}
	if session.ID != "" {
		doc[c.idField] = session.ID
	}
	if session.Username != "" {
		doc[c.usernameField] = session.Username
	}
	if session.Email != "" {
		doc[c.emailField] = session.Email
	}
	if session.Metadata != (Metadata{}) {
		doc[c.kmdField] = session.Metadata
	}
	if session.ACL != (ACL{}) {
		doc[c.aclField] = session.ACL
	}
	if len(session.SocialIdentities) > 0 {
		doc[c.socialField] = session.SocialIdentities
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, errors.Wrap(err, "[Codec.Encode] failed to marshal session document")
	}
	return encoded, nil
}

func popField[T any](raw map[string]json.RawMessage, field string, out *T) error {
	value, ok := raw[field]
	if !ok {
		return nil
	}
	delete(raw, field)
	if err := json.Unmarshal(value, out); err != nil {
		return errors.Wrapf(err, "[Codec.Decode] failed to unmarshal field %q", field)
	}
	return nil
}
