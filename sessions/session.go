// Package sessions holds the session entity and the stores that persist the
// single active session per client context.
package sessions

import "time"

// Metadata is the server-managed record metadata (the "_kmd" document). The
// auth token inside it is the bearer credential for session-authenticated
// requests.
type Metadata struct {
	AuthToken     string `json:"authtoken,omitempty"` // Bearer credential for authenticated calls
	EntityCreated string `json:"ect,omitempty"`       // Creation timestamp, server format
	LastModified  string `json:"lmt,omitempty"`       // Modification timestamp, server format
}

// ACL is the access-control descriptor derived from the record ("_acl").
// It is read-derived; the SDK never mutates it independently.
type ACL struct {
	Creator string `json:"creator,omitempty"` // ID of the user that created the record
}

// Session is one user's backend record plus the derived session attributes.
// At most one Session is active per client context at any time.
type Session struct {
	ID               string                    // Backend-assigned identifier ("_id"), immutable once set
	Username         string                    // Optional, mutable via profile updates
	Email            string                    // Optional, mutable via profile updates
	Metadata         Metadata                  // "_kmd": auth token plus timestamps
	ACL              ACL                       // "_acl": creator and permissions
	SocialIdentities map[string]map[string]any // "_socialIdentity": provider name -> opaque token payload
	Attributes       map[string]any            // Everything else the server returned, preserved losslessly
}

// ActiveIdentity is the per-context pointer at the social identity most
// recently connected, with the redirect/client metadata needed to replay a
// token refresh.
type ActiveIdentity struct {
	Provider    string         `json:"provider"`
	Token       map[string]any `json:"token,omitempty"`
	RedirectURI string         `json:"redirectUri,omitempty"`
	ClientID    string         `json:"clientId,omitempty"`
	ConnectedAt time.Time      `json:"connectedAt,omitempty"`
}

// AuthToken returns the session's bearer credential, empty when the session
// has never authenticated.
func (s *Session) AuthToken() string {
	if s == nil {
		return ""
	}
	return s.Metadata.AuthToken
}

// Identity returns the token payload linked for provider, nil when absent.
func (s *Session) Identity(provider string) map[string]any {
	if s == nil || s.SocialIdentities == nil {
		return nil
	}
	return s.SocialIdentities[provider]
}

// SetIdentity merges token into the payload stored for provider. Existing
// keys not present in token survive the merge.
func (s *Session) SetIdentity(provider string, token map[string]any) {
	if s.SocialIdentities == nil {
		s.SocialIdentities = make(map[string]map[string]any)
	}
	merged := copyPayload(s.SocialIdentities[provider])
	if merged == nil {
		merged = make(map[string]any, len(token))
	}
	for k, v := range token {
		merged[k] = v
	}
	s.SocialIdentities[provider] = merged
}

// RemoveIdentity drops the payload stored for provider.
func (s *Session) RemoveIdentity(provider string) {
	delete(s.SocialIdentities, provider)
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	clone := *s
	if s.SocialIdentities != nil {
		clone.SocialIdentities = make(map[string]map[string]any, len(s.SocialIdentities))
		for provider, payload := range s.SocialIdentities {
			clone.SocialIdentities[provider] = copyPayload(payload)
		}
	}
	clone.Attributes = copyPayload(s.Attributes)
	return &clone
}

func copyPayload(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	copied := make(map[string]any, len(payload))
	for k, v := range payload {
		if nested, ok := v.(map[string]any); ok {
			copied[k] = copyPayload(nested)
			continue
		}
		copied[k] = v
	}
	return copied
}
