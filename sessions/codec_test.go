package sessions_test

import (
	"testing"

	"github.com/jrsteele09/go-baas-sdk/internal/config"
	"github.com/jrsteele09/go-baas-sdk/sessions"
	"github.com/stretchr/testify/require"
)

const sampleDocument = `{
	"_id": "user-1",
	"username": "bob",
	"email": "bob@example.com",
	"_kmd": {"authtoken": "T1", "ect": "2024-01-01T00:00:00.000Z", "lmt": "2024-01-02T00:00:00.000Z"},
	"_acl": {"creator": "user-1"},
	"_socialIdentity": {"facebook": {"access_token": "fb-token"}},
	"favouriteColour": "green",
	"age": 42
}`

func TestCodecDecode(t *testing.T) {
	session, err := sessions.DefaultCodec().Decode([]byte(sampleDocument))
	require.NoError(t, err)

	require.Equal(t, "user-1", session.ID)
	require.Equal(t, "bob", session.Username)
	require.Equal(t, "bob@example.com", session.Email)
	require.Equal(t, "T1", session.Metadata.AuthToken)
	require.Equal(t, "user-1", session.ACL.Creator)
	require.Equal(t, "fb-token", session.SocialIdentities["facebook"]["access_token"])
	require.Equal(t, "green", session.Attributes["favouriteColour"])
	require.EqualValues(t, 42, session.Attributes["age"])
}

func TestCodecRoundTripPreservesUnknownAttributes(t *testing.T) {
	codec := sessions.DefaultCodec()

	session, err := codec.Decode([]byte(sampleDocument))
	require.NoError(t, err)

	encoded, err := codec.Encode(session)
	require.NoError(t, err)
	require.JSONEq(t, sampleDocument, string(encoded))
}

func TestCodecEncodeOmitsUnsetReservedFields(t *testing.T) {
	encoded, err := sessions.DefaultCodec().Encode(&sessions.Session{Username: "alice"})
	require.NoError(t, err)
	require.JSONEq(t, `{"username":"alice"}`, string(encoded))
}

func TestCodecConfigurableFieldNames(t *testing.T) {
	cfg := config.Default()
	cfg.IDField = "_uid"
	cfg.KMDField = "_meta"
	codec := sessions.NewCodec(cfg)

	session, err := codec.Decode([]byte(`{"_uid": "u1", "_meta": {"authtoken": "T9"}, "_id": "plain-attribute"}`))
	require.NoError(t, err)

	require.Equal(t, "u1", session.ID)
	require.Equal(t, "T9", session.Metadata.AuthToken)
	// With renamed reserved fields, "_id" is just another attribute.
	require.Equal(t, "plain-attribute", session.Attributes["_id"])
}

func TestSessionSetIdentityMerges(t *testing.T) {
	session := &sessions.Session{}
	session.SetIdentity("facebook", map[string]any{"access_token": "a", "expires_in": 3600})
	session.SetIdentity("facebook", map[string]any{"access_token": "b"})

	require.Equal(t, "b", session.SocialIdentities["facebook"]["access_token"])
	require.Equal(t, 3600, session.SocialIdentities["facebook"]["expires_in"])
}

func TestSessionCloneIsDeep(t *testing.T) {
	session := &sessions.Session{ID: "u1"}
	session.SetIdentity("google", map[string]any{"access_token": "g"})

	clone := session.Clone()
	clone.SetIdentity("google", map[string]any{"access_token": "mutated"})

	require.Equal(t, "g", session.SocialIdentities["google"]["access_token"])
}
