package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/pubregistry/registry"
)

func TestParseUserToken(t *testing.T) {
	key := []byte("test-secret")
	tok, err := IssueUserToken(key, "u1", "u@example.com")
	require.NoError(t, err)

	v := &Verifier{UserKey: key, SiteAdmins: map[string]bool{"admin": true}}
	agent, err := v.Parse(tok)
	require.NoError(t, err)
	u, ok := agent.(registry.AuthenticatedUser)
	require.True(t, ok)
	require.Equal(t, "u1", u.UserID)
	require.Equal(t, "u@example.com", u.Email)
	require.False(t, u.SiteAdmin)
}

func TestParseSiteAdmin(t *testing.T) {
	key := []byte("test-secret")
	tok, err := IssueUserToken(key, "admin", "admin@example.com")
	require.NoError(t, err)

	v := &Verifier{UserKey: key, SiteAdmins: map[string]bool{"admin": true}}
	agent, err := v.Parse(tok)
	require.NoError(t, err)
	require.True(t, agent.(registry.AuthenticatedUser).SiteAdmin)
}

func TestParseGithubAction(t *testing.T) {
	key := []byte("gh-secret")
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: IssuerGithubActions},
		Repository:       "me/proj",
		EventName:        "push",
		RefType:          "tag",
		Ref:              "refs/tags/v2.0.0",
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(key)
	require.NoError(t, err)

	v := &Verifier{UserKey: key}
	agent, err := v.Parse(signed)
	require.NoError(t, err)
	g, ok := agent.(registry.AuthenticatedGithubAction)
	require.True(t, ok)
	require.Equal(t, "me/proj", g.Repository)
	require.Equal(t, "refs/tags/v2.0.0", g.Ref)
}

func TestParseUnrecognizedIssuer(t *testing.T) {
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{Issuer: "https://evil.example"}}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte("k"))
	require.NoError(t, err)

	v := &Verifier{UserKey: []byte("k")}
	_, err = v.Parse(signed)
	require.Error(t, err)
	var rerr *registry.Error
	require.ErrorAs(t, err, &rerr)
	require.Equal(t, registry.ErrMissingAuthentication, rerr.Kind)
}
