// Package auth resolves an inbound bearer token to one of the three
// registry.Agent variants. Tokens are JWTs; the issuer claim decides
// which variant a token maps to and which key verifies it.
package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pubregistry/registry"
)

// Issuer values dispatch Parse to the matching registry.Agent
// variant, one per supported principal kind.
const (
	IssuerUser          = "https://accounts.pubregistry.example"
	IssuerGithubActions = "https://token.actions.githubusercontent.com"
	IssuerGcp           = "https://accounts.google.com"
)

// Claims is the superset of claims any of the three token issuers may
// populate. Only the fields relevant to the dispatched issuer are read.
type Claims struct {
	jwt.RegisteredClaims

	// User claims.
	Email     string `json:"email"`
	SiteAdmin bool   `json:"-"` // computed, not a token claim

	// GitHub Actions OIDC claims (see
	// https://docs.github.com/actions/deployment/security-hardening-your-deployments/about-security-hardening-with-openid-connect).
	Repository  string `json:"repository"`
	EventName   string `json:"event_name"`
	RefType     string `json:"ref_type"`
	Ref         string `json:"ref"`
	Environment string `json:"environment"`
}

// Verifier resolves a bearer token to a registry.Agent. Each issuer is
// verified against its own key, matching the registry's posture of
// trusting three distinct token sources (its own user-session signer,
// GitHub's OIDC issuer, Google's service-account issuer) rather than one
// shared secret.
type Verifier struct {
	// UserKey verifies the registry's own user-session tokens (HS256).
	UserKey []byte
	// GithubActionsKeyfunc resolves GitHub's published JWKS for the
	// actions OIDC issuer. When nil, GitHub Actions tokens are verified
	// with UserKey instead.
	GithubActionsKeyfunc jwt.Keyfunc
	// GcpKeyfunc resolves Google's published JWKS for service-account
	// identity tokens. When nil, GCP tokens are verified with UserKey
	// instead.
	GcpKeyfunc jwt.Keyfunc
	// SiteAdmins is the configured list of user ids with
	// managePackageOwnership.
	SiteAdmins map[string]bool
}

// Parse resolves tokenString to a registry.Agent. It first reads the
// issuer claim without verifying the signature (the claim alone decides
// which key to verify against), then verifies with the matching key.
func (v *Verifier) Parse(tokenString string) (registry.Agent, error) {
	var peek Claims
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, &peek); err != nil {
		return nil, &registry.Error{
			Op: "auth.Parse", Kind: registry.ErrMissingAuthentication,
			Message: "malformed bearer token", Inner: err,
		}
	}

	switch peek.Issuer {
	case IssuerUser:
		return v.parseUser(tokenString)
	case IssuerGithubActions:
		return v.parseGithubAction(tokenString)
	case IssuerGcp:
		return v.parseGcp(tokenString)
	default:
		return nil, &registry.Error{
			Op: "auth.Parse", Kind: registry.ErrMissingAuthentication,
			Message: fmt.Sprintf("unrecognized token issuer %q", peek.Issuer),
		}
	}
}

func (v *Verifier) parseUser(tokenString string) (registry.Agent, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.UserKey, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return nil, &registry.Error{Op: "auth.parseUser", Kind: registry.ErrMissingAuthentication, Inner: err}
	}
	return registry.AuthenticatedUser{
		UserID:    claims.Subject,
		Email:     claims.Email,
		SiteAdmin: v.SiteAdmins[claims.Subject],
	}, nil
}

func (v *Verifier) parseGithubAction(tokenString string) (registry.Agent, error) {
	claims := &Claims{}
	keyfunc := v.GithubActionsKeyfunc
	if keyfunc == nil {
		keyfunc = func(*jwt.Token) (any, error) { return v.UserKey, nil }
	}
	_, err := jwt.ParseWithClaims(tokenString, claims, keyfunc)
	if err != nil {
		return nil, &registry.Error{Op: "auth.parseGithubAction", Kind: registry.ErrMissingAuthentication, Inner: err}
	}
	return registry.AuthenticatedGithubAction{
		Repository:  claims.Repository,
		EventName:   claims.EventName,
		RefType:     claims.RefType,
		Ref:         claims.Ref,
		Environment: claims.Environment,
	}, nil
}

func (v *Verifier) parseGcp(tokenString string) (registry.Agent, error) {
	claims := &Claims{}
	keyfunc := v.GcpKeyfunc
	if keyfunc == nil {
		keyfunc = func(*jwt.Token) (any, error) { return v.UserKey, nil }
	}
	_, err := jwt.ParseWithClaims(tokenString, claims, keyfunc)
	if err != nil {
		return nil, &registry.Error{Op: "auth.parseGcp", Kind: registry.ErrMissingAuthentication, Inner: err}
	}
	return registry.AuthenticatedGcpServiceAccount{Email: claims.Email}, nil
}

// IssueUserToken mints an HS256 bearer token for userID, for use by
// tests; the registry's own token issuance is out
// of scope for the core, but something has to mint the tokens Parse verifies in
// tests and local development.
func IssueUserToken(key []byte, userID, email string) (string, error) {
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:  IssuerUser,
			Subject: userID,
		},
		Email: email,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString(key)
}
