package auth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// AuthorizeParams contains the parameters for an OAuth2/OIDC authorization
// redirect, per RFC 6749 and OpenID Connect Core 1.0.
type AuthorizeParams struct {
	Endpoint    string // provider authorization endpoint (absolute URL)
	ClientID    string
	RedirectURI string // callback URL, must match the token exchange exactly
	Scope       string // space-separated scopes
	State       string // CSRF protection token, required
	Nonce       string // OIDC replay protection, required when scope has "openid"

	// PKCE (RFC 7636)
	CodeChallenge       string
	CodeChallengeMethod string // "S256"

	Prompt string // optional, e.g. "login" or "consent"
}

// BuildAuthorizeURL constructs the authorization redirect URL with all
// parameters encoded per RFC 3986.
func BuildAuthorizeURL(p AuthorizeParams) (string, error) {
	if p.Endpoint == "" {
		return "", errors.New("authorization endpoint is required")
	}
	if p.ClientID == "" {
		return "", errors.New("client_id is required")
	}
	if p.RedirectURI == "" {
		return "", errors.New("redirect_uri is required")
	}
	if p.Scope == "" {
		return "", errors.New("scope is required")
	}
	if p.State == "" {
		return "", errors.New("state is required for CSRF protection")
	}
	if strings.Contains(p.Scope, "openid") && p.Nonce == "" {
		return "", errors.New("nonce is required for OpenID Connect flows")
	}
	if p.CodeChallenge != "" && p.CodeChallengeMethod == "" {
		return "", errors.New("code_challenge_method is required when using PKCE")
	}
	if p.CodeChallengeMethod != "" && p.CodeChallenge == "" {
		return "", errors.New("code_challenge is required when code_challenge_method is set")
	}
	if p.CodeChallengeMethod != "" && p.CodeChallengeMethod != "S256" && p.CodeChallengeMethod != "plain" {
		return "", fmt.Errorf("invalid code_challenge_method: %s (must be 'S256' or 'plain')", p.CodeChallengeMethod)
	}

	u, err := url.Parse(p.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid authorization endpoint: %w", err)
	}
	if !u.IsAbs() {
		return "", fmt.Errorf("authorization endpoint must be absolute, got %q", p.Endpoint)
	}

	q := url.Values{}
	q.Set("response_type", "code")
	q.Set("client_id", p.ClientID)
	q.Set("redirect_uri", p.RedirectURI)
	q.Set("scope", p.Scope)
	q.Set("state", p.State)

	if p.Nonce != "" {
		q.Set("nonce", p.Nonce)
	}
	if p.CodeChallenge != "" {
		q.Set("code_challenge", p.CodeChallenge)
		q.Set("code_challenge_method", p.CodeChallengeMethod)
	}
	if p.Prompt != "" {
		q.Set("prompt", p.Prompt)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}
