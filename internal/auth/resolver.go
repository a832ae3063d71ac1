// This file implements the federated identity resolver: it completes the
// OAuth2 authorization-code exchange, validates the provider's identity
// claims (OIDC ID token or OAuth2 userinfo), and maps the provider subject
// to a local principal.
//
// The resolution pipeline is strictly ordered: code exchange, then claim
// validation, then principal mapping. Any error short-circuits to a terminal
// Failure; nothing is retried because the authorization code is single-use
// and already consumed by the first attempt.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jws"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/mlehotskylf-org/auth-gateway/internal/security"
)

// IdentityResolver completes a federated login. Exactly one of the return
// values of Resolve is non-nil.
type IdentityResolver interface {
	// AuthorizeURL builds the provider redirect for a new authorization
	// request.
	AuthorizeURL(state, nonce, codeChallenge string) (string, error)

	// Resolve exchanges the authorization code and maps the provider
	// identity to a local principal. expectedNonce comes from the consumed
	// transaction cookie.
	Resolve(ctx context.Context, code, codeVerifier, expectedNonce string) (*Result, *Failure)
}

// ProviderConfig describes one upstream identity provider.
type ProviderConfig struct {
	// Name identifies the provider in subject links (e.g. "auth0").
	Name string

	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string

	// Metadata skips discovery when set (explicit endpoints, tests).
	Metadata *ProviderMetadata

	// AutoProvision creates a local principal for unknown subjects.
	// When false, unknown subjects fail with BadCredentials.
	AutoProvision bool

	// LinkByEmail attaches an unknown subject to an existing account with
	// a matching email. Off by default: provider email claims are not
	// verified and must not take over existing accounts.
	LinkByEmail bool

	// Timeout bounds each provider call. Defaults to 8s.
	Timeout time.Duration
}

// Resolver implements IdentityResolver against a single provider.
type Resolver struct {
	cfg   ProviderConfig
	meta  *ProviderMetadata
	store UserStore
	keys  *jwk.Cache
	http  *http.Client
	log   *slog.Logger
}

// NewResolver builds a resolver, running discovery when no explicit metadata
// is configured and priming the JWKS cache for OIDC providers.
func NewResolver(ctx context.Context, cfg ProviderConfig, store UserStore, log *slog.Logger) (*Resolver, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("provider name is required")
	}
	if cfg.ClientID == "" {
		return nil, fmt.Errorf("client_id is required")
	}
	if cfg.RedirectURI == "" {
		return nil, fmt.Errorf("redirect_uri is required")
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "profile", "email"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 8 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	client := &http.Client{Timeout: cfg.Timeout}

	meta := cfg.Metadata
	if meta == nil {
		var err error
		meta, err = DiscoverProvider(ctx, client, cfg.Issuer)
		if err != nil {
			return nil, fmt.Errorf("provider discovery for %s: %w", cfg.Name, err)
		}
	}

	r := &Resolver{cfg: cfg, meta: meta, store: store, http: client, log: log}

	if r.usesOIDC() {
		if meta.JWKSURI == "" {
			return nil, fmt.Errorf("provider %s requests openid scope but has no jwks_uri", cfg.Name)
		}
		cache := jwk.NewCache(ctx)
		if err := cache.Register(meta.JWKSURI, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
			return nil, fmt.Errorf("registering JWKS for %s: %w", cfg.Name, err)
		}
		if _, err := cache.Refresh(ctx, meta.JWKSURI); err != nil {
			return nil, fmt.Errorf("fetching JWKS for %s: %w", cfg.Name, err)
		}
		r.keys = cache
	}

	return r, nil
}

// Metadata returns the provider endpoints in use.
func (r *Resolver) Metadata() *ProviderMetadata { return r.meta }

func (r *Resolver) usesOIDC() bool {
	for _, s := range r.cfg.Scopes {
		if s == "openid" {
			return true
		}
	}
	return false
}

// AuthorizeURL builds the provider authorization redirect for this resolver's
// client registration.
func (r *Resolver) AuthorizeURL(state, nonce, codeChallenge string) (string, error) {
	return BuildAuthorizeURL(AuthorizeParams{
		Endpoint:            r.meta.AuthorizationEndpoint,
		ClientID:            r.cfg.ClientID,
		RedirectURI:         r.cfg.RedirectURI,
		Scope:               strings.Join(r.cfg.Scopes, " "),
		State:               state,
		Nonce:               nonce,
		CodeChallenge:       codeChallenge,
		CodeChallengeMethod: "S256",
	})
}

// Resolve runs the code exchange and identity mapping. The caller has
// already verified the state token against the transaction cookie.
func (r *Resolver) Resolve(ctx context.Context, code, codeVerifier, expectedNonce string) (*Result, *Failure) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	tokens, err := r.exchangeCode(ctx, code, codeVerifier)
	if err != nil {
		r.log.Error("token exchange failed", "provider", r.cfg.Name, "error", err)
		return nil, NewFailure(ReasonProviderError, "token exchange failed: %v", err)
	}

	var profile *providerProfile
	if r.usesOIDC() {
		profile, err = r.validateIDToken(ctx, tokens.IDToken, expectedNonce)
	} else {
		profile, err = r.fetchUserinfo(ctx, tokens.AccessToken)
	}
	if err != nil {
		r.log.Error("profile validation failed", "provider", r.cfg.Name, "error", err)
		return nil, NewFailure(ReasonProviderError, "profile validation failed: %v", err)
	}

	return r.mapPrincipal(ctx, profile)
}

// tokenResponse is the OAuth2 token endpoint response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	IDToken     string `json:"id_token,omitempty"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

// tokenError is the OAuth2 error response from the token endpoint.
type tokenError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// exchangeCode swaps the authorization code for tokens using PKCE. The
// redirect_uri must match exactly what was sent on the authorize redirect.
func (r *Resolver) exchangeCode(ctx context.Context, code, codeVerifier string) (*tokenResponse, error) {
	data := url.Values{}
	data.Set("grant_type", "authorization_code")
	data.Set("client_id", r.cfg.ClientID)
	data.Set("code", code)
	data.Set("code_verifier", codeVerifier)
	data.Set("redirect_uri", r.cfg.RedirectURI)
	if r.cfg.ClientSecret != "" {
		data.Set("client_secret", r.cfg.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.meta.TokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading token response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var te tokenError
		if err := json.Unmarshal(body, &te); err != nil || te.Error == "" {
			return nil, fmt.Errorf("token exchange failed with status %d", resp.StatusCode)
		}
		// The provider's error code is safe to surface; descriptions are not.
		return nil, fmt.Errorf("token exchange failed: %s", te.Error)
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("parsing token response: %w", err)
	}
	if tr.AccessToken == "" {
		return nil, fmt.Errorf("invalid token response: missing access_token")
	}

	return &tr, nil
}

// providerProfile is the validated identity claimed by the provider.
type providerProfile struct {
	Subject string
	Email   string
	Name    string
}

// validateIDToken verifies the ID token's signature against the provider
// JWKS plus issuer, audience, and expiry, then checks the nonce claim
// against the value stored in the transaction cookie. No claim is trusted
// before these checks pass.
func (r *Resolver) validateIDToken(ctx context.Context, raw, expectedNonce string) (*providerProfile, error) {
	if raw == "" {
		return nil, fmt.Errorf("token response missing id_token")
	}

	keySet, err := r.keys.Get(ctx, r.meta.JWKSURI)
	if err != nil {
		return nil, fmt.Errorf("fetching JWKS: %w", err)
	}

	tok, err := jwt.Parse([]byte(raw),
		// Some providers omit alg from the ID token header
		jwt.WithKeySet(keySet, jws.WithInferAlgorithmFromKey(true)),
		jwt.WithIssuer(r.meta.Issuer),
		jwt.WithAudience(r.cfg.ClientID),
		jwt.WithValidate(true),
		jwt.WithAcceptableSkew(time.Minute),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid id token: %w", err)
	}

	nonce := stringClaim(tok, "nonce")
	if !security.ConstantTimeEqual([]byte(nonce), []byte(expectedNonce)) {
		return nil, fmt.Errorf("id token nonce mismatch")
	}

	sub := tok.Subject()
	if sub == "" {
		return nil, fmt.Errorf("id token missing sub claim")
	}

	return &providerProfile{
		Subject: sub,
		Email:   stringClaim(tok, "email"),
		Name:    stringClaim(tok, "name"),
	}, nil
}

func stringClaim(tok jwt.Token, name string) string {
	v, ok := tok.Get(name)
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// fetchUserinfo retrieves the profile for plain OAuth2 providers that issue
// no ID token.
func (r *Resolver) fetchUserinfo(ctx context.Context, accessToken string) (*providerProfile, error) {
	if r.meta.UserinfoEndpoint == "" {
		return nil, fmt.Errorf("provider has no userinfo endpoint")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.meta.UserinfoEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading userinfo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo request failed with status %d", resp.StatusCode)
	}

	var info struct {
		Sub   string `json:"sub"`
		Email string `json:"email,omitempty"`
		Name  string `json:"name,omitempty"`
	}
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("parsing userinfo response: %w", err)
	}
	if info.Sub == "" {
		return nil, fmt.Errorf("userinfo response missing sub claim")
	}

	return &providerProfile{Subject: info.Sub, Email: info.Email, Name: info.Name}, nil
}

// mapPrincipal resolves the provider subject to a local user, applying the
// configured provisioning and linking policy.
func (r *Resolver) mapPrincipal(ctx context.Context, p *providerProfile) (*Result, *Failure) {
	user, err := r.store.FindByProviderSubject(ctx, r.cfg.Name, p.Subject)
	switch {
	case err == nil:
		// known subject
	case errors.Is(err, ErrUserNotFound):
		user, err = r.provision(ctx, p)
		if err != nil {
			r.log.Info("federated login rejected", "provider", r.cfg.Name, "subject", p.Subject, "error", err)
			return nil, NewFailure(ReasonBadCredentials, "no local account for provider subject")
		}
	default:
		r.log.Error("subject lookup failed", "provider", r.cfg.Name, "error", err)
		return nil, NewFailure(ReasonProviderError, "subject lookup failed: %v", err)
	}

	if user.Disabled {
		r.log.Info("federated login rejected", "provider", r.cfg.Name, "principal", user.ID, "reason", ReasonAccountDisabled)
		return nil, NewFailure(ReasonAccountDisabled, "account is disabled")
	}

	r.log.Info("federated login succeeded", "provider", r.cfg.Name, "principal", user.ID)

	return &Result{
		PrincipalID: user.ID,
		Display: map[string]string{
			DisplayIdentifier: user.Identifier,
			DisplayName:       user.DisplayName,
			DisplayEmail:      user.Email,
		},
	}, nil
}

// provision handles a subject with no linked account: link by email when the
// policy allows it, otherwise create a fresh principal when auto-provision
// is on.
func (r *Resolver) provision(ctx context.Context, p *providerProfile) (*User, error) {
	if r.cfg.LinkByEmail && p.Email != "" {
		existing, err := r.store.FindByEmail(ctx, p.Email)
		if err == nil {
			if err := r.store.LinkProviderSubject(ctx, existing.ID, r.cfg.Name, p.Subject); err != nil {
				return nil, fmt.Errorf("linking subject: %w", err)
			}
			r.log.Info("linked provider subject to existing account", "provider", r.cfg.Name, "principal", existing.ID)
			return existing, nil
		}
		if !errors.Is(err, ErrUserNotFound) {
			return nil, fmt.Errorf("email lookup: %w", err)
		}
	}

	if !r.cfg.AutoProvision {
		return nil, fmt.Errorf("auto-provisioning disabled and subject not linked")
	}

	user := &User{
		Identifier:  r.cfg.Name + ":" + p.Subject,
		DisplayName: p.Name,
		Email:       p.Email,
	}
	if err := r.store.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	if err := r.store.LinkProviderSubject(ctx, user.ID, r.cfg.Name, p.Subject); err != nil {
		return nil, fmt.Errorf("linking subject: %w", err)
	}

	r.log.Info("auto-provisioned principal", "provider", r.cfg.Name, "principal", user.ID)
	return user, nil
}
