package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// fakeProvider is an httptest OIDC provider: a JWKS endpoint, a token
// endpoint minting RS256 ID tokens, and a userinfo endpoint.
type fakeProvider struct {
	srv     *httptest.Server
	signKey jwk.Key
	pubSet  jwk.Set

	issuer   string
	clientID string

	// claims baked into minted ID tokens and userinfo responses
	subject string
	email   string
	name    string
	nonce   string

	// tokenErr, when set, makes the token endpoint return a 400 with this
	// OAuth2 error code.
	tokenErr string

	lastTokenForm url.Values
}

func newFakeProvider(t *testing.T) *fakeProvider {
	t.Helper()

	raw, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generating RSA key: %v", err)
	}
	signKey, err := jwk.FromRaw(raw)
	if err != nil {
		t.Fatalf("building JWK: %v", err)
	}
	if err := signKey.Set(jwk.KeyIDKey, "test-key-1"); err != nil {
		t.Fatalf("setting kid: %v", err)
	}
	if err := signKey.Set(jwk.AlgorithmKey, jwa.RS256); err != nil {
		t.Fatalf("setting alg: %v", err)
	}

	pub, err := signKey.PublicKey()
	if err != nil {
		t.Fatalf("deriving public key: %v", err)
	}
	pubSet := jwk.NewSet()
	if err := pubSet.AddKey(pub); err != nil {
		t.Fatalf("building key set: %v", err)
	}

	fp := &fakeProvider{
		signKey:  signKey,
		pubSet:   pubSet,
		issuer:   "https://op.test",
		clientID: "client-123",
		subject:  "subject-1",
		email:    "alice@example.com",
		name:     "Alice Example",
		nonce:    "bm9uY2UtdG9rZW4",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/jwks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(fp.pubSet)
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		fp.lastTokenForm = r.PostForm

		w.Header().Set("Content-Type", "application/json")
		if fp.tokenErr != "" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintf(w, `{"error":%q}`, fp.tokenErr)
			return
		}

		idToken, err := fp.mintIDToken()
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"access_token": "at-12345",
			"id_token":     idToken,
			"token_type":   "Bearer",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"sub":   fp.subject,
			"email": fp.email,
			"name":  fp.name,
		})
	})

	fp.srv = httptest.NewServer(mux)
	t.Cleanup(fp.srv.Close)
	return fp
}

func (fp *fakeProvider) mintIDToken() (string, error) {
	tok := jwt.New()
	claims := map[string]any{
		jwt.IssuerKey:     fp.issuer,
		jwt.SubjectKey:    fp.subject,
		jwt.AudienceKey:   fp.clientID,
		jwt.IssuedAtKey:   time.Now(),
		jwt.ExpirationKey: time.Now().Add(time.Hour),
		"nonce":           fp.nonce,
		"email":           fp.email,
		"name":            fp.name,
	}
	for k, v := range claims {
		if err := tok.Set(k, v); err != nil {
			return "", err
		}
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.RS256, fp.signKey))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}

func (fp *fakeProvider) metadata() *ProviderMetadata {
	return &ProviderMetadata{
		Issuer:                fp.issuer,
		AuthorizationEndpoint: fp.srv.URL + "/authorize",
		TokenEndpoint:         fp.srv.URL + "/token",
		UserinfoEndpoint:      fp.srv.URL + "/userinfo",
		JWKSURI:               fp.srv.URL + "/jwks",
	}
}

func (fp *fakeProvider) config() ProviderConfig {
	return ProviderConfig{
		Name:          "fakeidp",
		Issuer:        fp.issuer,
		ClientID:      fp.clientID,
		RedirectURI:   "https://gw.example.com/api/auth/callback",
		Metadata:      fp.metadata(),
		AutoProvision: true,
	}
}

func newTestResolver(t *testing.T, fp *fakeProvider, cfg ProviderConfig, store UserStore) *Resolver {
	t.Helper()
	r, err := NewResolver(context.Background(), cfg, store, nil)
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	return r
}

func TestResolveAutoProvision(t *testing.T) {
	fp := newFakeProvider(t)
	store := NewMemoryUserStore()
	r := newTestResolver(t, fp, fp.config(), store)

	res, fail := r.Resolve(context.Background(), "code-1", testCV, fp.nonce)
	if fail != nil {
		t.Fatalf("Resolve failed: %v", fail)
	}
	if res.PrincipalID == "" {
		t.Error("expected a principal ID")
	}
	if got := res.Display[DisplayIdentifier]; got != "fakeidp:subject-1" {
		t.Errorf("Display[identifier] = %q, want %q", got, "fakeidp:subject-1")
	}
	if got := res.Display[DisplayEmail]; got != "alice@example.com" {
		t.Errorf("Display[email] = %q, want %q", got, "alice@example.com")
	}

	// The code exchange must carry PKCE and the exact redirect URI.
	form := fp.lastTokenForm
	if form.Get("grant_type") != "authorization_code" {
		t.Errorf("grant_type = %q", form.Get("grant_type"))
	}
	if form.Get("code") != "code-1" {
		t.Errorf("code = %q", form.Get("code"))
	}
	if form.Get("code_verifier") != testCV {
		t.Errorf("code_verifier = %q", form.Get("code_verifier"))
	}
	if form.Get("redirect_uri") != "https://gw.example.com/api/auth/callback" {
		t.Errorf("redirect_uri = %q", form.Get("redirect_uri"))
	}

	// A second login with the same subject maps to the same principal.
	res2, fail := r.Resolve(context.Background(), "code-2", testCV, fp.nonce)
	if fail != nil {
		t.Fatalf("second Resolve failed: %v", fail)
	}
	if res2.PrincipalID != res.PrincipalID {
		t.Errorf("repeat login got principal %q, want %q", res2.PrincipalID, res.PrincipalID)
	}
}

func TestResolveTokenEndpointError(t *testing.T) {
	fp := newFakeProvider(t)
	fp.tokenErr = "invalid_grant"
	r := newTestResolver(t, fp, fp.config(), NewMemoryUserStore())

	res, fail := r.Resolve(context.Background(), "bad-code", testCV, fp.nonce)
	if res != nil {
		t.Fatal("expected no result")
	}
	if fail == nil || fail.Reason != ReasonProviderError {
		t.Fatalf("expected ProviderError, got %v", fail)
	}
	if !strings.Contains(fail.Message, "invalid_grant") {
		t.Errorf("failure message %q should surface the provider error code", fail.Message)
	}
}

func TestResolveNonceMismatch(t *testing.T) {
	fp := newFakeProvider(t)
	r := newTestResolver(t, fp, fp.config(), NewMemoryUserStore())

	res, fail := r.Resolve(context.Background(), "code-1", testCV, "ZGlmZmVyZW50LW5vbmNl")
	if res != nil {
		t.Fatal("expected no result for nonce mismatch")
	}
	if fail == nil || fail.Reason != ReasonProviderError {
		t.Fatalf("expected ProviderError, got %v", fail)
	}
}

func TestResolveWrongIssuerRejected(t *testing.T) {
	fp := newFakeProvider(t)
	cfg := fp.config()
	r := newTestResolver(t, fp, cfg, NewMemoryUserStore())

	fp.issuer = "https://evil.test"
	res, fail := r.Resolve(context.Background(), "code-1", testCV, fp.nonce)
	if res != nil {
		t.Fatal("expected no result for wrong issuer")
	}
	if fail == nil || fail.Reason != ReasonProviderError {
		t.Fatalf("expected ProviderError, got %v", fail)
	}
}

func TestResolveAutoProvisionDisabled(t *testing.T) {
	fp := newFakeProvider(t)
	cfg := fp.config()
	cfg.AutoProvision = false
	r := newTestResolver(t, fp, cfg, NewMemoryUserStore())

	res, fail := r.Resolve(context.Background(), "code-1", testCV, fp.nonce)
	if res != nil {
		t.Fatal("expected no result")
	}
	if fail == nil || fail.Reason != ReasonBadCredentials {
		t.Fatalf("expected BadCredentials, got %v", fail)
	}
}

func TestResolveLinkByEmail(t *testing.T) {
	fp := newFakeProvider(t)
	store := NewMemoryUserStore()

	existing := &User{
		Identifier:  "alice",
		DisplayName: "Alice Example",
		Email:       "alice@example.com",
	}
	if err := store.Create(context.Background(), existing); err != nil {
		t.Fatalf("create user failed: %v", err)
	}

	cfg := fp.config()
	cfg.LinkByEmail = true
	r := newTestResolver(t, fp, cfg, store)

	res, fail := r.Resolve(context.Background(), "code-1", testCV, fp.nonce)
	if fail != nil {
		t.Fatalf("Resolve failed: %v", fail)
	}
	if res.PrincipalID != existing.ID {
		t.Errorf("principal = %q, want existing account %q", res.PrincipalID, existing.ID)
	}

	linked, err := store.FindByProviderSubject(context.Background(), "fakeidp", "subject-1")
	if err != nil {
		t.Fatalf("subject link not persisted: %v", err)
	}
	if linked.ID != existing.ID {
		t.Errorf("subject linked to %q, want %q", linked.ID, existing.ID)
	}
}

func TestResolveLinkByEmailOffKeepsAccountsSeparate(t *testing.T) {
	fp := newFakeProvider(t)
	store := NewMemoryUserStore()

	existing := &User{Identifier: "alice", Email: "alice@example.com"}
	if err := store.Create(context.Background(), existing); err != nil {
		t.Fatalf("create user failed: %v", err)
	}

	r := newTestResolver(t, fp, fp.config(), store)

	res, fail := r.Resolve(context.Background(), "code-1", testCV, fp.nonce)
	if fail != nil {
		t.Fatalf("Resolve failed: %v", fail)
	}
	if res.PrincipalID == existing.ID {
		t.Error("subject must not attach to an existing account by email claim alone")
	}
}

func TestResolveDisabledAccount(t *testing.T) {
	fp := newFakeProvider(t)
	store := NewMemoryUserStore()

	disabled := &User{Identifier: "mallory", Disabled: true}
	if err := store.Create(context.Background(), disabled); err != nil {
		t.Fatalf("create user failed: %v", err)
	}
	if err := store.LinkProviderSubject(context.Background(), disabled.ID, "fakeidp", "subject-1"); err != nil {
		t.Fatalf("link failed: %v", err)
	}

	r := newTestResolver(t, fp, fp.config(), store)

	res, fail := r.Resolve(context.Background(), "code-1", testCV, fp.nonce)
	if res != nil {
		t.Fatal("expected no result for disabled account")
	}
	if fail == nil || fail.Reason != ReasonAccountDisabled {
		t.Fatalf("expected AccountDisabled, got %v", fail)
	}
}

func TestResolveUserinfoFallback(t *testing.T) {
	fp := newFakeProvider(t)
	cfg := fp.config()
	cfg.Scopes = []string{"profile", "email"} // no openid scope, no ID token path

	r := newTestResolver(t, fp, cfg, NewMemoryUserStore())

	res, fail := r.Resolve(context.Background(), "code-1", testCV, "")
	if fail != nil {
		t.Fatalf("Resolve failed: %v", fail)
	}
	if got := res.Display[DisplayIdentifier]; got != "fakeidp:subject-1" {
		t.Errorf("Display[identifier] = %q, want %q", got, "fakeidp:subject-1")
	}
}

func TestResolverAuthorizeURL(t *testing.T) {
	fp := newFakeProvider(t)
	r := newTestResolver(t, fp, fp.config(), NewMemoryUserStore())

	raw, err := r.AuthorizeURL("c3RhdGUtdG9rZW4", "bm9uY2UtdG9rZW4", "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM")
	if err != nil {
		t.Fatalf("AuthorizeURL failed: %v", err)
	}

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("result is not a valid URL: %v", err)
	}
	if !strings.HasPrefix(raw, fp.srv.URL+"/authorize") {
		t.Errorf("URL %q does not target the authorization endpoint", raw)
	}
	q := u.Query()
	if q.Get("client_id") != fp.clientID {
		t.Errorf("client_id = %q", q.Get("client_id"))
	}
	if q.Get("code_challenge_method") != "S256" {
		t.Errorf("code_challenge_method = %q", q.Get("code_challenge_method"))
	}
	if q.Get("scope") != "openid profile email" {
		t.Errorf("scope = %q", q.Get("scope"))
	}
}
