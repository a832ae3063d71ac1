// This file implements the authorization-request store: every in-flight
// OAuth2/OIDC authorization request is serialized into a signed transaction
// cookie instead of server-side session state.
//
// # Security Design
//
// The cookie format is:
//
//	base64url(JSON-payload) + "." + base64url(HMAC-SHA256 signature)
//
// HMAC provides tamper detection, not confidentiality; nothing secret to the
// browser is stored. The cookie is HttpOnly and short-lived (TTL bounded at
// five minutes). Primary/secondary signing keys allow zero-downtime key
// rotation. Consuming the cookie clears it, so each authorization request is
// redeemable exactly once.
package auth

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mlehotskylf-org/auth-gateway/internal/security"
)

// TxnCookieName is the name of the authorization-request transaction cookie.
const TxnCookieName = "ag_authn_txn"

// TxnV1 is the version identifier for transaction payload v1.
const TxnV1 = "v1"

// MaxTxnTTL bounds the authorization-request lifetime.
const MaxTxnTTL = 5 * time.Minute

// ErrTxnExpired marks a structurally valid transaction whose TTL has passed.
// Distinguished from tampering so the flow can report Expired vs InvalidState.
var ErrTxnExpired = errors.New("transaction expired")

// TxnPayloadV1 is the authorization-request record stored in the cookie.
type TxnPayloadV1 struct {
	V        string            `json:"v"`            // version, always "v1"
	State    string            `json:"st"`           // OAuth2 state token (CSRF defense)
	Nonce    string            `json:"no"`           // OIDC nonce for ID token replay protection
	CV       string            `json:"cv"`           // PKCE code_verifier
	ReturnTo string            `json:"ru,omitempty"` // sanitized SPA return URL
	Params   map[string]string `json:"p,omitempty"`  // extra provider parameters
	Iat      int64             `json:"iat"`          // issued at (unix)
	Exp      int64             `json:"exp"`          // expires at (unix)
}

// TxnOpts configures transaction cookie signing and transport attributes.
type TxnOpts struct {
	Domain       string
	TTL          time.Duration // capped at MaxTxnTTL
	Skew         time.Duration // clock skew allowance
	Secure       bool
	SigningKey   []byte
	SecondaryKey []byte // optional, for key rotation
}

// EncodeTxnV1 encodes and signs a transaction payload.
func EncodeTxnV1(p TxnPayloadV1, key []byte) (string, error) {
	if len(key) == 0 {
		return "", errors.New("signing key is required")
	}
	if p.V != TxnV1 {
		return "", fmt.Errorf("invalid version: expected %s, got %s", TxnV1, p.V)
	}
	if p.State == "" {
		return "", errors.New("State is required")
	}
	if p.Nonce == "" {
		return "", errors.New("Nonce is required")
	}
	if p.CV == "" {
		return "", errors.New("CV (code verifier) is required")
	}
	if p.Iat <= 0 {
		return "", errors.New("Iat must be positive")
	}
	if p.Exp <= p.Iat {
		return "", errors.New("Exp must be after Iat")
	}

	// State, CV, and Nonce are always generated as base64url; reject anything else.
	for name, val := range map[string]string{"State": p.State, "CV": p.CV, "Nonce": p.Nonce} {
		if _, err := base64.RawURLEncoding.DecodeString(val); err != nil {
			return "", fmt.Errorf("%s is not valid base64url: %w", name, err)
		}
	}

	jsonBytes, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	encodedPayload := base64.RawURLEncoding.EncodeToString(jsonBytes)
	signature := security.HMACSignSHA256(key, jsonBytes)
	encodedSignature := base64.RawURLEncoding.EncodeToString(signature)

	return encodedPayload + "." + encodedSignature, nil
}

// DecodeTxnV1 decodes and verifies a transaction cookie value. Expiry is
// reported as ErrTxnExpired (wrapped); every other failure means the value
// is missing, malformed, or tampered.
func DecodeTxnV1(s string, keyPrimary, keySecondary []byte, now time.Time, skew time.Duration) (TxnPayloadV1, error) {
	var zero TxnPayloadV1

	if s == "" {
		return zero, errors.New("cookie value is empty")
	}
	if len(keyPrimary) == 0 {
		return zero, errors.New("primary key is required")
	}
	if skew < 0 {
		return zero, errors.New("skew must be non-negative")
	}

	parts := strings.Split(s, ".")
	if len(parts) != 2 {
		return zero, errors.New("invalid format: expected payload.signature")
	}

	jsonBytes, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return zero, fmt.Errorf("failed to decode payload: %w", err)
	}
	signature, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return zero, fmt.Errorf("failed to decode signature: %w", err)
	}

	// Signature check happens before anything in the payload is trusted.
	expectedSig := security.HMACSignSHA256(keyPrimary, jsonBytes)
	validSig := security.ConstantTimeEqual(signature, expectedSig)
	if !validSig && len(keySecondary) > 0 {
		expectedSig = security.HMACSignSHA256(keySecondary, jsonBytes)
		validSig = security.ConstantTimeEqual(signature, expectedSig)
	}
	if !validSig {
		return zero, errors.New("invalid signature")
	}

	var p TxnPayloadV1
	if err := json.Unmarshal(jsonBytes, &p); err != nil {
		return zero, fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	if p.V != TxnV1 {
		return zero, fmt.Errorf("invalid version: expected %s, got %s", TxnV1, p.V)
	}

	iat := time.Unix(p.Iat, 0)
	exp := time.Unix(p.Exp, 0)

	// Issued-at may sit up to skew in the future.
	if !now.Add(skew).After(iat) {
		return zero, fmt.Errorf("transaction not yet valid: issued at %v, current time %v (with %v skew)", iat, now, skew)
	}
	// Expiry tolerates up to skew in the past.
	if !now.Add(-skew).Before(exp) {
		return zero, fmt.Errorf("%w: expired at %v, current time %v (with %v skew)", ErrTxnExpired, exp, now, skew)
	}

	if p.State == "" {
		return zero, errors.New("State is empty")
	}
	if p.Nonce == "" {
		return zero, errors.New("Nonce is empty")
	}
	if p.CV == "" {
		return zero, errors.New("CV is empty")
	}

	// PKCE code verifier length per RFC 7636
	if len(p.CV) < 43 || len(p.CV) > 128 {
		return zero, fmt.Errorf("CV length %d outside RFC 7636 range 43-128", len(p.CV))
	}

	return p, nil
}

// SetTxnCookie signs the payload and sets the transaction cookie. Iat/Exp
// are filled from now and the (capped) TTL.
func SetTxnCookie(w http.ResponseWriter, p TxnPayloadV1, opts TxnOpts, now time.Time) (string, error) {
	ttl := opts.TTL
	if ttl <= 0 || ttl > MaxTxnTTL {
		ttl = MaxTxnTTL
	}

	p.V = TxnV1
	p.Iat = now.Unix()
	p.Exp = now.Add(ttl).Unix()

	value, err := EncodeTxnV1(p, opts.SigningKey)
	if err != nil {
		return "", fmt.Errorf("failed to encode transaction: %w", err)
	}

	// Stay clear of the 4KB browser cookie limit with headroom for attributes.
	if len(value) > 3500 {
		return "", fmt.Errorf("cookie value too large: %d bytes exceeds 3500 byte limit", len(value))
	}

	http.SetCookie(w, &http.Cookie{
		Name:     TxnCookieName,
		Value:    value,
		Domain:   opts.Domain,
		Path:     "/",
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(p.Exp, 0),
		MaxAge:   int(ttl.Seconds()),
	})

	return value, nil
}

// ReadTxnCookie reads and verifies the transaction cookie from the request.
func ReadTxnCookie(r *http.Request, opts TxnOpts, now time.Time) (TxnPayloadV1, error) {
	cookie, err := r.Cookie(TxnCookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return TxnPayloadV1{}, errors.New("transaction cookie not found")
		}
		return TxnPayloadV1{}, fmt.Errorf("failed to read cookie: %w", err)
	}

	return DecodeTxnV1(cookie.Value, opts.SigningKey, opts.SecondaryKey, now, opts.Skew)
}

// ClearTxnCookie expires the transaction cookie.
func ClearTxnCookie(w http.ResponseWriter, opts TxnOpts) {
	http.SetCookie(w, &http.Cookie{
		Name:     TxnCookieName,
		Value:    "",
		Domain:   opts.Domain,
		Path:     "/",
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}

// ConsumeTxn reads the transaction cookie, checks the callback state token
// in constant time, and clears the cookie so the record is single-use. The
// cookie is cleared on every outcome, success or failure, so a replayed
// callback finds nothing to consume.
func ConsumeTxn(w http.ResponseWriter, r *http.Request, state string, opts TxnOpts, now time.Time) (TxnPayloadV1, *Failure) {
	defer ClearTxnCookie(w, opts)

	p, err := ReadTxnCookie(r, opts, now)
	if err != nil {
		if errors.Is(err, ErrTxnExpired) {
			return TxnPayloadV1{}, NewFailure(ReasonExpired, "authorization request expired: %v", err)
		}
		return TxnPayloadV1{}, NewFailure(ReasonInvalidState, "no valid authorization request: %v", err)
	}

	if !security.ConstantTimeEqual([]byte(state), []byte(p.State)) {
		return TxnPayloadV1{}, NewFailure(ReasonInvalidState, "state token mismatch")
	}

	return p, nil
}
