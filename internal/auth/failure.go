// Package auth implements the authentication core: credential verification,
// the signed authorization-request cookie, the federated identity resolver,
// bearer-token issuance, and one-time exchange codes. HTTP handlers live in
// internal/http and depend on this package through small interfaces.
package auth

import "fmt"

// Reason classifies a terminal authentication failure. Failures are never
// retried automatically; the client must re-initiate the flow.
type Reason string

const (
	// ReasonBadCredentials covers both unknown identifiers and wrong
	// secrets, which must be externally indistinguishable.
	ReasonBadCredentials Reason = "BadCredentials"

	// ReasonAccountDisabled means the principal exists but is locked.
	ReasonAccountDisabled Reason = "AccountDisabled"

	// ReasonInvalidState means the OAuth2 state check failed: missing or
	// tampered transaction cookie, or a state token mismatch.
	ReasonInvalidState Reason = "InvalidState"

	// ReasonProviderError means the identity provider could not be reached
	// or returned a protocol error.
	ReasonProviderError Reason = "ProviderError"

	// ReasonExpired means the authorization request outlived its TTL.
	ReasonExpired Reason = "Expired"
)

// Failure is an immutable authentication failure, constructed at the point
// of failure and propagated unchanged to the outcome handler. Message is
// internal; the outcome handler decides what the client sees.
type Failure struct {
	Reason  Reason
	Message string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Reason, f.Message)
}

// NewFailure builds a failure with a formatted internal message.
func NewFailure(reason Reason, format string, args ...any) *Failure {
	return &Failure{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

// Result is produced once per successful authentication and handed to the
// outcome handler. Display holds non-sensitive attributes for the user
// summary; Token is filled in by the outcome handler when it mints the
// bearer token.
type Result struct {
	PrincipalID string
	Display     map[string]string
	Token       string
}

// Display attribute keys shared between the verifier, the resolver, and the
// outcome handlers.
const (
	DisplayIdentifier = "identifier"
	DisplayName       = "name"
	DisplayEmail      = "email"
)
