package auth

import (
	"context"
	"errors"
	"log/slog"
)

// CredentialVerifier validates an identifier/secret pair. Exactly one of the
// return values is non-nil.
type CredentialVerifier interface {
	Verify(ctx context.Context, identifier, secret string) (*Result, *Failure)
}

// Verifier checks credentials against a user store with a pluggable hashing
// strategy. Unknown identifiers and wrong secrets produce the same failure
// with indistinguishable timing.
type Verifier struct {
	Store  UserStore
	Hasher PasswordHasher
	Log    *slog.Logger

	// dummyHash absorbs a hash comparison when the user does not exist so
	// lookup misses take as long as secret mismatches.
	dummyHash []byte
}

// NewVerifier builds a Verifier. The dummy hash is derived once at
// construction so Verify never hashes on the request path for missing users.
func NewVerifier(store UserStore, hasher PasswordHasher, log *slog.Logger) (*Verifier, error) {
	if log == nil {
		log = slog.Default()
	}
	dummy, err := hasher.Hash("auth-gateway-timing-equalizer")
	if err != nil {
		return nil, err
	}
	return &Verifier{Store: store, Hasher: hasher, Log: log, dummyHash: dummy}, nil
}

// Verify looks up the principal and compares the secret. The disabled check
// runs after the secret comparison so account state never shows up as a
// timing difference.
func (v *Verifier) Verify(ctx context.Context, identifier, secret string) (*Result, *Failure) {
	user, err := v.Store.FindByIdentifier(ctx, identifier)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			v.Log.Error("user lookup failed", "identifier", identifier, "error", err)
		}
		// Burn a comparison so a miss costs the same as a mismatch.
		_ = v.Hasher.Compare(v.dummyHash, secret)
		v.Log.Info("login rejected", "identifier", identifier, "reason", ReasonBadCredentials)
		return nil, NewFailure(ReasonBadCredentials, "unknown identifier or wrong secret")
	}

	if err := v.Hasher.Compare(user.PasswordHash, secret); err != nil {
		v.Log.Info("login rejected", "identifier", identifier, "reason", ReasonBadCredentials)
		return nil, NewFailure(ReasonBadCredentials, "unknown identifier or wrong secret")
	}

	if user.Disabled {
		v.Log.Info("login rejected", "identifier", identifier, "reason", ReasonAccountDisabled)
		return nil, NewFailure(ReasonAccountDisabled, "account is disabled")
	}

	v.Log.Info("login succeeded", "identifier", identifier, "principal", user.ID)

	return &Result{
		PrincipalID: user.ID,
		Display: map[string]string{
			DisplayIdentifier: user.Identifier,
			DisplayName:       user.DisplayName,
			DisplayEmail:      user.Email,
		},
	}, nil
}
