package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher is the pluggable password-hashing strategy. Compare must
// take the same time for any stored hash regardless of where the mismatch
// occurs.
type PasswordHasher interface {
	Hash(secret string) ([]byte, error)
	Compare(hash []byte, secret string) error
}

// BcryptHasher hashes passwords with bcrypt.
type BcryptHasher struct {
	// Cost defaults to bcrypt.DefaultCost when zero.
	Cost int
}

func (h BcryptHasher) cost() int {
	if h.Cost == 0 {
		return bcrypt.DefaultCost
	}
	return h.Cost
}

func (h BcryptHasher) Hash(secret string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost())
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	return hash, nil
}

func (h BcryptHasher) Compare(hash []byte, secret string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(secret))
}
