package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenIssuer mints the application bearer token for an authenticated
// principal. Implementations decide the token format.
type TokenIssuer interface {
	Issue(ctx context.Context, res *Result) (string, error)
}

// JWTIssuer issues HS256 JWTs carrying the principal id as subject plus the
// non-sensitive display attributes.
type JWTIssuer struct {
	Secret []byte
	Issuer string
	TTL    time.Duration // defaults to 1h

	// now is overridable in tests
	now func() time.Time
}

func (i *JWTIssuer) ttl() time.Duration {
	if i.TTL <= 0 {
		return time.Hour
	}
	return i.TTL
}

func (i *JWTIssuer) clock() time.Time {
	if i.now != nil {
		return i.now()
	}
	return time.Now()
}

// Issue mints a signed bearer token for the result's principal.
func (i *JWTIssuer) Issue(_ context.Context, res *Result) (string, error) {
	if len(i.Secret) == 0 {
		return "", fmt.Errorf("signing secret is required")
	}
	if res == nil || res.PrincipalID == "" {
		return "", fmt.Errorf("principal id is required")
	}

	now := i.clock()
	claims := jwt.MapClaims{
		"iss": i.Issuer,
		"sub": res.PrincipalID,
		"iat": now.Unix(),
		"exp": now.Add(i.ttl()).Unix(),
	}
	if v := res.Display[DisplayIdentifier]; v != "" {
		claims["identifier"] = v
	}
	if v := res.Display[DisplayName]; v != "" {
		claims["name"] = v
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.Secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Validate parses a bearer token and returns the subject. Used by tests and
// by downstream services sharing the signing secret.
func (i *JWTIssuer) Validate(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return i.Secret, nil
	}, jwt.WithIssuer(i.Issuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("token missing subject")
	}
	return sub, nil
}
