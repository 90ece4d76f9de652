// Package auth implements the stateless identity layer shared by every
// transport: the token codec, the bearer-token extractor, the HTTP
// authentication middleware, and the account registration/login service.
package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/parley-chat/parley/internal/shared"
)

// RolesClaim is the token claim carrying the principal's authorities as a
// single comma-joined string. Every verifying service must agree on it.
const RolesClaim = "roles"

type tokenClaims struct {
	Roles string `json:"roles"`
	jwt.RegisteredClaims
}

// Codec issues and verifies signed identity tokens. The same symmetric
// secret must be configured on every service instance that verifies tokens.
type Codec struct {
	secret []byte
	ttl    time.Duration
}

// NewCodec constructs a Codec signing with secret and issuing tokens valid
// for ttl.
func NewCodec(secret string, ttl time.Duration) *Codec {
	return &Codec{secret: []byte(secret), ttl: ttl}
}

// TTL returns the configured token lifetime.
func (c *Codec) TTL() time.Duration { return c.ttl }

// Issue produces a signed token for subject with issuedAt=now and
// expiresAt=now+TTL. Authorities are joined into a single roles claim.
func (c *Codec) Issue(subject string, authorities []string, now time.Time) (string, error) {
	claims := tokenClaims{
		Roles: strings.Join(authorities, ","),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.secret)
}

// Verify parses and validates raw against the shared secret at time now.
// It returns nil for any failure: bad signature, malformed payload,
// unexpected signing method, or expiry. Absence of a valid principal is a
// value here, never an error; downstream access checks decide what
// anonymous callers may do. Expiry is checked against now with no leeway.
func (c *Codec) Verify(raw string, now time.Time) *shared.Principal {
	claims := &tokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil || !token.Valid {
		return nil
	}

	var authorities []string
	if claims.Roles != "" {
		authorities = strings.Split(claims.Roles, ",")
	}
	return &shared.Principal{Subject: claims.Subject, Authorities: authorities}
}
