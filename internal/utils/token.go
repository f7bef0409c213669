// Package utils provides helpers for issuing and identifying
// reservation sessions.
package utils

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionToken is a signed HS256 JWT identifying one reservation
// session owner, plus its expiry.  The owner may be an anonymous guest;
// the token is the opaque Session/Owner identity every hold is scoped
// to.  Tying tokens to real user accounts is an identity-provider
// concern outside this service.
type SessionToken struct {
	Token   string    // the serialized JWT string
	OwnerID string    // the owner the token identifies
	Exp     time.Time // the UTC expiration time
}

// NewSessionToken mints a token for a fresh random owner ID.  The JWT
// carries the standard subject (sub), expiration (exp) and issued-at
// (iat) claims.
func NewSessionToken(secret string, ttlMin int) (SessionToken, error) {
	ownerID, err := randomHex(16)
	if err != nil {
		return SessionToken{}, err
	}
	exp := time.Now().UTC().Add(time.Duration(ttlMin) * time.Minute)
	claims := jwt.MapClaims{
		"sub": ownerID,
		"exp": exp.Unix(),
		"iat": time.Now().UTC().Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return SessionToken{}, err
	}
	return SessionToken{Token: signed, OwnerID: ownerID, Exp: exp}, nil
}

// randomHex returns a hex-encoded string generated from n bytes of
// cryptographically secure random data.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
