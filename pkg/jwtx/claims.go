package jwtx

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed reports a token string that could not be decoded at all.
var ErrMalformed = errors.New("jwtx: malformed token")

// ErrNoExpiry reports a decodable token that carries no exp claim.
var ErrNoExpiry = errors.New("jwtx: token has no expiry claim")

// Claims are the access-token claims the identity provider issues. The
// client never verifies signatures; the provider is the authority and the
// claims are only used for display and expiry scheduling.
type Claims struct {
	jwt.RegisteredClaims

	// Email of the authenticated account
	Email string `json:"email,omitempty"`

	// Name is the display name for the account
	Name string `json:"name,omitempty"`
}

// ParseUnverified decodes a JWT without verifying its signature.
// Use only for client-side inspection of tokens received over TLS from
// the provider; never for authorisation decisions.
func ParseUnverified(token string) (*Claims, error) {
	var claims Claims

	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, &claims); err != nil {
		return nil, ErrMalformed
	}

	return &claims, nil
}

// Expiry extracts the exp claim from a JWT without verification.
// Returns ErrNoExpiry when the token decodes but carries no exp claim.
func Expiry(token string) (time.Time, error) {
	claims, err := ParseUnverified(token)
	if err != nil {
		return time.Time{}, err
	}

	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}

	return claims.ExpiresAt.Time.UTC(), nil
}
