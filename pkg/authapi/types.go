package authapi

import (
	"context"
	"time"
)

// TokenPair is the access/refresh credential pair issued by the identity
// provider. ExpiresAt is always derived from the server-declared lifetime
// at write time, never guessed.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
}

// IsExpired reports whether the pair is past its expiry at now.
func (p TokenPair) IsExpired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// DueForRefresh reports whether the pair is within skew of expiry.
// Refreshing ahead of the boundary avoids a request racing expiry.
func (p TokenPair) DueForRefresh(now time.Time, skew time.Duration) bool {
	return !now.Before(p.ExpiresAt.Add(-skew))
}

// SessionUser is the authenticated account identity cached alongside the
// token pair. It is stale the moment the pair is cleared.
type SessionUser struct {
	ID        string         `json:"id"`
	Email     string         `json:"email"`
	CreatedAt time.Time      `json:"created_at"`
	Profile   map[string]any `json:"personal_info,omitempty"`
}

// TokenWriter is the write surface of the token store the gateway updates
// on successful network results. A nil user on Write keeps the cached
// identity as is.
type TokenWriter interface {
	Write(ctx context.Context, pair TokenPair, user *SessionUser) error
	Clear(ctx context.Context) error
}

// tokenResponse is the wire shape of login/register/refresh successes.
type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in,omitempty"`
	User         *SessionUser `json:"user,omitempty"`
}

// registerRequest is the JSON body for POST /auth/register.
type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// refreshRequest is the JSON body for POST /auth/refresh.
type refreshRequest struct {
	Token string `json:"token"`
}
