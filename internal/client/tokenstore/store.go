// Package tokenstore defines the durable persistence contract for the
// session's token pair and cached identity. It is pure data access: no
// network calls, no broadcasting, no policy.
package tokenstore

import (
	"context"

	"github.com/resumade/resumade/pkg/authapi"
)

// Store persists the token pair and the cached session user. The pair and
// the user live and die together: Write updates them as a unit and Clear
// removes both.
//
// Read returns (nil, nil) when no pair is persisted, including when the
// stored row is corrupted or partially written. Storage damage is treated
// as absence, never surfaced as an error to policy code.
type Store interface {
	Read(ctx context.Context) (*authapi.TokenPair, error)
	ReadUser(ctx context.Context) (*authapi.SessionUser, error)

	// Write persists the pair atomically. A nil user keeps the cached
	// identity from the previous write (the refresh path has no user to
	// offer). Store satisfies authapi.TokenWriter through this method.
	Write(ctx context.Context, pair authapi.TokenPair, user *authapi.SessionUser) error

	// Clear removes the pair and the cached user. Idempotent.
	Clear(ctx context.Context) error
}
