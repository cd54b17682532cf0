// Package sqlite is the sqlite-backed driver for the session token store.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/resumade/resumade/pkg/authapi"
	"github.com/resumade/resumade/pkg/cryptox"
	"github.com/resumade/resumade/pkg/slogx"

	_ "modernc.org/sqlite"
)

type Store struct {
	db  *sql.DB
	dsn string
}

func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// Enforce FKs
	if _, err := db.ExecContext(context.Background(), `PRAGMA foreign_keys = ON;`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{
		db:  db,
		dsn: dsn,
	}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Read returns the persisted token pair, or (nil, nil) when absent or
// damaged. A refresh token that no longer unseals counts as damage: the
// row was written under a different machine key or tampered with, and
// either way the session cannot be resumed from it.
func (s *Store) Read(ctx context.Context) (*authapi.TokenPair, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT access_token, refresh_token_sealed, token_type, expires_at
		FROM session WHERE id = 1`)

	var (
		accessToken string
		sealed      []byte
		tokenType   string
		expiresAt   time.Time
	)
	if err := row.Scan(&accessToken, &sealed, &tokenType, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	refreshToken, err := cryptox.Open(sealed)
	if err != nil {
		slogx.FromContext(ctx).Warn("stored refresh token failed to unseal, treating as absent", "error", err)
		return nil, nil
	}

	if accessToken == "" || len(refreshToken) == 0 {
		return nil, nil
	}

	return &authapi.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: string(refreshToken),
		TokenType:    tokenType,
		ExpiresAt:    expiresAt.UTC(),
	}, nil
}

// ReadUser returns the cached session user, or (nil, nil) when absent or
// unparseable.
func (s *Store) ReadUser(ctx context.Context) (*authapi.SessionUser, error) {
	row := s.db.QueryRowContext(ctx, `SELECT user_json FROM session WHERE id = 1`)

	var userJSON sql.NullString
	if err := row.Scan(&userJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	if !userJSON.Valid || userJSON.String == "" {
		return nil, nil
	}

	var user authapi.SessionUser
	if err := json.Unmarshal([]byte(userJSON.String), &user); err != nil {
		slogx.FromContext(ctx).Warn("cached user failed to parse, treating as absent", "error", err)
		return nil, nil
	}

	return &user, nil
}

// Write persists the pair and the cached user in a single upsert, so a
// reader never observes a half-written pair. A nil user keeps whatever
// identity the previous write cached.
func (s *Store) Write(ctx context.Context, pair authapi.TokenPair, user *authapi.SessionUser) error {
	sealed, err := cryptox.Seal([]byte(pair.RefreshToken))
	if err != nil {
		return err
	}

	var userJSON sql.NullString
	if user != nil {
		data, err := json.Marshal(user)
		if err != nil {
			return err
		}
		userJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO session (id, access_token, refresh_token_sealed, token_type, expires_at, user_json, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			access_token         = excluded.access_token,
			refresh_token_sealed = excluded.refresh_token_sealed,
			token_type           = excluded.token_type,
			expires_at           = excluded.expires_at,
			user_json            = COALESCE(excluded.user_json, session.user_json),
			updated_at           = CURRENT_TIMESTAMP`,
		pair.AccessToken, sealed, pair.TokenType, pair.ExpiresAt.UTC(), userJSON,
	)
	return err
}

// Clear removes the session row. Idempotent.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM session WHERE id = 1`)
	return err
}

// ExecForTesting runs an arbitrary statement against the underlying
// database. This should ONLY be used in tests, to simulate storage damage.
func (s *Store) ExecForTesting(ctx context.Context, query string, args ...any) error {
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}
