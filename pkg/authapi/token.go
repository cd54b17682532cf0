package authapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Login authenticates with the password grant.
// On success the token store is written before returning. On failure no
// write happens; a 401 is classified as InvalidCredentials.
func (c *Client) Login(ctx context.Context, email, password string) (*TokenPair, *SessionUser, error) {
	data := url.Values{
		"grant_type": {"password"},
		"username":   {email},
		"password":   {password},
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/login",
		strings.NewReader(data.Encode()),
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
	)
	if err != nil {
		return nil, nil, err
	}

	return c.finishTokenGrant(ctx, resp, func(status int) ErrorKind {
		if status == http.StatusUnauthorized {
			return KindInvalidCredentials
		}
		return ""
	})
}

// Register creates an account and authenticates in one step.
// A 400/409 maps to EmailAlreadyRegistered and a 422 to ValidationError.
func (c *Client) Register(ctx context.Context, email, password string) (*TokenPair, *SessionUser, error) {
	body, err := json.Marshal(registerRequest{Email: email, Password: password})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/register",
		bytes.NewReader(body),
		map[string]string{"Content-Type": "application/json"},
	)
	if err != nil {
		return nil, nil, err
	}

	return c.finishTokenGrant(ctx, resp, func(status int) ErrorKind {
		switch status {
		case http.StatusBadRequest, http.StatusConflict:
			return KindEmailAlreadyRegistered
		case http.StatusUnprocessableEntity:
			return KindValidationError
		}
		return ""
	})
}

// Refresh exchanges a refresh token for a new pair. On success the stored
// pair is replaced wholesale, never merged; the cached user is kept. An
// InvalidRefreshToken failure clears the store since the session cannot
// self-heal.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	body, err := json.Marshal(refreshRequest{Token: refreshToken})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/refresh",
		bytes.NewReader(body),
		map[string]string{"Content-Type": "application/json"},
	)
	if err != nil {
		return nil, err
	}

	var tr tokenResponse
	if err := decodeJSON(resp, &tr, func(status int) ErrorKind {
		if status == http.StatusUnauthorized {
			return KindInvalidRefreshToken
		}
		return ""
	}); err != nil {
		if IsKind(err, KindInvalidRefreshToken) && c.Tokens != nil {
			if clearErr := c.Tokens.Clear(ctx); clearErr != nil {
				return nil, fmt.Errorf("failed to clear token store: %w", clearErr)
			}
		}
		return nil, err
	}

	pair, err := pairFromResponse(&tr, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	if c.Tokens != nil {
		if err := c.Tokens.Write(ctx, pair, tr.User); err != nil {
			return nil, fmt.Errorf("failed to persist token pair: %w", err)
		}
	}

	return &pair, nil
}

// Logout notifies the provider that the session ended. Callers have
// already committed to the logged-out state, so every failure is returned
// only for logging and the store is never touched here.
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/auth/logout", nil,
		map[string]string{"Authorization": "Bearer " + accessToken},
	)
	if err != nil {
		return err
	}

	return decodeJSON(resp, nil, func(int) ErrorKind { return "" })
}

// finishTokenGrant decodes a login/register response, derives the pair and
// writes through to the token store.
func (c *Client) finishTokenGrant(
	ctx context.Context,
	resp *http.Response,
	kindFor func(status int) ErrorKind,
) (*TokenPair, *SessionUser, error) {
	var tr tokenResponse
	if err := decodeJSON(resp, &tr, kindFor); err != nil {
		return nil, nil, err
	}

	pair, err := pairFromResponse(&tr, time.Now().UTC())
	if err != nil {
		return nil, nil, err
	}

	if c.Tokens != nil {
		if err := c.Tokens.Write(ctx, pair, tr.User); err != nil {
			return nil, nil, fmt.Errorf("failed to persist token pair: %w", err)
		}
	}

	return &pair, tr.User, nil
}
