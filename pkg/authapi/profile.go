package authapi

import (
	"context"
	"net/http"
)

// Profile fetches the authenticated account's identity. A 401 is
// classified as InvalidCredentials so callers can distinguish a revoked
// token from a network blip.
func (c *Client) Profile(ctx context.Context, accessToken string) (*SessionUser, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/users/me", nil,
		map[string]string{"Authorization": "Bearer " + accessToken},
	)
	if err != nil {
		return nil, err
	}

	var user SessionUser
	if err := decodeJSON(resp, &user, func(status int) ErrorKind {
		if status == http.StatusUnauthorized {
			return KindInvalidCredentials
		}
		return ""
	}); err != nil {
		return nil, err
	}

	return &user, nil
}
