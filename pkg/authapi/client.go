package authapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/resumade/resumade/pkg/jwtx"
)

// Client calls the Resumade identity endpoints. Tokens, when set, receives
// write-through updates on successful results.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// Tokens is the token store write surface. Optional; a nil Tokens
	// means results are returned without persistence (useful in tests).
	Tokens TokenWriter
}

// NewClient creates an identity client for the given base URL and API
// version prefix (e.g. "v1").
func NewClient(baseURL, version string, tokens TokenWriter) *Client {
	base := strings.TrimSuffix(baseURL, "/")
	if version != "" {
		base = base + "/" + strings.Trim(version, "/")
	}

	return &Client{
		BaseURL: base,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		Tokens: tokens,
	}
}

// url builds a complete URL by appending the path to the base URL.
func (c *Client) url(path string) string {
	return c.BaseURL + path
}

// doRequest performs an HTTP request with the client's HTTP client.
// Transport failures are classified as NetworkError.
func (c *Client) doRequest(
	ctx context.Context,
	method, path string,
	body io.Reader,
	headers map[string]string,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, networkError(err)
	}

	return resp, nil
}

// decodeJSON decodes a JSON response into the target.
// Non-2xx responses are parsed into a typed *APIError via kindFor.
func decodeJSON(resp *http.Response, target any, kindFor func(status int) ErrorKind) error {
	defer resp.Body.Close()

	// Read body once for both error parsing and success decoding
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return networkError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseErrorResponse(resp, bodyBytes, kindFor)
	}

	if target == nil {
		return nil
	}

	if err := json.Unmarshal(bodyBytes, target); err != nil {
		return &APIError{
			Kind:       KindServerError,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to decode response: %v", err),
		}
	}

	return nil
}

// pairFromResponse derives a TokenPair from a token response. The expiry
// comes from expires_in when declared, otherwise from the access token's
// exp claim. A response declaring neither is rejected.
func pairFromResponse(tr *tokenResponse, now time.Time) (TokenPair, error) {
	pair := TokenPair{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		TokenType:    tr.TokenType,
	}
	if pair.TokenType == "" {
		pair.TokenType = "bearer"
	}

	if tr.ExpiresIn > 0 {
		pair.ExpiresAt = now.Add(time.Duration(tr.ExpiresIn) * time.Second)
		return pair, nil
	}

	exp, err := jwtx.Expiry(tr.AccessToken)
	if err != nil {
		return TokenPair{}, &APIError{
			Kind:    KindServerError,
			Message: "token response declares no lifetime",
		}
	}
	pair.ExpiresAt = exp

	return pair, nil
}
