package authapi_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/resumade/resumade/pkg/authapi"
	"github.com/stretchr/testify/require"
)

func TestIsKind(t *testing.T) {
	t.Parallel()

	apiErr := &authapi.APIError{Kind: authapi.KindInvalidRefreshToken, StatusCode: 401, Message: "invalid refresh token"}

	require.True(t, authapi.IsKind(apiErr, authapi.KindInvalidRefreshToken))
	require.False(t, authapi.IsKind(apiErr, authapi.KindNetworkError))
	require.False(t, authapi.IsKind(nil, authapi.KindInvalidRefreshToken))
	require.False(t, authapi.IsKind(errors.New("plain"), authapi.KindInvalidRefreshToken))
}

func TestIsKindUnwraps(t *testing.T) {
	t.Parallel()

	// Callers wrap gateway errors with context; classification must
	// survive the wrapping
	wrapped := fmt.Errorf("persisting refreshed pair: %w",
		&authapi.APIError{Kind: authapi.KindServerError, StatusCode: 500, Message: "boom"})

	require.True(t, authapi.IsKind(wrapped, authapi.KindServerError))
	require.False(t, authapi.IsKind(wrapped, authapi.KindInvalidCredentials))
}
