package authapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind classifies gateway failures for the policy engine and UI.
type ErrorKind string

const (
	KindInvalidCredentials     ErrorKind = "invalid_credentials"
	KindEmailAlreadyRegistered ErrorKind = "email_already_registered"
	KindValidationError        ErrorKind = "validation_error"
	KindInvalidRefreshToken    ErrorKind = "invalid_refresh_token"
	KindNetworkError           ErrorKind = "network_error"
	KindServerError            ErrorKind = "server_error"
)

// APIError represents a failed identity-provider call. It implements the
// error interface and carries the classified kind, the HTTP status (zero
// for transport failures) and any field-level validation details.
type APIError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string

	// Fields holds field-specific validation messages for KindValidationError.
	Fields map[string]string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
}

// IsKind reports whether err is, or wraps, an *APIError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Kind == kind
}

// networkError wraps a transport-level failure.
func networkError(err error) *APIError {
	return &APIError{
		Kind:    KindNetworkError,
		Message: err.Error(),
	}
}

// detailBody is the provider's error envelope: {"detail": {"message": ...}}.
// Some endpoints flatten it to {"detail": "..."} so both are accepted.
type detailBody struct {
	Detail json.RawMessage `json:"detail"`
}

type detailMessage struct {
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// fieldError is one entry of the provider's request-validation error list.
type fieldError struct {
	Loc []any  `json:"loc"`
	Msg string `json:"msg"`
}

// parseErrorResponse turns a non-2xx response into a typed *APIError.
// kindFor maps the status code to the operation's expected failure kind;
// anything unmapped falls back to ServerError.
func parseErrorResponse(resp *http.Response, body []byte, kindFor func(status int) ErrorKind) *APIError {
	apiErr := &APIError{
		Kind:       KindServerError,
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}

	if kind := kindFor(resp.StatusCode); kind != "" {
		apiErr.Kind = kind
	}

	var envelope detailBody
	if err := json.Unmarshal(body, &envelope); err != nil || len(envelope.Detail) == 0 {
		return apiErr
	}

	// detail as an object with a message
	var msg detailMessage
	if err := json.Unmarshal(envelope.Detail, &msg); err == nil && msg.Message != "" {
		apiErr.Message = msg.Message
		if len(msg.Fields) > 0 {
			apiErr.Kind = KindValidationError
			apiErr.Fields = msg.Fields
		}
		return apiErr
	}

	// detail as a plain string
	var plain string
	if err := json.Unmarshal(envelope.Detail, &plain); err == nil && plain != "" {
		apiErr.Message = plain
		return apiErr
	}

	// detail as a request-validation error list
	var fieldErrs []fieldError
	if err := json.Unmarshal(envelope.Detail, &fieldErrs); err == nil && len(fieldErrs) > 0 {
		apiErr.Kind = KindValidationError
		apiErr.Fields = make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			field := "request"
			if len(fe.Loc) > 0 {
				if s, ok := fe.Loc[len(fe.Loc)-1].(string); ok {
					field = s
				}
			}
			apiErr.Fields[field] = fe.Msg
		}
		apiErr.Message = "validation failed"
		return apiErr
	}

	return apiErr
}
