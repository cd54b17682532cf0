package ui

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/resumade/resumade/internal/client/session"
	"github.com/resumade/resumade/pkg/authapi"
	"github.com/resumade/resumade/pkg/httpx"
	"github.com/resumade/resumade/pkg/slogx"
)

// SessionHandler serves the session mutation and status endpoints.
type SessionHandler struct {
	Sessions SessionController
}

type statusResponse struct {
	Authenticated bool                 `json:"authenticated"`
	Loading       bool                 `json:"loading"`
	Phase         string               `json:"phase"`
	User          *authapi.SessionUser `json:"user,omitempty"`
}

type errorResponse struct {
	Error            string            `json:"error"`
	ErrorDescription string            `json:"error_description"`
	Fields           map[string]string `json:"fields,omitempty"`
}

// HandleLogin accepts an application/x-www-form-urlencoded credential post.
// On success it redirects to the "next" destination when one was carried
// through the login form, otherwise answers the session status.
func (h *SessionHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" &&
		!strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
		httpx.WriteJSON(w, http.StatusUnsupportedMediaType, errorResponse{
			Error:            "invalid_content_type",
			ErrorDescription: "expected application/x-www-form-urlencoded",
		})
		return
	}

	if err := r.ParseForm(); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, errorResponse{
			Error:            "invalid_form_body",
			ErrorDescription: "request body is not a valid form",
		})
		return
	}

	email := strings.TrimSpace(r.Form.Get("email"))
	password := r.Form.Get("password")
	next := r.Form.Get("next")

	if email == "" || password == "" {
		httpx.WriteJSON(w, http.StatusBadRequest, errorResponse{
			Error:            "invalid_request",
			ErrorDescription: "email and password are required",
		})
		return
	}

	if err := h.Sessions.Login(r.Context(), email, password); err != nil {
		writeSessionError(w, r, err)
		return
	}

	if next != "" && safeRedirectTarget(next) {
		httpx.NoCache(w)
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}

	h.writeStatus(w, http.StatusOK)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// HandleRegister accepts a JSON body and signs the new account in.
func (h *SessionHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteJSON(w, http.StatusBadRequest, errorResponse{
			Error:            "invalid_request",
			ErrorDescription: "request body is not valid JSON",
		})
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		httpx.WriteJSON(w, http.StatusBadRequest, errorResponse{
			Error:            "invalid_request",
			ErrorDescription: "email and password are required",
		})
		return
	}

	if err := h.Sessions.Register(r.Context(), req.Email, req.Password); err != nil {
		writeSessionError(w, r, err)
		return
	}

	h.writeStatus(w, http.StatusCreated)
}

// HandleLogout signs out. The response reflects the already-committed local
// state; the provider call is still in flight in the background.
func (h *SessionHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.Sessions.Logout(r.Context()); err != nil {
		writeSessionError(w, r, err)
		return
	}
	h.writeStatus(w, http.StatusOK)
}

// HandleStatus reports the current session snapshot.
func (h *SessionHandler) HandleStatus(w http.ResponseWriter, _ *http.Request) {
	h.writeStatus(w, http.StatusOK)
}

// HandleLoginPage is the gate's redirect target. It echoes the carried
// destination so the login form can post it back.
func (h *SessionHandler) HandleLoginPage(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "login_required",
		"next":   r.URL.Query().Get("next"),
	})
}

func (h *SessionHandler) writeStatus(w http.ResponseWriter, code int) {
	state := h.Sessions.Current()
	httpx.WriteJSON(w, code, statusResponse{
		Authenticated: state.Phase.IsAuthenticated(),
		Loading:       h.Sessions.IsLoading(),
		Phase:         state.Phase.String(),
		User:          state.User,
	})
}

// safeRedirectTarget rejects absolute and protocol-relative URLs so the
// login form cannot be used as an open redirect.
func safeRedirectTarget(target string) bool {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") {
		return false
	}
	u, err := url.Parse(target)
	return err == nil && u.Host == "" && u.Scheme == ""
}

func writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	log := slogx.FromContext(r.Context())

	switch {
	case errors.Is(err, session.ErrAlreadyAuthenticated):
		httpx.WriteJSON(w, http.StatusConflict, errorResponse{
			Error:            "already_authenticated",
			ErrorDescription: "a session is already active",
		})
		return
	case errors.Is(err, session.ErrLoginInProgress):
		httpx.WriteJSON(w, http.StatusConflict, errorResponse{
			Error:            "login_in_progress",
			ErrorDescription: "another sign-in attempt is still running",
		})
		return
	case errors.Is(err, session.ErrSuperseded):
		httpx.WriteJSON(w, http.StatusConflict, errorResponse{
			Error:            "superseded",
			ErrorDescription: "the attempt was superseded by a newer session change",
		})
		return
	}

	var apiErr *authapi.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case authapi.KindInvalidCredentials, authapi.KindInvalidRefreshToken:
			httpx.WriteJSON(w, http.StatusUnauthorized, errorResponse{
				Error:            string(apiErr.Kind),
				ErrorDescription: apiErr.Message,
			})
		case authapi.KindEmailAlreadyRegistered:
			httpx.WriteJSON(w, http.StatusConflict, errorResponse{
				Error:            string(apiErr.Kind),
				ErrorDescription: apiErr.Message,
			})
		case authapi.KindValidationError:
			httpx.WriteJSON(w, http.StatusUnprocessableEntity, errorResponse{
				Error:            string(apiErr.Kind),
				ErrorDescription: apiErr.Message,
				Fields:           apiErr.Fields,
			})
		case authapi.KindNetworkError:
			httpx.WriteJSON(w, http.StatusBadGateway, errorResponse{
				Error:            string(apiErr.Kind),
				ErrorDescription: "identity provider unreachable",
			})
		default:
			log.Error("identity provider failure", "err", err)
			httpx.WriteJSON(w, http.StatusBadGateway, errorResponse{
				Error:            string(authapi.KindServerError),
				ErrorDescription: "identity provider error",
			})
		}
		return
	}

	log.Error("session operation failed", "err", err)
	httpx.WriteJSON(w, http.StatusInternalServerError, errorResponse{
		Error:            "internal_error",
		ErrorDescription: "unexpected failure",
	})
}
