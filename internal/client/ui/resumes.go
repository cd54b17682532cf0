package ui

import (
	"net/http"

	"github.com/resumade/resumade/pkg/authapi"
	"github.com/resumade/resumade/pkg/httpx"
)

// ResumesHandler serves GET /resumes, the protected landing route. The
// gate middleware has already vouched for the session by the time this
// runs.
type ResumesHandler struct {
	Sessions SessionController
}

type resumesResponse struct {
	User    *authapi.SessionUser `json:"user"`
	Resumes []resumeSummary      `json:"resumes"`
}

type resumeSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

func (h *ResumesHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	state := h.Sessions.Current()

	// Resume documents live server-side; this surface only proves the
	// session gating. An empty list is the correct answer for a fresh
	// account.
	httpx.WriteJSON(w, http.StatusOK, resumesResponse{
		User:    state.User,
		Resumes: []resumeSummary{},
	})
}
