// Package gate decides whether a protected route may render. The decision
// is pure: the HTTP middleware is a thin adapter over Decide so the policy
// can be tested without a server.
package gate

import (
	"net/http"
	"net/url"

	"github.com/resumade/resumade/internal/client/session"
	"github.com/resumade/resumade/pkg/httpx"
)

// Action is the gate's verdict for a protected route.
type Action int

const (
	// ActionAllow renders the protected content.
	ActionAllow Action = iota

	// ActionShowLoading holds the route while the startup resume is still
	// validating. A redirect here would bounce a user whose session is
	// about to be confirmed.
	ActionShowLoading

	// ActionRedirectToLogin sends the visitor to the login route, carrying
	// the destination they attempted.
	ActionRedirectToLogin
)

func (a Action) String() string {
	switch a {
	case ActionAllow:
		return "allow"
	case ActionShowLoading:
		return "loading"
	case ActionRedirectToLogin:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision carries the verdict and, for redirects, the attempted
// destination to return to after login.
type Decision struct {
	Action Action
	From   string
}

// Decide maps the session snapshot to a verdict for the requested path.
// While loading, the answer is always ShowLoading, even when the state is
// optimistically authenticated: the restored pair has not been validated
// yet, so protected content must wait for the verdict either way.
func Decide(state session.AuthState, loading bool, requested string) Decision {
	if loading {
		return Decision{Action: ActionShowLoading}
	}
	if state.Phase.IsAuthenticated() {
		return Decision{Action: ActionAllow}
	}
	return Decision{Action: ActionRedirectToLogin, From: requested}
}

// SessionReader is the slice of the session manager the gate consumes.
type SessionReader interface {
	Current() session.AuthState
	IsLoading() bool
}

// Middleware guards protected handlers. Redirects carry the attempted
// destination as a "next" query parameter on the login route; the loading
// window answers 503 with a short Retry-After instead of redirecting.
func Middleware(sessions SessionReader, loginPath string) httpx.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision := Decide(sessions.Current(), sessions.IsLoading(), r.URL.RequestURI())

			switch decision.Action {
			case ActionAllow:
				next.ServeHTTP(w, r)

			case ActionShowLoading:
				w.Header().Set("Retry-After", "1")
				httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
					"status": "loading",
				})

			case ActionRedirectToLogin:
				target := loginPath
				if decision.From != "" {
					target += "?next=" + url.QueryEscape(decision.From)
				}
				httpx.NoCache(w)
				http.Redirect(w, r, target, http.StatusSeeOther)
			}
		})
	}
}
