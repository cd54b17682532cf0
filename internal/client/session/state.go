package session

import (
	"fmt"
	"time"

	"github.com/resumade/resumade/pkg/authapi"
)

// Phase is the session state machine's discriminant.
type Phase int

const (
	// PhaseUnauthenticated is the initial phase and the steady state
	// absent a session.
	PhaseUnauthenticated Phase = iota

	// PhaseAuthenticating covers an in-flight login or register attempt.
	PhaseAuthenticating

	// PhaseAuthenticated is the steady state with a live session.
	PhaseAuthenticated

	// PhaseRefreshing covers an in-flight token refresh. The user is
	// still considered signed in.
	PhaseRefreshing

	// PhaseExpired marks a fatally failed refresh. It is instantaneous:
	// the machine folds it into PhaseUnauthenticated synchronously and it
	// exists only to make the forced-logout path explicit.
	PhaseExpired
)

func (p Phase) String() string {
	switch p {
	case PhaseUnauthenticated:
		return "unauthenticated"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseAuthenticated:
		return "authenticated"
	case PhaseRefreshing:
		return "refreshing"
	case PhaseExpired:
		return "expired"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// IsAuthenticated reports whether the phase represents a signed-in user.
// Refreshing counts: the session is live while its token rotates.
func (p Phase) IsAuthenticated() bool {
	return p == PhaseAuthenticated || p == PhaseRefreshing
}

// AuthState is a snapshot of the machine. User is set for Authenticated
// and Refreshing; ExpiresAt only for Authenticated.
type AuthState struct {
	Phase     Phase
	User      *authapi.SessionUser
	ExpiresAt time.Time
}

// legalTransitions enumerates every edge the machine may take. Anything
// not listed is a programming error.
var legalTransitions = map[Phase][]Phase{
	PhaseUnauthenticated: {PhaseAuthenticating, PhaseAuthenticated},
	PhaseAuthenticating:  {PhaseAuthenticated, PhaseUnauthenticated},
	PhaseAuthenticated:   {PhaseUnauthenticated, PhaseRefreshing},
	PhaseRefreshing:      {PhaseAuthenticated, PhaseExpired, PhaseUnauthenticated},
	PhaseExpired:         {PhaseUnauthenticated},
}

func transitionAllowed(from, to Phase) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
