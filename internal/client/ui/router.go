// Package ui is the loopback HTTP surface of the client: the stand-in for
// the browser component tree. It exposes the session operations and a
// handful of protected routes behind the gate; all session policy lives in
// internal/client/session, never here.
package ui

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/resumade/resumade/internal/client/gate"
	"github.com/resumade/resumade/internal/client/session"
	"github.com/resumade/resumade/pkg/httpx"
	"github.com/resumade/resumade/pkg/slogx"
)

// SessionController is the slice of the session manager the UI drives.
// *session.Manager satisfies it.
type SessionController interface {
	Login(ctx context.Context, email, password string) error
	Register(ctx context.Context, email, password string) error
	Logout(ctx context.Context) error
	Current() session.AuthState
	IsLoading() bool
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware

	sessions     SessionController
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
}

func NewRouter(sessions SessionController, buildVersion string, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		sessions:     sessions,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
	}

	// Set default middleware chain
	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

func (r *Router) ApplyRoutes() {
	r.registerSession()
	r.registerProtected()
	r.registerSystem()
}

// ServeHTTP implements http.Handler for Router and applies the global
// middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
}

func (r *Router) registerSession() {
	h := &SessionHandler{Sessions: r.sessions}

	// POST /session/login - strict rate limit (authentication attempts)
	// Note: Rate limited by IP + email form field to prevent brute force
	r.Mux.Handle("POST /session/login",
		httpx.Chain(http.HandlerFunc(h.HandleLogin),
			httpx.RateLimitByIPAndFormField(httpx.StrictLimit, "email"),
		),
	)

	// POST /session/register - strict rate limit by IP (public signup endpoint)
	r.Mux.Handle("POST /session/register",
		httpx.Chain(http.HandlerFunc(h.HandleRegister),
			httpx.RateLimitByIP(httpx.StrictLimit),
		),
	)

	// POST /session/logout - moderate rate limit
	r.Mux.Handle("POST /session/logout",
		httpx.Chain(http.HandlerFunc(h.HandleLogout),
			httpx.RateLimitByIP(httpx.ModerateLimit),
		),
	)

	// GET /session - status poll, lenient rate limit
	r.Mux.Handle("GET /session",
		httpx.Chain(http.HandlerFunc(h.HandleStatus),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)

	// GET /login - the gate's redirect target
	r.Mux.Handle("GET /login",
		httpx.Chain(http.HandlerFunc(h.HandleLoginPage),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerProtected() {
	guard := gate.Middleware(r.sessions, "/login")

	h := &ResumesHandler{Sessions: r.sessions}
	r.Mux.Handle("GET /resumes",
		httpx.Chain(h,
			guard,
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}

func (r *Router) registerSystem() {
	// Health check endpoint - lenient rate limit
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(httpx.LenientLimit),
		),
	)
}
