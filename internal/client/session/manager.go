// Package session owns the client-side authentication state machine. One
// Manager instance is the source of truth for the current AuthState; every
// mutation goes through its transition function and every transition is
// pushed to the broadcast hub.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/resumade/resumade/internal/client/broadcast"
	"github.com/resumade/resumade/internal/client/tokenstore"
	"github.com/resumade/resumade/pkg/authapi"
	"github.com/resumade/resumade/pkg/idx"
)

var (
	// ErrAlreadyAuthenticated is returned when Login or Register is
	// called while a session is live.
	ErrAlreadyAuthenticated = errors.New("session: already authenticated")

	// ErrLoginInProgress is returned when Login or Register is called
	// while another attempt is still in flight.
	ErrLoginInProgress = errors.New("session: authentication already in progress")

	// ErrSuperseded is returned when an operation completed but its
	// result was dropped because the session moved on in the meantime.
	ErrSuperseded = errors.New("session: result superseded by a newer transition")
)

// Gateway is the slice of the identity client the manager drives.
// *authapi.Client satisfies it.
type Gateway interface {
	Login(ctx context.Context, email, password string) (*authapi.TokenPair, *authapi.SessionUser, error)
	Register(ctx context.Context, email, password string) (*authapi.TokenPair, *authapi.SessionUser, error)
	Refresh(ctx context.Context, refreshToken string) (*authapi.TokenPair, error)
	Logout(ctx context.Context, accessToken string) error
	Profile(ctx context.Context, accessToken string) (*authapi.SessionUser, error)
}

// Config tunes the refresh policy.
type Config struct {
	// SkewMargin is the lead time before expiry at which a refresh is
	// proactively triggered, so a request never races the boundary.
	SkewMargin time.Duration

	// RefreshCheckInterval is how often the background timer looks for a
	// due token.
	RefreshCheckInterval time.Duration
}

const (
	defaultSkewMargin           = 30 * time.Second
	defaultRefreshCheckInterval = 15 * time.Second
)

// Manager is the session policy engine.
type Manager struct {
	gateway Gateway
	store   tokenstore.Store
	hub     *broadcast.Hub
	logger  *slog.Logger
	cfg     Config

	mu      sync.Mutex
	state   AuthState
	pair    *authapi.TokenPair
	loading bool

	// generation is bumped on every transition into Unauthenticated or
	// Authenticated. Background work captures the generation it started
	// under and drops its verdict if the counter moved, so a stale
	// validation can never clear a session established by a faster login.
	generation uint64

	refreshMu sync.Mutex
	inflight  *refreshCall

	stopOnce sync.Once
	stop     chan struct{}

	// background counts spawned goroutines so Close can wait for them
	background sync.WaitGroup
}

// NewManager wires the engine to its collaborators. The manager starts in
// Unauthenticated with loading set; call Resume once at startup to settle
// it, then Start to run the periodic refresh timer.
func NewManager(gateway Gateway, store tokenstore.Store, hub *broadcast.Hub, logger *slog.Logger, cfg Config) *Manager {
	if cfg.SkewMargin <= 0 {
		cfg.SkewMargin = defaultSkewMargin
	}
	if cfg.RefreshCheckInterval <= 0 {
		cfg.RefreshCheckInterval = defaultRefreshCheckInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		gateway: gateway,
		store:   store,
		hub:     hub,
		logger:  logger,
		cfg:     cfg,
		state:   AuthState{Phase: PhaseUnauthenticated},
		loading: true,
		stop:    make(chan struct{}),
	}
}

// Current returns a snapshot of the authentication state.
func (m *Manager) Current() AuthState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsLoading reports whether the startup resume has not yet settled. The
// route gate must not redirect while this is true.
func (m *Manager) IsLoading() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loading
}

// AccessToken returns the current access token, or "" without a session.
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pair == nil {
		return ""
	}
	return m.pair.AccessToken
}

// Login runs the password grant. The state machine moves to
// Authenticating for the duration of the call and commits to
// Authenticated only on success; a failure returns to Unauthenticated
// with the typed reason. Login is never optimistic.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	return m.authenticate(ctx, func(ctx context.Context) (*authapi.TokenPair, *authapi.SessionUser, error) {
		return m.gateway.Login(ctx, email, password)
	})
}

// Register creates an account and signs in, with the same state shape as
// Login.
func (m *Manager) Register(ctx context.Context, email, password string) error {
	return m.authenticate(ctx, func(ctx context.Context) (*authapi.TokenPair, *authapi.SessionUser, error) {
		return m.gateway.Register(ctx, email, password)
	})
}

func (m *Manager) authenticate(
	ctx context.Context,
	grant func(ctx context.Context) (*authapi.TokenPair, *authapi.SessionUser, error),
) error {
	m.mu.Lock()
	switch m.state.Phase {
	case PhaseAuthenticated, PhaseRefreshing:
		m.mu.Unlock()
		return ErrAlreadyAuthenticated
	case PhaseAuthenticating:
		m.mu.Unlock()
		return ErrLoginInProgress
	}

	startGen := m.generation
	event := m.transitionLocked(PhaseAuthenticating, nil, time.Time{})
	m.mu.Unlock()
	m.publish(event)

	// The gateway writes the token store before returning on success
	pair, user, err := grant(ctx)

	m.mu.Lock()
	if m.generation != startGen {
		// A logout or another login settled first; this result is dropped
		phase := m.state.Phase
		m.mu.Unlock()
		if err == nil && phase == PhaseUnauthenticated {
			// The grant's write-through must not outlive the logout that
			// superseded it
			if clearErr := m.store.Clear(ctx); clearErr != nil {
				m.logger.Error("failed to clear superseded token write", "error", clearErr)
			}
		}
		return ErrSuperseded
	}

	if err != nil {
		event := m.transitionLocked(PhaseUnauthenticated, nil, time.Time{})
		m.mu.Unlock()
		m.publish(event)
		return err
	}

	m.pair = pair
	event = m.transitionLocked(PhaseAuthenticated, user, pair.ExpiresAt)
	m.loading = false
	m.mu.Unlock()
	m.publish(event)

	return nil
}

// Logout commits to the signed-out state immediately: the transition, the
// store clear and the broadcast all complete before the network logout is
// even issued. The provider call runs in the background and its failure
// is absorbed, since local state is authoritative.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	if m.state.Phase == PhaseUnauthenticated {
		m.mu.Unlock()
		// Idempotent: a second logout just re-clears the store
		return m.store.Clear(ctx)
	}

	var accessToken string
	if m.pair != nil {
		accessToken = m.pair.AccessToken
	}
	m.pair = nil
	event := m.transitionLocked(PhaseUnauthenticated, nil, time.Time{})
	m.loading = false
	m.mu.Unlock()
	m.publish(event)

	if err := m.store.Clear(ctx); err != nil {
		return err
	}

	if accessToken != "" {
		m.background.Add(1)
		go func() {
			defer m.background.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := m.gateway.Logout(ctx, accessToken); err != nil {
				m.logger.Warn("provider logout failed, local state already cleared", "error", err)
			}
		}()
	}

	return nil
}

// Resume restores the session at startup. The store read and the
// optimistic transition are synchronous; validation of the restored pair
// happens in the background so the first render is never blocked. The
// loading flag stays set until validation settles, which keeps the route
// gate from rendering protected content on a pair that turns out dead.
func (m *Manager) Resume(ctx context.Context) error {
	pair, err := m.store.Read(ctx)
	if err != nil {
		return err
	}

	if pair == nil {
		m.mu.Lock()
		m.loading = false
		m.mu.Unlock()
		return nil
	}

	user, err := m.store.ReadUser(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.pair = pair
	event := m.transitionLocked(PhaseAuthenticated, user, pair.ExpiresAt)
	m.mu.Unlock()
	m.publish(event)

	m.background.Add(1)
	go func() {
		defer m.background.Done()
		m.validateResumed()
	}()

	return nil
}

// validateResumed refreshes a due pair and confirms the session against
// the profile endpoint. A provider 401 is the only verdict that ends the
// session; network blips must never log the user out. Whatever happens,
// the loading flag resolves.
func (m *Manager) validateResumed() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	defer func() {
		m.mu.Lock()
		m.loading = false
		m.mu.Unlock()
	}()

	m.mu.Lock()
	pair := m.pair
	m.mu.Unlock()
	if pair == nil {
		return
	}

	if pair.DueForRefresh(time.Now(), m.cfg.SkewMargin) {
		if err := m.Refresh(ctx); err != nil {
			// A failed refresh already forced the session clear
			return
		}
	}

	// The generation is captured atomically with the token, after any
	// due-pair refresh has committed, so the verdict below binds to the
	// pair it actually validated.
	m.mu.Lock()
	accessToken := ""
	if m.pair != nil {
		accessToken = m.pair.AccessToken
	}
	startGen := m.generation
	m.mu.Unlock()
	if accessToken == "" {
		return
	}

	user, err := m.gateway.Profile(ctx, accessToken)

	m.mu.Lock()
	if m.generation != startGen {
		// A login or logout settled while we validated; drop the verdict
		m.mu.Unlock()
		return
	}

	switch {
	case err == nil:
		m.state.User = user
		m.mu.Unlock()

	case authapi.IsKind(err, authapi.KindInvalidCredentials):
		m.pair = nil
		event := m.transitionLocked(PhaseUnauthenticated, nil, time.Time{})
		m.mu.Unlock()
		m.publish(event)

		clearCtx, clearCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer clearCancel()
		if clearErr := m.store.Clear(clearCtx); clearErr != nil {
			m.logger.Error("failed to clear token store after rejected session", "error", clearErr)
		}

	default:
		// Keep the session on transient failures
		m.mu.Unlock()
		m.logger.Warn("startup session validation inconclusive, keeping session", "error", err)
	}
}

// Start runs the periodic refresh-due check until Close.
func (m *Manager) Start() {
	m.background.Add(1)
	go func() {
		defer m.background.Done()

		ticker := time.NewTicker(m.cfg.RefreshCheckInterval)
		defer ticker.Stop()

		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.checkRefreshDue()
			}
		}
	}()
}

// Close stops the timer and waits for background work to finish.
func (m *Manager) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
	m.background.Wait()
}

func (m *Manager) checkRefreshDue() {
	m.mu.Lock()
	due := m.state.Phase == PhaseAuthenticated &&
		m.pair != nil &&
		m.pair.DueForRefresh(time.Now(), m.cfg.SkewMargin)
	m.mu.Unlock()

	if !due {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := m.Refresh(ctx); err != nil {
		m.logger.Warn("scheduled refresh failed", "error", err)
	}
}

// transitionLocked moves the machine to the given phase and returns the
// event to publish. Callers hold m.mu. An illegal edge is a programming
// error: it is logged and the state is left untouched.
func (m *Manager) transitionLocked(to Phase, user *authapi.SessionUser, expiresAt time.Time) *broadcast.AuthEvent {
	from := m.state.Phase
	if !transitionAllowed(from, to) {
		m.logger.Error("illegal session transition attempted", "from", from.String(), "to", to.String())
		return nil
	}

	m.state = AuthState{Phase: to, User: user, ExpiresAt: expiresAt}
	if to == PhaseUnauthenticated || to == PhaseAuthenticated {
		m.generation++
	}

	m.logger.Debug("session transition", "from", from.String(), "to", to.String())

	return &broadcast.AuthEvent{
		ID:              idx.New(),
		IsAuthenticated: to.IsAuthenticated(),
		User:            user,
	}
}

// publish delivers an event outside the state lock, so subscribers may
// read the manager without deadlocking.
func (m *Manager) publish(event *broadcast.AuthEvent) {
	if event == nil || m.hub == nil {
		return
	}
	m.hub.Broadcast(*event)
}
