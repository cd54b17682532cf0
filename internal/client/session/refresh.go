package session

import (
	"context"
	"errors"
	"time"
)

// ErrNoSession is returned when a refresh is requested without a live
// session.
var ErrNoSession = errors.New("session: no session to refresh")

// refreshCall is the shared record for one in-flight refresh. Concurrent
// due signals wait on done and share the same verdict instead of issuing
// a second request, which the provider would treat as refresh-token reuse.
type refreshCall struct {
	done chan struct{}
	err  error
}

// Refresh rotates the token pair. At most one refresh is in flight at a
// time; callers arriving while one runs are coalesced onto it.
func (m *Manager) Refresh(ctx context.Context) error {
	m.refreshMu.Lock()
	if call := m.inflight; call != nil {
		m.refreshMu.Unlock()
		select {
		case <-call.done:
			return call.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	call := &refreshCall{done: make(chan struct{})}
	m.inflight = call
	m.refreshMu.Unlock()

	call.err = m.doRefresh(ctx)
	close(call.done)

	m.refreshMu.Lock()
	m.inflight = nil
	m.refreshMu.Unlock()

	return call.err
}

// doRefresh performs the actual rotation. A refresh failure is always
// fatal to the session: the machine passes through Expired, folds into
// Unauthenticated and the store is cleared. Never retried silently,
// since a dead refresh token cannot self-heal.
func (m *Manager) doRefresh(ctx context.Context) error {
	m.mu.Lock()
	if m.pair == nil || m.state.Phase != PhaseAuthenticated {
		m.mu.Unlock()
		return ErrNoSession
	}

	refreshToken := m.pair.RefreshToken
	user := m.state.User
	startGen := m.generation
	event := m.transitionLocked(PhaseRefreshing, user, time.Time{})
	m.mu.Unlock()
	m.publish(event)

	// The gateway replaces the stored pair on success and clears the
	// store when the provider rejects the refresh token
	pair, err := m.gateway.Refresh(ctx, refreshToken)

	m.mu.Lock()
	if m.generation != startGen {
		// A logout won the race; leave its state alone
		phase := m.state.Phase
		m.mu.Unlock()
		if err == nil && phase == PhaseUnauthenticated {
			// The rotated pair's write-through must not outlive the
			// logout's clear
			clearCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if clearErr := m.store.Clear(clearCtx); clearErr != nil {
				m.logger.Error("failed to clear superseded token write", "error", clearErr)
			}
		}
		return ErrSuperseded
	}

	if err != nil {
		// Expired is instantaneous: record it, fold to Unauthenticated
		m.transitionLocked(PhaseExpired, nil, time.Time{})
		m.pair = nil
		event := m.transitionLocked(PhaseUnauthenticated, nil, time.Time{})
		m.loading = false
		m.mu.Unlock()
		m.publish(event)

		clearCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if clearErr := m.store.Clear(clearCtx); clearErr != nil {
			m.logger.Error("failed to clear token store after fatal refresh", "error", clearErr)
		}

		m.logger.Info("session ended by failed refresh", "error", err)
		return err
	}

	m.pair = pair
	event = m.transitionLocked(PhaseAuthenticated, user, pair.ExpiresAt)
	m.mu.Unlock()
	m.publish(event)

	return nil
}
