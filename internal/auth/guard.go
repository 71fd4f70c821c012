// Package auth tracks whether the current actor is authenticated and
// performs the login, logout and startup-probe exchanges.
package auth

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/vitalwatch/monitor/internal/client"
)

// ErrUnauthenticated is returned by operations attempted while the guard
// is false. No request is sent.
var ErrUnauthenticated = errors.New("not authenticated")

// State is a guard snapshot. Generation increases on every transition to
// authenticated, so work tagged with an older generation can be told
// apart from work belonging to the current login.
type State struct {
	Authenticated bool
	Generation    uint64
	User          client.User
	Reason        string // why the last transition to unauthenticated happened
}

// Guard is the process-wide authenticated flag. It starts false.
type Guard struct {
	mu       sync.RWMutex
	state    State
	watchers map[chan State]struct{}
	logger   *zap.Logger
}

// NewGuard creates a guard in the unauthenticated state.
func NewGuard(logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{
		watchers: make(map[chan State]struct{}),
		logger:   logger.Named("auth"),
	}
}

func (g *Guard) IsAuthenticated() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state.Authenticated
}

func (g *Guard) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state
}

// Current reports whether gen is the live authenticated generation.
func (g *Guard) Current(gen uint64) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.state.Authenticated && g.state.Generation == gen
}

// Authenticate flips the guard true and starts a new generation, which it
// returns.
func (g *Guard) Authenticate(user client.User) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.state = State{
		Authenticated: true,
		Generation:    g.state.Generation + 1,
		User:          user,
	}
	g.logger.Info("authenticated",
		zap.String("username", user.Username),
		zap.Uint64("generation", g.state.Generation),
	)
	g.notifyLocked()
	return g.state.Generation
}

// Expire flips the guard false after an authorization failure observed by
// work of generation gen. Failures from an earlier generation are ignored
// so a late 401 cannot log out a newer session. It reports whether the
// guard changed.
func (g *Guard) Expire(gen uint64, reason string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.state.Authenticated || g.state.Generation != gen {
		return false
	}
	g.logger.Warn("authorization expired",
		zap.Uint64("generation", gen),
		zap.String("reason", reason),
	)
	g.revokeLocked(reason)
	return true
}

// Revoke flips the guard false regardless of generation.
func (g *Guard) Revoke(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.state.Authenticated {
		return
	}
	g.logger.Info("signed out", zap.String("reason", reason))
	g.revokeLocked(reason)
}

func (g *Guard) revokeLocked(reason string) {
	g.state = State{
		Generation: g.state.Generation,
		Reason:     reason,
	}
	g.notifyLocked()
}

// Watch returns a channel that receives the guard state after every
// transition. Only the latest state is buffered; a slow reader sees the
// newest transition, never a stale one. Call the returned func to stop
// watching.
func (g *Guard) Watch() (<-chan State, func()) {
	ch := make(chan State, 1)
	g.mu.Lock()
	g.watchers[ch] = struct{}{}
	g.mu.Unlock()

	return ch, func() {
		g.mu.Lock()
		delete(g.watchers, ch)
		g.mu.Unlock()
	}
}

func (g *Guard) notifyLocked() {
	for ch := range g.watchers {
		select {
		case <-ch:
		default:
		}
		ch <- g.state
	}
}
