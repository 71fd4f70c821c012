package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/vitalwatch/monitor/internal/client"
)

// Backend is the subset of the REST client used for credential exchange.
type Backend interface {
	Login(ctx context.Context, username, password string) (*client.User, error)
	Logout(ctx context.Context) error
	Dashboard(ctx context.Context) (*client.DashboardStats, error)
}

// Resetter empties the cached registries.
type Resetter interface {
	Reset()
}

// Resetters resets each member in order.
type Resetters []Resetter

func (rs Resetters) Reset() {
	for _, r := range rs {
		r.Reset()
	}
}

// Authenticator performs the credential exchanges and keeps the guard and
// caches in step with their outcome.
type Authenticator struct {
	backend Backend
	guard   *Guard
	caches  Resetter
	logger  *zap.Logger
}

// NewAuthenticator creates an authenticator that resets caches on login
// and logout.
func NewAuthenticator(backend Backend, guard *Guard, caches Resetter, logger *zap.Logger) *Authenticator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Authenticator{
		backend: backend,
		guard:   guard,
		caches:  caches,
		logger:  logger.Named("authenticator"),
	}
}

// Login exchanges credentials. On success the caches are cleared and the
// guard flips true, which starts polling. A failed login leaves the guard
// untouched.
func (a *Authenticator) Login(ctx context.Context, username, password string) (*client.User, error) {
	user, err := a.backend.Login(ctx, username, password)
	if err != nil {
		a.logger.Info("login failed", zap.String("username", username), zap.Error(err))
		return nil, fmt.Errorf("login: %w", err)
	}
	a.caches.Reset()
	a.guard.Authenticate(*user)
	return user, nil
}

// Logout signs out locally first, so polling stops and in-flight results
// are discarded even if the request fails, then tells the backend.
func (a *Authenticator) Logout(ctx context.Context) error {
	a.guard.Revoke("logout")
	a.caches.Reset()
	if err := a.backend.Logout(ctx); err != nil {
		a.logger.Info("logout request failed", zap.Error(err))
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Probe checks whether the cookie jar already holds a valid session by
// calling an authenticated-only endpoint. It returns true and flips the
// guard on success, false with a nil error on 401.
func (a *Authenticator) Probe(ctx context.Context) (bool, error) {
	_, err := a.backend.Dashboard(ctx)
	switch {
	case err == nil:
		a.guard.Authenticate(client.User{})
		return true, nil
	case errors.Is(err, client.ErrAuthExpired):
		return false, nil
	default:
		return false, fmt.Errorf("auth probe: %w", err)
	}
}
