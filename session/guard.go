package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/layer-3/faucetadmin/core"
	"github.com/layer-3/faucetadmin/ports"
)

// DefaultCookieName is the refresh cookie set by the backend on login
const DefaultCookieName = "refreshToken"

// PrincipalResolver looks up the signed-in principal on the backend
type PrincipalResolver interface {
	Me(ctx context.Context) (*core.User, error)
}

// Guard decides whether a protected view may be entered. The durable signal is
// the refresh cookie in the jar; its value is never read, only its presence.
// A stored session without the cookie, as after a restart with a fresh jar, is
// only accepted once Reconcile has confirmed it with the backend.
type Guard struct {
	jar        http.CookieJar
	refreshURL *url.URL
	store      ports.CredentialStore
	cookieName string
	logger     *slog.Logger

	mu        sync.Mutex
	confirmed string // address confirmed by Reconcile without a cookie
}

// NewGuard creates a guard that looks for cookieName as it would be sent to refreshURL
func NewGuard(jar http.CookieJar, refreshURL *url.URL, store ports.CredentialStore, cookieName string, logger *slog.Logger) *Guard {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{
		jar:        jar,
		refreshURL: refreshURL,
		store:      store,
		cookieName: cookieName,
		logger:     logger.With("component", "guard"),
	}
}

// HasRefreshCookie reports whether the jar would send the refresh cookie
func (g *Guard) HasRefreshCookie() bool {
	if g.jar == nil {
		return false
	}
	for _, cookie := range g.jar.Cookies(g.refreshURL) {
		if cookie.Name == g.cookieName {
			return true
		}
	}
	return false
}

// Stored returns the session in the credential store or core.ErrNoSession,
// regardless of the cookie jar
func (g *Guard) Stored(ctx context.Context) (*core.Session, error) {
	session, err := g.store.Get(ctx)
	if errors.Is(err, core.ErrNoCredential) {
		return nil, core.ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read credential: %w", err)
	}
	return session, nil
}

// Check returns the current session or core.ErrNoSession. Without a refresh
// cookie only a session confirmed by Reconcile is returned; the store is left
// for Reconcile to judge.
func (g *Guard) Check(ctx context.Context) (*core.Session, error) {
	session, err := g.Stored(ctx)
	if err != nil {
		return nil, err
	}
	if g.HasRefreshCookie() || g.isConfirmed(session.Address) {
		return session, nil
	}
	return nil, core.ErrNoSession
}

// Reconcile confirms the stored session with the backend. On failure the local
// credential is cleared.
func (g *Guard) Reconcile(ctx context.Context, resolver PrincipalResolver) (*core.User, error) {
	session, err := g.Stored(ctx)
	if err != nil {
		return nil, err
	}

	user, err := resolver.Me(ctx)
	if err != nil {
		g.logger.Info("resumed session rejected", "error", err)
		g.setConfirmed("")
		if clearErr := g.store.Clear(ctx); clearErr != nil {
			g.logger.Warn("failed to clear credential store", "error", clearErr)
		}
		return nil, err
	}

	if !g.HasRefreshCookie() {
		g.logger.Info("session confirmed without refresh cookie", "address", session.Address)
		g.setConfirmed(session.Address)
	}
	return user, nil
}

func (g *Guard) isConfirmed(address string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.confirmed != "" && g.confirmed == address
}

func (g *Guard) setConfirmed(address string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.confirmed = address
}
