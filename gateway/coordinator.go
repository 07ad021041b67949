package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/layer-3/faucetadmin/core"
	"github.com/layer-3/faucetadmin/ports"
)

// DefaultRefreshTimeout bounds a single refresh exchange
const DefaultRefreshTimeout = 15 * time.Second

// Refresher performs the refresh exchange against the remote service
type Refresher interface {
	Refresh(ctx context.Context) (*core.Session, error)
}

// State is the coordinator's refresh state
type State int

const (
	StateIdle State = iota
	StateRefreshing
)

func (s State) String() string {
	if s == StateRefreshing {
		return "refreshing"
	}
	return "idle"
}

type sessionStatus int

// The zero status is ended: nothing can be refreshed before Begin
const (
	statusEnded sessionStatus = iota
	statusActive
	statusExpired
)

// Coordinator makes sure at most one refresh exchange runs at a time. Requests
// that fail authorization while a refresh is outstanding queue behind it and are
// released, in the order they arrived, with its outcome.
type Coordinator struct {
	refresher Refresher
	store     ports.CredentialStore
	logger    *slog.Logger
	timeout   time.Duration
	onExpired func(error)

	mu        sync.Mutex
	inflight  *refreshHandle
	pending   pendingQueue
	current   string
	status    sessionStatus
	epoch     uint64
	refreshes int
}

// CoordinatorOption configures a Coordinator
type CoordinatorOption func(*Coordinator)

// WithRefreshTimeout bounds each refresh exchange
func WithRefreshTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.timeout = d }
}

// WithExpiryHook is called once after a refresh failure ends the session
func WithExpiryHook(fn func(error)) CoordinatorOption {
	return func(c *Coordinator) { c.onExpired = fn }
}

// WithCoordinatorLogger sets the logger
func WithCoordinatorLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.logger = logger }
}

// NewCoordinator creates a coordinator in the Idle state. Until Begin is called
// requests that fail authorization get core.ErrUnauthorized without a refresh.
func NewCoordinator(refresher Refresher, store ports.CredentialStore, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		refresher: refresher,
		store:     store,
		logger:    slog.Default(),
		timeout:   DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "refresh-coordinator")
	return c
}

// Begin marks a new session as active, e.g. after login or resume
func (c *Coordinator) Begin(session *core.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.status = statusActive
	c.epoch++
	c.current = ""
	if session != nil {
		c.current = session.AccessToken
	}
}

// End marks the session as deliberately closed. Queued and future requests fail
// with core.ErrUnauthorized and an outstanding refresh result is discarded.
func (c *Coordinator) End() {
	c.mu.Lock()
	c.status = statusEnded
	c.epoch++
	c.current = ""
	entries := c.pending.take()
	c.mu.Unlock()

	release(entries, refreshOutcome{err: core.ErrUnauthorized})
}

// State reports whether a refresh is outstanding
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight != nil {
		return StateRefreshing
	}
	return StateIdle
}

// Refreshes returns how many refresh exchanges have been started
func (c *Coordinator) Refreshes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.refreshes
}

// Await is called by a request after the credential stale was rejected with 401/403.
// It returns the credential to replay with, joining the outstanding refresh or
// starting one. A failed refresh ends the session: every waiter gets
// core.ErrSessionExpired and the store is cleared.
func (c *Coordinator) Await(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	if err := c.statusErrLocked(); err != nil {
		c.mu.Unlock()
		return "", err
	}

	// Someone already replaced the credential this request was rejected with.
	if c.inflight == nil && c.current != "" && c.current != stale {
		token := c.current
		c.mu.Unlock()
		return token, nil
	}

	entry := c.pending.push()
	handle := c.startLocked()
	handle.reactive = true
	queued := c.pending.len()
	c.mu.Unlock()

	c.logger.Debug("request deferred behind refresh", "queued", queued)

	select {
	case outcome := <-entry.ready:
		return outcome.token, outcome.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Renew refreshes proactively, sharing any refresh already in flight. A failure
// of a refresh nobody else was waiting on leaves the session untouched.
func (c *Coordinator) Renew(ctx context.Context) (*core.Session, error) {
	c.mu.Lock()
	if err := c.statusErrLocked(); err != nil {
		c.mu.Unlock()
		return nil, err
	}
	handle := c.startLocked()
	c.mu.Unlock()

	select {
	case <-handle.done:
		return handle.session, handle.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coordinator) statusErrLocked() error {
	switch c.status {
	case statusExpired:
		return core.ErrSessionExpired
	case statusEnded:
		return core.ErrUnauthorized
	}
	return nil
}

// startLocked returns the outstanding handle or creates one and runs the
// exchange. c.mu must be held.
func (c *Coordinator) startLocked() *refreshHandle {
	if c.inflight != nil {
		return c.inflight
	}
	handle := newRefreshHandle()
	c.inflight = handle
	c.refreshes++
	go c.run(handle, c.epoch)
	return handle
}

// run performs one refresh exchange and settles everyone waiting on it. The
// exchange uses its own context so that no single caller can cancel it for the
// others.
func (c *Coordinator) run(handle *refreshHandle, epoch uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	started := time.Now()
	session, err := c.refresher.Refresh(ctx)

	c.mu.Lock()
	stale := epoch != c.epoch
	if err == nil && !stale {
		if storeErr := c.store.Set(ctx, session); storeErr != nil {
			err = fmt.Errorf("failed to store refreshed credential: %w", storeErr)
		}
	}

	var outcome refreshOutcome
	terminal := false
	switch {
	case stale:
		// Logout or a new login happened while refreshing; the result belongs
		// to a session that no longer exists.
		session, err = nil, nil
		if c.status == statusActive && c.current != "" {
			outcome = refreshOutcome{token: c.current}
		} else {
			err = c.statusErrLocked()
			if err == nil {
				err = core.ErrUnauthorized
			}
			outcome = refreshOutcome{err: err}
		}
	case err == nil:
		c.current = session.AccessToken
		outcome = refreshOutcome{token: session.AccessToken}
	case handle.reactive:
		terminal = true
		c.status = statusExpired
		c.current = ""
		if clearErr := c.store.Clear(ctx); clearErr != nil {
			c.logger.Error("failed to clear credential store", "error", clearErr)
		}
		outcome = refreshOutcome{err: fmt.Errorf("%w: %v", core.ErrSessionExpired, err)}
	default:
		outcome = refreshOutcome{err: err}
	}
	c.inflight = nil
	entries := c.pending.take()
	c.mu.Unlock()

	handle.resolve(session, outcome.err)
	release(entries, outcome)

	switch {
	case outcome.err == nil:
		c.logger.Info("credential refreshed", "replayed", len(entries), "duration", time.Since(started))
	case terminal:
		c.logger.Warn("refresh failed, session ended", "rejected", len(entries), "error", err)
		if c.onExpired != nil {
			c.onExpired(err)
		}
	case errors.Is(outcome.err, core.ErrUnauthorized):
		c.logger.Debug("refresh result discarded after logout", "rejected", len(entries))
	default:
		c.logger.Warn("proactive refresh failed", "error", err)
	}
}
