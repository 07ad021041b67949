// Package faucetadmin is a client for the faucet admin API. It signs in with a
// wallet, keeps the short-lived access credential renewed, and repairs expired
// credentials transparently so callers only ever see a session that works or
// core.ErrSessionExpired.
package faucetadmin

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"

	"github.com/layer-3/faucetadmin/adapters/events"
	"github.com/layer-3/faucetadmin/adapters/store"
	"github.com/layer-3/faucetadmin/adapters/tokenizer"
	"github.com/layer-3/faucetadmin/config"
	"github.com/layer-3/faucetadmin/core"
	"github.com/layer-3/faucetadmin/gateway"
	"github.com/layer-3/faucetadmin/internal/clock"
	"github.com/layer-3/faucetadmin/ports"
	"github.com/layer-3/faucetadmin/service"
	"github.com/layer-3/faucetadmin/session"
	"golang.org/x/net/publicsuffix"
)

// AdminClient wires the credential store, gateway, refresh coordinator,
// renewer and guard into one session
type AdminClient struct {
	auth        *service.AuthService
	admin       *service.AdminService
	faucet      *service.FaucetService
	coordinator *gateway.Coordinator
	renewer     *session.Renewer
	guard       *session.Guard
	eventPub    ports.EventPublisher
	clock       clock.Clock
	logger      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

type options struct {
	store     ports.CredentialStore
	eventPub  ports.EventPublisher
	clock     clock.Clock
	logger    *slog.Logger
	jar       http.CookieJar
	transport http.RoundTripper
}

// Option configures an AdminClient
type Option func(*options)

// WithStore sets where the credential is kept. Defaults to memory.
func WithStore(s ports.CredentialStore) Option {
	return func(o *options) { o.store = s }
}

// WithEventPublisher sets where session events go. Defaults to nowhere.
func WithEventPublisher(p ports.EventPublisher) Option {
	return func(o *options) { o.eventPub = p }
}

// WithClock replaces the wall clock
func WithClock(c clock.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCookieJar shares a cookie jar, e.g. to resume a session
func WithCookieJar(jar http.CookieJar) Option {
	return func(o *options) { o.jar = jar }
}

// WithTransport sets the HTTP transport
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// New creates a client for cfg. No network call is made until Login or Resume.
func New(cfg config.Config, opts ...Option) (*AdminClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	o := options{
		store:    store.NewMemoryStore(),
		eventPub: events.NewNopPublisher(),
		clock:    clock.Real(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.jar == nil {
		jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("failed to create cookie jar: %w", err)
		}
		o.jar = jar
	}

	httpClient := &http.Client{
		Jar:       o.jar,
		Timeout:   cfg.HTTPTimeout,
		Transport: o.transport,
	}
	baseURL := cfg.BaseURL()

	ctx, cancel := context.WithCancel(context.Background())
	c := &AdminClient{
		eventPub: o.eventPub,
		clock:    o.clock,
		logger:   o.logger,
		ctx:      ctx,
		cancel:   cancel,
	}

	c.auth = service.NewAuthService(httpClient, baseURL, o.store, tokenizer.NewJWTInspector(), o.eventPub,
		service.WithAppScope(cfg.AppScope),
		service.WithAccessLifetime(cfg.AccessLifetime),
		service.WithClock(o.clock),
		service.WithLogger(o.logger),
	)
	c.coordinator = gateway.NewCoordinator(c.auth, o.store,
		gateway.WithRefreshTimeout(cfg.RefreshTimeout),
		gateway.WithExpiryHook(c.onSessionExpired),
		gateway.WithCoordinatorLogger(o.logger),
	)

	gw := gateway.New(httpClient, baseURL, o.store, c.coordinator, o.logger)
	c.admin = service.NewAdminService(gw)
	c.faucet = service.NewFaucetService(gw)
	c.renewer = session.NewRenewer(c.coordinator, o.clock, cfg.RenewInterval, o.eventPub, o.logger)
	c.guard = session.NewGuard(o.jar, baseURL.JoinPath("/admin/refresh"), o.store, cfg.RefreshCookie, o.logger)

	return c, nil
}

// Login signs in with wallet and starts background renewal
func (c *AdminClient) Login(ctx context.Context, wallet ports.Wallet) (*core.Session, error) {
	s, err := c.auth.Login(ctx, wallet)
	if err != nil {
		return nil, err
	}
	c.coordinator.Begin(s)
	c.renewer.Start(c.ctx)
	return s, nil
}

// Resume continues a session found in the store and confirms it with the
// backend. Without the refresh cookie, e.g. after a restart, the session lasts
// only as long as its access credential and is not renewed.
func (c *AdminClient) Resume(ctx context.Context) (*core.User, error) {
	s, err := c.guard.Stored(ctx)
	if err != nil {
		return nil, err
	}
	c.coordinator.Begin(s)

	user, err := c.guard.Reconcile(ctx, c.admin)
	if err != nil {
		c.coordinator.End()
		return nil, err
	}
	if c.guard.HasRefreshCookie() {
		c.renewer.Start(c.ctx)
	}
	c.logger.Info("session resumed", "address", user.WalletAddress, "renewing", c.renewer.Running())
	return user, nil
}

// Logout stops renewal, rejects queued requests and ends the session
func (c *AdminClient) Logout(ctx context.Context) error {
	c.renewer.Stop()
	c.coordinator.End()
	return c.auth.Logout(ctx)
}

// Session returns the current session as the route guard sees it
func (c *AdminClient) Session(ctx context.Context) (*core.Session, error) {
	return c.guard.Check(ctx)
}

// Guard returns the route guard
func (c *AdminClient) Guard() *session.Guard { return c.guard }

// Coordinator returns the refresh coordinator
func (c *AdminClient) Coordinator() *gateway.Coordinator { return c.coordinator }

// Renewing reports whether background renewal is active
func (c *AdminClient) Renewing() bool { return c.renewer.Running() }

func (c *AdminClient) Me(ctx context.Context) (*core.User, error) {
	return c.admin.Me(ctx)
}

func (c *AdminClient) FaucetConfig(ctx context.Context) (*core.FaucetConfig, error) {
	return c.admin.FaucetConfig(ctx)
}

func (c *AdminClient) UpdateFaucetConfig(ctx context.Context, update core.FaucetConfigUpdate) (*core.FaucetConfig, error) {
	return c.admin.UpdateFaucetConfig(ctx, update)
}

func (c *AdminClient) Analytics(ctx context.Context) (*core.Analytics, error) {
	return c.admin.Analytics(ctx)
}

func (c *AdminClient) Timeseries(ctx context.Context, granularity, window string) (*core.Timeseries, error) {
	return c.admin.Timeseries(ctx, granularity, window)
}

func (c *AdminClient) Dashboard(ctx context.Context, granularity, window string) (*core.Dashboard, error) {
	return c.admin.Dashboard(ctx, granularity, window)
}

func (c *AdminClient) RequestTokens(ctx context.Context, address string) (*core.FaucetResult, error) {
	return c.faucet.RequestTokens(ctx, address)
}

// Close stops background renewal. The session itself is left intact.
func (c *AdminClient) Close() error {
	c.renewer.Stop()
	c.cancel()
	return nil
}

// onSessionExpired runs once after a failed refresh ended the session
func (c *AdminClient) onSessionExpired(cause error) {
	c.renewer.Stop()

	event := core.SessionEvent{
		Type:   core.EventSessionExpired,
		Reason: cause.Error(),
		At:     c.clock.Now(),
	}
	if err := c.eventPub.PublishSessionEvent(c.ctx, event); err != nil {
		c.logger.Warn("failed to publish session event", "type", event.Type, "error", err)
	}
}

var _ Client = (*AdminClient)(nil)
