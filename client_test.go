package faucetadmin

import (
	"context"
	"net/http/cookiejar"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/faucetadmin/adapters/store"
	"github.com/layer-3/faucetadmin/adapters/wallet"
	"github.com/layer-3/faucetadmin/config"
	"github.com/layer-3/faucetadmin/core"
	"github.com/layer-3/faucetadmin/internal/clock"
	"github.com/layer-3/faucetadmin/internal/faucettest"
	"github.com/layer-3/faucetadmin/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/sync/errgroup"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type eventRecorder struct {
	mu     sync.Mutex
	events []core.SessionEvent
}

func (r *eventRecorder) PublishSessionEvent(_ context.Context, event core.SessionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *eventRecorder) has(typ core.SessionEventType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Type == typ {
			return true
		}
	}
	return false
}

type fixture struct {
	server *faucettest.Server
	clock  *clock.FakeClock
	cfg    config.Config
	events *eventRecorder
	wallet ports.Wallet
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	fake := clock.Fake(t0)
	server := faucettest.New(fake)
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.APIURL = server.URL()
	cfg.AppScope = faucettest.AppScope

	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	return &fixture{
		server: server,
		clock:  fake,
		cfg:    cfg,
		events: &eventRecorder{},
		wallet: wallet.NewKeyWallet(key),
	}
}

func (f *fixture) client(t *testing.T, opts ...Option) *AdminClient {
	t.Helper()
	opts = append([]Option{
		WithClock(f.clock),
		WithTransport(f.server.Client().Transport),
		WithEventPublisher(f.events),
	}, opts...)
	c, err := New(f.cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// Five calls made after the credential lapsed share one refresh, and that
// refresh redeems the cookie issued at login.
func TestAdminClient_ConcurrentCallsAfterExpiry(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)
	ctx := context.Background()

	_, err := c.Login(ctx, f.wallet)
	require.NoError(t, err)
	loginCookie := f.server.IssuedCookies()[0]

	// The process was suspended; no renewal ran.
	c.renewer.Stop()
	f.server.HoldRefreshes()
	f.clock.Advance(16 * time.Minute)

	calls := []func(context.Context) error{
		func(ctx context.Context) error { _, err := c.Me(ctx); return err },
		func(ctx context.Context) error { _, err := c.FaucetConfig(ctx); return err },
		func(ctx context.Context) error { _, err := c.Analytics(ctx); return err },
		func(ctx context.Context) error { _, err := c.Timeseries(ctx, "hourly", "24h"); return err },
		func(ctx context.Context) error { _, err := c.Me(ctx); return err },
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, call := range calls {
		call := call
		g.Go(func() error { return call(gctx) })
	}

	require.Eventually(t, func() bool { return f.server.Unauthorized() == len(calls) }, 5*time.Second, time.Millisecond)
	f.server.ReleaseRefreshes()
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, f.server.RefreshCalls())
	assert.Equal(t, []string{loginCookie}, f.server.ConsumedCookies())
	assert.Len(t, f.server.IssuedCookies(), 2)
	assert.Equal(t, 1, c.Coordinator().Refreshes())
}

func TestAdminClient_CallBeforeLogin(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)

	_, err := c.Me(context.Background())
	assert.ErrorIs(t, err, core.ErrUnauthorized)
	assert.Equal(t, 0, f.server.RefreshCalls())
	assert.False(t, f.events.has(core.EventSessionExpired))

	_, err = c.Login(context.Background(), f.wallet)
	require.NoError(t, err)
	_, err = c.Me(context.Background())
	require.NoError(t, err)
}

func TestAdminClient_Logout(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)
	ctx := context.Background()

	_, err := c.Login(ctx, f.wallet)
	require.NoError(t, err)
	require.True(t, c.Renewing())

	require.NoError(t, c.Logout(ctx))
	assert.False(t, c.Renewing())
	assert.True(t, f.events.has(core.EventLogout))

	_, err = c.Session(ctx)
	assert.ErrorIs(t, err, core.ErrNoSession)

	_, err = c.Me(ctx)
	assert.ErrorIs(t, err, core.ErrUnauthorized)
	assert.Equal(t, 0, f.server.RefreshCalls())

	// Signing in again starts a new session.
	_, err = c.Login(ctx, f.wallet)
	require.NoError(t, err)
	_, err = c.Me(ctx)
	require.NoError(t, err)
}

func TestAdminClient_RefreshFailureExpiresSession(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)
	ctx := context.Background()

	_, err := c.Login(ctx, f.wallet)
	require.NoError(t, err)

	f.server.FailRefresh(true)
	c.renewer.Stop()
	f.clock.Advance(16 * time.Minute)

	_, err = c.Dashboard(ctx, "", "")
	assert.ErrorIs(t, err, core.ErrSessionExpired)

	require.Eventually(t, func() bool { return f.events.has(core.EventSessionExpired) }, 5*time.Second, time.Millisecond)
	assert.Equal(t, 1, f.server.RefreshCalls())

	_, err = c.Session(ctx)
	assert.ErrorIs(t, err, core.ErrNoSession)

	// Further calls fail without another refresh attempt.
	_, err = c.Me(ctx)
	assert.ErrorIs(t, err, core.ErrSessionExpired)
	assert.Equal(t, 1, f.server.RefreshCalls())
}

func TestAdminClient_RenewalFailureThenExpiry(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)
	ctx := context.Background()

	_, err := c.Login(ctx, f.wallet)
	require.NoError(t, err)
	f.clock.WaitForTimers(1)

	f.server.FailRefresh(true)
	f.clock.Advance(f.cfg.RenewInterval)
	require.Eventually(t, func() bool { return f.events.has(core.EventRenewalFailed) }, 5*time.Second, time.Millisecond)
	assert.True(t, c.Renewing())

	// The credential is still valid until it lapses.
	_, err = c.Me(ctx)
	require.NoError(t, err)

	f.clock.Advance(2 * time.Minute)
	_, err = c.Me(ctx)
	assert.ErrorIs(t, err, core.ErrSessionExpired)
	require.Eventually(t, func() bool { return !c.Renewing() }, 5*time.Second, time.Millisecond)
}

func TestAdminClient_Resume(t *testing.T) {
	f := newFixture(t)
	credentials := store.NewMemoryStore()
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	require.NoError(t, err)
	first := f.client(t, WithStore(credentials), WithCookieJar(jar))

	_, err = first.Login(context.Background(), f.wallet)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// A client sharing the store and cookie jar picks the session up.
	second := f.client(t, WithStore(credentials), WithCookieJar(jar))
	user, err := second.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, f.wallet.Address(), user.WalletAddress)
	assert.True(t, second.Renewing())

	// An empty store has nothing to resume.
	third := f.client(t)
	_, err = third.Resume(context.Background())
	assert.ErrorIs(t, err, core.ErrNoSession)
}

// A restarted process shares the durable store but starts with an empty jar.
func TestAdminClient_ResumeAfterRestart(t *testing.T) {
	f := newFixture(t)
	credentials := store.NewMemoryStore()
	first := f.client(t, WithStore(credentials))

	_, err := first.Login(context.Background(), f.wallet)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	restarted := f.client(t, WithStore(credentials))
	require.False(t, restarted.Guard().HasRefreshCookie())

	user, err := restarted.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, f.wallet.Address(), user.WalletAddress)
	assert.False(t, restarted.Renewing())

	_, err = credentials.Get(context.Background())
	require.NoError(t, err)
	s, err := restarted.Session(context.Background())
	require.NoError(t, err)
	assert.Equal(t, f.wallet.Address(), s.Address)

	_, err = restarted.FaucetConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, f.server.RefreshCalls())
}

func TestAdminClient_ResumeAfterRestartExpired(t *testing.T) {
	f := newFixture(t)
	credentials := store.NewMemoryStore()
	first := f.client(t, WithStore(credentials))

	_, err := first.Login(context.Background(), f.wallet)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	f.clock.Advance(16 * time.Minute)

	restarted := f.client(t, WithStore(credentials))
	_, err = restarted.Resume(context.Background())
	assert.ErrorIs(t, err, core.ErrSessionExpired)
	assert.Equal(t, 1, f.server.RefreshCalls())

	_, err = credentials.Get(context.Background())
	assert.ErrorIs(t, err, core.ErrNoCredential)
	_, err = restarted.Session(context.Background())
	assert.ErrorIs(t, err, core.ErrNoSession)
}

func TestAdminClient_RequestTokensCooldown(t *testing.T) {
	f := newFixture(t)
	c := f.client(t)
	address := "0x00000000000000000000000000000000000000c3"

	_, err := c.RequestTokens(context.Background(), address)
	require.NoError(t, err)

	_, err = c.RequestTokens(context.Background(), address)
	var limited *core.RateLimitedError
	require.ErrorAs(t, err, &limited)

	cooldown := core.NewCooldown(f.clock.Now(), limited.RetryAfter)
	assert.Equal(t, "01:00:00", cooldown.Format(f.clock.Now()))
	f.clock.Advance(30 * time.Minute)
	assert.Equal(t, "00:30:00", cooldown.Format(f.clock.Now()))
	f.clock.Advance(31 * time.Minute)
	assert.Equal(t, "00:00:00", cooldown.Format(f.clock.Now()))
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.RenewInterval = cfg.AccessLifetime
	_, err := New(cfg)
	assert.Error(t, err)
}
