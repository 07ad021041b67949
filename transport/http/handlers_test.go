package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/faucetadmin/adapters/events"
	"github.com/layer-3/faucetadmin/core"
	"github.com/layer-3/faucetadmin/internal/clock"
	"github.com/layer-3/faucetadmin/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubClient struct {
	session  *core.Session
	loginErr error
	callErr  error
	faucet   error
	logouts  int
}

func (s *stubClient) Login(_ context.Context, _ ports.Wallet) (*core.Session, error) {
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	return s.session, nil
}

func (s *stubClient) Resume(context.Context) (*core.User, error) {
	return &core.User{WalletAddress: s.session.Address}, nil
}

func (s *stubClient) Logout(context.Context) error {
	s.logouts++
	return nil
}

func (s *stubClient) Session(context.Context) (*core.Session, error) {
	if s.session == nil {
		return nil, core.ErrNoSession
	}
	return s.session, nil
}

func (s *stubClient) Me(context.Context) (*core.User, error) {
	if s.callErr != nil {
		return nil, s.callErr
	}
	return &core.User{WalletAddress: s.session.Address, Role: s.session.Role}, nil
}

func (s *stubClient) FaucetConfig(context.Context) (*core.FaucetConfig, error) {
	if s.callErr != nil {
		return nil, s.callErr
	}
	return &core.FaucetConfig{Enabled: true, CooldownSeconds: 3600}, nil
}

func (s *stubClient) UpdateFaucetConfig(_ context.Context, update core.FaucetConfigUpdate) (*core.FaucetConfig, error) {
	if s.callErr != nil {
		return nil, s.callErr
	}
	cfg := &core.FaucetConfig{CooldownSeconds: 3600}
	if update.Enabled != nil {
		cfg.Enabled = *update.Enabled
	}
	return cfg, nil
}

func (s *stubClient) Analytics(context.Context) (*core.Analytics, error) {
	return &core.Analytics{}, s.callErr
}

func (s *stubClient) Timeseries(_ context.Context, granularity, window string) (*core.Timeseries, error) {
	return &core.Timeseries{Granularity: granularity, Range: window}, s.callErr
}

func (s *stubClient) Dashboard(context.Context, string, string) (*core.Dashboard, error) {
	if s.callErr != nil {
		return nil, s.callErr
	}
	return &core.Dashboard{}, nil
}

func (s *stubClient) RequestTokens(context.Context, string) (*core.FaucetResult, error) {
	if s.faucet != nil {
		return nil, s.faucet
	}
	return &core.FaucetResult{Status: "success", Tx: "0xfeed"}, nil
}

func (s *stubClient) Close() error { return nil }

type stubChecker struct {
	err error
}

func (s stubChecker) Check(context.Context) (*core.Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &core.Session{Address: "0xabc"}, nil
}

func newRouter(client *stubClient, checker SessionChecker, notices *NoticeFeed) *gin.Engine {
	if notices == nil {
		notices = NewNoticeFeed(0, nil)
	}
	handlers := NewConsoleHandlers(client, nil, notices, clock.Fake(t0), slog.Default())
	return SetupRouter(handlers, checker, nil)
}

func serve(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRouteGuard_RedirectsWithoutSession(t *testing.T) {
	client := &stubClient{session: &core.Session{Address: "0xabc"}}
	router := newRouter(client, stubChecker{err: core.ErrNoSession}, nil)

	for _, path := range []string{"/admin", "/admin/me", "/admin/config", "/admin/analytics/timeseries"} {
		w := serve(router, http.MethodGet, path, "")
		assert.Equal(t, http.StatusFound, w.Code, path)
		assert.Equal(t, LoginPath, w.Header().Get("Location"), path)
	}

	// The login entry point itself stays reachable.
	w := serve(router, http.MethodGet, LoginPath, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouteGuard_AllowsSession(t *testing.T) {
	client := &stubClient{session: &core.Session{Address: "0xabc", Role: "admin"}}
	router := newRouter(client, stubChecker{}, nil)

	w := serve(router, http.MethodGet, "/admin/me", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		User core.User `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "0xabc", body.User.WalletAddress)
	assert.Equal(t, "admin", body.User.Role)
}

func TestHandlers_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		code     int
		location string
	}{
		{"session expired", core.ErrSessionExpired, http.StatusFound, LoginPath + "?notice=expired"},
		{"unauthorized", &core.StatusError{Code: 401, Err: core.ErrUnauthorized}, http.StatusFound, LoginPath},
		{"no session", core.ErrNoSession, http.StatusFound, LoginPath},
		{"status", &core.StatusError{Code: http.StatusServiceUnavailable, Message: "maintenance"}, http.StatusServiceUnavailable, ""},
		{"network", &core.NetworkError{Op: "GET /admin/config", Err: errors.New("refused")}, http.StatusBadGateway, ""},
		{"other", errors.New("boom"), http.StatusInternalServerError, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &stubClient{session: &core.Session{Address: "0xabc"}, callErr: tt.err}
			router := newRouter(client, stubChecker{}, nil)

			w := serve(router, http.MethodGet, "/admin/config", "")
			assert.Equal(t, tt.code, w.Code)
			if tt.location != "" {
				assert.Equal(t, tt.location, w.Header().Get("Location"))
			}
		})
	}
}

func TestHandlers_Login(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		msg  string
	}{
		{"success", nil, http.StatusOK, ""},
		{"wallet missing", core.ErrWalletNotConnected, http.StatusBadRequest, "Wallet not connected"},
		{"denied", errors.Join(core.ErrSignatureDenied, errors.New("user rejected")), http.StatusBadRequest, "Signature request was denied"},
		{"rejected", &core.LoginRejectedError{Status: 401, Reason: "Invalid signature"}, http.StatusUnauthorized, "Invalid signature"},
		{"unreachable", &core.NetworkError{Op: "POST /admin/login", Err: errors.New("refused")}, http.StatusBadGateway, "Faucet backend unreachable"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &stubClient{
				session:  &core.Session{Address: "0xabc", Role: "admin", ExpiresAt: t0.Add(15 * time.Minute)},
				loginErr: tt.err,
			}
			router := newRouter(client, stubChecker{}, nil)

			w := serve(router, http.MethodPost, LoginPath, "")
			require.Equal(t, tt.code, w.Code)

			var body map[string]any
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tt.err == nil {
				assert.Equal(t, "0xabc", body["address"])
				return
			}
			assert.Equal(t, tt.msg, body["error"])
		})
	}
}

func TestHandlers_Logout(t *testing.T) {
	client := &stubClient{session: &core.Session{Address: "0xabc"}}
	router := newRouter(client, stubChecker{}, nil)

	w := serve(router, http.MethodPost, "/admin/logout", "")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, LoginPath, w.Header().Get("Location"))
	assert.Equal(t, 1, client.logouts)
}

func TestHandlers_UpdateConfig(t *testing.T) {
	client := &stubClient{session: &core.Session{Address: "0xabc"}}
	router := newRouter(client, stubChecker{}, nil)

	w := serve(router, http.MethodPost, "/admin/config", `{"enabled":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool              `json:"success"`
		Config  core.FaucetConfig `json:"config"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.True(t, body.Config.Enabled)

	w = serve(router, http.MethodPost, "/admin/config", `{"enabled":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandlers_FaucetCooldown(t *testing.T) {
	client := &stubClient{faucet: &core.RateLimitedError{RetryAfter: time.Hour, Message: "Please wait"}}
	router := newRouter(client, stubChecker{err: core.ErrNoSession}, nil)

	w := serve(router, http.MethodPost, "/faucet", `{"address":"0x00000000000000000000000000000000000000c3"}`)
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	var body struct {
		Error     string    `json:"error"`
		Deadline  time.Time `json:"deadline"`
		Remaining string    `json:"remaining"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Please wait", body.Error)
	assert.Equal(t, "01:00:00", body.Remaining)
	assert.True(t, body.Deadline.Equal(t0.Add(time.Hour)))

	client.faucet = core.ErrInvalidAddress
	w = serve(router, http.MethodPost, "/faucet", `{"address":"nope"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	client.faucet = nil
	w = serve(router, http.MethodPost, "/faucet", `{"address":"0x00000000000000000000000000000000000000c3"}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNoticeFeed_Bounded(t *testing.T) {
	feed := NewNoticeFeed(2, nil)
	feed.Add(core.SessionEvent{Type: core.EventLogin})
	feed.Add(core.SessionEvent{Type: core.EventRenewed})
	feed.Add(core.SessionEvent{Type: core.EventSessionExpired})

	recent := feed.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, core.EventSessionExpired, recent[0].Type)
	assert.Equal(t, core.EventRenewed, recent[1].Type)
}

func TestNoticeFeed_ConsumesSessionEvents(t *testing.T) {
	pubsub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NewSlogLogger(slog.Default()))
	t.Cleanup(func() { _ = pubsub.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	feed := NewNoticeFeed(10, slog.Default())
	done := make(chan error, 1)
	go func() { done <- feed.Run(ctx, pubsub) }()

	publisher := events.NewWatermillPublisher(pubsub)
	// The subscription is registered asynchronously; publish until it lands.
	require.Eventually(t, func() bool {
		_ = publisher.PublishSessionEvent(ctx, core.SessionEvent{Type: core.EventSessionExpired, Reason: "refresh rejected", At: t0})
		return len(feed.Recent()) > 0
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, core.EventSessionExpired, feed.Recent()[0].Type)

	client := &stubClient{}
	router := newRouter(client, stubChecker{}, feed)
	w := serve(router, http.MethodGet, "/notices", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"session_expired"`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("feed did not stop")
	}
}
