package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/layer-3/faucetadmin/core"
	"github.com/layer-3/faucetadmin/gateway"
	"github.com/layer-3/faucetadmin/internal/clock"
	"github.com/layer-3/faucetadmin/ports"
)

const (
	// DefaultAppScope prefixes every login challenge
	DefaultAppScope = "FaucetAdmin"
	// DefaultAccessLifetime is assumed when the credential carries no expiry
	DefaultAccessLifetime = 15 * time.Minute

	pathLogin   = "/admin/login"
	pathRefresh = "/admin/refresh"
	pathLogout  = "/admin/logout"
)

// AuthService handles the challenge-response login and the cookie-bound
// refresh and logout exchanges. It talks to the remote service directly rather
// than through the gateway, so the HTTP client must carry a cookie jar.
type AuthService struct {
	client    *http.Client
	baseURL   *url.URL
	store     ports.CredentialStore
	inspector ports.TokenInspector
	eventPub  ports.EventPublisher
	clock     clock.Clock
	logger    *slog.Logger

	appScope  string
	accessTTL time.Duration
}

// AuthOption configures an AuthService
type AuthOption func(*AuthService)

// WithAppScope sets the challenge prefix
func WithAppScope(scope string) AuthOption {
	return func(s *AuthService) { s.appScope = scope }
}

// WithAccessLifetime sets the assumed credential lifetime
func WithAccessLifetime(d time.Duration) AuthOption {
	return func(s *AuthService) { s.accessTTL = d }
}

// WithClock replaces the wall clock
func WithClock(c clock.Clock) AuthOption {
	return func(s *AuthService) { s.clock = c }
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) AuthOption {
	return func(s *AuthService) { s.logger = logger }
}

// NewAuthService creates a new authentication service
func NewAuthService(
	client *http.Client,
	baseURL *url.URL,
	store ports.CredentialStore,
	inspector ports.TokenInspector,
	eventPub ports.EventPublisher,
	opts ...AuthOption,
) *AuthService {
	s := &AuthService{
		client:    client,
		baseURL:   baseURL,
		store:     store,
		inspector: inspector,
		eventPub:  eventPub,
		clock:     clock.Real(),
		logger:    slog.Default(),
		appScope:  DefaultAppScope,
		accessTTL: DefaultAccessLifetime,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "auth")
	return s
}

// authResponse is the body of a successful login or refresh
type authResponse struct {
	AccessToken string    `json:"accessToken"`
	User        core.User `json:"user"`
}

// ComposeChallenge builds the message the wallet is asked to sign
func (s *AuthService) ComposeChallenge(address string) core.Challenge {
	return core.NewChallenge(s.appScope, address, s.clock.Now())
}

// Login proves control of the wallet and stores the issued credential. The
// refresh cookie set by the server lands in the client's jar.
func (s *AuthService) Login(ctx context.Context, wallet ports.Wallet) (*core.Session, error) {
	if wallet == nil || wallet.Address() == "" {
		return nil, core.ErrWalletNotConnected
	}

	challenge := s.ComposeChallenge(wallet.Address())
	signed, err := wallet.SignMessage(ctx, []byte(challenge.Message))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSignatureDenied, err)
	}
	if signed.Signature == "" || signed.Bytes == "" {
		return nil, core.ErrSignatureDenied
	}

	status, payload, err := s.post(ctx, pathLogin, map[string]string{
		"walletAddress": challenge.Address,
		"message":       challenge.Message,
		"signature":     signed.Signature,
		"signedBytes":   signed.Bytes,
	}, "")
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		s.logger.Warn("login rejected", "address", challenge.Address, "status", status)
		return nil, &core.LoginRejectedError{Status: status, Reason: gateway.ErrorMessage(payload)}
	}

	session, err := s.sessionFrom(payload, challenge.Address)
	if err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store credential: %w", err)
	}

	s.logger.Info("logged in", "address", session.Address, "role", session.Role, "expires_at", session.ExpiresAt)
	s.publish(ctx, core.EventLogin, session.Address, "")
	return session, nil
}

// Refresh exchanges the refresh cookie for a new credential. The store is left
// to the caller.
func (s *AuthService) Refresh(ctx context.Context) (*core.Session, error) {
	status, payload, err := s.post(ctx, pathRefresh, nil, "")
	if err != nil {
		return nil, err
	}
	if !isSuccess(status) {
		return nil, &core.StatusError{Code: status, Message: gateway.ErrorMessage(payload), Err: core.ErrRefreshRejected}
	}

	return s.sessionFrom(payload, "")
}

// Logout ends the session on the server and locally. The local credential is
// cleared even when the server call fails.
func (s *AuthService) Logout(ctx context.Context) error {
	var (
		token   string
		address string
	)
	if session, err := s.store.Get(ctx); err == nil {
		token = session.AccessToken
		address = session.Address
	}

	status, payload, postErr := s.post(ctx, pathLogout, nil, token)
	if postErr == nil && !isSuccess(status) {
		postErr = &core.StatusError{Code: status, Message: gateway.ErrorMessage(payload)}
	}

	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear credential: %w", err)
	}
	s.publish(ctx, core.EventLogout, address, "")

	if postErr != nil {
		s.logger.Warn("server logout failed", "error", postErr)
		return postErr
	}
	s.logger.Info("logged out", "address", address)
	return nil
}

func (s *AuthService) sessionFrom(payload []byte, fallbackAddress string) (*core.Session, error) {
	var resp authResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, fmt.Errorf("failed to decode auth response: %w", err)
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("auth response carried no access token")
	}

	now := s.clock.Now()
	session := &core.Session{
		Address:     resp.User.WalletAddress,
		Role:        resp.User.Role,
		AccessToken: resp.AccessToken,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.accessTTL),
	}

	info, err := s.inspector.Inspect(resp.AccessToken)
	if err != nil {
		s.logger.Debug("access token is opaque, assuming default lifetime", "error", err)
	} else {
		if !info.IssuedAt.IsZero() {
			session.IssuedAt = info.IssuedAt
		}
		if !info.ExpiresAt.IsZero() {
			session.ExpiresAt = info.ExpiresAt
		}
		if session.Address == "" {
			session.Address = info.Subject
		}
		if session.Role == "" {
			session.Role = info.Role
		}
	}
	if session.Address == "" {
		session.Address = fallbackAddress
	}

	return session, nil
}

// post sends a JSON body through the cookie-carrying client
func (s *AuthService) post(ctx context.Context, path string, body any, token string) (int, []byte, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL.JoinPath(path).String(), reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, nil, &core.NetworkError{Op: "POST " + path, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, &core.NetworkError{Op: "POST " + path, Err: err}
	}
	return resp.StatusCode, payload, nil
}

func (s *AuthService) publish(ctx context.Context, typ core.SessionEventType, address, reason string) {
	event := core.SessionEvent{Type: typ, Address: address, Reason: reason, At: s.clock.Now()}
	if err := s.eventPub.PublishSessionEvent(ctx, event); err != nil {
		s.logger.Warn("failed to publish session event", "type", typ, "error", err)
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
