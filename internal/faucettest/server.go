// Package faucettest runs an in-process stand-in for the faucet backend: wallet
// login, rotating single-use refresh cookies, ES256 access credentials and the
// admin and faucet endpoints. It records what it issued and consumed so tests
// can assert on the exact exchange sequence.
package faucettest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/layer-3/faucetadmin/adapters/tokenizer"
	"github.com/layer-3/faucetadmin/core"
	"github.com/layer-3/faucetadmin/internal/clock"
	"github.com/layer-3/faucetadmin/internal/eth"
	"github.com/shopspring/decimal"
)

const (
	CookieName     = "refreshToken"
	AppScope       = "FaucetAdmin"
	AccessLifetime = 15 * time.Minute
	RefreshMaxAge  = 7 * 24 * time.Hour
	Cooldown       = time.Hour
)

// refreshRecord is one issued refresh cookie
type refreshRecord struct {
	address  string
	consumed bool
}

// Server is the fake backend. All accessors are safe for concurrent use.
type Server struct {
	http  *httptest.Server
	key   *ecdsa.PrivateKey
	clock clock.Clock

	mu           sync.Mutex
	refresh      map[string]*refreshRecord
	issued       []string
	consumed     []string
	refreshCalls int
	unauthorized int
	loginCalls   int
	failRefresh  bool
	gate         chan struct{}
	config       core.FaucetConfig
	lastClaim    map[string]time.Time
	claimed      []string
}

// New starts a server whose notion of time is c
func New(c clock.Clock) *Server {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		panic(fmt.Sprintf("faucettest: failed to generate key: %v", err))
	}

	s := &Server{
		key:       key,
		clock:     c,
		refresh:   make(map[string]*refreshRecord),
		lastClaim: make(map[string]time.Time),
		config: core.FaucetConfig{
			AvailableBalance:     decimal.RequireFromString("1000.5"),
			FaucetAmount:         decimal.RequireFromString("0.01"),
			CooldownSeconds:      int64(Cooldown / time.Second),
			Enabled:              true,
			MaxRequestsPerIP:     5,
			MaxRequestsPerWallet: 1,
		},
	}

	gin.SetMode(gin.TestMode)
	s.http = httptest.NewServer(s.router())
	return s
}

// URL is the API base URL, ending in /api
func (s *Server) URL() string { return s.http.URL + "/api" }

// Client returns an HTTP client for the server without a cookie jar
func (s *Server) Client() *http.Client { return s.http.Client() }

// Close shuts the server down
func (s *Server) Close() { s.http.Close() }

// HoldRefreshes makes /admin/refresh block until ReleaseRefreshes
func (s *Server) HoldRefreshes() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
}

// ReleaseRefreshes unblocks held refreshes
func (s *Server) ReleaseRefreshes() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gate != nil {
		close(s.gate)
		s.gate = nil
	}
}

// FailRefresh makes every refresh answer 401
func (s *Server) FailRefresh(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRefresh = fail
}

// RefreshCalls counts /admin/refresh requests
func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

// LoginCalls counts /admin/login requests
func (s *Server) LoginCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginCalls
}

// Unauthorized counts protected requests rejected with 401
func (s *Server) Unauthorized() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unauthorized
}

// IssuedCookies lists refresh cookie values in issue order
func (s *Server) IssuedCookies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.issued...)
}

// ConsumedCookies lists refresh cookie values in the order they were redeemed
func (s *Server) ConsumedCookies() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.consumed...)
}

// FaucetAddresses lists the addresses faucet requests were made for, as received
func (s *Server) FaucetAddresses() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.claimed...)
}

// Config returns the faucet config as the server currently holds it
func (s *Server) Config() core.FaucetConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

func (s *Server) router() *gin.Engine {
	router := gin.New()

	api := router.Group("/api")
	api.POST("/faucet", s.handleFaucet)

	admin := api.Group("/admin")
	{
		admin.POST("/login", s.handleLogin)
		admin.POST("/refresh", s.handleRefresh)
		admin.POST("/logout", s.handleLogout)
	}

	protected := admin.Group("")
	protected.Use(s.requireAccess)
	{
		protected.GET("/me", s.handleMe)
		protected.GET("/config", s.handleConfig)
		protected.POST("/config/update", s.handleConfigUpdate)
		protected.GET("/analytics", s.handleAnalytics)
		protected.GET("/analytics/timeseries", s.handleTimeseries)
	}

	return router
}

func (s *Server) handleLogin(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"walletAddress" binding:"required"`
		Message       string `json:"message" binding:"required"`
		Signature     string `json:"signature" binding:"required"`
		SignedBytes   string `json:"signedBytes"`
	}
	s.mu.Lock()
	s.loginCalls++
	s.mu.Unlock()

	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	if !strings.HasPrefix(req.Message, AppScope+"Login_") || !strings.HasSuffix(req.Message, "_"+req.WalletAddress) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid login message"})
		return
	}
	if req.SignedBytes != "" {
		raw, err := base64.StdEncoding.DecodeString(req.SignedBytes)
		if err != nil || string(raw) != req.Message {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Signed bytes do not match message"})
			return
		}
	}
	if err := eth.VerifyPersonal([]byte(req.Message), req.Signature, req.WalletAddress); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	s.issue(c, req.WalletAddress)
}

func (s *Server) handleRefresh(c *gin.Context) {
	s.mu.Lock()
	s.refreshCalls++
	gate := s.gate
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-c.Request.Context().Done():
			return
		}
	}

	value, err := c.Cookie(CookieName)
	if err != nil || value == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Refresh token missing"})
		return
	}

	s.mu.Lock()
	record, ok := s.refresh[value]
	switch {
	case s.failRefresh:
		ok = false
	case ok && record.consumed:
		ok = false
	case ok:
		record.consumed = true
		s.consumed = append(s.consumed, value)
	}
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid refresh token"})
		return
	}

	s.issue(c, record.address)
}

func (s *Server) handleLogout(c *gin.Context) {
	if value, err := c.Cookie(CookieName); err == nil {
		s.mu.Lock()
		if record, ok := s.refresh[value]; ok {
			record.consumed = true
		}
		s.mu.Unlock()
	}

	c.SetCookie(CookieName, "", -1, "/api/admin", "", false, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// issue mints an access credential, rotates the refresh cookie and writes the
// login/refresh response
func (s *Server) issue(c *gin.Context, address string) {
	now := s.clock.Now()
	claims := tokenizer.AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   address,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(AccessLifetime)),
			Audience:  jwt.ClaimStrings{tokenizer.AudienceAccess},
		},
		WalletAddress: address,
		Role:          "admin",
	}
	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(s.key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to sign token"})
		return
	}

	value := uuid.New().String()
	s.mu.Lock()
	s.refresh[value] = &refreshRecord{address: address}
	s.issued = append(s.issued, value)
	s.mu.Unlock()

	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(CookieName, value, int(RefreshMaxAge/time.Second), "/api/admin", "", false, true)
	c.JSON(http.StatusOK, gin.H{
		"accessToken": accessToken,
		"user":        core.User{WalletAddress: address, Role: "admin"},
	})
}

// requireAccess validates the bearer credential against the fake clock
func (s *Server) requireAccess(c *gin.Context) {
	auth := c.GetHeader("Authorization")
	if len(auth) < 8 || auth[:7] != "Bearer " {
		s.reject(c, "Missing authorization header")
		return
	}

	claims := &tokenizer.AccessClaims{}
	_, err := jwt.ParseWithClaims(auth[7:], claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodECDSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return &s.key.PublicKey, nil
	}, jwt.WithAudience(tokenizer.AudienceAccess), jwt.WithTimeFunc(s.clock.Now), jwt.WithExpirationRequired())
	if err != nil {
		s.reject(c, "Invalid or expired token")
		return
	}

	c.Set("walletAddress", claims.WalletAddress)
	c.Next()
}

func (s *Server) reject(c *gin.Context, msg string) {
	s.mu.Lock()
	s.unauthorized++
	s.mu.Unlock()
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": msg})
}

func (s *Server) handleMe(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"user": core.User{WalletAddress: c.GetString("walletAddress"), Role: "admin"}})
}

func (s *Server) handleConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "config": s.Config()})
}

func (s *Server) handleConfigUpdate(c *gin.Context) {
	var update core.FaucetConfigUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Validation failed"})
		return
	}

	s.mu.Lock()
	if update.FaucetAmount != nil {
		s.config.FaucetAmount = *update.FaucetAmount
	}
	if update.CooldownSeconds != nil {
		s.config.CooldownSeconds = *update.CooldownSeconds
	}
	if update.Enabled != nil {
		s.config.Enabled = *update.Enabled
	}
	if update.MaxRequestsPerIP != nil {
		s.config.MaxRequestsPerIP = *update.MaxRequestsPerIP
	}
	if update.MaxRequestsPerWallet != nil {
		s.config.MaxRequestsPerWallet = *update.MaxRequestsPerWallet
	}
	cfg := s.config
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"success": true, "config": cfg})
}

func (s *Server) handleAnalytics(c *gin.Context) {
	c.JSON(http.StatusOK, core.Analytics{
		Totals: core.AnalyticsTotals{
			Requests:        12,
			Success:         10,
			Failed:          2,
			TokensDispensed: decimal.RequireFromString("0.1"),
		},
		TopWallets: []core.TopWallet{{WalletAddress: "0x00000000000000000000000000000000000000a1", Count: 4}},
		TopIPs:     []core.TopIP{{IPAddress: "10.0.0.1", Count: 6}},
	})
}

func (s *Server) handleTimeseries(c *gin.Context) {
	c.JSON(http.StatusOK, core.Timeseries{
		Granularity: c.DefaultQuery("granularity", "hourly"),
		Range:       c.DefaultQuery("range", "24h"),
		Data: []core.TimeseriesPoint{
			{Time: s.clock.Now().UTC().Format(time.RFC3339), Total: 3, Success: 2, Failed: 1, Tokens: decimal.RequireFromString("0.02")},
		},
	})
}

func (s *Server) handleFaucet(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !core.IsWalletAddress(req.Address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
		return
	}

	now := s.clock.Now()
	key := strings.ToLower(req.Address)

	s.mu.Lock()
	s.claimed = append(s.claimed, req.Address)
	last, seen := s.lastClaim[key]
	if seen && now.Sub(last) < Cooldown {
		s.mu.Unlock()
		retryAfter := int64((Cooldown - now.Sub(last)) / time.Second)
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many requests, please try again later", "retryAfter": retryAfter})
		return
	}
	s.lastClaim[key] = now
	s.mu.Unlock()

	c.JSON(http.StatusOK, core.FaucetResult{
		Status:             "success",
		Tx:                 uuid.New().String(),
		NextClaimTimestamp: now.Add(Cooldown).UnixMilli(),
	})
}
