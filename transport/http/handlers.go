package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/faucetadmin"
	"github.com/layer-3/faucetadmin/core"
	"github.com/layer-3/faucetadmin/internal/clock"
	"github.com/layer-3/faucetadmin/ports"
)

// ConsoleHandlers contains HTTP handlers for the admin console
type ConsoleHandlers struct {
	client  faucetadmin.Client
	wallet  ports.Wallet
	notices *NoticeFeed
	clock   clock.Clock
	logger  *slog.Logger
}

// NewConsoleHandlers creates new console handlers. wallet may be nil, in which
// case login reports the wallet as not connected.
func NewConsoleHandlers(client faucetadmin.Client, wallet ports.Wallet, notices *NoticeFeed, c clock.Clock, logger *slog.Logger) *ConsoleHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleHandlers{
		client:  client,
		wallet:  wallet,
		notices: notices,
		clock:   c,
		logger:  logger.With("component", "console"),
	}
}

// LoginPage reports the session state and recent notices
func (h *ConsoleHandlers) LoginPage(c *gin.Context) {
	resp := gin.H{
		"authenticated": false,
		"notice":        c.Query("notice"),
		"notices":       h.notices.Recent(),
	}
	if session, err := h.client.Session(c.Request.Context()); err == nil {
		resp["authenticated"] = true
		resp["address"] = session.Address
	}
	c.JSON(http.StatusOK, resp)
}

// Login handles the login request
func (h *ConsoleHandlers) Login(c *gin.Context) {
	session, err := h.client.Login(c.Request.Context(), h.wallet)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errorMsg := "Login failed"

		var rejected *core.LoginRejectedError
		var netErr *core.NetworkError
		switch {
		case errors.Is(err, core.ErrWalletNotConnected):
			statusCode = http.StatusBadRequest
			errorMsg = "Wallet not connected"
		case errors.Is(err, core.ErrSignatureDenied):
			statusCode = http.StatusBadRequest
			errorMsg = "Signature request was denied"
		case errors.As(err, &rejected):
			statusCode = http.StatusUnauthorized
			if rejected.Reason != "" {
				errorMsg = rejected.Reason
			}
		case errors.As(err, &netErr):
			statusCode = http.StatusBadGateway
			errorMsg = "Faucet backend unreachable"
		}

		h.logger.Warn("login failed", "error", err)
		c.JSON(statusCode, gin.H{"error": errorMsg})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":   session.Address,
		"role":      session.Role,
		"expiresAt": session.ExpiresAt,
	})
}

// Logout ends the session and returns to the login entry point
func (h *ConsoleHandlers) Logout(c *gin.Context) {
	if err := h.client.Logout(c.Request.Context()); err != nil {
		// The local session is gone either way
		h.logger.Warn("logout incomplete", "error", err)
	}
	c.Redirect(http.StatusFound, LoginPath)
}

// Dashboard returns the analytics summary with the activity chart
func (h *ConsoleHandlers) Dashboard(c *gin.Context) {
	dashboard, err := h.client.Dashboard(c.Request.Context(), c.Query("granularity"), c.Query("range"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dashboard)
}

// Me returns information about the signed-in principal
func (h *ConsoleHandlers) Me(c *gin.Context) {
	user, err := h.client.Me(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// Config returns the faucet configuration
func (h *ConsoleHandlers) Config(c *gin.Context) {
	cfg, err := h.client.FaucetConfig(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"config": cfg})
}

// UpdateConfig applies a partial faucet configuration update
func (h *ConsoleHandlers) UpdateConfig(c *gin.Context) {
	var update core.FaucetConfigUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	cfg, err := h.client.UpdateFaucetConfig(c.Request.Context(), update)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "config": cfg})
}

// Timeseries returns the activity chart for the requested window
func (h *ConsoleHandlers) Timeseries(c *gin.Context) {
	series, err := h.client.Timeseries(c.Request.Context(), c.Query("granularity"), c.Query("range"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, series)
}

// Faucet requests tokens and reports the cooldown when rate limited
func (h *ConsoleHandlers) Faucet(c *gin.Context) {
	var req struct {
		Address string `json:"address" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	result, err := h.client.RequestTokens(c.Request.Context(), req.Address)
	if err != nil {
		var limited *core.RateLimitedError
		if errors.As(err, &limited) {
			now := h.clock.Now()
			cooldown := core.NewCooldown(now, limited.RetryAfter)
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":     limited.Message,
				"deadline":  cooldown.Deadline,
				"remaining": cooldown.Format(now),
			})
			return
		}
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Notices lists recent session notices
func (h *ConsoleHandlers) Notices(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"notices": h.notices.Recent()})
}

// respondError maps the error taxonomy to console responses
func (h *ConsoleHandlers) respondError(c *gin.Context, err error) {
	var statusErr *core.StatusError
	var netErr *core.NetworkError

	switch {
	case errors.Is(err, core.ErrSessionExpired):
		c.Redirect(http.StatusFound, LoginPath+"?notice=expired")
	case errors.Is(err, core.ErrUnauthorized), errors.Is(err, core.ErrNoSession):
		c.Redirect(http.StatusFound, LoginPath)
	case errors.Is(err, core.ErrInvalidAddress):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid wallet address"})
	case errors.As(err, &statusErr):
		msg := statusErr.Message
		if msg == "" {
			msg = http.StatusText(statusErr.Code)
		}
		c.JSON(statusErr.Code, gin.H{"error": msg})
	case errors.As(err, &netErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": "Faucet backend unreachable"})
	default:
		h.logger.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}
