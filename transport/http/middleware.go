package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/faucetadmin/core"
)

const (
	// LoginPath is the only admin route reachable without a session
	LoginPath = "/admin/login"

	ctxSession = "session"
)

// SessionChecker decides whether a session exists
type SessionChecker interface {
	Check(ctx context.Context) (*core.Session, error)
}

// RouteGuard redirects to the login entry point before any protected handler
// runs when there is no session
func RouteGuard(checker SessionChecker, loginPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, err := checker.Check(c.Request.Context())
		if err != nil {
			c.Redirect(http.StatusFound, loginPath)
			c.Abort()
			return
		}

		// Set the session in the context
		c.Set(ctxSession, session)

		c.Next()
	}
}

// RequestLogger logs each console request with slog
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		logger.Debug("console request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(started),
		)
	}
}
