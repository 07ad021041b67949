package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"
)

// SetupRouter sets up the Gin router for the admin console
func SetupRouter(handlers *ConsoleHandlers, guard SessionChecker, logger *slog.Logger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	if logger != nil {
		router.Use(RequestLogger(logger))
	}

	// Public routes
	router.GET(LoginPath, handlers.LoginPage)
	router.POST(LoginPath, handlers.Login)
	router.POST("/faucet", handlers.Faucet)
	router.GET("/notices", handlers.Notices)

	// Protected admin routes
	admin := router.Group("/admin")
	admin.Use(RouteGuard(guard, LoginPath))
	{
		admin.GET("", handlers.Dashboard)
		admin.GET("/me", handlers.Me)
		admin.GET("/config", handlers.Config)
		admin.POST("/config", handlers.UpdateConfig)
		admin.GET("/analytics/timeseries", handlers.Timeseries)
		admin.POST("/logout", handlers.Logout)
	}

	return router
}
