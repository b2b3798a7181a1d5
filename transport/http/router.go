package http

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/hexlane/authgate/ports"
)

// SetupRouter sets up the Gin router
func SetupRouter(handlers *SessionHandlers, tokenizer ports.Tokenizer, markers ports.MarkerStore, logger *slog.Logger) *gin.Engine {
	router := gin.Default()
	if logger == nil {
		logger = slog.Default()
	}
	router.Use(RequestLogger(logger))

	// Session lifecycle routes
	session := router.Group("/session")
	{
		session.POST("/connect", handlers.Connect)
		session.POST("/register", handlers.Register)
		session.POST("/login", handlers.Login)
		session.POST("/otp", handlers.SubmitOTP)
		session.POST("/restore", handlers.Restore)
		session.DELETE("/otp", handlers.CancelOTP)
		session.DELETE("", handlers.Disconnect)
		session.GET("", handlers.Session)
	}

	// Audit log queries
	router.GET("/audit/logs", handlers.AuditLogs)

	// Protected API routes
	api := router.Group("/api")
	api.Use(MarkerMiddleware(tokenizer, markers))
	{
		api.GET("/me", handlers.Me)
	}

	return router
}
