package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/hexlane/authgate/internal/slogx"
	"github.com/hexlane/authgate/ports"
)

// RequestLogger attaches a request-scoped logger to the request context so
// handlers can pick it up with slogx.FromContext.
func RequestLogger(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}

		logger := base.With(
			"req_id", reqID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
		c.Request = c.Request.WithContext(slogx.WithContext(c.Request.Context(), logger))

		c.Next()
	}
}

// MarkerMiddleware creates middleware that validates logged-in marker tokens.
// When a marker store is given, the token must also still be present there,
// so a disconnect invalidates outstanding tokens immediately.
func MarkerMiddleware(tokenizer ports.Tokenizer, markers ports.MarkerStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")

		if len(auth) < 8 || auth[:7] != "Bearer " {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization header"})
			return
		}
		token := auth[7:]

		marker, err := tokenizer.VerifyMarker(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		if markers != nil {
			stored, ok, err := markers.Marker(c.Request.Context(), marker.Address)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to check session"})
				return
			}
			if !ok || stored != token {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Session ended"})
				return
			}
		}

		c.Set("userAddress", marker.Address.Hex())
		c.Set("username", marker.Username)
		c.Set("role", marker.Role.String())

		c.Next()
	}
}
