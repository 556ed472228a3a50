package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"lootbox-backend/internal/services"
)

func AuthMiddleware(jwtService *services.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		var tokenString string

		if authHeader != "" {
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authorization format"})
				c.Abort()
				return
			}
			tokenString = parts[1]
		} else {
			// Browsers cannot set headers on a websocket upgrade.
			tokenString = c.Query("token")
			if tokenString == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
				c.Abort()
				return
			}
		}

		claims, err := jwtService.ValidateToken(tokenString)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		c.Set("address", claims.Address)
		c.Set("session_id", claims.SessionID)

		c.Next()
	}
}

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, owner, action string, limit int, window time.Duration) (bool, error)
}

// RateLimitMiddleware caps opens and purchases per owner. When the limiter
// backend fails the request is let through and the failure logged.
func RateLimitMiddleware(limiter RateLimiter, logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		address := c.GetString("address")
		if address == "" {
			c.Next()
			return
		}

		path := c.Request.URL.Path

		var (
			action string
			limit  int
		)
		window := time.Minute

		switch {
		case strings.HasSuffix(path, "/boxes/open"), strings.HasSuffix(path, "/boxes/open-batch"):
			action, limit = "open", services.DefaultRateLimitOpens
		case strings.HasSuffix(path, "/boxes/purchase"):
			action, limit = "purchase", services.DefaultRateLimitPurchases
		default:
			c.Next()
			return
		}

		allowed, err := limiter.CheckRateLimit(c.Request.Context(), address, action, limit, window)
		if err != nil {
			logger.Warn().Err(err).Str("owner", address).Str("action", action).Msg("rate limit check failed, allowing request")
			c.Next()
			return
		}
		if !allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": window.Seconds(),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
