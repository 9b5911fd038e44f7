package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"scip/internal/service"
)

// Authenticator turns a bearer token into an actor id.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

// Auth verifies the bearer token and stores the actor id for the handlers
// behind it. Handlers never see unauthenticated requests.
func Auth(auth Authenticator, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			AbortWithError(c, http.StatusUnauthorized, "Authorization header required")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			AbortWithError(c, http.StatusUnauthorized, "Authorization header format must be Bearer <token>")
			return
		}
		token = strings.TrimSpace(token)

		actorID, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrTokenExpired):
				AbortWithError(c, http.StatusUnauthorized, "Token expired")
			case errors.Is(err, service.ErrTokenRevoked):
				AbortWithError(c, http.StatusUnauthorized, "Token revoked")
			case service.IsAuthError(err):
				logger.Debug("Invalid bearer token", zap.Error(err))
				AbortWithError(c, http.StatusUnauthorized, "Invalid token")
			default:
				logger.Error("Failed to authenticate request", zap.Error(err))
				AbortWithError(c, http.StatusInternalServerError, "Failed to authenticate")
			}
			return
		}

		c.Set(actorIDKey, actorID)
		c.Set(tokenKey, token)
		c.Next()
	}
}
