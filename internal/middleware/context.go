package middleware

import "github.com/gin-gonic/gin"

const (
	requestIDKey = "request_id"
	actorIDKey   = "actor_id"
	tokenKey     = "token"

	RequestIDHeader = "X-Request-ID"
)

// RequestIDFrom returns the id assigned by the RequestID middleware.
func RequestIDFrom(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// ActorID returns the authenticated actor, or "" outside the protected group.
func ActorID(c *gin.Context) string {
	return c.GetString(actorIDKey)
}

// Token returns the bearer token the actor authenticated with.
func Token(c *gin.Context) string {
	return c.GetString(tokenKey)
}

// AbortWithError writes the standard error body and stops the chain.
func AbortWithError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message, "request_id": RequestIDFrom(c)})
}
