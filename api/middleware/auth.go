package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Guard is the part of the session the bridge needs to gate routes.
type Guard interface {
	RequireAuth() error
}

// RequireSession rejects requests while nobody is logged in. The guard
// itself takes care of the login redirect.
func RequireSession(guard Guard) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := guard.RequireAuth(); err != nil {
			bridgeRejections.WithLabelValues("unauthenticated").Inc()
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		c.Next()
	}
}
