package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func originListed(allowed []string, origin string) bool {
	origin = strings.TrimRight(origin, "/")
	for _, a := range allowed {
		if strings.EqualFold(strings.TrimRight(a, "/"), origin) {
			return true
		}
	}
	return false
}

// OriginAllowed reports whether a browser request may reach the bridge.
// Requests without an Origin header come from non-browser clients and pass
// unless the browser marked them as cross-site.
func OriginAllowed(allowed []string, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return r.Header.Get("Sec-Fetch-Site") != "cross-site"
	}
	if origin == "http://"+r.Host || origin == "https://"+r.Host {
		return true
	}
	return originListed(allowed, origin)
}

// RequireOrigin rejects requests sent from pages outside the allow list and
// answers CORS for the listed ones.
func RequireOrigin(allowed []string) gin.HandlerFunc {
	withCORS := cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool { return originListed(allowed, origin) },
		AllowMethods:    []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:    []string{"Content-Type"},
		MaxAge:          10 * time.Minute,
	})
	return func(c *gin.Context) {
		if !OriginAllowed(allowed, c.Request) {
			bridgeRejections.WithLabelValues("origin").Inc()
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Origin not allowed"})
			return
		}
		withCORS(c)
		if c.IsAborted() {
			return
		}
		c.Next()
	}
}
