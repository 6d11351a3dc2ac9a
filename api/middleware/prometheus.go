package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bridgeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_http_requests_total",
			Help: "Bridge requests by route, status and whether a user was logged in",
		},
		[]string{"method", "route", "status", "session"},
	)

	bridgeRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_http_request_duration_seconds",
			Help:    "Bridge request latency, backend round trips included",
			Buckets: []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"route", "session"},
	)

	bridgeRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bridge_http_rejections_total",
			Help: "Bridge requests refused before reaching a handler",
		},
		[]string{"reason"},
	)
)

// SessionState is what the metrics middleware samples from the session.
type SessionState interface {
	IsAuthenticated() bool
}

func sessionLabel(state SessionState) string {
	if state != nil && state.IsAuthenticated() {
		return "authenticated"
	}
	return "anonymous"
}

// PrometheusMiddleware records every bridge request under the session state
// it started with.
func PrometheusMiddleware(state SessionState) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		session := sessionLabel(state)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		c.Next()

		bridgeRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), session).Inc()
		bridgeRequestDuration.WithLabelValues(route, session).Observe(time.Since(start).Seconds())
	}
}
