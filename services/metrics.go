package services

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	tokenRefreshTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialclient_token_refresh_total",
			Help: "Token refresh attempts by result",
		},
		[]string{"result"},
	)

	refreshQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "socialclient_refresh_queue_depth",
			Help: "Requests waiting for the in-flight token refresh",
		},
	)

	apiRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialclient_api_requests_total",
			Help: "Backend API calls by endpoint and status",
		},
		[]string{"method", "endpoint", "status"},
	)

	apiRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "socialclient_api_request_duration_seconds",
			Help:    "Duration of backend API calls in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	optimisticRollbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socialclient_optimistic_rollbacks_total",
			Help: "Optimistic mutations reverted after a failed server call",
		},
		[]string{"operation"},
	)
)

// recordAPICall tracks one backend call; status 0 means the call never got a response.
func recordAPICall(method, endpoint string, status int, duration time.Duration) {
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	apiRequestsTotal.WithLabelValues(method, endpoint, label).Inc()
	apiRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
