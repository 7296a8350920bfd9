package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// NotificationsSubmitted counts accepted notifications by lane (critical|normal).
	NotificationsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_dispatcher_submitted_total",
			Help: "Total number of notifications accepted for dispatch",
		},
		[]string{"lane"},
	)

	RateLimited = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "notification_dispatcher_rate_limited_total",
			Help: "Total number of submissions rejected by the rate limiter",
		},
	)

	// NotificationsProcessed counts consumed messages by lane and outcome
	// (delivered|skipped|duplicate|dropped|failed).
	NotificationsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_dispatcher_processed_total",
			Help: "Total number of notifications processed by consumers",
		},
		[]string{"lane", "outcome"},
	)

	// Pushes counts push attempts by target (user|public) and result (success|failure).
	Pushes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_dispatcher_pushes_total",
			Help: "Total number of push attempts",
		},
		[]string{"target", "result"},
	)

	ConnectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "notification_dispatcher_connected_clients",
			Help: "Number of connected websocket clients",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "notification_dispatcher_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
