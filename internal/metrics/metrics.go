package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deaddrop_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deaddrop_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	AgentsRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deaddrop_agents_registered_total",
			Help: "Total agents registered",
		},
	)

	NameReleaseFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deaddrop_name_release_failures_total",
			Help: "Name reservations leaked because the rollback delete failed",
		},
	)

	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deaddrop_messages_sent_total",
			Help: "Total messages accepted for delivery",
		},
	)

	RecipientsDelivered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deaddrop_recipients_delivered_total",
			Help: "Total inbox appends across all recipients",
		},
	)

	MessagesPolled = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deaddrop_messages_polled_total",
			Help: "Total messages returned to pollers",
		},
	)

	ExpiredSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deaddrop_inbox_expired_skipped_total",
			Help: "Inbox references dropped because their content had expired",
		},
	)

	SearchQueries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "deaddrop_search_queries_total",
			Help: "Total search queries",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deaddrop_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"scope"},
	)

	// Infrastructure metrics
	RedisLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "deaddrop_redis_latency_seconds",
			Help:    "Redis operation latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		},
	)
)
