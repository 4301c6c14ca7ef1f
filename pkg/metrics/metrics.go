package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionLogins records login attempts by result (success|invalid_credential|store_error).
	SessionLogins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regforms_session_logins_total",
			Help: "Total number of login attempts",
		},
		[]string{"result"},
	)

	// SessionEvictions counts sessions removed to respect the per-user limit.
	SessionEvictions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "regforms_session_evictions_total",
			Help: "Total number of sessions evicted by newer logins",
		},
	)

	// SessionChecks counts access checks by result (valid|invalid|error).
	SessionChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "regforms_session_checks_total",
			Help: "Total number of session access checks",
		},
		[]string{"result"},
	)

	// SessionLogouts counts explicit user logouts.
	SessionLogouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "regforms_session_logouts_total",
			Help: "Total number of session logouts",
		},
	)

	// SessionNotifyFailures counts eviction notifications that could not be delivered.
	SessionNotifyFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "regforms_session_notify_failures_total",
			Help: "Total number of failed session-ended notifications",
		},
	)

	// SessionsPurged counts expired session rows removed by maintenance.
	SessionsPurged = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "regforms_sessions_purged_total",
			Help: "Total number of expired sessions purged",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "regforms_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
