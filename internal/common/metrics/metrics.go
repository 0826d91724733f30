// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MatchRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "match_requests_total",
			Help: "Total number of match ranking requests",
		},
		[]string{"status"},
	)

	MatchCacheHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "match_cache_hits_total",
			Help: "Total number of match result cache hits",
		},
	)

	MatchCacheMisses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "match_cache_misses_total",
			Help: "Total number of match result cache misses",
		},
	)

	MatchComputeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name: "match_compute_duration_seconds",
			Help: "Duration of full candidate pool scoring in seconds",
		},
	)

	ConnectionTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connection_transitions_total",
			Help: "Total number of connection lifecycle transitions",
		},
		[]string{"transition"},
	)

	NotificationDispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_dispatches_total",
			Help: "Total number of lifecycle notification dispatches",
		},
		[]string{"channel", "status"},
	)
)
