package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "clearance_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// ModerationActionsTotal counts applied moderation actions by kind.
	ModerationActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clearance_moderation_actions_total",
		Help: "Total number of moderation actions applied, by action kind",
	}, []string{"action"})

	// CollectionsArchivedTotal counts collections auto-archived after full approval.
	CollectionsArchivedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clearance_collections_archived_total",
		Help: "Total number of collections archived after all requests were approved",
	})

	// NotificationFailures counts best-effort notification dispatch failures.
	NotificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clearance_notification_failures_total",
		Help: "Total number of failed notification publishes by channel kind",
	}, []string{"kind"})
)
