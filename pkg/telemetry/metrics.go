// Package telemetry provides Prometheus instrumentation for LoreSmith.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Notification hub metrics.
var (
	HubSubscribersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loresmith_hub_subscribers_active",
		Help: "Number of currently connected SSE subscribers.",
	})

	NotificationsPublishedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loresmith_notifications_published_total",
		Help: "Total notifications published, by delivery outcome.",
	}, []string{"outcome"}) // delivered, queued

	NotificationsReplayedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loresmith_notifications_replayed_total",
		Help: "Total queued notifications replayed on reconnect.",
	})

	SubscribersReapedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loresmith_hub_subscribers_reaped_total",
		Help: "Subscribers removed after a failed write or ping.",
	})
)

// Extraction pipeline metrics.
var (
	ExtractionTasksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loresmith_extraction_tasks_total",
		Help: "Extraction tasks processed, by terminal status.",
	}, []string{"status"})

	ExtractionShardsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loresmith_extraction_shards_total",
		Help: "Shards persisted by the extraction pipeline.",
	})

	AISearchRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loresmith_ai_search_requests_total",
		Help: "AI search requests, by outcome.",
	}, []string{"outcome"}) // ok, timeout, capacity, error

	AISearchRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "loresmith_ai_search_request_duration_seconds",
		Help:    "AI search request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	})
)

// Rebuild orchestrator metrics.
var (
	RebuildsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loresmith_rebuilds_total",
		Help: "Graph rebuilds, by type and terminal status.",
	}, []string{"type", "status"})

	RebuildDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "loresmith_rebuild_duration_seconds",
		Help:    "Rebuild pipeline duration in seconds.",
		Buckets: []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	}, []string{"type"})

	ChangelogImpactAccumulated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loresmith_changelog_impact_accumulated_total",
		Help: "Sum of impact scores recorded to the changelog.",
	}, []string{"campaign_id"})
)

// Queue metrics.
var (
	QueueWorkersActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "loresmith_queue_workers_active",
		Help: "Queue workers currently processing a task.",
	}, []string{"queue"})

	QueueOrphansRecoveredTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loresmith_queue_orphans_recovered_total",
		Help: "Orphaned tasks requeued after heartbeat loss.",
	}, []string{"queue"})
)
