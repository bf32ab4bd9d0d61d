// Package observability defines Prometheus metrics for the curation
// pipeline. Metrics are registered via promauto and exposed by the HTTP
// server's /metrics route.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FeedItemsFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curator_feed_items_fetched_total",
		Help: "The total number of raw feed entries fetched, per content kind",
	}, []string{"kind"})

	ItemsNotified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curator_items_notified_total",
		Help: "The total number of items delivered to review groups",
	}, []string{"kind"})

	BatchesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curator_batches_sent_total",
		Help: "The total number of batched card messages sent",
	}, []string{"kind", "status"})

	PollCycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "curator_poll_cycle_duration_seconds",
		Help:    "Duration of one full poll cycle",
		Buckets: []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
	}, []string{"kind"})

	CallbacksProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "curator_callbacks_processed_total",
		Help: "The total number of moderator callback actions processed",
	}, []string{"status"})

	ImageUploadFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "curator_image_upload_fallbacks_total",
		Help: "How often the fixed fallback image key was used after a failed upload",
	})

	GroupsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "curator_groups_created_total",
		Help: "The total number of review groups created on the chat platform",
	})
)
