package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// StoreRequests counts repo host calls by operation and outcome.
	StoreRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vortexx_store_requests_total",
		Help: "Total number of document store requests by operation and outcome",
	}, []string{"operation", "outcome"})

	// StoreLatency records repo host call latency by operation.
	StoreLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "vortexx_store_latency_seconds",
		Help:    "Document store request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// StoreConflicts counts revision precondition failures by collection.
	StoreConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vortexx_store_conflicts_total",
		Help: "Total number of revision conflicts seen by the document store",
	}, []string{"collection"})

	// StoreRetries counts conflict retries by collection.
	StoreRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vortexx_store_retries_total",
		Help: "Total number of document writes retried after a conflict",
	}, []string{"collection"})

	// BlobUploads counts blob host uploads by outcome.
	BlobUploads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vortexx_blob_uploads_total",
		Help: "Total number of media uploads by outcome",
	}, []string{"outcome"})

	// BlobUploadBytes records the size of uploaded media.
	BlobUploadBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vortexx_blob_upload_bytes",
		Help:    "Size of uploaded media in bytes",
		Buckets: prometheus.ExponentialBuckets(16<<10, 4, 6),
	})

	// MirrorErrorRate counts local mirror errors by operation.
	MirrorErrorRate = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vortexx_mirror_error_rate_total",
		Help: "Total number of local mirror errors by operation",
	}, []string{"operation"})

	// CompactedStories counts expired stories removed by the compactor.
	CompactedStories = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vortexx_compacted_stories_total",
		Help: "Total number of expired stories purged from the document store",
	})

	// RateLimitDecisions counts rate limiter outcomes by rule.
	RateLimitDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vortexx_rate_limit_decisions_total",
		Help: "Rate limiter decisions by rule and outcome (allowed, denied, unavailable)",
	}, []string{"rule", "outcome"})
)

// TrackStoreCall returns a function that records latency and outcome when called (e.g. defer).
func TrackStoreCall(operation string) func(err *error) {
	start := time.Now()
	return func(err *error) {
		StoreLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
		outcome := "ok"
		if err != nil && *err != nil {
			outcome = "error"
		}
		StoreRequests.WithLabelValues(operation, outcome).Inc()
	}
}
