// Package metrics exposes Prometheus collectors for the migration service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	itemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migrator_items_total",
			Help: "Total number of board items seen, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	assetsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migrator_assets_total",
			Help: "Total number of assets processed, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	compressionSavedBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "migrator_compression_saved_bytes_total",
			Help: "Total bytes shaved off oversized images by re-encoding.",
		},
	)

	batchFlushesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "migrator_batch_flushes_total",
			Help: "Total number of ledger batch flushes.",
		},
	)

	batchFlushSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "migrator_batch_flush_size",
			Help:    "Histogram of record counts per ledger flush.",
			Buckets: []float64{1, 5, 10, 25, 50, 100},
		},
	)

	retriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migrator_retries_total",
			Help: "Total retry attempts, labeled by component.",
		},
		[]string{"component"},
	)

	cursorExpiriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "migrator_cursor_expiries_total",
			Help: "Total pagination cursor expiries recovered from.",
		},
	)

	streamTruncationsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "migrator_stream_truncations_total",
			Help: "Times the item stream ended early after exhausted page-fetch retries.",
		},
	)
)

// Item outcome labels.
const (
	ItemMigrated = "migrated"
	ItemSkipped  = "skipped"
	ItemEmpty    = "empty"
)

// Asset outcome labels.
const (
	AssetUploaded       = "uploaded"
	AssetDeduplicated   = "deduplicated"
	AssetDownloadFailed = "download_failed"
	AssetUploadFailed   = "upload_failed"
)

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveItem increments the item counter for the given outcome.
func ObserveItem(outcome string) {
	itemsTotal.WithLabelValues(outcome).Inc()
}

// ObserveAsset increments the asset counter for the given outcome.
func ObserveAsset(outcome string) {
	assetsTotal.WithLabelValues(outcome).Inc()
}

// ObserveCompression records bytes saved by re-encoding an image.
func ObserveCompression(savedBytes int) {
	if savedBytes > 0 {
		compressionSavedBytes.Add(float64(savedBytes))
	}
}

// ObserveBatchFlush records one ledger flush of the given size.
func ObserveBatchFlush(size int) {
	batchFlushesTotal.Inc()
	batchFlushSize.Observe(float64(size))
}

// ObserveRetry increments the retry counter for a component.
func ObserveRetry(component string) {
	retriesTotal.WithLabelValues(component).Inc()
}

// ObserveCursorExpiry counts one recovered cursor expiry.
func ObserveCursorExpiry() {
	cursorExpiriesTotal.Inc()
}

// ObserveStreamTruncation counts one silently truncated stream.
func ObserveStreamTruncation() {
	streamTruncationsTotal.Inc()
}
