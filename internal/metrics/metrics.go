// Package metrics provides Prometheus metrics for ingestion, search and persistence.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mitsukeru"

var (
	// SegmentsIndexed counts transcript segments added to the vector store.
	SegmentsIndexed = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "segments_indexed_total",
			Help:      "Total number of transcript segments added to the vector store",
		},
	)

	// VideosProcessed counts processing runs.
	// Labels: result (success, error)
	VideosProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "videos_processed_total",
			Help:      "Total number of video processing runs by result",
		},
		[]string{"result"},
	)

	// IngestDuration tracks transcribe+embed+add time per video.
	IngestDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Duration of video ingestion in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
	)

	// QueryDuration tracks search latency.
	// Labels: mode (semantic, keyword)
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "duration_seconds",
			Help:      "Duration of search queries in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
		},
		[]string{"mode"},
	)

	// QueryResults tracks the number of results returned per query.
	QueryResults = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "results",
			Help:      "Number of results returned per query",
			Buckets:   []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
	)

	// StoreSize is the number of entries in the vector store.
	StoreSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "entries",
			Help:      "Current number of entries in the vector store",
		},
	)

	// PersistenceOps counts save and load operations.
	// Labels: op (save, load), result (success, error)
	PersistenceOps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "persistence_operations_total",
			Help:      "Total number of store save/load operations",
		},
		[]string{"op", "result"},
	)
)

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordIngest records one video processing run.
func RecordIngest(segments int, started time.Time, err error) {
	VideosProcessed.WithLabelValues(result(err)).Inc()
	if err != nil {
		return
	}
	SegmentsIndexed.Add(float64(segments))
	IngestDuration.Observe(time.Since(started).Seconds())
}

// RecordQuery records one search query.
func RecordQuery(mode string, results int, started time.Time) {
	QueryDuration.WithLabelValues(mode).Observe(time.Since(started).Seconds())
	QueryResults.Observe(float64(results))
}

// RecordPersistence records a save or load of the vector store.
func RecordPersistence(op string, err error) {
	PersistenceOps.WithLabelValues(op, result(err)).Inc()
}

// SetStoreSize updates the store size gauge.
func SetStoreSize(n int) {
	StoreSize.Set(float64(n))
}
