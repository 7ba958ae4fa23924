package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gallery_http_requests_in_flight",
			Help: "Current number of HTTP requests being served",
		},
	)

	// Object store metrics
	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_store_operations_total",
			Help: "Total number of remote object store operations",
		},
		[]string{"operation", "outcome"},
	)

	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_store_operation_duration_seconds",
			Help:    "Remote object store operation duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"operation"},
	)

	// Upload pipeline metrics
	ChunksStored = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_chunks_stored_total",
			Help: "Total number of chunks written to the object store",
		},
	)

	AssembliesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_assemblies_total",
			Help: "Total number of chunk assembly attempts",
		},
		[]string{"outcome"},
	)

	ServedBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_served_bytes_total",
			Help: "Bytes written by the reconstruction endpoint",
		},
		[]string{"kind"},
	)

	FilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_files_total",
			Help: "Total number of media files created",
		},
		[]string{"media_type"},
	)

	FilesDeleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_files_deleted_total",
			Help: "Total number of media files deleted",
		},
		[]string{"backing"},
	)

	OrphanedObjects = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_orphaned_objects_total",
			Help: "Objects whose deletion failed, and orphans later cleaned up",
		},
		[]string{"event"},
	)
)

// RecordHTTPRequest records metrics for an HTTP request
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusStr := httpStatusToString(status)
	HTTPRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, statusStr).Observe(duration.Seconds())
}

func httpStatusToString(code int) string {
	if code >= 200 && code < 300 {
		return "2xx"
	} else if code >= 300 && code < 400 {
		return "3xx"
	} else if code >= 400 && code < 500 {
		return "4xx"
	} else if code >= 500 {
		return "5xx"
	}
	return "unknown"
}

// RecordStoreOperation records the outcome and latency of one object store call.
func RecordStoreOperation(operation string, err error, duration time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	StoreOperationsTotal.WithLabelValues(operation, outcome).Inc()
	StoreOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordChunkStored increments the stored chunk counter
func RecordChunkStored() {
	ChunksStored.Inc()
}

// RecordAssembly records an assembly attempt
func RecordAssembly(success bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	AssembliesTotal.WithLabelValues(outcome).Inc()
}

// RecordServed adds to the served byte counter. kind is "full" or "partial".
func RecordServed(kind string, bytes int) {
	ServedBytes.WithLabelValues(kind).Add(float64(bytes))
}

// RecordFileUpload increments file upload counter
func RecordFileUpload(mediaType string) {
	FilesTotal.WithLabelValues(mediaType).Inc()
}

// RecordFileDelete increments file delete counter
func RecordFileDelete(backing string) {
	FilesDeleted.WithLabelValues(backing).Inc()
}

// RecordOrphan tracks orphan bookkeeping. event is "recorded" or "cleaned".
func RecordOrphan(event string) {
	OrphanedObjects.WithLabelValues(event).Inc()
}
