// Package metrics provides Prometheus metrics for monitoring the subtitle
// task system and the remote storage gateway.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitlemaster_tasks_submitted_total",
			Help: "Total number of tasks admitted and created",
		},
		[]string{"tier", "format"},
	)
	TasksCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitlemaster_tasks_completed_total",
			Help: "Total number of tasks that reached completed",
		},
		[]string{"format"},
	)
	TasksFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitlemaster_tasks_failed_total",
			Help: "Total number of tasks that reached failed",
		},
		[]string{"format"},
	)
	QuotaDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitlemaster_quota_denials_total",
			Help: "Total number of submissions rejected by a quota gate",
		},
		[]string{"kind"},
	)
	PipelineStageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subtitlemaster_pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"stage"},
	)
	TasksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitlemaster_tasks_in_flight",
			Help: "Number of pipeline runs currently executing",
		},
	)
	StorageUploadAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitlemaster_storage_upload_attempts_total",
			Help: "Upload attempts per endpoint variant and outcome",
		},
		[]string{"endpoint", "outcome"},
	)
	StorageDiscoveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subtitlemaster_storage_discovery_failures_total",
			Help: "Server discovery attempts that fell back to the default server",
		},
	)
	StorageHeuristicExtractions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subtitlemaster_storage_heuristic_extractions_total",
			Help: "Upload responses whose file ID required a heuristic or placeholder",
		},
	)
	StorageResolutionFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "subtitlemaster_storage_resolution_fallbacks_total",
			Help: "Download URL resolutions that degraded to the templated fallback",
		},
	)
	TasksByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "subtitlemaster_tasks_by_status",
			Help: "Current number of tasks per status",
		},
		[]string{"status"},
	)
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "subtitlemaster_queue_depth",
			Help: "Number of task IDs waiting in the pending queue",
		},
	)
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subtitlemaster_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "subtitlemaster_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

func RecordTaskSubmitted(tier, format string) {
	TasksSubmitted.WithLabelValues(tier, format).Inc()
}

func RecordTaskCompleted(format string) {
	TasksCompleted.WithLabelValues(format).Inc()
}

func RecordTaskFailed(format string) {
	TasksFailed.WithLabelValues(format).Inc()
}

func RecordQuotaDenial(kind string) {
	QuotaDenials.WithLabelValues(kind).Inc()
}

func RecordStageDuration(stage string, d time.Duration) {
	PipelineStageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func RecordUploadAttempt(endpoint, outcome string) {
	StorageUploadAttempts.WithLabelValues(endpoint, outcome).Inc()
}

func UpdateStatusGauges(counts map[string]int) {
	for status, count := range counts {
		TasksByStatus.WithLabelValues(status).Set(float64(count))
	}
}

func UpdateQueueDepth(depth int64) {
	QueueDepth.Set(float64(depth))
}

func RecordHTTPRequest(method, endpoint, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}
