package observability

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	httpRequestsTotal   *prometheus.CounterVec
	httpLatencySeconds  *prometheus.HistogramVec
	httpErrorsTotal     *prometheus.CounterVec
	uploadsTotal        *prometheus.CounterVec
	uploadSizeBytes     prometheus.Histogram
	analysisRunsTotal   *prometheus.CounterVec
	analysisDuration    prometheus.Histogram
	admissionRejected   prometheus.Counter
	queueDepth          prometheus.Gauge
	wordCloudFailures   prometheus.Counter
	upstreamErrorsTotal *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors shared by the three services.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "antiplagiat_http_requests_total",
			Help: "Total number of HTTP requests served.",
		}, []string{"service", "method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "antiplagiat_http_latency_seconds",
			Help:    "Latency distribution for HTTP requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0},
		}, []string{"service", "method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "antiplagiat_http_errors_total",
			Help: "Total number of error responses.",
		}, []string{"service", "method", "route", "status"})

		uploadsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "antiplagiat_uploads_total",
			Help: "Uploaded works by outcome.",
		}, []string{"outcome"})

		uploadSizeBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "antiplagiat_upload_size_bytes",
			Help:    "Size distribution of stored works.",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		})

		analysisRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "antiplagiat_analysis_runs_total",
			Help: "Analysis runs by terminal outcome.",
		}, []string{"outcome"})

		analysisDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "antiplagiat_analysis_duration_seconds",
			Help:    "Time from report creation to its terminal status.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		})

		admissionRejected = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "antiplagiat_analysis_admission_rejected_total",
			Help: "Analysis start requests rejected by the concurrency cap or a full queue.",
		})

		queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "antiplagiat_analysis_queue_depth",
			Help: "Jobs waiting for an analysis worker.",
		})

		wordCloudFailures = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "antiplagiat_wordcloud_failures_total",
			Help: "Word cloud generation failures.",
		})

		upstreamErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "antiplagiat_upstream_errors_total",
			Help: "Failed calls to downstream services.",
		}, []string{"target", "kind"})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			uploadsTotal, uploadSizeBytes,
			analysisRunsTotal, analysisDuration, admissionRejected, queueDepth,
			wordCloudFailures, upstreamErrorsTotal,
		)
	})
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the request latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the error response counter.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

// Uploads exposes the upload outcome counter.
func Uploads() *prometheus.CounterVec {
	RegisterMetrics()
	return uploadsTotal
}

// UploadSize exposes the upload size histogram.
func UploadSize() prometheus.Histogram {
	RegisterMetrics()
	return uploadSizeBytes
}

// AnalysisRuns exposes the analysis outcome counter.
func AnalysisRuns() *prometheus.CounterVec {
	RegisterMetrics()
	return analysisRunsTotal
}

// AnalysisDuration exposes the analysis duration histogram.
func AnalysisDuration() prometheus.Histogram {
	RegisterMetrics()
	return analysisDuration
}

// AdmissionRejected exposes the overload counter.
func AdmissionRejected() prometheus.Counter {
	RegisterMetrics()
	return admissionRejected
}

// QueueDepth exposes the queue depth gauge.
func QueueDepth() prometheus.Gauge {
	RegisterMetrics()
	return queueDepth
}

// WordCloudFailures exposes the word cloud failure counter.
func WordCloudFailures() prometheus.Counter {
	RegisterMetrics()
	return wordCloudFailures
}

// UpstreamErrors exposes the downstream failure counter.
func UpstreamErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return upstreamErrorsTotal
}

// MetricsHandler serves the default registry on GET /metrics.
func MetricsHandler() fiber.Handler {
	RegisterMetrics()
	return adaptor.HTTPHandler(promhttp.Handler())
}
