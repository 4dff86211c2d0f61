// Package metrics provides Prometheus metrics for the crimecast prediction service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prediction outcomes used as label values.
const (
	OutcomeSuccess          = "success"
	OutcomeModelUnavailable = "model_unavailable"
	OutcomeInvalidInput     = "invalid_input"
	OutcomeSchemaMismatch   = "schema_mismatch"
	OutcomeInferenceError   = "inference_error"
	OutcomeInternal         = "internal"
)

// Manager manages all Prometheus metrics for the crimecast service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Prediction metrics
	predictions       *prometheus.CounterVec
	predictionLatency prometheus.Histogram
	inferenceLatency  prometheus.Histogram
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
	filledColumns     prometheus.Counter
	droppedColumns    prometheus.Counter
	batchSize         prometheus.Histogram

	// Model registry metrics
	modelLoaded       prometheus.Gauge
	modelGeneration   prometheus.Gauge
	modelReloads      *prometheus.CounterVec
	modelLoadDuration prometheus.Histogram
	modelLoadedUnix   prometheus.Gauge

	// Worker metrics
	workerActiveCount       prometheus.Gauge
	workerIdleCount         prometheus.Gauge
	workerQueueSize         prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRateLimited     *prometheus.CounterVec

	// Error metrics
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System metrics
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
	processCPUPercent    prometheus.Gauge
	processRSS           prometheus.Gauge
	processThreads       prometheus.Gauge
	hostMemoryPercent    prometheus.Gauge
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "crimecast",
		subsystem:        "predictor",
		histogramBuckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	})
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() {
	m.predictions = m.counterVec("predictions_total", "Total number of predictions by outcome", "outcome")
	m.predictionLatency = m.histogram("prediction_latency_milliseconds",
		"End-to-end prediction latency in milliseconds, validation included", m.histogramBuckets)
	m.inferenceLatency = m.histogram("inference_latency_milliseconds",
		"Latency of the artifact inference call in milliseconds", m.histogramBuckets)
	m.cacheHits = m.counter("cache_hits_total", "Predictions served from the result cache")
	m.cacheMisses = m.counter("cache_misses_total", "Predictions that required inference")
	m.filledColumns = m.counter("filled_columns_total", "Expected columns filled with the default value during alignment")
	m.droppedColumns = m.counter("dropped_columns_total", "Row columns dropped during alignment")
	m.batchSize = m.histogram("batch_size", "Number of requests per batch prediction",
		[]float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})

	m.modelLoaded = m.gauge("model_loaded", "1 when an artifact is loaded and serving, 0 otherwise")
	m.modelGeneration = m.gauge("model_generation", "Generation counter of the serving artifact")
	m.modelReloads = m.counterVec("model_reloads_total", "Artifact load attempts by result", "result")
	m.modelLoadDuration = m.histogram("model_load_duration_milliseconds", "Artifact load duration in milliseconds", m.histogramBuckets)
	m.modelLoadedUnix = m.gauge("model_loaded_unix", "Unix timestamp of the last successful artifact load")

	m.workerActiveCount = m.gauge("worker_active_count", "Number of batch workers currently running a job")
	m.workerIdleCount = m.gauge("worker_idle_count", "Number of idle batch workers")
	m.workerQueueSize = m.gauge("worker_queue_size", "Jobs waiting for a batch worker")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Batch job processing latency in milliseconds", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Batch jobs that finished with an error")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method",
		"endpoint", "method", "status_code")
	m.httpRequestDuration = promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        "http_request_duration_milliseconds",
		Help:        "HTTP request duration in milliseconds",
		ConstLabels: m.constLabels,
		Buckets:     m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})
	m.httpRateLimited = m.counterVec("http_rate_limited_total", "Requests rejected by the rate limiter", "endpoint")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component",
		"component", "error_type")
	m.errorRateByType = m.counterVec("errors_by_type_total", "Total number of errors by type", "error_type", "severity")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Total number of errors by endpoint",
		"endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Go heap bytes in use")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
	m.processCPUPercent = m.gauge("process_cpu_percent", "CPU used by this process, in percent of one core")
	m.processRSS = m.gauge("process_resident_memory_bytes", "Resident set size of this process")
	m.processThreads = m.gauge("process_threads", "OS threads of this process")
	m.hostMemoryPercent = m.gauge("host_memory_used_percent", "Used memory of the host in percent")
}

// RecordPrediction counts a finished prediction by outcome.
func RecordPrediction(outcome string) {
	globalManager.predictions.WithLabelValues(outcome).Inc()
}

// RecordPredictionLatency records end-to-end prediction latency in milliseconds.
func RecordPredictionLatency(latencyMs float64) {
	globalManager.predictionLatency.Observe(latencyMs)
}

// RecordInferenceLatency records artifact inference latency in milliseconds.
func RecordInferenceLatency(latencyMs float64) {
	globalManager.inferenceLatency.Observe(latencyMs)
}

func RecordCacheHit()  { globalManager.cacheHits.Inc() }
func RecordCacheMiss() { globalManager.cacheMisses.Inc() }

// RecordAlignment counts columns filled and dropped while aligning a row.
func RecordAlignment(filled, dropped int) {
	if filled > 0 {
		globalManager.filledColumns.Add(float64(filled))
	}
	if dropped > 0 {
		globalManager.droppedColumns.Add(float64(dropped))
	}
}

// RecordBatchSize records the size of a batch prediction.
func RecordBatchSize(size int) {
	globalManager.batchSize.Observe(float64(size))
}

// UpdateModelLoaded sets the model loaded gauge.
func UpdateModelLoaded(loaded bool) {
	if loaded {
		globalManager.modelLoaded.Set(1)
		return
	}
	globalManager.modelLoaded.Set(0)
}

// UpdateModelGeneration sets the generation of the serving artifact.
func UpdateModelGeneration(gen uint64) {
	globalManager.modelGeneration.Set(float64(gen))
}

// RecordModelReload counts an artifact load attempt. result is "success" or "failure".
func RecordModelReload(result string) {
	globalManager.modelReloads.WithLabelValues(result).Inc()
}

// RecordModelLoadDuration records how long an artifact load took.
func RecordModelLoadDuration(latencyMs float64) {
	globalManager.modelLoadDuration.Observe(latencyMs)
}

// UpdateModelLoadedTime sets the timestamp of the last successful load.
func UpdateModelLoadedTime(unix int64) {
	globalManager.modelLoadedUnix.Set(float64(unix))
}

// Worker Metrics Functions.

// UpdateWorkerActiveCount sets the number of busy workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// UpdateWorkerIdleCount sets the number of idle workers.
func UpdateWorkerIdleCount(count int) {
	globalManager.workerIdleCount.Set(float64(count))
}

// UpdateWorkerQueueSize sets the number of jobs waiting for a worker.
func UpdateWorkerQueueSize(size int) {
	globalManager.workerQueueSize.Set(float64(size))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordRateLimited counts a request rejected by the rate limiter.
func RecordRateLimited(endpoint string) {
	globalManager.httpRateLimited.WithLabelValues(endpoint).Inc()
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the Go heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// UpdateProcessStats sets the process CPU, RSS and thread gauges.
func UpdateProcessStats(cpuPercent float64, rssBytes uint64, threads int32) {
	globalManager.processCPUPercent.Set(cpuPercent)
	globalManager.processRSS.Set(float64(rssBytes))
	globalManager.processThreads.Set(float64(threads))
}

// UpdateHostMemoryPercent sets the host memory usage gauge.
func UpdateHostMemoryPercent(percent float64) {
	globalManager.hostMemoryPercent.Set(percent)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
