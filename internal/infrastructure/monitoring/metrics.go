package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. Every method is safe on a nil
// receiver so components can run without a collector.
type Metrics struct {
	// Rewrite metrics
	URLRewrites     *prometheus.CounterVec
	AttributeWrites *prometheus.CounterVec

	// Watcher metrics
	MutationRecords *prometheus.CounterVec
	DocumentsArmed  prometheus.Counter
	FlushLimits     prometheus.Counter

	// Interception metrics
	InterceptedCalls    *prometheus.CounterVec
	HostRequests        *prometheus.CounterVec
	HostRequestDuration *prometheus.HistogramVec

	// Sandbox metrics
	ScriptRuns     *prometheus.CounterVec
	ScriptDuration prometheus.Histogram

	// Service metrics
	HTTPRequests     *prometheus.CounterVec
	HTTPDuration     *prometheus.HistogramVec
	HTTPRequestSize  *prometheus.SummaryVec
	HTTPResponseSize *prometheus.SummaryVec

	registry *prometheus.Registry

	// Snapshot for the CLI summary - track current values
	snapshot MetricsSnapshot
	mu       sync.RWMutex
}

// MetricsSnapshot holds running totals for reporting
type MetricsSnapshot struct {
	URLRewrites      int64 `json:"url_rewrites"`
	AttributeWrites  int64 `json:"attribute_writes"`
	MutationRecords  int64 `json:"mutation_records"`
	InterceptedCalls int64 `json:"intercepted_calls"`
	DocumentsArmed   int64 `json:"documents_armed"`
	HostRequests     int64 `json:"host_requests"`
	ScriptErrors     int64 `json:"script_errors"`
}

// NewMetrics creates a collector backed by its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		URLRewrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replay_url_rewrites_total",
				Help: "Total number of URL and style values changed by the rewriter",
			},
			[]string{"kind"},
		),
		AttributeWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replay_attribute_writes_total",
				Help: "Total number of attribute and style writes performed by the patcher",
			},
			[]string{"attribute"},
		),

		MutationRecords: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replay_mutation_records_total",
				Help: "Total number of mutation records handled by watchers",
			},
			[]string{"type"},
		),
		DocumentsArmed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "replay_documents_armed_total",
				Help: "Total number of documents with an armed watcher",
			},
		),
		FlushLimits: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "replay_flush_limit_total",
				Help: "Total number of mutation flushes stopped by the round limit",
			},
		),

		InterceptedCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replay_intercepted_calls_total",
				Help: "Total number of calls through the request interceptors",
			},
			[]string{"capability"},
		),
		HostRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replay_host_requests_total",
				Help: "Total number of requests issued by the page host",
			},
			[]string{"capability", "status"},
		),
		HostRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "replay_host_request_duration_seconds",
				Help:    "Page host request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"capability"},
		),

		ScriptRuns: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replay_script_runs_total",
				Help: "Total number of page scripts executed",
			},
			[]string{"status"},
		),
		ScriptDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "replay_script_duration_seconds",
				Help:    "Page script execution time in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
		),

		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replay_http_requests_total",
				Help: "Total number of patch service requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "replay_http_request_duration_seconds",
				Help:    "Patch service request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		HTTPRequestSize: factory.NewSummaryVec(
			prometheus.SummaryOpts{
				Name: "replay_http_request_size_bytes",
				Help: "Patch service request size in bytes",
			},
			[]string{"method", "path"},
		),
		HTTPResponseSize: factory.NewSummaryVec(
			prometheus.SummaryOpts{
				Name: "replay_http_response_size_bytes",
				Help: "Patch service response size in bytes",
			},
			[]string{"method", "path"},
		),
	}
}

// Registry returns the registry the metrics are registered with
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRewrite records a changed URL or style value
func (m *Metrics) RecordRewrite(kind string) {
	if m == nil {
		return
	}
	m.URLRewrites.WithLabelValues(kind).Inc()
	m.mu.Lock()
	m.snapshot.URLRewrites++
	m.mu.Unlock()
}

// RecordAttributeWrite records a write-back by the patcher
func (m *Metrics) RecordAttributeWrite(attribute string) {
	if m == nil {
		return
	}
	m.AttributeWrites.WithLabelValues(attribute).Inc()
	m.mu.Lock()
	m.snapshot.AttributeWrites++
	m.mu.Unlock()
}

// RecordMutation records a mutation record handled by a watcher
func (m *Metrics) RecordMutation(recordType string) {
	if m == nil {
		return
	}
	m.MutationRecords.WithLabelValues(recordType).Inc()
	m.mu.Lock()
	m.snapshot.MutationRecords++
	m.mu.Unlock()
}

// IncDocumentsArmed records a newly armed watcher
func (m *Metrics) IncDocumentsArmed() {
	if m == nil {
		return
	}
	m.DocumentsArmed.Inc()
	m.mu.Lock()
	m.snapshot.DocumentsArmed++
	m.mu.Unlock()
}

// IncFlushLimits records a flush stopped by the round limit
func (m *Metrics) IncFlushLimits() {
	if m == nil {
		return
	}
	m.FlushLimits.Inc()
}

// RecordIntercept records a call through an interceptor
func (m *Metrics) RecordIntercept(capability string) {
	if m == nil {
		return
	}
	m.InterceptedCalls.WithLabelValues(capability).Inc()
	m.mu.Lock()
	m.snapshot.InterceptedCalls++
	m.mu.Unlock()
}

// RecordHostRequest records a request issued on behalf of the page
func (m *Metrics) RecordHostRequest(capability, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HostRequests.WithLabelValues(capability, status).Inc()
	m.HostRequestDuration.WithLabelValues(capability).Observe(duration.Seconds())
	m.mu.Lock()
	m.snapshot.HostRequests++
	m.mu.Unlock()
}

// RecordScript records one script execution
func (m *Metrics) RecordScript(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ScriptRuns.WithLabelValues(status).Inc()
	m.ScriptDuration.Observe(duration.Seconds())
	if status != "success" {
		m.mu.Lock()
		m.snapshot.ScriptErrors++
		m.mu.Unlock()
	}
}

// RecordHTTPRequest records one patch service request. path is the route
// pattern, not the raw path, to keep label cardinality bounded.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, status).Inc()
	m.HTTPDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.HTTPRequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.HTTPResponseSize.WithLabelValues(method, path).Observe(float64(respSize))
}

// Snapshot returns the running totals
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
