/*
Package monitoring provides metrics collection for page patching.

# Overview

Metrics are Prometheus counters and histograms registered on a private
registry, so several collectors can coexist in one process (tests, pooled
pages). Every recording method accepts a nil *Metrics.

# Metrics

  - replay_url_rewrites_total{kind}: values changed by the rewriter
  - replay_attribute_writes_total{attribute}: patcher write-backs
  - replay_mutation_records_total{type}: records handled by watchers
  - replay_documents_armed_total: armed watchers
  - replay_flush_limit_total: flushes stopped by the round limit
  - replay_intercepted_calls_total{capability}: calls through interceptors
  - replay_host_requests_total{capability,status} and durations
  - replay_script_runs_total{status} and durations
  - replay_http_requests_total{method,path,status}, durations and sizes for
    the patch service, recorded by Middleware

# Usage

	metrics := monitoring.NewMetrics()
	p := patcher.New(rw, patcher.WithMetrics(metrics))

	timer := monitoring.NewTimer(metrics, "fetch")
	// ... perform request ...
	timer.Stop("200")

	text, _ := metrics.GetMetricsPrometheus()
*/
package monitoring
