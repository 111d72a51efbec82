package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecord(t *testing.T) {
	m := NewMetrics()

	m.RecordRewrite("url")
	m.RecordRewrite("url")
	m.RecordRewrite("style")
	m.RecordAttributeWrite("src")
	m.RecordMutation("childList")
	m.IncDocumentsArmed()
	m.IncFlushLimits()
	m.RecordIntercept("fetch")
	m.RecordHostRequest("fetch", "200", 10*time.Millisecond)
	m.RecordScript("success", time.Millisecond)
	m.RecordScript("error", time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.URLRewrites.WithLabelValues("url")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.URLRewrites.WithLabelValues("style")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AttributeWrites.WithLabelValues("src")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FlushLimits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HostRequests.WithLabelValues("fetch", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScriptRuns.WithLabelValues("error")))

	assert.Equal(t, MetricsSnapshot{
		URLRewrites:      3,
		AttributeWrites:  1,
		MutationRecords:  1,
		InterceptedCalls: 1,
		DocumentsArmed:   1,
		HostRequests:     1,
		ScriptErrors:     1,
	}, m.Snapshot())
}

func TestMetricsNil(t *testing.T) {
	var m *Metrics

	assert.NotPanics(t, func() {
		m.RecordRewrite("url")
		m.RecordMutation("attributes")
		m.IncDocumentsArmed()
		NewTimer(m, "xhr").Stop("error")
	})
	assert.Equal(t, MetricsSnapshot{}, m.Snapshot())
	assert.Nil(t, m.Registry())

	text, err := m.GetMetricsPrometheus()
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestMetricsSeparateRegistries(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.RecordIntercept("fetch")

	assert.Equal(t, int64(1), a.Snapshot().InterceptedCalls)
	assert.Equal(t, int64(0), b.Snapshot().InterceptedCalls)
}

func TestGetMetricsPrometheus(t *testing.T) {
	m := NewMetrics()
	m.RecordIntercept("xhr.open")
	NewTimer(m, "xhr").Stop("404")

	text, err := m.GetMetricsPrometheus()
	require.NoError(t, err)
	assert.Contains(t, text, `replay_intercepted_calls_total{capability="xhr.open"} 1`)
	assert.Contains(t, text, `replay_host_requests_total{capability="xhr",status="404"} 1`)
	assert.Contains(t, text, "replay_host_request_duration_seconds_bucket")
}
