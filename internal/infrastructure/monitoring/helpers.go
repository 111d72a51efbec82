package monitoring

import (
	"strings"
	"time"

	"github.com/prometheus/common/expfmt"
)

// Timer measures a host request
type Timer struct {
	start      time.Time
	metrics    *Metrics
	capability string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, capability string) *Timer {
	return &Timer{
		start:      time.Now(),
		metrics:    metrics,
		capability: capability,
	}
}

// Stop stops the timer and records the duration
func (t *Timer) Stop(status string) {
	t.metrics.RecordHostRequest(t.capability, status, time.Since(t.start))
}

// GetMetricsPrometheus returns the registry in the Prometheus text format
func (m *Metrics) GetMetricsPrometheus() (string, error) {
	if m == nil {
		return "", nil
	}
	families, err := m.registry.Gather()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(&sb, mf); err != nil {
			return "", err
		}
	}
	return sb.String(), nil
}
