package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNewMetricsWith_IsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsWith(reg, "test")

	m.GuardDecisions.WithLabelValues("below_min").Inc()
	m.IdempotencyChecks.WithLabelValues("reentry", "held").Add(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.GuardDecisions.WithLabelValues("below_min")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.IdempotencyChecks.WithLabelValues("reentry", "held")))

	families, err := reg.Gather()
	assert.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestRecordHelpers(t *testing.T) {
	before := testutil.ToFloat64(DefaultMetrics.MetricsCacheLookups.WithLabelValues("hit"))
	RecordCacheLookup(true)
	assert.Equal(t, before+1, testutil.ToFloat64(DefaultMetrics.MetricsCacheLookups.WithLabelValues("hit")))

	failBefore := testutil.ToFloat64(DefaultMetrics.ProviderFailures.WithLabelValues("timeout"))
	RecordProviderCall(10*time.Millisecond, "timeout")
	RecordProviderCall(10*time.Millisecond, "")
	assert.Equal(t, failBefore+1, testutil.ToFloat64(DefaultMetrics.ProviderFailures.WithLabelValues("timeout")))

	RecordReconcileCycle("ok", time.Second)
	assert.Greater(t, testutil.ToFloat64(DefaultMetrics.LastSuccessfulReconcile), 0.0)
}
