package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCronJobMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)
	job := "order-reconcile"

	m.ObserveDuration(job, 250*time.Millisecond)
	m.IncSuccess(job)
	m.IncFailure(job)
	m.IncSkipped(job)
	m.IncSkipped(job)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.success.WithLabelValues(job)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.failure.WithLabelValues(job)))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.skipped.WithLabelValues(job)))

	count, err := testutil.GatherAndCount(reg, "smm_job_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCronJobMetricsEmptyJobLabel(t *testing.T) {
	m := NewCronJobMetrics(prometheus.NewRegistry())
	m.IncSuccess("")
	assert.Equal(t, float64(1), testutil.ToFloat64(m.success.WithLabelValues("unknown")))
}

func TestNilRecordersAreSafe(t *testing.T) {
	var cron *CronJobMetrics
	cron.IncSuccess("x")
	cron.ObserveDuration("x", time.Second)
	NewCronJobMetrics(nil).IncFailure("x")

	var orders *OrderMetrics
	orders.IncDispatch("dispatched")
	NewOrderMetrics(nil).IncSync("updated")
}

func TestOrderMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOrderMetrics(reg)

	m.IncDispatch("dispatched")
	m.IncDispatch("not_configured")
	m.IncSync("updated")
	m.IncTransition("completed")
	m.IncPayment("stripe", "succeeded")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.dispatch.WithLabelValues("dispatched")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.dispatch.WithLabelValues("not_configured")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.sync.WithLabelValues("updated")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.transitions.WithLabelValues("completed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.payments.WithLabelValues("stripe", "succeeded")))
}

func TestOutboxMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.IncPublished("order_paid")
	m.IncPublished("order_paid")
	m.IncFailed("order_created")
	m.IncDeadLettered("order_refunded", "max_attempts")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.published.WithLabelValues("order_paid")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.failed.WithLabelValues("order_created")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.dead.WithLabelValues("order_refunded", "max_attempts")))

	var nilMetrics *OutboxMetrics
	nilMetrics.IncPublished("order_paid")
}
