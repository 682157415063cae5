package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordTask("change_data", 0.1, true)
		m.RecordSubmit("save")
		m.UpdateQueueDepth(3)
		m.UpdateStoreSize(10, 2)
		m.RecordAdmission(false)
		m.RecordMove()
		m.RecordDecodeError()
		m.RecordHash()
		m.RecordDigestError()
		m.RecordValidation(true, 0.01)
	})
}

func TestMetricsRecording(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg, "test")

	m.RecordSubmit("change_data")
	m.RecordSubmit("change_data")
	m.RecordTask("change_data", 0.01, true)
	m.RecordAdmission(true)
	m.RecordAdmission(false)
	m.RecordValidation(true, 0.001)
	m.UpdateStoreSize(7, 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.TasksSubmittedTotal.WithLabelValues("change_data")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TasksFailedTotal.WithLabelValues("change_data")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PointsAdmitted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PointsRejected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StoreValid))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.PointsTotal))

	m.RecordValidation(false, 0.001)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.StoreValid))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestSeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry(), "a")
		NewMetrics(prometheus.NewRegistry(), "a")
	})
}
