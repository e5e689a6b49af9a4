package runtime

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchMetricsRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDispatchMetrics(reg)
	require.NoError(t, m.Register())
	require.NoError(t, m.Register())

	m.dispatchStarted(2)
	m.decoded(20 * time.Millisecond)
	m.dispatchDone(2)
	m.dispatchStarted(0)
	m.dispatchDone(0)
	m.dispatchStarted(4)
	m.fault(FaultMemory)
	m.rejected()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatchesTotal.WithLabelValues("done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatchesTotal.WithLabelValues("empty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatchesTotal.WithLabelValues("fatal")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.faultsTotal.WithLabelValues("memory")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.linesPublished))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rejectedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inFlight), "a fatal dispatch never completes")
	assert.Equal(t, 1, testutil.CollectAndCount(m.decodeSeconds))
}

func TestDispatchMetricsSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewDispatchMetrics(reg)
	require.NoError(t, first.Register())

	second := NewDispatchMetrics(reg)
	assert.NoError(t, second.Register(), "duplicate registration is tolerated")
}

func TestDispatchMetricsNil(t *testing.T) {
	var m *DispatchMetrics
	assert.NotPanics(t, func() {
		m.dispatchStarted(1)
		m.decoded(time.Second)
		m.dispatchDone(1)
		m.fault(FaultRuntime)
		m.rejected()
	})
}
