package asyncmaria

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	_ = c.Write(m)
	return m.GetCounter().GetValue()
}

func getGaugeValue(g prometheus.Gauge) float64 {
	m := &dto.Metric{}
	_ = g.Write(m)
	return m.GetGauge().GetValue()
}

func TestMetricsCountOperationIncrementsByStateAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := newMetrics(reg)
	require.NoError(t, err)

	m.countOperation("query", "ok")
	m.countOperation("query", "ok")
	m.countOperation("query", "error")

	assert := require.New(t)
	assert.Equal(float64(2), getCounterValue(m.operations.WithLabelValues("query", "ok")))
	assert.Equal(float64(1), getCounterValue(m.operations.WithLabelValues("query", "error")))
	assert.Equal(float64(0), getCounterValue(m.operations.WithLabelValues("execute", "ok")))
}

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	var m *metrics
	require.NotPanics(t, func() {
		m.countOperation("ping", "ok")
		m.observeGauges("client-1", 3, 1)
	})
}

// TestClientQueriesDriveTheOperationsCounter exercises countOp end to
// end: a successful query and a connection-fatal one must each land
// exactly one asyncmaria_operations_total sample.
func TestClientQueriesDriveTheOperationsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()

	conn := newFakeConn()
	loop := newFakeLoop()
	c, err := New(loop, func() Conn { return conn }, WithMetrics(reg))
	require.NoError(t, err)

	var connectErr error
	require.NoError(t, c.Connect("localhost", "root", "", "testdb", 3306, "", func(err error) { connectErr = err }))
	require.NoError(t, connectErr)

	conn.resultQ = []fakeResult{{fieldCount: 0, affected: 1}}
	var queryErr error
	require.NoError(t, c.Query("select 1", func(res *QueryResult, err error) { queryErr = err }))
	require.NoError(t, queryErr)

	families, err := reg.Gather()
	require.NoError(t, err)
	var sampleCount uint64
	for _, f := range families {
		if f.GetName() == "asyncmaria_operations_total" {
			for _, sample := range f.GetMetric() {
				sampleCount += uint64(sample.GetCounter().GetValue())
			}
		}
	}
	require.Equal(t, uint64(1), sampleCount, "the successful query must have recorded exactly one operations_total sample")
}
