package asyncmaria

import "github.com/prometheus/client_golang/prometheus"

// prometheusRegisterer is the subset of prometheus.Registerer used by
// WithMetrics, kept narrow so callers can pass a *prometheus.Registry or
// the default registry interchangeably.
type prometheusRegisterer interface {
	Register(prometheus.Collector) error
}

// metrics holds the counters and gauges this client exposes when
// WithMetrics is configured. Counters only: the core has no per-request
// latency SLA of its own to surface (that belongs to a pooling layer this
// spec explicitly excludes).
type metrics struct {
	pendingCount *prometheus.GaugeVec
	sendWindow   *prometheus.GaugeVec
	operations   *prometheus.CounterVec
}

// newMetrics constructs and registers the collector set against reg.
func newMetrics(reg prometheusRegisterer) (*metrics, error) {
	m := &metrics{
		pendingCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "asyncmaria_pending_count",
				Help: "Number of queued-plus-in-flight operations on the client.",
			},
			[]string{"client"},
		),
		sendWindow: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "asyncmaria_send_window",
				Help: "Number of operations sent but not yet resolved (the pipeline window).",
			},
			[]string{"client"},
		),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "asyncmaria_operations_total",
				Help: "Completed operations by state and outcome.",
			},
			[]string{"state", "outcome"},
		),
	}
	for _, c := range []prometheus.Collector{m.pendingCount, m.sendWindow, m.operations} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) observeGauges(clientID string, pending, sendCount int) {
	if m == nil {
		return
	}
	m.pendingCount.WithLabelValues(clientID).Set(float64(pending))
	m.sendWindow.WithLabelValues(clientID).Set(float64(sendCount))
}

func (m *metrics) countOperation(state, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(state, outcome).Inc()
}
